// internal/agent/plan_parser.go
package agent

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/uipilot/api/schemas"
)

var (
	// ErrNoJSONObject means the response holds no balanced JSON object.
	ErrNoJSONObject = errors.New("no JSON object found in response")
	// ErrMissingActions means the object has no "actions" array.
	ErrMissingActions = errors.New(`plan object has no "actions" array`)
)

// openingFence matches a markdown fence marker and its optional language tag.
var openingFence = regexp.MustCompile("^```[[:alnum:]_+-]*")

const fence = "```"

// PlanParseError reports a response that could not be turned into a plan.
type PlanParseError struct {
	Err error
	// Extracted is the JSON candidate, empty when none was found.
	Extracted string
}

func (e *PlanParseError) Error() string { return "failed to parse plan: " + e.Err.Error() }
func (e *PlanParseError) Unwrap() error { return e.Err }

// ActionDecodeError describes a single plan entry that could not be decoded.
// It is carried by schemas.InvalidAction so the executor can fail at the
// exact index.
type ActionDecodeError struct {
	Index int
	Type  string
	Err   error
}

func (e *ActionDecodeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("action %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("action %d (%s): %v", e.Index, e.Type, e.Err)
}

func (e *ActionDecodeError) Unwrap() error { return e.Err }

type wirePoint struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type wireAction struct {
	Type            string     `json:"type"`
	Coordinates     *wirePoint `json:"coordinates"`
	Start           *wirePoint `json:"start"`
	End             *wirePoint `json:"end"`
	Duration        *float64   `json:"duration"`
	Direction       string     `json:"direction"`
	Distance        *float64   `json:"distance"`
	Text            *string    `json:"text"`
	Name            string     `json:"name"`
	ApplicationName string     `json:"application_name"`
}

type wirePlan struct {
	Actions *[]json.RawMessage `json:"actions"`
}

// ParsePlan extracts the first JSON object from a provider response,
// tolerating surrounding prose and markdown fences, and decodes it into an
// ActionPlan. Entries with unknown or incomplete fields become
// schemas.InvalidAction values; only a missing or undecodable object fails
// the whole parse.
func ParsePlan(response string) (*schemas.ActionPlan, error) {
	candidate, err := ExtractJSONObject(StripCodeFences(response))
	if err != nil {
		// A stray fence can swallow the object; retry on the raw text.
		if candidate, err = ExtractJSONObject(response); err != nil {
			return nil, &PlanParseError{Err: err}
		}
	}

	var wp wirePlan
	if err := json.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(candidate, &wp); err != nil {
		return nil, &PlanParseError{Err: fmt.Errorf("invalid plan JSON: %w", err), Extracted: candidate}
	}
	if wp.Actions == nil {
		return nil, &PlanParseError{Err: ErrMissingActions, Extracted: candidate}
	}

	actions := make([]schemas.Action, 0, len(*wp.Actions))
	for i, raw := range *wp.Actions {
		actions = append(actions, decodeAction(i, raw))
	}
	return schemas.NewActionPlan(actions...), nil
}

func decodeAction(index int, raw json.RawMessage) schemas.Action {
	var w wireAction
	if err := json.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &w); err != nil {
		return invalid(index, "", fmt.Errorf("%w: %v", schemas.ErrMalformedAction, err))
	}

	action, err := w.toAction()
	if err != nil {
		return invalid(index, w.Type, err)
	}
	return action
}

func invalid(index int, typ string, err error) schemas.InvalidAction {
	return schemas.InvalidAction{Type: typ, Err: &ActionDecodeError{Index: index, Type: typ, Err: err}}
}

func (w wireAction) toAction() (schemas.Action, error) {
	switch schemas.ActionKind(w.Type) {
	case schemas.KindTouch:
		at, err := w.Coordinates.point("coordinates")
		return schemas.Touch{At: at}, err

	case schemas.KindLongTouch:
		at, err := w.Coordinates.point("coordinates")
		return schemas.LongTouch{At: at, Duration: millis(w.Duration)}, err

	case schemas.KindDoubleTap:
		at, err := w.Coordinates.point("coordinates")
		return schemas.DoubleTap{At: at}, err

	case schemas.KindSwipe, schemas.KindDragAndDrop:
		from, err := w.Start.point("start")
		if err != nil {
			return nil, err
		}
		to, err := w.End.point("end")
		if err != nil {
			return nil, err
		}
		if w.Type == string(schemas.KindSwipe) {
			return schemas.Swipe{From: from, To: to, Duration: millis(w.Duration)}, nil
		}
		return schemas.DragAndDrop{From: from, To: to, Duration: millis(w.Duration)}, nil

	case schemas.KindScroll:
		at, err := w.Coordinates.point("coordinates")
		if err != nil {
			return nil, err
		}
		if w.Direction == "" {
			return nil, fmt.Errorf("%w: missing direction", schemas.ErrMalformedAction)
		}
		distance := 0
		if w.Distance != nil {
			distance = int(math.Round(*w.Distance))
		}
		return schemas.Scroll{Direction: schemas.ScrollDirection(strings.ToLower(w.Direction)), At: at, Distance: distance}, nil

	case schemas.KindInput:
		if w.Text == nil {
			return nil, fmt.Errorf("%w: missing text", schemas.ErrMalformedAction)
		}
		at, err := w.Coordinates.point("coordinates")
		return schemas.Input{Text: *w.Text, At: at}, err

	case schemas.KindWait:
		if w.Duration == nil {
			return nil, fmt.Errorf("%w: missing duration", schemas.ErrMalformedAction)
		}
		return schemas.Wait{Duration: millis(w.Duration)}, nil

	case schemas.KindGlobalGesture:
		if w.Name == "" {
			return nil, fmt.Errorf("%w: missing name", schemas.ErrMalformedAction)
		}
		return schemas.GlobalGesture{Name: schemas.GlobalAction(strings.ToLower(w.Name))}, nil

	case schemas.KindOpenApplication:
		if w.ApplicationName == "" {
			return nil, fmt.Errorf("%w: missing application_name", schemas.ErrMalformedAction)
		}
		return schemas.OpenApplication{Package: w.ApplicationName}, nil

	case schemas.KindDone:
		return schemas.Done{}, nil

	case "":
		return nil, fmt.Errorf("%w: missing type", schemas.ErrMalformedAction)
	}
	return nil, fmt.Errorf("%w: %q", schemas.ErrUnknownActionType, w.Type)
}

func (p *wirePoint) point(field string) (schemas.Point, error) {
	if p == nil || p.X == nil || p.Y == nil {
		return schemas.Point{}, fmt.Errorf("%w: missing %s", schemas.ErrMalformedAction, field)
	}
	return schemas.Point{X: int(math.Round(*p.X)), Y: int(math.Round(*p.Y))}, nil
}

func millis(v *float64) time.Duration {
	if v == nil {
		return 0
	}
	return time.Duration(*v * float64(time.Millisecond))
}

// StripCodeFences trims the response and removes a fence marker from its
// very start and very end. Fences elsewhere in the text are left alone.
func StripCodeFences(response string) string {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, fence) {
		response = openingFence.ReplaceAllString(response, "")
	}
	if strings.HasSuffix(response, fence) {
		response = strings.TrimSuffix(response, fence)
	}
	return strings.TrimSpace(response)
}

// ExtractJSONObject returns the first balanced top-level {...} in s. Braces
// inside string literals are ignored.
func ExtractJSONObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", ErrNoJSONObject
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: unbalanced braces", ErrNoJSONObject)
}
