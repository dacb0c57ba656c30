package schemas

import (
	"fmt"
	"strings"
	"time"
)

// ActionKind is the wire tag of an action in a plan response.
type ActionKind string

const (
	KindTouch           ActionKind = "touch"
	KindLongTouch       ActionKind = "long_touch"
	KindDoubleTap       ActionKind = "double_tap"
	KindSwipe           ActionKind = "swipe"
	KindDragAndDrop     ActionKind = "drag_and_drop"
	KindScroll          ActionKind = "scroll"
	KindInput           ActionKind = "input"
	KindWait            ActionKind = "wait"
	KindGlobalGesture   ActionKind = "gesture"
	KindOpenApplication ActionKind = "open_application"
	KindDone            ActionKind = "done"
)

// IsGesture reports whether actions of this kind are dispatched as a touch
// path and complete asynchronously.
func (k ActionKind) IsGesture() bool {
	switch k {
	case KindTouch, KindLongTouch, KindDoubleTap, KindSwipe, KindDragAndDrop, KindScroll:
		return true
	}
	return false
}

// Action is one step of an ActionPlan. The set of implementations is closed.
type Action interface {
	Kind() ActionKind
	// String is a compact, stable summary used in repetition evidence and logs.
	String() string
	isAction()
}

// ScrollDirection names the direction in which content should be revealed.
type ScrollDirection string

const (
	ScrollUp    ScrollDirection = "up"
	ScrollDown  ScrollDirection = "down"
	ScrollLeft  ScrollDirection = "left"
	ScrollRight ScrollDirection = "right"
)

// GlobalAction is a system level navigation affordance.
type GlobalAction string

const (
	GlobalBack       GlobalAction = "back"
	GlobalHome       GlobalAction = "home"
	GlobalRecentApps GlobalAction = "recent_apps"
)

// Valid reports whether g is one of the supported global actions.
func (g GlobalAction) Valid() bool {
	switch g {
	case GlobalBack, GlobalHome, GlobalRecentApps:
		return true
	}
	return false
}

type Touch struct {
	At Point
}

type LongTouch struct {
	At       Point
	Duration time.Duration
}

type DoubleTap struct {
	At Point
}

type Swipe struct {
	From     Point
	To       Point
	Duration time.Duration
}

type DragAndDrop struct {
	From     Point
	To       Point
	Duration time.Duration
}

type Scroll struct {
	Direction ScrollDirection
	At        Point
	Distance  int
}

// Input types Text into the editable element under At.
type Input struct {
	Text string
	At   Point
}

type Wait struct {
	Duration time.Duration
}

type GlobalGesture struct {
	Name GlobalAction
}

type OpenApplication struct {
	Package string
}

// Done signals that the whole user command has been accomplished.
type Done struct{}

// InvalidAction stands in for a plan entry that could not be turned into an
// executable action. The executor fails the plan when it reaches one.
type InvalidAction struct {
	Type string
	Err  error
}

func (Touch) Kind() ActionKind           { return KindTouch }
func (LongTouch) Kind() ActionKind       { return KindLongTouch }
func (DoubleTap) Kind() ActionKind       { return KindDoubleTap }
func (Swipe) Kind() ActionKind           { return KindSwipe }
func (DragAndDrop) Kind() ActionKind     { return KindDragAndDrop }
func (Scroll) Kind() ActionKind          { return KindScroll }
func (Input) Kind() ActionKind           { return KindInput }
func (Wait) Kind() ActionKind            { return KindWait }
func (GlobalGesture) Kind() ActionKind   { return KindGlobalGesture }
func (OpenApplication) Kind() ActionKind { return KindOpenApplication }
func (Done) Kind() ActionKind            { return KindDone }
func (a InvalidAction) Kind() ActionKind { return ActionKind(a.Type) }

func (Touch) isAction()           {}
func (LongTouch) isAction()       {}
func (DoubleTap) isAction()       {}
func (Swipe) isAction()           {}
func (DragAndDrop) isAction()     {}
func (Scroll) isAction()          {}
func (Input) isAction()           {}
func (Wait) isAction()            {}
func (GlobalGesture) isAction()   {}
func (OpenApplication) isAction() {}
func (Done) isAction()            {}
func (InvalidAction) isAction()   {}

func (a Touch) String() string { return fmt.Sprintf("touch(%d,%d)", a.At.X, a.At.Y) }
func (a LongTouch) String() string {
	return fmt.Sprintf("long_touch(%d,%d,%dms)", a.At.X, a.At.Y, a.Duration.Milliseconds())
}
func (a DoubleTap) String() string { return fmt.Sprintf("double_tap(%d,%d)", a.At.X, a.At.Y) }
func (a Swipe) String() string {
	return fmt.Sprintf("swipe(%d,%d->%d,%d,%dms)", a.From.X, a.From.Y, a.To.X, a.To.Y, a.Duration.Milliseconds())
}
func (a DragAndDrop) String() string {
	return fmt.Sprintf("drag_and_drop(%d,%d->%d,%d,%dms)", a.From.X, a.From.Y, a.To.X, a.To.Y, a.Duration.Milliseconds())
}
func (a Scroll) String() string {
	return fmt.Sprintf("scroll(%s,%d,%d,%d)", a.Direction, a.At.X, a.At.Y, a.Distance)
}
func (a Input) String() string           { return fmt.Sprintf("input(%q,%d,%d)", a.Text, a.At.X, a.At.Y) }
func (a Wait) String() string            { return fmt.Sprintf("wait(%dms)", a.Duration.Milliseconds()) }
func (a GlobalGesture) String() string   { return fmt.Sprintf("gesture(%s)", a.Name) }
func (a OpenApplication) String() string { return fmt.Sprintf("open_application(%s)", a.Package) }
func (Done) String() string              { return "done" }
func (a InvalidAction) String() string   { return fmt.Sprintf("invalid(%s)", a.Type) }

// ActionPlan is an ordered list of actions with a cursor. Only the executor
// advances the cursor.
type ActionPlan struct {
	actions []Action
	cursor  int
}

// NewActionPlan builds a plan positioned at its first action.
func NewActionPlan(actions ...Action) *ActionPlan {
	cp := make([]Action, len(actions))
	copy(cp, actions)
	return &ActionPlan{actions: cp}
}

// Len is the total number of actions in the plan.
func (p *ActionPlan) Len() int { return len(p.actions) }

// Position is the index of the next action to execute.
func (p *ActionPlan) Position() int { return p.cursor }

// Next returns the action under the cursor and its index, then advances.
func (p *ActionPlan) Next() (Action, int, bool) {
	if p.cursor >= len(p.actions) {
		return nil, p.cursor, false
	}
	idx := p.cursor
	p.cursor++
	return p.actions[idx], idx, true
}

// Actions returns a copy of the plan's actions.
func (p *ActionPlan) Actions() []Action {
	cp := make([]Action, len(p.actions))
	copy(cp, p.actions)
	return cp
}

// Summary joins the action summaries in order.
func (p *ActionPlan) Summary() string {
	if len(p.actions) == 0 {
		return "(no actions)"
	}
	parts := make([]string, len(p.actions))
	for i, a := range p.actions {
		parts[i] = a.String()
	}
	return strings.Join(parts, "; ")
}
