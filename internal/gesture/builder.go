// internal/gesture/builder.go
package gesture

import (
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/uipilot/api/schemas"
	"github.com/xkilldash9x/uipilot/internal/config"
)

// ErrInvalidParameters is returned for gesture actions whose fields cannot
// describe a touch path.
var ErrInvalidParameters = errors.New("invalid gesture parameters")

// Builder turns gesture actions into timed strokes.
type Builder struct {
	cfg config.GestureConfig
}

// NewBuilder creates a Builder using the given timings.
func NewBuilder(cfg config.GestureConfig) *Builder {
	if cfg.PathSteps < 2 {
		cfg.PathSteps = 2
	}
	return &Builder{cfg: cfg}
}

// Build returns the gesture for a gesture based action.
func (b *Builder) Build(action schemas.Action) (schemas.Gesture, error) {
	g := schemas.Gesture{Intent: action.Kind()}

	switch a := action.(type) {
	case schemas.Touch:
		if err := checkPoints(a.At); err != nil {
			return g, err
		}
		g.Strokes = []schemas.Stroke{b.tap(a.At, 0)}

	case schemas.LongTouch:
		if err := checkPoints(a.At); err != nil {
			return g, err
		}
		g.Strokes = []schemas.Stroke{{
			Path:     []schemas.Point{a.At},
			Duration: orDefault(a.Duration, b.cfg.LongTouchDuration),
		}}

	case schemas.DoubleTap:
		if err := checkPoints(a.At); err != nil {
			return g, err
		}
		g.Strokes = []schemas.Stroke{
			b.tap(a.At, 0),
			b.tap(a.At, b.cfg.TapDuration+b.cfg.DoubleTapInterval),
		}

	case schemas.Swipe:
		if err := checkPoints(a.From, a.To); err != nil {
			return g, err
		}
		g.Strokes = []schemas.Stroke{{
			Path:     bezierPath(a.From, a.To, b.cfg.PathSteps, b.cfg.Curvature),
			Duration: orDefault(a.Duration, b.cfg.SwipeDuration),
		}}

	case schemas.DragAndDrop:
		if err := checkPoints(a.From, a.To); err != nil {
			return g, err
		}
		g.Strokes = []schemas.Stroke{b.drag(a.From, a.To, orDefault(a.Duration, b.cfg.SwipeDuration))}

	case schemas.Scroll:
		if err := checkPoints(a.At); err != nil {
			return g, err
		}
		end, err := b.scrollEnd(a)
		if err != nil {
			return g, err
		}
		g.Strokes = []schemas.Stroke{{
			Path:     bezierPath(a.At, end, b.cfg.PathSteps, b.cfg.Curvature),
			Duration: b.cfg.ScrollDuration,
		}}

	default:
		return g, fmt.Errorf("%w: %s is not a gesture action", ErrInvalidParameters, action.Kind())
	}
	return g, nil
}

func (b *Builder) tap(at schemas.Point, delay time.Duration) schemas.Stroke {
	return schemas.Stroke{
		Path:       []schemas.Point{at},
		StartDelay: delay,
		Duration:   b.cfg.TapDuration,
	}
}

// drag holds at the origin long enough to pick the element up, then moves.
// Platforms play path samples at a constant rate, so the hold is encoded as
// repeated origin samples in proportion to its share of the total duration.
func (b *Builder) drag(from, to schemas.Point, move time.Duration) schemas.Stroke {
	moving := bezierPath(from, to, b.cfg.PathSteps, b.cfg.Curvature)
	total := b.cfg.DragHold + move

	holdSamples := 0
	if move > 0 {
		holdSamples = int(float64(len(moving)) * float64(b.cfg.DragHold) / float64(move))
	}
	path := make([]schemas.Point, 0, holdSamples+len(moving))
	for i := 0; i < holdSamples; i++ {
		path = append(path, from)
	}
	path = append(path, moving...)
	return schemas.Stroke{Path: path, Duration: total}
}

// scrollEnd resolves where the finger stops. Revealing content below means
// moving the finger up, and so on for the other directions.
func (b *Builder) scrollEnd(a schemas.Scroll) (schemas.Point, error) {
	d := a.Distance
	if d <= 0 {
		d = b.cfg.ScrollDistance
	}
	end := a.At
	switch a.Direction {
	case schemas.ScrollDown:
		end.Y -= d
	case schemas.ScrollUp:
		end.Y += d
	case schemas.ScrollRight:
		end.X -= d
	case schemas.ScrollLeft:
		end.X += d
	default:
		return end, fmt.Errorf("%w: unknown scroll direction %q", ErrInvalidParameters, a.Direction)
	}
	end.X = max(end.X, 0)
	end.Y = max(end.Y, 0)
	return end, nil
}

func checkPoints(points ...schemas.Point) error {
	for _, p := range points {
		if p.X < 0 || p.Y < 0 {
			return fmt.Errorf("%w: negative coordinate (%d,%d)", ErrInvalidParameters, p.X, p.Y)
		}
	}
	return nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
