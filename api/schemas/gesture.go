package schemas

import "time"

// Stroke is one continuous contact following Path over Duration, beginning
// StartDelay after the gesture is dispatched.
type Stroke struct {
	Path       []Point
	StartDelay time.Duration
	Duration   time.Duration
}

// Gesture is a set of strokes dispatched as one unit. Intent names the action
// that produced it so platforms without raw touch injection can map it to a
// native primitive.
type Gesture struct {
	Intent  ActionKind
	Strokes []Stroke
}

// TotalDuration is the time from dispatch until the last stroke ends.
func (g Gesture) TotalDuration() time.Duration {
	var total time.Duration
	for _, s := range g.Strokes {
		if end := s.StartDelay + s.Duration; end > total {
			total = end
		}
	}
	return total
}

// GestureState is the terminal signal for a dispatched gesture.
type GestureState string

const (
	GestureCompleted GestureState = "completed"
	GestureCancelled GestureState = "cancelled"
)

// GestureStatus is delivered exactly once on the channel returned by
// Platform.DispatchGesture.
type GestureStatus struct {
	State GestureState
	Err   error
}

// ElementAction is an operation applied to a single UIElement.
type ElementAction string

const (
	ElementFocus   ElementAction = "focus"
	ElementSetText ElementAction = "set_text"
	ElementSubmit  ElementAction = "submit"
)

// ArgText is the PerformAction argument key holding the text for ElementSetText.
const ArgText = "text"
