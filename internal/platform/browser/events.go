package browser

import (
	"sort"
	"time"

	"github.com/chromedp/cdproto/input"

	"github.com/xkilldash9x/uipilot/api/schemas"
)

// timedEvent is a mouse event scheduled relative to gesture dispatch.
type timedEvent struct {
	at     time.Duration
	params *input.DispatchMouseEventParams
}

const leftButton = input.MouseButton("left")

// mouseEvents translates a gesture into CDP mouse events. Each stroke becomes
// press, moves along the path and release. Scroll gestures become a single
// wheel event whose delta mirrors the finger travel.
func mouseEvents(g schemas.Gesture) []timedEvent {
	var events []timedEvent
	for i, s := range g.Strokes {
		if len(s.Path) == 0 {
			continue
		}
		if g.Intent == schemas.KindScroll {
			events = append(events, wheelEvent(s))
			continue
		}

		first, last := s.Path[0], s.Path[len(s.Path)-1]
		// Strokes after the first count as repeated clicks so the page sees a dblclick.
		clicks := int64(i + 1)
		events = append(events, timedEvent{
			at: s.StartDelay,
			params: input.DispatchMouseEvent(input.MousePressed, float64(first.X), float64(first.Y)).
				WithButton(leftButton).WithButtons(1).WithClickCount(clicks),
		})

		if n := len(s.Path); n > 1 {
			step := s.Duration / time.Duration(n-1)
			for j, p := range s.Path[1:] {
				events = append(events, timedEvent{
					at: s.StartDelay + step*time.Duration(j+1),
					params: input.DispatchMouseEvent(input.MouseMoved, float64(p.X), float64(p.Y)).
						WithButton(leftButton).WithButtons(1),
				})
			}
		}

		events = append(events, timedEvent{
			at: s.StartDelay + s.Duration,
			params: input.DispatchMouseEvent(input.MouseReleased, float64(last.X), float64(last.Y)).
				WithButton(leftButton).WithClickCount(clicks),
		})
	}
	sort.SliceStable(events, func(a, b int) bool { return events[a].at < events[b].at })
	return events
}

func wheelEvent(s schemas.Stroke) timedEvent {
	first, last := s.Path[0], s.Path[len(s.Path)-1]
	return timedEvent{
		at: s.StartDelay,
		params: input.DispatchMouseEvent(input.MouseWheel, float64(first.X), float64(first.Y)).
			WithDeltaX(float64(first.X - last.X)).
			WithDeltaY(float64(first.Y - last.Y)),
	}
}
