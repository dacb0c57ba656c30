// internal/executor/handlers.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/uipilot/api/schemas"
)

func (e *Executor) executeGesture(ctx context.Context, action schemas.Action, idx int) error {
	g, err := e.gestures.Build(action)
	if err != nil {
		return stepErr(schemas.CodeInvalidParameters, err)
	}

	statusCh, err := e.platform.DispatchGesture(ctx, g)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return stepErr(schemas.CodeExecutionFailure, fmt.Errorf("gesture dispatch rejected: %w", err))
	}
	e.transition(StateAwaitingCompletion, idx)

	// The gesture's own length is not counted against the timeout.
	timeout := time.NewTimer(e.cfg.GestureTimeout + g.TotalDuration())
	defer timeout.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout.C:
		return stepErr(schemas.CodeTimeoutError,
			fmt.Errorf("no completion signal within %s", e.cfg.GestureTimeout+g.TotalDuration()))
	case status, ok := <-statusCh:
		if !ok {
			return stepErr(schemas.CodeGestureCancelled, errGestureCancelled)
		}
		if status.State != schemas.GestureCompleted {
			err := errGestureCancelled
			if status.Err != nil {
				err = fmt.Errorf("%w: %w", errGestureCancelled, status.Err)
			}
			return stepErr(schemas.CodeGestureCancelled, err)
		}
	}

	e.transition(StateExecuting, idx)
	return sleep(ctx, e.cfg.SettleDelay)
}

type elementStep struct {
	action schemas.ElementAction
	args   map[string]string
}

func (e *Executor) executeInput(ctx context.Context, action schemas.Action, _ int) error {
	in := action.(schemas.Input)
	if in.At.X < 0 || in.At.Y < 0 {
		return stepErr(schemas.CodeInvalidParameters, fmt.Errorf("negative coordinate (%d,%d)", in.At.X, in.At.Y))
	}

	root, err := e.platform.CaptureTree(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return stepErr(schemas.CodeExecutionFailure, fmt.Errorf("failed to read element tree: %w", err))
	}

	target := FindEditableTarget(root, in.At)
	if target == nil {
		return stepErr(schemas.CodeElementNotFound,
			fmt.Errorf("no editable element contains (%d,%d)", in.At.X, in.At.Y))
	}

	steps := []elementStep{
		{schemas.ElementFocus, nil},
		{schemas.ElementSetText, map[string]string{schemas.ArgText: in.Text}},
	}
	if !target.MultiLine {
		steps = append(steps, elementStep{schemas.ElementSubmit, nil})
	}
	for _, s := range steps {
		if err := e.platform.PerformAction(ctx, target, s.action, s.args); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return stepErr(schemas.CodeExecutionFailure, fmt.Errorf("%s on %s failed: %w", s.action, target.ClassName, err))
		}
	}

	e.logger.Debug("Typed into element.",
		zap.String("class", target.ClassName),
		zap.Bool("submitted", !target.MultiLine))
	return sleep(ctx, e.cfg.SettleDelay)
}

func (e *Executor) executeWait(ctx context.Context, action schemas.Action, _ int) error {
	w := action.(schemas.Wait)
	if w.Duration < 0 {
		return stepErr(schemas.CodeInvalidParameters, fmt.Errorf("negative wait duration %s", w.Duration))
	}
	return sleep(ctx, w.Duration)
}

func (e *Executor) executeGlobalGesture(ctx context.Context, action schemas.Action, _ int) error {
	g := action.(schemas.GlobalGesture)
	if !g.Name.Valid() {
		return stepErr(schemas.CodeInvalidParameters, fmt.Errorf("unsupported global gesture %q", g.Name))
	}
	if err := e.platform.InvokeGlobalAction(ctx, g.Name); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return stepErr(schemas.CodeExecutionFailure, err)
	}
	return sleep(ctx, e.cfg.SettleDelay)
}

func (e *Executor) executeOpenApplication(ctx context.Context, action schemas.Action, _ int) error {
	app := action.(schemas.OpenApplication)
	if app.Package == "" {
		return stepErr(schemas.CodeInvalidParameters, errors.New("application_name is empty"))
	}
	if err := e.platform.LaunchApplication(ctx, app.Package); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return stepErr(schemas.CodeExecutionFailure, fmt.Errorf("failed to launch %s: %w", app.Package, err))
	}
	return sleep(ctx, e.cfg.AppLaunchDelay)
}

// FindEditableTarget returns the smallest editable element whose bounds
// contain p. Equal areas resolve to the earlier element in document order.
func FindEditableTarget(root *schemas.UIElement, p schemas.Point) *schemas.UIElement {
	var best *schemas.UIElement
	seen := make(map[*schemas.UIElement]struct{})

	var walk func(el *schemas.UIElement)
	walk = func(el *schemas.UIElement) {
		if el == nil {
			return
		}
		if _, dup := seen[el]; dup {
			return
		}
		seen[el] = struct{}{}

		if el.Editable && el.Bounds.Contains(p) {
			if best == nil || el.Bounds.Area() < best.Bounds.Area() {
				best = el
			}
		}
		for _, c := range el.Children {
			walk(c)
		}
	}
	walk(root)
	return best
}
