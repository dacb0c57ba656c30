// internal/executor/executor.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/uipilot/api/schemas"
	"github.com/xkilldash9x/uipilot/internal/config"
	"github.com/xkilldash9x/uipilot/internal/gesture"
)

// ErrExecutorBusy is returned by Run while another plan is executing.
var ErrExecutorBusy = errors.New("executor is already running a plan")

var errGestureCancelled = errors.New("gesture was cancelled by the platform")

// State is the executor's position in its run state machine.
type State string

const (
	StateIdle               State = "idle"
	StateExecuting          State = "executing"
	StateAwaitingCompletion State = "awaiting_completion"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
	StateCancelled          State = "cancelled"
)

// IsTerminal reports whether a run has ended in this state.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// StepError is a classified failure of a single action.
type StepError struct {
	Code schemas.ErrorCode
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s: %v", e.Code, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

func stepErr(code schemas.ErrorCode, err error) error {
	return &StepError{Code: code, Err: err}
}

// actionHandler runs one action to completion, including any settle delay.
type actionHandler func(ctx context.Context, action schemas.Action, index int) error

// Executor runs ActionPlans strictly in order against a Platform. At most one
// plan runs at a time and at most one gesture is outstanding.
type Executor struct {
	platform schemas.Platform
	gestures *gesture.Builder
	cfg      config.ExecutorConfig
	logger   *zap.Logger
	handlers map[schemas.ActionKind]actionHandler

	running atomic.Bool

	mu    sync.RWMutex
	state State
	index int

	// last is the terminal state of the most recent run.
	last      State
	lastIndex int
}

// New creates an Executor.
func New(platform schemas.Platform, gestures *gesture.Builder, cfg config.ExecutorConfig, logger *zap.Logger) *Executor {
	e := &Executor{
		platform:  platform,
		gestures:  gestures,
		cfg:       cfg,
		logger:    logger.Named("executor"),
		handlers:  make(map[schemas.ActionKind]actionHandler),
		state:     StateIdle,
		index:     -1,
		last:      StateIdle,
		lastIndex: -1,
	}
	e.registerHandlers()
	return e
}

func (e *Executor) registerHandlers() {
	for _, kind := range []schemas.ActionKind{
		schemas.KindTouch,
		schemas.KindLongTouch,
		schemas.KindDoubleTap,
		schemas.KindSwipe,
		schemas.KindDragAndDrop,
		schemas.KindScroll,
	} {
		e.handlers[kind] = e.executeGesture
	}
	e.handlers[schemas.KindInput] = e.executeInput
	e.handlers[schemas.KindWait] = e.executeWait
	e.handlers[schemas.KindGlobalGesture] = e.executeGlobalGesture
	e.handlers[schemas.KindOpenApplication] = e.executeOpenApplication
}

// State returns the current state and the index of the action it refers to.
func (e *Executor) State() (State, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state, e.index
}

// LastRun returns the terminal state the most recent run ended in and the
// index it ended at. It reports StateIdle before the first run.
func (e *Executor) LastRun() (State, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last, e.lastIndex
}

func (e *Executor) transition(to State, index int) {
	e.mu.Lock()
	from := e.state
	e.state, e.index = to, index
	if to.IsTerminal() {
		e.last, e.lastIndex = to, index
	}
	e.mu.Unlock()
	e.logger.Debug("Executor state transition.",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("index", index))
}

// Run executes plan from its cursor to the end, a done action, or the first
// failure. Cancelling ctx ends the run in the Cancelled state. The only error
// returned is ErrExecutorBusy; everything else is reported in the outcome.
func (e *Executor) Run(ctx context.Context, plan *schemas.ActionPlan) (schemas.ExecutionOutcome, error) {
	if !e.running.CompareAndSwap(false, true) {
		return schemas.ExecutionOutcome{}, ErrExecutorBusy
	}
	defer func() {
		e.transition(StateIdle, -1)
		e.running.Store(false)
	}()

	outcome := schemas.ExecutionOutcome{FailedIndex: -1}
	e.logger.Debug("Running action plan.", zap.Int("actions", plan.Len()))

	for {
		action, idx, ok := plan.Next()
		if !ok {
			e.transition(StateCompleted, idx)
			outcome.Success = true
			return outcome, nil
		}
		if ctx.Err() != nil {
			return e.cancelled(outcome, idx), nil
		}

		e.transition(StateExecuting, idx)

		if action.Kind() == schemas.KindDone {
			outcome.Executed++
			outcome.Success = true
			outcome.MacroComplete = true
			e.transition(StateCompleted, idx)
			e.logger.Info("Done action reached; macro complete.", zap.Int("index", idx))
			return outcome, nil
		}

		if err := e.step(ctx, action, idx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return e.cancelled(outcome, idx), nil
			}
			return e.failed(outcome, action, idx, err), nil
		}
		outcome.Executed++
	}
}

func (e *Executor) step(ctx context.Context, action schemas.Action, idx int) error {
	if invalid, ok := action.(schemas.InvalidAction); ok {
		code := schemas.CodeInvalidParameters
		if errors.Is(invalid.Err, schemas.ErrUnknownActionType) {
			code = schemas.CodeUnknownAction
		}
		return stepErr(code, invalid.Err)
	}

	handler, ok := e.handlers[action.Kind()]
	if !ok {
		return stepErr(schemas.CodeUnknownAction, fmt.Errorf("%w: %q", schemas.ErrUnknownActionType, action.Kind()))
	}
	return handler(ctx, action, idx)
}

func (e *Executor) cancelled(outcome schemas.ExecutionOutcome, idx int) schemas.ExecutionOutcome {
	e.transition(StateCancelled, idx)
	outcome.Success = false
	outcome.ErrorCode = schemas.CodeCancelled
	outcome.FailedIndex = idx
	outcome.Feedback = fmt.Sprintf("Execution cancelled before action %d finished.", idx)
	return outcome
}

func (e *Executor) failed(outcome schemas.ExecutionOutcome, action schemas.Action, idx int, err error) schemas.ExecutionOutcome {
	e.transition(StateFailed, idx)

	code := schemas.CodeExecutionFailure
	var se *StepError
	if errors.As(err, &se) {
		code = se.Code
		err = se.Err
	}

	outcome.Success = false
	outcome.ErrorCode = code
	outcome.FailedIndex = idx
	outcome.Feedback = fmt.Sprintf("Action %d (%s) failed [%s]: %v", idx, action.Kind(), code, err)

	e.logger.Warn("Action failed.",
		zap.Int("index", idx),
		zap.String("action", string(action.Kind())),
		zap.String("error_code", string(code)),
		zap.Error(err))
	return outcome
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
