// internal/agent/orchestrator.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uipilot/api/schemas"
	"github.com/xkilldash9x/uipilot/internal/config"
)

// ErrAlreadyRunning is returned by Start while a run is active.
var ErrAlreadyRunning = errors.New("orchestrator is already running")

// Snapshotter captures the current screen.
type Snapshotter interface {
	Capture(ctx context.Context) (*schemas.ScreenSnapshot, error)
}

// PlanExecutor runs a parsed plan to completion.
type PlanExecutor interface {
	Run(ctx context.Context, plan *schemas.ActionPlan) (schemas.ExecutionOutcome, error)
}

// Notifier surfaces messages to the person operating the run.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

// StopReason explains why a run ended.
type StopReason string

const (
	ReasonCompleted            StopReason = "completed"
	ReasonStopped              StopReason = "stopped"
	ReasonScreenUnavailable    StopReason = "screen_unavailable"
	ReasonRetryBudgetExhausted StopReason = "retry_budget_exhausted"
)

// RunResult summarizes a finished run.
type RunResult struct {
	RunID  string
	Reason StopReason
	Cycles int
	Err    error
}

type cycleKind int

const (
	cycleSucceeded cycleKind = iota
	cycleFailed
	cycleCompleted
	cycleFatal
	cycleAborted
)

type cycleResult struct {
	kind cycleKind
	err  error
}

// run is the state of a single Start..stop span.
type run struct {
	id           string
	command      string
	instructions string
	cancel       context.CancelFunc
	done         chan struct{}
	result       RunResult
}

// Orchestrator drives the observe, plan, act loop. A single goroutine per run
// owns scheduling; History and Repetition may be read from any goroutine.
type Orchestrator struct {
	snapshotter Snapshotter
	provider    schemas.PlanProvider
	executor    PlanExecutor
	recorder    schemas.CycleRecorder
	notifier    Notifier
	cfg         config.AgentConfig
	policy      RetryPolicy
	logger      *zap.Logger

	history    *History
	repetition *RepetitionContext

	mu      sync.Mutex
	current *run
	last    *run
}

// Option configures optional collaborators.
type Option func(*Orchestrator)

// WithRecorder journals every cycle.
func WithRecorder(r schemas.CycleRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithNotifier sets where user-visible notices go.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// New creates an Orchestrator.
func New(
	snapshotter Snapshotter,
	provider schemas.PlanProvider,
	executor PlanExecutor,
	cfg config.AgentConfig,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		snapshotter: snapshotter,
		provider:    provider,
		executor:    executor,
		cfg:         cfg,
		policy:      NewRetryPolicy(cfg),
		logger:      logger.Named("orchestrator"),
		history:     NewHistory(cfg.HistoryLimit),
		repetition:  NewRepetitionContext(cfg.RepetitionLimit),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.notifier == nil {
		o.notifier = NotifierFunc(func(msg string) { o.logger.Warn(msg) })
	}
	return o
}

// Start clears history and begins cycling on command until a done action,
// Stop, a fatal capture failure or ctx cancellation.
func (o *Orchestrator) Start(ctx context.Context, command, systemInstructions string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		id:           uuid.NewString(),
		command:      command,
		instructions: systemInstructions,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	r.result.RunID = r.id
	o.history.Clear()
	o.repetition.Clear()
	o.current, o.last = r, r

	o.logger.Info("Starting run.", zap.String("run_id", r.id), zap.String("command", command))
	go o.loop(runCtx, r)
	return nil
}

// Stop ends the active run. Work still in flight is cancelled and its
// results are discarded. Stop is a no-op when nothing runs.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	r := o.current
	o.mu.Unlock()
	if r == nil {
		return
	}
	o.finish(r, ReasonStopped, nil)
}

// Done is closed once the most recently started run has fully ended.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return o.last.done
}

// Wait blocks until the most recent run ends and returns its result.
func (o *Orchestrator) Wait() RunResult {
	<-o.Done()
	return o.Result()
}

// Result of the most recent run. Reason is empty while it is still going.
func (o *Orchestrator) Result() RunResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return RunResult{}
	}
	return o.last.result
}

// Running reports whether a run is active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current != nil
}

// History returns a copy of the conversation history.
func (o *Orchestrator) History() []schemas.ConversationTurn { return o.history.Snapshot() }

// Repetition returns a copy of the repetition entries.
func (o *Orchestrator) Repetition() []RepetitionEntry { return o.repetition.Entries() }

// finish ends r once. Later calls for the same run are ignored.
func (o *Orchestrator) finish(r *run, reason StopReason, err error) {
	o.mu.Lock()
	if o.current != r {
		o.mu.Unlock()
		return
	}
	o.current = nil
	r.result.Reason = reason
	r.result.Err = err
	o.history.Clear()
	o.mu.Unlock()

	r.cancel()
	o.logger.Info("Run finished.",
		zap.String("run_id", r.id),
		zap.String("reason", string(reason)),
		zap.Int("cycles", r.result.Cycles),
		zap.Error(err))
}

// active runs fn under the lock if r is still the current run.
func (o *Orchestrator) active(r *run, fn func()) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != r {
		return false
	}
	if fn != nil {
		fn()
	}
	return true
}

func (o *Orchestrator) loop(ctx context.Context, r *run) {
	defer close(r.done)
	defer r.cancel()

	failures := 0
	for cycle := 1; ; cycle++ {
		if !o.active(r, func() { r.result.Cycles = cycle }) {
			return
		}

		res := o.runCycle(ctx, r, cycle)

		var delay time.Duration
		switch res.kind {
		case cycleCompleted:
			o.finish(r, ReasonCompleted, nil)
			return
		case cycleFatal:
			o.notifier.Notify(fmt.Sprintf("Automation stopped: the screen could not be captured (%v).", res.err))
			o.finish(r, ReasonScreenUnavailable, res.err)
			return
		case cycleAborted:
			o.finish(r, ReasonStopped, res.err)
			return
		case cycleFailed:
			failures++
			if o.policy.Exhausted(failures) {
				o.notifier.Notify(fmt.Sprintf("Automation stopped after %d consecutive failed attempts.", failures))
				o.finish(r, ReasonRetryBudgetExhausted, res.err)
				return
			}
			delay = o.policy.Delay(failures)
		case cycleSucceeded:
			failures = 0
			delay = o.cfg.SuccessDelay
		}

		o.logger.Debug("Scheduling next cycle.", zap.Int("cycle", cycle+1), zap.Duration("delay", delay))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			o.finish(r, ReasonStopped, ctx.Err())
			return
		case <-timer.C:
		}
	}
}

func (o *Orchestrator) runCycle(ctx context.Context, r *run, cycle int) cycleResult {
	started := time.Now()
	logger := o.logger.With(zap.String("run_id", r.id), zap.Int("cycle", cycle))

	snap, err := o.snapshotter.Capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return cycleResult{kind: cycleAborted, err: ctx.Err()}
		}
		logger.Error("Screen capture failed.", zap.Error(err))
		return cycleResult{kind: cycleFatal, err: err}
	}

	req := schemas.PlanRequest{
		SystemInstructions: r.instructions,
		History:            o.history.Snapshot(),
		Snapshot:           snap.Serialized,
		Command:            r.command,
		RepetitionContext:  o.repetition.String(),
	}

	rec := schemas.CycleRecord{
		RunID:       r.id,
		Cycle:       cycle,
		Command:     r.command,
		Fingerprint: snap.Fingerprint,
		StartedAt:   started,
	}

	text, err := o.provider.Plan(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return cycleResult{kind: cycleAborted, err: ctx.Err()}
		}
		logger.Warn("Plan provider failed.", zap.Error(err))
		return o.failCycle(ctx, r, rec, fmt.Sprintf("The planning request failed: %v", err), err)
	}
	rec.PlanText = text

	plan, err := ParsePlan(text)
	if err != nil {
		logger.Warn("Plan response could not be parsed.", zap.Error(err), zap.String("response", text))
		return o.failCycle(ctx, r, rec, fmt.Sprintf("Your last response could not be parsed as a plan: %v. Reply with one JSON object.", err), err)
	}
	rec.PlanSummary = plan.Summary()

	committed := o.active(r, func() {
		o.history.Append(
			schemas.ConversationTurn{Role: schemas.RoleUser, Content: req.UserMessage()},
			schemas.ConversationTurn{Role: schemas.RoleAssistant, Content: text},
		)
		o.repetition.Record(snap.Fingerprint, rec.PlanSummary)
	})
	if !committed {
		return cycleResult{kind: cycleAborted}
	}
	logger.Info("Executing plan.", zap.Int("actions", plan.Len()), zap.String("plan", rec.PlanSummary))

	outcome, err := o.executor.Run(ctx, plan)
	if err != nil {
		return o.failCycle(ctx, r, rec, fmt.Sprintf("The plan could not be executed: %v", err), err)
	}
	if ctx.Err() != nil || !o.active(r, nil) {
		logger.Debug("Discarding execution outcome of a stopped run.")
		return cycleResult{kind: cycleAborted, err: ctx.Err()}
	}

	rec.Success = outcome.Success
	rec.MacroComplete = outcome.MacroComplete
	rec.ErrorCode = outcome.ErrorCode
	rec.Feedback = outcome.Feedback

	if outcome.MacroComplete {
		o.record(ctx, rec)
		return cycleResult{kind: cycleCompleted}
	}
	if !outcome.Success {
		logger.Warn("Plan execution failed.", zap.String("feedback", outcome.Feedback))
		return o.failCycle(ctx, r, rec, outcome.Feedback, errors.New(outcome.Feedback))
	}
	o.record(ctx, rec)
	return cycleResult{kind: cycleSucceeded}
}

// failCycle appends an execution_feedback turn and journals the failure.
func (o *Orchestrator) failCycle(ctx context.Context, r *run, rec schemas.CycleRecord, feedback string, err error) cycleResult {
	if !o.active(r, func() {
		o.history.Append(schemas.ConversationTurn{Role: schemas.RoleExecutionFeedback, Content: feedback})
	}) {
		return cycleResult{kind: cycleAborted}
	}
	rec.Success = false
	rec.Feedback = feedback
	o.record(ctx, rec)
	return cycleResult{kind: cycleFailed, err: err}
}

func (o *Orchestrator) record(ctx context.Context, rec schemas.CycleRecord) {
	if o.recorder == nil {
		return
	}
	rec.Duration = time.Since(rec.StartedAt)
	if err := o.recorder.RecordCycle(ctx, rec); err != nil {
		o.logger.Warn("Failed to journal cycle.", zap.Int("cycle", rec.Cycle), zap.Error(err))
	}
}
