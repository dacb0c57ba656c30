package schemas

import (
	"context"
	"time"
)

// CycleRecord describes one finished orchestrator cycle.
type CycleRecord struct {
	RunID         string
	Cycle         int
	Command       string
	Fingerprint   string
	PlanText      string
	PlanSummary   string
	Success       bool
	MacroComplete bool
	ErrorCode     ErrorCode
	Feedback      string
	StartedAt     time.Time
	Duration      time.Duration
}

// CycleRecorder persists cycle records.
type CycleRecorder interface {
	RecordCycle(ctx context.Context, rec CycleRecord) error
}
