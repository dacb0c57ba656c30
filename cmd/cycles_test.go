// File: cmd/cycles_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/uipilot/api/schemas"
	"github.com/xkilldash9x/uipilot/internal/config"
	"github.com/xkilldash9x/uipilot/internal/store"
)

func journalConfig() *config.Config {
	cfg := testConfig()
	cfg.JournalCfg.Enabled = true
	return cfg
}

func TestRunCycles_PrintsRecords(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 30, 5, 0, time.UTC)
	journal := &memoryJournal{records: []schemas.CycleRecord{
		{RunID: "run-1", Cycle: 1, PlanSummary: "touch(540,960)", Success: true, StartedAt: started, Duration: 1500 * time.Millisecond},
		{RunID: "other", Cycle: 1, PlanSummary: "wait(1s)"},
		{RunID: "run-1", Cycle: 2, PlanSummary: "done", Success: true, MacroComplete: true, StartedAt: started.Add(2 * time.Second)},
	}}
	f := &fakeDeps{journal: journal}
	var out bytes.Buffer

	require.NoError(t, runCycles(context.Background(), zaptest.NewLogger(t), journalConfig(), "run-1", f.deps(), &out))

	text := out.String()
	assert.Contains(t, text, "CYCLE")
	assert.Contains(t, text, "touch(540,960)")
	assert.Contains(t, text, "12:30:05.000")
	assert.Contains(t, text, "1.5s")
	assert.NotContains(t, text, "wait(1s)")
	assert.True(t, f.journalClosed)
}

func TestRunCycles_NoRecords(t *testing.T) {
	f := &fakeDeps{journal: &memoryJournal{}}
	var out bytes.Buffer

	require.NoError(t, runCycles(context.Background(), zaptest.NewLogger(t), journalConfig(), "missing", f.deps(), &out))
	assert.Equal(t, "No cycles recorded for run missing\n", out.String())
}

func TestRunCycles_Errors(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("journal disabled", func(t *testing.T) {
		err := runCycles(context.Background(), logger, testConfig(), "r", (&fakeDeps{}).deps(), &bytes.Buffer{})
		assert.ErrorIs(t, err, errJournalUnreadable)
	})

	t.Run("journal cannot list", func(t *testing.T) {
		f := &fakeDeps{journal: store.NopJournal{}}
		err := runCycles(context.Background(), logger, journalConfig(), "r", f.deps(), &bytes.Buffer{})
		assert.ErrorIs(t, err, errJournalUnreadable)
	})

	t.Run("open fails", func(t *testing.T) {
		f := &fakeDeps{journalErr: errors.New("connection refused")}
		err := runCycles(context.Background(), logger, journalConfig(), "r", f.deps(), &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open run journal")
	})

	t.Run("query fails", func(t *testing.T) {
		f := &fakeDeps{journal: &memoryJournal{listErr: errors.New("relation does not exist")}}
		err := runCycles(context.Background(), logger, journalConfig(), "r", f.deps(), &bytes.Buffer{})
		assert.EqualError(t, err, "relation does not exist")
	})
}
