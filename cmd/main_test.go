// File: cmd/main_test.go
package cmd

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/uipilot/api/schemas"
	"github.com/xkilldash9x/uipilot/internal/config"
	"github.com/xkilldash9x/uipilot/internal/mocks"
	"github.com/xkilldash9x/uipilot/internal/observability"
)

// TestMain sets up the global logger once so PersistentPreRunE does not
// replace it, and verifies no run goroutines leak.
func TestMain(m *testing.M) {
	logConfig := config.NewDefaultConfig().Logger()
	logConfig.Level = "debug"
	logConfig.ServiceName = "test-suite"
	observability.Initialize(logConfig, zapcore.Lock(os.Stderr))

	goleak.VerifyTestMain(m)
}

const (
	touchPlan = `{"actions":[{"type":"touch","coordinates":{"x":540,"y":960}}]}`
	donePlan  = `{"actions":[{"type":"done"}]}`
)

// testConfig returns defaults with delays shortened for tests.
func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.AgentCfg.SuccessDelay = 0
	cfg.AgentCfg.FailureDelay = 0
	cfg.ExecutorCfg.SettleDelay = 0
	cfg.SnapshotCfg.LoadingTimeout = 0
	return cfg
}

func screenTree() *schemas.UIElement {
	return &schemas.UIElement{
		Ref:       "0",
		ClassName: "android.widget.FrameLayout",
		Bounds:    schemas.Rect{Right: 1080, Bottom: 1920},
		Visible:   true,
		Children: []*schemas.UIElement{{
			Ref:       "0.0",
			ClassName: "android.widget.Button",
			Text:      "OK",
			Bounds:    schemas.Rect{Left: 440, Top: 900, Right: 640, Bottom: 1020},
			Visible:   true,
			Clickable: true,
		}},
	}
}

// newScreenPlatform returns a platform showing screenTree whose gestures
// complete at once.
func newScreenPlatform() *mocks.MockPlatform {
	platform := new(mocks.MockPlatform)
	platform.On("CaptureTree", mock.Anything).Return(screenTree(), nil).Maybe()
	platform.On("DispatchGesture", mock.Anything, mock.Anything).Return(mocks.CompletedGesture(), nil).Maybe()
	return platform
}

// memoryJournal keeps cycle records in memory and can list them back.
type memoryJournal struct {
	mu      sync.Mutex
	records []schemas.CycleRecord
	listErr error
}

func (j *memoryJournal) RecordCycle(_ context.Context, rec schemas.CycleRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
	return nil
}

func (j *memoryJournal) Cycles(_ context.Context, runID string) ([]schemas.CycleRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.listErr != nil {
		return nil, j.listErr
	}
	var out []schemas.CycleRecord
	for _, rec := range j.records {
		if rec.RunID == runID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (j *memoryJournal) snapshot() []schemas.CycleRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]schemas.CycleRecord(nil), j.records...)
}

// fakeDeps wires fixed collaborators and records what the factories saw.
type fakeDeps struct {
	platform schemas.Platform
	provider schemas.PlanProvider
	journal  schemas.CycleRecorder

	mu             sync.Mutex
	platformCfg    config.PlatformConfig
	llmCfg         config.LLMConfig
	platformClosed bool
	journalClosed  bool
	platformErr    error
	providerErr    error
	journalErr     error
}

func (f *fakeDeps) deps() runDeps {
	return runDeps{
		newPlatform: func(_ context.Context, cfg config.PlatformConfig, _ *zap.Logger) (schemas.Platform, func(), error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.platformCfg = cfg
			if f.platformErr != nil {
				return nil, nil, f.platformErr
			}
			return f.platform, func() {
				f.mu.Lock()
				f.platformClosed = true
				f.mu.Unlock()
			}, nil
		},
		newProvider: func(_ context.Context, cfg config.LLMConfig, _ *zap.Logger) (schemas.PlanProvider, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.llmCfg = cfg
			if f.providerErr != nil {
				return nil, f.providerErr
			}
			return f.provider, nil
		},
		openJournal: func(_ context.Context, _ config.JournalConfig, _ *zap.Logger) (schemas.CycleRecorder, func(), error) {
			if f.journalErr != nil {
				return nil, nil, f.journalErr
			}
			return f.journal, func() {
				f.mu.Lock()
				f.journalClosed = true
				f.mu.Unlock()
			}, nil
		},
	}
}
