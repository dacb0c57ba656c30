// File: cmd/run_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/uipilot/api/schemas"
	"github.com/xkilldash9x/uipilot/internal/agent"
	"github.com/xkilldash9x/uipilot/internal/config"
	"github.com/xkilldash9x/uipilot/internal/llmclient"
	"github.com/xkilldash9x/uipilot/internal/mocks"
)

// blockingProvider parks in Plan until the request context ends.
type blockingProvider struct {
	started chan struct{}
}

func (p *blockingProvider) Plan(ctx context.Context, _ schemas.PlanRequest) (string, error) {
	select {
	case p.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRunAutomation_CompletesAndJournals(t *testing.T) {
	logger := zaptest.NewLogger(t)
	platform := newScreenPlatform()
	journal := &memoryJournal{}
	f := &fakeDeps{
		platform: platform,
		provider: llmclient.NewScriptedProvider([]string{touchPlan, donePlan}, logger),
		journal:  journal,
	}
	var out bytes.Buffer

	err := runAutomation(context.Background(), logger, testConfig(), "press ok", f.deps(), &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "finished: completed after 2 cycle(s)")
	records := journal.snapshot()
	require.Len(t, records, 2)
	assert.Equal(t, "press ok", records[0].Command)
	assert.True(t, records[0].Success)
	assert.True(t, records[1].MacroComplete)
	assert.Equal(t, records[0].RunID, records[1].RunID)

	platform.AssertCalled(t, "DispatchGesture", mock.Anything, mock.Anything)
	assert.True(t, f.platformClosed, "platform cleanup must run")
	assert.True(t, f.journalClosed, "journal cleanup must run")
}

func TestRunAutomation_CancellationStopsRun(t *testing.T) {
	logger := zaptest.NewLogger(t)
	provider := &blockingProvider{started: make(chan struct{}, 1)}
	f := &fakeDeps{platform: newScreenPlatform(), provider: provider, journal: &memoryJournal{}}
	var out bytes.Buffer

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- runAutomation(ctx, logger, testConfig(), "wait forever", f.deps(), &out)
	}()

	select {
	case <-provider.started:
	case <-time.After(5 * time.Second):
		t.Fatal("provider was never called")
	}
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
	assert.Contains(t, out.String(), "finished: stopped")
}

func TestRunAutomation_ScreenUnavailable(t *testing.T) {
	logger := zaptest.NewLogger(t)
	platform := new(mocks.MockPlatform)
	platform.On("CaptureTree", mock.Anything).Return(nil, nil)
	f := &fakeDeps{
		platform: platform,
		provider: llmclient.NewScriptedProvider([]string{donePlan}, logger),
		journal:  &memoryJournal{},
	}
	var out bytes.Buffer

	err := runAutomation(context.Background(), logger, testConfig(), "anything", f.deps(), &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrScreenUnavailable)
	assert.Contains(t, out.String(), "could not be captured")
}

func TestRunAutomation_RetryBudget(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	cfg.SetMaxConsecutiveFailures(2)
	f := &fakeDeps{
		platform: newScreenPlatform(),
		provider: llmclient.NewScriptedProvider([]string{"no plan here", "still nothing"}, logger),
		journal:  &memoryJournal{},
	}
	var out bytes.Buffer

	err := runAutomation(context.Background(), logger, cfg, "confuse it", f.deps(), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gave up after repeated failures")
	assert.Contains(t, out.String(), "2 consecutive failed attempts")
}

func TestRunAutomation_SetupFailures(t *testing.T) {
	logger := zaptest.NewLogger(t)
	boom := errors.New("boom")

	tests := []struct {
		name    string
		mutate  func(*fakeDeps, *config.Config)
		wantErr string
	}{
		{
			name:    "provider",
			mutate:  func(f *fakeDeps, _ *config.Config) { f.providerErr = boom },
			wantErr: "failed to initialize plan provider",
		},
		{
			name:    "journal",
			mutate:  func(f *fakeDeps, _ *config.Config) { f.journalErr = boom },
			wantErr: "failed to open run journal",
		},
		{
			name:    "platform",
			mutate:  func(f *fakeDeps, _ *config.Config) { f.platformErr = boom },
			wantErr: "boom",
		},
		{
			name: "system prompt",
			mutate: func(_ *fakeDeps, c *config.Config) {
				c.SetSystemPromptFile(filepath.Join(t.TempDir(), "missing.txt"))
			},
			wantErr: "failed to read system instructions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeDeps{
				platform: newScreenPlatform(),
				provider: llmclient.NewScriptedProvider([]string{donePlan}, logger),
				journal:  &memoryJournal{},
			}
			cfg := testConfig()
			tt.mutate(f, cfg)

			err := runAutomation(context.Background(), logger, cfg, "cmd", f.deps(), &bytes.Buffer{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunError(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	cause := errors.New("cause")

	assert.NoError(t, runError(context.Background(), agent.RunResult{Reason: agent.ReasonCompleted}))
	assert.ErrorIs(t, runError(cancelled, agent.RunResult{Reason: agent.ReasonStopped}), context.Canceled)
	assert.EqualError(t, runError(context.Background(), agent.RunResult{Reason: agent.ReasonStopped}), "run was stopped before completion")
	assert.ErrorIs(t, runError(context.Background(), agent.RunResult{Reason: agent.ReasonScreenUnavailable, Err: cause}), cause)
	assert.ErrorIs(t, runError(context.Background(), agent.RunResult{Reason: agent.ReasonRetryBudgetExhausted, Err: cause}), cause)
}

func TestRunCommand_AppliesFlagOverrides(t *testing.T) {
	logger := zaptest.NewLogger(t)
	promptFile := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(promptFile, []byte("Be brief."), 0o600))

	f := &fakeDeps{
		platform: newScreenPlatform(),
		provider: llmclient.NewScriptedProvider([]string{donePlan}, logger),
		journal:  &memoryJournal{},
	}
	cfg := testConfig()
	cmd := newRunCmd(f.deps())
	cmd.SetContext(context.WithValue(context.Background(), configKey, config.Interface(cfg)))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"--platform", "browser",
		"--url", "https://example.com",
		"--system-prompt", promptFile,
		"--max-failures", "4",
		"open", "the", "menu",
	})

	require.NoError(t, cmd.Execute())

	assert.Equal(t, "browser", f.platformCfg.Type)
	assert.Equal(t, "https://example.com", f.platformCfg.Browser.StartURL)
	assert.Equal(t, "", f.platformCfg.ADB.Serial, "unset flags must not override config")
	assert.Equal(t, promptFile, cfg.Agent().SystemPromptFile)
	assert.Equal(t, 4, cfg.Agent().Retry.MaxConsecutiveFailures)
	assert.Contains(t, out.String(), "finished: completed after 1 cycle(s)")
}

func TestRunCommand_Validation(t *testing.T) {
	f := &fakeDeps{}

	t.Run("requires a command", func(t *testing.T) {
		cmd := newRunCmd(f.deps())
		cmd.SetContext(context.WithValue(context.Background(), configKey, config.Interface(testConfig())))
		cmd.SetArgs([]string{})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		assert.Error(t, cmd.Execute())
	})

	t.Run("negative max failures", func(t *testing.T) {
		cmd := newRunCmd(f.deps())
		cmd.SetContext(context.WithValue(context.Background(), configKey, config.Interface(testConfig())))
		cmd.SetArgs([]string{"--max-failures", "-1", "go"})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must not be negative")
	})

	t.Run("missing config", func(t *testing.T) {
		cmd := newRunCmd(f.deps())
		cmd.SetContext(context.Background())
		cmd.SetArgs([]string{"go"})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration not found in context")
	})
}

func TestOpenPlatform_UnknownType(t *testing.T) {
	_, _, err := openPlatform(context.Background(), config.PlatformConfig{Type: "ios"}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported platform type "ios"`)
}
