// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/uipilot/api/schemas"
	"github.com/xkilldash9x/uipilot/internal/agent"
	"github.com/xkilldash9x/uipilot/internal/config"
	"github.com/xkilldash9x/uipilot/internal/executor"
	"github.com/xkilldash9x/uipilot/internal/gesture"
	"github.com/xkilldash9x/uipilot/internal/llmclient"
	"github.com/xkilldash9x/uipilot/internal/observability"
	"github.com/xkilldash9x/uipilot/internal/platform/adb"
	"github.com/xkilldash9x/uipilot/internal/platform/browser"
	"github.com/xkilldash9x/uipilot/internal/snapshot"
	"github.com/xkilldash9x/uipilot/internal/store"
)

const (
	platformADB     = "adb"
	platformBrowser = "browser"
)

// platformFactory opens the configured platform and returns its cleanup.
type platformFactory func(ctx context.Context, cfg config.PlatformConfig, logger *zap.Logger) (schemas.Platform, func(), error)

// providerFactory builds the plan provider.
type providerFactory func(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.PlanProvider, error)

// journalFactory opens the run journal and returns its cleanup.
type journalFactory func(ctx context.Context, cfg config.JournalConfig, logger *zap.Logger) (schemas.CycleRecorder, func(), error)

// runDeps holds the factories commands use to reach the outside world.
// Tests replace them with fakes.
type runDeps struct {
	newPlatform platformFactory
	newProvider providerFactory
	openJournal journalFactory
}

func defaultRunDeps() runDeps {
	return runDeps{
		newPlatform: openPlatform,
		newProvider: llmclient.NewProvider,
		openJournal: store.Open,
	}
}

func openPlatform(ctx context.Context, cfg config.PlatformConfig, logger *zap.Logger) (schemas.Platform, func(), error) {
	switch cfg.Type {
	case platformADB:
		return adb.New(cfg.ADB, logger), func() {}, nil
	case platformBrowser:
		session, err := browser.NewSession(ctx, cfg.Browser, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start browser session: %w", err)
		}
		return session, session.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported platform type %q (expected %s or %s)", cfg.Type, platformADB, platformBrowser)
	}
}

// platformFlags are shared by every command that talks to a platform.
type platformFlags struct {
	platform string
	serial   string
	url      string
}

func (f *platformFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.platform, "platform", "", "Platform to drive: adb or browser (overrides platform.type)")
	cmd.Flags().StringVar(&f.serial, "serial", "", "ADB device serial (overrides platform.adb.serial)")
	cmd.Flags().StringVar(&f.url, "url", "", "Browser start URL (overrides platform.browser.start_url)")
}

// apply copies explicitly set flags onto the configuration.
func (f *platformFlags) apply(cmd *cobra.Command, cfg config.Interface) {
	if cmd.Flags().Changed("platform") {
		cfg.SetPlatformType(f.platform)
	}
	if cmd.Flags().Changed("serial") {
		cfg.SetADBSerial(f.serial)
	}
	if cmd.Flags().Changed("url") {
		cfg.SetBrowserStartURL(f.url)
	}
}

func newRunCmd(deps runDeps) *cobra.Command {
	var (
		pf           platformFlags
		systemPrompt string
		maxFailures  int
	)

	cmd := &cobra.Command{
		Use:   "run [command...]",
		Short: "Carry out a natural language command on the configured platform",
		Long: `Repeatedly captures the screen, asks the plan provider for the next actions and
executes them until the provider reports the command is done, the retry budget
is exhausted or the process is interrupted.`,
		Example: `  uipilot run --platform adb open the settings app and enable dark mode
  uipilot run --platform browser --url https://example.com search for pricing`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				logger.Error("Failed to get config from context", zap.Error(err))
				return err
			}

			pf.apply(cmd, cfg)
			if cmd.Flags().Changed("system-prompt") {
				cfg.SetSystemPromptFile(systemPrompt)
			}
			if cmd.Flags().Changed("max-failures") {
				if maxFailures < 0 {
					return fmt.Errorf("--max-failures must not be negative")
				}
				cfg.SetMaxConsecutiveFailures(maxFailures)
			}

			command := strings.Join(args, " ")
			return runAutomation(ctx, logger, cfg, command, deps, cmd.OutOrStdout())
		},
	}

	pf.register(cmd)
	cmd.Flags().StringVar(&systemPrompt, "system-prompt", "", "File with system instructions replacing the built-in ones")
	cmd.Flags().IntVar(&maxFailures, "max-failures", 0, "Consecutive failed cycles before giving up (0 retries forever)")
	return cmd
}

// runAutomation wires the components together and blocks until the run ends.
func runAutomation(
	ctx context.Context,
	logger *zap.Logger,
	cfg config.Interface,
	command string,
	deps runDeps,
	out io.Writer,
) error {
	agentCfg := cfg.Agent()

	instructions, err := agent.LoadSystemInstructions(agentCfg.SystemPromptFile)
	if err != nil {
		return err
	}

	provider, err := deps.newProvider(ctx, agentCfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize plan provider: %w", err)
	}

	recorder, closeJournal, err := deps.openJournal(ctx, cfg.Journal(), logger)
	if err != nil {
		return fmt.Errorf("failed to open run journal: %w", err)
	}
	defer closeJournal()

	platform, closePlatform, err := deps.newPlatform(ctx, cfg.Platform(), logger)
	if err != nil {
		return err
	}
	defer closePlatform()

	snapshotter, err := snapshot.New(platform, cfg.Snapshot(), logger)
	if err != nil {
		return fmt.Errorf("failed to create snapshotter: %w", err)
	}
	exec := executor.New(platform, gesture.NewBuilder(cfg.Gesture()), cfg.Executor(), logger)

	notify := agent.NotifierFunc(func(msg string) {
		fmt.Fprintln(out, msg)
	})
	orch := agent.New(snapshotter, provider, exec, agentCfg, logger,
		agent.WithRecorder(recorder),
		agent.WithNotifier(notify),
	)

	logger.Info("Starting run",
		zap.String("command", command),
		zap.String("platform", cfg.Platform().Type),
		zap.String("provider", string(agentCfg.LLM.Provider)),
	)

	if err := orch.Start(ctx, command, instructions); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	done := orch.Done()
	g.Go(func() error {
		select {
		case <-gctx.Done():
			orch.Stop()
		case <-done:
		}
		return nil
	})

	var result agent.RunResult
	g.Go(func() error {
		result = orch.Wait()
		return runError(ctx, result)
	})

	err = g.Wait()
	fmt.Fprintf(out, "Run %s finished: %s after %d cycle(s)\n", result.RunID, result.Reason, result.Cycles)
	return err
}

// runError maps a finished run to the command's exit error.
func runError(ctx context.Context, result agent.RunResult) error {
	switch result.Reason {
	case agent.ReasonCompleted:
		return nil
	case agent.ReasonStopped:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.New("run was stopped before completion")
	case agent.ReasonScreenUnavailable:
		return fmt.Errorf("screen could not be captured: %w", result.Err)
	case agent.ReasonRetryBudgetExhausted:
		return fmt.Errorf("gave up after repeated failures: %w", result.Err)
	default:
		return fmt.Errorf("run ended unexpectedly (%s): %w", result.Reason, result.Err)
	}
}
