// File: cmd/cycles.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uipilot/api/schemas"
	"github.com/xkilldash9x/uipilot/internal/config"
	"github.com/xkilldash9x/uipilot/internal/observability"
)

// cycleLister is implemented by journals that can read records back.
type cycleLister interface {
	Cycles(ctx context.Context, runID string) ([]schemas.CycleRecord, error)
}

var errJournalUnreadable = errors.New("the run journal is disabled; set journal.enabled to read recorded cycles")

func newCyclesCmd(deps runDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "cycles <run-id>",
		Short: "List the journaled cycles of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				logger.Error("Failed to get config from context", zap.Error(err))
				return err
			}
			return runCycles(ctx, logger, cfg, args[0], deps, cmd.OutOrStdout())
		},
	}
}

func runCycles(ctx context.Context, logger *zap.Logger, cfg config.Interface, runID string, deps runDeps, out io.Writer) error {
	if !cfg.Journal().Enabled {
		return errJournalUnreadable
	}

	recorder, closeJournal, err := deps.openJournal(ctx, cfg.Journal(), logger)
	if err != nil {
		return fmt.Errorf("failed to open run journal: %w", err)
	}
	defer closeJournal()

	lister, ok := recorder.(cycleLister)
	if !ok {
		return errJournalUnreadable
	}
	records, err := lister.Cycles(ctx, runID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		_, err = fmt.Fprintf(out, "No cycles recorded for run %s\n", runID)
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CYCLE\tSTARTED\tDURATION\tSUCCESS\tDONE\tCODE\tPLAN")
	for _, rec := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%t\t%s\t%s\n",
			rec.Cycle,
			rec.StartedAt.Format("15:04:05.000"),
			rec.Duration,
			rec.Success,
			rec.MacroComplete,
			rec.ErrorCode,
			rec.PlanSummary,
		)
	}
	return w.Flush()
}
