// File: cmd/snapshot.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uipilot/internal/config"
	"github.com/xkilldash9x/uipilot/internal/observability"
	"github.com/xkilldash9x/uipilot/internal/snapshot"
)

func newSnapshotCmd(deps runDeps) *cobra.Command {
	var pf platformFlags

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture the current screen and print it as the plan provider sees it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				logger.Error("Failed to get config from context", zap.Error(err))
				return err
			}
			pf.apply(cmd, cfg)
			return runSnapshot(ctx, logger, cfg, deps, cmd.OutOrStdout())
		},
	}
	pf.register(cmd)
	return cmd
}

func runSnapshot(ctx context.Context, logger *zap.Logger, cfg config.Interface, deps runDeps, out io.Writer) error {
	platform, closePlatform, err := deps.newPlatform(ctx, cfg.Platform(), logger)
	if err != nil {
		return err
	}
	defer closePlatform()

	snapshotter, err := snapshot.New(platform, cfg.Snapshot(), logger)
	if err != nil {
		return fmt.Errorf("failed to create snapshotter: %w", err)
	}
	snap, err := snapshotter.Capture(ctx)
	if err != nil {
		return fmt.Errorf("failed to capture screen: %w", err)
	}

	logger.Info("Captured screen",
		zap.Int("elements", snap.ElementCount),
		zap.String("fingerprint", snap.Fingerprint))
	_, err = fmt.Fprintln(out, snap.Serialized)
	return err
}
