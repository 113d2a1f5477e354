package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncForce bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rebuild the FAQ index from its markdown source",
	Long: `Chunks and embeds the configured sync.source and persists the snapshot so
later runs can warm start. An unchanged source is skipped unless --force
is given.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVarP(&syncForce, "force", "f", false, "rebuild even when the source is unchanged")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	app, err := newApplication(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx := cmd.Context()
	// Warm start so an unchanged source is recognised as such.
	if _, err := app.syncer.WarmStart(ctx); err != nil {
		logger.Warn("warm start failed", zap.Error(err))
	}

	cmd.Printf("Synchronising %s...\n", app.syncer.Source())
	stats, err := app.syncer.Sync(ctx, syncForce)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	if stats.Skipped {
		cmd.Printf("Skipped: %s (generation %s)\n", stats.Reason, stats.Generation)
		return nil
	}
	cmd.Printf("Indexed %d chunks in %d batches (generation %s, %s)\n",
		stats.Chunks, stats.Batches, stats.Generation, stats.Duration.Round(time.Millisecond))
	if stats.Pruned > 0 {
		cmd.Printf("Pruned %d old snapshots\n", stats.Pruned)
	}
	return nil
}
