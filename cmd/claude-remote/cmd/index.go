package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cmericli/claude-remote/internal/bus"
	"github.com/cmericli/claude-remote/internal/config"
	"github.com/cmericli/claude-remote/internal/domain/ports"
	"github.com/cmericli/claude-remote/internal/indexer"
	"github.com/cmericli/claude-remote/internal/store"
)

// indexCmd runs one full ingest pass and exits. Useful for seeding the
// index before first start or for cron-driven setups without the daemon.
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index all session logs once and exit",
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&logsRoot, "logs-root", "", "session log root (default: ~/.claude/projects)")
	indexCmd.Flags().StringVar(&indexPath, "index", "", "index database path (default: ~/.claude-remote/index.db)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logsRoot != "" {
		cfg.Logs.Root = logsRoot
	}
	if indexPath != "" {
		cfg.Index.Path = indexPath
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	setupLogging(cfg)

	st, err := store.Open(cfg.Index.Path)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer st.Close()

	eventBus := bus.New()
	defer eventBus.Close()

	idx, err := indexer.New(cfg.Logs.Root, st, eventBus, ports.SystemClock{}, indexer.Options{})
	if err != nil {
		return fmt.Errorf("failed to create indexer: %w", err)
	}

	if err := idx.RunOnce(context.Background()); err != nil {
		return err
	}

	stats, err := st.Stats(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("indexed %d sessions, %d messages (%d files tracked)\n",
		stats.TotalSessions, stats.TotalMessages, idx.TrackedFiles())
	return nil
}
