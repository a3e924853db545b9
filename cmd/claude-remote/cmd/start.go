package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cmericli/claude-remote/internal/app"
	"github.com/cmericli/claude-remote/internal/config"
)

var (
	logsRoot  string
	indexPath string
	port      int
)

// startCmd represents the start command.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the claude-remote daemon",
	Long: `Start the daemon: index session logs, watch for new activity,
and serve the dashboard API.

Example:
  claude-remote start
  claude-remote start --port 7860
  claude-remote start --logs-root ~/.claude/projects`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&logsRoot, "logs-root", "", "session log root (default: ~/.claude/projects)")
	startCmd.Flags().StringVar(&indexPath, "index", "", "index database path (default: ~/.claude-remote/index.db)")
	startCmd.Flags().IntVar(&port, "port", 0, "HTTP port (default: 7860)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override config with flags
	if logsRoot != "" {
		cfg.Logs.Root = logsRoot
	}
	if indexPath != "" {
		cfg.Index.Path = indexPath
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	// Re-validate after overrides
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogging(cfg)

	log.Info().
		Str("version", version).
		Str("logs_root", cfg.Logs.Root).
		Int("port", cfg.Server.Port).
		Msg("starting claude-remote")

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("application error: %w", err)
	}
	return nil
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Logging.Format == "console" || verbose {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}
