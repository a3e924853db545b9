package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Validate checks configuration for startup-fatal problems. A missing log
// root or an uncreatable index directory is unrecoverable (spec exit codes).
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	info, err := os.Stat(cfg.Logs.Root)
	if err != nil {
		return fmt.Errorf("log root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("log root is not a directory: %s", cfg.Logs.Root)
	}

	if cfg.Index.Path == "" {
		return fmt.Errorf("index path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Index.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	if cfg.Indexer.PollIntervalMS <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if cfg.Indexer.ReconcileIntervalMS <= 0 {
		return fmt.Errorf("reconcile interval must be positive")
	}
	if cfg.Idle.ThresholdSecs <= 0 || cfg.Idle.CooldownSecs <= 0 {
		return fmt.Errorf("idle thresholds must be positive")
	}
	if cfg.Notify.GlobalHourlyCap <= 0 {
		return fmt.Errorf("notification hourly cap must be positive")
	}
	if cfg.Mux.Command == "" || cfg.Claude.Command == "" {
		return fmt.Errorf("mux and claude commands must not be empty")
	}
	if cfg.Mux.SessionPrefix == "" {
		return fmt.Errorf("mux session prefix must not be empty")
	}

	return nil
}
