// Package config handles configuration management for claude-remote.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application. It is read once at
// startup; runtime reload is a non-goal.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logs    LogsConfig    `mapstructure:"logs"`
	Index   IndexConfig   `mapstructure:"index"`
	Indexer IndexerConfig `mapstructure:"indexer"`
	Idle    IdleConfig    `mapstructure:"idle"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Mux     MuxConfig     `mapstructure:"mux"`
	Claude  ClaudeConfig  `mapstructure:"claude"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogsConfig locates the session log root.
type LogsConfig struct {
	Root string `mapstructure:"root"`
}

// IndexConfig locates the index database.
type IndexConfig struct {
	Path string `mapstructure:"path"`
}

// IndexerConfig holds the poll-based ingest timings.
type IndexerConfig struct {
	PollIntervalMS      int  `mapstructure:"poll_interval_ms"`
	ReconcileIntervalMS int  `mapstructure:"reconcile_interval_ms"`
	NotifyFastPath      bool `mapstructure:"notify_fast_path"`
}

// IdleConfig holds the idle detector thresholds.
type IdleConfig struct {
	ScanIntervalSecs int `mapstructure:"scan_interval_secs"`
	ThresholdSecs    int `mapstructure:"threshold_secs"`
	CooldownSecs     int `mapstructure:"cooldown_secs"`
}

// NotifyConfig holds notification dispatcher limits.
type NotifyConfig struct {
	GlobalHourlyCap     int `mapstructure:"global_hourly_cap"`
	CooldownSecs        int `mapstructure:"cooldown_secs"`
	DeliveryTimeoutSecs int `mapstructure:"delivery_timeout_secs"`
}

// MuxConfig holds the terminal multiplexer settings.
type MuxConfig struct {
	Command       string `mapstructure:"command"`
	SessionPrefix string `mapstructure:"session_prefix"`
}

// ClaudeConfig holds the assistant binary settings.
type ClaudeConfig struct {
	Command string `mapstructure:"command"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from files and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.claude-remote")
	}

	v.SetEnvPrefix("CLAUDE_REMOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := postProcess(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 7860)

	v.SetDefault("logs.root", "")
	v.SetDefault("index.path", "")

	v.SetDefault("indexer.poll_interval_ms", 2000)
	v.SetDefault("indexer.reconcile_interval_ms", 60000)
	v.SetDefault("indexer.notify_fast_path", true)

	v.SetDefault("idle.scan_interval_secs", 15)
	v.SetDefault("idle.threshold_secs", 30)
	v.SetDefault("idle.cooldown_secs", 300)

	v.SetDefault("notify.global_hourly_cap", 10)
	v.SetDefault("notify.cooldown_secs", 300)
	v.SetDefault("notify.delivery_timeout_secs", 10)

	v.SetDefault("mux.command", "tmux")
	v.SetDefault("mux.session_prefix", "claude-remote-")

	v.SetDefault("claude.command", "claude")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// postProcess applies path expansion and fills derived defaults.
func postProcess(cfg *Config) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to resolve home directory: %w", err)
	}

	if cfg.Logs.Root == "" {
		cfg.Logs.Root = filepath.Join(home, ".claude", "projects")
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = filepath.Join(home, ".claude-remote", "index.db")
	}

	cfg.Logs.Root = expandHome(cfg.Logs.Root, home)
	cfg.Index.Path = expandHome(cfg.Index.Path, home)

	return nil
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// PollInterval returns the ingest poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Indexer.PollIntervalMS) * time.Millisecond
}

// ReconcileInterval returns the reconciliation interval as a duration.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Indexer.ReconcileIntervalMS) * time.Millisecond
}

// IdleScanInterval returns the idle detector cadence as a duration.
func (c *Config) IdleScanInterval() time.Duration {
	return time.Duration(c.Idle.ScanIntervalSecs) * time.Second
}

// IdleThreshold returns the idle threshold as a duration.
func (c *Config) IdleThreshold() time.Duration {
	return time.Duration(c.Idle.ThresholdSecs) * time.Second
}

// IdleCooldown returns the idle cooldown as a duration.
func (c *Config) IdleCooldown() time.Duration {
	return time.Duration(c.Idle.CooldownSecs) * time.Second
}

// NotifyCooldown returns the per-session notification cooldown.
func (c *Config) NotifyCooldown() time.Duration {
	return time.Duration(c.Notify.CooldownSecs) * time.Second
}

// DeliveryTimeout returns the push delivery timeout.
func (c *Config) DeliveryTimeout() time.Duration {
	return time.Duration(c.Notify.DeliveryTimeoutSecs) * time.Second
}

// ListenAddr returns the host:port the HTTP server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
