package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cmericli/claude-remote/internal/config"
)

// configCmd shows the effective configuration after defaults, file, and
// environment are merged.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		printConfig(cfg)
		return nil
	},
}

func printConfig(cfg *config.Config) {
	fmt.Println("Current Configuration:")
	fmt.Println("----------------------")
	fmt.Printf("Listen:           %s\n", cfg.ListenAddr())
	fmt.Printf("Logs Root:        %s\n", cfg.Logs.Root)
	fmt.Printf("Index Path:       %s\n", cfg.Index.Path)
	fmt.Printf("Poll Interval:    %s\n", cfg.PollInterval())
	fmt.Printf("Idle Threshold:   %s\n", cfg.IdleThreshold())
	fmt.Printf("Mux Command:      %s\n", cfg.Mux.Command)
	fmt.Printf("Mux Prefix:       %s\n", cfg.Mux.SessionPrefix)
	fmt.Printf("Claude Command:   %s\n", cfg.Claude.Command)
	fmt.Printf("Log Level:        %s\n", cfg.Logging.Level)
	fmt.Printf("Log Format:       %s\n", cfg.Logging.Format)
}
