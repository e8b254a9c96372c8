package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/jxucoder/telerelay/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect telerelay configuration",
	Long: `Inspect telerelay configuration.

Settings are read from a TOML file (telerelay.toml or --config) and can be
overridden by environment variables.

  telerelay config show     Show effective configuration
  telerelay config path     Print config file path`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	Long:  "Print the configuration after env overrides and defaults, as TOML. Secrets are masked.",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), configFilePath())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// configFilePath returns the absolute path of the config file in use.
func configFilePath() string {
	path := configPath
	if path == "" {
		path = config.DefaultPath
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Telegram.Token = maskSecret(cfg.Telegram.Token)

	out, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	w := cmd.OutOrStdout()
	source := "(not found, using env and defaults)"
	if _, err := os.Stat(configFilePath()); err == nil {
		source = ""
	}
	fmt.Fprintf(w, "# Config file: %s %s\n\n", configFilePath(), source)
	w.Write(out)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(w, "\n# invalid: %v\n", err)
	}
	return nil
}

func maskSecret(s string) string {
	if len(s) <= 12 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
