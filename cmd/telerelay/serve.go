package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jxucoder/telerelay/internal/config"
	"github.com/jxucoder/telerelay/internal/logging"
	"github.com/jxucoder/telerelay/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay server",
	Long: `Start the HTTP server and the Telegram update delivery loop.

Required settings: TELEGRAM_BOT_TOKEN and TELEGRAM_WEBHOOK (or the
[telegram] section of the config file).`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logging.Init(cfg.Logging.Level, cfg.Logging.Output)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	srv, err := server.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Start(ctx)
}
