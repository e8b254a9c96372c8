// telerelay
//
// Relays text messages from web clients to Telegram chats. A chat gets a
// bearer token from the bot with /start; clients POST that token and a message
// to /send-message.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "telerelay",
	Short: "telerelay - web to Telegram message relay",
	Long: `telerelay relays text messages from web clients to Telegram chats.

  telerelay serve                       Start the relay server
  telerelay config show                 Show effective configuration
  telerelay config path                 Print config file path
  telerelay sessions list               List connected chats
  telerelay sessions revoke <chat-id>   Revoke a chat's token`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", envOr("TELERELAY_CONFIG", ""), "Path to TOML config file (default telerelay.toml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
