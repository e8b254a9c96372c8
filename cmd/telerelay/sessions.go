package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jxucoder/telerelay/internal/config"
	"github.com/jxucoder/telerelay/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage relay sessions",
	Long: `Manage the token-to-chat bindings in the session database.

  telerelay sessions list               List connected chats
  telerelay sessions revoke <chat-id>   Revoke a chat's token`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected chats",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsRevokeCmd = &cobra.Command{
	Use:   "revoke <chat-id>",
	Short: "Revoke a chat's token",
	Long:  "Delete the session for a chat. The chat can reconnect with /start.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsRevoke,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsRevokeCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func openStore() (*session.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return session.NewStore(cfg.Storage.Path, cfg.Storage.MaxConns)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.ListSessions(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	w := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHAT ID\tCREATED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%d\t%s\n", s.ChatID, s.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func runSessionsRevoke(cmd *cobra.Command, args []string) error {
	chatID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q", args[0])
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.FindTokenByChat(cmd.Context(), chatID); err != nil {
		return fmt.Errorf("chat %d: %w", chatID, err)
	}
	if err := store.DeleteSession(cmd.Context(), chatID); err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Revoked token for chat %d\n", chatID)
	return nil
}
