package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jxucoder/telerelay/internal/session"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "short", want: "*****"},
		{in: "123456:ABCDEFGHIJKLMN", want: "1234*************KLMN"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.in); got != tt.want {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// runCLI executes the root command against a temporary database.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSessionsCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	t.Setenv("DB_FILE", dbPath)
	t.Chdir(t.TempDir())

	store, err := session.NewStore(dbPath, 1)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.CreateSession(context.Background(), []byte("token-one"), 1001); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	store.Close()

	out, err := runCLI(t, "sessions", "list")
	if err != nil {
		t.Fatalf("sessions list: %v", err)
	}
	if !strings.Contains(out, "1001") {
		t.Fatalf("list output missing chat: %q", out)
	}

	if _, err := runCLI(t, "sessions", "revoke", "1001"); err != nil {
		t.Fatalf("sessions revoke: %v", err)
	}
	if _, err := runCLI(t, "sessions", "revoke", "1001"); err == nil {
		t.Fatal("revoking a missing session should fail")
	}
	if _, err := runCLI(t, "sessions", "revoke", "not-a-number"); err == nil {
		t.Fatal("invalid chat id should fail")
	}

	out, err = runCLI(t, "sessions", "list")
	if err != nil {
		t.Fatalf("sessions list: %v", err)
	}
	if !strings.Contains(out, "No sessions.") {
		t.Fatalf("expected empty list, got %q", out)
	}
}
