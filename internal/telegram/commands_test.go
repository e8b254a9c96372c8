package telegram

import "testing"

func TestCommandSet_Parse(t *testing.T) {
	set := NewCommandSet(defaultCommands())

	tests := []struct {
		text     string
		wantName string
		wantArgs string
		wantOK   bool
	}{
		{text: "/start", wantName: CmdStart, wantOK: true},
		{text: "/start foo", wantName: CmdStart, wantArgs: "foo", wantOK: true},
		{text: "  /help  ", wantName: CmdHelp, wantOK: true},
		{text: "/show_token\textra  words ", wantName: CmdShowToken, wantArgs: "extra  words", wantOK: true},
		{text: "/update_token", wantName: CmdUpdateToken, wantOK: true},
		{text: "/stop", wantName: CmdStop, wantOK: true},
		{text: "/unknown"},
		{text: "/Start"},
		{text: "/start@other_bot"},
		{text: "start"},
		{text: "hello /start"},
		{text: ""},
		{text: "/"},
		{text: "/ "},
		{text: "/\t 1"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cmd, args, ok := set.Parse(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("Parse(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if cmd.Name != tt.wantName {
				t.Errorf("name = %q, want %q", cmd.Name, tt.wantName)
			}
			if args != tt.wantArgs {
				t.Errorf("args = %q, want %q", args, tt.wantArgs)
			}
			if cmd.Handler == nil {
				t.Error("handler is nil")
			}
		})
	}
}

func TestCommandSet_ListOrder(t *testing.T) {
	set := NewCommandSet(defaultCommands())
	want := []string{CmdStart, CmdStop, CmdHelp, CmdShowToken, CmdUpdateToken}

	got := set.List()
	if len(got) != len(want) {
		t.Fatalf("got %d commands, want %d", len(got), len(want))
	}
	for i, c := range got {
		if c.Name != want[i] {
			t.Errorf("command %d = %q, want %q", i, c.Name, want[i])
		}
		if c.Description == "" {
			t.Errorf("command %q has no description", c.Name)
		}
	}

	// Mutating the returned slice must not affect the set.
	got[0].Name = "/mutated"
	if set.List()[0].Name != CmdStart {
		t.Fatal("List exposes internal slice")
	}
}

func TestCommandSet_BotCommands(t *testing.T) {
	set := NewCommandSet(defaultCommands())

	for _, bc := range set.BotCommands() {
		if bc.Command == "" || bc.Command[0] == '/' {
			t.Errorf("bot command %q should not carry the marker", bc.Command)
		}
		if _, _, ok := set.Parse(CommandMarker + bc.Command); !ok {
			t.Errorf("registered command %q does not parse back", bc.Command)
		}
	}
}
