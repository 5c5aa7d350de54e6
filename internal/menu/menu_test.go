package menu

import "testing"

func TestRouterDispatchesRegisteredCommand(t *testing.T) {
	r := NewRouter()
	r.Register("PING", func(args []string) string { return "PONG" })
	if got := r.Handle("ping"); got != "PONG" {
		t.Fatalf("expected PONG, got %q", got)
	}
}

func TestRouterPassesArgs(t *testing.T) {
	r := NewRouter()
	r.Register("ECHO", func(args []string) string {
		if len(args) != 2 {
			return "ERR"
		}
		return args[0] + args[1]
	})
	if got := r.Handle("echo foo bar"); got != "foobar" {
		t.Fatalf("expected foobar, got %q", got)
	}
}

func TestRouterUnknownCommand(t *testing.T) {
	r := NewRouter()
	got := r.Handle("bogus")
	if got != `ERR unknown command "bogus"` {
		t.Fatalf("unexpected response: %q", got)
	}
}

func TestRouterEmptyCommand(t *testing.T) {
	r := NewRouter()
	if got := r.Handle("   "); got != "ERR empty command" {
		t.Fatalf("unexpected response: %q", got)
	}
}
