package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testEnv() *Env {
	return &Env{
		BotName:   "StreamCopilot",
		StartedAt: time.Now().Add(-90 * time.Minute),
		IsAdmin:   func(a string) bool { return a == "mod" },
		Growth:    NewGrowth(nil, nil),
		Profile:   map[string]string{"socials": "example.com/links"},
	}
}

func TestResolve(t *testing.T) {
	c := NewCommandSet()
	RegisterBuiltins(c)

	cmd, args := c.Resolve("!ping")
	if cmd == nil || cmd.Name != "ping" {
		t.Fatalf("Resolve(!ping) = %v", cmd)
	}
	if len(args) != 0 {
		t.Fatalf("args = %v", args)
	}

	cmd, args = c.Resolve("  !SETGOAL 500  ")
	if cmd == nil || cmd.Name != "setgoal" {
		t.Fatalf("case-insensitive resolve failed: %v", cmd)
	}
	if len(args) != 1 || args[0] != "500" {
		t.Fatalf("args = %v", args)
	}

	if cmd, _ = c.Resolve("!commands"); cmd == nil || cmd.Name != "help" {
		t.Fatal("alias resolve failed")
	}
	if cmd, _ = c.Resolve("hello there"); cmd != nil {
		t.Fatal("non-command resolved")
	}
	if cmd, _ = c.Resolve("!nosuchthing"); cmd != nil {
		t.Fatal("unknown command resolved")
	}
	if cmd, _ = c.Resolve("!"); cmd != nil {
		t.Fatal("bare trigger resolved")
	}
}

func TestExecuteAdminGate(t *testing.T) {
	c := NewCommandSet()
	RegisterBuiltins(c)
	env := testEnv()

	cmd, args := c.Resolve("!setgoal 500")
	reply, ok := c.Execute(context.Background(), env, cmd, ChatEvent{ID: "1", Author: "viewer"}, args)
	if !ok || !strings.Contains(reply, "only moderators") {
		t.Fatalf("denial reply = %q ok=%v", reply, ok)
	}

	reply, ok = c.Execute(context.Background(), env, cmd, ChatEvent{ID: "2", Author: "mod"}, args)
	if !ok || !strings.Contains(reply, "500") {
		t.Fatalf("admin execution reply = %q ok=%v", reply, ok)
	}
}

func TestExecuteBadArgument(t *testing.T) {
	c := NewCommandSet()
	RegisterBuiltins(c)
	env := testEnv()

	cmd, args := c.Resolve("!setgoal lots")
	reply, ok := c.Execute(context.Background(), env, cmd, ChatEvent{ID: "1", Author: "mod"}, args)
	if !ok {
		t.Fatal("bad argument is a handled outcome, not a failure")
	}
	if !strings.Contains(reply, "positive number") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestExecuteContainsErrors(t *testing.T) {
	c := NewCommandSet()
	c.Register(&Command{
		Name: "boom",
		Handler: func(ctx context.Context, env *Env, ev ChatEvent, args []string) (string, error) {
			return "", errors.New("backend down")
		},
	})
	c.Register(&Command{
		Name: "panic",
		Handler: func(ctx context.Context, env *Env, ev ChatEvent, args []string) (string, error) {
			panic("nil map write")
		},
	})
	env := testEnv()
	// Both invocations come from the same user; lift the per-user rate limit
	// the same way TestExecutePerUserRateLimit does.
	c.limiters["u"] = rate.NewLimiter(rate.Inf, 1)

	cmd, _ := c.Resolve("!boom")
	reply, ok := c.Execute(context.Background(), env, cmd, ChatEvent{ID: "1", Author: "u"}, nil)
	if ok || !strings.Contains(reply, "hit a snag") {
		t.Fatalf("error reply = %q ok=%v", reply, ok)
	}

	cmd, _ = c.Resolve("!panic")
	reply, ok = c.Execute(context.Background(), env, cmd, ChatEvent{ID: "2", Author: "u"}, nil)
	if ok || !strings.Contains(reply, "hit a snag") {
		t.Fatalf("panic reply = %q ok=%v", reply, ok)
	}
}

func TestExecutePerUserRateLimit(t *testing.T) {
	c := NewCommandSet()
	RegisterBuiltins(c)
	env := testEnv()
	cmd, _ := c.Resolve("!ping")

	reply, ok := c.Execute(context.Background(), env, cmd, ChatEvent{ID: "1", Author: "fast"}, nil)
	if !ok || reply == "" {
		t.Fatalf("first command blocked: %q", reply)
	}
	reply, ok = c.Execute(context.Background(), env, cmd, ChatEvent{ID: "2", Author: "fast"}, nil)
	if !ok || reply != "" {
		t.Fatalf("second command within the window should drop silently, got %q", reply)
	}
	// A different user is unaffected.
	if reply, _ = c.Execute(context.Background(), env, cmd, ChatEvent{ID: "3", Author: "slow"}, nil); reply == "" {
		t.Fatal("independent user was rate limited")
	}

	// Refill and confirm recovery without sleeping a wall-clock window.
	c.limiters["fast"] = rate.NewLimiter(rate.Inf, 1)
	if reply, _ = c.Execute(context.Background(), env, cmd, ChatEvent{ID: "4", Author: "fast"}, nil); reply == "" {
		t.Fatal("user never recovered")
	}
}

func TestBuiltinReplies(t *testing.T) {
	c := NewCommandSet()
	RegisterBuiltins(c)
	env := testEnv()

	cmd, _ := c.Resolve("!uptime")
	reply, ok := c.Execute(context.Background(), env, cmd, ChatEvent{ID: "1", Author: "u1"}, nil)
	if !ok || !strings.Contains(reply, "1h 30m") {
		t.Fatalf("uptime reply = %q", reply)
	}

	cmd, _ = c.Resolve("!socials")
	reply, _ = c.Execute(context.Background(), env, cmd, ChatEvent{ID: "2", Author: "u2"}, nil)
	if !strings.Contains(reply, "example.com/links") {
		t.Fatalf("socials reply = %q", reply)
	}

	cmd, _ = c.Resolve("!help")
	reply, _ = c.Execute(context.Background(), env, cmd, ChatEvent{ID: "3", Author: "u3"}, nil)
	if !strings.Contains(reply, "!ping") || !strings.Contains(reply, "!setgoal") {
		t.Fatalf("help reply = %q", reply)
	}
}
