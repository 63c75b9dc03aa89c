package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"golang.org/x/time/rate"

	"github.com/onnwee/chat-copilot/telemetry"
)

// Trigger is the command prefix.
const Trigger = "!"

// Handler implements one command. Returning "" with a nil error means the
// command ran but has nothing to say; that outcome is still final.
type Handler func(ctx context.Context, env *Env, ev ChatEvent, args []string) (string, error)

// Command is one registered chat command.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	AdminOnly   bool
	Handler     Handler
}

// CommandSet resolves and executes trigger-prefixed messages. Name matching is
// case-insensitive over names and aliases. A single user may execute at most
// one command per userRateEvery; excess attempts are dropped silently.
type CommandSet struct {
	byName   map[string]*Command
	ordered  []*Command
	limiters map[string]*rate.Limiter
}

const userRateEvery = 5 // seconds between commands per user

func NewCommandSet() *CommandSet {
	return &CommandSet{
		byName:   make(map[string]*Command),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Register adds cmd and its aliases. Later registrations win on collision,
// which lets callers override a builtin.
func (c *CommandSet) Register(cmd *Command) {
	c.ordered = append(c.ordered, cmd)
	c.byName[strings.ToLower(cmd.Name)] = cmd
	for _, a := range cmd.Aliases {
		c.byName[strings.ToLower(a)] = cmd
	}
}

// Resolve extracts the command word from text and looks it up. The remaining
// whitespace-separated tokens become args. Returns nil when text is not a
// command invocation or names no registered command.
func (c *CommandSet) Resolve(text string) (*Command, []string) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, Trigger) {
		return nil, nil
	}
	fields := strings.Fields(trimmed)
	name := strings.ToLower(strings.TrimPrefix(fields[0], Trigger))
	if name == "" {
		return nil, nil
	}
	cmd, ok := c.byName[name]
	if !ok {
		return nil, nil
	}
	return cmd, fields[1:]
}

// Names returns the registered command names in registration order.
func (c *CommandSet) Names() []string {
	names := make([]string, 0, len(c.ordered))
	for _, cmd := range c.ordered {
		names = append(names, cmd.Name)
	}
	return names
}

func (c *CommandSet) userLimiter(author string) *rate.Limiter {
	l, ok := c.limiters[author]
	if !ok {
		l = rate.NewLimiter(rate.Limit(1.0/userRateEvery), 1)
		c.limiters[author] = l
	}
	return l
}

// Execute runs cmd for ev. Handler errors and panics are contained here: the
// caller always gets a chat-safe reply (or "") and an ok flag for metrics.
// Admin denial and rate-limit drops count as handled, not failed.
func (c *CommandSet) Execute(ctx context.Context, env *Env, cmd *Command, ev ChatEvent, args []string) (reply string, ok bool) {
	if cmd.AdminOnly && !env.admin(ev.Author) {
		return fmt.Sprintf("Sorry @%s, only moderators can use %s%s.", ev.Author, Trigger, cmd.Name), true
	}
	if !c.userLimiter(ev.Author).Allow() {
		slog.Debug("command rate limited",
			slog.String("author", ev.Author), slog.String("command", cmd.Name))
		return "", true
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("command handler panicked",
				slog.String("command", cmd.Name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			telemetry.CommandsFailed.Inc()
			reply, ok = commandFailureReply(cmd.Name), false
		}
	}()

	out, err := cmd.Handler(ctx, env, ev, args)
	if err != nil {
		slog.Warn("command handler failed",
			slog.String("command", cmd.Name), slog.Any("err", err))
		telemetry.CommandsFailed.Inc()
		return commandFailureReply(cmd.Name), false
	}
	telemetry.CommandsExecuted.Inc()
	return out, true
}

func commandFailureReply(name string) string {
	return fmt.Sprintf("Oops, %s%s hit a snag. Try again in a moment!", Trigger, name)
}
