package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RegisterBuiltins installs the standard command set.
func RegisterBuiltins(c *CommandSet) {
	c.Register(&Command{
		Name:        "help",
		Aliases:     []string{"commands"},
		Description: "List available commands",
		Handler:     cmdHelp(c),
	})
	c.Register(&Command{
		Name:        "ping",
		Description: "Check the bot is alive",
		Handler: func(ctx context.Context, env *Env, ev ChatEvent, args []string) (string, error) {
			return fmt.Sprintf("🏓 Pong! Hi @%s, I'm here.", ev.Author), nil
		},
	})
	c.Register(&Command{
		Name:        "uptime",
		Description: "How long the stream has been live",
		Handler:     cmdUptime,
	})
	c.Register(&Command{
		Name:        "socials",
		Aliases:     []string{"links", "social"},
		Description: "Where else to find the streamer",
		Handler:     cmdSocials,
	})
	c.Register(&Command{
		Name:        "stats",
		Description: "Current stream stats",
		Handler:     cmdStats,
	})
	c.Register(&Command{
		Name:        "viewers",
		Description: "Current viewer count",
		Handler:     cmdViewers,
	})
	c.Register(&Command{
		Name:        "top",
		Aliases:     []string{"leaderboard"},
		Description: "All-time top chatters",
		Handler:     cmdTop,
	})
	c.Register(&Command{
		Name:        "topchatters",
		Description: "Top chatters for a date (YYYY-MM-DD)",
		Usage:       "!topchatters [date]",
		Handler:     cmdTopChatters,
	})
	c.Register(&Command{
		Name:        "botstats",
		Description: "Bot session health",
		Handler:     cmdBotStats,
	})
	c.Register(&Command{
		Name:        "setgoal",
		Description: "Set the subscriber goal",
		Usage:       "!setgoal <number>",
		AdminOnly:   true,
		Handler:     cmdSetGoal,
	})
	c.Register(&Command{
		Name:        "goal",
		Aliases:     []string{"goalprogress"},
		Description: "Subscriber goal progress",
		Handler:     cmdGoal,
	})
	c.Register(&Command{
		Name:        "challenge",
		Description: "Start a subscriber challenge",
		Usage:       "!challenge <target> <reward...>",
		AdminOnly:   true,
		Handler:     cmdChallenge,
	})
	c.Register(&Command{
		Name:        "challengeprogress",
		Description: "Running challenge progress",
		Handler:     cmdChallengeProgress,
	})
	c.Register(&Command{
		Name:        "cancelchallenge",
		Description: "Cancel the running challenge",
		AdminOnly:   true,
		Handler:     cmdCancelChallenge,
	})
	c.Register(&Command{
		Name:        "growthstats",
		Aliases:     []string{"growth"},
		Description: "Audience growth summary",
		Handler:     cmdGrowthStats,
	})
}

func cmdHelp(c *CommandSet) Handler {
	return func(ctx context.Context, env *Env, ev ChatEvent, args []string) (string, error) {
		names := c.Names()
		for i, n := range names {
			names[i] = Trigger + n
		}
		return "📋 Commands: " + strings.Join(names, " "), nil
	}
}

func cmdUptime(ctx context.Context, env *Env, ev ChatEvent, args []string) (string, error) {
	if env.StartedAt.IsZero() {
		return "⏱ The stream clock isn't running yet.", nil
	}
	up := time.Since(env.StartedAt).Round(time.Minute)
	h := int(up.Hours())
	m := int(up.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("⏱ Live for %dm so far!", m), nil
	}
	return fmt.Sprintf("⏱ Live for %dh %dm so far!", h, m), nil
}

func cmdSocials(ctx context.Context, env *Env, ev ChatEvent, args []string) (string, error) {
	if links, ok := env.Profile["socials"]; ok && links != "" {
		return "🔗 Find us at " + links, nil
	}
	return "🔗 No socials configured yet.", nil
}

func cmdStats(ctx context.Context, env *Env, ev ChatEvent, args []string) (string, error) {
	if env.Stats == nil {
		return "📊 Stats aren't available right now.", nil
	}
	st, err := env.Stats.StreamStats(ctx)
	if err != nil {
		return "", fmt.Errorf("stream stats: %w", err)
	}
	return fmt.Sprintf("📊 %d watching, %d likes, %d subscribers.",
		st.Viewers, st.Likes, st.Subscribers), nil
}

func cmdViewers(ctx context.Context, env *Env, ev ChatEvent, args []string) (string, error) {
	if env.Stats == nil {
		return "👀 Viewer count isn't available right now.", nil
	}
	st, err := env.Stats.StreamStats(ctx)
	if err != nil {
		return "", fmt.Errorf("stream stats: %w", err)
	}
	return fmt.Sprintf("👀 %d people are watching right now.", st.Viewers), nil
}

func cmdTop(ctx context.Context, env *Env, ev ChatEvent, args []string) (string, error) {
	if env.Board == nil {
		return "🏆 The leaderboard is taking a break.", nil
	}
	rows, err := env.Board.TopChatters(ctx, 5)
	if err != nil {
		return "", fmt.Errorf("top chatters: %w", err)
	}
	return renderLeaderboard("🏆 All-time top chatters", rows), nil
}

func cmdTopChatters(ctx context.Context, env *Env, ev ChatEvent, args []string) (string, error) {
	if env.Board == nil {
		return "🏆 The leaderboard is taking a break.", nil
	}
	date := time.Now().Format("2006-01-02")
	if len(args) > 0 {
		if _, err := time.Parse("2006-01-02", args[0]); err != nil {
			return "📅 Use a date like !topchatters 2026-08-29.", nil
		}
		date = args[0]
	}
	rows, err := env.Board.TopChattersByDate(ctx, date, 5)
	if err != nil {
		return "", fmt.Errorf("top chatters by date: %w", err)
	}
	return renderLeaderboard("🏆 Top chatters on "+date, rows), nil
}

func renderLeaderboard(title string, rows []Chatter) string {
	if len(rows) == 0 {
		return title + ": nobody yet. Be the first!"
	}
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = fmt.Sprintf("%d. %s (%d)", i+1, r.Author, r.Messages)
	}
	return title + ": " + strings.Join(parts, " ")
}

func cmdBotStats(ctx context.Context, env *Env, ev ChatEvent, args []string) (string, error) {
	if env.Board == nil {
		return "🤖 No session metrics to report.", nil
	}
	m := env.Board.BotMetrics()
	return fmt.Sprintf("🤖 Up %s, %d messages seen, %d commands run, avg response %s, API success %.0f%%.",
		m.Uptime.Round(time.Second), m.Messages, m.Commands,
		m.AvgResponseTime.Round(time.Millisecond), m.APISuccessRate*100), nil
}

func cmdSetGoal(ctx context.Context, env *Env, ev ChatEvent, args []string) (string, error) {
	if env.Growth == nil {
		return "🌱 Growth tracking is disabled.", nil
	}
	if len(args) != 1 {
		return "Usage: !setgoal <number>", nil
	}
	goal, err := strconv.Atoi(args[0])
	if err != nil || goal <= 0 {
		return fmt.Sprintf("%q isn't a goal I can count to. Try a positive number.", args[0]), nil
	}
	env.Growth.SetGoal(goal)
	return fmt.Sprintf("🎯 Subscriber goal set to %d. Let's get there!", goal), nil
}

func cmdGoal(ctx context.Context, env *Env, ev ChatEvent, args []string) (string, error) {
	if env.Growth == nil {
		return "🌱 Growth tracking is disabled.", nil
	}
	if p := env.Growth.GoalProgress(); p != "" {
		return p, nil
	}
	return "🎯 No subscriber goal set. Mods can use !setgoal.", nil
}

func cmdChallenge(ctx context.Context, env *Env, ev ChatEvent, args []string) (string, error) {
	if env.Growth == nil {
		return "🌱 Growth tracking is disabled.", nil
	}
	if len(args) < 2 {
		return "Usage: !challenge <target> <reward...>", nil
	}
	target, err := strconv.Atoi(args[0])
	if err != nil || target <= 0 {
		return fmt.Sprintf("%q isn't a target I can count to. Try a positive number.", args[0]), nil
	}
	return env.Growth.StartChallenge(target, strings.Join(args[1:], " ")), nil
}

func cmdChallengeProgress(ctx context.Context, env *Env, ev ChatEvent, args []string) (string, error) {
	if env.Growth == nil {
		return "🌱 Growth tracking is disabled.", nil
	}
	if p := env.Growth.ChallengeProgress(); p != "" {
		return p, nil
	}
	return "⚔️ No challenge running. Mods can start one with !challenge.", nil
}

func cmdCancelChallenge(ctx context.Context, env *Env, ev ChatEvent, args []string) (string, error) {
	if env.Growth == nil {
		return "🌱 Growth tracking is disabled.", nil
	}
	if env.Growth.CancelChallenge() {
		return "⚔️ Challenge cancelled. We'll run it back another day.", nil
	}
	return "⚔️ There's no challenge to cancel.", nil
}

func cmdGrowthStats(ctx context.Context, env *Env, ev ChatEvent, args []string) (string, error) {
	if env.Growth == nil {
		return "🌱 Growth tracking is disabled.", nil
	}
	return env.Growth.StatsSummary(), nil
}
