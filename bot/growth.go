package bot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// growthState is the persisted portion of the tracker.
type growthState struct {
	KnownViewers map[string]bool `json:"known_viewers"`
	Goal         int             `json:"goal"`
	Current      int             `json:"current"`
	Challenge    *challenge      `json:"challenge,omitempty"`
}

type challenge struct {
	Target     int       `json:"target"`
	Reward     string    `json:"reward"`
	StartCount int       `json:"start_count"`
	StartedAt  time.Time `json:"started_at"`
}

// Growth tracks audience milestones across sessions: first-time viewers, a
// subscriber goal, and an optional time-boxed challenge. State is serialized
// through the injected save/load hooks; a nil pair keeps it memory-only.
// Safe for concurrent use; the subscriber count arrives from a background probe.
type Growth struct {
	mu       sync.Mutex
	state    growthState
	activity map[string]int
	save     func([]byte) error
	load     func() ([]byte, error)
}

const defaultGoal = 2000

// NewGrowth builds a tracker, restoring saved state if load yields any.
func NewGrowth(save func([]byte) error, load func() ([]byte, error)) *Growth {
	g := &Growth{
		state:    growthState{KnownViewers: make(map[string]bool), Goal: defaultGoal},
		activity: make(map[string]int),
		save:     save,
		load:     load,
	}
	if load != nil {
		if raw, err := load(); err == nil && len(raw) > 0 {
			var st growthState
			if err := json.Unmarshal(raw, &st); err != nil {
				slog.Warn("growth state corrupt; starting fresh", slog.Any("err", err))
			} else {
				if st.KnownViewers == nil {
					st.KnownViewers = make(map[string]bool)
				}
				if st.Goal == 0 {
					st.Goal = defaultGoal
				}
				g.state = st
			}
		}
	}
	return g
}

func (g *Growth) persist() {
	if g.save == nil {
		return
	}
	raw, err := json.Marshal(g.state)
	if err != nil {
		return
	}
	if err := g.save(raw); err != nil {
		slog.Warn("growth state save failed", slog.Any("err", err))
	}
}

// Known reports whether author has chatted before, without recording them.
func (g *Growth) Known(author string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.KnownViewers[author]
}

// FirstTime reports whether author has never chatted before and records them.
func (g *Growth) FirstTime(author string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.KnownViewers[author] {
		return false
	}
	g.state.KnownViewers[author] = true
	g.persist()
	return true
}

// TrackMessage bumps per-session activity for the viewer callout.
func (g *Growth) TrackMessage(author string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.activity[author]++
}

// SetGoal replaces the subscriber goal.
func (g *Growth) SetGoal(goal int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.Goal = goal
	g.persist()
}

// SetCurrent records the latest observed subscriber count.
func (g *Growth) SetCurrent(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n == g.state.Current {
		return
	}
	g.state.Current = n
	g.persist()
}

// GoalProgress renders a progress line for chat, empty when the goal is unset.
func (g *Growth) GoalProgress() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.Goal <= 0 {
		return ""
	}
	pct := float64(g.state.Current) / float64(g.state.Goal) * 100
	remaining := g.state.Goal - g.state.Current
	if remaining <= 0 {
		return fmt.Sprintf("🎉 Goal smashed! %d subscribers and counting. Thank you all!", g.state.Current)
	}
	return fmt.Sprintf("📈 Subscriber goal: %d/%d (%.1f%%). Only %d to go!",
		g.state.Current, g.state.Goal, pct, remaining)
}

// StartChallenge begins a challenge from the current subscriber count.
func (g *Growth) StartChallenge(target int, reward string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.Challenge = &challenge{
		Target:     target,
		Reward:     reward,
		StartCount: g.state.Current,
		StartedAt:  time.Now(),
	}
	g.persist()
	return fmt.Sprintf("🔥 New challenge! Hit %d subscribers and I'll %s. We're starting from %d!",
		target, reward, g.state.Current)
}

// ChallengeProgress renders the running challenge, empty when none is active.
func (g *Growth) ChallengeProgress() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.state.Challenge
	if c == nil {
		return ""
	}
	gained := g.state.Current - c.StartCount
	remaining := c.Target - g.state.Current
	if remaining <= 0 {
		return fmt.Sprintf("🏆 Challenge complete! %d subscribers reached. Time to %s!", c.Target, c.Reward)
	}
	return fmt.Sprintf("⚔️ Challenge: %d/%d subs (+%d since start). %d more and I'll %s!",
		g.state.Current, c.Target, gained, remaining, c.Reward)
}

// CancelChallenge clears the running challenge, reporting whether one existed.
func (g *Growth) CancelChallenge() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.Challenge == nil {
		return false
	}
	g.state.Challenge = nil
	g.persist()
	return true
}

// Callout names the most active chatters this session, empty below min.
func (g *Growth) Callout(min int) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	type pair struct {
		name  string
		count int
	}
	var all []pair
	for name, count := range g.activity {
		if count >= min {
			all = append(all, pair{name, count})
		}
	}
	if len(all) == 0 {
		return ""
	}
	sort.Slice(all, func(i, j int) bool { return all[i].count > all[j].count })
	if len(all) > 3 {
		all = all[:3]
	}
	names := make([]string, len(all))
	for i, p := range all {
		names[i] = p.name
	}
	switch len(names) {
	case 1:
		return fmt.Sprintf("💬 Shoutout to %s for keeping the chat alive!", names[0])
	case 2:
		return fmt.Sprintf("💬 Shoutout to %s and %s for keeping the chat alive!", names[0], names[1])
	default:
		return fmt.Sprintf("💬 Shoutout to %s, %s and %s for keeping the chat alive!", names[0], names[1], names[2])
	}
}

// StatsSummary renders totals for the growth command.
func (g *Growth) StatsSummary() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	line := fmt.Sprintf("🌱 %d viewers have said hi so far. Goal: %d/%d subs.",
		len(g.state.KnownViewers), g.state.Current, g.state.Goal)
	if g.state.Challenge != nil {
		line += " A challenge is running, try !challengeprogress."
	}
	return line
}
