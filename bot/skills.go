package bot

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// DefaultSkills assembles the standard skill chain. Order matters: the first
// predicate to match claims the event.
func DefaultSkills(growth *Growth) *SkillSet {
	return NewSkillSet(
		&membershipSkill{},
		&welcomeSkill{growth: growth},
		&greetingSkill{},
		&hypeSkill{},
		&gamingTipSkill{},
		&communitySkill{gate: NewGate(180 * time.Second)},
		&growthBoostSkill{growth: growth, gate: NewGate(180 * time.Second)},
		&cohostSkill{},
	)
}

// membershipSkill thanks new members and sponsors.
type membershipSkill struct{}

func (s *membershipSkill) Name() string { return "membership" }

func (s *membershipSkill) Matches(ev ChatEvent) bool { return ev.Kind == KindMembership }

func (s *membershipSkill) Handle(ctx context.Context, env *Env, ev ChatEvent) (string, error) {
	return fmt.Sprintf("💚 Huge thanks for the membership, @%s! You're the best.", ev.Author), nil
}

// welcomeSkill greets viewers who have never chatted before.
type welcomeSkill struct {
	growth *Growth
}

func (s *welcomeSkill) Name() string { return "welcome" }

func (s *welcomeSkill) Matches(ev ChatEvent) bool {
	return s.growth != nil && ev.Kind == KindText && !s.growth.Known(ev.Author)
}

func (s *welcomeSkill) Handle(ctx context.Context, env *Env, ev ChatEvent) (string, error) {
	s.growth.FirstTime(ev.Author)
	return fmt.Sprintf("👋 Welcome to the stream, @%s! Great to have you here. Try !help to see what I can do.", ev.Author), nil
}

// greetingSkill mirrors simple hellos.
type greetingSkill struct{}

var greetingWords = []string{"hello", "hi", "hey", "yo", "howdy", "hiya", "sup"}

func (s *greetingSkill) Name() string { return "greeting" }

func (s *greetingSkill) Matches(ev ChatEvent) bool {
	text := strings.ToLower(strings.TrimSpace(ev.Text))
	text = strings.TrimRight(text, "!.? ")
	for _, w := range greetingWords {
		if text == w || strings.HasPrefix(text, w+" ") {
			return true
		}
	}
	return false
}

func (s *greetingSkill) Handle(ctx context.Context, env *Env, ev ChatEvent) (string, error) {
	replies := []string{
		"Hey @%s! 👋",
		"Hi @%s, welcome in!",
		"Yo @%s! Glad you made it.",
	}
	return fmt.Sprintf(replies[rand.Intn(len(replies))], ev.Author), nil
}

// hypeSkill amplifies excitement.
type hypeSkill struct{}

var hypeMarkers = []string{"pog", "poggers", "lets go", "let's go", "hype", "insane", "clutch", "gg"}

func (s *hypeSkill) Name() string { return "hype" }

func (s *hypeSkill) Matches(ev ChatEvent) bool {
	text := strings.ToLower(ev.Text)
	for _, m := range hypeMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func (s *hypeSkill) Handle(ctx context.Context, env *Env, ev ChatEvent) (string, error) {
	replies := []string{
		"🔥 LET'S GOOO!",
		"🎉 The hype is real!",
		"💪 That was clean!",
	}
	return replies[rand.Intn(len(replies))], nil
}

// gamingTipSkill answers "how do I" style questions about the current game.
type gamingTipSkill struct{}

func (s *gamingTipSkill) Name() string { return "gaming-tip" }

func (s *gamingTipSkill) Matches(ev ChatEvent) bool {
	text := strings.ToLower(ev.Text)
	if !strings.Contains(text, "tip") && !strings.Contains(text, "how do i") && !strings.Contains(text, "how to") {
		return false
	}
	return strings.Contains(text, "game") || strings.Contains(text, "play") || strings.Contains(text, "build")
}

func (s *gamingTipSkill) Handle(ctx context.Context, env *Env, ev ChatEvent) (string, error) {
	if env.Game == "" {
		return fmt.Sprintf("@%s Good question! Drop it in chat and let's figure it out together.", ev.Author), nil
	}
	return fmt.Sprintf("@%s Solid %s question! Keep practicing the fundamentals and watch how the streamer handles it.", ev.Author, env.Game), nil
}

// communitySkill nudges lurkers into the conversation, gated so it never spams.
// Questions and commands are left for more specific handlers.
type communitySkill struct {
	gate *Gate
}

func (s *communitySkill) Name() string { return "community" }

func (s *communitySkill) Matches(ev ChatEvent) bool {
	text := strings.TrimSpace(ev.Text)
	if strings.HasPrefix(text, Trigger) || strings.Contains(text, "?") {
		return false
	}
	lower := strings.ToLower(text)
	return strings.Contains(lower, "lurk") || strings.Contains(lower, "first stream") ||
		strings.Contains(lower, "new here")
}

func (s *communitySkill) Handle(ctx context.Context, env *Env, ev ChatEvent) (string, error) {
	if !s.gate.TryFire() {
		return "", nil
	}
	return fmt.Sprintf("💜 @%s the community is what makes this place. Say hi anytime, lurking is welcome too!", ev.Author), nil
}

// growthBoostSkill drops a goal reminder when chat talks subs, on a cooldown.
type growthBoostSkill struct {
	growth *Growth
	gate   *Gate
}

func (s *growthBoostSkill) Name() string { return "growth-boost" }

func (s *growthBoostSkill) Matches(ev ChatEvent) bool {
	if s.growth == nil {
		return false
	}
	text := strings.ToLower(ev.Text)
	return strings.Contains(text, "subscribe") || strings.Contains(text, "subbed") ||
		strings.Contains(text, "sub goal")
}

func (s *growthBoostSkill) Handle(ctx context.Context, env *Env, ev ChatEvent) (string, error) {
	if !s.gate.TryFire() {
		return "", nil
	}
	if p := s.growth.GoalProgress(); p != "" {
		return p, nil
	}
	return "", nil
}

// cohostSkill chimes in when chat addresses the bot as part of the show.
type cohostSkill struct{}

func (s *cohostSkill) Name() string { return "cohost" }

func (s *cohostSkill) Matches(ev ChatEvent) bool {
	text := strings.ToLower(ev.Text)
	return strings.Contains(text, "good bot") || strings.Contains(text, "bad bot") ||
		strings.Contains(text, "thanks bot")
}

func (s *cohostSkill) Handle(ctx context.Context, env *Env, ev ChatEvent) (string, error) {
	text := strings.ToLower(ev.Text)
	switch {
	case strings.Contains(text, "bad bot"):
		return fmt.Sprintf("😢 I'll try harder, @%s.", ev.Author), nil
	case strings.Contains(text, "thanks bot"):
		return fmt.Sprintf("Anytime, @%s! 🤖", ev.Author), nil
	default:
		return fmt.Sprintf("🤖 Thanks @%s, I do my best!", ev.Author), nil
	}
}
