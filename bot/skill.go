package bot

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"

	"github.com/onnwee/chat-copilot/telemetry"
)

// Skill is one pattern-triggered responder. Matches must be cheap and
// side-effect free; Handle may consult collaborators and cooldown gates.
type Skill interface {
	Name() string
	Matches(ev ChatEvent) bool
	Handle(ctx context.Context, env *Env, ev ChatEvent) (string, error)
}

// SkillSet evaluates skills in registration order. The first skill whose
// predicate matches claims the event; its result is final even when empty,
// unless the handler errors or panics, in which case the event falls through
// to the conversational path.
type SkillSet struct {
	skills []Skill
}

func NewSkillSet(skills ...Skill) *SkillSet {
	return &SkillSet{skills: skills}
}

func (s *SkillSet) Add(sk Skill) { s.skills = append(s.skills, sk) }

// Run returns the claiming skill's reply. claimed is true when a predicate
// matched and the handler completed, regardless of whether reply is empty.
func (s *SkillSet) Run(ctx context.Context, env *Env, ev ChatEvent) (reply string, claimed bool) {
	for _, sk := range s.skills {
		if !sk.Matches(ev) {
			continue
		}
		out, err := runSkill(ctx, sk, env, ev)
		if err != nil {
			slog.Warn("skill handler failed; falling through",
				slog.String("skill", sk.Name()), slog.Any("err", err))
			return "", false
		}
		if out != "" {
			telemetry.SkillsFired.Inc()
		}
		return out, true
	}
	return "", false
}

func runSkill(ctx context.Context, sk Skill, env *Env, ev ChatEvent) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("skill handler panicked",
				slog.String("skill", sk.Name()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			out, err = "", errSkillPanic
		}
	}()
	return sk.Handle(ctx, env, ev)
}

var errSkillPanic = errors.New("skill panicked")
