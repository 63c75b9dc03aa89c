package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/onnwee/chat-copilot/telemetry"
)

// Router sends each event through the handler chain: commands first, then
// skills, then the conversational fallback. Exactly one stage may produce the
// reply; a command match is final even when its reply is empty.
type Router struct {
	Commands *CommandSet
	Skills   *SkillSet
	Gen      Generator
	Hook     AnalyticsHook
}

// Dispatch returns the reply to post for ev, or "" for silence. It never
// returns an error: every failure inside the chain is contained and logged.
func (r *Router) Dispatch(ctx context.Context, env *Env, ev ChatEvent) string {
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, "bot", "dispatch",
		attribute.String("chat.author", ev.Author),
		attribute.String("chat.message_id", ev.ID),
	)
	defer span.End()

	var (
		reply, stage, matched string
		ok                    bool
	)
	latency := telemetry.TimeFunc(telemetry.DispatchDuration, func() {
		reply, stage, matched, ok = r.dispatch(ctx, env, ev)
	})

	span.SetAttributes(attribute.String("chat.stage", stage))
	if ok {
		telemetry.SetSpanSuccess(span)
	}
	if r.Hook != nil {
		r.Hook(ev, matched, latency, ok)
	}
	return reply
}

func (r *Router) dispatch(ctx context.Context, env *Env, ev ChatEvent) (reply, stage, matched string, ok bool) {
	if r.Commands != nil {
		if cmd, args := r.Commands.Resolve(ev.Text); cmd != nil {
			reply, ok = r.Commands.Execute(ctx, env, cmd, ev, args)
			return reply, "command", cmd.Name, ok
		}
	}

	if r.Skills != nil {
		if reply, claimed := r.Skills.Run(ctx, env, ev); claimed {
			return reply, "skill", "", true
		}
	}

	if r.Gen == nil || !shouldEngage(env, ev) {
		return "", "none", "", true
	}
	return r.converse(ctx, env, ev)
}

func (r *Router) converse(ctx context.Context, env *Env, ev ChatEvent) (string, string, string, bool) {
	telemetry.FallbacksInvoked.Inc()
	var (
		out string
		err error
	)
	telemetry.TimeFunc(telemetry.GenerateDuration, func() {
		out, err = r.Gen.Generate(ctx, ev.Author, ev.Text)
	})
	if err == nil {
		return out, "fallback", "", true
	}

	telemetry.FallbacksFailed.Inc()
	telemetry.RecordError(trace.SpanFromContext(ctx), err)
	log := telemetry.LoggerWithCorr(ctx)
	switch {
	case errors.Is(err, ErrRateLimited):
		log.Debug("generation rate limited; staying quiet", slog.String("author", ev.Author))
		return "", "fallback", "", false
	case IsAuthError(err):
		log.Error("generation auth failure", slog.Any("err", err))
		return "Sorry, my brain is offline right now. The streamer has been notified!", "fallback", "", false
	default:
		log.Warn("generation failed; skipping reply", slog.Any("err", err))
		return "", "fallback", "", false
	}
}

// shouldEngage decides whether an unclaimed message deserves a conversational
// reply. Mentions and direct questions engage; short filler does not.
func shouldEngage(env *Env, ev ChatEvent) bool {
	text := strings.TrimSpace(ev.Text)
	if len([]rune(text)) < 4 {
		return false
	}
	lower := strings.ToLower(text)
	if env.BotName != "" && strings.Contains(lower, "@"+strings.ToLower(env.BotName)) {
		return true
	}
	if strings.Contains(text, "?") {
		return true
	}
	for _, kw := range []string{"anyone know", "can someone", "what game", "what is this", "help me"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
