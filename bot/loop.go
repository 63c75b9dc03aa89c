package bot

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/onnwee/chat-copilot/telemetry"
)

// Bot is the dispatch engine. A single goroutine owns the whole pipeline:
// ingest, dedup, echo and spam filtering, dispatch, emit, then periodic tasks.
// Collaborators may run their own goroutines but hand events over through the
// Source interface; the background probes only read adapter state and flip the
// stop flag, both of which are synchronized.
type Bot struct {
	Adapter *Adapter
	Seen    *SeenLog
	Echo    *EchoFilter
	Spam    *SpamFilter
	Router  *Router
	Sched   *Scheduler
	Out     Outbound
	Env     *Env

	ReplyDelay time.Duration
	MaxLen     int

	pace *rate.Limiter
	stop atomic.Bool
}

// outboundRate paces posts across all producers sharing the channel.
const outboundRate = 2 * time.Second

// NewBot wires the engine. All collaborators are required except Sched.
func NewBot(adapter *Adapter, seen *SeenLog, router *Router, out Outbound, env *Env) *Bot {
	return &Bot{
		Adapter:    adapter,
		Seen:       seen,
		Echo:       NewEchoFilter(defaultEchoCap),
		Spam:       NewSpamFilter(),
		Router:     router,
		Out:        out,
		Env:        env,
		ReplyDelay: 2 * time.Second,
		MaxLen:     200,
		pace:       rate.NewLimiter(rate.Every(outboundRate), 1),
	}
}

// RequestStop asks the loop to exit after the current cycle. Safe to call from
// any goroutine; the liveness monitor uses it when the stream ends.
func (b *Bot) RequestStop() { b.stop.Store(true) }

// Stopping reports whether a stop was requested.
func (b *Bot) Stopping() bool { return b.stop.Load() }

// Run drives the engine until ctx is cancelled, a stop is requested, or the
// platform rejects our credentials. Auth failures are the one error class that
// retrying cannot heal, so they surface to the operator instead of looping.
func (b *Bot) Run(ctx context.Context) error {
	slog.Info("dispatch loop starting",
		slog.String("mode", b.Adapter.State().Mode.String()))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if b.stop.Load() {
			slog.Info("dispatch loop stopping on request")
			return nil
		}

		events, wait, err := b.Adapter.NextBatch(ctx)
		if err != nil {
			slog.Error("ingestion auth failure; stopping", slog.Any("err", err))
			return err
		}
		for _, ev := range events {
			if err := b.handleEvent(ctx, ev); err != nil {
				slog.Error("outbound auth failure; stopping", slog.Any("err", err))
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		if b.Sched != nil {
			b.Sched.NoteEvents(len(events))
			for _, text := range b.Sched.Due(ctx, b.Env) {
				if err := b.emit(ctx, text); err != nil {
					slog.Error("outbound auth failure; stopping", slog.Any("err", err))
					return err
				}
			}
		}

		sleepCtx(ctx, wait)
	}
}

func (b *Bot) handleEvent(ctx context.Context, ev ChatEvent) error {
	telemetry.EventsIngested.Inc()

	if b.Seen.Has(ev.ID) {
		telemetry.EventsDeduplicated.Inc()
		return nil
	}
	// Marked before handling: a crash mid-reply drops the response rather
	// than duplicating it on restart.
	b.Seen.Mark(ev.ID)

	if b.Echo.Matches(ev.Text) {
		telemetry.EchoesSuppressed.Inc()
		return nil
	}
	if b.Env.BotName != "" && ev.Author == b.Env.BotName {
		telemetry.EchoesSuppressed.Inc()
		return nil
	}
	if ev.Kind == KindText && b.Spam.IsSpam(ev.Author, ev.Text) {
		telemetry.SpamDropped.Inc()
		slog.Debug("spam dropped", slog.String("author", ev.Author))
		return nil
	}

	if b.Env.Growth != nil && ev.Kind == KindText {
		b.Env.Growth.TrackMessage(ev.Author)
	}

	reply := b.Router.Dispatch(ctx, b.Env, ev)
	if reply == "" {
		return nil
	}
	// A beat of delay keeps replies readable next to the message they answer.
	sleepCtx(ctx, b.ReplyDelay)
	return b.emit(ctx, reply)
}

// emit truncates, records the echo, paces, and posts. Soft failures (empty id)
// are counted and skipped; the loop only dies on a post rejected for bad
// credentials.
func (b *Bot) emit(ctx context.Context, text string) error {
	text = truncateRunes(text, b.MaxLen)
	// Remembered before posting so the echo cannot outrun the send.
	b.Echo.Remember(text)

	if err := b.pace.Wait(ctx); err != nil {
		return nil
	}
	id, err := b.Out.Post(ctx, text)
	if err != nil {
		if IsAuthError(err) {
			return err
		}
		telemetry.PostsSoftFailed.Inc()
		slog.Warn("post failed", slog.Any("err", err))
		return nil
	}
	if id == "" {
		telemetry.PostsSoftFailed.Inc()
		slog.Debug("post soft-failed")
		return nil
	}
	// The platform will feed our own message back through ingestion.
	b.Seen.Mark(id)
	telemetry.RepliesPosted.Inc()
	return nil
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
