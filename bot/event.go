// Package bot implements the live-chat dispatch engine: dual-mode ingestion with
// quota-aware failover, exactly-once event processing, self-echo suppression, an
// ordered handler chain (command, skill, conversational fallback), and periodic
// announcements sharing the outbound channel.
package bot

import (
	"context"
	"time"
)

// EventKind discriminates chat payloads.
type EventKind int

const (
	KindText EventKind = iota
	KindMembership
)

// ChatEvent is one inbound chat occurrence, immutable once constructed.
// ID is unique within a stream session; the dedup store treats two events
// with equal ID as the same logical occurrence regardless of payload.
type ChatEvent struct {
	ID         string
	Author     string
	AuthorRef  string
	Text       string
	ReceivedAt time.Time
	Privileged bool
	Kind       EventKind
}

// Source delivers batches of chat events. NextBatch must not block longer than
// one polling cycle; push-style implementations drain whatever has arrived since
// the last call. The returned duration is the source's suggested wait before the
// next call.
type Source interface {
	NextBatch(ctx context.Context) ([]ChatEvent, time.Duration, error)
	IsAlive() bool
}

// Outbound posts a message to the chat. An empty id with a nil error is a soft
// failure (e.g., posting quota) and must not be treated as a crash.
type Outbound interface {
	Post(ctx context.Context, text string) (string, error)
}

// Generator is the conversational fallback collaborator. It may be slow or fail;
// failures are classified by the router, never propagated out of dispatch.
type Generator interface {
	Generate(ctx context.Context, author, text string) (string, error)
}

// StreamStats is a point-in-time snapshot of the stream's public counters.
type StreamStats struct {
	Viewers     int
	Likes       int
	Subscribers int
}

// StatsProvider reports current stream statistics. Implementations should cache
// aggressively; callers treat errors as "stats unavailable right now".
type StatsProvider interface {
	StreamStats(ctx context.Context) (*StreamStats, error)
}

// Chatter is one row of a top-chatters leaderboard.
type Chatter struct {
	Author   string
	Messages int
}

// Metrics summarizes the bot's own health counters for the current session.
type Metrics struct {
	Uptime          time.Duration
	Messages        int
	Commands        int
	AvgResponseTime time.Duration
	APISuccessRate  float64
	APICallsTotal   int
}

// Leaderboard exposes historical chat activity to commands. Implemented by the
// analytics tracker; may be nil when persistence is disabled.
type Leaderboard interface {
	TopChatters(ctx context.Context, limit int) ([]Chatter, error)
	TopChattersByDate(ctx context.Context, date string, limit int) ([]Chatter, error)
	BotMetrics() Metrics
}

// AnalyticsHook is fired after every dispatch with the matched command (or ""),
// the handler latency, and whether handling succeeded.
type AnalyticsHook func(ev ChatEvent, command string, latency time.Duration, success bool)

// Env carries the collaborators handlers may use. It is built once at startup
// and threaded through every handler call; there is no ambient global state.
type Env struct {
	BotName   string
	Profile   map[string]string
	Game      string
	Topic     string
	StartedAt time.Time

	IsAdmin func(author string) bool
	Stats   StatsProvider
	Board   Leaderboard
	Growth  *Growth
}

func (e *Env) admin(author string) bool {
	return e.IsAdmin != nil && e.IsAdmin(author)
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
