// Package analytics persists chat activity and command outcomes per stream
// session and serves the leaderboard commands. All writes are best-effort:
// a broken database degrades reporting, never dispatch.
package analytics

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/chat-copilot/bot"
	"github.com/onnwee/chat-copilot/db"
)

// Tracker implements bot.Leaderboard and supplies the dispatch hook.
type Tracker struct {
	dbx       *sql.DB
	sessionID string
	startedAt time.Time

	mu           sync.Mutex
	messages     int
	commands     int
	latencyTotal time.Duration
	latencyN     int
	apiCalls     int
	apiOK        int
}

// NewTracker opens a session row and returns the tracker. dbx may be nil for a
// persistence-free run; the in-memory counters still work.
func NewTracker(ctx context.Context, dbx *sql.DB, platform, streamRef, title, game string) *Tracker {
	t := &Tracker{
		dbx:       dbx,
		sessionID: uuid.NewString(),
		startedAt: time.Now(),
	}
	if dbx != nil {
		if err := db.CreateSession(ctx, dbx, t.sessionID, platform, streamRef, title, game); err != nil {
			slog.Warn("session create failed; continuing without persistence", slog.Any("err", err))
			t.dbx = nil
		}
	}
	return t
}

// SessionID returns the id of the open session.
func (t *Tracker) SessionID() string { return t.sessionID }

// Close marks the session ended and logs a summary of what it persisted.
func (t *Tracker) Close(ctx context.Context) {
	if t.dbx == nil {
		return
	}
	if err := db.EndSession(ctx, t.dbx, t.sessionID); err != nil {
		slog.Warn("session close failed", slog.Any("err", err))
	}
	st, err := db.GetSessionStats(ctx, t.dbx, t.sessionID)
	if err != nil {
		slog.Debug("session summary unavailable", slog.Any("err", err))
		return
	}
	attrs := []any{
		slog.String("session", t.sessionID),
		slog.Int("messages", st.TotalMessages),
		slog.Int("commands", st.TotalCommands),
		slog.Int("peak_viewers", st.PeakViewers),
	}
	if top, err := db.TopChatters(ctx, t.dbx, t.sessionID, 1); err == nil && len(top) > 0 {
		attrs = append(attrs, slog.String("top_chatter", top[0].Author))
	}
	slog.Info("session closed", attrs...)
}

// Hook returns the dispatch callback recording every processed event.
func (t *Tracker) Hook() bot.AnalyticsHook {
	return func(ev bot.ChatEvent, command string, latency time.Duration, success bool) {
		t.mu.Lock()
		t.messages++
		if command != "" {
			t.commands++
		}
		t.latencyTotal += latency
		t.latencyN++
		t.mu.Unlock()

		if t.dbx == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		isCommand := strings.HasPrefix(strings.TrimSpace(ev.Text), bot.Trigger)
		if err := db.LogMessage(ctx, t.dbx, t.sessionID, ev.ID, ev.Author, ev.AuthorRef, ev.Text, isCommand, command); err != nil {
			slog.Debug("message log failed", slog.Any("err", err))
		}
		if command != "" {
			if err := db.BumpCommandStat(ctx, t.dbx, t.sessionID, command, success, latency); err != nil {
				slog.Debug("command stat failed", slog.Any("err", err))
			}
		}
	}
}

// NoteAPICall feeds the API success-rate counter.
func (t *Tracker) NoteAPICall(ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.apiCalls++
	if ok {
		t.apiOK++
	}
}

// Snapshot records a viewer count sample for the session.
func (t *Tracker) Snapshot(ctx context.Context, viewers int) {
	if t.dbx == nil {
		return
	}
	if err := db.LogViewerSnapshot(ctx, t.dbx, t.sessionID, viewers, 0); err != nil {
		slog.Debug("viewer snapshot failed", slog.Any("err", err))
	}
}

// TopChatters returns the all-time leaderboard.
func (t *Tracker) TopChatters(ctx context.Context, limit int) ([]bot.Chatter, error) {
	if t.dbx == nil {
		return nil, nil
	}
	rows, err := db.AllTimeTopChatters(ctx, t.dbx, limit)
	if err != nil {
		return nil, err
	}
	return convertChatters(rows), nil
}

// TopChattersByDate returns the leaderboard for one UTC date.
func (t *Tracker) TopChattersByDate(ctx context.Context, date string, limit int) ([]bot.Chatter, error) {
	if t.dbx == nil {
		return nil, nil
	}
	rows, err := db.TopChattersByDate(ctx, t.dbx, date, limit)
	if err != nil {
		return nil, err
	}
	return convertChatters(rows), nil
}

// BotMetrics summarizes the session's in-memory counters.
func (t *Tracker) BotMetrics() bot.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := bot.Metrics{
		Uptime:        time.Since(t.startedAt),
		Messages:      t.messages,
		Commands:      t.commands,
		APICallsTotal: t.apiCalls,
	}
	if t.latencyN > 0 {
		m.AvgResponseTime = t.latencyTotal / time.Duration(t.latencyN)
	}
	if t.apiCalls > 0 {
		m.APISuccessRate = float64(t.apiOK) / float64(t.apiCalls)
	}
	return m
}

func convertChatters(rows []db.Chatter) []bot.Chatter {
	out := make([]bot.Chatter, len(rows))
	for i, r := range rows {
		out[i] = bot.Chatter{Author: r.Author, Messages: r.Messages}
	}
	return out
}
