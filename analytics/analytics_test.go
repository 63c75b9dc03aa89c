package analytics

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/onnwee/chat-copilot/bot"
	"github.com/onnwee/chat-copilot/db"
)

func TestTrackerInMemoryCounters(t *testing.T) {
	tr := NewTracker(context.Background(), nil, "youtube", "vid1", "title", "game")
	hook := tr.Hook()

	hook(bot.ChatEvent{ID: "m1", Author: "a", Text: "hello"}, "", 10*time.Millisecond, true)
	hook(bot.ChatEvent{ID: "m2", Author: "b", Text: "!ping"}, "ping", 30*time.Millisecond, true)
	tr.NoteAPICall(true)
	tr.NoteAPICall(false)

	m := tr.BotMetrics()
	if m.Messages != 2 || m.Commands != 1 {
		t.Fatalf("metrics = %+v", m)
	}
	if m.AvgResponseTime != 20*time.Millisecond {
		t.Fatalf("avg = %v", m.AvgResponseTime)
	}
	if m.APISuccessRate != 0.5 || m.APICallsTotal != 2 {
		t.Fatalf("api = %v / %d", m.APISuccessRate, m.APICallsTotal)
	}
}

func TestTrackerNilDBIsQuiet(t *testing.T) {
	tr := NewTracker(context.Background(), nil, "youtube", "vid1", "", "")
	if rows, err := tr.TopChatters(context.Background(), 5); err != nil || rows != nil {
		t.Fatalf("rows=%v err=%v", rows, err)
	}
	tr.Snapshot(context.Background(), 10)
	tr.Close(context.Background())
}

func TestTrackerSessionLifecycle(t *testing.T) {
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	dbx, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = dbx.Close() })
	ctx := context.Background()
	if err := db.Migrate(ctx, dbx); err != nil {
		t.Fatal(err)
	}

	tr := NewTracker(ctx, dbx, "youtube", "vid1", "title", "game")
	hook := tr.Hook()
	hook(bot.ChatEvent{ID: tr.SessionID() + "m1", Author: "alice", Text: "hello"}, "", 10*time.Millisecond, true)
	hook(bot.ChatEvent{ID: tr.SessionID() + "m2", Author: "alice", Text: "!ping"}, "ping", 10*time.Millisecond, true)
	tr.Snapshot(ctx, 42)

	// Close aggregates what the hook persisted and must not error out on a
	// session with real rows.
	tr.Close(ctx)

	st, err := db.GetSessionStats(ctx, dbx, tr.SessionID())
	if err != nil {
		t.Fatal(err)
	}
	if !st.EndedAt.Valid {
		t.Fatal("session not closed")
	}
	if st.TotalMessages != 2 || st.PeakViewers != 42 {
		t.Fatalf("session stats = %+v", st)
	}
	top, err := db.TopChatters(ctx, dbx, tr.SessionID(), 1)
	if err != nil || len(top) != 1 || top[0].Author != "alice" {
		t.Fatalf("top = %+v err=%v", top, err)
	}
}
