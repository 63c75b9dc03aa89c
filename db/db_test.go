package db

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	dbx, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = dbx.Close() })
	if err := Migrate(context.Background(), dbx); err != nil {
		t.Fatal(err)
	}
	return dbx
}

func TestKVRoundTrip(t *testing.T) {
	dbx := testDB(t)
	ctx := context.Background()
	key := "test_kv_" + uuid.NewString()
	if v, err := GetKV(ctx, dbx, key); err != nil || v != "" {
		t.Fatalf("missing key should be empty: %q err=%v", v, err)
	}
	if err := SetKV(ctx, dbx, key, "one"); err != nil {
		t.Fatal(err)
	}
	if err := SetKV(ctx, dbx, key, "two"); err != nil {
		t.Fatal(err)
	}
	v, err := GetKV(ctx, dbx, key)
	if err != nil || v != "two" {
		t.Fatalf("got %q err=%v", v, err)
	}
}

func TestOAuthTokenRoundTrip(t *testing.T) {
	dbx := testDB(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	if err := UpsertOAuthToken(ctx, dbx, "youtube", "acc", "ref", exp, "scope-a"); err != nil {
		t.Fatal(err)
	}
	access, refresh, expiry, scope, err := GetOAuthToken(ctx, dbx, "youtube")
	if err != nil {
		t.Fatal(err)
	}
	if access != "acc" || refresh != "ref" || scope != "scope-a" || !expiry.Equal(exp) {
		t.Fatalf("unexpected token row: %q %q %v %q", access, refresh, expiry, scope)
	}
	// unknown provider -> zero values, no error
	access, _, _, _, err = GetOAuthToken(ctx, dbx, "nosuch")
	if err != nil || access != "" {
		t.Fatalf("expected empty row, got %q err=%v", access, err)
	}
}

func TestAnalyticsSessionFlow(t *testing.T) {
	dbx := testDB(t)
	ctx := context.Background()
	sid := uuid.NewString()
	if err := CreateSession(ctx, dbx, sid, "youtube", "vid123", "Test Stream", "Valorant"); err != nil {
		t.Fatal(err)
	}
	for i, m := range []struct {
		id, author string
		cmd        bool
	}{
		{"m1", "alice", false},
		{"m2", "alice", true},
		{"m3", "bob", false},
	} {
		name := ""
		if m.cmd {
			name = "ping"
		}
		if err := LogMessage(ctx, dbx, sid, sid+m.id, m.author, "ref", "hello", m.cmd, name); err != nil {
			t.Fatalf("log %d: %v", i, err)
		}
	}
	// replayed id is a no-op
	if err := LogMessage(ctx, dbx, sid, sid+"m1", "alice", "ref", "hello again", false, ""); err != nil {
		t.Fatal(err)
	}
	top, err := TopChatters(ctx, dbx, sid, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 || top[0].Author != "alice" || top[0].Messages != 2 {
		t.Fatalf("top chatters = %+v", top)
	}

	if err := BumpCommandStat(ctx, dbx, sid, "ping", true, 12*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := BumpCommandStat(ctx, dbx, sid, "ping", false, 30*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := LogViewerSnapshot(ctx, dbx, sid, 42, 10); err != nil {
		t.Fatal(err)
	}
	if err := LogViewerSnapshot(ctx, dbx, sid, 17, 12); err != nil {
		t.Fatal(err)
	}

	st, err := GetSessionStats(ctx, dbx, sid)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalMessages != 3 || st.TotalCommands != 1 || st.PeakViewers != 42 {
		t.Fatalf("session stats = %+v", st)
	}
	if err := EndSession(ctx, dbx, sid); err != nil {
		t.Fatal(err)
	}
	st, err = GetSessionStats(ctx, dbx, sid)
	if err != nil {
		t.Fatal(err)
	}
	if !st.EndedAt.Valid {
		t.Fatal("ended_at not set")
	}
}
