package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

type fakeOut struct {
	mu     sync.Mutex
	posted []string
	nextID int
	soft   bool
	err    error
}

func (f *fakeOut) Post(ctx context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.posted = append(f.posted, text)
	if f.soft {
		return "", nil
	}
	f.nextID++
	return "out-" + string(rune('a'+f.nextID)), nil
}

func (f *fakeOut) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posted)
}

func newTestBot(t *testing.T, push *fakeSource) (*Bot, *fakeOut) {
	t.Helper()
	seen, err := OpenSeenLog(filepath.Join(t.TempDir(), "seen.txt"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { seen.Close() })

	out := &fakeOut{}
	env := testEnv()
	b := NewBot(NewAdapter(push, nil, 10*time.Second), seen, newTestRouter(env, &stubGen{reply: "gen"}), out, env)
	b.ReplyDelay = 0
	b.pace = rate.NewLimiter(rate.Inf, 1)
	return b, out
}

func runBatch(t *testing.T, b *Bot, events []ChatEvent) {
	t.Helper()
	for _, ev := range events {
		b.handleEvent(context.Background(), ev)
	}
}

func TestHandleEventDedup(t *testing.T) {
	b, out := newTestBot(t, nil)
	ev := ChatEvent{ID: "m1", Author: "mod", Text: "!ping"}
	runBatch(t, b, []ChatEvent{ev, ev})
	if len(out.posted) != 1 {
		t.Fatalf("posted %d replies for a duplicated event", len(out.posted))
	}
}

func TestHandleEventEchoSuppression(t *testing.T) {
	b, out := newTestBot(t, nil)
	b.Env.Growth.FirstTime("mod")

	runBatch(t, b, []ChatEvent{{ID: "m1", Author: "mod", Text: "!ping"}})
	if len(out.posted) != 1 {
		t.Fatalf("expected one reply, got %d", len(out.posted))
	}
	echoed := out.posted[0]

	// The reply comes back through ingestion under a fresh id.
	runBatch(t, b, []ChatEvent{{ID: "m2", Author: "SomeRelay", Text: echoed}})
	if len(out.posted) != 1 {
		t.Fatalf("echo produced a reply: %v", out.posted)
	}
}

func TestHandleEventOwnAuthorSuppression(t *testing.T) {
	b, out := newTestBot(t, nil)
	runBatch(t, b, []ChatEvent{{ID: "m1", Author: "StreamCopilot", Text: "hello chat?"}})
	if len(out.posted) != 0 {
		t.Fatalf("replied to own message: %v", out.posted)
	}
}

func TestHandleEventSpamDropped(t *testing.T) {
	b, out := newTestBot(t, nil)
	b.Env.Growth.FirstTime("spammer")
	runBatch(t, b, []ChatEvent{{ID: "m1", Author: "spammer", Text: "follow me at my channel?"}})
	if len(out.posted) != 0 {
		t.Fatalf("replied to spam: %v", out.posted)
	}
}

func TestEmitTruncation(t *testing.T) {
	b, out := newTestBot(t, nil)
	long := strings.Repeat("x", 300)
	b.emit(context.Background(), long)
	if len(out.posted) != 1 {
		t.Fatal("nothing posted")
	}
	got := []rune(out.posted[0])
	if len(got) != 200 || string(got[199]) != "…" {
		t.Fatalf("len = %d, tail = %q", len(got), string(got[len(got)-1]))
	}
}

func TestEmitMarksOwnPostSeen(t *testing.T) {
	b, _ := newTestBot(t, nil)
	b.emit(context.Background(), "hello chat")
	if b.Seen.Len() != 1 {
		t.Fatal("posted id not marked seen")
	}
}

func TestEmitSoftFailure(t *testing.T) {
	b, out := newTestBot(t, nil)
	out.soft = true
	b.emit(context.Background(), "hello chat")
	if b.Seen.Len() != 0 {
		t.Fatal("soft failure must not mark anything seen")
	}
	// The echo is still remembered, so a half-delivered post cannot loop.
	if !b.Echo.Matches("hello chat") {
		t.Fatal("echo not remembered on soft failure")
	}
}

func TestRunProcessesBatchAndStops(t *testing.T) {
	push := &fakeSource{
		batches: [][]ChatEvent{{
			{ID: "m1", Author: "mod", Text: "!ping"},
			{ID: "m2", Author: "viewer", Text: "hello"},
		}},
		alive: true,
	}
	b, out := newTestBot(t, push)
	b.Env.Growth.FirstTime("mod")
	b.Env.Growth.FirstTime("viewer")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for out.count() < 2 {
			time.Sleep(5 * time.Millisecond)
		}
		b.RequestStop()
		cancel()
	}()

	if err := b.Run(ctx); err != nil && err != context.Canceled {
		t.Fatalf("Run: %v", err)
	}
	if len(out.posted) < 2 {
		t.Fatalf("posted = %v", out.posted)
	}
	if !strings.Contains(out.posted[0], "Pong") {
		t.Fatalf("ordering broken: %v", out.posted)
	}
}

func TestEmitAuthFailureFatal(t *testing.T) {
	b, out := newTestBot(t, nil)
	out.err = &AuthError{Provider: "youtube", Err: errors.New("token revoked")}
	if err := b.emit(context.Background(), "hello chat"); !IsAuthError(err) {
		t.Fatalf("emit err = %v, want auth failure surfaced", err)
	}
	if b.Seen.Len() != 0 {
		t.Fatal("rejected post must not mark anything seen")
	}
}

func TestRunStopsOnIngestAuthFailure(t *testing.T) {
	push := &fakeSource{
		errs:  []error{&AuthError{Provider: "youtube", Err: errors.New("token revoked")}},
		alive: true,
	}
	b, _ := newTestBot(t, push)
	if err := b.Run(context.Background()); !IsAuthError(err) {
		t.Fatalf("Run err = %v, want auth failure surfaced", err)
	}
}

func TestRunStopsOnRequest(t *testing.T) {
	b, _ := newTestBot(t, &fakeSource{alive: true})
	b.RequestStop()
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run after stop: %v", err)
	}
}

func TestRunEmitsPeriodicTasks(t *testing.T) {
	push := &fakeSource{alive: true}
	b, out := newTestBot(t, push)

	clock := time.Unix(5000, 0)
	sched := NewScheduler(&Task{
		Name: "announce", Once: true, After: 0,
		Action: func(ctx context.Context, env *Env) string { return "it is time" },
	})
	sched.now = func() time.Time { return clock }
	sched.start = clock
	b.Sched = sched

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for out.count() == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()
	b.Run(ctx)

	if len(out.posted) == 0 || out.posted[0] != "it is time" {
		t.Fatalf("posted = %v", out.posted)
	}
}
