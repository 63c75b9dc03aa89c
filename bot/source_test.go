package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSource struct {
	batches [][]ChatEvent
	hints   []time.Duration
	errs    []error
	calls   int
	alive   bool
}

func (f *fakeSource) NextBatch(ctx context.Context) ([]ChatEvent, time.Duration, error) {
	i := f.calls
	f.calls++
	var (
		b    []ChatEvent
		hint time.Duration
		err  error
	)
	if i < len(f.batches) {
		b = f.batches[i]
	}
	if i < len(f.hints) {
		hint = f.hints[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return b, hint, err
}

func (f *fakeSource) IsAlive() bool { return f.alive }

func TestAdapterPushPreferred(t *testing.T) {
	push := &fakeSource{
		batches: [][]ChatEvent{{{ID: "a"}}},
		alive:   true,
	}
	a := NewAdapter(push, &fakeSource{alive: true}, 10*time.Second)
	if got := a.State().Mode; got != ModePush {
		t.Fatalf("mode = %v, want push", got)
	}
	events, interval, _ := a.NextBatch(context.Background())
	if len(events) != 1 || events[0].ID != "a" {
		t.Fatalf("events = %+v", events)
	}
	if interval != time.Second {
		t.Fatalf("interval = %v, want 1s", interval)
	}
}

func TestAdapterPushFailover(t *testing.T) {
	push := &fakeSource{
		errs:  []error{errors.New("socket closed")},
		alive: false,
	}
	poll := &fakeSource{
		batches: [][]ChatEvent{{{ID: "p1"}}},
		hints:   []time.Duration{15 * time.Second},
		alive:   true,
	}
	a := NewAdapter(push, poll, 10*time.Second)

	events, _, _ := a.NextBatch(context.Background())
	if len(events) != 0 {
		t.Fatalf("expected empty batch on push failure, got %d", len(events))
	}
	if a.State().Mode != ModePoll {
		t.Fatalf("expected failover to poll mode, got %v", a.State().Mode)
	}

	events, interval, _ := a.NextBatch(context.Background())
	if len(events) != 1 || events[0].ID != "p1" {
		t.Fatalf("events = %+v", events)
	}
	if interval != 15*time.Second {
		t.Fatalf("interval = %v, want 15s", interval)
	}
}

func TestAdapterPushTransientError(t *testing.T) {
	// Source errors but still reports alive: stay in push mode and retry.
	push := &fakeSource{
		errs:    []error{errors.New("timeout"), nil},
		batches: [][]ChatEvent{nil, {{ID: "b"}}},
		alive:   true,
	}
	a := NewAdapter(push, nil, 10*time.Second)

	if events, _, _ := a.NextBatch(context.Background()); len(events) != 0 {
		t.Fatalf("expected empty batch, got %d", len(events))
	}
	if a.State().Mode != ModePush {
		t.Fatalf("mode flipped on transient error")
	}
	events, _, _ := a.NextBatch(context.Background())
	if len(events) != 1 || events[0].ID != "b" {
		t.Fatalf("events = %+v", events)
	}
}

func TestAdapterPollFloorClamp(t *testing.T) {
	poll := &fakeSource{
		batches: [][]ChatEvent{{}},
		hints:   []time.Duration{2 * time.Second},
		alive:   true,
	}
	a := NewAdapter(nil, poll, 10*time.Second)
	_, interval, _ := a.NextBatch(context.Background())
	if interval != 10*time.Second {
		t.Fatalf("interval = %v, want clamped to 10s", interval)
	}
}

func TestAdapterQuotaExhaustionTerminal(t *testing.T) {
	poll := &fakeSource{
		errs:  []error{ErrQuotaExceeded},
		alive: true,
	}
	a := NewAdapter(nil, poll, 10*time.Second)

	_, interval, _ := a.NextBatch(context.Background())
	if interval != time.Hour {
		t.Fatalf("interval = %v, want 1h", interval)
	}
	st := a.State()
	if !st.QuotaExhausted {
		t.Fatal("quota flag not set")
	}

	// Subsequent calls must not touch the source again.
	before := poll.calls
	_, interval, _ = a.NextBatch(context.Background())
	if poll.calls != before {
		t.Fatalf("poll source called after quota exhaustion")
	}
	if interval != time.Hour {
		t.Fatalf("interval = %v, want 1h after exhaustion", interval)
	}
}

func TestAdapterAuthErrorFatal(t *testing.T) {
	authErr := &AuthError{Provider: "youtube", Err: errors.New("token revoked")}

	poll := &fakeSource{errs: []error{authErr}, alive: true}
	a := NewAdapter(nil, poll, 10*time.Second)
	_, _, err := a.NextBatch(context.Background())
	if !IsAuthError(err) {
		t.Fatalf("poll err = %v, want auth failure surfaced", err)
	}
	if a.State().QuotaExhausted {
		t.Fatal("auth failure must not set quota flag")
	}

	push := &fakeSource{errs: []error{authErr}, alive: true}
	a = NewAdapter(push, nil, 10*time.Second)
	if _, _, err := a.NextBatch(context.Background()); !IsAuthError(err) {
		t.Fatalf("push err = %v, want auth failure surfaced", err)
	}
}

func TestAdapterStateConcurrentAccess(t *testing.T) {
	push := &fakeSource{errs: []error{errors.New("socket closed")}, alive: false}
	poll := &fakeSource{alive: true}
	a := NewAdapter(push, poll, 10*time.Second)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				_ = a.State()
				_ = a.IsAlive()
			}
		}
	}()
	for i := 0; i < 200; i++ {
		a.NextBatch(context.Background())
	}
	close(done)
	wg.Wait()

	if a.State().Mode != ModePoll {
		t.Fatal("expected failover to poll mode under concurrent readers")
	}
}

func TestAdapterPollTransientError(t *testing.T) {
	poll := &fakeSource{
		errs:    []error{errors.New("500"), nil},
		batches: [][]ChatEvent{nil, {{ID: "c"}}},
		hints:   []time.Duration{0, 12 * time.Second},
		alive:   true,
	}
	a := NewAdapter(nil, poll, 10*time.Second)

	_, interval, _ := a.NextBatch(context.Background())
	if interval != 10*time.Second {
		t.Fatalf("interval = %v, want floor retry", interval)
	}
	if a.State().QuotaExhausted {
		t.Fatal("transient error must not set quota flag")
	}
	events, _, _ := a.NextBatch(context.Background())
	if len(events) != 1 {
		t.Fatalf("expected recovery batch, got %d", len(events))
	}
}
