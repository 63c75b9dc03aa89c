package bot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/chat-copilot/telemetry"
)

// Mode identifies which ingestion path the adapter is on.
type Mode int

const (
	ModePush Mode = iota
	ModePoll
)

func (m Mode) String() string {
	if m == ModePush {
		return "push"
	}
	return "poll"
}

// PollState is the adapter's observable ingestion state. QuotaExhausted is
// terminal for the session; the remote reset policy is external and time-based,
// so there is no automatic recovery.
type PollState struct {
	Mode           Mode
	Interval       time.Duration
	QuotaExhausted bool
}

const (
	pushInterval  = 1 * time.Second
	quotaInterval = 1 * time.Hour
)

// Adapter normalizes a push-style, quota-free reader and a quota-metered poller
// into one batch interface with an adaptive suggested interval. Either source
// may be nil; a nil push source puts the adapter in poll mode from the start.
// State is read from other goroutines (liveness probe, status handler), so st
// is guarded.
type Adapter struct {
	push  Source
	poll  Source
	floor time.Duration

	mu sync.Mutex
	st PollState
}

// NewAdapter builds an adapter preferring push mode when a push source is
// available. floor bounds the poll interval from below (resource ceiling).
func NewAdapter(push, poll Source, floor time.Duration) *Adapter {
	if floor <= 0 {
		floor = 10 * time.Second
	}
	a := &Adapter{push: push, poll: poll, floor: floor}
	if push != nil {
		a.st = PollState{Mode: ModePush, Interval: pushInterval}
	} else {
		a.st = PollState{Mode: ModePoll, Interval: floor}
	}
	telemetry.SetPollMode(a.st.Mode == ModePoll)
	return a
}

// State returns a copy of the current ingestion state.
func (a *Adapter) State() PollState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.st
}

// IsAlive reports whether the active source still considers the stream open.
// The underlying source call happens outside the lock; sources guard their own
// state and may block briefly.
func (a *Adapter) IsAlive() bool {
	a.mu.Lock()
	mode := a.st.Mode
	a.mu.Unlock()
	if mode == ModePush && a.push != nil {
		return a.push.IsAlive()
	}
	if a.poll != nil {
		return a.poll.IsAlive()
	}
	return false
}

// NextBatch fetches whatever the active source has. Transient failures yield an
// empty batch and a retry interval, a quota signal degrades to hours-scale
// polling for the rest of the session, and a dead push source flips the adapter
// to poll mode transparently. Only an auth failure propagates: revoked
// credentials cannot heal by retrying, so the caller must stop.
func (a *Adapter) NextBatch(ctx context.Context) ([]ChatEvent, time.Duration, error) {
	st := a.State()

	if st.Mode == ModePush {
		events, _, err := a.push.NextBatch(ctx)
		if err != nil {
			if IsAuthError(err) {
				return nil, 0, err
			}
			slog.Warn("push source read failed", slog.Any("err", err))
			if !a.push.IsAlive() && a.poll != nil {
				slog.Info("push source dead; failing over to poll mode")
				a.mu.Lock()
				a.st.Mode = ModePoll
				a.st.Interval = a.floor
				st = a.st
				a.mu.Unlock()
				telemetry.SetPollMode(true)
			}
			return nil, st.Interval, nil
		}
		a.mu.Lock()
		a.st.Interval = pushInterval
		a.mu.Unlock()
		return events, pushInterval, nil
	}

	if a.poll == nil {
		return nil, st.Interval, nil
	}
	if st.QuotaExhausted {
		// No calls once the quota signal was observed; keep the stretched cadence.
		return nil, st.Interval, nil
	}
	events, hint, err := a.poll.NextBatch(ctx)
	if err != nil {
		if IsAuthError(err) {
			return nil, 0, err
		}
		if errors.Is(err, ErrQuotaExceeded) {
			a.mu.Lock()
			a.st.QuotaExhausted = true
			a.st.Interval = quotaInterval
			a.mu.Unlock()
			telemetry.QuotaExhaustions.Inc()
			slog.Warn("polling quota exhausted; degrading for the rest of the session",
				slog.Duration("interval", quotaInterval))
			return nil, quotaInterval, nil
		}
		slog.Warn("poll fetch failed", slog.Any("err", err))
		return nil, a.floor, nil
	}
	if hint < a.floor {
		hint = a.floor
	}
	a.mu.Lock()
	a.st.Interval = hint
	a.mu.Unlock()
	telemetry.SetPollInterval(hint)
	return events, hint, nil
}
