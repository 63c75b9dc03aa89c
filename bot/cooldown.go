package bot

import "time"

// Gate is a minimum-gap cooldown. The check and the timestamp update are one
// operation so a firing decision immediately suppresses the next attempt.
type Gate struct {
	MinGap time.Duration
	last   time.Time
	now    func() time.Time
}

func NewGate(minGap time.Duration) *Gate {
	return &Gate{MinGap: minGap, now: time.Now}
}

// TryFire reports whether enough time has passed since the last firing, and if
// so records the new firing time.
func (g *Gate) TryFire() bool {
	t := g.now()
	if !g.last.IsZero() && t.Sub(g.last) < g.MinGap {
		return false
	}
	g.last = t
	return true
}

// Remaining returns how long until the gate opens again, zero if open now.
func (g *Gate) Remaining() time.Duration {
	if g.last.IsZero() {
		return 0
	}
	rem := g.MinGap - g.now().Sub(g.last)
	if rem < 0 {
		return 0
	}
	return rem
}
