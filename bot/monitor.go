package bot

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Monitor runs the coarse background probes: a liveness check that asks the
// engine to stop once the stream ends, and a viewer snapshot for analytics.
// Both run on minute-scale cadences so they cost nothing against API quotas.
// Probes only flip advisory state; the dispatch loop itself stays
// single-threaded.
type Monitor struct {
	bot  *Bot
	cron *cron.Cron

	// Snapshot records a viewer count sample; nil disables the probe.
	Snapshot func(ctx context.Context, viewers int)
}

func NewMonitor(b *Bot) *Monitor {
	return &Monitor{bot: b, cron: cron.New()}
}

// Start schedules the probes and launches the cron runner.
func (m *Monitor) Start(ctx context.Context) error {
	if _, err := m.cron.AddFunc("@every 60s", func() { m.checkLiveness() }); err != nil {
		return err
	}
	if m.Snapshot != nil && m.bot.Env.Stats != nil {
		if _, err := m.cron.AddFunc("@every 120s", func() { m.snapshotViewers(ctx) }); err != nil {
			return err
		}
	}
	m.cron.Start()
	return nil
}

// Stop halts the cron runner, waiting for in-flight probes.
func (m *Monitor) Stop() {
	<-m.cron.Stop().Done()
}

// checkLiveness treats probe errors as "still live". Only a definitive ended
// signal stops the engine.
func (m *Monitor) checkLiveness() {
	if m.bot.Adapter.IsAlive() {
		return
	}
	slog.Info("stream no longer live; requesting engine stop")
	m.bot.RequestStop()
}

func (m *Monitor) snapshotViewers(ctx context.Context) {
	st, err := m.bot.Env.Stats.StreamStats(ctx)
	if err != nil {
		slog.Debug("viewer snapshot skipped", slog.Any("err", err))
		return
	}
	m.Snapshot(ctx, st.Viewers)
	if m.bot.Env.Growth != nil {
		m.bot.Env.Growth.SetCurrent(st.Subscribers)
	}
}
