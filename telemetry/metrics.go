// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	EventsIngested     prometheus.Counter
	EventsDeduplicated prometheus.Counter
	EchoesSuppressed   prometheus.Counter
	SpamDropped        prometheus.Counter
	CommandsExecuted   prometheus.Counter
	CommandsFailed     prometheus.Counter
	SkillsFired        prometheus.Counter
	FallbacksInvoked   prometheus.Counter
	FallbacksFailed    prometheus.Counter
	RepliesPosted      prometheus.Counter
	PostsSoftFailed    prometheus.Counter
	PeriodicFired      prometheus.Counter
	QuotaExhaustions   prometheus.Counter

	// Histograms (seconds)
	DispatchDuration prometheus.Observer
	GenerateDuration prometheus.Observer

	// Gauges
	PollIntervalGauge prometheus.Gauge
	PollModeGauge     prometheus.Gauge // 1=poll, 0=push
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventsIngested = promauto.NewCounter(prometheus.CounterOpts{Name: "copilot_events_ingested_total", Help: "Chat events received from the active source"})
		EventsDeduplicated = promauto.NewCounter(prometheus.CounterOpts{Name: "copilot_events_deduplicated_total", Help: "Events dropped because their id was already seen"})
		EchoesSuppressed = promauto.NewCounter(prometheus.CounterOpts{Name: "copilot_echoes_suppressed_total", Help: "Events dropped as reflections of the bot's own messages"})
		SpamDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "copilot_spam_dropped_total", Help: "Events dropped by the spam filter"})
		CommandsExecuted = promauto.NewCounter(prometheus.CounterOpts{Name: "copilot_commands_executed_total", Help: "Explicit commands executed"})
		CommandsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "copilot_commands_failed_total", Help: "Command handlers that returned an error or panicked"})
		SkillsFired = promauto.NewCounter(prometheus.CounterOpts{Name: "copilot_skills_fired_total", Help: "Passive skills that produced output"})
		FallbacksInvoked = promauto.NewCounter(prometheus.CounterOpts{Name: "copilot_fallbacks_invoked_total", Help: "Conversational fallback generations attempted"})
		FallbacksFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "copilot_fallbacks_failed_total", Help: "Conversational fallback generations that failed"})
		RepliesPosted = promauto.NewCounter(prometheus.CounterOpts{Name: "copilot_replies_posted_total", Help: "Messages posted to the outbound channel"})
		PostsSoftFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "copilot_posts_soft_failed_total", Help: "Outbound posts that failed softly (nil message id)"})
		PeriodicFired = promauto.NewCounter(prometheus.CounterOpts{Name: "copilot_periodic_fired_total", Help: "Periodic task firings"})
		QuotaExhaustions = promauto.NewCounter(prometheus.CounterOpts{Name: "copilot_quota_exhaustions_total", Help: "Quota-exhaustion signals observed from the polling source"})
		DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "copilot_dispatch_duration_seconds", Help: "Per-event dispatch duration seconds", Buckets: prometheus.DefBuckets})
		GenerateDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "copilot_generate_duration_seconds", Help: "Conversational fallback generation duration seconds", Buckets: prometheus.DefBuckets})
		PollIntervalGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "copilot_poll_interval_seconds", Help: "Current suggested ingestion interval"})
		PollModeGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "copilot_poll_mode", Help: "Active source mode poll=1 push=0"})
	})
}

// SetPollInterval records the interval suggested by the active source.
func SetPollInterval(d time.Duration) {
	if PollIntervalGauge != nil {
		PollIntervalGauge.Set(d.Seconds())
	}
}

// SetPollMode sets the mode gauge to 1 when polling, 0 when pushing.
func SetPollMode(poll bool) {
	if PollModeGauge != nil {
		if poll {
			PollModeGauge.Set(1)
		} else {
			PollModeGauge.Set(0)
		}
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
