// Package server exposes the operational HTTP surface: health, engine status,
// and Prometheus metrics. It injects correlation IDs into request contexts for
// consistent logging.
package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/chat-copilot/bot"
	"github.com/onnwee/chat-copilot/telemetry"
)

// Status is the JSON body served on /status.
type Status struct {
	Platform       string `json:"platform"`
	Mode           string `json:"mode"`
	Interval       string `json:"interval"`
	QuotaExhausted bool   `json:"quota_exhausted"`
	Stopping       bool   `json:"stopping"`
	SessionID      string `json:"session_id,omitempty"`
	Uptime         string `json:"uptime"`
}

// NewMux returns the HTTP handler with all routes. db may be nil; readiness
// then skips the ping.
func NewMux(b *bot.Bot, dbx *sql.DB, platform, sessionID string, startedAt time.Time) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if dbx != nil {
			if err := dbx.PingContext(r.Context()); err != nil {
				http.Error(w, "db unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		st := b.Adapter.State()
		body := Status{
			Platform:       platform,
			Mode:           st.Mode.String(),
			Interval:       st.Interval.String(),
			QuotaExhausted: st.QuotaExhausted,
			Stopping:       b.Stopping(),
			SessionID:      sessionID,
			Uptime:         time.Since(startedAt).Round(time.Second).String(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(body); err != nil {
			slog.Warn("status encode failed", slog.Any("err", err))
		}
	})

	return withCorrelation(mux)
}

// withCorrelation tags each request with a correlation id for log joining.
func withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-Id")
		if id == "" {
			id = uuid.NewString()
		}
		ctx := telemetry.WithCorrelation(r.Context(), id)
		w.Header().Set("X-Correlation-Id", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
