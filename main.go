// Command chat-copilot runs an automated participant in a live stream chat.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Ingests chat through an unmetered push reader with transparent failover
//     to metered polling (YouTube), or over IRC (Twitch).
//   - Dispatches every message through commands, skills, and an optional
//     LLM-backed conversational fallback.
//   - Exposes a minimal HTTP server with /healthz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM, and automatic when the stream ends.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/chat-copilot/analytics"
	"github.com/onnwee/chat-copilot/bot"
	"github.com/onnwee/chat-copilot/config"
	"github.com/onnwee/chat-copilot/db"
	"github.com/onnwee/chat-copilot/innertube"
	"github.com/onnwee/chat-copilot/llm"
	"github.com/onnwee/chat-copilot/server"
	"github.com/onnwee/chat-copilot/telemetry"
	"github.com/onnwee/chat-copilot/twitchchat"
	"github.com/onnwee/chat-copilot/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	initLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("chat-copilot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	database, err := db.Connect()
	if err != nil {
		slog.Warn("db unavailable; running without persistence", slog.Any("err", err))
		database = nil
	} else {
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		if err := db.RunMigrations(database); err != nil {
			slog.Warn("versioned migrations failed, attempting fallback to embedded SQL", slog.Any("err", err))
			if err := db.Migrate(context.Background(), database); err != nil {
				slog.Error("failed to migrate db", slog.Any("err", err))
				os.Exit(1)
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, database); err != nil && err != context.Canceled {
		slog.Error("engine exited", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, database *sql.DB) error {
	startedAt := time.Now()

	// Sources and outbound channel per platform.
	var (
		adapter   *bot.Adapter
		out       bot.Outbound
		stats     bot.StatsProvider
		streamRef string
	)
	switch cfg.Platform {
	case "twitch":
		if err := cfg.ValidateTwitchReady(); err != nil {
			return err
		}
		tc := twitchchat.New(cfg.TwitchBotUsername, cfg.TwitchOAuthToken, cfg.TwitchChannel)
		if err := tc.Start(ctx); err != nil {
			return err
		}
		adapter = bot.NewAdapter(tc, nil, cfg.PollFloor)
		out = tc
		streamRef = cfg.TwitchChannel
	default:
		if err := cfg.ValidateYouTubeReady(); err != nil {
			return err
		}
		svc := youtubeapi.New(cfg, tokenStore{database})
		live := youtubeapi.NewLiveChat(svc, cfg.YTVideoID)
		if err := live.ResolveChatID(ctx); err != nil {
			return err
		}
		push := innertube.New(cfg.YTVideoID)
		if err := push.Start(ctx); err != nil {
			slog.Warn("quota-free reader unavailable; starting in poll mode", slog.Any("err", err))
			push = nil
		}
		if push != nil {
			adapter = bot.NewAdapter(push, live, cfg.PollFloor)
		} else {
			adapter = bot.NewAdapter(nil, live, cfg.PollFloor)
		}
		out = live
		stats = live
		streamRef = cfg.YTVideoID
	}

	// Processed-message log survives restarts.
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}
	seen, err := bot.OpenSeenLog(filepath.Join(cfg.DataDir, "processed_messages.txt"))
	if err != nil {
		return err
	}
	defer func() {
		if err := seen.Close(); err != nil {
			slog.Warn("seen log close failed", slog.Any("err", err))
		}
	}()

	tracker := analytics.NewTracker(ctx, database, cfg.Platform, streamRef, "", "")
	defer tracker.Close(context.Background())

	growth := bot.NewGrowth(growthStore(database))

	env := &bot.Env{
		BotName:   cfg.BotName,
		Profile:   map[string]string{"socials": os.Getenv("SOCIAL_LINKS")},
		Game:      os.Getenv("STREAM_GAME"),
		Topic:     os.Getenv("STREAM_TOPIC"),
		StartedAt: startedAt,
		IsAdmin:   cfg.IsAdmin,
		Stats:     stats,
		Board:     tracker,
		Growth:    growth,
	}

	commands := bot.NewCommandSet()
	bot.RegisterBuiltins(commands)

	var gen bot.Generator
	if cfg.OpenAIAPIKey != "" {
		g, err := llm.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, llm.DefaultPersona(cfg.BotName, env.Game, env.Topic))
		if err != nil {
			return err
		}
		gen = g
	} else {
		slog.Info("no OPENAI_API_KEY; conversational fallback disabled")
	}

	router := &bot.Router{
		Commands: commands,
		Skills:   bot.DefaultSkills(growth),
		Gen:      gen,
		Hook:     tracker.Hook(),
	}

	engine := bot.NewBot(adapter, seen, router, out, env)
	engine.ReplyDelay = cfg.ReplyDelay
	engine.MaxLen = cfg.MaxMessageLen
	engine.Sched = bot.NewScheduler(bot.DefaultTasks(growth)...)

	monitor := bot.NewMonitor(engine)
	monitor.Snapshot = tracker.Snapshot
	if err := monitor.Start(ctx); err != nil {
		return err
	}
	defer monitor.Stop()

	// HTTP server (health/status/metrics)
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.NewMux(engine, database, cfg.Platform, tracker.SessionID(), startedAt),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("http server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", slog.Any("err", err))
		}
	}()
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Warn("http shutdown failed", slog.Any("err", err))
		}
	}()

	slog.Info("engine starting",
		slog.String("platform", cfg.Platform),
		slog.String("stream", streamRef),
		slog.String("session", tracker.SessionID()))
	return engine.Run(ctx)
}

// tokenStore adapts the db package to the youtubeapi TokenStore interface.
type tokenStore struct{ dbx *sql.DB }

func (t tokenStore) UpsertOAuthToken(ctx context.Context, provider, access, refresh string, expiry time.Time, scope string) error {
	if t.dbx == nil {
		return nil
	}
	return db.UpsertOAuthToken(ctx, t.dbx, provider, access, refresh, expiry, scope)
}

func (t tokenStore) GetOAuthToken(ctx context.Context, provider string) (string, string, time.Time, string, error) {
	if t.dbx == nil {
		// Fall back to a raw token from the environment for tokenless setups.
		if tok := os.Getenv("YT_ACCESS_TOKEN"); tok != "" {
			return tok, os.Getenv("YT_REFRESH_TOKEN"), time.Now().Add(time.Hour), "", nil
		}
		return "", "", time.Time{}, "", nil
	}
	return db.GetOAuthToken(ctx, t.dbx, provider)
}

// growthStore persists growth state in the kv table.
func growthStore(dbx *sql.DB) (func([]byte) error, func() ([]byte, error)) {
	if dbx == nil {
		return nil, nil
	}
	const key = "growth:state"
	save := func(raw []byte) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return db.SetKV(ctx, dbx, key, string(raw))
	}
	load := func() ([]byte, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		v, err := db.GetKV(ctx, dbx, key)
		if err != nil {
			return nil, err
		}
		return []byte(v), nil
	}
	return save, load
}

func initLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
}
