package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"CHAT_PLATFORM", "BOT_NAME", "ADMIN_USERS", "REPLY_DELAY", "MAX_MESSAGE_LEN", "DB_DSN", "DATA_DIR", "OPENAI_MODEL"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Platform != "youtube" {
		t.Errorf("default platform = %q, want youtube", cfg.Platform)
	}
	if cfg.BotName != "StreamCopilot" {
		t.Errorf("default bot name = %q", cfg.BotName)
	}
	if cfg.ReplyDelay != 2*time.Second {
		t.Errorf("default reply delay = %v", cfg.ReplyDelay)
	}
	if cfg.MaxMessageLen != 200 {
		t.Errorf("default max message len = %d", cfg.MaxMessageLen)
	}
	if cfg.PollFloor != 10*time.Second {
		t.Errorf("default poll floor = %v", cfg.PollFloor)
	}
	if cfg.DataDir != "data" {
		t.Errorf("default data dir = %q", cfg.DataDir)
	}
}

func TestLoadInvalidPlatform(t *testing.T) {
	t.Setenv("CHAT_PLATFORM", "discord")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported platform")
	}
}

func TestAdminUsers(t *testing.T) {
	t.Setenv("CHAT_PLATFORM", "youtube")
	t.Setenv("ADMIN_USERS", " Streamer , CoMod,,")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.AdminUsers) != 2 {
		t.Fatalf("admin users = %v, want 2 entries", cfg.AdminUsers)
	}
	if !cfg.IsAdmin("Streamer") || !cfg.IsAdmin(" CoMod ") {
		t.Error("expected both admins to match")
	}
	if cfg.IsAdmin("viewer") {
		t.Error("unexpected admin match")
	}
}

func TestValidateHelpers(t *testing.T) {
	t.Setenv("CHAT_PLATFORM", "twitch")
	t.Setenv("TWITCH_CHANNEL", "somechannel")
	t.Setenv("TWITCH_BOT_USERNAME", "somebot")
	t.Setenv("TWITCH_OAUTH_TOKEN", "oauth:xyz")
	t.Setenv("YT_VIDEO_ID", "")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.ValidateTwitchReady(); err != nil {
		t.Errorf("twitch should be ready: %v", err)
	}
	if err := cfg.ValidateYouTubeReady(); err == nil {
		t.Error("youtube should not be ready without creds")
	}
}

func TestDurationEnvOverride(t *testing.T) {
	t.Setenv("CHAT_PLATFORM", "youtube")
	t.Setenv("REPLY_DELAY", "500ms")
	t.Setenv("POLL_FLOOR", "bogus")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ReplyDelay != 500*time.Millisecond {
		t.Errorf("reply delay = %v", cfg.ReplyDelay)
	}
	if cfg.PollFloor != 10*time.Second {
		t.Errorf("invalid override should keep default, got %v", cfg.PollFloor)
	}
}
