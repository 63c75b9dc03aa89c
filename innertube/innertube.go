// Package innertube reads YouTube live chat through the same unmetered web
// endpoint the watch page uses. No API quota is spent; the trade-off is a
// scraped bootstrap (api key and continuation token pulled from the page HTML)
// that can break or be cut off at any time. The engine treats this source as
// best-effort and falls back to metered polling when it dies.
package innertube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/onnwee/chat-copilot/bot"
)

var (
	apiKeyRe       = regexp.MustCompile(`"INNERTUBE_API_KEY":"([^"]+)"`)
	continuationRe = regexp.MustCompile(`"continuation":"([^"]+)"`)
)

const (
	liveChatPageURL = "https://www.youtube.com/live_chat?is_popout=1&v="
	liveChatAPIURL  = "https://www.youtube.com/youtubei/v1/live_chat/get_live_chat?key="
	clientVersion   = "2.20240501.00.00"
	drainInterval   = time.Second
)

// Client streams live chat for one video. A background goroutine fetches pages
// on the server's cadence and buffers events; NextBatch drains the buffer.
// Implements bot.Source (push side).
type Client struct {
	videoID    string
	HTTPClient *http.Client

	mu           sync.Mutex
	buf          []bot.ChatEvent
	alive        bool
	apiKey       string
	continuation string
	cancel       context.CancelFunc
}

func New(videoID string) *Client {
	return &Client{videoID: videoID}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Start bootstraps from the live chat page and launches the reader goroutine.
func (c *Client) Start(ctx context.Context) error {
	if err := c.bootstrap(ctx); err != nil {
		return fmt.Errorf("innertube bootstrap: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.alive = true
	c.cancel = cancel
	c.mu.Unlock()
	go c.readLoop(ctx)
	return nil
}

// Stop halts the reader goroutine.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	c.alive = false
}

// NextBatch drains whatever the reader has buffered since the last call.
func (c *Client) NextBatch(ctx context.Context) ([]bot.ChatEvent, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive && len(c.buf) == 0 {
		return nil, drainInterval, fmt.Errorf("innertube reader stopped")
	}
	out := c.buf
	c.buf = nil
	return out, drainInterval, nil
}

// IsAlive reports whether the reader goroutine is still running.
func (c *Client) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

func (c *Client) bootstrap(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, liveChatPageURL+c.videoID, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("live chat page status %d", resp.StatusCode)
	}
	var page bytes.Buffer
	if _, err := page.ReadFrom(resp.Body); err != nil {
		return err
	}
	key := apiKeyRe.FindSubmatch(page.Bytes())
	cont := continuationRe.FindSubmatch(page.Bytes())
	if key == nil || cont == nil {
		return fmt.Errorf("live chat page missing bootstrap tokens (chat disabled or stream over)")
	}
	c.mu.Lock()
	c.apiKey = string(key[1])
	c.continuation = string(cont[1])
	c.mu.Unlock()
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.alive = false
		c.mu.Unlock()
	}()
	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}
		events, wait, err := c.fetchPage(ctx)
		if err != nil {
			failures++
			slog.Warn("innertube fetch failed", slog.Int("failures", failures), slog.Any("err", err))
			if failures >= 5 {
				slog.Info("innertube reader giving up")
				return
			}
			wait = time.Duration(failures) * 2 * time.Second
		} else {
			failures = 0
			if len(events) > 0 {
				c.mu.Lock()
				c.buf = append(c.buf, events...)
				c.mu.Unlock()
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

type chatResponse struct {
	ContinuationContents struct {
		LiveChatContinuation struct {
			Continuations []struct {
				TimedContinuationData struct {
					TimeoutMs    int    `json:"timeoutMs"`
					Continuation string `json:"continuation"`
				} `json:"timedContinuationData"`
				InvalidationContinuationData struct {
					TimeoutMs    int    `json:"timeoutMs"`
					Continuation string `json:"continuation"`
				} `json:"invalidationContinuationData"`
			} `json:"continuations"`
			Actions []struct {
				AddChatItemAction struct {
					Item struct {
						LiveChatTextMessageRenderer    *textRenderer       `json:"liveChatTextMessageRenderer"`
						LiveChatMembershipItemRenderer *membershipRenderer `json:"liveChatMembershipItemRenderer"`
					} `json:"item"`
				} `json:"addChatItemAction"`
			} `json:"actions"`
		} `json:"liveChatContinuation"`
	} `json:"continuationContents"`
}

type textRenderer struct {
	ID         string     `json:"id"`
	Message    runs       `json:"message"`
	AuthorName simpleText `json:"authorName"`
	AuthorID   string     `json:"authorExternalChannelId"`
	Timestamp  string     `json:"timestampUsec"`
	Badges     []struct {
		LiveChatAuthorBadgeRenderer struct {
			Icon struct {
				IconType string `json:"iconType"`
			} `json:"icon"`
		} `json:"liveChatAuthorBadgeRenderer"`
	} `json:"authorBadges"`
}

type membershipRenderer struct {
	ID         string     `json:"id"`
	AuthorName simpleText `json:"authorName"`
	AuthorID   string     `json:"authorExternalChannelId"`
	Timestamp  string     `json:"timestampUsec"`
}

type simpleText struct {
	SimpleText string `json:"simpleText"`
}

type runs struct {
	Runs []struct {
		Text  string `json:"text"`
		Emoji struct {
			Shortcuts []string `json:"shortcuts"`
		} `json:"emoji"`
	} `json:"runs"`
}

func (r runs) text() string {
	var b bytes.Buffer
	for _, run := range r.Runs {
		if run.Text != "" {
			b.WriteString(run.Text)
		} else if len(run.Emoji.Shortcuts) > 0 {
			b.WriteString(run.Emoji.Shortcuts[0])
		}
	}
	return b.String()
}

func (c *Client) fetchPage(ctx context.Context) ([]bot.ChatEvent, time.Duration, error) {
	c.mu.Lock()
	apiKey, continuation := c.apiKey, c.continuation
	c.mu.Unlock()

	payload := map[string]any{
		"context": map[string]any{
			"client": map[string]any{
				"clientName":    "WEB",
				"clientVersion": clientVersion,
			},
		},
		"continuation": continuation,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, liveChatAPIURL+apiKey, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0")
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("get_live_chat status %d", resp.StatusCode)
	}
	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, 0, err
	}

	cont := cr.ContinuationContents.LiveChatContinuation
	wait := drainInterval
	next := ""
	for _, cc := range cont.Continuations {
		if cc.TimedContinuationData.Continuation != "" {
			next = cc.TimedContinuationData.Continuation
			wait = time.Duration(cc.TimedContinuationData.TimeoutMs) * time.Millisecond
			break
		}
		if cc.InvalidationContinuationData.Continuation != "" {
			next = cc.InvalidationContinuationData.Continuation
			wait = time.Duration(cc.InvalidationContinuationData.TimeoutMs) * time.Millisecond
			break
		}
	}
	if next == "" {
		return nil, 0, fmt.Errorf("no continuation (chat closed)")
	}
	c.mu.Lock()
	c.continuation = next
	c.mu.Unlock()
	if wait <= 0 {
		wait = drainInterval
	}

	var events []bot.ChatEvent
	for _, action := range cont.Actions {
		if r := action.AddChatItemAction.Item.LiveChatTextMessageRenderer; r != nil {
			events = append(events, convertText(r))
		} else if m := action.AddChatItemAction.Item.LiveChatMembershipItemRenderer; m != nil {
			events = append(events, bot.ChatEvent{
				ID:         m.ID,
				Author:     m.AuthorName.SimpleText,
				AuthorRef:  m.AuthorID,
				ReceivedAt: parseUsec(m.Timestamp),
				Kind:       bot.KindMembership,
			})
		}
	}
	return events, wait, nil
}

func convertText(r *textRenderer) bot.ChatEvent {
	ev := bot.ChatEvent{
		ID:         r.ID,
		Author:     r.AuthorName.SimpleText,
		AuthorRef:  r.AuthorID,
		Text:       r.Message.text(),
		ReceivedAt: parseUsec(r.Timestamp),
		Kind:       bot.KindText,
	}
	for _, b := range r.Badges {
		switch b.LiveChatAuthorBadgeRenderer.Icon.IconType {
		case "MODERATOR", "OWNER":
			ev.Privileged = true
		}
	}
	return ev
}

func parseUsec(s string) time.Time {
	usec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.UnixMicro(usec)
}
