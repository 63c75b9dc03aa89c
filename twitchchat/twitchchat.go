// Package twitchchat adapts a Twitch IRC connection to the engine's source and
// outbound interfaces. IRC is push-style and unmetered, so there is no poll
// fallback on this platform; a dropped connection is retried by the underlying
// client and surfaces as a temporarily dead source in between.
package twitchchat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chat-copilot/bot"
)

// Client implements bot.Source (push) and bot.Outbound over one IRC channel.
// Twitch IRC does not echo message ids back to the sender, so Post returns a
// synthetic id; self-echo is caught by author-name matching instead.
type Client struct {
	channel string
	irc     *twitch.Client

	mu        sync.Mutex
	buf       []bot.ChatEvent
	connected bool
	seq       int
}

func New(username, oauthToken, channel string) *Client {
	c := &Client{
		channel: channel,
		irc:     twitch.NewClient(username, oauthToken),
	}
	c.irc.OnPrivateMessage(c.onMessage)
	c.irc.OnConnect(func() {
		slog.Info("twitch irc connected", slog.String("channel", channel))
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
	})
	c.irc.Join(channel)
	return c
}

// Start connects in a background goroutine; Connect blocks for the lifetime of
// the IRC session.
func (c *Client) Start(ctx context.Context) error {
	go func() {
		if err := c.irc.Connect(); err != nil {
			slog.Warn("twitch irc disconnected", slog.Any("err", err))
		}
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()
	go func() {
		<-ctx.Done()
		if err := c.irc.Disconnect(); err != nil {
			slog.Debug("twitch irc disconnect", slog.Any("err", err))
		}
	}()
	return nil
}

func (c *Client) onMessage(msg twitch.PrivateMessage) {
	ev := bot.ChatEvent{
		ID:         msg.ID,
		Author:     msg.User.DisplayName,
		AuthorRef:  msg.User.ID,
		Text:       msg.Message,
		ReceivedAt: msg.Time,
		Kind:       bot.KindText,
	}
	if ev.Author == "" {
		ev.Author = msg.User.Name
	}
	if _, ok := msg.User.Badges["moderator"]; ok {
		ev.Privileged = true
	}
	if _, ok := msg.User.Badges["broadcaster"]; ok {
		ev.Privileged = true
	}
	c.mu.Lock()
	c.buf = append(c.buf, ev)
	c.mu.Unlock()
}

// NextBatch drains buffered messages.
func (c *Client) NextBatch(ctx context.Context) ([]bot.ChatEvent, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.buf
	c.buf = nil
	return out, time.Second, nil
}

// IsAlive reports whether the IRC session is currently connected.
func (c *Client) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Post sends text to the channel. IRC gives no delivery receipt, so a
// synthetic id stands in for the platform-assigned one.
func (c *Client) Post(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	connected := c.connected
	c.seq++
	id := fmt.Sprintf("irc-%d", c.seq)
	c.mu.Unlock()
	if !connected {
		return "", nil
	}
	c.irc.Say(c.channel, text)
	return id, nil
}
