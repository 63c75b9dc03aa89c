package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"google.golang.org/api/googleapi"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/chat-copilot/bot"
)

// LiveChat is the metered collaborator: every call spends API quota, so the
// engine uses it for polling fallback, posting, and coarse liveness only.
// Implements bot.Source (poll side), bot.Outbound, and bot.StatsProvider.
type LiveChat struct {
	svc     *Service
	videoID string

	mu         sync.Mutex
	chatID     string
	pageToken  string
	alive      bool
	aliveAt    time.Time
	statsCache *bot.StreamStats
	statsAt    time.Time
}

const statsCacheTTL = 5 * time.Minute

func NewLiveChat(svc *Service, videoID string) *LiveChat {
	return &LiveChat{svc: svc, videoID: videoID, alive: true}
}

// ResolveChatID looks up the active live chat attached to the video. An ended
// or chat-disabled stream yields bot.ErrStreamEnded.
func (l *LiveChat) ResolveChatID(ctx context.Context) error {
	client, err := l.svc.Client(ctx)
	if err != nil {
		return err
	}
	resp, err := client.Videos.List([]string{"liveStreamingDetails"}).Id(l.videoID).Context(ctx).Do()
	if err != nil {
		return classify(err)
	}
	if len(resp.Items) == 0 {
		return fmt.Errorf("video %s not found", l.videoID)
	}
	details := resp.Items[0].LiveStreamingDetails
	if details == nil || details.ActiveLiveChatId == "" || details.ActualEndTime != "" {
		return bot.ErrStreamEnded
	}
	l.mu.Lock()
	l.chatID = details.ActiveLiveChatId
	l.mu.Unlock()
	return nil
}

// NextBatch fetches the next page of chat messages. The returned duration is
// the server's polling hint; the engine clamps it to its own floor.
func (l *LiveChat) NextBatch(ctx context.Context) ([]bot.ChatEvent, time.Duration, error) {
	l.mu.Lock()
	chatID, pageToken := l.chatID, l.pageToken
	l.mu.Unlock()
	if chatID == "" {
		if err := l.ResolveChatID(ctx); err != nil {
			return nil, 0, err
		}
		l.mu.Lock()
		chatID = l.chatID
		l.mu.Unlock()
	}

	client, err := l.svc.Client(ctx)
	if err != nil {
		return nil, 0, err
	}
	call := client.LiveChatMessages.List(chatID, []string{"snippet", "authorDetails"}).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, 0, classify(err)
	}

	l.mu.Lock()
	l.pageToken = resp.NextPageToken
	l.mu.Unlock()

	var events []bot.ChatEvent
	for _, item := range resp.Items {
		if ev, ok := convertItem(item); ok {
			events = append(events, ev)
		}
	}
	hint := time.Duration(resp.PollingIntervalMillis) * time.Millisecond
	return events, hint, nil
}

// convertItem maps one API message onto a chat event. Unsupported message
// types (deletions, bans, super chats) are skipped.
func convertItem(item *yt.LiveChatMessage) (bot.ChatEvent, bool) {
	if item == nil || item.Snippet == nil || item.AuthorDetails == nil {
		return bot.ChatEvent{}, false
	}
	ev := bot.ChatEvent{
		ID:         item.Id,
		Author:     item.AuthorDetails.DisplayName,
		AuthorRef:  item.AuthorDetails.ChannelId,
		ReceivedAt: time.Now(),
		Privileged: item.AuthorDetails.IsChatModerator || item.AuthorDetails.IsChatOwner,
	}
	switch item.Snippet.Type {
	case "textMessageEvent":
		if item.Snippet.TextMessageDetails != nil {
			ev.Text = item.Snippet.TextMessageDetails.MessageText
		}
		ev.Kind = bot.KindText
	case "newSponsorEvent", "memberMilestoneChatEvent":
		ev.Kind = bot.KindMembership
	default:
		return bot.ChatEvent{}, false
	}
	return ev, true
}

// Post inserts a reply into the live chat. Returns the platform-assigned id;
// an empty id with a nil error means the platform swallowed the message.
func (l *LiveChat) Post(ctx context.Context, text string) (string, error) {
	l.mu.Lock()
	chatID := l.chatID
	l.mu.Unlock()
	if chatID == "" {
		return "", errors.New("live chat id not resolved")
	}
	client, err := l.svc.Client(ctx)
	if err != nil {
		return "", err
	}
	msg := &yt.LiveChatMessage{
		Snippet: &yt.LiveChatMessageSnippet{
			LiveChatId: chatID,
			Type:       "textMessageEvent",
			TextMessageDetails: &yt.LiveChatTextMessageDetails{
				MessageText: text,
			},
		},
	}
	resp, err := client.LiveChatMessages.Insert([]string{"snippet"}, msg).Context(ctx).Do()
	if err != nil {
		return "", classify(err)
	}
	return resp.Id, nil
}

// IsAlive re-checks the stream on a coarse cadence. Probe failures count as
// alive; only a definitive ended signal reports false.
func (l *LiveChat) IsAlive() bool {
	l.mu.Lock()
	if time.Since(l.aliveAt) < 60*time.Second {
		alive := l.alive
		l.mu.Unlock()
		return alive
	}
	l.aliveAt = time.Now()
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := l.ResolveChatID(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if errors.Is(err, bot.ErrStreamEnded) {
		l.alive = false
	} else {
		l.alive = true
	}
	return l.alive
}

// StreamStats returns viewer/like/subscriber counts, cached for five minutes.
func (l *LiveChat) StreamStats(ctx context.Context) (*bot.StreamStats, error) {
	l.mu.Lock()
	if l.statsCache != nil && time.Since(l.statsAt) < statsCacheTTL {
		st := *l.statsCache
		l.mu.Unlock()
		return &st, nil
	}
	l.mu.Unlock()

	client, err := l.svc.Client(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.Videos.List([]string{"statistics", "liveStreamingDetails", "snippet"}).Id(l.videoID).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("video %s not found", l.videoID)
	}
	item := resp.Items[0]
	st := &bot.StreamStats{}
	if item.LiveStreamingDetails != nil {
		st.Viewers = int(item.LiveStreamingDetails.ConcurrentViewers)
	}
	if item.Statistics != nil {
		st.Likes = int(item.Statistics.LikeCount)
	}
	if item.Snippet != nil && item.Snippet.ChannelId != "" {
		if ch, err := client.Channels.List([]string{"statistics"}).Id(item.Snippet.ChannelId).Context(ctx).Do(); err == nil && len(ch.Items) > 0 && ch.Items[0].Statistics != nil {
			st.Subscribers = int(ch.Items[0].Statistics.SubscriberCount)
		}
	}

	l.mu.Lock()
	l.statsCache, l.statsAt = st, time.Now()
	l.mu.Unlock()
	out := *st
	return &out, nil
}

// classify maps Google API errors onto the engine's failure taxonomy.
func classify(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	for _, e := range gerr.Errors {
		switch e.Reason {
		case "quotaExceeded", "rateLimitExceeded", "dailyLimitExceeded":
			return fmt.Errorf("%w: %v", bot.ErrQuotaExceeded, err)
		case "liveChatEnded":
			return bot.ErrStreamEnded
		}
	}
	if gerr.Code == 401 {
		return &bot.AuthError{Provider: provider, Err: err}
	}
	return err
}
