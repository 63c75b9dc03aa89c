// Package youtubeapi wraps Google OAuth2 client config and the YouTube Data API
// for live chat: resolving the chat id, metered polling, posting replies, and
// public stream statistics. Tokens are persisted via the provided TokenStore so
// they survive restarts and refresh transparently.
package youtubeapi

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/chat-copilot/bot"
	"github.com/onnwee/chat-copilot/config"
)

const provider = "youtube"

type TokenStore interface {
	UpsertOAuthToken(ctx context.Context, provider, access, refresh string, expiry time.Time, scope string) error
	GetOAuthToken(ctx context.Context, provider string) (access, refresh string, expiry time.Time, scope string, err error)
}

type Service struct {
	cfg   *config.Config
	store TokenStore
	oauth *oauth2.Config
}

func New(cfg *config.Config, ts TokenStore) *Service {
	scopes := []string{"https://www.googleapis.com/auth/youtube.force-ssl"}
	if cfg.YTScopes != "" {
		// allow comma or space separated
		s := strings.ReplaceAll(cfg.YTScopes, ",", " ")
		if fields := strings.Fields(s); len(fields) > 0 {
			scopes = fields
		}
	}
	oc := &oauth2.Config{
		ClientID:     cfg.YTClientID,
		ClientSecret: cfg.YTClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.YTRedirectURI,
		Scopes:       scopes,
	}
	return &Service{cfg: cfg, store: ts, oauth: oc}
}

func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	_ = s.store.UpsertOAuthToken(ctx, provider, tok.AccessToken, tok.RefreshToken, tok.Expiry, strings.Join(s.oauth.Scopes, " "))
	return tok, nil
}

func (s *Service) refreshIfNeeded(ctx context.Context) (*oauth2.Token, error) {
	access, refresh, expiry, _, err := s.store.GetOAuthToken(ctx, provider)
	if err != nil {
		return nil, &bot.AuthError{Provider: provider, Err: err}
	}
	if access == "" {
		return nil, &bot.AuthError{Provider: provider, Err: errors.New("no token stored; complete the oauth flow first")}
	}
	tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh, Expiry: expiry}
	if time.Until(tok.Expiry) > 2*time.Minute {
		return tok, nil
	}
	newTok, err := s.oauth.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, &bot.AuthError{Provider: provider, Err: err}
	}
	_ = s.store.UpsertOAuthToken(ctx, provider, newTok.AccessToken, newTok.RefreshToken, newTok.Expiry, strings.Join(s.oauth.Scopes, " "))
	return newTok, nil
}

// Client returns an authenticated YouTube Data API service.
func (s *Service) Client(ctx context.Context) (*yt.Service, error) {
	tok, err := s.refreshIfNeeded(ctx)
	if err != nil {
		return nil, err
	}
	return yt.NewService(ctx, option.WithHTTPClient(s.oauth.Client(ctx, tok)))
}
