// Package llm bridges the conversational fallback to an OpenAI-compatible
// completion API. Failures are mapped onto the engine's taxonomy so the
// dispatch loop can decide between silence, a static apology, and a skip.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/onnwee/chat-copilot/bot"
)

const maxReplyTokens = 120

// Client implements bot.Generator on top of chat completions.
type Client struct {
	completions completions
	model       string
	persona     string
}

// completions is the narrow slice of the SDK the client needs, swapped out in
// tests.
type completions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// New builds a generator. persona is the system prompt establishing the bot's
// on-stream character.
func New(apiKey, model, persona string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: api key required")
	}
	oc := openai.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		completions: &oc.Chat.Completions,
		model:       model,
		persona:     persona,
	}, nil
}

// DefaultPersona renders the standard co-host system prompt.
func DefaultPersona(botName, game, topic string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a friendly co-host in a live stream chat. ", botName)
	if game != "" {
		fmt.Fprintf(&b, "The streamer is playing %s. ", game)
	}
	if topic != "" {
		fmt.Fprintf(&b, "Today's topic is %s. ", topic)
	}
	b.WriteString("Reply in one or two short sentences, casual and upbeat. Never mention being an AI. Keep replies under 200 characters.")
	return b.String()
}

// Generate produces a reply to one chat message.
func (c *Client) Generate(ctx context.Context, author, text string) (string, error) {
	resp, err := c.completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(c.model),
		MaxCompletionTokens: openai.Int(maxReplyTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(c.persona),
			openai.UserMessage(fmt.Sprintf("%s says: %s", author, text)),
		},
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm: empty completion")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// classify maps SDK errors onto the engine's failure taxonomy.
func classify(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.StatusCode {
	case 429:
		return fmt.Errorf("%w: %v", bot.ErrRateLimited, err)
	case 401, 403:
		return &bot.AuthError{Provider: "openai", Err: err}
	default:
		return err
	}
}
