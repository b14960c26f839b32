package landscape

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const systemPrompt = "You are a biotech competitive-intelligence analyst. Respond with strict JSON only, no prose around it."

const defaultModel = string(anthropic.ModelClaudeSonnet4_20250514)

// Completer is the single external call the batch engine depends on.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// AnthropicMessager is the slice of the SDK client the completer uses,
// narrow enough for a test double.
type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

type AnthropicCompleter struct {
	messages AnthropicMessager
	model    string
}

func NewAnthropicCompleterFromEnv(model string) (*AnthropicCompleter, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	if model == "" {
		model = defaultModel
	}
	return &AnthropicCompleter{messages: newAnthropicClient(apiKey), model: model}, nil
}

func (a *AnthropicCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   4096,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

// pacedCompleter wraps a Completer with the registry-friendly pacing
// contract: a fixed minimum delay after every call, and on a rate-limit
// signal a fixed cooldown followed by exactly one retry.
type pacedCompleter struct {
	inner    Completer
	minDelay time.Duration
	cooldown time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

func newPacedCompleter(inner Completer, cfg Config) *pacedCompleter {
	return &pacedCompleter{
		inner:    inner,
		minDelay: cfg.MinCallDelay,
		cooldown: cfg.RateLimitCooldown,
		sleep:    sleepCtx,
	}
}

func (p *pacedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := p.inner.Complete(ctx, prompt)
	if err != nil && isRateLimited(err) {
		if serr := p.sleep(ctx, p.cooldown); serr != nil {
			return "", serr
		}
		out, err = p.inner.Complete(ctx, prompt)
	}
	// The post-call delay applies even to failed calls; a cancelled
	// context surfaces on the next call instead.
	_ = p.sleep(ctx, p.minDelay)
	return out, err
}

func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate_limit_exceeded") || strings.Contains(msg, "rate limit")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
