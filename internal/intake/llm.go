package intake

import (
	"context"
	"errors"
	"log"
	"net"
	"os"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const systemPrompt = "You are an invoicing assistant for a small merchant. You convert order messages " +
	"into structured invoices using only facts present in the message and the provided catalog. " +
	"You do not invent customers, products or prices. Return strict JSON only."

const (
	DefaultLLMModel    = "claude-sonnet-4-5"
	DefaultTemperature = 0.2
	DefaultCallTimeout = 60 * time.Second

	baseMaxTokens = 1500
	maxMaxTokens  = 4096
)

type LLMCaller interface {
	GenerateJSON(ctx context.Context, prompt string, maxTokens int) (string, error)
	ModelName() string
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicCaller struct {
	messages    AnthropicMessager
	model       string
	temperature float64
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

func NewAnthropicCallerFromEnv() (*AnthropicCaller, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	model := strings.TrimSpace(os.Getenv("FAKTURO_LLM_MODEL"))
	if model == "" {
		model = DefaultLLMModel
	}
	return &AnthropicCaller{messages: newAnthropicClient(apiKey), model: model, temperature: DefaultTemperature}, nil
}

func (a *AnthropicCaller) ModelName() string { return a.model }

func (a *AnthropicCaller) GenerateJSON(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 || maxTokens > maxMaxTokens {
		maxTokens = maxMaxTokens
	}
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   int64(maxTokens),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(a.temperature),
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

// maxTokensForCatalog sizes the completion budget to the serialized catalog:
// longer catalogs produce longer item arrays.
func maxTokensForCatalog(catalogChars int) int {
	budget := baseMaxTokens + catalogChars/4
	if budget > maxMaxTokens {
		return maxMaxTokens
	}
	return budget
}

// callWithRetry gives transient transport failures one more chance before the
// caller falls back to the deterministic draft. Content problems (bad JSON)
// are not retried here; the fallback handles them.
func callWithRetry(ctx context.Context, caller LLMCaller, prompt string, maxTokens int) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		start := time.Now()
		raw, err := caller.GenerateJSON(ctx, prompt, maxTokens)
		if err == nil {
			log.Printf("intake llm_call_ok attempt=%d elapsed_ms=%d response_chars=%d", attempt, time.Since(start).Milliseconds(), len(raw))
			return raw, nil
		}
		lastErr = err
		log.Printf("intake llm_call_error attempt=%d elapsed_ms=%d err=%q", attempt, time.Since(start).Milliseconds(), err.Error())
		if !isTransient(err) || ctx.Err() != nil || attempt == 2 {
			break
		}
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	return "", lastErr
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "status 5") || strings.Contains(msg, "server error") ||
		strings.Contains(msg, "overloaded")
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}
