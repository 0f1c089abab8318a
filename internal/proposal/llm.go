package proposal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const DefaultLLMModel = "claude-sonnet-4-5"

const systemPrompt = "You are a sales engineer preparing a proposal for a software build. You write persuasive but factual copy, never change numbers you are given, and return strict JSON only."

const maxLLMAttempts = 3

var statusCodeRe = regexp.MustCompile(`(?:status(?:\s+code)?[:=\s]+)(\d{3})`)

type llmFailureClass int

const (
	failureNone llmFailureClass = iota
	failureTimeout
	failureRateLimit
	failureServer
	failureClient
)

type LLMCaller interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
	ModelName() string
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicCaller struct {
	messages  AnthropicMessager
	model     string
	maxTokens int64
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

func NewAnthropicCaller(apiKey, model string) (*AnthropicCaller, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, NewConfigurationError("llm.api_key", "ANTHROPIC_API_KEY not configured")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultLLMModel
	}
	return &AnthropicCaller{messages: newAnthropicClient(apiKey), model: model, maxTokens: 2048}, nil
}

func (a *AnthropicCaller) ModelName() string { return a.model }

func (a *AnthropicCaller) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
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

// StageExecutor runs one LLM call with up to three attempts, feeding parse and
// validation failures back into the prompt.
type StageExecutor struct {
	caller  LLMCaller
	logger  *slog.Logger
	backoff func(attempt int) time.Duration
}

func NewStageExecutor(caller LLMCaller, logger *slog.Logger) *StageExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &StageExecutor{caller: caller, logger: logger, backoff: backoffDelay}
}

func (e *StageExecutor) ModelName() string {
	if e == nil || e.caller == nil {
		return DefaultLLMModel
	}
	return e.caller.ModelName()
}

func (e *StageExecutor) Run(ctx context.Context, stageName, prompt string, out any, validate func() error) (StageAttemptMetrics, error) {
	metrics := StageAttemptMetrics{}
	feedback := ""
	log := e.logger.With("stage", stageName, "model", e.ModelName())
	for attempt := 1; attempt <= maxLLMAttempts; attempt++ {
		metrics.Attempts = attempt
		fullPrompt := prompt
		if feedback != "" {
			fullPrompt += "\n\n" + feedback
		}

		attemptStart := time.Now()
		log.Debug("llm attempt start", "attempt", attempt)
		raw, err := e.caller.GenerateJSON(ctx, fullPrompt)
		if err != nil {
			class := classifyTransportError(err)
			log.Warn("llm transport error", "attempt", attempt, "class", class, "elapsed_ms", time.Since(attemptStart).Milliseconds(), "err", err)
			if class == failureTimeout || class == failureRateLimit || class == failureServer {
				if attempt < maxLLMAttempts {
					if werr := wait(ctx, e.backoff(attempt)); werr != nil {
						return metrics, NewUpstreamFailure(stageName+" cancelled", werr)
					}
					continue
				}
			}
			return metrics, NewUpstreamFailure(stageName+" transport failure", err)
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			log.Warn("llm empty response", "attempt", attempt)
			if attempt < maxLLMAttempts {
				metrics.ContentRetries++
				feedback = "Your previous response was empty. Return valid JSON only."
				continue
			}
			return metrics, NewUpstreamFailure(stageName+" failed: empty response", nil)
		}

		clean := stripCodeFences(raw)
		if err := json.Unmarshal([]byte(clean), out); err != nil {
			log.Warn("llm json error", "attempt", attempt, "err", err)
			if attempt < maxLLMAttempts {
				metrics.ContentRetries++
				feedback = "Your previous response was not valid JSON. Return valid JSON only."
				continue
			}
			return metrics, NewUpstreamFailure(stageName+" failed json parse", err)
		}
		if err := validate(); err != nil {
			log.Warn("llm validation error", "attempt", attempt, "err", err)
			if attempt < maxLLMAttempts {
				metrics.ContentRetries++
				feedback = fmt.Sprintf("Your response failed validation: %s. Fix and return valid JSON only.", err)
				continue
			}
			return metrics, NewUpstreamFailure(stageName+" failed validation", err)
		}
		log.Info("llm attempt success", "attempt", attempt, "elapsed_ms", time.Since(attemptStart).Milliseconds(), "response_chars", len(clean))
		return metrics, nil
	}
	return metrics, NewUpstreamFailure(stageName+" failed after retries", nil)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

func classifyTransportError(err error) llmFailureClass {
	if err == nil {
		return failureNone
	}
	msg := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return failureRateLimit
		case apiErr.StatusCode >= 500:
			return failureServer
		case apiErr.StatusCode >= 400:
			return failureClient
		}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	if m := statusCodeRe.FindStringSubmatch(msg); len(m) == 2 {
		switch {
		case m[1] == "429":
			return failureRateLimit
		case strings.HasPrefix(m[1], "5"):
			return failureServer
		case strings.HasPrefix(m[1], "4"):
			return failureClient
		}
	}
	if strings.Contains(msg, "rate limit") {
		return failureRateLimit
	}
	return failureServer
}

func backoffDelay(attempt int) time.Duration {
	switch attempt {
	case 1:
		return 1 * time.Second
	case 2:
		return 2 * time.Second
	default:
		return 4 * time.Second
	}
}

func mustJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
