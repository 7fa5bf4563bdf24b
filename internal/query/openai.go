package query

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

type OpenAIConfig struct {
	BaseURL          string
	APIKey           string
	Model            string
	Temperature      float64
	Timeout          time.Duration
	BreakerThreshold int
	BreakerRecovery  time.Duration
	Document         string
}

// OpenAI serves any endpoint speaking the chat completions API, including
// Ollama's /v1 compatibility layer. Without an explicit key the SDK reads
// OPENAI_API_KEY.
type OpenAI struct {
	client  openai.Client
	cfg     OpenAIConfig
	prompts promptBuilder
	breaker *breaker
	log     zerolog.Logger
	now     func() time.Time
}

func NewOpenAI(cfg OpenAIConfig, log zerolog.Logger) *OpenAI {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAI{
		client:  openai.NewClient(opts...),
		cfg:     cfg,
		prompts: newPromptBuilder(cfg.Document),
		breaker: newBreaker(cfg.BreakerThreshold, cfg.BreakerRecovery),
		log:     log.With().Str("backend", "openai").Str("model", cfg.Model).Logger(),
		now:     time.Now,
	}
}

func (o *OpenAI) Answer(ctx context.Context, prompt string) (string, error) {
	return o.complete(ctx, "answer", o.prompts.answer(prompt))
}

func (o *OpenAI) ReviewAs(ctx context.Context, participant Participant, prompt string, prior []Review) (string, error) {
	return o.complete(ctx, "review:"+participant.Name, o.prompts.review(participant, prompt, prior))
}

func (o *OpenAI) Summarize(ctx context.Context) (string, error) {
	messages, err := o.prompts.summary()
	if err != nil {
		return "", err
	}
	return o.complete(ctx, "summary", messages)
}

// Models lists the model ids the endpoint serves.
func (o *OpenAI) Models(ctx context.Context) ([]string, error) {
	page, err := o.client.Models.List(ctx)
	if err != nil {
		return nil, o.classify(ctx, err)
	}
	names := lo.Map(page.Data, func(m openai.Model, _ int) string { return m.ID })
	slices.Sort(names)
	return names, nil
}

// PreparePanel checks that the configured model is served by the endpoint.
func (o *OpenAI) PreparePanel(ctx context.Context, _ string) error {
	if err := o.breaker.allow(o.now()); err != nil {
		return err
	}
	_, err := o.client.Models.Get(ctx, o.cfg.Model)
	err = o.classify(ctx, err)
	o.record("prepare", err)
	return err
}

func (o *OpenAI) complete(ctx context.Context, op string, messages []chatMessage) (string, error) {
	if err := o.breaker.allow(o.now()); err != nil {
		o.log.Warn().Str("op", op).Err(err).Msg("call short-circuited")
		return "", err
	}
	params := openai.ChatCompletionNewParams{
		Model:       o.cfg.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(o.cfg.Temperature),
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		err = o.classify(ctx, err)
		o.record(op, err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		err = fmt.Errorf("%w: completion carried no choices", ErrInvalidResponse)
		o.record(op, err)
		return "", err
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		err = fmt.Errorf("%w: completion returned empty response content", ErrInvalidResponse)
		o.record(op, err)
		return "", err
	}
	o.record(op, nil)
	return content, nil
}

func (o *OpenAI) classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode == http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		case apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		default:
			return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
	}
	return Classify(err)
}

func (o *OpenAI) Health() Health {
	return o.breaker.snapshot(o.now())
}

func (o *OpenAI) record(op string, err error) {
	if err == nil {
		o.breaker.recordSuccess()
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	tripped := o.breaker.recordFailure(o.now(), err.Error())
	o.log.Warn().Str("op", op).Str("code", ErrorCode(err)).Bool("circuit_open", tripped).Err(err).Msg("completion failed")
}

func toOpenAIMessages(messages []chatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			out = append(out, openai.SystemMessage(msg.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
