package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"kusanagi/internal/textutil"
)

const DefaultOllamaAPI = "http://127.0.0.1:11434"

type ollamaModel struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

type ollamaTags struct {
	Models []ollamaModel `json:"models"`
}

type OllamaConfig struct {
	BaseURL          string
	Model            string
	Temperature      float64
	Timeout          time.Duration
	BreakerThreshold int
	BreakerRecovery  time.Duration
	Document         string
	HTTPClient       *http.Client
}

// Ollama talks to a local Ollama server over its native HTTP API.
type Ollama struct {
	cfg     OllamaConfig
	client  *http.Client
	prompts promptBuilder
	breaker *breaker
	log     zerolog.Logger
	now     func() time.Time
}

func NewOllama(cfg OllamaConfig, log zerolog.Logger) *Ollama {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaAPI
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Ollama{
		cfg:     cfg,
		client:  client,
		prompts: newPromptBuilder(cfg.Document),
		breaker: newBreaker(cfg.BreakerThreshold, cfg.BreakerRecovery),
		log:     log.With().Str("backend", "ollama").Str("model", cfg.Model).Logger(),
		now:     time.Now,
	}
}

func (o *Ollama) Answer(ctx context.Context, prompt string) (string, error) {
	return o.chat(ctx, "answer", o.prompts.answer(prompt))
}

func (o *Ollama) ReviewAs(ctx context.Context, participant Participant, prompt string, prior []Review) (string, error) {
	return o.chat(ctx, "review:"+participant.Name, o.prompts.review(participant, prompt, prior))
}

// Summarize digests the document the backend was built with.
func (o *Ollama) Summarize(ctx context.Context) (string, error) {
	messages, err := o.prompts.summary()
	if err != nil {
		return "", err
	}
	return o.chat(ctx, "summary", messages)
}

// Models lists the pulled chat models, leaving out embedding models. It does
// not go through the breaker.
func (o *Ollama) Models(ctx context.Context) ([]string, error) {
	callCtx, cancel := o.callContext(ctx)
	defer cancel()
	var tags ollamaTags
	if err := o.do(callCtx, ctx, http.MethodGet, "/api/tags", nil, &tags); err != nil {
		return nil, err
	}
	names := lo.Uniq(lo.FilterMap(tags.Models, func(m ollamaModel, _ int) (string, bool) {
		name := strings.TrimSpace(m.Model)
		if name == "" {
			name = strings.TrimSpace(m.Name)
		}
		return name, name != "" && !strings.Contains(strings.ToLower(name), "embed")
	}))
	slices.Sort(names)
	return names, nil
}

// PreparePanel confirms the model is pulled and asks Ollama to load it so the
// first reviewer does not pay the cold-start cost.
func (o *Ollama) PreparePanel(ctx context.Context, _ string) error {
	if err := o.breaker.allow(o.now()); err != nil {
		return err
	}
	err := o.prepare(ctx)
	o.record("prepare", err)
	return err
}

func (o *Ollama) prepare(ctx context.Context) error {
	callCtx, cancel := o.callContext(ctx)
	defer cancel()

	var tags ollamaTags
	if err := o.do(callCtx, ctx, http.MethodGet, "/api/tags", nil, &tags); err != nil {
		return err
	}
	found := false
	for _, m := range tags.Models {
		if sameModel(m.Name, o.cfg.Model) || sameModel(m.Model, o.cfg.Model) {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: model %q is not available; run `ollama pull %s`", ErrServiceUnavailable, o.cfg.Model, o.cfg.Model)
	}
	warm := map[string]any{"model": o.cfg.Model, "keep_alive": "10m"}
	return o.do(callCtx, ctx, http.MethodPost, "/api/generate", warm, nil)
}

func (o *Ollama) chat(ctx context.Context, op string, messages []chatMessage) (string, error) {
	if err := o.breaker.allow(o.now()); err != nil {
		o.log.Warn().Str("op", op).Err(err).Msg("call short-circuited")
		return "", err
	}
	started := o.now()
	content, err := o.chatOnce(ctx, messages)
	o.record(op, err)
	if err == nil {
		o.log.Debug().Str("op", op).Dur("latency", o.now().Sub(started)).Msg("chat completed")
	}
	return content, err
}

func (o *Ollama) chatOnce(ctx context.Context, messages []chatMessage) (string, error) {
	callCtx, cancel := o.callContext(ctx)
	defer cancel()

	body := map[string]any{
		"model":    o.cfg.Model,
		"stream":   false,
		"messages": messages,
		"options":  map[string]any{"temperature": o.cfg.Temperature},
	}
	var parsed struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := o.do(callCtx, ctx, http.MethodPost, "/api/chat", body, &parsed); err != nil {
		return "", err
	}
	content := strings.TrimSpace(parsed.Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: ollama returned empty response content", ErrInvalidResponse)
	}
	return content, nil
}

// do performs one request under callCtx. parent is consulted to tell a user
// cancellation apart from the per-call timeout.
func (o *Ollama) do(callCtx, parent context.Context, method, path string, in any, out any) error {
	var reader io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("ollama: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(callCtx, method, o.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := o.client.Do(req)
	if err != nil {
		if parent.Err() != nil {
			return parent.Err()
		}
		return Classify(fmt.Errorf("ollama request failed on %s: %w", path, err))
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		if parent.Err() != nil {
			return parent.Err()
		}
		return Classify(fmt.Errorf("ollama read %s: %w", path, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: ollama http %d: %s", ErrServiceUnavailable, resp.StatusCode, textutil.CompactSingleLine(string(payload), 240))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: ollama returned non-json payload on %s", ErrInvalidResponse, path)
	}
	return nil
}

func (o *Ollama) Health() Health {
	return o.breaker.snapshot(o.now())
}

func (o *Ollama) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.cfg.Timeout)
}

func (o *Ollama) record(op string, err error) {
	if err == nil {
		o.breaker.recordSuccess()
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	tripped := o.breaker.recordFailure(o.now(), err.Error())
	event := o.log.Warn()
	if tripped {
		event = o.log.Error().Bool("circuit_open", true)
	}
	event.Str("op", op).Str("code", ErrorCode(err)).Err(err).Msg("ollama call failed")
}

func sameModel(a, b string) bool {
	norm := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		return strings.TrimSuffix(s, ":latest")
	}
	return norm(a) != "" && norm(a) == norm(b)
}
