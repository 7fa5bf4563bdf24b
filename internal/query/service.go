// Package query defines the backend contract the conversation driver talks to
// and the implementations that satisfy it: a local Ollama server, any
// OpenAI-compatible endpoint, and an offline scripted backend.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kusanagi/internal/textutil"
)

// Participant is one reviewer persona on the panel roster.
type Participant struct {
	Name  string `yaml:"name" validate:"required"`
	Brief string `yaml:"brief"`
}

// Review is a finished contribution handed to later participants as context.
type Review struct {
	Participant string
	Text        string
}

// Service answers chat prompts and produces panel reviews. Every call blocks
// until the backend replies, fails, or ctx is done; timeouts and retries are
// the implementation's business.
type Service interface {
	Answer(ctx context.Context, prompt string) (string, error)
	PreparePanel(ctx context.Context, prompt string) error
	ReviewAs(ctx context.Context, participant Participant, prompt string, prior []Review) (string, error)
}

var (
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("timeout")
	ErrInvalidResponse    = errors.New("invalid response")
	ErrNoDocument         = errors.New("no document loaded")
)

// Summarizer is implemented by backends that can digest the loaded document
// with a dedicated prompt.
type Summarizer interface {
	Summarize(ctx context.Context) (string, error)
}

// ModelLister is implemented by backends that can enumerate the models they
// serve.
type ModelLister interface {
	Models(ctx context.Context) ([]string, error)
}

// Describe turns a backend failure into the text shown in place of the
// pending message.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.Canceled):
		return "Cancelled."
	case errors.Is(err, ErrNoDocument):
		return "No document is loaded. Start with --document <file> to summarize one."
	case errors.Is(err, ErrTimeout):
		return "The backend did not answer in time. Try again, or raise --timeout."
	case errors.Is(err, ErrInvalidResponse):
		return "The backend sent a reply that could not be read: " + detail(err)
	case errors.Is(err, ErrServiceUnavailable):
		return "The backend is unavailable: " + detail(err)
	default:
		return "Request failed: " + detail(err)
	}
}

func detail(err error) string {
	return textutil.CompactSingleLine(err.Error(), 200)
}

// ErrorCode is the short label written to logs and the status line.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrNoDocument):
		return "no_document"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, ErrServiceUnavailable):
		return "service_unavailable"
	default:
		return "unknown"
	}
}

// Classify maps a raw transport error onto the taxonomy. Errors already in
// the taxonomy and context cancellation pass through untouched.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrInvalidResponse) || errors.Is(err, ErrNoDocument) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	normalized := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(normalized, "deadline exceeded"), strings.Contains(normalized, "timed out"):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case strings.Contains(normalized, "non-json"), strings.Contains(normalized, "empty response"):
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	default:
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
}
