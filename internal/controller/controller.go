// Package controller turns user submissions into orchestrator runs and owns
// the input gate: one run at a time, input disabled while it is in flight and
// re-enabled exactly once when it ends.
package controller

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kusanagi/internal/orchestrator"
	"kusanagi/internal/query"
)

// DefaultReviewPrompt is used when a panel is convened with an empty input.
const DefaultReviewPrompt = "Provide a general peer review of this document."

// SummaryPrompt is the user turn recorded for a document summary.
const SummaryPrompt = "Provide a concise summary of the document."

type Mode int

const (
	ModeChat Mode = iota
	ModeReview
	ModeSummarize
)

func (m Mode) String() string {
	switch m {
	case ModeReview:
		return "review"
	case ModeSummarize:
		return "summary"
	default:
		return "chat"
	}
}

// Runner executes the protocols.
type Runner interface {
	Chat(ctx context.Context, prompt string) orchestrator.Result
	Summarize(ctx context.Context, prompt string) orchestrator.Result
	Review(ctx context.Context, prompt string) orchestrator.Result
	ReviewWith(ctx context.Context, participant query.Participant, prompt string) orchestrator.Result
}

// Gate is the host side of the input control. Enabling should also return
// focus to the input.
type Gate interface {
	SetInputEnabled(enabled bool)
}

type GateFunc func(enabled bool)

func (f GateFunc) SetInputEnabled(enabled bool) {
	f(enabled)
}

type Controller struct {
	runner Runner
	gate   Gate
	log    zerolog.Logger

	mu     sync.Mutex
	busy   bool
	cancel context.CancelFunc
	runs   int
}

func New(runner Runner, gate Gate, log zerolog.Logger) *Controller {
	return &Controller{
		runner: runner,
		gate:   gate,
		log:    log.With().Str("component", "controller").Logger(),
	}
}

// Normalize trims the raw input and applies the mode's rules. Chat ignores
// empty input; review falls back to DefaultReviewPrompt; a summary always
// uses SummaryPrompt.
func Normalize(raw string, mode Mode) (string, bool) {
	if mode == ModeSummarize {
		return SummaryPrompt, true
	}
	prompt := strings.TrimSpace(raw)
	if prompt != "" {
		return prompt, true
	}
	if mode == ModeReview {
		return DefaultReviewPrompt, true
	}
	return "", false
}

// Submit runs one protocol to completion and reports whether a run started.
// It returns false without side effects for empty chat input or when another
// run is still in flight.
func (c *Controller) Submit(ctx context.Context, raw string, mode Mode) bool {
	prompt, ok := Normalize(raw, mode)
	if !ok {
		return false
	}
	return c.run(ctx, mode, "", func(runCtx context.Context) orchestrator.Result {
		switch mode {
		case ModeReview:
			return c.runner.Review(runCtx, prompt)
		case ModeSummarize:
			return c.runner.Summarize(runCtx, prompt)
		default:
			return c.runner.Chat(runCtx, prompt)
		}
	})
}

// SubmitTo asks a single panel member for a review. Empty input falls back
// to DefaultReviewPrompt.
func (c *Controller) SubmitTo(ctx context.Context, participant query.Participant, raw string) bool {
	prompt, _ := Normalize(raw, ModeReview)
	return c.run(ctx, ModeReview, participant.Name, func(runCtx context.Context) orchestrator.Result {
		return c.runner.ReviewWith(runCtx, participant, prompt)
	})
}

func (c *Controller) run(ctx context.Context, mode Mode, participant string, fn func(context.Context) orchestrator.Result) bool {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		c.log.Debug().Str("mode", mode.String()).Msg("submit ignored while a run is in flight")
		return false
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.busy = true
	c.cancel = cancel
	c.runs++
	run := c.runs
	c.mu.Unlock()

	c.gate.SetInputEnabled(false)
	started := time.Now()
	defer func() {
		cancel()
		c.mu.Lock()
		c.busy = false
		c.cancel = nil
		c.mu.Unlock()
		c.gate.SetInputEnabled(true)
	}()

	result := fn(runCtx)

	event := c.log.Info().
		Int("run", run).
		Str("mode", mode.String())
	if participant != "" {
		event = event.Str("participant", participant)
	}
	event.
		Int("failures", result.Failures).
		Bool("cancelled", result.Cancelled).
		Dur("elapsed", time.Since(started)).
		Msg("run finished")
	return true
}

// Cancel aborts the in-flight run, if any.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	return true
}

func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}
