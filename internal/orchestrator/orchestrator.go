// Package orchestrator drives the two conversation protocols against a
// query.Service: a single answer for chat, and a sequential panel review in
// which each participant sees the reviews of those before it.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"kusanagi/internal/query"
	"kusanagi/internal/transcript"
)

const (
	ThinkingText   = "Thinking..."
	AssemblingText = "Assembling panel..."
	CancelledText  = "Cancelled."
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhaseAwaitingService
)

func (p Phase) String() string {
	switch p {
	case PhaseSubmitting:
		return "submitting"
	case PhaseAwaitingService:
		return "awaiting service"
	default:
		return "idle"
	}
}

// Progress reports where a run is. Step counts from 1; the panel setup call
// is step 1 of a review, so a roster of three yields Total 4.
type Progress struct {
	Phase Phase
	Step  int
	Total int
	Label string
}

type ProgressFunc func(Progress)

// Result summarizes a finished run.
type Result struct {
	Failures  int
	Cancelled bool
}

type Option func(*Orchestrator)

func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) {
		o.progress = fn
	}
}

type Orchestrator struct {
	view     *transcript.View
	service  query.Service
	roster   []query.Participant
	log      zerolog.Logger
	progress ProgressFunc
}

// New builds an orchestrator. The roster is copied; every review session
// visits it in this order.
func New(view *transcript.View, service query.Service, roster []query.Participant, log zerolog.Logger, opts ...Option) *Orchestrator {
	fixed := make([]query.Participant, len(roster))
	copy(fixed, roster)
	o := &Orchestrator{
		view:    view,
		service: service,
		roster:  fixed,
		log:     log.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Roster returns a copy of the configured panel.
func (o *Orchestrator) Roster() []query.Participant {
	out := make([]query.Participant, len(o.roster))
	copy(out, o.roster)
	return out
}

// Chat runs the single-response protocol.
func (o *Orchestrator) Chat(ctx context.Context, prompt string) Result {
	return o.single(ctx, "chat", prompt, func(ctx context.Context) (string, error) {
		return o.service.Answer(ctx, prompt)
	})
}

// Summarize runs the single-response protocol over the loaded document.
// prompt is what the transcript shows as the user's turn. Backends without a
// dedicated summary prompt are asked through Answer.
func (o *Orchestrator) Summarize(ctx context.Context, prompt string) Result {
	return o.single(ctx, "summary", prompt, func(ctx context.Context) (string, error) {
		if s, ok := o.service.(query.Summarizer); ok {
			return s.Summarize(ctx)
		}
		return o.service.Answer(ctx, prompt)
	})
}

func (o *Orchestrator) single(ctx context.Context, label, prompt string, call func(context.Context) (string, error)) Result {
	defer o.report(Progress{Phase: PhaseIdle})
	o.report(Progress{Phase: PhaseSubmitting, Label: label})

	o.view.Append(transcript.User, prompt, transcript.Final)
	if ctx.Err() != nil {
		return Result{Cancelled: true}
	}
	id := o.view.Append(transcript.Assistant, ThinkingText, transcript.Pending)

	o.report(Progress{Phase: PhaseAwaitingService, Step: 1, Total: 1, Label: transcript.AssistantName})
	answer, err := call(ctx)
	if err != nil {
		if o.cancelled(ctx, id) {
			return Result{Cancelled: true}
		}
		o.log.Warn().Str("run", label).Str("code", query.ErrorCode(err)).Err(err).Msg("answer failed")
		o.view.Fail(id, query.Describe(err))
		return Result{Failures: 1}
	}
	o.view.Resolve(id, answer)
	return Result{}
}

// Participant finds a roster member by name, ignoring case.
func (o *Orchestrator) Participant(name string) (query.Participant, bool) {
	name = strings.TrimSpace(name)
	return lo.Find(o.roster, func(p query.Participant) bool {
		return strings.EqualFold(p.Name, name)
	})
}

// Review runs the panel protocol. A failing participant is marked in the
// transcript and the panel moves on; only cancellation stops it early.
func (o *Orchestrator) Review(ctx context.Context, prompt string) Result {
	return o.review(ctx, prompt, o.roster)
}

// ReviewWith runs the panel protocol with a panel of one.
func (o *Orchestrator) ReviewWith(ctx context.Context, participant query.Participant, prompt string) Result {
	return o.review(ctx, prompt, []query.Participant{participant})
}

func (o *Orchestrator) review(ctx context.Context, prompt string, roster []query.Participant) Result {
	defer o.report(Progress{Phase: PhaseIdle})
	o.report(Progress{Phase: PhaseSubmitting, Label: "panel"})

	session := newReviewSession(roster)
	total := session.Len() + 1
	result := Result{}

	o.view.Append(transcript.User, prompt, transcript.Final)
	if ctx.Err() != nil {
		return Result{Cancelled: true}
	}

	setupID := o.view.Append(transcript.Assistant, AssemblingText, transcript.Pending)
	o.report(Progress{Phase: PhaseAwaitingService, Step: 1, Total: total, Label: "panel setup"})
	if err := o.service.PreparePanel(ctx, prompt); err != nil {
		if o.cancelled(ctx, setupID) {
			return Result{Cancelled: true}
		}
		o.log.Warn().Str("code", query.ErrorCode(err)).Err(err).Msg("panel setup failed")
		o.view.Fail(setupID, "Panel setup failed: "+query.Describe(err))
		result.Failures++
	} else {
		o.view.Resolve(setupID, panelAssembled(session.Names()))
	}

	for participant, ok := session.Next(); ok; participant, ok = session.Next() {
		if ctx.Err() != nil {
			result.Cancelled = true
			return result
		}
		id := o.view.Append(transcript.Participant(participant.Name), ThinkingText, transcript.Pending)
		o.report(Progress{Phase: PhaseAwaitingService, Step: session.Position() + 1, Total: total, Label: participant.Name})

		text, err := o.service.ReviewAs(ctx, participant, prompt, session.Prior())
		if err != nil {
			if o.cancelled(ctx, id) {
				result.Cancelled = true
				return result
			}
			o.log.Warn().
				Str("participant", participant.Name).
				Str("code", query.ErrorCode(err)).
				Err(err).
				Msg("review failed")
			o.view.Fail(id, query.Describe(err))
			result.Failures++
			continue
		}
		o.view.Resolve(id, text)
		session.Record(query.Review{Participant: participant.Name, Text: text})
	}
	o.log.Info().Int("participants", session.Len()).Int("failures", result.Failures).Msg("panel complete")
	return result
}

// cancelled settles the outstanding placeholder when the run's context is
// done and reports whether it did.
func (o *Orchestrator) cancelled(ctx context.Context, id uuid.UUID) bool {
	if ctx.Err() == nil {
		return false
	}
	o.view.Cancel(id, CancelledText)
	o.log.Info().Msg("run cancelled")
	return true
}

func (o *Orchestrator) report(p Progress) {
	if o.progress != nil {
		o.progress(p)
	}
}

func panelAssembled(names []string) string {
	if len(names) == 0 {
		return "Panel assembled with no participants."
	}
	return fmt.Sprintf("Panel assembled: %s.", strings.Join(names, ", "))
}
