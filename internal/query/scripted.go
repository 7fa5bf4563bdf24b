package query

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const scriptedSummary = "The paper reports the isolation of radium and polonium from pitchblende and argues that radioactivity is an atomic property."

const scriptedAnswer = "According to the document, Marie Curie was a physicist and chemist... [Source 4, Page 27]"

var scriptedReviews = map[string]string{
	"physicist":    "The theoretical models presented are sound. However, the interpretation of the diffraction data on page 12 could be clearer.",
	"chemist":      "The material synthesis section is robust and reproducible. I question the purity of the precursors mentioned in [Source 8, Page 19].",
	"chief editor": "A strong paper. The council agrees that the methodology is sound, but the conclusion needs to more directly address the chemical purity concerns raised by the Chemist.",
}

// Scripted is an offline backend with canned replies and simulated latency,
// for demos without a model server.
type Scripted struct {
	Latency time.Duration
	// Document gates Summarize the same way the model backends do.
	Document string
}

func NewScripted(latency time.Duration) *Scripted {
	return &Scripted{Latency: latency}
}

func (s *Scripted) Answer(ctx context.Context, _ string) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	return scriptedAnswer, nil
}

func (s *Scripted) Summarize(ctx context.Context) (string, error) {
	if strings.TrimSpace(s.Document) == "" {
		return "", ErrNoDocument
	}
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	return scriptedSummary, nil
}

func (s *Scripted) Models(context.Context) ([]string, error) {
	return []string{"scripted"}, nil
}

func (s *Scripted) PreparePanel(ctx context.Context, _ string) error {
	return s.wait(ctx)
}

func (s *Scripted) ReviewAs(ctx context.Context, participant Participant, _ string, prior []Review) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	if text, ok := scriptedReviews[strings.ToLower(strings.TrimSpace(participant.Name))]; ok {
		return text, nil
	}
	return fmt.Sprintf("Speaking as the %s, and having read %d earlier review(s): the document is promising but needs tighter evidence.",
		participant.Name, len(prior)), nil
}

func (s *Scripted) wait(ctx context.Context) error {
	if s.Latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
