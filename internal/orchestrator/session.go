package orchestrator

import (
	"github.com/samber/lo"

	"kusanagi/internal/query"
)

// ReviewSession walks a roster snapshot in order and accumulates the reviews
// later participants receive as context. It lives for exactly one panel run.
type ReviewSession struct {
	roster  []query.Participant
	index   int
	reviews []query.Review
}

func newReviewSession(roster []query.Participant) *ReviewSession {
	fixed := make([]query.Participant, len(roster))
	copy(fixed, roster)
	return &ReviewSession{roster: fixed}
}

// Next returns the participant whose turn it is and advances the cursor.
func (s *ReviewSession) Next() (query.Participant, bool) {
	if s.index >= len(s.roster) {
		return query.Participant{}, false
	}
	p := s.roster[s.index]
	s.index++
	return p, true
}

// Position is the 1-based turn of the participant last returned by Next.
func (s *ReviewSession) Position() int {
	return s.index
}

func (s *ReviewSession) Len() int {
	return len(s.roster)
}

func (s *ReviewSession) Record(review query.Review) {
	s.reviews = append(s.reviews, review)
}

// Prior returns a copy of the reviews collected so far.
func (s *ReviewSession) Prior() []query.Review {
	out := make([]query.Review, len(s.reviews))
	copy(out, s.reviews)
	return out
}

func (s *ReviewSession) Names() []string {
	return lo.Map(s.roster, func(p query.Participant, _ int) string { return p.Name })
}
