// Package transcript holds the ordered conversation shown to the user and
// notifies the host whenever it changes so the view can re-render.
package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Observer is invoked after every mutation, outside the view lock. Hosts use
// it to re-render and scroll to the newest entry.
type Observer func()

type Option func(*View)

// WithObserver registers the render hook.
func WithObserver(fn Observer) Option {
	return func(v *View) {
		v.observer = fn
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(v *View) {
		if now != nil {
			v.now = now
		}
	}
}

// View owns the transcript. The active run mutates it from its own goroutine
// while the host reads snapshots, so every access goes through mu.
type View struct {
	mu       sync.Mutex
	messages []Message
	index    map[uuid.UUID]int

	log      zerolog.Logger
	observer Observer
	now      func() time.Time
}

func New(log zerolog.Logger, opts ...Option) *View {
	v := &View{
		index: map[uuid.UUID]int{},
		log:   log.With().Str("component", "transcript").Logger(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Append adds a message at the end of the transcript and returns its id.
func (v *View) Append(speaker Speaker, body string, status Status) uuid.UUID {
	v.mu.Lock()
	if status == Pending && v.pendingForLocked(speaker) {
		v.log.Warn().Str("speaker", speaker.Label()).Msg("speaker already has a pending message")
	}
	msg := Message{
		ID:        uuid.New(),
		Speaker:   speaker,
		Body:      body,
		Status:    status,
		CreatedAt: v.now().UTC(),
	}
	if status == Final {
		msg.ResolvedAt = msg.CreatedAt
	}
	v.index[msg.ID] = len(v.messages)
	v.messages = append(v.messages, msg)
	v.mu.Unlock()

	v.notify()
	return msg.ID
}

// Resolve turns a Pending message Final with the given body. Unknown ids and
// already-final messages are left alone.
func (v *View) Resolve(id uuid.UUID, finalBody string) {
	v.settle(id, finalBody, OutcomeOK)
}

// Fail resolves a Pending message to a user-visible error.
func (v *View) Fail(id uuid.UUID, body string) {
	v.settle(id, body, OutcomeError)
}

// Cancel resolves a Pending message after its run was aborted.
func (v *View) Cancel(id uuid.UUID, body string) {
	v.settle(id, body, OutcomeCancelled)
}

func (v *View) settle(id uuid.UUID, body string, outcome Outcome) {
	v.mu.Lock()
	pos, ok := v.index[id]
	if !ok {
		v.mu.Unlock()
		v.log.Warn().Str("id", id.String()).Msg("resolve on unknown message ignored")
		return
	}
	msg := v.messages[pos]
	if msg.Status == Final {
		v.mu.Unlock()
		v.log.Warn().Str("id", id.String()).Msg("resolve on final message ignored")
		return
	}
	msg.Body = body
	msg.Status = Final
	msg.Outcome = outcome
	msg.ResolvedAt = v.now().UTC()
	v.messages[pos] = msg
	v.mu.Unlock()

	v.notify()
}

// Clear empties the transcript.
func (v *View) Clear() {
	v.mu.Lock()
	v.messages = nil
	v.index = map[uuid.UUID]int{}
	v.mu.Unlock()

	v.notify()
}

// Messages returns a snapshot in display order.
func (v *View) Messages() []Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Message, len(v.messages))
	copy(out, v.messages)
	return out
}

// Get looks up a single message by id.
func (v *View) Get(id uuid.UUID) (Message, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pos, ok := v.index[id]
	if !ok {
		return Message{}, false
	}
	return v.messages[pos], true
}

func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.messages)
}

// HasPending reports whether any entry is still awaiting its final form.
func (v *View) HasPending() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, msg := range v.messages {
		if msg.Status == Pending {
			return true
		}
	}
	return false
}

func (v *View) pendingForLocked(speaker Speaker) bool {
	key := speaker.key()
	for _, msg := range v.messages {
		if msg.Status == Pending && msg.Speaker.key() == key {
			return true
		}
	}
	return false
}

func (v *View) notify() {
	if v.observer != nil {
		v.observer()
	}
}
