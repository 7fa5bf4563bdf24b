package transcript

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	return func() time.Time {
		at = at.Add(time.Second)
		return at
	}
}

func TestAppendKeepsInsertionOrder(t *testing.T) {
	req := require.New(t)
	view := New(zerolog.Nop(), WithClock(fixedClock()))

	first := view.Append(User, "Review my paper", Final)
	second := view.Append(Assistant, "Thinking...", Pending)
	third := view.Append(Participant("Physicist"), "Thinking...", Pending)

	messages := view.Messages()
	req.Len(messages, 3)
	req.Equal([]uuid.UUID{first, second, third}, []uuid.UUID{messages[0].ID, messages[1].ID, messages[2].ID})
	req.Equal(Final, messages[0].Status)
	req.True(messages[1].IsPending())
	req.True(messages[0].CreatedAt.Before(messages[1].CreatedAt))
}

func TestResolveReplacesPendingInPlace(t *testing.T) {
	req := require.New(t)
	view := New(zerolog.Nop())

	view.Append(User, "hello", Final)
	id := view.Append(Assistant, "Thinking...", Pending)
	view.Append(Participant("Chemist"), "Thinking...", Pending)

	view.Resolve(id, "According to the document...")

	messages := view.Messages()
	req.Len(messages, 3)
	req.Equal(id, messages[1].ID)
	req.Equal("According to the document...", messages[1].Body)
	req.Equal(Final, messages[1].Status)
	req.Equal(OutcomeOK, messages[1].Outcome)
	req.False(messages[1].ResolvedAt.IsZero())
}

func TestResolveUnknownOrFinalIsNoop(t *testing.T) {
	req := require.New(t)
	notified := 0
	view := New(zerolog.Nop(), WithObserver(func() { notified++ }))

	id := view.Append(Assistant, "Thinking...", Pending)
	view.Resolve(id, "done")
	before := view.Messages()
	notifiedBefore := notified

	view.Resolve(id, "overwritten")
	view.Fail(id, "overwritten")
	view.Resolve(uuid.New(), "ghost")

	req.Equal(before, view.Messages())
	req.Equal(notifiedBefore, notified)
}

func TestFailAndCancelRecordOutcome(t *testing.T) {
	req := require.New(t)
	view := New(zerolog.Nop())

	failed := view.Append(Participant("Chemist"), "Thinking...", Pending)
	cancelled := view.Append(Participant("Chief Editor"), "Thinking...", Pending)
	view.Fail(failed, "The backend is unavailable.")
	view.Cancel(cancelled, "Cancelled.")

	msg, ok := view.Get(failed)
	req.True(ok)
	req.True(msg.Failed())
	msg, ok = view.Get(cancelled)
	req.True(ok)
	req.Equal(OutcomeCancelled, msg.Outcome)
	req.False(view.HasPending())
}

func TestObserverRunsOnEveryMutation(t *testing.T) {
	req := require.New(t)
	notified := 0
	view := New(zerolog.Nop(), WithObserver(func() { notified++ }))

	id := view.Append(Assistant, "Thinking...", Pending)
	view.Resolve(id, "ok")
	view.Clear()

	req.Equal(3, notified)
	req.Zero(view.Len())
}

func TestClearDropsIndex(t *testing.T) {
	req := require.New(t)
	view := New(zerolog.Nop())

	id := view.Append(Assistant, "Thinking...", Pending)
	view.Clear()
	view.Resolve(id, "late")

	req.Zero(view.Len())
	_, ok := view.Get(id)
	req.False(ok)
}

func TestSpeakerLabels(t *testing.T) {
	req := require.New(t)
	req.Equal("You", User.Label())
	req.Equal(AssistantName, Assistant.Label())
	req.Equal("Chief Editor", Participant("  Chief Editor ").Label())
	req.Equal("PH", Participant("Physicist").Avatar())
	req.Equal("AI", Assistant.Avatar())
}

func TestExportFormats(t *testing.T) {
	req := require.New(t)
	view := New(zerolog.Nop(), WithClock(fixedClock()))
	view.Append(User, "What did Curie study?", Final)
	id := view.Append(Assistant, "Thinking...", Pending)
	view.Fail(id, "The backend timed out.")
	view.Append(Participant("Physicist"), "Thinking...", Pending)

	var text bytes.Buffer
	req.NoError(view.Export(&text, FormatText))
	req.Contains(text.String(), "You: What did Curie study?")
	req.Contains(text.String(), AssistantName+": The backend timed out. (error)")
	req.Contains(text.String(), "Physicist: Thinking... (pending)")

	var md bytes.Buffer
	req.NoError(view.Export(&md, FormatMarkdown))
	req.True(strings.HasPrefix(md.String(), "**You**"))
	req.Contains(md.String(), "**Physicist**")
}

func TestParseFormat(t *testing.T) {
	req := require.New(t)
	for raw, want := range map[string]Format{"": FormatText, "txt": FormatText, "MD": FormatMarkdown, "markdown": FormatMarkdown} {
		got, err := ParseFormat(raw)
		req.NoError(err)
		req.Equal(want, got, raw)
	}
	_, err := ParseFormat("pdf")
	req.Error(err)
}
