package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestClassifyMapsTransportErrors(t *testing.T) {
	cases := []struct {
		raw  error
		want error
	}{
		{errors.New("ollama request failed on /api/chat: dial tcp 127.0.0.1:11434: connect: connection refused"), ErrServiceUnavailable},
		{fmt.Errorf("ollama request failed: %w", context.DeadlineExceeded), ErrTimeout},
		{errors.New("read: connection timed out"), ErrTimeout},
		{errors.New("ollama returned non-json payload"), ErrInvalidResponse},
		{errors.New("unexpected EOF"), ErrServiceUnavailable},
	}
	for _, tc := range cases {
		require.ErrorIs(t, Classify(tc.raw), tc.want, tc.raw.Error())
	}
}

func TestClassifyPassesThrough(t *testing.T) {
	req := require.New(t)
	req.Nil(Classify(nil))
	req.Equal(context.Canceled, Classify(context.Canceled))
	already := fmt.Errorf("%w: busy", ErrTimeout)
	req.Equal(already, Classify(already))
}

func TestDescribeIsUserFacing(t *testing.T) {
	req := require.New(t)
	req.Equal("Cancelled.", Describe(context.Canceled))
	req.Contains(Describe(fmt.Errorf("%w: x", ErrTimeout)), "did not answer in time")
	req.Contains(Describe(fmt.Errorf("%w: connection refused", ErrServiceUnavailable)), "unavailable")
	req.Contains(Describe(fmt.Errorf("%w: garbage", ErrInvalidResponse)), "could not be read")
	req.Empty(Describe(nil))
}

func TestErrorCode(t *testing.T) {
	req := require.New(t)
	req.Equal("ok", ErrorCode(nil))
	req.Equal("timeout", ErrorCode(fmt.Errorf("%w", ErrTimeout)))
	req.Equal("service_unavailable", ErrorCode(ErrServiceUnavailable))
	req.Equal("cancelled", ErrorCode(context.Canceled))
	req.Equal("unknown", ErrorCode(errors.New("odd")))
}

func TestBreakerTripsAndRecovers(t *testing.T) {
	req := require.New(t)
	b := newBreaker(2, 30*time.Second)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	req.NoError(b.allow(now))
	req.False(b.recordFailure(now, "connection refused"))
	req.True(b.recordFailure(now, "connection refused"))
	req.True(b.snapshot(now.Add(10 * time.Second)).Open)

	err := b.allow(now.Add(10 * time.Second))
	req.ErrorIs(err, ErrServiceUnavailable)
	req.Contains(err.Error(), "connection refused")

	req.NoError(b.allow(now.Add(31 * time.Second)))
	b.recordSuccess()
	health := b.snapshot(now.Add(31 * time.Second))
	req.False(health.Open)
	req.Equal(1, health.Trips)
}

func TestBreakerClampsSettings(t *testing.T) {
	req := require.New(t)
	b := newBreaker(0, 0)
	req.Equal(1, b.threshold)
	req.Equal(time.Second, b.recovery)
}

func TestPromptBuilderAnswer(t *testing.T) {
	req := require.New(t)
	plain := newPromptBuilder("").answer("  What is this?  ")
	req.Equal(chatPrompt, plain[0].Content)
	req.Equal("What is this?", plain[1].Content)

	withDoc := newPromptBuilder("[Page 1]: Radium glows.").answer("What glows?")
	req.Contains(withDoc[0].Content, "--- CONTEXT ---\n[Page 1]: Radium glows.")
}

func TestPromptBuilderReview(t *testing.T) {
	req := require.New(t)
	builder := newPromptBuilder(strings.Repeat("x", documentMaxChars+50))
	req.Len(builder.document, documentMaxChars)

	msgs := builder.review(Participant{Name: "Chemist"}, "Review my paper", nil)
	req.Contains(msgs[0].Content, "perspective of a Chemist")
	req.Contains(msgs[1].Content, "(you are the first reviewer)")
	req.Contains(msgs[1].Content, "--- DOCUMENT ---")
}

func TestPromptBuilderKeepsMultibyteDocumentValid(t *testing.T) {
	req := require.New(t)
	builder := newPromptBuilder(strings.Repeat("é", documentMaxChars))
	req.True(utf8.ValidString(builder.document))
	req.LessOrEqual(len(builder.document), documentMaxChars)

	msgs := builder.answer("q")
	req.True(utf8.ValidString(msgs[0].Content))

	summary, err := builder.summary()
	req.NoError(err)
	req.True(utf8.ValidString(summary[1].Content))

	desc := Describe(fmt.Errorf("%w: %s", ErrServiceUnavailable, strings.Repeat("ü", 300)))
	req.True(utf8.ValidString(desc))
}

func TestPromptBuilderSummaryNeedsDocument(t *testing.T) {
	req := require.New(t)
	_, err := newPromptBuilder("  ").summary()
	req.ErrorIs(err, ErrNoDocument)

	msgs, err := newPromptBuilder("[Page 1]: Radium glows.").summary()
	req.NoError(err)
	req.Equal(summaryPrompt, msgs[0].Content)
	req.Contains(msgs[1].Content, "Radium glows.")
}

func TestScriptedBackend(t *testing.T) {
	req := require.New(t)
	backend := NewScripted(0)
	ctx := context.Background()

	answer, err := backend.Answer(ctx, "anything")
	req.NoError(err)
	req.Contains(answer, "Marie Curie")
	req.NoError(backend.PreparePanel(ctx, ""))

	review, err := backend.ReviewAs(ctx, Participant{Name: "Chief Editor"}, "", nil)
	req.NoError(err)
	req.Contains(review, "The council agrees")

	review, err = backend.ReviewAs(ctx, Participant{Name: "Editor"}, "", []Review{{}, {}})
	req.NoError(err)
	req.Contains(review, "2 earlier review(s)")
}

func TestScriptedHonoursCancellation(t *testing.T) {
	backend := NewScripted(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := backend.Answer(ctx, "hi")
	require.ErrorIs(t, err, context.Canceled)
}

func TestBreakerSnapshot(t *testing.T) {
	req := require.New(t)
	b := newBreaker(1, time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	b.recordSuccess()
	req.True(b.recordFailure(now, "http 500"))

	h := b.snapshot(now.Add(time.Second))
	req.True(h.Open)
	req.Equal(1, h.Trips)
	req.Equal(1, h.Successes)
	req.Equal("http 500", h.LastError)
	req.Equal(now, h.LastOpenedAt)
	req.False(b.snapshot(now.Add(2 * time.Minute)).Open)
}
