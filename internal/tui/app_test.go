package tui

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"kusanagi/internal/controller"
	"kusanagi/internal/logging"
	"kusanagi/internal/orchestrator"
	"kusanagi/internal/query"
	"kusanagi/internal/textutil"
	"kusanagi/internal/transcript"
)

type harness struct {
	model  Model
	view   *transcript.View
	bridge *Bridge
	ctrl   *controller.Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, query.NewScripted(0), "")
}

func newHarnessWith(t *testing.T, svc query.Service, documentPath string) *harness {
	t.Helper()
	log := zerolog.Nop()
	bridge := NewBridge()
	t.Cleanup(bridge.Close)
	view := transcript.New(log, transcript.WithObserver(bridge.TranscriptChanged))
	roster := []query.Participant{{Name: "Physicist"}, {Name: "Chemist"}, {Name: "Chief Editor"}}
	orch := orchestrator.New(view, svc, roster, log, orchestrator.WithProgress(bridge.Progress))
	ctrl := controller.New(orch, bridge, log)
	model := New(context.Background(), Deps{
		Transcript: view,
		Controller: ctrl,
		Bridge:     bridge,
		Log:        log,
		LogTail:    logging.NewTail(10),
	}, Options{
		Backend:      "scripted",
		Model:        "demo",
		Roster:       []string{"Physicist", "Chemist", "Chief Editor"},
		DocumentPath: documentPath,
		Participant:  orch.Participant,
	})
	return &harness{model: model, view: view, bridge: bridge, ctrl: ctrl}
}

func (h *harness) send(msg tea.Msg) tea.Cmd {
	next, cmd := h.model.Update(msg)
	h.model = next.(Model)
	return cmd
}

func (h *harness) key(k tea.KeyType) tea.Cmd {
	return h.send(tea.KeyMsg{Type: k})
}

// drain feeds every queued bridge notification into the model.
func (h *harness) drain() {
	for {
		select {
		case msg := <-h.bridge.inbound:
			h.send(msg)
		default:
			return
		}
	}
}

func TestEnterRunsChatAndReenablesInput(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.model.input.SetValue("  What did Curie study?  ")

	cmd := h.key(tea.KeyEnter)
	req.NotNil(cmd)
	req.False(h.model.inputEnabled)
	req.Empty(h.model.input.Value())

	done, ok := cmd().(runDoneMsg)
	req.True(ok)
	req.True(done.started)
	h.send(done)
	h.drain()

	req.True(h.model.inputEnabled)
	msgs := h.view.Messages()
	req.Len(msgs, 2)
	req.Equal("What did Curie study?", msgs[0].Body)
	req.Contains(msgs[1].Body, "Marie Curie")
	req.Contains(h.model.View(), "Conversation")
}

func TestEnterWithEmptyInputDoesNothing(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.model.input.SetValue("   ")

	req.Nil(h.key(tea.KeyEnter))
	req.True(h.model.inputEnabled)
	req.Zero(h.view.Len())
}

func TestTypingIgnoredWhileRunInFlight(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.model.input.SetValue("hello")
	cmd := h.key(tea.KeyEnter)
	req.NotNil(cmd)

	h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	req.Empty(h.model.input.Value())
	req.Nil(h.key(tea.KeyEnter))

	h.send(cmd())
	h.drain()
	req.True(h.model.inputEnabled)
}

func TestCtrlRConvenesPanelWithDefaultPrompt(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	cmd := h.key(tea.KeyCtrlR)
	req.NotNil(cmd)
	h.send(cmd())
	h.drain()

	msgs := h.view.Messages()
	req.Len(msgs, 5)
	req.Equal(controller.DefaultReviewPrompt, msgs[0].Body)
	req.Equal("Panel assembled: Physicist, Chemist, Chief Editor.", msgs[1].Body)
	req.Equal("Chief Editor", msgs[4].Speaker.Label())
	req.False(h.view.HasPending())
	req.True(h.model.inputEnabled)
}

func TestSlashReviewUsesRemainingText(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.model.input.SetValue("/review Check the purity claims")

	cmd := h.key(tea.KeyEnter)
	req.NotNil(cmd)
	h.send(cmd())
	h.drain()

	msgs := h.view.Messages()
	req.Len(msgs, 5)
	req.Equal("Check the purity claims", msgs[0].Body)
}

func TestSlashReviewAsAsksOneParticipant(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.model.input.SetValue("/review-as chief editor Check the conclusion")

	cmd := h.key(tea.KeyEnter)
	req.NotNil(cmd)
	h.send(cmd())
	h.drain()

	msgs := h.view.Messages()
	req.Len(msgs, 3)
	req.Equal("Check the conclusion", msgs[0].Body)
	req.Equal("Panel assembled: Chief Editor.", msgs[1].Body)
	req.Equal("Chief Editor", msgs[2].Speaker.Label())
	req.True(h.model.inputEnabled)
}

func TestSlashReviewAsUnknownName(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.model.input.SetValue("/review-as Astrologer")

	req.Nil(h.key(tea.KeyEnter))
	req.Equal("no panel member named Astrologer", h.model.statusLine)
	req.Zero(h.view.Len())
	req.True(h.model.inputEnabled)
}

func TestSlashSummarize(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.model.input.SetValue("/summarize")
	req.Nil(h.key(tea.KeyEnter))
	req.Contains(h.model.statusLine, "no document loaded")

	svc := query.NewScripted(0)
	svc.Document = "[Page 1]: Radium glows."
	h = newHarnessWith(t, svc, "paper.txt")
	h.model.input.SetValue("/summarize")
	cmd := h.key(tea.KeyEnter)
	req.NotNil(cmd)
	h.send(cmd())
	h.drain()

	msgs := h.view.Messages()
	req.Len(msgs, 2)
	req.Equal(controller.SummaryPrompt, msgs[0].Body)
	req.Equal(transcript.Assistant, msgs[1].Speaker)
	req.Contains(msgs[1].Body, "radium")
}

func TestEscCancelsChatInFlight(t *testing.T) {
	req := require.New(t)
	h := newHarnessWith(t, query.NewScripted(time.Minute), "")
	h.model.input.SetValue("What is radium?")

	cmd := h.key(tea.KeyEnter)
	req.NotNil(cmd)
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	req.Eventually(h.view.HasPending, 2*time.Second, 5*time.Millisecond)

	h.key(tea.KeyEsc)
	req.True(h.model.cancelling)
	req.False(h.model.quitConfirm)

	var msg tea.Msg
	select {
	case msg = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after esc")
	}
	h.send(msg)
	h.drain()

	req.True(h.model.inputEnabled)
	req.False(h.model.cancelling)
	msgs := h.view.Messages()
	req.Len(msgs, 2)
	req.Equal(transcript.OutcomeCancelled, msgs[1].Outcome)
	req.Equal(orchestrator.CancelledText, msgs[1].Body)
}

func TestSlashClearAndUnknown(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.view.Append(transcript.User, "hello", transcript.Final)

	h.model.input.SetValue("/clear")
	req.Nil(h.key(tea.KeyEnter))
	req.Zero(h.view.Len())
	req.Equal("conversation cleared", h.model.statusLine)

	h.model.input.SetValue("/frobnicate")
	req.Nil(h.key(tea.KeyEnter))
	req.Equal("unknown command: /frobnicate", h.model.statusLine)
}

func TestSlashSaveWritesMarkdown(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.view.Append(transcript.User, "hello", transcript.Final)
	path := filepath.Join(t.TempDir(), "chat.md")

	h.model.input.SetValue("/save " + path)
	cmd := h.key(tea.KeyEnter)
	req.NotNil(cmd)
	msg, ok := cmd().(exportDoneMsg)
	req.True(ok)
	req.NoError(msg.err)
	h.send(msg)
	req.Contains(h.model.statusLine, "saved 1 message(s)")

	data, err := os.ReadFile(path)
	req.NoError(err)
	req.Contains(string(data), "**You**")
}

func TestSlashHelpAndEscReturnToChat(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.model.input.SetValue("/help")
	h.key(tea.KeyEnter)
	req.Equal(tabHelp, h.model.activeTab)

	h.key(tea.KeyEsc)
	req.Equal(tabChat, h.model.activeTab)

	h.key(tea.KeyEsc)
	req.True(h.model.quitConfirm)
	h.key(tea.KeyEsc)
	req.False(h.model.quitConfirm)
}

func TestProgressUpdatesStatus(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.send(progressMsg{progress: orchestrator.Progress{Phase: orchestrator.PhaseAwaitingService, Step: 3, Total: 4, Label: "Chemist"}})
	req.Equal("awaiting Chemist (3/4)", h.model.statusLine)
}

func TestExportFormat(t *testing.T) {
	req := require.New(t)
	format, err := exportFormat([]string{"out.md"})
	req.NoError(err)
	req.Equal(transcript.FormatMarkdown, format)

	format, err = exportFormat([]string{"out.log", "md"})
	req.NoError(err)
	req.Equal(transcript.FormatMarkdown, format)

	format, err = exportFormat([]string{"out.txt"})
	req.NoError(err)
	req.Equal(transcript.FormatText, format)

	_, err = exportFormat([]string{"out", "pdf"})
	req.Error(err)
}

func TestWrapText(t *testing.T) {
	require.Equal(t, "the quick\nbrown fox", textutil.Wrap("the quick brown fox", 10))
}

func TestSidebarShowsCircuit(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.model.opts.Health = func() query.Health {
		return query.Health{Open: true, LastError: "connection refused"}
	}
	req.Contains(h.model.renderSidebar(), "connection refused")

	h.model.opts.Health = func() query.Health { return query.Health{Trips: 2, Successes: 5} }
	req.Contains(h.model.renderSidebar(), "ok=5 trips=2")
}
