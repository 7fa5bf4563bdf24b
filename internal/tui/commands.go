package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"kusanagi/internal/controller"
	"kusanagi/internal/query"
	"kusanagi/internal/transcript"
)

func (m *Model) handleSlash(raw string) tea.Cmd {
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	tail := parts[1:]
	switch cmd {
	case "/review":
		rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), parts[0]))
		return m.submit(rest, controller.ModeReview)
	case "/review-as":
		if len(tail) == 0 {
			m.statusLine = "usage: /review-as <name> [text]"
			return nil
		}
		participant, rest, ok := m.resolveParticipant(tail)
		if !ok {
			m.statusLine = "no panel member named " + strings.Join(tail, " ")
			return nil
		}
		return m.submitTo(participant, rest)
	case "/summarize", "/summary":
		if m.opts.DocumentPath == "" {
			m.statusLine = "no document loaded; start with --document <file>"
			return nil
		}
		return m.submit("", controller.ModeSummarize)
	case "/clear":
		if m.controller.Busy() {
			m.statusLine = "cannot clear while a run is in flight"
			return nil
		}
		m.transcript.Clear()
		m.rendered = map[uuid.UUID]string{}
		m.statusLine = "conversation cleared"
		m.renderPanes()
		return nil
	case "/save":
		if len(tail) == 0 {
			m.statusLine = "usage: /save <path> [md]"
			return nil
		}
		format, err := exportFormat(tail)
		if err != nil {
			m.statusLine = err.Error()
			return nil
		}
		m.statusLine = "saving " + tail[0] + "..."
		return saveCmd(m.transcript, tail[0], format)
	case "/log":
		m.activeTab = tabLog
		m.renderPanes()
		return nil
	case "/help":
		m.activeTab = tabHelp
		m.renderPanes()
		return nil
	case "/quit", "/exit":
		m.quitConfirm = true
		return nil
	default:
		m.statusLine = "unknown command: " + cmd
		return nil
	}
}

// resolveParticipant matches the longest leading run of words against the
// roster, so multi-word names like "Chief Editor" work without quoting.
func (m *Model) resolveParticipant(words []string) (query.Participant, string, bool) {
	if m.opts.Participant == nil {
		return query.Participant{}, "", false
	}
	for n := len(words); n > 0; n-- {
		if p, ok := m.opts.Participant(strings.Join(words[:n], " ")); ok {
			return p, strings.Join(words[n:], " "), true
		}
	}
	return query.Participant{}, "", false
}

// exportFormat picks the format from an explicit argument, then from the
// file extension.
func exportFormat(args []string) (transcript.Format, error) {
	if len(args) > 1 {
		format, err := transcript.ParseFormat(args[1])
		if err != nil {
			return "", fmt.Errorf("usage: /save <path> [md|text]")
		}
		return format, nil
	}
	switch strings.ToLower(filepath.Ext(args[0])) {
	case ".md", ".markdown":
		return transcript.FormatMarkdown, nil
	default:
		return transcript.FormatText, nil
	}
}

func saveCmd(view *transcript.View, path string, format transcript.Format) tea.Cmd {
	return func() tea.Msg {
		f, err := os.Create(path)
		if err != nil {
			return exportDoneMsg{path: path, err: fmt.Errorf("create %s: %w", path, err)}
		}
		if err := view.Export(f, format); err != nil {
			_ = f.Close()
			return exportDoneMsg{path: path, err: err}
		}
		if err := f.Close(); err != nil {
			return exportDoneMsg{path: path, err: err}
		}
		return exportDoneMsg{path: path, count: view.Len()}
	}
}
