package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"kusanagi/internal/orchestrator"
	"kusanagi/internal/query"
	"kusanagi/internal/textutil"
	"kusanagi/internal/transcript"
)

func (m Model) View() string {
	out := lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderContent(),
		m.renderInput(),
		m.renderFooter(),
	)
	if m.quitConfirm {
		out = m.renderQuitModal()
	}
	return m.theme.root.Render(out)
}

func (m *Model) renderHeader() string {
	tabs := []struct {
		id    tabID
		label string
	}{
		{tabChat, "Chat"},
		{tabLog, "Log"},
		{tabHelp, "Help"},
	}
	segments := make([]string, 0, len(tabs)+2)
	segments = append(segments, m.theme.panelTitle.Render(transcript.AssistantName+" "))
	for _, tab := range tabs {
		style := m.theme.tabInactive
		if tab.id == m.activeTab {
			style = m.theme.tabActive
		}
		segments = append(segments, style.Render(tab.label))
	}
	meta := fmt.Sprintf(" %s · %s", m.opts.Backend, m.opts.Model)
	segments = append(segments, m.theme.helpText.Render(meta))
	joined := lipgloss.JoinHorizontal(lipgloss.Left, segments...)
	return m.theme.header.Width(max(20, m.width-4)).Render(joined)
}

func (m *Model) renderContent() string {
	height := m.contentHeight()
	contentWidth := max(40, m.width-4)
	switch m.activeTab {
	case tabLog:
		return m.theme.panel.Width(contentWidth).Height(height).Render(
			m.theme.panelTitle.Render("Recent Log") + "\n" + m.sidebar.View(),
		)
	case tabHelp:
		return m.theme.panel.Width(contentWidth).Height(height).Render(
			m.theme.panelTitle.Render("Help") + "\n" + m.sidebar.View(),
		)
	}
	timelineWidth, sidebarWidth := m.paneWidths()
	left := m.theme.panel.Width(timelineWidth).Height(height).Render(
		m.theme.panelTitle.Render("Conversation") + "\n" + m.timeline.View(),
	)
	right := m.theme.panel.Width(sidebarWidth).Height(height).Render(
		m.theme.panelTitle.Render("Review Panel") + "\n" + m.sidebar.View(),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

func (m *Model) renderInput() string {
	contentWidth := max(40, m.width-4)
	if m.inputEnabled {
		return m.theme.inputPanel.Width(contentWidth).Render(m.input.View())
	}
	waiting := "working..."
	if m.progress.Phase == orchestrator.PhaseAwaitingService && m.progress.Label != "" {
		waiting = fmt.Sprintf("waiting on %s (%d/%d)", m.progress.Label, m.progress.Step, m.progress.Total)
	}
	if m.cancelling {
		waiting = "cancelling..."
	}
	line := m.spinner.View() + " " + waiting + m.theme.helpText.Render("  · Esc cancels")
	return m.theme.inputPanel.Width(contentWidth).Render(line)
}

func (m *Model) renderFooter() string {
	contentWidth := max(40, m.width-4)
	statusStyle := m.theme.status
	lower := strings.ToLower(m.statusLine)
	if strings.Contains(lower, "failed") || strings.Contains(lower, "error") {
		statusStyle = m.theme.errorStatus
	}
	line := statusStyle.Render(textutil.CompactSingleLine(m.statusLine, 180))
	hints := m.theme.helpText.Render("Keys: Enter send · Ctrl+R convene panel · Esc cancel/quit · Tab switch view · PgUp/PgDn scroll · Ctrl+C quit")
	return m.theme.footer.Width(contentWidth).Render(line + "\n" + hints)
}

func (m *Model) renderQuitModal() string {
	canvasWidth := max(40, m.width-4)
	canvasHeight := max(12, m.height-4)
	modalWidth := min(max(int(float64(canvasWidth)*0.5), 32), 72)
	if modalWidth > canvasWidth-2 {
		modalWidth = canvasWidth - 2
	}
	body := strings.Join([]string{
		m.theme.errorStatus.Render("Leave " + transcript.AssistantName + "?"),
		m.theme.helpText.Render("The transcript is not kept unless you /save it."),
		"",
		m.theme.pick.Render("[Y / Enter] Quit") + "    " + m.theme.helpText.Render("[N / Esc] Return"),
	}, "\n")
	panel := m.theme.modal.Width(modalWidth).Render(body)
	return lipgloss.Place(
		canvasWidth,
		canvasHeight,
		lipgloss.Center,
		lipgloss.Center,
		panel,
		lipgloss.WithWhitespaceBackground(lipgloss.Color("#120924")),
	)
}

func (m *Model) renderTimeline() string {
	messages := m.transcript.Messages()
	if len(messages) == 0 {
		return m.theme.helpText.Render("No messages yet. Press Enter to ask " + transcript.AssistantName + ", or Ctrl+R to convene the review panel.")
	}
	width := max(24, m.timeline.Width-2)
	var b strings.Builder
	for _, msg := range messages {
		header := fmt.Sprintf("%s [%s] %s", msg.CreatedAt.Local().Format("15:04:05"), msg.Speaker.Avatar(), msg.Speaker.Label())
		b.WriteString(m.speakerStyle(msg.Speaker).Render(header))
		b.WriteString("\n")
		b.WriteString(m.renderBody(msg, width))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderBody(msg transcript.Message, width int) string {
	switch {
	case msg.IsPending():
		return m.spinner.View() + " " + m.theme.pending.Render(msg.Body)
	case msg.Outcome == transcript.OutcomeError:
		return m.theme.errorStatus.Render(textutil.Wrap("✗ "+msg.Body, width))
	case msg.Outcome == transcript.OutcomeCancelled:
		return m.theme.cancelled.Render(textutil.Wrap(msg.Body, width))
	case msg.Speaker.Kind == transcript.SpeakerUser:
		return textutil.Wrap(msg.Body, width)
	}
	if cached, ok := m.rendered[msg.ID]; ok {
		return cached
	}
	out := textutil.Wrap(msg.Body, width)
	if m.markdown != nil {
		if rendered, err := m.markdown.Render(msg.Body); err == nil {
			out = strings.Trim(rendered, "\n")
		}
	}
	m.rendered[msg.ID] = out
	return out
}

func (m *Model) speakerStyle(s transcript.Speaker) lipgloss.Style {
	switch s.Kind {
	case transcript.SpeakerUser:
		return m.theme.user
	case transcript.SpeakerAssistant:
		return m.theme.assistant
	}
	for i, name := range m.opts.Roster {
		if strings.EqualFold(name, s.Name) {
			return m.theme.participants[i%len(m.theme.participants)]
		}
	}
	return m.theme.participants[0]
}

func (m *Model) renderSidebar() string {
	lines := make([]string, 0, len(m.opts.Roster)+8)
	active := ""
	if m.progress.Phase == orchestrator.PhaseAwaitingService {
		active = m.progress.Label
	}
	for i, name := range m.opts.Roster {
		marker := "·"
		if strings.EqualFold(name, active) {
			marker = m.spinner.View()
		}
		style := m.theme.participants[i%len(m.theme.participants)]
		lines = append(lines, fmt.Sprintf("%s %d. %s", marker, i+1, style.Render(name)))
	}
	lines = append(lines, "")
	lines = append(lines, m.theme.helpText.Render("backend  "+m.opts.Backend))
	lines = append(lines, m.theme.helpText.Render("model    "+m.opts.Model))
	if m.opts.DocumentPath != "" {
		lines = append(lines, m.theme.helpText.Render("document "+m.opts.DocumentPath))
	}
	lines = append(lines, m.theme.helpText.Render(fmt.Sprintf("messages %d", m.transcript.Len())))
	if m.opts.Health != nil {
		lines = append(lines, m.renderCircuit(m.opts.Health()))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderCircuit(h query.Health) string {
	if h.Open {
		line := fmt.Sprintf("circuit  OPEN until %s", h.OpenUntil.Local().Format("15:04:05"))
		if h.LastError != "" {
			line += "\nlast     " + textutil.CompactSingleLine(h.LastError, 80)
		}
		return m.theme.errorStatus.Render(line)
	}
	return m.theme.helpText.Render(fmt.Sprintf("circuit  closed · ok=%d trips=%d", h.Successes, h.Trips))
}

func (m *Model) renderLog() string {
	if m.logTail == nil {
		return m.theme.helpText.Render("Logging is disabled.")
	}
	lines := m.logTail.Lines()
	if len(lines) == 0 {
		return m.theme.helpText.Render("No log entries yet.")
	}
	for i, line := range lines {
		lines[i] = textutil.CompactSingleLine(line, 220)
	}
	return m.theme.helpText.Render(strings.Join(lines, "\n"))
}

func (m *Model) renderHelp() string {
	lines := []string{
		"Keys",
		"- Enter: ask " + transcript.AssistantName + " (single answer)",
		"- Ctrl+R: convene the review panel; empty input asks for a general peer review",
		"- Esc: cancel the run in flight, leave Log/Help, or quit from Chat",
		"- Tab / Shift+Tab: switch views",
		"- PgUp/PgDn, Up/Down (input empty), Home/End: scroll the conversation",
		"- Ctrl+C: quit",
		"",
		"Slash Commands",
		"- /review [text]   convene the panel on text",
		"- /review-as <name> [text] ask one panel member",
		"- /summarize       summarize the loaded document",
		"- /clear           empty the conversation",
		"- /save <path> [md] write the conversation as text or markdown",
		"- /log             show recent log lines",
		"- /help            this screen",
		"- /quit",
		"",
		"Panel",
		"- Participants answer one after another in roster order.",
		"- Each one sees the reviews written before it; a failed review is skipped.",
	}
	return m.theme.helpText.Render(strings.Join(lines, "\n"))
}
