// Package tui is the bubbletea host for a conversation: it renders the
// transcript, routes keys and slash commands to the controller, and follows
// the input gate.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kusanagi/internal/controller"
	"kusanagi/internal/logging"
	"kusanagi/internal/orchestrator"
	"kusanagi/internal/query"
	"kusanagi/internal/textutil"
	"kusanagi/internal/transcript"
)

type tabID int

const (
	tabChat tabID = iota
	tabLog
	tabHelp
	tabCount
)

const defaultWidth = 100

// Deps are the collaborators the host drives.
type Deps struct {
	Transcript *transcript.View
	Controller *controller.Controller
	Bridge     *Bridge
	Log        zerolog.Logger
	LogTail    *logging.Tail
}

// Options describe the session for the header and side panel.
type Options struct {
	Backend      string
	Model        string
	Roster       []string
	DocumentPath string
	// Health, when set, feeds the circuit line of the side panel.
	Health func() query.Health
	// Participant resolves a roster name for /review-as.
	Participant func(name string) (query.Participant, bool)
}

type runDoneMsg struct {
	mode    controller.Mode
	started bool
}

type exportDoneMsg struct {
	path  string
	count int
	err   error
}

type Model struct {
	ctx        context.Context
	transcript *transcript.View
	controller *controller.Controller
	bridge     *Bridge
	log        zerolog.Logger
	logTail    *logging.Tail
	opts       Options

	theme    uiTheme
	input    textinput.Model
	timeline viewport.Model
	sidebar  viewport.Model
	spinner  spinner.Model
	markdown *glamour.TermRenderer
	rendered map[uuid.UUID]string

	width        int
	height       int
	activeTab    tabID
	inputEnabled bool
	quitConfirm  bool
	cancelling   bool
	progress     orchestrator.Progress
	statusLine   string
}

func New(ctx context.Context, deps Deps, opts Options) Model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = "Ask Kusanagi, or press Ctrl+R to convene the review panel."
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	m := Model{
		ctx:          ctx,
		transcript:   deps.Transcript,
		controller:   deps.Controller,
		bridge:       deps.Bridge,
		log:          deps.Log.With().Str("component", "tui").Logger(),
		logTail:      deps.LogTail,
		opts:         opts,
		theme:        newTheme(),
		input:        input,
		timeline:     viewport.New(defaultWidth, 20),
		sidebar:      viewport.New(30, 20),
		spinner:      sp,
		rendered:     map[uuid.UUID]string{},
		width:        defaultWidth,
		height:       32,
		inputEnabled: true,
		statusLine:   fmt.Sprintf("ready · backend=%s model=%s", opts.Backend, opts.Model),
	}
	m.resize()
	m.renderPanes()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.bridge.wait())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case transcriptChangedMsg:
		m.renderPanes()
		cmds = append(cmds, m.bridge.wait())
	case inputStateMsg:
		m.setInputEnabled(msg.enabled)
		m.renderPanes()
		cmds = append(cmds, m.bridge.wait())
	case progressMsg:
		m.progress = msg.progress
		if msg.progress.Phase == orchestrator.PhaseAwaitingService && !m.cancelling {
			m.statusLine = fmt.Sprintf("awaiting %s (%d/%d)", msg.progress.Label, msg.progress.Step, msg.progress.Total)
		}
		m.renderPanes()
		cmds = append(cmds, m.bridge.wait())
	case runDoneMsg:
		if !msg.started && !m.controller.Busy() {
			m.setInputEnabled(true)
			m.statusLine = "nothing to send"
		}
		m.renderPanes()
	case exportDoneMsg:
		if msg.err != nil {
			m.statusLine = "save failed: " + textutil.CompactSingleLine(msg.err.Error(), 140)
			m.log.Warn().Err(msg.err).Str("path", msg.path).Msg("transcript export failed")
			break
		}
		m.statusLine = fmt.Sprintf("saved %d message(s) to %s", msg.count, msg.path)
		m.log.Info().Str("path", msg.path).Int("messages", msg.count).Msg("transcript exported")
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderPanes()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.transcript.HasPending() {
			m.renderPanes()
		}
		cmds = append(cmds, cmd)
	case tea.MouseMsg:
		if m.activeTab == tabChat && !m.quitConfirm {
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			cmds = append(cmds, cmd)
		}
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		m.controller.Cancel()
		return m, tea.Quit
	}
	if m.quitConfirm {
		switch key {
		case "y", "Y", "enter":
			m.controller.Cancel()
			return m, tea.Quit
		case "n", "N", "esc":
			m.quitConfirm = false
			m.statusLine = "quit canceled"
		}
		return m, nil
	}

	switch key {
	case "esc":
		switch {
		case m.controller.Busy():
			if m.controller.Cancel() {
				m.cancelling = true
				m.statusLine = "cancelling..."
			}
		case m.activeTab != tabChat:
			m.activeTab = tabChat
			m.renderPanes()
		default:
			m.quitConfirm = true
		}
		return m, nil
	case "tab":
		m.activeTab = (m.activeTab + 1) % tabCount
		m.renderPanes()
		return m, nil
	case "shift+tab":
		m.activeTab = (m.activeTab + tabCount - 1) % tabCount
		m.renderPanes()
		return m, nil
	}

	if m.activeTab != tabChat {
		switch key {
		case "pgup", "up", "k":
			m.sidebar.LineUp(4)
		case "pgdown", "down", "j":
			m.sidebar.LineDown(4)
		}
		return m, nil
	}

	switch key {
	case "pgup", "ctrl+b":
		m.timeline.LineUp(8)
		return m, nil
	case "pgdown", "ctrl+f":
		m.timeline.LineDown(8)
		return m, nil
	case "home":
		m.timeline.GotoTop()
		return m, nil
	case "end":
		m.timeline.GotoBottom()
		return m, nil
	case "up":
		if strings.TrimSpace(m.input.Value()) == "" {
			m.timeline.LineUp(4)
			return m, nil
		}
	case "down":
		if strings.TrimSpace(m.input.Value()) == "" {
			m.timeline.LineDown(4)
			return m, nil
		}
	}

	if !m.inputEnabled {
		return m, nil
	}

	switch key {
	case "enter":
		raw := m.input.Value()
		if strings.HasPrefix(strings.TrimSpace(raw), "/") {
			m.input.SetValue("")
			return m, m.handleSlash(strings.TrimSpace(raw))
		}
		return m, m.submit(raw, controller.ModeChat)
	case "ctrl+r":
		return m, m.submit(m.input.Value(), controller.ModeReview)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit hands the input to the controller on a command goroutine. Input is
// disabled immediately; the gate messages from the controller then confirm
// the transition and re-enable it when the run ends.
func (m *Model) submit(raw string, mode controller.Mode) tea.Cmd {
	prompt, ok := controller.Normalize(raw, mode)
	if !ok {
		return nil
	}
	ctrl, ctx := m.controller, m.ctx
	return m.start(mode, prompt, func() bool { return ctrl.Submit(ctx, raw, mode) })
}

func (m *Model) submitTo(participant query.Participant, raw string) tea.Cmd {
	prompt, _ := controller.Normalize(raw, controller.ModeReview)
	ctrl, ctx := m.controller, m.ctx
	return m.start(controller.ModeReview, participant.Name+" · "+prompt, func() bool {
		return ctrl.SubmitTo(ctx, participant, raw)
	})
}

func (m *Model) start(mode controller.Mode, label string, run func() bool) tea.Cmd {
	m.input.SetValue("")
	m.setInputEnabled(false)
	m.activeTab = tabChat
	m.statusLine = fmt.Sprintf("%s · %s", mode, textutil.CompactSingleLine(label, 80))
	m.renderPanes()
	return func() tea.Msg {
		return runDoneMsg{mode: mode, started: run()}
	}
}

func (m *Model) setInputEnabled(enabled bool) {
	m.inputEnabled = enabled
	if enabled {
		m.cancelling = false
		m.progress = orchestrator.Progress{}
		m.input.Focus()
		if !m.controller.Busy() {
			m.statusLine = "ready"
		}
		return
	}
	m.input.Blur()
}

func (m *Model) resize() {
	contentWidth := max(40, m.width-4)
	m.input.Width = max(20, contentWidth-6)
	timelineWidth, _ := m.paneWidths()
	wrap := max(24, timelineWidth-6)
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		m.log.Warn().Err(err).Msg("markdown renderer unavailable")
		renderer = nil
	}
	m.markdown = renderer
	m.rendered = map[uuid.UUID]string{}
}

func (m *Model) paneWidths() (timeline int, sidebar int) {
	contentWidth := max(40, m.width-4)
	timeline = int(float64(contentWidth) * 0.72)
	sidebar = contentWidth - timeline - 1
	if sidebar < 26 {
		sidebar = 26
		timeline = contentWidth - sidebar - 1
	}
	return timeline, sidebar
}

func (m *Model) contentHeight() int {
	return max(8, m.height-12)
}

func (m *Model) renderPanes() {
	prevOffset := m.timeline.YOffset
	prevAtBottom := m.timeline.AtBottom()

	timelineWidth, sidebarWidth := m.paneWidths()
	height := m.contentHeight()
	m.timeline.Width = max(20, timelineWidth-4)
	m.timeline.Height = max(5, height-3)
	m.sidebar.Width = max(20, sidebarWidth-4)
	m.sidebar.Height = max(5, height-3)

	m.timeline.SetContent(m.renderTimeline())
	if prevAtBottom {
		m.timeline.GotoBottom()
	} else {
		m.timeline.SetYOffset(prevOffset)
	}

	switch m.activeTab {
	case tabLog:
		m.sidebar.Width = max(20, max(40, m.width-4)-4)
		m.sidebar.SetContent(m.renderLog())
		m.sidebar.GotoBottom()
	case tabHelp:
		m.sidebar.Width = max(20, max(40, m.width-4)-4)
		m.sidebar.SetContent(m.renderHelp())
	default:
		m.sidebar.SetContent(m.renderSidebar())
	}
}
