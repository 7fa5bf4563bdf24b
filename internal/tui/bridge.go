package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"kusanagi/internal/orchestrator"
)

const bridgeBuffer = 256

type transcriptChangedMsg struct{}

type inputStateMsg struct {
	enabled bool
}

type progressMsg struct {
	progress orchestrator.Progress
}

// Bridge carries notifications from the run goroutine into the bubbletea
// loop. It is the transcript observer, the controller's input gate and the
// orchestrator's progress hook.
type Bridge struct {
	inbound chan tea.Msg
	done    chan struct{}
	once    sync.Once
}

func NewBridge() *Bridge {
	return &Bridge{
		inbound: make(chan tea.Msg, bridgeBuffer),
		done:    make(chan struct{}),
	}
}

// Close tells senders the host has stopped reading. Later gate transitions
// are discarded instead of blocking the run goroutine.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}

// TranscriptChanged drops the signal when the buffer is full; any queued
// message already forces a re-render.
func (b *Bridge) TranscriptChanged() {
	select {
	case b.inbound <- transcriptChangedMsg{}:
	default:
	}
}

// SetInputEnabled never drops while the host is running: it must see every
// gate transition.
func (b *Bridge) SetInputEnabled(enabled bool) {
	select {
	case b.inbound <- inputStateMsg{enabled: enabled}:
	case <-b.done:
	}
}

func (b *Bridge) Progress(p orchestrator.Progress) {
	select {
	case b.inbound <- progressMsg{progress: p}:
	default:
	}
}

func (b *Bridge) wait() tea.Cmd {
	return waitBridgeMsg(b.inbound)
}

func waitBridgeMsg(ch <-chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}
