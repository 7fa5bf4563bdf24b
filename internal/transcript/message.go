package transcript

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AssistantName is the label rendered for single-responder chat replies.
const AssistantName = "Kusanagi"

type SpeakerKind int

const (
	SpeakerUser SpeakerKind = iota
	SpeakerAssistant
	SpeakerParticipant
)

// Speaker identifies who a message is attributed to. Participants carry the
// roster name they were convened under.
type Speaker struct {
	Kind SpeakerKind
	Name string
}

var (
	User      = Speaker{Kind: SpeakerUser}
	Assistant = Speaker{Kind: SpeakerAssistant}
)

// Participant returns the speaker identity for a panel member.
func Participant(name string) Speaker {
	return Speaker{Kind: SpeakerParticipant, Name: strings.TrimSpace(name)}
}

// Label is the display name for the speaker.
func (s Speaker) Label() string {
	switch s.Kind {
	case SpeakerUser:
		return "You"
	case SpeakerAssistant:
		return AssistantName
	default:
		if s.Name == "" {
			return "Participant"
		}
		return s.Name
	}
}

// Avatar is the short badge shown next to a message, two letters for
// participants like the original panel layout.
func (s Speaker) Avatar() string {
	switch s.Kind {
	case SpeakerUser:
		return "You"
	case SpeakerAssistant:
		return "AI"
	}
	runes := []rune(s.Label())
	if len(runes) > 2 {
		runes = runes[:2]
	}
	return strings.ToUpper(string(runes))
}

func (s Speaker) key() string {
	if s.Kind == SpeakerParticipant {
		return "participant:" + strings.ToLower(s.Name)
	}
	return s.Label()
}

type Status int

const (
	Pending Status = iota
	Final
)

func (s Status) String() string {
	if s == Pending {
		return "pending"
	}
	return "final"
}

// Outcome records how a Final message was reached.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeError
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeError:
		return "error"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "ok"
	}
}

// Message is one transcript entry. A Pending message is replaced in place by
// its Final form; Final messages never change again.
type Message struct {
	ID         uuid.UUID
	Speaker    Speaker
	Body       string
	Status     Status
	Outcome    Outcome
	CreatedAt  time.Time
	ResolvedAt time.Time
}

func (m Message) IsPending() bool {
	return m.Status == Pending
}

func (m Message) Failed() bool {
	return m.Status == Final && m.Outcome == OutcomeError
}
