package transcript

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts the spellings used by the /save command.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "txt", "text":
		return FormatText, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown export format %q (expected text or markdown)", raw)
	}
}

// Export writes the current transcript to w.
func (v *View) Export(w io.Writer, format Format) error {
	messages := v.Messages()
	bw := bufio.NewWriter(w)
	for _, msg := range messages {
		var err error
		switch format {
		case FormatMarkdown:
			err = writeMarkdown(bw, msg)
		default:
			err = writeText(bw, msg)
		}
		if err != nil {
			return fmt.Errorf("transcript: export %s: %w", msg.ID, err)
		}
	}
	return bw.Flush()
}

func writeText(w io.Writer, msg Message) error {
	_, err := fmt.Fprintf(w, "[%s] %s: %s%s\n\n",
		msg.CreatedAt.Local().Format("15:04:05"),
		msg.Speaker.Label(),
		strings.TrimSpace(msg.Body),
		exportSuffix(msg),
	)
	return err
}

func writeMarkdown(w io.Writer, msg Message) error {
	_, err := fmt.Fprintf(w, "**%s** · %s%s\n\n%s\n\n",
		msg.Speaker.Label(),
		msg.CreatedAt.Local().Format("15:04"),
		exportSuffix(msg),
		strings.TrimSpace(msg.Body),
	)
	return err
}

func exportSuffix(msg Message) string {
	if msg.Status == Pending {
		return " (pending)"
	}
	switch msg.Outcome {
	case OutcomeError:
		return " (error)"
	case OutcomeCancelled:
		return " (cancelled)"
	}
	return ""
}
