package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"kusanagi/internal/config"
	"kusanagi/internal/query"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-file", ""))
	err := cmd.Execute()
	return out.String(), err
}

func TestAskPrintsExchange(t *testing.T) {
	req := require.New(t)
	out, err := runCLI(t, "ask", "--backend", "scripted", "--scripted-latency", "0s", "What", "did", "Curie", "study?")
	req.NoError(err)
	req.Contains(out, "You: What did Curie study?")
	req.Contains(out, "Kusanagi: According to the document")
}

func TestReviewPrintsPanelAsMarkdown(t *testing.T) {
	req := require.New(t)
	out, err := runCLI(t, "review", "-f", "md", "--backend", "scripted", "--scripted-latency", "0s")
	req.NoError(err)
	req.Contains(out, "**You**")
	req.Contains(out, "Provide a general peer review of this document.")
	req.Contains(out, "**Physicist**")
	req.Contains(out, "**Chief Editor**")
}

func TestAskRejectsUnknownBackend(t *testing.T) {
	_, err := runCLI(t, "ask", "--backend", "telepathy", "hi")
	require.ErrorContains(t, err, "Backend")
}

func TestRosterInitAndPrint(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "roster.yaml")

	out, err := runCLI(t, "roster", "--init", path)
	req.NoError(err)
	req.Contains(out, "roster written")
	_, err = os.Stat(path)
	req.NoError(err)

	out, err = runCLI(t, "roster", "--roster", path)
	req.NoError(err)
	req.Contains(out, "name: Chemist")
	req.Contains(out, "name: Chief Editor")
}

func TestNewServiceSelectsBackend(t *testing.T) {
	req := require.New(t)
	cfg := &config.Config{Backend: "scripted"}
	svc, err := newService(cfg, zerolog.Nop())
	req.NoError(err)
	req.IsType(&query.Scripted{}, svc)

	cfg.Backend = "ollama"
	svc, err = newService(cfg, zerolog.Nop())
	req.NoError(err)
	req.IsType(&query.Ollama{}, svc)

	cfg.Backend = "nope"
	_, err = newService(cfg, zerolog.Nop())
	req.Error(err)
}

func TestRosterTable(t *testing.T) {
	req := require.New(t)
	out, err := runCLI(t, "roster", "--table")
	req.NoError(err)
	req.Contains(out, "NAME")
	req.Contains(out, "Physicist")
	req.Contains(out, "Chief Editor")
}

func TestSummarizeNeedsDocument(t *testing.T) {
	_, err := runCLI(t, "summarize", "--backend", "scripted")
	require.ErrorContains(t, err, "--document")
}

func TestSummarizePrintsSummary(t *testing.T) {
	req := require.New(t)
	doc := filepath.Join(t.TempDir(), "paper.txt")
	req.NoError(os.WriteFile(doc, []byte("[Page 1]: Radium glows in the dark."), 0o600))

	out, err := runCLI(t, "summarize", "--backend", "scripted", "--scripted-latency", "0s", "--document", doc)
	req.NoError(err)
	req.Contains(out, "You: Provide a concise summary of the document.")
	req.Contains(out, "Kusanagi: The paper reports")
}

func TestReviewAsAsksOneParticipant(t *testing.T) {
	req := require.New(t)
	out, err := runCLI(t, "review", "--as", "chemist", "--backend", "scripted", "--scripted-latency", "0s", "Check", "purity")
	req.NoError(err)
	req.Contains(out, "You: Check purity")
	req.Contains(out, "Panel assembled: Chemist.")
	req.Contains(out, "Chemist: The material synthesis section")
	req.NotContains(out, "Physicist:")

	_, err = runCLI(t, "review", "--as", "Astrologer", "--backend", "scripted")
	req.ErrorContains(err, `no panel member named "Astrologer"`)
}

func TestModelsListsBackendModels(t *testing.T) {
	req := require.New(t)
	out, err := runCLI(t, "models", "--backend", "scripted", "--model", "scripted")
	req.NoError(err)
	req.Contains(out, "* scripted")
}
