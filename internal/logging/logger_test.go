package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerWritesFileAndTail(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "logs", "kusanagi.log")

	log, err := New(path, "debug")
	req.NoError(err)
	log.Info().Str("participant", "Chemist").Msg("review failed")
	req.NoError(log.Close())

	data, err := os.ReadFile(path)
	req.NoError(err)
	req.Contains(string(data), `"participant":"Chemist"`)
	req.Contains(string(data), `"message":"review failed"`)

	lines := log.Tail().Lines()
	req.Len(lines, 1)
	req.Contains(lines[0], "review failed")
	req.Contains(lines[0], "participant=Chemist")
}

func TestLoggerLevelFilters(t *testing.T) {
	req := require.New(t)
	log, err := New("", "warn")
	req.NoError(err)
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	req.Len(log.Tail().Lines(), 1)
	req.NoError(log.Close())
}

func TestTailKeepsNewest(t *testing.T) {
	req := require.New(t)
	tail := NewTail(3)
	for i := 0; i < 5; i++ {
		_, err := fmt.Fprintf(tail, "line %d\n", i)
		req.NoError(err)
	}
	req.Equal([]string{"line 2", "line 3", "line 4"}, tail.Lines())
}
