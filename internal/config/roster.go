package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"kusanagi/internal/query"
)

const defaultRosterTemplate = `# kusanagi panel roster.
# Participants review in this order. Each one sees the reviews written before
# it, so the last entry is usually the one that synthesizes the panel.
participants:
  - name: Physicist
    brief: >-
      You are an expert Physicist. Review the user's request and the document
      context from a physics perspective. Focus on theoretical soundness,
      experimental methodology, and the physical interpretation of data.
  - name: Chemist
    brief: >-
      You are an expert Chemist. Review the user's request and the document
      context from a chemistry perspective. Focus on chemical reactions,
      material properties, stoichiometry, and analytical techniques.
  - name: Chief Editor
    brief: >-
      You are the Chief Editor. Your job is to read the user's request and all
      the reviews from the experts. Synthesize their points into a single,
      cohesive, and balanced final review. Address the user's prompt directly.
`

type rosterFile struct {
	Participants []query.Participant `yaml:"participants"`
}

// DefaultRoster is the panel used when no roster file is configured.
func DefaultRoster() []query.Participant {
	roster, err := parseRoster([]byte(defaultRosterTemplate))
	if err != nil {
		panic(fmt.Sprintf("default roster: %v", err))
	}
	return roster
}

// LoadRoster reads a roster file, writing the default one first if the path
// does not exist yet.
func LoadRoster(path string) ([]query.Participant, error) {
	if err := EnsureRosterFile(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	roster, err := parseRoster(data)
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return roster, nil
}

// EnsureRosterFile writes the default roster to path if nothing is there.
func EnsureRosterFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create roster dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(defaultRosterTemplate), 0o644); err != nil {
		return fmt.Errorf("write default roster: %w", err)
	}
	return nil
}

func parseRoster(data []byte) ([]query.Participant, error) {
	var file rosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	seen := map[string]bool{}
	roster := make([]query.Participant, 0, len(file.Participants))
	for _, p := range file.Participants {
		p.Name = strings.TrimSpace(p.Name)
		p.Brief = strings.TrimSpace(p.Brief)
		key := strings.ToLower(p.Name)
		if key != "" && seen[key] {
			return nil, fmt.Errorf("participant %q listed twice", p.Name)
		}
		seen[key] = true
		roster = append(roster, p)
	}
	return roster, nil
}
