package cli

import (
	"fmt"

	"github.com/rs/zerolog"

	"kusanagi/internal/config"
	"kusanagi/internal/query"
)

// newService builds the query backend named by cfg.Backend.
func newService(cfg *config.Config, log zerolog.Logger) (query.Service, error) {
	switch cfg.Backend {
	case "ollama":
		return query.NewOllama(query.OllamaConfig{
			BaseURL:          cfg.OllamaURL,
			Model:            cfg.Model,
			Temperature:      cfg.Temperature,
			Timeout:          cfg.Timeout,
			BreakerThreshold: cfg.BreakerThreshold,
			BreakerRecovery:  cfg.BreakerRecovery,
			Document:         cfg.Document,
		}, log), nil
	case "openai":
		return query.NewOpenAI(query.OpenAIConfig{
			BaseURL:          cfg.OpenAIBaseURL,
			APIKey:           cfg.OpenAIAPIKey,
			Model:            cfg.Model,
			Temperature:      cfg.Temperature,
			Timeout:          cfg.Timeout,
			BreakerThreshold: cfg.BreakerThreshold,
			BreakerRecovery:  cfg.BreakerRecovery,
			Document:         cfg.Document,
		}, log), nil
	case "scripted":
		svc := query.NewScripted(cfg.ScriptedLatency)
		svc.Document = cfg.Document
		return svc, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
