// Package cli wires configuration, logging and the query backend into the
// interactive and one-shot hosts.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"kusanagi/internal/config"
	"kusanagi/internal/controller"
	"kusanagi/internal/logging"
	"kusanagi/internal/orchestrator"
	"kusanagi/internal/query"
	"kusanagi/internal/transcript"
	"kusanagi/internal/tui"
)

// flagKeys maps command-line flags to their viper keys.
var flagKeys = map[string]string{
	"backend":           config.KeyBackend,
	"model":             config.KeyModel,
	"ollama-url":        config.KeyOllamaURL,
	"openai-base-url":   config.KeyOpenAIBaseURL,
	"temperature":       config.KeyTemperature,
	"timeout":           config.KeyTimeout,
	"breaker-threshold": config.KeyBreakerThreshold,
	"breaker-recovery":  config.KeyBreakerRecovery,
	"scripted-latency":  config.KeyScriptedLatency,
	"roster":            config.KeyRoster,
	"document":          config.KeyDocument,
	"log-file":          config.KeyLogFile,
	"log-level":         config.KeyLogLevel,
	"alt-screen":        config.KeyAltScreen,
}

type app struct {
	v          *viper.Viper
	configFile string
}

// session is everything one conversation needs once config is resolved.
type session struct {
	cfg    *config.Config
	log    *logging.Logger
	view   *transcript.View
	svc    query.Service
	roster []query.Participant
}

func (s *session) Close() error {
	return s.log.Close()
}

// NewRootCommand builds the command tree with a fresh viper instance.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}
	config.SetDefaults(a.v)

	root := &cobra.Command{
		Use:   "kusanagi-tui",
		Short: "Chat with a local model or convene a panel of reviewers",
		Long: `kusanagi-tui is a terminal research assistant. Enter asks a single
assistant; Ctrl+R convenes a panel of reviewers that answer in order, each
one reading the reviews before it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.Prepare(a.v, a.configFile)
		},
		RunE: a.runTUI,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: $XDG_CONFIG_HOME/kusanagi/config.yaml)")
	flags.String("backend", a.v.GetString(config.KeyBackend), "query backend: ollama, openai or scripted")
	flags.String("model", a.v.GetString(config.KeyModel), "model name")
	flags.String("ollama-url", a.v.GetString(config.KeyOllamaURL), "Ollama base URL")
	flags.String("openai-base-url", "", "OpenAI-compatible base URL (empty: api.openai.com)")
	flags.Float64("temperature", a.v.GetFloat64(config.KeyTemperature), "sampling temperature")
	flags.Duration("timeout", a.v.GetDuration(config.KeyTimeout), "per-call backend timeout")
	flags.Int("breaker-threshold", a.v.GetInt(config.KeyBreakerThreshold), "consecutive failures before the circuit opens")
	flags.Duration("breaker-recovery", a.v.GetDuration(config.KeyBreakerRecovery), "how long the circuit stays open")
	flags.Duration("scripted-latency", a.v.GetDuration(config.KeyScriptedLatency), "simulated latency of the scripted backend")
	flags.String("roster", "", "panel roster YAML file (written with defaults if missing)")
	flags.String("document", "", "plain-text document included as context in every prompt")
	flags.String("log-file", a.v.GetString(config.KeyLogFile), "log file path (empty disables the file)")
	flags.String("log-level", a.v.GetString(config.KeyLogLevel), "log level: debug, info, warn or error")
	root.Flags().Bool("alt-screen", a.v.GetBool(config.KeyAltScreen), "use the terminal's alternate screen")

	bindFlags(a.v, root.PersistentFlags())
	bindFlags(a.v, root.Flags())

	root.AddCommand(a.askCommand(), a.reviewCommand(), a.summarizeCommand(), a.modelsCommand(), a.rosterCommand())
	return root
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			_ = v.BindPFlag(key, f)
		}
	})
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "kusanagi-tui: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) openSession(observers ...transcript.Option) (*session, error) {
	cfg, err := config.Load(a.v)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	svc, err := newService(cfg, log.Logger)
	if err != nil {
		_ = log.Close()
		return nil, err
	}
	log.Info().
		Str("backend", cfg.Backend).
		Str("model", cfg.Model).
		Int("participants", len(cfg.Roster)).
		Bool("document", cfg.Document != "").
		Msg("session starting")
	return &session{
		cfg:    cfg,
		log:    log,
		view:   transcript.New(log.Logger, observers...),
		svc:    svc,
		roster: cfg.Roster,
	}, nil
}

func (a *app) runTUI(cmd *cobra.Command, _ []string) error {
	bridge := tui.NewBridge()
	defer bridge.Close()
	s, err := a.openSession(transcript.WithObserver(bridge.TranscriptChanged))
	if err != nil {
		return err
	}
	defer s.Close()

	orch := orchestrator.New(s.view, s.svc, s.roster, s.log.Logger, orchestrator.WithProgress(bridge.Progress))
	ctrl := controller.New(orch, bridge, s.log.Logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	opts := tui.Options{
		Backend:      s.cfg.Backend,
		Model:        s.cfg.Model,
		Roster:       lo.Map(s.roster, func(p query.Participant, _ int) string { return p.Name }),
		DocumentPath: s.cfg.DocumentPath,
		Participant:  orch.Participant,
	}
	if reporter, ok := s.svc.(query.HealthReporter); ok {
		opts.Health = reporter.Health
	}
	model := tui.New(ctx, tui.Deps{
		Transcript: s.view,
		Controller: ctrl,
		Bridge:     bridge,
		Log:        s.log.Logger,
		LogTail:    s.log.Tail(),
	}, opts)

	programOpts := []tea.ProgramOption{tea.WithMouseCellMotion(), tea.WithContext(ctx)}
	if s.cfg.AltScreen {
		programOpts = append(programOpts, tea.WithAltScreen())
	}
	_, err = tea.NewProgram(model, programOpts...).Run()
	bridge.Close()
	ctrl.Cancel()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
