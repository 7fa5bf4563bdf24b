package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"kusanagi/internal/config"
	"kusanagi/internal/controller"
	"kusanagi/internal/orchestrator"
	"kusanagi/internal/query"
	"kusanagi/internal/transcript"
)

func (a *app) askCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the assistant once and print the exchange",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.Join(args, " ")
			return a.runOnce(cmd, format, func(ctx context.Context, ctrl *controller.Controller, _ *orchestrator.Orchestrator) error {
				return started(ctrl.Submit(ctx, raw, controller.ModeChat))
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", `output format: "text" or "markdown"`)
	return cmd
}

func (a *app) reviewCommand() *cobra.Command {
	var (
		format string
		as     string
	)
	cmd := &cobra.Command{
		Use:   "review [prompt]",
		Short: "Convene the review panel once and print every review",
		Long: `Convene the review panel once and print every review. With --as only the
named panel member reviews.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.Join(args, " ")
			if as == "" {
				return a.runOnce(cmd, format, func(ctx context.Context, ctrl *controller.Controller, _ *orchestrator.Orchestrator) error {
					return started(ctrl.Submit(ctx, raw, controller.ModeReview))
				})
			}
			return a.runOnce(cmd, format, func(ctx context.Context, ctrl *controller.Controller, orch *orchestrator.Orchestrator) error {
				participant, ok := orch.Participant(as)
				if !ok {
					return fmt.Errorf("no panel member named %q", as)
				}
				return started(ctrl.SubmitTo(ctx, participant, raw))
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", `output format: "text" or "markdown"`)
	cmd.Flags().StringVar(&as, "as", "", "ask only this panel member")
	return cmd
}

func (a *app) summarizeCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize the document given with --document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.v.GetString(config.KeyDocument) == "" {
				return fmt.Errorf("summarize needs --document")
			}
			return a.runOnce(cmd, format, func(ctx context.Context, ctrl *controller.Controller, _ *orchestrator.Orchestrator) error {
				return started(ctrl.Submit(ctx, "", controller.ModeSummarize))
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", `output format: "text" or "markdown"`)
	return cmd
}

func (a *app) modelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models the backend serves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openSession()
			if err != nil {
				return err
			}
			defer s.Close()
			lister, ok := s.svc.(query.ModelLister)
			if !ok {
				return fmt.Errorf("backend %s cannot list models", s.cfg.Backend)
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			models, err := lister.Models(ctx)
			if err != nil {
				return fmt.Errorf("list models: %s", query.Describe(err))
			}
			for _, name := range models {
				marker := " "
				if name == s.cfg.Model {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
			}
			return nil
		},
	}
}

func (a *app) rosterCommand() *cobra.Command {
	var (
		initPath string
		asTable  bool
	)
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Print the effective review panel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if initPath != "" {
				if err := config.EnsureRosterFile(initPath); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "roster written to %s\n", initPath)
				return nil
			}
			cfg, err := config.Load(a.v)
			if err != nil {
				return err
			}
			if asTable {
				writeRosterTable(cmd.OutOrStdout(), cfg.Roster)
				return nil
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(map[string]any{"participants": cfg.Roster}); err != nil {
				return fmt.Errorf("encode roster: %w", err)
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVar(&initPath, "init", "", "write the default roster to this path and exit")
	cmd.Flags().BoolVar(&asTable, "table", false, "print a table instead of YAML")
	return cmd
}

// runOnce drives a single protocol run without the TUI and writes the
// transcript to stdout. Interrupts cancel the run.
func (a *app) runOnce(cmd *cobra.Command, rawFormat string, submit func(context.Context, *controller.Controller, *orchestrator.Orchestrator) error) error {
	format, err := transcript.ParseFormat(rawFormat)
	if err != nil {
		return err
	}
	s, err := a.openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	orch := orchestrator.New(s.view, s.svc, s.roster, s.log.Logger)
	ctrl := controller.New(orch, controller.GateFunc(func(bool) {}), s.log.Logger)
	if err := submit(ctx, ctrl, orch); err != nil {
		return err
	}
	return writeTranscript(cmd.OutOrStdout(), s.view, format)
}

var errNothingToSend = errors.New("nothing to send")

func started(ok bool) error {
	if !ok {
		return errNothingToSend
	}
	return nil
}

func writeRosterTable(w io.Writer, roster []query.Participant) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Name", "Brief"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetColWidth(72)
	table.SetBorder(false)
	for i, p := range roster {
		table.Append([]string{strconv.Itoa(i + 1), p.Name, p.Brief})
	}
	table.Render()
}

func writeTranscript(w io.Writer, view *transcript.View, format transcript.Format) error {
	if err := view.Export(w, format); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}
