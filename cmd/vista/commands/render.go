package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dyluth/vista/internal/document"
	"github.com/dyluth/vista/internal/printer"
	"github.com/dyluth/vista/internal/surface"
	"github.com/dyluth/vista/pkg/protocol"
	"github.com/spf13/cobra"
)

var renderOutput string

var renderCmd = &cobra.Command{
	Use:   "render FILE",
	Short: "Render a document once and print the resulting views",
	Long: `Start the workspace plugins, ask each of them to render FILE, print the
views they opened and stop again. No renderer is needed.

Output Formats:
  default - One line per view with its key and label
  jsonl   - Every message a renderer would have received, one per line

Examples:
  vista render specs/app.sysl
  vista render specs/app.sysl -o jsonl | jq .model`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "default", "Output format: default or jsonl")

	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	if renderOutput != "default" && renderOutput != "jsonl" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", renderOutput),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	ws, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}

	doc, err := document.Load(args[0])
	if err != nil {
		return printer.Error("failed to read document", err.Error(), nil)
	}

	opener := &surface.MemoryOpener{}
	st, err := newStack(stackOptions{Workspace: ws, Config: cfg, Opener: opener})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	defer st.close(context.Background())

	if err := st.engine.Activate(ctx); err != nil {
		return printer.Error("failed to start plugins", err.Error(), nil)
	}
	if st.started() == 0 {
		return printer.Error(
			"no plugins running",
			fmt.Sprintf("No plugin could be started for workspace '%s'.", ws),
			[]string{"List the available plugins:\n  vista plugins"},
		)
	}

	if err := st.engine.Render(ctx, doc); err != nil {
		return printer.Error("render failed", err.Error(), nil)
	}

	out := cmd.OutOrStdout()
	if renderOutput == "jsonl" {
		return writeMessages(out, opener.Surfaces())
	}

	all := st.sortedViews()
	fmt.Fprintf(out, "%d view(s) for %s\n", len(all), doc.URI())
	labels := lastLabels(opener.Surfaces())
	for _, v := range all {
		fmt.Fprintf(out, "  %s\t%s\n", v.Key(), labels[v.Key().String()])
	}
	return nil
}

// writeMessages writes every message sent to the surfaces as JSON lines.
func writeMessages(w io.Writer, surfaces []*surface.Memory) error {
	enc := json.NewEncoder(w)
	for _, s := range surfaces {
		for _, msg := range s.Sent() {
			if err := enc.Encode(msg); err != nil {
				return fmt.Errorf("failed to write JSONL output: %w", err)
			}
		}
	}
	return nil
}

// lastLabels maps view keys to the label of the last model rendered for them.
func lastLabels(surfaces []*surface.Memory) map[string]string {
	labels := make(map[string]string)
	for _, s := range surfaces {
		for _, msg := range s.Sent() {
			if msg.Type == protocol.SurfaceRender && msg.Model != nil {
				labels[msg.ViewKey().String()] = msg.Model.Meta().Label
			}
		}
	}
	return labels
}
