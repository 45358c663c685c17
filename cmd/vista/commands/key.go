package commands

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dyluth/vista/internal/document"
	"github.com/dyluth/vista/internal/printer"
	"github.com/dyluth/vista/pkg/views"
	"github.com/spf13/cobra"
)

var (
	keyDoc    string
	keyPath   string
	keyPlugin string
	keyView   string
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Format or parse view keys",
}

var keyFormatCmd = &cobra.Command{
	Use:   "format",
	Short: "Print the canonical form of a view key",
	Example: `  vista key format --file specs/app.sysl --plugin diagrams --view overview
  vista key format --doc file:///repo/app.sysl`,
	Args: cobra.NoArgs,
	RunE: runKeyFormat,
}

var keyParseCmd = &cobra.Command{
	Use:     "parse KEY",
	Short:   "Print the fields of a view key as JSON",
	Example: `  vista key parse 'view+file:///repo/app.sysl?pluginId=diagrams&viewId=overview'`,
	Args:    cobra.ExactArgs(1),
	RunE:    runKeyParse,
}

func init() {
	keyFormatCmd.Flags().StringVar(&keyDoc, "doc", "", "Document URI")
	keyFormatCmd.Flags().StringVar(&keyPath, "file", "", "Document path, converted to a file URI")
	keyFormatCmd.Flags().StringVar(&keyPlugin, "plugin", "", "Plugin id")
	keyFormatCmd.Flags().StringVar(&keyView, "view", "", "View id")
	keyFormatCmd.MarkFlagsMutuallyExclusive("doc", "file")

	keyCmd.AddCommand(keyFormatCmd, keyParseCmd)
	rootCmd.AddCommand(keyCmd)
}

func runKeyFormat(cmd *cobra.Command, args []string) error {
	doc := keyDoc
	if keyPath != "" {
		d, err := documentURI(keyPath)
		if err != nil {
			return err
		}
		doc = d
	}

	key := views.Key{DocURI: doc, PluginID: keyPlugin, ViewID: keyView}
	fmt.Fprintln(cmd.OutOrStdout(), key.String())
	return nil
}

func runKeyParse(cmd *cobra.Command, args []string) error {
	key, err := views.ParseKey(args[0])
	if err != nil {
		return printer.Error(
			"invalid view key",
			err.Error(),
			[]string{"Keys look like view+<document uri>?pluginId=<id>&viewId=<id>"},
		)
	}

	data, err := json.MarshalIndent(key, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// documentURI turns a path into the file URI vista uses for documents.
func documentURI(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	return document.URIFromPath(abs), nil
}
