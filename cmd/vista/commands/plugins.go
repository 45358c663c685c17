package commands

import (
	"github.com/dyluth/vista/internal/plugin"
	"github.com/dyluth/vista/internal/printer"
	"github.com/spf13/cobra"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List the plugins available to the workspace",
	Long: `List the plugins vista would start for the workspace.

Plugins configured in vista.yml come first. Executables in
.vista/plugins/ become command plugins and .vista/plugins/channel/<id>/plugin.yml
manifests become channel plugins. Nothing is started.`,
	Args: cobra.NoArgs,
	RunE: runPlugins,
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
}

func runPlugins(cmd *cobra.Command, args []string) error {
	ws, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}

	locator := &plugin.Locator{
		Configured:    cfg.PluginList(),
		WorkspaceDirs: []string{ws},
		Defaults:      *cfg.Defaults,
	}
	found, err := locator.Locate()
	if err != nil {
		return printer.Error("failed to locate plugins", err.Error(), nil)
	}

	rows := make([]printer.PluginRow, len(found))
	for i, p := range found {
		rows[i] = printer.PluginRow{Plugin: p}
	}
	printer.FormatPlugins(cmd.OutOrStdout(), rows, cfg.Instance)
	return nil
}
