package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/vista/internal/printer"
	"github.com/dyluth/vista/internal/scaffold"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a vista workspace",
	Long: `Initialize a vista workspace with a default configuration and an example plugin.

Creates:
  • vista.yml - Workspace configuration
  • .vista/plugins/example.sh - Example command plugin rendering one diagram

Use --force to overwrite existing files.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite existing vista.yml and example plugin")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := workspaceDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		dir = wd
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve workspace: %w", err)
	}

	files, err := scaffold.Initialize(dir, forceInit)
	if err != nil {
		return printer.Error("initialization failed", err.Error(), nil)
	}

	printer.Success("Initialized vista workspace in %s\n", dir)
	printer.Info("\nCreated:\n")
	for _, f := range files {
		printer.Info("  ✓ %s\n", f.Path)
	}
	printer.Info("\nNext steps:\n")
	printer.Info("  1. Run 'vista plugins' to see the example plugin\n")
	printer.Info("  2. Run 'vista render <file>' to render a document once\n")
	printer.Info("  3. Run 'vista run' and connect a renderer\n")
	return nil
}
