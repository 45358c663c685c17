package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/vista/internal/config"
	"github.com/dyluth/vista/internal/printer"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	workspaceDir string
	configPath   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vista",
	Short: "Vista - live views of your documents rendered by plugins",
	Long: `Vista keeps views of a document in sync with the plugins that produce them.

Plugins are either short-lived commands run once per document event, or
long-lived processes talking to vista over Redis. Views are shown by
renderers that connect to vista over WebSocket, one per document.`,
	Version: version,
	// Show help instead of silently succeeding without a subcommand.
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Errors are printed in color by the printer package.
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspaceDir, "workspace", "w", "", "Workspace root (default: current directory)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to vista.yml (default: <workspace>/vista.yml)")
}

// loadWorkspace resolves the workspace root and loads its configuration.
// A missing vista.yml in the workspace yields the default configuration;
// a missing file named with --config is an error.
func loadWorkspace() (string, *config.VistaConfig, error) {
	ws := workspaceDir
	if ws == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		ws = wd
	}
	ws, err := filepath.Abs(ws)
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}
	if info, err := os.Stat(ws); err != nil || !info.IsDir() {
		return "", nil, printer.Error(
			"workspace not found",
			fmt.Sprintf("'%s' is not a directory.", ws),
			[]string{"Pass an existing directory with --workspace"},
		)
	}

	var cfg *config.VistaConfig
	path := configPath
	if path == "" {
		path = filepath.Join(ws, config.FileName)
		cfg, err = config.LoadOrDefault(path)
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return "", nil, printer.ErrorWithContext(
			"failed to load configuration",
			err.Error(),
			map[string]string{"Config": path},
			[]string{"Fix the file, or remove it to run with defaults"},
		)
	}
	return ws, cfg, nil
}
