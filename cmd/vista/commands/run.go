package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/vista/internal/config"
	"github.com/dyluth/vista/internal/document"
	"github.com/dyluth/vista/internal/health"
	"github.com/dyluth/vista/internal/printer"
	"github.com/dyluth/vista/internal/surface"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var (
	runWatch      []string
	runExtensions []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start plugins and serve views until interrupted",
	Long: `Start every plugin found for the workspace and keep their views in sync
with the documents being edited.

Renderers connect to ws://<surface addr>/surface?doc=<document uri>; the
plugins then render that document. Files under the watched paths fire change and save events; by default the
workspace root is watched.

Examples:
  # Watch the workspace and serve views
  vista run

  # Watch only .sysl files in two directories
  vista run --watch specs --watch models --ext .sysl`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringSliceVar(&runWatch, "watch", nil, "Files or directories to watch (default: workspace root)")
	runCmd.Flags().StringSliceVar(&runExtensions, "ext", nil, "Only watch files with these extensions, e.g. .sysl")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}

	watch := runWatch
	if len(watch) == 0 {
		watch = []string{ws}
	}

	var st *stack
	hub := surface.NewHub(
		surface.WithOpenTimeout(cfg.Surface.OpenTimeout),
		surface.WithOnRequest(func(docURI string) {
			printer.Info("Waiting for a renderer: ws://%s/surface?doc=%s\n", cfg.Surface.Addr, url.QueryEscape(docURI))
		}),
		surface.WithUnsolicited(func(s surface.Surface) {
			st.adopt(s)
		}),
	)

	reg := prometheus.NewRegistry()
	st, err = newStack(stackOptions{
		Workspace:  ws,
		Config:     cfg,
		Opener:     hub,
		Producers:  []document.Producer{document.NewFileWatcher(watch, runExtensions...)},
		Registerer: reg,
	})
	if err != nil {
		return err
	}

	surfaceSrv, err := serveSurfaces(cfg.Surface.Addr, hub)
	if err != nil {
		st.close(context.Background())
		return printer.Error(
			"failed to start surface server",
			err.Error(),
			[]string{fmt.Sprintf("Free the address or set %s", config.EnvSurfaceAddr)},
		)
	}

	var healthSrv *health.Server
	if !cfg.Health.Disabled {
		healthSrv = health.NewServer(cfg.Health.Addr, reg)
		healthSrv.AddReadinessCheck("redis", health.RedisCheck(st.rdb))
		healthSrv.AddReadinessCheck("plugins", st.engine.StartErr)
		if err := healthSrv.Start(); err != nil {
			log.Printf("[WARN] Health server disabled: %v", err)
			healthSrv = nil
		}
	}

	printer.Step("Starting plugins for %s\n", ws)
	if err := st.engine.Activate(ctx); err != nil {
		shutdown(st, surfaceSrv, hub, healthSrv)
		return printer.Error("failed to start plugins", err.Error(), nil)
	}
	printer.Success("Vista '%s' running with %d plugin(s), renderers connect to ws://%s/surface\n",
		cfg.Instance, st.started(), cfg.Surface.Addr)

	<-ctx.Done()
	printer.Step("Shutting down...\n")
	return shutdown(st, surfaceSrv, hub, healthSrv)
}

// serveSurfaces mounts hub at /surface and serves it in the background.
func serveSurfaces(addr string, hub *surface.Hub) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/surface", hub)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[ERROR] Surface server error: %v", err)
		}
	}()
	return srv, nil
}

// shutdown stops plugins first so their last edits still reach open
// surfaces, then closes the servers.
func shutdown(st *stack, surfaceSrv *http.Server, hub *surface.Hub, healthSrv *health.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := st.close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := hub.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close surface hub: %w", err))
	}
	if err := surfaceSrv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop surface server: %w", err))
	}
	if healthSrv != nil {
		if err := healthSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop health server: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return printer.Error("shutdown incomplete", err.Error(), nil)
	}
	printer.Success("Stopped\n")
	return nil
}
