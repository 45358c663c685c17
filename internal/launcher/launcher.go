// Package launcher starts the processes behind channel plugins.
//
// A channel plugin talks to vista over Redis, so launching it only means
// starting it with the environment it needs to find its channels. Plugins
// run either as local processes or as Docker containers.
package launcher

import (
	"context"
	"fmt"

	"github.com/dyluth/vista/internal/config"
)

// Environment variables passed to every launched plugin.
const (
	EnvInstance    = config.EnvInstance
	EnvRedisURL    = config.EnvRedisURL
	EnvPluginID    = "VISTA_PLUGIN_ID"
	EnvInspectPort = "VISTA_INSPECT_PORT"
)

// Process is a running plugin.
type Process interface {
	ID() string
	// Stop asks the plugin to exit and forces it if ctx expires first.
	Stop(ctx context.Context) error
}

// Options are shared by every plugin launched for one vista instance.
type Options struct {
	Instance  string
	RedisURL  string
	Workspace string
}

// Env returns the environment for plugin p.
func Env(opts Options, p config.Plugin) []string {
	env := []string{
		fmt.Sprintf("%s=%s", EnvInstance, opts.Instance),
		fmt.Sprintf("%s=%s", EnvRedisURL, opts.RedisURL),
		fmt.Sprintf("%s=%s", EnvPluginID, p.ID),
	}
	if p.Debug && p.InspectPort > 0 {
		env = append(env, fmt.Sprintf("%s=%d", EnvInspectPort, p.InspectPort))
	}
	return append(env, p.Environment...)
}
