package plugin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dyluth/vista/internal/channel"
	"github.com/dyluth/vista/internal/config"
	"github.com/dyluth/vista/internal/docker"
	"github.com/dyluth/vista/internal/launcher"
	"github.com/redis/go-redis/v9"
)

// dockerConnectTimeout bounds connecting to the Docker daemon.
const dockerConnectTimeout = 10 * time.Second

// ClientFactory builds a CommandClient or a Redis-backed ChannelClient
// depending on the plugin kind.
type ClientFactory struct {
	deps Deps
	rdb  *redis.Client
	opts launcher.Options

	exec *launcher.Exec

	dockerOnce sync.Once
	container  *launcher.Container
	dockerErr  error
}

// NewClientFactory creates a factory. rdb may be nil when no channel
// plugins are configured.
func NewClientFactory(deps Deps, rdb *redis.Client, opts launcher.Options) *ClientFactory {
	return &ClientFactory{
		deps: deps,
		rdb:  rdb,
		opts: opts,
		exec: launcher.NewExec(opts),
	}
}

// Build implements Factory.
func (f *ClientFactory) Build(cfg config.Plugin) (Client, error) {
	switch cfg.Kind {
	case config.KindCommand:
		return NewCommandClient(cfg, f.deps), nil
	case config.KindChannel:
		if f.rdb == nil {
			return nil, fmt.Errorf("channel plugins require a Redis connection")
		}
		ch, err := channel.New(f.rdb, f.opts.Instance, cfg.ID, channel.WithMetrics(f.deps.metrics()))
		if err != nil {
			return nil, fmt.Errorf("failed to create channel: %w", err)
		}
		l, err := f.launcherFor(cfg)
		if err != nil {
			return nil, err
		}
		return NewChannelClient(cfg, ch, l, f.deps), nil
	default:
		return nil, fmt.Errorf("unknown plugin kind: %s", cfg.Kind)
	}
}

// launcherFor picks how to start a channel plugin. Plugins with neither a
// command nor an image are expected to be running already.
func (f *ClientFactory) launcherFor(cfg config.Plugin) (Launcher, error) {
	switch {
	case cfg.Image != "":
		f.dockerOnce.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), dockerConnectTimeout)
			defer cancel()
			cli, err := docker.NewClient(ctx)
			if err != nil {
				f.dockerErr = err
				return
			}
			f.container = launcher.NewContainer(cli, f.opts)
		})
		if f.dockerErr != nil {
			return nil, f.dockerErr
		}
		return f.container, nil
	case len(cfg.Command) > 0:
		return f.exec, nil
	default:
		return nil, nil
	}
}
