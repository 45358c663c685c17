package launcher

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/dyluth/vista/internal/config"
	"github.com/dyluth/vista/internal/docker"
)

const (
	// dockerHostAlias reaches the host's published ports from a container.
	dockerHostAlias = "host.docker.internal"

	stopTimeoutSeconds = 10
)

// Container launches plugins from Docker images.
type Container struct {
	cli   *client.Client
	opts  Options
	runID string
}

// NewContainer creates a launcher using cli. Every container it starts is
// labelled with the same run id.
func NewContainer(cli *client.Client, opts Options) *Container {
	return &Container{cli: cli, opts: opts, runID: docker.GenerateRunID()}
}

// Launch creates and starts a container for p.Image, replacing any
// leftover container of the same plugin.
func (c *Container) Launch(ctx context.Context, p config.Plugin) (Process, error) {
	if p.Image == "" {
		return nil, fmt.Errorf("plugin '%s': image is empty", p.ID)
	}

	name := docker.PluginContainerName(c.opts.Instance, p.ID)
	if err := c.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		return nil, fmt.Errorf("failed to remove stale container %s: %w", name, err)
	}

	opts := c.opts
	opts.RedisURL = ContainerRedisURL(opts.RedisURL)

	cfg, hostCfg := containerConfig(opts, c.runID, p)
	resp, err := c.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create plugin container: %w", err)
	}

	if err := c.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		c.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("failed to start plugin container: %w", err)
	}

	log.Printf("[INFO] Plugin container started: plugin=%s container=%s image=%s", p.ID, name, p.Image)
	return &containerProcess{cli: c.cli, id: resp.ID, name: name}, nil
}

func containerConfig(opts Options, runID string, p config.Plugin) (*container.Config, *container.HostConfig) {
	cfg := &container.Config{
		Image:  p.Image,
		Labels: docker.PluginLabels(opts.Instance, runID, opts.Workspace, p.ID),
		Env:    Env(opts, p),
	}
	hostCfg := &container.HostConfig{
		ExtraHosts: []string{dockerHostAlias + ":host-gateway"},
	}
	if opts.Workspace != "" {
		hostCfg.Binds = []string{fmt.Sprintf("%s:/workspace:ro", opts.Workspace)}
		cfg.WorkingDir = "/workspace"
	}

	if p.Debug && p.InspectPort > 0 {
		port := nat.Port(fmt.Sprintf("%d/tcp", p.InspectPort))
		cfg.ExposedPorts = nat.PortSet{port: struct{}{}}
		hostCfg.PortBindings = nat.PortMap{
			port: []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: fmt.Sprintf("%d", p.InspectPort),
				},
			},
		}
	}
	return cfg, hostCfg
}

// ContainerRedisURL rewrites a Redis URL pointing at the local host so it
// can be reached from inside a container.
func ContainerRedisURL(redisURL string) string {
	u, err := url.Parse(redisURL)
	if err != nil {
		return redisURL
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		if port := u.Port(); port != "" {
			u.Host = fmt.Sprintf("%s:%s", dockerHostAlias, port)
		} else {
			u.Host = dockerHostAlias
		}
	}
	return u.String()
}

type containerProcess struct {
	cli  *client.Client
	id   string
	name string
}

func (p *containerProcess) ID() string { return p.id }

func (p *containerProcess) Stop(ctx context.Context) error {
	timeout := stopTimeoutSeconds
	if err := p.cli.ContainerStop(ctx, p.id, container.StopOptions{Timeout: &timeout}); err != nil && !client.IsErrNotFound(err) {
		log.Printf("[WARN] Failed to stop plugin container: container=%s error=%v", p.name, err)
	}
	if err := p.cli.ContainerRemove(ctx, p.id, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to remove plugin container %s: %w", p.name, err)
	}
	log.Printf("[INFO] Plugin container removed: container=%s", p.name)
	return nil
}
