package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
)

// NewClient connects to the Docker daemon described by the environment and
// checks that it answers. Image-based channel plugins need it.
func NewClient(ctx context.Context) (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf(`Docker daemon not accessible: %w

Image-based plugins need a running Docker daemon. Either start Docker or
give the plugin a command instead of an image.`, err)
	}

	return cli, nil
}
