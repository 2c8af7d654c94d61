// Package docker talks to the Docker Engine API on behalf of box.
// It reads the state of a named container, creates, starts and removes
// it, and runs commands inside it.
package docker

import (
	"box/internal/sandbox"
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/docker/docker/client"
)

// Client wraps the Docker SDK client.
type Client struct {
	api    client.APIClient
	logger *log.Logger
}

// New connects to the daemon configured by the environment (DOCKER_HOST and friends).
func New(logger *log.Logger) (*Client, error) {
	api, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sandbox.ErrRuntimeUnavailable, err)
	}
	return NewWithAPI(api, logger), nil
}

// NewWithAPI wraps an existing API client.
func NewWithAPI(api client.APIClient, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		api:    api,
		logger: logger.WithPrefix("docker"),
	}
}

// Ping checks that the daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", sandbox.ErrRuntimeUnavailable, err)
	}
	return nil
}

// Close releases the underlying HTTP transport.
func (c *Client) Close() error {
	return c.api.Close()
}
