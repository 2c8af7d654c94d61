package docker

import (
	"box/internal/sandbox"
	"context"
	"fmt"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
)

// State reports the lifecycle phase of the named container along with the
// daemon's own name for it. A missing container is StatusAbsent, not an error.
func (c *Client) State(ctx context.Context, name string) (sandbox.Status, string, error) {
	resp, err := c.api.ContainerInspect(ctx, name)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return sandbox.StatusAbsent, "", nil
		}
		return sandbox.StatusOther, "", fmt.Errorf("%w: %s: %v", sandbox.ErrRuntimeQueryFailed, name, err)
	}
	if resp.ContainerJSONBase == nil || resp.State == nil {
		return sandbox.StatusOther, "", fmt.Errorf("%w: %s: inspect response has no state", sandbox.ErrRuntimeQueryFailed, name)
	}

	raw := string(resp.State.Status)
	return sandbox.ParseStatus(raw), raw, nil
}

// Config reads the bind mounts and image of the named container. It never
// fails: when the configuration cannot be read the result is Unknown, which
// the reconciler treats as drift.
func (c *Client) Config(ctx context.Context, name string) sandbox.ObservedConfig {
	resp, err := c.api.ContainerInspect(ctx, name)
	if err != nil {
		c.logger.Debug("config inspection failed", "container", name, "err", err)
		return sandbox.UnknownConfig()
	}
	return observedConfig(resp)
}

// Inspect returns a fresh ObservedState. The configuration is only queried
// for a container that exists.
func (c *Client) Inspect(ctx context.Context, name string) (sandbox.ObservedState, error) {
	status, raw, err := c.State(ctx, name)
	if err != nil {
		return sandbox.ObservedState{}, err
	}

	state := sandbox.ObservedState{Status: status, RawStatus: raw}
	if state.Exists() {
		state.Config = c.Config(ctx, name)
	}
	return state, nil
}

// observedConfig extracts bind mounts and the configured image from an inspect response.
func observedConfig(resp container.InspectResponse) sandbox.ObservedConfig {
	if resp.Config == nil {
		return sandbox.UnknownConfig()
	}

	mounts := make(map[string]string, len(resp.Mounts))
	for _, m := range resp.Mounts {
		if m.Type != mount.TypeBind {
			continue
		}
		mounts[m.Source] = m.Destination
	}
	return sandbox.KnownConfig(mounts, resp.Config.Image)
}
