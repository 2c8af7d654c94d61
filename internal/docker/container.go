package docker

import (
	"box/internal/sandbox"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/strslice"
)

// Labels set on every container box creates.
const (
	LabelManaged = "box.managed"
	LabelDirs    = "box.dirs"
)

// keepAlive is the container command. It does no work and keeps the
// container running so commands can be exec'd into it.
var keepAlive = strslice.StrSlice{"sleep", "infinity"}

// hardenedCaps is re-added after dropping every capability, enough for
// ordinary file ownership and permission changes.
var hardenedCaps = []string{"CHOWN", "DAC_OVERRIDE", "FOWNER", "SETGID", "SETUID"}

// Create runs the container described by sb detached: created, then started.
// A missing image is pulled once and the create is reissued.
func (c *Client) Create(ctx context.Context, sb sandbox.Sandbox) error {
	cfg, hostCfg := createConfig(sb)

	_, err := c.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, sb.Name)
	if err != nil && cerrdefs.IsNotFound(err) {
		c.logger.Info("pulling image", "image", sb.Image)
		if pullErr := c.pull(ctx, sb.Image); pullErr != nil {
			return mutationErr("pull image "+sb.Image, pullErr)
		}
		_, err = c.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, sb.Name)
	}
	if err != nil {
		return mutationErr("create container "+sb.Name, err)
	}

	if err := c.api.ContainerStart(ctx, sb.Name, container.StartOptions{}); err != nil {
		// A container left in "created" is an unknown state on the next run.
		if rmErr := c.api.ContainerRemove(context.WithoutCancel(ctx), sb.Name, container.RemoveOptions{Force: true}); rmErr != nil {
			c.logger.Warn("could not remove container after failed start", "container", sb.Name, "err", rmErr)
		}
		return mutationErr("start container "+sb.Name, err)
	}
	return nil
}

// Start starts an existing stopped container.
func (c *Client) Start(ctx context.Context, name string) error {
	if err := c.api.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return mutationErr("start container "+name, err)
	}
	return nil
}

// Remove stops and deletes the named container.
func (c *Client) Remove(ctx context.Context, name string) error {
	if err := c.api.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil {
		return mutationErr("remove container "+name, err)
	}
	return nil
}

func (c *Client) pull(ctx context.Context, ref string) error {
	rc, err := c.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer rc.Close()

	// The pull only completes once the progress stream is drained.
	_, err = io.Copy(io.Discard, rc)
	return err
}

// createConfig builds the container and host configuration for sb.
func createConfig(sb sandbox.Sandbox) (*container.Config, *container.HostConfig) {
	binds := make([]string, 0, len(sb.Mounts))
	for _, p := range sb.Mounts {
		binds = append(binds, p+":"+p+":rw")
	}

	cfg := &container.Config{
		Image: sb.Image,
		Cmd:   append(strslice.StrSlice(nil), keepAlive...),
		Labels: map[string]string{
			LabelManaged: "true",
			LabelDirs:    strings.Join(sb.Mounts, string(os.PathListSeparator)),
		},
	}

	hostCfg := &container.HostConfig{
		Binds: binds,
	}
	if sb.Profile.Hardened() {
		hostCfg.NetworkMode = container.NetworkMode("none")
		hostCfg.SecurityOpt = []string{"no-new-privileges:true"}
		hostCfg.CapDrop = []string{"ALL"}
		hostCfg.CapAdd = append([]string(nil), hardenedCaps...)
	}

	return cfg, hostCfg
}

func mutationErr(action string, err error) error {
	return fmt.Errorf("%w: %s: %v", sandbox.ErrRuntimeMutationFailed, action, err)
}
