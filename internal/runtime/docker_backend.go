package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerMount is one host-directory-to-container-path bind the caller
// wants attached to a module's container, in addition to the image's
// own filesystem.
type DockerMount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// DockerSpec augments ProcessSpec with the container-specific detail a
// subprocess has no equivalent for.
type DockerSpec struct {
	ProcessSpec
	Image   string
	Mounts  []DockerMount
	Network string
}

// DockerBackend runs a module's entrypoint inside a container, binding
// the stage's input and output directories in rather than copying
// data through a shared context directory.
type DockerBackend struct {
	cli *client.Client

	mu    sync.Mutex
	names map[string]string // handle -> container name
}

// NewDockerBackend negotiates a client against the local Docker daemon
// using the same environment-driven discovery as the Docker CLI.
func NewDockerBackend() (*DockerBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("runtime: initialize docker client: %w", err)
	}
	return &DockerBackend{cli: cli, names: make(map[string]string)}, nil
}

func (b *DockerBackend) Name() string { return "docker" }

// StartDocker is the docker-specific entry point; Start (required by
// the Backend interface) rejects a bare ProcessSpec since a container
// needs an image and mounts a plain subprocess spec has no room for.
func (b *DockerBackend) StartDocker(ctx context.Context, spec DockerSpec) (Handle, error) {
	if spec.Image == "" {
		return nil, fmt.Errorf("runtime: docker backend requires an image")
	}

	name := fmt.Sprintf("codex-forge-%d", time.Now().UnixNano())

	mounts := make([]mount.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	containerConfig := &container.Config{
		Image:      spec.Image,
		Cmd:        append([]string{spec.Command}, spec.Args...),
		WorkingDir: spec.Dir,
		Env:        spec.Env,
		Tty:        false,
	}
	hostConfig := &container.HostConfig{
		Mounts:     mounts,
		AutoRemove: false,
	}
	if spec.Network != "" {
		hostConfig.NetworkMode = container.NetworkMode(spec.Network)
	}

	resp, err := b.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("runtime: create container for %s: %w", spec.Image, err)
	}
	if err := b.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("runtime: start container %s: %w", name, err)
	}

	b.mu.Lock()
	b.names[name] = name
	b.mu.Unlock()

	return name, nil
}

// Start implements Backend by refusing the call — the docker backend
// must be driven through StartDocker so the caller can supply an
// image and mounts.
func (b *DockerBackend) Start(ctx context.Context, spec ProcessSpec) (Handle, error) {
	return nil, fmt.Errorf("runtime: docker backend requires StartDocker, not Start")
}

// Wait blocks until the named container stops, then returns its exit
// code, with ExitResult.Err set from the error message the daemon
// reports alongside the wait status, if any. Container logs are not
// read here.
func (b *DockerBackend) Wait(ctx context.Context, handle Handle) (ExitResult, error) {
	name, ok := handle.(string)
	if !ok {
		return ExitResult{}, fmt.Errorf("runtime: docker backend received non-container handle %v", handle)
	}

	statusCh, errCh := b.cli.ContainerWait(ctx, name, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return ExitResult{}, fmt.Errorf("runtime: wait for container %s: %w", name, err)
		}
		return ExitResult{}, fmt.Errorf("runtime: container %s wait closed with no status", name)
	case status := <-statusCh:
		result := ExitResult{ExitCode: int(status.StatusCode), CompletedAt: time.Now()}
		if status.Error != nil {
			result.Err = fmt.Errorf("runtime: container %s reported error: %s", name, status.Error.Message)
		}
		return result, nil
	case <-ctx.Done():
		return ExitResult{}, ctx.Err()
	}
}

// Kill stops and removes the named container.
func (b *DockerBackend) Kill(ctx context.Context, handle Handle) error {
	name, ok := handle.(string)
	if !ok {
		return fmt.Errorf("runtime: docker backend received non-container handle %v", handle)
	}
	if err := b.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		return fmt.Errorf("runtime: remove container %s: %w", name, err)
	}
	b.mu.Lock()
	delete(b.names, name)
	b.mu.Unlock()
	return nil
}

// CaptureLogs copies a finished container's stdout/stderr into w,
// demultiplexing the docker log stream.
func (b *DockerBackend) CaptureLogs(ctx context.Context, handle Handle, w io.Writer) error {
	name, ok := handle.(string)
	if !ok {
		return fmt.Errorf("runtime: docker backend received non-container handle %v", handle)
	}
	logs, err := b.cli.ContainerLogs(ctx, name, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return fmt.Errorf("runtime: read logs for %s: %w", name, err)
	}
	defer logs.Close()

	var stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(w, &stderr, logs); err != nil {
		return fmt.Errorf("runtime: demux logs for %s: %w", name, err)
	}
	if stderr.Len() > 0 {
		_, _ = w.Write([]byte(strings.TrimSpace(stderr.String())))
	}
	return nil
}
