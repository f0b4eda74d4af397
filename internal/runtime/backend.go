// Package runtime invokes module executables with the stable flag
// contract a stage's manifest describes, isolates each invocation in a
// subprocess or container, tees output to a per-stage driver log, and
// provides patch-file application for artifacts (LoadPatch, Apply,
// ApplyAndReport). RunStage does not apply patches itself.
package runtime

import (
	"context"
	"io"
	"time"
)

// ProcessSpec is everything a Backend needs to start one module
// invocation.
type ProcessSpec struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
	Stdout  io.Writer
	Stderr  io.Writer
}

// ExitResult is the terminal state of a started process.
type ExitResult struct {
	ExitCode    int
	CompletedAt time.Time
	Err         error
}

// Handle opaquely identifies a process a Backend started; backends are
// free to interpret it as a PID, a container name, or anything else.
type Handle interface{}

// Backend isolates one module invocation, mirroring the
// subprocess/container split a content-extraction pipeline needs: the
// default backend runs the module's entrypoint directly, an optional
// one runs it inside a container built from the module's declared
// image.
type Backend interface {
	// Start launches the process described by spec and returns a
	// handle the caller can later Wait on or Kill.
	Start(ctx context.Context, spec ProcessSpec) (Handle, error)
	// Wait blocks until the process started by Start completes.
	Wait(ctx context.Context, handle Handle) (ExitResult, error)
	// Kill terminates a running process, escalating from a graceful
	// signal to a forceful one if it does not exit in time.
	Kill(ctx context.Context, handle Handle) error
	// Name identifies the backend in logs and progress events.
	Name() string
}
