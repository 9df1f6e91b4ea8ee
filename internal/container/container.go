// Package container copies files out of the running workshop container. It
// shells out to podman or docker; the invocation is injectable so tests run
// without a container runtime.
package container

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrRuntimeNotFound is returned when no usable container runtime is on PATH.
var ErrRuntimeNotFound = errors.New("no container runtime found")

// Runner executes an external command and returns its combined output and
// exit code.
type Runner func(ctx context.Context, name string, args ...string) (string, int, error)

// LookPath resolves a binary on PATH. Matches exec.LookPath.
type LookPath func(name string) (string, error)

// Options configures a Client
type Options struct {
	// Runtime is podman, docker, or auto. Auto probes podman first.
	Runtime string
	// Name of the workshop container, e.g. "server".
	Name     string
	Runner   Runner
	LookPath LookPath
}

// Client talks to one named container through its runtime CLI
type Client struct {
	runtime string
	name    string
	runner  Runner
}

// NewClient resolves the container runtime and returns a client
func NewClient(opts Options) (*Client, error) {
	lookPath := opts.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	runner := opts.Runner
	if runner == nil {
		runner = execCommand
	}

	runtime, err := resolveRuntime(opts.Runtime, lookPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		runtime: runtime,
		name:    opts.Name,
		runner:  runner,
	}, nil
}

// resolveRuntime maps the configured runtime to a binary on PATH
func resolveRuntime(runtime string, lookPath LookPath) (string, error) {
	switch runtime {
	case "", "auto":
		for _, candidate := range []string{"podman", "docker"} {
			if _, err := lookPath(candidate); err == nil {
				return candidate, nil
			}
		}
		return "", fmt.Errorf("probed podman and docker: %w", ErrRuntimeNotFound)
	case "podman", "docker":
		if _, err := lookPath(runtime); err != nil {
			return "", fmt.Errorf("%s not on PATH: %w", runtime, ErrRuntimeNotFound)
		}
		return runtime, nil
	default:
		return "", fmt.Errorf("unsupported container runtime %q", runtime)
	}
}

// Runtime returns the resolved runtime binary name
func (c *Client) Runtime() string {
	return c.runtime
}

// ContainerName returns the container this client targets
func (c *Client) ContainerName() string {
	return c.name
}

// CopyFile copies containerPath out of the container to localPath
func (c *Client) CopyFile(ctx context.Context, containerPath, localPath string) error {
	args := []string{"cp", c.name + ":" + containerPath, localPath}

	output, exitCode, err := c.runner(ctx, c.runtime, args...)
	if err != nil || exitCode != 0 {
		return formatCommandError(c.runtime, args, output, err, exitCode)
	}
	return nil
}

// Running reports whether the container is up
func (c *Client) Running(ctx context.Context) (bool, error) {
	args := []string{"inspect", "--format", "{{.State.Running}}", c.name}

	output, exitCode, err := c.runner(ctx, c.runtime, args...)
	if err != nil || exitCode != 0 {
		return false, formatCommandError(c.runtime, args, output, err, exitCode)
	}
	return strings.TrimSpace(output) == "true", nil
}

// execCommand is the default Runner backed by os/exec
func execCommand(ctx context.Context, name string, args ...string) (string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	return string(output), exitCode, err
}

// formatCommandError folds the tool's output into a readable error
func formatCommandError(name string, args []string, output string, err error, exitCode int) error {
	if output != "" {
		return fmt.Errorf("%s %s failed (exit=%d): %s", name, strings.Join(args, " "), exitCode, strings.TrimSpace(output))
	}
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", name, strings.Join(args, " "), err)
	}
	return fmt.Errorf("%s %s failed", name, strings.Join(args, " "))
}
