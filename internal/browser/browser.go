// Package browser launches the sandboxed Firefox bound to a registry
// profile. The child runs detached in its own session with the standard
// streams on the null device; nothing ever waits on it.
package browser

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

const flatpakCommand = "flatpak"

// ErrFlatpakNotFound is returned when the flatpak executable is not on PATH.
var ErrFlatpakNotFound = errors.New("flatpak executable not found")

// ErrPermissionDenied is returned when the flatpak executable is not runnable.
var ErrPermissionDenied = errors.New("flatpak executable not permitted")

// StartFunc spawns argv detached and returns the child PID. Injectable for
// tests.
type StartFunc func(argv []string) (int, error)

// FlatpakCommand assembles the argv for one sandboxed browser invocation
type FlatpakCommand struct {
	// AppID is the flatpak application, e.g. org.mozilla.firefox.
	AppID string
	// Profile is passed to Firefox as -P <name>.
	Profile string
	// ExtraArgs are forwarded to the browser verbatim, after -P.
	ExtraArgs []string
}

// Build returns the full argv including the flatpak binary
func (c *FlatpakCommand) Build() []string {
	argv := []string{flatpakCommand, "run", c.AppID, "-P", c.Profile}
	return append(argv, c.ExtraArgs...)
}

// Options configures a Launcher
type Options struct {
	AppID string
	Start StartFunc
}

// Launcher spawns the sandboxed browser
type Launcher struct {
	appID string
	start StartFunc
}

// NewLauncher creates a Launcher for the given flatpak application
func NewLauncher(opts Options) *Launcher {
	start := opts.Start
	if start == nil {
		start = startDetached
	}
	return &Launcher{
		appID: opts.AppID,
		start: start,
	}
}

// Launch starts the browser bound to profile and returns the child PID. The
// PID is for diagnostics only; the child is never supervised.
func (l *Launcher) Launch(profile string, extraArgs []string) (int, error) {
	cmd := FlatpakCommand{
		AppID:     l.appID,
		Profile:   profile,
		ExtraArgs: extraArgs,
	}

	pid, err := l.start(cmd.Build())
	if err != nil {
		return 0, fmt.Errorf("failed to launch %s: %w", l.appID, classifyStartError(err))
	}
	return pid, nil
}

// startDetached spawns argv in a new session with no attached streams
func startDetached(argv []string) (int, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	// Stdin/Stdout/Stderr stay nil: os/exec connects them to /dev/null.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	pid := cmd.Process.Pid
	// Drop the handle; the child outlives us and init reaps it.
	_ = cmd.Process.Release()
	return pid, nil
}

// classifyStartError maps spawn failures onto the package sentinels
func classifyStartError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrFlatpakNotFound, err.Error())
	}
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, err.Error())
	}
	return err
}
