// File: internal/platform/platform.go
// Package platform is the boundary to the host OS: window enumeration,
// process lifecycle and process launch. Everything above this package works
// in terms of these interfaces, so the whole agent can run against the
// in-memory simulator in tests and with --simulate.
package platform

import (
	"context"
	"errors"

	"github.com/xkilldash9x/deskpilot-cli/api/schemas"
)

var (
	// ErrNoDesktop reports that the current host has no window system to
	// observe or drive.
	ErrNoDesktop = errors.New("platform: no desktop session available")
	// ErrWindowGone reports that a window handle no longer refers to a live
	// window. Handles are only ever observed, never invented, and must be
	// re-validated before each use.
	ErrWindowGone = errors.New("platform: window handle is no longer valid")
	// ErrProcessGone reports an operation on a process that already exited.
	ErrProcessGone = errors.New("platform: process has exited")
)

// WindowOracle answers questions about the host's current windows. Every
// answer is a fresh observation; callers must not cache liveness.
type WindowOracle interface {
	// ListWindows enumerates all top-level windows in OS order.
	ListWindows(ctx context.Context) ([]schemas.WindowInfo, error)
	// IsWindow reports whether the handle still refers to a live window.
	IsWindow(handle schemas.WindowHandle) bool
	// Focus brings the window to the foreground.
	Focus(handle schemas.WindowHandle) error
	// Show applies a show command (restore, minimize, maximize).
	Show(handle schemas.WindowHandle, cmd schemas.ShowCommand) error
	// RequestClose asks the window to close gracefully. It does not wait.
	RequestClose(handle schemas.WindowHandle) error
	// ForegroundWindow returns the currently focused window, if any.
	ForegroundWindow() (schemas.WindowHandle, bool)
	// ProcessName resolves a PID to its executable name.
	ProcessName(pid int) (string, error)
}

// ProcessController manages already-running processes by PID.
type ProcessController interface {
	// IsAlive reports whether the process is still running.
	IsAlive(pid int) bool
	// Terminate requests a graceful shutdown of the process.
	Terminate(pid int) error
	// Kill force-terminates the process.
	Kill(pid int) error
}

// LaunchSpec describes one process launch. Exactly one of Path or Shell is
// set; config validation enforces that upstream.
type LaunchSpec struct {
	Path       string
	Shell      string
	Args       []string
	WorkingDir string
	// Env is the application's configured environment.
	Env map[string]string
	// InheritEnv prepends the host environment under Env.
	InheritEnv bool
	// Overrides are per-launch caller values; they win over everything.
	Overrides map[string]string
}

// Launched describes a process the launcher started.
type Launched struct {
	PID int
	// Command is the resolved executable or shell line, for logging.
	Command string
}

// Launcher starts processes.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Launched, error)
}

// Host bundles the three OS capabilities the rest of the agent needs.
type Host interface {
	WindowOracle
	ProcessController
	Launcher
}
