// File: internal/platform/headless.go
package platform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot-cli/api/schemas"
)

// HeadlessOracle is the window oracle for hosts without a desktop session.
// Window operations fail with ErrNoDesktop; process-name resolution still
// works so `apps list` stays useful over SSH.
type HeadlessOracle struct{}

// NewHeadlessOracle returns the no-desktop oracle.
func NewHeadlessOracle() *HeadlessOracle { return &HeadlessOracle{} }

func (o *HeadlessOracle) ListWindows(ctx context.Context) ([]schemas.WindowInfo, error) {
	return nil, nil
}

func (o *HeadlessOracle) IsWindow(schemas.WindowHandle) bool { return false }

func (o *HeadlessOracle) Focus(schemas.WindowHandle) error { return ErrNoDesktop }

func (o *HeadlessOracle) Show(schemas.WindowHandle, schemas.ShowCommand) error {
	return ErrNoDesktop
}

func (o *HeadlessOracle) RequestClose(schemas.WindowHandle) error { return ErrNoDesktop }

func (o *HeadlessOracle) ForegroundWindow() (schemas.WindowHandle, bool) { return 0, false }

// HeadlessHost composes the no-desktop oracle with the real launcher and
// process controller. It is the default host outside simulate mode until a
// desktop window backend is wired in.
type HeadlessHost struct {
	*HeadlessOracle
	*OSProcessController
	*ExecLauncher
}

var _ Host = (*HeadlessHost)(nil)

// NewHeadlessHost builds the composite host.
func NewHeadlessHost(logger *zap.Logger) *HeadlessHost {
	return &HeadlessHost{
		HeadlessOracle:      NewHeadlessOracle(),
		OSProcessController: NewOSProcessController(),
		ExecLauncher:        NewExecLauncher(logger),
	}
}

// ProcessName resolves the executable name from /proc. Falls back to the
// comm file when the exe link is unreadable.
func (o *HeadlessOracle) ProcessName(pid int) (string, error) {
	exe, err := os.Readlink(filepath.Join("/proc", strconv.Itoa(pid), "exe"))
	if err == nil {
		return filepath.Base(exe), nil
	}
	comm, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "comm"))
	if err != nil {
		return "", fmt.Errorf("resolving name for pid %d: %w", pid, ErrProcessGone)
	}
	name := string(comm)
	if n := len(name); n > 0 && name[n-1] == '\n' {
		name = name[:n-1]
	}
	return name, nil
}
