// File: internal/platform/exec.go
package platform

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"go.uber.org/zap"
)

// ExecLauncher starts real OS processes with os/exec. Started processes are
// detached from the agent's lifetime; the registry tracks them by PID.
type ExecLauncher struct {
	logger *zap.Logger
}

// NewExecLauncher returns a launcher writing through the given logger.
func NewExecLauncher(logger *zap.Logger) *ExecLauncher {
	return &ExecLauncher{logger: logger.Named("Launcher")}
}

// Launch starts the process described by spec and returns immediately with
// its PID. The child runs in its own session so it outlives the agent and
// the launch context; it is reaped in the background so it never zombies.
func (l *ExecLauncher) Launch(ctx context.Context, spec LaunchSpec) (Launched, error) {
	var cmd *exec.Cmd
	var display string
	switch {
	case spec.Shell != "":
		display = spec.Shell
		// Extra args become the shell command's positional parameters
		// ($1 and up), the contract /bin/sh itself offers.
		argv := []string{"-c", spec.Shell}
		if len(spec.Args) > 0 {
			argv = append(argv, "sh")
			argv = append(argv, spec.Args...)
		}
		cmd = exec.Command("/bin/sh", argv...)
	case spec.Path != "":
		display = spec.Path
		cmd = exec.Command(spec.Path, spec.Args...)
	default:
		return Launched{}, fmt.Errorf("launch spec has no path or shell")
	}

	cmd.Dir = spec.WorkingDir
	cmd.Env = MergeEnv(spec)
	cmd.Stdout = nil
	cmd.Stderr = nil
	// Own session: canceling ctx or stopping the agent must not take the
	// launched application with it.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return Launched{}, fmt.Errorf("starting %q: %w", display, err)
	}

	pid := cmd.Process.Pid
	l.logger.Info("Process started.",
		zap.String("command", display),
		zap.Int("pid", pid))

	go func() {
		if err := cmd.Wait(); err != nil {
			l.logger.Debug("Process exited with error.",
				zap.Int("pid", pid), zap.Error(err))
		}
	}()

	return Launched{PID: pid, Command: display}, nil
}

// OSProcessController drives real processes by PID.
type OSProcessController struct{}

// NewOSProcessController returns the host-backed process controller.
func NewOSProcessController() *OSProcessController { return &OSProcessController{} }

// IsAlive reports whether the PID refers to a running process.
func (c *OSProcessController) IsAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes existence without delivering anything.
	return proc.Signal(syscall.Signal(0)) == nil
}

// Terminate requests a graceful shutdown.
func (c *OSProcessController) Terminate(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return ErrProcessGone
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return ErrProcessGone
	}
	return nil
}

// Kill force-terminates the process.
func (c *OSProcessController) Kill(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return ErrProcessGone
	}
	if err := proc.Kill(); err != nil {
		return ErrProcessGone
	}
	return nil
}
