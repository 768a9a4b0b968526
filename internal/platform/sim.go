// File: internal/platform/sim.go
package platform

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/xkilldash9x/deskpilot-cli/api/schemas"
)

// Simulator is an in-memory Host. It backs --simulate runs and every test
// that needs window or process behavior without a real desktop.
type Simulator struct {
	mu         sync.Mutex
	nextPID    int
	nextHandle schemas.WindowHandle
	procs      map[int]*simProcess
	windows    []*simWindow
	foreground schemas.WindowHandle

	// autoWindows maps a launch command to the window the fake app opens.
	autoWindows map[string]simWindowSpec

	// Launches records every LaunchSpec, in order, for assertions.
	Launches []LaunchSpec
}

type simProcess struct {
	pid   int
	name  string
	alive bool
	// stubborn processes ignore graceful terminate and close requests.
	stubborn bool
}

type simWindow struct {
	handle    schemas.WindowHandle
	title     string
	class     string
	pid       int
	visible   bool
	minimized bool
}

type simWindowSpec struct {
	Title string
	Class string
}

// NewSimulator returns an empty simulated host.
func NewSimulator() *Simulator {
	return &Simulator{
		nextPID:     41000,
		nextHandle:  0x1000,
		procs:       map[int]*simProcess{},
		autoWindows: map[string]simWindowSpec{},
	}
}

var _ Host = (*Simulator)(nil)

// RegisterAutoWindow makes every launch of command open a window with the
// given title and class, the way a real GUI app would.
func (s *Simulator) RegisterAutoWindow(command, title, class string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoWindows[command] = simWindowSpec{Title: title, Class: class}
}

// Launch starts a fake process and, if the command has an auto window,
// opens it.
func (s *Simulator) Launch(ctx context.Context, spec LaunchSpec) (Launched, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	command := spec.Path
	if command == "" {
		command = spec.Shell
	}
	if command == "" {
		return Launched{}, fmt.Errorf("launch spec has no path or shell")
	}

	s.nextPID++
	pid := s.nextPID
	s.procs[pid] = &simProcess{
		pid:   pid,
		name:  filepath.Base(command),
		alive: true,
	}
	s.Launches = append(s.Launches, spec)

	if w, ok := s.autoWindows[command]; ok {
		s.spawnWindowLocked(pid, w.Title, w.Class)
	}
	return Launched{PID: pid, Command: command}, nil
}

// SpawnWindow opens a window for an existing process; used by tests to
// script late-appearing windows.
func (s *Simulator) SpawnWindow(pid int, title, class string) schemas.WindowHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawnWindowLocked(pid, title, class)
}

func (s *Simulator) spawnWindowLocked(pid int, title, class string) schemas.WindowHandle {
	s.nextHandle++
	w := &simWindow{
		handle:  s.nextHandle,
		title:   title,
		class:   class,
		pid:     pid,
		visible: true,
	}
	s.windows = append(s.windows, w)
	s.foreground = w.handle
	return w.handle
}

// SetStubborn marks a process as ignoring graceful shutdown requests. Only
// Kill removes it.
func (s *Simulator) SetStubborn(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.procs[pid]; ok {
		p.stubborn = true
	}
}

// SetWindowState adjusts visibility and minimization for a window.
func (s *Simulator) SetWindowState(handle schemas.WindowHandle, visible, minimized bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w := s.findLocked(handle); w != nil {
		w.visible = visible
		w.minimized = minimized
	}
}

// SetWindowTitle renames a window, simulating a title change such as a
// document switch.
func (s *Simulator) SetWindowTitle(handle schemas.WindowHandle, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w := s.findLocked(handle); w != nil {
		w.title = title
	}
}

func (s *Simulator) findLocked(handle schemas.WindowHandle) *simWindow {
	for _, w := range s.windows {
		if w.handle == handle {
			return w
		}
	}
	return nil
}

// ListWindows returns all live windows in creation order, which stands in
// for the OS enumeration order.
func (s *Simulator) ListWindows(ctx context.Context) ([]schemas.WindowInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schemas.WindowInfo, 0, len(s.windows))
	for _, w := range s.windows {
		out = append(out, schemas.WindowInfo{
			Handle:    w.handle,
			Title:     w.title,
			Class:     w.class,
			PID:       w.pid,
			Visible:   w.visible,
			Minimized: w.minimized,
		})
	}
	return out, nil
}

func (s *Simulator) IsWindow(handle schemas.WindowHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(handle) != nil
}

func (s *Simulator) Focus(handle schemas.WindowHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.findLocked(handle)
	if w == nil {
		return ErrWindowGone
	}
	w.visible = true
	w.minimized = false
	s.foreground = handle
	return nil
}

func (s *Simulator) Show(handle schemas.WindowHandle, cmd schemas.ShowCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.findLocked(handle)
	if w == nil {
		return ErrWindowGone
	}
	switch cmd {
	case schemas.ShowMinimize:
		w.minimized = true
	case schemas.ShowMaximize, schemas.ShowRestore:
		w.visible = true
		w.minimized = false
	default:
		return fmt.Errorf("unknown show command %q", cmd)
	}
	return nil
}

// RequestClose delivers a graceful close. Stubborn processes ignore it;
// everything else closes the window and, when it was the last one, exits.
func (s *Simulator) RequestClose(handle schemas.WindowHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.findLocked(handle)
	if w == nil {
		return ErrWindowGone
	}
	p := s.procs[w.pid]
	if p != nil && p.stubborn {
		return nil
	}
	s.removeWindowLocked(handle)
	if p != nil && !s.hasWindowLocked(p.pid) {
		p.alive = false
	}
	return nil
}

func (s *Simulator) removeWindowLocked(handle schemas.WindowHandle) {
	for i, w := range s.windows {
		if w.handle == handle {
			s.windows = append(s.windows[:i], s.windows[i+1:]...)
			break
		}
	}
	if s.foreground == handle {
		s.foreground = 0
	}
}

func (s *Simulator) hasWindowLocked(pid int) bool {
	for _, w := range s.windows {
		if w.pid == pid {
			return true
		}
	}
	return false
}

func (s *Simulator) ForegroundWindow() (schemas.WindowHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.foreground == 0 {
		return 0, false
	}
	return s.foreground, true
}

func (s *Simulator) ProcessName(pid int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[pid]
	if !ok {
		return "", ErrProcessGone
	}
	return p.name, nil
}

func (s *Simulator) IsAlive(pid int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[pid]
	return ok && p.alive
}

// Terminate is the graceful path: it exits the process and drops its
// windows unless the process is stubborn.
func (s *Simulator) Terminate(pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[pid]
	if !ok || !p.alive {
		return ErrProcessGone
	}
	if p.stubborn {
		return nil
	}
	s.exitLocked(p)
	return nil
}

// Kill always works, stubborn or not.
func (s *Simulator) Kill(pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[pid]
	if !ok || !p.alive {
		return ErrProcessGone
	}
	s.exitLocked(p)
	return nil
}

func (s *Simulator) exitLocked(p *simProcess) {
	p.alive = false
	kept := s.windows[:0]
	for _, w := range s.windows {
		if w.pid == p.pid {
			if s.foreground == w.handle {
				s.foreground = 0
			}
			continue
		}
		kept = append(kept, w)
	}
	s.windows = kept
}
