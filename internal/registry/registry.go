// File: internal/registry/registry.go
// Package registry manages the applications the agent controls: their
// static definitions, the processes started from them, and the window facts
// observed for each instance. All window liveness is re-derived from the
// platform layer on demand; nothing here trusts a cached observation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/deskpilot-cli/api/schemas"
	"github.com/xkilldash9x/deskpilot-cli/internal/config"
	"github.com/xkilldash9x/deskpilot-cli/internal/platform"
	"github.com/xkilldash9x/deskpilot-cli/internal/state"
	"go.uber.org/zap"
)

var (
	// ErrUnknownApp reports an app name absent from the configuration.
	ErrUnknownApp = errors.New("registry: unknown application")
	// ErrAppDisabled reports a start request for a disabled app.
	ErrAppDisabled = errors.New("registry: application is disabled")
	// ErrNotRunning reports an operation that needs a live instance.
	ErrNotRunning = errors.New("registry: application is not running")
	// ErrInstanceConflict reports a start blocked by the detect policy.
	ErrInstanceConflict = errors.New("registry: instance already running")
	// ErrUnknownPreset reports a start request naming an unconfigured preset.
	ErrUnknownPreset = errors.New("registry: unknown preset")
	// ErrNoWindow reports a window operation on an instance without windows.
	ErrNoWindow = errors.New("registry: instance has no known window")
)

// forceCloseTimeout bounds the graceful phase when the force policy
// terminates a prior instance.
const forceCloseTimeout = 3 * time.Second

// livenessPollInterval paces the wait loops in Close and force escalation.
const livenessPollInterval = 25 * time.Millisecond

// StartRequest describes one application start.
type StartRequest struct {
	App string
	// Preset selects a configured argument preset; empty means none.
	Preset string
	// ExtraArgs are appended after configured and preset args.
	ExtraArgs []string
	// EnvOverrides win over the configured environment.
	EnvOverrides map[string]string
}

// Record is one live (or last-known-live) application instance.
type Record struct {
	InstanceID    string
	App           string
	PID           int
	Windows       []schemas.WindowSnapshot
	StartedAt     time.Time
	LastFocusedAt time.Time
}

// Registry owns the app definitions and instance records.
type Registry struct {
	mu     sync.Mutex
	logger *zap.Logger
	defs   map[string]config.AppConfig
	host   platform.Host
	store  *state.Store

	records map[string]*Record
	// order preserves start order for first/latest resolution.
	order []string
}

// New builds a registry over the configured apps.
func New(defs map[string]config.AppConfig, host platform.Host, store *state.Store, logger *zap.Logger) *Registry {
	copied := make(map[string]config.AppConfig, len(defs))
	for name, def := range defs {
		copied[name] = def
	}
	return &Registry{
		logger:  logger.Named("AppRegistry"),
		defs:    copied,
		host:    host,
		store:   store,
		records: map[string]*Record{},
	}
}

// Definitions returns the app names in the registry, sorted lexically by
// the caller if needed.
func (r *Registry) Definitions() map[string]config.AppConfig {
	out := make(map[string]config.AppConfig, len(r.defs))
	for name, def := range r.defs {
		out[name] = def
	}
	return out
}

// Start launches an application per its definition and policy.
func (r *Registry) Start(ctx context.Context, req StartRequest) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.defs[req.App]
	if !ok {
		return Record{}, fmt.Errorf("app %q: %w", req.App, ErrUnknownApp)
	}
	if !def.Enabled {
		return Record{}, fmt.Errorf("app %q: %w", req.App, ErrAppDisabled)
	}

	live := r.liveRecordsLocked(ctx, req.App)
	switch def.EffectivePolicy() {
	case schemas.SingleInstanceDetect:
		if len(live) > 0 {
			return Record{}, fmt.Errorf("app %q has %d live instance(s): %w",
				req.App, len(live), ErrInstanceConflict)
		}
	case schemas.SingleInstanceForce:
		for _, rec := range live {
			r.logger.Info("Force policy terminating prior instance.",
				zap.String("app", req.App),
				zap.String("instance_id", rec.InstanceID),
				zap.Int("pid", rec.PID))
			r.shutdownRecordLocked(ctx, rec, forceCloseTimeout, true)
		}
	case schemas.SingleInstanceAllow:
		// Concurrent instances are fine.
	}

	args := append([]string(nil), def.Args...)
	if req.Preset != "" {
		preset, ok := def.Presets[req.Preset]
		if !ok {
			return Record{}, fmt.Errorf("app %q preset %q: %w", req.App, req.Preset, ErrUnknownPreset)
		}
		args = append(args, preset...)
	}
	args = append(args, req.ExtraArgs...)

	launched, err := r.host.Launch(ctx, platform.LaunchSpec{
		Path:       def.Path,
		Shell:      def.Shell,
		Args:       args,
		WorkingDir: def.WorkingDir,
		Env:        def.Env,
		InheritEnv: def.InheritEnv,
		Overrides:  req.EnvOverrides,
	})
	if err != nil {
		return Record{}, fmt.Errorf("starting app %q: %w", req.App, err)
	}

	rec := &Record{
		InstanceID: uuid.NewString(),
		App:        req.App,
		PID:        launched.PID,
		StartedAt:  time.Now(),
	}

	r.captureWindowsLocked(ctx, rec, def, true)
	if len(rec.Windows) == 0 && def.Window.MustAppearWithin > 0 {
		r.awaitWindowLocked(ctx, rec, def)
	}

	r.records[rec.InstanceID] = rec
	r.order = append(r.order, rec.InstanceID)
	r.persistLocked(rec)

	r.logger.Info("Application started.",
		zap.String("app", req.App),
		zap.String("instance_id", rec.InstanceID),
		zap.Int("pid", rec.PID),
		zap.Int("windows", len(rec.Windows)))
	return *rec, nil
}

// awaitWindowLocked polls for the first matching window up to the
// definition's deadline. An empty result is not a failure.
func (r *Registry) awaitWindowLocked(ctx context.Context, rec *Record, def config.AppConfig) {
	deadline := time.Now().Add(def.Window.MustAppearWithin)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(livenessPollInterval):
		}
		r.captureWindowsLocked(ctx, rec, def, true)
		if len(rec.Windows) > 0 {
			return
		}
	}
	r.logger.Warn("No window appeared within the configured deadline.",
		zap.String("app", rec.App),
		zap.Duration("deadline", def.Window.MustAppearWithin))
}

// Focus brings the target instance's primary window to the foreground.
func (r *Registry) Focus(ctx context.Context, app, target string) error {
	return r.windowOp(ctx, app, target, func(rec *Record, handle schemas.WindowHandle) error {
		if err := r.host.Focus(handle); err != nil {
			return err
		}
		rec.LastFocusedAt = time.Now()
		r.persistLocked(rec)
		return nil
	})
}

// Minimize minimizes the target instance's primary window.
func (r *Registry) Minimize(ctx context.Context, app, target string) error {
	return r.showOp(ctx, app, target, schemas.ShowMinimize)
}

// Maximize maximizes the target instance's primary window.
func (r *Registry) Maximize(ctx context.Context, app, target string) error {
	return r.showOp(ctx, app, target, schemas.ShowMaximize)
}

// Restore restores the target instance's primary window.
func (r *Registry) Restore(ctx context.Context, app, target string) error {
	return r.showOp(ctx, app, target, schemas.ShowRestore)
}

func (r *Registry) showOp(ctx context.Context, app, target string, cmd schemas.ShowCommand) error {
	return r.windowOp(ctx, app, target, func(rec *Record, handle schemas.WindowHandle) error {
		return r.host.Show(handle, cmd)
	})
}

func (r *Registry) windowOp(ctx context.Context, app, target string, fn func(*Record, schemas.WindowHandle) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.resolveLocked(ctx, app, target)
	if err != nil {
		return err
	}
	def := r.defs[rec.App]
	r.captureWindowsLocked(ctx, rec, def, false)

	handle, ok := primaryWindow(rec.Windows)
	if !ok {
		return fmt.Errorf("app %q instance %s: %w", app, rec.InstanceID, ErrNoWindow)
	}
	return fn(rec, handle)
}

// primaryWindow picks the first visible, non-minimized window, falling back
// to the first known window. Enumeration order is preserved as captured.
func primaryWindow(windows []schemas.WindowSnapshot) (schemas.WindowHandle, bool) {
	for _, w := range windows {
		if w.Visible && !w.Minimized {
			return w.Handle, true
		}
	}
	if len(windows) > 0 {
		return windows[0].Handle, true
	}
	return 0, false
}

// Close shuts the target instance(s) down gracefully, escalating to a hard
// kill only when force is set.
func (r *Registry) Close(ctx context.Context, app, target string, timeout time.Duration, force, allInstances bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs, err := r.targetsLocked(ctx, app, target, allInstances)
	if err != nil {
		return err
	}
	var firstErr error
	for _, rec := range recs {
		if err := r.shutdownRecordLocked(ctx, rec, timeout, force); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Kill hard-terminates the target instance(s).
func (r *Registry) Kill(ctx context.Context, app, target string, allInstances bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs, err := r.targetsLocked(ctx, app, target, allInstances)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if r.host.IsAlive(rec.PID) {
			if err := r.host.Kill(rec.PID); err != nil && !errors.Is(err, platform.ErrProcessGone) {
				r.logger.Warn("Hard kill failed.",
					zap.String("app", rec.App), zap.Int("pid", rec.PID), zap.Error(err))
			}
		}
		r.closeTrackedWindowsLocked(rec)
		r.dropRecordLocked(rec.InstanceID)
	}
	return nil
}

// shutdownRecordLocked is the graceful-then-maybe-hard close of one record.
func (r *Registry) shutdownRecordLocked(ctx context.Context, rec *Record, timeout time.Duration, force bool) error {
	def := r.defs[rec.App]
	r.captureWindowsLocked(ctx, rec, def, false)

	if len(rec.Windows) > 0 {
		for _, w := range rec.Windows {
			if err := r.host.RequestClose(w.Handle); err != nil && !errors.Is(err, platform.ErrWindowGone) {
				r.logger.Debug("Close request failed.",
					zap.Uint64("handle", uint64(w.Handle)), zap.Error(err))
			}
		}
	} else if r.host.IsAlive(rec.PID) {
		if err := r.host.Terminate(rec.PID); err != nil && !errors.Is(err, platform.ErrProcessGone) {
			r.logger.Debug("Graceful terminate failed.",
				zap.Int("pid", rec.PID), zap.Error(err))
		}
	}

	deadline := time.Now().Add(timeout)
	for r.isLiveLocked(ctx, rec) && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(livenessPollInterval):
		}
	}

	if r.isLiveLocked(ctx, rec) {
		if !force {
			r.closeTrackedWindowsLocked(rec)
			return fmt.Errorf("app %q pid %d did not exit within %s", rec.App, rec.PID, timeout)
		}
		r.logger.Warn("Escalating to hard kill.",
			zap.String("app", rec.App), zap.Int("pid", rec.PID))
		if err := r.host.Kill(rec.PID); err != nil && !errors.Is(err, platform.ErrProcessGone) {
			return fmt.Errorf("hard kill of app %q pid %d: %w", rec.App, rec.PID, err)
		}
	}

	r.closeTrackedWindowsLocked(rec)
	r.dropRecordLocked(rec.InstanceID)
	return nil
}

func (r *Registry) closeTrackedWindowsLocked(rec *Record) {
	for _, w := range rec.Windows {
		if r.host.IsWindow(w.Handle) {
			_ = r.host.RequestClose(w.Handle)
		}
	}
}

// IsRunning reports whether any live instance of the app exists.
func (r *Registry) IsRunning(ctx context.Context, app string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[app]; !ok {
		return false, fmt.Errorf("app %q: %w", app, ErrUnknownApp)
	}
	return len(r.liveRecordsLocked(ctx, app)) > 0, nil
}

// RunningProcesses reconciles every record and returns the survivors in
// start order.
func (r *Registry) RunningProcesses(ctx context.Context) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconcileAllLocked(ctx)
	out := make([]Record, 0, len(r.order))
	for _, id := range r.order {
		if rec, ok := r.records[id]; ok {
			out = append(out, *rec)
		}
	}
	return out
}

// --- resolution ---

// targetsLocked resolves the records an operation applies to. When nothing
// is running the operation fails with ErrNotRunning.
func (r *Registry) targetsLocked(ctx context.Context, app, target string, all bool) ([]*Record, error) {
	if _, ok := r.defs[app]; !ok {
		return nil, fmt.Errorf("app %q: %w", app, ErrUnknownApp)
	}
	live := r.liveRecordsLocked(ctx, app)
	if len(live) == 0 {
		return nil, fmt.Errorf("app %q: %w", app, ErrNotRunning)
	}
	if all {
		return live, nil
	}
	rec, err := r.pickLocked(live, target)
	if err != nil {
		return nil, err
	}
	return []*Record{rec}, nil
}

func (r *Registry) resolveLocked(ctx context.Context, app, target string) (*Record, error) {
	recs, err := r.targetsLocked(ctx, app, target, false)
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

// pickLocked applies target semantics: empty or "latest" is the most
// recently started live instance, "first" the oldest, an all-digits string
// a pid, anything else an instance id.
func (r *Registry) pickLocked(live []*Record, target string) (*Record, error) {
	switch target {
	case "", "latest":
		return live[len(live)-1], nil
	case "first":
		return live[0], nil
	}
	if isAllDigits(target) {
		for _, rec := range live {
			if fmt.Sprintf("%d", rec.PID) == target {
				return rec, nil
			}
		}
		return nil, fmt.Errorf("pid %s: %w", target, ErrNotRunning)
	}
	for _, rec := range live {
		if rec.InstanceID == target {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("instance %s: %w", target, ErrNotRunning)
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// --- reconciliation ---

// liveRecordsLocked reconciles all records for the app and returns the live
// ones in start order.
func (r *Registry) liveRecordsLocked(ctx context.Context, app string) []*Record {
	r.reconcileAllLocked(ctx)
	var out []*Record
	for _, id := range r.order {
		if rec, ok := r.records[id]; ok && rec.App == app {
			out = append(out, rec)
		}
	}
	return out
}

// reconcileAllLocked re-derives liveness for every record and purges the
// dead. Idempotent.
func (r *Registry) reconcileAllLocked(ctx context.Context) {
	for _, id := range append([]string(nil), r.order...) {
		rec, ok := r.records[id]
		if !ok {
			continue
		}
		def := r.defs[rec.App]
		r.captureWindowsLocked(ctx, rec, def, false)
		if !r.isLiveLocked(ctx, rec) {
			r.logger.Debug("Purging dead instance.",
				zap.String("app", rec.App),
				zap.String("instance_id", rec.InstanceID),
				zap.Int("pid", rec.PID))
			r.dropRecordLocked(id)
		}
	}
}

// isLiveLocked: a record is live iff its process is alive or it owns at
// least one window the OS still recognizes.
func (r *Registry) isLiveLocked(ctx context.Context, rec *Record) bool {
	if r.host.IsAlive(rec.PID) {
		return true
	}
	for _, w := range rec.Windows {
		if r.host.IsWindow(w.Handle) {
			return true
		}
	}
	return false
}

// captureWindowsLocked re-queries the OS for windows matching the record's
// definition, pid-narrowed when the pid is known. The start path passes
// visibleOnly so a hidden stale window never becomes an instance's anchor;
// refresh passes false to keep tracking windows that went invisible. The
// tracked pid follows the first matched window when the original process
// handed off.
func (r *Registry) captureWindowsLocked(ctx context.Context, rec *Record, def config.AppConfig, visibleOnly bool) {
	windows, err := r.host.ListWindows(ctx)
	if err != nil {
		r.logger.Warn("Window enumeration failed.", zap.Error(err))
		return
	}
	now := time.Now()
	snapshot := func(w schemas.WindowInfo) schemas.WindowSnapshot {
		name, _ := r.host.ProcessName(w.PID)
		return schemas.WindowSnapshot{WindowInfo: w, ProcessName: name, LastSeen: now}
	}

	// Pid narrowing keeps concurrent instances of the same app apart; the
	// predicate scan is the fallback when the launcher pid handed off.
	// Configured predicates apply on both paths.
	var matched []schemas.WindowSnapshot
	if rec.PID != 0 {
		for _, w := range windows {
			if w.PID != rec.PID {
				continue
			}
			if visibleOnly && !w.Visible {
				continue
			}
			if !r.predicatesHoldLocked(w, def) {
				continue
			}
			matched = append(matched, snapshot(w))
		}
	}
	if len(matched) == 0 {
		for _, w := range windows {
			if visibleOnly && !w.Visible {
				continue
			}
			if r.windowMatchesLocked(w, def) {
				matched = append(matched, snapshot(w))
			}
		}
	}
	rec.Windows = matched
	if len(matched) > 0 && !r.host.IsAlive(rec.PID) {
		// The launcher process exited and handed the UI to another pid.
		rec.PID = matched[0].PID
	}
	r.persistLocked(rec)
}

// windowMatchesLocked is the fallback-scan test: a definition with no
// predicates matches nothing, otherwise every configured one must hold.
func (r *Registry) windowMatchesLocked(w schemas.WindowInfo, def config.AppConfig) bool {
	m := def.Window
	if m.TitleMatch == "" && m.ClassMatch == "" && m.ProcessName == "" {
		return false
	}
	return r.predicatesHoldLocked(w, def)
}

// predicatesHoldLocked checks every configured substring predicate. A
// definition with none configured constrains nothing.
func (r *Registry) predicatesHoldLocked(w schemas.WindowInfo, def config.AppConfig) bool {
	m := def.Window
	if m.TitleMatch != "" && !containsFold(w.Title, m.TitleMatch) {
		return false
	}
	if m.ClassMatch != "" && !containsFold(w.Class, m.ClassMatch) {
		return false
	}
	if m.ProcessName != "" {
		name, err := r.host.ProcessName(w.PID)
		if err != nil || !containsFold(name, m.ProcessName) {
			return false
		}
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// --- store mirroring ---

func (r *Registry) persistLocked(rec *Record) {
	if r.store == nil {
		return
	}
	r.store.PutProcess(state.ProcessRecord{
		InstanceID:    rec.InstanceID,
		App:           rec.App,
		PID:           rec.PID,
		Windows:       append([]schemas.WindowSnapshot(nil), rec.Windows...),
		StartedAt:     rec.StartedAt,
		LastFocusedAt: rec.LastFocusedAt,
	})
}

func (r *Registry) dropRecordLocked(instanceID string) {
	delete(r.records, instanceID)
	for i, id := range r.order {
		if id == instanceID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.store != nil {
		r.store.DropProcess(instanceID)
	}
}
