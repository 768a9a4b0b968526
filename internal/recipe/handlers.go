// File: internal/recipe/handlers.go
package recipe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/deskpilot-cli/api/schemas"
	"github.com/xkilldash9x/deskpilot-cli/internal/registry"
	"github.com/xkilldash9x/deskpilot-cli/internal/uiauto"
	"go.uber.org/zap"
)

const (
	defaultCloseTimeout = 5 * time.Second
	defaultUIWait       = 5 * time.Second
	uiPollInterval      = 50 * time.Millisecond
)

func (r *Runner) registerBuiltins() {
	// App lifecycle.
	r.Register("app.start", r.handleAppStart)
	r.Register("app.focus", r.appWindowOp(func(ctx context.Context, app, target string) error {
		return r.deps.Registry.Focus(ctx, app, target)
	}))
	r.Register("app.minimize", r.appWindowOp(func(ctx context.Context, app, target string) error {
		return r.deps.Registry.Minimize(ctx, app, target)
	}))
	r.Register("app.maximize", r.appWindowOp(func(ctx context.Context, app, target string) error {
		return r.deps.Registry.Maximize(ctx, app, target)
	}))
	r.Register("app.restore", r.appWindowOp(func(ctx context.Context, app, target string) error {
		return r.deps.Registry.Restore(ctx, app, target)
	}))
	r.Register("app.close", r.handleAppClose)
	r.Register("app.kill", r.handleAppKill)

	// UI interaction.
	r.Register("ui.click", r.handleUIClick)
	r.Register("ui.wait", r.handleUIWait)
	r.Register("ui.exists", r.handleUIExists)
	r.Register("ui.read", r.handleUIRead)
	r.Register("ui.focus", r.appWindowOp(func(ctx context.Context, app, target string) error {
		return r.deps.Registry.Focus(ctx, app, target)
	}))

	// Input injection.
	r.Register("input.type", r.handleInputType)
	r.Register("input.key", r.handleInputKey)
	r.Register("input.hotkey", r.handleInputHotkey)

	// Clipboard.
	r.Register("clipboard.copy", r.handleClipboardCopy)
	r.Register("clipboard.paste", r.handleClipboardPaste)

	// Browser.
	r.Register("browser.launch", r.handleBrowserLaunch)
	r.Register("browser.close", r.handleBrowserClose)
	r.Register("page.goto", r.handlePageGoto)
	r.Register("dom.click", r.handleDOMClick)
	r.Register("dom.type", r.handleDOMType)
	r.Register("download.expect_and_save", r.handleDownload)

	// Assertions and plumbing.
	r.Register("assert.expr", r.handleAssertExpr)
	r.Register("assert.text_contains", r.handleAssertTextContains)
	r.Register("sleep.ms", r.handleSleep)
	r.Register("reporter.note", r.handleReporterNote)
}

// --- payload helpers ---

func stringField(payload map[string]any, key string) (string, bool) {
	v, ok := payload[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func requireString(payload map[string]any, key string) (string, error) {
	v, ok := payload[key]
	if !ok {
		return "", fmt.Errorf("required field %q is missing", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("field %q must be a non-empty string", key)
	}
	return s, nil
}

func boolField(payload map[string]any, key string) bool {
	v, ok := payload[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func numberField(payload map[string]any, key string) (float64, bool) {
	v, ok := payload[key]
	if !ok {
		return 0, false
	}
	return asNumber(v)
}

func durationMsField(payload map[string]any, key string, fallback time.Duration) time.Duration {
	if ms, ok := numberField(payload, key); ok && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func stringSliceField(payload map[string]any, key string) ([]string, error) {
	v, ok := payload[key]
	if !ok {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("field %q must be a list of strings", key)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("field %q must be a list of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

func stringMapField(payload map[string]any, key string) (map[string]string, error) {
	v, ok := payload[key]
	if !ok {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("field %q must be a mapping of strings", key)
	}
	out := make(map[string]string, len(m))
	for k, item := range m {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("field %q must be a mapping of strings", key)
		}
		out[k] = s
	}
	return out, nil
}

// resolveApp finds the app a step applies to: payload first, then the run
// context.
func resolveApp(run *Run, payload map[string]any) (string, error) {
	if app, ok := stringField(payload, "app"); ok && app != "" {
		return app, nil
	}
	if app, ok := run.Context["app"].(string); ok && app != "" {
		return app, nil
	}
	return "", fmt.Errorf("no app in step payload or run context")
}

// resolveTarget finds the instance target: payload, context, then latest.
func resolveTarget(run *Run, payload map[string]any) string {
	if target, ok := stringField(payload, "target"); ok && target != "" {
		return target
	}
	if target, ok := run.Context["target"].(string); ok && target != "" {
		return target
	}
	return "latest"
}

// --- app handlers ---

func (r *Runner) handleAppStart(ctx context.Context, run *Run, payload map[string]any) error {
	app, err := resolveApp(run, payload)
	if err != nil {
		return err
	}
	preset, _ := stringField(payload, "preset")
	args, err := stringSliceField(payload, "args")
	if err != nil {
		return err
	}
	env, err := stringMapField(payload, "env")
	if err != nil {
		return err
	}

	rec, err := r.deps.Registry.Start(ctx, registry.StartRequest{
		App:          app,
		Preset:       preset,
		ExtraArgs:    args,
		EnvOverrides: env,
	})
	if err != nil {
		return err
	}

	run.Context["app"] = app
	run.Context["instance_id"] = rec.InstanceID
	run.Context["pid"] = rec.PID
	if len(rec.Windows) > 0 {
		run.Context["window_title"] = rec.Windows[0].Title
	}
	return nil
}

func (r *Runner) appWindowOp(op func(ctx context.Context, app, target string) error) HandlerFunc {
	return func(ctx context.Context, run *Run, payload map[string]any) error {
		app, err := resolveApp(run, payload)
		if err != nil {
			return err
		}
		return op(ctx, app, resolveTarget(run, payload))
	}
}

func (r *Runner) handleAppClose(ctx context.Context, run *Run, payload map[string]any) error {
	app, err := resolveApp(run, payload)
	if err != nil {
		return err
	}
	timeout := durationMsField(payload, "timeout_ms", defaultCloseTimeout)
	return r.deps.Registry.Close(ctx, app, resolveTarget(run, payload),
		timeout, boolField(payload, "force"), boolField(payload, "all"))
}

func (r *Runner) handleAppKill(ctx context.Context, run *Run, payload map[string]any) error {
	app, err := resolveApp(run, payload)
	if err != nil {
		return err
	}
	return r.deps.Registry.Kill(ctx, app, resolveTarget(run, payload), boolField(payload, "all"))
}

// --- ui handlers ---

// surfaceFor resolves the accessibility surface for the step's app/target.
func (r *Runner) surfaceFor(ctx context.Context, run *Run, payload map[string]any) (uiauto.Surface, error) {
	app, err := resolveApp(run, payload)
	if err != nil {
		return nil, err
	}
	if r.deps.Surfaces == nil {
		return nil, fmt.Errorf("no UI surface provider is wired")
	}
	return r.deps.Surfaces.SurfaceFor(ctx, app, resolveTarget(run, payload))
}

func (r *Runner) handleUIClick(ctx context.Context, run *Run, payload map[string]any) error {
	selector, err := requireString(payload, "selector")
	if err != nil {
		return err
	}
	surface, err := r.surfaceFor(ctx, run, payload)
	if err != nil {
		return err
	}
	el, err := surface.Find(ctx, selector)
	if err != nil {
		return err
	}
	method, err := r.deps.Engine.Click(ctx, el)
	if err != nil {
		return err
	}
	run.Context["last_interaction"] = string(method)
	return nil
}

func (r *Runner) handleUIWait(ctx context.Context, run *Run, payload map[string]any) error {
	selector, err := requireString(payload, "selector")
	if err != nil {
		return err
	}
	if r.deps.Surfaces == nil {
		return fmt.Errorf("no UI surface provider is wired")
	}
	app, err := resolveApp(run, payload)
	if err != nil {
		return err
	}
	target := resolveTarget(run, payload)
	timeout := durationMsField(payload, "timeout_ms", defaultUIWait)

	deadline := time.Now().Add(timeout)
	for {
		surface, err := r.deps.Surfaces.SurfaceFor(ctx, app, target)
		if err == nil {
			ok, err := surface.Exists(ctx, selector)
			if err == nil && ok {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("element %q did not appear within %s", selector, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(uiPollInterval):
		}
	}
}

func (r *Runner) handleUIExists(ctx context.Context, run *Run, payload map[string]any) error {
	selector, err := requireString(payload, "selector")
	if err != nil {
		return err
	}
	surface, err := r.surfaceFor(ctx, run, payload)
	if err != nil {
		return err
	}
	ok, err := surface.Exists(ctx, selector)
	if err != nil {
		return err
	}
	into, found := stringField(payload, "into")
	if !found || into == "" {
		into = "exists"
	}
	run.Context[into] = ok
	return nil
}

func (r *Runner) handleUIRead(ctx context.Context, run *Run, payload map[string]any) error {
	selector, err := requireString(payload, "selector")
	if err != nil {
		return err
	}
	surface, err := r.surfaceFor(ctx, run, payload)
	if err != nil {
		return err
	}
	el, err := surface.Find(ctx, selector)
	if err != nil {
		return err
	}
	into, found := stringField(payload, "into")
	if !found || into == "" {
		into = "text"
	}
	run.Context[into] = el.Text()
	return nil
}

// --- input handlers ---

func (r *Runner) handleInputType(ctx context.Context, run *Run, payload map[string]any) error {
	text, err := requireString(payload, "text")
	if err != nil {
		return err
	}
	if r.deps.Keyboard == nil {
		return fmt.Errorf("no keyboard is wired")
	}
	return r.deps.Keyboard.TypeText(ctx, text)
}

func (r *Runner) handleInputKey(ctx context.Context, run *Run, payload map[string]any) error {
	key, err := requireString(payload, "key")
	if err != nil {
		return err
	}
	if r.deps.Keyboard == nil {
		return fmt.Errorf("no keyboard is wired")
	}
	return r.deps.Keyboard.PressKey(ctx, key)
}

func (r *Runner) handleInputHotkey(ctx context.Context, run *Run, payload map[string]any) error {
	combo, err := requireString(payload, "combo")
	if err != nil {
		return err
	}
	if r.deps.Keyboard == nil {
		return fmt.Errorf("no keyboard is wired")
	}
	return r.deps.Keyboard.PressHotkey(ctx, combo)
}

// --- clipboard handlers ---

func (r *Runner) handleClipboardCopy(ctx context.Context, run *Run, payload map[string]any) error {
	text, err := requireString(payload, "text")
	if err != nil {
		return err
	}
	if r.deps.Clipboard == nil {
		return fmt.Errorf("no clipboard is wired")
	}
	return r.deps.Clipboard.WriteAll(text)
}

// handleClipboardPaste either stores the clipboard into the run context
// (when "into" is set) or sends the paste chord to the focused window.
func (r *Runner) handleClipboardPaste(ctx context.Context, run *Run, payload map[string]any) error {
	if r.deps.Clipboard == nil {
		return fmt.Errorf("no clipboard is wired")
	}
	if into, ok := stringField(payload, "into"); ok && into != "" {
		content, err := r.deps.Clipboard.ReadAll()
		if err != nil {
			return err
		}
		run.Context[into] = content
		return nil
	}
	if r.deps.Keyboard == nil {
		return fmt.Errorf("no keyboard is wired")
	}
	return r.deps.Keyboard.PressHotkey(ctx, "ctrl+v")
}

// --- browser handlers ---

func (r *Runner) browser() (schemas.BrowserDriver, error) {
	if r.deps.Browser == nil {
		return nil, fmt.Errorf("no browser driver is wired")
	}
	return r.deps.Browser, nil
}

func (r *Runner) handleBrowserLaunch(ctx context.Context, run *Run, payload map[string]any) error {
	b, err := r.browser()
	if err != nil {
		return err
	}
	return b.Launch(ctx)
}

func (r *Runner) handleBrowserClose(ctx context.Context, run *Run, payload map[string]any) error {
	b, err := r.browser()
	if err != nil {
		return err
	}
	return b.Close()
}

func (r *Runner) handlePageGoto(ctx context.Context, run *Run, payload map[string]any) error {
	url, err := requireString(payload, "url")
	if err != nil {
		return err
	}
	b, err := r.browser()
	if err != nil {
		return err
	}
	return b.Goto(ctx, url)
}

func (r *Runner) handleDOMClick(ctx context.Context, run *Run, payload map[string]any) error {
	selector, err := requireString(payload, "selector")
	if err != nil {
		return err
	}
	b, err := r.browser()
	if err != nil {
		return err
	}
	return b.Click(ctx, selector)
}

func (r *Runner) handleDOMType(ctx context.Context, run *Run, payload map[string]any) error {
	selector, err := requireString(payload, "selector")
	if err != nil {
		return err
	}
	text, err := requireString(payload, "text")
	if err != nil {
		return err
	}
	b, err := r.browser()
	if err != nil {
		return err
	}
	return b.Type(ctx, selector, text)
}

func (r *Runner) handleDownload(ctx context.Context, run *Run, payload map[string]any) error {
	url, err := requireString(payload, "url")
	if err != nil {
		return err
	}
	dest, err := requireString(payload, "to")
	if err != nil {
		return err
	}
	b, err := r.browser()
	if err != nil {
		return err
	}
	if err := b.SaveDownload(ctx, url, dest); err != nil {
		return err
	}
	run.Context["last_download"] = dest
	return nil
}

// --- assertions and plumbing ---

func (r *Runner) handleAssertExpr(ctx context.Context, run *Run, payload map[string]any) error {
	expr, err := requireString(payload, "expr")
	if err != nil {
		return err
	}
	env := map[string]any{
		"STATE": r.deps.Store.Snapshot(),
		"CTX":   run.Context,
	}
	ok, err := EvalPredicate(expr, env)
	if err != nil {
		return fmt.Errorf("evaluating %q: %w", expr, err)
	}
	if !ok {
		return fmt.Errorf("assertion %q is false", expr)
	}
	return nil
}

func (r *Runner) handleAssertTextContains(ctx context.Context, run *Run, payload map[string]any) error {
	needle, err := requireString(payload, "contains")
	if err != nil {
		return err
	}
	haystack, ok := stringField(payload, "text")
	if !ok {
		haystack, _ = run.Context["text"].(string)
	}
	if !strings.Contains(haystack, needle) {
		return fmt.Errorf("text does not contain %q", needle)
	}
	return nil
}

func (r *Runner) handleSleep(ctx context.Context, run *Run, payload map[string]any) error {
	ms, ok := numberField(payload, "ms")
	if !ok {
		return fmt.Errorf("required field %q is missing", "ms")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	}
}

func (r *Runner) handleReporterNote(ctx context.Context, run *Run, payload map[string]any) error {
	message, err := requireString(payload, "message")
	if err != nil {
		return err
	}
	r.logger.Info("Recipe note.", zap.String("note", message))
	notes, _ := run.Context["notes"].([]any)
	run.Context["notes"] = append(notes, message)
	return nil
}
