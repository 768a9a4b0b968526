// File: api/schemas/interfaces.go
// Component contracts shared across packages. Keeping these next to the
// domain types lets the orchestrator and CLI depend on behavior instead of
// concrete implementations, which is what makes the worker wiring testable.
package schemas

import "context"

// RecipeExecutor runs a recipe file against a mutable run context. The
// intent watcher drives this; the recipe runner implements it.
type RecipeExecutor interface {
	RunRecipe(ctx context.Context, recipePath string, runCtx map[string]any) error
}

// TranscriptProcessor consumes free-form text and emits intent files for any
// recognized embedded commands, returning how many were written. The chat
// bridge implements it; the OCR scanner drives it.
type TranscriptProcessor interface {
	ProcessTranscript(text string) int
}

// ScreenTextProvider captures the current screen contents as text. The OCR
// scanner treats capture failures as transient.
type ScreenTextProvider interface {
	CaptureText(ctx context.Context) (string, error)
}

// BrowserDriver is the thin surface the recipe runner needs from browser
// automation. The chromedp implementation lives in internal/browser; tests
// substitute fakes.
type BrowserDriver interface {
	Launch(ctx context.Context) error
	Goto(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	SaveDownload(ctx context.Context, url, destination string) error
	Close() error
}
