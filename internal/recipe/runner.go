// File: internal/recipe/runner.go
package recipe

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/xkilldash9x/deskpilot-cli/api/schemas"
	"github.com/xkilldash9x/deskpilot-cli/internal/registry"
	"github.com/xkilldash9x/deskpilot-cli/internal/state"
	"github.com/xkilldash9x/deskpilot-cli/internal/uiauto"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// SurfaceProvider resolves the accessibility surface of an application's
// primary window.
type SurfaceProvider interface {
	SurfaceFor(ctx context.Context, app, target string) (uiauto.Surface, error)
}

// Clipboard is the system clipboard surface the clipboard steps need.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// Run is the mutable state of one recipe execution. Context accumulates
// across steps; later steps see everything earlier steps stashed.
type Run struct {
	Context map[string]any
}

// HandlerFunc executes one recipe step.
type HandlerFunc func(ctx context.Context, run *Run, payload map[string]any) error

// Deps carries the collaborators handlers are built over. Optional entries
// may be nil; steps needing a missing collaborator fail at execution time.
type Deps struct {
	Registry  *registry.Registry
	Store     *state.Store
	Engine    *uiauto.Engine
	Surfaces  SurfaceProvider
	Keyboard  uiauto.Keyboard
	Clipboard Clipboard
	Browser   schemas.BrowserDriver
	Logger    *zap.Logger
}

// Runner executes recipe documents step by step. It implements
// schemas.RecipeExecutor.
type Runner struct {
	deps     Deps
	logger   *zap.Logger
	handlers map[string]HandlerFunc
}

var _ schemas.RecipeExecutor = (*Runner)(nil)

// NewRunner builds a runner with the full built-in handler set. The handler
// table is an explicit registry; nothing is discovered by reflection.
func NewRunner(deps Deps) *Runner {
	r := &Runner{
		deps:     deps,
		logger:   deps.Logger.Named("RecipeRunner"),
		handlers: map[string]HandlerFunc{},
	}
	r.registerBuiltins()
	return r
}

// Register adds or replaces a step handler.
func (r *Runner) Register(name string, fn HandlerFunc) {
	r.handlers[name] = fn
}

// HandlerNames returns the registered step names, sorted.
func (r *Runner) HandlerNames() []string {
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RunRecipe loads the recipe at recipePath and executes its steps in order
// against a run context seeded with runCtx. The first failing step aborts
// the run; its error is returned after the activity trail is updated.
func (r *Runner) RunRecipe(ctx context.Context, recipePath string, runCtx map[string]any) error {
	doc, err := LoadRecipe(recipePath)
	if err != nil {
		return err
	}

	run := &Run{Context: map[string]any{}}
	for k, v := range runCtx {
		run.Context[k] = v
	}

	r.logger.Info("Recipe run starting.",
		zap.String("recipe", recipePath),
		zap.Int("steps", len(doc.Steps)))

	for i, step := range doc.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		metadata := map[string]any{
			"step": i,
			"keys": sortedKeys(step.Payload),
		}
		stepErr := r.deps.Store.Track(step.Name, metadata, func() error {
			handler, ok := r.handlers[step.Name]
			if !ok {
				return fmt.Errorf("unsupported step %q", step.Name)
			}
			return handler(ctx, run, step.Payload)
		})
		if stepErr != nil {
			return fmt.Errorf("recipe %s step %d (%s): %w", recipePath, i, step.Name, stepErr)
		}
	}

	r.logger.Info("Recipe run finished.", zap.String("recipe", recipePath))
	return nil
}

// LoadRecipe reads and validates a recipe document.
func LoadRecipe(path string) (schemas.RecipeDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return schemas.RecipeDocument{}, fmt.Errorf("reading recipe %s: %w", path, err)
	}
	var doc schemas.RecipeDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return schemas.RecipeDocument{}, fmt.Errorf("parsing recipe %s: %w", path, err)
	}
	if len(doc.Steps) == 0 {
		return schemas.RecipeDocument{}, fmt.Errorf("recipe %s has no steps", path)
	}
	return doc, nil
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
