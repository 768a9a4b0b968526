// File: internal/intents/watcher.go
// Package intents consumes the filesystem intent mailbox: YAML documents
// dropped into the intents directory are parsed, mapped to recipes and
// executed, then archived. Archiving under the original name is the sole
// commit point; a file that never reaches the archive was never fully
// processed.
package intents

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/xkilldash9x/deskpilot-cli/api/schemas"
	"github.com/xkilldash9x/deskpilot-cli/internal/config"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnmappedIntent reports an intent name with no configured recipe.
	ErrUnmappedIntent = errors.New("intents: no recipe mapped for intent")
	// ErrMissingIntent reports a payload without an intent name.
	ErrMissingIntent = errors.New("intents: payload has no intent field")
	// ErrBadArgs reports an args field that is not a mapping.
	ErrBadArgs = errors.New("intents: args must be a mapping")
)

// Watcher owns the intent mailbox pipeline.
type Watcher struct {
	cfg        config.IntentsConfig
	retryCfg   config.WatcherConfig
	recipesDir string
	executor   schemas.RecipeExecutor
	logger     *zap.Logger
}

// NewWatcher builds the watcher from configuration.
func NewWatcher(cfg config.Interface, executor schemas.RecipeExecutor, logger *zap.Logger) *Watcher {
	return &Watcher{
		cfg:        cfg.Intents(),
		retryCfg:   cfg.Watcher(),
		recipesDir: cfg.Recipes().Directory,
		executor:   executor,
		logger:     logger.Named("IntentWatcher"),
	}
}

// Run watches the intents directory until the context is canceled. Files
// already present at startup are swept once before the event loop starts.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.cfg.Directory, 0o755); err != nil {
		return fmt.Errorf("creating intents directory: %w", err)
	}
	if err := os.MkdirAll(w.cfg.ArchiveDirectory, 0o755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.cfg.Directory); err != nil {
		return fmt.Errorf("watching %s: %w", w.cfg.Directory, err)
	}

	w.logger.Info("Intent watcher started.", zap.String("directory", w.cfg.Directory))
	w.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Intent watcher stopping.")
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil || info.IsDir() {
				continue
			}
			w.ProcessFile(ctx, event.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error.", zap.Error(err))
		}
	}
}

// Sweep processes every regular file currently in the intents directory.
func (w *Watcher) Sweep(ctx context.Context) {
	entries, err := os.ReadDir(w.cfg.Directory)
	if err != nil {
		w.logger.Warn("Startup sweep failed.", zap.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return
		}
		w.ProcessFile(ctx, filepath.Join(w.cfg.Directory, entry.Name()))
	}
}

// ProcessFile runs the full pipeline for one intent file: read with bounded
// retries, validate, execute the mapped recipe, archive. A path that no
// longer exists is a no-op; duplicate create events after archiving land
// here.
func (w *Watcher) ProcessFile(ctx context.Context, path string) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return
	}

	payload, err := w.readPayload(ctx, path)
	if err != nil {
		w.logger.Error("Intent file rejected.",
			zap.String("file", path), zap.Error(err))
		return
	}

	mapping, ok := w.cfg.Map[payload.Intent]
	if !ok {
		w.logger.Error("Intent file rejected.",
			zap.String("file", path),
			zap.String("intent", payload.Intent),
			zap.Error(ErrUnmappedIntent))
		return
	}

	recipePath := mapping.Recipe
	if !filepath.IsAbs(recipePath) {
		recipePath = filepath.Join(w.recipesDir, recipePath)
	}

	w.logger.Info("Dispatching intent.",
		zap.String("file", path),
		zap.String("intent", payload.Intent),
		zap.String("recipe", recipePath))

	if err := w.executor.RunRecipe(ctx, recipePath, payload.Args); err != nil {
		w.logger.Error("Intent execution failed; file left in place.",
			zap.String("file", path),
			zap.String("intent", payload.Intent),
			zap.Error(err))
		return
	}

	dest := filepath.Join(w.cfg.ArchiveDirectory, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		w.logger.Error("Archiving processed intent failed.",
			zap.String("file", path), zap.Error(err))
		return
	}
	w.logger.Info("Intent archived.",
		zap.String("intent", payload.Intent),
		zap.String("archive", dest))
}

// readPayload reads and parses the intent document. Transient failures
// (unreadable file, malformed YAML, empty document) are retried with a
// short fixed backoff; structural failures are permanent.
func (w *Watcher) readPayload(ctx context.Context, path string) (schemas.IntentPayload, error) {
	var payload schemas.IntentPayload

	attempt := func() error {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading: %w", err)
		}
		var doc map[string]any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("parsing: %w", err)
		}
		if len(doc) == 0 {
			// A create event often fires before the writer finishes.
			return fmt.Errorf("document is empty")
		}

		intent, _ := doc["intent"].(string)
		if intent == "" {
			return backoff.Permanent(ErrMissingIntent)
		}
		var args map[string]any
		if rawArgs, present := doc["args"]; present && rawArgs != nil {
			m, ok := rawArgs.(map[string]any)
			if !ok {
				return backoff.Permanent(fmt.Errorf("%w, got %T", ErrBadArgs, rawArgs))
			}
			args = m
		}
		payload = schemas.IntentPayload{Intent: intent, Args: args}
		return nil
	}

	retries := w.retryCfg.ReadRetries
	if retries <= 0 {
		retries = 1
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(w.retryCfg.RetryBackoff),
			uint64(retries-1),
		), ctx)

	if err := backoff.Retry(attempt, policy); err != nil {
		return schemas.IntentPayload{}, err
	}
	return payload, nil
}
