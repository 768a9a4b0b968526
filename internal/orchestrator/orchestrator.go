// File: internal/orchestrator/orchestrator.go
// Package orchestrator supervises the long-running intake workers: the
// intent watcher, the optional chat bridge and OCR scanner, and the panic
// hotkey listener. One worker per concern under a shared cancel.
package orchestrator

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/deskpilot-cli/internal/chat"
	"github.com/xkilldash9x/deskpilot-cli/internal/hotkey"
)

// Runner is the contract every supervised worker satisfies.
type Runner interface {
	Run(ctx context.Context) error
}

// Options wires the workers. Watcher is mandatory; the rest run only when
// provided.
type Options struct {
	Watcher    Runner
	Scanner    Runner
	Chat       Runner
	Hotkeys    hotkey.Listener
	PanicCombo hotkey.Combo
}

// Orchestrator runs the workers until the context is canceled or Shutdown
// is called.
type Orchestrator struct {
	opts   Options
	logger *zap.Logger

	mu           sync.Mutex
	cancel       context.CancelFunc
	stopped      bool
	shutdownOnce sync.Once
}

// New validates the wiring and returns an orchestrator.
func New(opts Options, logger *zap.Logger) (*Orchestrator, error) {
	if opts.Watcher == nil {
		return nil, errors.New("orchestrator: intent watcher is required")
	}
	if opts.Hotkeys != nil && opts.PanicCombo.Key == "" {
		return nil, errors.New("orchestrator: hotkey listener needs a panic combo")
	}
	return &Orchestrator{opts: opts, logger: logger.Named("Orchestrator")}, nil
}

// Run blocks until every worker has exited. A worker error cancels the
// siblings and is returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.mu.Unlock()
	defer cancel()

	if o.opts.Hotkeys != nil {
		err := o.opts.Hotkeys.Start(o.opts.PanicCombo, func() {
			o.logger.Warn("Panic hotkey pressed; shutting down.",
				zap.String("combo", o.opts.PanicCombo.String()))
			o.Shutdown()
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := o.opts.Hotkeys.Stop(); err != nil {
				o.logger.Warn("Hotkey listener stop failed.", zap.Error(err))
			}
		}()
		o.logger.Info("Panic hotkey armed.",
			zap.String("combo", o.opts.PanicCombo.String()))
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(o.worker(gctx, "intent_watcher", o.opts.Watcher))
	if o.opts.Scanner != nil {
		g.Go(o.worker(gctx, "ocr_scanner", o.opts.Scanner))
	}
	if o.opts.Chat != nil {
		g.Go(o.worker(gctx, "chat_bridge", o.opts.Chat))
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	o.logger.Info("All workers stopped.")
	return err
}

func (o *Orchestrator) worker(ctx context.Context, name string, r Runner) func() error {
	return func() error {
		o.logger.Info("Worker started.", zap.String("worker", name))
		err := r.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("Worker failed.", zap.String("worker", name), zap.Error(err))
			return err
		}
		o.logger.Info("Worker stopped.", zap.String("worker", name))
		return nil
	}
}

// Shutdown cancels the workers. Idempotent and safe to call from a worker
// or the hotkey callback; also safe before Run, which then never starts.
func (o *Orchestrator) Shutdown() {
	o.shutdownOnce.Do(func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.stopped = true
		if o.cancel != nil {
			o.cancel()
		}
	})
}

// InteractiveChat adapts the chat bridge's blocking line loop to the
// worker contract. Cancellation returns immediately; the inner read may
// stay parked until the input stream closes.
type InteractiveChat struct {
	Bridge *chat.Bridge
	In     io.Reader
	Out    io.Writer
}

func (c *InteractiveChat) Run(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- c.Bridge.RunInteractive(c.In, c.Out) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
