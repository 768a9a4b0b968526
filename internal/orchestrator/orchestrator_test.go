// File: internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/deskpilot-cli/internal/chat"
	"github.com/xkilldash9x/deskpilot-cli/internal/config"
	"github.com/xkilldash9x/deskpilot-cli/internal/hotkey"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

// blockingWorker runs until its context is canceled.
type blockingWorker struct {
	started atomic.Bool
	stopped atomic.Bool
}

func (w *blockingWorker) Run(ctx context.Context) error {
	w.started.Store(true)
	<-ctx.Done()
	w.stopped.Store(true)
	return ctx.Err()
}

// failingWorker fails after a short delay.
type failingWorker struct{ err error }

func (w *failingWorker) Run(ctx context.Context) error {
	select {
	case <-time.After(10 * time.Millisecond):
		return w.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Options{}, zaptest.NewLogger(t))
	assert.Error(t, err, "watcher is mandatory")

	_, err = New(Options{
		Watcher: &blockingWorker{},
		Hotkeys: hotkey.NewSimListener(),
	}, zaptest.NewLogger(t))
	assert.Error(t, err, "listener without a combo is rejected")
}

func TestRunStopsAllWorkersOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	watcher := &blockingWorker{}
	scanner := &blockingWorker{}
	o, err := New(Options{Watcher: watcher, Scanner: scanner}, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	require.Eventually(t, func() bool {
		return watcher.started.Load() && scanner.started.Load()
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err, "context cancellation is a clean stop")
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not stop")
	}
	assert.True(t, watcher.stopped.Load())
	assert.True(t, scanner.stopped.Load())
}

func TestWorkerFailureCancelsSiblings(t *testing.T) {
	defer goleak.VerifyNone(t)

	watcher := &blockingWorker{}
	boom := errors.New("scanner backend gone")
	o, err := New(Options{Watcher: watcher, Scanner: &failingWorker{err: boom}}, zaptest.NewLogger(t))
	require.NoError(t, err)

	err = o.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, watcher.stopped.Load(), "watcher is torn down with the failed sibling")
}

func TestPanicHotkeyTriggersShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	combo, err := hotkey.ParseCombo("ctrl+alt+shift+p")
	require.NoError(t, err)

	watcher := &blockingWorker{}
	listener := hotkey.NewSimListener()
	o, err := New(Options{Watcher: watcher, Hotkeys: listener, PanicCombo: combo}, zaptest.NewLogger(t))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	require.Eventually(t, func() bool { return watcher.started.Load() }, 2*time.Second, 5*time.Millisecond)
	listener.Press(combo)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("panic hotkey did not stop the orchestrator")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	watcher := &blockingWorker{}
	o, err := New(Options{Watcher: watcher}, zaptest.NewLogger(t))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()
	require.Eventually(t, func() bool { return watcher.started.Load() }, 2*time.Second, 5*time.Millisecond)

	o.Shutdown()
	o.Shutdown()
	require.NoError(t, <-done)
}

func TestShutdownBeforeRun(t *testing.T) {
	t.Parallel()

	watcher := &blockingWorker{}
	o, err := New(Options{Watcher: watcher}, zaptest.NewLogger(t))
	require.NoError(t, err)

	o.Shutdown()
	require.NoError(t, o.Run(context.Background()))
	assert.False(t, watcher.started.Load(), "workers never start after an early shutdown")
}

func TestInteractiveChatStopsOnExit(t *testing.T) {
	defer goleak.VerifyNone(t)

	bridge := chat.NewBridge(config.NewDefaultConfig(), nil, zaptest.NewLogger(t))
	w := &InteractiveChat{
		Bridge: bridge,
		In:     strings.NewReader("exit\n"),
		Out:    &strings.Builder{},
	}
	require.NoError(t, w.Run(context.Background()))
}
