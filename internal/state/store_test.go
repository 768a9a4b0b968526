// File: internal/state/store_test.go
package state

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/deskpilot-cli/api/schemas"
	"github.com/xkilldash9x/deskpilot-cli/internal/config"
	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(config.StateConfig{
		Accounts: map[string]config.AccountConfig{
			"brokerage": {CashFree: 1500.25},
		},
		Market: map[string]string{"AAPL": "231.10"},
	}, zaptest.NewLogger(t))
}

func TestTrack(t *testing.T) {
	t.Run("successful activity lands as succeeded", func(t *testing.T) {
		s := newTestStore(t)
		err := s.Track("app.start", map[string]any{"app": "terminal"}, func() error {
			cur, ok := s.CurrentActivity()
			require.True(t, ok)
			assert.Equal(t, schemas.ActivityRunning, cur.Status)
			return nil
		})
		require.NoError(t, err)

		hist := s.History()
		require.Len(t, hist, 1)
		assert.Equal(t, schemas.ActivitySucceeded, hist[0].Status)
		assert.Equal(t, "app.start", hist[0].Name)
		assert.False(t, hist[0].FinishedAt.IsZero())

		_, ok := s.CurrentActivity()
		assert.False(t, ok)
	})

	t.Run("failure is recorded and propagates", func(t *testing.T) {
		s := newTestStore(t)
		boom := errors.New("window never appeared")
		err := s.Track("ui.wait", nil, func() error { return boom })
		require.ErrorIs(t, err, boom)

		hist := s.History()
		require.Len(t, hist, 1)
		assert.Equal(t, schemas.ActivityFailed, hist[0].Status)
		assert.Equal(t, "window never appeared", hist[0].Error)
	})

	t.Run("activities appear in execution order", func(t *testing.T) {
		s := newTestStore(t)
		for i := 0; i < 5; i++ {
			name := fmt.Sprintf("step-%d", i)
			require.NoError(t, s.Track(name, nil, func() error { return nil }))
		}
		hist := s.History()
		require.Len(t, hist, 5)
		for i, act := range hist {
			assert.Equal(t, fmt.Sprintf("step-%d", i), act.Name)
		}
	})

	t.Run("a failed step leaves earlier steps succeeded", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Track("step-a", nil, func() error { return nil }))
		require.Error(t, s.Track("step-b", nil, func() error { return errors.New("nope") }))

		hist := s.History()
		require.Len(t, hist, 2)
		assert.Equal(t, schemas.ActivitySucceeded, hist[0].Status)
		assert.Equal(t, schemas.ActivityFailed, hist[1].Status)
	})

	t.Run("history evicts oldest first at the cap", func(t *testing.T) {
		s := NewStore(config.StateConfig{HistoryLimit: 3}, zaptest.NewLogger(t))
		for i := 0; i < 5; i++ {
			name := fmt.Sprintf("step-%d", i)
			require.NoError(t, s.Track(name, nil, func() error { return nil }))
		}
		hist := s.History()
		require.Len(t, hist, 3)
		assert.Equal(t, "step-2", hist[0].Name)
		assert.Equal(t, "step-4", hist[2].Name)
	})
}

func TestProcessRegistry(t *testing.T) {
	t.Parallel()

	rec := func(id, app string, pid int) ProcessRecord {
		return ProcessRecord{InstanceID: id, App: app, PID: pid, StartedAt: time.Now()}
	}

	t.Run("latest resolves the most recent record per app", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		s.PutProcess(rec("i-1", "terminal", 100))
		s.PutProcess(rec("i-2", "editor", 200))
		s.PutProcess(rec("i-3", "terminal", 300))

		latest, ok := s.LatestFor("terminal")
		require.True(t, ok)
		assert.Equal(t, "i-3", latest.InstanceID)

		all := s.ProcessesFor("terminal")
		require.Len(t, all, 2)
		assert.Equal(t, "i-1", all[0].InstanceID)
	})

	t.Run("drop removes record and ordering entry", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		s.PutProcess(rec("i-1", "terminal", 100))
		s.PutProcess(rec("i-2", "terminal", 200))
		s.DropProcess("i-2")

		latest, ok := s.LatestFor("terminal")
		require.True(t, ok)
		assert.Equal(t, "i-1", latest.InstanceID)

		_, ok = s.Process("i-2")
		assert.False(t, ok)
	})
}

func TestSnapshot(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	s.PutProcess(ProcessRecord{InstanceID: "i-1", App: "terminal", PID: 100, StartedAt: time.Now()})
	require.NoError(t, s.Track("step", nil, func() error { return nil }))

	snap := s.Snapshot()

	accounts, ok := snap["accounts"].(map[string]any)
	require.True(t, ok)
	brokerage, ok := accounts["brokerage"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1500.25, brokerage["cash_free"])

	market := snap["market"].(map[string]any)
	assert.Equal(t, "231.10", market["AAPL"])

	// Mutating the snapshot must not leak back into the store.
	brokerage["cash_free"] = 0.0
	again := s.Snapshot()
	assert.Equal(t, 1500.25,
		again["accounts"].(map[string]any)["brokerage"].(map[string]any)["cash_free"])
}
