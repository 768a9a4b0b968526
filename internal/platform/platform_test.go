// File: internal/platform/platform_test.go
package platform

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/deskpilot-cli/api/schemas"
	"go.uber.org/zap/zaptest"
)

func TestMergeEnv(t *testing.T) {
	t.Run("overrides win over configured values", func(t *testing.T) {
		spec := LaunchSpec{
			Env:       map[string]string{"MODE": "configured", "KEEP": "yes"},
			Overrides: map[string]string{"MODE": "override"},
		}
		env := MergeEnv(spec)
		assert.Contains(t, env, "MODE=override")
		assert.Contains(t, env, "KEEP=yes")
		assert.NotContains(t, env, "MODE=configured")
	})

	t.Run("configured values shadow inherited ones", func(t *testing.T) {
		t.Setenv("DESKPILOT_TEST_SHADOW", "host")
		spec := LaunchSpec{
			InheritEnv: true,
			Env:        map[string]string{"DESKPILOT_TEST_SHADOW": "app"},
		}
		env := MergeEnv(spec)
		assert.Contains(t, env, "DESKPILOT_TEST_SHADOW=app")
		assert.NotContains(t, env, "DESKPILOT_TEST_SHADOW=host")
	})

	t.Run("no inheritance means only explicit values", func(t *testing.T) {
		t.Setenv("DESKPILOT_TEST_LEAK", "host")
		env := MergeEnv(LaunchSpec{Env: map[string]string{"ONLY": "this"}})
		assert.Equal(t, []string{"ONLY=this"}, env)
	})
}

func TestExecLauncher(t *testing.T) {
	t.Run("launched process outlives a canceled context", func(t *testing.T) {
		launcher := NewExecLauncher(zaptest.NewLogger(t))
		ctrl := NewOSProcessController()

		ctx, cancel := context.WithCancel(context.Background())
		launched, err := launcher.Launch(ctx, LaunchSpec{Path: "/bin/sleep", Args: []string{"30"}})
		require.NoError(t, err)
		t.Cleanup(func() { _ = ctrl.Kill(launched.PID) })
		require.True(t, ctrl.IsAlive(launched.PID))

		cancel()
		time.Sleep(300 * time.Millisecond)
		assert.True(t, ctrl.IsAlive(launched.PID),
			"launch must not tie the application to the caller's context")
	})

	t.Run("shell launch exposes extra args as positional parameters", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "args.txt")
		launcher := NewExecLauncher(zaptest.NewLogger(t))

		_, err := launcher.Launch(context.Background(), LaunchSpec{
			Shell: `printf '%s,%s' "$1" "$2" > ` + out,
			Args:  []string{"alpha", "beta"},
		})
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			data, err := os.ReadFile(out)
			return err == nil && string(data) == "alpha,beta"
		}, 2*time.Second, 20*time.Millisecond)
	})

	t.Run("empty spec is rejected", func(t *testing.T) {
		launcher := NewExecLauncher(zaptest.NewLogger(t))
		_, err := launcher.Launch(context.Background(), LaunchSpec{})
		require.Error(t, err)
	})
}

func TestSimulatorLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("launch opens the registered auto window", func(t *testing.T) {
		sim := NewSimulator()
		sim.RegisterAutoWindow("/opt/term/term", "Terminal Pro", "TermClass")

		launched, err := sim.Launch(ctx, LaunchSpec{Path: "/opt/term/term"})
		require.NoError(t, err)
		assert.True(t, sim.IsAlive(launched.PID))

		windows, err := sim.ListWindows(ctx)
		require.NoError(t, err)
		require.Len(t, windows, 1)
		assert.Equal(t, "Terminal Pro", windows[0].Title)
		assert.Equal(t, launched.PID, windows[0].PID)

		name, err := sim.ProcessName(launched.PID)
		require.NoError(t, err)
		assert.Equal(t, "term", name)
	})

	t.Run("terminate drops the process and its windows", func(t *testing.T) {
		sim := NewSimulator()
		launched, err := sim.Launch(ctx, LaunchSpec{Path: "/bin/app"})
		require.NoError(t, err)
		h := sim.SpawnWindow(launched.PID, "App", "AppClass")

		require.NoError(t, sim.Terminate(launched.PID))
		assert.False(t, sim.IsAlive(launched.PID))
		assert.False(t, sim.IsWindow(h))
	})

	t.Run("stubborn process survives terminate but not kill", func(t *testing.T) {
		sim := NewSimulator()
		launched, err := sim.Launch(ctx, LaunchSpec{Path: "/bin/app"})
		require.NoError(t, err)
		h := sim.SpawnWindow(launched.PID, "App", "AppClass")
		sim.SetStubborn(launched.PID)

		require.NoError(t, sim.Terminate(launched.PID))
		assert.True(t, sim.IsAlive(launched.PID))
		require.NoError(t, sim.RequestClose(h))
		assert.True(t, sim.IsWindow(h), "stubborn app ignores the close request")

		require.NoError(t, sim.Kill(launched.PID))
		assert.False(t, sim.IsAlive(launched.PID))
		assert.False(t, sim.IsWindow(h))
	})

	t.Run("focus and show adjust window state", func(t *testing.T) {
		sim := NewSimulator()
		launched, err := sim.Launch(ctx, LaunchSpec{Path: "/bin/app"})
		require.NoError(t, err)
		h := sim.SpawnWindow(launched.PID, "App", "AppClass")

		require.NoError(t, sim.Show(h, schemas.ShowMinimize))
		windows, _ := sim.ListWindows(ctx)
		assert.True(t, windows[0].Minimized)

		require.NoError(t, sim.Focus(h))
		fg, ok := sim.ForegroundWindow()
		require.True(t, ok)
		assert.Equal(t, h, fg)
		windows, _ = sim.ListWindows(ctx)
		assert.False(t, windows[0].Minimized)

		assert.ErrorIs(t, sim.Focus(schemas.WindowHandle(0xdead)), ErrWindowGone)
	})
}

func TestHeadlessOracle(t *testing.T) {
	o := NewHeadlessOracle()

	windows, err := o.ListWindows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, windows)

	assert.ErrorIs(t, o.Focus(1), ErrNoDesktop)
	assert.ErrorIs(t, o.Show(1, schemas.ShowRestore), ErrNoDesktop)
	_, ok := o.ForegroundWindow()
	assert.False(t, ok)
}
