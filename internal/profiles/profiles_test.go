// File: internal/profiles/profiles_test.go
package profiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/deskpilot-cli/internal/config"
	"go.uber.org/zap/zaptest"
)

func newManager(t *testing.T, runProfile string) *Manager {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.ProfilesCfg = config.ProfilesConfig{
		Default: "standard",
		Definitions: map[string]config.ProfileDefinition{
			"standard": {
				Description: "Everyday automation",
				Toggles: config.ToggleConfig{
					ForegroundRequired: true,
					NetworkAllow:       []string{"broker.example.com"},
				},
			},
			"locked_down": {
				Description: "Idle machine only",
				Toggles: config.ToggleConfig{
					IdleOnly:           true,
					ForegroundRequired: true,
				},
			},
		},
	}
	cfg.SetRunProfile(runProfile)
	m, err := NewManager(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return m
}

func TestStartupSelection(t *testing.T) {
	t.Parallel()

	t.Run("default profile wins without a run flag", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "standard", newManager(t, "").Active())
	})

	t.Run("run flag overrides the default", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "locked_down", newManager(t, "locked_down").Active())
	})

	t.Run("unknown startup profile fails construction", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewDefaultConfig()
		cfg.SetRunProfile("yolo")
		_, err := NewManager(cfg, zaptest.NewLogger(t))
		assert.ErrorIs(t, err, ErrUnknownProfile)
	})
}

func TestOverrides(t *testing.T) {
	t.Parallel()

	t.Run("override shadows without mutating the definition", func(t *testing.T) {
		t.Parallel()
		m := newManager(t, "")
		require.NoError(t, m.SetOverride(ToggleForegroundRequired, false))

		assert.False(t, m.Effective().ForegroundRequired)

		def, err := m.Describe("standard")
		require.NoError(t, err)
		assert.True(t, def.Toggles.ForegroundRequired, "definition stays as configured")
	})

	t.Run("unknown toggle is rejected", func(t *testing.T) {
		t.Parallel()
		m := newManager(t, "")
		assert.ErrorIs(t, m.SetOverride("warp_speed", true), ErrUnknownToggle)
	})

	t.Run("switching profiles clears overrides", func(t *testing.T) {
		t.Parallel()
		m := newManager(t, "")
		require.NoError(t, m.SetOverride(ToggleIdleOnly, true))
		require.NoError(t, m.Activate("locked_down"))
		require.NoError(t, m.Activate("standard"))
		assert.False(t, m.Effective().IdleOnly)
	})

	t.Run("clear overrides restores the definition", func(t *testing.T) {
		t.Parallel()
		m := newManager(t, "")
		require.NoError(t, m.SetOverride(ToggleElevation, true))
		m.ClearOverrides()
		assert.False(t, m.Effective().Elevation)
	})

	t.Run("effective allow lists are copies", func(t *testing.T) {
		t.Parallel()
		m := newManager(t, "")
		eff := m.Effective()
		require.NotEmpty(t, eff.NetworkAllow)
		eff.NetworkAllow[0] = "evil.example.com"

		def, err := m.Describe("standard")
		require.NoError(t, err)
		assert.Equal(t, "broker.example.com", def.Toggles.NetworkAllow[0])
	})
}

func TestNames(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"locked_down", "standard"}, newManager(t, "").Names())
}
