// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/deskpilot-cli/api/schemas"
)

func newViperWithYAML(t *testing.T, yamlDoc string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(yamlDoc)))
	return v
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "deskpilot", cfg.Logger().ServiceName)
	assert.Equal(t, "standard", cfg.Profiles().Default)
	assert.Contains(t, cfg.Profiles().Definitions, "standard")
	assert.Equal(t, 5, cfg.Watcher().ReadRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.Watcher().RetryBackoff)
	assert.Equal(t, 2*time.Second, cfg.OCR().PollInterval)
	assert.Equal(t, "ctrl+alt+shift+p", cfg.Safety().PanicHotkey)
	assert.False(t, cfg.Features().ChatBridge)
	assert.False(t, cfg.Features().OCRIntents)
}

func TestNewConfigFromViper(t *testing.T) {
	t.Run("loads apps and intent mappings", func(t *testing.T) {
		v := newViperWithYAML(t, `
apps:
  notepad:
    description: "Scratch pad"
    enabled: true
    path: "C:/Windows/notepad.exe"
    args: ["--new"]
    inherit_env: true
    window:
      title_match: "(?i)notepad"
      process_name: "notepad.exe"
      single_instance: detect
    presets:
      blank: []
intents:
  directory: "/var/deskpilot/intents"
  archive_directory: "/var/deskpilot/intents/archive"
  map:
    export_quotes:
      recipe: "export_quotes.yml"
`)
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		app, ok := cfg.Apps()["notepad"]
		require.True(t, ok)
		assert.Equal(t, "C:/Windows/notepad.exe", app.Path)
		assert.Equal(t, []string{"--new"}, app.Args)
		assert.True(t, app.InheritEnv)
		assert.Equal(t, "(?i)notepad", app.Window.TitleMatch)
		assert.Equal(t, schemas.SingleInstanceDetect, app.EffectivePolicy())

		require.Contains(t, cfg.Intents().Map, "export_quotes")
		assert.Equal(t, "export_quotes.yml", cfg.Intents().Map["export_quotes"].Recipe)
	})

	t.Run("policy defaults to detect when omitted", func(t *testing.T) {
		v := newViperWithYAML(t, `
apps:
  calc:
    path: "/usr/bin/calc"
`)
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, schemas.SingleInstanceDetect, cfg.Apps()["calc"].EffectivePolicy())
	})

	t.Run("rejects app without a launch vector", func(t *testing.T) {
		v := newViperWithYAML(t, `
apps:
  ghost:
    description: "no path, no shell"
`)
		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "launch vector")
	})

	t.Run("rejects unknown single_instance policy", func(t *testing.T) {
		v := newViperWithYAML(t, `
apps:
  calc:
    path: "/usr/bin/calc"
    window:
      single_instance: sometimes
`)
		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "single_instance")
	})

	t.Run("rejects undefined default profile", func(t *testing.T) {
		v := newViperWithYAML(t, `
profiles:
  default: "locked_down"
`)
		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "locked_down")
	})

	t.Run("expands home-relative directories", func(t *testing.T) {
		t.Setenv("HOME", "/home/op")
		homedir.Reset()
		t.Cleanup(homedir.Reset)
		v := newViperWithYAML(t, `
intents:
  directory: "~/mailbox"
  archive_directory: "~/mailbox/done"
`)
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "/home/op/mailbox", cfg.Intents().Directory)
		assert.Equal(t, "/home/op/mailbox/done", cfg.Intents().ArchiveDirectory)
	})
}

func TestRunConfigSetters(t *testing.T) {
	cfg := NewDefaultConfig()

	cfg.SetRunSimulate(true)
	cfg.SetRunDryRun(true)
	cfg.SetRunAllowFocusTap(true)
	cfg.SetRunProfile("restricted")

	run := cfg.Run()
	assert.True(t, run.Simulate)
	assert.True(t, run.DryRun)
	assert.True(t, run.AllowFocusTap)
	assert.Equal(t, "restricted", run.Profile)
}
