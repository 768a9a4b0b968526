// File: internal/config/viper.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// SetDefaults initializes default values for the configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "deskpilot")
	v.SetDefault("logger.log_file", "deskpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Intents --
	v.SetDefault("intents.directory", "~/.deskpilot/intents")
	v.SetDefault("intents.archive_directory", "~/.deskpilot/intents/archive")
	v.SetDefault("intents.manifest", "")

	// -- Recipes --
	v.SetDefault("recipes.directory", "~/.deskpilot/recipes")

	// -- Profiles --
	v.SetDefault("profiles.default", "standard")
	v.SetDefault("profiles.definitions.standard.description", "Day-to-day automation with foreground checks on.")
	v.SetDefault("profiles.definitions.standard.toggles.idle_only", false)
	v.SetDefault("profiles.definitions.standard.toggles.foreground_required", true)
	v.SetDefault("profiles.definitions.standard.toggles.coordinate_clicks", false)
	v.SetDefault("profiles.definitions.standard.toggles.elevation", false)

	// -- State --
	v.SetDefault("state.history_limit", 200)

	// -- Safety --
	v.SetDefault("safety.panic_hotkey", "ctrl+alt+shift+p")

	// -- Features --
	v.SetDefault("features.chat_bridge", false)
	v.SetDefault("features.ocr_intents", false)

	// -- Watcher --
	v.SetDefault("watcher.read_retries", 5)
	v.SetDefault("watcher.retry_backoff", 200*time.Millisecond)

	// -- OCR --
	v.SetDefault("ocr.poll_interval", 2*time.Second)
	v.SetDefault("ocr.history_limit", 64)

	// -- Chat --
	v.SetDefault("chat.prompt", "deskpilot> ")
	v.SetDefault("chat.filename_attempts", 100)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", "90s")
}

// NewDefaultConfig returns a Config carrying only the defaults. Used by
// tests and by commands that run without a config file.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with only defaults set.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object,
// expands home-relative paths and validates the result.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("error expanding config paths: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves "~" in the directory settings so the rest of the
// program only ever sees absolute paths.
func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.IntentsCfg.Directory,
		&c.IntentsCfg.ArchiveDirectory,
		&c.IntentsCfg.Manifest,
		&c.RecipesCfg.Directory,
		&c.LoggerCfg.LogFile,
	} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding %q: %w", *p, err)
		}
		*p = filepath.Clean(expanded)
	}
	for name, app := range c.AppsCfg {
		if app.WorkingDir != "" {
			expanded, err := homedir.Expand(app.WorkingDir)
			if err != nil {
				return fmt.Errorf("expanding working_dir for app %q: %w", name, err)
			}
			app.WorkingDir = filepath.Clean(expanded)
			c.AppsCfg[name] = app
		}
	}
	return nil
}
