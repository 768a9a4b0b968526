// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/xkilldash9x/deskpilot-cli/api/schemas"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Apps() map[string]AppConfig
	Intents() IntentsConfig
	Recipes() RecipesConfig
	Profiles() ProfilesConfig
	State() StateConfig
	Safety() SafetyConfig
	Features() FeatureFlags
	Watcher() WatcherConfig
	OCR() OCRConfig
	Chat() ChatConfig
	Browser() BrowserConfig
	Run() RunConfig

	// Run flags come from the CLI, not the config file.
	SetRunConfig(rc RunConfig)

	// Targeted setters used by command flags and tests.
	SetRunSimulate(bool)
	SetRunDryRun(bool)
	SetRunAllowFocusTap(bool)
	SetRunProfile(string)
	SetOCRPollInterval(d time.Duration)
	SetWatcherReadRetries(int)
}

// Config holds the entire application configuration. Access goes through
// the Interface getters so components can be handed a narrow contract.
type Config struct {
	LoggerCfg   LoggerConfig         `mapstructure:"logger" yaml:"logger"`
	AppsCfg     map[string]AppConfig `mapstructure:"apps" yaml:"apps"`
	IntentsCfg  IntentsConfig        `mapstructure:"intents" yaml:"intents"`
	RecipesCfg  RecipesConfig        `mapstructure:"recipes" yaml:"recipes"`
	ProfilesCfg ProfilesConfig       `mapstructure:"profiles" yaml:"profiles"`
	StateCfg    StateConfig          `mapstructure:"state" yaml:"state"`
	SafetyCfg   SafetyConfig         `mapstructure:"safety" yaml:"safety"`
	FeaturesCfg FeatureFlags         `mapstructure:"features" yaml:"features"`
	WatcherCfg  WatcherConfig        `mapstructure:"watcher" yaml:"watcher"`
	OCRCfg      OCRConfig            `mapstructure:"ocr" yaml:"ocr"`
	ChatCfg     ChatConfig           `mapstructure:"chat" yaml:"chat"`
	BrowserCfg  BrowserConfig        `mapstructure:"browser" yaml:"browser"`
	// RunCfg gets its marching orders from CLI flags, not the config file.
	RunCfg RunConfig `mapstructure:"-" yaml:"-"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig        { return c.LoggerCfg }
func (c *Config) Apps() map[string]AppConfig  { return c.AppsCfg }
func (c *Config) Intents() IntentsConfig      { return c.IntentsCfg }
func (c *Config) Recipes() RecipesConfig      { return c.RecipesCfg }
func (c *Config) Profiles() ProfilesConfig    { return c.ProfilesCfg }
func (c *Config) State() StateConfig          { return c.StateCfg }
func (c *Config) Safety() SafetyConfig        { return c.SafetyCfg }
func (c *Config) Features() FeatureFlags      { return c.FeaturesCfg }
func (c *Config) Watcher() WatcherConfig      { return c.WatcherCfg }
func (c *Config) OCR() OCRConfig              { return c.OCRCfg }
func (c *Config) Chat() ChatConfig            { return c.ChatCfg }
func (c *Config) Browser() BrowserConfig      { return c.BrowserCfg }
func (c *Config) Run() RunConfig              { return c.RunCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetRunConfig(rc RunConfig)            { c.RunCfg = rc }
func (c *Config) SetRunSimulate(b bool)                { c.RunCfg.Simulate = b }
func (c *Config) SetRunDryRun(b bool)                  { c.RunCfg.DryRun = b }
func (c *Config) SetRunAllowFocusTap(b bool)           { c.RunCfg.AllowFocusTap = b }
func (c *Config) SetRunProfile(p string)               { c.RunCfg.Profile = p }
func (c *Config) SetOCRPollInterval(d time.Duration)   { c.OCRCfg.PollInterval = d }
func (c *Config) SetWatcherReadRetries(n int)          { c.WatcherCfg.ReadRetries = n }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// WindowMatchConfig describes how to find an application's windows.
type WindowMatchConfig struct {
	TitleMatch       string                       `mapstructure:"title_match" yaml:"title_match"`
	ClassMatch       string                       `mapstructure:"class_match" yaml:"class_match"`
	ProcessName      string                       `mapstructure:"process_name" yaml:"process_name"`
	MustAppearWithin time.Duration                `mapstructure:"must_appear_within" yaml:"must_appear_within"`
	BringToFront     bool                         `mapstructure:"bring_to_front" yaml:"bring_to_front"`
	SingleInstance   schemas.SingleInstancePolicy `mapstructure:"single_instance" yaml:"single_instance"`
}

// AppConfig is the static definition of one managed application.
type AppConfig struct {
	Description string              `mapstructure:"description" yaml:"description"`
	Enabled     bool                `mapstructure:"enabled" yaml:"enabled"`
	Path        string              `mapstructure:"path" yaml:"path"`
	Shell       string              `mapstructure:"shell" yaml:"shell"`
	Args        []string            `mapstructure:"args" yaml:"args"`
	WorkingDir  string              `mapstructure:"working_dir" yaml:"working_dir"`
	Env         map[string]string   `mapstructure:"env" yaml:"env"`
	InheritEnv  bool                `mapstructure:"inherit_env" yaml:"inherit_env"`
	Presets     map[string][]string `mapstructure:"presets" yaml:"presets"`
	Window      WindowMatchConfig   `mapstructure:"window" yaml:"window"`
	Tags        []string            `mapstructure:"tags" yaml:"tags"`
}

// Validate checks that the app definition carries a launch vector.
func (a AppConfig) Validate(name string) error {
	if a.Path == "" && a.Shell == "" {
		return fmt.Errorf("app %q requires a launch vector (path or shell)", name)
	}
	switch a.Window.SingleInstance {
	case "", schemas.SingleInstanceDetect, schemas.SingleInstanceForce, schemas.SingleInstanceAllow:
	default:
		return fmt.Errorf("app %q has unknown single_instance policy %q", name, a.Window.SingleInstance)
	}
	return nil
}

// EffectivePolicy returns the single-instance policy, defaulting to detect.
func (a AppConfig) EffectivePolicy() schemas.SingleInstancePolicy {
	if a.Window.SingleInstance == "" {
		return schemas.SingleInstanceDetect
	}
	return a.Window.SingleInstance
}

// IntentMapping binds an intent name to a recipe file (relative to the
// recipes directory unless absolute).
type IntentMapping struct {
	Recipe string `mapstructure:"recipe" yaml:"recipe"`
}

// IntentsConfig configures the filesystem intent mailbox.
type IntentsConfig struct {
	Directory        string                   `mapstructure:"directory" yaml:"directory"`
	ArchiveDirectory string                   `mapstructure:"archive_directory" yaml:"archive_directory"`
	Map              map[string]IntentMapping `mapstructure:"map" yaml:"map"`
	Manifest         string                   `mapstructure:"manifest" yaml:"manifest"`
}

// RecipesConfig locates the recipe library.
type RecipesConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

// ToggleConfig is one bundle of safety flags.
type ToggleConfig struct {
	IdleOnly           bool     `mapstructure:"idle_only" yaml:"idle_only"`
	ForegroundRequired bool     `mapstructure:"foreground_required" yaml:"foreground_required"`
	CoordinateClicks   bool     `mapstructure:"coordinate_clicks" yaml:"coordinate_clicks"`
	Elevation          bool     `mapstructure:"elevation" yaml:"elevation"`
	NetworkAllow       []string `mapstructure:"network_allow" yaml:"network_allow"`
	FilesystemAllow    []string `mapstructure:"filesystem_allow" yaml:"filesystem_allow"`
}

// ProfileDefinition is a named toggle bundle.
type ProfileDefinition struct {
	Description string       `mapstructure:"description" yaml:"description"`
	Toggles     ToggleConfig `mapstructure:"toggles" yaml:"toggles"`
}

// ProfilesConfig holds the profile catalogue and the startup default.
type ProfilesConfig struct {
	Default     string                       `mapstructure:"default" yaml:"default"`
	Definitions map[string]ProfileDefinition `mapstructure:"definitions" yaml:"definitions"`
}

// AccountConfig seeds one account entry in the state store.
type AccountConfig struct {
	CashFree float64 `mapstructure:"cash_free" yaml:"cash_free"`
}

// StateConfig seeds the in-memory state store at startup.
type StateConfig struct {
	Accounts     map[string]AccountConfig `mapstructure:"accounts" yaml:"accounts"`
	Market       map[string]string        `mapstructure:"market" yaml:"market"`
	HistoryLimit int                      `mapstructure:"history_limit" yaml:"history_limit"`
}

// SafetyConfig carries the emergency-shutdown hotkey.
type SafetyConfig struct {
	PanicHotkey string `mapstructure:"panic_hotkey" yaml:"panic_hotkey"`
}

// FeatureFlags switches optional intent producers on and off.
type FeatureFlags struct {
	ChatBridge bool `mapstructure:"chat_bridge" yaml:"chat_bridge"`
	OCRIntents bool `mapstructure:"ocr_intents" yaml:"ocr_intents"`
}

// WatcherConfig tunes the intent watcher's transient-failure handling.
type WatcherConfig struct {
	ReadRetries  int           `mapstructure:"read_retries" yaml:"read_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
}

// OCRConfig tunes the screen scanner loop.
type OCRConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	HistoryLimit int           `mapstructure:"history_limit" yaml:"history_limit"`
}

// ChatConfig tunes the interactive bridge.
type ChatConfig struct {
	Prompt           string `mapstructure:"prompt" yaml:"prompt"`
	FilenameAttempts int    `mapstructure:"filename_attempts" yaml:"filename_attempts"`
}

// BrowserConfig holds settings for the browser step driver.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// RunConfig holds settings populated from CLI flags for one agent run.
type RunConfig struct {
	Simulate      bool
	DryRun        bool
	AllowFocusTap bool
	Profile       string
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	for name, app := range c.AppsCfg {
		if err := app.Validate(name); err != nil {
			return err
		}
	}
	if len(c.IntentsCfg.Map) > 0 {
		if c.IntentsCfg.Directory == "" || c.IntentsCfg.ArchiveDirectory == "" {
			return fmt.Errorf("intents.directory and intents.archive_directory are required when intent mappings are configured")
		}
	}
	if c.ProfilesCfg.Default != "" {
		if _, ok := c.ProfilesCfg.Definitions[c.ProfilesCfg.Default]; !ok {
			return fmt.Errorf("default profile %q is not defined", c.ProfilesCfg.Default)
		}
	}
	if c.WatcherCfg.ReadRetries <= 0 {
		return fmt.Errorf("watcher.read_retries must be a positive integer")
	}
	if c.OCRCfg.PollInterval <= 0 {
		return fmt.Errorf("ocr.poll_interval must be a positive duration")
	}
	if c.SafetyCfg.PanicHotkey == "" {
		return fmt.Errorf("safety.panic_hotkey must be a non-empty hotkey sequence")
	}
	return nil
}
