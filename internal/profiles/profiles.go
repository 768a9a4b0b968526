// File: internal/profiles/profiles.go
// Package profiles manages the active safety-toggle bundle. Definitions come
// from configuration and stay immutable; runtime overrides shadow individual
// toggles for the active profile only.
package profiles

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot-cli/internal/config"
)

var (
	// ErrUnknownProfile reports activation of an undefined profile.
	ErrUnknownProfile = errors.New("profiles: unknown profile")
	// ErrUnknownToggle reports an override on an unrecognized toggle name.
	ErrUnknownToggle = errors.New("profiles: unknown toggle")
)

// Boolean toggle names accepted by SetOverride.
const (
	ToggleIdleOnly           = "idle_only"
	ToggleForegroundRequired = "foreground_required"
	ToggleCoordinateClicks   = "coordinate_clicks"
	ToggleElevation          = "elevation"
)

// Manager tracks the active profile and its runtime overrides.
type Manager struct {
	cfg    config.ProfilesConfig
	logger *zap.Logger

	mu        sync.RWMutex
	active    string
	overrides map[string]bool
}

// NewManager activates the startup profile: the run flag when set,
// otherwise the configured default.
func NewManager(cfg config.Interface, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		cfg:       cfg.Profiles(),
		logger:    logger.Named("Profiles"),
		overrides: map[string]bool{},
	}
	startup := cfg.Run().Profile
	if startup == "" {
		startup = m.cfg.Default
	}
	if err := m.Activate(startup); err != nil {
		return nil, err
	}
	return m, nil
}

// Activate switches profiles and clears any runtime overrides.
func (m *Manager) Activate(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cfg.Definitions[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	m.active = name
	m.overrides = map[string]bool{}
	m.logger.Info("Profile activated.", zap.String("profile", name))
	return nil
}

// Active returns the active profile name.
func (m *Manager) Active() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Names lists the defined profiles, sorted.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.cfg.Definitions))
	for name := range m.cfg.Definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the definition of one profile as configured, without
// runtime overrides applied.
func (m *Manager) Describe(name string) (config.ProfileDefinition, error) {
	def, ok := m.cfg.Definitions[name]
	if !ok {
		return config.ProfileDefinition{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return def, nil
}

// SetOverride shadows one boolean toggle of the active profile. The
// underlying definition is untouched.
func (m *Manager) SetOverride(toggle string, value bool) error {
	switch toggle {
	case ToggleIdleOnly, ToggleForegroundRequired, ToggleCoordinateClicks, ToggleElevation:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownToggle, toggle)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[toggle] = value
	m.logger.Info("Toggle override set.",
		zap.String("profile", m.active),
		zap.String("toggle", toggle),
		zap.Bool("value", value))
	return nil
}

// ClearOverrides drops all runtime overrides for the active profile.
func (m *Manager) ClearOverrides() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides = map[string]bool{}
}

// Effective returns the active profile's toggles with overrides applied.
func (m *Manager) Effective() config.ToggleConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	toggles := m.cfg.Definitions[m.active].Toggles
	// Allow-lists are shared slices; hand out copies.
	toggles.NetworkAllow = append([]string(nil), toggles.NetworkAllow...)
	toggles.FilesystemAllow = append([]string(nil), toggles.FilesystemAllow...)

	for toggle, value := range m.overrides {
		switch toggle {
		case ToggleIdleOnly:
			toggles.IdleOnly = value
		case ToggleForegroundRequired:
			toggles.ForegroundRequired = value
		case ToggleCoordinateClicks:
			toggles.CoordinateClicks = value
		case ToggleElevation:
			toggles.Elevation = value
		}
	}
	return toggles
}
