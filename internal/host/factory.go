package host

import (
	"fmt"
	"time"

	"mirror-go/internal/config"
	"mirror-go/internal/mirror"
)

// reloadCommandTimeout bounds a single reload command.
const reloadCommandTimeout = 30 * time.Second

// NewSessionFromConfig creates the SessionChecker named by cfg.Type.
func NewSessionFromConfig(cfg config.SessionConfig) (mirror.SessionChecker, error) {
	switch cfg.Type {
	case "", "always":
		return AlwaysActive{}, nil
	case "marker":
		if cfg.MarkerPath == "" {
			return nil, fmt.Errorf("session marker_path is required")
		}
		return NewMarkerSession(cfg.MarkerPath), nil
	default:
		return nil, fmt.Errorf("unknown session type: %s", cfg.Type)
	}
}

// NewReloaderFromConfig creates the PreferenceReloader named by cfg.Reload.
// dir is the resolved preferences directory.
func NewReloaderFromConfig(cfg config.PreferencesConfig, fsmgr mirror.FilesystemManager, dir string) (mirror.PreferenceReloader, error) {
	switch cfg.Reload {
	case "", "touch":
		suffix := cfg.Suffix
		if suffix == "" {
			suffix = mirror.DefaultPreferencesSuffix
		}
		return NewTouchReloader(fsmgr, dir, suffix), nil
	case "command":
		r, err := NewCommandReloader(cfg.Command, reloadCommandTimeout)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "none":
		return NopReloader{}, nil
	default:
		return nil, fmt.Errorf("unknown preferences reload: %s", cfg.Reload)
	}
}
