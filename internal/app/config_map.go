package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"iaa/internal/config"
	"iaa/internal/notifier"
	"iaa/internal/storage"
	"iaa/internal/transport/telegram"
)

// mapStorageConfig resolves the storage section against root. The bool is
// false when storage is disabled.
func mapStorageConfig(root string, cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			path = "data/history"
		}
		return storage.Config{Driver: "file", Path: config.Resolve(root, path)}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: config.Resolve(root, path), BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	if nc.RatePerSec < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.rate_per_sec must be >= 0")
	}
	if nc.Burst < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.burst must be >= 0")
	}
	return notifier.Config{
		Enabled:     nc.Enabled,
		RatePerSec:  nc.RatePerSec,
		Burst:       nc.Burst,
		RetryMax:    2,
		RetryBase:   time.Second,
		DedupWindow: 10 * time.Minute,
	}, nil
}

// validate rejects hot reloads that the running services could not apply.
// config.Validate has already run.
func (a *App) validate(_ context.Context, cfg *config.Config) error {
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(a.root, cfg); err != nil {
		return err
	}
	if cfg.Telegram.Enabled {
		if _, err := telegram.FromConfig(cfg.Telegram); err != nil {
			return err
		}
	}
	return nil
}
