package app

import (
	"iaa/internal/config"
	"iaa/internal/task/scheduler"
)

// profileEnablement answers from the committed profile, which hot reload
// may replace at any time.
type profileEnablement struct {
	cfgm *config.ConfigManager
}

func (e profileEnablement) IsEnabled(id string) bool {
	cfg := e.cfgm.Get()
	return cfg != nil && cfg.Scheduler.IsEnabled(id)
}

// Snapshot freezes the switches for one run.
func (e profileEnablement) Snapshot() scheduler.Enablement {
	cfg := e.cfgm.Get()
	if cfg == nil {
		return config.SchedulerConfig{}
	}
	return cfg.Scheduler
}

var _ scheduler.EnablementSnapshotter = profileEnablement{}
