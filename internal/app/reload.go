package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"iaa/internal/config"
	logx "iaa/pkg/logx"
)

// restartOnly are sections whose changes are committed but only take effect
// on the next start.
var restartOnly = []string{"storage", "telegram"}

// reloadLoop applies hot-reloaded profiles to the running services. A run in
// progress keeps the profile it started with.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			if newCfg == nil {
				continue
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range restartOnly {
		if slices.Contains(sections, s) {
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		}
	}

	if slices.Contains(sections, "logging") {
		a.logs.Apply(a.logConfig(newCfg))
	}

	if slices.Contains(sections, "scheduler") {
		if err := a.trig.Apply(newCfg.Scheduler); err != nil {
			a.log.Warn("invalid schedule; keeping previous", logx.Err(err))
		}
	}

	if slices.Contains(sections, "notifier") {
		ncfg, err := mapNotifierConfig(newCfg)
		if err != nil {
			a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
		} else {
			prev := oldCfg != nil && oldCfg.Notifier.Enabled
			a.notif.Apply(ncfg)
			switch {
			case prev && !ncfg.Enabled:
				a.log.Info("notifier disabled via config")
				stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				a.notif.Stop(stopCtx)
				cancel()
			case !prev && ncfg.Enabled:
				a.log.Info("notifier enabled via config")
				a.notif.Start(context.WithoutCancel(ctx))
			}
		}
	}

	a.log.Info("config reloaded", fields...)
}
