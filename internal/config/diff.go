package config

import (
	"reflect"
	"sort"
	"strings"

	logx "iaa/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging. Secrets (the telegram token) are never
// included, only whether one is set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Game != newCfg.Game {
		changed = append(changed, "game")
		attrs = append(attrs,
			logx.String("game.link_account", newCfg.Game.LinkAccount),
			logx.String("game.control_impl", newCfg.Game.ControlImpl),
			logx.Bool("game.adb_serial_set", newCfg.Game.ADBSerial != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Live, newCfg.Live) || !reflect.DeepEqual(oldCfg.ChallengeLive, newCfg.ChallengeLive) {
		changed = append(changed, "live")
		attrs = append(attrs,
			logx.String("live.count_mode", newCfg.Live.CountMode),
			logx.Int("live.song_id", newCfg.Live.SongID),
			logx.Int("challenge_live.characters", len(newCfg.ChallengeLive.Characters)),
		)
	}

	// Enablement changes never affect a run already in progress.
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Strings("scheduler.enabled", enabledIDs(newCfg.Scheduler)),
			logx.String("scheduler.cron", strings.TrimSpace(newCfg.Scheduler.Cron)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newCfg.Notifier.Enabled),
			logx.Any("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
			logx.Int("notifier.burst", newCfg.Notifier.Burst),
		)
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Enabled != nt.Enabled || ot.Token != nt.Token || ot.ChatID != nt.ChatID ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.enabled", nt.Enabled),
			logx.Bool("telegram.token_set", strings.TrimSpace(nt.Token) != ""),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
		)
	}

	if oldCfg.Assets != newCfg.Assets {
		changed = append(changed, "assets")
		attrs = append(attrs, logx.String("assets.probes", newCfg.Assets.Probes))
	}

	sort.Strings(changed)
	return changed, attrs
}

func enabledIDs(s SchedulerConfig) []string {
	out := make([]string, 0, 4)
	for _, id := range []string{"start_game", "cm", "solo_live", "challenge_live"} {
		if s.IsEnabled(id) {
			out = append(out, id)
		}
	}
	return out
}
