package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "iaa/pkg/logx"
)

// CronParser accepts standard 5-field specs and descriptors (@daily, @every 1h).
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Location resolves scheduler.timezone ("" or "Local" is the host zone).
func (s SchedulerConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(s.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

func oneOf(path, v string, allowed ...string) error {
	if slices.Contains(allowed, v) {
		return nil
	}
	return fmt.Errorf("%s: %q is not one of %s", path, v, strings.Join(allowed, ", "))
}

// Validate checks enums, durations and the trigger schedule. All problems are
// reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(oneOf("game.server", cfg.Game.Server, ServerJP))
	add(oneOf("game.link_account", cfg.Game.LinkAccount, LinkAccountNo, LinkAccountGooglePlay))
	add(oneOf("game.emulator", cfg.Game.Emulator, EmulatorMuMu))
	add(oneOf("game.control_impl", cfg.Game.ControlImpl, ControlNemuIPC, ControlADB))

	add(oneOf("live.mode", cfg.Live.Mode, LiveModeAuto))
	add(oneOf("live.count_mode", cfg.Live.CountMode, CountOnce, CountAll, CountSpecify))
	if cfg.Live.CountMode == CountSpecify && (cfg.Live.Count == nil || *cfg.Live.Count <= 0) {
		add(errors.New("live.count: must be > 0 when count_mode is specify"))
	}
	for i, c := range cfg.ChallengeLive.Characters {
		if !slices.Contains(Characters, c) {
			add(fmt.Errorf("challenge_live.characters[%d]: unknown character %q", i, c))
		}
	}

	if spec := strings.TrimSpace(cfg.Scheduler.Cron); spec != "" {
		if _, err := CronParser.Parse(spec); err != nil {
			add(fmt.Errorf("scheduler.cron: %w", err))
		}
	}
	if _, err := cfg.Scheduler.Location(); err != nil {
		add(fmt.Errorf("scheduler.timezone: %w", err))
	}

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		add(fmt.Errorf("logging.level: unknown level %q", lvl))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "none":
	case "file", "sqlite":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add(errors.New("storage.path: required"))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	_, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	add(err)

	if cfg.Notifier.RatePerSec < 0 || cfg.Notifier.Burst < 0 {
		add(errors.New("notifier: rate_per_sec and burst must be >= 0"))
	}

	if cfg.Telegram.Enabled {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			add(errors.New("telegram.token: required when telegram is enabled"))
		}
		if len(cfg.Telegram.OwnerUserIDs) == 0 {
			add(errors.New("telegram.owner_user_ids: at least one owner is required"))
		}
	}
	_, err = ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	add(err)

	return errors.Join(errs...)
}
