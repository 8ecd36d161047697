package config

import (
	"strings"

	logx "iaa/pkg/logx"
)

// Config is one profile, stored as conf/<name>.json (or .yaml/.yml).
type Config struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	Game          GameConfig          `json:"game"`
	Live          LiveConfig          `json:"live"`
	ChallengeLive ChallengeLiveConfig `json:"challenge_live"`
	Scheduler     SchedulerConfig     `json:"scheduler"`

	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Notifier NotifierConfig `json:"notifier"`
	Telegram TelegramConfig `json:"telegram"`
	Assets   AssetsConfig   `json:"assets"`
}

const (
	ServerJP = "jp"

	LinkAccountNo         = "no"
	LinkAccountGooglePlay = "google_play"

	EmulatorMuMu = "mumu"

	ControlNemuIPC = "nemu_ipc"
	ControlADB     = "adb"

	LiveModeAuto = "auto"

	CountOnce    = "once"
	CountAll     = "all"
	CountSpecify = "specify"
)

type GameConfig struct {
	Server      string `json:"server"`
	LinkAccount string `json:"link_account"`
	Emulator    string `json:"emulator"`
	ControlImpl string `json:"control_impl"`

	// ADBSerial overrides the emulator's default serial (e.g. "127.0.0.1:16384").
	ADBSerial string `json:"adb_serial,omitempty"`
	// ADBPath is the adb binary; "adb" resolves through PATH.
	ADBPath string `json:"adb_path,omitempty"`
}

// LiveConfig controls how many lives a live task plays.
//
//   - count_mode "once": a single live
//   - count_mode "all": until the live bonus is depleted
//   - count_mode "specify": exactly Count lives
type LiveConfig struct {
	Enabled      bool   `json:"enabled"`
	Mode         string `json:"mode"`
	SongID       int    `json:"song_id"`
	CountMode    string `json:"count_mode"`
	Count        *int   `json:"count"`
	FullyDeplete bool   `json:"fully_deplete"`
}

type ChallengeLiveConfig struct {
	Characters []string `json:"characters"`
}

// SchedulerConfig gates the regular tasks and holds the unattended trigger.
type SchedulerConfig struct {
	StartGameEnabled     bool `json:"start_game_enabled"`
	SoloLiveEnabled      bool `json:"solo_live_enabled"`
	ChallengeLiveEnabled bool `json:"challenge_live_enabled"`
	CMEnabled            bool `json:"cm_enabled"`

	// Cron triggers a regular run in `iaa serve` ("" disables). Standard
	// 5-field spec or a descriptor such as "@daily".
	Cron     string `json:"cron,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// IsEnabled reports whether the regular task id is switched on. Unknown ids
// are never enabled.
func (s SchedulerConfig) IsEnabled(id string) bool {
	switch id {
	case "start_game":
		return s.StartGameEnabled
	case "cm":
		return s.CMEnabled
	case "solo_live":
		return s.SoloLiveEnabled
	case "challenge_live":
		return s.ChallengeLiveEnabled
	default:
		return false
	}
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

// LoggingFile selects the file sink. With Path empty, a per-session file is
// created under Dir (default "logs").
type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
	Dir     string `json:"dir,omitempty"`
}

// StorageConfig controls run history persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/iaa.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // "", "none", "file", "sqlite"
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type NotifierConfig struct {
	Enabled    bool    `json:"enabled"`
	RatePerSec float64 `json:"rate_per_sec"`
	Burst      int     `json:"burst"`
}

type TelegramConfig struct {
	Enabled      bool    `json:"enabled"`
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// ChatID receives notifications. 0 sends to every owner.
	ChatID int64 `json:"chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type AssetsConfig struct {
	// Probes is the YAML file with screen probes, relative to the app root.
	Probes string `json:"probes"`
}

// Default returns the profile written by Create.
func Default(name string) *Config {
	return &Config{
		Name:        name,
		Description: "Configuration for " + name,
		Game: GameConfig{
			Server:      ServerJP,
			LinkAccount: LinkAccountNo,
			Emulator:    EmulatorMuMu,
			ControlImpl: ControlNemuIPC,
			ADBPath:     "adb",
		},
		Live: LiveConfig{
			Mode:      LiveModeAuto,
			SongID:    -1,
			CountMode: CountAll,
		},
		ChallengeLive: ChallengeLiveConfig{Characters: []string{}},
		Scheduler: SchedulerConfig{
			StartGameEnabled:     true,
			SoloLiveEnabled:      true,
			ChallengeLiveEnabled: true,
			CMEnabled:            true,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    LoggingFile{Enabled: true, Dir: "logs"},
		},
		Storage:  StorageConfig{Driver: "file", Path: "data/history"},
		Notifier: NotifierConfig{Enabled: true, RatePerSec: 1, Burst: 3},
		Telegram: TelegramConfig{PollTimeout: "10s"},
		Assets:   AssetsConfig{Probes: "assets/probes.yaml"},
	}
}

// LogConfig maps the logging section onto logx, resolving relative file
// locations against root.
func (c *Config) LogConfig(root string) logx.Config {
	lc := logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    strings.TrimSpace(c.Logging.File.Path),
			Dir:     strings.TrimSpace(c.Logging.File.Dir),
		},
	}
	if lc.File.Dir == "" {
		lc.File.Dir = "logs"
	}
	lc.File.Path = Resolve(root, lc.File.Path)
	lc.File.Dir = Resolve(root, lc.File.Dir)
	return lc
}

// Characters lists the accepted challenge_live.characters values.
var Characters = []string{
	"miku", "rin", "len", "luka", "meiko", "kaito",
	"ichika", "saki", "honami", "shiho",
	"minori", "haruka", "airi", "shizuku",
	"kohane", "an", "akito", "toya",
	"tsukasa", "emu", "nene", "rui",
	"kanade", "mafuyu", "ena", "mizuki",
}
