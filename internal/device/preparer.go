package device

import (
	"context"
	"fmt"
	"strings"

	"iaa/internal/config"
	"iaa/internal/task/scheduler"
	logx "iaa/pkg/logx"
)

// DefaultSerials maps an emulator kind to its usual adb endpoint.
var DefaultSerials = map[string]string{
	config.EmulatorMuMu: "127.0.0.1:16384",
}

// Preparer links a run to the emulator. It is the scheduler's
// ExecutionContext preparer for real devices.
type Preparer struct {
	// Root resolves relative asset paths.
	Root string
	// Config returns the profile to prepare with; read once per run.
	Config func() *config.Config
	Runner Runner
	Log    logx.Logger
}

var _ scheduler.Preparer = (*Preparer)(nil)

func (p *Preparer) Prepare(ctx context.Context) (scheduler.Session, error) {
	log := p.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "device"))

	cfg := p.Config()
	if cfg == nil {
		return nil, fmt.Errorf("%w: no configuration loaded", ErrNoDevice)
	}
	serial, err := ResolveSerial(cfg.Game)
	if err != nil {
		return nil, err
	}
	if cfg.Game.ControlImpl != "" && cfg.Game.ControlImpl != config.ControlADB {
		log.Warn("control implementation not available, using adb", logx.String("control_impl", cfg.Game.ControlImpl))
	}

	adb := &ADB{Path: cfg.Game.ADBPath, Serial: serial, Runner: p.Runner}
	if err := adb.Connect(ctx); err != nil {
		return nil, err
	}
	state, err := adb.State(ctx)
	if err != nil {
		return nil, err
	}
	if state != "device" {
		return nil, fmt.Errorf("%w: %s is %q", ErrNoDevice, serial, state)
	}

	rec, err := LoadProbes(config.Resolve(p.Root, cfg.Assets.Probes))
	if err != nil {
		return nil, err
	}
	log.Info("device ready", logx.String("serial", serial), logx.Int("probes", len(rec.Names())))
	return &Session{Device: adb, Recognizer: rec, Config: cfg, Log: log}, nil
}

// ResolveSerial picks the adb serial: the explicit override, else the
// emulator's default.
func ResolveSerial(g config.GameConfig) (string, error) {
	if s := strings.TrimSpace(g.ADBSerial); s != "" {
		return s, nil
	}
	if s, ok := DefaultSerials[g.Emulator]; ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: no serial for emulator %q", ErrNoDevice, g.Emulator)
}
