package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSchedulerIsEnabled(t *testing.T) {
	t.Parallel()
	s := SchedulerConfig{StartGameEnabled: true, CMEnabled: false, SoloLiveEnabled: true, ChallengeLiveEnabled: false}
	tests := []struct {
		id   string
		want bool
	}{
		{"start_game", true},
		{"cm", false},
		{"solo_live", true},
		{"challenge_live", false},
		{"ten_songs", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := s.IsEnabled(tt.id); got != tt.want {
			t.Fatalf("IsEnabled(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestDecodeKeepsDefaultsForOmittedFields(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("conf/main.json", []byte(`{"scheduler":{"cm_enabled":false},"live":{"count_mode":"once"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "main" {
		t.Fatalf("Name = %q, want main", cfg.Name)
	}
	if !cfg.Scheduler.StartGameEnabled || cfg.Scheduler.CMEnabled {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Live.CountMode != CountOnce || cfg.Live.SongID != -1 {
		t.Fatalf("live = %+v", cfg.Live)
	}
	if cfg.Game.ControlImpl != ControlNemuIPC {
		t.Fatalf("control_impl = %q", cfg.Game.ControlImpl)
	}
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"unknown field": `{"scheduler":{"bogus":true}}`,
		"trailing data": `{} {}`,
		"bad type":      `{"live":{"song_id":"x"}}`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode("p.json", []byte(in)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	in := `
game:
  link_account: google_play
challenge_live:
  characters: [miku, an]
scheduler:
  solo_live_enabled: false
  cron: "0 5 * * *"
`
	cfg, err := Decode("p.yaml", []byte(in))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Game.LinkAccount != LinkAccountGooglePlay {
		t.Fatalf("link_account = %q", cfg.Game.LinkAccount)
	}
	if len(cfg.ChallengeLive.Characters) != 2 || cfg.ChallengeLive.Characters[1] != "an" {
		t.Fatalf("characters = %v", cfg.ChallengeLive.Characters)
	}
	if cfg.Scheduler.SoloLiveEnabled || cfg.Scheduler.Cron != "0 5 * * *" {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	if err := Validate(Default("x")); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"emulator", func(c *Config) { c.Game.Emulator = "bluestacks" }, "game.emulator"},
		{"count specify", func(c *Config) { c.Live.CountMode = CountSpecify }, "live.count"},
		{"character", func(c *Config) { c.ChallengeLive.Characters = []string{"nobody"} }, "challenge_live.characters[0]"},
		{"cron", func(c *Config) { c.Scheduler.Cron = "every day" }, "scheduler.cron"},
		{"timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, "scheduler.timezone"},
		{"storage", func(c *Config) { c.Storage.Driver = "redis" }, "storage.driver"},
		{"telegram", func(c *Config) { c.Telegram.Enabled = true }, "telegram.token"},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default("x")
			tt.mutate(c)
			err := Validate(c)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestProfilesCRUD(t *testing.T) {
	t.Parallel()
	p := Profiles{Dir: filepath.Join(t.TempDir(), "conf")}

	names, err := p.List()
	if err != nil || len(names) != 0 {
		t.Fatalf("List on missing dir = %v, %v", names, err)
	}

	if err := p.Create("b", false); err != nil {
		t.Fatal(err)
	}
	if err := p.Create("a", false); err != nil {
		t.Fatal(err)
	}
	if err := p.Create("a", false); !errors.Is(err, ErrProfileExists) {
		t.Fatalf("second Create err = %v", err)
	}
	if err := p.Create("a", true); err != nil {
		t.Fatalf("Create existOK err = %v", err)
	}
	if err := p.Create("../x", false); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("bad name err = %v", err)
	}

	names, _ = p.List()
	if strings.Join(names, ",") != "a,b" {
		t.Fatalf("List = %v", names)
	}

	cfg, err := p.Read("a", false)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "a" || cfg.Description != "Configuration for a" {
		t.Fatalf("read = %+v", cfg)
	}
	cfg.Scheduler.CMEnabled = false
	if err := p.Write("a", cfg); err != nil {
		t.Fatal(err)
	}
	again, _ := p.Read("a", false)
	if again.Scheduler.CMEnabled {
		t.Fatal("Write did not persist cm_enabled=false")
	}

	if _, err := p.Read("missing", false); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("Read missing err = %v", err)
	}
	if _, err := p.Read("created", true); err != nil {
		t.Fatalf("Read create err = %v", err)
	}

	if err := p.Remove("b", false); err != nil {
		t.Fatal(err)
	}
	if err := p.Remove("b", false); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("Remove missing err = %v", err)
	}
	if err := p.Remove("b", true); err != nil {
		t.Fatalf("Remove missingOK err = %v", err)
	}
}

func TestProfilesYAMLRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "y.yaml")
	if err := os.WriteFile(path, []byte("description: yaml profile\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := Profiles{Dir: dir}
	cfg, err := p.Read("y", false)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Live.SongID = 42
	if err := p.Write("y", cfg); err != nil {
		t.Fatal(err)
	}
	if p.Path("y") != path {
		t.Fatalf("Path = %q, want %q", p.Path("y"), path)
	}
	got, err := p.Read("y", false)
	if err != nil {
		t.Fatal(err)
	}
	if got.Live.SongID != 42 || got.Description != "yaml profile" {
		t.Fatalf("round trip = %+v", got)
	}
}

func TestManagerLoadSaveAndWatch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := Profiles{Dir: dir}
	if err := p.Create("w", false); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(p.Path("w"))
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	if !m.Get().Scheduler.CMEnabled {
		t.Fatal("default cm_enabled should be true")
	}

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	edited := *m.Get()
	edited.Scheduler.CMEnabled = false
	b, err := Encode(m.Path(), &edited)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(m.Path(), b, 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-ch:
		if cfg.Scheduler.CMEnabled {
			t.Fatal("reloaded config still has cm_enabled=true")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload published")
	}
	if m.Get().Scheduler.CMEnabled {
		t.Fatal("Get() not updated after reload")
	}

	bad := *m.Get()
	bad.Game.Server = "cn"
	if err := m.Save(&bad); err == nil {
		t.Fatal("Save accepted invalid config")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	a := Default("a")
	b := Default("a")
	b.Scheduler.CMEnabled = false
	b.Telegram.Token = "secret"

	changed, attrs := SummarizeConfigChange(a, b)
	if strings.Join(changed, ",") != "scheduler,telegram" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}

	changed, _ = SummarizeConfigChange(a, Default("a"))
	if len(changed) != 0 {
		t.Fatalf("identical configs reported %v", changed)
	}
}

func TestLogConfigResolvesRoot(t *testing.T) {
	t.Parallel()
	c := Default("x")
	lc := c.LogConfig("/opt/iaa")
	if lc.File.Dir != filepath.Join("/opt/iaa", "logs") || !lc.File.Enabled {
		t.Fatalf("LogConfig = %+v", lc)
	}
}
