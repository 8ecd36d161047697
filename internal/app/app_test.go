package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"iaa/internal/config"
	"iaa/internal/device"
	"iaa/internal/notifier"
	"iaa/internal/storage"
	"iaa/internal/task/scheduler"
)

type memSink struct {
	mu  sync.Mutex
	got []notifier.Notification
}

func (*memSink) Name() string { return "mem" }

func (m *memSink) Send(_ context.Context, n notifier.Notification) error {
	m.mu.Lock()
	m.got = append(m.got, n)
	m.mu.Unlock()
	return nil
}

func (m *memSink) titles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.got))
	for i, n := range m.got {
		out[i] = n.Title
	}
	return out
}

// writeProfile creates root/conf/default.json with quiet logging and fast
// notifications, then lets edit adjust it.
func writeProfile(t *testing.T, root string, edit func(*config.Config)) config.Profiles {
	t.Helper()
	p := config.Profiles{Dir: filepath.Join(root, "conf")}
	cfg := config.Default(config.DefaultProfile)
	cfg.Logging.Console = false
	cfg.Logging.File.Enabled = false
	cfg.Notifier = config.NotifierConfig{Enabled: true, RatePerSec: 1000, Burst: 100}
	if edit != nil {
		edit(cfg)
	}
	if err := p.Write(config.DefaultProfile, cfg); err != nil {
		t.Fatal(err)
	}
	return p
}

func noDevice(context.Context) (scheduler.Session, error) {
	return nil, device.ErrNoDevice
}

// bareSession prepares successfully but gives task bodies no device.
func bareSession(context.Context) (scheduler.Session, error) {
	return struct{}{}, nil
}

func TestNewCreatesProfileAndRegistersTasks(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	a, err := New(Options{Root: root, CreateProfile: true, LogLevel: "error", Preparer: scheduler.PreparerFunc(noDevice)})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Stop(context.Background())

	if _, err := os.Stat(filepath.Join(root, "conf", "default.json")); err != nil {
		t.Fatalf("profile not created: %v", err)
	}
	var ids []string
	for _, task := range a.Registry().Regular() {
		ids = append(ids, string(task.ID))
	}
	if got := strings.Join(ids, ","); got != "start_game,cm,solo_live,challenge_live" {
		t.Fatalf("regular = %s", got)
	}
	if _, ok := a.Registry().Manual("ten_songs"); !ok {
		t.Fatal("ten_songs not registered")
	}
	if !a.Enablement().IsEnabled("cm") || a.Enablement().IsEnabled("ten_songs") {
		t.Fatal("enablement does not follow the default profile")
	}
	if a.Store() == nil {
		t.Fatal("default profile should enable file storage")
	}
}

func TestNewMissingProfile(t *testing.T) {
	t.Parallel()
	_, err := New(Options{Root: t.TempDir(), Profile: "nope"})
	if !errors.Is(err, config.ErrProfileNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewRejectsBadStorage(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeProfile(t, root, func(c *config.Config) {
		c.Storage = config.StorageConfig{Driver: "sqlite"}
	})
	if _, err := New(Options{Root: root}); err == nil || !strings.Contains(err.Error(), "storage.path") {
		t.Fatalf("err = %v", err)
	}
}

func TestRegularRunIsRecordedAndSummarized(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeProfile(t, root, func(c *config.Config) {
		c.Scheduler.SoloLiveEnabled = false
		c.Scheduler.ChallengeLiveEnabled = false
	})
	a, err := New(Options{Root: root, LogLevel: "error", Preparer: scheduler.PreparerFunc(bareSession)})
	if err != nil {
		t.Fatal(err)
	}
	sink := &memSink{}
	a.notif.AddSink(sink)
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	a.Scheduler().StartRegular(false)
	snap := a.Scheduler().Snapshot()
	if len(snap.History) != 1 {
		t.Fatalf("history = %d", len(snap.History))
	}
	rec := snap.History[0]
	if len(rec.Tasks) != 2 || rec.Failed() != 2 {
		t.Fatalf("record = %+v", rec)
	}
	if err := a.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	titles := strings.Join(sink.titles(), "|")
	if !strings.Contains(titles, "Task failed") || !strings.Contains(titles, "Run finished") {
		t.Fatalf("notifications = %s", titles)
	}

	sc, _, err := mapStorageConfig(root, a.Config())
	if err != nil {
		t.Fatal(err)
	}
	st, err := storage.Open(sc, a.Log())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	runs, err := st.RecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != rec.ID {
		t.Fatalf("stored runs = %+v", runs)
	}
}

func TestPrepareFailureIsRecorded(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeProfile(t, root, nil)
	a, err := New(Options{Root: root, LogLevel: "error", Preparer: scheduler.PreparerFunc(noDevice)})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := a.Scheduler().RunManual("ten_songs", false); err != nil {
		t.Fatal(err)
	}
	if err := a.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	sc, _, _ := mapStorageConfig(root, a.Config())
	st, err := storage.Open(sc, a.Log())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	runs, err := st.RecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Outcome != scheduler.OutcomePrepareFailed {
		t.Fatalf("stored runs = %+v", runs)
	}
}

func TestEnablementSnapshotFollowsReload(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeProfile(t, root, nil)
	a, err := New(Options{Root: root, LogLevel: "error", Preparer: scheduler.PreparerFunc(noDevice)})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Stop(context.Background())

	before := a.en.Snapshot()
	next := *a.Config()
	next.Scheduler.CMEnabled = false
	a.cfgm.Commit(&next)

	if !before.IsEnabled("cm") {
		t.Fatal("snapshot changed after commit")
	}
	if a.Enablement().IsEnabled("cm") {
		t.Fatal("live enablement did not follow commit")
	}
}

func TestServeAppliesHotReload(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	profiles := writeProfile(t, root, func(c *config.Config) { c.Storage.Driver = "none" })
	a, err := New(Options{Root: root, LogLevel: "error", Preparer: scheduler.PreparerFunc(noDevice)})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- a.Serve(ctx) }()

	// Give the watcher a moment to register before the write.
	time.Sleep(300 * time.Millisecond)
	if !a.trig.Next().IsZero() {
		t.Fatal("trigger armed without a schedule")
	}
	next := config.Default(config.DefaultProfile)
	next.Logging.Console = false
	next.Logging.File.Enabled = false
	next.Storage.Driver = "none"
	next.Scheduler.Cron = "@every 1h"
	if err := profiles.Write(config.DefaultProfile, next); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "cron armed", func() bool { return !a.trig.Next().IsZero() })
	if a.Config().Scheduler.Cron != "@every 1h" {
		t.Fatalf("committed cron = %q", a.Config().Scheduler.Cron)
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("Serve = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestServeRejectsInvalidReload(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeProfile(t, root, func(c *config.Config) { c.Storage.Driver = "none" })
	a, err := New(Options{Root: root, LogLevel: "error"})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Stop(context.Background())

	bad := *a.Config()
	bad.Storage = config.StorageConfig{Driver: "sqlite"}
	if err := a.validate(context.Background(), &bad); err == nil {
		t.Fatal("sqlite without path accepted")
	}
	bad = *a.Config()
	bad.Telegram = config.TelegramConfig{Enabled: true, PollTimeout: "soon"}
	if err := a.validate(context.Background(), &bad); err == nil {
		t.Fatal("bad poll timeout accepted")
	}
	if err := a.validate(context.Background(), a.Config()); err != nil {
		t.Fatalf("current profile rejected: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
