// Package app wires the profile, the scheduler and its collaborators into a
// process: one-shot runs for the CLI and the long-running serve mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"iaa/internal/config"
	"iaa/internal/device"
	"iaa/internal/eventbus"
	"iaa/internal/notifier"
	rtsup "iaa/internal/runtime/supervisor"
	"iaa/internal/storage"
	"iaa/internal/task/registry"
	"iaa/internal/task/scheduler"
	"iaa/internal/tasks"
	"iaa/internal/transport/telegram"
	"iaa/internal/trigger"
	logx "iaa/pkg/logx"
)

type Options struct {
	// Root holds conf/, logs/, data/ and assets/. Default ".".
	Root string
	// Profile is the profile name under Root/conf. Default "default".
	Profile string
	// CreateProfile writes a default profile when it does not exist.
	CreateProfile bool
	// LogLevel overrides logging.level of the profile.
	LogLevel string

	// Preparer replaces the adb preparer.
	Preparer scheduler.Preparer
	// Timing replaces tasks.DefaultTiming.
	Timing *tasks.Timing
}

type App struct {
	root string
	opts Options

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	bus   eventbus.Bus
	store storage.Store

	reg   *registry.Registry
	sched *scheduler.Service
	notif *notifier.Service
	trig  *trigger.Trigger
	en    profileEnablement

	bot *telegram.Bot

	stopOnce sync.Once
}

func New(opts Options) (*App, error) {
	root := strings.TrimSpace(opts.Root)
	if root == "" {
		root = "."
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	name := strings.TrimSpace(opts.Profile)
	if name == "" {
		name = config.DefaultProfile
	}

	profiles := config.Profiles{Dir: filepath.Join(root, "conf")}
	if _, err := profiles.Read(name, opts.CreateProfile); err != nil {
		return nil, err
	}
	cfgm := config.NewConfigManager(profiles.Path(name))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	a := &App{root: root, opts: opts, cfgm: cfgm, bus: eventbus.New()}
	logSvc, log := logx.New(a.logConfig(cfg))
	a.logs = logSvc
	a.log = log.With(logx.String("comp", "app"))
	fail := func(err error) (*App, error) {
		a.close()
		return nil, err
	}

	sc, enabled, err := mapStorageConfig(root, cfg)
	if err != nil {
		return fail(err)
	}
	if enabled {
		st, err := storage.Open(sc, log)
		if err != nil {
			return fail(err)
		}
		a.store = st
		a.log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	timing := tasks.DefaultTiming()
	if opts.Timing != nil {
		timing = *opts.Timing
	}
	a.reg = registry.New()
	if err := tasks.New(timing, log).Register(a.reg); err != nil {
		return fail(err)
	}
	a.reg.Freeze()

	prep := opts.Preparer
	if prep == nil {
		prep = &device.Preparer{Root: root, Config: cfgm.Get, Log: log}
	}
	a.en = profileEnablement{cfgm: cfgm}
	a.sched = scheduler.New(scheduler.Config{}, scheduler.Deps{
		Registry:   a.reg,
		Enablement: a.en,
		Preparer:   prep,
		Log:        log.With(logx.String("comp", "scheduler")),
		Bus:        a.bus,
	})

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return fail(err)
	}
	a.notif = notifier.New(ncfg, log, a.store, notifier.LogSink{Log: log.With(logx.String("comp", "notify"))})
	a.sched.SetOnError(a.notif.ReportError)

	a.trig = trigger.New(a.sched, log)
	if err := a.trig.Apply(cfg.Scheduler); err != nil {
		return fail(err)
	}

	a.log.Info("profile loaded",
		logx.String("profile", cfg.Name),
		logx.String("path", cfgm.Path()),
		logx.String("log_file", logSvc.FilePath()),
	)
	return a, nil
}

func (a *App) Root() string                     { return a.root }
func (a *App) Log() logx.Logger                 { return a.log }
func (a *App) Config() *config.Config           { return a.cfgm.Get() }
func (a *App) Scheduler() *scheduler.Service    { return a.sched }
func (a *App) Registry() *registry.Registry     { return a.reg }
func (a *App) Enablement() scheduler.Enablement { return a.en }

// Store returns the run history store, or nil when storage is disabled.
func (a *App) Store() storage.Store { return a.store }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start launches the services every mode needs: notification delivery and
// run recording. Runs started before Start are neither recorded nor
// summarized.
func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validate)

	// Delivery outlives the supervisor; Stop drains the queue.
	a.notif.Start(context.WithoutCancel(a.sup.Context()))
	runs, unsubRuns := a.bus.Subscribe(32)
	a.sup.Go("notifier.runs", func(c context.Context) error {
		defer unsubRuns()
		return a.notif.WatchRuns(c, runs)
	})

	if a.store != nil {
		recs, unsubRecs := a.bus.Subscribe(32)
		a.sup.Go("storage.recorder", func(c context.Context) error {
			defer unsubRecs()
			return recordRuns(c, recs, a.store, a.log.With(logx.String("comp", "recorder")))
		})
	}

	events, unsubEvents := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsubEvents()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	a.log.Info("app started")
	return nil
}

// Serve runs the unattended mode until ctx is done: cron trigger, config hot
// reload and, when configured, the Telegram bot. It stops the app before
// returning.
func (a *App) Serve(ctx context.Context) error {
	if cfg := a.cfgm.Get(); cfg.Telegram.Enabled {
		tc, err := telegram.FromConfig(cfg.Telegram)
		if err != nil {
			return err
		}
		cmds := &telegram.Commands{
			Ctl:        a.sched,
			Enablement: a.en,
			Owners:     tc.Owners,
			Store:      a.store,
			Log:        a.log.With(logx.String("comp", "commands")),
			Next:       a.trig.Next,
		}
		bot, err := telegram.New(tc, cmds, a.log)
		if err != nil {
			return err
		}
		a.bot = bot
		a.notif.AddSink(bot)
	}

	if err := a.Start(ctx); err != nil {
		return err
	}
	if a.bot != nil {
		a.sup.GoRestart("telegram.poller", a.bot.Run, rtsup.WithRestartBackoff(time.Second, time.Minute))
	}
	a.trig.Start()
	a.sup.Go("trigger", a.trig.Run)
	a.sup.Go("config.watch", a.cfgm.Watch)
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd notified ready")
	}
	if spec := strings.TrimSpace(a.cfgm.Get().Scheduler.Cron); spec != "" {
		a.log.Info("serving", logx.String("cron", spec))
	} else {
		a.log.Info("serving without schedule")
	}

	<-a.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	stopErr := a.Stop(stopCtx)
	if err := a.Err(); err != nil {
		return err
	}
	return stopErr
}

// Stop interrupts an active run, waits for it, then shuts the services down
// in reverse order. It is safe to call more than once.
func (a *App) Stop(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() { err = a.stop(ctx) })
	return err
}

func (a *App) stop(ctx context.Context) error {
	a.log.Info("stopping")

	a.step(ctx, "trigger", time.Second, func(context.Context) error { a.trig.Stop(); return nil })
	a.step(ctx, "scheduler", 10*time.Second, func(c context.Context) error {
		if !a.sched.Alive() {
			return nil
		}
		a.sched.Stop(false)
		return a.sched.Wait(c)
	})
	if a.sup != nil {
		a.sup.Cancel()
		a.step(ctx, "supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	}
	a.step(ctx, "notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })

	a.log.Info("stopped")
	a.close()
	return nil
}

// close releases storage and the log file.
func (a *App) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

// step runs one shutdown step with an upper bound so a stuck component
// cannot stall the whole stop.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		max = min(max, time.Until(dl))
	}
	if max <= 0 {
		a.log.Warn("stop step skipped, deadline reached", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}

func (a *App) logConfig(cfg *config.Config) logx.Config {
	lc := cfg.LogConfig(a.root)
	if lvl := strings.TrimSpace(a.opts.LogLevel); lvl != "" {
		lc.Level = lvl
	}
	return lc
}
