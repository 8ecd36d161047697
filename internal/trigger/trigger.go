// Package trigger starts unattended regular runs on a cron schedule.
package trigger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"iaa/internal/config"
	logx "iaa/pkg/logx"
)

// Starter is the part of the scheduler the trigger drives.
type Starter interface {
	StartRegular(runInThread bool)
	Alive() bool
}

type Trigger struct {
	mu      sync.Mutex
	log     logx.Logger
	starter Starter

	spec string
	loc  *time.Location

	c       *cron.Cron
	entry   cron.EntryID
	running bool

	fired   int
	skipped int
}

func New(starter Starter, log logx.Logger) *Trigger {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Trigger{
		starter: starter,
		log:     log.With(logx.String("comp", "trigger")),
		loc:     time.Local,
	}
}

// Apply replaces the schedule. An empty spec disables the trigger. The cron
// is rebuilt only when the spec or the timezone changed.
func (t *Trigger) Apply(sc config.SchedulerConfig) error {
	spec := strings.TrimSpace(sc.Cron)
	if spec != "" {
		if _, err := config.CronParser.Parse(spec); err != nil {
			return fmt.Errorf("cron %q: %w", spec, err)
		}
	}
	loc, err := sc.Location()
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if spec == t.spec && loc.String() == t.loc.String() {
		return nil
	}
	t.spec, t.loc = spec, loc
	if t.running {
		t.restartLocked()
	}
	return nil
}

// Start begins firing. Idempotent.
func (t *Trigger) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.restartLocked()
}

func (t *Trigger) Stop() {
	t.mu.Lock()
	c := t.c
	t.c = nil
	t.running = false
	t.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Run starts the trigger and blocks until ctx is done.
func (t *Trigger) Run(ctx context.Context) error {
	t.Start()
	<-ctx.Done()
	t.Stop()
	return ctx.Err()
}

func (t *Trigger) restartLocked() {
	if t.c != nil {
		// Stop without waiting: a firing job may be blocked on t.mu.
		t.c.Stop()
		t.c = nil
	}
	if t.spec == "" {
		t.log.Info("cron trigger disabled")
		return
	}
	c := cron.New(cron.WithParser(config.CronParser), cron.WithLocation(t.loc))
	id, err := c.AddFunc(t.spec, t.fire)
	if err != nil {
		t.log.Warn("cron trigger rejected", logx.String("spec", t.spec), logx.Err(err))
		return
	}
	c.Start()
	t.c, t.entry = c, id
	t.log.Info("cron trigger armed",
		logx.String("spec", t.spec),
		logx.String("tz", t.loc.String()),
		logx.Time("next", c.Entry(id).Next),
	)
}

func (t *Trigger) fire() {
	if t.starter.Alive() {
		t.mu.Lock()
		t.skipped++
		t.mu.Unlock()
		t.log.Warn("cron fired while a run is active, skip")
		return
	}
	t.mu.Lock()
	t.fired++
	t.mu.Unlock()
	t.log.Info("cron fired, starting regular run")
	t.starter.StartRegular(true)
}

// Next returns the next fire time (zero when disabled or stopped).
func (t *Trigger) Next() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c == nil {
		return time.Time{}
	}
	return t.c.Entry(t.entry).Next
}

// Counts returns how often the trigger fired and how often it was skipped.
func (t *Trigger) Counts() (fired, skipped int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired, t.skipped
}
