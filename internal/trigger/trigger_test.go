package trigger

import (
	"sync/atomic"
	"testing"
	"time"

	"iaa/internal/config"
	logx "iaa/pkg/logx"
)

type fakeStarter struct {
	alive  atomic.Bool
	starts atomic.Int32
}

func (f *fakeStarter) StartRegular(bool) { f.starts.Add(1) }
func (f *fakeStarter) Alive() bool       { return f.alive.Load() }

func TestApplyValidates(t *testing.T) {
	t.Parallel()
	tr := New(&fakeStarter{}, logx.Nop())
	if err := tr.Apply(config.SchedulerConfig{Cron: "not a spec"}); err == nil {
		t.Fatal("bad spec accepted")
	}
	if err := tr.Apply(config.SchedulerConfig{Cron: "@daily", Timezone: "Nowhere/Land"}); err == nil {
		t.Fatal("bad timezone accepted")
	}
	if err := tr.Apply(config.SchedulerConfig{Cron: "0 5 * * *", Timezone: "Asia/Tokyo"}); err != nil {
		t.Fatalf("Apply() = %v", err)
	}
}

func TestNextReflectsSchedule(t *testing.T) {
	t.Parallel()
	tr := New(&fakeStarter{}, logx.Nop())
	if !tr.Next().IsZero() {
		t.Fatal("Next before Start should be zero")
	}
	_ = tr.Apply(config.SchedulerConfig{Cron: "@hourly"})
	tr.Start()
	defer tr.Stop()

	next := tr.Next()
	if next.IsZero() || next.Sub(time.Now()) > time.Hour {
		t.Fatalf("Next = %v", next)
	}

	_ = tr.Apply(config.SchedulerConfig{})
	if !tr.Next().IsZero() {
		t.Fatal("Next should be zero after disabling")
	}
}

func TestFireSkipsWhileAlive(t *testing.T) {
	t.Parallel()
	st := &fakeStarter{}
	tr := New(st, logx.Nop())

	tr.fire()
	st.alive.Store(true)
	tr.fire()

	if n := st.starts.Load(); n != 1 {
		t.Fatalf("StartRegular calls = %d, want 1", n)
	}
	if fired, skipped := tr.Counts(); fired != 1 || skipped != 1 {
		t.Fatalf("Counts = %d, %d", fired, skipped)
	}
}

func TestEveryDescriptorFires(t *testing.T) {
	t.Parallel()
	st := &fakeStarter{}
	tr := New(st, logx.Nop())
	// robfig/cron rounds @every to whole seconds.
	if err := tr.Apply(config.SchedulerConfig{Cron: "@every 1s"}); err != nil {
		t.Fatal(err)
	}
	tr.Start()
	defer tr.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for st.starts.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("trigger never fired")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
