package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"iaa/internal/eventbus"
	"iaa/internal/task/interrupt"
	"iaa/internal/task/registry"
	logx "iaa/pkg/logx"
)

type Service struct {
	cfg     Config
	log     logx.Logger
	bus     eventbus.Bus
	reg     *registry.Registry
	enabled Enablement
	prep    Preparer

	// mu serializes worker launch/teardown against Stop. done is non-nil while
	// a worker is alive and is closed when it exits.
	mu    sync.Mutex
	done  chan struct{}
	tag   string
	runID string

	// Written by the worker (stopRequested also by Stop); read from anywhere.
	starting      atomic.Bool
	running       atomic.Bool
	stopping      atomic.Bool
	stopRequested atomic.Bool
	current       atomic.Pointer[CurrentTask]
	// worker is the goroutine id executing the run, 0 when idle.
	worker        atomic.Uint64

	signal  *interrupt.Signal
	onError atomic.Pointer[func(error)]

	hmu     sync.Mutex
	history []RunRecord
}

func New(cfg Config, deps Deps) *Service {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	reg := deps.Registry
	if reg == nil {
		reg = registry.New()
	}
	return &Service{
		cfg:     cfg,
		log:     log,
		bus:     deps.Bus,
		reg:     reg,
		enabled: deps.Enablement,
		prep:    deps.Preparer,
		signal:  interrupt.New(),
	}
}

// SetOnError installs the per-task failure callback. It is invoked from the
// worker goroutine; callers that touch state owned elsewhere must marshal
// themselves. Passing nil removes the callback.
func (s *Service) SetOnError(fn func(error)) {
	if fn == nil {
		s.onError.Store(nil)
		return
	}
	s.onError.Store(&fn)
}

// StartRegular starts a run of every enabled regular task. If runInThread is
// false the run executes on the caller's goroutine and StartRegular returns
// when it ends. It is a logged no-op while another run is alive.
func (s *Service) StartRegular(runInThread bool) {
	s.launch(KindRegular, registry.Task{}, runInThread)
}

// RunManual runs the manual task id. Unknown ids fail immediately without
// touching any state. Like StartRegular, it is a logged no-op while another
// run is alive.
func (s *Service) RunManual(id string, runInThread bool) error {
	t, ok := s.reg.Manual(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	s.launch(KindManual, t, runInThread)
	return nil
}

func (s *Service) launch(kind RunKind, manual registry.Task, async bool) bool {
	tag := string(kind)
	if kind == KindManual {
		tag = "manual:" + string(manual.ID)
	}

	s.mu.Lock()
	if s.done != nil {
		cur := s.tag
		s.mu.Unlock()
		s.log.Warn("scheduler already running, skip start", logx.String("requested", tag), logx.String("active", cur))
		return false
	}
	done := make(chan struct{})
	r := newRun(kind, tag, manual)
	s.done = done
	s.tag = tag
	s.runID = r.id
	s.signal.Clear()
	s.stopRequested.Store(false)
	s.stopping.Store(false)
	s.starting.Store(true)
	s.mu.Unlock()

	s.publish(eventbus.RunStarting, RunEvent{RunID: r.id, Kind: kind, Tag: tag})

	if async {
		go s.execute(r, done)
	} else {
		s.execute(r, done)
	}
	return true
}

// Stop requests the active run to stop. The interrupt signal is raised and
// task bodies unwind at their next check. With block=true Stop waits until the
// worker has exited. It is a logged no-op when nothing is running, and a
// repeated Stop only waits (when block is set).
//
// A stop that arrives while the run is still Starting leaves IsStopping false
// until the worker flips to Running. The first task then sees the raised
// signal at its first check and the remaining tasks are skipped.
//
// A blocking Stop issued on the worker goroutine, for example from a task
// body or the error callback, does not wait and only logs a warning.
func (s *Service) Stop(block bool) {
	s.mu.Lock()
	done := s.done
	if done == nil {
		s.mu.Unlock()
		s.log.Warn("scheduler not running, skip stop")
		return
	}
	already := s.stopRequested.Swap(true)
	if !already {
		// Stopping is only entered from Running; a stop during Starting is
		// recorded and promoted when the worker flips to Running.
		if s.running.Load() {
			s.stopping.Store(true)
		}
		s.signal.Request()
	}
	runID, tag := s.runID, s.tag
	s.mu.Unlock()

	if already {
		s.log.Debug("stop already requested", logx.String("tag", tag))
	} else {
		s.log.Info("stop requested", logx.String("tag", tag), logx.Bool("block", block))
		s.publish(eventbus.RunStopRequested, RunEvent{RunID: runID, Tag: tag})
	}
	if !block {
		return
	}
	if w := s.worker.Load(); w != 0 && w == goroutineID() {
		s.log.Warn("blocking stop called from the worker; not waiting", logx.String("tag", tag))
		return
	}
	<-done
}

// Wait blocks until no run is alive or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Alive reports whether a worker exists (including the Starting phase).
func (s *Service) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

func (s *Service) Running() bool    { return s.running.Load() }
func (s *Service) IsStarting() bool { return s.starting.Load() }
func (s *Service) IsStopping() bool { return s.stopping.Load() }

// CurrentTaskID returns the executing task id, or "" when none.
func (s *Service) CurrentTaskID() string {
	if c := s.current.Load(); c != nil {
		return c.ID
	}
	return ""
}

// CurrentTaskName returns the executing task display name, or "" when none.
func (s *Service) CurrentTaskName() string {
	if c := s.current.Load(); c != nil {
		return c.Name
	}
	return ""
}

func (s *Service) State() RunState {
	switch {
	case s.stopping.Load():
		return Stopping
	case s.running.Load():
		return Running
	case s.starting.Load():
		return Starting
	default:
		return Idle
	}
}

// Registry exposes the task table (read-only use).
func (s *Service) Registry() *registry.Registry { return s.reg }

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	tag, runID := s.tag, s.runID
	s.mu.Unlock()

	snap := Snapshot{State: s.State(), Tag: tag, RunID: runID}
	if c := s.current.Load(); c != nil {
		snap.CurrentTask = *c
	}
	s.hmu.Lock()
	snap.History = append([]RunRecord(nil), s.history...)
	s.hmu.Unlock()
	return snap
}

func (s *Service) remember(rec RunRecord) {
	s.hmu.Lock()
	s.history = append(s.history, rec)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
