package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"iaa/internal/eventbus"
	"iaa/internal/task/interrupt"
	"iaa/internal/task/registry"
	logx "iaa/pkg/logx"
)

type run struct {
	id     string
	kind   RunKind
	tag    string
	manual registry.Task
	rec    RunRecord
}

func newRun(kind RunKind, tag string, manual registry.Task) *run {
	id := uuid.NewString()
	return &run{
		id:     id,
		kind:   kind,
		tag:    tag,
		manual: manual,
		rec:    RunRecord{ID: id, Kind: kind, Tag: tag},
	}
}

func (s *Service) execute(r *run, done chan struct{}) {
	s.worker.Store(goroutineID())
	log := s.log.With(logx.String("run", r.id), logx.String("tag", r.tag))
	r.rec.Started = time.Now()
	log.Info("run starting")

	var sess Session
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic: %v", rec)
			log.Error("run crashed", logx.Err(err), logx.Stack(string(debug.Stack())))
			r.rec.Outcome = OutcomeCrashed
			r.rec.Error = err.Error()
			s.callOnError(log, err)
		}
		s.finish(log, r, sess, done)
	}()

	ctx := interrupt.WithSignal(context.Background(), s.signal)
	ctx = context.WithValue(ctx, runIDKey{}, r.id)

	var err error
	sess, err = s.prepare(ctx)
	if err != nil {
		log.Error("prepare execution context failed", logx.Err(err))
		r.rec.Outcome = OutcomePrepareFailed
		r.rec.Error = err.Error()
		s.publish(eventbus.RunPrepareFailed, RunEvent{RunID: r.id, Kind: r.kind, Tag: r.tag, Error: err.Error()})
		s.callOnError(log, err)
		return
	}
	ctx = WithSession(ctx, sess)

	tasks := s.selectTasks(r)
	if len(tasks) == 0 {
		log.Info("no tasks enabled, nothing to run")
		r.rec.Outcome = OutcomeEmpty
		return
	}
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = string(t.ID)
	}

	s.mu.Lock()
	s.starting.Store(false)
	s.running.Store(true)
	// A stop that arrived while starting is promoted now.
	if s.stopRequested.Load() {
		s.stopping.Store(true)
	}
	s.mu.Unlock()
	log.Info("run started", logx.Strings("tasks", ids))
	s.publish(eventbus.RunStarted, RunEvent{RunID: r.id, Kind: r.kind, Tag: r.tag, Tasks: ids})

	r.rec.Outcome = OutcomeCompleted
	for i, t := range tasks {
		if i > 0 && s.stopRequested.Load() {
			log.Info("stop requested, skip remaining tasks", logx.Int("remaining", len(tasks)-i))
			r.rec.Outcome = OutcomeInterrupted
			break
		}
		res, interrupted := s.runTask(ctx, log, r, t, i, len(tasks))
		r.rec.Tasks = append(r.rec.Tasks, res)
		if interrupted {
			r.rec.Outcome = OutcomeInterrupted
			break
		}
	}
}

func (s *Service) prepare(ctx context.Context) (sess Session, err error) {
	if s.prep == nil {
		return nil, nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return s.prep.Prepare(ctx)
}

func (s *Service) selectTasks(r *run) []registry.Task {
	if r.kind == KindManual {
		return []registry.Task{r.manual}
	}
	en := s.enabled
	if snap, ok := en.(EnablementSnapshotter); ok {
		en = snap.Snapshot()
	}
	all := s.reg.Regular()
	out := make([]registry.Task, 0, len(all))
	for _, t := range all {
		if en == nil || en.IsEnabled(string(t.ID)) {
			out = append(out, t)
		}
	}
	return out
}

// runTask executes one task body. It reports whether the body unwound because
// of a stop request.
func (s *Service) runTask(ctx context.Context, log logx.Logger, r *run, t registry.Task, idx, total int) (TaskResult, bool) {
	name := t.Name
	if name == "" {
		name = string(t.ID)
	}
	// Visible before the started event and until the result is classified.
	s.current.Store(&CurrentTask{ID: string(t.ID), Name: name})
	defer s.current.Store(nil)

	tlog := log.With(logx.String("task", string(t.ID)))
	started := time.Now()
	ev := TaskEvent{RunID: r.id, TaskID: string(t.ID), TaskName: name, Index: idx, Total: total, Started: started}
	tlog.Info("task started", logx.Int("index", idx+1), logx.Int("total", total))
	s.publish(eventbus.TaskStarted, ev)

	err := s.invoke(ctx, tlog, t)
	res := TaskResult{ID: string(t.ID), Name: name, Started: started, Duration: time.Since(started), Status: TaskOK}
	ev.Duration = res.Duration

	switch {
	case err == nil:
		tlog.Info("task finished", logx.Duration("took", res.Duration))
		s.publish(eventbus.TaskFinished, ev)
		return res, false
	case s.cancelled(err):
		res.Status = TaskInterrupted
		tlog.Info("task interrupted", logx.Duration("took", res.Duration))
		s.publish(eventbus.TaskInterrupted, ev)
		return res, true
	default:
		res.Status = TaskFailed
		res.Error = err.Error()
		ev.Error = res.Error
		tlog.Error("task failed", logx.Err(err), logx.Duration("took", res.Duration))
		s.publish(eventbus.TaskFailed, ev)
		s.callOnError(tlog, &TaskError{TaskID: string(t.ID), TaskName: name, Err: err})
		return res, false
	}
}

func (s *Service) cancelled(err error) bool {
	if interrupt.IsInterrupted(err) {
		return true
	}
	return s.stopRequested.Load() && errors.Is(err, context.Canceled)
}

func (s *Service) invoke(ctx context.Context, log logx.Logger, t registry.Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
			log.Error("task panic", logx.Any("panic", rec), logx.Stack(string(debug.Stack())))
		}
	}()
	return t.Run(ctx)
}

func (s *Service) callOnError(log logx.Logger, err error) {
	p := s.onError.Load()
	if p == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("error handler panic", logx.Any("panic", rec), logx.Stack(string(debug.Stack())))
		}
	}()
	(*p)(err)
}

func (s *Service) finish(log logx.Logger, r *run, sess Session, done chan struct{}) {
	if c, ok := sess.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn("close execution context failed", logx.Err(err))
		}
	}
	r.rec.Finished = time.Now()
	s.remember(r.rec)

	s.mu.Lock()
	s.running.Store(false)
	if s.stopRequested.Swap(false) {
		s.stopping.Store(false)
	}
	s.signal.Clear()
	s.starting.Store(false)
	s.current.Store(nil)
	s.worker.Store(0)
	s.done = nil
	s.mu.Unlock()

	rec := r.rec
	log.Info("run finished",
		logx.String("outcome", string(rec.Outcome)),
		logx.Int("tasks", len(rec.Tasks)),
		logx.Int("failed", rec.Failed()),
		logx.Duration("took", rec.Finished.Sub(rec.Started)),
	)
	s.publish(eventbus.RunFinished, RunEvent{RunID: r.id, Kind: r.kind, Tag: r.tag, Error: rec.Error, Record: &rec})
	close(done)
}
