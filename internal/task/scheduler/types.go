package scheduler

import (
	"context"
	"errors"
	"time"

	"iaa/internal/eventbus"
	"iaa/internal/task/registry"
	logx "iaa/pkg/logx"
)

var ErrUnknownTask = errors.New("unknown task")

// TaskError is what the error callback receives when a task body fails.
// Preparation failures and crashed runs are reported unwrapped.
type TaskError struct {
	TaskID   string
	TaskName string
	Err      error
}

func (e *TaskError) Error() string { return e.Err.Error() }
func (e *TaskError) Unwrap() error { return e.Err }

// Config controls the scheduler.
type Config struct {
	// HistorySize bounds the in-memory run history. Default 50.
	HistorySize int
}

// Session is the opaque value produced by a Preparer. It lives for one run and
// is reachable from task bodies via SessionFrom. If it implements io.Closer it
// is closed when the run ends.
type Session any

// Preparer establishes the link to the automated target. It is called exactly
// once per run, on the worker, before any task executes.
type Preparer interface {
	Prepare(ctx context.Context) (Session, error)
}

type PreparerFunc func(ctx context.Context) (Session, error)

func (f PreparerFunc) Prepare(ctx context.Context) (Session, error) { return f(ctx) }

// Enablement filters the regular set.
type Enablement interface {
	IsEnabled(id string) bool
}

// EnablementSnapshotter is optionally implemented by Enablement sources whose
// answers can change at runtime (hot-reloaded config). The scheduler takes one
// snapshot per run so later changes never affect a run in progress.
type EnablementSnapshotter interface {
	Snapshot() Enablement
}

type EnablementFunc func(id string) bool

func (f EnablementFunc) IsEnabled(id string) bool { return f(id) }

// Deps are the scheduler's collaborators. Registry is required.
type Deps struct {
	Registry   *registry.Registry
	Enablement Enablement
	Preparer   Preparer
	Log        logx.Logger
	Bus        eventbus.Bus
}

// RunState is derived from the scheduler flags.
type RunState int

const (
	Idle RunState = iota
	Starting
	Running
	Stopping
)

func (s RunState) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "idle"
	}
}

type RunKind string

const (
	KindRegular RunKind = "regular"
	KindManual  RunKind = "manual"
)

// Outcome summarizes how a run ended.
type Outcome string

const (
	OutcomeCompleted     Outcome = "completed"
	OutcomeInterrupted   Outcome = "interrupted"
	OutcomePrepareFailed Outcome = "prepare_failed"
	OutcomeEmpty         Outcome = "empty"
	OutcomeCrashed       Outcome = "crashed"
)

type TaskStatus string

const (
	TaskOK          TaskStatus = "ok"
	TaskFailed      TaskStatus = "failed"
	TaskInterrupted TaskStatus = "interrupted"
)

// CurrentTask is the task currently executing. Zero value means none.
type CurrentTask struct {
	ID   string
	Name string
}

type TaskResult struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Status   TaskStatus    `json:"status"`
	Error    string        `json:"error,omitempty"`
}

// RunRecord is the summary of one finished run.
type RunRecord struct {
	ID       string       `json:"id"`
	Kind     RunKind      `json:"kind"`
	Tag      string       `json:"tag"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
	Outcome  Outcome      `json:"outcome"`
	Error    string       `json:"error,omitempty"`
	Tasks    []TaskResult `json:"tasks,omitempty"`
}

// Failed counts failed tasks.
func (r RunRecord) Failed() int {
	n := 0
	for _, t := range r.Tasks {
		if t.Status == TaskFailed {
			n++
		}
	}
	return n
}

// RunEvent is the payload of run.* events.
type RunEvent struct {
	RunID  string     `json:"run_id"`
	Kind   RunKind    `json:"kind"`
	Tag    string     `json:"tag"`
	Tasks  []string   `json:"tasks,omitempty"`
	Error  string     `json:"error,omitempty"`
	Record *RunRecord `json:"record,omitempty"`
}

// TaskEvent is the payload of task.* events.
type TaskEvent struct {
	RunID    string        `json:"run_id"`
	TaskID   string        `json:"task_id"`
	TaskName string        `json:"task_name"`
	Index    int           `json:"index"`
	Total    int           `json:"total"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Snapshot is a point-in-time view for status output.
type Snapshot struct {
	State       RunState
	Tag         string
	RunID       string
	CurrentTask CurrentTask
	History     []RunRecord
}
