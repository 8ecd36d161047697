// Package registry holds the static table of runnable tasks.
//
// Regular tasks form an ordered set: declaration order is execution order for
// a full run. Manual tasks are looked up by ID only.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

var (
	ErrDuplicateTask = errors.New("duplicate task id")
	ErrFrozen        = errors.New("registry is frozen")
	ErrInvalidTask   = errors.New("invalid task")
)

// ID identifies a task. The known tasks are declared as constants; the
// registry itself stays a runtime table so tests and embedders can add more.
type ID string

const (
	StartGame     ID = "start_game"
	CM            ID = "cm"
	SoloLive      ID = "solo_live"
	ChallengeLive ID = "challenge_live"
	TenSongs      ID = "ten_songs"
)

func (id ID) String() string { return string(id) }

// Task is a unit of automation. Run signals failure only through its error;
// it should observe interrupt.Check(ctx) inside its own polling loops.
type Task struct {
	ID   ID
	Name string
	Run  func(ctx context.Context) error
}

type Registry struct {
	mu      sync.RWMutex
	regular *linkedhashmap.Map // ID -> Task, insertion ordered
	manual  map[ID]Task
	frozen  bool
}

func New() *Registry {
	return &Registry{
		regular: linkedhashmap.New(),
		manual:  map[ID]Task{},
	}
}

// RegisterRegular appends t to the ordered regular set.
func (r *Registry) RegisterRegular(t Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkLocked(t); err != nil {
		return err
	}
	r.regular.Put(t.ID, t)
	return nil
}

// RegisterManual adds t to the manual set.
func (r *Registry) RegisterManual(t Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkLocked(t); err != nil {
		return err
	}
	r.manual[t.ID] = t
	return nil
}

func (r *Registry) checkLocked(t Task) error {
	if r.frozen {
		return ErrFrozen
	}
	if strings.TrimSpace(string(t.ID)) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidTask)
	}
	if t.Run == nil {
		return fmt.Errorf("%w: %s has no body", ErrInvalidTask, t.ID)
	}
	// IDs are unique across both sets so NameFromID stays unambiguous.
	if _, ok := r.regular.Get(t.ID); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
	}
	if _, ok := r.manual[t.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
	}
	return nil
}

// Freeze makes the registry immutable. Called once the process has finished
// registering its tasks.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Regular returns the regular tasks in declaration order.
func (r *Registry) Regular() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vals := r.regular.Values()
	out := make([]Task, 0, len(vals))
	for _, v := range vals {
		out = append(out, v.(Task))
	}
	return out
}

// Manual looks up a manual task by id.
func (r *Registry) Manual(id string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.manual[ID(id)]
	return t, ok
}

// ManualTasks returns the manual tasks sorted by ID (display only; manual
// tasks have no execution order).
func (r *Registry) ManualTasks() []Task {
	r.mu.RLock()
	out := make([]Task, 0, len(r.manual))
	for _, t := range r.manual {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IsRegular reports whether id belongs to the regular set.
func (r *Registry) IsRegular(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.regular.Get(ID(id))
	return ok
}

// NameFromID returns the display name for id, or id itself when unknown.
func (r *Registry) NameFromID(id string) string {
	if r == nil {
		return id
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.regular.Get(ID(id)); ok {
		if t := v.(Task); t.Name != "" {
			return t.Name
		}
	}
	if t, ok := r.manual[ID(id)]; ok && t.Name != "" {
		return t.Name
	}
	return id
}
