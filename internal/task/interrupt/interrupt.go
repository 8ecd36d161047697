// Package interrupt provides the cooperative stop signal observed by task bodies.
//
// A Signal is owned by one scheduler and scoped to one run. Task bodies never
// get preempted: they are expected to call Check (or use Loop/Sleep) at
// iteration boundaries and unwind by returning ErrInterrupted. Stopping in the
// middle of a multi-step gesture (tap, then wait) would leave the device in an
// unknown state, so observation only happens between steps.
package interrupt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInterrupted is returned by task bodies that unwound because a stop was requested.
var ErrInterrupted = errors.New("interrupted")

type Signal struct {
	requested atomic.Bool

	mu   sync.Mutex
	done chan struct{}
}

func New() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Request raises the signal. Calling it again is a no-op.
func (s *Signal) Request() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		s.done = make(chan struct{})
	}
	if s.requested.Swap(true) {
		return
	}
	close(s.done)
}

// Clear resets the signal so the next run starts clean.
func (s *Signal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requested.Swap(false) || s.done == nil {
		s.done = make(chan struct{})
	}
}

func (s *Signal) Requested() bool {
	if s == nil {
		return false
	}
	return s.requested.Load()
}

// Done returns a channel closed while the signal is raised.
// Clear installs a fresh channel; callers must re-fetch Done after a Clear.
func (s *Signal) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		s.done = make(chan struct{})
	}
	return s.done
}

// Check returns ErrInterrupted when the signal is raised.
func (s *Signal) Check() error {
	if s.Requested() {
		return ErrInterrupted
	}
	return nil
}

type ctxKey struct{}

// WithSignal attaches s to ctx so task bodies can reach it.
func WithSignal(ctx context.Context, s *Signal) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the signal attached to ctx (nil if none).
func FromContext(ctx context.Context) *Signal {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(ctxKey{}).(*Signal)
	return s
}

// Check reports ErrInterrupted if the run's signal is raised, or the context
// error (wrapped) if ctx is done.
func Check(ctx context.Context) error {
	if err := FromContext(ctx).Check(); err != nil {
		return err
	}
	if ctx != nil && ctx.Err() != nil {
		return errors.Join(ErrInterrupted, ctx.Err())
	}
	return nil
}

// Sleep waits for d, returning early with ErrInterrupted when the signal is
// raised or ctx is canceled.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := Check(ctx); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	var done <-chan struct{}
	if s := FromContext(ctx); s != nil {
		done = s.Done()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-done:
		return ErrInterrupted
	case <-ctx.Done():
		return errors.Join(ErrInterrupted, ctx.Err())
	}
}

// Loop calls fn every interval until it reports done, returns an error, or the
// run is interrupted. The signal is checked before every iteration.
func Loop(ctx context.Context, interval time.Duration, fn func() (done bool, err error)) error {
	for {
		if err := Check(ctx); err != nil {
			return err
		}
		done, err := fn()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if err := Sleep(ctx, interval); err != nil {
			return err
		}
	}
}

// IsInterrupted reports whether err came from a stop request.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted)
}
