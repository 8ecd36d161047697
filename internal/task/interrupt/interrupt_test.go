package interrupt

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSignalRequestClear(t *testing.T) {
	t.Parallel()
	s := New()
	if s.Requested() || s.Check() != nil {
		t.Fatal("new signal must be clear")
	}
	done := s.Done()

	s.Request()
	s.Request() // idempotent, must not double-close
	if !s.Requested() || !errors.Is(s.Check(), ErrInterrupted) {
		t.Fatal("signal should be raised")
	}
	select {
	case <-done:
	default:
		t.Fatal("Done should be closed after Request")
	}

	s.Clear()
	if s.Requested() {
		t.Fatal("signal should be clear after Clear")
	}
	select {
	case <-s.Done():
		t.Fatal("fresh Done channel must be open after Clear")
	default:
	}
}

func TestNilSignalIsNeverRequested(t *testing.T) {
	t.Parallel()
	var s *Signal
	if s.Requested() || s.Check() != nil {
		t.Fatal("nil signal should behave as clear")
	}
	if err := Check(context.Background()); err != nil {
		t.Fatalf("Check without signal: %v", err)
	}
}

func TestSleepWakesOnRequest(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := WithSignal(context.Background(), s)

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Request()
	}()

	start := time.Now()
	err := Sleep(ctx, 5*time.Second)
	if !IsInterrupted(err) {
		t.Fatalf("Sleep err = %v, want ErrInterrupted", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("Sleep did not wake promptly")
	}
}

func TestSleepContextCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, time.Second)
	if !IsInterrupted(err) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep err = %v", err)
	}
}

func TestLoop(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		fn      func(n int) (bool, error)
		request bool
		wantN   int
		wantErr error
	}{
		{name: "done on third", fn: func(n int) (bool, error) { return n == 3, nil }, wantN: 3},
		{name: "error stops", fn: func(n int) (bool, error) { return false, errBoom }, wantN: 1, wantErr: errBoom},
		{name: "interrupted before first", fn: func(n int) (bool, error) { return true, nil }, request: true, wantN: 0, wantErr: ErrInterrupted},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := New()
			if tt.request {
				s.Request()
			}
			ctx := WithSignal(context.Background(), s)
			n := 0
			err := Loop(ctx, time.Millisecond, func() (bool, error) {
				n++
				return tt.fn(n)
			})
			if n != tt.wantN {
				t.Fatalf("iterations = %d, want %d", n, tt.wantN)
			}
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

var errBoom = errors.New("boom")

func TestThrottlerAndCountdown(t *testing.T) {
	t.Parallel()
	th := NewThrottler(time.Hour)
	if !th.Request() {
		t.Fatal("first request should pass")
	}
	if th.Request() {
		t.Fatal("second request within interval should be throttled")
	}

	cd := NewCountdown(0)
	if cd.Expired() {
		t.Fatal("unstarted countdown must not be expired")
	}
	cd.Start()
	if !cd.Expired() {
		t.Fatal("zero countdown should expire once started")
	}
	cd.Reset()
	if cd.Expired() {
		t.Fatal("reset countdown must not be expired")
	}
}
