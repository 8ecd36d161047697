package device

import (
	"context"
	"errors"
	"image"
	"sync"

	"iaa/internal/config"
	"iaa/internal/task/scheduler"
	logx "iaa/pkg/logx"
)

var ErrNoSession = errors.New("no device session in context")

// Session is the per-run execution context: one device link, the probe set
// and the profile the run was prepared with.
type Session struct {
	Device     Device
	Recognizer *Recognizer
	Config     *config.Config
	Log        logx.Logger

	mu     sync.Mutex
	screen image.Image
	closed bool
}

// FromContext returns the session prepared for the current run.
func FromContext(ctx context.Context) (*Session, error) {
	s, ok := scheduler.SessionFrom(ctx).(*Session)
	if !ok || s == nil {
		return nil, ErrNoSession
	}
	return s, nil
}

// Refresh takes a new screenshot; Find works on the latest one.
func (s *Session) Refresh(ctx context.Context) error {
	img, err := s.Device.Screenshot(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.screen = img
	s.mu.Unlock()
	return nil
}

func (s *Session) Find(name string) (Point, bool) {
	s.mu.Lock()
	img := s.screen
	s.mu.Unlock()
	return s.Recognizer.Find(img, name)
}

// FindAny returns the first matching probe of names.
func (s *Session) FindAny(names ...string) (string, Point, bool) {
	for _, n := range names {
		if p, ok := s.Find(n); ok {
			return n, p, true
		}
	}
	return "", Point{}, false
}

// Click taps a point given in base coordinates.
func (s *Session) Click(ctx context.Context, p Point) error {
	w, h := s.size()
	return s.Device.Tap(ctx, p.X*w/BaseWidth, p.Y*h/BaseHeight)
}

// ClickCenter taps the middle of the screen.
func (s *Session) ClickCenter(ctx context.Context) error {
	return s.Click(ctx, Point{X: BaseWidth / 2, Y: BaseHeight / 2})
}

// ClickProbe taps probe name if it is on the latest screenshot.
func (s *Session) ClickProbe(ctx context.Context, name string) (bool, error) {
	p, ok := s.Find(name)
	if !ok {
		return false, nil
	}
	return true, s.Click(ctx, p)
}

// SwipeScaled swipes between points given as fractions of the screen.
func (s *Session) SwipeScaled(ctx context.Context, x1, y1, x2, y2 float64) error {
	w, h := s.size()
	fw, fh := float64(w), float64(h)
	return s.Device.Swipe(ctx, int(x1*fw), int(y1*fh), int(x2*fw), int(y2*fh), 0)
}

func (s *Session) size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.screen == nil {
		return BaseWidth, BaseHeight
	}
	b := s.screen.Bounds()
	return b.Dx(), b.Dy()
}

// Close drops the cached screenshot. The adb server keeps the link.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.screen = nil
	s.Log.Debug("device session closed")
	return nil
}
