// Package devicetest provides a scripted device for exercising task bodies.
package devicetest

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"iaa/internal/device"
)

// Scene is one screen of a Flow.
type Scene struct {
	// Probes visible on this screen.
	Probes []string
	// On maps an event to the next scene. Events are a tapped probe name,
	// "tap" for a tap elsewhere, "swipe", "key:<code>" and "launch".
	On map[string]string
	// After moves to Then once this many screenshots were taken here.
	After int
	Then  string
}

// Flow is a device.Device whose screens follow a scene graph.
type Flow struct {
	Rec     *device.Recognizer
	Scenes  map[string]Scene
	Package string

	mu     sync.Mutex
	cur    string
	shots  int
	last   image.Image
	events []string
}

var _ device.Device = (*Flow)(nil)

func NewFlow(rec *device.Recognizer, start string, scenes map[string]Scene) *Flow {
	return &Flow{Rec: rec, Scenes: scenes, cur: start}
}

// Scene returns the current scene name.
func (f *Flow) Scene() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur
}

// Events returns every recorded event in order.
func (f *Flow) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

// Count returns how often ev was recorded.
func (f *Flow) Count(ev string) int {
	n := 0
	for _, e := range f.Events() {
		if e == ev {
			n++
		}
	}
	return n
}

func (f *Flow) Screenshot(context.Context) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sc, ok := f.Scenes[f.cur]
	if !ok {
		return nil, fmt.Errorf("devicetest: unknown scene %q", f.cur)
	}
	if sc.After > 0 && f.shots >= sc.After {
		f.moveLocked(sc.Then)
		sc = f.Scenes[f.cur]
	}
	f.shots++
	img := image.NewRGBA(image.Rect(0, 0, device.BaseWidth, device.BaseHeight))
	for _, name := range sc.Probes {
		if !f.Rec.Paint(img, name) {
			return nil, fmt.Errorf("devicetest: scene %q uses unknown probe %q", f.cur, name)
		}
	}
	f.last = img
	return img, nil
}

func (f *Flow) Tap(_ context.Context, x, y int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev := "tap"
	for _, name := range f.Scenes[f.cur].Probes {
		if p, ok := f.Rec.Find(f.last, name); ok && p.X == x && p.Y == y {
			ev = name
			break
		}
	}
	f.fireLocked(ev)
	return nil
}

func (f *Flow) Swipe(context.Context, int, int, int, int, time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fireLocked("swipe")
	return nil
}

func (f *Flow) KeyEvent(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fireLocked("key:" + code)
	return nil
}

func (f *Flow) CurrentPackage(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Package, nil
}

func (f *Flow) LaunchApp(_ context.Context, pkg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Package = pkg
	f.fireLocked("launch")
	return nil
}

func (f *Flow) fireLocked(ev string) {
	f.events = append(f.events, ev)
	if next, ok := f.Scenes[f.cur].On[ev]; ok {
		f.moveLocked(next)
	}
}

func (f *Flow) moveLocked(next string) {
	f.cur = next
	f.shots = 0
}
