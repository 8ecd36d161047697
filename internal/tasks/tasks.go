// Package tasks holds the automation bodies and registers them.
//
// Every body is a sequence of polling loops over the device session of the
// current run. Loops refresh the screenshot each iteration and go through
// interrupt.Loop, so a stop request is observed between iterations.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"iaa/internal/device"
	"iaa/internal/task/interrupt"
	"iaa/internal/task/registry"
	logx "iaa/pkg/logx"
)

// GamePackage is the Android package of the JP client.
const GamePackage = "com.sega.pjsekai"

var ErrStepTimeout = errors.New("step timed out")

// Timing holds the waits used by the bodies. Tests shrink them.
type Timing struct {
	Poll        time.Duration // default interval between screen checks
	LoginPoll   time.Duration // the login screens animate slowly
	Settle      time.Duration // pause after a tap that changes the screen
	FallbackTap time.Duration // minimum gap between blind corner taps
	HomeSettle  time.Duration // time the home screen must stay visible after launch
	AdWatch     time.Duration // length of one ad
	LiveWait    time.Duration // shortest song plus buffer
	// StepTimeout bounds a single polling loop; zero disables it.
	StepTimeout time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		Poll:        600 * time.Millisecond,
		LoginPoll:   3 * time.Second,
		Settle:      300 * time.Millisecond,
		FallbackTap: time.Second,
		HomeSettle:  4 * time.Second,
		AdWatch:     70 * time.Second,
		LiveWait:    79800 * time.Millisecond,
		StepTimeout: 10 * time.Minute,
	}
}

// Set is the task catalogue bound to one timing profile.
type Set struct {
	Timing Timing
	Log    logx.Logger
}

func New(t Timing, log logx.Logger) *Set {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Set{Timing: t, Log: log.With(logx.String("comp", "tasks"))}
}

// Register adds the regular tasks in execution order, then the manual ones.
// Display names are the user-facing Chinese labels.
func (s *Set) Register(reg *registry.Registry) error {
	regular := []registry.Task{
		{ID: registry.StartGame, Name: "启动游戏", Run: s.StartGame},
		{ID: registry.CM, Name: "自动 CM", Run: s.CM},
		{ID: registry.SoloLive, Name: "单人演出", Run: s.SoloLive},
		{ID: registry.ChallengeLive, Name: "挑战演出", Run: s.ChallengeLive},
	}
	for _, t := range regular {
		if err := reg.RegisterRegular(t); err != nil {
			return err
		}
	}
	return reg.RegisterManual(registry.Task{ID: registry.TenSongs, Name: "刷歌曲首数", Run: s.TenSongs})
}

// poll refreshes the screen and calls fn every interval until fn reports done.
func (s *Set) poll(ctx context.Context, sess *device.Session, step string, interval time.Duration, fn func() (bool, error)) error {
	if interval <= 0 {
		interval = s.Timing.Poll
	}
	start := time.Now()
	return interrupt.Loop(ctx, interval, func() (bool, error) {
		if s.Timing.StepTimeout > 0 && time.Since(start) > s.Timing.StepTimeout {
			return false, fmt.Errorf("%w: %s", ErrStepTimeout, step)
		}
		if err := sess.Refresh(ctx); err != nil {
			return false, fmt.Errorf("%s: %w", step, err)
		}
		return fn()
	})
}

func (s *Set) sleep(ctx context.Context, d time.Duration) error {
	return interrupt.Sleep(ctx, d)
}
