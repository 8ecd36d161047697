package tasks

import (
	"context"
	"time"

	"iaa/internal/config"
	"iaa/internal/device"
	"iaa/internal/task/interrupt"
	logx "iaa/pkg/logx"
)

// StartGame launches the client when it is not in the foreground, links the
// account if configured, and waits for the home screen.
func (s *Set) StartGame(ctx context.Context) error {
	sess, err := device.FromContext(ctx)
	if err != nil {
		return err
	}
	pkg, err := sess.Device.CurrentPackage(ctx)
	if err != nil {
		return err
	}
	if pkg == GamePackage {
		s.Log.Info("already at game")
		return s.goHome(ctx, sess, 0)
	}

	s.Log.Info("not at game, launching", logx.String("foreground", pkg))
	if err := sess.Device.LaunchApp(ctx, GamePackage); err != nil {
		return err
	}
	if la := sess.Config.Game.LinkAccount; la != "" && la != config.LinkAccountNo {
		if err := s.login(ctx, sess, la); err != nil {
			return err
		}
	}
	// Announcements pop up a moment after home appears.
	return s.goHome(ctx, sess, s.Timing.HomeSettle)
}

func (s *Set) login(ctx context.Context, sess *device.Session, linkAccount string) error {
	err := s.poll(ctx, sess, "login", s.Timing.LoginPoll, func() (bool, error) {
		if _, ok := sess.Find(ProbeLoginLinkFinished); ok {
			return true, nil
		}
		for _, name := range []string{ProbeLoginLink, ProbeLoginIconLink} {
			if ok, err := sess.ClickProbe(ctx, name); ok || err != nil {
				return false, err
			}
		}
		if linkAccount == config.LinkAccountGooglePlay {
			if ok, err := sess.ClickProbe(ctx, ProbeLoginGooglePlay); ok || err != nil {
				return false, err
			}
		}
		_, err := sess.ClickProbe(ctx, ProbeLoginMenu)
		return false, err
	})
	if err == nil {
		s.Log.Info("login finished")
	}
	return err
}

// goHome taps blindly until the home screen has been visible for settle.
func (s *Set) goHome(ctx context.Context, sess *device.Session, settle time.Duration) error {
	th := interrupt.NewThrottler(s.Timing.FallbackTap)
	cd := interrupt.NewCountdown(settle)
	err := s.poll(ctx, sess, "go home", 0, func() (bool, error) {
		if atHome(sess) {
			cd.Start()
			if cd.Expired() {
				return true, nil
			}
		} else {
			cd.Reset()
		}
		if _, ok := sess.Find(ProbeLoginDownloadWifi); ok {
			if _, err := sess.ClickProbe(ctx, ProbeLoginDownloadStart); err != nil {
				return false, err
			}
		}
		if th.Request() {
			return false, sess.Click(ctx, pointCorner)
		}
		return false, nil
	})
	if err == nil {
		s.Log.Info("now at home")
	}
	return err
}

func atHome(sess *device.Session) bool {
	_, ok := sess.Find(ProbeHomeCrystal)
	return ok
}
