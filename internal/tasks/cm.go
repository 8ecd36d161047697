package tasks

import (
	"context"

	"iaa/internal/device"
	logx "iaa/pkg/logx"
)

const maxCMSwipes = 5

// CM watches the daily ads from the intersection and claims their rewards.
func (s *Set) CM(ctx context.Context) error {
	sess, err := device.FromContext(ctx)
	if err != nil {
		return err
	}
	if err := s.goHome(ctx, sess, 0); err != nil {
		return err
	}
	if err := s.goIntersection(ctx, sess); err != nil {
		return err
	}
	opened, err := s.openCM(ctx, sess)
	if err != nil {
		return err
	}
	if !opened {
		s.Log.Info("no ads available")
		return nil
	}
	return s.clearCM(ctx, sess)
}

func atIntersection(sess *device.Session) bool {
	_, _, ok := sess.FindAny(ProbeIntersectionLogo, ProbeIntersectionCM)
	return ok
}

func (s *Set) goIntersection(ctx context.Context, sess *device.Session) error {
	if err := sess.Refresh(ctx); err != nil {
		return err
	}
	if atIntersection(sess) {
		return nil
	}
	err := s.poll(ctx, sess, "open map", 0, func() (bool, error) {
		if ok, err := sess.ClickProbe(ctx, ProbeMapOpen); ok || err != nil {
			return false, err
		}
		_, ok := sess.Find(ProbeMapClose)
		return ok, nil
	})
	if err != nil {
		return err
	}
	// Park the map view in its bottom-right corner so the intersection has a
	// fixed position.
	for range 3 {
		if err := sess.SwipeScaled(ctx, 0.8, 0.8, 0.2, 0.2); err != nil {
			return err
		}
		if err := s.sleep(ctx, s.Timing.Settle); err != nil {
			return err
		}
	}
	return s.poll(ctx, sess, "enter intersection", 0, func() (bool, error) {
		if ok, err := sess.ClickProbe(ctx, ProbeMapIntersection); ok || err != nil {
			return false, err
		}
		return atIntersection(sess), nil
	})
}

// openCM reports false when the CM icon cannot be found, which means every
// ad of the day was watched.
func (s *Set) openCM(ctx context.Context, sess *device.Session) (bool, error) {
	swipes := 0
	opened := false
	err := s.poll(ctx, sess, "open cm", 0, func() (bool, error) {
		if ok, err := sess.ClickProbe(ctx, ProbeIntersectionCM); ok || err != nil {
			if err != nil {
				return false, err
			}
			return false, s.sleep(ctx, s.Timing.Settle)
		}
		if _, ok := sess.Find(ProbeCMPlay); ok {
			opened = true
			return true, nil
		}
		if err := sess.SwipeScaled(ctx, 0.7, 0.5, 0.4, 0.5); err != nil {
			return false, err
		}
		swipes++
		return swipes >= maxCMSwipes, nil
	})
	return opened, err
}

type cmState int

const (
	cmIdle cmState = iota
	cmLoading
	cmWatching
	cmResult
)

func (s *Set) clearCM(ctx context.Context, sess *device.Session) error {
	state := cmIdle
	watched := 0
	err := s.poll(ctx, sess, "clear cm", 0, func() (bool, error) {
		switch state {
		case cmIdle:
			if ok, err := sess.ClickProbe(ctx, ProbeCMPlay); ok || err != nil {
				return false, err
			}
			if ok, err := sess.ClickProbe(ctx, ProbeCMStart); ok || err != nil {
				if err == nil {
					state = cmLoading
				}
				return false, err
			}
			return true, nil
		case cmLoading:
			if _, ok := sess.Find(ProbeCMPlay); ok {
				return false, nil
			}
			s.Log.Debug("ad loaded", logx.Duration("wait", s.Timing.AdWatch))
			state = cmWatching
		case cmWatching:
			if err := s.sleep(ctx, s.Timing.AdWatch); err != nil {
				return false, err
			}
			// Leaving to the launcher and reopening the client closes the ad.
			if err := sess.Device.KeyEvent(ctx, "KEYCODE_HOME"); err != nil {
				return false, err
			}
			if err := s.sleep(ctx, s.Timing.Settle); err != nil {
				return false, err
			}
			if err := sess.Device.LaunchApp(ctx, GamePackage); err != nil {
				return false, err
			}
			state = cmResult
		case cmResult:
			if _, ok := sess.Find(ProbeCMFailed); ok {
				s.Log.Info("ad reward failed, skipped too early")
				state = cmIdle
				return false, sess.Click(ctx, pointCorner)
			}
			if _, _, ok := sess.FindAny(ProbeCMAwardClaimed, ProbeCMAPRecovered); ok {
				watched++
				state = cmIdle
				return false, sess.ClickCenter(ctx)
			}
		}
		return false, nil
	})
	if err == nil {
		s.Log.Info("all ads cleared", logx.Int("watched", watched))
	}
	return err
}
