package tasks

import (
	"context"
	"fmt"
	"slices"

	"iaa/internal/config"
	"iaa/internal/device"
	logx "iaa/pkg/logx"
)

const tenSongsCount = 10

type autoMode int

const (
	// autoAll plays until the live bonus runs out.
	autoAll autoMode = iota
	autoOnce
)

type backTo int

const (
	backHome backTo = iota
	backSelect
)

// SoloLive plays solo lives according to the live section of the profile.
func (s *Set) SoloLive(ctx context.Context) error {
	sess, err := device.FromContext(ctx)
	if err != nil {
		return err
	}
	if err := s.goHome(ctx, sess, 0); err != nil {
		return err
	}
	if err := s.enterSoloLive(ctx, sess); err != nil {
		return err
	}

	lc := sess.Config.Live
	switch lc.CountMode {
	case config.CountOnce:
		return s.playLive(ctx, sess, autoOnce, backHome, nil)
	case config.CountSpecify:
		n := 1
		if lc.Count != nil && *lc.Count > 0 {
			n = *lc.Count
		}
		for i := range n {
			back := backSelect
			if i == n-1 {
				back = backHome
			}
			if err := s.playLive(ctx, sess, autoOnce, back, nil); err != nil {
				return err
			}
			s.Log.Info("live played", logx.Int("count", i+1), logx.Int("of", n))
		}
		return nil
	default:
		return s.playLive(ctx, sess, autoAll, backHome, nil)
	}
}

// TenSongs plays ten different songs once each, advancing through the song
// list between lives.
func (s *Set) TenSongs(ctx context.Context) error {
	sess, err := device.FromContext(ctx)
	if err != nil {
		return err
	}
	if err := s.goHome(ctx, sess, 0); err != nil {
		return err
	}
	if err := s.enterSoloLive(ctx, sess); err != nil {
		return err
	}
	for i := range tenSongsCount {
		if err := s.nextSong(ctx, sess); err != nil {
			return err
		}
		if err := s.playLive(ctx, sess, autoOnce, backSelect, nil); err != nil {
			return err
		}
		s.Log.Info("song looped", logx.Int("count", i+1), logx.Int("of", tenSongsCount))
	}
	return nil
}

// ChallengeLive plays the daily challenge live with the first configured
// character. It returns early when today's challenge is already cleared.
func (s *Set) ChallengeLive(ctx context.Context) error {
	sess, err := device.FromContext(ctx)
	if err != nil {
		return err
	}
	chara := "ichika"
	if cs := sess.Config.ChallengeLive.Characters; len(cs) > 0 {
		chara = cs[0]
	}
	idx := slices.Index(config.Characters, chara)
	if idx < 0 {
		return fmt.Errorf("challenge live: unknown character %q", chara)
	}
	charaProbe, groupProbe := characterProbes(idx, chara)

	if err := s.goHome(ctx, sess, 0); err != nil {
		return err
	}

	cleared := false
	err = s.poll(ctx, sess, "enter challenge live", 0, func() (bool, error) {
		if ok, err := sess.ClickProbe(ctx, ProbeHomeLive); ok || err != nil {
			if err != nil {
				return false, err
			}
			return false, s.sleep(ctx, s.Timing.Settle)
		}
		if p, ok := sess.Find(ProbeLiveChallenge); ok {
			if _, dot := sess.Find(ProbeChallengeRedDot); !dot {
				cleared = true
				return true, nil
			}
			return false, sess.Click(ctx, p)
		}
		if _, ok := sess.Find(ProbeChallengeSelectChara); ok {
			return true, nil
		}
		// A stray tap on a character can open a "not enough plays" dialog
		// that hides the heading; tapping the singer tab dismisses it.
		_, err := sess.ClickProbe(ctx, probeChallengeGroupPrefix+groupVirtualSinger)
		return false, err
	})
	if err != nil {
		return err
	}
	if cleared {
		s.Log.Info("today's challenge live already cleared")
		return nil
	}

	s.Log.Info("selecting character", logx.String("character", chara))
	groupDone := false
	err = s.poll(ctx, sess, "select character", 0, func() (bool, error) {
		if !groupDone {
			if ok, err := sess.ClickProbe(ctx, groupProbe); ok || err != nil {
				groupDone = err == nil
				return false, err
			}
		}
		if ok, err := sess.ClickProbe(ctx, charaProbe); ok || err != nil {
			return false, err
		}
		_, ok := sess.Find(ProbeLiveDecide)
		return ok, nil
	})
	if err != nil {
		return err
	}

	claim := func() (skip bool, err error) {
		if _, ok := sess.Find(ProbeChallengeWeeklyAward); ok {
			if ok, err := sess.ClickProbe(ctx, ProbeChallengeAward); ok || err != nil {
				if err != nil {
					return false, err
				}
				return true, s.sleep(ctx, s.Timing.Settle)
			}
		}
		if _, ok := sess.Find(ProbeChallengeClaimConfirm); ok {
			if ok, err := sess.ClickProbe(ctx, ProbeChallengeConfirmButton); ok || err != nil {
				if err != nil {
					return false, err
				}
				return true, s.sleep(ctx, s.Timing.Settle)
			}
		}
		return false, nil
	}
	return s.playLive(ctx, sess, autoOnce, backHome, claim)
}

func (s *Set) enterSoloLive(ctx context.Context, sess *device.Session) error {
	return s.poll(ctx, sess, "enter solo live", 0, func() (bool, error) {
		if ok, err := sess.ClickProbe(ctx, ProbeHomeLive); ok || err != nil {
			if err != nil {
				return false, err
			}
			return false, s.sleep(ctx, s.Timing.Settle)
		}
		if ok, err := sess.ClickProbe(ctx, ProbeLiveSolo); ok || err != nil {
			return false, err
		}
		_, ok := sess.Find(ProbeLiveDecide)
		return ok, nil
	})
}

// nextSong selects the next unlocked song in list view.
func (s *Set) nextSong(ctx context.Context, sess *device.Session) error {
	if err := sess.Refresh(ctx); err != nil {
		return err
	}
	if _, err := sess.ClickProbe(ctx, ProbeLiveListView); err != nil {
		return err
	}
	if err := sess.Click(ctx, pointNextSong); err != nil {
		return err
	}
	if err := s.sleep(ctx, s.Timing.Settle); err != nil {
		return err
	}
	return s.poll(ctx, sess, "next song", 0, func() (bool, error) {
		if _, ok := sess.Find(ProbeLiveDecide); ok {
			return true, nil
		}
		s.Log.Debug("song locked, skipping")
		return false, sess.Click(ctx, pointNextSong)
	})
}

// playLive goes from song select through one auto live (or a chain of them)
// and returns to back. preCheck runs first in every return iteration; when
// it reports skip the iteration ends there.
func (s *Set) playLive(ctx context.Context, sess *device.Session, mode autoMode, back backTo, preCheck func() (bool, error)) error {
	err := s.poll(ctx, sess, "song select", 0, func() (bool, error) {
		return sess.ClickProbe(ctx, ProbeLiveDecide)
	})
	if err != nil {
		return err
	}

	switch mode {
	case autoAll:
		chose := false
		err = s.poll(ctx, sess, "auto live settings", 0, func() (bool, error) {
			if ok, err := sess.ClickProbe(ctx, ProbeLiveAutoSettings); ok || err != nil {
				return false, err
			}
			if !chose {
				if ok, err := sess.ClickProbe(ctx, ProbeLiveUntilInsufficient); ok || err != nil {
					chose = err == nil
					return false, err
				}
			}
			if ok, err := sess.ClickProbe(ctx, ProbeLiveDecideAuto); ok || err != nil {
				return ok, err
			}
			return false, nil
		})
	case autoOnce:
		err = s.poll(ctx, sess, "auto live switch", 0, func() (bool, error) {
			if _, ok := sess.Find(ProbeLiveAutoOn); ok {
				return true, nil
			}
			_, err := sess.ClickProbe(ctx, ProbeLiveAutoOff)
			return false, err
		})
	}
	if err != nil {
		return err
	}

	err = s.poll(ctx, sess, "start live", 0, func() (bool, error) {
		return sess.ClickProbe(ctx, ProbeLiveStart)
	})
	if err != nil {
		return err
	}
	if err := s.sleep(ctx, s.Timing.LiveWait); err != nil {
		return err
	}

	err = s.poll(ctx, sess, "wait live end", 0, func() (bool, error) {
		if mode == autoAll {
			if _, ok := sess.Find(ProbeLiveAutoCompleted); ok {
				s.Log.Info("auto lives completed")
				return true, sess.Click(ctx, pointCorner)
			}
			return false, nil
		}
		if _, ok := sess.Find(ProbeLiveScoreRank); ok {
			return true, sess.ClickCenter(ctx)
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	return s.poll(ctx, sess, "leave live", 0, func() (bool, error) {
		if preCheck != nil {
			skip, err := preCheck()
			if err != nil || skip {
				return false, err
			}
		}
		if back == backHome {
			if atHome(sess) {
				return true, nil
			}
			return false, sess.Click(ctx, pointCorner)
		}
		for _, name := range []string{ProbeLiveCompletedNext, ProbeLiveGoSongSelect} {
			if ok, err := sess.ClickProbe(ctx, name); ok || err != nil {
				return false, err
			}
		}
		_, ok := sess.Find(ProbeLiveDecide)
		return ok, nil
	})
}
