package tasks

import "iaa/internal/device"

// Probe names looked up in the asset file.
const (
	ProbeHomeCrystal = "hud.crystal"
	ProbeHomeLive    = "hud.live"

	ProbeLoginLinkFinished  = "login.link_finished"
	ProbeLoginLink          = "login.link"
	ProbeLoginIconLink      = "login.icon_link"
	ProbeLoginGooglePlay    = "login.google_play"
	ProbeLoginMenu          = "login.menu"
	ProbeLoginDownloadWifi  = "login.download_via_wifi"
	ProbeLoginDownloadStart = "login.download"

	ProbeMapOpen          = "map.open"
	ProbeMapClose         = "map.close"
	ProbeMapIntersection  = "map.intersection"
	ProbeIntersectionLogo = "intersection.logo"
	ProbeIntersectionCM   = "intersection.cm"

	ProbeCMPlay         = "cm.play"
	ProbeCMStart        = "cm.start"
	ProbeCMFailed       = "cm.failed"
	ProbeCMAwardClaimed = "cm.award_claimed"
	ProbeCMAPRecovered  = "cm.ap_recovered"

	ProbeLiveSolo              = "live.solo"
	ProbeLiveChallenge         = "live.challenge"
	ProbeLiveDecide            = "live.decide"
	ProbeLiveListView          = "live.list_view"
	ProbeLiveAutoSettings      = "live.auto_settings"
	ProbeLiveUntilInsufficient = "live.until_insufficient"
	ProbeLiveDecideAuto        = "live.decide_auto"
	ProbeLiveAutoOn            = "live.auto_on"
	ProbeLiveAutoOff           = "live.auto_off"
	ProbeLiveStart             = "live.start"
	ProbeLiveAutoCompleted     = "live.auto_completed"
	ProbeLiveScoreRank         = "live.score_rank"
	ProbeLiveCompletedNext     = "live.completed_next"
	ProbeLiveGoSongSelect      = "live.go_song_select"

	ProbeChallengeRedDot        = "challenge.red_dot"
	ProbeChallengeSelectChara   = "challenge.select_character"
	ProbeChallengeWeeklyAward   = "challenge.weekly_award"
	ProbeChallengeAward         = "challenge.award"
	ProbeChallengeClaimConfirm  = "challenge.claim_confirm"
	ProbeChallengeConfirmButton = "challenge.confirm"
	probeChallengeCharaPrefix   = "challenge.chara."
	probeChallengeGroupPrefix   = "challenge.group."
	groupVirtualSinger          = "virtual_singer"
)

var (
	pointCorner   = device.Point{X: 1, Y: 1}
	pointNextSong = device.Point{X: 250, Y: 420}
)

var groups = []string{"leoneed", "more_more_jump", "vivid_bad_squad", "wonderlands_showtime", "nightcord"}

// characterProbes returns the probes of a challenge character and its unit tab.
// The list order of config.Characters is six virtual singers followed by four
// members per unit.
func characterProbes(idx int, name string) (chara, group string) {
	g := groupVirtualSinger
	if idx >= 6 {
		g = groups[min((idx-6)/4, len(groups)-1)]
	}
	return probeChallengeCharaPrefix + name, probeChallengeGroupPrefix + g
}
