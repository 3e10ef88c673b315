package points

import (
	"time"

	"github.com/dustin/go-humanize"
)

type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
	TierVIP  Tier = "vip"
)

func (t Tier) rank() int {
	switch t {
	case TierFree:
		return 0
	case TierPro:
		return 1
	case TierVIP:
		return 2
	default:
		return -1
	}
}

// TierAtLeast reports whether user ranks at or above required in
// free < pro < vip. Unknown tiers rank below free.
func TierAtLeast(user, required Tier) bool {
	return user.rank() >= required.rank()
}

// Requirement gates a piece of content.
type Requirement struct {
	Tier      Tier `json:"tier"`
	MinPoints int  `json:"min_points"`
}

func HasAccess(user Tier, points int, req Requirement) bool {
	return TierAtLeast(user, req.Tier) && points >= req.MinPoints
}

type TrialStatus struct {
	Started bool       `json:"started"`
	Active  bool       `json:"active"`
	EndsAt  *time.Time `json:"ends_at,omitempty"`
	EndsIn  string     `json:"ends_in,omitempty"`
}

func Trial(startedAt *time.Time, now time.Time, length time.Duration) TrialStatus {
	if startedAt == nil {
		return TrialStatus{}
	}
	end := startedAt.Add(length)
	status := TrialStatus{
		Started: true,
		Active:  now.Before(end),
		EndsAt:  &end,
	}
	if status.Active {
		status.EndsIn = humanize.RelTime(end, now, "ago", "from now")
	}
	return status
}

// EffectiveTier lifts the stored tier to vip while a trial is running.
func EffectiveTier(stored Tier, startedAt *time.Time, now time.Time, length time.Duration) Tier {
	if Trial(startedAt, now, length).Active && !TierAtLeast(stored, TierVIP) {
		return TierVIP
	}
	return stored
}
