// Package progression holds the XP/level math. Everything here is pure and
// deterministic; the rest of the service treats it as the single source of
// truth for level thresholds.
package progression

import (
	"math"
	"time"
)

// XPCeilForLevel returns the cumulative XP at which level ends, i.e. the
// floor of level+1.
func XPCeilForLevel(level int) int {
	if level < 1 {
		level = 1
	}
	return level * level * 50
}

// XPFloorForLevel returns the cumulative XP at which level begins.
func XPFloorForLevel(level int) int {
	if level < 1 {
		level = 1
	}
	return (level - 1) * (level - 1) * 50
}

// LevelForXP inverts the quadratic threshold: the largest level whose floor
// is <= xp, never below 1.
func LevelForXP(xp int) int {
	if xp <= 0 {
		return 1
	}
	level := int(math.Sqrt(float64(xp)/50)) + 1
	// Guard against float rounding at exact thresholds.
	for XPFloorForLevel(level+1) <= xp {
		level++
	}
	for level > 1 && XPFloorForLevel(level) > xp {
		level--
	}
	return level
}

// ProgressPercent reports how far xp sits inside level, clamped to [0,100]
// even when xp and level disagree (stale cached level).
func ProgressPercent(xp, level int) float64 {
	if level < 1 {
		level = 1
	}
	floor := XPFloorForLevel(level)
	ceil := XPCeilForLevel(level)
	pct := float64(xp-floor) / float64(ceil-floor) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// NextStreak advances the consecutive-day counter for activity at now:
// unchanged within the same UTC day, incremented on the next day, reset to 1
// after a gap.
func NextStreak(lastActive time.Time, streak int, now time.Time) int {
	if lastActive.IsZero() || streak <= 0 {
		return 1
	}
	days := int(dayStart(now).Sub(dayStart(lastActive)).Hours() / 24)
	switch {
	case days <= 0:
		return streak
	case days == 1:
		return streak + 1
	default:
		return 1
	}
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
