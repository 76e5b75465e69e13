package progression

import "testing"

func TestLevelThresholds(t *testing.T) {
	cases := []struct {
		xp    int
		level int
	}{
		{0, 1},
		{49, 1},
		{50, 2},
		{199, 2},
		{200, 3},
		{449, 3},
		{450, 4},
		{1250, 6},
	}
	for _, c := range cases {
		if got := LevelForXP(c.xp); got != c.level {
			t.Fatalf("LevelForXP(%d) = %d, want %d", c.xp, got, c.level)
		}
	}
}

func TestLevelInversionProperty(t *testing.T) {
	for xp := 0; xp <= 20000; xp++ {
		level := LevelForXP(xp)
		if level < 1 {
			t.Fatalf("LevelForXP(%d) = %d, below 1", xp, level)
		}
		if floor := XPFloorForLevel(level); floor > xp {
			t.Fatalf("xp=%d level=%d: floor %d above xp", xp, level, floor)
		}
		if ceil := XPCeilForLevel(level); xp >= ceil {
			t.Fatalf("xp=%d level=%d: xp not below ceiling %d", xp, level, ceil)
		}
	}
}

func TestFloorAndCeil(t *testing.T) {
	if got := XPFloorForLevel(1); got != 0 {
		t.Fatalf("floor of level 1 = %d, want 0", got)
	}
	if got := XPCeilForLevel(1); got != 50 {
		t.Fatalf("ceil of level 1 = %d, want 50", got)
	}
	if got := XPFloorForLevel(4); got != 450 {
		t.Fatalf("floor of level 4 = %d, want 450", got)
	}
	if XPFloorForLevel(0) != 0 || XPCeilForLevel(0) != 50 {
		t.Fatalf("levels below 1 must clamp to level 1 thresholds")
	}
}

func TestProgressPercentBounds(t *testing.T) {
	if got := ProgressPercent(0, 1); got != 0 {
		t.Fatalf("fresh profile progress = %v, want 0", got)
	}
	if got := ProgressPercent(25, 1); got != 50 {
		t.Fatalf("halfway progress = %v, want 50", got)
	}
	// Stale cached level: xp far beyond the level must clamp, not overflow.
	if got := ProgressPercent(100000, 2); got != 100 {
		t.Fatalf("stale-level progress = %v, want clamped 100", got)
	}
	if got := ProgressPercent(0, 5); got != 0 {
		t.Fatalf("underflowing progress = %v, want clamped 0", got)
	}
	for xp := 0; xp <= 5000; xp += 7 {
		pct := ProgressPercent(xp, LevelForXP(xp))
		if pct < 0 || pct > 100 {
			t.Fatalf("progress out of bounds: xp=%d pct=%v", xp, pct)
		}
	}
}
