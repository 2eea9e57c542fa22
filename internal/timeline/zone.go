package timeline

import "time"

type offsetCandidate struct {
	off int
	key ZoneKey
}

// Standard-time offsets in "minutes to add to local time to get UTC".
var offsetTable = []offsetCandidate{
	{off: 210, key: ZoneNewfoundland},
	{off: 240, key: ZoneAtlantic},
	{off: 300, key: ZoneEastern},
	{off: 360, key: ZoneCentral},
	{off: 420, key: ZoneMountain},
	{off: 480, key: ZonePacific},
}

// MatchOffset returns the zone whose reference offset is closest to offsetMinutes.
// Ties go to the first listed candidate; any offset yields some zone.
func MatchOffset(offsetMinutes int) ZoneKey {
	best := offsetTable[0]
	bestDist := absInt(offsetMinutes - best.off)
	for _, c := range offsetTable[1:] {
		if d := absInt(offsetMinutes - c.off); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best.key
}

// OffsetMinutes returns the minutes to add to t's local wall clock to get UTC,
// e.g. 300 for US Eastern standard time.
func OffsetMinutes(t time.Time) int {
	_, secs := t.Zone()
	return -secs / 60
}

// ViewerZone picks the viewer's zone for now in its location, falling back to
// ZoneEastern when the schedule has no such zone.
func ViewerZone(s Schedule, now time.Time) ZoneKey {
	guess := MatchOffset(OffsetMinutes(now))
	if s.Has(guess) {
		return guess
	}
	return ZoneEastern
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
