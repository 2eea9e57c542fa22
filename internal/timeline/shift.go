package timeline

import "time"

// NextBedtime returns the next instant strictly after now at hour:minute on the wall
// clock of now's location.
func NextBedtime(now time.Time, hour, minute int) time.Time {
	y, m, d := now.Date()
	bed := time.Date(y, m, d, hour, minute, 0, 0, now.Location())
	if !bed.After(now) {
		bed = time.Date(y, m, d+1, hour, minute, 0, 0, now.Location())
	}
	return bed
}

// Shift translates base so that its earliest stop arrives at the next local bedtime.
// Spacing between stops is preserved exactly.
func Shift(base Timeline, hour, minute int, now time.Time) Timeline {
	first, ok := base.First()
	if !ok {
		return Timeline{}
	}
	return base.Translate(NextBedtime(now, hour, minute).Sub(first))
}

// Translate returns a copy of tl with every arrival moved by delta.
func (tl Timeline) Translate(delta time.Duration) Timeline {
	out := make(Timeline, len(tl))
	for i, s := range tl {
		s.Arrival = s.Arrival.Add(delta)
		out[i] = s
	}
	return out
}
