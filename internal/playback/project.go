package playback

import (
	"math"
	"time"

	"sleigh-tracker/internal/timeline"
)

type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhasePending Phase = "pending"
	PhaseEnRoute Phase = "en_route"
	PhaseArrived Phase = "arrived"
)

// ArrivalThreshold is the bracket fraction treated as having reached the next stop.
const ArrivalThreshold = 0.999

// OffMap is reported before launch and while no route is loaded.
var OffMap = timeline.Coords{Lat: 90, Lng: 0}

// Projection is the sleigh's state derived from a timeline and an instant.
type Projection struct {
	Phase    Phase
	Index    int // cursor: last stop whose arrival is <= now
	T        float64
	Position timeline.Coords
	Reached  int // index of the stop counted as reached, -1 if none
}

// Project samples tl at now. hint is the cursor from a previous call; it only
// shortens the scan and is ignored when it does not fit now.
func Project(tl timeline.Timeline, now time.Time, hint int) Projection {
	if len(tl) == 0 {
		return Projection{Phase: PhaseIdle, Position: OffMap, Reached: -1}
	}
	if now.Before(tl[0].Arrival) {
		return Projection{Phase: PhasePending, Position: OffMap, Reached: -1}
	}

	i := hint
	if i < 0 || i >= len(tl) || tl[i].Arrival.After(now) {
		i = 0
	}
	for i+1 < len(tl) && !tl[i+1].Arrival.After(now) {
		i++
	}

	cur := tl[i]
	if i == len(tl)-1 {
		return Projection{Phase: PhaseArrived, Index: i, T: 1, Position: cur.Coords, Reached: i}
	}

	next := tl[i+1]
	t := Fraction(cur.Arrival, next.Arrival, now)
	p := Projection{
		Phase:    PhaseEnRoute,
		Index:    i,
		T:        t,
		Position: Interpolate(cur.Coords, next.Coords, t),
		Reached:  -1,
	}
	if t >= ArrivalThreshold {
		p.Reached = i + 1
	}
	return p
}

// Fraction returns how far now lies between from and to, clamped to [0,1].
// A zero or negative span counts as complete.
func Fraction(from, to, now time.Time) float64 {
	span := to.Sub(from)
	if span <= 0 {
		return 1
	}
	return clamp01(float64(now.Sub(from)) / float64(span))
}

// Interpolate blends a and b linearly in lat/lng by t.
func Interpolate(a, b timeline.Coords, t float64) timeline.Coords {
	u := clamp01(t)
	return timeline.Coords{
		Lat: lerp(a.Lat, b.Lat, u),
		Lng: lerp(a.Lng, b.Lng, u),
	}
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(0, math.Min(1, x))
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func finite(c timeline.Coords) bool {
	return !math.IsNaN(c.Lat) && !math.IsInf(c.Lat, 0) && !math.IsNaN(c.Lng) && !math.IsInf(c.Lng, 0)
}
