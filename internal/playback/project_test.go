package playback

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sleigh-tracker/internal/timeline"
)

var t0 = time.Date(2024, 12, 25, 3, 0, 0, 0, time.UTC)

func threeStops() timeline.Timeline {
	return timeline.Timeline{
		{ZoneKey: timeline.ZoneAtlantic, City: "A", Coords: timeline.Coords{Lat: 0, Lng: 0}, Arrival: t0},
		{ZoneKey: timeline.ZoneAtlantic, City: "B", Coords: timeline.Coords{Lat: 10, Lng: 20}, Arrival: t0.Add(time.Hour)},
		{ZoneKey: timeline.ZoneEastern, City: "C", Coords: timeline.Coords{Lat: 20, Lng: 40}, Arrival: t0.Add(2 * time.Hour), Msg: "Last one"},
	}
}

func TestFraction(t *testing.T) {
	end := t0.Add(time.Hour)

	assert.Equal(t, 0.0, Fraction(t0, end, t0))
	assert.Equal(t, 0.5, Fraction(t0, end, t0.Add(30*time.Minute)))
	assert.Equal(t, 1.0, Fraction(t0, end, end))
	assert.Equal(t, 0.0, Fraction(t0, end, t0.Add(-time.Hour)), "clamped below")
	assert.Equal(t, 1.0, Fraction(t0, end, end.Add(time.Hour)), "clamped above")
	assert.Equal(t, 1.0, Fraction(t0, t0, t0), "zero span")
	assert.Equal(t, 1.0, Fraction(end, t0, t0), "negative span")
}

func TestInterpolate(t *testing.T) {
	a := timeline.Coords{Lat: 10, Lng: -20}
	b := timeline.Coords{Lat: 20, Lng: 20}

	assert.Equal(t, a, Interpolate(a, b, 0))
	assert.Equal(t, b, Interpolate(a, b, 1))
	assert.Equal(t, timeline.Coords{Lat: 15, Lng: 0}, Interpolate(a, b, 0.5))
	assert.Equal(t, b, Interpolate(a, b, 7))
	assert.Equal(t, a, Interpolate(a, b, math.NaN()))
}

func TestProject(t *testing.T) {
	tl := threeStops()

	tests := []struct {
		name    string
		now     time.Time
		hint    int
		phase   Phase
		index   int
		pos     timeline.Coords
		reached int
	}{
		{"pending", t0.Add(-time.Minute), 0, PhasePending, 0, OffMap, -1},
		{"at first stop", t0, 0, PhaseEnRoute, 0, timeline.Coords{Lat: 0, Lng: 0}, -1},
		{"halfway", t0.Add(30 * time.Minute), 0, PhaseEnRoute, 0, timeline.Coords{Lat: 5, Lng: 10}, -1},
		{"inside threshold", t0.Add(time.Hour - time.Second), 0, PhaseEnRoute, 0, Interpolate(tl[0].Coords, tl[1].Coords, float64(59*60+59)/3600), 1},
		{"second bracket", t0.Add(90 * time.Minute), 0, PhaseEnRoute, 1, timeline.Coords{Lat: 15, Lng: 30}, -1},
		{"stale hint ahead of now", t0.Add(30 * time.Minute), 2, PhaseEnRoute, 0, timeline.Coords{Lat: 5, Lng: 10}, -1},
		{"out of range hint", t0.Add(90 * time.Minute), 99, PhaseEnRoute, 1, timeline.Coords{Lat: 15, Lng: 30}, -1},
		{"terminal", t0.Add(3 * time.Hour), 1, PhaseArrived, 2, timeline.Coords{Lat: 20, Lng: 40}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Project(tl, tt.now, tt.hint)
			assert.Equal(t, tt.phase, p.Phase)
			assert.Equal(t, tt.index, p.Index)
			assert.InDelta(t, tt.pos.Lat, p.Position.Lat, 1e-9)
			assert.InDelta(t, tt.pos.Lng, p.Position.Lng, 1e-9)
			assert.Equal(t, tt.reached, p.Reached)
			assert.GreaterOrEqual(t, p.T, 0.0)
			assert.LessOrEqual(t, p.T, 1.0)
		})
	}
}

func TestProjectZeroLengthSpan(t *testing.T) {
	tl := timeline.Timeline{
		{City: "A", Coords: timeline.Coords{Lat: 1, Lng: 1}, Arrival: t0},
		{City: "B", Coords: timeline.Coords{Lat: 2, Lng: 2}, Arrival: t0},
		{City: "C", Coords: timeline.Coords{Lat: 3, Lng: 3}, Arrival: t0.Add(time.Hour)},
	}
	p := Project(tl, t0, 0)
	// Both A and B are due; the cursor sits on B.
	assert.Equal(t, 1, p.Index)
	assert.Equal(t, PhaseEnRoute, p.Phase)

	dup := timeline.Timeline{
		{City: "A", Coords: timeline.Coords{Lat: 1, Lng: 1}, Arrival: t0},
		{City: "B", Coords: timeline.Coords{Lat: 2, Lng: 2}, Arrival: t0},
	}
	p = Project(dup, t0, 0)
	assert.Equal(t, PhaseArrived, p.Phase)
	assert.Equal(t, timeline.Coords{Lat: 2, Lng: 2}, p.Position)
}

func TestProjectEmpty(t *testing.T) {
	p := Project(nil, t0, 0)
	assert.Equal(t, PhaseIdle, p.Phase)
	assert.Equal(t, OffMap, p.Position)
	assert.Equal(t, -1, p.Reached)
}
