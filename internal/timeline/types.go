package timeline

import (
	"math"
	"time"
)

type ZoneKey string

const (
	ZoneNewfoundland ZoneKey = "Newfoundland Time Zone"
	ZoneAtlantic     ZoneKey = "Atlantic Time Zone"
	ZoneEastern      ZoneKey = "Eastern Time Zone"
	ZoneCentral      ZoneKey = "Central Time Zone"
	ZoneMountain     ZoneKey = "Mountain Time Zone"
	ZonePacific      ZoneKey = "Pacific Time Zone"
	ZoneCustom       ZoneKey = "Custom Time Zone"
)

// ZoneOrder is the schedule order of the known zones, west-bound from Newfoundland.
// The catch-all zone is always last.
var ZoneOrder = []ZoneKey{
	ZoneNewfoundland,
	ZoneAtlantic,
	ZoneEastern,
	ZoneCentral,
	ZoneMountain,
	ZonePacific,
	ZoneCustom,
}

// Rank returns the position of z in ZoneOrder. Unknown zones rank as ZoneCustom.
func (z ZoneKey) Rank() int {
	for i, k := range ZoneOrder {
		if k == z {
			return i
		}
	}
	return len(ZoneOrder) - 1
}

type Coords struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both components are finite and within geographic bounds.
func (c Coords) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lng) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

type Stop struct {
	ZoneKey ZoneKey   `json:"zoneKey"`
	City    string    `json:"city"`
	Coords  Coords    `json:"coords"`
	Arrival time.Time `json:"arrival"`
	Msg     string    `json:"msg,omitempty"`
}

// UserStop is a viewer-submitted stop in its persisted shape.
type UserStop struct {
	ID             string  `json:"id"`
	ZoneKey        ZoneKey `json:"zoneKey"`
	City           string  `json:"city"`
	Coordinates    Coords  `json:"coordinates"`
	Msg            string  `json:"msg,omitempty"`
	ArrivalTimeUTC string  `json:"arrival_time_utc"`
	CreatedAt      int64   `json:"createdAt"` // unix millis
}

// Stop converts u into a plain timeline stop. ok is false when the arrival does not
// parse or the coordinates are out of range.
func (u UserStop) Stop() (s Stop, ok bool) {
	if !u.Coordinates.Valid() {
		return Stop{}, false
	}
	at, err := ParseArrival(u.ArrivalTimeUTC)
	if err != nil {
		return Stop{}, false
	}
	return Stop{
		ZoneKey: u.ZoneKey,
		City:    u.City,
		Coords:  u.Coordinates,
		Arrival: at,
		Msg:     u.Msg,
	}, true
}

// Timeline is a sequence of stops ordered by non-decreasing arrival.
type Timeline []Stop

// First returns the earliest arrival; ok is false for an empty timeline.
func (tl Timeline) First() (time.Time, bool) {
	if len(tl) == 0 {
		return time.Time{}, false
	}
	return tl[0].Arrival, true
}

// ZoneMax returns the latest arrival scheduled in zone.
func (tl Timeline) ZoneMax(zone ZoneKey) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, s := range tl {
		if s.ZoneKey != zone {
			continue
		}
		if !found || s.Arrival.After(latest) {
			latest = s.Arrival
			found = true
		}
	}
	return latest, found
}

// rankMin returns the earliest arrival among stops whose zone ranks at rank.
func (tl Timeline) rankMin(rank int) (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, s := range tl {
		if s.ZoneKey.Rank() != rank {
			continue
		}
		if !found || s.Arrival.Before(earliest) {
			earliest = s.Arrival
			found = true
		}
	}
	return earliest, found
}

// Cities returns the set of city names already used in zone.
func (tl Timeline) Cities(zone ZoneKey) map[string]bool {
	out := make(map[string]bool)
	for _, s := range tl {
		if s.ZoneKey == zone {
			out[s.City] = true
		}
	}
	return out
}

// ZonePassed reports whether every stop of zone in the (shifted) timeline tl has been
// reached at now. A zone without stops has never been passed.
func ZonePassed(tl Timeline, zone ZoneKey, now time.Time) bool {
	last, ok := tl.ZoneMax(zone)
	if !ok {
		return false
	}
	return !last.After(now)
}
