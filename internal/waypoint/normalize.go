package waypoint

import (
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"sleigh-tracker/internal/timeline"
)

// Normalizer turns loosely-typed stored records into UserStops. It accepts the
// current shape (coordinates object) and the legacy shape (top-level lat/lng).
type Normalizer struct {
	// NewID mints an id for records that lack one. Defaults to a random UUID.
	NewID func() string
}

// Normalize validates raw and returns the canonical stop. ok is false when the
// record must be dropped.
func (n Normalizer) Normalize(raw map[string]any) (timeline.UserStop, bool) {
	if raw == nil {
		return timeline.UserStop{}, false
	}

	city, _ := raw["city"].(string)
	city = strings.TrimSpace(city)
	if city == "" {
		return timeline.UserStop{}, false
	}

	arrival, _ := raw["arrival_time_utc"].(string)
	if arrival == "" {
		return timeline.UserStop{}, false
	}

	src := raw
	if nested, ok := raw["coordinates"].(map[string]any); ok {
		src = nested
	}
	lat, ok := number(src["lat"])
	if !ok {
		return timeline.UserStop{}, false
	}
	lng, ok := number(src["lng"])
	if !ok {
		return timeline.UserStop{}, false
	}
	coords := timeline.Coords{Lat: lat, Lng: lng}
	if !coords.Valid() {
		return timeline.UserStop{}, false
	}

	createdAt, ok := millis(raw["createdAt"])
	if !ok {
		return timeline.UserStop{}, false
	}

	id, _ := raw["id"].(string)
	if id == "" {
		id = n.newID()
	}

	zone := timeline.ZoneCustom
	if z, _ := raw["zoneKey"].(string); z != "" {
		zone = timeline.ZoneKey(z)
	}
	msg, _ := raw["msg"].(string)

	return timeline.UserStop{
		ID:             id,
		ZoneKey:        zone,
		City:           city,
		Coordinates:    coords,
		Msg:            msg,
		ArrivalTimeUTC: arrival,
		CreatedAt:      createdAt,
	}, true
}

// NormalizeAll normalizes each record and skips the ones that fail.
func (n Normalizer) NormalizeAll(records []any) (stops []timeline.UserStop, dropped int) {
	stops = make([]timeline.UserStop, 0, len(records))
	for _, r := range records {
		m, _ := r.(map[string]any)
		s, ok := n.Normalize(m)
		if !ok {
			dropped++
			continue
		}
		stops = append(stops, s)
	}
	return stops, dropped
}

func (n Normalizer) newID() string {
	if n.NewID != nil {
		return n.NewID()
	}
	return uuid.NewString()
}

// number reads a finite float from a decoded JSON number or a numeric string.
func number(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// millis reads a whole number of milliseconds that fits in an int64.
func millis(v any) (int64, bool) {
	f, ok := number(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	// 2^63 is exact as a float64; MaxInt64 is not.
	if f < math.MinInt64 || f >= -math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}
