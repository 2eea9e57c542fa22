package waypoint

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleigh-tracker/internal/timeline"
)

func fixedID() string { return "generated" }

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestNormalizeLegacyAndCurrentAgree(t *testing.T) {
	n := Normalizer{NewID: fixedID}

	legacy, ok := n.Normalize(decode(t, `{"lat": 10, "lng": 20, "city": "X", "arrival_time_utc": "2024-12-25T00:00:00Z", "createdAt": 1}`))
	require.True(t, ok)
	current, ok := n.Normalize(decode(t, `{"coordinates": {"lat": 10, "lng": 20}, "city": "X", "arrival_time_utc": "2024-12-25T00:00:00Z", "createdAt": 1}`))
	require.True(t, ok)

	assert.Equal(t, legacy, current)
	assert.Equal(t, timeline.UserStop{
		ID:             "generated",
		ZoneKey:        timeline.ZoneCustom,
		City:           "X",
		Coordinates:    timeline.Coords{Lat: 10, Lng: 20},
		ArrivalTimeUTC: "2024-12-25T00:00:00Z",
		CreatedAt:      1,
	}, current)
}

func TestNormalize(t *testing.T) {
	n := Normalizer{NewID: fixedID}

	tests := []struct {
		name string
		raw  string
		ok   bool
		want func(*testing.T, timeline.UserStop)
	}{
		{
			name: "full current record",
			raw:  `{"id": "abc", "zoneKey": "Eastern Time Zone", "city": "  Home  ", "coordinates": {"lat": 43.6, "lng": -79.4}, "msg": "hi", "arrival_time_utc": "2024-12-25T05:02:00.000Z", "createdAt": 1734000000000}`,
			ok:   true,
			want: func(t *testing.T, u timeline.UserStop) {
				assert.Equal(t, "abc", u.ID)
				assert.Equal(t, timeline.ZoneEastern, u.ZoneKey)
				assert.Equal(t, "Home", u.City)
				assert.Equal(t, "hi", u.Msg)
				assert.Equal(t, int64(1734000000000), u.CreatedAt)
			},
		},
		{
			name: "numeric strings",
			raw:  `{"city": "X", "lat": "10.5", "lng": " -20 ", "arrival_time_utc": "2024-12-25T00:00:00Z", "createdAt": "7"}`,
			ok:   true,
			want: func(t *testing.T, u timeline.UserStop) {
				assert.Equal(t, timeline.Coords{Lat: 10.5, Lng: -20}, u.Coordinates)
				assert.Equal(t, int64(7), u.CreatedAt)
			},
		},
		{
			name: "coordinates object wins over top level",
			raw:  `{"city": "X", "coordinates": {"lat": 1, "lng": 2}, "lat": 50, "lng": 60, "arrival_time_utc": "a", "createdAt": 1}`,
			ok:   true,
			want: func(t *testing.T, u timeline.UserStop) {
				assert.Equal(t, timeline.Coords{Lat: 1, Lng: 2}, u.Coordinates)
			},
		},
		{name: "blank city", raw: `{"city": "   ", "lat": 1, "lng": 2, "arrival_time_utc": "a", "createdAt": 1}`},
		{name: "city not a string", raw: `{"city": 5, "lat": 1, "lng": 2, "arrival_time_utc": "a", "createdAt": 1}`},
		{name: "missing arrival", raw: `{"city": "X", "lat": 1, "lng": 2, "createdAt": 1}`},
		{name: "empty arrival", raw: `{"city": "X", "lat": 1, "lng": 2, "arrival_time_utc": "", "createdAt": 1}`},
		{name: "missing lng", raw: `{"city": "X", "lat": 1, "arrival_time_utc": "a", "createdAt": 1}`},
		{name: "null lat", raw: `{"city": "X", "lat": null, "lng": 2, "arrival_time_utc": "a", "createdAt": 1}`},
		{name: "non-numeric string", raw: `{"city": "X", "lat": "north", "lng": 2, "arrival_time_utc": "a", "createdAt": 1}`},
		{name: "NaN string", raw: `{"city": "X", "lat": "NaN", "lng": 2, "arrival_time_utc": "a", "createdAt": 1}`},
		{name: "lat out of range", raw: `{"city": "X", "lat": 91, "lng": 2, "arrival_time_utc": "a", "createdAt": 1}`},
		{name: "lng out of range", raw: `{"city": "X", "coordinates": {"lat": 0, "lng": -180.5}, "arrival_time_utc": "a", "createdAt": 1}`},
		{name: "missing createdAt", raw: `{"city": "X", "lat": 1, "lng": 2, "arrival_time_utc": "a"}`},
		{name: "infinite createdAt", raw: `{"city": "X", "lat": 1, "lng": 2, "arrival_time_utc": "a", "createdAt": "+Inf"}`},
		{name: "fractional createdAt", raw: `{"city": "X", "lat": 1, "lng": 2, "arrival_time_utc": "a", "createdAt": 1734000000000.5}`},
		{name: "createdAt beyond int64", raw: `{"city": "X", "lat": 1, "lng": 2, "arrival_time_utc": "a", "createdAt": 1e19}`},
		{name: "createdAt below int64", raw: `{"city": "X", "lat": 1, "lng": 2, "arrival_time_utc": "a", "createdAt": "-1e19"}`},
		{
			name: "whole createdAt written as float",
			raw:  `{"city": "X", "lat": 1, "lng": 2, "arrival_time_utc": "a", "createdAt": 1.7e12}`,
			ok:   true,
			want: func(t *testing.T, u timeline.UserStop) {
				assert.Equal(t, int64(1700000000000), u.CreatedAt)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, ok := n.Normalize(decode(t, tt.raw))
			assert.Equal(t, tt.ok, ok)
			if tt.want != nil {
				tt.want(t, u)
			}
		})
	}
}

func TestNormalizeNil(t *testing.T) {
	_, ok := Normalizer{}.Normalize(nil)
	assert.False(t, ok)
}

func TestNormalizeDefaultIDIsUUID(t *testing.T) {
	u, ok := Normalizer{}.Normalize(map[string]any{
		"city": "X", "lat": 1.0, "lng": 2.0, "arrival_time_utc": "a", "createdAt": 1.0,
	})
	require.True(t, ok)
	assert.Len(t, u.ID, 36)
}

func TestNormalizeAllSkipsRejects(t *testing.T) {
	var records []any
	require.NoError(t, json.Unmarshal([]byte(`[
		{"city": "A", "lat": 1, "lng": 2, "arrival_time_utc": "a", "createdAt": 1},
		"not an object",
		null,
		{"city": "", "lat": 1, "lng": 2, "arrival_time_utc": "a", "createdAt": 1},
		{"city": "B", "coordinates": {"lat": 3, "lng": 4}, "arrival_time_utc": "b", "createdAt": 2}
	]`), &records))

	stops, dropped := Normalizer{NewID: fixedID}.NormalizeAll(records)
	assert.Equal(t, 3, dropped)
	require.Len(t, stops, 2)
	assert.Equal(t, "A", stops[0].City)
	assert.Equal(t, "B", stops[1].City)
}

func TestNumber(t *testing.T) {
	f, ok := number(3)
	assert.True(t, ok)
	assert.Equal(t, 3.0, f)

	_, ok = number(math.Inf(-1))
	assert.False(t, ok)
	_, ok = number(true)
	assert.False(t, ok)
	_, ok = number("")
	assert.False(t, ok)
}
