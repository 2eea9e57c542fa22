package waypoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleigh-tracker/internal/logging"
	"sleigh-tracker/internal/timeline"
)

func newTestStore(b Backend) *Store {
	return NewStore(b, Normalizer{NewID: fixedID}, logging.Discard())
}

func TestStoreLoadEmpty(t *testing.T) {
	stops, err := newTestStore(NewMemoryBackend()).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stops)
	assert.NotNil(t, stops)
}

func TestStoreMigratesLegacyKey(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.Put(ctx, LegacyKey, []byte(`[
		{"id": "1", "zoneKey": "Eastern Time Zone", "city": "Home", "lat": 43, "lng": -79, "arrival_time_utc": "2024-12-25T05:02:00.000Z", "createdAt": 5},
		{"city": "", "lat": 0, "lng": 0, "arrival_time_utc": "x", "createdAt": 1}
	]`)))

	dropped := 0
	s := newTestStore(b)
	s.OnDropped = func(n int) { dropped += n }

	stops, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, stops, 1)
	assert.Equal(t, timeline.Coords{Lat: 43, Lng: -79}, stops[0].Coordinates)
	assert.Equal(t, 1, dropped)

	raw, found, err := b.Get(ctx, CurrentKey)
	require.NoError(t, err)
	require.True(t, found)
	var migrated []timeline.UserStop
	require.NoError(t, json.Unmarshal(raw, &migrated))
	assert.Equal(t, stops, migrated)

	// The current key now wins.
	require.NoError(t, b.Put(ctx, LegacyKey, []byte(`[]`)))
	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, stops, again)
}

func TestStoreCurrentKeyPreferred(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.Put(ctx, CurrentKey, []byte(`[{"id": "v2", "city": "New", "coordinates": {"lat": 1, "lng": 1}, "arrival_time_utc": "a", "createdAt": 1}]`)))
	require.NoError(t, b.Put(ctx, LegacyKey, []byte(`[{"id": "v1", "city": "Old", "lat": 1, "lng": 1, "arrival_time_utc": "a", "createdAt": 1}]`)))

	stops, err := newTestStore(b).Load(ctx)
	require.NoError(t, err)
	require.Len(t, stops, 1)
	assert.Equal(t, "v2", stops[0].ID)
}

func TestStorePersistsMintedIDs(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.Put(ctx, CurrentKey, []byte(`[{"city": "New", "coordinates": {"lat": 1, "lng": 1}, "arrival_time_utc": "a", "createdAt": 1}]`)))

	n := 0
	s := NewStore(b, Normalizer{NewID: func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}}, logging.Discard())

	first, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "id-1", first[0].ID)

	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, n)
}

func TestStoreIgnoresUnreadableBlobs(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.Put(ctx, CurrentKey, []byte(`{not json`)))
	require.NoError(t, b.Put(ctx, LegacyKey, []byte(`{"city": "object, not array"}`)))

	stops, err := newTestStore(b).Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, stops)
}

func TestStoreFallsBackToLegacyWhenCurrentUnreadable(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.Put(ctx, CurrentKey, []byte(`null`)))
	require.NoError(t, b.Put(ctx, LegacyKey, []byte(`[{"city": "Old", "lat": 1, "lng": 1, "arrival_time_utc": "a", "createdAt": 1}]`)))

	stops, err := newTestStore(b).Load(ctx)
	require.NoError(t, err)
	require.Len(t, stops, 1)
	assert.Equal(t, "Old", stops[0].City)
}

func TestStoreAppend(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(NewMemoryBackend())

	first := timeline.UserStop{ID: "a", ZoneKey: timeline.ZoneEastern, City: "A", Coordinates: timeline.Coords{Lat: 1, Lng: 2}, ArrivalTimeUTC: "2024-12-25T05:02:00.000Z", CreatedAt: 1}
	second := timeline.UserStop{ID: "b", ZoneKey: timeline.ZonePacific, City: "B", Coordinates: timeline.Coords{Lat: 3, Lng: 4}, ArrivalTimeUTC: "2024-12-25T08:02:00.000Z", CreatedAt: 2, Msg: "hey"}

	_, err := s.Append(ctx, first)
	require.NoError(t, err)
	all, err := s.Append(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, []timeline.UserStop{first, second}, all)

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, all, loaded)
}

type failingBackend struct{ err error }

func (f failingBackend) Get(context.Context, string) ([]byte, bool, error) { return nil, false, f.err }
func (f failingBackend) Put(context.Context, string, []byte) error       { return f.err }

func TestStoreBackendErrors(t *testing.T) {
	boom := errors.New("disk on fire")
	s := newTestStore(failingBackend{err: boom})

	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, boom)
	_, err = s.Append(context.Background(), timeline.UserStop{})
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Save(context.Background(), nil), boom)
}

func TestSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	b, err := OpenSQLite(filepath.Join(t.TempDir(), "waypoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	_, found, err := b.Get(ctx, CurrentKey)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, b.Put(ctx, LegacyKey, []byte(`[{"city": "Old", "lat": "1", "lng": "2", "arrival_time_utc": "a", "createdAt": 1}]`)))

	s := newTestStore(b)
	stops, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, stops, 1)

	raw, found, err := b.Get(ctx, CurrentKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `[{"id": "generated", "zoneKey": "Custom Time Zone", "city": "Old", "coordinates": {"lat": 1, "lng": 2}, "arrival_time_utc": "a", "createdAt": 1}]`, string(raw))

	require.NoError(t, s.Save(ctx, nil))
	raw, _, err = b.Get(ctx, CurrentKey)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(raw))
}
