package waypoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"sleigh-tracker/internal/timeline"
)

const (
	CurrentKey = "sleigh_userStops_v2"
	LegacyKey  = "sleigh_userStops_v1"
)

// Backend is a string-keyed blob store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Store persists viewer stops under the current key and upgrades legacy blobs
// on first read.
type Store struct {
	backend    Backend
	normalizer Normalizer
	log        *slog.Logger

	// OnDropped, if set, is called with the number of stored records that failed
	// normalization during a load.
	OnDropped func(n int)

	mu sync.Mutex
}

func NewStore(b Backend, n Normalizer, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{backend: b, normalizer: n, log: log}
}

// Load returns the stored stops. Blobs that are not JSON arrays are ignored.
func (s *Store) Load(ctx context.Context) ([]timeline.UserStop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) ([]timeline.UserStop, error) {
	raw, found, err := s.backend.Get(ctx, CurrentKey)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", CurrentKey, err)
	}
	if found {
		if records, ok := decodeArray(raw); ok {
			stops := s.normalize(records)
			if missingIDs(records) {
				// Persist minted ids so later loads return the same set.
				if err := s.save(ctx, stops); err != nil {
					s.log.Warn("could not persist waypoint ids", "key", CurrentKey, "err", err)
				}
			}
			return stops, nil
		}
		s.log.Warn("ignoring unreadable waypoint blob", "key", CurrentKey)
	}

	raw, found, err = s.backend.Get(ctx, LegacyKey)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", LegacyKey, err)
	}
	if !found {
		return []timeline.UserStop{}, nil
	}
	records, ok := decodeArray(raw)
	if !ok {
		s.log.Warn("ignoring unreadable waypoint blob", "key", LegacyKey)
		return []timeline.UserStop{}, nil
	}
	stops := s.normalize(records)
	if err := s.save(ctx, stops); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", LegacyKey, err)
	}
	s.log.Info("migrated legacy waypoints", "count", len(stops))
	return stops, nil
}

// Save overwrites the stored stops.
func (s *Store) Save(ctx context.Context, stops []timeline.UserStop) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, stops)
}

func (s *Store) save(ctx context.Context, stops []timeline.UserStop) error {
	if stops == nil {
		stops = []timeline.UserStop{}
	}
	b, err := json.Marshal(stops)
	if err != nil {
		return fmt.Errorf("encode waypoints: %w", err)
	}
	if err := s.backend.Put(ctx, CurrentKey, b); err != nil {
		return fmt.Errorf("put %s: %w", CurrentKey, err)
	}
	return nil
}

// Append adds stop to the stored list and returns the new list.
func (s *Store) Append(ctx context.Context, stop timeline.UserStop) ([]timeline.UserStop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stops, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	stops = append(stops, stop)
	if err := s.save(ctx, stops); err != nil {
		return nil, err
	}
	return stops, nil
}

func (s *Store) normalize(records []any) []timeline.UserStop {
	stops, dropped := s.normalizer.NormalizeAll(records)
	if dropped > 0 {
		s.log.Debug("dropped malformed waypoints", "count", dropped)
		if s.OnDropped != nil {
			s.OnDropped(dropped)
		}
	}
	return stops
}

// missingIDs reports whether any record object lacks a usable id.
func missingIDs(records []any) bool {
	for _, r := range records {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := m["id"].(string); id == "" {
			return true
		}
	}
	return false
}

func decodeArray(b []byte) ([]any, bool) {
	var records []any
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, false
	}
	// "null" decodes into a nil slice without error.
	if records == nil {
		return nil, false
	}
	return records, true
}
