package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"sleigh-tracker/internal/clock"
	mmetrics "sleigh-tracker/internal/metrics"
	"sleigh-tracker/internal/playback"
	"sleigh-tracker/internal/timeline"
	"sleigh-tracker/internal/waypoint"
)

// arrivalLayout matches the persisted arrival strings: UTC with milliseconds.
const arrivalLayout = "2006-01-02T15:04:05.000Z07:00"

type Options struct {
	Schedule        timeline.Schedule
	Store           *waypoint.Store
	Engine          *playback.Engine
	Clock           clock.Clock
	BedtimeHour     int
	BedtimeMinute   int
	Location        *time.Location
	RefreshInterval time.Duration
	Metrics         *mmetrics.Collector
	Logger          *slog.Logger
	NewID           func() string
}

// Session binds the schedule, the viewer's stored stops and bedtime to one
// playback engine. Every change recomputes the base and viewer timelines.
type Session struct {
	schedule timeline.Schedule
	store    *waypoint.Store
	engine   *playback.Engine
	clock    clock.Clock
	loc      *time.Location
	refresh  time.Duration
	metrics  *mmetrics.Collector
	log      *slog.Logger
	newID    func() string
	zone     timeline.ZoneKey

	mu      sync.RWMutex
	users   []timeline.UserStop
	bedHour int
	bedMin  int
	base    timeline.Timeline
	viewer  timeline.Timeline

	refreshCancel context.CancelFunc
	refreshWG     sync.WaitGroup
}

func New(opts Options) *Session {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem(opts.Location)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Store == nil {
		opts.Store = waypoint.NewStore(waypoint.NewMemoryBackend(), waypoint.Normalizer{}, opts.Logger)
	}
	if opts.Engine == nil {
		opts.Engine = playback.NewEngine(playback.Options{Clock: opts.Clock, Logger: opts.Logger})
	}
	if opts.Metrics != nil && opts.Store.OnDropped == nil {
		m := opts.Metrics
		opts.Store.OnDropped = func(n int) { m.WaypointsDropped.Add(float64(n)) }
	}
	s := &Session{
		schedule: opts.Schedule,
		store:    opts.Store,
		engine:   opts.Engine,
		clock:    opts.Clock,
		loc:      opts.Location,
		refresh:  opts.RefreshInterval,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		newID:    opts.NewID,
		bedHour:  opts.BedtimeHour,
		bedMin:   opts.BedtimeMinute,
	}
	s.zone = timeline.ViewerZone(opts.Schedule, s.clock.Now().In(s.loc))
	return s
}

// Load reads the stored stops and builds the timelines. A store failure still
// leaves the session playing the bare schedule.
func (s *Session) Load(ctx context.Context) error {
	users, err := s.store.Load(ctx)
	if err != nil {
		s.storeError("load")
		s.mu.Lock()
		s.rebuildLocked()
		s.mu.Unlock()
		return fmt.Errorf("load waypoints: %w", err)
	}
	s.mu.Lock()
	s.users = users
	s.rebuildLocked()
	s.mu.Unlock()
	return nil
}

// rebuildLocked recomputes both timelines and re-anchors the viewer timeline on
// the next bedtime. Callers hold s.mu.
func (s *Session) rebuildLocked() {
	now := s.clock.Now().In(s.loc)
	s.base = timeline.BuildBase(s.schedule, s.users)
	s.viewer = timeline.Shift(s.base, s.bedHour, s.bedMin, now)
	s.engine.SetTimeline(s.viewer)
	if s.metrics != nil {
		s.metrics.TimelineRebuilt.Inc()
		s.metrics.UserStops.Set(float64(len(s.users)))
		s.metrics.BedtimeMinute.Set(float64(s.bedHour*60 + s.bedMin))
	}
	s.log.Debug("timeline rebuilt", "stops", len(s.viewer), "user_stops", len(s.users))
}

// Submission is a viewer request to add a stop. Coordinates arrive as text.
type Submission struct {
	Name string
	Lat  string
	Lng  string
	Msg  string
}

// Submit validates sub, places it after the viewer zone's stops and persists it.
// Nothing changes when an error is returned.
func (s *Session) Submit(ctx context.Context, sub Submission) (timeline.UserStop, error) {
	name := strings.TrimSpace(sub.Name)
	if utf8.RuneCountInString(name) < 2 {
		return timeline.UserStop{}, s.reject("name_too_short", ErrNameTooShort)
	}
	lat, okLat := parseCoord(sub.Lat)
	lng, okLng := parseCoord(sub.Lng)
	if !okLat || !okLng {
		return timeline.UserStop{}, s.reject("invalid_coordinates", ErrInvalidCoordinates)
	}
	coords := timeline.Coords{Lat: lat, Lng: lng}
	if !coords.Valid() {
		return timeline.UserStop{}, s.reject("out_of_range", ErrCoordinatesOutOfRange)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if timeline.ZonePassed(s.viewer, s.zone, now) {
		return timeline.UserStop{}, s.reject("zone_passed", ErrZonePassed)
	}

	stop := timeline.UserStop{
		ID:             s.newID(),
		ZoneKey:        s.zone,
		City:           name,
		Coordinates:    coords,
		Msg:            strings.TrimSpace(sub.Msg),
		ArrivalTimeUTC: timeline.NewStopArrival(s.base, s.zone, now).UTC().Format(arrivalLayout),
		CreatedAt:      now.UnixMilli(),
	}
	users, err := s.store.Append(ctx, stop)
	if err != nil {
		s.storeError("save")
		return timeline.UserStop{}, fmt.Errorf("save waypoint: %w", err)
	}
	s.users = users
	s.rebuildLocked()
	if s.metrics != nil {
		s.metrics.WaypointsAccepted.Inc()
	}
	s.log.Info("waypoint added", "city", stop.City, "zone", string(stop.ZoneKey), "arrival", stop.ArrivalTimeUTC)
	return stop, nil
}

// SetBedtime changes the local bedtime anchor and rebuilds.
func (s *Session) SetBedtime(hour, minute int) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return ErrInvalidBedtime
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bedHour, s.bedMin = hour, minute
	s.rebuildLocked()
	return nil
}

// Bedtime returns the current local bedtime anchor.
func (s *Session) Bedtime() (hour, minute int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bedHour, s.bedMin
}

// Refresh re-reads the store and rebuilds only if the stored set changed.
func (s *Session) Refresh(ctx context.Context) (changed bool, err error) {
	users, err := s.store.Load(ctx)
	if err != nil {
		s.storeError("load")
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Equal(users, s.users) {
		return false, nil
	}
	s.users = users
	s.rebuildLocked()
	return true, nil
}

// StartRefresher launches a background loop that periodically re-reads the
// waypoint store so stops added by other instances show up.
func (s *Session) StartRefresher(parent context.Context) {
	if s.refresh <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	if s.refreshCancel != nil {
		s.mu.Unlock()
		cancel()
		return
	}
	s.refreshCancel = cancel
	s.mu.Unlock()

	s.refreshWG.Add(1)
	go func() {
		defer s.refreshWG.Done()
		ticker := time.NewTicker(s.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				changed, err := s.Refresh(ctx)
				if err != nil {
					s.log.Warn("refresh waypoints failed", "err", err)
					continue
				}
				if changed {
					s.log.Info("waypoints changed in store; timeline rebuilt")
				}
			}
		}
	}()
}

func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.refreshCancel
	s.refreshCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.refreshWG.Wait()
}

// Timeline returns the viewer timeline.
func (s *Session) Timeline() timeline.Timeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewer
}

// Waypoints returns the viewer-submitted stops in submission order.
func (s *Session) Waypoints() []timeline.UserStop {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.users)
}

// Zone is the viewer's zone.
func (s *Session) Zone() timeline.ZoneKey { return s.zone }

// ZonePassed reports whether the sleigh has left the viewer's zone.
func (s *Session) ZonePassed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return timeline.ZonePassed(s.viewer, s.zone, s.clock.Now())
}

func (s *Session) Engine() *playback.Engine { return s.engine }

func (s *Session) reject(reason string, err error) error {
	if s.metrics != nil {
		s.metrics.WaypointsRejected.WithLabelValues(reason).Inc()
	}
	return err
}

func (s *Session) storeError(op string) {
	if s.metrics != nil {
		s.metrics.StoreErrors.WithLabelValues(op).Inc()
	}
}

func parseCoord(v string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Snapshot returns the most recent playback frame.
func (s *Session) Snapshot() playback.Frame { return s.engine.Snapshot() }
