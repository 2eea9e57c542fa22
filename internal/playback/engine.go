package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sleigh-tracker/internal/clock"
	mmetrics "sleigh-tracker/internal/metrics"
	"sleigh-tracker/internal/timeline"
)

// Frame is one sample of the sleigh, as pushed to the rendering surface.
type Frame struct {
	At         time.Time `json:"at"`
	Phase      Phase     `json:"phase"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Headline   string    `json:"headline"`
	Subtext    string    `json:"subtext"`
	Next       string    `json:"next,omitempty"`
	ETASeconds float64   `json:"etaSeconds,omitempty"`
	Progress   float64   `json:"progress"`
	Index      int       `json:"index"`
}

// Arrival is the one-shot notification for reaching a stop.
type Arrival struct {
	City    string    `json:"city"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Sink receives frames and arrivals. Implementations must not block for long;
// they are called from the frame loop.
type Sink interface {
	PublishFrame(Frame) error
	PublishArrival(Arrival) error
}

type Options struct {
	Clock         clock.Clock
	Formatter     *Formatter
	Sink          Sink
	FrameInterval time.Duration
	Metrics       *mmetrics.Collector
	Logger        *slog.Logger
}

// Engine samples the viewer timeline once per frame. It keeps only a cursor hint,
// the last announced city and the last valid position between frames.
type Engine struct {
	clock    clock.Clock
	format   *Formatter
	sink     Sink
	interval time.Duration
	metrics  *mmetrics.Collector
	log      *slog.Logger

	mu            sync.Mutex
	tl            timeline.Timeline
	cursor        int
	primed        bool
	lastAnnounced string
	pos           timeline.Coords
	last          Frame
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

func NewEngine(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem(nil)
	}
	if opts.Formatter == nil {
		opts.Formatter = NewFormatter(time.Local, "en-US")
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		clock:    opts.Clock,
		format:   opts.Formatter,
		sink:     opts.Sink,
		interval: opts.FrameInterval,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		pos:      OffMap,
	}
}

// SetTimeline replaces the viewer timeline and forgets the cursor and the last
// announced city.
func (e *Engine) SetTimeline(tl timeline.Timeline) {
	e.mu.Lock()
	e.tl = tl
	e.cursor = 0
	e.primed = false
	e.lastAnnounced = ""
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.TimelineStops.Set(float64(len(tl)))
	}
}

// Timeline returns the current viewer timeline.
func (e *Engine) Timeline() timeline.Timeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tl
}

// Snapshot returns the most recent frame.
func (e *Engine) Snapshot() Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Tick computes the frame for now, announces a newly reached stop at most once and
// hands both to the sink. It returns the frame and the arrival, if any.
func (e *Engine) Tick(now time.Time) (Frame, *Arrival) {
	start := time.Now()

	e.mu.Lock()
	tl := e.tl
	prev := e.cursor
	p := Project(tl, now, prev)
	e.cursor = p.Index

	if finite(p.Position) {
		e.pos = p.Position
	} else if e.metrics != nil {
		e.metrics.DroppedFrames.Inc()
	}

	status := e.format.Status(tl, p, now)
	frame := Frame{
		At:       now,
		Phase:    p.Phase,
		Lat:      e.pos.Lat,
		Lng:      e.pos.Lng,
		Headline: status.Headline,
		Subtext:  status.Subtext,
		Progress: p.T,
		Index:    p.Index,
	}
	switch p.Phase {
	case PhasePending:
		frame.Next = tl[0].City
		frame.ETASeconds = etaSeconds(tl[0].Arrival.Sub(now))
	case PhaseEnRoute:
		frame.Next = tl[p.Index+1].City
		frame.ETASeconds = etaSeconds(tl[p.Index+1].Arrival.Sub(now))
	}

	reached := p.Reached
	// A cursor that moved since the last frame means a stop was passed between
	// frames, even if no frame landed inside the arrival threshold.
	if reached < 0 && e.primed && p.Index > prev {
		reached = p.Index
	}
	var arrival *Arrival
	if reached >= 0 && tl[reached].City != e.lastAnnounced {
		stop := tl[reached]
		e.lastAnnounced = stop.City
		arrival = &Arrival{
			City:    stop.City,
			Message: ArrivalMessage(stop, reached == len(tl)-1),
			At:      now,
		}
	}
	if p.Phase == PhaseEnRoute || p.Phase == PhaseArrived {
		e.primed = true
	}
	e.last = frame
	sink := e.sink
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.Frames.Inc()
		e.metrics.SetPhase(string(p.Phase))
		if arrival != nil {
			e.metrics.Arrivals.Inc()
		}
		e.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}

	if arrival != nil {
		e.log.Info("sleigh arrived", "city", arrival.City, "at", now.Format(time.RFC3339))
	}
	if sink != nil {
		if err := sink.PublishFrame(frame); err != nil {
			e.log.Debug("frame publish failed", "err", err)
		}
		if arrival != nil {
			if err := sink.PublishArrival(*arrival); err != nil {
				e.log.Warn("arrival publish failed", "city", arrival.City, "err", err)
			}
		}
	}
	return frame, arrival
}

// Start runs the frame loop until ctx is cancelled or Stop is called. Each frame
// reads the clock afresh, so a late or skipped tick never accumulates drift.
func (e *Engine) Start(parent context.Context) {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(parent)
	e.cancel = cancel
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		e.Tick(e.clock.Now())
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.Tick(e.clock.Now())
			}
		}
	}()
}

// Stop cancels the frame loop and waits for the pending tick to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}
