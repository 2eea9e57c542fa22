package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"

	"sleigh-tracker/internal/playback"
	"sleigh-tracker/internal/timeline"
	"sleigh-tracker/internal/tracker"
)

// Tracker is the session surface the API serves. *tracker.Session implements it.
type Tracker interface {
	Snapshot() playback.Frame
	Timeline() timeline.Timeline
	Waypoints() []timeline.UserStop
	Zone() timeline.ZoneKey
	ZonePassed() bool
	Submit(ctx context.Context, sub tracker.Submission) (timeline.UserStop, error)
	Bedtime() (hour, minute int)
	SetBedtime(hour, minute int) error
}

type Options struct {
	SubmitRatePerMin int
	// AccessLog receives one Apache combined-format line per request. Nil disables it.
	AccessLog io.Writer
	Logger    *slog.Logger
}

// Server exposes the tracker over HTTP.
type Server struct {
	tracker Tracker
	limiter *submitLimiter
	access  io.Writer
	log     *slog.Logger
}

func NewServer(t Tracker, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		tracker: t,
		limiter: newSubmitLimiter(opts.SubmitRatePerMin),
		access:  opts.AccessLog,
		log:     opts.Logger,
	}
}

// Router creates the HTTP handler with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/timeline", s.handleTimeline).Methods(http.MethodGet)
	r.HandleFunc("/route", s.handleRoute).Methods(http.MethodGet)
	r.HandleFunc("/zone", s.handleZone).Methods(http.MethodGet)
	r.HandleFunc("/waypoints", s.handleWaypoints).Methods(http.MethodGet)
	r.Handle("/waypoints", s.limiter.wrap(http.HandlerFunc(s.handleSubmit))).Methods(http.MethodPost)
	r.HandleFunc("/bedtime", s.handleBedtime).Methods(http.MethodGet)
	r.HandleFunc("/bedtime", s.handleSetBedtime).Methods(http.MethodPut)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})

	var h http.Handler = r
	h = gzhttp.GzipHandler(h)
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.log}))(h)
	if s.access != nil {
		h = handlers.CombinedLoggingHandler(s.access, h)
	}
	return h
}

// Serve starts the API on addr and returns the server for shutdown.
func (s *Server) Serve(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("api server error", "err", err)
		}
	}()
	s.log.Info("api listening", "addr", addr)
	return srv
}

type recoveryLogger struct{ log *slog.Logger }

func (l recoveryLogger) Println(v ...any) {
	l.log.Error("handler panic", "panic", fmt.Sprint(v...))
}
