package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/twpayne/go-polyline"

	"sleigh-tracker/internal/timeline"
	"sleigh-tracker/internal/tracker"
)

const maxBodyBytes = 1 << 16

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Snapshot())
}

type timelineResponse struct {
	Zone  timeline.ZoneKey  `json:"zone"`
	Stops timeline.Timeline `json:"stops"`
}

func (s *Server) handleTimeline(w http.ResponseWriter, _ *http.Request) {
	tl := s.tracker.Timeline()
	if tl == nil {
		tl = timeline.Timeline{}
	}
	writeJSON(w, http.StatusOK, timelineResponse{Zone: s.tracker.Zone(), Stops: tl})
}

type routeResponse struct {
	Points   int    `json:"points"`
	Polyline string `json:"polyline"`
}

// handleRoute returns the viewer timeline as an encoded polyline for map layers.
func (s *Server) handleRoute(w http.ResponseWriter, _ *http.Request) {
	tl := s.tracker.Timeline()
	coords := make([][]float64, 0, len(tl))
	for _, stop := range tl {
		coords = append(coords, []float64{stop.Coords.Lat, stop.Coords.Lng})
	}
	writeJSON(w, http.StatusOK, routeResponse{
		Points:   len(coords),
		Polyline: string(polyline.EncodeCoords(coords)),
	})
}

type zoneResponse struct {
	Zone   timeline.ZoneKey `json:"zone"`
	Passed bool             `json:"passed"`
}

func (s *Server) handleZone(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, zoneResponse{Zone: s.tracker.Zone(), Passed: s.tracker.ZonePassed()})
}

func (s *Server) handleWaypoints(w http.ResponseWriter, _ *http.Request) {
	stops := s.tracker.Waypoints()
	if stops == nil {
		stops = []timeline.UserStop{}
	}
	writeJSON(w, http.StatusOK, stops)
}

type submitRequest struct {
	Name string `json:"name"`
	Lat  any    `json:"lat"`
	Lng  any    `json:"lng"`
	Msg  string `json:"msg"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	stop, err := s.tracker.Submit(r.Context(), tracker.Submission{
		Name: req.Name,
		Lat:  coordText(req.Lat),
		Lng:  coordText(req.Lng),
		Msg:  req.Msg,
	})
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stop)
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracker.ErrNameTooShort):
		writeError(w, http.StatusBadRequest, codeNameTooShort, err.Error())
	case errors.Is(err, tracker.ErrInvalidCoordinates):
		writeError(w, http.StatusBadRequest, codeInvalidCoordinates, err.Error())
	case errors.Is(err, tracker.ErrCoordinatesOutOfRange):
		writeError(w, http.StatusBadRequest, codeCoordinatesOutOfRange, err.Error())
	case errors.Is(err, tracker.ErrZonePassed):
		writeError(w, http.StatusConflict, codeZonePassed, "Sorry, Santa has passed already, but Merry Christmas.")
	default:
		s.log.Error("submit waypoint failed", "err", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

// coordText renders a decoded JSON coordinate as text so numbers and numeric
// strings go through the same validation.
func coordText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return ""
}

type bedtimeBody struct {
	Hour   *int `json:"hour"`
	Minute *int `json:"minute"`
}

func (s *Server) handleBedtime(w http.ResponseWriter, _ *http.Request) {
	h, m := s.tracker.Bedtime()
	writeJSON(w, http.StatusOK, map[string]int{"hour": h, "minute": m})
}

func (s *Server) handleSetBedtime(w http.ResponseWriter, r *http.Request) {
	var req bedtimeBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.Hour == nil || req.Minute == nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	if err := s.tracker.SetBedtime(*req.Hour, *req.Minute); err != nil {
		if errors.Is(err, tracker.ErrInvalidBedtime) {
			writeError(w, http.StatusBadRequest, codeInvalidBedtime, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}
	s.handleBedtime(w, r)
}
