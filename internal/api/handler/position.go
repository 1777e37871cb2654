package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/albapepper/nearlist/internal/api/respond"
	"github.com/albapepper/nearlist/internal/geo"
	"github.com/albapepper/nearlist/internal/position"
	"github.com/albapepper/nearlist/internal/zone"
)

const maxPositionBody = 4 << 10

// PositionRequest is one reading from a browser or device. Error carries a
// client-side positioning failure (permission denied, timeout) instead of a
// reading.
type PositionRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  float64  `json:"accuracy"`
	Timestamp int64    `json:"timestamp,omitempty"` // unix milliseconds
	Error     string   `json:"error,omitempty"`
}

// PostPosition feeds one sample to the engine.
// @Summary Push a position sample
// @Description Accepts a position sample (or a client-side positioning error) for the engine. Only available when the server runs with POSITION_SOURCE=http.
// @Tags engine
// @Accept json
// @Produce json
// @Param sample body PositionRequest true "Position sample"
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse "Invalid or stale sample"
// @Failure 409 {object} respond.ErrorResponse
// @Failure 503 {object} respond.ErrorResponse
// @Router /positions [post]
func (h *Handler) PostPosition(w http.ResponseWriter, r *http.Request) {
	if h.push == nil {
		respond.WriteError(w, http.StatusConflict, "SOURCE_NOT_HTTP",
			"Positions are not accepted over HTTP in the current source mode ("+h.sourceName()+")")
		return
	}

	var req PositionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPositionBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be a position object", err.Error())
		return
	}

	if req.Error != "" {
		h.forward(w, r, func() error { return h.push.Fail(r.Context(), req.Error) })
		return
	}

	if req.Latitude == nil || req.Longitude == nil {
		respond.WriteError(w, http.StatusBadRequest, "MISSING_COORDINATE", "latitude and longitude are required")
		return
	}
	c := geo.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if !c.Valid() {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_COORDINATE", "Coordinate out of range: "+c.String())
		return
	}
	if req.Accuracy < 0 {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_ACCURACY", "accuracy must not be negative")
		return
	}

	ts := h.now().UTC()
	if req.Timestamp > 0 {
		ts = time.UnixMilli(req.Timestamp).UTC()
	}
	sample := zone.PositionSample{Coordinate: c, AccuracyMeters: req.Accuracy, Timestamp: ts}
	h.forward(w, r, func() error { return h.push.Push(r.Context(), sample) })
}

func (h *Handler) forward(w http.ResponseWriter, r *http.Request, send func() error) {
	if err := send(); err != nil {
		if errors.Is(err, position.ErrStaleSample) {
			respond.WriteErrorDetail(w, http.StatusBadRequest, "STALE_SAMPLE", "Cached or mis-stamped positions are not accepted", err.Error())
			return
		}
		if errors.Is(err, position.ErrNotStreaming) {
			respond.WriteError(w, http.StatusServiceUnavailable, "ENGINE_NOT_RUNNING", "The engine is not consuming positions")
			return
		}
		respond.WriteErrorDetail(w, http.StatusServiceUnavailable, "POSITION_NOT_ACCEPTED", "Position could not be queued", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusAccepted, map[string]interface{}{
		"accepted": true,
	})
}
