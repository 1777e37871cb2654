package handler

import (
	"net/http"

	"github.com/albapepper/nearlist/internal/api/respond"
)

// GetZone returns the engine status.
// @Summary Current zone state
// @Description Returns the active store (if any), the last sample, the latest position error and engine/delivery counters.
// @Tags engine
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /zone [get]
func (h *Handler) GetZone(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"position_source": h.sourceName(),
		"engine":          h.engine.Status(),
	}
	if h.delivery != nil {
		body["delivery"] = h.delivery.Stats()
	}
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	respond.WriteJSONObject(w, http.StatusOK, body)
}
