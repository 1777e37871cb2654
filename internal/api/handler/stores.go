package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/albapepper/nearlist/internal/api/respond"
	"github.com/albapepper/nearlist/internal/cache"
	"github.com/albapepper/nearlist/internal/geo"
	"github.com/albapepper/nearlist/internal/zone"
)

// StoresCacheKey is the cache entry for the rendered snapshot. The store
// change listener deletes it.
const StoresCacheKey = "stores"

// StoreDistance is a store annotated with its distance from a query point.
type StoreDistance struct {
	zone.Store
	DistanceMeters float64 `json:"distance_m"`
	Distance       string  `json:"distance"`
	Inside         bool    `json:"inside"`
}

// GetStores returns the current store snapshot.
// @Summary List stores
// @Description Returns every geofenced store with its unchecked item count. With lat and lng, stores are sorted by distance from that point and annotated with distances; that variant is not cached.
// @Tags stores
// @Produce json
// @Param lat query number false "Latitude of the reference point"
// @Param lng query number false "Longitude of the reference point"
// @Success 200 {object} map[string]interface{}
// @Success 304 "Not modified"
// @Failure 400 {object} respond.ErrorResponse
// @Failure 503 {object} respond.ErrorResponse
// @Router /stores [get]
func (h *Handler) GetStores(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("lat") || q.Has("lng") {
		h.getStoresNear(w, r, q.Get("lat"), q.Get("lng"))
		return
	}

	ttl := cache.TTLStores
	if data, etag, ok := h.cache.Get(StoresCacheKey); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, ttl, true)
		return
	}

	snapshot, err := h.stores.Stores(r.Context())
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusServiceUnavailable, "STORES_UNAVAILABLE", "Store snapshot unavailable", err.Error())
		return
	}
	if snapshot == nil {
		snapshot = []zone.Store{}
	}
	raw, err := json.Marshal(map[string]interface{}{
		"stores": snapshot,
		"count":  len(snapshot),
	})
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "ENCODE_FAILED", "Failed to encode stores")
		return
	}

	etag := h.cache.Set(StoresCacheKey, raw, ttl)
	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
		respond.WriteNotModified(w, etag)
		return
	}
	respond.WriteJSON(w, raw, etag, ttl, false)
}

func (h *Handler) getStoresNear(w http.ResponseWriter, r *http.Request, latParam, lngParam string) {
	lat, errLat := strconv.ParseFloat(latParam, 64)
	lng, errLng := strconv.ParseFloat(lngParam, 64)
	from := geo.Coordinate{Latitude: lat, Longitude: lng}
	if errLat != nil || errLng != nil || !from.Valid() {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_COORDINATE", "lat and lng must both be valid degrees")
		return
	}

	snapshot, err := h.stores.Stores(r.Context())
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusServiceUnavailable, "STORES_UNAVAILABLE", "Store snapshot unavailable", err.Error())
		return
	}

	matches := make([]zone.Match, 0, len(snapshot))
	for _, s := range snapshot {
		matches = append(matches, zone.Match{Store: s, DistanceMeters: geo.Distance(from, s.Coordinate)})
	}
	zone.SortByDistance(matches)

	out := make([]StoreDistance, 0, len(matches))
	for _, m := range matches {
		out = append(out, StoreDistance{
			Store:          m.Store,
			DistanceMeters: m.DistanceMeters,
			Distance:       geo.FormatDistance(m.DistanceMeters),
			Inside:         m.DistanceMeters <= m.Store.TriggerRadiusMeters,
		})
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"from":   from,
		"stores": out,
		"count":  len(out),
	})
}
