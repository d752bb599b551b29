package analytics

import (
	"net/http"
	"time"

	"github.com/medantara/backend-klinik/internal/common"
)

// Handler exposes the finance report endpoints.
type Handler struct {
	Service *Service
}

// Overview handles GET /api/v1/analytics/overview.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parsePeriod(w, r)
	if !ok {
		return
	}
	summary, err := h.Service.Overview(r.Context(), from, to)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, summary)
}

// Revenue handles GET /api/v1/analytics/revenue.
func (h *Handler) Revenue(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parsePeriod(w, r)
	if !ok {
		return
	}
	points, err := h.Service.Revenue(r.Context(), from, to)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, points)
}

// TopServices handles GET /api/v1/analytics/top-services.
func (h *Handler) TopServices(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parsePeriod(w, r)
	if !ok {
		return
	}
	limit := int32(common.AtoiDefault(r.URL.Query().Get("limit"), 10))
	ranks, err := h.Service.TopServices(r.Context(), from, to, limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, ranks)
}

func parsePeriod(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "from must be YYYY-MM-DD", nil)
			return from, to, false
		}
		from = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "to must be YYYY-MM-DD", nil)
			return from, to, false
		}
		to = t
	}
	return from, to, true
}
