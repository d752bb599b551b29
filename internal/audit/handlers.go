package audit

import (
	"net/http"

	"github.com/medantara/backend-klinik/internal/common"
)

// Handler exposes the audit trail to administrators.
type Handler struct {
	Store Store
}

// List handles GET /api/v1/audit.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "audit store not configured", nil)
		return
	}
	page, limit := common.ParsePagination(r, 50, 200)
	entries, total, err := h.Store.List(r.Context(), int32(limit), common.Offset(page, limit))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to fetch audit logs", nil)
		return
	}
	common.JSONList(w, entries, common.Pagination{Page: page, PerPage: limit, TotalItems: int(total)})
}
