package user

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medantara/backend-klinik/internal/common"
)

// Handler exposes REST endpoints for staff administration.
type Handler struct {
	Service *Service
}

type rolesRequest struct {
	Roles []string `json:"roles"`
}

// List handles GET /api/v1/users.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "user service not configured", nil)
		return
	}
	page, limit := common.ParsePagination(r, 20, 100)
	accounts, total, err := h.Service.List(r.Context(), int32(limit), common.Offset(page, limit))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONList(w, accounts, common.Pagination{Page: page, PerPage: limit, TotalItems: int(total)})
}

// Get handles GET /api/v1/users/{userID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "user service not configured", nil)
		return
	}
	a, err := h.Service.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, a)
}

// UpdateRoles handles PUT /api/v1/users/{userID}/roles.
func (h *Handler) UpdateRoles(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "user service not configured", nil)
		return
	}
	var req rolesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	a, err := h.Service.UpdateRoles(r.Context(), chi.URLParam(r, "userID"), req.Roles)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, a)
}

// Delete handles DELETE /api/v1/users/{userID}. Admins cannot delete
// themselves; locking every admin out is a support call nobody wants.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "user service not configured", nil)
		return
	}
	targetID := chi.URLParam(r, "userID")
	if selfID, ok := common.UserID(r.Context()); ok && selfID == targetID {
		common.JSONError(w, http.StatusConflict, "SELF_DELETE", "cannot delete your own account", nil)
		return
	}
	if err := h.Service.Delete(r.Context(), targetID); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
