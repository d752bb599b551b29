package doctor

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/medantara/backend-klinik/internal/common"
)

// Handler exposes REST endpoints for doctors.
type Handler struct {
	Service  *Service
	Validate *validator.Validate
}

// List handles GET /api/v1/doctors.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "doctor service not configured", nil)
		return
	}
	page, limit := common.ParsePagination(r, 20, 100)
	activeOnly := r.URL.Query().Get("active") == "true"
	doctors, total, err := h.Service.List(r.Context(), activeOnly, int32(limit), common.Offset(page, limit))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONList(w, doctors, common.Pagination{Page: page, PerPage: limit, TotalItems: int(total)})
}

// Get handles GET /api/v1/doctors/{doctorID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "doctor service not configured", nil)
		return
	}
	d, err := h.Service.Get(r.Context(), chi.URLParam(r, "doctorID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, d)
}

// Create handles POST /api/v1/doctors.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decode(w, r)
	if !ok {
		return
	}
	d, err := h.Service.Create(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusCreated, d)
}

// Update handles PUT /api/v1/doctors/{doctorID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decode(w, r)
	if !ok {
		return
	}
	d, err := h.Service.Update(r.Context(), chi.URLParam(r, "doctorID"), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, d)
}

// Delete handles DELETE /api/v1/doctors/{doctorID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "doctor service not configured", nil)
		return
	}
	if err := h.Service.Deactivate(r.Context(), chi.URLParam(r, "doctorID")); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Input, bool) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "doctor service not configured", nil)
		return Input{}, false
	}
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return Input{}, false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(in); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid doctor payload", nil)
			return Input{}, false
		}
	}
	return in, true
}
