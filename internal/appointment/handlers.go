package appointment

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/medantara/backend-klinik/internal/common"
)

// Handler exposes REST endpoints for appointments.
type Handler struct {
	Service  *Service
	Validate *validator.Validate
}

type statusRequest struct {
	Status Status `json:"status"`
}

type rescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

// List handles GET /api/v1/appointments.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "appointment service not configured", nil)
		return
	}
	page, limit := common.ParsePagination(r, 20, 100)
	q := r.URL.Query()
	filter := ListFilter{
		CustomerID: strings.TrimSpace(q.Get("customer_id")),
		DoctorID:   strings.TrimSpace(q.Get("doctor_id")),
		Status:     Status(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		Limit:      int32(limit),
		Offset:     common.Offset(page, limit),
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "from must be RFC3339", nil)
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "to must be RFC3339", nil)
			return
		}
		filter.To = t
	}
	appointments, total, err := h.Service.List(r.Context(), filter)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONList(w, appointments, common.Pagination{Page: page, PerPage: limit, TotalItems: int(total)})
}

// Get handles GET /api/v1/appointments/{appointmentID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "appointment service not configured", nil)
		return
	}
	a, err := h.Service.Get(r.Context(), chi.URLParam(r, "appointmentID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, a)
}

// Book handles POST /api/v1/appointments.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "appointment service not configured", nil)
		return
	}
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(in); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid appointment payload", nil)
			return
		}
	}
	a, err := h.Service.Book(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusCreated, a)
}

// UpdateStatus handles PATCH /api/v1/appointments/{appointmentID}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "appointment service not configured", nil)
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	req.Status = Status(strings.ToUpper(strings.TrimSpace(string(req.Status))))
	if !KnownStatus(req.Status) {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "unknown appointment status", nil)
		return
	}
	a, err := h.Service.Transition(r.Context(), chi.URLParam(r, "appointmentID"), req.Status)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, a)
}

// Reschedule handles PATCH /api/v1/appointments/{appointmentID}/schedule.
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "appointment service not configured", nil)
		return
	}
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	if req.ScheduledAt.IsZero() {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "scheduled_at is required", nil)
		return
	}
	a, err := h.Service.Reschedule(r.Context(), chi.URLParam(r, "appointmentID"), req.ScheduledAt)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, a)
}
