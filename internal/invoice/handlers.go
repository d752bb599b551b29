package invoice

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/medantara/backend-klinik/internal/billing"
	"github.com/medantara/backend-klinik/internal/common"
	"github.com/medantara/backend-klinik/internal/obs"
)

// Handler exposes REST endpoints for invoices.
type Handler struct {
	Service  *Service
	Validate *validator.Validate
	Renderer *PDFRenderer
}

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" validate:"required"`
	Note   string          `json:"note"`
}

// List handles GET /api/v1/invoices.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "invoice service not configured", nil)
		return
	}
	page, limit := common.ParsePagination(r, 20, 100)
	filter := ListFilter{
		CustomerID: strings.TrimSpace(r.URL.Query().Get("customer_id")),
		Status:     Status(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))),
		Limit:      int32(limit),
		Offset:     common.Offset(page, limit),
	}
	invoices, total, err := h.Service.List(r.Context(), filter)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONList(w, invoices, common.Pagination{Page: page, PerPage: limit, TotalItems: int(total)})
}

// Get handles GET /api/v1/invoices/{invoiceID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "invoice service not configured", nil)
		return
	}
	inv, err := h.Service.Get(r.Context(), chi.URLParam(r, "invoiceID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, inv)
}

// Create handles POST /api/v1/invoices.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	inv, err := h.Service.Create(r.Context(), in)
	if err != nil {
		countInvoice("create", "error")
		common.WriteError(w, err)
		return
	}
	countInvoice("create", "ok")
	countCoins(inv.CoinsRedeemed)
	common.JSONData(w, http.StatusCreated, inv)
}

// Update handles PUT /api/v1/invoices/{invoiceID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	inv, err := h.Service.Update(r.Context(), chi.URLParam(r, "invoiceID"), in)
	if err != nil {
		countInvoice("update", "error")
		common.WriteError(w, err)
		return
	}
	countInvoice("update", "ok")
	common.JSONData(w, http.StatusOK, inv)
}

// Preview handles POST /api/v1/invoices/preview. The console calls
// this as the form changes; nothing is persisted.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "invoice service not configured", nil)
		return
	}
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	if strings.TrimSpace(in.CustomerID) == "" {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "customer_id is required", nil)
		return
	}
	result, err := h.Service.Preview(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, result)
}

// Pay handles POST /api/v1/invoices/{invoiceID}/payments.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "invoice service not configured", nil)
		return
	}
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid payment payload", validationDetails(err))
		return
	}
	inv, err := h.Service.RecordPayment(r.Context(), chi.URLParam(r, "invoiceID"), req.Amount, req.Method, req.Note)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if obs.PaymentsRecordedTotal != nil {
		obs.PaymentsRecordedTotal.WithLabelValues(string(inv.PaymentState)).Inc()
	}
	common.JSONData(w, http.StatusOK, inv)
}

// Void handles POST /api/v1/invoices/{invoiceID}/void. Invoices are
// never hard-deleted; voiding releases redeemed coins.
func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "invoice service not configured", nil)
		return
	}
	inv, err := h.Service.Void(r.Context(), chi.URLParam(r, "invoiceID"))
	if err != nil {
		countInvoice("void", "error")
		common.WriteError(w, err)
		return
	}
	countInvoice("void", "ok")
	common.JSONData(w, http.StatusOK, inv)
}

// PDF handles GET /api/v1/invoices/{invoiceID}/pdf.
func (h *Handler) PDF(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil || h.Renderer == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "invoice service not configured", nil)
		return
	}
	inv, err := h.Service.Get(r.Context(), chi.URLParam(r, "invoiceID"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+inv.Number+`.pdf"`)
	if err := h.Renderer.Render(w, inv); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to render pdf", nil)
	}
}

// Terms handles GET /api/v1/invoices/terms. The console builds its
// dropdown from this.
func (h *Handler) Terms(w http.ResponseWriter, _ *http.Request) {
	type term struct {
		Value billing.PaymentTerm `json:"value"`
		Label string              `json:"label"`
		Days  int                 `json:"days"`
	}
	terms := billing.Terms()
	out := make([]term, 0, len(terms))
	for _, t := range terms {
		out = append(out, term{Value: t, Label: billing.TermLabel(t), Days: billing.TermDays(t)})
	}
	common.JSONData(w, http.StatusOK, out)
}

func (h *Handler) decodeInput(w http.ResponseWriter, r *http.Request) (Input, bool) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "invoice service not configured", nil)
		return Input{}, false
	}
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return Input{}, false
	}
	if err := h.validate(in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid invoice payload", validationDetails(err))
		return Input{}, false
	}
	if in.PaymentTerms == "" {
		in.PaymentTerms = billing.TermDueOnReceipt
	}
	if !billing.KnownTerm(in.PaymentTerms) {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "unknown payment terms", nil)
		return Input{}, false
	}
	return in, true
}

func (h *Handler) validate(v any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(v)
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}

func countInvoice(action, result string) {
	if obs.InvoicesTotal != nil {
		obs.InvoicesTotal.WithLabelValues(action, result).Inc()
	}
}

func countCoins(coins decimal.Decimal) {
	if obs.CoinsRedeemedTotal == nil || !coins.IsPositive() {
		return
	}
	f, _ := coins.Float64()
	obs.CoinsRedeemedTotal.Add(f)
}
