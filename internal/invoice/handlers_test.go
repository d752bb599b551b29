package invoice

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/medantara/backend-klinik/internal/billing"
	"github.com/medantara/backend-klinik/internal/common"
)

func TestDecodeInputAcceptsValidPayload(t *testing.T) {
	h := &Handler{Service: &Service{}, Validate: common.NewValidator()}

	body := `{
		"customer_id": "5f0c0f7e-9a1b-4a79-9df3-0d0c1f6f0001",
		"items": [
			{"description": "Consultation", "quantity": "1", "unit_price": "2000", "tax_rate": "18"}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", strings.NewReader(body))
	rr := httptest.NewRecorder()

	in, ok := h.decodeInput(rr, req)
	require.True(t, ok, rr.Body.String())
	require.Equal(t, billing.TermDueOnReceipt, in.PaymentTerms)
	require.Len(t, in.Items, 1)
}

func TestDecodeInputRejectsTaxRateOutOfRange(t *testing.T) {
	h := &Handler{Service: &Service{}, Validate: common.NewValidator()}

	body := `{
		"customer_id": "5f0c0f7e-9a1b-4a79-9df3-0d0c1f6f0001",
		"items": [
			{"description": "Consultation", "quantity": "1", "unit_price": "2000", "tax_rate": "150"}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", strings.NewReader(body))
	rr := httptest.NewRecorder()

	_, ok := h.decodeInput(rr, req)
	require.False(t, ok)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "VALIDATION_ERROR")
}
