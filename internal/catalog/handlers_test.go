package catalog

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/medantara/backend-klinik/internal/common"
)

func TestDecodeAcceptsValidPayload(t *testing.T) {
	h := &Handler{Service: &Service{}, Validate: common.NewValidator()}

	body := `{"name": "Dental Cleaning", "price": "350000", "tax_rate": "11", "duration_minutes": 30}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/services", strings.NewReader(body))
	rr := httptest.NewRecorder()

	in, ok := h.decode(rr, req)
	require.True(t, ok, rr.Body.String())
	require.Equal(t, "Dental Cleaning", in.Name)
}

func TestDecodeRejectsTaxRateOutOfRange(t *testing.T) {
	h := &Handler{Service: &Service{}, Validate: common.NewValidator()}

	body := `{"name": "Dental Cleaning", "price": "350000", "tax_rate": "120"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/services", strings.NewReader(body))
	rr := httptest.NewRecorder()

	_, ok := h.decode(rr, req)
	require.False(t, ok)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
