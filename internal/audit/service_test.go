package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/medantara/backend-klinik/internal/common"
	"github.com/medantara/backend-klinik/internal/obs"
)

type memStore struct {
	entries []Entry
}

func (m *memStore) Insert(_ context.Context, e Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memStore) List(_ context.Context, limit, offset int32) ([]Entry, int64, error) {
	return m.entries, int64(len(m.entries)), nil
}

func TestRecordDerivesActionAndResource(t *testing.T) {
	store := &memStore{}
	svc := Service{Store: store, Enabled: true}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/abc/void", nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/api/v1/invoices/{invoiceID}/void"))

	if err := svc.Record(req.Context(), "", "", "", "abc", req, http.StatusOK); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(store.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(store.entries))
	}
	e := store.entries[0]
	if e.Action != "POST /api/v1/invoices/{invoiceID}/void" {
		t.Fatalf("unexpected action: %q", e.Action)
	}
	if e.Resource != "invoices.void" {
		t.Fatalf("unexpected resource: %q", e.Resource)
	}
	if e.ResourceID != "abc" {
		t.Fatalf("unexpected resource id: %q", e.ResourceID)
	}
}

func TestRecordDisabledIsNoop(t *testing.T) {
	store := &memStore{}
	svc := Service{Store: store, Enabled: false}
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/customers/1", nil)
	if err := svc.Record(req.Context(), "", "", "", "", req, 0); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(store.entries) != 0 {
		t.Fatal("expected no entries while disabled")
	}
}

func TestMiddlewareRecordsMutationsOnly(t *testing.T) {
	store := &memStore{}
	rec := HTTPRecorder{Service: Service{Store: store, Enabled: true}}

	handler := rec.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	get := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
	handler.ServeHTTP(httptest.NewRecorder(), get)
	if len(store.entries) != 0 {
		t.Fatal("expected GET to be skipped")
	}

	post := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", nil)
	post = post.WithContext(common.WithUserID(post.Context(), "d8f1f6a0-0000-0000-0000-000000000001"))
	handler.ServeHTTP(httptest.NewRecorder(), post)
	if len(store.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(store.entries))
	}
	if store.entries[0].Status != http.StatusCreated {
		t.Fatalf("unexpected status: %d", store.entries[0].Status)
	}
	if store.entries[0].ActorID == "" {
		t.Fatal("expected actor id to be captured")
	}
}
