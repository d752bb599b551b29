package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/medantara/backend-klinik/internal/analytics"
)

type stubQueries struct {
	revenueCalls int
	summaryCalls int
}

func (s *stubQueries) RevenueDaily(_ context.Context, from, _ time.Time) ([]analytics.RevenuePoint, error) {
	s.revenueCalls++
	return []analytics.RevenuePoint{{
		Day:      from,
		Invoiced: decimal.NewFromInt(2060),
		Paid:     decimal.NewFromInt(1000),
		Invoices: 1,
	}}, nil
}

func (s *stubQueries) TopServices(context.Context, time.Time, time.Time, int32) ([]analytics.ServiceRank, error) {
	return nil, nil
}

func (s *stubQueries) FinanceSummary(context.Context, time.Time, time.Time) (analytics.Summary, error) {
	s.summaryCalls++
	return analytics.Summary{
		Invoiced:  decimal.NewFromInt(2060),
		Collected: decimal.NewFromInt(1000),
		Expenses:  decimal.NewFromInt(400),
		Net:       decimal.NewFromInt(600),
	}, nil
}

func newTestService(t *testing.T) (*analytics.Service, *stubQueries) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	queries := &stubQueries{}
	return &analytics.Service{Q: queries, R: rdb, TTL: time.Minute}, queries
}

func TestRevenueCached(t *testing.T) {
	svc, queries := newTestService(t)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	first, err := svc.Revenue(context.Background(), from, to)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := svc.Revenue(context.Background(), from, to)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if queries.revenueCalls != 1 {
		t.Fatalf("expected 1 DB call, got %d", queries.revenueCalls)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected one point, got %d and %d", len(first), len(second))
	}
	if !second[0].Invoiced.Equal(decimal.NewFromInt(2060)) {
		t.Fatalf("cached invoiced = %s", second[0].Invoiced)
	}
}

func TestOverviewCached(t *testing.T) {
	svc, queries := newTestService(t)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		summary, err := svc.Overview(context.Background(), from, to)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if !summary.Net.Equal(decimal.NewFromInt(600)) {
			t.Fatalf("net = %s", summary.Net)
		}
	}
	if queries.summaryCalls != 1 {
		t.Fatalf("expected 1 DB call, got %d", queries.summaryCalls)
	}
}

func TestRevenueWithoutRedisHitsDBEachTime(t *testing.T) {
	queries := &stubQueries{}
	svc := &analytics.Service{Q: queries}
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if _, err := svc.Revenue(context.Background(), from, to); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if queries.revenueCalls != 2 {
		t.Fatalf("expected 2 DB calls, got %d", queries.revenueCalls)
	}
}
