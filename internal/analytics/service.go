package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RevenuePoint is one day of invoiced revenue.
type RevenuePoint struct {
	Day      time.Time       `json:"day"`
	Invoiced decimal.Decimal `json:"invoiced"`
	Paid     decimal.Decimal `json:"paid"`
	Invoices int64           `json:"invoices"`
}

// ServiceRank is one entry in the top-services report.
type ServiceRank struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// Summary is the console dashboard headline.
type Summary struct {
	Invoiced    decimal.Decimal `json:"invoiced"`
	Collected   decimal.Decimal `json:"collected"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Expenses    decimal.Decimal `json:"expenses"`
	Net         decimal.Decimal `json:"net"`
	CoinsHeld   decimal.Decimal `json:"coins_held"`
	Overdue     int64           `json:"overdue_invoices"`
}

// Querier defines the database access required for the reports.
type Querier interface {
	RevenueDaily(ctx context.Context, from, to time.Time) ([]RevenuePoint, error)
	TopServices(ctx context.Context, from, to time.Time, limit int32) ([]ServiceRank, error)
	FinanceSummary(ctx context.Context, from, to time.Time) (Summary, error)
}

// Service provides cached access to the finance reports. Reports are
// aggregates over invoices and payments; staleness up to the TTL is
// acceptable.
type Service struct {
	Q   Querier
	R   *redis.Client
	TTL time.Duration
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts)+1)
	formatted = append(formatted, "klinik:an")
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// Revenue returns daily invoiced/collected figures between the
// bounds. A zero range defaults to the trailing 30 days.
func (s *Service) Revenue(ctx context.Context, from, to time.Time) ([]RevenuePoint, error) {
	if s == nil || s.Q == nil {
		return nil, fmt.Errorf("analytics service not configured")
	}
	from, to = s.defaultRange(from, to)
	key := cacheKey("revenue", from.Format("2006-01-02"), to.Format("2006-01-02"))
	var cached []RevenuePoint
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}
	rows, err := s.Q.RevenueDaily(ctx, from, to)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, rows)
	return rows, nil
}

// TopServices returns the highest-revenue line item descriptions in
// the period.
func (s *Service) TopServices(ctx context.Context, from, to time.Time, limit int32) ([]ServiceRank, error) {
	if s == nil || s.Q == nil {
		return nil, fmt.Errorf("analytics service not configured")
	}
	if limit <= 0 {
		limit = 10
	}
	from, to = s.defaultRange(from, to)
	key := cacheKey("top", from.Format("2006-01-02"), to.Format("2006-01-02"), limit)
	var cached []ServiceRank
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}
	rows, err := s.Q.TopServices(ctx, from, to, limit)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, rows)
	return rows, nil
}

// Overview returns the dashboard headline for the period.
func (s *Service) Overview(ctx context.Context, from, to time.Time) (Summary, error) {
	if s == nil || s.Q == nil {
		return Summary{}, fmt.Errorf("analytics service not configured")
	}
	from, to = s.defaultRange(from, to)
	key := cacheKey("summary", from.Format("2006-01-02"), to.Format("2006-01-02"))
	var cached Summary
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}
	summary, err := s.Q.FinanceSummary(ctx, from, to)
	if err != nil {
		return Summary{}, err
	}
	s.store(ctx, key, summary)
	return summary, nil
}

func (s *Service) defaultRange(from, to time.Time) (time.Time, time.Time) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	return from, to
}

func (s *Service) fromCache(ctx context.Context, key string, dst any) bool {
	if s.R == nil || s.TTL <= 0 {
		return false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}
