package analytics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medantara/backend-klinik/internal/common"
)

// PGStore runs the report aggregations against Postgres. Void
// invoices are excluded everywhere.
type PGStore struct {
	Pool *pgxpool.Pool
}

var _ Querier = (*PGStore)(nil)

func (s *PGStore) RevenueDaily(ctx context.Context, from, to time.Time) ([]RevenuePoint, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT i.invoice_date,
		       coalesce(sum(i.total), 0),
		       coalesce(sum(i.amount_paid), 0),
		       count(*)
		FROM invoices i
		WHERE i.status <> 'VOID'
		  AND i.invoice_date >= $1 AND i.invoice_date <= $2
		GROUP BY i.invoice_date
		ORDER BY i.invoice_date`,
		common.PGDate(from), common.PGDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RevenuePoint
	for rows.Next() {
		var p RevenuePoint
		var day pgtype.Date
		var invoiced, paid pgtype.Numeric
		if err := rows.Scan(&day, &invoiced, &paid, &p.Invoices); err != nil {
			return nil, err
		}
		p.Day = common.DateFromPG(day)
		p.Invoiced = common.DecimalFromPG(invoiced)
		p.Paid = common.DecimalFromPG(paid)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PGStore) TopServices(ctx context.Context, from, to time.Time, limit int32) ([]ServiceRank, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT li.description,
		       coalesce(sum(li.quantity), 0),
		       coalesce(sum(li.line_total + li.line_tax), 0) AS revenue
		FROM invoice_items li
		JOIN invoices i ON i.id = li.invoice_id
		WHERE i.status <> 'VOID'
		  AND i.invoice_date >= $1 AND i.invoice_date <= $2
		GROUP BY li.description
		ORDER BY revenue DESC
		LIMIT $3`,
		common.PGDate(from), common.PGDate(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ServiceRank
	for rows.Next() {
		var r ServiceRank
		var qty, revenue pgtype.Numeric
		if err := rows.Scan(&r.Description, &qty, &revenue); err != nil {
			return nil, err
		}
		r.Quantity = common.DecimalFromPG(qty)
		r.Revenue = common.DecimalFromPG(revenue)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) FinanceSummary(ctx context.Context, from, to time.Time) (Summary, error) {
	var summary Summary
	var invoiced, collected, outstanding pgtype.Numeric
	err := s.Pool.QueryRow(ctx, `
		SELECT coalesce(sum(total), 0),
		       coalesce(sum(amount_paid), 0),
		       coalesce(sum(greatest(total - amount_paid, 0)), 0),
		       count(*) FILTER (WHERE payment_state <> 'PAID' AND due_date < now()::date)
		FROM invoices
		WHERE status <> 'VOID'
		  AND invoice_date >= $1 AND invoice_date <= $2`,
		common.PGDate(from), common.PGDate(to)).
		Scan(&invoiced, &collected, &outstanding, &summary.Overdue)
	if err != nil {
		return Summary{}, err
	}
	summary.Invoiced = common.DecimalFromPG(invoiced)
	summary.Collected = common.DecimalFromPG(collected)
	summary.Outstanding = common.DecimalFromPG(outstanding)

	var expenses pgtype.Numeric
	err = s.Pool.QueryRow(ctx, `
		SELECT coalesce(sum(amount), 0)
		FROM expenses
		WHERE incurred_on >= $1 AND incurred_on <= $2`,
		common.PGDate(from), common.PGDate(to)).Scan(&expenses)
	if err != nil {
		return Summary{}, err
	}
	summary.Expenses = common.DecimalFromPG(expenses)
	summary.Net = summary.Collected.Sub(summary.Expenses)

	var coins pgtype.Numeric
	if err := s.Pool.QueryRow(ctx, `
		SELECT coalesce(sum(coin_balance), 0)
		FROM customers
		WHERE deleted_at IS NULL`).Scan(&coins); err != nil {
		return Summary{}, err
	}
	summary.CoinsHeld = common.DecimalFromPG(coins)
	return summary, nil
}
