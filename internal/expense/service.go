package expense

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/medantara/backend-klinik/internal/common"
)

// Expense is an operating cost entry used by the finance reports.
type Expense struct {
	ID         string          `json:"id"`
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	IncurredOn time.Time       `json:"incurred_on"`
	Note       string          `json:"note,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Input carries create/update fields for an expense.
type Input struct {
	Category   string          `json:"category" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
	IncurredOn time.Time       `json:"incurred_on"`
	Note       string          `json:"note"`
}

// CategoryTotal aggregates spending for one category in a period.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// Service manages expense entries.
type Service struct {
	Pool *pgxpool.Pool
	Now  func() time.Time
}

const columns = `id, category, amount, incurred_on, note, created_at, updated_at`

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Create inserts a new expense. A zero incurred date defaults to
// today.
func (s *Service) Create(ctx context.Context, in Input) (Expense, error) {
	if !in.Amount.IsPositive() {
		return Expense{}, common.ErrValidation("amount must be positive")
	}
	incurred := in.IncurredOn
	if incurred.IsZero() {
		incurred = s.now()
	}
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO expenses (category, amount, incurred_on, note)
		VALUES ($1, $2, $3, $4)
		RETURNING `+columns,
		strings.TrimSpace(in.Category), common.PGNumeric(in.Amount),
		common.PGDate(incurred), common.PGText(in.Note))
	e, err := scanExpense(row)
	if err != nil {
		return Expense{}, fmt.Errorf("create expense: %w", err)
	}
	return e, nil
}

// Update replaces an expense entry.
func (s *Service) Update(ctx context.Context, id string, in Input) (Expense, error) {
	if !in.Amount.IsPositive() {
		return Expense{}, common.ErrValidation("amount must be positive")
	}
	uid, err := common.PGUUID(id)
	if err != nil {
		return Expense{}, common.ErrNotFound("expense")
	}
	incurred := in.IncurredOn
	if incurred.IsZero() {
		incurred = s.now()
	}
	row := s.Pool.QueryRow(ctx, `
		UPDATE expenses
		SET category = $2, amount = $3, incurred_on = $4, note = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+columns,
		uid, strings.TrimSpace(in.Category), common.PGNumeric(in.Amount),
		common.PGDate(incurred), common.PGText(in.Note))
	e, err := scanExpense(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, common.ErrNotFound("expense")
		}
		return Expense{}, fmt.Errorf("update expense: %w", err)
	}
	return e, nil
}

// Delete removes an expense entry.
func (s *Service) Delete(ctx context.Context, id string) error {
	uid, err := common.PGUUID(id)
	if err != nil {
		return common.ErrNotFound("expense")
	}
	tag, err := s.Pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, uid)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound("expense")
	}
	return nil
}

// List returns expenses within the period, newest first.
func (s *Service) List(ctx context.Context, from, to time.Time, category string, limit, offset int32) ([]Expense, int64, error) {
	where := []string{"1=1"}
	args := []any{}
	if !from.IsZero() {
		args = append(args, common.PGDate(from))
		where = append(where, fmt.Sprintf("incurred_on >= $%d", len(args)))
	}
	if !to.IsZero() {
		args = append(args, common.PGDate(to))
		where = append(where, fmt.Sprintf("incurred_on <= $%d", len(args)))
	}
	if c := strings.TrimSpace(category); c != "" {
		args = append(args, c)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := s.Pool.QueryRow(ctx,
		`SELECT count(*) FROM expenses WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM expenses
		WHERE %s
		ORDER BY incurred_on DESC, created_at DESC
		LIMIT $%d OFFSET $%d`, columns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Expense, 0, limit)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// Totals aggregates spending by category within the period.
func (s *Service) Totals(ctx context.Context, from, to time.Time) ([]CategoryTotal, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT category, coalesce(sum(amount), 0)
		FROM expenses
		WHERE ($1::date IS NULL OR incurred_on >= $1)
		  AND ($2::date IS NULL OR incurred_on <= $2)
		GROUP BY category
		ORDER BY 2 DESC`,
		common.PGDate(from), common.PGDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CategoryTotal
	for rows.Next() {
		var ct CategoryTotal
		var total pgtype.Numeric
		if err := rows.Scan(&ct.Category, &total); err != nil {
			return nil, err
		}
		ct.Total = common.DecimalFromPG(total)
		out = append(out, ct)
	}
	return out, rows.Err()
}

func scanExpense(row pgx.Row) (Expense, error) {
	var e Expense
	var id pgtype.UUID
	var amount pgtype.Numeric
	var incurred pgtype.Date
	var note pgtype.Text
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&id, &e.Category, &amount, &incurred, &note, &createdAt, &updatedAt); err != nil {
		return Expense{}, err
	}
	e.ID = common.UUIDString(id)
	e.Amount = common.DecimalFromPG(amount)
	e.IncurredOn = common.DateFromPG(incurred)
	e.Note = common.TextString(note)
	e.CreatedAt = common.TimeFromPG(createdAt)
	e.UpdatedAt = common.TimeFromPG(updatedAt)
	return e, nil
}
