package catalog

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

// ClinicService is a billable service in the clinic's catalog. Its
// price and tax rate seed invoice line items; invoices keep their own
// copy so later catalog edits never rewrite history.
type ClinicService struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Price           decimal.Decimal `json:"price"`
	TaxRatePercent  decimal.Decimal `json:"tax_rate"`
	DurationMinutes int             `json:"duration_minutes"`
	Active          bool            `json:"active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Input carries create/update fields for a catalog entry.
type Input struct {
	Name            string          `json:"name" validate:"required"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	TaxRatePercent  decimal.Decimal `json:"tax_rate" validate:"min=0,max=100"`
	DurationMinutes int             `json:"duration_minutes" validate:"min=0"`
	Active          *bool           `json:"active"`
}

// Service manages the clinic's service catalog with a read-through
// Redis cache over the listing.
type Service struct {
	Pool  *pgxpool.Pool
	Cache *Cache
}

type listPayload struct {
	Items []ClinicService `json:"items"`
	Total int64           `json:"total"`
}

const columns = `id, name, description, price, tax_rate_percent, duration_minutes, active, created_at, updated_at`

// List returns a page of catalog entries. Cache hits skip Postgres
// entirely; cache failures degrade to a direct read.
func (s *Service) List(ctx context.Context, activeOnly bool, limit, offset int32) ([]ClinicService, int64, error) {
	key := fmt.Sprintf("list:%t:%d:%d", activeOnly, limit, offset)
	var cached listPayload
	if hit, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached.Items, cached.Total, nil
	}

	where := "1=1"
	if activeOnly {
		where = "active"
	}
	var total int64
	if err := s.Pool.QueryRow(ctx,
		`SELECT count(*) FROM services WHERE `+where).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+columns+` FROM services
		WHERE `+where+`
		ORDER BY name
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]ClinicService, 0, limit)
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	_ = s.Cache.SetJSON(ctx, key, listPayload{Items: items, Total: total})
	return items, total, nil
}

// Get fetches one catalog entry.
func (s *Service) Get(ctx context.Context, id string) (ClinicService, error) {
	uid, err := common.PGUUID(id)
	if err != nil {
		return ClinicService{}, common.ErrNotFound("service")
	}
	row := s.Pool.QueryRow(ctx, `SELECT `+columns+` FROM services WHERE id = $1`, uid)
	svc, err := scanService(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ClinicService{}, common.ErrNotFound("service")
		}
		return ClinicService{}, fmt.Errorf("get service: %w", err)
	}
	return svc, nil
}

// Create inserts a new catalog entry and invalidates the listing
// cache.
func (s *Service) Create(ctx context.Context, in Input) (ClinicService, error) {
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO services (name, description, price, tax_rate_percent, duration_minutes, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+columns,
		strings.TrimSpace(in.Name), common.PGText(in.Description),
		common.PGNumeric(in.Price), common.PGNumeric(in.TaxRatePercent),
		in.DurationMinutes, active)
	svc, err := scanService(row)
	if err != nil {
		return ClinicService{}, fmt.Errorf("create service: %w", err)
	}
	_ = s.Cache.Invalidate(ctx)
	return svc, nil
}

// Update replaces a catalog entry and invalidates the listing cache.
func (s *Service) Update(ctx context.Context, id string, in Input) (ClinicService, error) {
	uid, err := common.PGUUID(id)
	if err != nil {
		return ClinicService{}, common.ErrNotFound("service")
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	row := s.Pool.QueryRow(ctx, `
		UPDATE services
		SET name = $2, description = $3, price = $4, tax_rate_percent = $5,
		    duration_minutes = $6, active = $7, updated_at = now()
		WHERE id = $1
		RETURNING `+columns,
		uid, strings.TrimSpace(in.Name), common.PGText(in.Description),
		common.PGNumeric(in.Price), common.PGNumeric(in.TaxRatePercent),
		in.DurationMinutes, active)
	svc, err := scanService(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ClinicService{}, common.ErrNotFound("service")
		}
		return ClinicService{}, fmt.Errorf("update service: %w", err)
	}
	_ = s.Cache.Invalidate(ctx)
	return svc, nil
}

// Deactivate hides a catalog entry from new invoices and
// appointments.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	uid, err := common.PGUUID(id)
	if err != nil {
		return common.ErrNotFound("service")
	}
	tag, err := s.Pool.Exec(ctx,
		`UPDATE services SET active = false, updated_at = now() WHERE id = $1`, uid)
	if err != nil {
		return fmt.Errorf("deactivate service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound("service")
	}
	_ = s.Cache.Invalidate(ctx)
	return nil
}

func scanService(row pgx.Row) (ClinicService, error) {
	var svc ClinicService
	var id pgtype.UUID
	var description pgtype.Text
	var price, taxRate pgtype.Numeric
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&id, &svc.Name, &description, &price, &taxRate,
		&svc.DurationMinutes, &svc.Active, &createdAt, &updatedAt); err != nil {
		return ClinicService{}, err
	}
	svc.ID = common.UUIDString(id)
	svc.Description = common.TextString(description)
	svc.Price = common.DecimalFromPG(price)
	svc.TaxRatePercent = common.DecimalFromPG(taxRate)
	svc.CreatedAt = common.TimeFromPG(createdAt)
	svc.UpdatedAt = common.TimeFromPG(updatedAt)
	return svc, nil
}
