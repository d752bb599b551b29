package doctor

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

// Doctor is a practitioner that appointments are booked against.
type Doctor struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Specialty       string          `json:"specialty,omitempty"`
	ConsultationFee decimal.Decimal `json:"consultation_fee"`
	Active          bool            `json:"active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Input carries create/update fields for a doctor.
type Input struct {
	Name            string          `json:"name" validate:"required"`
	Specialty       string          `json:"specialty"`
	ConsultationFee decimal.Decimal `json:"consultation_fee"`
	Active          *bool           `json:"active"`
}

// Service manages doctor records.
type Service struct {
	Pool *pgxpool.Pool
}

const columns = `id, name, specialty, consultation_fee, active, created_at, updated_at`

// Create inserts a new doctor. Doctors start active unless stated
// otherwise.
func (s *Service) Create(ctx context.Context, in Input) (Doctor, error) {
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO doctors (name, specialty, consultation_fee, active)
		VALUES ($1, $2, $3, $4)
		RETURNING `+columns,
		strings.TrimSpace(in.Name), common.PGText(in.Specialty),
		common.PGNumeric(in.ConsultationFee), active)
	d, err := scanDoctor(row)
	if err != nil {
		return Doctor{}, fmt.Errorf("create doctor: %w", err)
	}
	return d, nil
}

// Update replaces the editable fields of a doctor.
func (s *Service) Update(ctx context.Context, id string, in Input) (Doctor, error) {
	uid, err := common.PGUUID(id)
	if err != nil {
		return Doctor{}, common.ErrNotFound("doctor")
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	row := s.Pool.QueryRow(ctx, `
		UPDATE doctors
		SET name = $2, specialty = $3, consultation_fee = $4, active = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+columns,
		uid, strings.TrimSpace(in.Name), common.PGText(in.Specialty),
		common.PGNumeric(in.ConsultationFee), active)
	d, err := scanDoctor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Doctor{}, common.ErrNotFound("doctor")
		}
		return Doctor{}, fmt.Errorf("update doctor: %w", err)
	}
	return d, nil
}

// Get fetches one doctor.
func (s *Service) Get(ctx context.Context, id string) (Doctor, error) {
	uid, err := common.PGUUID(id)
	if err != nil {
		return Doctor{}, common.ErrNotFound("doctor")
	}
	row := s.Pool.QueryRow(ctx, `SELECT `+columns+` FROM doctors WHERE id = $1`, uid)
	d, err := scanDoctor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Doctor{}, common.ErrNotFound("doctor")
		}
		return Doctor{}, fmt.Errorf("get doctor: %w", err)
	}
	return d, nil
}

// List returns a page of doctors. When activeOnly is set, inactive
// doctors are hidden; booking uses that path.
func (s *Service) List(ctx context.Context, activeOnly bool, limit, offset int32) ([]Doctor, int64, error) {
	where := "1=1"
	if activeOnly {
		where = "active"
	}
	var total int64
	if err := s.Pool.QueryRow(ctx,
		`SELECT count(*) FROM doctors WHERE `+where).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+columns+` FROM doctors
		WHERE `+where+`
		ORDER BY name
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Doctor, 0, limit)
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// Deactivate retires a doctor without touching historical
// appointments.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	uid, err := common.PGUUID(id)
	if err != nil {
		return common.ErrNotFound("doctor")
	}
	tag, err := s.Pool.Exec(ctx,
		`UPDATE doctors SET active = false, updated_at = now() WHERE id = $1`, uid)
	if err != nil {
		return fmt.Errorf("deactivate doctor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound("doctor")
	}
	return nil
}

func scanDoctor(row pgx.Row) (Doctor, error) {
	var d Doctor
	var id pgtype.UUID
	var specialty pgtype.Text
	var fee pgtype.Numeric
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&id, &d.Name, &specialty, &fee, &d.Active, &createdAt, &updatedAt); err != nil {
		return Doctor{}, err
	}
	d.ID = common.UUIDString(id)
	d.Specialty = common.TextString(specialty)
	d.ConsultationFee = common.DecimalFromPG(fee)
	d.CreatedAt = common.TimeFromPG(createdAt)
	d.UpdatedAt = common.TimeFromPG(updatedAt)
	return d, nil
}
