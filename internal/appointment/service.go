package appointment

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
	"github.com/medantara/backend-klinik/internal/obs"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusNoShow    Status = "NO_SHOW"
)

// transitions lists the allowed moves out of each state. Terminal
// states have no entry.
var transitions = map[Status][]Status{
	StatusScheduled: {StatusConfirmed, StatusCancelled, StatusNoShow},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
}

// Appointment is a booked visit. Fee is snapshotted from the doctor
// and service at booking time so later price changes do not move it.
type Appointment struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customer_id"`
	Customer    string          `json:"customer_name,omitempty"`
	DoctorID    string          `json:"doctor_id"`
	Doctor      string          `json:"doctor_name,omitempty"`
	ServiceID   string          `json:"service_id,omitempty"`
	ServiceName string          `json:"service_name,omitempty"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	Status      Status          `json:"status"`
	Fee         decimal.Decimal `json:"fee"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Input carries booking fields.
type Input struct {
	CustomerID  string    `json:"customer_id" validate:"required,uuid4"`
	DoctorID    string    `json:"doctor_id" validate:"required,uuid4"`
	ServiceID   string    `json:"service_id" validate:"omitempty,uuid4"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Notes       string    `json:"notes"`
}

// ListFilter narrows appointment listings.
type ListFilter struct {
	CustomerID string
	DoctorID   string
	Status     Status
	From       time.Time
	To         time.Time
	Limit      int32
	Offset     int32
}

// Service manages appointment booking and its status machine.
type Service struct {
	Pool *pgxpool.Pool
	Now  func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

const columns = `
	a.id, a.customer_id, c.name, a.doctor_id, d.name, a.service_id, sv.name,
	a.scheduled_at, a.status, a.fee, a.notes, a.created_at, a.updated_at`

const fromClause = `
	FROM appointments a
	JOIN customers c ON c.id = a.customer_id
	JOIN doctors d ON d.id = a.doctor_id
	LEFT JOIN services sv ON sv.id = a.service_id`

// Book creates a new appointment. The fee snapshot is the doctor's
// consultation fee plus the chosen service's price.
func (s *Service) Book(ctx context.Context, in Input) (Appointment, error) {
	if in.ScheduledAt.Before(s.now()) {
		return Appointment{}, common.ErrValidation("scheduled_at must be in the future")
	}
	customerID, err := common.PGUUID(in.CustomerID)
	if err != nil {
		return Appointment{}, common.ErrValidation("customer_id must be a valid uuid")
	}
	doctorID, err := common.PGUUID(in.DoctorID)
	if err != nil {
		return Appointment{}, common.ErrValidation("doctor_id must be a valid uuid")
	}

	var fee pgtype.Numeric
	if err := s.Pool.QueryRow(ctx, `
		SELECT consultation_fee FROM doctors
		WHERE id = $1 AND active`, doctorID).Scan(&fee); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appointment{}, common.ErrNotFound("doctor")
		}
		return Appointment{}, err
	}
	total := common.DecimalFromPG(fee)

	serviceID := pgtype.UUID{}
	if strings.TrimSpace(in.ServiceID) != "" {
		serviceID, err = common.PGUUID(in.ServiceID)
		if err != nil {
			return Appointment{}, common.ErrValidation("service_id must be a valid uuid")
		}
		var price pgtype.Numeric
		if err := s.Pool.QueryRow(ctx, `
			SELECT price FROM services
			WHERE id = $1 AND active`, serviceID).Scan(&price); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Appointment{}, common.ErrNotFound("service")
			}
			return Appointment{}, err
		}
		total = total.Add(common.DecimalFromPG(price))
	}

	var id pgtype.UUID
	err = s.Pool.QueryRow(ctx, `
		INSERT INTO appointments (customer_id, doctor_id, service_id, scheduled_at, status, fee, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		customerID, doctorID, serviceID, common.PGTimestamp(in.ScheduledAt),
		StatusScheduled, common.PGNumeric(total), common.PGText(in.Notes)).Scan(&id)
	if err != nil {
		return Appointment{}, fmt.Errorf("book appointment: %w", err)
	}
	if obs.AppointmentsTotal != nil {
		obs.AppointmentsTotal.WithLabelValues(string(StatusScheduled)).Inc()
	}
	return s.get(ctx, id)
}

// Get fetches one appointment.
func (s *Service) Get(ctx context.Context, id string) (Appointment, error) {
	uid, err := common.PGUUID(id)
	if err != nil {
		return Appointment{}, common.ErrNotFound("appointment")
	}
	return s.get(ctx, uid)
}

// List returns a page of appointments matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Appointment, int64, error) {
	where := []string{"1=1"}
	args := []any{}
	addUUID := func(col, value string) error {
		if value == "" {
			return nil
		}
		uid, err := common.PGUUID(value)
		if err != nil {
			return common.ErrValidation(col + " must be a valid uuid")
		}
		args = append(args, uid)
		where = append(where, fmt.Sprintf("a.%s = $%d", col, len(args)))
		return nil
	}
	if err := addUUID("customer_id", filter.CustomerID); err != nil {
		return nil, 0, err
	}
	if err := addUUID("doctor_id", filter.DoctorID); err != nil {
		return nil, 0, err
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("a.status = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, common.PGTimestamp(filter.From))
		where = append(where, fmt.Sprintf("a.scheduled_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, common.PGTimestamp(filter.To))
		where = append(where, fmt.Sprintf("a.scheduled_at < $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := s.Pool.QueryRow(ctx,
		`SELECT count(*) FROM appointments a WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset)
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(`
		SELECT %s %s
		WHERE %s
		ORDER BY a.scheduled_at
		LIMIT $%d OFFSET $%d`, columns, fromClause, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Appointment, 0, filter.Limit)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// Transition moves an appointment to a new status, enforcing the
// state machine.
func (s *Service) Transition(ctx context.Context, id string, target Status) (Appointment, error) {
	uid, err := common.PGUUID(id)
	if err != nil {
		return Appointment{}, common.ErrNotFound("appointment")
	}
	current, err := s.get(ctx, uid)
	if err != nil {
		return Appointment{}, err
	}
	if !allowed(current.Status, target) {
		return Appointment{}, common.ErrConflict("INVALID_TRANSITION",
			fmt.Sprintf("cannot move appointment from %s to %s", current.Status, target), nil)
	}
	_, err = s.Pool.Exec(ctx, `
		UPDATE appointments SET status = $2, updated_at = now()
		WHERE id = $1`, uid, target)
	if err != nil {
		return Appointment{}, fmt.Errorf("transition appointment: %w", err)
	}
	if obs.AppointmentsTotal != nil {
		obs.AppointmentsTotal.WithLabelValues(string(target)).Inc()
	}
	return s.get(ctx, uid)
}

// Reschedule moves the visit to a new slot. Completed or cancelled
// appointments stay where they are.
func (s *Service) Reschedule(ctx context.Context, id string, at time.Time) (Appointment, error) {
	if at.Before(s.now()) {
		return Appointment{}, common.ErrValidation("scheduled_at must be in the future")
	}
	uid, err := common.PGUUID(id)
	if err != nil {
		return Appointment{}, common.ErrNotFound("appointment")
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE appointments SET scheduled_at = $2, updated_at = now()
		WHERE id = $1 AND status IN ('SCHEDULED', 'CONFIRMED')`,
		uid, common.PGTimestamp(at))
	if err != nil {
		return Appointment{}, fmt.Errorf("reschedule appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Appointment{}, common.ErrConflict("INVALID_TRANSITION",
			"only scheduled or confirmed appointments can be rescheduled", nil)
	}
	return s.get(ctx, uid)
}

func (s *Service) get(ctx context.Context, id pgtype.UUID) (Appointment, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+columns+fromClause+` WHERE a.id = $1`, id)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appointment{}, common.ErrNotFound("appointment")
		}
		return Appointment{}, err
	}
	return a, nil
}

// Allowed reports whether the status machine permits the move.
func allowed(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// KnownStatus reports whether the value names a real status.
func KnownStatus(s Status) bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func scanAppointment(row pgx.Row) (Appointment, error) {
	var a Appointment
	var id, customerID, doctorID pgtype.UUID
	var serviceID pgtype.UUID
	var serviceName, notes pgtype.Text
	var scheduledAt, createdAt, updatedAt pgtype.Timestamptz
	var fee pgtype.Numeric
	if err := row.Scan(&id, &customerID, &a.Customer, &doctorID, &a.Doctor,
		&serviceID, &serviceName, &scheduledAt, &a.Status, &fee, &notes,
		&createdAt, &updatedAt); err != nil {
		return Appointment{}, err
	}
	a.ID = common.UUIDString(id)
	a.CustomerID = common.UUIDString(customerID)
	a.DoctorID = common.UUIDString(doctorID)
	a.ServiceID = common.UUIDString(serviceID)
	a.ServiceName = common.TextString(serviceName)
	a.ScheduledAt = common.TimeFromPG(scheduledAt)
	a.Fee = common.DecimalFromPG(fee)
	a.Notes = common.TextString(notes)
	a.CreatedAt = common.TimeFromPG(createdAt)
	a.UpdatedAt = common.TimeFromPG(updatedAt)
	return a, nil
}
