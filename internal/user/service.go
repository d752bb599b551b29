package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medantara/backend-klinik/internal/common"
)

// KnownRoles enumerates the roles the console understands.
var KnownRoles = []string{"admin", "finance", "staff"}

// Account is a staff account without credential material.
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service manages staff accounts. Account creation goes through the
// auth module; this one handles listing and role assignment.
type Service struct {
	Pool *pgxpool.Pool
}

const columns = `id, name, email, roles, created_at, updated_at`

// List returns a page of staff accounts.
func (s *Service) List(ctx context.Context, limit, offset int32) ([]Account, int64, error) {
	var total int64
	if err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+columns+` FROM users
		ORDER BY name
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Account, 0, limit)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// Get fetches one staff account.
func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	uid, err := common.PGUUID(id)
	if err != nil {
		return Account{}, common.ErrNotFound("user")
	}
	row := s.Pool.QueryRow(ctx, `SELECT `+columns+` FROM users WHERE id = $1`, uid)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, common.ErrNotFound("user")
		}
		return Account{}, fmt.Errorf("get user: %w", err)
	}
	return a, nil
}

// UpdateRoles replaces a staff account's role set.
func (s *Service) UpdateRoles(ctx context.Context, id string, roles []string) (Account, error) {
	if len(roles) == 0 {
		return Account{}, common.ErrValidation("at least one role is required")
	}
	for _, role := range roles {
		if !knownRole(role) {
			return Account{}, common.ErrValidation("unknown role: " + role)
		}
	}
	uid, err := common.PGUUID(id)
	if err != nil {
		return Account{}, common.ErrNotFound("user")
	}
	row := s.Pool.QueryRow(ctx, `
		UPDATE users SET roles = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+columns, uid, roles)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, common.ErrNotFound("user")
		}
		return Account{}, fmt.Errorf("update roles: %w", err)
	}
	return a, nil
}

// Delete removes a staff account and its sessions.
func (s *Service) Delete(ctx context.Context, id string) error {
	uid, err := common.PGUUID(id)
	if err != nil {
		return common.ErrNotFound("user")
	}
	tag, err := s.Pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, uid)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound("user")
	}
	return nil
}

func knownRole(role string) bool {
	for _, known := range KnownRoles {
		if role == known {
			return true
		}
	}
	return false
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	var id pgtype.UUID
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&id, &a.Name, &a.Email, &a.Roles, &createdAt, &updatedAt); err != nil {
		return Account{}, err
	}
	a.ID = common.UUIDString(id)
	a.CreatedAt = common.TimeFromPG(createdAt)
	a.UpdatedAt = common.TimeFromPG(updatedAt)
	return a, nil
}
