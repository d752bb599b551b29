package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medantara/backend-klinik/internal/common"
)

// PGStore is the pgx-backed Querier.
type PGStore struct {
	Pool *pgxpool.Pool
}

var _ Querier = (*PGStore)(nil)

const userColumns = `id, name, email, password_hash, roles, created_at, updated_at`

func (s *PGStore) CreateUser(ctx context.Context, name, email, passwordHash string, roles []string) (UserRow, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, roles)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		name, email, passwordHash, roles)
	return scanUser(row)
}

func (s *PGStore) GetUserByEmail(ctx context.Context, email string) (UserRow, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (s *PGStore) GetUserByID(ctx context.Context, id pgtype.UUID) (UserRow, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *PGStore) UpdateUserPassword(ctx context.Context, id pgtype.UUID, passwordHash string) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id, passwordHash)
	return err
}

func (s *PGStore) CreateSession(ctx context.Context, userID pgtype.UUID, tokenHash, userAgent, ip string, expiresAt time.Time) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO sessions (user_id, refresh_token, user_agent, ip, expires_at)
		VALUES ($1, $2, $3, $4, $5)`,
		userID, tokenHash, common.PGText(userAgent), common.PGText(ip),
		common.PGTimestamp(expiresAt))
	return err
}

func (s *PGStore) GetSessionByToken(ctx context.Context, tokenHash string) (SessionRow, error) {
	var session SessionRow
	var expiresAt pgtype.Timestamptz
	err := s.Pool.QueryRow(ctx, `
		SELECT id, user_id, expires_at
		FROM sessions
		WHERE refresh_token = $1`, tokenHash).
		Scan(&session.ID, &session.UserID, &expiresAt)
	if err != nil {
		return SessionRow{}, err
	}
	session.ExpiresAt = common.TimeFromPG(expiresAt)
	return session, nil
}

func (s *PGStore) RotateSessionToken(ctx context.Context, id pgtype.UUID, tokenHash string, expiresAt time.Time) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE sessions SET refresh_token = $2, expires_at = $3
		WHERE id = $1`,
		id, tokenHash, common.PGTimestamp(expiresAt))
	return err
}

func (s *PGStore) DeleteSessionByToken(ctx context.Context, tokenHash string) error {
	_, err := s.Pool.Exec(ctx,
		`DELETE FROM sessions WHERE refresh_token = $1`, tokenHash)
	return err
}

func (s *PGStore) DeleteSessionsByUser(ctx context.Context, userID pgtype.UUID) error {
	_, err := s.Pool.Exec(ctx,
		`DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

func (s *PGStore) CreatePasswordReset(ctx context.Context, userID pgtype.UUID, token string, expiresAt time.Time) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO password_resets (user_id, token, expires_at)
		VALUES ($1, $2, $3)`,
		userID, token, common.PGTimestamp(expiresAt))
	return err
}

// ConsumePasswordReset marks the token used and returns its owner in
// one statement so a token can never be redeemed twice.
func (s *PGStore) ConsumePasswordReset(ctx context.Context, token string) (pgtype.UUID, error) {
	var userID pgtype.UUID
	err := s.Pool.QueryRow(ctx, `
		UPDATE password_resets
		SET used_at = now()
		WHERE token = $1 AND used_at IS NULL AND expires_at > now()
		RETURNING user_id`, token).Scan(&userID)
	return userID, err
}

func scanUser(row pgx.Row) (UserRow, error) {
	var u UserRow
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Roles, &createdAt, &updatedAt); err != nil {
		return UserRow{}, err
	}
	u.CreatedAt = common.TimeFromPG(createdAt)
	u.UpdatedAt = common.TimeFromPG(updatedAt)
	return u, nil
}
