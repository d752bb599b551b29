package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/medantara/backend-klinik/internal/common"
)

type memQuerier struct {
	users    map[string]UserRow // keyed by email
	sessions map[string]SessionRow
	resets   map[string]resetRow
}

type resetRow struct {
	userID    pgtype.UUID
	expiresAt time.Time
	used      bool
}

func newMemQuerier() *memQuerier {
	return &memQuerier{
		users:    map[string]UserRow{},
		sessions: map[string]SessionRow{},
		resets:   map[string]resetRow{},
	}
}

func (m *memQuerier) CreateUser(_ context.Context, name, email, hash string, roles []string) (UserRow, error) {
	if _, exists := m.users[email]; exists {
		return UserRow{}, &pgconn.PgError{Code: "23505"}
	}
	row := UserRow{
		ID:           pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Roles:        roles,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	m.users[email] = row
	return row, nil
}

func (m *memQuerier) GetUserByEmail(_ context.Context, email string) (UserRow, error) {
	row, ok := m.users[email]
	if !ok {
		return UserRow{}, pgx.ErrNoRows
	}
	return row, nil
}

func (m *memQuerier) GetUserByID(_ context.Context, id pgtype.UUID) (UserRow, error) {
	for _, row := range m.users {
		if row.ID == id {
			return row, nil
		}
	}
	return UserRow{}, pgx.ErrNoRows
}

func (m *memQuerier) UpdateUserPassword(_ context.Context, id pgtype.UUID, hash string) error {
	for email, row := range m.users {
		if row.ID == id {
			row.PasswordHash = hash
			m.users[email] = row
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *memQuerier) CreateSession(_ context.Context, userID pgtype.UUID, tokenHash, _, _ string, expiresAt time.Time) error {
	m.sessions[tokenHash] = SessionRow{
		ID:        pgtype.UUID{Bytes: uuid.New(), Valid: true},
		UserID:    userID,
		ExpiresAt: expiresAt,
	}
	return nil
}

func (m *memQuerier) GetSessionByToken(_ context.Context, tokenHash string) (SessionRow, error) {
	row, ok := m.sessions[tokenHash]
	if !ok {
		return SessionRow{}, pgx.ErrNoRows
	}
	return row, nil
}

func (m *memQuerier) RotateSessionToken(_ context.Context, id pgtype.UUID, tokenHash string, expiresAt time.Time) error {
	for hash, row := range m.sessions {
		if row.ID == id {
			delete(m.sessions, hash)
			row.ExpiresAt = expiresAt
			m.sessions[tokenHash] = row
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *memQuerier) DeleteSessionByToken(_ context.Context, tokenHash string) error {
	delete(m.sessions, tokenHash)
	return nil
}

func (m *memQuerier) DeleteSessionsByUser(_ context.Context, userID pgtype.UUID) error {
	for hash, row := range m.sessions {
		if row.UserID == userID {
			delete(m.sessions, hash)
		}
	}
	return nil
}

func (m *memQuerier) CreatePasswordReset(_ context.Context, userID pgtype.UUID, token string, expiresAt time.Time) error {
	m.resets[token] = resetRow{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memQuerier) ConsumePasswordReset(_ context.Context, token string) (pgtype.UUID, error) {
	row, ok := m.resets[token]
	if !ok || row.used || time.Now().After(row.expiresAt) {
		return pgtype.UUID{}, pgx.ErrNoRows
	}
	row.used = true
	m.resets[token] = row
	return row.userID, nil
}

func newTestService(t *testing.T) (*Service, *memQuerier) {
	t.Helper()
	q := newMemQuerier()
	svc, err := NewService(Config{
		Queries:         q,
		Secret:          "test-secret-test-secret-test-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	require.NoError(t, err)
	return svc, q
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "Dr. Admin", "Admin@Klinik.test", "supersecret", []string{"admin"})
	require.NoError(t, err)
	require.Equal(t, "admin@klinik.test", user.Email)
	require.Equal(t, []string{"admin"}, user.Roles)

	result, err := svc.Login(ctx, "admin@klinik.test", "supersecret", "tests", "127.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, result.AccessToken)
	require.NotEmpty(t, result.RefreshToken)

	subject, roles, err := svc.ParseAccessToken(result.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, subject)
	require.Equal(t, []string{"admin"}, roles)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Staff", "staff@klinik.test", "supersecret", nil)
	require.NoError(t, err)

	_, err = svc.Login(ctx, "staff@klinik.test", "wrong-password", "", "")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "INVALID_CREDENTIALS", appErr.Code)
	require.Equal(t, 401, appErr.HTTPStatus)
}

func TestRegisterDefaultsStaffRole(t *testing.T) {
	svc, _ := newTestService(t)

	user, err := svc.Register(context.Background(), "Staff", "staff@klinik.test", "supersecret", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"staff"}, user.Roles)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, q := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Staff", "staff@klinik.test", "supersecret", nil)
	require.NoError(t, err)
	login, err := svc.Login(ctx, "staff@klinik.test", "supersecret", "", "")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// the old token is spent
	_, err = svc.Refresh(ctx, login.RefreshToken)
	require.Error(t, err)

	// the rotated token still works
	_, err = svc.Refresh(ctx, refreshed.RefreshToken)
	require.NoError(t, err)
	require.Len(t, q.sessions, 1)
}

func TestRefreshRejectsExpiredSession(t *testing.T) {
	svc, q := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Staff", "staff@klinik.test", "supersecret", nil)
	require.NoError(t, err)
	login, err := svc.Login(ctx, "staff@klinik.test", "supersecret", "", "")
	require.NoError(t, err)

	hash := common.Sha256Hex(login.RefreshToken)
	session := q.sessions[hash]
	session.ExpiresAt = time.Now().Add(-time.Minute)
	q.sessions[hash] = session

	_, err = svc.Refresh(ctx, login.RefreshToken)
	require.Error(t, err)
	require.Empty(t, q.sessions, "expired session should be deleted")
}

func TestPasswordResetFlow(t *testing.T) {
	svc, q := newTestService(t)
	ctx := context.Background()
	mailer := &common.InMemoryEmail{}
	svc.mailer = mailer
	svc.resetBase = "https://console.klinik.test"

	_, err := svc.Register(ctx, "Staff", "staff@klinik.test", "supersecret", nil)
	require.NoError(t, err)
	login, err := svc.Login(ctx, "staff@klinik.test", "supersecret", "", "")
	require.NoError(t, err)

	require.NoError(t, svc.InitiatePasswordReset(ctx, "staff@klinik.test"))
	require.Len(t, q.resets, 1)

	var token string
	for k := range q.resets {
		token = k
	}
	require.NoError(t, svc.ResetPassword(ctx, token, "brand-new-pass"))

	// sessions are revoked and the old password no longer works
	_, err = svc.Refresh(ctx, login.RefreshToken)
	require.Error(t, err)
	_, err = svc.Login(ctx, "staff@klinik.test", "supersecret", "", "")
	require.Error(t, err)
	_, err = svc.Login(ctx, "staff@klinik.test", "brand-new-pass", "", "")
	require.NoError(t, err)

	// token is single use
	err = svc.ResetPassword(ctx, token, "another-pass")
	require.Error(t, err)
}

func TestInitiateResetUnknownEmailIsSilent(t *testing.T) {
	svc, q := newTestService(t)
	require.NoError(t, svc.InitiatePasswordReset(context.Background(), "nobody@klinik.test"))
	require.Empty(t, q.resets)
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Staff", "staff@klinik.test", "supersecret", nil)
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	svc.WithNow(func() time.Time { return past })
	login, err := svc.Login(ctx, "staff@klinik.test", "supersecret", "", "")
	require.NoError(t, err)

	svc.WithNow(time.Now)
	_, _, err = svc.ParseAccessToken(login.AccessToken)
	require.Error(t, err)
}

func TestParseAccessTokenRejectsGarbage(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.ParseAccessToken("not-a-token")
	require.Error(t, err)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Staff", "staff@klinik.test", "supersecret", nil)
	require.NoError(t, err)

	_, err = svc.Register(ctx, "Imposter", "staff@klinik.test", "supersecret", nil)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "EMAIL_ALREADY_USED", appErr.Code)
	require.Equal(t, 409, appErr.HTTPStatus)
}
