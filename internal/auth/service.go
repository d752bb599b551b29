package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lestrrat-go/jwx/v2/jwa"

	"github.com/medantara/backend-klinik/internal/common"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultResetTTL   = 2 * time.Hour
)

// UserRow is a staff account as stored.
type UserRow struct {
	ID           pgtype.UUID
	Name         string
	Email        string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionRow is a refresh session as stored. RefreshToken holds the
// hash, never the raw token.
type SessionRow struct {
	ID        pgtype.UUID
	UserID    pgtype.UUID
	ExpiresAt time.Time
}

// Querier is the persistence contract for accounts and sessions. The
// pgx implementation lives in store.go.
type Querier interface {
	CreateUser(ctx context.Context, name, email, passwordHash string, roles []string) (UserRow, error)
	GetUserByEmail(ctx context.Context, email string) (UserRow, error)
	GetUserByID(ctx context.Context, id pgtype.UUID) (UserRow, error)
	UpdateUserPassword(ctx context.Context, id pgtype.UUID, passwordHash string) error
	CreateSession(ctx context.Context, userID pgtype.UUID, tokenHash, userAgent, ip string, expiresAt time.Time) error
	GetSessionByToken(ctx context.Context, tokenHash string) (SessionRow, error)
	RotateSessionToken(ctx context.Context, id pgtype.UUID, tokenHash string, expiresAt time.Time) error
	DeleteSessionByToken(ctx context.Context, tokenHash string) error
	DeleteSessionsByUser(ctx context.Context, userID pgtype.UUID) error
	CreatePasswordReset(ctx context.Context, userID pgtype.UUID, token string, expiresAt time.Time) error
	ConsumePasswordReset(ctx context.Context, token string) (pgtype.UUID, error)
}

// User is the safe account representation returned to clients.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LoginResult bundles token material returned after a successful
// login.
type LoginResult struct {
	User          User      `json:"user"`
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	AccessExpiry  time.Time `json:"access_expires_at"`
	RefreshExpiry time.Time `json:"refresh_expires_at"`
}

// RefreshResult is the outcome of a token refresh.
type RefreshResult struct {
	AccessToken   string    `json:"access_token"`
	AccessExpiry  time.Time `json:"access_expires_at"`
	RefreshToken  string    `json:"refresh_token"`
	RefreshExpiry time.Time `json:"refresh_expires_at"`
}

// Service coordinates authentication, sessions and password
// management for console staff.
type Service struct {
	queries    Querier
	tokens     TokenCodec
	refreshTTL time.Duration
	resetTTL   time.Duration
	mailer     common.EmailSender
	resetBase  string
	now        func() time.Time
}

// Config configures the auth service.
type Config struct {
	Queries         Querier
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ResetTokenTTL   time.Duration
	Issuer          string
	Mailer          common.EmailSender
	ResetBaseURL    string
}

// NewService constructs a Service with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("auth: queries is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	resetTTL := cfg.ResetTokenTTL
	if resetTTL <= 0 {
		resetTTL = defaultResetTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "klinik-api"
	}
	return &Service{
		queries: cfg.Queries,
		tokens: TokenCodec{
			Secret:    []byte(secret),
			Issuer:    issuer,
			TTL:       accessTTL,
			Algorithm: jwa.HS256,
		},
		refreshTTL: refreshTTL,
		resetTTL:   resetTTL,
		mailer:     cfg.Mailer,
		resetBase:  strings.TrimRight(cfg.ResetBaseURL, "/"),
		now:        time.Now,
	}, nil
}

// WithNow lets tests override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Register creates a new staff account. The first registered role set
// is authoritative; role changes go through the user module.
func (s *Service) Register(ctx context.Context, name, email, password string, roles []string) (User, error) {
	if strings.TrimSpace(name) == "" {
		return User{}, common.ErrValidation("name is required")
	}
	normalized := strings.TrimSpace(strings.ToLower(email))
	if normalized == "" {
		return User{}, common.ErrValidation("email is required")
	}
	if len(password) < 8 {
		return User{}, common.ErrValidation("password must be at least 8 characters")
	}
	if len(roles) == 0 {
		roles = []string{"staff"}
	}

	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	created, err := s.queries.CreateUser(ctx, strings.TrimSpace(name), normalized, hash, roles)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, common.ErrConflict("EMAIL_ALREADY_USED", "email is already registered", err)
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return toUser(created), nil
}

// Login verifies credentials and issues a JWT plus refresh token.
func (s *Service) Login(ctx context.Context, email, password, userAgent, ip string) (LoginResult, error) {
	normalized := strings.TrimSpace(strings.ToLower(email))
	if normalized == "" || password == "" {
		return LoginResult{}, invalidCredentials()
	}
	row, err := s.queries.GetUserByEmail(ctx, normalized)
	if err != nil {
		return LoginResult{}, invalidCredentials()
	}
	ok, err := argon2id.ComparePasswordAndHash(password, row.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, invalidCredentials()
	}

	accessToken, accessExpiry, err := s.tokens.Sign(common.UUIDString(row.ID), row.Roles, s.now())
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}
	refreshToken, refreshExpiry, err := s.createSession(ctx, row.ID, userAgent, ip)
	if err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}
	return LoginResult{
		User:          toUser(row),
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		AccessExpiry:  accessExpiry,
		RefreshExpiry: refreshExpiry,
	}, nil
}

// Logout revokes the refresh session.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return nil
	}
	return s.queries.DeleteSessionByToken(ctx, common.Sha256Hex(token))
}

// Refresh validates and rotates a refresh token, issuing a fresh
// access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return RefreshResult{}, common.ErrUnauthorized()
	}
	hashed := common.Sha256Hex(token)
	session, err := s.queries.GetSessionByToken(ctx, hashed)
	if err != nil {
		return RefreshResult{}, common.ErrUnauthorized()
	}
	if s.now().After(session.ExpiresAt) {
		_ = s.queries.DeleteSessionByToken(ctx, hashed)
		return RefreshResult{}, common.ErrUnauthorized()
	}
	user, err := s.queries.GetUserByID(ctx, session.UserID)
	if err != nil {
		_ = s.queries.DeleteSessionByToken(ctx, hashed)
		return RefreshResult{}, common.ErrUnauthorized()
	}

	accessToken, accessExpiry, err := s.tokens.Sign(common.UUIDString(user.ID), user.Roles, s.now())
	if err != nil {
		return RefreshResult{}, fmt.Errorf("sign access token: %w", err)
	}
	newToken, err := randomToken(48)
	if err != nil {
		return RefreshResult{}, err
	}
	refreshExpiry := s.now().Add(s.refreshTTL)
	if err := s.queries.RotateSessionToken(ctx, session.ID, common.Sha256Hex(newToken), refreshExpiry); err != nil {
		_ = s.queries.DeleteSessionByToken(ctx, hashed)
		return RefreshResult{}, fmt.Errorf("rotate session: %w", err)
	}
	return RefreshResult{
		AccessToken:   accessToken,
		AccessExpiry:  accessExpiry,
		RefreshToken:  newToken,
		RefreshExpiry: refreshExpiry,
	}, nil
}

// Me fetches the authenticated account.
func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	id, err := common.PGUUID(userID)
	if err != nil {
		return User{}, common.ErrUnauthorized()
	}
	row, err := s.queries.GetUserByID(ctx, id)
	if err != nil {
		return User{}, common.ErrUnauthorized()
	}
	return toUser(row), nil
}

// InitiatePasswordReset creates a reset token and mails the link. The
// response never discloses whether the email exists.
func (s *Service) InitiatePasswordReset(ctx context.Context, email string) error {
	normalized := strings.TrimSpace(strings.ToLower(email))
	if normalized == "" {
		return nil
	}
	user, err := s.queries.GetUserByEmail(ctx, normalized)
	if err != nil {
		return nil
	}
	token, err := randomToken(32)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	if err := s.queries.CreatePasswordReset(ctx, user.ID, token, s.now().Add(s.resetTTL)); err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	if s.mailer == nil {
		return nil
	}
	link := fmt.Sprintf("%s/reset?token=%s", s.resetBase, token)
	return s.mailer.Send(user.Email, "Reset password", "Use this link to reset your password: "+link)
}

// ResetPassword consumes the token, updates the password and revokes
// every open session for the account.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(token) == "" {
		return common.NewAppError("INVALID_TOKEN", "invalid or expired token", http.StatusBadRequest, nil)
	}
	if len(newPassword) < 8 {
		return common.ErrValidation("password must be at least 8 characters")
	}
	userID, err := s.queries.ConsumePasswordReset(ctx, strings.TrimSpace(token))
	if err != nil {
		return common.NewAppError("INVALID_TOKEN", "invalid or expired token", http.StatusBadRequest, err)
	}
	hash, err := argon2id.CreateHash(newPassword, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.queries.UpdateUserPassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.queries.DeleteSessionsByUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// ParseAccessToken validates an access token and returns the subject
// and roles.
func (s *Service) ParseAccessToken(token string) (string, []string, error) {
	return s.tokens.Parse(token, s.now())
}

func (s *Service) createSession(ctx context.Context, userID pgtype.UUID, userAgent, ip string) (string, time.Time, error) {
	token, err := randomToken(48)
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := s.now().Add(s.refreshTTL)
	if err := s.queries.CreateSession(ctx, userID, common.Sha256Hex(token), userAgent, ip, expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func invalidCredentials() error {
	return common.NewAppError("INVALID_CREDENTIALS", "invalid email or password", http.StatusUnauthorized, nil)
}

func randomToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func toUser(row UserRow) User {
	return User{
		ID:        common.UUIDString(row.ID),
		Name:      row.Name,
		Email:     row.Email,
		Roles:     row.Roles,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
