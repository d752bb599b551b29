package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/medantara/backend-klinik/internal/common"
)

const rolesClaim = "roles"

// TokenCodec signs and validates HS256 access tokens carrying the
// account's roles.
type TokenCodec struct {
	Secret    []byte
	Issuer    string
	TTL       time.Duration
	Algorithm jwa.SignatureAlgorithm
}

// Sign issues an access token for the subject.
func (c TokenCodec) Sign(subject string, roles []string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(c.TTL)
	token, err := jwt.NewBuilder().
		Subject(subject).
		Issuer(c.Issuer).
		IssuedAt(now).
		Expiration(expiresAt).
		Claim(rolesClaim, roles).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(c.Algorithm, c.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

// Parse validates a token and returns the subject and roles. The
// algorithm is pinned: a token signed with anything but the configured
// algorithm is rejected before signature verification.
func (c TokenCodec) Parse(token string, now time.Time) (string, []string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", nil, common.ErrUnauthorized()
	}
	if err := c.checkAlgorithm(trimmed); err != nil {
		return "", nil, common.NewAppError("UNAUTHORIZED", "invalid token", 401, err)
	}
	parsed, err := jwt.ParseString(trimmed,
		jwt.WithKey(c.Algorithm, c.Secret),
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithIssuer(c.Issuer),
		jwt.WithValidate(true),
	)
	if err != nil {
		return "", nil, common.NewAppError("UNAUTHORIZED", "invalid token", 401, err)
	}
	return parsed.Subject(), extractRoles(parsed), nil
}

func (c TokenCodec) checkAlgorithm(token string) error {
	message, err := jws.ParseString(token)
	if err != nil {
		return err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return errors.New("token contains no signatures")
	}
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return errors.New("token missing protected headers")
		}
		alg := headers.Algorithm()
		switch {
		case alg == "", alg == jwa.NoSignature:
			return errors.New("token missing usable algorithm")
		case alg != c.Algorithm:
			return fmt.Errorf("unexpected token algorithm %s", alg)
		}
	}
	return nil
}

func extractRoles(token jwt.Token) []string {
	raw, ok := token.Get(rolesClaim)
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		roles := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				roles = append(roles, s)
			}
		}
		return roles
	}
	return nil
}
