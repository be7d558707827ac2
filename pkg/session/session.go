package session

import (
	"time"

	"tuliu-backend/pkg/config"
	"tuliu-backend/pkg/errutil"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"go.uber.org/fx"
)

var Module = fx.Module("session", fx.Provide(NewManager))

// Manager issues and verifies the signed session tokens carried in the
// session cookie.
type Manager struct {
	secret     []byte
	ttl        time.Duration
	CookieName string
}

func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		secret:     []byte(cfg.Session.Secret),
		ttl:        cfg.Session.TTL,
		CookieName: cfg.Session.Name,
	}
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func (m *Manager) Issue(accountID string) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: m.secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := jwt.Claims{
		Subject:  accountID,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(m.ttl)),
	}

	return jwt.Signed(signer).Claims(claims).Serialize()
}

// Verify returns the account ID carried by a valid token.
func (m *Manager) Verify(token string) (string, error) {
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return "", errutil.Unauthorized("invalid session token", errutil.WithErr(err))
	}

	var claims jwt.Claims
	if err := parsed.Claims(m.secret, &claims); err != nil {
		return "", errutil.Unauthorized("invalid session token", errutil.WithErr(err))
	}

	if err := claims.Validate(jwt.Expected{Time: time.Now()}); err != nil {
		return "", errutil.Unauthorized("session expired", errutil.WithErr(err))
	}

	return claims.Subject, nil
}
