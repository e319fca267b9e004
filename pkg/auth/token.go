package auth

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwt"
)

const DefaultIssuer = "notes-api"

// Claims are the parts of a session token the API cares about.
type Claims struct {
	PrincipalID string
	SessionID   string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// TokenSigner issues and verifies HS256 session tokens.
type TokenSigner struct {
	key    []byte
	issuer string
	now    func() time.Time
}

func NewTokenSigner(key []byte, issuer string, now func() time.Time) *TokenSigner {
	if now == nil {
		now = time.Now
	}
	return &TokenSigner{key: key, issuer: issuer, now: now}
}

func (s *TokenSigner) Sign(claims Claims) (string, error) {
	token := jwt.New()
	values := map[string]interface{}{
		jwt.IssuerKey:     s.issuer,
		jwt.SubjectKey:    claims.PrincipalID,
		jwt.JwtIDKey:      claims.SessionID,
		jwt.IssuedAtKey:   claims.IssuedAt,
		jwt.ExpirationKey: claims.ExpiresAt,
	}
	for k, v := range values {
		if err := token.Set(k, v); err != nil {
			return "", fmt.Errorf("error setting claim %s: %w", k, err)
		}
	}

	signed, err := jwt.Sign(token, jwa.HS256, s.key)
	if err != nil {
		return "", fmt.Errorf("error signing token: %w", err)
	}
	return string(signed), nil
}

func (s *TokenSigner) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseString(tokenString,
		jwt.WithVerify(jwa.HS256, s.key),
		jwt.WithValidate(true),
		jwt.WithIssuer(s.issuer),
		jwt.WithClock(jwt.ClockFunc(s.now)),
	)
	if err != nil {
		return nil, err
	}

	claims := &Claims{
		PrincipalID: token.Subject(),
		SessionID:   token.JwtID(),
		IssuedAt:    token.IssuedAt(),
		ExpiresAt:   token.Expiration(),
	}
	if claims.PrincipalID == "" || claims.SessionID == "" {
		return nil, fmt.Errorf("token is missing sub or jti")
	}
	return claims, nil
}
