package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mrshanahan/notes-sync/pkg/notes"
	notesdb "github.com/mrshanahan/notes-sync/pkg/notes-db"
)

const (
	DefaultSessionTTL = 7 * 24 * time.Hour
	TokenType         = "bearer"
)

// Identity is the authenticated principal behind a request.
type Identity struct {
	Principal *notes.Principal
	SessionID string
}

// Authenticator is the identity service: it registers principals, exchanges
// credentials for sessions, and resolves bearer tokens back to principals.
type Authenticator struct {
	store      notesdb.Store
	signer     *TokenSigner
	ttl        time.Duration
	bcryptCost int
	now        func() time.Time
}

type Option func(*Authenticator)

func WithSessionTTL(ttl time.Duration) Option {
	return func(a *Authenticator) {
		a.ttl = ttl
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		a.now = now
	}
}

func WithBcryptCost(cost int) Option {
	return func(a *Authenticator) {
		a.bcryptCost = cost
	}
}

func NewAuthenticator(store notesdb.Store, secret []byte, opts ...Option) *Authenticator {
	a := &Authenticator{
		store:      store,
		ttl:        DefaultSessionTTL,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.signer = NewTokenSigner(secret, DefaultIssuer, a.now)
	return a
}

// SignUp registers a new principal. Registration is confirmed immediately.
func (a *Authenticator) SignUp(ctx context.Context, creds notes.Credentials) (*notes.Principal, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	hash, err := HashPassword(creds.Password, a.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}
	return a.store.CreatePrincipal(ctx, NormalizeEmail(creds.Email), hash)
}

func (a *Authenticator) SignIn(ctx context.Context, creds notes.Credentials) (*notes.SessionToken, error) {
	record, err := a.store.GetPrincipalByEmail(ctx, NormalizeEmail(creds.Email))
	if errors.Is(err, notes.ErrNotFound) {
		return nil, notes.ErrInvalidCredentials
	} else if err != nil {
		return nil, err
	}
	if !CheckPasswordHash(creds.Password, record.PasswordHash) {
		return nil, notes.ErrInvalidCredentials
	}
	return a.issueSession(ctx, &record.Principal)
}

// SignInExternal issues a session for a principal already authenticated by an
// external identity provider, registering it on first sight. An account with
// a password is only reachable this way when the provider verified the email.
func (a *Authenticator) SignInExternal(ctx context.Context, identity ExternalIdentity) (*notes.SessionToken, error) {
	email := NormalizeEmail(identity.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", notes.ErrValidation)
	}

	record, err := a.store.GetPrincipalByEmail(ctx, email)
	if err == nil {
		if record.PasswordHash != "" && !identity.EmailVerified {
			slog.Warn("refusing external sign-in for unverified email", "principalID", record.ID)
			return nil, fmt.Errorf("%w: email not verified by provider", notes.ErrUnauthenticated)
		}
		return a.issueSession(ctx, &record.Principal)
	} else if !errors.Is(err, notes.ErrNotFound) {
		return nil, err
	}

	principal, err := a.store.CreatePrincipal(ctx, email, "")
	if errors.Is(err, notes.ErrPrincipalExists) {
		// Lost a race with a concurrent first sign-in.
		record, err = a.store.GetPrincipalByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		principal = &record.Principal
	} else if err != nil {
		return nil, err
	}
	slog.Info("registered principal from external provider", "principalID", principal.ID)
	return a.issueSession(ctx, principal)
}

// Authenticate resolves a bearer token. Any problem with the token itself
// yields notes.ErrUnauthenticated; storage failures are returned as-is.
func (a *Authenticator) Authenticate(ctx context.Context, tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, notes.ErrUnauthenticated
	}
	claims, err := a.signer.Verify(tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", notes.ErrUnauthenticated, err)
	}

	session, err := a.store.GetSession(ctx, claims.SessionID)
	if errors.Is(err, notes.ErrNotFound) {
		return nil, fmt.Errorf("%w: session revoked", notes.ErrUnauthenticated)
	} else if err != nil {
		return nil, err
	}
	if session.PrincipalID != claims.PrincipalID {
		return nil, fmt.Errorf("%w: session does not match subject", notes.ErrUnauthenticated)
	}
	if session.Expired(a.now()) {
		return nil, fmt.Errorf("%w: session expired", notes.ErrUnauthenticated)
	}

	principal, err := a.store.GetPrincipal(ctx, session.PrincipalID)
	if errors.Is(err, notes.ErrNotFound) {
		return nil, fmt.Errorf("%w: principal no longer exists", notes.ErrUnauthenticated)
	} else if err != nil {
		return nil, err
	}
	return &Identity{Principal: principal, SessionID: session.ID}, nil
}

func (a *Authenticator) SignOut(ctx context.Context, sessionID string) error {
	return a.store.DeleteSession(ctx, sessionID)
}

// PruneSessions removes sessions past their expiry.
func (a *Authenticator) PruneSessions(ctx context.Context) (int64, error) {
	return a.store.DeleteExpiredSessions(ctx, a.now())
}

func (a *Authenticator) issueSession(ctx context.Context, principal *notes.Principal) (*notes.SessionToken, error) {
	// JWT timestamps have second resolution.
	now := a.now().UTC().Truncate(time.Second)
	session := &notesdb.Session{
		ID:          uuid.NewString(),
		PrincipalID: principal.ID,
		CreatedOn:   now,
		ExpiresOn:   now.Add(a.ttl),
	}

	token, err := a.signer.Sign(Claims{
		PrincipalID: session.PrincipalID,
		SessionID:   session.ID,
		IssuedAt:    session.CreatedOn,
		ExpiresAt:   session.ExpiresOn,
	})
	if err != nil {
		return nil, err
	}
	if err := a.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return &notes.SessionToken{
		AccessToken: token,
		TokenType:   TokenType,
		ExpiresAt:   session.ExpiresOn,
		User:        principal,
	}, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
