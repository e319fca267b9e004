package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var AccessTokenCookieName string = "access_token"

// OIDCConfig holds what the API needs to sign principals in through an
// external OpenID Connect provider.
type OIDCConfig struct {
	BaseUri     string
	LoginConfig oauth2.Config
	Verifier    *oidc.IDTokenVerifier
}

type OIDCSettings struct {
	ProviderURL  string
	RedirectURL  string
	ClientID     string
	ClientSecret string
	Retries      int
	RetryDelay   time.Duration
}

func BuildOIDCConfig(ctx context.Context, settings OIDCSettings) (*OIDCConfig, error) {
	provider, err := loadOIDCProvider(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("could not load OIDC configuration: %w", err)
	}

	config := &OIDCConfig{
		LoginConfig: oauth2.Config{
			ClientID:     settings.ClientID,
			ClientSecret: settings.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  settings.RedirectURL,
			Scopes:       []string{"profile", "email", oidc.ScopeOpenID},
		},
		Verifier: provider.Verifier(&oidc.Config{ClientID: settings.ClientID}),
		BaseUri:  settings.ProviderURL,
	}
	return config, nil
}

// TODO: Replace the fixed delay with exponential backoff
func loadOIDCProvider(ctx context.Context, settings OIDCSettings) (*oidc.Provider, error) {
	retries := settings.Retries
	if retries <= 0 {
		retries = 1
	}
	var provider *oidc.Provider
	var err error
	for i := 0; i < retries; i++ {
		provider, err = oidc.NewProvider(ctx, settings.ProviderURL)
		if err == nil {
			return provider, nil
		}
		slog.Warn("could not load OIDC config", "attempt", i+1, "url", settings.ProviderURL, "err", err)
		if i+1 < retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(settings.RetryDelay):
			}
		}
	}
	return nil, err
}

type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
}

// ExternalIdentity is what an external provider vouches for after a
// successful login.
type ExternalIdentity struct {
	Email string
	// EmailVerified is true only when the provider asserts email_verified.
	EmailVerified bool
}

// ExchangeCode trades an authorization code for tokens and returns the
// identity carried by the ID token.
func (c *OIDCConfig) ExchangeCode(ctx context.Context, code string, nonce string) (*ExternalIdentity, error) {
	token, err := c.LoginConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code-token exchange failed: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("token response has no id_token")
	}
	idToken, err := c.Verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("id_token verification failed: %w", err)
	}
	if idToken.Nonce != nonce {
		return nil, fmt.Errorf("id_token nonce mismatch")
	}

	claims := &idTokenClaims{}
	if err := idToken.Claims(claims); err != nil {
		return nil, fmt.Errorf("error reading id_token claims: %w", err)
	}
	return claims.identity()
}

func (c *idTokenClaims) identity() (*ExternalIdentity, error) {
	if c.Email == "" {
		return nil, fmt.Errorf("id_token has no email claim")
	}
	if c.EmailVerified != nil && !*c.EmailVerified {
		return nil, fmt.Errorf("email %s is not verified by the provider", c.Email)
	}
	return &ExternalIdentity{
		Email:         c.Email,
		EmailVerified: c.EmailVerified != nil,
	}, nil
}
