package api

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gofiber/fiber/v2"

	"github.com/mrshanahan/notes-sync/pkg/auth"
	"github.com/mrshanahan/notes-sync/pkg/notes"
)

func (s *Server) SignUp(c *fiber.Ctx) error {
	creds := notes.Credentials{}
	if err := json.Unmarshal(c.Body(), &creds); err != nil {
		c.Status(fiber.StatusBadRequest)
		return c.SendString("invalid request body")
	}

	principal, err := s.auth.SignUp(c.UserContext(), creds)
	if err != nil {
		return respondError(c, err, "failed to register principal")
	}
	slog.Info("registered principal", "principalID", principal.ID)
	c.Status(fiber.StatusCreated)
	return c.JSON(principal)
}

func (s *Server) SignIn(c *fiber.Ctx) error {
	creds := notes.Credentials{}
	if err := json.Unmarshal(c.Body(), &creds); err != nil {
		c.Status(fiber.StatusBadRequest)
		return c.SendString("invalid request body")
	}

	session, err := s.auth.SignIn(c.UserContext(), creds)
	if err != nil {
		return respondError(c, err, "failed to sign in")
	}
	setSessionCookie(c, session)
	return c.JSON(session)
}

func (s *Server) SignOut(c *fiber.Ctx) error {
	identity := getIdentity(c)
	if err := s.auth.SignOut(c.UserContext(), identity.SessionID); err != nil {
		return respondError(c, err, "failed to revoke session",
			"principalID", identity.Principal.ID)
	}
	c.ClearCookie(TokenCookieName)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) CurrentUser(c *fiber.Ctx) error {
	return c.JSON(getIdentity(c).Principal)
}

// External identity provider

func (s *Server) createNonce() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	nonce := base64.RawURLEncoding.EncodeToString(randomBytes)
	s.nonceCache.Insert(nonce)
	return nonce, nil
}

func (s *Server) Login(c *fiber.Ctx) error {
	cameFromParam := c.Query("came_from")
	var cameFrom string
	if cameFromParam != "" {
		cameFromBytes, err := base64.URLEncoding.DecodeString(cameFromParam)
		if err == nil && isLocalRedirect(string(cameFromBytes)) {
			cameFrom = string(cameFromBytes)
		}
	}

	state := &auth.State{CameFrom: cameFrom}
	nonce, err := s.createNonce()
	if err != nil {
		return respondError(c, err, "failed to create login nonce")
	}
	stateParam, err := state.Encode(nonce)
	if err != nil {
		return respondError(c, err, "failed to encode login state")
	}

	url := s.oidc.LoginConfig.AuthCodeURL(stateParam, oidc.Nonce(nonce))
	return c.Redirect(url, fiber.StatusSeeOther)
}

func (s *Server) AuthCallback(c *fiber.Ctx) error {
	state, nonce, err := auth.ParseState(c.Query("state"))
	if err != nil {
		c.Status(fiber.StatusUnauthorized)
		return c.SendString("state is invalid: " + err.Error())
	}
	if _, ok := s.nonceCache.GetAndRemove(nonce); !ok {
		c.Status(fiber.StatusUnauthorized)
		return c.SendString("state is invalid: nonce not found in cache")
	}

	identity, err := s.oidc.ExchangeCode(c.UserContext(), c.Query("code"), nonce)
	if err != nil {
		slog.Warn("external sign-in failed", "err", err)
		c.Status(fiber.StatusUnauthorized)
		return c.SendString("external sign-in failed")
	}

	session, err := s.auth.SignInExternal(c.UserContext(), *identity)
	if err != nil {
		return respondError(c, err, "failed to sign in external principal")
	}
	setSessionCookie(c, session)

	if state.CameFrom != "" {
		return c.Redirect(state.CameFrom, fiber.StatusSeeOther)
	}
	return c.JSON(session)
}

func setSessionCookie(c *fiber.Ctx, session *notes.SessionToken) {
	c.Cookie(&fiber.Cookie{
		Name:     TokenCookieName,
		Value:    session.AccessToken,
		Expires:  session.ExpiresAt,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// Only same-origin paths are honored as post-login redirects.
func isLocalRedirect(target string) bool {
	return strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") && !strings.HasPrefix(target, "/\\")
}
