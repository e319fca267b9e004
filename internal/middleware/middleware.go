package middleware

import (
	"errors"
	"log/slog"
	"regexp"

	"github.com/gofiber/fiber/v2"

	"github.com/mrshanahan/notes-sync/pkg/auth"
	"github.com/mrshanahan/notes-sync/pkg/notes"
	notesdb "github.com/mrshanahan/notes-sync/pkg/notes-db"
)

var bearerTokenPattern *regexp.Regexp = regexp.MustCompile(`^(?i:bearer)\s+(.*)$`)

// ValidateAccessToken resolves the bearer token (or, failing that, the token
// cookie) to an identity and stores it under localName.
func ValidateAccessToken(authenticator *auth.Authenticator, localName string, cookieName string) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var tokenStr string
		authHeaderValue := c.Get(fiber.HeaderAuthorization)
		if authHeaderValue == "" {
			// If no Authorization header, try cookie auth
			tokenStr = c.Cookies(cookieName)
		} else {
			match := bearerTokenPattern.FindStringSubmatch(authHeaderValue)
			if match == nil {
				return c.SendStatus(fiber.StatusUnauthorized)
			}
			tokenStr = match[1]
		}

		identity, err := authenticator.Authenticate(c.UserContext(), tokenStr)
		if errors.Is(err, notes.ErrUnauthenticated) {
			slog.Debug("rejected access token", "err", err)
			return c.SendStatus(fiber.StatusUnauthorized)
		} else if err != nil {
			slog.Error("failed to validate access token", "err", err)
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		c.Locals(localName, identity)
		return c.Next()
	}
}

// LoadNoteFromRoute loads the note named by the route parameter, scoped to the
// authenticated principal, and stores it under localName.
func LoadNoteFromRoute(store notesdb.Store, identityLocal string, localName string, param string) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		identity := IdentityFromContext(c, identityLocal)
		if identity == nil {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		id := c.Params(param)
		if id == "" {
			c.Status(fiber.StatusBadRequest)
			return c.SendString("invalid request")
		}
		found, err := store.GetNote(c.UserContext(), identity.Principal.ID, id)
		if errors.Is(err, notes.ErrNotFound) {
			c.Status(fiber.StatusNotFound)
			return c.SendString("no note with id: " + id)
		} else if err != nil {
			slog.Error("failed to execute query to retrieve note",
				"id", id,
				"err", err)
			c.Status(fiber.StatusInternalServerError)
			return c.SendString("failed to load note")
		}
		c.Locals(localName, found)
		return c.Next()
	}
}

func IdentityFromContext(c *fiber.Ctx, localName string) *auth.Identity {
	identity, _ := c.Locals(localName).(*auth.Identity)
	return identity
}

func NoteFromContext(c *fiber.Ctx, localName string) *notes.Note {
	note, _ := c.Locals(localName).(*notes.Note)
	return note
}
