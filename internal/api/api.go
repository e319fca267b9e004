package api

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/yuin/goldmark"

	"github.com/mrshanahan/notes-sync/internal/cache"
	"github.com/mrshanahan/notes-sync/internal/middleware"
	"github.com/mrshanahan/notes-sync/pkg/auth"
	"github.com/mrshanahan/notes-sync/pkg/notes"
	notesdb "github.com/mrshanahan/notes-sync/pkg/notes-db"
)

var (
	TokenCookieName   string = auth.AccessTokenCookieName
	NoteLocalName     string = "note"
	IdentityLocalName string = "identity"
)

type Config struct {
	Store         notesdb.Store
	Authenticator *auth.Authenticator
	// OIDC enables /auth/login and /auth/callback when non-nil.
	OIDC         *auth.OIDCConfig
	AllowOrigins string
	// DisableAccessLog turns off per-request logging (used by tests).
	DisableAccessLog bool
}

type Server struct {
	store      notesdb.Store
	auth       *auth.Authenticator
	oidc       *auth.OIDCConfig
	nonceCache *cache.TimedCache[string]
	markdown   goldmark.Markdown
}

func hasWildcardOrigin(origins string) bool {
	for _, o := range strings.Split(origins, ",") {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

func New(cfg Config) *fiber.App {
	s := &Server{
		store:      cfg.Store,
		auth:       cfg.Authenticator,
		oidc:       cfg.OIDC,
		nonceCache: cache.NewTimedCache[string](5*time.Minute, 100),
		markdown:   goldmark.New(),
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(requestid.New(), recover.New())
	if !cfg.DisableAccessLog {
		app.Use(logger.New())
	}
	if cfg.AllowOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.AllowOrigins,
			// Credentialed requests need an explicit origin list; fiber
			// refuses to combine them with a wildcard.
			AllowCredentials: !hasWildcardOrigin(cfg.AllowOrigins),
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	requireSession := middleware.ValidateAccessToken(s.auth, IdentityLocalName, TokenCookieName)

	app.Route("/auth", func(authRoutes fiber.Router) {
		authRoutes.Post("/signup", s.SignUp)
		authRoutes.Post("/signin", s.SignIn)
		authRoutes.Post("/signout", requireSession, s.SignOut)
		authRoutes.Get("/user", requireSession, s.CurrentUser)
		if s.oidc != nil {
			authRoutes.Get("/login", s.Login)
			authRoutes.Get("/callback", s.AuthCallback)
		} else {
			slog.Info("no OIDC provider configured; skipping registration of external login endpoints")
		}
	})

	app.Route("/notes", func(notesRoutes fiber.Router) {
		notesRoutes.Use(requireSession)
		notesRoutes.Get("/", s.ListNotes)
		notesRoutes.Post("/", s.CreateNote)
		// Registered ahead of the note loader so deleting a missing note is
		// not a 404.
		notesRoutes.Delete("/:noteID", s.DeleteNote)
		notesRoutes.Route("/:noteID", func(note fiber.Router) {
			note.Use(middleware.LoadNoteFromRoute(s.store, IdentityLocalName, NoteLocalName, "noteID"))
			note.Get("/", s.GetNote)
			note.Patch("/", s.UpdateNote)
			note.Get("/content", s.GetNoteContent)
			note.Post("/content", s.UpdateNoteContent)
		})
	})

	return app
}

// respondError maps the error taxonomy onto status codes. Anything outside
// the taxonomy is logged and reported as a 500 with a generic message.
func respondError(c *fiber.Ctx, err error, msg string, args ...any) error {
	switch {
	case errors.Is(err, notes.ErrValidation):
		c.Status(fiber.StatusBadRequest)
		return c.SendString(err.Error())
	case errors.Is(err, notes.ErrNotFound):
		c.Status(fiber.StatusNotFound)
		return c.SendString(err.Error())
	case errors.Is(err, notes.ErrUnauthenticated), errors.Is(err, notes.ErrInvalidCredentials):
		c.Status(fiber.StatusUnauthorized)
		return c.SendString(err.Error())
	case errors.Is(err, notes.ErrPrincipalExists):
		c.Status(fiber.StatusConflict)
		return c.SendString(err.Error())
	}
	slog.Error(msg, append(args, "err", err)...)
	c.Status(fiber.StatusInternalServerError)
	return c.SendString(msg)
}

func getIdentity(c *fiber.Ctx) *auth.Identity {
	return middleware.IdentityFromContext(c, IdentityLocalName)
}

func getNoteFromContext(c *fiber.Ctx) *notes.Note {
	return middleware.NoteFromContext(c, NoteLocalName)
}
