package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/mrshanahan/notes-sync/internal/api"
	"github.com/mrshanahan/notes-sync/internal/config"
	"github.com/mrshanahan/notes-sync/internal/utils"
	"github.com/mrshanahan/notes-sync/pkg/auth"
	notesdb "github.com/mrshanahan/notes-sync/pkg/notes-db"
)

const sessionPruneInterval = time.Hour

func main() {
	exitCode := Run()
	os.Exit(exitCode)
}

func Run() int {
	if len(os.Args) > 1 && utils.Any(os.Args[1:], func(x string) bool { return x == "-h" || x == "--help" || x == "-?" }) {
		printHelp()
		return 0
	}

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env file", "err", err)
		return 1
	}
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize store", "err", err)
		return 1
	}
	defer store.Close()

	authenticator := auth.NewAuthenticator(store, cfg.SessionSecret, auth.WithSessionTTL(cfg.SessionTTL))

	var oidcConfig *auth.OIDCConfig
	if cfg.OIDCEnabled() {
		oidcConfig, err = auth.BuildOIDCConfig(ctx, auth.OIDCSettings{
			ProviderURL:  cfg.AuthProviderURL,
			RedirectURL:  cfg.RedirectURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Retries:      5,
			RetryDelay:   3 * time.Second,
		})
		if err != nil {
			slog.Error("failed to initialize external auth provider",
				"url", cfg.AuthProviderURL,
				"err", err)
			return 1
		}
	} else {
		slog.Info("NOTES_API_AUTH_PROVIDER_URL not set; external login disabled")
	}

	go pruneSessions(ctx, authenticator)

	app := api.New(api.Config{
		Store:         store,
		Authenticator: authenticator,
		OIDC:          oidcConfig,
		AllowOrigins:  cfg.AllowOrigins,
	})

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			slog.Error("failed to shut down HTTP server", "err", err)
		}
	}()

	slog.Info("listening for requests", "port", cfg.Port)
	if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		slog.Error("failed to initialize HTTP server",
			"err", err)
		return 1
	}
	return 0
}

func openStore(ctx context.Context, cfg *config.Config) (notesdb.Store, error) {
	if cfg.MongoURI != "" {
		slog.Info("using MongoDB store", "database", cfg.MongoDatabase)
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return notesdb.ConnectMongo(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
	}

	dbDir := path.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0777); err != nil {
		return nil, fmt.Errorf("failed to create notes DB directory %s: %w", dbDir, err)
	}
	if _, err := os.Stat(cfg.DBPath); err != nil && errors.Is(err, os.ErrNotExist) {
		slog.Info("DB does not exist; it will be created during initialization",
			"path", cfg.DBPath)
	}
	return notesdb.Initialize(cfg.DBPath)
}

func pruneSessions(ctx context.Context, authenticator *auth.Authenticator) {
	ticker := time.NewTicker(sessionPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := authenticator.PruneSessions(ctx)
			if err != nil {
				slog.Warn("failed to prune expired sessions", "err", err)
			} else if n > 0 {
				slog.Info("pruned expired sessions", "count", n)
			}
		}
	}
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `
notes-api [-h|--help|-?]

OPTIONS:
	-h|--help|-?	Display this help message and exit

ENVIRONMENT VARIABLES (also read from ./.env):
	NOTES_API_DB_DIR:            (optional) Path to directory where notes.sqlite is located (default: %s)
	NOTES_API_PORT:              (optional) Port on which API should be hosted (default: %d)
	NOTES_API_MONGODB_URI:       (optional) Use MongoDB instead of SQLite
	NOTES_API_MONGODB_DATABASE:  (optional) MongoDB database name (default: %s)
	NOTES_API_SESSION_SECRET:    (recommended) Key for signing session tokens, at least 32 characters
	NOTES_API_SESSION_TTL:       (optional) Session lifetime (default: %s)
	NOTES_API_ALLOW_ORIGINS:     (optional) Comma-separated CORS origins
	NOTES_API_AUTH_PROVIDER_URL: (optional) Base URL of an OIDC provider for external login
	NOTES_API_REDIRECT_URL:      (required with provider) OAuth2 redirect URL (.../auth/callback)
	NOTES_API_CLIENT_ID:         (optional) OAuth2 client ID (default: %s)
	NOTES_API_CLIENT_SECRET:     (optional) OAuth2 client secret
`,
		config.NotesConfigDirectory,
		config.DefaultPort,
		config.DefaultMongoDatabase,
		config.DefaultSessionTTL,
		config.DefaultClientID)
}
