package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	NotesConfigDirectory     string        = path.Join(os.Getenv("HOME"), ".notes")
	DefaultPort              int           = 3333
	DefaultNotesDatabaseName string        = "notes.sqlite"
	DefaultMongoDatabase     string        = "notes"
	DefaultSessionTTL        time.Duration = 7 * 24 * time.Hour
	DefaultClientID          string        = "notes-api"
)

type Config struct {
	DBPath        string
	MongoURI      string
	MongoDatabase string
	Port          int
	SessionSecret []byte
	SessionTTL    time.Duration
	AllowOrigins  string

	AuthProviderURL string
	RedirectURL     string
	ClientID        string
	ClientSecret    string
}

func (c *Config) OIDCEnabled() bool {
	return c.AuthProviderURL != ""
}

// LoadDotEnv loads variables from the given files (default .env) without
// overriding anything already set. Missing files are not an error.
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, f := range filenames {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error loading %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the NOTES_API_* environment variables.
func Load(getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := &Config{
		MongoURI:        strings.TrimSpace(getenv("NOTES_API_MONGODB_URI")),
		MongoDatabase:   strings.TrimSpace(getenv("NOTES_API_MONGODB_DATABASE")),
		AllowOrigins:    strings.TrimSpace(getenv("NOTES_API_ALLOW_ORIGINS")),
		AuthProviderURL: strings.TrimSpace(getenv("NOTES_API_AUTH_PROVIDER_URL")),
		RedirectURL:     strings.TrimSpace(getenv("NOTES_API_REDIRECT_URL")),
		ClientID:        strings.TrimSpace(getenv("NOTES_API_CLIENT_ID")),
		ClientSecret:    getenv("NOTES_API_CLIENT_SECRET"),
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = DefaultMongoDatabase
	}

	dbPathDir := getenv("NOTES_API_DB_DIR")
	if dbPathDir == "" {
		dbPathDir = NotesConfigDirectory
		if cfg.MongoURI == "" {
			slog.Info("no path provided for DB; using default",
				"dir", dbPathDir)
		}
	} else {
		slog.Info("given DB directory", "dir", dbPathDir)
	}
	cfg.DBPath = path.Join(dbPathDir, DefaultNotesDatabaseName)

	portStr := getenv("NOTES_API_PORT")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = DefaultPort
		slog.Info("no valid port provided via NOTES_API_PORT, using default",
			"portStr", portStr,
			"defaultPort", port)
	} else {
		slog.Info("using custom port",
			"port", port)
	}
	cfg.Port = port

	ttlStr := getenv("NOTES_API_SESSION_TTL")
	cfg.SessionTTL = DefaultSessionTTL
	if ttlStr != "" {
		ttl, err := time.ParseDuration(ttlStr)
		if err != nil || ttl <= 0 {
			return nil, fmt.Errorf("invalid NOTES_API_SESSION_TTL %q", ttlStr)
		}
		cfg.SessionTTL = ttl
	}

	secret := getenv("NOTES_API_SESSION_SECRET")
	if secret == "" {
		slog.Warn("no NOTES_API_SESSION_SECRET provided; generating an ephemeral one - sessions will not survive a restart")
		random := make([]byte, 32)
		if _, err := rand.Read(random); err != nil {
			return nil, fmt.Errorf("error generating session secret: %w", err)
		}
		secret = hex.EncodeToString(random)
	} else if len(secret) < 32 {
		return nil, fmt.Errorf("NOTES_API_SESSION_SECRET must be at least 32 characters")
	}
	cfg.SessionSecret = []byte(secret)

	if cfg.OIDCEnabled() {
		if cfg.RedirectURL == "" {
			return nil, fmt.Errorf("NOTES_API_REDIRECT_URL is required when NOTES_API_AUTH_PROVIDER_URL is set")
		}
		if cfg.ClientID == "" {
			cfg.ClientID = DefaultClientID
		}
	}

	return cfg, nil
}
