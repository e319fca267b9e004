package config

import (
	"os"
	"path"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(envFrom(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, path.Join(NotesConfigDirectory, DefaultNotesDatabaseName), cfg.DBPath)
	assert.Equal(t, DefaultSessionTTL, cfg.SessionTTL)
	assert.Len(t, cfg.SessionSecret, 64, "ephemeral secret is 32 random bytes, hex encoded")
	assert.Equal(t, DefaultMongoDatabase, cfg.MongoDatabase)
	assert.False(t, cfg.OIDCEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"
	cfg, err := Load(envFrom(map[string]string{
		"NOTES_API_DB_DIR":            "/var/lib/notes",
		"NOTES_API_PORT":              "8080",
		"NOTES_API_SESSION_SECRET":    secret,
		"NOTES_API_SESSION_TTL":       "12h",
		"NOTES_API_MONGODB_URI":       "mongodb://localhost:27017",
		"NOTES_API_MONGODB_DATABASE":  "notes_prod",
		"NOTES_API_AUTH_PROVIDER_URL": "https://id.example.com/realms/notes",
		"NOTES_API_REDIRECT_URL":      "https://notes.example.com/auth/callback",
	}))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/var/lib/notes/notes.sqlite", cfg.DBPath)
	assert.Equal(t, []byte(secret), cfg.SessionSecret)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoURI)
	assert.Equal(t, "notes_prod", cfg.MongoDatabase)
	assert.True(t, cfg.OIDCEnabled())
	assert.Equal(t, DefaultClientID, cfg.ClientID)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(envFrom(map[string]string{"NOTES_API_SESSION_SECRET": "short"}))
	assert.Error(t, err)

	_, err = Load(envFrom(map[string]string{"NOTES_API_SESSION_TTL": "forever"}))
	assert.Error(t, err)

	_, err = Load(envFrom(map[string]string{"NOTES_API_AUTH_PROVIDER_URL": "https://id.example.com"}))
	assert.Error(t, err, "redirect URL is required with a provider")
}

func TestLoad_AllowOrigins(t *testing.T) {
	cfg, err := Load(envFrom(map[string]string{"NOTES_API_ALLOW_ORIGINS": " * "}))
	require.NoError(t, err)
	assert.Equal(t, "*", cfg.AllowOrigins)

	cfg, err = Load(envFrom(map[string]string{"NOTES_API_ALLOW_ORIGINS": "https://a.example.com,https://b.example.com"}))
	require.NoError(t, err)
	assert.Equal(t, "https://a.example.com,https://b.example.com", cfg.AllowOrigins)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("NOTES_API_TEST_DOTENV=from-file\n"), 0600))

	t.Setenv("NOTES_API_TEST_DOTENV_EXISTING", "from-env")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.env"), []byte("NOTES_API_TEST_DOTENV_EXISTING=from-file\n"), 0600))

	require.NoError(t, LoadDotEnv(envFile, filepath.Join(dir, "other.env"), filepath.Join(dir, "missing.env")))
	t.Cleanup(func() { os.Unsetenv("NOTES_API_TEST_DOTENV") })

	assert.Equal(t, "from-file", os.Getenv("NOTES_API_TEST_DOTENV"))
	assert.Equal(t, "from-env", os.Getenv("NOTES_API_TEST_DOTENV_EXISTING"), "existing variables win")
}
