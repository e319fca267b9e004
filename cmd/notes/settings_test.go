package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveServer(t *testing.T) {
	env := func(values map[string]string) func(string) string {
		return func(key string) string { return values[key] }
	}
	fromFile := &settings{Server: "http://file:3333"}
	withEnv := env(map[string]string{ServerURLEnvVarKey: "http://env:3333"})

	assert.Equal(t, "http://flag:3333", resolveServer("http://flag:3333", withEnv, fromFile))
	assert.Equal(t, "http://env:3333", resolveServer("", withEnv, fromFile))
	assert.Equal(t, "http://file:3333", resolveServer("", env(nil), fromFile))
	assert.Equal(t, DefaultServerURL, resolveServer("", env(nil), &settings{}))
}

func TestSettings_SaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "notes")

	s, err := loadSettings(dir)
	require.NoError(t, err)
	assert.Equal(t, "", s.Server, "missing file yields empty settings")

	require.NoError(t, saveSettings(dir, &settings{Server: "https://notes.example.com"}))
	s, err = loadSettings(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://notes.example.com", s.Server)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("server: [unterminated"), 0600))
	_, err = loadSettings(dir)
	assert.Error(t, err)
}

func TestCLI_ConfigSetServer(t *testing.T) {
	dir := t.TempDir()
	root := newRootCmd(func(string) string { return "" })
	root.SetArgs([]string{"--config-dir", dir, "config", "set-server", "https://notes.example.com"})
	require.NoError(t, root.Execute())

	s, err := loadSettings(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://notes.example.com", s.Server)

	root = newRootCmd(func(string) string { return "" })
	root.SetArgs([]string{"--config-dir", dir, "config", "set-server", "not a url"})
	assert.Error(t, root.Execute())
}
