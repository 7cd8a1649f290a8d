package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetForTest clears key for the duration of the test. Values written by
// godotenv bypass t.Setenv, so they are removed explicitly.
func unsetForTest(t *testing.T, key string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestLoadDotEnv_Missing(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	unsetForTest(t, "HARDCOVER_TOKEN")
	unsetForTest(t, "LIBRARY_FILE")

	envFile := writeFile(t, ".env", "HARDCOVER_TOKEN=dotenv-token\nLIBRARY_FILE=/tmp/dotenv.json\n")

	cfg, err := LoadWithEnvFile("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "dotenv-token", cfg.Hardcover.Token)
	assert.Equal(t, "/tmp/dotenv.json", cfg.Storage.Path)
}

func TestLoad_EnvironmentBeatsDotEnv(t *testing.T) {
	t.Setenv("HARDCOVER_TOKEN", "process-token")

	envFile := writeFile(t, ".env", "HARDCOVER_TOKEN=dotenv-token\n")

	cfg, err := LoadWithEnvFile("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "process-token", cfg.Hardcover.Token)
}

func TestWriteDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")

	require.NoError(t, WriteDotEnv(path, map[string]string{"HARDCOVER_TOKEN": "abc"}))
	require.NoError(t, WriteDotEnv(path, map[string]string{"LIBRARY_FILE": "./books.yaml"}))

	values, err := godotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"HARDCOVER_TOKEN": "abc",
		"LIBRARY_FILE":    "./books.yaml",
	}, values)

	require.NoError(t, WriteDotEnv(path, map[string]string{"HARDCOVER_TOKEN": "xyz"}))
	values, err = godotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "xyz", values["HARDCOVER_TOKEN"])
	assert.Equal(t, "./books.yaml", values["LIBRARY_FILE"])
}
