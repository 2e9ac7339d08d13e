package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workdora/waitlist-api/internal/log"
)

const envFileTestKey = "WAITLIST_ENV_FILE_CHECK"

func writeEnvFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "waitlist.env")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

// unsetForTest removes key for the duration of the test; godotenv only fills unset keys.
func unsetForTest(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestInitializeEnvFile_LoadsEnvFilePath(t *testing.T) {
	t.Setenv("SKIP_DOTENV", "")
	t.Setenv(EnvFileKey, writeEnvFile(t, envFileTestKey+"=from-file\n"))
	unsetForTest(t, envFileTestKey)

	InitializeEnvFile(log.NewLoggerWithJSONOutput())

	assert.Equal(t, "from-file", os.Getenv(envFileTestKey))
}

func TestInitializeEnvFile_KeepsProcessEnvironment(t *testing.T) {
	t.Setenv("SKIP_DOTENV", "")
	t.Setenv(EnvFileKey, writeEnvFile(t, envFileTestKey+"=from-file\n"))
	t.Setenv(envFileTestKey, "from-process")

	InitializeEnvFile(log.NewLoggerWithJSONOutput())

	assert.Equal(t, "from-process", os.Getenv(envFileTestKey))
}

func TestInitializeEnvFile_SkipDotenv(t *testing.T) {
	t.Setenv("SKIP_DOTENV", "true")
	t.Setenv(EnvFileKey, writeEnvFile(t, envFileTestKey+"=from-file\n"))
	unsetForTest(t, envFileTestKey)

	InitializeEnvFile(log.NewLoggerWithJSONOutput())

	_, found := os.LookupEnv(envFileTestKey)
	assert.False(t, found)
}

func TestInitializeEnvFile_MissingFileIsNotFatal(t *testing.T) {
	t.Setenv("SKIP_DOTENV", "")
	t.Setenv(EnvFileKey, filepath.Join(t.TempDir(), "absent.env"))
	unsetForTest(t, envFileTestKey)

	assert.NotPanics(t, func() { InitializeEnvFile(log.NewLoggerWithJSONOutput()) })

	_, found := os.LookupEnv(envFileTestKey)
	assert.False(t, found)
}

func TestGetAppEnv(t *testing.T) {
	t.Setenv(AppEnvKey, "  Production ")
	assert.Equal(t, "production", GetAppEnv())
}

func TestValidateAutoMigrateAllowed(t *testing.T) {
	for _, env := range []string{"", "dev", "development", "local", "test", "testing", "DEV", "  Local  "} {
		t.Run("allows "+env, func(t *testing.T) {
			assert.NoError(t, ValidateAutoMigrateAllowed(env))
		})
	}

	for _, env := range []string{"prod", "production", "staging", "preprod", " Production ", "qa"} {
		t.Run("rejects "+env, func(t *testing.T) {
			err := ValidateAutoMigrateAllowed(env)
			require.Error(t, err)
			assert.Contains(t, err.Error(), AppEnvKey)
		})
	}
}
