package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gren-lang/package-registry/internal/backoff"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, time.Second, cfg.WorkerPollInterval)
	assert.Equal(t, 5*time.Second, cfg.ReaperInterval)
	assert.Equal(t, time.Minute, cfg.JobRetention)
	assert.Equal(t, backoff.DefaultTable(), cfg.RetrySchedule)
	assert.Equal(t, 3*time.Second, cfg.GitListTimeout)
	assert.Equal(t, 10*time.Second, cfg.GitCloneTimeout)
	assert.Equal(t, 30*time.Second, cfg.CompilerTimeout)
	assert.Equal(t, "gren", cfg.GrenCompilerPath)
	assert.Equal(t, "packages", cfg.ZulipStream)
	assert.Equal(t, "registry.packages.imported", cfg.NATSSubject)
	assert.False(t, cfg.ZulipEnabled())
	assert.Equal(t, slog.LevelInfo, cfg.Log.Level)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("RETRY_SCHEDULE", "1s, 2s")
	t.Setenv("GIT_CLONE_TIMEOUT", "20s")
	t.Setenv("CANONICAL_URL", "https://packages.gren-lang.org/")
	t.Setenv("ZULIP_REALM", "https://gren.zulipchat.com")
	t.Setenv("ZULIP_USERNAME", "bot@gren.zulipchat.com")
	t.Setenv("ZULIP_APIKEY", "secret")
	t.Setenv("ARTIFACT_S3_PATH_STYLE", "true")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RATE_LIMIT_CAPACITY", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, backoff.Table{time.Second, 2 * time.Second}, cfg.RetrySchedule)
	assert.Equal(t, 20*time.Second, cfg.GitCloneTimeout)
	assert.Equal(t, "https://packages.gren-lang.org", cfg.CanonicalURL)
	assert.True(t, cfg.ZulipEnabled())
	assert.True(t, cfg.ArtifactS3PathStyle)
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	assert.Equal(t, 50, cfg.RateLimitCapacity, "unparsable values fall back to the default")
}

func TestLoadRejectsInvalidRetrySchedule(t *testing.T) {
	t.Setenv("RETRY_SCHEDULE", "5s,soon")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RETRY_SCHEDULE")
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("WORK_DIR=/srv/jobs\nHTTP_PORT=7000\n"), 0o644))
	t.Setenv("WORK_DIR", "")
	t.Setenv("HTTP_PORT", "7100")
	// t.Setenv restores WORK_DIR afterwards; godotenv skips keys that are
	// set at all, even to "".
	require.NoError(t, os.Unsetenv("WORK_DIR"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/jobs", cfg.WorkDir)
	assert.Equal(t, "7100", cfg.HTTPPort, "process environment wins over the file")
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
}
