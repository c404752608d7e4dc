package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dailypost/internal/constants"
	"dailypost/internal/models"
	pkgconstants "dailypost/pkg/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strongToken = "0123456789abcdef0123456789abcdef"

// isolateEnv blanks every variable the loader reads so the host environment
// cannot leak into a test.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"STORE_DRIVER", "REDIS_URL", "DB_PATH", "STORE_CONNECT_TIMEOUT_SEC", "STORE_RETRY_ATTEMPTS",
		"SCHEDULE_POLICY", "SCHEDULE_TICK_INTERVAL_SEC", "SCHEDULE_WORKERS", "DISPATCH_TIMEOUT_SEC",
		"TELEGRAM_API_URL", "TELEGRAM_TOKEN", "TELEGRAM_TIMEOUT_SEC",
		"TWITTER_API_URL", "TWITTER_UPLOAD_URL", "TWITTER_CLIENT_ID", "TWITTER_CLIENT_SECRET", "TWITTER_TIMEOUT_SEC",
		"MEDIA_DIR", "MEDIA_MAX_SIZE_MB", "MEDIA_MAX_IMAGE_DIMENSION", "MEDIA_STALE_HOURS",
		"PORT", "TRUST_PROXY_HEADERS", "DAILYPOST_API_TOKEN",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "TRACING_ENABLED", "LOG_LEVEL", EnvEnvironment,
	} {
		t.Setenv(key, "")
	}
	t.Setenv(EnvDotEnvFile, filepath.Join(t.TempDir(), "missing.env"))
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig_JSON(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, "config.json", `{
		"store": {"driver": "sqlite", "sqlite_path": "/data/queue.db"},
		"scheduler": {"policy": "catchup", "workers": 4},
		"media": {"cache_dir": "/var/cache/dailypost", "maxSizeMB": 5},
		"retry": {"initialBackoffMs": 1000, "maxBackoffMs": 5000, "maxAttempts": 4},
		"log_level": "warn"
	}`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, constants.StoreDriverSQLite, config.Store.Driver)
	assert.Equal(t, "/data/queue.db", config.Store.SQLitePath)
	assert.Equal(t, constants.SchedulePolicyCatchUp, config.Scheduler.Policy)
	assert.Equal(t, 4, config.Scheduler.Workers)
	assert.Equal(t, "/var/cache/dailypost", config.Media.CacheDir)
	assert.Equal(t, 5, config.Media.MaxSizeMB)
	assert.Equal(t, models.RetryConfig{InitialBackoffMs: 1000, MaxBackoffMs: 5000, MaxAttempts: 4}, config.Retry)
	assert.Equal(t, "warn", config.LogLevel)
}

func TestLoadConfig_YAML(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, "config.yaml", `
store:
  driver: redis
  redis_url: redis://cache:6379/2
scheduler:
  policy: exact
  tick_interval_sec: 30
server:
  port: 9090
  trust_proxy_headers: true
tracing:
  enabled: true
  use_stdout: true
  sample_rate: 0.5
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "redis://cache:6379/2", config.Store.RedisURL)
	assert.Equal(t, 30, config.Scheduler.TickIntervalSec)
	assert.Equal(t, 9090, config.Server.Port)
	assert.True(t, config.Server.TrustProxyHeaders)
	assert.True(t, config.Tracing.Enabled)
	assert.Equal(t, 0.5, config.Tracing.SampleRate)
	assert.Equal(t, "dailypost", config.Tracing.ServiceName)
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolateEnv(t)
	config, err := LoadConfig(writeConfig(t, "config.json", `{}`))
	require.NoError(t, err)

	assert.Equal(t, constants.StoreDriverRedis, config.Store.Driver)
	assert.Equal(t, constants.DefaultRedisURL, config.Store.RedisURL)
	assert.Equal(t, constants.DefaultStoreRetryAttempts, config.Store.RetryAttempts)
	assert.Equal(t, constants.SchedulePolicyExact, config.Scheduler.Policy)
	assert.Equal(t, constants.DefaultTickIntervalSec, config.Scheduler.TickIntervalSec)
	assert.Equal(t, constants.DefaultDispatchWorkers, config.Scheduler.Workers)
	assert.Equal(t, pkgconstants.DefaultTelegramAPIURL, config.Telegram.APIBaseURL)
	assert.Equal(t, pkgconstants.DefaultTwitterAPIURL, config.Twitter.APIBaseURL)
	assert.Equal(t, pkgconstants.DefaultTwitterUploadURL, config.Twitter.UploadURL)
	assert.Equal(t, constants.DefaultMediaCacheDir, config.Media.CacheDir)
	assert.Equal(t, constants.DefaultMaxAttachmentMB, config.Media.MaxSizeMB)
	assert.Equal(t, constants.DefaultServerPort, config.Server.Port)
	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, constants.DefaultTickIntervalSec, int(TickInterval(config).Seconds()))
	assert.Equal(t, constants.DefaultDispatchTimeoutS, int(DispatchTimeout(config).Seconds()))
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("SCHEDULE_WORKERS", "16")
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("TWITTER_CLIENT_ID", "client")
	t.Setenv("MEDIA_DIR", "/srv/media")
	t.Setenv("PORT", "8181")
	t.Setenv("LOG_LEVEL", "debug")

	config, err := LoadConfig(writeConfig(t, "config.json", `{"store": {"driver": "sqlite"}, "log_level": "info"}`))
	require.NoError(t, err)

	assert.Equal(t, constants.StoreDriverMemory, config.Store.Driver)
	assert.Equal(t, 16, config.Scheduler.Workers)
	assert.Equal(t, "123:abc", config.Telegram.Token)
	assert.Equal(t, "client", config.Twitter.ClientID)
	assert.Equal(t, "/srv/media", config.Media.CacheDir)
	assert.Equal(t, 8181, config.Server.Port)
	assert.Equal(t, "debug", config.LogLevel)
}

func TestLoadConfig_SecretsIgnoredInFile(t *testing.T) {
	isolateEnv(t)
	config, err := LoadConfig(writeConfig(t, "config.json", `{"telegram": {"Token": "from-file"}, "server": {"APIToken": "from-file"}}`))
	require.NoError(t, err)

	assert.Empty(t, config.Telegram.Token)
	assert.Empty(t, config.Server.APIToken)
}

func TestLoadConfig_DotEnvFile(t *testing.T) {
	isolateEnv(t)
	os.Unsetenv("MEDIA_STALE_HOURS")
	t.Cleanup(func() { os.Unsetenv("MEDIA_STALE_HOURS") })

	dotenv := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(dotenv, []byte("MEDIA_STALE_HOURS=6\n"), 0600))
	t.Setenv(EnvDotEnvFile, dotenv)

	config, err := LoadConfig(writeConfig(t, "config.json", `{}`))
	require.NoError(t, err)
	assert.Equal(t, 6, config.Media.StaleHours)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		env     map[string]string
		wantErr string
	}{
		{"malformed JSON", "config.json", `{"store": `, nil, "failed to parse JSON config"},
		{"malformed YAML", "config.yml", "store: [", nil, "failed to parse YAML config"},
		{"unknown driver", "config.json", `{"store": {"driver": "mongo"}}`, nil, "unknown store driver"},
		{"unknown policy", "config.json", `{"scheduler": {"policy": "hourly"}}`, nil, "unknown scheduler policy"},
		{"tick interval above a minute", "config.json", `{"scheduler": {"tickIntervalSec": 90}}`, nil, "at most 60 seconds"},
		{"bad port", "config.json", `{"server": {"port": 70000}}`, nil, "port out of range"},
		{"bad log level", "config.json", `{"log_level": "loud"}`, nil, "invalid log level"},
		{"traversal in media dir", "config.json", `{"media": {"cache_dir": "/tmp/../etc"}}`, nil, "invalid media cache directory"},
		{"bad tracing sample rate", "config.json", `{"tracing": {"enabled": true, "use_stdout": true, "sample_rate": 3}}`, nil, "sample_rate"},
		{"bad env value", "config.json", `{}`, map[string]string{"SCHEDULE_WORKERS": "many"}, "environment overrides"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(writeConfig(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_InvalidPath(t *testing.T) {
	isolateEnv(t)

	_, err := LoadConfig("../config.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config path")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestValidateSecurity(t *testing.T) {
	tests := []struct {
		name       string
		production bool
		token      string
		logLevel   string
		wantErr    string
	}{
		{"development without token", false, "", "debug", ""},
		{"production with strong token", true, strongToken, "info", ""},
		{"production without token", true, "", "info", "API token is required"},
		{"production with short token", true, "short", "info", "at least 32 characters"},
		{"production with debug logging", true, strongToken, "debug", "debug logging"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.production {
				t.Setenv(EnvEnvironment, "production")
			} else {
				t.Setenv(EnvEnvironment, "development")
			}
			err := validateSecurity(&models.Config{
				Server:   models.ServerConfig{APIToken: tt.token},
				LogLevel: tt.logLevel,
			})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
		})
	}
}
