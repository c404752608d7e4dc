// Package config loads the service configuration from a JSON or YAML file,
// a .env file and the environment.
package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dailypost/internal/constants"
	"dailypost/internal/models"
	"dailypost/internal/security"
	"dailypost/internal/tracing"
	pkgconstants "dailypost/pkg/constants"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment variables read outside the config structs
const (
	EnvEnvironment = "DAILYPOST_ENV"
	EnvDotEnvFile  = "DAILYPOST_DOTENV"
)

var (
	ErrUnknownStoreDriver = models.ConfigError{Message: "unknown store driver (want redis, sqlite or memory)"}
	ErrUnknownPolicy      = models.ConfigError{Message: "unknown scheduler policy (want exact or catchup)"}
	ErrMissingMediaDir    = models.ConfigError{Message: "missing media cache directory"}
)

// IsProduction reports whether the service runs in production mode
func IsProduction() bool {
	return os.Getenv(EnvEnvironment) == "production"
}

// LoadConfig reads path, applies environment overrides and defaults, and
// validates the result.
func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := decode(path, file, &config); err != nil {
		return nil, err
	}

	if err := applyEnvironmentOverrides(&config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func decode(path string, data []byte, config *models.Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}
	return nil
}

// applyEnvironmentOverrides loads the optional .env file and then lets any
// set environment variable override the file. Secrets only come from here.
func applyEnvironmentOverrides(c *models.Config) error {
	dotenv := os.Getenv(EnvDotEnvFile)
	if dotenv == "" {
		dotenv = ".env"
	}
	if err := godotenv.Load(dotenv); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", dotenv, err)
	}

	if err := env.Parse(c); err != nil {
		return fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	return nil
}

func validate(c *models.Config) error {
	if c.Store.Driver == "" {
		c.Store.Driver = constants.StoreDriverRedis
	}
	switch c.Store.Driver {
	case constants.StoreDriverRedis:
		if c.Store.RedisURL == "" {
			c.Store.RedisURL = constants.DefaultRedisURL
		}
	case constants.StoreDriverSQLite:
		if c.Store.SQLitePath == "" {
			c.Store.SQLitePath = constants.DefaultSQLitePath
		}
	case constants.StoreDriverMemory:
	default:
		return ErrUnknownStoreDriver
	}
	if c.Store.ConnectTimeoutSec <= 0 {
		c.Store.ConnectTimeoutSec = constants.DefaultStoreConnectTimeout
	}
	if c.Store.RetryAttempts <= 0 {
		c.Store.RetryAttempts = constants.DefaultStoreRetryAttempts
	}

	if c.Scheduler.Policy == "" {
		c.Scheduler.Policy = constants.SchedulePolicyExact
	}
	if c.Scheduler.Policy != constants.SchedulePolicyExact && c.Scheduler.Policy != constants.SchedulePolicyCatchUp {
		return ErrUnknownPolicy
	}
	if c.Scheduler.TickIntervalSec <= 0 {
		c.Scheduler.TickIntervalSec = constants.DefaultTickIntervalSec
	}
	if c.Scheduler.TickIntervalSec > constants.DefaultTickIntervalSec {
		return models.ConfigError{Message: fmt.Sprintf("scheduler tick interval must be at most %d seconds", constants.DefaultTickIntervalSec)}
	}
	if c.Scheduler.Workers <= 0 {
		c.Scheduler.Workers = constants.DefaultDispatchWorkers
	}
	if c.Scheduler.DispatchTimeoutSec <= 0 {
		c.Scheduler.DispatchTimeoutSec = constants.DefaultDispatchTimeoutS
	}

	if c.Telegram.APIBaseURL == "" {
		c.Telegram.APIBaseURL = pkgconstants.DefaultTelegramAPIURL
	}
	if c.Telegram.TimeoutSec <= 0 {
		c.Telegram.TimeoutSec = pkgconstants.DefaultTelegramTimeoutSec
	}
	if c.Twitter.APIBaseURL == "" {
		c.Twitter.APIBaseURL = pkgconstants.DefaultTwitterAPIURL
	}
	if c.Twitter.UploadURL == "" {
		c.Twitter.UploadURL = pkgconstants.DefaultTwitterUploadURL
	}
	if c.Twitter.TimeoutSec <= 0 {
		c.Twitter.TimeoutSec = pkgconstants.DefaultTwitterTimeoutSec
	}

	if c.Media.CacheDir == "" {
		c.Media.CacheDir = constants.DefaultMediaCacheDir
	}
	if err := security.ValidateFilePath(c.Media.CacheDir); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid media cache directory: %v", err)}
	}
	if c.Media.MaxSizeMB <= 0 {
		c.Media.MaxSizeMB = constants.DefaultMaxAttachmentMB
	}
	if c.Media.MaxImageDimension <= 0 {
		c.Media.MaxImageDimension = constants.DefaultMaxImageDimension
	}
	if c.Media.StaleHours <= 0 {
		c.Media.StaleHours = constants.DefaultStaleMediaHours
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return models.ConfigError{Message: fmt.Sprintf("server port out of range: %d", c.Server.Port)}
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}

	c.Tracing = tracing.ApplyDefaults(c.Tracing)
	if err := tracing.Validate(c.Tracing); err != nil {
		return models.ConfigError{Message: err.Error()}
	}

	if c.LogLevel == "" {
		c.LogLevel = logrus.InfoLevel.String()
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid log level %q", c.LogLevel)}
	}
	return nil
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	if IsProduction() {
		if c.Server.APIToken == "" {
			return models.ConfigError{Message: "API token is required in production (set DAILYPOST_API_TOKEN environment variable)"}
		}
		if len(c.Server.APIToken) < 32 {
			return models.ConfigError{Message: "API token must be at least 32 characters long"}
		}
		if c.LogLevel == logrus.DebugLevel.String() || c.LogLevel == logrus.TraceLevel.String() {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else if c.Server.APIToken == "" {
		fmt.Fprintf(os.Stderr, "WARNING: API token not set. Set DAILYPOST_API_TOKEN environment variable to protect the HTTP API.\n")
	}
	return nil
}

// Timeouts derived from the configuration

func DispatchTimeout(c *models.Config) time.Duration {
	return time.Duration(c.Scheduler.DispatchTimeoutSec) * time.Second
}

func TickInterval(c *models.Config) time.Duration {
	return time.Duration(c.Scheduler.TickIntervalSec) * time.Second
}
