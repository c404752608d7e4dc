package models

// Config holds the application configuration
type Config struct {
	Store     StoreConfig     `json:"store" yaml:"store"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Telegram  TelegramConfig  `json:"telegram" yaml:"telegram"`
	Twitter   TwitterConfig   `json:"twitter" yaml:"twitter"`
	Media     MediaConfig     `json:"media" yaml:"media"`
	Retry     RetryConfig     `json:"retry" yaml:"retry"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Tracing   TracingConfig   `json:"tracing" yaml:"tracing"`
	LogLevel  string          `json:"log_level" yaml:"log_level" env:"LOG_LEVEL"`
}

// StoreConfig selects and configures the key-value store backend
type StoreConfig struct {
	Driver            string `json:"driver" yaml:"driver" env:"STORE_DRIVER"`
	RedisURL          string `json:"redis_url" yaml:"redis_url" env:"REDIS_URL"`
	SQLitePath        string `json:"sqlite_path" yaml:"sqlite_path" env:"DB_PATH"`
	ConnectTimeoutSec int    `json:"connectTimeoutSec" yaml:"connect_timeout_sec" env:"STORE_CONNECT_TIMEOUT_SEC"`
	RetryAttempts     int    `json:"retryAttempts" yaml:"retry_attempts" env:"STORE_RETRY_ATTEMPTS"`
}

// SchedulerConfig controls the once-per-minute dispatch tick
type SchedulerConfig struct {
	Policy             string `json:"policy" yaml:"policy" env:"SCHEDULE_POLICY"`
	TickIntervalSec    int    `json:"tickIntervalSec" yaml:"tick_interval_sec" env:"SCHEDULE_TICK_INTERVAL_SEC"`
	Workers            int    `json:"workers" yaml:"workers" env:"SCHEDULE_WORKERS"`
	DispatchTimeoutSec int    `json:"dispatchTimeoutSec" yaml:"dispatch_timeout_sec" env:"DISPATCH_TIMEOUT_SEC"`
}

// TelegramConfig holds the chat transport configuration. The bot token is
// only ever read from the environment.
type TelegramConfig struct {
	APIBaseURL string `json:"api_base_url" yaml:"api_base_url" env:"TELEGRAM_API_URL"`
	Token      string `json:"-" yaml:"-" env:"TELEGRAM_TOKEN"`
	TimeoutSec int    `json:"timeoutSec" yaml:"timeout_sec" env:"TELEGRAM_TIMEOUT_SEC"`
}

// TwitterConfig holds the publisher configuration
type TwitterConfig struct {
	APIBaseURL   string `json:"api_base_url" yaml:"api_base_url" env:"TWITTER_API_URL"`
	UploadURL    string `json:"upload_url" yaml:"upload_url" env:"TWITTER_UPLOAD_URL"`
	// ClientID and ClientSecret are the app's OAuth 1.0a consumer key pair
	ClientID     string `json:"-" yaml:"-" env:"TWITTER_CLIENT_ID"`
	ClientSecret string `json:"-" yaml:"-" env:"TWITTER_CLIENT_SECRET"`
	TimeoutSec   int    `json:"timeoutSec" yaml:"timeout_sec" env:"TWITTER_TIMEOUT_SEC"`
}

// MediaConfig holds attachment staging configuration
type MediaConfig struct {
	CacheDir          string `json:"cache_dir" yaml:"cache_dir" env:"MEDIA_DIR"`
	MaxSizeMB         int    `json:"maxSizeMB" yaml:"max_size_mb" env:"MEDIA_MAX_SIZE_MB"`
	MaxImageDimension int    `json:"maxImageDimension" yaml:"max_image_dimension" env:"MEDIA_MAX_IMAGE_DIMENSION"`
	StaleHours        int    `json:"staleHours" yaml:"stale_hours" env:"MEDIA_STALE_HOURS"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs" yaml:"initial_backoff_ms"`
	MaxBackoffMs     int `json:"maxBackoffMs" yaml:"max_backoff_ms"`
	MaxAttempts      int `json:"maxAttempts" yaml:"max_attempts"`
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	Port            int `json:"port" yaml:"port" env:"PORT"`
	ReadTimeoutSec  int `json:"readTimeoutSec" yaml:"read_timeout_sec"`
	WriteTimeoutSec int `json:"writeTimeoutSec" yaml:"write_timeout_sec"`
	IdleTimeoutSec  int `json:"idleTimeoutSec" yaml:"idle_timeout_sec"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Only enable behind a reverse proxy that sets them.
	TrustProxyHeaders bool   `json:"trustProxyHeaders" yaml:"trust_proxy_headers" env:"TRUST_PROXY_HEADERS"`
	APIToken          string `json:"-" yaml:"-" env:"DAILYPOST_API_TOKEN"`
}

// TracingConfig contains OpenTelemetry configuration
type TracingConfig struct {
	ServiceName    string  `json:"service_name" yaml:"service_name"`
	ServiceVersion string  `json:"service_version" yaml:"service_version"`
	Environment    string  `json:"environment" yaml:"environment" env:"DAILYPOST_ENV"`
	OTLPEndpoint   string  `json:"otlp_endpoint" yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	SampleRate     float64 `json:"sample_rate" yaml:"sample_rate"`
	Enabled        bool    `json:"enabled" yaml:"enabled" env:"TRACING_ENABLED"`
	UseStdout      bool    `json:"use_stdout" yaml:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
