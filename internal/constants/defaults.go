package constants

// Queue limits
const (
	MaxQueueSize       = 365
	TextCharacterLimit = 280
	MaxChatIDLength    = 64
	MaxRequestBodyMB   = 1
)

// Settings defaults applied when a chat completes authorization
const (
	DefaultTimezone = "UTC"
	DefaultPostTime = "12:00"
	PostTimeLayout  = "15:04"
	LocalDateLayout = "2006-01-02"
)

// Scheduler policies
const (
	SchedulePolicyExact   = "exact"
	SchedulePolicyCatchUp = "catchup"
)

// Default scheduler configuration values
const (
	DefaultTickIntervalSec  = 60
	DefaultDispatchWorkers  = 8
	DefaultDispatchTimeoutS = 120
)

// Default store configuration values
const (
	StoreDriverRedis  = "redis"
	StoreDriverSQLite = "sqlite"
	StoreDriverMemory = "memory"

	DefaultRedisURL            = "redis://redis:6379/0"
	DefaultSQLitePath          = "dailypost.db"
	DefaultStoreConnectTimeout = 30
	DefaultStoreRetryAttempts  = 5
	DefaultStoreScanCount      = 100
)

// Default retry configuration values
const (
	DefaultRetryBackoffMs = 500
	DefaultMaxBackoffMs   = 10000
	DefaultMaxAttempts    = 3
)

// Default media configuration values
const (
	DefaultMediaCacheDir     = "/tmp/dailypost"
	DefaultMaxAttachmentMB   = 15
	DefaultMaxImageDimension = 4096
	DefaultStaleMediaHours   = 24
)

// Default timeout values
const (
	DefaultHTTPTimeoutSec         = 30
	DefaultGracefulShutdownSec    = 30
	DefaultServerPort             = 8082
	DefaultServerReadTimeoutSec   = 15
	DefaultServerWriteTimeoutSec  = 15
	DefaultServerIdleTimeoutSec   = 60
	DefaultConfigWatchIntervalSec = 5
)

// Circuit breaker defaults for the chat transport
const (
	CBMaxFailures      = 5
	CBTimeoutSec       = 30
	CBHalfOpenMaxCalls = 3
)

// Privacy settings
const (
	DefaultChatIDMaskLength = 4
)

// Encryption parameters for credentials at rest
const (
	EncryptionSalt       = "dailypost-credentials-v1"
	EncryptionIterations = 100000
	EncryptionKeySize    = 32
	EncryptionNonceSize  = 12
	MinEncryptionSecret  = 32
)
