package constants

// Default timeout values used by client packages
const (
	DefaultHTTPTimeoutSec          = 30
	DefaultTelegramTimeoutSec      = 30
	DefaultTwitterTimeoutSec       = 60
	DefaultMediaDownloadTimeoutSec = 60
)

// Client limits
const (
	BytesPerMegabyte        = 1024 * 1024
	MimeDetectionBufferSize = 512
	MaxErrorBodyBytes       = 4096
)

// Default API endpoints
const (
	DefaultTelegramAPIURL      = "https://api.telegram.org"
	DefaultTwitterAPIURL       = "https://api.twitter.com"
	DefaultTwitterUploadURL    = "https://upload.twitter.com"
	DefaultTwitterStatusURLFmt = "https://twitter.com/i/web/status/%s"
)
