package validation

import (
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"dailypost/internal/constants"
	"dailypost/internal/errors"

	"golang.org/x/text/unicode/norm"
)

// ValidateChatID checks that a chat identifier can be embedded in a store key.
// Identifiers are opaque, but ':' and glob metacharacters would corrupt the
// key layout and pattern scans.
func ValidateChatID(chatID string) error {
	if chatID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "chat ID cannot be empty")
	}

	if len(chatID) > constants.MaxChatIDLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("chat ID too long (max %d characters)", constants.MaxChatIDLength))
	}

	for _, char := range chatID {
		if !unicode.IsLetter(char) && !unicode.IsDigit(char) && char != '-' && char != '_' && char != '.' && char != '@' {
			return errors.New(errors.ErrCodeInvalidInput, "chat ID contains invalid characters")
		}
	}

	return nil
}

// ValidateTimezone checks that name is a loadable IANA zone and returns it
func ValidateTimezone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.NewValidationError("timezone", name, "timezone cannot be empty")
	}
	// time.LoadLocation treats "Local" as the host zone, which means nothing to a chat
	if name == "Local" {
		return nil, errors.NewValidationError("timezone", name, "unknown timezone")
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.NewValidationError("timezone", name, "unknown timezone")
	}
	return loc, nil
}

// ParsePostTime accepts H:MM or HH:MM on a 24 hour clock and returns the
// canonical zero padded form.
func ParsePostTime(value string) (string, error) {
	value = strings.TrimSpace(value)
	t, err := time.Parse(constants.PostTimeLayout, value)
	if err != nil {
		return "", errors.NewValidationError("post_time", value, "post time must be HH:MM (24 hour clock)")
	}
	return t.Format(constants.PostTimeLayout), nil
}

// TextLength returns the character count of text after NFC normalization
func TextLength(text string) int {
	return utf8.RuneCountInString(norm.NFC.String(text))
}

// ValidateText enforces the per-item character limit
func ValidateText(text string) error {
	if n := TextLength(text); n > constants.TextCharacterLimit {
		return errors.NewValidationError("text", "",
			fmt.Sprintf("text is %d characters long (max %d)", n, constants.TextCharacterLimit))
	}
	return nil
}

// ValidateHTTPRequestSize validates incoming HTTP request size
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength < -1 {
		return errors.New(errors.ErrCodeInvalidInput, "invalid content length")
	}

	if r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes))
	}

	return nil
}

// ValidateNumericRange validates numeric values against bounds
func ValidateNumericRange(value int, fieldName string, min, max int) error {
	if value < min {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too small (min %d)", fieldName, min))
	}

	if value > max {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max %d)", fieldName, max))
	}

	return nil
}

// ValidateTimeout validates timeout values
func ValidateTimeout(timeoutSec int, fieldName string) error {
	if timeoutSec < 1 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s must be at least 1 second", fieldName))
	}

	if timeoutSec > 3600 { // Max 1 hour
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max 3600 seconds)", fieldName))
	}

	return nil
}
