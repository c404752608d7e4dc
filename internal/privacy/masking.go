package privacy

import (
	"strings"

	"dailypost/internal/constants"
)

// MaskChatID masks a chat identifier, keeping the sign and the last digits
// Example: "-1001234567890" -> "-*********7890"
func MaskChatID(chatID string) string {
	if chatID == "" {
		return ""
	}
	if strings.HasPrefix(chatID, "-") {
		return "-" + maskString(chatID[1:], constants.DefaultChatIDMaskLength)
	}
	return maskString(chatID, constants.DefaultChatIDMaskLength)
}

// MaskSecret hides a credential entirely except for its length class
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return "[redacted]"
}

// MaskStoreKey masks the chat segment of a persisted key
// Example: "chat:123456:queue_size" -> "chat:**3456:queue_size"
func MaskStoreKey(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 || parts[0] != "chat" {
		return key
	}
	parts[1] = MaskChatID(parts[1])
	return strings.Join(parts, ":")
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, isString := v.(string)
		switch {
		case !isString:
			masked[k] = v
		case k == "chat_id" || k == "old_chat_id" || k == "new_chat_id":
			masked[k] = MaskChatID(s)
		case k == "key":
			masked[k] = MaskStoreKey(s)
		case k == "access_token" || k == "access_token_secret" || k == "token":
			masked[k] = MaskSecret(s)
		default:
			masked[k] = v
		}
	}

	return masked
}
