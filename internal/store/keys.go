package store

import (
	"fmt"
	"strings"
)

// Persisted key layout. Chat identifiers never contain ':' or glob
// metacharacters; validation.ValidateChatID enforces that at the edge.
const (
	keyPrefix = "chat"
	sep       = ":"
)

func chatKey(chatID string, parts ...string) string {
	return keyPrefix + sep + chatID + sep + strings.Join(parts, sep)
}

// QueueSizeKey holds the current queue length
func QueueSizeKey(chatID string) string {
	return chatKey(chatID, "queue_size")
}

// QueueTextKey holds the text of a queue slot
func QueueTextKey(chatID string, slot int) string {
	return chatKey(chatID, "queue", fmt.Sprintf("%d", slot), "text")
}

// QueueAttachmentKey holds the attachment reference of a queue slot
func QueueAttachmentKey(chatID string, slot int) string {
	return chatKey(chatID, "queue", fmt.Sprintf("%d", slot), "attachment_ref")
}

// TimezoneKey holds the chat's IANA zone name
func TimezoneKey(chatID string) string {
	return chatKey(chatID, "settings", "timezone")
}

// PostTimeKey holds the chat's local HH:MM post time
func PostTimeKey(chatID string) string {
	return chatKey(chatID, "settings", "post_time")
}

// LastDispatchedKey holds the local date of the last attempted dispatch
func LastDispatchedKey(chatID string) string {
	return chatKey(chatID, "settings", "last_dispatched")
}

// AccessTokenKey holds the publisher access token
func AccessTokenKey(chatID string) string {
	return chatKey(chatID, "oauth", "access_token")
}

// AccessTokenSecretKey holds the publisher access token secret
func AccessTokenSecretKey(chatID string) string {
	return chatKey(chatID, "oauth", "access_token_secret")
}

// ChatPattern matches every key owned by a chat
func ChatPattern(chatID string) string {
	return keyPrefix + sep + chatID + sep + "*"
}

// PostTimePattern matches the post-time key of every scheduled chat
func PostTimePattern() string {
	return keyPrefix + sep + "*" + sep + "settings" + sep + "post_time"
}

// ChatIDFromKey extracts the chat identifier from a persisted key
func ChatIDFromKey(key string) (string, bool) {
	parts := strings.SplitN(key, sep, 3)
	if len(parts) < 3 || parts[0] != keyPrefix || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// RekeyChat rewrites a key owned by oldChatID to the same key under newChatID
func RekeyChat(key, oldChatID, newChatID string) (string, bool) {
	prefix := keyPrefix + sep + oldChatID + sep
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	return keyPrefix + sep + newChatID + sep + strings.TrimPrefix(key, prefix), true
}
