package service

import (
	"context"

	"dailypost/internal/privacy"

	"github.com/sirupsen/logrus"
)

// Standard field names used across the service logs
const (
	// Core identifiers
	LogFieldChatID    = "chat_id"
	LogFieldOldChatID = "old_chat_id"
	LogFieldNewChatID = "new_chat_id"
	LogFieldTickID    = "tick_id"

	// Queue state
	LogFieldQueueSize     = "queue_size"
	LogFieldHasAttachment = "has_attachment"
	LogFieldOutcome       = "outcome"
	LogFieldReference     = "reference"

	// Scheduling
	LogFieldPolicy    = "policy"
	LogFieldLocalTime = "local_time"
	LogFieldPostTime  = "post_time"
	LogFieldTimezone  = "timezone"
	LogFieldDueChats  = "due_chats"

	// Performance and errors
	LogFieldDuration   = "duration_ms"
	LogFieldCount      = "count"
	LogFieldErrorCode  = "error_code"
	LogFieldRetryCount = "retry_count"
)

// ContextKey is a package-local type to prevent context key collisions
// See staticcheck SA1029 guidance
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// chatFields returns the chat identifier field, masked unless verbose
// logging was requested.
func chatFields(ctx context.Context, chatID string) logrus.Fields {
	if IsVerboseLogging(ctx) {
		return logrus.Fields{LogFieldChatID: chatID}
	}
	return logrus.Fields{LogFieldChatID: privacy.MaskChatID(chatID)}
}

// SanitizeContent hides item text unless verbose logging was requested
func SanitizeContent(ctx context.Context, content string) string {
	if content == "" || IsVerboseLogging(ctx) {
		return content
	}
	return "[hidden]"
}
