package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "chat:42:queue_size", QueueSizeKey("42"))
	assert.Equal(t, "chat:42:queue:0:text", QueueTextKey("42", 0))
	assert.Equal(t, "chat:42:queue:364:attachment_ref", QueueAttachmentKey("42", 364))
	assert.Equal(t, "chat:42:settings:timezone", TimezoneKey("42"))
	assert.Equal(t, "chat:42:settings:post_time", PostTimeKey("42"))
	assert.Equal(t, "chat:42:settings:last_dispatched", LastDispatchedKey("42"))
	assert.Equal(t, "chat:42:oauth:access_token", AccessTokenKey("42"))
	assert.Equal(t, "chat:42:oauth:access_token_secret", AccessTokenSecretKey("42"))
	assert.Equal(t, "chat:42:*", ChatPattern("42"))
	assert.Equal(t, "chat:*:settings:post_time", PostTimePattern())
}

func TestChatIDFromKey(t *testing.T) {
	tests := []struct {
		key    string
		chatID string
		ok     bool
	}{
		{"chat:42:settings:post_time", "42", true},
		{"chat:-100100:queue_size", "-100100", true},
		{"chat::queue_size", "", false},
		{"chat:42", "", false},
		{"user:42:x", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			chatID, ok := ChatIDFromKey(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.chatID, chatID)
		})
	}
}

func TestRekeyChat(t *testing.T) {
	k, ok := RekeyChat("chat:100:queue:3:text", "100", "-100100")
	assert.True(t, ok)
	assert.Equal(t, "chat:-100100:queue:3:text", k)

	_, ok = RekeyChat("chat:1000:queue_size", "100", "-100100")
	assert.False(t, ok)
}
