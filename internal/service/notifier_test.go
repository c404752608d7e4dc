package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"dailypost/internal/errors"
	"dailypost/internal/models"
	"dailypost/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessages(t *testing.T) {
	assert.Equal(t, "published: https://twitter.com/i/web/status/9, queue size 4", PublishedMessage("https://twitter.com/i/web/status/9", 4))
	assert.Equal(t, "queue empty", QueueEmptyMessage())
	assert.Equal(t, "queued, queue size 2", EnqueuedMessage(2))
	assert.Equal(t, `removed: "b", queue size 1`, RemovedMessage(models.QueueEntry{Text: "b"}, 1))
	assert.Equal(t, `removed: "b" (with attachment), queue size 0`, RemovedMessage(models.QueueEntry{Text: "b", AttachmentRef: "x"}, 0))
	assert.Equal(t, "chat migrated from 100, queue size 3", MigratedMessage("100", 3))
}

func TestPublishFailedMessage(t *testing.T) {
	msg := PublishFailedMessage("Status is a duplicate.", models.QueueEntry{Text: "hello world"})
	assert.Equal(t, "publish failed: Status is a duplicate.\n\n"+
		"The item stays queued and will be retried at the next post time:\n"+
		"hello world\n\n"+
		"Send /delete_last to remove it.", msg)

	withAttachment := PublishFailedMessage("too big", models.QueueEntry{Text: "pic", AttachmentRef: "f"})
	assert.Contains(t, withAttachment, "pic\n[with attachment]")
}

func TestTextNotifier(t *testing.T) {
	sender := &mockTextSender{}
	sender.On("Notify", context.Background(), "42", "queue empty").Return(nil).Once()

	err := NewTextNotifier(sender).Notify(context.Background(), models.Notification{ChatID: "42", Kind: models.NotifyQueueEmpty, Text: "queue empty"})
	require.NoError(t, err)
	sender.AssertExpectations(t)
}

func TestMultiNotifier_TriesEveryNotifier(t *testing.T) {
	failing := &recordingNotifier{err: fmt.Errorf("down")}
	working := &recordingNotifier{}
	n := models.Notification{ChatID: "1", Kind: models.NotifyPublished, Text: "x"}

	err := MultiNotifier{failing, nil, working}.Notify(context.Background(), n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Equal(t, []models.Notification{n}, failing.sent)
	assert.Equal(t, []models.Notification{n}, working.sent)
}

type countingNotifier struct {
	calls int
	errs  []error
}

func (c *countingNotifier) Notify(ctx context.Context, n models.Notification) error {
	c.calls++
	if c.calls <= len(c.errs) {
		return c.errs[c.calls-1]
	}
	return nil
}

func TestNotificationSender_Retries(t *testing.T) {
	backoff := retry.NewBackoff(retry.BackoffConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1, MaxAttempts: 3})
	tests := []struct {
		name      string
		errs      []error
		wantCalls int
	}{
		{"success", nil, 1},
		{"transport error retried", []error{fmt.Errorf("connection reset")}, 2},
		{"retryable app error retried", []error{errors.NewAPIError("telegram", "sendMessage", 502, fmt.Errorf("bad gateway"))}, 2},
		{"rejection not retried", []error{errors.New(errors.ErrCodeNotifyFailed, "chat not found"), nil}, 1},
		{"gives up", []error{fmt.Errorf("a"), fmt.Errorf("b"), fmt.Errorf("c"), fmt.Errorf("d")}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &countingNotifier{errs: tt.errs}
			sender := newNotificationSender(notifier, backoff, newTestEnv(t).logger)
			sender.send(context.Background(), "1", models.NotifyPublished, "x")
			assert.Equal(t, tt.wantCalls, notifier.calls)
		})
	}
}

func TestNotificationSender_NilNotifier(t *testing.T) {
	sender := newNotificationSender(nil, nil, newTestEnv(t).logger)
	assert.NotPanics(t, func() {
		sender.send(context.Background(), "1", models.NotifyPublished, "x")
	})
}
