package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"dailypost/internal/errors"
	"dailypost/internal/models"
	"dailypost/internal/retry"

	"github.com/sirupsen/logrus"
)

// DeleteLastCommand is the chat command that drops the newest queued item
const DeleteLastCommand = "/delete_last"

// PublishedMessage is sent after a successful publish
func PublishedMessage(reference string, queueSize int) string {
	return fmt.Sprintf("published: %s, queue size %d", reference, queueSize)
}

// PublishedStillQueuedMessage is sent when the publish succeeded but the item
// could not be removed from the queue, so it will be published again.
func PublishedStillQueuedMessage(reference string) string {
	return fmt.Sprintf("published: %s, but the item could not be removed from the queue and will be posted again. Use undo to drop it.", reference)
}

// QueueEmptyMessage is sent when the last queued item was published
func QueueEmptyMessage() string {
	return "queue empty"
}

// PublishFailedMessage reports a failed publish with the publisher's reason
// and the item that stays queued.
func PublishFailedMessage(reason string, entry models.QueueEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "publish failed: %s", reason)
	b.WriteString("\n\nThe item stays queued and will be retried at the next post time:\n")
	b.WriteString(entry.Text)
	if entry.HasAttachment() {
		b.WriteString("\n[with attachment]")
	}
	fmt.Fprintf(&b, "\n\nSend %s to remove it.", DeleteLastCommand)
	return b.String()
}

// EnqueuedMessage confirms a queued item
func EnqueuedMessage(queueSize int) string {
	return fmt.Sprintf("queued, queue size %d", queueSize)
}

// RemovedMessage confirms an undo
func RemovedMessage(entry models.QueueEntry, queueSize int) string {
	msg := fmt.Sprintf("removed: %q", entry.Text)
	if entry.HasAttachment() {
		msg += " (with attachment)"
	}
	return fmt.Sprintf("%s, queue size %d", msg, queueSize)
}

// UndoEmptyMessage answers an undo on an empty queue
func UndoEmptyMessage() string {
	return "queue is empty"
}

// MigratedMessage is sent to a chat that took over another chat's queue
func MigratedMessage(oldChatID string, queueSize int) string {
	return fmt.Sprintf("chat migrated from %s, queue size %d", oldChatID, queueSize)
}

type textNotifier struct {
	sender TextSender
}

// NewTextNotifier adapts a plain text chat transport to a Notifier
func NewTextNotifier(sender TextSender) Notifier {
	return &textNotifier{sender: sender}
}

func (t *textNotifier) Notify(ctx context.Context, n models.Notification) error {
	return t.sender.Notify(ctx, n.ChatID, n.Text)
}

// MultiNotifier fans a notification out to every notifier. All of them are
// tried; the errors are joined.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n models.Notification) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// notificationSender delivers notifications with retries and only logs
// failures: a notification problem never fails the operation that caused it.
type notificationSender struct {
	notifier Notifier
	backoff  *retry.Backoff
	logger   *logrus.Logger
}

func newNotificationSender(notifier Notifier, backoff *retry.Backoff, logger *logrus.Logger) *notificationSender {
	return &notificationSender{notifier: notifier, backoff: backoff, logger: logger}
}

func (s *notificationSender) send(ctx context.Context, chatID, kind, text string) {
	if s.notifier == nil {
		return
	}
	n := models.Notification{ChatID: chatID, Kind: kind, Text: text}

	attempts := 0
	deliver := func() error {
		attempts++
		return s.notifier.Notify(ctx, n)
	}

	var err error
	if s.backoff != nil {
		err = s.backoff.RetryWithPredicate(ctx, deliver, isRetryableNotification)
	} else {
		err = deliver()
	}
	if err != nil {
		fields := chatFields(ctx, chatID)
		fields["kind"] = kind
		fields[LogFieldRetryCount] = attempts
		fields[LogFieldErrorCode] = errors.GetCode(err)
		s.logger.WithFields(fields).WithError(err).Warn("Failed to deliver notification")
	}
}

// isRetryableNotification retries transport hiccups but not rejections
// such as an unknown chat.
func isRetryableNotification(err error) bool {
	if errors.IsRetryable(err) {
		return true
	}
	_, isApp := errors.As(err)
	return !isApp
}
