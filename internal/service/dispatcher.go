package service

import (
	"context"
	"time"

	"dailypost/internal/errors"
	"dailypost/internal/metrics"
	"dailypost/internal/models"
	"dailypost/internal/queue"
	"dailypost/internal/retry"
	"dailypost/internal/settings"
	"dailypost/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Dispatcher publishes the oldest queued item of a chat. The item is only
// removed after the publisher confirmed it, so a failed attempt leaves the
// queue exactly as it was and the next due tick retries it.
type Dispatcher struct {
	queue     *queue.Manager
	settings  *settings.Registry
	publisher Publisher
	stager    AttachmentStager
	notify    *notificationSender
	inflight  *queue.KeyedMutex
	timeout   time.Duration
	logger    *logrus.Logger
}

// DispatcherConfig tunes a Dispatcher
type DispatcherConfig struct {
	// Timeout bounds one dispatch attempt. Zero means no limit.
	Timeout time.Duration
	// NotifyBackoff retries notification delivery. Nil delivers once.
	NotifyBackoff *retry.Backoff
}

func NewDispatcher(q *queue.Manager, reg *settings.Registry, publisher Publisher, stager AttachmentStager, notifier Notifier, config DispatcherConfig, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Dispatcher{
		queue:     q,
		settings:  reg,
		publisher: publisher,
		stager:    stager,
		notify:    newNotificationSender(notifier, config.NotifyBackoff, logger),
		inflight:  queue.NewKeyedMutex(),
		timeout:   config.Timeout,
		logger:    logger,
	}
}

// Hold blocks until no dispatch runs for the given chats and keeps new ones
// from starting until the returned func is called.
func (d *Dispatcher) Hold(chatIDs ...string) func() {
	return d.inflight.LockMany(chatIDs...)
}

// Dispatch makes one publish attempt for chatID. A chat that is already
// being dispatched is skipped. Publish and attachment failures are handled
// here: the chat is notified and the returned error is informational.
//
// Cancelling ctx does not abort an attempt once it has started; only the
// configured timeout bounds it.
func (d *Dispatcher) Dispatch(ctx context.Context, chatID string) (models.DispatchOutcome, error) {
	release, ok := d.inflight.TryLock(chatID)
	if !ok {
		d.logger.WithFields(chatFields(ctx, chatID)).Debug("Dispatch already in flight, skipping")
		d.record(models.OutcomeSkipped, 0)
		return models.OutcomeSkipped, nil
	}
	defer release()

	ctx = context.WithoutCancel(ctx)
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	ctx, span := tracing.StartSpan(ctx, "dispatcher.dispatch")
	defer span.End()

	start := time.Now()
	outcome, err := d.dispatch(ctx, chatID)
	d.record(outcome, time.Since(start))

	span.SetAttributes(attribute.String("dispatch.outcome", string(outcome)))
	d.logger.WithFields(chatFields(ctx, chatID)).WithField(LogFieldOutcome, outcome).Debug("Dispatch finished")
	if err != nil {
		tracing.RecordError(ctx, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return outcome, err
}

func (d *Dispatcher) dispatch(ctx context.Context, chatID string) (models.DispatchOutcome, error) {
	entry, err := d.queue.PeekOldest(ctx, chatID)
	if errors.Is(err, errors.ErrCodeEmptyQueue) {
		d.logger.WithFields(chatFields(ctx, chatID)).Debug("Queue empty, nothing to dispatch")
		return models.OutcomeEmpty, nil
	}
	if err != nil {
		d.logger.WithFields(chatFields(ctx, chatID)).WithError(err).Error("Failed to read queue head")
		return models.OutcomeFailed, err
	}

	creds, err := d.settings.Credentials(ctx, chatID)
	if err != nil {
		return d.fail(ctx, chatID, *entry, err)
	}

	post := models.Post{Text: entry.Text}
	if entry.HasAttachment() {
		staged, err := d.stager.Stage(ctx, entry.AttachmentRef)
		if err != nil {
			return d.fail(ctx, chatID, *entry, err)
		}
		defer staged.Cleanup()
		post.AttachmentPath = staged.Path
		post.MimeType = staged.MimeType
	}

	result, err := d.publisher.Publish(ctx, creds, post)
	if err != nil {
		return d.fail(ctx, chatID, *entry, errors.NewPublishError(chatID, err))
	}

	// The publish already happened, so the commit must not be cut short by
	// the dispatch deadline.
	commitCtx := context.WithoutCancel(ctx)
	size, removed, err := d.queue.RemoveOldestIf(commitCtx, chatID, *entry)
	fields := chatFields(ctx, chatID)
	fields[LogFieldReference] = result.Reference()
	fields[LogFieldQueueSize] = size
	switch {
	case err != nil:
		d.logger.WithFields(fields).WithError(err).Error("Published but failed to remove item from queue; it will be published again")
	case !removed:
		d.logger.WithFields(fields).Warn("Queue head changed during publish; leaving queue untouched")
	default:
		d.logger.WithFields(fields).Info("Published queued item")
	}

	if err != nil {
		metrics.IncrementCounter("dispatch_commit_failures_total", nil, "Published items that could not be removed from the queue")
		d.notify.send(commitCtx, chatID, models.NotifyPublishedQueued, PublishedStillQueuedMessage(result.Reference()))
		return models.OutcomePublished, err
	}
	d.notify.send(commitCtx, chatID, models.NotifyPublished, PublishedMessage(result.Reference(), size))
	if size == 0 {
		d.notify.send(commitCtx, chatID, models.NotifyQueueEmpty, QueueEmptyMessage())
	}
	return models.OutcomePublished, nil
}

// fail notifies the chat of a failed attempt. The queue is not touched.
func (d *Dispatcher) fail(ctx context.Context, chatID string, entry models.QueueEntry, err error) (models.DispatchOutcome, error) {
	reason := errors.Reason(err)

	fields := chatFields(ctx, chatID)
	fields[LogFieldErrorCode] = errors.GetCode(err)
	fields[LogFieldHasAttachment] = entry.HasAttachment()
	d.logger.WithFields(fields).WithError(err).Warn("Dispatch failed, item stays queued")

	d.notify.send(context.WithoutCancel(ctx), chatID, models.NotifyPublishFailed, PublishFailedMessage(reason, entry))
	return models.OutcomeFailed, err
}

func (d *Dispatcher) record(outcome models.DispatchOutcome, elapsed time.Duration) {
	labels := map[string]string{"outcome": string(outcome)}
	metrics.IncrementCounter("dispatch_total", labels, "Dispatch attempts by outcome")
	if outcome != models.OutcomeSkipped {
		metrics.RecordTimer("dispatch_duration", elapsed, labels, "Time spent per dispatch attempt")
	}
}
