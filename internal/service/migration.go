package service

import (
	"context"
	"fmt"

	"dailypost/internal/errors"
	"dailypost/internal/metrics"
	"dailypost/internal/models"
	"dailypost/internal/queue"
	"dailypost/internal/retry"
	"dailypost/internal/store"

	"github.com/sirupsen/logrus"
)

// MigrationResult describes a completed chat migration
type MigrationResult struct {
	OldChatID string `json:"old_chat_id"`
	NewChatID string `json:"new_chat_id"`
	MovedKeys int    `json:"moved_keys"`
	QueueSize int    `json:"queue_size"`
}

// Migrator moves every key of a chat to a new chat identifier, which is what
// happens when a group is upgraded to a supergroup.
type Migrator struct {
	store  store.Store
	queue  *queue.Manager
	guard  DispatchGuard
	notify *notificationSender
	logger *logrus.Logger
}

// NewMigrator creates a migrator. guard and notifier may be nil.
func NewMigrator(s store.Store, q *queue.Manager, guard DispatchGuard, notifier Notifier, backoff *retry.Backoff, logger *logrus.Logger) *Migrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Migrator{
		store:  s,
		queue:  q,
		guard:  guard,
		notify: newNotificationSender(notifier, backoff, logger),
		logger: logger,
	}
}

// Migrate renames every chat:{old}:* key to chat:{new}:*. The store has no
// multi-key transaction, so a failed rename rolls back the keys already
// moved; if the rollback fails too the error lists the keys left split.
// A destination that already owns keys is refused.
func (m *Migrator) Migrate(ctx context.Context, oldChatID, newChatID string) (*MigrationResult, error) {
	if oldChatID == newChatID {
		return nil, errors.NewValidationError("new_chat_id", newChatID, "new chat ID must differ from the old one")
	}

	if m.guard != nil {
		release := m.guard.Hold(oldChatID, newChatID)
		defer release()
	}
	unlock := m.queue.Lock(oldChatID, newChatID)
	defer unlock()

	fields := logrus.Fields{
		LogFieldOldChatID: maskedChat(ctx, oldChatID),
		LogFieldNewChatID: maskedChat(ctx, newChatID),
	}

	keys, err := m.chatKeys(ctx, oldChatID)
	if err != nil {
		return nil, err
	}
	result := &MigrationResult{OldChatID: oldChatID, NewChatID: newChatID}
	if len(keys) == 0 {
		m.logger.WithFields(fields).Info("Nothing to migrate")
		return result, nil
	}

	existing, err := m.chatKeys(ctx, newChatID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, errors.New(errors.ErrCodeMigrationConflict, "destination chat already has stored state").
			WithContext("old_chat_id", oldChatID).
			WithContext("new_chat_id", newChatID).
			WithContext("existing_keys", len(existing)).
			WithUserMessage("The new chat already has a queue or settings")
	}

	moved := make([][2]string, 0, len(keys))
	for _, key := range keys {
		dst, _ := store.RekeyChat(key, oldChatID, newChatID)
		if err := m.store.Rename(ctx, key, dst); err != nil {
			m.logger.WithFields(fields).WithError(err).Error("Chat migration failed, rolling back")
			return nil, m.rollback(ctx, oldChatID, newChatID, key, moved, err)
		}
		moved = append(moved, [2]string{key, dst})
	}

	result.MovedKeys = len(moved)
	size, err := m.queue.Size(ctx, newChatID)
	if err != nil {
		m.logger.WithFields(fields).WithError(err).Warn("Migrated, but failed to read the new queue size")
	}
	result.QueueSize = size

	fields[LogFieldCount] = result.MovedKeys
	fields[LogFieldQueueSize] = size
	m.logger.WithFields(fields).Info("Chat migrated")
	metrics.IncrementCounter("chat_migrations_total", map[string]string{"result": "ok"}, "Chat migrations by result")

	m.notify.send(ctx, newChatID, models.NotifyMigrated, MigratedMessage(oldChatID, size))
	return result, nil
}

// rollback renames moved keys back in reverse order
func (m *Migrator) rollback(ctx context.Context, oldChatID, newChatID, failedKey string, moved [][2]string, cause error) error {
	ctx = context.WithoutCancel(ctx)

	var split []string
	for i := len(moved) - 1; i >= 0; i-- {
		src, dst := moved[i][0], moved[i][1]
		if err := m.store.Rename(ctx, dst, src); err != nil {
			split = append(split, dst)
		}
	}

	if len(split) > 0 {
		metrics.IncrementCounter("chat_migrations_total", map[string]string{"result": "partial"}, "Chat migrations by result")
		m.logger.WithFields(logrus.Fields{
			LogFieldOldChatID: maskedChat(ctx, oldChatID),
			LogFieldNewChatID: maskedChat(ctx, newChatID),
			LogFieldCount:     len(split),
		}).Error("Chat migration rollback failed, state is split across identities")
		return errors.NewMigrationError(oldChatID, newChatID, split, cause)
	}

	metrics.IncrementCounter("chat_migrations_total", map[string]string{"result": "rolled_back"}, "Chat migrations by result")
	return errors.NewStorageError("rename", failedKey, fmt.Errorf("migration rolled back: %w", cause))
}

func (m *Migrator) chatKeys(ctx context.Context, chatID string) ([]string, error) {
	pattern := store.ChatPattern(chatID)
	keys, err := m.store.Keys(ctx, pattern)
	if err != nil {
		return nil, errors.NewStorageError("keys", pattern, err)
	}

	owned := keys[:0]
	for _, key := range keys {
		if _, ok := store.RekeyChat(key, chatID, chatID); ok {
			owned = append(owned, key)
		}
	}
	return owned, nil
}

func maskedChat(ctx context.Context, chatID string) interface{} {
	return chatFields(ctx, chatID)[LogFieldChatID]
}
