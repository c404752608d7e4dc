// Package queue implements the per-chat FIFO of pending content items on top
// of the key-value store. Slot 0 is always the oldest item; slots are
// contiguous and chat:{C}:queue_size always equals their count.
package queue

import (
	"context"
	stderrors "errors"
	"strconv"

	"dailypost/internal/errors"
	"dailypost/internal/models"
	"dailypost/internal/privacy"
	"dailypost/internal/store"

	"github.com/sirupsen/logrus"
)

// Manager serializes every read-modify-write sequence per chat
type Manager struct {
	store   store.Store
	locks   *KeyedMutex
	maxSize int
	logger  *logrus.Logger
}

// NewManager creates a queue manager with the given capacity per chat
func NewManager(s store.Store, maxSize int, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		store:   s,
		locks:   NewKeyedMutex(),
		maxSize: maxSize,
		logger:  logger,
	}
}

// MaxSize returns the per-chat capacity
func (m *Manager) MaxSize() int {
	return m.maxSize
}

// Lock holds the queues of the given chats until the returned func is called.
// Chat migration uses it to keep both identities still while keys move.
func (m *Manager) Lock(chatIDs ...string) func() {
	return m.locks.LockMany(chatIDs...)
}

// Enqueue appends entry and returns the slot it was stored in. A full queue
// is rejected without any write.
func (m *Manager) Enqueue(ctx context.Context, chatID string, entry models.QueueEntry) (int, error) {
	unlock := m.locks.Lock(chatID)
	defer unlock()

	size, err := m.size(ctx, chatID)
	if err != nil {
		return 0, err
	}
	if size >= m.maxSize {
		m.logger.WithFields(logrus.Fields{
			"chat_id":    privacy.MaskChatID(chatID),
			"queue_size": size,
		}).Warn("Queue is full, rejecting item")
		return 0, errors.NewCapacityError(chatID, m.maxSize)
	}

	if err := m.writeSlot(ctx, chatID, size, entry); err != nil {
		return 0, err
	}
	if err := m.setSize(ctx, chatID, size+1); err != nil {
		return 0, err
	}

	m.logger.WithFields(logrus.Fields{
		"chat_id":        privacy.MaskChatID(chatID),
		"slot":           size,
		"has_attachment": entry.HasAttachment(),
	}).Debug("Enqueued item")

	return size, nil
}

// PeekOldest returns slot 0 without mutating the queue
func (m *Manager) PeekOldest(ctx context.Context, chatID string) (*models.QueueEntry, error) {
	unlock := m.locks.Lock(chatID)
	defer unlock()

	size, err := m.size(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, errors.NewEmptyQueueError(chatID)
	}
	return m.readSlot(ctx, chatID, 0)
}

// RemoveOldest drops slot 0 and shifts every later slot down by one. It is a
// no-op on an empty queue and returns the new size.
func (m *Manager) RemoveOldest(ctx context.Context, chatID string) (int, error) {
	unlock := m.locks.Lock(chatID)
	defer unlock()

	return m.removeOldest(ctx, chatID)
}

// RemoveOldestIf removes slot 0 only if it still holds expected. The
// dispatcher commits through it so an undo racing a publish cannot make it
// drop the wrong item.
func (m *Manager) RemoveOldestIf(ctx context.Context, chatID string, expected models.QueueEntry) (int, bool, error) {
	unlock := m.locks.Lock(chatID)
	defer unlock()

	size, err := m.size(ctx, chatID)
	if err != nil {
		return 0, false, err
	}
	if size == 0 {
		return 0, false, nil
	}

	head, err := m.readSlot(ctx, chatID, 0)
	if err != nil {
		return size, false, err
	}
	if *head != expected {
		return size, false, nil
	}

	newSize, err := m.removeOldest(ctx, chatID)
	return newSize, err == nil, err
}

func (m *Manager) removeOldest(ctx context.Context, chatID string) (int, error) {
	size, err := m.size(ctx, chatID)
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, nil
	}

	if err := m.clearSlot(ctx, chatID, 0); err != nil {
		return size, err
	}
	for i := 0; i < size-1; i++ {
		if err := m.moveSlot(ctx, chatID, i+1, i); err != nil {
			return size, err
		}
	}
	if err := m.clearSlot(ctx, chatID, size-1); err != nil {
		return size, err
	}
	if err := m.setSize(ctx, chatID, size-1); err != nil {
		return size, err
	}
	return size - 1, nil
}

// RemoveNewest undoes the most recent enqueue and returns the removed entry
func (m *Manager) RemoveNewest(ctx context.Context, chatID string) (*models.QueueEntry, error) {
	unlock := m.locks.Lock(chatID)
	defer unlock()

	size, err := m.size(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, errors.NewEmptyQueueError(chatID)
	}

	last := size - 1
	entry, err := m.readSlot(ctx, chatID, last)
	if err != nil {
		return nil, err
	}
	if err := m.setSize(ctx, chatID, last); err != nil {
		return nil, err
	}
	if err := m.clearSlot(ctx, chatID, last); err != nil {
		return nil, err
	}
	return entry, nil
}

// Size returns the number of queued items
func (m *Manager) Size(ctx context.Context, chatID string) (int, error) {
	return m.size(ctx, chatID)
}

// Entries returns every queued item, oldest first
func (m *Manager) Entries(ctx context.Context, chatID string) ([]models.QueueEntry, error) {
	unlock := m.locks.Lock(chatID)
	defer unlock()

	size, err := m.size(ctx, chatID)
	if err != nil {
		return nil, err
	}

	entries := make([]models.QueueEntry, 0, size)
	for i := 0; i < size; i++ {
		e, err := m.readSlot(ctx, chatID, i)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

func (m *Manager) size(ctx context.Context, chatID string) (int, error) {
	key := store.QueueSizeKey(chatID)
	raw, err := store.GetOptional(ctx, m.store, key)
	if err != nil {
		return 0, errors.NewStorageError("get", key, err)
	}
	if raw == "" {
		return 0, nil
	}

	size, err := strconv.Atoi(raw)
	if err != nil || size < 0 {
		return 0, errors.NewStorageError("parse", key, err).WithContext("value", raw)
	}
	return size, nil
}

func (m *Manager) setSize(ctx context.Context, chatID string, size int) error {
	key := store.QueueSizeKey(chatID)
	if err := m.store.Set(ctx, key, strconv.Itoa(size)); err != nil {
		return errors.NewStorageError("set", key, err)
	}
	return nil
}

func (m *Manager) readSlot(ctx context.Context, chatID string, slot int) (*models.QueueEntry, error) {
	textKey := store.QueueTextKey(chatID, slot)
	text, err := store.GetOptional(ctx, m.store, textKey)
	if err != nil {
		return nil, errors.NewStorageError("get", textKey, err)
	}

	refKey := store.QueueAttachmentKey(chatID, slot)
	ref, err := store.GetOptional(ctx, m.store, refKey)
	if err != nil {
		return nil, errors.NewStorageError("get", refKey, err)
	}

	return &models.QueueEntry{Text: text, AttachmentRef: ref}, nil
}

// writeSlot overwrites both fields of a slot, so a slot orphaned by an
// interrupted enqueue never leaks its attachment into the next item.
func (m *Manager) writeSlot(ctx context.Context, chatID string, slot int, entry models.QueueEntry) error {
	textKey := store.QueueTextKey(chatID, slot)
	if err := m.store.Set(ctx, textKey, entry.Text); err != nil {
		return errors.NewStorageError("set", textKey, err)
	}

	refKey := store.QueueAttachmentKey(chatID, slot)
	if entry.HasAttachment() {
		if err := m.store.Set(ctx, refKey, entry.AttachmentRef); err != nil {
			return errors.NewStorageError("set", refKey, err)
		}
		return nil
	}
	if err := m.store.Delete(ctx, refKey); err != nil {
		return errors.NewStorageError("delete", refKey, err)
	}
	return nil
}

func (m *Manager) clearSlot(ctx context.Context, chatID string, slot int) error {
	textKey := store.QueueTextKey(chatID, slot)
	refKey := store.QueueAttachmentKey(chatID, slot)
	if err := m.store.Delete(ctx, textKey, refKey); err != nil {
		return errors.NewStorageError("delete", textKey, err)
	}
	return nil
}

// moveSlot renames both fields of slot from onto slot to; a field missing at
// the source is cleared at the destination.
func (m *Manager) moveSlot(ctx context.Context, chatID string, from, to int) error {
	fields := []func(string, int) string{store.QueueTextKey, store.QueueAttachmentKey}
	for _, field := range fields {
		src, dst := field(chatID, from), field(chatID, to)
		err := m.store.Rename(ctx, src, dst)
		if stderrors.Is(err, store.ErrNotFound) {
			err = m.store.Delete(ctx, dst)
		}
		if err != nil {
			return errors.NewStorageError("rename", src, err)
		}
	}
	return nil
}
