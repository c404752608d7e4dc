// Package settings stores the per-chat scheduling configuration and the
// publisher credentials. Values are read straight from the store on every
// call; nothing is cached in process.
package settings

import (
	"context"
	"time"

	"dailypost/internal/constants"
	"dailypost/internal/errors"
	"dailypost/internal/models"
	"dailypost/internal/privacy"
	"dailypost/internal/store"

	"github.com/sirupsen/logrus"
)

// Registry reads and writes chat settings
type Registry struct {
	store     store.Store
	encryptor *Encryptor
	logger    *logrus.Logger
}

// NewRegistry creates a settings registry. A nil encryptor stores
// credentials as plaintext.
func NewRegistry(s store.Store, encryptor *Encryptor, logger *logrus.Logger) *Registry {
	if encryptor == nil {
		encryptor = &Encryptor{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		store:     s,
		encryptor: encryptor,
		logger:    logger,
	}
}

// Timezone returns the chat's IANA zone name, UTC when unset
func (r *Registry) Timezone(ctx context.Context, chatID string) (string, error) {
	return r.getOr(ctx, store.TimezoneKey(chatID), constants.DefaultTimezone)
}

// SetTimezone stores an already validated zone name
func (r *Registry) SetTimezone(ctx context.Context, chatID, timezone string) error {
	return r.set(ctx, store.TimezoneKey(chatID), timezone)
}

// Location resolves the chat's zone. A stored name that no longer loads
// falls back to UTC so the chat keeps being scheduled.
func (r *Registry) Location(ctx context.Context, chatID string) (*time.Location, error) {
	name, err := r.Timezone(ctx, chatID)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(name)
	if err != nil || name == "Local" {
		r.logger.WithFields(logrus.Fields{
			"chat_id":  privacy.MaskChatID(chatID),
			"timezone": name,
		}).Warn("Stored timezone is invalid, falling back to UTC")
		return time.UTC, nil
	}
	return loc, nil
}

// PostTime returns the chat's local HH:MM post time, 12:00 when unset
func (r *Registry) PostTime(ctx context.Context, chatID string) (string, error) {
	return r.getOr(ctx, store.PostTimeKey(chatID), constants.DefaultPostTime)
}

// SetPostTime stores a post time. The value must already be canonical HH:MM.
func (r *Registry) SetPostTime(ctx context.Context, chatID, postTime string) error {
	if _, err := time.Parse(constants.PostTimeLayout, postTime); err != nil || len(postTime) != len(constants.PostTimeLayout) {
		return errors.NewValidationError("post_time", postTime, "post time must be canonical HH:MM")
	}
	return r.set(ctx, store.PostTimeKey(chatID), postTime)
}

// LastDispatched returns the local date of the last attempted dispatch, or
// "" when the chat was never attempted.
func (r *Registry) LastDispatched(ctx context.Context, chatID string) (string, error) {
	return r.getOr(ctx, store.LastDispatchedKey(chatID), "")
}

// SetLastDispatched records the local date of a dispatch attempt
func (r *Registry) SetLastDispatched(ctx context.Context, chatID, date string) error {
	return r.set(ctx, store.LastDispatchedKey(chatID), date)
}

// Credentials returns the chat's publisher credentials. The result is zero
// when the chat never authorized.
func (r *Registry) Credentials(ctx context.Context, chatID string) (models.Credentials, error) {
	token, err := r.getSecret(ctx, store.AccessTokenKey(chatID))
	if err != nil {
		return models.Credentials{}, err
	}
	secret, err := r.getSecret(ctx, store.AccessTokenSecretKey(chatID))
	if err != nil {
		return models.Credentials{}, err
	}
	return models.Credentials{AccessToken: token, AccessTokenSecret: secret}, nil
}

// SetCredentials completes publisher authorization for a chat. The first
// authorization also writes the default timezone and post time, which puts
// the chat on the schedule; existing settings are never overwritten.
func (r *Registry) SetCredentials(ctx context.Context, chatID string, creds models.Credentials) error {
	if creds.IsZero() {
		return errors.NewValidationError("access_token", "", "access token cannot be empty")
	}

	if err := r.setSecret(ctx, store.AccessTokenKey(chatID), creds.AccessToken); err != nil {
		return err
	}
	if err := r.setSecret(ctx, store.AccessTokenSecretKey(chatID), creds.AccessTokenSecret); err != nil {
		return err
	}

	defaults := []struct{ key, value string }{
		{store.TimezoneKey(chatID), constants.DefaultTimezone},
		{store.PostTimeKey(chatID), constants.DefaultPostTime},
	}
	for _, d := range defaults {
		exists, err := store.Exists(ctx, r.store, d.key)
		if err != nil {
			return errors.NewStorageError("get", d.key, err)
		}
		if exists {
			continue
		}
		if err := r.set(ctx, d.key, d.value); err != nil {
			return err
		}
	}

	r.logger.WithFields(logrus.Fields{
		"chat_id":   privacy.MaskChatID(chatID),
		"encrypted": r.encryptor.Enabled(),
	}).Info("Stored publisher credentials")
	return nil
}

// Settings returns everything the registry knows about a chat
func (r *Registry) Settings(ctx context.Context, chatID string) (*models.ChatSettings, error) {
	tz, err := r.Timezone(ctx, chatID)
	if err != nil {
		return nil, err
	}
	postTime, err := r.PostTime(ctx, chatID)
	if err != nil {
		return nil, err
	}
	last, err := r.LastDispatched(ctx, chatID)
	if err != nil {
		return nil, err
	}
	authorized, err := store.Exists(ctx, r.store, store.AccessTokenKey(chatID))
	if err != nil {
		return nil, errors.NewStorageError("get", store.AccessTokenKey(chatID), err)
	}

	return &models.ChatSettings{
		Timezone:       tz,
		PostTime:       postTime,
		LastDispatched: last,
		Authorized:     authorized,
	}, nil
}

// ScheduledChats lists every chat that has a post time, which is the set the
// scheduler considers on each tick.
func (r *Registry) ScheduledChats(ctx context.Context) ([]string, error) {
	pattern := store.PostTimePattern()
	keys, err := r.store.Keys(ctx, pattern)
	if err != nil {
		return nil, errors.NewStorageError("keys", pattern, err)
	}

	chats := make([]string, 0, len(keys))
	for _, key := range keys {
		chatID, ok := store.ChatIDFromKey(key)
		if !ok || key != store.PostTimeKey(chatID) {
			continue
		}
		chats = append(chats, chatID)
	}
	return chats, nil
}

func (r *Registry) getOr(ctx context.Context, key, fallback string) (string, error) {
	v, err := store.GetOptional(ctx, r.store, key)
	if err != nil {
		return "", errors.NewStorageError("get", key, err)
	}
	if v == "" {
		return fallback, nil
	}
	return v, nil
}

func (r *Registry) set(ctx context.Context, key, value string) error {
	if err := r.store.Set(ctx, key, value); err != nil {
		return errors.NewStorageError("set", key, err)
	}
	return nil
}

func (r *Registry) getSecret(ctx context.Context, key string) (string, error) {
	raw, err := store.GetOptional(ctx, r.store, key)
	if err != nil {
		return "", errors.NewStorageError("get", key, err)
	}
	plain, err := r.encryptor.Decrypt(raw)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeAuthentication, "failed to decrypt credentials").
			WithContext("key", privacy.MaskStoreKey(key))
	}
	return plain, nil
}

func (r *Registry) setSecret(ctx context.Context, key, value string) error {
	sealed, err := r.encryptor.Encrypt(value)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to encrypt credentials")
	}
	return r.set(ctx, key, sealed)
}
