package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"dailypost/internal/constants"
	"dailypost/internal/models"
	"dailypost/internal/retry"

	"github.com/sirupsen/logrus"
)

// ErrUnknownDriver is returned for a store driver Open does not know
var ErrUnknownDriver = stderrors.New("unknown store driver")

// Open creates the Store selected by cfg.Driver. It makes a single connection
// attempt; see OpenWithRetry.
func Open(ctx context.Context, cfg models.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", constants.StoreDriverRedis:
		timeout := time.Duration(cfg.ConnectTimeoutSec) * time.Second
		if timeout <= 0 {
			timeout = constants.DefaultStoreConnectTimeout * time.Second
		}
		client, err := ConnectRedis(ctx, cfg.RedisURL, timeout)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client, constants.DefaultStoreScanCount), nil
	case constants.StoreDriverSQLite:
		return NewSQLiteStore(cfg.SQLitePath)
	case constants.StoreDriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownDriver, cfg.Driver)
	}
}

// OpenWithRetry calls Open until it succeeds or backoff gives up. Startup
// races with the store container are common, so connection failures are
// retried; an unknown driver is not.
func OpenWithRetry(ctx context.Context, cfg models.StoreConfig, backoff *retry.Backoff, logger *logrus.Logger) (Store, error) {
	var s Store
	attempt := 0
	err := backoff.RetryWithPredicate(ctx, func() error {
		attempt++
		var openErr error
		s, openErr = Open(ctx, cfg)
		if openErr != nil {
			logger.WithFields(logrus.Fields{
				"driver":  cfg.Driver,
				"attempt": attempt,
			}).WithError(openErr).Warn("Failed to open store")
		}
		return openErr
	}, func(err error) bool {
		return !stderrors.Is(err, ErrUnknownDriver)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Driver, err)
	}
	return s, nil
}
