package service

import (
	"context"
	"sync"
	"testing"

	"dailypost/internal/constants"
	"dailypost/internal/media"
	"dailypost/internal/models"
	"dailypost/internal/queue"
	"dailypost/internal/settings"
	"dailypost/internal/store"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, creds models.Credentials, post models.Post) (*models.PublishResult, error) {
	args := m.Called(ctx, creds, post)
	if r := args.Get(0); r != nil {
		return r.(*models.PublishResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockStager struct {
	mock.Mock
}

func (m *mockStager) Stage(ctx context.Context, ref string) (*media.Staged, error) {
	args := m.Called(ctx, ref)
	if s := args.Get(0); s != nil {
		return s.(*media.Staged), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, chatID string) (models.DispatchOutcome, error) {
	args := m.Called(ctx, chatID)
	return args.Get(0).(models.DispatchOutcome), args.Error(1)
}

type mockTextSender struct {
	mock.Mock
}

func (m *mockTextSender) Notify(ctx context.Context, chatID, text string) error {
	return m.Called(ctx, chatID, text).Error(0)
}

// recordingNotifier keeps every notification it receives
type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (r *recordingNotifier) Notify(ctx context.Context, n models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) For(chatID string) []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Notification
	for _, n := range r.sent {
		if n.ChatID == chatID {
			out = append(out, n)
		}
	}
	return out
}

type testEnv struct {
	store    *store.MemoryStore
	queue    *queue.Manager
	settings *settings.Registry
	logger   *logrus.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	s := store.NewMemoryStore()
	return &testEnv{
		store:    s,
		queue:    queue.NewManager(s, constants.MaxQueueSize, logger),
		settings: settings.NewRegistry(s, nil, logger),
		logger:   logger,
	}
}

func (e *testEnv) authorize(t *testing.T, chatID string) {
	t.Helper()
	require.NoError(t, e.settings.SetCredentials(context.Background(), chatID, models.Credentials{AccessToken: "tok-" + chatID, AccessTokenSecret: "sec"}))
}

func (e *testEnv) enqueue(t *testing.T, chatID string, entries ...models.QueueEntry) {
	t.Helper()
	for _, entry := range entries {
		_, err := e.queue.Enqueue(context.Background(), chatID, entry)
		require.NoError(t, err)
	}
}
