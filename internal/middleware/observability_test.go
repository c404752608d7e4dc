package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"dailypost/internal/metrics"
	"dailypost/internal/tracing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(logger *logrus.Logger, handler http.HandlerFunc) *mux.Router {
	r := mux.NewRouter()
	r.Use(Observability(logger, false))
	r.HandleFunc("/chats/{chat}/queue", handler).Methods(http.MethodGet)
	return r
}

func TestObservability_RequestIDAndMetrics(t *testing.T) {
	metrics.GetRegistry().Reset()
	t.Cleanup(metrics.GetRegistry().Reset)

	var logs bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&logs)
	logger.SetFormatter(&logrus.JSONFormatter{})

	var seenID string
	router := newRouter(logger, func(w http.ResponseWriter, r *http.Request) {
		seenID = tracing.GetRequestID(r.Context())
		assert.False(t, tracing.GetStartTime(r.Context()).IsZero())
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})

	req := httptest.NewRequest(http.MethodGet, "/chats/-100123/queue", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	_, err := uuid.Parse(seenID)
	require.NoError(t, err)
	assert.Equal(t, seenID, rec.Header().Get(tracing.RequestIDHeader))

	snapshot := metrics.GetAllMetrics()
	counter, ok := snapshot.Counters["http_requests_total_method:GET_route:/chats/{chat}/queue_status_code:418"]
	require.True(t, ok, "counters: %v", snapshot.Counters)
	assert.Equal(t, float64(1), counter.Value)
	assert.Equal(t, float64(0), snapshot.Counters["http_requests_active"].Value)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	assert.Equal(t, "HTTP request completed", entry["msg"])
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "/chats/{chat}/queue", entry[LogFieldRoute])
	assert.Equal(t, float64(15), entry[LogFieldSize])
	assert.Equal(t, "192.0.2.1", entry[LogFieldRemoteIP])
	assert.NotContains(t, logs.String(), "-100123")
}

func TestObservability_KeepsCallerRequestID(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	router := newRouter(logger, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "upstream-42", tracing.GetRequestID(r.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/chats/1/queue", nil)
	req.Header.Set(tracing.RequestIDHeader, "upstream-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "upstream-42", rec.Header().Get(tracing.RequestIDHeader))
}

func TestResponseWrapper_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWrapper{ResponseWriter: rec, statusCode: http.StatusOK}

	_, _ = w.Write([]byte("ok"))
	w.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusOK, w.statusCode)
	assert.Equal(t, int64(2), w.responseSize)
	assert.Equal(t, rec, w.Unwrap())
}

func TestResponseWrapper_HijackUnsupported(t *testing.T) {
	w := &responseWrapper{ResponseWriter: httptest.NewRecorder()}
	_, _, err := w.Hijack()
	assert.Error(t, err)
}

func TestBearerAuth(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := BearerAuth("s3cret", logger, "/health")(ok)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"valid token", "/chats/1/queue", "Bearer s3cret", http.StatusNoContent},
		{"case insensitive scheme", "/chats/1/queue", "bearer s3cret", http.StatusNoContent},
		{"wrong token", "/chats/1/queue", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "/chats/1/queue", "Basic s3cret", http.StatusUnauthorized},
		{"missing header", "/chats/1/queue", "", http.StatusUnauthorized},
		{"open path", "/health", "", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestBearerAuth_EmptyTokenDisabled(t *testing.T) {
	handler := BearerAuth("", logrus.New())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chats/1/queue", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
