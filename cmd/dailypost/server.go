package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"dailypost/internal/constants"
	"dailypost/internal/errors"
	"dailypost/internal/events"
	"dailypost/internal/metrics"
	"dailypost/internal/middleware"
	"dailypost/internal/models"
	"dailypost/internal/privacy"
	"dailypost/internal/queue"
	"dailypost/internal/service"
	"dailypost/internal/settings"
	"dailypost/internal/store"
	"dailypost/internal/tracing"
	"dailypost/internal/validation"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxRequestBytes = constants.MaxRequestBodyMB << 20

type chatMigrator interface {
	Migrate(ctx context.Context, oldChatID, newChatID string) (*service.MigrationResult, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// ServerDeps are the components the HTTP API drives
type ServerDeps struct {
	Store      store.Store
	Queue      *queue.Manager
	Settings   *settings.Registry
	Dispatcher service.ChatDispatcher
	Migrator   chatMigrator
	Hub        *events.Hub
	Notifier   service.Notifier
}

type Server struct {
	router *mux.Router
	logger *logrus.Logger
	config *models.Config
	deps   ServerDeps
	now    func() time.Time
	server *http.Server
}

func NewServer(config *models.Config, deps ServerDeps, logger *logrus.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		logger: logger,
		config: config,
		deps:   deps,
		now:    time.Now,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.logger, s.config.Server.TrustProxyHeaders))
	s.router.Use(middleware.BearerAuth(s.config.Server.APIToken, s.logger, "/health"))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	chats := s.router.PathPrefix("/chats/{chat}").Subrouter()
	chats.HandleFunc("/queue", s.handleEnqueue()).Methods(http.MethodPost)
	chats.HandleFunc("/queue", s.handleQueue()).Methods(http.MethodGet)
	chats.HandleFunc("/queue/newest", s.handleUndo()).Methods(http.MethodDelete)
	chats.HandleFunc("/settings", s.handleGetSettings()).Methods(http.MethodGet)
	chats.HandleFunc("/settings", s.handlePutSettings()).Methods(http.MethodPut)
	chats.HandleFunc("/credentials", s.handleCredentials()).Methods(http.MethodPut)
	chats.HandleFunc("/dispatch", s.handleDispatch()).Methods(http.MethodPost)
	chats.HandleFunc("/migrate", s.handleMigrate()).Methods(http.MethodPost)
	chats.HandleFunc("/events", s.handleEvents()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	port := s.config.Server.Port
	if port == 0 {
		port = constants.DefaultServerPort
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  seconds(s.config.Server.ReadTimeoutSec, constants.DefaultServerReadTimeoutSec),
		WriteTimeout: seconds(s.config.Server.WriteTimeoutSec, constants.DefaultServerWriteTimeoutSec),
		IdleTimeout:  seconds(s.config.Server.IdleTimeoutSec, constants.DefaultServerIdleTimeoutSec),
	}

	s.logger.Infof("Starting server on port %d", port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func seconds(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p, ok := s.deps.Store.(pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				s.logger.WithError(err).Warn("Health check failed: store unreachable")
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

type metricsResponse struct {
	metrics.Snapshot
	ScheduledChats int `json:"scheduled_chats"`
}

// handleMetrics serves the in-process metrics together with the number of
// chats that currently have a post time.
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := metricsResponse{ScheduledChats: -1}
		if chats, err := s.deps.Settings.ScheduledChats(r.Context()); err != nil {
			s.logger.WithError(err).Warn("Failed to count scheduled chats for metrics")
		} else {
			resp.ScheduledChats = len(chats)
			metrics.SetGauge("scheduler_scheduled_chats", float64(len(chats)), nil, "Chats with a post time")
		}
		resp.Snapshot = metrics.GetAllMetrics()

		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		s.writeJSON(w, http.StatusOK, resp)
	}
}

type queueResponse struct {
	ChatID string             `json:"chat_id"`
	Size   int                `json:"size"`
	Slot   *int               `json:"slot,omitempty"`
	Oldest *models.QueueEntry `json:"oldest,omitempty"`
}

func (s *Server) handleEnqueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID, ok := s.chatID(w, r)
		if !ok {
			return
		}

		var item models.InboundItem
		if !s.decode(w, r, &item) {
			return
		}
		if err := validation.ValidateText(item.Text); err != nil {
			s.writeError(w, r, err)
			return
		}

		slot, err := s.deps.Queue.Enqueue(r.Context(), chatID, queue.EntryFromInbound(item))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		size := slot + 1

		s.notify(r.Context(), chatID, models.NotifyEnqueued, service.EnqueuedMessage(size))
		s.writeJSON(w, http.StatusCreated, queueResponse{ChatID: chatID, Size: size, Slot: &slot})
	}
}

func (s *Server) handleQueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID, ok := s.chatID(w, r)
		if !ok {
			return
		}

		size, err := s.deps.Queue.Size(r.Context(), chatID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp := queueResponse{ChatID: chatID, Size: size}
		if size > 0 {
			oldest, err := s.deps.Queue.PeekOldest(r.Context(), chatID)
			if err != nil && !errors.Is(err, errors.ErrCodeEmptyQueue) {
				s.writeError(w, r, err)
				return
			}
			resp.Oldest = oldest
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleUndo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID, ok := s.chatID(w, r)
		if !ok {
			return
		}

		entry, err := s.deps.Queue.RemoveNewest(r.Context(), chatID)
		if errors.Is(err, errors.ErrCodeEmptyQueue) {
			s.notify(r.Context(), chatID, models.NotifyRemoved, service.UndoEmptyMessage())
			s.writeError(w, r, err)
			return
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		size, err := s.deps.Queue.Size(r.Context(), chatID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.notify(r.Context(), chatID, models.NotifyRemoved, service.RemovedMessage(*entry, size))
		s.writeJSON(w, http.StatusOK, struct {
			Removed models.QueueEntry `json:"removed"`
			Size    int               `json:"size"`
		}{*entry, size})
	}
}

type settingsRequest struct {
	Timezone *string `json:"timezone"`
	PostTime *string `json:"post_time"`
}

type settingsResponse struct {
	models.ChatSettings
	LocalTime string `json:"local_time"`
}

func (s *Server) handleGetSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID, ok := s.chatID(w, r)
		if !ok {
			return
		}
		s.writeSettings(w, r, chatID)
	}
}

// handlePutSettings validates every field before writing any of them
func (s *Server) handlePutSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID, ok := s.chatID(w, r)
		if !ok {
			return
		}

		var req settingsRequest
		if !s.decode(w, r, &req) {
			return
		}
		if req.Timezone == nil && req.PostTime == nil {
			s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "nothing to update"))
			return
		}

		var timezone, postTime string
		if req.Timezone != nil {
			loc, err := validation.ValidateTimezone(*req.Timezone)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			timezone = loc.String()
		}
		if req.PostTime != nil {
			pt, err := validation.ParsePostTime(*req.PostTime)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			postTime = pt
		}

		if timezone != "" {
			if err := s.deps.Settings.SetTimezone(r.Context(), chatID, timezone); err != nil {
				s.writeError(w, r, err)
				return
			}
		}
		if postTime != "" {
			if err := s.deps.Settings.SetPostTime(r.Context(), chatID, postTime); err != nil {
				s.writeError(w, r, err)
				return
			}
		}

		s.logger.WithFields(logrus.Fields{
			"chat_id":   privacy.MaskChatID(chatID),
			"timezone":  timezone,
			"post_time": postTime,
		}).Info("Chat settings updated")
		s.writeSettings(w, r, chatID)
	}
}

func (s *Server) writeSettings(w http.ResponseWriter, r *http.Request, chatID string) {
	cs, err := s.deps.Settings.Settings(r.Context(), chatID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	loc, err := s.deps.Settings.Location(r.Context(), chatID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settingsResponse{
		ChatSettings: *cs,
		LocalTime:    s.now().In(loc).Format(constants.PostTimeLayout),
	})
}

func (s *Server) handleCredentials() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID, ok := s.chatID(w, r)
		if !ok {
			return
		}

		var creds models.Credentials
		if !s.decode(w, r, &creds) {
			return
		}
		if err := s.deps.Settings.SetCredentials(r.Context(), chatID, creds); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeSettings(w, r, chatID)
	}
}

func (s *Server) handleDispatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID, ok := s.chatID(w, r)
		if !ok {
			return
		}

		// A client that hangs up does not abort a publish in progress
		outcome, err := s.deps.Dispatcher.Dispatch(context.WithoutCancel(r.Context()), chatID)
		resp := struct {
			Outcome models.DispatchOutcome `json:"outcome"`
			Reason  string                 `json:"reason,omitempty"`
		}{Outcome: outcome}

		switch {
		case outcome == models.OutcomeFailed:
			resp.Reason = errors.Reason(err)
			s.writeJSON(w, http.StatusBadGateway, resp)
		case err != nil:
			s.writeError(w, r, err)
		case outcome == models.OutcomeSkipped:
			s.writeJSON(w, http.StatusConflict, resp)
		default:
			s.writeJSON(w, http.StatusOK, resp)
		}
	}
}

func (s *Server) handleMigrate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID, ok := s.chatID(w, r)
		if !ok {
			return
		}

		var req struct {
			NewChatID string `json:"new_chat_id"`
		}
		if !s.decode(w, r, &req) {
			return
		}
		if err := validation.ValidateChatID(req.NewChatID); err != nil {
			s.writeError(w, r, err)
			return
		}

		result, err := s.deps.Migrator.Migrate(r.Context(), chatID, req.NewChatID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID, ok := s.chatID(w, r)
		if !ok {
			return
		}
		// The stream outlives the server's write timeout
		if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
			s.logger.WithError(err).Debug("Could not clear write deadline for event stream")
		}
		s.deps.Hub.ServeWS(w, r, chatID)
	}
}

func (s *Server) chatID(w http.ResponseWriter, r *http.Request) (string, bool) {
	chatID := mux.Vars(r)["chat"]
	if err := validation.ValidateChatID(chatID); err != nil {
		s.writeError(w, r, err)
		return "", false
	}
	return chatID, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := validation.ValidateHTTPRequestSize(r, maxRequestBytes); err != nil {
		s.writeError(w, r, err)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, r, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid JSON body").
			WithUserMessage("invalid JSON body: "+err.Error()))
		return false
	}
	return true
}

func (s *Server) notify(ctx context.Context, chatID, kind, text string) {
	if s.deps.Notifier == nil {
		return
	}
	n := models.Notification{ChatID: chatID, Kind: kind, Text: text}
	if err := s.deps.Notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		s.logger.WithFields(logrus.Fields{
			"chat_id": privacy.MaskChatID(chatID),
			"kind":    kind,
		}).WithError(err).Warn("Failed to deliver notification")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatusCode(err)
	entry := s.logger.WithFields(logrus.Fields{
		"request_id": tracing.GetRequestID(r.Context()),
		"code":       errors.GetCode(err),
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}
	resp := errors.ToHTTPResponse(err, tracing.GetRequestID(r.Context()))
	// Client errors without a user message still explain themselves
	if appErr, ok := errors.As(err); ok && appErr.UserMessage == "" && status < http.StatusInternalServerError {
		resp.Error.Message = appErr.Message
	}
	s.writeJSON(w, status, resp)
}
