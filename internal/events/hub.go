// Package events streams chat notifications to websocket subscribers.
package events

import (
	"context"
	"net/http"
	"sync"
	"time"

	"dailypost/internal/metrics"
	"dailypost/internal/models"
	"dailypost/internal/privacy"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

const (
	subscriberBuffer = 32
	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second
)

// Event is one notification as seen by a subscriber
type Event struct {
	ChatID    string    `json:"chat_id"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Subscription receives the events of one chat until Close is called. C is
// closed when the subscription ends, including when the hub drops a
// subscriber that fell behind.
type Subscription struct {
	C      <-chan Event
	ch     chan Event
	chatID string
	hub    *Hub
	once   sync.Once
}

// Close ends the subscription
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub fans notifications out to the subscribers of each chat
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
	logger *logrus.Logger
	now    func() time.Time
}

func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.New()
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		logger: logger,
		now:    time.Now,
	}
}

// Subscribe registers a subscriber for chatID. It returns nil once the hub
// is closed.
func (h *Hub) Subscribe(chatID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	ch := make(chan Event, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, chatID: chatID, hub: h}
	if h.subs[chatID] == nil {
		h.subs[chatID] = make(map[*Subscription]struct{})
	}
	h.subs[chatID][sub] = struct{}{}
	metrics.SetGauge("event_subscribers", float64(h.countLocked()), nil, "Connected event stream subscribers")
	return sub
}

// Subscribers returns how many subscribers follow chatID
func (h *Hub) Subscribers(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[chatID])
}

// Notify delivers n to every subscriber of its chat without blocking. A
// subscriber whose buffer is full is dropped.
func (h *Hub) Notify(ctx context.Context, n models.Notification) error {
	event := Event{ChatID: n.ChatID, Kind: n.Kind, Text: n.Text, Timestamp: h.now().UTC()}

	h.mu.RLock()
	var slow []*Subscription
	for sub := range h.subs[n.ChatID] {
		select {
		case sub.ch <- event:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.logger.WithField("chat_id", privacy.MaskChatID(n.ChatID)).Warn("Event subscriber is not keeping up, dropping it")
		metrics.IncrementCounter("event_subscribers_dropped_total", nil, "Subscribers dropped for falling behind")
		h.remove(sub)
	}
	return nil
}

// Close ends every subscription and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for chatID, subs := range h.subs {
		for sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
		}
		delete(h.subs, chatID)
	}
	metrics.SetGauge("event_subscribers", 0, nil, "Connected event stream subscribers")
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.subs[sub.chatID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.subs, sub.chatID)
		}
	}
	sub.once.Do(func() { close(sub.ch) })
	metrics.SetGauge("event_subscribers", float64(h.countLocked()), nil, "Connected event stream subscribers")
}

func (h *Hub) countLocked() int {
	n := 0
	for _, subs := range h.subs {
		n += len(subs)
	}
	return n
}

// ServeWS upgrades the request and streams chatID's events as JSON messages
// until the client goes away or the hub closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, chatID string) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to accept event stream connection")
		return
	}
	defer conn.CloseNow()

	sub := h.Subscribe(chatID)
	if sub == nil {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer sub.Close()

	fields := logrus.Fields{"chat_id": privacy.MaskChatID(chatID)}
	h.logger.WithFields(fields).Debug("Event stream connected")

	// Subscribers only listen; CloseRead handles control frames and cancels
	// ctx when the client disconnects.
	ctx := conn.CloseRead(r.Context())
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.WithFields(fields).Debug("Event stream disconnected")
			return
		case event, ok := <-sub.C:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "subscription ended")
				return
			}
			if err := h.write(ctx, conn, event); err != nil {
				h.logger.WithFields(fields).WithError(err).Debug("Failed to write event")
				return
			}
		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, event Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, event)
}
