// Package realtime pushes sync results to connected browsers over SSE.
package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"mailbox_server/core/domain"
	"mailbox_server/core/port/out"

	"github.com/rs/zerolog"
)

const EventSyncCompleted = "sync.completed"

// Event is one server-sent event.
type Event struct {
	Type      string    `json:"type"`
	Seq       int64     `json:"seq"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// =============================================================================
// SSE Adapter - SyncPublisher implementation
// =============================================================================

// SSEAdapter fans events out to the open streams of each session.
type SSEAdapter struct {
	clients map[string]map[chan *Event]struct{} // sessionID -> channels
	mu      sync.RWMutex
	log     zerolog.Logger

	messagesSent    atomic.Int64
	messagesDropped atomic.Int64
	seqCounter      atomic.Int64
}

var _ out.SyncPublisher = (*SSEAdapter)(nil)

func NewSSEAdapter(log zerolog.Logger) *SSEAdapter {
	return &SSEAdapter{
		clients: make(map[string]map[chan *Event]struct{}),
		log:     log.With().Str("component", "sse_adapter").Logger(),
	}
}

// Subscribe creates a new subscription channel for a session.
func (a *SSEAdapter) Subscribe(sessionID string) chan *Event {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch := make(chan *Event, 16)
	if a.clients[sessionID] == nil {
		a.clients[sessionID] = make(map[chan *Event]struct{})
	}
	a.clients[sessionID][ch] = struct{}{}

	a.log.Debug().
		Str("session_id", sessionID).
		Int("total_connections", len(a.clients[sessionID])).
		Msg("client subscribed")
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (a *SSEAdapter) Unsubscribe(sessionID string, ch chan *Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	channels, ok := a.clients[sessionID]
	if !ok {
		return
	}
	if _, ok := channels[ch]; ok {
		delete(channels, ch)
		close(ch)
	}
	if len(channels) == 0 {
		delete(a.clients, sessionID)
	}
	a.log.Debug().Str("session_id", sessionID).Msg("client unsubscribed")
}

// DisconnectSession closes every stream of a session.
func (a *SSEAdapter) DisconnectSession(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for ch := range a.clients[sessionID] {
		close(ch)
	}
	delete(a.clients, sessionID)
}

// Push sends an event to every stream of a session. Slow streams drop events.
func (a *SSEAdapter) Push(_ context.Context, sessionID string, event *Event) {
	event.Seq = a.seqCounter.Add(1)

	a.mu.RLock()
	defer a.mu.RUnlock()

	for ch := range a.clients[sessionID] {
		select {
		case ch <- event:
			a.messagesSent.Add(1)
		default:
			a.messagesDropped.Add(1)
			a.log.Warn().
				Str("session_id", sessionID).
				Str("event_type", event.Type).
				Int64("seq", event.Seq).
				Msg("dropped event due to full buffer")
		}
	}
}

// PublishSync implements out.SyncPublisher.
func (a *SSEAdapter) PublishSync(ctx context.Context, sessionID string, result *domain.SyncResult) error {
	a.Push(ctx, sessionID, &Event{
		Type:      EventSyncCompleted,
		Data:      result,
		Timestamp: result.FinishedAt,
	})
	return nil
}

// IsConnected checks if a session has open streams.
func (a *SSEAdapter) IsConnected(sessionID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.clients[sessionID]) > 0
}

// GetMetrics returns adapter metrics.
func (a *SSEAdapter) GetMetrics() SSEMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	total := 0
	for _, channels := range a.clients {
		total += len(channels)
	}
	return SSEMetrics{
		ConnectedSessions: len(a.clients),
		TotalConnections:  total,
		MessagesSent:      a.messagesSent.Load(),
		MessagesDropped:   a.messagesDropped.Load(),
	}
}

// SSEMetrics holds SSE adapter metrics.
type SSEMetrics struct {
	ConnectedSessions int   `json:"connected_sessions"`
	TotalConnections  int   `json:"total_connections"`
	MessagesSent      int64 `json:"messages_sent"`
	MessagesDropped   int64 `json:"messages_dropped"`
}

// =============================================================================
// SSE Hub
// =============================================================================

// SSEHub hands out clients to the HTTP stream handler.
type SSEHub struct {
	adapter           *SSEAdapter
	heartbeatInterval time.Duration
}

func NewSSEHub(adapter *SSEAdapter) *SSEHub {
	return &SSEHub{adapter: adapter, heartbeatInterval: 25 * time.Second}
}

// CreateClient subscribes a new stream for a session.
func (h *SSEHub) CreateClient(sessionID string) *SSEClient {
	return &SSEClient{
		SessionID: sessionID,
		Events:    h.adapter.Subscribe(sessionID),
		hub:       h,
	}
}

// SetHeartbeatInterval sets the heartbeat interval (for testing).
func (h *SSEHub) SetHeartbeatInterval(d time.Duration) {
	h.heartbeatInterval = d
}

// SSEClient is one open stream.
type SSEClient struct {
	SessionID string
	Events    chan *Event
	hub       *SSEHub
	closeOnce sync.Once
}

func (c *SSEClient) Close() {
	c.closeOnce.Do(func() {
		c.hub.adapter.Unsubscribe(c.SessionID, c.Events)
	})
}

func (c *SSEClient) HeartbeatInterval() time.Duration {
	return c.hub.heartbeatInterval
}

// SerializeEvent renders event as an SSE frame.
func SerializeEvent(event *Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(data)+len(event.Type)+16)
	frame = append(frame, "event: "...)
	frame = append(frame, event.Type...)
	frame = append(frame, "\ndata: "...)
	frame = append(frame, data...)
	frame = append(frame, "\n\n"...)
	return frame, nil
}
