package rpcserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/annassistant/anna/internal/metrics"
	"github.com/annassistant/anna/pkg/types"
)

// StreamEventType is the closed set of Fix-It progress events a live
// collaborator UI can subscribe to, ported from the teacher's websocket
// message taxonomy (InvestigationStarted/HypothesisGenerated/ToolCalled/
// ToolResult/FindingDiscovered/ConclusionReached/RecommendationProposed)
// and mapped onto Fix-It's own state machine instead of a generic chat
// investigation.
type StreamEventType string

const (
	EventSessionStarted      StreamEventType = "fixit_session_started"
	EventHypothesisGenerated StreamEventType = "hypothesis_generated"
	EventToolCalled          StreamEventType = "tool_called"
	EventToolResult          StreamEventType = "tool_result"
	EventFixProposed         StreamEventType = "fix_proposed"
	EventSessionResolved     StreamEventType = "fixit_session_resolved"
	EventSessionStuck        StreamEventType = "fixit_session_stuck"
)

// StreamEvent is one push notification delivered to every subscriber of a
// session's request ID.
type StreamEvent struct {
	Type      StreamEventType  `json:"type"`
	RequestID string           `json:"request_id"`
	State     types.FixItState `json:"state"`
	Detail    string           `json:"detail,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Hub fans out StreamEvents to every connected websocket subscriber. It
// holds no session state of its own; internal/daemon calls Publish as its
// Fix-It state machine advances.
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	requestID string
	send      chan StreamEvent
}

// NewHub builds an empty Hub. Origin checking is left permissive since the
// socket this listens on is already filesystem-permission-gated to local
// collaborators, matching the teacher's localhost-only deployment model.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		upgrader:    websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:         log,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Publish delivers event to every subscriber, dropping it for subscribers
// whose send buffer is full rather than blocking the Fix-It driver on a
// slow UI client.
func (h *Hub) Publish(event StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		if sub.requestID != "" && sub.requestID != event.RequestID {
			continue
		}
		select {
		case sub.send <- event:
		default:
			h.log.Warn("dropping stream event for slow subscriber", zap.String("request_id", event.RequestID))
		}
	}
}

// ServeHTTP upgrades the connection to a websocket and streams events for
// the requested "request_id" query parameter (or every session's events,
// if omitted) until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := &subscriber{requestID: r.URL.Query().Get("request_id"), send: make(chan StreamEvent, 32)}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	metrics.RPCStreamSubscribers.Inc()

	defer func() {
		h.mu.Lock()
		delete(h.subscribers, sub)
		h.mu.Unlock()
		metrics.RPCStreamSubscribers.Dec()
	}()

	// Drain client pings/closes on a reader goroutine so the connection's
	// read deadline is honored; Anna never expects inbound chat messages
	// on this channel, only the close handshake.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case event := <-sub.send:
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
