package service

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"

	"github.com/ethereum-optimism/infra/op-harness/metrics"
	"github.com/ethereum-optimism/infra/op-harness/runner"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

const (
	clientBufferSize = 256
	writeWait        = 10 * time.Second
	pingPeriod       = 30 * time.Second
)

// EventMessage is the JSON form of a runner event sent to websocket clients.
type EventMessage struct {
	Type   runner.EventType `json:"type"`
	RunID  string           `json:"runId,omitempty"`
	Status runner.Status    `json:"status"`
	Suite  *JobJSON         `json:"suite,omitempty"`
	Test   *JobJSON         `json:"test,omitempty"`
	Error  string           `json:"error,omitempty"`
	Time   time.Time        `json:"time"`
}

func newEventMessage(e runner.Event) EventMessage {
	msg := EventMessage{Type: e.Type, RunID: e.RunID, Status: e.Status, Time: e.Time}
	if e.Suite != nil {
		j := suiteJSON(e.Suite)
		msg.Suite = &j
	}
	if e.Test != nil {
		j := testJSON(e.Test)
		msg.Test = &j
	}
	if e.Err != nil {
		msg.Error = e.Err.Error()
	}
	return msg
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// EventHub streams runner events to websocket clients. Clients that cannot
// keep up are dropped.
type EventHub struct {
	log      log.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

var _ runner.Observer = (*EventHub)(nil)

func NewEventHub(lg log.Logger) *EventHub {
	return &EventHub{
		log: lg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *EventHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *EventHub) OnEvent(e runner.Event) {
	data, err := json.Marshal(newEventMessage(e))
	if err != nil {
		h.log.Error("Failed to encode event", "type", e.Type, "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("Dropping slow event client", "remote", c.conn.RemoteAddr())
			h.removeLocked(c)
		}
	}
}

func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "err", err)
		metrics.RecordErrorDetails("websocket upgrade", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientBufferSize)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("Event client connected", "remote", conn.RemoteAddr())

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop discards client messages and unregisters the client once the
// connection fails.
func (h *EventHub) readLoop(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("Event client read failed", "err", err)
			}
			return
		}
	}
}

func (h *EventHub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

func (h *EventHub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *EventHub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Close disconnects every client.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// JobJSON describes a suite or test.
type JobJSON struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	FullName string           `json:"fullName"`
	Tags     []string         `json:"tags,omitempty"`
	Status   types.TestStatus `json:"status,omitempty"`
	Jobs     int              `json:"jobs,omitempty"`
	Runs     int              `json:"runs,omitempty"`
}

func suiteJSON(s *types.Suite) JobJSON {
	return JobJSON{ID: s.ID, Name: s.Name, FullName: s.FullName, Tags: s.TagNames, Jobs: len(s.Jobs)}
}

func testJSON(t *types.Test) JobJSON {
	return JobJSON{
		ID:       t.ID,
		Name:     t.Name,
		FullName: t.FullName,
		Tags:     t.TagNames,
		Status:   t.Status(),
		Runs:     len(t.Results()),
	}
}
