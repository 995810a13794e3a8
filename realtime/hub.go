package realtime

import (
	"sync"
	"time"

	"pong-arena/services"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	sendBuffer     = 256
	presenceBuffer = 64
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Dispatcher consumes inbound frames. Disconnected runs once per client
// after it has been removed from the hub.
type Dispatcher interface {
	Dispatch(c *Client, env Envelope)
	Disconnected(c *Client)
}

// Client is one live connection of a user.
type Client struct {
	ID          string
	UserID      string
	ConnectedAt time.Time

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *Client) Participant() services.Participant {
	return services.Participant{ConnID: c.ID, UserID: c.UserID}
}

// Outbox is the client's pending frames.
func (c *Client) Outbox() <-chan []byte { return c.send }

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

type HubOption func(*Hub)

// WithConnectHook runs fn for the user of every new connection, before
// the connection is registered.
func WithConnectHook(fn func(userID string)) HubOption {
	return func(h *Hub) { h.onConnect = fn }
}

// Hub indexes live connections and fans events out to them.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	byUser   map[string][]*Client
	presence map[chan []byte]struct{}

	dispatcher Dispatcher
	onConnect  func(userID string)
	log        zerolog.Logger
}

var _ services.Notifier = (*Hub)(nil)

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:  make(map[string]*Client),
		byUser:   make(map[string][]*Client),
		presence: make(map[chan []byte]struct{}),
		log:      log.With().Str("component", "hub").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) SetDispatcher(d Dispatcher) {
	h.mu.Lock()
	h.dispatcher = d
	h.mu.Unlock()
}

// Register adds a connection for userID.
func (h *Hub) Register(userID string) *Client {
	if h.onConnect != nil {
		h.onConnect(userID)
	}
	c := &Client{
		ID:          uuid.NewString(),
		UserID:      userID,
		ConnectedAt: time.Now(),
		send:        make(chan []byte, sendBuffer),
		done:        make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.byUser[userID] = append(h.byUser[userID], c)
	total := len(h.clients)
	h.mu.Unlock()

	h.log.Info().Str("conn_id", c.ID).Str("user_id", userID).Int("connections", total).Msg("client connected")
	return c
}

// Unregister removes the connection and notifies the dispatcher. Calling it
// twice is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	list := h.byUser[c.UserID]
	for i, other := range list {
		if other == c {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(h.byUser, c.UserID)
	} else {
		h.byUser[c.UserID] = list
	}
	d := h.dispatcher
	h.mu.Unlock()

	c.close()
	h.log.Info().Str("conn_id", c.ID).Str("user_id", c.UserID).Msg("client disconnected")
	if d != nil {
		d.Disconnected(c)
	}
}

// Dispatch hands an inbound frame to the dispatcher.
func (h *Hub) Dispatch(c *Client, env Envelope) {
	h.mu.RLock()
	d := h.dispatcher
	h.mu.RUnlock()
	if d == nil {
		return
	}
	d.Dispatch(c, env)
}

func (h *Hub) Client(connID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	return c, ok
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) encode(event string, payload any) ([]byte, bool) {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(outbound{Type: event, Data: payload})
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return nil, false
	}
	return data, true
}

// deliver never blocks; a full outbox drops the frame.
func (h *Hub) deliver(c *Client, event string, frame []byte) {
	select {
	case <-c.done:
	case c.send <- frame:
	default:
		h.log.Warn().Str("conn_id", c.ID).Str("event", event).Msg("outbox full, frame dropped")
	}
}

func (h *Hub) SendToConn(connID, event string, payload any) {
	c, ok := h.Client(connID)
	if !ok {
		return
	}
	if frame, ok := h.encode(event, payload); ok {
		h.deliver(c, event, frame)
	}
}

func (h *Hub) SendToUser(userID, event string, payload any) {
	h.mu.RLock()
	targets := append([]*Client(nil), h.byUser[userID]...)
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}
	frame, ok := h.encode(event, payload)
	if !ok {
		return
	}
	for _, c := range targets {
		h.deliver(c, event, frame)
	}
}

func (h *Hub) Broadcast(event string, payload any) {
	frame, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	var subs []chan []byte
	if event == services.EventUserLockState {
		for ch := range h.presence {
			subs = append(subs, ch)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, event, frame)
	}
	for _, ch := range subs {
		select {
		case ch <- frame:
		default:
		}
	}
}

func (h *Hub) IsConnected(connID string) bool {
	_, ok := h.Client(connID)
	return ok
}

func (h *Hub) ConnForUser(userID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	list := h.byUser[userID]
	if len(list) == 0 {
		return "", false
	}
	return list[len(list)-1].ID, true
}

// SubscribePresence returns a stream of userLockState frames. cancel must
// be called when the subscriber goes away.
func (h *Hub) SubscribePresence() (frames <-chan []byte, cancel func()) {
	ch := make(chan []byte, presenceBuffer)
	h.mu.Lock()
	h.presence[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.presence, ch)
			h.mu.Unlock()
		})
	}
}
