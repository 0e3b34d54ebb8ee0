package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Frame types exchanged with attached clients.
const (
	FrameList     = "list"
	FrameSessions = "sessions"
	FrameFocus    = "focus"
	FrameFocused  = "focused"
)

const (
	defaultRequestTimeout = 5 * time.Second
	maxFrameSize          = 1 << 20
)

var (
	// ErrNoClients is returned by Focus when no client owns the handle.
	ErrNoClients = errors.New("no session client attached")
	// ErrClientGone means the client disconnected before replying.
	ErrClientGone = errors.New("session client disconnected")
)

// Frame is the websocket message envelope. Requests carry a fresh ID that
// the client echoes in its reply.
type Frame struct {
	Type     string    `json:"type"`
	ID       string    `json:"id,omitempty"`
	Handle   string    `json:"handle,omitempty"`
	Sessions []Listing `json:"sessions,omitempty"`
	OK       bool      `json:"ok,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Hub is a Directory backed by browser clients attached over websockets.
// Handles it reports are prefixed with the client id so Focus can find the
// owning client.
type Hub struct {
	mu       sync.Mutex
	clients  map[string]*client
	timeout  time.Duration
	upgrader websocket.Upgrader
	log      *slog.Logger
}

type client struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Frame
	done    chan struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[string]*client),
		timeout: defaultRequestTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients are browser extensions with their own origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logger,
	}
}

// SetTimeout bounds how long List and Focus wait for a client reply.
func (h *Hub) SetTimeout(d time.Duration) {
	h.mu.Lock()
	h.timeout = d
	h.mu.Unlock()
}

// Clients returns the number of attached clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxFrameSize)

	c := &client{
		id:      uuid.New().String(),
		conn:    conn,
		pending: make(map[string]chan Frame),
		done:    make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.log.Info("session client attached", "client", c.id, "remote", r.RemoteAddr)

	c.readLoop(h.log)

	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	close(c.done)
	conn.Close()
	h.log.Info("session client detached", "client", c.id)
}

func (c *client) readLoop(log *slog.Logger) {
	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("session client read ended", "client", c.id, "error", err)
			}
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[f.ID]
		delete(c.pending, f.ID)
		c.mu.Unlock()
		if !ok {
			log.Warn("unexpected frame from session client", "client", c.id, "type", f.Type, "id", f.ID)
			continue
		}
		ch <- f
	}
}

// request sends f with a fresh id and waits for the matching reply.
func (c *client) request(ctx context.Context, f Frame, timeout time.Duration) (Frame, error) {
	f.ID = uuid.New().String()
	ch := make(chan Frame, 1)
	c.mu.Lock()
	c.pending[f.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, f.ID)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(f)
	c.writeMu.Unlock()
	if err != nil {
		return Frame{}, fmt.Errorf("send %s: %w", f.Type, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case reply := <-ch:
		return reply, nil
	case <-c.done:
		return Frame{}, ErrClientGone
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-timer.C:
		return Frame{}, fmt.Errorf("%s request timed out after %s", f.Type, timeout)
	}
}

func (h *Hub) snapshot() ([]*client, time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, h.timeout
}

// List asks every attached client for its open sessions. A client that fails
// to answer is skipped.
func (h *Hub) List(ctx context.Context) ([]Listing, error) {
	clients, timeout := h.snapshot()
	var listings []Listing
	for _, c := range clients {
		reply, err := c.request(ctx, Frame{Type: FrameList}, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			h.log.Warn("session client did not list", "client", c.id, "error", err)
			continue
		}
		if reply.Type != FrameSessions {
			h.log.Warn("session client replied with wrong type", "client", c.id, "type", reply.Type)
			continue
		}
		for _, l := range reply.Sessions {
			listings = append(listings, Listing{Handle: c.id + "/" + l.Handle, URL: l.URL})
		}
	}
	return listings, nil
}

// Focus asks the owning client to bring the session to the foreground.
func (h *Hub) Focus(ctx context.Context, handle string) error {
	clientID, local, ok := strings.Cut(handle, "/")
	if !ok {
		return fmt.Errorf("malformed session handle %q", handle)
	}
	h.mu.Lock()
	c := h.clients[clientID]
	timeout := h.timeout
	h.mu.Unlock()
	if c == nil {
		return ErrNoClients
	}

	reply, err := c.request(ctx, Frame{Type: FrameFocus, Handle: local}, timeout)
	if err != nil {
		return err
	}
	if reply.Type != FrameFocused || !reply.OK {
		if reply.Error != "" {
			return errors.New(reply.Error)
		}
		return fmt.Errorf("focus %q refused", local)
	}
	return nil
}
