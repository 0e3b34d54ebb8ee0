// Package events carries "open this file" notifications from a dev server to
// subscribed browsers over server-sent events.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// OpenFile asks the owning session to open file at line:column.
type OpenFile struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Validate requires an absolute path and non-negative position.
func (e OpenFile) Validate() error {
	if e.File == "" {
		return errors.New("file is required")
	}
	if !filepath.IsAbs(e.File) {
		return fmt.Errorf("file %q is not absolute", e.File)
	}
	if e.Line < 0 || e.Column < 0 {
		return errors.New("line and column must not be negative")
	}
	return nil
}

// subscriberBuffer bounds how far a slow subscriber may fall behind before
// events to it are dropped.
const subscriberBuffer = 16

// maxPublishBody bounds an open-file request body.
const maxPublishBody = 64 << 10

// Hub fans published events out to SSE subscribers.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]chan OpenFile
	log         *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subscribers: make(map[string]chan OpenFile), log: logger}
}

// Subscribe registers a subscriber and returns its id and channel.
func (h *Hub) Subscribe() (string, <-chan OpenFile) {
	id := uuid.New().String()
	ch := make(chan OpenFile, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	delete(h.subscribers, id)
	h.mu.Unlock()
}

// Publish delivers ev to every subscriber without blocking and returns how
// many received it.
func (h *Hub) Publish(ev OpenFile) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for id, ch := range h.subscribers {
		select {
		case ch <- ev:
			delivered++
		default:
			h.log.Warn("subscriber lagging, event dropped", "subscriber", id, "file", ev.File)
		}
	}
	return delivered
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// ServeSSE streams events to one subscriber until it disconnects.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	id, ch := h.Subscribe()
	defer h.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	// A comment line lets clients see the stream is open before any event.
	_, _ = w.Write([]byte(": open\n\n"))
	flusher.Flush()
	h.log.Info("subscriber connected", "subscriber", id)

	for {
		select {
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Error("encode event", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			h.log.Info("subscriber disconnected", "subscriber", id)
			return
		}
	}
}

// ServePublish accepts a POSTed OpenFile and publishes it.
func (h *Hub) ServePublish(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	var ev OpenFile
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPublishBody)).Decode(&ev); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ev.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n := h.Publish(ev)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"delivered": n})
}
