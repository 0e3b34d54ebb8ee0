// Package bridge keeps a subscription to a remote open-file event stream
// alive, reconnecting after failures and giving up on reconnect storms.
package bridge

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/BRAVO68WEB/devworld/internal/clock"
	"github.com/BRAVO68WEB/devworld/internal/events"
)

// State is the connection state of a Bridge.
type State int

const (
	Connecting State = iota
	Open
	Errored
	Backoff
	Stopped
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Open:
		return "OPEN"
	case Errored:
		return "ERROR"
	case Backoff:
		return "BACKOFF"
	case Stopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// stormAttempts is how many attempts are counted before the reconnect rate
// is checked.
const stormAttempts = 3

// ErrReconnectStorm is returned by Run when attempts arrive faster than
// MaxRunsPerSec allows.
var ErrReconnectStorm = errors.New("event stream reconnecting too quickly")

var errStreamClosed = errors.New("stream closed by server")

// StreamError describes why one connection attempt ended.
type StreamError struct {
	Attempt int
	Err     error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("event stream attempt %d: %v", e.Attempt, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// Handler receives each decoded event, synchronously and in stream order.
type Handler func(ctx context.Context, ev events.OpenFile) error

// Config configures a Bridge. Only URL is required.
type Config struct {
	URL string
	// MaxRunsPerSec bounds the reconnect rate. Defaults to 1.
	MaxRunsPerSec float64
	// RetryDelay is an optional pause before each reconnect.
	RetryDelay time.Duration
	// InsecureSkipVerify disables TLS verification, for self-signed dev servers.
	InsecureSkipVerify bool
	Client             *http.Client
	Clock              clock.Clock
	Logger             *slog.Logger
	// OnState, if set, is called on every state transition.
	OnState func(State)
}

// Bridge subscribes to an event stream and forwards events to a Handler.
type Bridge struct {
	url           string
	maxRunsPerSec float64
	retryDelay    time.Duration
	client        *http.Client
	clock         clock.Clock
	log           *slog.Logger
	onState       func(State)
	handler       Handler
}

func New(cfg Config, handler Handler) *Bridge {
	b := &Bridge{
		url:           cfg.URL,
		maxRunsPerSec: cfg.MaxRunsPerSec,
		retryDelay:    cfg.RetryDelay,
		client:        cfg.Client,
		clock:         cfg.Clock,
		log:           cfg.Logger,
		onState:       cfg.OnState,
		handler:       handler,
	}
	if b.maxRunsPerSec <= 0 {
		b.maxRunsPerSec = 1
	}
	if b.client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		b.client = &http.Client{Transport: transport}
	}
	if b.clock == nil {
		b.clock = clock.Real()
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	return b
}

// window is the shortest span in which stormAttempts attempts are allowed.
func (b *Bridge) window() time.Duration {
	return time.Duration(float64(stormAttempts) / b.maxRunsPerSec * float64(time.Second))
}

// Run connects and reconnects until ctx is done or a reconnect storm is
// detected. It returns ctx.Err() or an error wrapping ErrReconnectStorm.
func (b *Bridge) Run(ctx context.Context) error {
	attempts := 0
	lastReset := b.clock.Now()
	window := b.window()

	for {
		if err := ctx.Err(); err != nil {
			b.setState(Stopped)
			return err
		}

		attempts++
		b.setState(Connecting)
		err := b.attempt(ctx, attempts)
		if ctx.Err() != nil {
			b.setState(Stopped)
			return ctx.Err()
		}
		b.setState(Errored)
		b.log.Warn("event stream ended", "url", b.url, "error", &StreamError{Attempt: attempts, Err: err})

		b.setState(Backoff)
		if attempts >= stormAttempts {
			elapsed := b.clock.Now().Sub(lastReset)
			if elapsed < window {
				b.setState(Stopped)
				b.log.Error("event stream disabled", "url", b.url, "attempts", attempts, "elapsed", elapsed)
				return fmt.Errorf("%w: %d attempts in %s", ErrReconnectStorm, attempts, elapsed)
			}
			attempts = 0
			lastReset = b.clock.Now()
		}

		if b.retryDelay > 0 {
			select {
			case <-ctx.Done():
				b.setState(Stopped)
				return ctx.Err()
			case <-b.clock.After(b.retryDelay):
			}
		}
	}
}

// attempt runs one connection until the stream ends. The response body is
// closed before it returns.
func (b *Bridge) attempt(ctx context.Context, n int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/event-stream" {
		return fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	b.setState(Open)
	b.log.Info("event stream open", "url", b.url, "attempt", n)

	scanner := newSSEScanner(resp.Body)
	for scanner.Next() {
		ev := scanner.Event()
		if ev.Type != "" && ev.Type != "message" {
			continue
		}
		b.dispatch(ctx, ev.Data)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errStreamClosed
}

func (b *Bridge) dispatch(ctx context.Context, data string) {
	var ev events.OpenFile
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		b.log.Warn("malformed event", "error", err)
		return
	}
	defer func() {
		if p := recover(); p != nil {
			b.log.Error("event handler panicked", "file", ev.File, "panic", p)
		}
	}()
	if err := b.handler(ctx, ev); err != nil {
		b.log.Warn("event handler failed", "file", ev.File, "error", err)
	}
}

func (b *Bridge) setState(s State) {
	if b.onState != nil {
		b.onState(s)
	}
}
