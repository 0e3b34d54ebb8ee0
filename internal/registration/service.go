// Package registration accepts routing rules from external callers and
// installs them in the registry, attributed to the caller's identity.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BRAVO68WEB/devworld/internal/pac"
)

// Message types of the registration protocol.
const (
	TypeSetProxy         = "setProxy"
	TypeSetProxyResponse = "setProxyResponse"
)

var (
	// ErrIdentity means the transport could not resolve who is calling.
	ErrIdentity = errors.New("caller identity is missing")
	// ErrUnknownMessage is returned for message types other than setProxy.
	ErrUnknownMessage = errors.New("unknown message type")
	// ErrMissingPayload is returned when a setProxy message has no body.
	ErrMissingPayload = errors.New("setProxy message without payload")
)

// SetProxyRequest asks for one routing rule. It carries no identity; the
// transport supplies that.
type SetProxyRequest struct {
	Protocol    string `json:"protocol"`
	Host        string `json:"host"`
	Type        string `json:"type"`
	Destination string `json:"destination"`
}

// Message is the tagged request envelope.
type Message struct {
	Type     string           `json:"type"`
	SetProxy *SetProxyRequest `json:"setProxy,omitempty"`
}

// Reply is the tagged response envelope.
type Reply struct {
	Type  string `json:"type"`
	OK    bool   `json:"ok"`
	Key   string `json:"key,omitempty"`
	Error string `json:"error,omitempty"`
}

// Validate checks the envelope shape and returns the request inside it.
func (m Message) Validate() (SetProxyRequest, error) {
	if m.Type != TypeSetProxy {
		return SetProxyRequest{}, fmt.Errorf("%w: %q", ErrUnknownMessage, m.Type)
	}
	if m.SetProxy == nil {
		return SetProxyRequest{}, ErrMissingPayload
	}
	return *m.SetProxy, nil
}

// Registry is the part of the registry the service needs.
type Registry interface {
	Add(ctx context.Context, entry pac.Entry) error
}

// Service turns requests into registry entries. Requests are not serialised
// here; the registry orders concurrent writes.
type Service struct {
	registry Registry
	log      *slog.Logger
}

func NewService(registry Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{registry: registry, log: logger}
}

// Handle installs req on behalf of identity. It never panics; every failure
// is reported in the Reply.
func (s *Service) Handle(ctx context.Context, req SetProxyRequest, identity string) (reply Reply) {
	reply = Reply{Type: TypeSetProxyResponse}
	if identity == "" {
		s.log.Warn("registration rejected", "reason", ErrIdentity, "host", req.Host)
		reply.Error = ErrIdentity.Error()
		return reply
	}

	entry := pac.Entry{
		Protocol:    req.Protocol,
		Host:        req.Host,
		Type:        pac.Scheme(req.Type),
		Destination: req.Destination,
		OwnerID:     identity,
	}.Normalize()

	defer func() {
		if p := recover(); p != nil {
			s.log.Error("registration panicked", "owner", identity, "key", entry.Key(), "panic", p)
			reply = Reply{Type: TypeSetProxyResponse, Error: "internal error"}
		}
	}()

	if err := s.registry.Add(ctx, entry); err != nil {
		var ve *pac.ValidationError
		if errors.As(err, &ve) {
			s.log.Info("registration invalid", "owner", identity, "error", err)
		} else {
			s.log.Error("registration failed", "owner", identity, "key", entry.Key(), "error", err)
		}
		reply.Error = err.Error()
		return reply
	}
	s.log.Info("entry registered", "owner", identity, "key", entry.Key(), "decision", entry.Decision())
	reply.OK = true
	reply.Key = entry.Key()
	return reply
}

// HandleMessage validates the envelope and then behaves like Handle.
func (s *Service) HandleMessage(ctx context.Context, msg Message, identity string) Reply {
	req, err := msg.Validate()
	if err != nil {
		return Reply{Type: TypeSetProxyResponse, Error: err.Error()}
	}
	return s.Handle(ctx, req, identity)
}
