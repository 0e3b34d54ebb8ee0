package pac

import (
	"fmt"
	"net"
	"strings"
)

// Scheme is the action a matched entry returns from FindProxyForURL.
type Scheme string

const (
	Direct Scheme = "DIRECT"
	Proxy  Scheme = "PROXY"
	HTTPS  Scheme = "HTTPS"
)

// Entry is one routing rule. Entries are identified by Key().
type Entry struct {
	Protocol    string `json:"protocol"`
	Host        string `json:"host"`
	Type        Scheme `json:"type"`
	Destination string `json:"destination,omitempty"`
	OwnerID     string `json:"ownerId"`
}

// ValidationError reports a malformed entry. The registry rejects such
// entries without changing state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// MakeKey returns the canonical key "<protocol>://<host>". An empty protocol
// yields a wildcard key that matches any URL scheme.
func MakeKey(protocol, host string) string {
	return protocol + "://" + host
}

// Key returns the entry's canonical key.
func (e Entry) Key() string {
	return MakeKey(e.Protocol, e.Host)
}

// Decision is the string FindProxyForURL returns for a matched entry.
func (e Entry) Decision() string {
	if e.Type == Direct {
		return string(Direct)
	}
	return string(e.Type) + " " + e.Destination
}

// Normalize lower-cases and trims the routing fields.
func (e Entry) Normalize() Entry {
	e.Protocol = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(e.Protocol)), ":")
	e.Host = strings.ToLower(strings.TrimSpace(e.Host))
	e.Type = Scheme(strings.ToUpper(strings.TrimSpace(string(e.Type))))
	e.Destination = strings.TrimSpace(e.Destination)
	return e
}

// Validate checks a normalized entry.
func (e Entry) Validate() error {
	for _, r := range e.Protocol {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.') {
			return &ValidationError{Field: "protocol", Reason: fmt.Sprintf("%q is not a URL scheme", e.Protocol)}
		}
	}
	if e.Host == "" {
		return &ValidationError{Field: "host", Reason: "required"}
	}
	if strings.ContainsAny(e.Host, ":/?#@ \t\r\n\"'\\") {
		return &ValidationError{Field: "host", Reason: fmt.Sprintf("%q is not a bare hostname", e.Host)}
	}
	switch e.Type {
	case Direct:
		return nil
	case Proxy, HTTPS:
	default:
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown scheme %q", e.Type)}
	}
	if e.Destination == "" {
		return &ValidationError{Field: "destination", Reason: "required for " + string(e.Type)}
	}
	host, port, err := net.SplitHostPort(e.Destination)
	if err != nil || host == "" || port == "" {
		return &ValidationError{Field: "destination", Reason: fmt.Sprintf("%q is not host:port", e.Destination)}
	}
	if strings.ContainsAny(e.Destination, "/?#@ \t\r\n\"'\\;") {
		return &ValidationError{Field: "destination", Reason: fmt.Sprintf("%q is not host:port", e.Destination)}
	}
	return nil
}
