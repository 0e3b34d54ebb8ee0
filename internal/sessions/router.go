// Package sessions routes open-file events to the editor session whose
// workspace contains the file.
package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/BRAVO68WEB/devworld/internal/events"
)

// Session is an open editor session rooted at one workspace directory.
type Session struct {
	Alias    string
	Handle   string
	RootPath string
}

// Listing is what a Directory reports for each open session.
type Listing struct {
	Handle string `json:"handle"`
	URL    string `json:"url"`
}

// Directory enumerates open sessions and brings one to the foreground.
type Directory interface {
	List(ctx context.Context) ([]Listing, error)
	Focus(ctx context.Context, handle string) error
}

// RootPath is the workspace directory an alias is rooted at.
func RootPath(workspaceRoot, alias string) string {
	return strings.TrimRight(workspaceRoot, "/") + "/" + alias
}

// Route picks the session that owns ev.File. Both the file and the roots are
// cleaned first, so "/work/foo/../bar" belongs to "/work/bar". A file matches
// a session when it is the session root or lies below it; "/work/foobar" is
// not under "/work/foo". The longest matching root wins, ties go to the
// earliest session.
func Route(ev events.OpenFile, sessions []Session) (Session, bool) {
	file := filepath.Clean(ev.File)
	var best Session
	bestLen := -1
	for _, s := range sessions {
		if s.RootPath == "" {
			continue
		}
		root := filepath.Clean(s.RootPath)
		if !underRoot(file, root) {
			continue
		}
		if len(root) > bestLen {
			best, bestLen = s, len(root)
		}
	}
	return best, bestLen >= 0
}

// AliasFor names the workspace ev.File belongs to when every top-level
// directory of workspaceRoot is a session. It goes through Route so it agrees
// with dispatch.
func AliasFor(workspaceRoot string, ev events.OpenFile) (string, bool) {
	rel, err := filepath.Rel(filepath.Clean(workspaceRoot), filepath.Clean(ev.File))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	alias, _, _ := strings.Cut(rel, string(filepath.Separator))
	s, ok := Route(ev, []Session{{Alias: alias, RootPath: RootPath(workspaceRoot, alias)}})
	return s.Alias, ok
}

func underRoot(file, root string) bool {
	if file == root || root == string(filepath.Separator) {
		return true
	}
	return strings.HasPrefix(file, root+string(filepath.Separator))
}

// Router resolves sessions from a Directory at dispatch time.
type Router struct {
	workspaceRoot string
	hostnames     map[string]bool
	dir           Directory
	log           *slog.Logger
}

func NewRouter(workspaceRoot string, hostnames []string, dir Directory, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	hosts := make(map[string]bool, len(hostnames))
	for _, h := range hostnames {
		hosts[strings.ToLower(h)] = true
	}
	return &Router{workspaceRoot: workspaceRoot, hostnames: hosts, dir: dir, log: logger}
}

// AliasFromURL extracts the workspace alias from a session URL such as
// "https://dev/foo/...". A bare alias ("foo") is accepted as is.
func (r *Router) AliasFromURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if !strings.Contains(raw, "/") && !strings.Contains(raw, ":") {
		return raw, true
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := u.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if !r.hostnames[strings.ToLower(host)] {
		return "", false
	}
	alias, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if alias == "" {
		return "", false
	}
	return alias, true
}

// Sessions converts directory listings into sessions, skipping listings that
// do not belong to a routing host.
func (r *Router) Sessions(listings []Listing) []Session {
	sessions := make([]Session, 0, len(listings))
	for _, l := range listings {
		alias, ok := r.AliasFromURL(l.URL)
		if !ok {
			continue
		}
		sessions = append(sessions, Session{
			Alias:    alias,
			Handle:   l.Handle,
			RootPath: RootPath(r.workspaceRoot, alias),
		})
	}
	return sessions
}

// Dispatch focuses the session owning ev.File. A file no session owns is
// dropped and reported as (Session{}, false, nil).
func (r *Router) Dispatch(ctx context.Context, ev events.OpenFile) (Session, bool, error) {
	listings, err := r.dir.List(ctx)
	if err != nil {
		return Session{}, false, fmt.Errorf("list sessions: %w", err)
	}
	s, ok := Route(ev, r.Sessions(listings))
	if !ok {
		r.log.Info("no session for file", "file", ev.File, "sessions", len(listings))
		return Session{}, false, nil
	}
	if err := r.dir.Focus(ctx, s.Handle); err != nil {
		return s, true, fmt.Errorf("focus session %s: %w", s.Alias, err)
	}
	r.log.Info("session focused", "alias", s.Alias, "file", ev.File, "line", ev.Line)
	return s, true, nil
}

// Handle adapts Dispatch to the bridge handler signature.
func (r *Router) Handle(ctx context.Context, ev events.OpenFile) error {
	_, _, err := r.Dispatch(ctx, ev)
	return err
}
