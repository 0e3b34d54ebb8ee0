package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

// adminAuth rejects requests without the admin bearer token. An empty admin
// token disables the admin API.
func adminAuth(adminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !checkAdminToken(r, adminToken) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// adminRouter serves /admin/*: entry listing and removal, and server info.
func (s *Server) adminRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(adminAuth(s.cfg.AdminToken))
	r.Get("/info", s.handleInfo)
	r.Get("/entries", s.handleListEntries)
	// Keys contain "://", so the key is taken from the rest of the path and
	// may be percent-encoded.
	r.Delete("/entries/*", s.handleRemoveEntry)
	return r
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	_, etag := s.published.Current()
	writeJSON(w, http.StatusOK, InfoResponse{
		Version:        s.cfg.Version,
		Hostnames:      s.cfg.Hostnames,
		Entries:        s.registry.Len(),
		ETag:           etag,
		Subscribers:    s.events.Subscribers(),
		SessionClients: s.sessions.Clients(),
		Uptime:         s.clock.Now().Sub(s.started),
	})
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, EntriesResponse{Entries: s.registry.Snapshot()})
}

func (s *Server) handleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "*"))
	key = strings.ToLower(strings.TrimSpace(key))
	if err != nil || key == "" {
		http.Error(w, "entry key required", http.StatusBadRequest)
		return
	}
	if !s.registry.Remove(r.Context(), key) {
		http.Error(w, "no such entry", http.StatusNotFound)
		return
	}
	s.log.Info("entry removed by admin", "key", key)
	w.WriteHeader(http.StatusNoContent)
}

func checkAdminToken(r *http.Request, adminToken string) bool {
	if adminToken == "" {
		return false
	}
	return bearerToken(r) == adminToken
}
