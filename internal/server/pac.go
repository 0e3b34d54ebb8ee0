package server

import (
	"net/http"
	"strings"
)

const pacContentType = "application/x-ns-proxy-autoconfig"

// ScriptSource returns the currently published policy and its ETag.
type ScriptSource interface {
	Current() (script, etag string)
}

// PACHandler serves the published policy. Browsers poll it, so a matching
// If-None-Match gets 304 without a body.
func PACHandler(src ScriptSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		script, etag := src.Current()
		if script == "" {
			http.Error(w, "policy not published yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "no-cache")
		if etagMatches(r.Header.Get("If-None-Match"), etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", pacContentType)
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write([]byte(script))
	}
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
