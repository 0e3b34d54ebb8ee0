package server

import (
	"time"

	"github.com/BRAVO68WEB/devworld/internal/pac"
)

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Entries int    `json:"entries"`
}

// InfoResponse is returned by /admin/info.
type InfoResponse struct {
	Version        string        `json:"version"`
	Hostnames      []string      `json:"hostnames"`
	Entries        int           `json:"entries"`
	ETag           string        `json:"etag"`
	Subscribers    int           `json:"subscribers"`
	SessionClients int           `json:"sessionClients"`
	Uptime         time.Duration `json:"uptime"`
}

// EntriesResponse is returned by GET /admin/entries.
type EntriesResponse struct {
	Entries []pac.Entry `json:"entries"`
}
