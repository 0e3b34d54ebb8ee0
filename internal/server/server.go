package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BRAVO68WEB/devworld/internal/apply"
	"github.com/BRAVO68WEB/devworld/internal/clock"
	"github.com/BRAVO68WEB/devworld/internal/events"
	"github.com/BRAVO68WEB/devworld/internal/registration"
	"github.com/BRAVO68WEB/devworld/internal/registry"
	"github.com/BRAVO68WEB/devworld/internal/sessions"
)

// Config holds server configuration.
// For TLS set both TLSCertFile and TLSKeyFile; otherwise plain HTTP is served.
type Config struct {
	ListenAddr string
	// Callers maps registration bearer tokens to caller identities.
	Callers     map[string]string
	AdminToken  string
	Hostnames   []string
	TLSCertFile string
	TLSKeyFile  string
	Version     string
	// OnListen, if set, is called once the listener is bound and before
	// requests are served.
	OnListen func(addr net.Addr)
}

// Server serves the proxy policy, registration, open-file events and the
// session directory.
type Server struct {
	cfg          Config
	registry     *registry.Registry
	published    *apply.Published
	registration *registration.Service
	events       *events.Hub
	sessions     *sessions.Hub
	clock        clock.Clock
	started      time.Time
	log          *slog.Logger
}

// New creates a Server around an already hydrated registry. published must be
// one of the registry's appliers so /proxy.pac follows every change.
func New(cfg Config, reg *registry.Registry, published *apply.Published, logger *slog.Logger) (*Server, error) {
	if reg == nil || published == nil {
		return nil, fmt.Errorf("registry and published policy are required")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":12345"
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return nil, fmt.Errorf("tls-cert and tls-key must be set together")
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := clock.Real()
	return &Server{
		cfg:          cfg,
		registry:     reg,
		published:    published,
		registration: registration.NewService(reg, logger.With("component", "registration")),
		events:       events.NewHub(logger.With("component", "events")),
		sessions:     sessions.NewHub(logger.With("component", "sessions")),
		clock:        c,
		started:      c.Now(),
		log:          logger,
	}, nil
}

// Events returns the open-file event hub.
func (s *Server) Events() *events.Hub { return s.events }

// Sessions returns the session directory fed by attached browser clients.
func (s *Server) Sessions() *sessions.Hub { return s.sessions }

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/proxy.pac", PACHandler(s.published))
	r.Head("/proxy.pac", PACHandler(s.published))
	r.Post(pathRegister, RegisterHandler(s.registration, s.cfg.Callers))
	r.Get("/api/listen-open-file", s.events.ServeSSE)
	r.Post("/api/open-file", s.events.ServePublish)
	r.Handle("/api/sessions", s.sessions)
	r.Mount("/admin", s.adminRouter())
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Entries: s.registry.Len()})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully. Open
// event streams end with ctx.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.TLSCertFile != "" {
		tlsConfig, err := s.loadTLS()
		if err != nil {
			ln.Close()
			return err
		}
		ln = tls.NewListener(ln, tlsConfig)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.log.Info("devworld server listening", "addr", ln.Addr().String(), "tls", s.cfg.TLSCertFile != "")
	if s.cfg.OnListen != nil {
		s.cfg.OnListen(ln.Addr())
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.log.Info("devworld server stopped")
		return nil
	}
}

func (s *Server) loadTLS() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}
