package devworld

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BRAVO68WEB/devworld/internal/apply"
	"github.com/BRAVO68WEB/devworld/internal/bridge"
	"github.com/BRAVO68WEB/devworld/internal/config"
	"github.com/BRAVO68WEB/devworld/internal/registry"
	"github.com/BRAVO68WEB/devworld/internal/server"
	"github.com/BRAVO68WEB/devworld/internal/sessions"
	"github.com/BRAVO68WEB/devworld/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the devworld server",
	Long: `Start the devworld server. It serves the proxy policy at /proxy.pac, accepts
routing rules at /api/register, relays open-file events and, unless --bridge=false,
forwards those events to the attached editor sessions.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (default :12345, or DEVWORLD_LISTEN_ADDR)")
	serveCmd.Flags().String("admin-token", "", "Token required for the admin API (or DEVWORLD_ADMIN_TOKEN)")
	serveCmd.Flags().String("tls-cert", "", "Path to TLS certificate file")
	serveCmd.Flags().String("tls-key", "", "Path to TLS private key file")
	serveCmd.Flags().String("store", "", "Entry store: file or redis")
	serveCmd.Flags().String("data-dir", "", "Directory for entries.json (default ~/.devworld/data)")
	serveCmd.Flags().String("redis-addr", "", "Redis address for --store=redis")
	serveCmd.Flags().String("pac-file", "", "Also write the policy to this file")
	serveCmd.Flags().String("workspace-root", "", "Directory that holds the workspaces (default home dir)")
	serveCmd.Flags().Bool("bridge", true, "Forward open-file events to attached sessions")
	serveCmd.Flags().Bool("seed", true, "Install the default dev hostname entries into an empty registry")
}

// applyServeFlags copies explicitly set flags over the loaded config.
func applyServeFlags(cmd *cobra.Command, c *config.Config) {
	strs := map[string]*string{
		"listen":         &c.ListenAddr,
		"admin-token":    &c.AdminToken,
		"tls-cert":       &c.TLSCertFile,
		"tls-key":        &c.TLSKeyFile,
		"store":          &c.Store,
		"data-dir":       &c.DataDir,
		"redis-addr":     &c.RedisAddr,
		"pac-file":       &c.PACFile,
		"workspace-root": &c.WorkspaceRoot,
	}
	for name, dst := range strs {
		if cmd.Flags().Changed(name) {
			*dst, _ = cmd.Flags().GetString(name)
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	applyServeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	published := apply.NewPublished()
	appliers := apply.Multi{published}
	if cfg.PACFile != "" {
		appliers = append(appliers, apply.File{Path: cfg.PACFile})
	}

	reg := registry.New(st, appliers, log.With("component", "registry"))
	if err := reg.Hydrate(ctx); err != nil {
		log.Error("could not load stored entries; starting empty with persistence disabled until the store is fixed", "error", err)
	}
	if seed, _ := cmd.Flags().GetBool("seed"); seed {
		n, err := reg.Seed(ctx, cfg.Hostnames, cfg.Upstream)
		if err != nil {
			return fmt.Errorf("seed default entries: %w", err)
		}
		if n > 0 {
			log.Info("installed default entries", "count", n, "upstream", cfg.Upstream)
		}
	}
	if len(cfg.Callers) == 0 {
		log.Warn("no callers configured; every registration will be rejected")
	}

	var srv *server.Server
	var onListen func(net.Addr)
	if enabled, _ := cmd.Flags().GetBool("bridge"); enabled {
		onListen = func(net.Addr) {
			router := sessions.NewRouter(cfg.WorkspaceRoot, cfg.Hostnames, srv.Sessions(), log.With("component", "router"))
			go runEmbeddedBridge(ctx, router, log.With("component", "bridge"))
		}
	}

	srv, err = server.New(server.Config{
		ListenAddr:  cfg.ListenAddr,
		Callers:     cfg.Callers,
		AdminToken:  cfg.AdminToken,
		Hostnames:   cfg.Hostnames,
		TLSCertFile: cfg.TLSCertFile,
		TLSKeyFile:  cfg.TLSKeyFile,
		Version:     version,
		OnListen:    onListen,
	}, reg, published, log)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// runEmbeddedBridge runs the bridge for the lifetime of the server. A
// reconnect storm disables the bridge only.
func runEmbeddedBridge(ctx context.Context, router *sessions.Router, log *slog.Logger) {
	b := bridge.New(bridge.Config{
		URL:                cfg.EventStreamURL(),
		MaxRunsPerSec:      cfg.MaxRunsPerSec,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Logger:             log,
	}, router.Handle)
	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("open-file forwarding disabled", "error", err)
	}
}

func openStore(ctx context.Context, c *config.Config, log *slog.Logger) (registry.Store, func(), error) {
	switch c.Store {
	case config.StoreRedis:
		r, err := store.NewRedis(ctx, c.RedisAddr, c.RedisUsername, c.RedisPassword, c.RedisKey, log.With("component", "store"))
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	default:
		f := store.NewFile(c.EffectiveDataDir())
		log.Info("using file store", "path", f.Path())
		return f, func() {}, nil
	}
}
