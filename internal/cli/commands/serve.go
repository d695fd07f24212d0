package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/spine/internal/cli/config"
	"github.com/conduit-lang/spine/internal/web/auth"
	"github.com/conduit-lang/spine/internal/web/cache"
	"github.com/conduit-lang/spine/internal/web/fixture"
	"github.com/conduit-lang/spine/internal/web/jobs"
	"github.com/conduit-lang/spine/internal/web/profiling"
	"github.com/conduit-lang/spine/internal/web/ratelimit"
	"github.com/conduit-lang/spine/internal/web/server"
	"github.com/conduit-lang/spine/internal/web/snapshot"
	"github.com/conduit-lang/spine/internal/web/websocket"
)

// shutdownTimeout bounds how long in-flight requests may run after a signal
const shutdownTimeout = 10 * time.Second

var (
	serveSchema string
	serveHost   string
	servePort   int
	serveSeed   string
	serveSnap   string
	servePprof  string
)

// snapshotName is the row the served store is persisted under
const snapshotName = "fixture"

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the fixture JSON:API server",
		Long: `Serve an in-memory collection of resources over HTTP.

Every type of the schema gets list, show, create, update and delete routes under
/{type}. Request and response bodies are compound documents. Store changes are
streamed to websocket clients at /_events. With server.auth.secret set, writes
need a token from "spine token". The server is seeded from the
snapshot database when one is configured and holds a snapshot, otherwise from
the seed document.

Examples:
  # Serve the schema from spine.yaml on localhost:4000
  spine serve

  # Seed the store and listen on another port
  spine serve --seed fixtures/blog.json --port 8080`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().StringVarP(&serveSchema, "schema", "s", "", "Path to the resource schema (overrides config)")
	cmd.Flags().StringVar(&serveHost, "host", "", "Host to bind (default: server.host)")
	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default: server.port)")
	cmd.Flags().StringVar(&serveSeed, "seed", "", "Document to seed the store with (default: server.seed)")
	cmd.Flags().StringVar(&servePprof, "pprof", "", "Address of a separate pprof listener, e.g. localhost:6060 (default: server.pprof)")
	cmd.Flags().StringVar(&serveSnap, "snapshot", "", "SQLite path or postgres:// URL to persist the store in (default: server.snapshot)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveSeed != "" {
		cfg.Server.Seed = serveSeed
	}
	if serveSnap != "" {
		cfg.Server.Snapshot = serveSnap
	}
	if servePprof != "" {
		cfg.Server.Pprof = servePprof
	}

	m, err := buildMapper(cfg, serveSchema)
	if err != nil {
		return err
	}

	logger, err := cfg.Logger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	hub := websocket.NewHub(logger)
	defer hub.Close()

	opts := []fixture.Option{
		fixture.WithLogger(logger),
		fixture.WithMaxBodySize(cfg.Server.MaxBodySize),
		fixture.WithHub(hub),
	}
	if cfg.Server.Auth.Secret != "" {
		opts = append(opts, fixture.WithAuth(auth.NewIssuer(cfg.Server.Auth.Secret, cfg.Server.Auth.TokenTTL)))
		logger.Info("writes require a bearer token")
	}
	limiter, err := newRateLimiter(cmd.Context(), cfg.Server)
	if err != nil {
		return err
	}
	if limiter != nil {
		defer limiter.Close()
		opts = append(opts, fixture.WithRateLimit(limiter))
		logger.Info("rate limit enabled",
			zap.Int("limit", cfg.Server.RateLimit.Limit),
			zap.Duration("window", cfg.Server.RateLimit.Window),
			zap.String("backend", cfg.Server.RateLimit.Backend))
	}
	docCache, err := newDocumentCache(cmd.Context(), cfg.Server.Cache)
	if err != nil {
		return err
	}
	if docCache != nil {
		opts = append(opts, fixture.WithCache(docCache))
		logger.Info("document cache enabled", zap.String("backend", cfg.Server.Cache.Backend))
	}
	srv := fixture.New(m, opts...)

	var snapshots *snapshot.Store
	if cfg.Server.Snapshot != "" {
		db, err := snapshot.Open(cfg.Server.Snapshot)
		if err != nil {
			return err
		}
		defer db.Close()
		if snapshots, err = snapshot.New(cmd.Context(), db, ""); err != nil {
			return err
		}
	}

	restored, err := restoreSnapshot(cmd.Context(), snapshots, srv)
	if err != nil {
		return reportMappingError(cmd, m, err)
	}
	if restored {
		logger.Info("store restored", zap.Int("resources", srv.Len()))
	} else if cfg.Server.Seed != "" {
		if err := srv.SeedFile(cfg.Server.Seed); err != nil {
			return reportMappingError(cmd, m, err)
		}
		logger.Info("store seeded", zap.String("file", cfg.Server.Seed), zap.Int("resources", srv.Len()))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group := server.NewGroup(shutdownTimeout, logger)
	api, err := server.New(server.DefaultConfig(cfg.Server.Address(), srv.Handler()))
	if err != nil {
		return err
	}
	group.Add(api)

	var debug *server.Server
	if cfg.Server.Pprof != "" {
		if debug, err = newDebugServer(cfg.Server.Pprof, srv, hub); err != nil {
			return err
		}
		group.Add(debug)
	}

	group.OnShutdown(func(context.Context) error {
		hub.Close()
		return nil
	})

	if snapshots != nil && cfg.Server.SnapshotInterval > 0 {
		scheduler := jobs.NewScheduler(time.Second, logger)
		if err := scheduler.Add("snapshot", cfg.Server.SnapshotInterval, func(ctx context.Context) error {
			return saveSnapshot(ctx, snapshots, srv)
		}); err != nil {
			return err
		}
		scheduler.Start(ctx)
		group.OnShutdown(func(context.Context) error {
			scheduler.Stop()
			return nil
		})
	}
	group.OnShutdown(func(ctx context.Context) error {
		if err := saveSnapshot(ctx, snapshots, srv); err != nil {
			return err
		}
		if snapshots != nil {
			logger.Info("store persisted", zap.Int("resources", srv.Len()))
		}
		return nil
	})

	return group.Run(ctx, func() {
		success := color.New(color.FgGreen, color.Bold)
		success.Fprintf(cmd.OutOrStdout(), "✓ Fixture API listening on http://%s\n", api.Addr())
		if debug != nil {
			success.Fprintf(cmd.OutOrStdout(), "✓ Profiling on http://%s/debug/pprof/\n", debug.Addr())
		}
	})
}

// restoreSnapshot seeds srv from the persisted snapshot; false means there was none
func restoreSnapshot(ctx context.Context, snapshots *snapshot.Store, srv *fixture.Server) (bool, error) {
	if snapshots == nil {
		return false, nil
	}
	data, err := snapshots.Load(ctx, snapshotName)
	if errors.Is(err, snapshot.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, srv.Seed(data)
}

// saveSnapshot persists the contents of srv
func saveSnapshot(ctx context.Context, snapshots *snapshot.Store, srv *fixture.Server) error {
	if snapshots == nil {
		return nil
	}
	data, err := srv.Snapshot()
	if err != nil {
		return err
	}
	return snapshots.Save(ctx, snapshotName, data)
}

// newDocumentCache builds the configured cache backend, or nil when caching is off
func newDocumentCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	cacheCfg := cache.DefaultConfig()
	if cfg.TTL > 0 {
		cacheCfg.DefaultTTL = cfg.TTL
	}

	switch cfg.Backend {
	case "":
		return nil, nil
	case "memory":
		return cache.NewMemoryCache(cacheCfg), nil
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cfg.RedisURL, cacheCfg)
		if err != nil {
			return nil, err
		}
		return rc, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}

// newRateLimiter builds the configured limiter, or nil when throttling is off
func newRateLimiter(ctx context.Context, cfg config.ServerConfig) (ratelimit.Limiter, error) {
	if cfg.RateLimit.Limit <= 0 {
		return nil, nil
	}

	rlCfg := ratelimit.DefaultConfig()
	rlCfg.Limit = cfg.RateLimit.Limit
	rlCfg.Window = cfg.RateLimit.Window

	switch cfg.RateLimit.Backend {
	case "", "memory":
		tb, err := ratelimit.NewTokenBucket(rlCfg, 5*cfg.RateLimit.Window)
		if err != nil {
			return nil, err
		}
		return tb, nil
	case "redis":
		rl, err := ratelimit.NewRedisLimiter(ctx, cfg.Cache.RedisURL, rlCfg)
		if err != nil {
			return nil, err
		}
		return rl, nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend: %s", cfg.RateLimit.Backend)
	}
}

// newDebugServer serves pprof and store counters on addr
func newDebugServer(addr string, srv *fixture.Server, hub *websocket.Hub) (*server.Server, error) {
	cfg := profiling.DefaultConfig()
	cfg.Stats = func() map[string]interface{} {
		return map[string]interface{}{
			"resources":   srv.Len(),
			"subscribers": hub.Len(),
		}
	}
	return server.New(server.DefaultConfig(addr, profiling.Handler(cfg)))
}
