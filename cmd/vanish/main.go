// Package main provides the vanish binary entry point that serves the
// ephemeral secret-sharing API. It loads configuration from VANISH_*
// environment variables, validates it and wires the service graph.
//
// The application flow:
//  1. Load and validate configuration.
//  2. Open the configured storage backend, retrying until it answers.
//  3. Start the metrics manager and the purge janitor.
//  4. Serve HTTP until SIGINT/SIGTERM, then shut down gracefully.
//
// It exits with status 2 on configuration errors and 1 on any other fatal
// error.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/haukened/vanish/internal/app"
	"github.com/haukened/vanish/internal/config"
	"github.com/haukened/vanish/internal/crypto"
	"github.com/haukened/vanish/internal/httpx"
	"github.com/haukened/vanish/internal/janitor"
	"github.com/haukened/vanish/internal/metrics"
	"github.com/haukened/vanish/internal/store"
	"github.com/haukened/vanish/internal/store/memory"
	"github.com/haukened/vanish/internal/store/redis"
	"github.com/haukened/vanish/internal/store/sqlite"
)

const (
	purgeTimeout    = time.Minute
	shutdownTimeout = 10 * time.Second
)

// realClock implements app.Clock using time.Now.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

func ensureDataDir(dir string) error {
	st, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return os.MkdirAll(dir, 0o700)
	case err != nil:
		return err
	case !st.IsDir():
		return fmt.Errorf("data path %s is not a directory", dir)
	}
	return nil
}

// resources holds what openBackend created so run can release it.
type resources struct {
	backend   store.Backend
	metricsDB *sql.DB // nil keeps metrics in memory
	closers   []func() error
}

func (r *resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

func openSQLite(ctx context.Context, cfg *config.Config, dsn string, log *slog.Logger) (*sql.DB, error) {
	if err := ensureDataDir(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := store.Connect(ctx, cfg.ConnectAttempts, cfg.ConnectBackoff, db.PingContext, log); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// openBackend opens the configured secrets backend and the database metrics
// persist to.
func openBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (*resources, error) {
	res := &resources{}
	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := openSQLite(ctx, cfg, cfg.SQLiteDSN(), log)
		if err != nil {
			return nil, err
		}
		res.closers = append(res.closers, db.Close)
		b, err := sqlite.New(db)
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("init sqlite schema: %w", err)
		}
		res.backend, res.metricsDB = b, db
	case config.BackendRedis:
		opt, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := goredis.NewClient(opt)
		res.closers = append(res.closers, rdb.Close)
		ping := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		if err := store.Connect(ctx, cfg.ConnectAttempts, cfg.ConnectBackoff, ping, log); err != nil {
			res.Close()
			return nil, err
		}
		res.backend = redis.New(rdb, redis.DefaultPrefix)
		mdb, err := openSQLite(ctx, cfg, cfg.MetricsDSN(), log)
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("metrics db: %w", err)
		}
		res.closers = append(res.closers, mdb.Close)
		res.metricsDB = mdb
	case config.BackendMemory:
		res.backend = memory.New()
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	return res, nil
}

func buildService(cfg *config.Config, st app.SecretStore) *app.Service {
	return &app.Service{
		Store:           st,
		DefaultTTL:      cfg.DefaultTTL(),
		DefaultMaxViews: cfg.DefaultMaxViews,
		MaxTTL:          cfg.MaxTTL,
		MaxViewsLimit:   cfg.MaxViewsLimit,
		PublicURL:       cfg.PublicURL,
	}
}

func buildHandler(cfg *config.Config, svc *app.Service, mgr *metrics.Manager) http.Handler {
	h := httpx.New(svc, svc.Store.Ping)
	h.Metrics = metrics.Handler(mgr, cfg.MetricsToken)
	return h.Router()
}

func newServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second, ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second, IdleTimeout: 120 * time.Second}
}

// run wires the service graph and serves until ctx is canceled.
func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	cipher, err := crypto.New(cfg.Cipher)
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}
	res, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer res.Close()

	mgr := metrics.New(res.metricsDB, metrics.Config{Logger: log})
	if err := mgr.InitSchema(ctx); err != nil {
		return fmt.Errorf("init metrics schema: %w", err)
	}
	mgr.Start(ctx)
	defer mgr.Stop(context.Background())

	st := store.New(res.backend, cipher, realClock{}, store.Options{PurgeBatch: cfg.PurgeBatch, Recorder: mgr, Logger: log})
	svc := buildService(cfg, st)

	jan, err := janitor.New(svc, janitor.Config{Schedule: cfg.PurgeSchedule, Timeout: purgeTimeout, Observer: mgr, Logger: log})
	if err != nil {
		return err
	}
	jan.Start(ctx)
	defer jan.Stop()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	srv := newServer(cfg, buildHandler(cfg, svc, mgr))
	log.Info("starting server", "addr", ln.Addr().String(), "backend", cfg.Backend, "cipher", cipher.Algorithm(), "pid", os.Getpid())
	return serve(ctx, srv, ln, log)
}

// serve runs srv on ln until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "err", err)
		os.Exit(2)
	}
	log := newLogger(cfg)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()
	if err != nil {
		log.Error("server error", "err", err)
		os.Exit(1)
	}
}
