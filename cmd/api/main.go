package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payrollhub.org/internal/audit"
	"payrollhub.org/internal/auth"
	"payrollhub.org/internal/config"
	"payrollhub.org/internal/consistency"
	"payrollhub.org/internal/httpapi"
	"payrollhub.org/internal/kv"
	"payrollhub.org/internal/notify"
	"payrollhub.org/internal/obs"
	"payrollhub.org/internal/ratelimit"
	"payrollhub.org/internal/store/pg"
	"payrollhub.org/internal/users"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("payrollhub-api stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	db, err := pg.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	defer db.Close()

	var store kv.Store
	if cfg.Redis.Addr != "" {
		rdb := kv.NewRedis(kv.RedisOptions{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		store = rdb
	} else {
		logger.Warn("redis.addr not set; sessions and rate limits are process-local")
		store = kv.NewMemory()
	}

	limiterOpts := []ratelimit.Option{ratelimit.WithLogger(logger)}
	for name, p := range cfg.RateLimit.Presets {
		limiterOpts = append(limiterOpts, ratelimit.WithPreset(ratelimit.Preset{
			Name:        name,
			Window:      p.Window,
			MaxRequests: p.MaxRequests,
			FailOpen:    p.FailOpen,
		}))
	}
	limiter, err := ratelimit.New(store, limiterOpts...)
	if err != nil {
		return err
	}

	var dispatcher notify.Dispatcher = notify.LogDispatcher{Logger: logger}
	if cfg.AMQP.URL != "" {
		amqpDispatcher, err := notify.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Queue, cfg.AMQP.RatePerSecond, logger)
		if err != nil {
			return err
		}
		defer amqpDispatcher.Close()
		dispatcher = amqpDispatcher
	}

	policy := audit.PolicyFailClosed
	if cfg.Audit.FailOpen {
		policy = audit.PolicyFailOpen
		logger.Warn("audit.fail_open enabled; mutations may succeed without an audit entry")
	}
	auditStore := audit.NewPGStore(db.DB())
	auditLog := audit.New(auditStore, auditStore, audit.WithPolicy(policy), audit.WithLogger(logger))

	directory := auth.NewPGDirectory(db.DB())
	sessions := auth.NewSessionStore(store, auth.WithSessionTTL(cfg.Session.TTL), auth.WithSessionLogger(logger))
	revenues := consistency.NewPGStore(db)

	trustedProxies, err := httpapi.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	api := httpapi.New(httpapi.Deps{
		Guard:    auth.NewAccessGuard(sessions, auth.NewPermissionResolver(directory), logger),
		Auth:     auth.NewAuthenticator(directory, sessions, cfg.Session.TTL, logger),
		Limiter:  limiter,
		Audit:    auditLog,
		Revenues: consistency.NewService(revenues, revenues, revenues, dispatcher, auditLog, consistency.WithLogger(logger)),
		Users:    users.NewService(users.NewPGStore(db), auditLog, users.WithLogger(logger)),
		Ready:    httpapi.ReadyProbe{DB: db.DB(), KV: store},
	},
		httpapi.WithLogger(logger),
		httpapi.WithVersion(version),
		httpapi.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		httpapi.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		httpapi.WithSecureCookies(cfg.Server.SecureCookies),
		httpapi.WithTrustedProxies(trustedProxies),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("payrollhub-api starting", "version", version, "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}
