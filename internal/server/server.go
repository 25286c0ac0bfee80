/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/athleon_scheduler/internal/api"
	"github.com/friendsincode/athleon_scheduler/internal/cache"
	"github.com/friendsincode/athleon_scheduler/internal/config"
	"github.com/friendsincode/athleon_scheduler/internal/db"
	"github.com/friendsincode/athleon_scheduler/internal/eventbus"
	"github.com/friendsincode/athleon_scheduler/internal/events"
	"github.com/friendsincode/athleon_scheduler/internal/locking"
	"github.com/friendsincode/athleon_scheduler/internal/roster"
	"github.com/friendsincode/athleon_scheduler/internal/scheduler"
	"github.com/friendsincode/athleon_scheduler/internal/scheduling"
	"github.com/friendsincode/athleon_scheduler/internal/storage"
	"github.com/friendsincode/athleon_scheduler/internal/store"
	"github.com/friendsincode/athleon_scheduler/internal/telemetry"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db       *gorm.DB
	bus      *events.Bus
	engine   *scheduler.Engine
	cache    *cache.Cache
	redisBus *eventbus.RedisBus
	nats     *eventbus.NATSNotifier
	api      *api.API
}

// New wires the engine and its collaborators and builds the router.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("athleon-scheduler-api"))
	router.Use(telemetry.MetricsMiddleware)
	// The change feed is long-lived, so websocket upgrades skip the timeout.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		// WriteTimeout set to 0 for the websocket feed; the middleware
		// timeout handles every other route.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.DeferClose(func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database

	nodeID := s.cfg.InstanceID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	defaults := scheduling.Defaults{
		SetupTime:     s.cfg.DefaultSetupTime,
		HeatDuration:  s.cfg.DefaultHeatDuration,
		BreakDuration: s.cfg.DefaultBreakDuration,
		DayStart:      s.cfg.DefaultDayStart,
	}
	versions := store.New(database, s.cfg.StoreTimeout, s.logger)
	s.engine = scheduler.New(versions, scheduling.NewBuilder(), defaults, s.logger)
	s.engine.SetPublishTimeout(s.cfg.PublishTimeout)
	s.engine.SetRoster(roster.NewRepository(database, s.cfg.StoreTimeout, s.logger))
	s.engine.AddNotifier("bus", s.bus)
	// Background notifications finish before the database closes.
	s.DeferClose(func() error { s.engine.Wait(); return nil })

	s.initRedis(nodeID)

	if s.cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		natsCfg.Subject = s.cfg.NATSSubject
		notifier, err := eventbus.NewNATSNotifier(natsCfg, nodeID, s.logger)
		if err != nil {
			return fmt.Errorf("nats notifier: %w", err)
		}
		s.nats = notifier
		s.engine.AddNotifier("nats", notifier)
		s.DeferClose(notifier.Close)
	}

	if s.cfg.S3Bucket != "" {
		objects, err := storage.NewS3Store(context.Background(), storage.S3Config{
			Bucket:          s.cfg.S3Bucket,
			Region:          s.cfg.S3Region,
			Endpoint:        s.cfg.S3Endpoint,
			AccessKeyID:     s.cfg.S3AccessKeyID,
			SecretAccessKey: s.cfg.S3SecretAccessKey,
			UsePathStyle:    s.cfg.S3UsePathStyle,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("snapshot archive: %w", err)
		}
		s.engine.SetArchiver(storage.NewArchiver(objects, s.logger))
	}

	s.api = api.New(s.engine, s.bus, []byte(s.cfg.JWTSigningKey), s.logger)
	s.api.SetGenerateLimit(s.cfg.GenerateRate, s.cfg.GenerateBurst)
	return nil
}

// initRedis enables the schedule cache, the distributed lock and the
// cross-replica fan-out. Each degrades to its in-process form when Redis is
// not configured or not reachable.
func (s *Server) initRedis(nodeID string) {
	if s.cfg.RedisAddr == "" {
		s.logger.Info().Msg("Redis not configured, running single-node")
		return
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisAddr = s.cfg.RedisAddr
	cacheCfg.RedisPassword = s.cfg.RedisPassword
	cacheCfg.RedisDB = s.cfg.RedisDB
	cacheCfg.ScheduleTTL = s.cfg.CacheTTL
	// A cache that starts tripped re-probes Redis on its own.
	s.cache = cache.New(cacheCfg, s.logger)
	s.engine.SetCache(s.cache)
	s.DeferClose(s.cache.Close)

	busCfg := eventbus.DefaultRedisConfig()
	busCfg.Addr = s.cfg.RedisAddr
	busCfg.Password = s.cfg.RedisPassword
	busCfg.DB = s.cfg.RedisDB
	s.redisBus = eventbus.NewRedisBus(busCfg, nodeID, s.bus, s.logger)
	s.DeferClose(s.redisBus.Close)
	if !s.redisBus.Fallback() {
		s.engine.AddNotifier("redis", s.redisBus)
	}

	lockClient := redis.NewClient(&redis.Options{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPassword,
		DB:       s.cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lockClient.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("Redis lock unavailable, schedule locks are process-local")
		_ = lockClient.Close()
		return
	}
	s.DeferClose(lockClient.Close)

	lockCfg := locking.DefaultRedisConfig()
	lockCfg.LeaseDuration = s.cfg.LockLease
	s.engine.SetLocker(locking.Chain{
		locking.NewKeyedMutex(),
		locking.NewRedisLocker(lockClient, lockCfg, s.logger),
	}, s.cfg.LockTimeout)
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the root router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", telemetry.Handler())
	s.api.Routes(s.router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{"status": "ok"}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if sqlDB, err := s.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = "down"
	} else {
		body["database"] = "up"
		db.UpdateConnectionMetrics(s.db)
	}

	if s.cfg.RedisAddr != "" {
		body["cache"] = s.cache != nil && s.cache.IsAvailable()
		body["redisFanout"] = s.redisBus != nil && !s.redisBus.Fallback()
	}
	if s.nats != nil {
		body["nats"] = true
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
