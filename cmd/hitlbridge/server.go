package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/hitlbridge/api/handlers"
	"github.com/BaSui01/hitlbridge/api/ws"
	"github.com/BaSui01/hitlbridge/config"
	"github.com/BaSui01/hitlbridge/hitl"
	"github.com/BaSui01/hitlbridge/hitl/audit"
	"github.com/BaSui01/hitlbridge/hitl/redisbus"
	"github.com/BaSui01/hitlbridge/hitl/webhook"
	"github.com/BaSui01/hitlbridge/internal/database"
	"github.com/BaSui01/hitlbridge/internal/metrics"
	"github.com/BaSui01/hitlbridge/internal/server"
	"github.com/BaSui01/hitlbridge/internal/telemetry"
)

const metricsNamespace = "hitlbridge"

// 无需认证的路径
var publicPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

// Server 组装 bridge、投递通道、审计与 HTTP 服务
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	registry  *prometheus.Registry
	collector *metrics.Collector
	otel      *telemetry.Providers

	hub    *ws.Hub
	bus    *redisbus.Bus
	bridge *hitl.Bridge

	auditStore audit.Store
	closers    []func(context.Context) error

	health        *handlers.HealthHandler
	handler       http.Handler
	limiterCancel context.CancelFunc

	apiManager     *server.Manager
	metricsManager *server.Manager
}

// NewServer 连接所有外部依赖并构建路由。失败时已打开的资源会被释放.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		health:   handlers.NewHealthHandler(logger),
	}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.collector = metrics.NewCollector(metricsNamespace, s.registry, logger)

	otelProviders, err := telemetry.Init(ctx, cfg.Telemetry, Version, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry, tracing disabled", zap.Error(err))
	}
	s.otel = otelProviders

	if err := s.init(ctx); err != nil {
		s.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return s, nil
}

func (s *Server) init(ctx context.Context) error {
	// hub 先于 bridge 创建，回复在 Run 启动后才会到达
	s.hub = ws.NewHub(ws.SubmitterFunc(func(requestID, text string) bool {
		return s.bridge.SubmitResponse(requestID, text)
	}), ws.DefaultConfig(), s.logger)
	s.hub.SetReplyHook(s.collector.RecordResponseSubmitted)
	s.health.RegisterCheck(handlers.NewCheck("operator_hub", func(ctx context.Context) error {
		_, err := s.hub.Operators(ctx)
		return err
	}))

	senders := []hitl.Sender{s.hub}

	if s.cfg.Redis.Enabled {
		bus, err := redisbus.NewBus(s.cfg.Redis, s.logger)
		if err != nil {
			return fmt.Errorf("init redis bus: %w", err)
		}
		s.bus = bus
		bus.SetReplyHook(s.collector.RecordResponseSubmitted)
		s.health.RegisterCheck(handlers.NewCheck("redis", bus.Ping))
		senders = append(senders, bus)
	}

	if s.cfg.Webhook.Enabled {
		wh, err := webhook.New(s.cfg.Webhook, s.logger)
		if err != nil {
			return fmt.Errorf("init webhook: %w", err)
		}
		senders = append(senders, wh)
	}

	if s.cfg.Audit.Enabled {
		if err := s.openAudit(ctx); err != nil {
			return err
		}
	}

	bc := s.cfg.Bridge
	opts := []hitl.Option{
		hitl.WithLogger(s.logger),
		hitl.WithDefaultTimeout(bc.DefaultTimeout),
		hitl.WithWaitBuffer(bc.WaitBuffer),
		hitl.WithDispatchWorkers(bc.DispatchWorkers),
		hitl.WithDispatchQueue(bc.DispatchQueue),
		hitl.WithObserverQueue(bc.ObserverQueue),
		hitl.WithSendTimeout(bc.SendTimeout),
		hitl.WithObserver(s.collector),
		hitl.WithTracer(s.otel.Tracer()),
	}
	if s.auditStore != nil {
		opts = append(opts, hitl.WithObserver(audit.NewRecorder(s.auditStore, s.cfg.Audit.WriteTimeout, s.logger)))
	}
	s.bridge = hitl.New(hitl.Fanout(senders...), opts...)

	s.collector.RegisterDispatchStats(s.bridge.DispatchStats)
	if s.otel.Enabled() {
		if err := s.otel.ObserveDispatch(s.bridge.DispatchStats); err != nil {
			s.logger.Warn("failed to register dispatch gauges", zap.Error(err))
		}
	}

	limiterCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.limiterCancel = cancel
	s.handler = s.routes(limiterCtx)

	s.apiManager = server.NewManager(s.handler, server.APIConfig(s.cfg.Server), s.logger)
	if s.cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", s.metricsHandler())
		s.metricsManager = server.NewManager(mux, server.MetricsConfig(s.cfg.Server), s.logger)
	}

	s.logger.Info("server initialized",
		zap.Int("senders", len(senders)),
		zap.Bool("redis", s.bus != nil),
		zap.Bool("webhook", s.cfg.Webhook.Enabled),
		zap.Bool("audit", s.auditStore != nil),
		zap.String("middlewares", describeMiddlewares(s.cfg)),
	)
	return nil
}

// openAudit 打开审计后端并注册就绪检查.
func (s *Server) openAudit(ctx context.Context) error {
	ac := s.cfg.Audit
	switch ac.Backend {
	case "mongo":
		store, err := audit.ConnectMongo(ctx, ac.MongoURI, ac.MongoDatabase, ac.MongoCollection)
		if err != nil {
			return err
		}
		s.auditStore = store
		s.closers = append(s.closers, store.Disconnect)
		s.health.RegisterCheck(handlers.NewCheck("mongo", store.Ping))
	default:
		pm, err := database.Open(s.cfg.Database, s.logger)
		if err != nil {
			return fmt.Errorf("open audit database: %w", err)
		}
		s.closers = append(s.closers, func(context.Context) error { return pm.Close() })
		store, err := audit.NewGormStore(pm.DB(), ac.AutoMigrate)
		if err != nil {
			return err
		}
		s.auditStore = store
		s.health.RegisterCheck(handlers.NewCheck("database", pm.Ping))
	}
	s.logger.Info("audit trail enabled", zap.String("backend", ac.Backend))
	return nil
}

// routes 注册 API 路由并包上中间件链.
func (s *Server) routes(limiterCtx context.Context) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.health.HandleHealth)
	mux.HandleFunc("GET /healthz", s.health.HandleHealth)
	mux.HandleFunc("GET /ready", s.health.HandleReady)
	mux.HandleFunc("GET /readyz", s.health.HandleReady)
	mux.HandleFunc("GET /version", s.health.HandleVersion(Version, BuildTime, GitCommit))

	requests := handlers.NewRequestHandler(s.bridge, s.cfg.Bridge.JanitorMaxAge, s.collector.RecordResponseSubmitted, s.logger)
	mux.HandleFunc("GET /api/v1/requests", requests.HandleList)
	mux.HandleFunc("POST /api/v1/requests/cleanup", requests.HandleCleanup)
	mux.HandleFunc("GET /api/v1/requests/{id}", requests.HandleGet)
	mux.HandleFunc("POST /api/v1/requests/{id}/response", requests.HandleSubmit)

	auditHandler := handlers.NewAuditHandler(s.auditStore, s.logger)
	mux.HandleFunc("GET /api/v1/audit", auditHandler.HandleList)
	mux.HandleFunc("GET /api/v1/audit/{id}", auditHandler.HandleGet)

	mux.Handle("GET /api/v1/ws", s.hub)

	if s.cfg.Server.MetricsPort == 0 {
		mux.Handle("GET /metrics", s.metricsHandler())
	}

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(s.otel.Tracer()),
		Metrics(s.collector),
		RequestLogger(s.logger),
		RateLimiter(limiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		JWTAuth(s.cfg.Auth, publicPaths, s.logger),
	)
}

func (s *Server) metricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// Handler 返回带中间件的 API handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run 运行 HTTP 服务、operator hub、清理器与 Redis 回复监听，直到 ctx 结束或任一组件失败.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		s.bridge.RunJanitor(gctx, s.cfg.Bridge.JanitorInterval, s.cfg.Bridge.JanitorMaxAge)
		return nil
	})
	if s.bus != nil {
		g.Go(func() error {
			if err := s.bus.ListenReplies(gctx, s.bridge); err != nil {
				return fmt.Errorf("redis reply listener: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error { return s.apiManager.Run(gctx) })
	if s.metricsManager != nil {
		g.Go(func() error { return s.metricsManager.Run(gctx) })
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return g.Wait()
}

// Close 释放 bridge、Redis、审计后端与 telemetry.
func (s *Server) Close(ctx context.Context) {
	if s.limiterCancel != nil {
		s.limiterCancel()
	}
	if s.bridge != nil {
		s.bridge.Close()
	}

	var errs []error
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis bus: %w", err))
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	if err := s.otel.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("shutdown finished with errors", zap.Error(err))
		return
	}
	s.logger.Info("graceful shutdown completed")
}
