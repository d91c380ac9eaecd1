package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ferrychris/policyweb-sub000/internal/audit"
	"github.com/ferrychris/policyweb-sub000/internal/catalog"
	"github.com/ferrychris/policyweb-sub000/internal/console/handler"
	"github.com/ferrychris/policyweb-sub000/internal/console/server"
	"github.com/ferrychris/policyweb-sub000/internal/console/service"
	"github.com/ferrychris/policyweb-sub000/internal/engine"
	"github.com/ferrychris/policyweb-sub000/internal/entitlement"
	"github.com/ferrychris/policyweb-sub000/internal/export"
	"github.com/ferrychris/policyweb-sub000/internal/infra"
	"github.com/ferrychris/policyweb-sub000/internal/infra/auth"
	"github.com/ferrychris/policyweb-sub000/internal/migrations"
	"github.com/ferrychris/policyweb-sub000/internal/payment"
	"github.com/ferrychris/policyweb-sub000/internal/repository/memory"
	"github.com/ferrychris/policyweb-sub000/internal/repository/postgres"
	"github.com/ferrychris/policyweb-sub000/internal/repository/rediscache"
	"github.com/ferrychris/policyweb-sub000/internal/wizard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// stores: хранилища одного драйвера (postgres или memory).
type stores struct {
	users    service.UserStore
	subs     service.SubscriptionStore
	policies rediscache.Backend
	audit    interface {
		audit.StorageInterface
		service.AuditLogProvider
	}
	close func() error
}

func openStores(ctx context.Context, cfg infra.DatabaseConfig) (*stores, error) {
	if cfg.Driver != "postgres" {
		return &stores{
			users:    memory.NewUserRepo(),
			subs:     memory.NewSubscriptionRepo(),
			policies: memory.NewPolicyRepo(),
			audit:    memory.NewAuditRepo(10000),
			close:    func() error { return nil },
		}, nil
	}
	if cfg.AutoMigrate {
		if err := migrations.Up(cfg.URL); err != nil {
			return nil, err
		}
	}
	db, err := postgres.Open(ctx, cfg.URL, cfg.MaxConns)
	if err != nil {
		return nil, err
	}
	return &stores{
		users:    postgres.NewUserRepo(db),
		subs:     postgres.NewSubscriptionRepo(db),
		policies: postgres.NewPolicyRepo(db),
		audit:    postgres.NewAuditRepo(db),
		close:    db.Close,
	}, nil
}

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	st, err := openStores(appCtx, cfg.Database)
	if err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	defer st.close()

	var rdb *redis.Client
	var policyCache *rediscache.PolicyCache
	policies := st.policies
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Fatal("redis unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		pingCancel()
		policyCache = rediscache.NewPolicyCache(st.policies, rdb, cfg.Redis.CacheTTL, logger)
		policies = policyCache
	}

	// Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	// Журнал активности, пишется пачками
	activity := audit.NewActivityLog(st.audit, audit.Options{
		BufferSize:    cfg.Audit.BufferSize,
		FlushInterval: cfg.Audit.FlushInterval,
		BufferGauge:   metrics.AuditBufferFill,
	}, logger)
	activity.Start()

	// 3. Ключи и токены
	privPEM, pubPEM := cfg.Auth.PrivateKey, cfg.Auth.PublicKey
	if len(privPEM) == 0 || len(pubPEM) == 0 {
		logger.Warn("RSA keys are not configured, using ephemeral keys: tokens will not survive restart")
		if privPEM, pubPEM, err = auth.GenerateEphemeralKeys(); err != nil {
			logger.Fatal("failed to generate keys", zap.Error(err))
		}
	}
	privKey, err := auth.ParseRSAPrivateKey(privPEM)
	if err != nil {
		logger.Fatal("invalid private key", zap.Error(err))
	}
	pubKey, err := auth.ParseRSAPublicKey(pubPEM)
	if err != nil {
		logger.Fatal("invalid public key", zap.Error(err))
	}

	// 4. Control Plane
	switches := engine.NewKillSwitchManager(rdb, logger)
	if err := switches.Init(appCtx, cfg.Generation.SuspendedTypes); err != nil {
		logger.Fatal("failed to init kill-switch", zap.Error(err))
	}
	go switches.StartListener(appCtx)

	memo := entitlement.NewMemoCache(st.subs, rdb, logger)
	go memo.StartListener(appCtx)

	if policyCache != nil {
		go policyCache.StartListener(appCtx)
	}

	// 5. Ядро генерации и мастер
	generator, err := engine.NewFromConfig(appCtx, cfg.Generation, activity, metrics, logger)
	if err != nil {
		logger.Fatal("failed to build generator", zap.Error(err))
	}
	generator.WithKillSwitch(switches)

	resolver := entitlement.NewResolver(catalog.Default)
	manager := wizard.NewManager(wizard.Deps{
		Types:     catalog.Default,
		Rules:     resolver,
		Generator: generator,
		Store:     policies,
		Auditor:   activity,
		Stale:     metrics.StaleDiscarded,
		Logger:    logger,
	}, cfg.Wizard.SessionTTL)
	go manager.StartJanitor(appCtx, time.Minute)

	// 6. Сервисы (Dependency Injection)
	authSvc := service.NewAuthService(st.users, auth.NewSigner(privKey, cfg.Auth.TokenTTL), cfg.Auth.BcryptCost, logger)
	if err := authSvc.EnsureAdmin(appCtx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
		logger.Fatal("failed to provision admin", zap.Error(err))
	}
	subSvc := service.NewSubscriptionService(st.subs, catalog.Default,
		payment.NewSandbox(cfg.Payment.ProcessingDelay, logger), memo, activity, cfg.Payment.Term, logger)
	policySvc := service.NewPolicyService(policies, export.NewExporter(), activity, logger)
	dashSvc := service.NewDashboardService(memo, resolver, catalog.Default, policySvc, st.subs)

	api := server.NewConsoleServer(logger, auth.NewBaseValidator(pubKey), server.Handlers{
		Auth:         handler.NewAuthHandler(authSvc, logger),
		Catalog:      handler.NewCatalogHandler(catalog.Default),
		Dashboard:    handler.NewDashboardHandler(dashSvc, logger),
		Subscription: handler.NewSubscriptionHandler(subSvc, logger),
		Wizard:       handler.NewWizardHandler(manager, dashSvc, logger),
		Policy:       handler.NewPolicyHandler(policySvc, logger),
		Audit:        handler.NewAuditHandler(service.NewAuditService(st.audit), logger),
		Admin:        handler.NewAdminHandler(switches, catalog.Default, logger),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Экспортируем метрики для Prometheus на отдельном порту
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", zap.Error(err))
		}
	}()

	// gRPC health для оркестратора
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	go func() {
		lis, err := net.Listen("tcp", cfg.GRPC.HealthAddr)
		if err != nil {
			logger.Fatal("failed to listen gRPC", zap.String("addr", cfg.GRPC.HealthAddr), zap.Error(err))
		}
		logger.Info("gRPC health server started", zap.String("addr", cfg.GRPC.HealthAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("gRPC health server stopped", zap.Error(err))
		}
	}()

	// 7. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("console API started",
			zap.String("addr", srv.Addr),
			zap.String("db", cfg.Database.Driver),
			zap.String("generation", cfg.Generation.Mode),
			zap.Bool("redis", rdb != nil))
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("shutting down console API")
	healthSrv.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	_ = metricsSrv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()

	// Останавливаем слушателей Redis и janitor, затем сбрасываем остаток журнала
	cancel()
	activity.Stop()
	logger.Info("console API stopped")
}
