package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"shopchat/internal/config"
	"shopchat/internal/consumer"
	"shopchat/internal/database"
	"shopchat/internal/handler"
	"shopchat/internal/llm"
	"shopchat/internal/middleware"
	"shopchat/internal/monitor"
	"shopchat/internal/orchestrator"
	"shopchat/internal/redis"
	"shopchat/internal/replica"
	"shopchat/internal/repository"
	"shopchat/internal/service/memory"
	"shopchat/internal/service/responder"
	jwtutil "shopchat/internal/utils"
	"shopchat/pkg/breaker"
	"shopchat/pkg/bus"
	"shopchat/pkg/limiter"
	"shopchat/pkg/lock"
	"shopchat/pkg/log"
)

func serveCmd(configPath *string) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Consume events and serve the ops/API endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(*configPath)
			if err != nil {
				return err
			}
			return serve(cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Run schema migration before serving")
	return cmd
}

func serve(cfg *config.Config, migrate bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// database
	if err := database.Init(cfg); err != nil {
		return err
	}
	defer database.Close()
	db := database.GetDB()
	if migrate {
		if err := database.AutoMigrate(db); err != nil {
			return err
		}
		if err := database.CreateIndexes(db); err != nil {
			return err
		}
	}

	// redis
	var redisClient *goredis.Client
	if cfg.Redis.Enabled() {
		if err := redis.Init(cfg); err != nil {
			return err
		}
		defer redis.Close()
		redisClient = redis.GetClient()
	}

	// observability
	var metrics *monitor.MetricsCollector
	if cfg.Metrics.Enabled {
		metrics = monitor.NewMetricsCollector(cfg.Metrics.Namespace)
		go metrics.StartSystemMetricsCollection(ctx, 15*time.Second)
	}
	tracer, err := monitor.NewTracer(cfg.Tracing, Version)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Failed to flush traces")
		}
	}()

	// llm
	chain, err := llm.New(cfg.LLM, &http.Client{}, newBreakers(cfg.LLM.Breaker, metrics), llmObserver(metrics))
	if err != nil {
		return err
	}

	// store and memory
	users := repository.NewUserRepository(db)
	products := repository.NewProductRepository(db)
	customers := repository.NewCustomerRepository(db)
	messages := repository.NewMessageRepository(db)
	conversations := repository.NewConversationRepository(db)

	cache, err := memory.NewCache(cfg.Memory, redisClient)
	if err != nil {
		return err
	}
	if closer, ok := cache.(io.Closer); ok {
		defer closer.Close()
	}
	mem := memory.New(cache, conversations)

	// bus
	b, err := newBus(cfg.Bus)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.WithError(err).Warn("Failed to close bus")
		}
	}()

	opts := []orchestrator.Option{orchestrator.WithTracer(tracer)}
	if metrics != nil {
		opts = append(opts, orchestrator.WithMetrics(metrics))
	}
	if redisClient != nil {
		opts = append(opts, orchestrator.WithLocker(lock.NewRedisLocker(redisClient, cfg.Memory.Prefix+"lock:", cfg.Memory.LockTTL)))
	}
	orch, err := orchestrator.New(
		cfg.Bus,
		replica.NewStore(users, products, customers, replica.WithEvictor(mem)),
		products,
		messages,
		responder.New(mem, chain),
		b,
		opts...,
	)
	if err != nil {
		return err
	}
	for _, exchange := range orch.OutboundExchanges() {
		if err := b.Declare(ctx, exchange); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
	}

	supervisor := consumer.NewSupervisor(b, cfg.Bus.ReconnectDelay, orch.Bindings()...)
	if metrics != nil {
		supervisor.OnReconnect(metrics.RecordReconnect)
	}
	if err := supervisor.Start(ctx); err != nil {
		return err
	}

	// http
	server, err := newServer(cfg, metrics, tracer, b, redisClient, customers, messages, products, mem, orch)
	if err != nil {
		supervisor.Stop()
		return err
	}
	serverErr := make(chan error, 1)
	go func() {
		log.WithFields(map[string]interface{}{
			"addr": cfg.Server.GetAddr(),
			"mode": cfg.Server.Mode,
			"bus":  cfg.Bus.Driver,
		}).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	config.WatchConfig(func(_ *config.Config, err error) {
		if err != nil {
			log.WithError(err).Warn("Ignoring invalid configuration change")
			return
		}
		log.Info("Configuration file changed; restart to apply")
	})

	select {
	case <-ctx.Done():
		log.Info("Shutting down...")
	case err = <-serverErr:
		log.WithError(err).Error("HTTP server failed")
	}

	// the in-flight delivery finishes before the bus closes
	supervisor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		log.WithError(shutdownErr).Error("Server forced to shutdown")
	}

	log.Info("Orchestrator exited")
	return err
}

func newBus(cfg config.BusConfig) (bus.Bus, error) {
	switch cfg.Driver {
	case "memory":
		return bus.NewMemoryBus(&bus.MemoryConfig{PublishTimeout: cfg.PublishTimeout}), nil
	case "nats":
		return bus.NewNATSBus(bus.NATSConfig{
			URL:            cfg.URL,
			Name:           "ai-orchestrator",
			ReconnectDelay: cfg.ReconnectDelay,
			PublishTimeout: cfg.PublishTimeout,
		})
	case "kafka":
		return bus.NewKafkaBus(bus.KafkaConfig{
			Brokers:        cfg.Brokers,
			PublishTimeout: cfg.PublishTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported bus driver: %q", cfg.Driver)
	}
}

func newBreakers(cfg config.LLMBreakerConfig, metrics *monitor.MetricsCollector) *breaker.Manager {
	if !cfg.Enabled {
		return nil
	}
	return breaker.NewManager(breaker.Config{
		MaxRequests:      1,
		Timeout:          cfg.OpenTimeout,
		FailureThreshold: cfg.FailureThreshold,
		OnStateChange: func(name string, from, to breaker.State) {
			log.WithFields(map[string]interface{}{
				"provider": name,
				"from":     from.String(),
				"to":       to.String(),
			}).Warn("LLM circuit breaker changed state")
			if metrics != nil {
				metrics.SetBreakerState(name, from, to)
			}
		},
	})
}

func llmObserver(metrics *monitor.MetricsCollector) llm.Observer {
	if metrics == nil {
		return nil
	}
	return metrics.ObserveLLM
}

// newRateLimiter shares the API quota across instances when Redis is configured
func newRateLimiter(cfg *config.Config, redisClient *goredis.Client) limiter.RateLimiter {
	if redisClient != nil {
		limit := cfg.Server.RateBurst
		if limit < int(cfg.Server.RateLimit) {
			limit = int(cfg.Server.RateLimit)
		}
		return limiter.NewSlidingWindowLimiter(redisClient, "shopchat:rate_limit:", limit, time.Second)
	}
	return limiter.NewTokenBucketLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst)
}

func newServer(
	cfg *config.Config,
	metrics *monitor.MetricsCollector,
	tracer *monitor.Tracer,
	b bus.Bus,
	redisClient *goredis.Client,
	customers repository.CustomerRepository,
	messages repository.MessageRepository,
	products repository.ProductRepository,
	mem *memory.Memory,
	orch *orchestrator.Orchestrator,
) (*http.Server, error) {
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	checks := []handler.HealthCheck{
		{Name: "database", Check: func(ctx context.Context) error { return database.Health() }},
		{Name: "bus", Check: func(ctx context.Context) error { return b.Health() }},
	}
	if redisClient != nil {
		checks = append(checks, handler.HealthCheck{
			Name:     "redis",
			Optional: true,
			Check:    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	routerCfg := handler.RouterConfig{
		Health:         handler.NewHealthHandler(Version, checks...),
		Customers:      handler.NewCustomerHandler(customers, messages, products, mem),
		Messages:       handler.NewMessageHandler(orch),
		Metrics:        metrics,
		MetricsPath:    cfg.Metrics.Path,
		Tracer:         tracer,
		RequestTimeout: cfg.Server.WriteTimeout,
	}
	if cfg.Server.RateLimit > 0 {
		routerCfg.RateLimiter = newRateLimiter(cfg, redisClient)
	}
	if cfg.Auth.Secret != "" {
		verifier, err := jwtutil.NewTokenVerifier(cfg.Auth)
		if err != nil {
			return nil, err
		}
		routerCfg.TokenValidator = middleware.JWTValidator(verifier)
	} else {
		log.Warn("auth.secret is empty, /api/v1 is not mounted")
	}

	return &http.Server{
		Addr:           cfg.Server.GetAddr(),
		Handler:        handler.NewRouter(routerCfg),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
	}, nil
}
