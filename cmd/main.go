package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"ordercore/internal/cache"
	"ordercore/internal/config"
	"ordercore/internal/events"
	httpapi "ordercore/internal/http"
	"ordercore/internal/observability"
	"ordercore/internal/payment"
	"ordercore/internal/repository"
	"ordercore/internal/service"

	_ "ordercore/docs"
)

// @title Order Service API
// @version 1.0
// @description Оформление заказов: резерв запаса, авторизация платежа, отмена с компенсацией.
// @BasePath /api/v1
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := observability.NewLogger(cfg.Env, cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("service stopped", zap.Error(err))
	}
}

type storage struct {
	products  repository.ProductRepository
	orders    repository.OrderRepository
	payments  repository.PaymentRepository
	customers repository.CustomerRepository
	idem      repository.IdempotencyRepository
	tx        repository.TxManager
	db        repository.Pinger
	close     func()
}

func openStorage(ctx context.Context, cfg config.Config, log *zap.Logger) (*storage, error) {
	if cfg.StoreBackend == "memory" {
		store := repository.NewMemoryStore()
		log.Info("using in-memory store")
		return &storage{
			products:  store,
			orders:    repository.NewMemoryOrders(store),
			payments:  repository.NewMemoryPayments(store),
			customers: repository.NewMemoryCustomers(store),
			idem:      repository.NewMemoryIdempotency(store),
			tx:        repository.NewMemoryTx(store),
			db:        store,
			close:     func() {},
		}, nil
	}

	if err := repository.Migrate(cfg.PostgresDSN); err != nil {
		return nil, err
	}
	pool, err := repository.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	store := repository.NewPostgresStore(pool)
	log.Info("using postgres store")
	return &storage{
		products:  store,
		orders:    repository.NewPostgresOrders(store),
		payments:  repository.NewPostgresPayments(store),
		customers: repository.NewPostgresCustomers(store),
		idem:      repository.NewPostgresIdempotency(store),
		tx:        repository.NewPostgresTx(store),
		db:        store,
		close:     pool.Close,
	}, nil
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg, "ordercore")

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	var orderCache service.OrderCache
	idemRepo := st.idem
	if cfg.RedisAddr != "" {
		rdb := cache.New(cfg.RedisAddr)
		defer func() { _ = rdb.Close() }()
		orderCache = cache.NewRedisOrders(rdb, cfg.OrderCacheTTL, log)
		if cfg.IdempotencyBackend == "redis" {
			idemRepo = repository.NewRedisIdempotency(rdb, cfg.IdempotencyTTL)
		}
		logRedis(ctx, rdb, log)
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.ServiceName, 1024, log)
		kp.Start()
		defer kp.Close()
		publisher = kp
		log.Info("publishing events to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	gateway := payment.NewHTTPGateway(cfg.PaymentAuthURL, cfg.PaymentTimeout)
	deps := service.OrderDeps{
		Products:   st.products,
		Orders:     st.orders,
		Payments:   st.payments,
		Tx:         st.tx,
		Claims:     idemRepo,
		Customers:  service.NewCustomerService(st.customers),
		Inventory:  service.NewInventoryReservoir(st.products, cfg.InventoryMaxRetries, log, metrics),
		Discounts:  service.NewDiscountCalculator(cfg.DiscountTiers),
		Authorizer: service.NewPaymentAuthorizer(gateway, cfg.PaymentMaxAttempts, cfg.PaymentRetryBackoff, log, metrics),
		Events:     publisher,
		Cache:      orderCache,
		Log:        log,
		Metrics:    metrics,
		MinTotal:   cfg.MinOrderTotal,
	}

	srv := httpapi.NewServer(httpapi.Options{
		Products:     service.NewProductService(st.products),
		Orders:       service.NewOrderService(deps),
		Cancellation: service.NewCancellationService(deps),
		Idempotency:  service.NewIdempotencyGuard(idemRepo, cfg.IdempotencyTTL, cfg.IdempotencyWait, log, metrics),
		DB:           st.db,
		Log:          log,
		Metrics:      metrics,
		Gatherer:     reg,
		Version:      cfg.Version,
		MockGateway:  cfg.Env != "production",
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", httpServer.Addr), zap.String("version", cfg.Version))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
	return nil
}

// logRedis недоступный Redis не мешает старту: кэш деградирует до промахов
func logRedis(ctx context.Context, rdb *redis.Client, log *zap.Logger) {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable", zap.Error(err))
		return
	}
	log.Info("redis connected")
}
