package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	cartcache "github.com/vendora/marketplace/internal/cart/cache"
	cartrepo "github.com/vendora/marketplace/internal/cart/repository"
	cartservice "github.com/vendora/marketplace/internal/cart/service"
	"github.com/vendora/marketplace/internal/cart/sweeper"
	h "github.com/vendora/marketplace/internal/http"
	orderrepo "github.com/vendora/marketplace/internal/order/repository"
	orderservice "github.com/vendora/marketplace/internal/order/service"
	"github.com/vendora/marketplace/internal/outbox"
	paymentrepo "github.com/vendora/marketplace/internal/payment/repository"
	paymentwebhook "github.com/vendora/marketplace/internal/payment/webhook"
	"github.com/vendora/marketplace/internal/payout/provider"
	payoutrepo "github.com/vendora/marketplace/internal/payout/repository"
	"github.com/vendora/marketplace/internal/payout/scheduler"
	payoutwebhook "github.com/vendora/marketplace/internal/payout/webhook"
	"github.com/vendora/marketplace/internal/payout/worker"
	"github.com/vendora/marketplace/internal/storage"
	"github.com/vendora/marketplace/internal/vendor"
	"github.com/vendora/marketplace/internal/webhooklog"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Fatalf("invalid %s: %q", key, value)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Fatalf("invalid %s: %q", key, value)
		}
		return d
	}
	return defaultValue
}

func main() {
	log.Println("marketplace starting...")

	httpPort := getEnv("HTTP_PORT", "8080")
	requestTimeout := 30 * time.Second
	shutdownTimeout := 10 * time.Second

	creds := &storage.Credentials{
		Host:              getEnv("DB_HOST", "localhost"),
		Port:              getEnvInt("DB_PORT", 5432),
		User:              getEnv("DB_USER", "postgres"),
		Password:          getEnv("DB_PASSWORD", "postgres"),
		DBName:            getEnv("DB_NAME", "marketplace"),
		MigrationsDirPath: getEnv("MIGRATIONS_PATH", "./migrations"),
	}

	db, err := storage.Open(creds)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := storage.RunMigrations(db, creds); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	// Mongo holds the webhook idempotency ledger
	mongoURI := getEnv("MONGO_URI", "mongodb://localhost:27017")
	mongoCtx, mongoCancel := context.WithTimeout(context.Background(), 10*time.Second)
	mongoClient, err := mongo.Connect(mongoCtx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		mongoCancel()
		log.Fatalf("Failed to connect to mongodb: %v", err)
	}
	if err := mongoClient.Ping(mongoCtx, readpref.Primary()); err != nil {
		mongoCancel()
		log.Fatalf("Failed to ping mongodb: %v", err)
	}
	mongoCancel()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(ctx); err != nil {
			log.Printf("error disconnecting mongodb: %v", err)
		}
	}()

	ledger := webhooklog.NewMongoLog(
		mongoClient.Database(getEnv("MONGO_DB", "marketplace")),
		getEnvDuration("WEBHOOK_RECLAIM_AFTER", 5*time.Minute),
	)
	indexCtx, indexCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ledger.CreateIndexes(indexCtx, getEnvDuration("WEBHOOK_RETENTION", 30*24*time.Hour)); err != nil {
		indexCancel()
		log.Fatalf("Failed to create webhook log indexes: %v", err)
	}
	indexCancel()

	redisClient := redis.NewClient(&redis.Options{
		Addr: getEnv("REDIS_ADDR", "localhost:6379"),
	})
	defer redisClient.Close()

	kafkaBrokers := []string{getEnv("KAFKA_BROKERS", "localhost:9092")}

	// Repositories
	carts := cartrepo.NewRepository(db)
	orders := orderrepo.NewRepository(db)
	vendors := vendor.NewRepository(db)
	payouts := payoutrepo.NewPostgresRepository(db)
	outboxRepo := outbox.NewPostgresRepository(db)
	payments := paymentrepo.NewRepository(db)

	// Services
	cache := cartcache.NewRedisCache(redisClient)
	cartSvc := cartservice.NewCartService(carts, cache, vendors, cartservice.Config{
		DefaultDeliveryDaysFrom: getEnvInt("DELIVERY_DAYS_FROM", 3),
		DefaultDeliveryDaysTo:   getEnvInt("DELIVERY_DAYS_TO", 7),
	})
	orderSvc := orderservice.NewOrderService(orders, carts, cache, payouts, orderservice.Config{
		Currency:          getEnv("CURRENCY", "USD"),
		PointsEarnDivisor: int64(getEnvInt("POINTS_EARN_DIVISOR", 10)),
	})

	// Webhook consumers
	paymentEngine := paymentwebhook.NewEngine(
		[]byte(getEnv("PAYMENT_WEBHOOK_SECRET", "")),
		getEnv("PAYMENT_PROVIDER", "stripeish"),
		ledger, payments,
	)
	payoutEngine := payoutwebhook.NewEngine(
		[]byte(getEnv("PAYOUT_WEBHOOK_SECRET", "")),
		ledger, payouts,
	)

	// Background workers
	runCtx, cancelWorkers := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	poller := outbox.NewPoller(outboxRepo, kafkaBrokers...)
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(runCtx)
	}()

	payoutScheduler := scheduler.NewScheduler(orders, vendors, payouts,
		getEnvDuration("SETTLEMENT_DELAY", 48*time.Hour))
	consumer := scheduler.NewConsumer(payoutScheduler, kafkaBrokers...)
	wg.Add(1)
	go func() {
		defer wg.Done()
		consumer.Run(runCtx)
	}()

	transferer := provider.NewClient(
		getEnv("PAYOUT_PROVIDER_URL", "http://localhost:9090"),
		getEnv("PAYOUT_PROVIDER_API_KEY", ""),
		getEnvDuration("PAYOUT_PROVIDER_TIMEOUT", 30*time.Second),
	)
	settlement := worker.NewWorker(worker.DefaultConfig(), payouts, transferer)
	wg.Add(1)
	go func() {
		defer wg.Done()
		settlement.Run(runCtx)
	}()

	guestSweeper := sweeper.NewSweeper(carts,
		getEnvDuration("SWEEP_INTERVAL", time.Hour),
		getEnvDuration("GUEST_CART_MAX_IDLE", 30*24*time.Hour))
	wg.Add(1)
	go func() {
		defer wg.Done()
		guestSweeper.Run(runCtx)
	}()

	// HTTP server
	router := h.NewRouter(
		h.NewCartHandler(cartSvc),
		h.NewOrderHandler(orderSvc, payouts),
		h.NewWebhookHandler(paymentEngine, payoutEngine),
		requestTimeout,
	)
	srv := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("marketplace listening on :%s", httpPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}

	cancelWorkers()
	consumer.Close()
	poller.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Println("all workers stopped")
	case <-shutdownCtx.Done():
		log.Println("worker shutdown timed out")
	}
}
