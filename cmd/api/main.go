package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"suruchiraj-service/handlers"
	"suruchiraj-service/internal/addresses"
	"suruchiraj-service/internal/auth"
	"suruchiraj-service/internal/cart"
	"suruchiraj-service/internal/consul"
	"suruchiraj-service/internal/orders"
	"suruchiraj-service/internal/payment/phonepe"
	"suruchiraj-service/internal/products"
	"suruchiraj-service/internal/stores/kafka"
	"suruchiraj-service/internal/stores/postgres"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
)

const serviceName = "suruchiraj-service"

func main() {
	setupSlog()

	if err := startApp(); err != nil {
		slog.Error("service failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func startApp() error {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, relying on environment")
	}

	slog.Info("opening database connection")
	db, err := postgres.OpenDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := postgres.RunMigrations(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	rdb := setupRedis()
	if rdb != nil {
		defer rdb.Close()
	}

	slog.Info("connecting to kafka")
	kafkaConf, err := kafka.NewConf()
	if err != nil {
		return fmt.Errorf("connecting to kafka: %w", err)
	}
	defer kafkaConf.Close()

	keys, err := loadAuthKeys()
	if err != nil {
		return fmt.Errorf("loading auth keys: %w", err)
	}

	gateway, err := phonepe.NewClient(phonepe.Config{
		BaseURL:     os.Getenv("PHONEPE_BASE_URL"),
		MerchantID:  os.Getenv("PHONEPE_MERCHANT_ID"),
		SaltKey:     os.Getenv("PHONEPE_SALT_KEY"),
		SaltIndex:   os.Getenv("PHONEPE_SALT_INDEX"),
		RedirectURL: os.Getenv("PHONEPE_REDIRECT_URL"),
		CallbackURL: os.Getenv("PHONEPE_CALLBACK_URL"),
	})
	if err != nil {
		return fmt.Errorf("building phonepe client: %w", err)
	}

	catalog, err := products.NewConf(db, rdb)
	if err != nil {
		return fmt.Errorf("setting up products: %w", err)
	}
	cartConf, err := cart.NewConf(db, catalog)
	if err != nil {
		return fmt.Errorf("setting up cart: %w", err)
	}
	orderConf, err := orders.NewConf(db)
	if err != nil {
		return fmt.Errorf("setting up orders: %w", err)
	}
	addressConf, err := addresses.NewConf(db)
	if err != nil {
		return fmt.Errorf("setting up addresses: %w", err)
	}

	h := handlers.NewHandler(cartConf, orderConf, catalog, addressConf, gateway, kafkaConf, rdb)
	api := handlers.API(keys, h)

	host := os.Getenv("APP_HOST")
	if host == "" {
		host = "0.0.0.0"
	}
	port, err := strconv.Atoi(os.Getenv("APP_PORT"))
	if err != nil || port == 0 {
		port = 8080
	}

	registerWithConsul(host, port)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      api,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("server listening", slog.String("addr", server.Addr))
		serverErr <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		slog.Info("shutdown initiated", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

func setupSlog() {
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	})
	slog.SetDefault(slog.New(logHandler))
}

// setupRedis is best effort: the trending cache and checkout idempotency
// keys degrade gracefully when redis is absent.
func setupRedis() *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		slog.Warn("REDIS_ADDR not set, running without redis")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unreachable, running without it", slog.String("error", err.Error()))
		return nil
	}
	return rdb
}

func loadAuthKeys() (*auth.Keys, error) {
	path := os.Getenv("AUTH_PUBLIC_KEY_FILE")
	if path == "" {
		path = "pubkey.pem"
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading public key %s: %w", path, err)
	}
	return auth.NewKeys(pem)
}

// registerWithConsul is optional; local development runs without an agent.
func registerWithConsul(host string, port int) {
	if os.Getenv("CONSUL_HTTP_ADDR") == "" {
		return
	}
	client, err := consul.NewClient()
	if err != nil {
		slog.Warn("consul client setup failed", slog.String("error", err.Error()))
		return
	}
	if err := consul.RegisterService(client, serviceName, host, port); err != nil {
		slog.Warn("consul registration failed", slog.String("error", err.Error()))
		return
	}
	slog.Info("registered with consul", slog.String("service", serviceName))
}
