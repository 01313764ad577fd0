package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tillwise/pos/internal/cache"
	"github.com/tillwise/pos/internal/client"
	"github.com/tillwise/pos/internal/events"
	h "github.com/tillwise/pos/internal/http"
	"github.com/tillwise/pos/internal/journal"
	"github.com/tillwise/pos/internal/service"
)

type Config struct {
	HTTPPort        string
	ShopID          string
	BackendBaseURL  string
	BackendTimeout  time.Duration
	RedisAddr       string
	RedisPassword   string
	KafkaBrokers    []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	Journal         journal.Credentials
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ShopID:          getEnv("SHOP_ID", "shop-1"),
		BackendBaseURL:  getEnv("BACKEND_BASE_URL", "http://localhost:9000/api"),
		BackendTimeout:  30 * time.Second,
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:    []string{getEnv("KAFKA_BROKER", "localhost:9092")},
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Journal: journal.Credentials{
			Host:              getEnv("POSTGRES_HOST", "localhost"),
			Port:              getEnvInt("POSTGRES_PORT", 5432),
			User:              getEnv("POSTGRES_USER", "pos"),
			Password:          getEnv("POSTGRES_PASSWORD", "pos"),
			DBName:            getEnv("POSTGRES_DB", "posdb"),
			MigrationsDirPath: getEnv("MIGRATIONS_DIR", "internal/journal/migrations"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return n
}

func main() {
	cfg := loadConfig()

	// Redis for catalog/customer snapshots
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Redis connection failed: %v", err)
	}
	log.Printf("Connected to redis at %s", cfg.RedisAddr)

	// Local receipt journal
	repo, err := journal.NewRepository(&cfg.Journal)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer repo.Close()
	if err := repo.RunMigrations(&cfg.Journal); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Printf("Receipt journal ready at %s:%d", cfg.Journal.Host, cfg.Journal.Port)

	// Sale event stream
	publisher := events.NewPublisher(cfg.KafkaBrokers...)
	defer publisher.Close()

	backend := client.New(cfg.BackendBaseURL, cfg.BackendTimeout)
	snapshots := cache.NewRedisCache(redisClient)
	terminal := service.NewTerminalService(cfg.ShopID, backend, snapshots, repo, publisher)

	terminalHandler := h.NewTerminalHandler(terminal)
	reportHandler := h.NewReportHandler(repo)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.TerminalIDMiddleware)
			terminalHandler.Routes(r)
		})
		r.Get("/reports/today", reportHandler.Today)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(r, "pos-terminal"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("POS terminal for %s listening on :%s", cfg.ShopID, cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("server exited")
}
