package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GIScience/climatoology-go/internal/broker"
	"github.com/GIScience/climatoology-go/internal/cache"
	"github.com/GIScience/climatoology-go/internal/config"
	climatoologyerrors "github.com/GIScience/climatoology-go/internal/errors"
	"github.com/GIScience/climatoology-go/internal/events"
	"github.com/GIScience/climatoology-go/internal/gateway"
	"github.com/GIScience/climatoology-go/internal/logger"
	"github.com/GIScience/climatoology-go/internal/middleware"
	"github.com/GIScience/climatoology-go/internal/objectstore"
	"github.com/GIScience/climatoology-go/internal/sender"
	"github.com/GIScience/climatoology-go/internal/store"
)

func main() {
	logger.Initialize(getEnv("LOG_LEVEL", "info"), getEnv("LOG_PRETTY", "false") == "true")
	log := logger.Gateway()

	cfg, err := config.LoadGateway()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid gateway configuration")
	}

	ctx := context.Background()

	db, err := store.New(ctx, cfg.Database.ToStoreConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("connect to relational store")
	}
	defer db.Close()

	nc, err := broker.Connect(broker.Config{
		URL: cfg.Broker.URL, User: cfg.Broker.User, Password: cfg.Broker.Password, Name: cfg.Broker.Name,
	}, *log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to broker")
	}
	defer nc.Close()

	objects, err := objectstore.New(ctx, cfg.Objects.ToObjectStoreConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("connect to object store")
	}

	var redisCache *cache.Cache
	if cfg.Redis.Enabled {
		redisCache, err = cache.NewCache(cache.Config{
			Enabled: true, Host: cfg.Redis.Host, Port: cfg.Redis.Port, Password: cfg.Redis.Password,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("connect to redis cache")
		}
		defer redisCache.Close()
	}

	dispatcher := broker.NewDispatcher(nc)
	s := sender.New(db, db, dispatcher, redisCache)
	s.AssertLibraryVersion = cfg.AssertLibraryVersion
	s.LocalLibraryVersion = cfg.LocalLibraryVersion

	subscriber := events.NewSubscriber(nc, *logger.WebSocket())

	handler := gateway.New(s, db, objects, subscriber, *log)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.StructuredLogger(*log),
		climatoologyerrors.Recovery(*log),
		middleware.Timeout(middleware.DefaultTimeoutConfig()),
		middleware.RequestSizeLimiter(middleware.MaxRequestBodySize),
		middleware.SecurityHeaders(),
		middleware.RequireAPIKey(cfg.APIKey),
		climatoologyerrors.ErrorHandler(*log),
	)
	handler.Register(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("gateway server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("gateway did not shut down cleanly")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
