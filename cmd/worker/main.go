package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/GIScience/climatoology-go/internal/broker"
	"github.com/GIScience/climatoology-go/internal/config"
	"github.com/GIScience/climatoology-go/internal/logger"
	"github.com/GIScience/climatoology-go/internal/model"
	"github.com/GIScience/climatoology-go/internal/objectstore"
	"github.com/GIScience/climatoology-go/internal/plugin"
	"github.com/GIScience/climatoology-go/internal/store"
	"github.com/GIScience/climatoology-go/internal/validation"
	"github.com/GIScience/climatoology-go/internal/worker"
)

func main() {
	logger.Initialize(getEnv("LOG_LEVEL", "info"), getEnv("LOG_PRETTY", "false") == "true")
	log := logger.Worker()

	cfg, err := config.LoadWorker()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid worker configuration")
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

	op, err := newEchoOperator()
	if err != nil {
		log.Fatal().Err(err).Msg("build echo operator")
	}
	schema, err := validation.CompileSchema("echo.json", op.RawSchema())
	if err != nil {
		log.Fatal().Err(err).Msg("compile echo operator schema")
	}

	runner := &worker.Runner[echoParams]{
		Operator: op,
		Schema:   schema,
		Store:    db,
		Objects:  objects,
		Log:      *log,
	}

	host := plugin.NewHost(nc, db, db, *log)
	host.AllowDowngrade = cfg.AllowVersionDowngrade

	userInfo := model.PluginInfo{
		Name:           "Echo",
		Version:        semver.MustParse("1.0.0"),
		LibraryVersion: semver.MustParse(getEnv("LIBRARY_VERSION", "1.0.0")),
		Teaser:         "Echoes a message back as a markdown artifact for integration testing.",
		State:          model.PluginStateExperimental,
		Authors:        []model.Author{{Name: "climatoology-go"}},
	}

	handler := broker.Handler(runner.Run)
	if cfg.TaskTimeLimit > 0 {
		handler = func(taskCtx context.Context, taskID uuid.UUID, aoi model.AOIFeature, params json.RawMessage) error {
			taskCtx, cancel := context.WithTimeout(taskCtx, cfg.TaskTimeLimit)
			defer cancel()
			return runner.Run(taskCtx, taskID, aoi, params)
		}
	}

	bound, err := plugin.Start[echoParams](ctx, host, op, userInfo, handler)
	if err != nil {
		log.Fatal().Err(err).Msg("start plugin host")
	}
	defer bound.Binding.Close()

	log.Info().Str("plugin_id", bound.Info.ID).Str("version", bound.Info.Version.String()).Msg("worker ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down worker")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
