// Package logger configures the process-wide zerolog instance and hands
// out component-scoped sub-loggers.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var Log zerolog.Logger

// Initialize sets up the global logger. pretty selects a human-readable
// console writer (development); otherwise structured JSON lines are
// written to stdout (production, container-friendly).
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().
		Str("service", "climatoology").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

func GetLogger() *zerolog.Logger {
	return &Log
}

func component(name string) *zerolog.Logger {
	l := Log.With().Str("component", name).Logger()
	return &l
}

// Store returns a logger scoped to the relational store.
func Store() *zerolog.Logger { return component("store") }

// ObjectStore returns a logger scoped to the object store.
func ObjectStore() *zerolog.Logger { return component("object_store") }

// Broker returns a logger scoped to the broker adapter.
func Broker() *zerolog.Logger { return component("broker") }

// Sender returns a logger scoped to the sender.
func Sender() *zerolog.Logger { return component("sender") }

// Worker returns a logger scoped to the worker task runner.
func Worker() *zerolog.Logger { return component("worker") }

// Gateway returns a logger scoped to the HTTP/WebSocket gateway.
func Gateway() *zerolog.Logger { return component("gateway") }

// WebSocket returns a logger scoped to WebSocket connection handling.
func WebSocket() *zerolog.Logger { return component("websocket") }
