// Package broker implements the Broker Adapter: a NATS-backed task
// dispatch fabric that routes compute tasks to a plugin-specific
// subject, mirrors task outcomes into the relational store's
// celery_taskmeta-equivalent side table, and publishes lifecycle
// events.
package broker

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Config holds the broker connection parameters.
type Config struct {
	URL      string
	User     string
	Password string
	Name     string
}

// Connect opens a NATS connection with a bounded reconnect policy
// (bounded reconnect attempts, structured logging of connection-state
// transitions) adapted to zerolog.
func Connect(cfg Config, log zerolog.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("broker disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("broker reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("broker error")
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to broker at %s: %w", cfg.URL, err)
	}
	log.Info().Str("url", nc.ConnectedUrl()).Msg("broker connected")
	return nc, nil
}
