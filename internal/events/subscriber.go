package events

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Subscription is a live Event Subscription: a push
// channel of ComputeCommandResult frames, optionally filtered to one
// correlation id. Cancel releases the underlying NATS subscription.
type Subscription struct {
	Frames <-chan ComputeCommandResult
	sub    *nats.Subscription
	done   chan struct{}
}

// Cancel releases the underlying NATS subscription and stops
// forwarding frames. Safe to call more than once.
func (s *Subscription) Cancel() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
	_ = s.sub.Unsubscribe()
}

// Subscriber wraps a NATS connection for the "notify.>" wildcard
// fan-out.
type Subscriber struct {
	nc  *nats.Conn
	log zerolog.Logger
}

// NewSubscriber wraps an existing NATS connection.
func NewSubscriber(nc *nats.Conn, log zerolog.Logger) *Subscriber {
	return &Subscriber{nc: nc, log: log}
}

// Subscribe opens a new Event Subscription. When filter is non-nil,
// only frames whose CorrelationUUID matches are forwarded; otherwise
// every frame on every plugin's notify subject is forwarded.
//
// The channel is buffered to absorb brief consumer stalls; a consumer
// that falls permanently behind will start missing frames rather than
// block the NATS dispatcher goroutine.
func (s *Subscriber) Subscribe(filter *uuid.UUID) (*Subscription, error) {
	frames := make(chan ComputeCommandResult, 64)
	done := make(chan struct{})

	sub, err := s.nc.Subscribe(WildcardSubject, func(msg *nats.Msg) {
		var result ComputeCommandResult
		if err := json.Unmarshal(msg.Data, &result); err != nil {
			s.log.Warn().Err(err).Str("subject", msg.Subject).Msg("malformed compute command result")
			return
		}
		if filter != nil && result.CorrelationUUID != *filter {
			return
		}
		select {
		case frames <- result:
		case <-done:
		default:
			s.log.Warn().Str("correlation_uuid", result.CorrelationUUID.String()).Msg("event subscriber dropped frame, consumer too slow")
		}
	})
	if err != nil {
		close(done)
		return nil, err
	}

	return &Subscription{Frames: frames, sub: sub, done: done}, nil
}
