// Package websocket bridges the Event Subscription of internal/events
// to the gateway's WS /computation connections: one goroutine per
// connection rather than a shared broadcast hub, since each connection
// here owns its own filtered Event Subscription instead of joining a
// fan-out of every other client's traffic.
package websocket

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/GIScience/climatoology-go/internal/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeComputation upgrades the request and streams ComputeCommandResult
// frames for correlationUUID (or every plugin's frames when nil) until
// the client disconnects or the subscription is cancelled.
func ServeComputation(w http.ResponseWriter, r *http.Request, subscriber *events.Subscriber,
	correlationUUID *uuid.UUID, log zerolog.Logger) error {

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub, err := subscriber.Subscribe(correlationUUID)
	if err != nil {
		return err
	}
	defer sub.Cancel()

	done := make(chan struct{})
	go readLoop(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-done:
			return nil
		case frame, ok := <-sub.Frames:
			if !ok {
				return nil
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				log.Warn().Err(err).Msg("write compute command result")
				return err
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

// readLoop drains and discards inbound frames (the client never sends
// anything meaningful), closing done when the client disconnects.
func readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
