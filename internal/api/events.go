/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/athleon_scheduler/internal/events"
	"github.com/friendsincode/athleon_scheduler/internal/telemetry"
)

const eventsPingInterval = 15 * time.Second

type eventMessage struct {
	Type    events.EventType `json:"type"`
	Payload events.Payload   `json:"payload"`
}

// handleEvents streams schedule change notifications. eventId narrows the
// stream to one competition event.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("eventId")

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	merged := make(chan eventMessage, 16)
	subscribers := make([]events.Subscriber, len(events.ScheduleEventTypes))
	for i, eventType := range events.ScheduleEventTypes {
		sub := a.bus.Subscribe(eventType)
		subscribers[i] = sub
		go forward(ctx, eventType, sub, merged)
	}
	defer func() {
		for i, eventType := range events.ScheduleEventTypes {
			a.bus.Unsubscribe(eventType, subscribers[i])
		}
	}()

	ticker := time.NewTicker(eventsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case msg := <-merged:
			if eventID != "" && msg.Payload["event_id"] != eventID {
				continue
			}
			if err := writeEvent(ctx, conn, msg); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

func forward(ctx context.Context, eventType events.EventType, sub events.Subscriber, out chan<- eventMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			select {
			case out <- eventMessage{Type: eventType, Payload: payload}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *ws.Conn, msg eventMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, ws.MessageText, data)
}
