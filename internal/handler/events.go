package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/classgate/access-server/internal/model"
	"github.com/classgate/access-server/internal/sse"
)

// StatusFunc reports the current capture state for newly connected displays.
type StatusFunc func(ctx context.Context) (model.CaptureSnapshot, error)

// DisplayEventsHandler streams display events of one door to browsers.
type DisplayEventsHandler struct {
	broker   *sse.Broker
	deviceID string
	status   StatusFunc
}

func NewDisplayEventsHandler(broker *sse.Broker, deviceID string, status StatusFunc) *DisplayEventsHandler {
	return &DisplayEventsHandler{
		broker:   broker,
		deviceID: deviceID,
		status:   status,
	}
}

func (h *DisplayEventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(h.deviceID)
	defer h.broker.Unsubscribe(client)

	log.Info().Str("deviceId", h.deviceID).Msg("display connected")

	ctx := r.Context()

	connected := map[string]any{"deviceId": h.deviceID}
	if h.status != nil {
		if snap, err := h.status(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to read capture status for display")
		} else {
			connected["status"] = snap
		}
	}
	if err := h.sendEvent(w, flusher, "connected", connected); err != nil {
		return
	}

	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("deviceId", h.deviceID).Msg("display disconnected")
			return

		case <-client.Done:
			log.Info().Str("deviceId", h.deviceID).Msg("display stream closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send display event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Str("deviceId", h.deviceID).Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *DisplayEventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *DisplayEventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
