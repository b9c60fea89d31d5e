package display

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/classgate/access-server/internal/model"
	"github.com/classgate/access-server/internal/sse"
)

const (
	EventGranted          = "granted"
	EventDenied           = "denied"
	EventCaptureMode      = "capture_mode"
	EventWaiting          = "waiting"
	EventAwaitingRegister = "awaiting_self_register"
	EventDetected         = "detected"
)

const publishTimeout = 2 * time.Second

type Publisher interface {
	Publish(ctx context.Context, deviceID string, event sse.Event) error
}

// BrokerNotifier turns display calls into SSE events for the door's
// display stream.
type BrokerNotifier struct {
	publisher Publisher
	deviceID  string
}

func NewBrokerNotifier(publisher Publisher, deviceID string) *BrokerNotifier {
	return &BrokerNotifier{publisher: publisher, deviceID: deviceID}
}

func (n *BrokerNotifier) NotifyGranted(name, subject string, credential model.Credential) {
	n.publish(EventGranted, map[string]any{
		"name":       name,
		"subject":    subject,
		"credential": credential,
	})
}

func (n *BrokerNotifier) NotifyDenied(reason string, credential model.Credential) {
	n.publish(EventDenied, map[string]any{
		"reason":     reason,
		"credential": credential,
	})
}

func (n *BrokerNotifier) ShowCaptureMode(batch, paused bool) {
	n.publish(EventCaptureMode, map[string]any{
		"batch":  batch,
		"paused": paused,
	})
}

func (n *BrokerNotifier) ShowWaiting() {
	n.publish(EventWaiting, map[string]any{})
}

func (n *BrokerNotifier) ShowAwaitingSelfRegister(credential model.Credential) {
	n.publish(EventAwaitingRegister, map[string]any{
		"credential": credential,
	})
}

func (n *BrokerNotifier) ShowDetected(credential model.Credential, name string) {
	n.publish(EventDetected, map[string]any{
		"credential": credential,
		"name":       name,
	})
}

func (n *BrokerNotifier) publish(eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("failed to marshal display event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := n.publisher.Publish(ctx, n.deviceID, sse.Event{Type: eventType, Data: data}); err != nil {
		log.Warn().Err(err).
			Str("deviceId", n.deviceID).
			Str("event", eventType).
			Msg("failed to publish display event")
	}
}
