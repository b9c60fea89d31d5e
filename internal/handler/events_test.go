package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classgate/access-server/internal/model"
	"github.com/classgate/access-server/internal/sse"
)

func TestDisplayEventsHandler_Stream(t *testing.T) {
	broker := sse.NewBroker(nil)
	t.Cleanup(broker.Close)

	status := func(ctx context.Context) (model.CaptureSnapshot, error) {
		return model.CaptureSnapshot{Mode: model.CaptureModeBatch, Queue: []model.Credential{}}, nil
	}
	srv := httptest.NewServer(NewDisplayEventsHandler(broker, testDeviceID, status))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		require.True(t, lines.Scan())
		return lines.Text()
	}

	assert.Equal(t, "event: connected", next())
	assert.Contains(t, next(), `"mode":"batch"`)
	assert.Equal(t, "", next())

	require.Equal(t, 1, broker.ClientCount(testDeviceID))
	require.NoError(t, broker.Publish(ctx, "room-2", sse.Event{Type: "granted", Data: json.RawMessage(`{"credential":"X9"}`)}))
	require.NoError(t, broker.Publish(ctx, testDeviceID, sse.Event{Type: "granted", Data: json.RawMessage(`{"credential":"C1"}`)}))

	assert.Equal(t, "event: granted", next())
	assert.Equal(t, `data: {"credential":"C1"}`, next())

	cancel()
	resp.Body.Close()
	require.Eventually(t, func() bool { return broker.ClientCount(testDeviceID) == 0 }, time.Second, 5*time.Millisecond)
}

func TestDisplayEventsHandler_sendRawEvent(t *testing.T) {
	handler := &DisplayEventsHandler{}
	rec := httptest.NewRecorder()

	err := handler.sendRawEvent(rec, rec, sse.Event{
		Type: "waiting",
		Data: json.RawMessage(`{}`),
	})

	assert.NoError(t, err)
	assert.Equal(t, "event: waiting\ndata: {}\n\n", rec.Body.String())
}

func TestSSEEventFormat(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		data      map[string]any
		wantEvent string
	}{
		{"connected event", "connected", map[string]any{"deviceId": "room-1"}, "event: connected\n"},
		{"denied event", "denied", map[string]any{"reason": "unregistered"}, "event: denied\n"},
		{"capture mode event", "capture_mode", map[string]any{"batch": true, "paused": false}, "event: capture_mode\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := &DisplayEventsHandler{}
			rec := httptest.NewRecorder()

			err := handler.sendEvent(rec, rec, tc.eventType, tc.data)

			assert.NoError(t, err)
			body := rec.Body.String()
			assert.Contains(t, body, tc.wantEvent)
			assert.Contains(t, body, "data: {")
		})
	}
}
