package audit

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventCaptureStart       EventType = "capture_start"
	EventCaptureStop        EventType = "capture_stop"
	EventBatchFinish        EventType = "batch_finish"
	EventSelfRegisterCreate EventType = "self_register_create"
	EventSelfRegisterSubmit EventType = "self_register_submit"
	EventSelfRegisterCancel EventType = "self_register_cancel"
	EventCancelAll          EventType = "cancel_all"
	EventSlotCreate         EventType = "schedule_slot_create"
	EventSlotDelete         EventType = "schedule_slot_delete"
	EventCourseCreate       EventType = "course_create"
	EventEnrollmentCreate   EventType = "enrollment_create"
	EventAdminAuthFailure   EventType = "admin_auth_failure"
	EventDeviceSigFailure   EventType = "device_signature_failure"
	EventRateLimitExceed    EventType = "rate_limit_exceeded"
)

type Event struct {
	Type       EventType
	Credential string
	Token      string
	IP         string
	UserAgent  string
	Details    map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "access").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.Credential != "" {
		logger = logger.With().Str("credential", event.Credential).Logger()
	}
	if event.Token != "" {
		logger = logger.With().Str("token", event.Token).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}
	if event.UserAgent != "" {
		logger = logger.With().Str("user_agent", event.UserAgent).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = ClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

// ClientIP returns the request's remote host without the port. Proxy
// headers are resolved earlier by chi's RealIP middleware.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
