package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/classgate/access-server/internal/clock"
	"github.com/classgate/access-server/internal/display"
	"github.com/classgate/access-server/internal/engine"
	"github.com/classgate/access-server/internal/metrics"
	"github.com/classgate/access-server/internal/middleware"
	"github.com/classgate/access-server/internal/model"
	"github.com/classgate/access-server/internal/reader"
	"github.com/classgate/access-server/internal/repository"
	"github.com/classgate/access-server/internal/service"
	"github.com/classgate/access-server/internal/sse"
)

const (
	testAdminPassword = "door-admin"
	testDeviceSecret  = "reader-secret"
	testDeviceID      = "room-1"
)

// Tuesday 08:00 UTC.
var testNow = time.Date(2026, time.October, 20, 8, 0, 0, 0, time.UTC)

type testServer struct {
	router http.Handler
	engine *engine.Engine
	broker *sse.Broker
	store  *repository.MemoryStore
	clock  *clock.Mock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	store := repository.NewMemoryStore()
	enrollments := repository.NewEnrollmentRepository(store)
	courses := repository.NewCourseRepository(store)
	slots := repository.NewScheduleRepository(store)
	attendance := repository.NewAttendanceRepository(store)
	denials := repository.NewDenialRepository(store)
	notifications := repository.NewNotificationRepository(store)

	queueStore, err := repository.NewFileQueueStore(filepath.Join(t.TempDir(), "queue.txt"))
	require.NoError(t, err)

	enroller := service.NewEnrollmentService(enrollments, courses, attendance, notifications)
	schedule := service.NewScheduleService(slots, courses, time.UTC)
	auth := service.NewAuthorizationService(enrollments, schedule, service.NewEffectWriter(attendance, denials, notifications))
	queue := service.NewCaptureQueue(queueStore)
	selfReg := service.NewSelfRegisterManager(enroller, 5*time.Minute)
	machine := service.NewCaptureMachine(queue, selfReg, enrollments, 3*time.Second, 2500*time.Millisecond)

	broker := sse.NewBroker(nil)
	t.Cleanup(broker.Close)

	mock := clock.NewMock(testNow)
	eng := engine.New(engine.Deps{
		Clock:    mock,
		Reader:   reader.NewFeed(1),
		Display:  display.Multi(display.NewLogNotifier(zerolog.Nop()), display.NewBrokerNotifier(broker, testDeviceID)),
		Metrics:  metrics.New(prometheus.NewRegistry()),
		Auth:     auth,
		Enroller: enroller,
		Schedule: schedule,
		Machine:  machine,
		Queue:    queue,
		SelfReg:  selfReg,
		LinkFor:  func(token string) string { return "/register/" + token },
	}, engine.Options{PollInterval: time.Hour})
	require.NoError(t, eng.Start(ctx))
	t.Cleanup(eng.Stop)

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	require.NoError(t, err)
	adminAuth := middleware.NewAdminAuthMiddleware(string(hash), nil)

	r := chi.NewRouter()
	r.Mount("/admin", NewAdminHandler(eng, schedule, enroller, notifications, adminAuth.Handler).Routes())
	r.Mount("/register", NewRegisterHandler(eng).Routes())
	r.With(middleware.NewDeviceSignatureMiddleware(testDeviceSecret).Handler).
		Post("/device/scan", NewDeviceHandler(eng).Scan)

	return &testServer{router: r, engine: eng, broker: broker, store: store, clock: mock}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testAdminPassword)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) seedCourse(t *testing.T, subject string) {
	t.Helper()
	_, err := repository.NewCourseRepository(s.store).Create(context.Background(), model.Course{Subject: subject})
	require.NoError(t, err)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
