package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/classgate/access-server/internal/model"
	"github.com/classgate/access-server/internal/repository"
)

// monday is the first schedule day used across the service tests.
var monday = time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC)

func at(day, hour, minute int) time.Time {
	return monday.AddDate(0, 0, day).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

type testEnv struct {
	store         *repository.MemoryStore
	enrollments   repository.EnrollmentRepository
	courses       repository.CourseRepository
	slots         repository.ScheduleRepository
	attendance    repository.AttendanceRepository
	denials       repository.DenialRepository
	notifications repository.NotificationRepository

	enroller *EnrollmentService
	schedule *ScheduleService
	writer   *EffectWriter
	auth     *AuthorizationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repository.NewMemoryStore()
	env := &testEnv{
		store:         store,
		enrollments:   repository.NewEnrollmentRepository(store),
		courses:       repository.NewCourseRepository(store),
		slots:         repository.NewScheduleRepository(store),
		attendance:    repository.NewAttendanceRepository(store),
		denials:       repository.NewDenialRepository(store),
		notifications: repository.NewNotificationRepository(store),
	}
	env.enroller = NewEnrollmentService(env.enrollments, env.courses, env.attendance, env.notifications)
	env.schedule = NewScheduleService(env.slots, env.courses, time.UTC)
	env.writer = NewEffectWriter(env.attendance, env.denials, env.notifications)
	env.auth = NewAuthorizationService(env.enrollments, env.schedule, env.writer)
	return env
}

func (e *testEnv) course(t *testing.T, subject string) {
	t.Helper()
	_, err := e.courses.Create(context.Background(), model.Course{Subject: subject})
	require.NoError(t, err)
}

func (e *testEnv) slot(t *testing.T, owner string, day int, start, end string) {
	t.Helper()
	require.NoError(t, e.slots.Create(context.Background(), model.ScheduleSlot{
		Owner: owner, Day: day, Start: start, End: end,
	}))
}

func (e *testEnv) enroll(t *testing.T, credential model.Credential, name, accountID, subject string) {
	t.Helper()
	_, err := e.enrollments.Create(context.Background(), model.CreateEnrollmentParams{
		Credential: credential,
		Name:       name,
		AccountID:  accountID,
		Subject:    subject,
	})
	require.NoError(t, err)
}

func (e *testEnv) rows(t *testing.T, table repository.Table) []repository.Row {
	t.Helper()
	rows, err := e.store.ReadAll(context.Background(), table)
	require.NoError(t, err)
	return rows
}
