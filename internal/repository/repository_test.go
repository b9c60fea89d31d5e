package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classgate/access-server/internal/model"
)

func TestEnrollmentRepository(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	repo := NewEnrollmentRepository(store)

	_, err := repo.Create(ctx, model.CreateEnrollmentParams{Credential: "C1", Name: " Ana ", AccountID: "1234567", Subject: "Algebra"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, model.CreateEnrollmentParams{Credential: "C1", Name: "Ana", AccountID: "1234567", Subject: "Physics"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, model.CreateEnrollmentParams{Credential: "C2", Name: "Luis", AccountID: "7654321", Subject: "Algebra"})
	require.NoError(t, err)

	t.Run("FindAllByCredential returns every subject", func(t *testing.T) {
		records, err := repo.FindAllByCredential(ctx, "C1")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "Ana", records[0].Name)
		assert.Equal(t, []string{"Algebra", "Physics"}, model.Subjects(records))
	})

	t.Run("FindByCredential returns first or nil", func(t *testing.T) {
		rec, err := repo.FindByCredential(ctx, "C2")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "7654321", rec.AccountID)

		rec, err = repo.FindByCredential(ctx, "FF")
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("FindByAccountID", func(t *testing.T) {
		rec, err := repo.FindByAccountID(ctx, "7654321")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, model.Credential("C2"), rec.Credential)
	})

	t.Run("ListBySubject", func(t *testing.T) {
		records, err := repo.ListBySubject(ctx, "Algebra")
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("short rows are skipped", func(t *testing.T) {
		require.NoError(t, store.Append(ctx, TableEnrollments, Row{"C9", "broken"}))
		records, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 3)
	})
}

func TestScheduleRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewScheduleRepository(NewMemoryStore())

	require.NoError(t, repo.Create(ctx, model.ScheduleSlot{Owner: "Algebra||Ruiz", Day: 1, Start: "07:00", End: "09:00"}))
	require.NoError(t, repo.Create(ctx, model.ScheduleSlot{Owner: "Physics", Day: 2, Start: "07:00", End: "09:00"}))

	slots, err := repo.ListByDay(ctx, 1)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "Algebra||Ruiz", slots[0].Owner)

	removed, err := repo.Delete(ctx, 1, "07:00")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Delete(ctx, 1, "07:00")
	require.NoError(t, err)
	assert.False(t, removed)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestNotificationRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository(NewMemoryStore())

	for _, msg := range []string{"first", "second", "third"} {
		n, err := repo.Create(ctx, model.Notification{Kind: model.NotificationDenial, Message: msg})
		require.NoError(t, err)
		assert.NotEmpty(t, n.ID)
	}

	recent, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "third", recent[0].Message)
	assert.Equal(t, "second", recent[1].Message)
}

func TestAttendanceRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAttendanceRepository(NewMemoryStore())
	at := time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, model.AttendanceRecord{Credential: "C1", Subject: "Algebra", Mode: model.AttendanceEntry, At: at}))
	require.NoError(t, repo.Create(ctx, model.AttendanceRecord{Credential: "C2", Subject: "Physics", Mode: model.AttendanceEntry, At: at}))

	records, err := repo.ListBySubject(ctx, "Algebra")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.AttendanceEntry, records[0].Mode)
	assert.True(t, at.Equal(records[0].At))
}

func TestCourseRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewCourseRepository(NewMemoryStore())

	_, err := repo.Create(ctx, model.Course{Subject: " Algebra ", Instructor: "Ruiz"})
	require.NoError(t, err)

	c, err := repo.FindBySubject(ctx, "Algebra")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Ruiz", c.Instructor)

	c, err = repo.FindBySubject(ctx, "Physics")
	require.NoError(t, err)
	assert.Nil(t, c)
}
