package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/classgate/access-server/internal/errors"
	"github.com/classgate/access-server/internal/model"
)

func TestResolveOwner(t *testing.T) {
	slots := []model.ScheduleSlot{
		{Owner: "Algebra||Dr. Ruiz", Day: 1, Start: "07:00", End: "09:00"},
		{Owner: "Broken", Day: 1, Start: "25:00", End: "26:00"},
		{Owner: "NoColon", Day: 1, Start: "0900", End: "10:00"},
		{Owner: "Physics", Day: 1, Start: "09:00", End: "11:00"},
		{Owner: "Chemistry", Day: 5, Start: "08:00", End: "12:00"},
	}

	tests := []struct {
		name string
		at   [3]int
		want string
	}{
		{name: "inside slot", at: [3]int{1, 8, 0}, want: "Algebra"},
		{name: "inclusive start", at: [3]int{1, 7, 0}, want: "Algebra"},
		{name: "inclusive end, first match wins", at: [3]int{1, 9, 0}, want: "Algebra"},
		{name: "later slot", at: [3]int{1, 10, 30}, want: "Physics"},
		{name: "after all slots", at: [3]int{1, 11, 1}, want: ""},
		{name: "saturday", at: [3]int{5, 9, 0}, want: "Chemistry"},
		{name: "other day", at: [3]int{2, 8, 0}, want: ""},
		{name: "sunday is unmapped", at: [3]int{6, 9, 0}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner := ResolveOwner(slots, at(tt.at[0], tt.at[1], tt.at[2]))
			if tt.want == "" {
				assert.Nil(t, owner)
				return
			}
			require.NotNil(t, owner)
			assert.Equal(t, tt.want, owner.Subject)
		})
	}

	t.Run("instructor is split off", func(t *testing.T) {
		owner := ResolveOwner(slots, at(1, 8, 0))
		require.NotNil(t, owner)
		assert.Equal(t, "Dr. Ruiz", owner.Instructor)
	})

	t.Run("malformed slots do not hide valid ones", func(t *testing.T) {
		owner := ResolveOwner([]model.ScheduleSlot{
			{Owner: "Bad", Day: 0, Start: "7:75", End: "09:00"},
			{Owner: "Good", Day: 0, Start: "07:00", End: "09:00"},
		}, at(0, 8, 0))
		require.NotNil(t, owner)
		assert.Equal(t, "Good", owner.Subject)
	})
}

func TestScheduleService_ResolveActiveOwner(t *testing.T) {
	env := newTestEnv(t)
	env.slot(t, "Algebra", 1, "07:00", "09:00")

	owner, err := env.schedule.ResolveActiveOwner(context.Background(), at(1, 8, 0))
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, "Algebra", owner.Subject)

	owner, err = env.schedule.ResolveActiveOwner(context.Background(), at(1, 10, 0))
	require.NoError(t, err)
	assert.Nil(t, owner)
}

func TestScheduleService_AddSlot(t *testing.T) {
	ctx := context.Background()

	t.Run("creates normalized slot", func(t *testing.T) {
		env := newTestEnv(t)
		env.course(t, "Algebra")

		slot, err := env.schedule.AddSlot(ctx, AddSlotParams{
			Subject: " Algebra ", Instructor: "Dr. Ruiz", Day: 1, Start: "7:00", End: "9:00",
		})
		require.NoError(t, err)
		assert.Equal(t, "Algebra||Dr. Ruiz", slot.Owner)
		assert.Equal(t, "07:00", slot.Start)
		assert.Equal(t, "09:00", slot.End)

		slots, err := env.schedule.ListSlots(ctx)
		require.NoError(t, err)
		assert.Len(t, slots, 1)
	})

	t.Run("rejects occupied day and start for any subject", func(t *testing.T) {
		env := newTestEnv(t)
		env.course(t, "Algebra")
		env.course(t, "Physics")

		_, err := env.schedule.AddSlot(ctx, AddSlotParams{Subject: "Algebra", Day: 1, Start: "07:00", End: "09:00"})
		require.NoError(t, err)

		_, err = env.schedule.AddSlot(ctx, AddSlotParams{Subject: "Physics", Day: 1, Start: "07:00", End: "08:00"})
		assert.Equal(t, apperrors.ErrCodeSlotOccupied, apperrors.GetCode(err))
		assert.Len(t, env.rows(t, "schedule"), 1)
	})

	t.Run("validation happens before any write", func(t *testing.T) {
		env := newTestEnv(t)
		env.course(t, "Algebra")

		cases := []AddSlotParams{
			{Subject: "", Day: 1, Start: "07:00", End: "09:00"},
			{Subject: "Algebra||x", Day: 1, Start: "07:00", End: "09:00"},
			{Subject: "Algebra", Day: 6, Start: "07:00", End: "09:00"},
			{Subject: "Algebra", Day: 1, Start: "24:00", End: "09:00"},
			{Subject: "Algebra", Day: 1, Start: "07:00", End: "0900"},
			{Subject: "Algebra", Day: 1, Start: "10:00", End: "09:00"},
		}
		for _, p := range cases {
			_, err := env.schedule.AddSlot(ctx, p)
			assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err), "%+v", p)
		}
		assert.Empty(t, env.rows(t, "schedule"))
	})

	t.Run("unknown course", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.schedule.AddSlot(ctx, AddSlotParams{Subject: "Latin", Day: 0, Start: "07:00", End: "08:00"})
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})
}

func TestScheduleService_RemoveSlot(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.slot(t, "Algebra", 1, "07:00", "09:00")
	env.slot(t, "Physics", 1, "10:00", "11:00")

	require.NoError(t, env.schedule.RemoveSlot(ctx, 1, "7:00"))
	slots, err := env.schedule.ListSlots(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "Physics", slots[0].Owner)

	err = env.schedule.RemoveSlot(ctx, 1, "07:00")
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
}

func TestScheduleService_AddCourse(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	course, err := env.schedule.AddCourse(ctx, "Algebra", "Dr. Ruiz")
	require.NoError(t, err)
	assert.Equal(t, "Algebra", course.Subject)

	_, err = env.schedule.AddCourse(ctx, "Algebra", "")
	assert.Equal(t, apperrors.ErrCodeAlreadyExists, apperrors.GetCode(err))

	courses, err := env.schedule.ListCourses(ctx)
	require.NoError(t, err)
	assert.Len(t, courses, 1)
}
