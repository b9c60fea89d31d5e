package engine

import (
	"context"
	"time"

	"github.com/classgate/access-server/internal/model"
	"github.com/classgate/access-server/internal/service"
)

// Enroll adds an enrollment on the loop so its conflict checks and append
// cannot interleave with another enrollment or a self-register submit.
func (e *Engine) Enroll(ctx context.Context, params service.EnrollParams) (*model.EnrollmentRecord, error) {
	params.Credential = model.NormalizeCredential(params.Credential.String())
	return do(ctx, e, "enroll", func(ctx context.Context, now time.Time) (*model.EnrollmentRecord, error) {
		if params.At.IsZero() {
			params.At = now
		}
		return e.Enroller.Enroll(ctx, params)
	})
}

func (e *Engine) AddSlot(ctx context.Context, params service.AddSlotParams) (*model.ScheduleSlot, error) {
	return do(ctx, e, "add_slot", func(ctx context.Context, now time.Time) (*model.ScheduleSlot, error) {
		return e.Schedule.AddSlot(ctx, params)
	})
}

func (e *Engine) RemoveSlot(ctx context.Context, day int, start string) error {
	_, err := do(ctx, e, "remove_slot", func(ctx context.Context, now time.Time) (struct{}, error) {
		return struct{}{}, e.Schedule.RemoveSlot(ctx, day, start)
	})
	return err
}

func (e *Engine) AddCourse(ctx context.Context, subject, instructor string) (*model.Course, error) {
	return do(ctx, e, "add_course", func(ctx context.Context, now time.Time) (*model.Course, error) {
		return e.Schedule.AddCourse(ctx, subject, instructor)
	})
}
