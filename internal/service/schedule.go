package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/classgate/access-server/internal/errors"
	"github.com/classgate/access-server/internal/model"
	"github.com/classgate/access-server/internal/repository"
	"github.com/classgate/access-server/internal/util"
)

// OwnerResolver reports which schedule owner, if any, covers an instant.
type OwnerResolver interface {
	ResolveActiveOwner(ctx context.Context, now time.Time) (*model.Owner, error)
}

type AddSlotParams struct {
	Subject    string `json:"subject"`
	Instructor string `json:"instructor,omitempty"`
	Day        int    `json:"day"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

type ScheduleService struct {
	slotRepo   repository.ScheduleRepository
	courseRepo repository.CourseRepository
	loc        *time.Location
}

func NewScheduleService(
	slotRepo repository.ScheduleRepository,
	courseRepo repository.CourseRepository,
	loc *time.Location,
) *ScheduleService {
	if loc == nil {
		loc = time.Local
	}
	return &ScheduleService{
		slotRepo:   slotRepo,
		courseRepo: courseRepo,
		loc:        loc,
	}
}

func (s *ScheduleService) ResolveActiveOwner(ctx context.Context, now time.Time) (*model.Owner, error) {
	slots, err := s.slotRepo.List(ctx)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	return ResolveOwner(slots, now.In(s.loc)), nil
}

// ResolveOwner returns the owner of the first slot whose inclusive
// [start, end] range contains now's minute on now's schedule day.
func ResolveOwner(slots []model.ScheduleSlot, now time.Time) *model.Owner {
	day, ok := model.DayIndex(now)
	if !ok {
		return nil
	}
	minute := model.MinuteOfDay(now)

	for _, slot := range slots {
		if slot.Day != day {
			continue
		}
		start, err := model.ParseClock(slot.Start)
		if err != nil {
			log.Warn().Err(err).Str("owner", slot.Owner).Int("day", slot.Day).Msg("skipping schedule slot with malformed start")
			continue
		}
		end, err := model.ParseClock(slot.End)
		if err != nil {
			log.Warn().Err(err).Str("owner", slot.Owner).Int("day", slot.Day).Msg("skipping schedule slot with malformed end")
			continue
		}
		if minute < start || minute > end {
			continue
		}
		owner := model.ParseOwner(slot.Owner)
		if owner.Subject == "" {
			log.Warn().Int("day", slot.Day).Str("start", slot.Start).Msg("skipping schedule slot without subject")
			continue
		}
		return &owner
	}
	return nil
}

func (s *ScheduleService) ListSlots(ctx context.Context) ([]model.ScheduleSlot, error) {
	slots, err := s.slotRepo.List(ctx)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	if slots == nil {
		slots = []model.ScheduleSlot{}
	}
	return slots, nil
}

// AddSlot validates and stores a slot. A (day, start) pair may only be
// taken once regardless of subject.
func (s *ScheduleService) AddSlot(ctx context.Context, params AddSlotParams) (*model.ScheduleSlot, error) {
	subject := strings.TrimSpace(params.Subject)
	instructor := strings.TrimSpace(params.Instructor)

	if !util.IsValidSubject(subject) {
		return nil, apperrors.InvalidInput("subject", "must be non-empty and must not contain '||'")
	}
	if strings.Contains(instructor, model.OwnerSeparator) {
		return nil, apperrors.InvalidInput("instructor", "must not contain '||'")
	}
	if params.Day < 0 || params.Day >= model.DaysPerWeek {
		return nil, apperrors.InvalidInput("day", fmt.Sprintf("must be between 0 and %d", model.DaysPerWeek-1))
	}
	start, err := model.ParseClock(params.Start)
	if err != nil {
		return nil, apperrors.InvalidInput("start", "must be HH:MM")
	}
	end, err := model.ParseClock(params.End)
	if err != nil {
		return nil, apperrors.InvalidInput("end", "must be HH:MM")
	}
	if start > end {
		return nil, apperrors.InvalidInput("end", "must not be before start")
	}

	course, err := s.courseRepo.FindBySubject(ctx, subject)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	if course == nil {
		return nil, apperrors.NotFound("Course")
	}

	existing, err := s.slotRepo.ListByDay(ctx, params.Day)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	for _, slot := range existing {
		if m, err := model.ParseClock(slot.Start); err == nil && m == start {
			return nil, apperrors.SlotOccupied(params.Day, formatClock(start))
		}
	}

	slot := model.ScheduleSlot{
		Owner: model.Owner{Subject: subject, Instructor: instructor}.String(),
		Day:   params.Day,
		Start: formatClock(start),
		End:   formatClock(end),
	}
	if err := s.slotRepo.Create(ctx, slot); err != nil {
		return nil, apperrors.Storage(err)
	}

	log.Info().
		Str("owner", slot.Owner).
		Str("day", model.DayName(slot.Day)).
		Str("start", slot.Start).
		Str("end", slot.End).
		Msg("schedule slot created")

	return &slot, nil
}

func (s *ScheduleService) RemoveSlot(ctx context.Context, day int, start string) error {
	minute, err := model.ParseClock(start)
	if err != nil {
		return apperrors.InvalidInput("start", "must be HH:MM")
	}
	removed, err := s.slotRepo.Delete(ctx, day, formatClock(minute))
	if err != nil {
		return apperrors.Storage(err)
	}
	if !removed {
		return apperrors.NotFound("Schedule slot")
	}
	log.Info().Int("day", day).Str("start", formatClock(minute)).Msg("schedule slot removed")
	return nil
}

func (s *ScheduleService) ListCourses(ctx context.Context) ([]model.Course, error) {
	courses, err := s.courseRepo.List(ctx)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	if courses == nil {
		courses = []model.Course{}
	}
	return courses, nil
}

func (s *ScheduleService) AddCourse(ctx context.Context, subject, instructor string) (*model.Course, error) {
	subject = strings.TrimSpace(subject)
	instructor = strings.TrimSpace(instructor)
	if !util.IsValidSubject(subject) {
		return nil, apperrors.InvalidInput("subject", "must be non-empty and must not contain '||'")
	}

	existing, err := s.courseRepo.FindBySubject(ctx, subject)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	if existing != nil {
		return nil, apperrors.AlreadyExists("Course")
	}

	course, err := s.courseRepo.Create(ctx, model.Course{Subject: subject, Instructor: instructor})
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	log.Info().Str("subject", subject).Msg("course created")
	return course, nil
}

func formatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
