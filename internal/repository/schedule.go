package repository

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/classgate/access-server/internal/model"
)

type ScheduleRepository interface {
	List(ctx context.Context) ([]model.ScheduleSlot, error)
	ListByDay(ctx context.Context, day int) ([]model.ScheduleSlot, error)
	Create(ctx context.Context, slot model.ScheduleSlot) error
	Delete(ctx context.Context, day int, start string) (bool, error)
}

type scheduleRepo struct {
	store RecordStore
}

func NewScheduleRepository(store RecordStore) ScheduleRepository {
	return &scheduleRepo{store: store}
}

func (r *scheduleRepo) List(ctx context.Context) ([]model.ScheduleSlot, error) {
	rows, err := r.store.ReadAll(ctx, TableSchedule)
	if err != nil {
		return nil, err
	}
	var slots []model.ScheduleSlot
	for _, row := range rows {
		if slot, ok := decodeSlot(row); ok {
			slots = append(slots, slot)
		}
	}
	return slots, nil
}

func (r *scheduleRepo) ListByDay(ctx context.Context, day int) ([]model.ScheduleSlot, error) {
	slots, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.ScheduleSlot
	for _, slot := range slots {
		if slot.Day == day {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (r *scheduleRepo) Create(ctx context.Context, slot model.ScheduleSlot) error {
	return r.store.Append(ctx, TableSchedule, encodeSlot(slot))
}

func (r *scheduleRepo) Delete(ctx context.Context, day int, start string) (bool, error) {
	rows, err := r.store.ReadAll(ctx, TableSchedule)
	if err != nil {
		return false, err
	}
	start = strings.TrimSpace(start)
	kept := make([]Row, 0, len(rows))
	removed := false
	for _, row := range rows {
		if slot, ok := decodeSlot(row); ok && slot.Day == day && slot.Start == start {
			removed = true
			continue
		}
		kept = append(kept, row)
	}
	if !removed {
		return false, nil
	}
	return true, r.store.Rewrite(ctx, TableSchedule, kept)
}

func encodeSlot(slot model.ScheduleSlot) Row {
	return Row{slot.Owner, formatInt(slot.Day), slot.Start, slot.End}
}

func decodeSlot(row Row) (model.ScheduleSlot, bool) {
	if !checkColumns(TableSchedule, row) {
		return model.ScheduleSlot{}, false
	}
	day, err := strconv.Atoi(strings.TrimSpace(row[1]))
	if err != nil {
		log.Warn().Str("day", row[1]).Msg("skipping schedule row with invalid day")
		return model.ScheduleSlot{}, false
	}
	return model.ScheduleSlot{
		Owner: strings.TrimSpace(row[0]),
		Day:   day,
		Start: strings.TrimSpace(row[2]),
		End:   strings.TrimSpace(row[3]),
	}, true
}
