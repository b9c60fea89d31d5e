package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/classgate/access-server/internal/model"
)

type AttendanceRepository interface {
	Create(ctx context.Context, rec model.AttendanceRecord) error
	ListBySubject(ctx context.Context, subject string) ([]model.AttendanceRecord, error)
}

type DenialRepository interface {
	Create(ctx context.Context, rec model.DenialRecord) error
	List(ctx context.Context) ([]model.DenialRecord, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n model.Notification) (*model.Notification, error)
	ListRecent(ctx context.Context, limit int) ([]model.Notification, error)
}

type attendanceRepo struct {
	store RecordStore
}

func NewAttendanceRepository(store RecordStore) AttendanceRepository {
	return &attendanceRepo{store: store}
}

func (r *attendanceRepo) Create(ctx context.Context, rec model.AttendanceRecord) error {
	return r.store.Append(ctx, TableAttendance, Row{
		string(rec.Credential),
		rec.Name,
		rec.AccountID,
		rec.Subject,
		string(rec.Mode),
		formatTime(nowIfZero(rec.At)),
	})
}

func (r *attendanceRepo) ListBySubject(ctx context.Context, subject string) ([]model.AttendanceRecord, error) {
	subject = strings.TrimSpace(subject)
	rows, err := FindAll(ctx, r.store, TableAttendance, func(row Row) bool {
		return checkColumns(TableAttendance, row) && strings.TrimSpace(row[3]) == subject
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.AttendanceRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.AttendanceRecord{
			Credential: model.NormalizeCredential(row[0]),
			Name:       row[1],
			AccountID:  row[2],
			Subject:    row[3],
			Mode:       model.AttendanceMode(row[4]),
			At:         parseTime(row[5]),
		})
	}
	return out, nil
}

type denialRepo struct {
	store RecordStore
}

func NewDenialRepository(store RecordStore) DenialRepository {
	return &denialRepo{store: store}
}

func (r *denialRepo) Create(ctx context.Context, rec model.DenialRecord) error {
	return r.store.Append(ctx, TableDenials, Row{
		string(rec.Credential),
		rec.Reason,
		formatTime(nowIfZero(rec.At)),
	})
}

func (r *denialRepo) List(ctx context.Context) ([]model.DenialRecord, error) {
	rows, err := r.store.ReadAll(ctx, TableDenials)
	if err != nil {
		return nil, err
	}
	var out []model.DenialRecord
	for _, row := range rows {
		if !checkColumns(TableDenials, row) {
			continue
		}
		out = append(out, model.DenialRecord{
			Credential: model.NormalizeCredential(row[0]),
			Reason:     row[1],
			At:         parseTime(row[2]),
		})
	}
	return out, nil
}

type notificationRepo struct {
	store RecordStore
}

func NewNotificationRepository(store RecordStore) NotificationRepository {
	return &notificationRepo{store: store}
}

func (r *notificationRepo) Create(ctx context.Context, n model.Notification) (*model.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.At = nowIfZero(n.At)
	err := r.store.Append(ctx, TableNotifications, Row{
		n.ID,
		string(n.Kind),
		n.Message,
		string(n.Credential),
		formatTime(n.At),
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ListRecent returns up to limit notifications, newest first.
func (r *notificationRepo) ListRecent(ctx context.Context, limit int) ([]model.Notification, error) {
	rows, err := r.store.ReadAll(ctx, TableNotifications)
	if err != nil {
		return nil, err
	}
	var out []model.Notification
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if !checkColumns(TableNotifications, row) {
			continue
		}
		out = append(out, model.Notification{
			ID:         row[0],
			Kind:       model.NotificationKind(row[1]),
			Message:    row[2],
			Credential: model.NormalizeCredential(row[3]),
			At:         parseTime(row[4]),
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
