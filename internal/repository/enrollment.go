package repository

import (
	"context"
	"strings"

	"github.com/classgate/access-server/internal/model"
)

type EnrollmentRepository interface {
	FindByCredential(ctx context.Context, credential model.Credential) (*model.EnrollmentRecord, error)
	FindAllByCredential(ctx context.Context, credential model.Credential) ([]model.EnrollmentRecord, error)
	FindByAccountID(ctx context.Context, accountID string) (*model.EnrollmentRecord, error)
	ListBySubject(ctx context.Context, subject string) ([]model.EnrollmentRecord, error)
	List(ctx context.Context) ([]model.EnrollmentRecord, error)
	Create(ctx context.Context, params model.CreateEnrollmentParams) (*model.EnrollmentRecord, error)
}

type enrollmentRepo struct {
	store RecordStore
}

func NewEnrollmentRepository(store RecordStore) EnrollmentRepository {
	return &enrollmentRepo{store: store}
}

func (r *enrollmentRepo) FindByCredential(ctx context.Context, credential model.Credential) (*model.EnrollmentRecord, error) {
	records, err := r.FindAllByCredential(ctx, credential)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[0], nil
}

func (r *enrollmentRepo) FindAllByCredential(ctx context.Context, credential model.Credential) ([]model.EnrollmentRecord, error) {
	return r.filter(ctx, func(rec model.EnrollmentRecord) bool {
		return rec.Credential == credential
	})
}

func (r *enrollmentRepo) FindByAccountID(ctx context.Context, accountID string) (*model.EnrollmentRecord, error) {
	accountID = strings.TrimSpace(accountID)
	records, err := r.filter(ctx, func(rec model.EnrollmentRecord) bool {
		return rec.AccountID == accountID
	})
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[0], nil
}

func (r *enrollmentRepo) ListBySubject(ctx context.Context, subject string) ([]model.EnrollmentRecord, error) {
	subject = strings.TrimSpace(subject)
	return r.filter(ctx, func(rec model.EnrollmentRecord) bool {
		return strings.TrimSpace(rec.Subject) == subject
	})
}

func (r *enrollmentRepo) List(ctx context.Context) ([]model.EnrollmentRecord, error) {
	return r.filter(ctx, func(model.EnrollmentRecord) bool { return true })
}

func (r *enrollmentRepo) Create(ctx context.Context, params model.CreateEnrollmentParams) (*model.EnrollmentRecord, error) {
	rec := model.EnrollmentRecord{
		Credential: params.Credential,
		Name:       strings.TrimSpace(params.Name),
		AccountID:  strings.TrimSpace(params.AccountID),
		Subject:    strings.TrimSpace(params.Subject),
		CreatedAt:  nowIfZero(params.CreatedAt),
	}
	row := Row{
		string(rec.Credential),
		rec.Name,
		rec.AccountID,
		rec.Subject,
		formatTime(rec.CreatedAt),
	}
	if err := r.store.Append(ctx, TableEnrollments, row); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *enrollmentRepo) filter(ctx context.Context, keep func(model.EnrollmentRecord) bool) ([]model.EnrollmentRecord, error) {
	rows, err := r.store.ReadAll(ctx, TableEnrollments)
	if err != nil {
		return nil, err
	}
	var out []model.EnrollmentRecord
	for _, row := range rows {
		if !checkColumns(TableEnrollments, row) {
			continue
		}
		rec := model.EnrollmentRecord{
			Credential: model.NormalizeCredential(row[0]),
			Name:       row[1],
			AccountID:  strings.TrimSpace(row[2]),
			Subject:    row[3],
			CreatedAt:  parseTime(row[4]),
		}
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}
