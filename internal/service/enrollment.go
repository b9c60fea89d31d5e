package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/classgate/access-server/internal/errors"
	"github.com/classgate/access-server/internal/model"
	"github.com/classgate/access-server/internal/repository"
	"github.com/classgate/access-server/internal/util"
)

type EnrollParams struct {
	Credential model.Credential
	Name       string
	AccountID  string
	Subject    string
	// Mode tags the attendance row written alongside the enrollment.
	Mode model.AttendanceMode
	Kind model.NotificationKind
	At   time.Time
}

type EnrollmentService struct {
	enrollmentRepo   repository.EnrollmentRepository
	courseRepo       repository.CourseRepository
	attendanceRepo   repository.AttendanceRepository
	notificationRepo repository.NotificationRepository
}

func NewEnrollmentService(
	enrollmentRepo repository.EnrollmentRepository,
	courseRepo repository.CourseRepository,
	attendanceRepo repository.AttendanceRepository,
	notificationRepo repository.NotificationRepository,
) *EnrollmentService {
	return &EnrollmentService{
		enrollmentRepo:   enrollmentRepo,
		courseRepo:       courseRepo,
		attendanceRepo:   attendanceRepo,
		notificationRepo: notificationRepo,
	}
}

// Validate checks the request fields without touching the store.
func (s *EnrollmentService) Validate(params EnrollParams) error {
	if params.Credential.IsZero() {
		return apperrors.MissingRequired("credential")
	}
	if !params.Credential.Valid() {
		return apperrors.InvalidInput("credential", "must be uppercase hex")
	}
	if util.IsBlank(params.Name) {
		return apperrors.MissingRequired("name")
	}
	if !util.IsValidAccountID(strings.TrimSpace(params.AccountID)) {
		return apperrors.InvalidInput("accountId", "must be exactly 7 digits")
	}
	if subject := strings.TrimSpace(params.Subject); subject != "" && !util.IsValidSubject(subject) {
		return apperrors.InvalidInput("subject", "must not contain '||'")
	}
	return nil
}

// CheckConflicts rejects duplicate (credential, subject) pairs and account
// ids already bound to another credential.
func (s *EnrollmentService) CheckConflicts(ctx context.Context, params EnrollParams) error {
	subject := strings.TrimSpace(params.Subject)
	accountID := strings.TrimSpace(params.AccountID)

	if subject != "" {
		course, err := s.courseRepo.FindBySubject(ctx, subject)
		if err != nil {
			return apperrors.Storage(err)
		}
		if course == nil {
			return apperrors.NotFound("Course")
		}
	}

	owner, err := s.enrollmentRepo.FindByAccountID(ctx, accountID)
	if err != nil {
		return apperrors.Storage(err)
	}
	if owner != nil && owner.Credential != params.Credential {
		return apperrors.DuplicateAccount(accountID)
	}

	records, err := s.enrollmentRepo.FindAllByCredential(ctx, params.Credential)
	if err != nil {
		return apperrors.Storage(err)
	}
	for _, rec := range records {
		if strings.TrimSpace(rec.Subject) == subject {
			return apperrors.DuplicateEnrollment(subject)
		}
		if rec.AccountID != "" && rec.AccountID != accountID {
			return apperrors.Conflict("Card is enrolled under a different account")
		}
	}
	return nil
}

// Enroll validates, then appends the enrollment, an attendance row and a
// notification. The attendance and notification appends are both attempted
// once the enrollment is stored; their failures come back joined as
// SIDE_EFFECT_FAILED alongside the record.
func (s *EnrollmentService) Enroll(ctx context.Context, params EnrollParams) (*model.EnrollmentRecord, error) {
	if err := s.Validate(params); err != nil {
		return nil, err
	}
	if err := s.CheckConflicts(ctx, params); err != nil {
		return nil, err
	}
	return s.commit(ctx, params)
}

func (s *EnrollmentService) commit(ctx context.Context, params EnrollParams) (*model.EnrollmentRecord, error) {
	if params.Mode == "" {
		params.Mode = model.AttendanceCapture
	}
	if params.Kind == "" {
		params.Kind = model.NotificationEnrollment
	}
	if params.At.IsZero() {
		params.At = time.Now()
	}

	rec, err := s.enrollmentRepo.Create(ctx, model.CreateEnrollmentParams{
		Credential: params.Credential,
		Name:       params.Name,
		AccountID:  params.AccountID,
		Subject:    params.Subject,
		CreatedAt:  params.At,
	})
	if err != nil {
		return nil, apperrors.Storage(err)
	}

	log.Info().
		Str("credential", rec.Credential.String()).
		Str("accountId", rec.AccountID).
		Str("subject", rec.Subject).
		Str("mode", string(params.Mode)).
		Msg("enrollment created")

	var errs []error
	if err := s.attendanceRepo.Create(ctx, model.AttendanceRecord{
		Credential: rec.Credential,
		Name:       rec.Name,
		AccountID:  rec.AccountID,
		Subject:    rec.Subject,
		Mode:       params.Mode,
		At:         params.At,
	}); err != nil {
		log.Error().Err(err).Str("credential", rec.Credential.String()).Msg("failed to append enrollment attendance")
		errs = append(errs, apperrors.SideEffectFailed("attendance", err))
	}

	if _, err := s.notificationRepo.Create(ctx, model.Notification{
		Kind:       params.Kind,
		Message:    fmt.Sprintf("%s (%s) enrolled in %s", rec.Name, rec.AccountID, displaySubject(rec.Subject)),
		Credential: rec.Credential,
		At:         params.At,
	}); err != nil {
		log.Error().Err(err).Str("credential", rec.Credential.String()).Msg("failed to append enrollment notification")
		errs = append(errs, apperrors.SideEffectFailed("notification", err))
	}

	return rec, errors.Join(errs...)
}

func (s *EnrollmentService) IsEnrolled(ctx context.Context, credential model.Credential) (bool, error) {
	rec, err := s.enrollmentRepo.FindByCredential(ctx, credential)
	if err != nil {
		return false, apperrors.Storage(err)
	}
	return rec != nil, nil
}

func (s *EnrollmentService) Lookup(ctx context.Context, credential model.Credential) (*model.EnrollmentRecord, error) {
	rec, err := s.enrollmentRepo.FindByCredential(ctx, credential)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	return rec, nil
}

func (s *EnrollmentService) ListBySubject(ctx context.Context, subject string) ([]model.EnrollmentRecord, error) {
	records, err := s.enrollmentRepo.ListBySubject(ctx, subject)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	if records == nil {
		records = []model.EnrollmentRecord{}
	}
	return records, nil
}

func displaySubject(subject string) string {
	if subject == "" {
		return "(unassigned)"
	}
	return subject
}
