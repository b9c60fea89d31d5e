package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/classgate/access-server/internal/errors"
	"github.com/classgate/access-server/internal/model"
	"github.com/classgate/access-server/internal/repository"
)

type EffectKind string

const (
	EffectAppendAttendance EffectKind = "append_attendance"
	EffectAppendDenial     EffectKind = "append_denial"
	EffectNotify           EffectKind = "notify"
)

// Effect describes one record write requested by a decision. Exactly one of
// the payload fields is set, matching Kind.
type Effect struct {
	Kind         EffectKind
	Attendance   *model.AttendanceRecord
	Denial       *model.DenialRecord
	Notification *model.Notification
}

type Decision struct {
	Credential model.Credential `json:"credential"`
	Granted    bool             `json:"granted"`
	Subject    string           `json:"subject,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Name       string           `json:"name,omitempty"`
	AccountID  string           `json:"accountId,omitempty"`
	// Scheduled is false for grants made while no class is in session.
	Scheduled bool     `json:"scheduled"`
	Effects   []Effect `json:"-"`
}

// Decide grants or denies credential given its enrollment records and the
// owner active at now. It performs no I/O; the writes it wants are returned
// as Effects.
func Decide(credential model.Credential, records []model.EnrollmentRecord, active *model.Owner, now time.Time) Decision {
	if len(records) == 0 {
		return denyUnregistered(credential, now)
	}

	subjects := model.Subjects(records)

	if active != nil && active.Subject != "" {
		if !slices.Contains(subjects, active.Subject) {
			first := records[0]
			return Decision{
				Credential: credential,
				Reason:     model.DenyNotEnrolled,
				Name:       first.Name,
				AccountID:  first.AccountID,
				Effects: []Effect{
					denialEffect(credential, model.DenyNotEnrolled, now),
					notifyEffect(model.NotificationDenial, credential, now,
						fmt.Sprintf("%s (%s) enrolled in [%s] denied during %s",
							credential, first.Name, strings.Join(subjects, ", "), active.Subject)),
				},
			}
		}
		return grant(credential, recordFor(records, active.Subject), active.Subject, true, now)
	}

	// No class in session: any enrolled credential is let in.
	subject := ""
	if len(subjects) > 0 {
		subject = subjects[0]
	}
	d := grant(credential, recordFor(records, subject), subject, false, now)
	d.Effects = append(d.Effects, notifyEffect(model.NotificationOutOfSchedule, credential, now,
		fmt.Sprintf("%s (%s) entered outside scheduled class", credential, d.Name)))
	return d
}

// ResolveQueued settles a credential drained from the capture queue. Queued
// entries are not schedule-gated: known credentials get attendance under
// the active subject when there is one, else their first enrolled subject.
func ResolveQueued(credential model.Credential, records []model.EnrollmentRecord, active *model.Owner, now time.Time) Decision {
	if len(records) == 0 {
		return denyUnregistered(credential, now)
	}
	if active != nil && active.Subject != "" {
		return grant(credential, recordFor(records, active.Subject), active.Subject, true, now)
	}
	subject := ""
	if subjects := model.Subjects(records); len(subjects) > 0 {
		subject = subjects[0]
	}
	return grant(credential, recordFor(records, subject), subject, false, now)
}

func denyUnregistered(credential model.Credential, now time.Time) Decision {
	return Decision{
		Credential: credential,
		Reason:     model.DenyUnregistered,
		Effects: []Effect{
			denialEffect(credential, model.DenyUnregistered, now),
			notifyEffect(model.NotificationUnknownCredential, credential, now,
				fmt.Sprintf("unknown credential %s", credential)),
		},
	}
}

func grant(credential model.Credential, rec model.EnrollmentRecord, subject string, scheduled bool, now time.Time) Decision {
	return Decision{
		Credential: credential,
		Granted:    true,
		Subject:    subject,
		Name:       rec.Name,
		AccountID:  rec.AccountID,
		Scheduled:  scheduled,
		Effects: []Effect{{
			Kind: EffectAppendAttendance,
			Attendance: &model.AttendanceRecord{
				Credential: credential,
				Name:       rec.Name,
				AccountID:  rec.AccountID,
				Subject:    subject,
				Mode:       model.AttendanceEntry,
				At:         now,
			},
		}},
	}
}

func recordFor(records []model.EnrollmentRecord, subject string) model.EnrollmentRecord {
	for _, rec := range records {
		if strings.TrimSpace(rec.Subject) == subject {
			return rec
		}
	}
	return records[0]
}

func denialEffect(credential model.Credential, reason string, now time.Time) Effect {
	return Effect{
		Kind:   EffectAppendDenial,
		Denial: &model.DenialRecord{Credential: credential, Reason: reason, At: now},
	}
}

func notifyEffect(kind model.NotificationKind, credential model.Credential, now time.Time, message string) Effect {
	return Effect{
		Kind: EffectNotify,
		Notification: &model.Notification{
			Kind:       kind,
			Message:    message,
			Credential: credential,
			At:         now,
		},
	}
}

// EffectWriter persists decision effects.
type EffectWriter struct {
	attendanceRepo   repository.AttendanceRepository
	denialRepo       repository.DenialRepository
	notificationRepo repository.NotificationRepository
}

func NewEffectWriter(
	attendanceRepo repository.AttendanceRepository,
	denialRepo repository.DenialRepository,
	notificationRepo repository.NotificationRepository,
) *EffectWriter {
	return &EffectWriter{
		attendanceRepo:   attendanceRepo,
		denialRepo:       denialRepo,
		notificationRepo: notificationRepo,
	}
}

// Apply attempts every effect in order. Earlier writes are kept when a later
// one fails; all failures are returned joined.
func (w *EffectWriter) Apply(ctx context.Context, effects []Effect) error {
	var errs []error
	for _, eff := range effects {
		var err error
		switch eff.Kind {
		case EffectAppendAttendance:
			err = w.attendanceRepo.Create(ctx, *eff.Attendance)
		case EffectAppendDenial:
			err = w.denialRepo.Create(ctx, *eff.Denial)
		case EffectNotify:
			_, err = w.notificationRepo.Create(ctx, *eff.Notification)
		default:
			err = fmt.Errorf("unknown effect kind %q", eff.Kind)
		}
		if err != nil {
			log.Error().Err(err).Str("effect", string(eff.Kind)).Msg("failed to apply effect")
			errs = append(errs, apperrors.SideEffectFailed(string(eff.Kind), err))
		}
	}
	return errors.Join(errs...)
}

type AuthorizationService struct {
	enrollmentRepo repository.EnrollmentRepository
	resolver       OwnerResolver
	writer         *EffectWriter
}

func NewAuthorizationService(
	enrollmentRepo repository.EnrollmentRepository,
	resolver OwnerResolver,
	writer *EffectWriter,
) *AuthorizationService {
	return &AuthorizationService{
		enrollmentRepo: enrollmentRepo,
		resolver:       resolver,
		writer:         writer,
	}
}

// Authorize decides on credential at now and applies the resulting effects.
// The decision is returned even when some effects could not be written.
func (s *AuthorizationService) Authorize(ctx context.Context, credential model.Credential, now time.Time) (Decision, error) {
	records, err := s.enrollmentRepo.FindAllByCredential(ctx, credential)
	if err != nil {
		return Decision{}, apperrors.Storage(err)
	}
	active, err := s.resolver.ResolveActiveOwner(ctx, now)
	if err != nil {
		return Decision{}, err
	}

	d := Decide(credential, records, active, now)

	event := log.Info()
	if !d.Granted {
		event = log.Warn()
	}
	event.
		Str("credential", credential.String()).
		Bool("granted", d.Granted).
		Str("subject", d.Subject).
		Str("reason", d.Reason).
		Msg("authorization decision")

	return d, s.writer.Apply(ctx, d.Effects)
}

// SettleQueue resolves each drained credential independently. A failure on
// one entry does not stop the rest.
func (s *AuthorizationService) SettleQueue(ctx context.Context, credentials []model.Credential, now time.Time) ([]Decision, error) {
	active, err := s.resolver.ResolveActiveOwner(ctx, now)
	if err != nil {
		log.Warn().Err(err).Msg("settling queue without active subject")
		active = nil
	}

	var errs []error
	decisions := make([]Decision, 0, len(credentials))
	for _, credential := range credentials {
		records, err := s.enrollmentRepo.FindAllByCredential(ctx, credential)
		if err != nil {
			errs = append(errs, apperrors.Storage(err))
			continue
		}
		d := ResolveQueued(credential, records, active, now)
		if err := s.writer.Apply(ctx, d.Effects); err != nil {
			errs = append(errs, err)
		}
		decisions = append(decisions, d)
	}
	return decisions, errors.Join(errs...)
}
