package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/classgate/access-server/internal/errors"
	"github.com/classgate/access-server/internal/model"
	"github.com/classgate/access-server/internal/service"
	"github.com/classgate/access-server/internal/util"
)

const (
	RouteAuthorization = "authorization"
	RouteCapture       = "capture"
	RouteAwaiting      = "awaiting_self_register"
)

type ScanResult struct {
	Credential model.Credential       `json:"credential"`
	Route      string                 `json:"route"`
	Decision   *service.Decision      `json:"decision,omitempty"`
	Capture    *service.DetectOutcome `json:"capture,omitempty"`
}

type FinishResult struct {
	Decisions []service.Decision `json:"decisions"`
	Granted   int                `json:"granted"`
	Denied    int                `json:"denied"`
}

type SelfRegisterLink struct {
	Token      string           `json:"token"`
	Credential model.Credential `json:"credential"`
	Subject    string           `json:"subject,omitempty"`
	URL        string           `json:"url"`
	ExpiresAt  time.Time        `json:"expiresAt"`
}

type ConfirmParams struct {
	Name      string `json:"name"`
	AccountID string `json:"accountId"`
	Subject   string `json:"subject"`
}

// detect routes a detection: to the capture machine while a capture is
// accepting cards, otherwise to authorization. The awaited self-register
// card is held back from authorization while the door waits for it.
func (e *Engine) detect(ctx context.Context, credential model.Credential, now time.Time) (ScanResult, error) {
	res := ScanResult{Credential: credential}

	if e.Machine.Active() {
		res.Route = RouteCapture
		mode := string(e.Machine.Mode())
		out, err := e.Machine.OnDetect(ctx, credential, now)
		res.Capture = &out

		switch {
		case apperrors.IsTransient(err):
			e.wrongCardShown = true
			e.Display.NotifyDenied(model.DenyWrongCard, credential)
			e.observeDetection(mode, "wrong_card")
		case err != nil:
			e.observeDetection(mode, "error")
		case out.Bound:
			e.Display.ShowDetected(credential, out.Pending.Name)
			e.observeDetection(mode, "bound")
		case out.Admitted:
			e.Display.ShowDetected(credential, "")
			e.observeDetection(mode, "admitted")
		default:
			e.observeDetection(mode, "ignored")
		}
		return res, err
	}

	if _, awaited, ok := e.SelfReg.Awaiting(now); ok && awaited == credential {
		res.Route = RouteAwaiting
		e.Display.ShowAwaitingSelfRegister(credential)
		return res, nil
	}

	res.Route = RouteAuthorization
	d, err := e.Auth.Authorize(ctx, credential, now)
	if d.Credential.IsZero() {
		return res, err
	}
	res.Decision = &d
	if e.Metrics != nil {
		e.Metrics.ObserveDecision(d.Granted, d.Reason)
	}
	if d.Granted {
		e.Display.NotifyGranted(d.Name, d.Subject, credential)
	} else {
		e.Display.NotifyDenied(d.Reason, credential)
	}
	return res, err
}

func (e *Engine) observeDetection(mode, outcome string) {
	if e.Metrics != nil {
		e.Metrics.ObserveDetection(mode, outcome)
	}
}

func (e *Engine) snapshot(now time.Time) model.CaptureSnapshot {
	s := model.CaptureSnapshot{
		Mode:              e.Machine.Mode(),
		Paused:            e.Machine.Paused(),
		WrongCard:         e.Machine.WrongCard(now),
		Queue:             e.Queue.Items(),
		SelfRegisterCount: e.SelfReg.Count(now),
	}
	if s.Queue == nil {
		s.Queue = []model.Credential{}
	}
	if p := e.Machine.Pending(); p != nil {
		detectedAt := p.DetectedAt
		s.PendingCredential = p.Credential
		s.PendingName = p.Name
		s.PendingAccount = p.AccountID
		s.DetectedAt = &detectedAt
	}
	if token, credential, ok := e.SelfReg.Awaiting(now); ok {
		s.AwaitingToken = token
		s.AwaitingCredential = credential
	}
	return s
}

func (e *Engine) link(sess model.SelfRegisterSession) SelfRegisterLink {
	return SelfRegisterLink{
		Token:      sess.Token,
		Credential: sess.Credential,
		Subject:    sess.Subject,
		URL:        e.LinkFor(sess.Token),
		ExpiresAt:  sess.ExpiresAt(),
	}
}

// Scan injects a detection as if the reader had produced it.
func (e *Engine) Scan(ctx context.Context, credential model.Credential) (ScanResult, error) {
	credential = model.NormalizeCredential(credential.String())
	if !credential.Valid() {
		return ScanResult{}, apperrors.InvalidInput("credential", "must be hex")
	}
	return do(ctx, e, "scan", func(ctx context.Context, now time.Time) (ScanResult, error) {
		res, err := e.detect(ctx, credential, now)
		e.refreshWrongCard(now)
		return res, err
	})
}

func (e *Engine) Status(ctx context.Context) (model.CaptureSnapshot, error) {
	return do(ctx, e, "status", func(ctx context.Context, now time.Time) (model.CaptureSnapshot, error) {
		return e.snapshot(now), nil
	})
}

func (e *Engine) StartIndividual(ctx context.Context) (model.CaptureSnapshot, error) {
	return do(ctx, e, "start_individual", func(ctx context.Context, now time.Time) (model.CaptureSnapshot, error) {
		e.Machine.StartIndividual()
		e.showMode(now)
		return e.snapshot(now), nil
	})
}

func (e *Engine) StartBatch(ctx context.Context) (model.CaptureSnapshot, error) {
	return do(ctx, e, "start_batch", func(ctx context.Context, now time.Time) (model.CaptureSnapshot, error) {
		e.Machine.StartBatch()
		e.showMode(now)
		return e.snapshot(now), nil
	})
}

// StopCapture returns to idle. A pending detection that was never confirmed
// is returned so the caller can report it.
func (e *Engine) StopCapture(ctx context.Context) (*service.PendingCapture, error) {
	return do(ctx, e, "stop", func(ctx context.Context, now time.Time) (*service.PendingCapture, error) {
		discarded := e.Machine.Stop()
		if discarded != nil {
			log.Warn().
				Str("credential", discarded.Credential.String()).
				Msg("capture stopped with unconfirmed detection")
		}
		e.showMode(now)
		return discarded, nil
	})
}

func (e *Engine) TogglePause(ctx context.Context) (bool, error) {
	return do(ctx, e, "toggle_pause", func(ctx context.Context, now time.Time) (bool, error) {
		paused, err := e.Machine.TogglePause()
		if err != nil {
			return false, err
		}
		e.showMode(now)
		return paused, nil
	})
}

func (e *Engine) RemoveLastQueued(ctx context.Context) (model.Credential, error) {
	return do(ctx, e, "remove_last_queued", func(ctx context.Context, now time.Time) (model.Credential, error) {
		credential, removed, err := e.Queue.RemoveLast(ctx)
		if err != nil {
			return "", err
		}
		if !removed {
			return "", apperrors.NotFound("Queued credential")
		}
		log.Info().Str("credential", credential.String()).Msg("removed last queued credential")
		return credential, nil
	})
}

// FinishBatch drains the queue, records each entry and returns to idle.
// The queue is emptied even when some entries fail to record.
func (e *Engine) FinishBatch(ctx context.Context) (FinishResult, error) {
	return do(ctx, e, "finish_batch", func(ctx context.Context, now time.Time) (FinishResult, error) {
		if e.Machine.Mode() != model.CaptureModeBatch {
			return FinishResult{}, apperrors.InvalidState("No batch capture is running")
		}

		drained, drainErr := e.Queue.Drain(ctx)
		decisions, settleErr := e.Auth.SettleQueue(ctx, drained, now)

		res := FinishResult{Decisions: decisions}
		for _, d := range decisions {
			if d.Granted {
				res.Granted++
			} else {
				res.Denied++
			}
		}

		e.Machine.Stop()
		e.showMode(now)

		log.Info().
			Int("granted", res.Granted).
			Int("denied", res.Denied).
			Msg("batch capture finished")

		return res, errors.Join(drainErr, settleErr)
	})
}

// GenerateSelfRegisterLinks drains the queue into self-register sessions.
// Enrolled credentials are skipped. Credentials that could not get a session
// are put back in the queue.
func (e *Engine) GenerateSelfRegisterLinks(ctx context.Context, subject string) ([]SelfRegisterLink, error) {
	return do(ctx, e, "generate_self_register_links", func(ctx context.Context, now time.Time) ([]SelfRegisterLink, error) {
		if subject = strings.TrimSpace(subject); subject != "" && !util.IsValidSubject(subject) {
			return nil, apperrors.InvalidInput("subject", "must not contain '||'")
		}

		drained, drainErr := e.Queue.Drain(ctx)
		sessions, failed, err := e.SelfReg.GenerateLinks(ctx, drained, subject, now)

		errs := []error{drainErr, err}
		for _, credential := range failed {
			if _, admitErr := e.Queue.Admit(ctx, credential); admitErr != nil {
				log.Error().Err(admitErr).Str("credential", credential.String()).Msg("failed to requeue credential")
				errs = append(errs, admitErr)
			}
		}

		links := make([]SelfRegisterLink, 0, len(sessions))
		for _, sess := range sessions {
			links = append(links, e.link(sess))
		}
		log.Info().
			Int("queued", len(drained)).
			Int("links", len(links)).
			Int("requeued", len(failed)).
			Msg("self-register links generated")

		return links, errors.Join(errs...)
	})
}

func (e *Engine) SelfRegisterSubmit(ctx context.Context, token string, sub model.SelfRegisterSubmission) (*model.EnrollmentRecord, error) {
	return do(ctx, e, "self_register_submit", func(ctx context.Context, now time.Time) (*model.EnrollmentRecord, error) {
		rec, err := e.SelfReg.Submit(ctx, token, sub, now)
		if rec != nil {
			e.Display.NotifyGranted(rec.Name, rec.Subject, rec.Credential)
			e.showMode(now)
		}
		return rec, err
	})
}

// CancelAll returns every owned collection to its boot state in one step.
func (e *Engine) CancelAll(ctx context.Context) error {
	_, err := do(ctx, e, "cancel_all", func(ctx context.Context, now time.Time) (struct{}, error) {
		e.Machine.Reset()
		e.SelfReg.Reset()
		err := e.Queue.Clear(ctx)
		e.wrongCardShown = false
		e.Display.ShowWaiting()
		log.Info().Msg("all capture and self-register state cancelled")
		return struct{}{}, err
	})
	return err
}

// ConfirmIndividual enrolls the pending credential of an individual capture.
// Blank name and account fall back to the prefilled values.
func (e *Engine) ConfirmIndividual(ctx context.Context, params ConfirmParams) (*model.EnrollmentRecord, error) {
	return do(ctx, e, "confirm_individual", func(ctx context.Context, now time.Time) (*model.EnrollmentRecord, error) {
		if e.Machine.Mode() != model.CaptureModeIndividual {
			return nil, apperrors.InvalidState("No individual capture is running")
		}
		pending := e.Machine.Pending()
		if pending == nil {
			return nil, apperrors.InvalidState("No card has been detected")
		}

		name := strings.TrimSpace(params.Name)
		if name == "" {
			name = pending.Name
		}
		accountID := strings.TrimSpace(params.AccountID)
		if accountID == "" {
			accountID = pending.AccountID
		}

		rec, err := e.Enroller.Enroll(ctx, service.EnrollParams{
			Credential: pending.Credential,
			Name:       name,
			AccountID:  accountID,
			Subject:    params.Subject,
			Mode:       model.AttendanceCapture,
			Kind:       model.NotificationEnrollment,
			At:         now,
		})
		if rec != nil {
			e.Machine.ClearPending()
			e.Display.NotifyGranted(rec.Name, rec.Subject, rec.Credential)
			e.showMode(now)
		}
		return rec, err
	})
}

// SelfRegisterFromPending issues a token for the pending individual capture
// and makes the door wait for that card.
func (e *Engine) SelfRegisterFromPending(ctx context.Context, subject string) (SelfRegisterLink, error) {
	return do(ctx, e, "self_register_from_pending", func(ctx context.Context, now time.Time) (SelfRegisterLink, error) {
		pending := e.Machine.Pending()
		if pending == nil {
			return SelfRegisterLink{}, apperrors.InvalidState("No card has been detected")
		}
		sess, err := e.SelfReg.Create(ctx, pending.Credential, subject, now)
		if err != nil {
			return SelfRegisterLink{}, err
		}
		if _, err := e.SelfReg.SetAwaiting(sess.Token, now); err != nil {
			return SelfRegisterLink{}, err
		}
		e.Machine.ClearPending()
		e.showMode(now)
		return e.link(*sess), nil
	})
}

func (e *Engine) CreateSelfRegister(ctx context.Context, credential model.Credential, subject string) (SelfRegisterLink, error) {
	credential = model.NormalizeCredential(credential.String())
	return do(ctx, e, "self_register_create", func(ctx context.Context, now time.Time) (SelfRegisterLink, error) {
		sess, err := e.SelfReg.Create(ctx, credential, subject, now)
		if err != nil {
			return SelfRegisterLink{}, err
		}
		return e.link(*sess), nil
	})
}

func (e *Engine) AwaitSelfRegister(ctx context.Context, token string) (SelfRegisterLink, error) {
	return do(ctx, e, "self_register_await", func(ctx context.Context, now time.Time) (SelfRegisterLink, error) {
		sess, err := e.SelfReg.SetAwaiting(token, now)
		if err != nil {
			return SelfRegisterLink{}, err
		}
		e.showMode(now)
		return e.link(*sess), nil
	})
}

func (e *Engine) ClearAwaiting(ctx context.Context) error {
	_, err := do(ctx, e, "self_register_clear_await", func(ctx context.Context, now time.Time) (struct{}, error) {
		e.SelfReg.ClearAwaiting()
		e.showMode(now)
		return struct{}{}, nil
	})
	return err
}

func (e *Engine) CancelSelfRegister(ctx context.Context, token string) error {
	_, err := do(ctx, e, "self_register_cancel", func(ctx context.Context, now time.Time) (struct{}, error) {
		if err := e.SelfReg.Cancel(token, now); err != nil {
			return struct{}{}, err
		}
		e.showMode(now)
		return struct{}{}, nil
	})
	return err
}

func (e *Engine) ResolveSelfRegister(ctx context.Context, token string) (*model.SelfRegisterSession, error) {
	return do(ctx, e, "self_register_resolve", func(ctx context.Context, now time.Time) (*model.SelfRegisterSession, error) {
		sess, ok := e.SelfReg.Resolve(token, now)
		if !ok {
			return nil, apperrors.NotFound("Self-register token")
		}
		return sess, nil
	})
}

func (e *Engine) ListSelfRegister(ctx context.Context) ([]SelfRegisterLink, error) {
	return do(ctx, e, "self_register_list", func(ctx context.Context, now time.Time) ([]SelfRegisterLink, error) {
		sessions := e.SelfReg.List(now)
		links := make([]SelfRegisterLink, 0, len(sessions))
		for _, sess := range sessions {
			links = append(links, e.link(sess))
		}
		return links, nil
	})
}
