package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/classgate/access-server/internal/errors"
	"github.com/classgate/access-server/internal/model"
	"github.com/classgate/access-server/internal/repository"
)

const (
	DefaultDebounce          = 3 * time.Second
	DefaultWrongCardCooldown = 2500 * time.Millisecond
)

// AwaitingLock exposes the self-register lock to the capture machine.
type AwaitingLock interface {
	Awaiting(now time.Time) (token string, credential model.Credential, ok bool)
}

type PendingCapture struct {
	Credential model.Credential `json:"credential"`
	Name       string           `json:"name,omitempty"`
	AccountID  string           `json:"accountId,omitempty"`
	DetectedAt time.Time        `json:"detectedAt"`
}

type DetectOutcome struct {
	// Bound is set in individual mode when the detection (re)bound the
	// pending credential.
	Bound bool `json:"bound"`
	// Admitted is set in batch mode when the credential was newly queued.
	Admitted bool `json:"admitted"`
	// MatchedAwaiting is set when the detection was the awaited
	// self-register card.
	MatchedAwaiting bool            `json:"matchedAwaiting"`
	Pending         *PendingCapture `json:"pending,omitempty"`
}

// CaptureMachine holds the enrollment capture mode and the last detected,
// unconfirmed credential. Pause is a flag on batch mode, not a mode of its
// own. Not safe for concurrent use.
type CaptureMachine struct {
	mode           model.CaptureMode
	paused         bool
	pending        *PendingCapture
	wrongCardUntil time.Time

	debounce time.Duration
	cooldown time.Duration

	queue          *CaptureQueue
	lock           AwaitingLock
	enrollmentRepo repository.EnrollmentRepository
}

func NewCaptureMachine(
	queue *CaptureQueue,
	lock AwaitingLock,
	enrollmentRepo repository.EnrollmentRepository,
	debounce time.Duration,
	cooldown time.Duration,
) *CaptureMachine {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if cooldown <= 0 {
		cooldown = DefaultWrongCardCooldown
	}
	return &CaptureMachine{
		mode:           model.CaptureModeIdle,
		debounce:       debounce,
		cooldown:       cooldown,
		queue:          queue,
		lock:           lock,
		enrollmentRepo: enrollmentRepo,
	}
}

func (m *CaptureMachine) Mode() model.CaptureMode {
	return m.mode
}

func (m *CaptureMachine) Paused() bool {
	return m.paused
}

// Active reports whether detections belong to the machine rather than to
// authorization.
func (m *CaptureMachine) Active() bool {
	switch m.mode {
	case model.CaptureModeIndividual:
		return true
	case model.CaptureModeBatch:
		return !m.paused
	default:
		return false
	}
}

func (m *CaptureMachine) Pending() *PendingCapture {
	if m.pending == nil {
		return nil
	}
	p := *m.pending
	return &p
}

func (m *CaptureMachine) WrongCard(now time.Time) bool {
	return now.Before(m.wrongCardUntil)
}

func (m *CaptureMachine) StartIndividual() {
	m.transition(model.CaptureModeIndividual)
}

// StartBatch leaves the queue as it is.
func (m *CaptureMachine) StartBatch() {
	m.transition(model.CaptureModeBatch)
}

// Stop returns to idle and hands back the pending detection it discarded,
// if any, so the caller can surface it.
func (m *CaptureMachine) Stop() *PendingCapture {
	discarded := m.pending
	m.transition(model.CaptureModeIdle)
	return discarded
}

// TogglePause flips the pause flag of a batch capture.
func (m *CaptureMachine) TogglePause() (bool, error) {
	if m.mode != model.CaptureModeBatch {
		return false, apperrors.InvalidState("Pause is only available during batch capture")
	}
	m.paused = !m.paused
	log.Info().Bool("paused", m.paused).Msg("batch capture pause toggled")
	return m.paused, nil
}

// ClearPending drops the pending detection, typically after it has been
// confirmed.
func (m *CaptureMachine) ClearPending() {
	m.pending = nil
}

// Reset returns the machine to its boot state.
func (m *CaptureMachine) Reset() {
	m.transition(model.CaptureModeIdle)
	m.wrongCardUntil = time.Time{}
}

func (m *CaptureMachine) transition(mode model.CaptureMode) {
	if m.mode != mode {
		log.Info().Str("from", string(m.mode)).Str("to", string(mode)).Msg("capture mode changed")
	}
	m.mode = mode
	m.paused = false
	m.pending = nil
}

// OnDetect handles a detection while a capture is running.
func (m *CaptureMachine) OnDetect(ctx context.Context, credential model.Credential, now time.Time) (DetectOutcome, error) {
	switch {
	case m.mode == model.CaptureModeIndividual:
		return m.detectIndividual(ctx, credential, now), nil
	case m.mode == model.CaptureModeBatch && !m.paused:
		return m.detectBatch(ctx, credential, now)
	default:
		return DetectOutcome{}, apperrors.InvalidState("No capture is accepting cards")
	}
}

func (m *CaptureMachine) detectIndividual(ctx context.Context, credential model.Credential, now time.Time) DetectOutcome {
	if m.pending != nil && now.Sub(m.pending.DetectedAt) < m.debounce {
		m.pending.DetectedAt = now
		return DetectOutcome{Pending: m.Pending()}
	}

	p := &PendingCapture{Credential: credential, DetectedAt: now}
	rec, err := m.enrollmentRepo.FindByCredential(ctx, credential)
	if err != nil {
		log.Warn().Err(err).Str("credential", credential.String()).Msg("prefill lookup failed")
	} else if rec != nil {
		p.Name = rec.Name
		p.AccountID = rec.AccountID
	}
	m.pending = p

	log.Info().
		Str("credential", credential.String()).
		Bool("known", p.Name != "").
		Msg("capture card bound")

	return DetectOutcome{Bound: true, Pending: m.Pending()}
}

func (m *CaptureMachine) detectBatch(ctx context.Context, credential model.Credential, now time.Time) (DetectOutcome, error) {
	var out DetectOutcome
	if _, awaited, locked := m.lock.Awaiting(now); locked {
		if awaited != credential {
			m.wrongCardUntil = now.Add(m.cooldown)
			log.Warn().
				Str("credential", credential.String()).
				Str("awaiting", awaited.String()).
				Msg("wrong card during self-register wait")
			return out, apperrors.WrongCard(credential.String())
		}
		out.MatchedAwaiting = true
	}

	admitted, err := m.queue.Admit(ctx, credential)
	if err != nil {
		return out, err
	}
	out.Admitted = admitted
	m.pending = nil

	if admitted {
		log.Info().
			Str("credential", credential.String()).
			Int("queueLength", m.queue.Len()).
			Msg("credential queued")
	}
	return out, nil
}
