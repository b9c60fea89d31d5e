package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/classgate/access-server/internal/errors"
	"github.com/classgate/access-server/internal/model"
	"github.com/classgate/access-server/internal/util"
)

const DefaultSelfRegisterTTL = 5 * time.Minute

// awaitLock is the token/credential pair the door is actively waiting on.
// Both fields are always set or cleared together.
type awaitLock struct {
	token      string
	credential model.Credential
}

// SelfRegisterManager owns the pending self-register sessions and the
// single awaiting lock. Expired sessions are evicted lazily on access.
// Not safe for concurrent use.
type SelfRegisterManager struct {
	sessions map[string]*model.SelfRegisterSession
	awaiting *awaitLock
	ttl      time.Duration

	enroller *EnrollmentService
	newToken func() (string, error)
}

func NewSelfRegisterManager(enroller *EnrollmentService, ttl time.Duration) *SelfRegisterManager {
	if ttl <= 0 {
		ttl = DefaultSelfRegisterTTL
	}
	return &SelfRegisterManager{
		sessions: make(map[string]*model.SelfRegisterSession),
		ttl:      ttl,
		enroller: enroller,
		newToken: util.GenerateToken,
	}
}

// Create issues a token for a credential with no enrollment. A credential
// that already has a live session gets that session back.
func (m *SelfRegisterManager) Create(ctx context.Context, credential model.Credential, subject string, now time.Time) (*model.SelfRegisterSession, error) {
	if !credential.Valid() {
		return nil, apperrors.InvalidInput("credential", "must be uppercase hex")
	}
	subject = strings.TrimSpace(subject)
	if subject != "" && !util.IsValidSubject(subject) {
		return nil, apperrors.InvalidInput("subject", "must not contain '||'")
	}

	enrolled, err := m.enroller.IsEnrolled(ctx, credential)
	if err != nil {
		return nil, err
	}
	if enrolled {
		return nil, apperrors.AlreadyEnrolled()
	}

	m.evict(now)
	for _, sess := range m.sessions {
		if sess.Credential == credential {
			if subject != "" {
				sess.Subject = subject
			}
			s := *sess
			return &s, nil
		}
	}

	token, err := m.newToken()
	if err != nil {
		return nil, apperrors.Internal("Failed to generate token").WithCause(err)
	}
	sess := &model.SelfRegisterSession{
		Token:      token,
		Credential: credential,
		Subject:    subject,
		CreatedAt:  now,
		TTL:        m.ttl,
	}
	m.sessions[token] = sess

	log.Info().
		Str("token", util.MaskToken(token)).
		Str("credential", credential.String()).
		Time("expiresAt", sess.ExpiresAt()).
		Msg("self-register session created")

	s := *sess
	return &s, nil
}

// Resolve returns the live session for token. Expired and unknown tokens
// both report ok=false.
func (m *SelfRegisterManager) Resolve(token string, now time.Time) (*model.SelfRegisterSession, bool) {
	m.evict(now)
	sess, ok := m.sessions[token]
	if !ok {
		return nil, false
	}
	s := *sess
	return &s, true
}

// Submit completes enrollment for token. Every check runs before any write
// because the credential may have been enrolled by another path since the
// token was issued.
func (m *SelfRegisterManager) Submit(ctx context.Context, token string, sub model.SelfRegisterSubmission, now time.Time) (*model.EnrollmentRecord, error) {
	sess, ok := m.Resolve(token, now)
	if !ok {
		return nil, apperrors.NotFound("Self-register token")
	}

	subject := strings.TrimSpace(sub.Subject)
	if subject == "" {
		subject = sess.Subject
	}
	params := EnrollParams{
		Credential: sess.Credential,
		Name:       sub.Name,
		AccountID:  sub.AccountID,
		Subject:    subject,
		Mode:       model.AttendanceSelfRegister,
		Kind:       model.NotificationSelfRegister,
		At:         now,
	}
	if err := m.enroller.Validate(params); err != nil {
		return nil, err
	}

	enrolled, err := m.enroller.IsEnrolled(ctx, sess.Credential)
	if err != nil {
		return nil, err
	}
	if enrolled {
		return nil, apperrors.AlreadyEnrolled()
	}
	if err := m.enroller.CheckConflicts(ctx, params); err != nil {
		return nil, err
	}

	rec, err := m.enroller.commit(ctx, params)
	if rec == nil {
		return nil, err
	}

	m.remove(token)
	log.Info().
		Str("token", util.MaskToken(token)).
		Str("credential", rec.Credential.String()).
		Msg("self-register completed")

	return rec, err
}

// Cancel removes the session for token and releases the lock bound to it.
func (m *SelfRegisterManager) Cancel(token string, now time.Time) error {
	m.evict(now)
	if _, ok := m.sessions[token]; !ok {
		return apperrors.NotFound("Self-register token")
	}
	m.remove(token)
	log.Info().Str("token", util.MaskToken(token)).Msg("self-register session cancelled")
	return nil
}

// GenerateLinks creates a session for each credential. Already enrolled
// credentials are skipped. Credentials that could not get a session are
// returned in input order together with their joined errors.
func (m *SelfRegisterManager) GenerateLinks(ctx context.Context, credentials []model.Credential, subject string, now time.Time) ([]model.SelfRegisterSession, []model.Credential, error) {
	var (
		errs   []error
		failed []model.Credential
	)
	sessions := make([]model.SelfRegisterSession, 0, len(credentials))
	for _, credential := range credentials {
		sess, err := m.Create(ctx, credential, subject, now)
		if err != nil {
			if apperrors.HasCode(err, apperrors.ErrCodeAlreadyEnrolled) {
				log.Info().Str("credential", credential.String()).Msg("skipping enrolled credential")
				continue
			}
			failed = append(failed, credential)
			errs = append(errs, err)
			continue
		}
		sessions = append(sessions, *sess)
	}
	return sessions, failed, errors.Join(errs...)
}

// SetAwaiting points the lock at the session for token.
func (m *SelfRegisterManager) SetAwaiting(token string, now time.Time) (*model.SelfRegisterSession, error) {
	sess, ok := m.Resolve(token, now)
	if !ok {
		return nil, apperrors.NotFound("Self-register token")
	}
	m.awaiting = &awaitLock{token: sess.Token, credential: sess.Credential}
	log.Info().
		Str("token", util.MaskToken(sess.Token)).
		Str("credential", sess.Credential.String()).
		Msg("awaiting self-register card")
	return sess, nil
}

func (m *SelfRegisterManager) ClearAwaiting() {
	if m.awaiting != nil {
		log.Info().Str("credential", m.awaiting.credential.String()).Msg("self-register wait cleared")
	}
	m.awaiting = nil
}

func (m *SelfRegisterManager) Awaiting(now time.Time) (string, model.Credential, bool) {
	m.evict(now)
	if m.awaiting == nil {
		return "", "", false
	}
	return m.awaiting.token, m.awaiting.credential, true
}

// List returns the live sessions, oldest first.
func (m *SelfRegisterManager) List(now time.Time) []model.SelfRegisterSession {
	m.evict(now)
	out := make([]model.SelfRegisterSession, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Token < out[j].Token
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *SelfRegisterManager) Count(now time.Time) int {
	m.evict(now)
	return len(m.sessions)
}

// Reset drops every session and the lock.
func (m *SelfRegisterManager) Reset() {
	m.sessions = make(map[string]*model.SelfRegisterSession)
	m.awaiting = nil
}

func (m *SelfRegisterManager) evict(now time.Time) {
	for token, sess := range m.sessions {
		if sess.Expired(now) {
			log.Info().Str("token", util.MaskToken(token)).Msg("self-register session expired")
			m.remove(token)
		}
	}
}

func (m *SelfRegisterManager) remove(token string) {
	delete(m.sessions, token)
	if m.awaiting != nil && m.awaiting.token == token {
		m.awaiting = nil
	}
}
