package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/classgate/access-server/internal/errors"
	"github.com/classgate/access-server/internal/model"
	"github.com/classgate/access-server/internal/repository"
)

func newManager(t *testing.T, env *testEnv) *SelfRegisterManager {
	t.Helper()
	m := NewSelfRegisterManager(env.enroller, 300000*time.Millisecond)
	n := 0
	m.newToken = func() (string, error) {
		n++
		return fmt.Sprintf("token-%02d", n), nil
	}
	return m
}

func TestSelfRegisterManager_Expiry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	m := newManager(t, env)
	t0 := at(0, 8, 0)

	sess, err := m.Create(ctx, "C4", "", t0)
	require.NoError(t, err)

	_, ok := m.Resolve(sess.Token, t0.Add(299999*time.Millisecond))
	assert.True(t, ok)

	_, ok = m.Resolve(sess.Token, t0.Add(300000*time.Millisecond))
	assert.True(t, ok, "expiry is strictly after the ttl")

	_, ok = m.Resolve(sess.Token, t0.Add(300001*time.Millisecond))
	assert.False(t, ok)
	assert.Zero(t, m.Count(t0), "expired session is physically removed")
}

func TestSelfRegisterManager_Create(t *testing.T) {
	ctx := context.Background()
	now := at(0, 8, 0)

	t.Run("rejects enrolled credential", func(t *testing.T) {
		env := newTestEnv(t)
		env.enroll(t, "AA", "Ana", "1234567", "")
		m := newManager(t, env)

		_, err := m.Create(ctx, "AA", "", now)
		assert.Equal(t, apperrors.ErrCodeAlreadyEnrolled, apperrors.GetCode(err))
	})

	t.Run("reuses live session for the same credential", func(t *testing.T) {
		env := newTestEnv(t)
		m := newManager(t, env)

		first, err := m.Create(ctx, "AA", "", now)
		require.NoError(t, err)
		second, err := m.Create(ctx, "AA", "Algebra", now.Add(time.Minute))
		require.NoError(t, err)

		assert.Equal(t, first.Token, second.Token)
		assert.Equal(t, "Algebra", second.Subject)
		assert.Equal(t, 1, m.Count(now))
	})

	t.Run("rejects malformed credential", func(t *testing.T) {
		env := newTestEnv(t)
		m := newManager(t, env)
		_, err := m.Create(ctx, "not-hex", "", now)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	})

	t.Run("token generation failure", func(t *testing.T) {
		env := newTestEnv(t)
		m := newManager(t, env)
		m.newToken = func() (string, error) { return "", errors.New("no entropy") }
		_, err := m.Create(ctx, "AA", "", now)
		assert.Equal(t, apperrors.ErrCodeInternal, apperrors.GetCode(err))
	})
}

func TestSelfRegisterManager_Submit(t *testing.T) {
	ctx := context.Background()
	now := at(0, 8, 0)

	t.Run("enrolls and removes the session", func(t *testing.T) {
		env := newTestEnv(t)
		env.course(t, "Algebra")
		m := newManager(t, env)
		sess, err := m.Create(ctx, "C4", "Algebra", now)
		require.NoError(t, err)
		_, err = m.SetAwaiting(sess.Token, now)
		require.NoError(t, err)

		rec, err := m.Submit(ctx, sess.Token, model.SelfRegisterSubmission{
			Name: "Luis", AccountID: "7654321",
		}, now.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, "Algebra", rec.Subject)

		_, ok := m.Resolve(sess.Token, now)
		assert.False(t, ok)
		_, _, locked := m.Awaiting(now)
		assert.False(t, locked, "submitting the awaited token releases the lock")

		attendance := env.rows(t, repository.TableAttendance)
		require.Len(t, attendance, 1)
		assert.Equal(t, string(model.AttendanceSelfRegister), attendance[0][4])

		notes, err := env.notifications.ListRecent(ctx, 5)
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, model.NotificationSelfRegister, notes[0].Kind)
	})

	t.Run("validation rejects without side effects", func(t *testing.T) {
		env := newTestEnv(t)
		m := newManager(t, env)
		sess, err := m.Create(ctx, "C4", "", now)
		require.NoError(t, err)

		cases := []model.SelfRegisterSubmission{
			{Name: "", AccountID: "7654321"},
			{Name: "Luis", AccountID: "765432"},
			{Name: "Luis", AccountID: "76543210"},
			{Name: "Luis", AccountID: "76543a1"},
		}
		for _, sub := range cases {
			_, err := m.Submit(ctx, sess.Token, sub, now)
			assert.Error(t, err, "%+v", sub)
		}
		assert.Empty(t, env.rows(t, repository.TableEnrollments))
		_, ok := m.Resolve(sess.Token, now)
		assert.True(t, ok)
	})

	t.Run("credential enrolled meanwhile", func(t *testing.T) {
		env := newTestEnv(t)
		m := newManager(t, env)
		sess, err := m.Create(ctx, "C4", "", now)
		require.NoError(t, err)

		env.enroll(t, "C4", "Other", "1111111", "")

		_, err = m.Submit(ctx, sess.Token, model.SelfRegisterSubmission{Name: "Luis", AccountID: "7654321"}, now)
		assert.Equal(t, apperrors.ErrCodeAlreadyEnrolled, apperrors.GetCode(err))
		assert.Len(t, env.rows(t, repository.TableEnrollments), 1)
	})

	t.Run("account already bound to another credential", func(t *testing.T) {
		env := newTestEnv(t)
		env.enroll(t, "AA", "Ana", "7654321", "")
		m := newManager(t, env)
		sess, err := m.Create(ctx, "C4", "", now)
		require.NoError(t, err)

		_, err = m.Submit(ctx, sess.Token, model.SelfRegisterSubmission{Name: "Luis", AccountID: "7654321"}, now)
		assert.Equal(t, apperrors.ErrCodeDuplicateAccount, apperrors.GetCode(err))
	})

	t.Run("expired token is not found", func(t *testing.T) {
		env := newTestEnv(t)
		m := newManager(t, env)
		sess, err := m.Create(ctx, "C4", "", now)
		require.NoError(t, err)

		_, err = m.Submit(ctx, sess.Token, model.SelfRegisterSubmission{Name: "Luis", AccountID: "7654321"}, now.Add(6*time.Minute))
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))

		_, err = m.Submit(ctx, "never-issued", model.SelfRegisterSubmission{Name: "Luis", AccountID: "7654321"}, now)
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})
}

func TestSelfRegisterManager_Lock(t *testing.T) {
	ctx := context.Background()
	now := at(0, 8, 0)

	t.Run("set and clear together", func(t *testing.T) {
		env := newTestEnv(t)
		m := newManager(t, env)
		sess, err := m.Create(ctx, "C4", "", now)
		require.NoError(t, err)

		_, err = m.SetAwaiting("unknown", now)
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))

		_, err = m.SetAwaiting(sess.Token, now)
		require.NoError(t, err)
		token, cred, ok := m.Awaiting(now)
		assert.True(t, ok)
		assert.Equal(t, sess.Token, token)
		assert.Equal(t, model.Credential("C4"), cred)

		m.ClearAwaiting()
		token, cred, ok = m.Awaiting(now)
		assert.False(t, ok)
		assert.Empty(t, token)
		assert.Empty(t, cred)
		_, stillThere := m.Resolve(sess.Token, now)
		assert.True(t, stillThere, "clearing the lock keeps the session")
	})

	t.Run("cancel releases lock", func(t *testing.T) {
		env := newTestEnv(t)
		m := newManager(t, env)
		sess, _ := m.Create(ctx, "C4", "", now)
		_, _ = m.SetAwaiting(sess.Token, now)

		require.NoError(t, m.Cancel(sess.Token, now))
		_, _, ok := m.Awaiting(now)
		assert.False(t, ok)

		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(m.Cancel(sess.Token, now)))
	})

	t.Run("expiry releases lock", func(t *testing.T) {
		env := newTestEnv(t)
		m := newManager(t, env)
		sess, _ := m.Create(ctx, "C4", "", now)
		_, _ = m.SetAwaiting(sess.Token, now)

		_, _, ok := m.Awaiting(now.Add(5*time.Minute + time.Millisecond))
		assert.False(t, ok)
	})

	t.Run("reset drops everything", func(t *testing.T) {
		env := newTestEnv(t)
		m := newManager(t, env)
		sess, _ := m.Create(ctx, "C4", "", now)
		_, _ = m.Create(ctx, "C5", "", now)
		_, _ = m.SetAwaiting(sess.Token, now)

		m.Reset()
		assert.Zero(t, m.Count(now))
		_, _, ok := m.Awaiting(now)
		assert.False(t, ok)
	})
}

func TestSelfRegisterManager_GenerateLinks(t *testing.T) {
	ctx := context.Background()
	now := at(0, 8, 0)
	env := newTestEnv(t)
	env.enroll(t, "AA", "Ana", "1234567", "")
	m := newManager(t, env)

	sessions, failed, err := m.GenerateLinks(ctx, []model.Credential{"C4", "AA", "C5", "bad!"}, "Algebra", now)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	assert.Equal(t, []model.Credential{"bad!"}, failed)
	require.Len(t, sessions, 2)
	assert.Equal(t, model.Credential("C4"), sessions[0].Credential)
	assert.Equal(t, model.Credential("C5"), sessions[1].Credential)
	assert.Equal(t, "Algebra", sessions[1].Subject)

	listed := m.List(now)
	require.Len(t, listed, 2)
	assert.Equal(t, "token-01", listed[0].Token)
}
