package service

import (
	"context"
	"slices"

	"github.com/rs/zerolog/log"

	apperrors "github.com/classgate/access-server/internal/errors"
	"github.com/classgate/access-server/internal/model"
	"github.com/classgate/access-server/internal/repository"
)

// CaptureQueue is the ordered, duplicate-free list of credentials collected
// during batch capture. It mirrors its contents to a CaptureQueueStore so a
// batch survives a restart. Not safe for concurrent use.
type CaptureQueue struct {
	store repository.CaptureQueueStore
	items []model.Credential
}

func NewCaptureQueue(store repository.CaptureQueueStore) *CaptureQueue {
	return &CaptureQueue{store: store}
}

// Load replaces the in-memory queue with the persisted one, dropping
// duplicates left by an interrupted append.
func (q *CaptureQueue) Load(ctx context.Context) error {
	persisted, err := q.store.Load(ctx)
	if err != nil {
		return apperrors.Storage(err)
	}
	items := make([]model.Credential, 0, len(persisted))
	for _, c := range persisted {
		if c.IsZero() || slices.Contains(items, c) {
			continue
		}
		items = append(items, c)
	}
	q.items = items
	if len(items) > 0 {
		log.Info().Int("count", len(items)).Msg("capture queue restored")
	}
	return nil
}

// Admit appends credential unless it is already queued and reports whether
// it was added.
func (q *CaptureQueue) Admit(ctx context.Context, credential model.Credential) (bool, error) {
	if slices.Contains(q.items, credential) {
		return false, nil
	}
	if err := q.store.Append(ctx, credential); err != nil {
		return false, apperrors.Storage(err)
	}
	q.items = append(q.items, credential)
	return true, nil
}

func (q *CaptureQueue) RemoveLast(ctx context.Context) (model.Credential, bool, error) {
	if len(q.items) == 0 {
		return "", false, nil
	}
	last := q.items[len(q.items)-1]
	rest := q.items[:len(q.items)-1]
	if err := q.store.Rewrite(ctx, rest); err != nil {
		return "", false, apperrors.Storage(err)
	}
	q.items = rest
	return last, true, nil
}

// Drain returns the queued credentials in admission order and empties the
// queue. The in-memory queue is emptied even if the persisted copy cannot
// be rewritten.
func (q *CaptureQueue) Drain(ctx context.Context) ([]model.Credential, error) {
	drained := q.items
	q.items = nil
	if err := q.store.Rewrite(ctx, nil); err != nil {
		return drained, apperrors.Storage(err)
	}
	return drained, nil
}

func (q *CaptureQueue) Clear(ctx context.Context) error {
	_, err := q.Drain(ctx)
	return err
}

func (q *CaptureQueue) Items() []model.Credential {
	return slices.Clone(q.items)
}

func (q *CaptureQueue) Len() int {
	return len(q.items)
}
