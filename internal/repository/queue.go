package repository

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/classgate/access-server/internal/model"
)

// CaptureQueueStore persists the batch capture queue so it survives a
// restart mid-batch.
type CaptureQueueStore interface {
	Load(ctx context.Context) ([]model.Credential, error)
	Append(ctx context.Context, credential model.Credential) error
	Rewrite(ctx context.Context, credentials []model.Credential) error
}

// FileQueueStore keeps one credential per line.
type FileQueueStore struct {
	path string
	mu   sync.Mutex
}

var _ CaptureQueueStore = (*FileQueueStore)(nil)

func NewFileQueueStore(path string) (*FileQueueStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create queue dir: %w", err)
	}
	return &FileQueueStore{path: path}, nil
}

func (s *FileQueueStore) Load(ctx context.Context) ([]model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []model.Credential
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		cred := model.NormalizeCredential(scanner.Text())
		if cred.IsZero() {
			continue
		}
		out = append(out, cred)
	}
	return out, scanner.Err()
}

func (s *FileQueueStore) Append(ctx context.Context, credential model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(string(credential) + "\n"); err != nil {
		return err
	}
	return f.Sync()
}

// Rewrite replaces the file through a synced temp file in the same
// directory, so a crash leaves either the old or the new queue.
func (s *FileQueueStore) Rewrite(ctx context.Context, credentials []model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, cred := range credentials {
		w.WriteString(string(cred))
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// RedisQueueStore keeps the queue as a Redis list.
type RedisQueueStore struct {
	client *redis.Client
	key    string
}

var _ CaptureQueueStore = (*RedisQueueStore)(nil)

func NewRedisQueueStore(client *redis.Client, deviceID string) *RedisQueueStore {
	return &RedisQueueStore{client: client, key: CaptureQueueKey(deviceID)}
}

func CaptureQueueKey(deviceID string) string {
	return fmt.Sprintf("capture:queue:%s", deviceID)
}

func (s *RedisQueueStore) Load(ctx context.Context) ([]model.Credential, error) {
	values, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.Credential, 0, len(values))
	for _, v := range values {
		out = append(out, model.NormalizeCredential(v))
	}
	return out, nil
}

func (s *RedisQueueStore) Append(ctx context.Context, credential model.Credential) error {
	return s.client.RPush(ctx, s.key, string(credential)).Err()
}

func (s *RedisQueueStore) Rewrite(ctx context.Context, credentials []model.Credential) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	if len(credentials) > 0 {
		values := make([]any, len(credentials))
		for i, cred := range credentials {
			values[i] = string(cred)
		}
		pipe.RPush(ctx, s.key, values...)
	}
	_, err := pipe.Exec(ctx)
	return err
}
