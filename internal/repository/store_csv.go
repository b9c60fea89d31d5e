package repository

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CSVStore keeps one quoted, comma-separated file per table under dir, each
// starting with the table header.
type CSVStore struct {
	dir string
	mu  sync.RWMutex
}

var _ RecordStore = (*CSVStore)(nil)

func NewCSVStore(dir string) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &CSVStore{dir: dir}, nil
}

func (s *CSVStore) path(table Table) string {
	return filepath.Join(s.dir, string(table)+".csv")
}

func (s *CSVStore) ReadAll(ctx context.Context, table Table) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.path(table))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var rows []Row
	header := true
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", table, err)
		}
		if header {
			header = false
			continue
		}
		rows = append(rows, Row(record))
	}
	return rows, nil
}

func (s *CSVStore) Append(ctx context.Context, table Table, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(table), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if info.Size() == 0 {
		writeQuoted(w, Headers[table])
	}
	writeQuoted(w, row)
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

func (s *CSVStore) Rewrite(ctx context.Context, table Table, rows []Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, string(table)+"-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	writeQuoted(w, Headers[table])
	for _, row := range rows {
		writeQuoted(w, row)
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
	return os.Rename(tmp.Name(), s.path(table))
}

func (s *CSVStore) Close() error {
	return nil
}

// writeQuoted writes every field quoted; csv.Writer only quotes when needed.
func writeQuoted(w *bufio.Writer, fields []string) {
	for i, field := range fields {
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteByte('"')
		w.WriteString(strings.ReplaceAll(field, `"`, `""`))
		w.WriteByte('"')
	}
	w.WriteByte('\n')
}
