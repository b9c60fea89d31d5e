package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/classgate/access-server/internal/database"
)

// PostgresStore keeps every table's rows in a single records table, one
// text[] per row, ordered by insertion id.
type PostgresStore struct {
	db *database.DB
}

var _ RecordStore = (*PostgresStore)(nil)

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ReadAll(ctx context.Context, table Table) ([]Row, error) {
	var arrays []pq.StringArray
	err := s.db.SelectContext(ctx, &arrays, `
		SELECT fields FROM records
		WHERE table_name = $1
		ORDER BY id
	`, string(table))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}

	rows := make([]Row, len(arrays))
	for i, a := range arrays {
		rows[i] = Row(a)
	}
	return rows, nil
}

func (s *PostgresStore) Append(ctx context.Context, table Table, row Row) error {
	return insertRow(ctx, s.db, table, row)
}

func (s *PostgresStore) Rewrite(ctx context.Context, table Table, rows []Row) error {
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE table_name = $1`, string(table)); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
		for _, row := range rows {
			if err := insertRow(ctx, tx, table, row); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func insertRow(ctx context.Context, db database.DBTX, table Table, row Row) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO records (table_name, fields)
		VALUES ($1, $2)
	`, string(table), pq.StringArray(row))
	if err != nil {
		return fmt.Errorf("append %s: %w", table, err)
	}
	return nil
}
