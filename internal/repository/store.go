package repository

import (
	"context"
)

type Table string

const (
	TableEnrollments   Table = "enrollments"
	TableCourses       Table = "courses"
	TableSchedule      Table = "schedule"
	TableAttendance    Table = "attendance"
	TableDenials       Table = "denials"
	TableNotifications Table = "notifications"
)

// Headers lists the fixed column names of every table, in row order.
var Headers = map[Table][]string{
	TableEnrollments:   {"credential", "name", "account_id", "subject", "created_at"},
	TableCourses:       {"subject", "instructor", "created_at"},
	TableSchedule:      {"owner", "day", "start", "end"},
	TableAttendance:    {"credential", "name", "account_id", "subject", "mode", "at"},
	TableDenials:       {"credential", "reason", "at"},
	TableNotifications: {"id", "kind", "message", "credential", "at"},
}

// Tables returns every known table in a stable order.
func Tables() []Table {
	return []Table{
		TableEnrollments, TableCourses, TableSchedule,
		TableAttendance, TableDenials, TableNotifications,
	}
}

// Row is an ordered list of fields. Stores do not enforce a schema; readers
// check the column count.
type Row []string

// RecordStore is the durable row store behind every table.
type RecordStore interface {
	ReadAll(ctx context.Context, table Table) ([]Row, error)
	Append(ctx context.Context, table Table, row Row) error
	Rewrite(ctx context.Context, table Table, rows []Row) error
	Close() error
}

func FindAll(ctx context.Context, store RecordStore, table Table, match func(Row) bool) ([]Row, error) {
	rows, err := store.ReadAll(ctx, table)
	if err != nil {
		return nil, err
	}
	var out []Row
	for _, row := range rows {
		if match(row) {
			out = append(out, row)
		}
	}
	return out, nil
}

func Exists(ctx context.Context, store RecordStore, table Table, match func(Row) bool) (bool, error) {
	rows, err := store.ReadAll(ctx, table)
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if match(row) {
			return true, nil
		}
	}
	return false, nil
}

func copyRow(row Row) Row {
	out := make(Row, len(row))
	copy(out, row)
	return out
}
