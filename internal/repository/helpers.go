package repository

import (
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const timeLayout = time.RFC3339

// checkColumns reports whether row carries at least the table's columns,
// logging rows that are skipped.
func checkColumns(table Table, row Row) bool {
	if len(row) >= len(Headers[table]) {
		return true
	}
	log.Warn().
		Str("table", string(table)).
		Int("columns", len(row)).
		Int("expected", len(Headers[table])).
		Msg("skipping short row")
	return false
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatInt(n int) string {
	return strconv.Itoa(n)
}

func nowIfZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
