package model

import (
	"strings"
	"time"
)

type EnrollmentRecord struct {
	Credential Credential `json:"credential"`
	Name       string     `json:"name"`
	AccountID  string     `json:"accountId"`
	Subject    string     `json:"subject"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type CreateEnrollmentParams struct {
	Credential Credential
	Name       string
	AccountID  string
	Subject    string
	CreatedAt  time.Time
}

type Course struct {
	Subject    string    `json:"subject"`
	Instructor string    `json:"instructor,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Subjects returns the distinct, trimmed, non-empty subjects of records in
// first-seen order.
func Subjects(records []EnrollmentRecord) []string {
	seen := make(map[string]bool, len(records))
	subjects := make([]string, 0, len(records))
	for _, rec := range records {
		s := strings.TrimSpace(rec.Subject)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		subjects = append(subjects, s)
	}
	return subjects
}
