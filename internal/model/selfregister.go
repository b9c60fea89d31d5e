package model

import "time"

type SelfRegisterSession struct {
	Token      string        `json:"token"`
	Credential Credential    `json:"credential"`
	Subject    string        `json:"subject,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	TTL        time.Duration `json:"-"`
}

func (s *SelfRegisterSession) Expired(now time.Time) bool {
	return now.Sub(s.CreatedAt) > s.TTL
}

func (s *SelfRegisterSession) ExpiresAt() time.Time {
	return s.CreatedAt.Add(s.TTL)
}

type SelfRegisterSubmission struct {
	Name      string
	AccountID string
	Subject   string
}
