package model

import "time"

type AttendanceRecord struct {
	Credential Credential     `json:"credential"`
	Name       string         `json:"name"`
	AccountID  string         `json:"accountId"`
	Subject    string         `json:"subject"`
	Mode       AttendanceMode `json:"mode"`
	At         time.Time      `json:"at"`
}

type DenialRecord struct {
	Credential Credential `json:"credential"`
	Reason     string     `json:"reason"`
	At         time.Time  `json:"at"`
}

type Notification struct {
	ID         string           `json:"id"`
	Kind       NotificationKind `json:"kind"`
	Message    string           `json:"message"`
	Credential Credential       `json:"credential,omitempty"`
	At         time.Time        `json:"at"`
}
