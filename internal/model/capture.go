package model

import "time"

// CaptureSnapshot is a read-only view of the capture session.
type CaptureSnapshot struct {
	Mode               CaptureMode  `json:"mode"`
	Paused             bool         `json:"paused"`
	PendingCredential  Credential   `json:"pendingCredential,omitempty"`
	PendingName        string       `json:"pendingName,omitempty"`
	PendingAccount     string       `json:"pendingAccount,omitempty"`
	DetectedAt         *time.Time   `json:"detectedAt,omitempty"`
	WrongCard          bool         `json:"wrongCard"`
	Queue              []Credential `json:"queue"`
	AwaitingToken      string       `json:"awaitingToken,omitempty"`
	AwaitingCredential Credential   `json:"awaitingCredential,omitempty"`
	SelfRegisterCount  int          `json:"selfRegisterCount"`
}

func (s CaptureSnapshot) HasPending() bool {
	return s.PendingCredential != ""
}
