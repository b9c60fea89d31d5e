// Package display drives the door-side indicators: the granted/denied
// signal, the capture-mode banner and the self-register prompt.
package display

import (
	"github.com/classgate/access-server/internal/model"
)

// Notifier is fire-and-forget; implementations log their own failures.
type Notifier interface {
	NotifyGranted(name, subject string, credential model.Credential)
	NotifyDenied(reason string, credential model.Credential)
	ShowCaptureMode(batch, paused bool)
	ShowWaiting()
	ShowAwaitingSelfRegister(credential model.Credential)
	ShowDetected(credential model.Credential, name string)
}

type multi []Notifier

// Multi fans every call out to each non-nil notifier in order.
func Multi(notifiers ...Notifier) Notifier {
	var m multi
	for _, n := range notifiers {
		if n != nil {
			m = append(m, n)
		}
	}
	return m
}

func (m multi) NotifyGranted(name, subject string, credential model.Credential) {
	for _, n := range m {
		n.NotifyGranted(name, subject, credential)
	}
}

func (m multi) NotifyDenied(reason string, credential model.Credential) {
	for _, n := range m {
		n.NotifyDenied(reason, credential)
	}
}

func (m multi) ShowCaptureMode(batch, paused bool) {
	for _, n := range m {
		n.ShowCaptureMode(batch, paused)
	}
}

func (m multi) ShowWaiting() {
	for _, n := range m {
		n.ShowWaiting()
	}
}

func (m multi) ShowAwaitingSelfRegister(credential model.Credential) {
	for _, n := range m {
		n.ShowAwaitingSelfRegister(credential)
	}
}

func (m multi) ShowDetected(credential model.Credential, name string) {
	for _, n := range m {
		n.ShowDetected(credential, name)
	}
}
