package display

import (
	"github.com/rs/zerolog"

	"github.com/classgate/access-server/internal/model"
)

type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "display").Logger()}
}

func (n *LogNotifier) NotifyGranted(name, subject string, credential model.Credential) {
	n.logger.Info().
		Str("credential", credential.String()).
		Str("name", name).
		Str("subject", subject).
		Msg("access granted")
}

func (n *LogNotifier) NotifyDenied(reason string, credential model.Credential) {
	n.logger.Warn().
		Str("credential", credential.String()).
		Str("reason", reason).
		Msg("access denied")
}

func (n *LogNotifier) ShowCaptureMode(batch, paused bool) {
	n.logger.Info().
		Bool("batch", batch).
		Bool("paused", paused).
		Msg("capture mode")
}

func (n *LogNotifier) ShowWaiting() {
	n.logger.Debug().Msg("waiting for card")
}

func (n *LogNotifier) ShowAwaitingSelfRegister(credential model.Credential) {
	n.logger.Info().
		Str("credential", credential.String()).
		Msg("awaiting self-registration")
}

func (n *LogNotifier) ShowDetected(credential model.Credential, name string) {
	n.logger.Info().
		Str("credential", credential.String()).
		Str("name", name).
		Msg("card detected")
}
