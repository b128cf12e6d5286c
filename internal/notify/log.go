package notify

import (
	"context"

	"github.com/redmonkez12/go-account-service/internal/logging"
)

// LogSender writes emails to the log instead of sending them. Used when SMTP
// is not configured.
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendEmail(_ context.Context, email Email) error {
	s.logger.Info("[MOCK EMAIL]", "to", email.To, "subject", email.Subject, "html", email.HTML)
	return nil
}

// LogCaller writes voice calls to the log. Used when Twilio is not configured.
type LogCaller struct {
	logger *logging.Logger
}

func NewLogCaller(logger *logging.Logger) *LogCaller {
	return &LogCaller{logger: logger}
}

func (c *LogCaller) SendVoiceCall(_ context.Context, call VoiceCall) error {
	c.logger.Info("[MOCK CALL]", "to", call.To, "from", call.From, "digits", call.SpokenDigits)
	return nil
}
