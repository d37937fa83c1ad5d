package mail

import (
	"context"

	"go.uber.org/zap"
)

// LogMailer writes messages to the log instead of delivering them. It is
// used when SMTP is disabled so verification links stay reachable in
// development.
type LogMailer struct {
	log *zap.Logger
}

// NewLogMailer returns a Mailer that logs every message at info level.
func NewLogMailer(log *zap.Logger) *LogMailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.log.Info("email not delivered (smtp disabled)",
		zap.Strings("to", uniqueAddresses(msg.To)),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
