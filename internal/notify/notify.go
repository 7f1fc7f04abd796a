// Package notify holds the outbound notification channels the task consumes:
// an operator chat sink and a user-facing mailer.
package notify

import "context"

// Level is the severity of an operator message
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// OperatorSink delivers run events to the operators. userEmail is empty for
// run-level events; broadcast asks for the attention-grabbing channel.
// Delivery is best effort: sinks log failures and never fail the run.
type OperatorSink interface {
	Send(ctx context.Context, level Level, userEmail, title, detail string, broadcast bool)
}

// UserMailer sends a templated notification mail to an end user
type UserMailer interface {
	Send(ctx context.Context, to, subject, template string, data any) error
}

// NopSink discards operator messages. Used when no chat sink is configured.
type NopSink struct{}

func (NopSink) Send(context.Context, Level, string, string, string, bool) {}
