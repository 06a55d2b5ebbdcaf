package identity

import (
	"context"
	"log/slog"
)

// Mailer delivers the two transactional messages the engine sends. Both
// receive a plaintext token to embed in a link; neither should block the
// calling flow for long.
type Mailer interface {
	SendVerification(ctx context.Context, email, fullname, link string) error
	SendPasswordReset(ctx context.Context, email, fullname, link string) error
}

// NopMailer discards every message. Useful for tests and for deployments
// that handle delivery out of band.
type NopMailer struct{}

func (NopMailer) SendVerification(context.Context, string, string, string) error {
	return nil
}

func (NopMailer) SendPasswordReset(context.Context, string, string, string) error {
	return nil
}

// LogMailer writes each message to the log instead of sending it. The
// default for local development.
type LogMailer struct {
	Log *slog.Logger
}

func (m LogMailer) SendVerification(_ context.Context, email, fullname, link string) error {
	m.logger().Info("verification mail",
		slog.String("email", email),
		slog.String("fullname", fullname),
		slog.String("link", link),
	)
	return nil
}

func (m LogMailer) SendPasswordReset(_ context.Context, email, fullname, link string) error {
	m.logger().Info("password reset mail",
		slog.String("email", email),
		slog.String("fullname", fullname),
		slog.String("link", link),
	)
	return nil
}

func (m LogMailer) logger() *slog.Logger {
	if m.Log != nil {
		return m.Log
	}
	return slog.Default()
}
