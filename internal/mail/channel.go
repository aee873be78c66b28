// Package mail delivers reminder emails. Callers hold a Channel and never
// need to know whether SMTP is configured.
package mail

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nhle/bizops/internal/credential"
	"github.com/nhle/bizops/internal/model"
)

// ErrNoRecipient is returned when a message has no destination address.
var ErrNoRecipient = errors.New("email has no recipient")

// Message is a plain-text email to a single recipient.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Channel sends email. Implementations must not panic and must respect
// ctx cancellation.
type Channel interface {
	Send(ctx context.Context, msg Message) error
	Configured() bool
}

// SecretSource looks up stored credentials.
type SecretSource interface {
	Get(key string) (string, error)
}

// New selects the delivery channel from configuration: SMTP when a host
// is set, Noop otherwise. When the config carries no password, secrets
// (which may be nil) is asked for credential.SMTPPasswordKey.
func New(cfg model.MailConfig, secrets SecretSource, logger *zap.Logger) (Channel, error) {
	logger = logger.With(zap.String("component", "mail"))

	if !cfg.Configured() {
		logger.Info("email delivery not configured")
		return NewNoop(logger), nil
	}

	if cfg.Password == "" && cfg.Username != "" && secrets != nil {
		pw, err := secrets.Get(credential.SMTPPasswordKey)
		switch {
		case err == nil:
			cfg.Password = pw
		case errors.Is(err, credential.ErrNotFound):
			logger.Warn("no smtp password stored", zap.String("username", cfg.Username))
		default:
			return nil, fmt.Errorf("resolving smtp password: %w", err)
		}
	}

	return NewSMTP(cfg, logger), nil
}

// Noop drops every message after logging the skipped recipient.
type Noop struct {
	logger *zap.Logger
}

// NewNoop returns a channel that never sends.
func NewNoop(logger *zap.Logger) *Noop {
	return &Noop{logger: logger}
}

// Send logs the skipped message and returns nil.
func (n *Noop) Send(_ context.Context, msg Message) error {
	n.logger.Info("email not configured, skipping",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// Configured always reports false.
func (n *Noop) Configured() bool { return false }
