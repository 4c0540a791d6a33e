// Package notify delivers security alerts by e-mail.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"github.com/edvin/safehouse/internal/model"
)

// Mailer sends security alert digests over SMTP.
type Mailer struct {
	from   string
	send   func(*gomail.Message) error
	logger zerolog.Logger
}

// NewMailer creates a Mailer using an SMTP dialer. Credentials may be empty
// for relays that accept unauthenticated mail.
func NewMailer(host string, port int, username, password, from string, logger zerolog.Logger) *Mailer {
	dialer := gomail.NewDialer(host, port, username, password)
	return &Mailer{
		from:   from,
		send:   func(m *gomail.Message) error { return dialer.DialAndSend(m) },
		logger: logger.With().Str("component", "mailer").Logger(),
	}
}

// SendSecurityAlert mails one digest covering events.
func (m *Mailer) SendSecurityAlert(ctx context.Context, to, tenantID string, events []model.SecurityLog) error {
	if len(events) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := alertMessage(m.from, to, tenantID, events)
	if err := m.send(msg); err != nil {
		return fmt.Errorf("send security alert to %s: %w", to, err)
	}
	m.logger.Info().Str("tenant_id", tenantID).Str("to", to).Int("events", len(events)).Msg("security alert sent")
	return nil
}

func alertMessage(from, to, tenantID string, events []model.SecurityLog) *gomail.Message {
	worst := model.SeverityLow
	for _, ev := range events {
		if model.SeverityRank(ev.Severity) > model.SeverityRank(worst) {
			worst = ev.Severity
		}
	}

	var body strings.Builder
	fmt.Fprintf(&body, "%d unresolved security event(s) for tenant %s:\n\n", len(events), tenantID)
	for _, ev := range events {
		fmt.Fprintf(&body, "[%s] %s  %s\n    %s\n",
			strings.ToUpper(ev.Severity), ev.CreatedAt.UTC().Format("2006-01-02 15:04:05Z"), ev.EventType, ev.Description)
	}
	body.WriteString("\nResolve these events in the security dashboard once handled.\n")

	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", fmt.Sprintf("[%s] Security alert for tenant %s", strings.ToUpper(worst), tenantID))
	msg.SetHeader("X-Safehouse-Tenant", tenantID)
	msg.SetBody("text/plain", body.String())
	return msg
}
