package notify

import (
	"context"
	"fmt"
	"time"

	gomail "gopkg.in/mail.v2"

	"sneakpeak/pkg/domain"
	"sneakpeak/pkg/logger"
)

// EmailConfig holds SMTP configuration for sending the digest.
type EmailConfig struct {
	SMTPServer string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	FromEmail  string
	Timeout    time.Duration
}

// EmailNotifier renders the digest and delivers it via SMTP.
type EmailNotifier struct {
	cfg      EmailConfig
	renderer *HTMLEmailRenderer
	log      logger.Logger
	send     func(*gomail.Message) error
}

// EmailOption configures an EmailNotifier.
type EmailOption func(*EmailNotifier)

// WithSendFunc replaces SMTP delivery, e.g. with a recorder in tests.
func WithSendFunc(send func(*gomail.Message) error) EmailOption {
	return func(n *EmailNotifier) {
		n.send = send
	}
}

// NewEmailNotifier creates a notifier with the given SMTP configuration.
func NewEmailNotifier(cfg EmailConfig, log logger.Logger, opts ...EmailOption) *EmailNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	n := &EmailNotifier{
		cfg:      cfg,
		renderer: NewHTMLEmailRenderer(),
		log:      log,
	}
	n.send = n.dialAndSend
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify sends one digest to recipient. Empty entries, a missing SMTP host or
// a missing recipient skip delivery without error.
func (n *EmailNotifier) Notify(ctx context.Context, entries []domain.ReportEntry, recipient string) error {
	if len(entries) == 0 {
		n.log.Debug("No changes detected, skipping email")
		return nil
	}
	if n.cfg.SMTPServer == "" {
		n.log.Info("SMTP host is not set, skipping email")
		return nil
	}
	if recipient == "" {
		n.log.Info("Notification recipient is not set, skipping email")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := n.renderer.Render(entries)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	m.AddAlternative("text/html", msg.HTML)

	if err := n.send(m); err != nil {
		return fmt.Errorf("send digest to %s: %w", recipient, err)
	}

	n.log.Info("Email sent",
		logger.String("subject", msg.Subject),
		logger.String("recipient", recipient),
		logger.Int("changes", len(entries)),
	)
	return nil
}

func (n *EmailNotifier) dialAndSend(m *gomail.Message) error {
	dialer := gomail.NewDialer(n.cfg.SMTPServer, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	dialer.Timeout = n.cfg.Timeout
	return dialer.DialAndSend(m)
}
