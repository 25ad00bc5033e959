package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/salesloop/salesloop/internal/models"
	"github.com/salesloop/salesloop/internal/util"
)

// SMTPConfig holds the outbound mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailAdapter delivers email steps over SMTP. Without a configured relay it
// runs simulated: sends are logged and reported successful.
type EmailAdapter struct {
	cfg      SMTPConfig
	simulate bool
	// sendMail is swapped in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailAdapter creates an email adapter. A config with an empty host
// yields a simulated adapter.
func NewEmailAdapter(cfg SMTPConfig) *EmailAdapter {
	return &EmailAdapter{
		cfg:      cfg,
		simulate: cfg.Host == "",
		sendMail: smtp.SendMail,
	}
}

func (a *EmailAdapter) Channel() models.Channel {
	return models.ChannelEmail
}

func (a *EmailAdapter) Simulated() bool {
	return a.simulate
}

func (a *EmailAdapter) Send(ctx context.Context, subject *models.Subject, step RenderedStep) (*SendResult, error) {
	if subject.Email == "" {
		return nil, Permanent(fmt.Errorf("subject %s has no email address", subject.ID))
	}
	if a.simulate {
		slog.Info("EmailAdapter.Send: simulated delivery", "to", subject.Email, "subject", step.Subject)
		return &SendResult{}, nil
	}

	msgID := util.GenerateRandomHex(16)
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", a.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", subject.Email)
	fmt.Fprintf(&b, "Subject: %s\r\n", step.Subject)
	fmt.Fprintf(&b, "Message-ID: <%s@salesloop>\r\n", msgID)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(step.Body)

	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)
	var auth smtp.Auth
	if a.cfg.Username != "" {
		auth = smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.Host)
	}

	if err := a.sendMail(addr, auth, a.cfg.From, []string{subject.Email}, []byte(b.String())); err != nil {
		slog.Error("EmailAdapter.Send failed", "to", subject.Email, "error", err)
		return nil, classifySMTPError(err)
	}
	slog.Debug("EmailAdapter.Send delivered", "to", subject.Email, "messageID", msgID)
	return &SendResult{ExternalID: msgID}, nil
}

// classifySMTPError maps SMTP reply codes onto retryability: 5xx replies are
// hard bounces, everything else (4xx, connection errors) is transient.
func classifySMTPError(err error) error {
	if tpErr, ok := err.(*textproto.Error); ok && tpErr.Code >= 500 {
		return Permanent(fmt.Errorf("smtp rejected message: %w", err))
	}
	return Transient(fmt.Errorf("smtp delivery failed: %w", err))
}
