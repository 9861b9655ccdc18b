package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"gopkg.in/gomail.v2"

	"github.com/mmynk/splitledger/internal/models"
)

// MailConfig holds SMTP settings for MailEmitter.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// BaseURL is prefixed to notification links in the mail body.
	BaseURL string
}

// MailEmitter sends notifications by email to the recipient's address.
type MailEmitter struct {
	from    string
	baseURL string
	send    func(*gomail.Message) error
}

// NewMailEmitter creates an emitter that dials the SMTP server for every message.
func NewMailEmitter(cfg MailConfig) *MailEmitter {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &MailEmitter{
		from:    cfg.From,
		baseURL: cfg.BaseURL,
		send:    func(m *gomail.Message) error { return d.DialAndSend(m) },
	}
}

// NewMailEmitterWithSender creates an emitter that hands messages to s.
func NewMailEmitterWithSender(from, baseURL string, s gomail.Sender) *MailEmitter {
	return &MailEmitter{
		from:    from,
		baseURL: baseURL,
		send:    func(m *gomail.Message) error { return gomail.Send(s, m) },
	}
}

func (e *MailEmitter) Emit(ctx context.Context, recipient models.User, n models.Notification) error {
	if recipient.Email == "" {
		slog.DebugContext(ctx, "Skipping mail notification: no address", "user_id", recipient.ID)
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", e.from)
	msg.SetHeader("To", recipient.Email)
	msg.SetHeader("Subject", n.Title)
	msg.SetBody("text/html", fmt.Sprintf(`<p>%s</p><p><a href="%s">Open group</a></p>`,
		html.EscapeString(n.Body), html.EscapeString(e.baseURL+n.Link)))

	if err := e.send(msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", recipient.Email, err)
	}
	return nil
}
