package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/opsrelay/opsrelay/internal/alert"
	"github.com/opsrelay/opsrelay/internal/config"
)

// MailTransport abstracts the outbound mail hop so the email channel works
// without a real SMTP server. The default transport only logs; SMTPTransport
// does real delivery.
type MailTransport interface {
	Send(from string, to []string, subject, body string) error
}

// Email formats alerts as plain-text mail and hands them to a MailTransport.
type Email struct {
	name      string
	from      string
	to        []string
	transport MailTransport
}

func newEmail(cfg config.ChannelConfig) (*Email, error) {
	from := cfg.Options["from"]
	to := splitList(cfg.Options["to"])
	if from == "" || len(to) == 0 {
		return nil, fmt.Errorf("email requires from and to")
	}

	var transport MailTransport = logTransport{}
	if host := cfg.Options["smtp_host"]; host != "" {
		port := 587
		if raw := cfg.Options["smtp_port"]; raw != "" {
			p, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("email smtp_port %q: %w", raw, err)
			}
			port = p
		}
		transport = &SMTPTransport{
			dialer: gomail.NewDialer(host, port, cfg.Options["username"], cfg.Options["password"]),
		}
	}

	return &Email{name: cfg.Name, from: from, to: to, transport: transport}, nil
}

// NewEmailWithTransport builds an email channel around a caller-supplied
// transport. Used by tests and by embedders that already have a mail stack.
func NewEmailWithTransport(name, from string, to []string, t MailTransport) *Email {
	return &Email{name: name, from: from, to: to, transport: t}
}

func (e *Email) Name() string { return e.name }
func (e *Email) Kind() string { return KindEmail }

func (e *Email) Send(_ context.Context, a *alert.Alert) error {
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(a.Severity.String()), a.Title)
	body := fmt.Sprintf("%s\n\nSource: %s\nSeverity: %s\nTime: %s\n",
		a.Message, a.Source, a.Severity, a.Timestamp.Format("2006-01-02 15:04:05"))
	if len(a.Tags) > 0 {
		body += "Tags: " + strings.Join(a.Tags, ", ") + "\n"
	}
	return e.transport.Send(e.from, e.to, subject, body)
}

// logTransport is the stub default: it records the would-be mail and reports
// success.
type logTransport struct{}

func (logTransport) Send(from string, to []string, subject, _ string) error {
	slog.Info("email transport not configured, logging alert mail",
		"from", from, "to", strings.Join(to, ","), "subject", subject)
	return nil
}

// SMTPTransport delivers mail through an SMTP relay via gomail.
type SMTPTransport struct {
	dialer *gomail.Dialer
}

func (t *SMTPTransport) Send(from string, to []string, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	return t.dialer.DialAndSend(m)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
