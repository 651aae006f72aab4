package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
)

// Mailer sends plain-text notifications.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPMailer struct {
	host string
	port string
	user string
	pass string
	from string
	send func(e *email.Email, addr string, a smtp.Auth) error
}

func NewSMTPMailer(host, port, user, pass, from string) *SMTPMailer {
	return &SMTPMailer{
		host: host, port: port, user: user, pass: pass, from: from,
		send: func(e *email.Email, addr string, a smtp.Auth) error { return e.Send(addr, a) },
	}
}

// Send returns when the server accepts the message or ctx is done. The SMTP
// exchange itself has no deadline and finishes in the background.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%s", m.host, m.port)
	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}

	e := email.NewEmail()
	e.From = m.from
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body)

	done := make(chan error, 1)
	go func() { done <- m.send(e, addr, auth) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("send mail to %s: %w", to, ctx.Err())
	}
}

// NopMailer drops every message.
type NopMailer struct{}

func (NopMailer) Send(context.Context, string, string, string) error { return nil }

// ReferrerWelcome renders the message sent to a newly created referrer.
// password is empty when an existing account was converted.
func ReferrerWelcome(name, loginEmail, password, promoCode, link string) (subject, body string) {
	subject = "Your referral account is ready"
	if password == "" {
		body = fmt.Sprintf(
			"Hi %s,\n\nYour existing account (%s) is now a referral partner.\nPromo code: %s\nReferral link: %s\n",
			name, loginEmail, promoCode, link)
		return subject, body
	}
	body = fmt.Sprintf(
		"Hi %s,\n\nA referral account was created for you.\nEmail: %s\nPassword: %s\nPromo code: %s\nReferral link: %s\n\nPlease change your password after signing in.\n",
		name, loginEmail, password, promoCode, link)
	return subject, body
}
