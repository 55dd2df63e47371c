package utils

import (
	"errors"

	"gopkg.in/gomail.v2"
)

var ErrMailDisabled = errors.New("mail is not configured")

// Mailer sends HTML e-mail through an SMTP relay.
type Mailer struct {
	from   string
	dialer *gomail.Dialer
}

// NewMailer returns a Mailer that authenticates as user. An empty host yields
// a Mailer whose Send always returns ErrMailDisabled.
func NewMailer(host string, port int, user, pass string) *Mailer {
	if host == "" {
		return &Mailer{}
	}
	return &Mailer{
		from:   user,
		dialer: gomail.NewDialer(host, port, user, pass),
	}
}

// Enabled reports whether Send can reach a relay.
func (m *Mailer) Enabled() bool {
	return m != nil && m.dialer != nil
}

func (m *Mailer) message(to, subject, body string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)
	return msg
}

func (m *Mailer) Send(to, subject, body string) error {
	if !m.Enabled() {
		return ErrMailDisabled
	}
	return m.dialer.DialAndSend(m.message(to, subject, body))
}
