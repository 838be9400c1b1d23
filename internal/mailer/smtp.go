package mailer

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail"
	"github.com/rs/zerolog"
)

// Message is a fully rendered email ready for the wire.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Transport delivers a rendered message. Implementations must treat every
// call as addressed to a single recipient.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers mail over SMTP using go-mail. The plain-text part is
// set as the primary body with the HTML part as an alternative so older
// clients still render something readable.
type SMTPSender struct {
	Host               string
	Port               int
	From               string
	User               string
	Pass               string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool

	Log zerolog.Logger
}

// NewSMTPSender builds a sender with TLS negotiation left to go-mail.
func NewSMTPSender(host string, port int, from, user, pass, tlsMode string, log zerolog.Logger) *SMTPSender {
	if tlsMode == "" {
		tlsMode = "auto"
	}
	return &SMTPSender{
		Host:    host,
		Port:    port,
		From:    from,
		User:    user,
		Pass:    pass,
		TLSMode: tlsMode,
		Log:     log,
	}
}

// Send dials the SMTP server and delivers the message. The context is checked
// before dialing; go-mail itself does not support cancellation mid-send.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)

	if msg.TextBody != "" {
		m.SetBody("text/plain", msg.TextBody)
	}
	if msg.HTMLBody != "" {
		if msg.TextBody == "" {
			m.SetBody("text/html", msg.HTMLBody)
		} else {
			m.AddAlternative("text/html", msg.HTMLBody)
		}
	}

	d := mail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	d.TLSConfig = &tls.Config{
		ServerName:         s.Host,
		InsecureSkipVerify: s.InsecureSkipVerify,
	}

	switch s.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.TLSConfig = &tls.Config{InsecureSkipVerify: s.InsecureSkipVerify}
	default:
		// "auto"/"starttls": go-mail negotiates STARTTLS when offered.
	}

	if err := d.DialAndSend(m); err != nil {
		s.Log.Error().Err(err).
			Str("host", s.Host).
			Int("port", s.Port).
			Str("tls_mode", s.TLSMode).
			Msg("smtp send failed")
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
