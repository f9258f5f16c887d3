package account

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"gopkg.in/gomail.v2"
)

// SMTPMailer delivers messages through an SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	logger Logger
}

var _ Mailer = (*SMTPMailer)(nil)

func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
		logger: defLogger{},
	}
}

func (s *SMTPMailer) WithLogger(logger Logger) *SMTPMailer {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Send implements Mailer.
func (s *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) (*DeliveryReceipt, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		s.logger.Error("SMTPMailer failed to send %q to %s: %v", subject, to, err)
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to send email")
	}

	return &DeliveryReceipt{
		To:      to,
		Subject: subject,
		SentAt:  time.Now(),
	}, nil
}
