package notification

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stanstork/safeme-sync/internal/config"
)

// SMTPSender delivers alert emails as plain text over SMTP.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewSMTPSender(cfg config.EmailConfig, logger zerolog.Logger) (*SMTPSender, error) {
	host := strings.TrimSpace(cfg.SMTPHost)
	from := strings.TrimSpace(cfg.From)
	if host == "" {
		return nil, fmt.Errorf("smtp_host is required for smtp sender")
	}
	if from == "" {
		return nil, fmt.Errorf("from is required for smtp sender")
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &SMTPSender{
		host:     host,
		port:     port,
		username: strings.TrimSpace(cfg.Username),
		password: cfg.Password,
		from:     from,
		timeout:  timeout,
		logger:   logger.With().Str("sender", "smtp").Logger(),
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg EmailMessage) error {
	if err := s.send(ctx, msg); err != nil {
		return &EmailDeliveryError{ToEmail: msg.ToEmail, Err: err}
	}
	s.logger.Debug().Str("to_email", msg.ToEmail).Msg("email accepted by smtp server")
	return nil
}

func (s *SMTPSender) send(ctx context.Context, msg EmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return err
		}
	}
	if s.username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
			return err
		}
	}
	if err := c.Mail(s.from); err != nil {
		return err
	}
	if err := c.Rcpt(msg.ToEmail); err != nil {
		return err
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(s.render(msg)); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (s *SMTPSender) render(msg EmailMessage) []byte {
	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n",
		s.from, msg.ToEmail, msg.Subject)

	body := strings.Builder{}
	body.WriteString(fmt.Sprintf("Dear %s,\n\n", msg.ContactName))
	body.WriteString(msg.Body)
	body.WriteString("\n")

	return []byte(headers + strings.ReplaceAll(body.String(), "\n", "\r\n"))
}

func (s *SMTPSender) String() string {
	return fmt.Sprintf("SMTPSender(%s:%d)", s.host, s.port)
}
