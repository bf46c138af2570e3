package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// ErrSendFailed wraps delivery failures.
var ErrSendFailed = errors.New("mail delivery failed")

// Mailer sends a plain-text message to one recipient.
type Mailer interface {
	SendMail(ctx context.Context, to, subject, body string) error
}

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// SMTPMailer delivers through an SMTP relay with PLAIN auth when a username
// is configured.
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now  func() time.Time
}

// NewSMTPMailer validates cfg and returns a mailer.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.Port == "" {
		return nil, errors.New("smtp host and port are required")
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail, now: time.Now}, nil
}

func (m *SMTPMailer) SendMail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := m.compose(to, subject, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := net.JoinHostPort(m.cfg.Host, m.cfg.Port)
	if err := m.send(addr, auth, m.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

func (m *SMTPMailer) compose(to, subject, body string) ([]byte, error) {
	rcpt, err := mail.ParseAddress(to)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}

	var h mail.Header
	h.SetAddressList("From", []*mail.Address{{Name: m.cfg.FromName, Address: m.cfg.From}})
	h.SetAddressList("To", []*mail.Address{rcpt})
	h.SetSubject(subject)
	h.SetDate(m.now())
	h.SetMessageID(uuid.NewString() + "@" + domainOf(m.cfg.From))
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func domainOf(address string) string {
	if i := strings.LastIndexByte(address, '@'); i >= 0 && i < len(address)-1 {
		return address[i+1:]
	}
	return "localhost"
}

// LogMailer logs messages instead of sending them. It stands in when no
// relay is configured.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) SendMail(ctx context.Context, to, subject, _ string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "smtp not configured, mail dropped", "to", to, "subject", subject)
	return nil
}
