package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/switchboard/internal/failure"
)

// SMTPConfig configures email delivery.
type SMTPConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`

	// TLSMode is "starttls" (default), "tls" for implicit TLS, or "none".
	TLSMode string `yaml:"tls_mode"`
}

// SMTPNotifier sends notifications as plain-text email.
type SMTPNotifier struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

var _ Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier creates an SMTP notifier.
func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" || cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("notify: smtp host, from and to are required")
	}
	if cfg.TLSMode == "" {
		cfg.TLSMode = "starttls"
	}
	if cfg.Port == 0 {
		cfg.Port = 587
		if cfg.TLSMode == "tls" {
			cfg.Port = 465
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPNotifier{cfg: cfg, logger: logger.With("component", "notify-smtp")}, nil
}

// Notify sends one email.
func (s *SMTPNotifier) Notify(ctx context.Context, n Notification) error {
	msg, err := s.buildMessage(n)
	if err != nil {
		return failure.New(failure.KindMalformedInput, "notify", "smtp", err)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	tlsConfig := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}

	dialer := &net.Dialer{}
	var conn net.Conn
	if s.cfg.TLSMode == "tls" {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return failure.FromTransport("notify", "smtp", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return failure.FromTransport("notify", "smtp", err)
	}
	defer client.Close()

	if s.cfg.TLSMode == "starttls" {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return failure.New(failure.KindDownstreamProvider, "notify", "smtp", fmt.Errorf("server does not support STARTTLS"))
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return failure.FromTransport("notify", "smtp", err)
		}
	}
	if s.cfg.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return failure.New(failure.KindAuth, "notify", "smtp", err)
		}
	}
	if err := client.Mail(s.cfg.From); err != nil {
		return failure.New(failure.KindDownstreamProvider, "notify", "smtp", err)
	}
	for _, rcpt := range s.cfg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return failure.New(failure.KindDownstreamProvider, "notify", "smtp", fmt.Errorf("rcpt %s: %w", rcpt, err))
		}
	}
	w, err := client.Data()
	if err != nil {
		return failure.FromTransport("notify", "smtp", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return failure.FromTransport("notify", "smtp", err)
	}
	if err := w.Close(); err != nil {
		return failure.FromTransport("notify", "smtp", err)
	}
	if err := client.Quit(); err != nil {
		s.logger.Debug("smtp quit failed", "error", err)
	}
	return nil
}

func (s *SMTPNotifier) buildMessage(n Notification) ([]byte, error) {
	var b bytes.Buffer
	headers := [][2]string{
		{"From", s.cfg.From},
		{"To", strings.Join(s.cfg.To, ", ")},
		{"Subject", mime.QEncoding.Encode("utf-8", sanitizeHeader(n.Subject))},
		{"Date", n.CreatedAt.Format(time.RFC1123Z)},
		{"Message-ID", fmt.Sprintf("<%s@switchboard>", n.ID)},
		{"MIME-Version", "1.0"},
		{"Content-Type", `text/plain; charset="utf-8"`},
		{"Content-Transfer-Encoding", "quoted-printable"},
		{"X-Switchboard-Call-ID", sanitizeHeader(n.CallID)},
	}
	for _, h := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h[0], h[1])
	}
	b.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&b)
	if _, err := qp.Write([]byte(n.Body)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
