// internal/notify/email.go
// Plain-text SMTP delivery with optional STARTTLS

package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/aspnmy/recon_reporter/internal/core"
)

const emailSubject = "Port scan report"

// EmailNotifier mails reports through an SMTP relay
type EmailNotifier struct {
	cfg     core.EmailConfig
	timeout time.Duration
}

// NewEmailNotifier creates an SMTP notifier
func NewEmailNotifier(cfg core.EmailConfig, timeout time.Duration) *EmailNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EmailNotifier{cfg: cfg, timeout: timeout}
}

// Kind returns notifier kind
func (e *EmailNotifier) Kind() string {
	return "email"
}

// Deliver sends report as a text/plain message to every recipient
func (e *EmailNotifier) Deliver(ctx context.Context, report string) error {
	if e.cfg.Host == "" || e.cfg.From == "" || len(e.cfg.To) == 0 {
		return fmt.Errorf("%w: %w: smtp host, sender or recipients missing", ErrDeliveryFailed, ErrNotConfigured)
	}

	if err := e.send(ctx, buildMessage(e.cfg.From, e.cfg.To, emailSubject, report)); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

func (e *EmailNotifier) send(ctx context.Context, msg string) error {
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))

	dialer := &net.Dialer{Timeout: e.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	deadline := time.Now().Add(e.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, e.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start SMTP session: %w", err)
	}
	defer c.Close()

	if e.cfg.StartTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return fmt.Errorf("server does not support STARTTLS")
		}
		if err := c.StartTLS(&tls.Config{ServerName: e.cfg.Host}); err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	if e.cfg.User != "" {
		auth := smtp.PlainAuth("", e.cfg.User, e.cfg.Pass, e.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := c.Mail(e.cfg.From); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	for _, rcpt := range e.cfg.To {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO failed for %s: %w", rcpt, err)
		}
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close message: %w", err)
	}

	return c.Quit()
}

// buildMessage constructs an RFC 5322 plain-text message
func buildMessage(from string, to []string, subject, body string) string {
	headers := []string{
		"From: " + from,
		"To: " + strings.Join(to, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
	}
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\n", "\r\n")
	return strings.Join(headers, "\r\n") + "\r\n\r\n" + body + "\r\n"
}
