package events

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"portal-api/internal/config"
	"portal-api/internal/metrics"
	"portal-api/internal/util"
)

// notifyAttempts bounds delivery retries. A transient SMTP failure gets one
// retry before the attempt is recorded as failed.
const notifyAttempts = 2

// NotificationResult is what a delivery attempt leaves behind for the
// notification log.
type NotificationResult struct {
	Status  string
	Retries int
	Error   string
}

// Notifier sends booking confirmations over SMTP. With no host configured
// every send degrades to a structured log line, so environments without a
// mail relay still record the attempt.
type Notifier struct {
	cfg config.NotifyConfig
}

func NewNotifier(cfg config.NotifyConfig) *Notifier {
	if cfg.SMTPHost == "" {
		util.Info("notifier running in log-only mode")
	} else {
		util.Info("notifier initialized",
			util.String("host", cfg.SMTPHost), util.Int("port", cfg.SMTPPort))
	}
	return &Notifier{cfg: cfg}
}

// Configured reports whether an outbound relay is set.
func (n *Notifier) Configured() bool {
	return n.cfg.SMTPHost != ""
}

// Send delivers one message. Failures surface through the result status,
// never as an error, so the flow that triggered the notification always
// completes.
func (n *Notifier) Send(ctx context.Context, recipient, subject, body string) NotificationResult {
	if !n.Configured() {
		util.Info("notification (log-only)",
			util.String("recipient", recipient), util.String("subject", subject))
		metrics.NotificationDeliveries.WithLabelValues(StatusLoggedFallback).Inc()
		return NotificationResult{Status: StatusLoggedFallback}
	}

	var lastErr error
	for attempt := 0; attempt < notifyAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		if err := n.deliver(recipient, subject, body); err != nil {
			lastErr = err
			util.Warn("notification delivery attempt failed",
				util.String("recipient", recipient),
				util.Int("attempt", attempt+1), util.ErrorField(err))
			continue
		}
		metrics.NotificationDeliveries.WithLabelValues(StatusSent).Inc()
		return NotificationResult{Status: StatusSent, Retries: attempt}
	}

	metrics.NotificationDeliveries.WithLabelValues(StatusFailed).Inc()
	result := NotificationResult{Status: StatusFailed, Retries: notifyAttempts - 1}
	if lastErr != nil {
		result.Error = lastErr.Error()
	}
	return result
}

func (n *Notifier) deliver(recipient, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.SMTPHost, n.cfg.SMTPPort)
	conn, err := net.DialTimeout("tcp", addr, n.timeout())
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	_ = conn.SetDeadline(time.Now().Add(n.timeout()))

	client, err := smtp.NewClient(conn, n.cfg.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.cfg.SMTPHost}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if n.cfg.Username != "" {
		auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := wc.Write([]byte(buildMessage(n.cfg.From, recipient, subject, body))); err != nil {
		wc.Close()
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp finish body: %w", err)
	}
	return client.Quit()
}

func (n *Notifier) timeout() time.Duration {
	if n.cfg.Timeout > 0 {
		return n.cfg.Timeout
	}
	return 8 * time.Second
}

func buildMessage(from, to, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return b.String()
}
