// Package mail dispatches summary emails over SMTP with implicit TLS.
package mail

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/voxmail/voxmail/internal/metrics"
)

// Config contains SMTP configuration
type Config struct {
	Server        string
	Port          int
	Username      string
	Password      string
	DefaultSender string
}

// Message is one outgoing email. From is always the configured default
// sender; ReplyTo carries the requesting user's address so replies reach
// them instead of the service account.
type Message struct {
	ReplyTo    string
	Recipients []string
	Subject    string
	Body       string
}

// Dialer sends messages through one SMTP server
type Dialer struct {
	config  Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewDialer creates a Dialer
func NewDialer(cfg Config, m *metrics.Metrics, logger *slog.Logger) (*Dialer, error) {
	if cfg.Server == "" {
		return nil, fmt.Errorf("SMTP server cannot be empty")
	}
	if cfg.DefaultSender == "" {
		return nil, fmt.Errorf("default sender cannot be empty")
	}
	if cfg.Port <= 0 {
		cfg.Port = 465
	}

	return &Dialer{
		config:  cfg,
		metrics: m,
		logger:  logger,
	}, nil
}

// Send assembles and dispatches one message
func (d *Dialer) Send(msg Message) error {
	if len(msg.Recipients) == 0 {
		return fmt.Errorf("message has no recipients")
	}

	if err := d.send(msg); err != nil {
		d.metrics.RecordEmailFailed()
		return err
	}

	d.metrics.RecordEmailSent()
	d.logger.Info("Email sent",
		slog.Int("recipients", len(msg.Recipients)),
		slog.String("subject", msg.Subject),
	)

	return nil
}

func (d *Dialer) send(msg Message) error {
	addr := net.JoinHostPort(d.config.Server, strconv.Itoa(d.config.Port))

	// Implicit TLS: the connection is encrypted from the first byte,
	// unlike STARTTLS on port 587.
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: d.config.Server})
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}

	client, err := smtp.NewClient(conn, d.config.Server)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	auth := smtp.PlainAuth("", d.config.Username, d.config.Password, d.config.Server)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}

	if err := client.Mail(d.config.DefaultSender); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	for _, recipient := range msg.Recipients {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("failed to add recipient %s: %w", recipient, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open message body: %w", err)
	}

	if _, err := writer.Write(d.assemble(msg)); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write message body: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish message body: %w", err)
	}

	return client.Quit()
}

// assemble renders the RFC 822 message
func (d *Dialer) assemble(msg Message) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", d.config.DefaultSender)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.Recipients, ", "))
	// Q-encode the subject so accented French text survives the 7-bit
	// header path; ASCII subjects pass through unchanged.
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	if msg.ReplyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", msg.ReplyTo)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	return []byte(b.String())
}
