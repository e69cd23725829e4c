package mail

import (
	"log/slog"
	"mime"
	"strings"
	"sync"
	"testing"

	"github.com/voxmail/voxmail/internal/metrics"
)

var (
	testMetrics     *metrics.Metrics
	testMetricsOnce sync.Once
)

func sharedMetrics() *metrics.Metrics {
	testMetricsOnce.Do(func() {
		testMetrics = metrics.NewMetrics()
	})
	return testMetrics
}

func newTestDialer(t *testing.T) *Dialer {
	t.Helper()

	d, err := NewDialer(Config{
		Server:        "smtp.example.com",
		Port:          465,
		Username:      "service@example.com",
		Password:      "secret",
		DefaultSender: "service@example.com",
	}, sharedMetrics(), slog.Default())
	if err != nil {
		t.Fatalf("Failed to create dialer: %v", err)
	}

	return d
}

func TestAssembleMessage(t *testing.T) {
	d := newTestDialer(t)

	raw := string(d.assemble(Message{
		ReplyTo:    "user@example.com",
		Recipients: []string{"a@x.com", "b@y.com"},
		Subject:    "Compte rendu de visite",
		Body:       "Bonjour,\n\nVoici le résumé.",
	}))

	headers, body, found := strings.Cut(raw, "\r\n\r\n")
	if !found {
		t.Fatal("Expected blank line between headers and body")
	}

	expectedHeaders := []string{
		"From: service@example.com",
		"To: a@x.com, b@y.com",
		"Subject: Compte rendu de visite",
		"Reply-To: user@example.com",
		"Content-Type: text/plain; charset=utf-8",
	}
	for _, h := range expectedHeaders {
		if !strings.Contains(headers, h) {
			t.Errorf("Expected header %q in %q", h, headers)
		}
	}

	if body != "Bonjour,\n\nVoici le résumé." {
		t.Errorf("Unexpected body: %q", body)
	}
}

func TestAssembleEncodesAccentedSubject(t *testing.T) {
	d := newTestDialer(t)

	raw := string(d.assemble(Message{
		Recipients: []string{"a@x.com"},
		Subject:    "Compte rendu de réunion",
		Body:       "b",
	}))

	var subject string
	for _, line := range strings.Split(raw, "\r\n") {
		if strings.HasPrefix(line, "Subject: ") {
			subject = strings.TrimPrefix(line, "Subject: ")
		}
	}
	if subject == "" {
		t.Fatal("Missing Subject header")
	}
	if !strings.HasPrefix(subject, "=?utf-8?q?") {
		t.Errorf("Expected Q-encoded subject, got %q", subject)
	}

	decoded, err := new(mime.WordDecoder).DecodeHeader(subject)
	if err != nil {
		t.Fatalf("Failed to decode subject: %v", err)
	}
	if decoded != "Compte rendu de réunion" {
		t.Errorf("Expected round-tripped subject, got %q", decoded)
	}
}

func TestAssembleOmitsEmptyReplyTo(t *testing.T) {
	d := newTestDialer(t)

	raw := string(d.assemble(Message{
		Recipients: []string{"a@x.com"},
		Subject:    "s",
		Body:       "b",
	}))

	if strings.Contains(raw, "Reply-To:") {
		t.Error("Expected no Reply-To header for empty address")
	}
}

func TestSendRequiresRecipients(t *testing.T) {
	d := newTestDialer(t)

	if err := d.Send(Message{Subject: "s", Body: "b"}); err == nil {
		t.Error("Expected error for empty recipient list")
	}
}

func TestNewDialerValidation(t *testing.T) {
	if _, err := NewDialer(Config{DefaultSender: "s@x.com"}, sharedMetrics(), slog.Default()); err == nil {
		t.Error("Expected error for missing server")
	}
	if _, err := NewDialer(Config{Server: "smtp.example.com"}, sharedMetrics(), slog.Default()); err == nil {
		t.Error("Expected error for missing default sender")
	}

	d, err := NewDialer(Config{Server: "smtp.example.com", DefaultSender: "s@x.com"}, sharedMetrics(), slog.Default())
	if err != nil {
		t.Fatalf("NewDialer failed: %v", err)
	}
	if d.config.Port != 465 {
		t.Errorf("Expected default port 465, got %d", d.config.Port)
	}
}
