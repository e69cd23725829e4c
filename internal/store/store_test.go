package store

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(Config{DailyLimit: 5}, slog.Default())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func TestGetOrCreate(t *testing.T) {
	s := newTestStore(t)

	user, err := s.GetOrCreate("user@example.com", "Test User")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	if user.ID == "" {
		t.Error("Expected generated user ID")
	}
	if user.Email != "user@example.com" {
		t.Errorf("Unexpected email: %s", user.Email)
	}
	if user.RequestCount != 0 {
		t.Errorf("Expected zero request count, got %d", user.RequestCount)
	}

	// Second call returns the same account.
	again, err := s.GetOrCreate("user@example.com", "Other Name")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if again.ID != user.ID {
		t.Errorf("Expected same user ID, got %s and %s", user.ID, again.ID)
	}
	if again.FullName != "Test User" {
		t.Errorf("Expected original name to survive, got %s", again.FullName)
	}
}

func TestConsumeQuota(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetOrCreate("user@example.com", "Test User"); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	for i := 5; i > 0; i-- {
		remaining, err := s.Consume("user@example.com")
		if err != nil {
			t.Fatalf("Consume %d failed: %v", 6-i, err)
		}
		if remaining != i-1 {
			t.Errorf("Expected %d remaining, got %d", i-1, remaining)
		}
	}

	if _, err := s.Consume("user@example.com"); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("Expected ErrQuotaExceeded, got %v", err)
	}
}

func TestRefund(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetOrCreate("user@example.com", "Test User"); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	if _, err := s.Consume("user@example.com"); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}

	if err := s.Refund("user@example.com"); err != nil {
		t.Fatalf("Refund failed: %v", err)
	}

	remaining, err := s.Remaining("user@example.com")
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining != 5 {
		t.Errorf("Expected full quota after refund, got %d", remaining)
	}

	// Refund never drives the count negative.
	if err := s.Refund("user@example.com"); err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	remaining, _ = s.Remaining("user@example.com")
	if remaining != 5 {
		t.Errorf("Expected quota capped at limit, got %d", remaining)
	}
}

func TestDailyReset(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetOrCreate("user@example.com", "Test User"); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	base := time.Now()
	s.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		if _, err := s.Consume("user@example.com"); err != nil {
			t.Fatalf("Consume failed: %v", err)
		}
	}
	if _, err := s.Consume("user@example.com"); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Expected exhausted quota, got %v", err)
	}

	// Same day: counts survive.
	s.now = func() time.Time { return base.Add(12 * time.Hour) }
	if _, err := s.Consume("user@example.com"); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("Expected same-day counts to survive, got %v", err)
	}

	// A day later the count resets.
	s.now = func() time.Time { return base.Add(25 * time.Hour) }
	remaining, err := s.Consume("user@example.com")
	if err != nil {
		t.Fatalf("Expected reset quota, got %v", err)
	}
	if remaining != 4 {
		t.Errorf("Expected 4 remaining after reset, got %d", remaining)
	}
}

func TestConsumeUnknownUser(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Consume("nobody@example.com"); err == nil {
		t.Error("Expected error for unknown user")
	}
}

func TestOpenRequiresLimit(t *testing.T) {
	if _, err := Open(Config{}, slog.Default()); err == nil {
		t.Error("Expected error for missing daily limit")
	}
}
