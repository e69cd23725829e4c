// Package store persists user accounts and their daily upload quota.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
)

// ErrQuotaExceeded is returned when a user has spent the daily quota
var ErrQuotaExceeded = errors.New("daily request quota exceeded")

const userPrefix = "user:"

// User is one account, keyed by email
type User struct {
	ID              string    `json:"id"`
	FullName        string    `json:"full_name"`
	Email           string    `json:"email"`
	RequestCount    int       `json:"request_count"`
	LastRequestDate time.Time `json:"last_request_date"`
}

// Config contains store configuration
type Config struct {
	// Path of the badger database directory; empty means in-memory
	Path string

	// DailyLimit of transcription requests per user
	DailyLimit int
}

// Store is a badger-backed user store
type Store struct {
	db     *badger.DB
	limit  int
	logger *slog.Logger

	// now is replaced in tests to exercise the daily reset
	now func() time.Time
}

// Open opens the user database
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.DailyLimit <= 0 {
		return nil, fmt.Errorf("daily limit must be positive, got %d", cfg.DailyLimit)
	}

	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open user database: %w", err)
	}

	return &Store{
		db:     db,
		limit:  cfg.DailyLimit,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// GetOrCreate returns the user for an email, creating the account on first
// login.
func (s *Store) GetOrCreate(email, fullName string) (*User, error) {
	var user *User

	err := s.db.Update(func(txn *badger.Txn) error {
		existing, err := getUser(txn, email)
		if err == nil {
			user = existing
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		user = &User{
			ID:       uuid.New().String(),
			FullName: fullName,
			Email:    email,
		}

		s.logger.Info("Creating user",
			slog.String("email", email),
		)

		return putUser(txn, user)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", email, err)
	}

	return user, nil
}

// Consume spends one request from the user's daily quota and returns the
// remaining count. Counts older than a day are reset first. When the quota
// is already spent, Consume fails with ErrQuotaExceeded and the count is
// untouched.
func (s *Store) Consume(email string) (int, error) {
	remaining := 0

	err := s.db.Update(func(txn *badger.Txn) error {
		user, err := getUser(txn, email)
		if err != nil {
			return err
		}

		now := s.now()
		if now.Sub(user.LastRequestDate) >= 24*time.Hour {
			user.RequestCount = 0
		}

		if user.RequestCount >= s.limit {
			return ErrQuotaExceeded
		}

		user.RequestCount++
		user.LastRequestDate = now
		remaining = s.limit - user.RequestCount

		return putUser(txn, user)
	})
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			return 0, ErrQuotaExceeded
		}
		return 0, fmt.Errorf("failed to update quota for %s: %w", email, err)
	}

	return remaining, nil
}

// Refund returns one request to the user's quota after a failed submission
func (s *Store) Refund(email string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		user, err := getUser(txn, email)
		if err != nil {
			return err
		}

		if user.RequestCount > 0 {
			user.RequestCount--
		}

		return putUser(txn, user)
	})
	if err != nil {
		return fmt.Errorf("failed to refund quota for %s: %w", email, err)
	}

	return nil
}

// Remaining returns how many requests the user has left today
func (s *Store) Remaining(email string) (int, error) {
	remaining := 0

	err := s.db.View(func(txn *badger.Txn) error {
		user, err := getUser(txn, email)
		if err != nil {
			return err
		}

		count := user.RequestCount
		if s.now().Sub(user.LastRequestDate) >= 24*time.Hour {
			count = 0
		}

		remaining = s.limit - count
		if remaining < 0 {
			remaining = 0
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read quota for %s: %w", email, err)
	}

	return remaining, nil
}

func getUser(txn *badger.Txn, email string) (*User, error) {
	item, err := txn.Get([]byte(userPrefix + email))
	if err != nil {
		return nil, err
	}

	var user User
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &user)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode user record: %w", err)
	}

	return &user, nil
}

func putUser(txn *badger.Txn, user *User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user record: %w", err)
	}
	return txn.Set([]byte(userPrefix+user.Email), data)
}
