package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"
)

func newTestRegistry() *JobRegistry {
	return NewJobRegistry(sharedMetrics(), slog.Default())
}

func collectWhenDone(t *testing.T, r *JobRegistry, sessionID string, kind JobKind) JobStatus {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		status := r.Collect(sessionID, kind)
		if status.Status != "processing" {
			return status
		}
		select {
		case <-deadline:
			t.Fatal("Timed out waiting for job")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestJobLifecycle(t *testing.T) {
	r := newTestRegistry()

	release := make(chan struct{})
	err := r.Begin(context.Background(), "s1", JobTranscription, func(ctx context.Context) (string, error) {
		<-release
		return "result", nil
	})
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	if status := r.Collect("s1", JobTranscription); status.Status != "processing" {
		t.Errorf("Expected processing, got %s", status.Status)
	}

	close(release)

	status := collectWhenDone(t, r, "s1", JobTranscription)
	if status.Status != "completed" {
		t.Errorf("Expected completed, got %s", status.Status)
	}
	if status.Payload != "result" {
		t.Errorf("Expected payload, got %q", status.Payload)
	}

	// A collected job is gone.
	if status := r.Collect("s1", JobTranscription); status.Status != "not_found" {
		t.Errorf("Expected not_found after collection, got %s", status.Status)
	}
}

func TestJobFailure(t *testing.T) {
	r := newTestRegistry()

	err := r.Begin(context.Background(), "s1", JobSummary, func(ctx context.Context) (string, error) {
		return "", fmt.Errorf("generation failed")
	})
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	status := collectWhenDone(t, r, "s1", JobSummary)
	if status.Status != "error" {
		t.Errorf("Expected error, got %s", status.Status)
	}
	if status.Error != "generation failed" {
		t.Errorf("Expected verbatim error, got %q", status.Error)
	}
}

func TestDuplicateJobRejected(t *testing.T) {
	r := newTestRegistry()

	release := make(chan struct{})
	defer close(release)

	err := r.Begin(context.Background(), "s1", JobTranscription, func(ctx context.Context) (string, error) {
		<-release
		return "", nil
	})
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	err = r.Begin(context.Background(), "s1", JobTranscription, func(ctx context.Context) (string, error) {
		return "", nil
	})
	if !errors.Is(err, ErrJobInFlight) {
		t.Errorf("Expected ErrJobInFlight, got %v", err)
	}

	// A different kind for the same session is fine.
	err = r.Begin(context.Background(), "s1", JobSummary, func(ctx context.Context) (string, error) {
		return "", nil
	})
	if err != nil {
		t.Errorf("Expected summary job to start, got %v", err)
	}

	// Another session is independent.
	err = r.Begin(context.Background(), "s2", JobTranscription, func(ctx context.Context) (string, error) {
		return "", nil
	})
	if err != nil {
		t.Errorf("Expected other session's job to start, got %v", err)
	}
}

func TestFinishedUncollectedJobIsReplaced(t *testing.T) {
	r := newTestRegistry()

	err := r.Begin(context.Background(), "s1", JobTranscription, func(ctx context.Context) (string, error) {
		return "first", nil
	})
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	// Wait for the first job to finish without collecting it.
	deadline := time.After(5 * time.Second)
	for {
		if err := r.Begin(context.Background(), "s1", JobTranscription, func(ctx context.Context) (string, error) {
			return "second", nil
		}); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Timed out waiting for first job to finish")
		case <-time.After(time.Millisecond):
		}
	}

	status := collectWhenDone(t, r, "s1", JobTranscription)
	if status.Payload != "second" {
		t.Errorf("Expected replacement job's payload, got %q", status.Payload)
	}
}
