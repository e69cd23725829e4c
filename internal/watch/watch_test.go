package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxmail/voxmail/internal/audio"
)

func TestWatcherSubmitsNewAudioFile(t *testing.T) {
	dir := t.TempDir()

	handled := make(chan *audio.Payload, 1)
	handler := func(ctx context.Context, payload *audio.Payload) error {
		handled <- payload
		return nil
	}

	w, err := New(Config{Dir: dir, SettleDelay: 10 * time.Millisecond}, handler, slog.Default())
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	// Give the watcher time to register before creating the file.
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(dir, "memo.wav")
	if err := os.WriteFile(path, []byte("fake audio"), 0644); err != nil {
		t.Fatalf("Failed to write audio file: %v", err)
	}

	select {
	case payload := <-handled:
		if payload.Size() != 10 {
			t.Errorf("Expected 10-byte payload, got %d", payload.Size())
		}
		if payload.Filename != audio.UploadFilename {
			t.Errorf("Expected filename %s, got %s", audio.UploadFilename, payload.Filename)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for handler")
	}

	cancel()
	<-done
}

func TestWatcherIgnoresNonAudioFiles(t *testing.T) {
	dir := t.TempDir()

	var calls atomic.Int32
	handler := func(ctx context.Context, payload *audio.Payload) error {
		calls.Add(1)
		return nil
	}

	w, err := New(Config{Dir: dir, SettleDelay: 10 * time.Millisecond}, handler, slog.Default())
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go w.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("text"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if calls.Load() != 0 {
		t.Error("Expected non-audio file to be ignored")
	}
}

func TestNewRequiresDir(t *testing.T) {
	handler := func(ctx context.Context, payload *audio.Payload) error { return nil }
	if _, err := New(Config{}, handler, slog.Default()); err == nil {
		t.Error("Expected error for empty watch directory")
	}
}
