// Package watch runs the workflow for audio files dropped into a directory.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/voxmail/voxmail/internal/audio"
)

// DefaultSettleDelay is how long a new file is left alone before it is
// read, so a writer still appending to it is not truncated mid-copy.
const DefaultSettleDelay = 500 * time.Millisecond

// Handler processes one settled audio payload
type Handler func(ctx context.Context, payload *audio.Payload) error

// Config contains directory watcher configuration
type Config struct {
	// Dir is the directory to watch for new audio files
	Dir string

	// SettleDelay before reading a newly created file
	SettleDelay time.Duration
}

// Watcher submits audio files appearing in a directory. One workflow runs
// at a time; files arriving while one is active are skipped and logged,
// matching the single-session model of the backend.
type Watcher struct {
	dir     string
	settle  time.Duration
	handler Handler
	logger  *slog.Logger

	busy chan struct{}
}

// New creates a Watcher for the given directory
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch directory cannot be empty")
	}

	settle := cfg.SettleDelay
	if settle <= 0 {
		settle = DefaultSettleDelay
	}

	return &Watcher{
		dir:     cfg.Dir,
		settle:  settle,
		handler: handler,
		logger:  logger,
		busy:    make(chan struct{}, 1),
	}, nil
}

// Run watches the directory until the context is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.logger.Info("Watching for audio files",
		slog.String("dir", w.dir),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !audio.AllowedFile(event.Name) {
				w.logger.Debug("Ignoring non-audio file",
					slog.String("file", filepath.Base(event.Name)),
				)
				continue
			}
			w.dispatch(ctx, event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error",
				slog.String("error", err.Error()),
			)
		}
	}
}

// dispatch runs the workflow for one file unless one is already active
func (w *Watcher) dispatch(ctx context.Context, path string) {
	select {
	case w.busy <- struct{}{}:
	default:
		w.logger.Warn("Workflow already active, skipping file",
			slog.String("file", filepath.Base(path)),
		)
		return
	}

	go func() {
		defer func() { <-w.busy }()

		select {
		case <-time.After(w.settle):
		case <-ctx.Done():
			return
		}

		payload, err := audio.FromFile(path)
		if err != nil {
			w.logger.Error("Failed to read audio file",
				slog.String("file", filepath.Base(path)),
				slog.String("error", err.Error()),
			)
			return
		}

		w.logger.Info("Submitting audio file",
			slog.String("file", filepath.Base(path)),
			slog.Int("bytes", payload.Size()),
		)

		if err := w.handler(ctx, payload); err != nil {
			w.logger.Error("Workflow failed",
				slog.String("file", filepath.Base(path)),
				slog.String("error", err.Error()),
			)
		}
	}()
}
