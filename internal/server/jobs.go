package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxmail/voxmail/internal/metrics"
)

// JobKind names the two asynchronous job types
type JobKind string

const (
	JobTranscription JobKind = "transcription"
	JobSummary       JobKind = "summary"
)

// ErrJobInFlight is returned when a session already has a running job of
// the same kind
var ErrJobInFlight = errors.New("a job of this kind is already running")

// job is one background task. payload and err are written once, before
// done is closed.
type job struct {
	done    chan struct{}
	payload string
	err     error
	started time.Time
}

// JobStatus is the wire representation of a job check
type JobStatus struct {
	Status  string `json:"status"`
	Payload string `json:"-"`
	Error   string `json:"error,omitempty"`
}

// JobRegistry tracks at most one running job per (session, kind). Clients
// never hold a job ID: the session cookie identifies "the" pending job, so
// the registry is the server-side half of that contract.
type JobRegistry struct {
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu   sync.Mutex
	jobs map[string]*job
}

// NewJobRegistry creates an empty registry
func NewJobRegistry(m *metrics.Metrics, logger *slog.Logger) *JobRegistry {
	return &JobRegistry{
		metrics: m,
		logger:  logger,
		jobs:    make(map[string]*job),
	}
}

func jobKey(sessionID string, kind JobKind) string {
	return fmt.Sprintf("%s/%s", sessionID, kind)
}

// Begin starts fn in the background for a session. A still-running job of
// the same kind is rejected; a finished but uncollected one is replaced.
func (r *JobRegistry) Begin(ctx context.Context, sessionID string, kind JobKind, fn func(context.Context) (string, error)) error {
	key := jobKey(sessionID, kind)

	r.mu.Lock()
	if existing, ok := r.jobs[key]; ok {
		select {
		case <-existing.done:
		default:
			r.mu.Unlock()
			return ErrJobInFlight
		}
	}

	j := &job{
		done:    make(chan struct{}),
		started: time.Now(),
	}
	r.jobs[key] = j
	r.mu.Unlock()

	r.metrics.RecordJobStarted(string(kind))
	r.logger.Info("Job started",
		slog.String("kind", string(kind)),
		slog.String("session", sessionID),
	)

	go func() {
		payload, err := fn(ctx)

		j.payload = payload
		j.err = err
		close(j.done)

		duration := time.Since(j.started).Seconds()
		if err != nil {
			r.metrics.RecordJobFailed(string(kind), duration)
			r.logger.Error("Job failed",
				slog.String("kind", string(kind)),
				slog.String("session", sessionID),
				slog.String("error", err.Error()),
			)
		} else {
			r.metrics.RecordJobCompleted(string(kind), duration)
			r.logger.Info("Job completed",
				slog.String("kind", string(kind)),
				slog.String("session", sessionID),
				slog.Duration("elapsed", time.Since(j.started)),
			)
		}
	}()

	return nil
}

// Collect reports the state of a session's job. Terminal jobs are removed
// on first collection, so the next check of that kind reports not_found.
func (r *JobRegistry) Collect(sessionID string, kind JobKind) JobStatus {
	key := jobKey(sessionID, kind)

	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[key]
	if !ok {
		return JobStatus{Status: "not_found"}
	}

	select {
	case <-j.done:
		delete(r.jobs, key)
		if j.err != nil {
			return JobStatus{Status: "error", Error: j.err.Error()}
		}
		return JobStatus{Status: "completed", Payload: j.payload}
	default:
		return JobStatus{Status: "processing"}
	}
}
