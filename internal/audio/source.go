package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// UploadFilename is the filename used for every payload on the wire,
// regardless of where the audio came from.
const UploadFilename = "audio_input.wav"

var (
	// ErrCaptureActive is returned when a recording session is already live
	ErrCaptureActive = errors.New("a recording session is already active")

	// ErrSessionFinalized is returned when appending to a finalized session
	ErrSessionFinalized = errors.New("recording session already finalized")

	// ErrEmptyRecording is returned when a session is finalized without data
	ErrEmptyRecording = errors.New("recording session contains no audio")
)

// allowedExtensions mirrors the upload whitelist of the workflow backend.
var allowedExtensions = map[string]string{
	".wav": "audio/wav",
	".mp3": "audio/mpeg",
	".m4a": "audio/mp4",
	".mp4": "video/mp4",
	".avi": "video/x-msvideo",
	".mov": "video/quicktime",
}

// Payload is an immutable audio payload ready for submission. It is owned by
// whichever call submits it and is discarded afterwards.
type Payload struct {
	Data     []byte
	MIMEType string
	Filename string
}

// Size returns the payload size in bytes
func (p *Payload) Size() int {
	return len(p.Data)
}

// AllowedFile reports whether the file extension is accepted for upload
func AllowedFile(name string) bool {
	_, ok := allowedExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// FromFile wraps a pre-recorded file as a Payload, bypassing capture
func FromFile(path string) (*Payload, error) {
	if !AllowedFile(path) {
		return nil, fmt.Errorf("file type not allowed: %s", filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file %s: %w", path, err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("audio file %s is empty", path)
	}

	return &Payload{
		Data:     data,
		MIMEType: allowedExtensions[strings.ToLower(filepath.Ext(path))],
		Filename: UploadFilename,
	}, nil
}

// RecordingSession accumulates audio chunks pushed by a capture source.
// Chunks are appended in arrival order while the session is recording and
// concatenated into a single Payload when it is finalized.
type RecordingSession struct {
	recording  bool
	chunks     [][]byte
	totalBytes int
	startTime  time.Time
	sampleRate int
	rawPCM     bool

	mu sync.Mutex
}

// NewRecordingSession starts a new live recording session. When rawPCM is
// true the captured chunks are treated as headerless PCM-16 and wrapped in a
// WAV container on finalization.
func NewRecordingSession(sampleRate int, rawPCM bool) *RecordingSession {
	return &RecordingSession{
		recording:  true,
		chunks:     make([][]byte, 0, 16),
		startTime:  time.Now(),
		sampleRate: sampleRate,
		rawPCM:     rawPCM,
	}
}

// Append adds a captured chunk to the session in arrival order
func (s *RecordingSession) Append(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.recording {
		return ErrSessionFinalized
	}

	if len(chunk) == 0 {
		return nil
	}

	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	s.chunks = append(s.chunks, buf)
	s.totalBytes += len(buf)

	return nil
}

// Finalize stops the session and concatenates the buffered chunks into one
// Payload. A second call fails with ErrSessionFinalized.
func (s *RecordingSession) Finalize() (*Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.recording {
		return nil, ErrSessionFinalized
	}
	s.recording = false

	if s.totalBytes == 0 {
		return nil, ErrEmptyRecording
	}

	data := make([]byte, 0, s.totalBytes)
	for _, chunk := range s.chunks {
		data = append(data, chunk...)
	}
	s.chunks = nil

	if s.rawPCM {
		wav, err := EncodePCM(data, s.sampleRate)
		if err != nil {
			return nil, fmt.Errorf("failed to encode captured audio: %w", err)
		}
		data = wav
	}

	return &Payload{
		Data:     data,
		MIMEType: "audio/wav",
		Filename: UploadFilename,
	}, nil
}

// Recording reports whether the session is still accepting chunks
func (s *RecordingSession) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// ChunkCount returns the number of buffered chunks
func (s *RecordingSession) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// Size returns the number of buffered audio bytes
func (s *RecordingSession) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalBytes
}

// StartTime returns when the session began recording
func (s *RecordingSession) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// Recorder owns at most one live RecordingSession at a time. Starting a new
// session while one is live is rejected; stopping with no live session is a
// no-op.
type Recorder struct {
	session *RecordingSession
	mu      sync.Mutex
}

// NewRecorder creates an idle Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Start begins a new recording session
func (r *Recorder) Start(sampleRate int, rawPCM bool) (*RecordingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil && r.session.Recording() {
		return nil, ErrCaptureActive
	}

	r.session = NewRecordingSession(sampleRate, rawPCM)
	return r.session, nil
}

// Stop finalizes the live session and returns its payload. When no session
// is live it returns (nil, nil) so callers can invoke it unconditionally.
func (r *Recorder) Stop() (*Payload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return nil, nil
	}

	session := r.session
	r.session = nil

	if !session.Recording() {
		return nil, nil
	}

	payload, err := session.Finalize()
	if err != nil {
		return nil, fmt.Errorf("failed to finalize recording: %w", err)
	}

	return payload, nil
}

// Active reports whether a recording session is live
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil && r.session.Recording()
}
