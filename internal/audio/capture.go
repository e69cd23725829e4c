package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrPermissionDenied is returned when the microphone bridge refuses the
// capture connection. It is surfaced to the user and never retried.
var ErrPermissionDenied = errors.New("microphone access refused")

// CaptureConfig contains live capture configuration
type CaptureConfig struct {
	// URL of the microphone bridge websocket
	URL string

	// SampleRate of the PCM frames delivered by the bridge
	SampleRate int
}

// Capture streams audio from a microphone bridge into a RecordingSession.
// The bridge pushes binary PCM-16 frames; each frame is appended to the
// session in arrival order until Stop is called or the bridge disconnects.
type Capture struct {
	conn    *websocket.Conn
	session *RecordingSession
	logger  *slog.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// StartCapture dials the microphone bridge and begins buffering frames into
// a fresh session on the Recorder.
func StartCapture(ctx context.Context, cfg CaptureConfig, recorder *Recorder, logger *slog.Logger) (*Capture, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("capture URL cannot be empty")
	}

	session, err := recorder.Start(cfg.SampleRate, true)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		// Roll the session back so a later attempt can start cleanly.
		_, _ = recorder.Stop()
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, err.Error())
	}

	c := &Capture{
		conn:    conn,
		session: session,
		logger:  logger,
		done:    make(chan struct{}),
	}

	go c.readLoop()

	logger.Info("Capture started",
		slog.String("url", cfg.URL),
		slog.Int("sample_rate", cfg.SampleRate),
	)

	return c, nil
}

// readLoop appends incoming binary frames to the session until the
// connection closes
func (c *Capture) readLoop() {
	defer close(c.done)

	for {
		messageType, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Warn("Capture connection closed unexpectedly",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		if messageType != websocket.BinaryMessage {
			continue
		}

		if err := c.session.Append(frame); err != nil {
			c.logger.Warn("Dropping capture frame",
				slog.String("error", err.Error()),
			)
			return
		}
	}
}

// Session returns the recording session being fed by this capture
func (c *Capture) Session() *RecordingSession {
	return c.session
}

// Stop closes the bridge connection, waits for the read loop to drain, and
// finalizes the session into a Payload.
func (c *Capture) Stop() (*Payload, error) {
	c.stopOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
		_ = c.conn.Close()
	})

	<-c.done

	payload, err := c.session.Finalize()
	if err != nil {
		return nil, fmt.Errorf("failed to finalize capture: %w", err)
	}

	c.logger.Info("Capture stopped",
		slog.Int("payload_bytes", payload.Size()),
	)

	return payload, nil
}
