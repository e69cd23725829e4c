// Package server implements the workflow backend HTTP API: login, audio
// upload and transcription jobs, summarization, and email dispatch.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxmail/voxmail/internal/audio"
	"github.com/voxmail/voxmail/internal/config"
	"github.com/voxmail/voxmail/internal/mail"
	"github.com/voxmail/voxmail/internal/metrics"
	"github.com/voxmail/voxmail/internal/store"
	"github.com/voxmail/voxmail/internal/summarize"
)

var emailPattern = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.\w+$`)

// Transcriber turns an audio payload into transcript text
type Transcriber interface {
	Transcribe(ctx context.Context, payload *audio.Payload) (string, error)
}

// Summarizer generates a summary and email draft from transcript text
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (*summarize.Result, error)
}

// Mailer dispatches outgoing messages
type Mailer interface {
	Send(msg mail.Message) error
}

// Server is the workflow backend HTTP server
type Server struct {
	server  *http.Server
	config  config.ServerConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	sessions    *SessionStore
	jobs        *JobRegistry
	users       *store.Store
	transcriber Transcriber
	summarizer  Summarizer
	mailer      Mailer

	startTime time.Time
}

// New creates the backend server with its routes configured
func New(cfg config.ServerConfig, users *store.Store, transcriber Transcriber,
	summarizer Summarizer, mailer Mailer, m *metrics.Metrics, logger *slog.Logger) *Server {

	s := &Server{
		config:      cfg,
		logger:      logger,
		metrics:     m,
		sessions:    NewSessionStore(cfg.SessionCookie, m),
		jobs:        NewJobRegistry(m, logger),
		users:       users,
		transcriber: transcriber,
		summarizer:  summarizer,
		mailer:      mailer,
		startTime:   time.Now(),
	}

	s.server = &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      s.Router(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Router builds the HTTP route table
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", s.withMetrics("/", s.handleLogin)).Methods(http.MethodGet)
	r.HandleFunc("/transcription", s.withMetrics("/transcription", s.requireSession(s.handleTranscription))).Methods(http.MethodPost)
	r.HandleFunc("/check-transcription", s.withMetrics("/check-transcription", s.handleCheckTranscription)).Methods(http.MethodGet)
	r.HandleFunc("/summarize", s.withMetrics("/summarize", s.requireSession(s.handleSummarize))).Methods(http.MethodPost)
	r.HandleFunc("/check-summary", s.withMetrics("/check-summary", s.handleCheckSummary)).Methods(http.MethodGet)
	r.HandleFunc("/send-email", s.withMetrics("/send-email", s.requireSession(s.handleSendEmail))).Methods(http.MethodPost)
	r.HandleFunc("/health", s.withMetrics("/health", s.handleHealth)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

// withMetrics wraps an HTTP handler with metrics collection
func (s *Server) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		s.metrics.RecordHTTPRequest(r.Method, endpoint,
			fmt.Sprintf("%d", ww.statusCode), time.Since(startTime).Seconds())
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// requireSession rejects requests without a valid session cookie
func (s *Server) requireSession(handler func(http.ResponseWriter, *http.Request, *Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.sessions.Get(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Non autorisé")
			return
		}
		handler(w, r, session)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting backend server",
		slog.String("address", s.server.Addr),
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping backend server...")

	return s.server.Shutdown(ctx)
}

// handleLogin implements GET /: a static key plus an email establishes the
// session, creating the account on first login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	key := r.URL.Query().Get("key")

	if email == "" || key == "" {
		writeError(w, http.StatusBadRequest, "Email et clé requis")
		return
	}

	if key != s.config.StaticKey {
		s.metrics.RecordLoginRejected()
		writeError(w, http.StatusUnauthorized, "Clé invalide")
		return
	}

	fullName := email
	if at := strings.Index(email, "@"); at > 0 {
		fullName = email[:at]
	}

	user, err := s.users.GetOrCreate(email, fullName)
	if err != nil {
		s.logger.Error("Failed to load user",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "Une erreur inattendue est survenue")
		return
	}

	s.sessions.Issue(w, user.Email, user.FullName)
	s.metrics.RecordLogin()

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"full_name": user.FullName,
	})
}

// handleTranscription implements POST /transcription: the upload consumes
// one quota slot and registers an asynchronous transcription job.
func (s *Server) handleTranscription(w http.ResponseWriter, r *http.Request, session *Session) {
	remaining, err := s.users.Consume(session.Email)
	if err != nil {
		if errors.Is(err, store.ErrQuotaExceeded) {
			s.metrics.RecordUploadRejected("quota")
			writeError(w, http.StatusTooManyRequests, "Daily request limit reached")
			return
		}
		writeError(w, http.StatusInternalServerError, "Une erreur inattendue est survenue")
		return
	}

	payload, errMsg := s.readUpload(r)
	if errMsg != "" {
		// The rejected upload should not cost a quota slot.
		if err := s.users.Refund(session.Email); err != nil {
			s.logger.Error("Failed to refund quota",
				slog.String("email", session.Email),
				slog.String("error", err.Error()),
			)
		}
		s.metrics.RecordUploadRejected("invalid_file")
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	err = s.jobs.Begin(r.Context(), session.ID, JobTranscription, func(ctx context.Context) (string, error) {
		return s.transcriber.Transcribe(context.WithoutCancel(ctx), payload)
	})
	if err != nil {
		if refundErr := s.users.Refund(session.Email); refundErr != nil {
			s.logger.Error("Failed to refund quota",
				slog.String("email", session.Email),
				slog.String("error", refundErr.Error()),
			)
		}
		writeError(w, http.StatusConflict, "Une transcription est déjà en cours")
		return
	}

	s.metrics.RecordUpload(payload.Size())

	writeJSON(w, http.StatusOK, map[string]any{
		"task_id":            session.ID,
		"status":             "processing",
		"remaining_requests": remaining,
	})
}

// readUpload extracts and validates the multipart audio file. The returned
// message is empty on success and user-facing otherwise.
func (s *Server) readUpload(r *http.Request) (*audio.Payload, string) {
	if err := r.ParseMultipartForm(s.config.UploadMaxBytes); err != nil {
		return nil, "No file provided"
	}

	file, header, err := r.FormFile("audio_file")
	if err != nil {
		return nil, "No file provided"
	}
	defer file.Close()

	if header.Filename == "" {
		return nil, "No file selected"
	}

	if !audio.AllowedFile(header.Filename) {
		return nil, "File type not allowed"
	}

	data, err := io.ReadAll(io.LimitReader(file, s.config.UploadMaxBytes))
	if err != nil || len(data) == 0 {
		return nil, "No file provided"
	}

	return &audio.Payload{
		Data:     data,
		MIMEType: header.Header.Get("Content-Type"),
		Filename: header.Filename,
	}, ""
}

// handleCheckTranscription implements GET /check-transcription. No session
// maps to not_found rather than 401, so a poll for a forgotten job and a
// poll without a session look the same to the client.
func (s *Server) handleCheckTranscription(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessions.Get(r)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": "not_found"})
		return
	}

	status := s.jobs.Collect(session.ID, JobTranscription)

	response := map[string]string{"status": status.Status}
	switch status.Status {
	case "completed":
		response["transcription"] = status.Payload
	case "error":
		response["error"] = status.Error
	}

	writeJSON(w, http.StatusOK, response)
}

// handleSummarize implements POST /summarize. The summary is generated
// synchronously; the polled path exists for jobs registered elsewhere.
func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request, session *Session) {
	var body struct {
		TranscriptionText string `json:"transcription_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TranscriptionText == "" {
		writeError(w, http.StatusBadRequest, "Aucun texte de transcription fourni")
		return
	}

	result, err := s.summarizer.Summarize(r.Context(), body.TranscriptionText)
	if err != nil {
		s.logger.Error("Summary generation failed",
			slog.String("session", session.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":        "completed",
		"summary":       result.Summary,
		"key_elements":  result.KeyElements,
		"email_content": result.EmailContent,
	})
}

// handleCheckSummary implements GET /check-summary. A completed job's
// payload is the combined delimiter-joined string.
func (s *Server) handleCheckSummary(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessions.Get(r)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": "not_found"})
		return
	}

	status := s.jobs.Collect(session.ID, JobSummary)

	response := map[string]string{"status": status.Status}
	switch status.Status {
	case "completed":
		response["summary"] = status.Payload
	case "error":
		response["error"] = status.Error
	}

	writeJSON(w, http.StatusOK, response)
}

// handleSendEmail implements POST /send-email
func (s *Server) handleSendEmail(w http.ResponseWriter, r *http.Request, session *Session) {
	var body struct {
		SenderEmail string   `json:"sender_email"`
		Recipients  []string `json:"recipients"`
		Subject     string   `json:"subject"`
		Content     string   `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil ||
		body.SenderEmail == "" || len(body.Recipients) == 0 || body.Subject == "" || body.Content == "" {
		writeError(w, http.StatusBadRequest, "Données email manquantes")
		return
	}

	if !emailPattern.MatchString(body.SenderEmail) {
		writeError(w, http.StatusBadRequest, "Adresse email invalide")
		return
	}

	err := s.mailer.Send(mail.Message{
		ReplyTo:    body.SenderEmail,
		Recipients: body.Recipients,
		Subject:    body.Subject,
		Body:       body.Content,
	})
	if err != nil {
		s.logger.Error("Email dispatch failed",
			slog.String("session", session.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Email envoyé avec succès",
	})
}

// handleHealth implements GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startTime).String(),
		"service": map[string]string{
			"name":    "voxmail",
			"version": "1.0.0",
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
