package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxmail/voxmail/internal/audio"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(Config{BaseURL: server.URL}, slog.Default())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	return c, server
}

func testPayload() *audio.Payload {
	return &audio.Payload{
		Data:     []byte("fake audio"),
		MIMEType: "audio/wav",
		Filename: audio.UploadFilename,
	}
}

func TestLoginStoresSessionCookie(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("email") != "user@example.com" {
			t.Errorf("Expected email query param, got %q", r.URL.Query().Get("email"))
		}
		if r.URL.Query().Get("key") != "secret" {
			t.Errorf("Expected key query param, got %q", r.URL.Query().Get("key"))
		}
		http.SetCookie(w, &http.Cookie{Name: "voxmail_session", Value: "abc123"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/check-transcription", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("voxmail_session")
		if err != nil || cookie.Value != "abc123" {
			t.Error("Expected session cookie on follow-up request")
		}
		json.NewEncoder(w).Encode(StatusResponse{Status: StatusNotFound})
	})

	c, _ := newTestClient(t, mux)

	if err := c.Login(context.Background(), "user@example.com", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := c.CheckTranscription(context.Background()); err != nil {
		t.Fatalf("CheckTranscription failed: %v", err)
	}
}

func TestLoginUnauthorized(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	c, _ := newTestClient(t, handler)

	err := c.Login(context.Background(), "user@example.com", "wrong")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}
}

func TestSubmitTranscription(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcription" {
			t.Errorf("Expected /transcription, got %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("Failed to parse multipart form: %v", err)
		}
		file, header, err := r.FormFile("audio_file")
		if err != nil {
			t.Fatalf("Missing audio_file field: %v", err)
		}
		defer file.Close()
		if header.Filename != "audio_input.wav" {
			t.Errorf("Expected audio_input.wav, got %s", header.Filename)
		}
		w.WriteHeader(http.StatusAccepted)
	})

	c, _ := newTestClient(t, handler)

	if err := c.SubmitTranscription(context.Background(), testPayload()); err != nil {
		t.Fatalf("SubmitTranscription failed: %v", err)
	}
}

func TestSubmitTranscriptionQuotaExceeded(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	c, _ := newTestClient(t, handler)

	err := c.SubmitTranscription(context.Background(), testPayload())
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("Expected ErrQuotaExceeded, got %v", err)
	}
}

func TestSubmitTranscriptionEmptyPayload(t *testing.T) {
	c, _ := newTestClient(t, http.NotFoundHandler())

	if err := c.SubmitTranscription(context.Background(), &audio.Payload{}); err == nil {
		t.Error("Expected error for empty payload")
	}
}

func TestCheckTranscriptionStatuses(t *testing.T) {
	responses := []StatusResponse{
		{Status: StatusProcessing},
		{Status: StatusCompleted, Transcription: "bonjour tout le monde"},
		{Status: StatusError, Error: "transcription failed"},
	}

	i := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(responses[i])
		i++
	})

	c, _ := newTestClient(t, handler)

	for _, expected := range responses {
		status, err := c.CheckTranscription(context.Background())
		if err != nil {
			t.Fatalf("CheckTranscription failed: %v", err)
		}
		if status.Status != expected.Status {
			t.Errorf("Expected status %s, got %s", expected.Status, status.Status)
		}
		if status.Transcription != expected.Transcription {
			t.Errorf("Expected transcription %q, got %q", expected.Transcription, status.Transcription)
		}
	}
}

func TestSubmitSummarySynchronous(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/summarize" {
			t.Errorf("Expected /summarize, got %s", r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if body["transcription_text"] != "bonjour" {
			t.Errorf("Expected transcription_text field, got %v", body)
		}
		json.NewEncoder(w).Encode(SummaryResponse{
			Summary:      "S",
			KeyElements:  "K",
			EmailContent: "E",
		})
	})

	c, _ := newTestClient(t, handler)

	summary, err := c.SubmitSummary(context.Background(), "bonjour")
	if err != nil {
		t.Fatalf("SubmitSummary failed: %v", err)
	}
	if summary.Summary != "S" || summary.KeyElements != "K" || summary.EmailContent != "E" {
		t.Errorf("Unexpected summary response: %+v", summary)
	}

	if _, err := c.SubmitSummary(context.Background(), "   "); err == nil {
		t.Error("Expected error for blank transcription")
	}
}

func TestSubmitSummaryProcessing(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(SummaryResponse{Status: StatusProcessing})
	})

	c, _ := newTestClient(t, handler)

	summary, err := c.SubmitSummary(context.Background(), "bonjour")
	if err != nil {
		t.Fatalf("SubmitSummary failed: %v", err)
	}
	if summary.Status != StatusProcessing {
		t.Errorf("Expected processing status, got %+v", summary)
	}
}

func TestSubmitSummaryServerErrorSurfaced(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "quota OpenAI depasse"})
	})

	c, _ := newTestClient(t, handler)

	_, err := c.SubmitSummary(context.Background(), "bonjour")
	if err == nil {
		t.Fatal("Expected error for server failure")
	}
	if err.Error() != "quota OpenAI depasse" {
		t.Errorf("Expected server's error text verbatim, got %q", err.Error())
	}
}

func TestSubmitTranscriptionServerErrorSurfaced(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "File type not allowed"})
	})

	c, _ := newTestClient(t, handler)

	err := c.SubmitTranscription(context.Background(), testPayload())
	if err == nil {
		t.Fatal("Expected error for rejected upload")
	}
	if err.Error() != "File type not allowed" {
		t.Errorf("Expected server's error text verbatim, got %q", err.Error())
	}
}

func TestCheckStatusServerErrorFallback(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway timeout", http.StatusBadGateway)
	})

	c, _ := newTestClient(t, handler)

	// A non-JSON failure body falls back to the status code.
	_, err := c.CheckTranscription(context.Background())
	if err == nil {
		t.Fatal("Expected error for server failure")
	}
	if err.Error() != "status request failed with status 502" {
		t.Errorf("Unexpected fallback message: %q", err.Error())
	}
}

func TestSendEmail(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send-email" {
			t.Errorf("Expected /send-email, got %s", r.URL.Path)
		}
		var body EmailRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if body.SenderEmail != "sender@example.com" {
			t.Errorf("Unexpected sender: %s", body.SenderEmail)
		}
		if len(body.Recipients) != 2 || body.Recipients[0] != "a@example.com" || body.Recipients[1] != "b@example.com" {
			t.Errorf("Unexpected recipients: %v", body.Recipients)
		}
		w.WriteHeader(http.StatusOK)
	})

	c, _ := newTestClient(t, handler)

	email := EmailRequest{
		SenderEmail: "sender@example.com",
		Recipients:  []string{"a@example.com", "b@example.com"},
		Subject:     "Compte rendu",
		Content:     "Résumé de la réunion",
	}

	if err := c.SendEmail(context.Background(), email); err != nil {
		t.Fatalf("SendEmail failed: %v", err)
	}
}

func TestSendEmailServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Données email manquantes"})
	})

	c, _ := newTestClient(t, handler)

	err := c.SendEmail(context.Background(), EmailRequest{})
	if err == nil {
		t.Fatal("Expected error for server failure")
	}
	if err.Error() != "Données email manquantes" {
		t.Errorf("Expected server's error text verbatim, got %q", err.Error())
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}, slog.Default()); err == nil {
		t.Error("Expected error for empty base URL")
	}
}
