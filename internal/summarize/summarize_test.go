package summarize

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/voxmail/voxmail/internal/metrics"
	"github.com/voxmail/voxmail/internal/workflow"
)

var (
	testMetrics     *metrics.Metrics
	testMetricsOnce sync.Once
)

// sharedMetrics avoids duplicate prometheus registration across tests
func sharedMetrics() *metrics.Metrics {
	testMetricsOnce.Do(func() {
		testMetrics = metrics.NewMetrics()
	})
	return testMetrics
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chatResponse(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]any{"completion_tokens": 42},
	}
}

func newTestSummarizer(t *testing.T, handler http.Handler) *Summarizer {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	s, err := New(Config{
		APIKey:  "test-key",
		BaseURL: server.URL + "/v1",
	}, sharedMetrics(), slog.Default())
	if err != nil {
		t.Fatalf("Failed to create summarizer: %v", err)
	}

	return s
}

func TestSummarize(t *testing.T) {
	combined := "Visite d'un appartement." + workflow.Delimiter + "• Trois pièces\n• Balcon"

	var requests atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode chat request: %v", err)
		}

		switch requests.Add(1) {
		case 1:
			// Summary pass: transcript goes in the user message.
			if !strings.Contains(req.Messages[1].Content, "le client visite") {
				t.Errorf("Expected transcript in user message, got %q", req.Messages[1].Content)
			}
			if !strings.Contains(req.Messages[0].Content, "Éléments clés:") {
				t.Error("Expected format instructions in system prompt")
			}
			json.NewEncoder(w).Encode(chatResponse(combined))
		default:
			// Email pass: summary and key elements feed the prompt.
			if !strings.Contains(req.Messages[1].Content, "Visite d'un appartement.") {
				t.Error("Expected summary in email prompt")
			}
			if !strings.Contains(req.Messages[1].Content, "• Trois pièces") {
				t.Error("Expected key elements in email prompt")
			}
			json.NewEncoder(w).Encode(chatResponse("  Bonjour,\n\nSuite à notre visite...  "))
		}
	})

	s := newTestSummarizer(t, handler)

	result, err := s.Summarize(context.Background(), "le client visite un appartement")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if result.Summary != "Visite d'un appartement." {
		t.Errorf("Unexpected summary: %q", result.Summary)
	}
	if result.KeyElements != "• Trois pièces\n• Balcon" {
		t.Errorf("Unexpected key elements: %q", result.KeyElements)
	}
	if result.EmailContent != "Bonjour,\n\nSuite à notre visite..." {
		t.Errorf("Expected trimmed email draft, got %q", result.EmailContent)
	}
	if result.Combined != combined {
		t.Errorf("Expected raw combined completion, got %q", result.Combined)
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("Expected 2 completions, got %d", got)
	}
}

func TestSummarizeWithoutKeyElements(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse("juste un résumé"))
	})

	s := newTestSummarizer(t, handler)

	result, err := s.Summarize(context.Background(), "texte")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if result.KeyElements != workflow.NoKeyElements {
		t.Errorf("Expected fallback %q, got %q", workflow.NoKeyElements, result.KeyElements)
	}
}

func TestSummarizeEmptyTranscript(t *testing.T) {
	s := newTestSummarizer(t, http.NotFoundHandler())

	if _, err := s.Summarize(context.Background(), "   "); err == nil {
		t.Error("Expected error for empty transcript")
	}
}

func TestSummarizeAPIError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "rate limited"}}`, http.StatusTooManyRequests)
	})

	s := newTestSummarizer(t, handler)

	if _, err := s.Summarize(context.Background(), "texte"); err == nil {
		t.Error("Expected error from API failure")
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}, sharedMetrics(), slog.Default()); err == nil {
		t.Error("Expected error for missing API key")
	}
}
