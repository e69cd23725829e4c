// Package summarize generates French meeting summaries and follow-up email
// drafts from transcript text using OpenAI chat completions.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voxmail/voxmail/internal/metrics"
	"github.com/voxmail/voxmail/internal/workflow"
)

// summarySystemPrompt pins the response format so the summary and key
// elements can be separated on the delimiter afterwards.
const summarySystemPrompt = `Vous êtes un assistant spécialisé dans l'analyse et le résumé de transcriptions.
Fournissez un résumé concis suivi d'une liste d'éléments clés.
Format de réponse :
[Résumé en un paragraphe]

Éléments clés:
• Point clé 1
• Point clé 2
[etc.]`

const emailSystemPrompt = "Vous êtes un assistant d'email professionnel."

const emailPromptTemplate = `Vous êtes un assistant qui aide à rédiger des emails professionnels pour des rendez-vous immobiliers.

Basé sur le résumé suivant et les éléments clés, rédigez un email de suivi professionnel pour le client :

Résumé :
%s

Éléments clés :
%s

L'email doit être poli, clair et adapté au contexte immobilier.`

// Config contains summarizer configuration
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int

	// BaseURL overrides the OpenAI API endpoint, for compatible providers
	// and tests
	BaseURL string
}

// Result is a generated summary split into its parts
type Result struct {
	Summary      string
	KeyElements  string
	EmailContent string

	// Combined is the raw delimiter-joined completion, served as-is on
	// the polled path
	Combined string
}

// Summarizer generates summaries and email drafts
type Summarizer struct {
	client    *openai.Client
	model     string
	maxTokens int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Summarizer
func New(cfg Config, m *metrics.Metrics, logger *slog.Logger) (*Summarizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 500
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Summarizer{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		maxTokens: maxTokens,
		metrics:   m,
		logger:    logger,
	}, nil
}

// Summarize analyzes a transcript and returns the summary, key elements
// and a follow-up email draft.
func (s *Summarizer) Summarize(ctx context.Context, transcript string) (*Result, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("transcript cannot be empty")
	}

	s.metrics.RecordSummaryRequest()
	start := time.Now()

	combined, tokens, err := s.complete(ctx, summarySystemPrompt,
		fmt.Sprintf("Analysez et résumez la transcription suivante :\n\n%s", transcript))
	if err != nil {
		s.metrics.RecordSummaryFailure()
		return nil, fmt.Errorf("failed to generate summary: %w", err)
	}

	summary, keyElements := workflow.SplitSummary(combined)

	emailContent, emailTokens, err := s.complete(ctx, emailSystemPrompt,
		fmt.Sprintf(emailPromptTemplate, summary, keyElements))
	if err != nil {
		s.metrics.RecordSummaryFailure()
		return nil, fmt.Errorf("failed to generate email draft: %w", err)
	}

	s.metrics.RecordSummarySuccess(time.Since(start).Seconds(), tokens+emailTokens)

	s.logger.Info("Summary generated",
		slog.Int("transcript_chars", len(transcript)),
		slog.Int("completion_tokens", tokens+emailTokens),
	)

	return &Result{
		Summary:      summary,
		KeyElements:  keyElements,
		EmailContent: strings.TrimSpace(emailContent),
		Combined:     combined,
	}, nil
}

// complete runs one chat completion and returns the message content
func (s *Summarizer) complete(ctx context.Context, system, user string) (string, int, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", 0, err
	}

	if len(resp.Choices) == 0 {
		return "", 0, fmt.Errorf("completion returned no choices")
	}

	return resp.Choices[0].Message.Content, resp.Usage.CompletionTokens, nil
}
