// Package workflow sequences the recording → transcription → summary →
// email pipeline for one session. The orchestrator's output fields are both
// what the UI displays and the source of truth for the next stage: the
// summary stage reads the transcription field as it stands, so user edits
// to the transcription are honored.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/voxmail/voxmail/internal/audio"
	"github.com/voxmail/voxmail/internal/client"
	"github.com/voxmail/voxmail/internal/poller"
)

// Delimiter separates summary text from key elements when the backend
// delivers both as one combined string on the polled path.
const Delimiter = "\n\nÉléments clés:\n"

// User-facing strings. These match the strings users already know from the
// web frontend and must not be reworded.
const (
	TranscriptionPending = "Transcription en cours..."
	SummaryPending       = "Analyse en cours..."
	KeyElementsPending   = "Extraction des éléments clés..."
	NoKeyElements        = "Aucun élément clé trouvé"
	KeyElementsError     = "Erreur lors de l'extraction des éléments clés"
	ErrorPrefix          = "Erreur: "
)

var (
	// ErrMissingEmailField is returned when an email draft is incomplete.
	// The message is shown to the user as-is.
	ErrMissingEmailField = errors.New("Veuillez remplir tous les champs de l'email")

	// ErrSubmissionInFlight is returned when audio is submitted while a
	// previous submission has not reached a terminal state
	ErrSubmissionInFlight = errors.New("an audio submission is already in flight")
)

// SplitSummary separates a combined polled summary into its summary and
// key-elements parts. When the delimiter is absent the key elements fall
// back to NoKeyElements.
func SplitSummary(combined string) (summary, keyElements string) {
	parts := strings.SplitN(combined, Delimiter, 2)
	summary = parts[0]
	if len(parts) == 2 && parts[1] != "" {
		keyElements = parts[1]
	} else {
		keyElements = NoKeyElements
	}
	return summary, keyElements
}

// EmailDraft holds the user-editable fields of the outgoing email. Content
// is pre-populated from the summary result but may be edited before send.
type EmailDraft struct {
	SenderEmail string
	Recipients  string
	Subject     string
	Content     string
}

// Validate checks that all four fields are filled in
func (d EmailDraft) Validate() error {
	if d.SenderEmail == "" || d.Recipients == "" || d.Subject == "" || d.Content == "" {
		return ErrMissingEmailField
	}
	return nil
}

// RecipientList splits the comma-separated recipients field into trimmed
// addresses, dropping empties left by stray commas.
func (d EmailDraft) RecipientList() []string {
	parts := strings.Split(d.Recipients, ",")
	recipients := make([]string, 0, len(parts))
	for _, part := range parts {
		if addr := strings.TrimSpace(part); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	return recipients
}

// API is the backend surface the orchestrator drives. *client.Client
// satisfies it; tests substitute fakes.
type API interface {
	SubmitTranscription(ctx context.Context, payload *audio.Payload) error
	CheckTranscription(ctx context.Context) (*client.StatusResponse, error)
	SubmitSummary(ctx context.Context, transcription string) (*client.SummaryResponse, error)
	CheckSummary(ctx context.Context) (*client.StatusResponse, error)
	SendEmail(ctx context.Context, email client.EmailRequest) error
}

// Orchestrator drives the end-to-end workflow for one session
type Orchestrator struct {
	api    API
	logger *slog.Logger

	// One independent poller per job kind. Each Start cancels that
	// kind's previous loop, so at most one timer ticks per kind.
	transcriptionPoller *poller.Poller
	summaryPoller       *poller.Poller

	mu            sync.Mutex
	transcription string
	summary       string
	keyElements   string
	emailContent  string
	submitting    bool
	summaryReady  bool
}

// New creates an Orchestrator for one session
func New(api API, pollCfg poller.Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		api:                 api,
		logger:              logger,
		transcriptionPoller: poller.New(pollCfg, logger),
		summaryPoller:       poller.New(pollCfg, logger),
	}
}

// SubmitAudio submits an audio payload for transcription and starts the
// transcription polling loop. Only one submission may be in flight; a
// second is rejected with ErrSubmissionInFlight until the first reaches a
// terminal state.
func (o *Orchestrator) SubmitAudio(ctx context.Context, payload *audio.Payload) error {
	o.mu.Lock()
	if o.submitting {
		o.mu.Unlock()
		return ErrSubmissionInFlight
	}
	o.submitting = true
	o.summaryReady = false
	o.transcription = TranscriptionPending
	o.mu.Unlock()

	if err := o.api.SubmitTranscription(ctx, payload); err != nil {
		o.mu.Lock()
		o.transcription = ErrorPrefix + err.Error()
		o.submitting = false
		o.mu.Unlock()
		return err
	}

	o.transcriptionPoller.Start(ctx, "transcription", o.checkTranscription)
	return nil
}

// checkTranscription is one transcription poll tick
func (o *Orchestrator) checkTranscription(ctx context.Context) (poller.Outcome, error) {
	status, err := o.api.CheckTranscription(ctx)
	if err != nil {
		return poller.OutcomePending, err
	}

	switch status.Status {
	case client.StatusCompleted:
		o.mu.Lock()
		o.transcription = status.Transcription
		o.submitting = false
		o.summaryReady = true
		o.mu.Unlock()
		return poller.OutcomeCompleted, nil

	case client.StatusError:
		o.mu.Lock()
		o.transcription = ErrorPrefix + status.Error
		o.submitting = false
		o.mu.Unlock()
		return poller.OutcomeFailed, nil

	default:
		return poller.OutcomePending, nil
	}
}

// Summarize submits the current transcription text for summarization. A
// synchronous response fills the outputs directly; a processing response
// starts the summary polling loop.
func (o *Orchestrator) Summarize(ctx context.Context) error {
	o.mu.Lock()
	transcription := o.transcription
	o.summary = SummaryPending
	o.keyElements = KeyElementsPending
	o.mu.Unlock()

	resp, err := o.api.SubmitSummary(ctx, transcription)
	if err != nil {
		o.setSummaryError(err.Error())
		return err
	}

	if resp.Error != "" {
		o.setSummaryError(resp.Error)
		return errors.New(resp.Error)
	}

	if resp.Status == client.StatusProcessing {
		o.summaryPoller.Start(ctx, "summary", o.checkSummary)
		return nil
	}

	o.mu.Lock()
	o.summary = resp.Summary
	if resp.KeyElements != "" {
		o.keyElements = resp.KeyElements
	} else {
		o.keyElements = NoKeyElements
	}
	o.emailContent = resp.EmailContent
	o.mu.Unlock()

	o.logger.Info("Summary received synchronously")
	return nil
}

// checkSummary is one summary poll tick. A completed response carries
// summary and key elements as one delimited string.
func (o *Orchestrator) checkSummary(ctx context.Context) (poller.Outcome, error) {
	status, err := o.api.CheckSummary(ctx)
	if err != nil {
		return poller.OutcomePending, err
	}

	switch status.Status {
	case client.StatusCompleted:
		summary, keyElements := SplitSummary(status.Summary)
		o.mu.Lock()
		o.summary = summary
		o.keyElements = keyElements
		o.emailContent = status.Summary
		o.mu.Unlock()
		return poller.OutcomeCompleted, nil

	case client.StatusError:
		o.setSummaryError(status.Error)
		return poller.OutcomeFailed, nil

	default:
		return poller.OutcomePending, nil
	}
}

// setSummaryError writes a summary-stage failure into the output fields
func (o *Orchestrator) setSummaryError(message string) {
	o.mu.Lock()
	o.summary = ErrorPrefix + message
	o.keyElements = KeyElementsError
	o.mu.Unlock()
}

// SendEmail validates the draft locally and dispatches it. An incomplete
// draft fails with ErrMissingEmailField before any network call.
func (o *Orchestrator) SendEmail(ctx context.Context, draft EmailDraft) error {
	if err := draft.Validate(); err != nil {
		return err
	}

	return o.api.SendEmail(ctx, client.EmailRequest{
		SenderEmail: draft.SenderEmail,
		Recipients:  draft.RecipientList(),
		Subject:     draft.Subject,
		Content:     draft.Content,
	})
}

// Transcription returns the current transcription output
func (o *Orchestrator) Transcription() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.transcription
}

// SetTranscription replaces the transcription output with user-edited
// text. The edited text is what Summarize submits.
func (o *Orchestrator) SetTranscription(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transcription = text
}

// Summary returns the current summary output
func (o *Orchestrator) Summary() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.summary
}

// KeyElements returns the current key-elements output
func (o *Orchestrator) KeyElements() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.keyElements
}

// EmailContent returns the generated email body
func (o *Orchestrator) EmailContent() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.emailContent
}

// SetEmailContent replaces the email body with user-edited text
func (o *Orchestrator) SetEmailContent(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.emailContent = text
}

// SummaryAvailable reports whether a transcription has completed and the
// summarize action should be offered
func (o *Orchestrator) SummaryAvailable() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.summaryReady
}

// TranscriptionState returns the transcription poller state
func (o *Orchestrator) TranscriptionState() poller.State {
	return o.transcriptionPoller.State()
}

// SummaryState returns the summary poller state
func (o *Orchestrator) SummaryState() poller.State {
	return o.summaryPoller.State()
}

// WaitTranscription blocks until the transcription poll run ends
func (o *Orchestrator) WaitTranscription(ctx context.Context) (poller.State, error) {
	return o.transcriptionPoller.Wait(ctx)
}

// WaitSummary blocks until the summary poll run ends
func (o *Orchestrator) WaitSummary(ctx context.Context) (poller.State, error) {
	return o.summaryPoller.Wait(ctx)
}

// Stop cancels both polling loops
func (o *Orchestrator) Stop() {
	o.transcriptionPoller.Stop()
	o.summaryPoller.Stop()

	o.mu.Lock()
	o.submitting = false
	o.mu.Unlock()
}
