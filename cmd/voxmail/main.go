package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/voxmail/voxmail/internal/audio"
	"github.com/voxmail/voxmail/internal/client"
	"github.com/voxmail/voxmail/internal/config"
	"github.com/voxmail/voxmail/internal/poller"
	"github.com/voxmail/voxmail/internal/watch"
	"github.com/voxmail/voxmail/internal/workflow"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	filePath := flag.String("file", "", "Audio file to transcribe")
	record := flag.Bool("record", false, "Capture audio from the microphone bridge until interrupted")
	watchMode := flag.Bool("watch", false, "Watch the configured directory for audio files")
	summarizeFlag := flag.Bool("summarize", true, "Generate a summary after transcription")
	send := flag.Bool("send", false, "Send the summary email after summarizing")
	sender := flag.String("sender", "", "Sender address for the email (defaults to the login email)")
	recipients := flag.String("recipients", "", "Comma-separated email recipients")
	subject := flag.String("subject", "Compte rendu", "Email subject")
	flag.Parse()

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	api, err := client.New(client.Config{
		BaseURL: cfg.Client.BaseURL,
		Timeout: cfg.Client.GetRequestTimeout(),
	}, logger)
	if err != nil {
		logger.Error("Failed to create API client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := api.Login(ctx, cfg.Client.Email, cfg.Client.AccessKey); err != nil {
		logger.Error("Login failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	orchestrator := workflow.New(api, poller.Config{
		Interval:    cfg.Client.GetPollInterval(),
		MaxAttempts: cfg.Client.MaxPollAttempts,
	}, logger)
	defer orchestrator.Stop()

	draft := workflow.EmailDraft{
		SenderEmail: *sender,
		Recipients:  *recipients,
		Subject:     *subject,
	}
	if draft.SenderEmail == "" {
		draft.SenderEmail = cfg.Client.Email
	}

	opts := runOptions{
		summarize: *summarizeFlag,
		send:      *send,
		draft:     draft,
	}

	switch {
	case *watchMode:
		err = runWatch(ctx, cfg, orchestrator, opts, logger)
	case *record:
		err = runRecord(ctx, cfg, orchestrator, opts, logger)
	case *filePath != "":
		err = runFile(ctx, *filePath, orchestrator, opts)
	default:
		fmt.Fprintln(os.Stderr, "One of -file, -record or -watch is required")
		flag.Usage()
		os.Exit(2)
	}

	if err != nil && ctx.Err() == nil {
		logger.Error("Workflow failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

type runOptions struct {
	summarize bool
	send      bool
	draft     workflow.EmailDraft
}

// runFile submits a pre-recorded audio file
func runFile(ctx context.Context, path string, orchestrator *workflow.Orchestrator, opts runOptions) error {
	payload, err := audio.FromFile(path)
	if err != nil {
		return err
	}

	return runWorkflow(ctx, orchestrator, payload, opts)
}

// runRecord captures from the microphone bridge until the user presses
// enter, then submits the recording.
func runRecord(ctx context.Context, cfg *config.Config, orchestrator *workflow.Orchestrator, opts runOptions, logger *slog.Logger) error {
	if cfg.Client.CaptureURL == "" {
		return fmt.Errorf("capture_url is not configured")
	}

	recorder := audio.NewRecorder()
	capture, err := audio.StartCapture(ctx, audio.CaptureConfig{
		URL:        cfg.Client.CaptureURL,
		SampleRate: 16000,
	}, recorder, logger)
	if err != nil {
		return err
	}

	fmt.Println("Enregistrement... appuyez sur Entrée pour arrêter.")

	done := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	payload, err := capture.Stop()
	if err != nil {
		return err
	}

	return runWorkflow(ctx, orchestrator, payload, opts)
}

// runWatch processes audio files dropped into the configured directory
// until interrupted
func runWatch(ctx context.Context, cfg *config.Config, orchestrator *workflow.Orchestrator, opts runOptions, logger *slog.Logger) error {
	if cfg.Client.WatchDir == "" {
		return fmt.Errorf("watch_dir is not configured")
	}

	watcher, err := watch.New(watch.Config{Dir: cfg.Client.WatchDir},
		func(ctx context.Context, payload *audio.Payload) error {
			return runWorkflow(ctx, orchestrator, payload, opts)
		}, logger)
	if err != nil {
		return err
	}

	err = watcher.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runWorkflow drives one payload through transcription, summary and email
func runWorkflow(ctx context.Context, orchestrator *workflow.Orchestrator, payload *audio.Payload, opts runOptions) error {
	if err := orchestrator.SubmitAudio(ctx, payload); err != nil {
		return err
	}

	state, err := orchestrator.WaitTranscription(ctx)
	if err != nil {
		return err
	}
	if state != poller.StateCompleted {
		return fmt.Errorf("transcription did not complete: %s", orchestrator.Transcription())
	}

	fmt.Println("--- Transcription ---")
	fmt.Println(orchestrator.Transcription())

	if !opts.summarize {
		return nil
	}

	if err := orchestrator.Summarize(ctx); err != nil {
		return err
	}
	if _, err := orchestrator.WaitSummary(ctx); err != nil {
		return err
	}
	if strings.HasPrefix(orchestrator.Summary(), workflow.ErrorPrefix) {
		return fmt.Errorf("summary failed: %s", orchestrator.Summary())
	}

	fmt.Println("--- Résumé ---")
	fmt.Println(orchestrator.Summary())
	fmt.Println("--- Éléments clés ---")
	fmt.Println(orchestrator.KeyElements())

	if !opts.send {
		return nil
	}

	draft := opts.draft
	draft.Content = orchestrator.EmailContent()

	if err := orchestrator.SendEmail(ctx, draft); err != nil {
		return err
	}

	fmt.Println("Email envoyé avec succès !")
	return nil
}

// initLogger creates the structured logger. The client logs to stderr so
// workflow output on stdout stays clean.
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
