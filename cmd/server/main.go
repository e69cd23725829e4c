package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxmail/voxmail/internal/config"
	"github.com/voxmail/voxmail/internal/mail"
	"github.com/voxmail/voxmail/internal/metrics"
	"github.com/voxmail/voxmail/internal/server"
	"github.com/voxmail/voxmail/internal/store"
	"github.com/voxmail/voxmail/internal/summarize"
	"github.com/voxmail/voxmail/internal/transcribe"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "voxmail-server"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("listen_address", cfg.Server.ListenAddr()),
		slog.String("storage_path", cfg.Server.StoragePath),
		slog.Int("daily_limit", cfg.Server.DailyLimit),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("summary_model", cfg.Summary.Model),
		slog.String("mail_server", cfg.Mail.Server),
		slog.String("log_level", cfg.Logging.Level),
	)

	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	users, err := store.Open(store.Config{
		Path:       cfg.Server.StoragePath,
		DailyLimit: cfg.Server.DailyLimit,
	}, logger)
	if err != nil {
		logger.Error("Failed to open user store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer users.Close()

	transcriber, err := transcribe.NewClient(transcribe.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.Transcription.APIKey,
		Model:         cfg.Transcription.Model,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:    cfg.Transcription.MaxRetries,
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
	}, appMetrics)
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	summarizer, err := summarize.New(summarize.Config{
		APIKey:    cfg.Summary.APIKey,
		Model:     cfg.Summary.Model,
		MaxTokens: cfg.Summary.MaxTokens,
	}, appMetrics, logger)
	if err != nil {
		logger.Error("Failed to create summarizer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	mailer, err := mail.NewDialer(mail.Config{
		Server:        cfg.Mail.Server,
		Port:          cfg.Mail.Port,
		Username:      cfg.Mail.Username,
		Password:      cfg.Mail.Password,
		DefaultSender: cfg.Mail.DefaultSender,
	}, appMetrics, logger)
	if err != nil {
		logger.Error("Failed to create mail dialer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv := server.New(cfg.Server, users, transcriber, summarizer, mailer, appMetrics, logger)
	if err := srv.Start(); err != nil {
		logger.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("address", cfg.Server.ListenAddr()),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping server", slog.String("error", err.Error()))
	}

	if err := transcriber.Close(); err != nil {
		logger.Error("Error closing transcription client", slog.String("error", err.Error()))
	}

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
