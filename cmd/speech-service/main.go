// main package for the speech-service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"github.com/book-expert/logger"
	"github.com/book-expert/speech-service/internal/auth"
	"github.com/book-expert/speech-service/internal/cache"
	"github.com/book-expert/speech-service/internal/config"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/book-expert/speech-service/internal/httpapi"
	"github.com/book-expert/speech-service/internal/kvstore"
	"github.com/book-expert/speech-service/internal/metrics"
	"github.com/book-expert/speech-service/internal/objectstore"
	"github.com/book-expert/speech-service/internal/ratelimit"
	"github.com/book-expert/speech-service/internal/status"
	"github.com/book-expert/speech-service/internal/synth"
	"github.com/book-expert/speech-service/internal/tts"
	"github.com/book-expert/speech-service/internal/tts/whisper"
	"github.com/book-expert/speech-service/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), "speech-service-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	envErr := godotenv.Load()
	if envErr != nil {
		bootstrapLog.Info("No .env file loaded: %v", envErr)
	}

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 3. Initialize the final logger based on the loaded configuration
	log, err := setupLogger(cfg.Paths.BaseLogsDir, "speech-service.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, log)
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}
	defer natsConnection.Close()

	js, err := jetstream.New(natsConnection)
	if err != nil {
		return fmt.Errorf("failed to create jetstream context: %w", err)
	}

	durable, err := objectstore.New(ctx, js, cfg.NATS.ObjectStoreBucket)
	if err != nil {
		return err
	}

	ephemeral, err := kvstore.New(ctx, kvstore.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		UseTLS:   cfg.Redis.UseTLS,
	})
	if err != nil {
		return err
	}

	defer func() {
		_ = ephemeral.Close()
	}()

	registry := prometheus.NewRegistry()

	recorder, err := metrics.New(registry)
	if err != nil {
		return err
	}

	backends, cleanup, err := buildBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	backendRegistry := tts.NewRegistry(log, recorder, backends...)

	service := synth.New(synth.Deps{
		Registry:    backendRegistry,
		Coordinator: cache.New(ephemeral, durable, cache.Config{TTL: cfg.CacheTTL()}, log, recorder),
		Limiter: ratelimit.New(ephemeral, ratelimit.Config{
			MaxCharacters: cfg.Limits.MaxCharacters,
			TTL:           cfg.RateCounterTTL(),
		}, log),
		Durable: durable,
		Metrics: recorder,
		Logger:  log,
	})

	var reporter core.StatusReporter

	if cfg.Status.Endpoint != "" {
		reporter, err = status.New(cfg.Status.Endpoint, cfg.StatusTimeout(), log)
		if err != nil {
			return err
		}
	} else {
		log.Warn("No status endpoint configured; document requests over HTTP will fail")
	}

	var verifier *auth.Verifier

	if cfg.Auth.JWTSecret != "" {
		verifier, err = auth.NewVerifier(cfg.Auth.JWTSecret)
		if err != nil {
			return err
		}
	} else {
		log.Warn("%s is not set; authenticated routes are disabled", config.EnvJWTSecret)
	}

	gin.SetMode(gin.ReleaseMode)

	server := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpapi.New(httpapi.Options{
			Synthesizer:    service,
			Verifier:       verifier,
			StatusReporter: reporter,
			Health:         backendRegistry,
			Metrics:        metrics.Handler(registry),
			Logger:         log,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	documentWorker := worker.NewNatsWorker(natsConnection, worker.Options{
		Subject:    cfg.NATS.DocumentSubject,
		QueueGroup: cfg.NATS.QueueGroup,
		Voice:      cfg.Document.Voice,
		Language:   cfg.Document.Language,
		Rate:       cfg.Document.Rate,
		JobTimeout: cfg.JobTimeout(),
	}, durable, service, log)

	log.System("Speech-Service initialized with backends %v. Listening on %s and subject %s",
		backendRegistry.Names(), cfg.HTTP.Addr, cfg.NATS.DocumentSubject)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return documentWorker.Run(groupCtx)
	})

	group.Go(func() error {
		listenErr := server.ListenAndServe()
		if listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", listenErr)
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), shutdownTimeout)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	err = group.Wait()
	log.System("Speech-Service stopped")

	return err
}

// buildBackends returns the enabled backends in priority order. Backends
// without native speech marks are wrapped with whisper alignment when it is
// enabled.
func buildBackends(ctx context.Context, cfg *config.Config, log *logger.Logger) ([]core.Backend, func(), error) {
	cleanup := func() {}

	var aligner tts.Aligner

	if cfg.Whisper.Enabled {
		whisperClient, err := whisper.New(whisper.Options{
			APIKey:  cfg.Backends.OpenAI.APIKey,
			BaseURL: cfg.Whisper.BaseURL,
			Model:   cfg.Whisper.Model,
			Timeout: config.Seconds(cfg.Whisper.TimeoutSeconds),
		})
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to create whisper client: %w", err)
		}

		aligner = whisperClient
	}

	var backends []core.Backend

	if cfg.Backends.OpenAI.Enabled {
		backends = append(backends, tts.WithSpeechMarks(tts.NewOpenAIBackend(tts.OpenAIOptions{
			APIKey:  cfg.Backends.OpenAI.APIKey,
			BaseURL: cfg.Backends.OpenAI.BaseURL,
			Model:   cfg.Backends.OpenAI.Model,
		}, log), aligner, log))
	}

	if cfg.Backends.Google.Enabled {
		googleClient, err := texttospeech.NewClient(ctx)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to create google text-to-speech client: %w", err)
		}

		cleanup = func() {
			_ = googleClient.Close()
		}

		backends = append(backends, tts.WithSpeechMarks(tts.NewGoogleBackend(googleClient, log), aligner, log))
	}

	if cfg.Backends.Edge.Enabled {
		backends = append(backends, tts.WithSpeechMarks(tts.NewEdgeBackend(nil, cfg.Backends.Edge.DefaultVoice, log), aligner, log))
	}

	if cfg.Backends.Realistic.Enabled {
		backends = append(backends, tts.WithSpeechMarks(tts.NewRealisticBackend(tts.RealisticOptions{
			BaseURL:        cfg.Backends.Realistic.BaseURL,
			Timeout:        config.Seconds(cfg.Backends.Realistic.TimeoutSeconds),
			Temperature:    cfg.Backends.Realistic.Temperature,
			SpeakerRefPath: cfg.Backends.Realistic.SpeakerRefPath,
		}, log), aligner, log))
	}

	return backends, cleanup, nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
