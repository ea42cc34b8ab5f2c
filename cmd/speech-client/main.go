// main package for the speech-client
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-service/internal/client"
	"github.com/joho/godotenv"
)

// Flag descriptions.
const (
	flagURLDesc       = "Speech service base URL"
	flagOutputDesc    = "Output file (.mp3) for --text, output directory for --chunks"
	flagChunksDesc    = "JSON file containing text chunks to process"
	flagTextDesc      = "Text to convert to speech"
	flagVoiceDesc     = "Voice id"
	flagLanguageDesc  = "Language tag"
	flagRateDesc      = "Speaking rate"
	flagWorkersDesc   = "Concurrent requests"
	flagRealisticDesc = "Request the ultra-realistic voice"
	flagHealthDesc    = "Check speech service health and exit"
)

// Flag names.
const (
	flagURL       = "url"
	flagText      = "text"
	flagOutput    = "output"
	flagChunks    = "chunks"
	flagVoice     = "voice"
	flagLanguage  = "language"
	flagRate      = "rate"
	flagWorkers   = "workers"
	flagRealistic = "realistic"
	flagHealth    = "health"
)

const (
	envToken          = "SPEECH_TOKEN"
	defaultURL        = "http://localhost:8080"
	defaultOutputFile = "output.mp3"
	defaultOutputDir  = "speech-output"
	logFileName       = "speech-client.log"
)

// Static errors.
var (
	errEitherTextOrChunks = errors.New("either --text or --chunks must be provided")
	errCannotSpecifyBoth  = errors.New("cannot specify both --text and --chunks")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	url       string
	text      string
	output    string
	chunks    string
	voice     string
	language  string
	rate      string
	workers   int
	realistic bool
	health    bool
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := parseFlags(flag.CommandLine, os.Args[1:])

	_ = godotenv.Load()

	log, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defer func() {
		_ = log.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	speechClient, err := client.New(client.Options{
		BaseURL:        flags.url,
		Token:          os.Getenv(envToken),
		Voice:          flags.voice,
		Language:       flags.language,
		Rate:           flags.rate,
		UltraRealistic: flags.realistic,
		Workers:        flags.workers,
		Timeout:        0,
	}, log)
	if err != nil {
		return err
	}

	if flags.health {
		return handleHealthCheck(ctx, speechClient)
	}

	err = validateArguments(flags)
	if err != nil {
		return err
	}

	if flags.text != "" {
		output := flags.output
		if output == "" {
			output = filepath.Join(defaultOutputDir, defaultOutputFile)
		}

		err = speechClient.ProcessSingleChunk(ctx, flags.text, output)
		if err != nil {
			return fmt.Errorf("failed to process text: %w", err)
		}

		fmt.Printf("Generated: %s\n", output)

		return nil
	}

	output := flags.output
	if output == "" {
		output = defaultOutputDir
	}

	err = speechClient.ProcessChunks(ctx, flags.chunks, output)
	if err != nil {
		return fmt.Errorf("failed to process chunks: %w", err)
	}

	fmt.Printf("Generated audio files in: %s\n", output)

	return nil
}

func parseFlags(flagSet *flag.FlagSet, args []string) appFlags {
	var flags appFlags

	flagSet.StringVar(&flags.url, flagURL, defaultURL, flagURLDesc)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	flagSet.StringVar(&flags.chunks, flagChunks, "", flagChunksDesc)
	flagSet.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	flagSet.StringVar(&flags.language, flagLanguage, "", flagLanguageDesc)
	flagSet.StringVar(&flags.rate, flagRate, "", flagRateDesc)
	flagSet.IntVar(&flags.workers, flagWorkers, 0, flagWorkersDesc)
	flagSet.BoolVar(&flags.realistic, flagRealistic, false, flagRealisticDesc)
	flagSet.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)

	_ = flagSet.Parse(args)

	return flags
}

func validateArguments(flags appFlags) error {
	if flags.text == "" && flags.chunks == "" {
		return errEitherTextOrChunks
	}

	if flags.text != "" && flags.chunks != "" {
		return errCannotSpecifyBoth
	}

	return nil
}

func handleHealthCheck(ctx context.Context, speechClient *client.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := speechClient.HealthCheck(ctx)
	if err != nil {
		fmt.Printf("Speech service is not healthy: %v\n", err)

		return err
	}

	fmt.Println("Speech service is healthy")

	return nil
}
