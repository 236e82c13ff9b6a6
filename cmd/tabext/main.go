package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tabext/tabext/internal/app"
	"github.com/tabext/tabext/internal/extract"
	"github.com/tabext/tabext/internal/fetch"
	"github.com/tabext/tabext/internal/llm"
	"github.com/tabext/tabext/internal/server"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		configPath   string
		cfg          app.Config
		fetchTimeout time.Duration
	)

	flag.StringVar(&configPath, "config", os.Getenv("TABEXT_CONFIG"), "Path to optional YAML config file")
	flag.StringVar(&cfg.Addr, "addr", os.Getenv("TABEXT_ADDR"), "HTTP listen address (default :8080)")
	flag.StringVar(&cfg.LLMBaseURL, "llm.base", os.Getenv("LLM_BASE_URL"), "OpenAI-compatible base URL")
	flag.StringVar(&cfg.LLMModel, "llm.model", os.Getenv("TABEXT_MODEL"), "Default model name (default gpt-4o-mini)")
	flag.StringVar(&cfg.LLMAPIKey, "llm.key", os.Getenv("OPENAI_API_KEY"), "API key for the model provider")
	flag.DurationVar(&fetchTimeout, "fetch.timeout", 0, "Per-page fetch timeout (default 30s)")
	flag.IntVar(&cfg.FetchMaxConcurrent, "fetch.maxConcurrent", 0, "Max concurrent outbound fetches (0 = unlimited)")
	flag.StringVar(&cfg.UserAgent, "fetch.ua", "", "User-Agent for outbound fetches")
	flag.IntVar(&cfg.CharsPerToken, "chunk.charsPerToken", 0, "Characters per token when scaling chunk windows (default 10)")
	flag.IntVar(&cfg.MaxChunkChars, "chunk.maxChars", 0, "Max characters of chunk text per model call (default 8000)")
	flag.IntVar(&cfg.MaxParallelURLs, "max.parallelURLs", 0, "Max URLs processed in parallel (default 4)")
	flag.BoolVar(&cfg.Verbose, "v", false, "Verbose logging")
	flag.Parse()
	cfg.FetchTimeout = fetchTimeout

	if configPath != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("load config file")
		}
		fc.Apply(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = "gpt-4o-mini"
	}

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if cfg.LLMAPIKey == "" {
		log.Warn().Msg("no API key configured; LLM extraction requests will be rejected")
	}

	extractor := &extract.Extractor{
		Fetcher: &fetch.Client{
			UserAgent:     cfg.UserAgent,
			Timeout:       cfg.FetchTimeout,
			MaxConcurrent: cfg.FetchMaxConcurrent,
		},
		Client:          llm.NewOpenAI(cfg.LLMAPIKey, cfg.LLMBaseURL),
		HasCredential:   cfg.LLMAPIKey != "",
		DefaultModel:    cfg.LLMModel,
		CharsPerToken:   cfg.CharsPerToken,
		MaxChunkChars:   cfg.MaxChunkChars,
		MaxParallelURLs: cfg.MaxParallelURLs,
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(extractor, log.Logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("model", cfg.LLMModel).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}
}
