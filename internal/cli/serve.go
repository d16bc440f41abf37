package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shortreel/shortreel/internal/api"
	"github.com/shortreel/shortreel/internal/jobs"
	"github.com/shortreel/shortreel/internal/logging"
	"github.com/shortreel/shortreel/internal/pipeline"
	"github.com/shortreel/shortreel/internal/ports/adapters/ollama"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local job service with a persistent registry",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	cmd.Flags().Int("port", 8750, "Port to listen on (loopback only)")
	cmd.Flags().String("db", "", "SQLite database path (defaults to <cache>/shortreel.db)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	port, _ := cmd.Flags().GetInt("port")
	dbPath, _ := cmd.Flags().GetString("db")
	outDir, _ := cmd.Flags().GetString("out")
	cacheDir, _ := cmd.Flags().GetString("cache")
	logLevel, _ := cmd.Flags().GetString("log-level")

	if p := os.Getenv("SHORTREEL_PORT"); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	if dbPath == "" {
		dbPath = filepath.Join(cacheDir, "shortreel.db")
	}

	logger := logging.NewLogger(logLevel)
	logger.Info("starting shortreel service", "version", api.Version, "db", dbPath)

	registry, err := jobs.OpenSQLite(dbPath, logger)
	if err != nil {
		return err
	}
	defer registry.Close()

	cfg := pipeline.Config{
		OutDir:   outDir,
		CacheDir: cacheDir,

		FFmpegPath:  getenvDefault("SHORTREEL_FFMPEG", "ffmpeg"),
		FFprobePath: getenvDefault("SHORTREEL_FFPROBE", "ffprobe"),

		WhisperBin:   getenvDefault("SHORTREEL_WHISPER_BIN", ".cache/bin/whisper.cpp"),
		WhisperModel: getenvDefault("SHORTREEL_WHISPER_MODEL", ".cache/models/ggml-base.bin"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getenvDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),

		OllamaModel:        os.Getenv("OLLAMA_MODEL"),
		OllamaBaseURL:      os.Getenv("OLLAMA_BASE_URL"),
		OllamaAllowedHosts: splitHosts(os.Getenv("OLLAMA_ALLOWED_HOSTS")),

		Logger: logger,
	}
	if cfg.OllamaModel != "" {
		if err := ollama.ValidateBaseURL(cfg.OllamaBaseURL, cfg.OllamaAllowedHosts); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	svc, err := pipeline.NewService(cfg, registry, logger)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}

	server := api.NewServer(api.ServerConfig{
		Port:      port,
		Registry:  registry,
		Runner:    svc,
		Logger:    logger,
		StartTime: time.Now(),
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	svc.Wait()
	return nil
}
