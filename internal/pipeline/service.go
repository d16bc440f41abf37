package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/shortreel/shortreel/internal/domain/analysis"
	"github.com/shortreel/shortreel/internal/export"
	"github.com/shortreel/shortreel/internal/extract"
	"github.com/shortreel/shortreel/internal/gateway"
	"github.com/shortreel/shortreel/internal/jobs"
	"github.com/shortreel/shortreel/internal/orchestrator"
	"github.com/shortreel/shortreel/internal/ports"
	"github.com/shortreel/shortreel/internal/ports/adapters/ffmpeg"
	"github.com/shortreel/shortreel/internal/ports/adapters/ollama"
	"github.com/shortreel/shortreel/internal/ports/adapters/openaichat"
	"github.com/shortreel/shortreel/internal/ports/adapters/whispercpp"
	"github.com/shortreel/shortreel/internal/types"
)

// Service runs jobs in the background for the serve mode. One Service owns
// the adapters and the orchestrator; jobs run detached from the submitting
// request's context.
type Service struct {
	media    ports.MediaTool
	orch     *orchestrator.Orchestrator
	registry jobs.Registry
	outDir   string
	logger   *slog.Logger

	wg sync.WaitGroup
}

func NewService(cfg Config, registry jobs.Registry, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	baseCache := cfg.CacheDir
	if baseCache == "" {
		baseCache = ".cache"
	}
	if err := os.MkdirAll(baseCache, 0o755); err != nil {
		return nil, err
	}
	outDir := cfg.OutDir
	if outDir == "" {
		outDir = "out"
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	media := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath)
	asr := whispercpp.New(cfg.WhisperBin, cfg.WhisperModel)

	var providers []ports.ModelProvider
	if cfg.OpenAIAPIKey != "" {
		providers = append(providers, openaichat.New("openai", cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL))
	}
	if cfg.OllamaModel != "" {
		providers = append(providers, ollama.New(cfg.OllamaModel, cfg.OllamaBaseURL))
	}

	gw := gateway.New(providers, gateway.Options{}, logger)
	extractor := extract.New(media, asr, baseCache, logger)
	annotator := analysis.New(gw, analysis.Options{}, logger)
	exporter := export.New(logger)

	orch := orchestrator.New(extractor, annotator, exporter, registry, outDir, orchestrator.Options{}, logger)

	return &Service{
		media:    media,
		orch:     orch,
		registry: registry,
		outDir:   outDir,
		logger:   logger,
	}, nil
}

// Submit records a new job and starts it in the background.
func (s *Service) Submit(ctx context.Context, inputs []string, style types.Style) (jobs.Job, error) {
	assets, err := probeAssets(ctx, s.media, inputs)
	if err != nil {
		return jobs.Job{}, err
	}

	job := jobs.Job{
		ID:     jobs.NewID(),
		Assets: assets,
		Style:  style.Normalized(),
		Stage:  jobs.StageSubmitted,
		Progress: jobs.Progress{
			AssetsTotal: len(assets),
		},
	}
	if err := s.registry.Create(ctx, job); err != nil {
		return jobs.Job{}, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Detached from the request context: the job outlives the request.
		if _, err := s.orch.Run(context.Background(), job); err != nil {
			s.logger.Error("job run aborted", "job_id", job.ID, "error", err)
		}
	}()

	return job, nil
}

// Cancel requests cancellation; it takes effect at the next stage boundary.
func (s *Service) Cancel(jobID string) {
	s.orch.Cancel(jobID)
}

// Wait blocks until all in-flight jobs reach a terminal stage.
func (s *Service) Wait() {
	s.wg.Wait()
}

// ArtifactDir returns the directory a completed job writes its draft into.
func (s *Service) ArtifactDir(jobID string) string {
	return filepath.Join(s.outDir, jobID)
}
