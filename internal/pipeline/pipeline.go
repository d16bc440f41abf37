// Package pipeline wires the adapters together and runs one job end to end.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

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

type Config struct {
	Inputs []string
	OutDir string

	// CacheDir is the base directory for local artifacts (audio, transcripts, etc.).
	// If empty, defaults to ".cache".
	CacheDir string

	TargetDuration time.Duration
	Tolerance      time.Duration
	Order          string
	MaxClips       int
	Transition     string
	Effect         string
	Theme          string
	AspectRatio    string
	Format         string

	FFmpegPath  string
	FFprobePath string

	WhisperBin   string
	WhisperModel string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	OllamaModel        string
	OllamaBaseURL      string
	OllamaAllowedHosts []string

	ProviderPreferences []string

	Logger *slog.Logger
}

func (c Config) Validate() error {
	if len(c.Inputs) == 0 {
		return errors.New("no inputs")
	}
	for _, in := range c.Inputs {
		if _, err := os.Stat(in); err != nil {
			return fmt.Errorf("stat input: %w", err)
		}
	}
	if c.TargetDuration <= 0 {
		return fmt.Errorf("target duration must be > 0")
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("tolerance must be >= 0")
	}
	if c.WhisperModel == "" {
		return fmt.Errorf("whisper model path is required")
	}
	if c.OllamaModel != "" {
		return ollama.ValidateBaseURL(c.OllamaBaseURL, c.OllamaAllowedHosts)
	}
	return nil
}

// Result summarizes the terminal job record for the caller.
type Result struct {
	JobID        string
	ArtifactPath string
	BestEffort   bool
	Degradations []jobs.Degradation
}

func Run(ctx context.Context, cfg Config) (Result, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	style := types.Style{
		TargetDuration:      cfg.TargetDuration,
		Tolerance:           cfg.Tolerance,
		Order:               cfg.Order,
		MaxClips:            cfg.MaxClips,
		Transition:          cfg.Transition,
		Effect:              cfg.Effect,
		Theme:               cfg.Theme,
		AspectRatio:         cfg.AspectRatio,
		Format:              cfg.Format,
		Weights:             types.DefaultWeights(),
		ProviderPreferences: cfg.ProviderPreferences,
	}.Normalized()

	jobID, err := deriveJobID(cfg.Inputs, style)
	if err != nil {
		return Result{}, err
	}

	baseCache := cfg.CacheDir
	if baseCache == "" {
		baseCache = ".cache"
	}
	if err := os.MkdirAll(baseCache, 0o755); err != nil {
		return Result{}, err
	}

	outDir := cfg.OutDir
	if outDir == "" {
		outDir = "out"
	}
	runOutDir := filepath.Join(outDir, jobID)
	if err := os.MkdirAll(runOutDir, 0o755); err != nil {
		return Result{}, err
	}
	logger.Info("workspace ready", "job_id", jobID, "cache", baseCache, "out", runOutDir)

	// adapters
	media := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath)
	asr := whispercpp.New(cfg.WhisperBin, cfg.WhisperModel)

	var providers []ports.ModelProvider
	if cfg.OpenAIAPIKey != "" {
		providers = append(providers, openaichat.New("openai", cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL))
	}
	if cfg.OllamaModel != "" {
		providers = append(providers, ollama.New(cfg.OllamaModel, cfg.OllamaBaseURL))
	}
	if len(providers) == 0 {
		logger.Warn("no model providers configured, clips will be ordered chronologically")
	}

	assets, err := probeAssets(ctx, media, cfg.Inputs)
	if err != nil {
		return Result{}, err
	}

	gw := gateway.New(providers, gateway.Options{}, logger)
	extractor := extract.New(media, asr, baseCache, logger)
	annotator := analysis.New(gw, analysis.Options{}, logger)
	exporter := export.New(logger)
	registry := jobs.NewMemoryRegistry()

	orch := orchestrator.New(extractor, annotator, exporter, registry, outDir, orchestrator.Options{}, logger)

	job := jobs.Job{
		ID:     jobID,
		Assets: assets,
		Style:  style,
		Stage:  jobs.StageSubmitted,
	}
	if err := registry.Create(ctx, job); err != nil {
		return Result{}, err
	}

	final, err := orch.Run(ctx, job)
	if err != nil {
		return Result{}, err
	}
	if final.Stage == jobs.StageFailed {
		return Result{JobID: jobID, Degradations: final.Degradations},
			fmt.Errorf("%s stage failed (%s): %s", final.ErrStage, final.ErrKind, final.ErrMessage)
	}

	manifest, err := json.MarshalIndent(final, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("marshal job record: %w", err)
	}
	recordPath := filepath.Join(runOutDir, "job.json")
	if err := os.WriteFile(recordPath, manifest, 0o644); err != nil {
		return Result{}, err
	}

	return Result{
		JobID:        jobID,
		ArtifactPath: final.ArtifactPath,
		BestEffort:   final.BestEffort,
		Degradations: final.Degradations,
	}, nil
}

// probeAssets builds the asset list for the job. Asset IDs come from the
// file names so they read well in the exported draft.
func probeAssets(ctx context.Context, media ports.MediaTool, inputs []string) ([]types.Asset, error) {
	seen := make(map[string]int, len(inputs))
	assets := make([]types.Asset, 0, len(inputs))
	for _, in := range inputs {
		dur, err := media.ProbeDuration(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", in, err)
		}
		id := normalizePathSegment(strings.TrimSuffix(filepath.Base(in), filepath.Ext(in)))
		if id == "" {
			id = "asset"
		}
		if n := seen[id]; n > 0 {
			seen[id] = n + 1
			id = fmt.Sprintf("%s-%d", id, n+1)
		} else {
			seen[id] = 1
		}
		fps, err := media.ProbeFrameRate(ctx, in)
		if err != nil {
			// Audio-only inputs have no video frame rate; the exporters
			// substitute their default rate for zero.
			fps = 0
		}
		assets = append(assets, types.Asset{ID: id, Path: in, Duration: dur, FrameRate: fps})
	}
	return assets, nil
}

// deriveJobID hashes the inputs and the style so re-running the same request
// produces the same job directory and the same draft IDs.
func deriveJobID(inputs []string, style types.Style) (string, error) {
	b, err := json.Marshal(style)
	if err != nil {
		return "", err
	}
	return hash(strings.Join(inputs, "|") + "|" + string(b)), nil
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.MediaTool = (*ffmpeg.Adapter)(nil)
var _ ports.Recognizer = (*whispercpp.Adapter)(nil)
var _ ports.ModelProvider = (*openaichat.Adapter)(nil)
var _ ports.ModelProvider = (*ollama.Adapter)(nil)
