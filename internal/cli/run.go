package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shortreel/shortreel/internal/logging"
	"github.com/shortreel/shortreel/internal/pipeline"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <input>...",
		Short: "Run one job against local footage and write the draft",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runOneShot,
	}

	cmd.Flags().Int("target", 60, "Target reel duration in seconds")
	cmd.Flags().Int("tolerance", 5, "Allowed deviation from target in seconds")
	cmd.Flags().String("order", "", "Clip order: chronological or highlight-reel")
	cmd.Flags().Int("max-clips", 0, "Maximum number of clips (0 = default)")
	cmd.Flags().String("transition", "", "Transition between clips (e.g. dissolve)")
	cmd.Flags().String("effect", "", "Effect applied to every clip (e.g. zoom_in)")
	cmd.Flags().String("theme", "", "Theme used for relevance scoring")
	cmd.Flags().String("aspect", "9:16", "Output aspect ratio")
	cmd.Flags().String("format", "jianying", "Draft format: jianying or edl")

	return cmd
}

func runOneShot(cmd *cobra.Command, args []string) error {
	inputs := make([]string, 0, len(args))
	for _, in := range args {
		abs, err := filepath.Abs(in)
		if err != nil {
			return err
		}
		inputs = append(inputs, abs)
	}

	targetSec, _ := cmd.Flags().GetInt("target")
	toleranceSec, _ := cmd.Flags().GetInt("tolerance")
	order, _ := cmd.Flags().GetString("order")
	maxClips, _ := cmd.Flags().GetInt("max-clips")
	transition, _ := cmd.Flags().GetString("transition")
	effect, _ := cmd.Flags().GetString("effect")
	theme, _ := cmd.Flags().GetString("theme")
	aspect, _ := cmd.Flags().GetString("aspect")
	format, _ := cmd.Flags().GetString("format")
	outDir, _ := cmd.Flags().GetString("out")
	cacheDir, _ := cmd.Flags().GetString("cache")
	logLevel, _ := cmd.Flags().GetString("log-level")

	logger := logging.NewLogger(logLevel)

	ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Hour)
	defer cancel()

	cfg := pipeline.Config{
		Inputs:   inputs,
		OutDir:   outDir,
		CacheDir: cacheDir,

		TargetDuration: time.Duration(targetSec) * time.Second,
		Tolerance:      time.Duration(toleranceSec) * time.Second,
		Order:          order,
		MaxClips:       maxClips,
		Transition:     transition,
		Effect:         effect,
		Theme:          theme,
		AspectRatio:    aspect,
		Format:         format,

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

		ProviderPreferences: splitHosts(os.Getenv("SHORTREEL_PROVIDERS")),

		Logger: logger,
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	res, err := pipeline.Run(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "draft: %s\n", res.ArtifactPath)
	if res.BestEffort {
		fmt.Fprintln(cmd.OutOrStdout(), "note: target duration could not be met, draft is best effort")
	}
	for _, d := range res.Degradations {
		fmt.Fprintf(cmd.OutOrStdout(), "degraded (%s, %s): %s\n", d.Stage, d.AssetID, d.Reason)
	}
	return nil
}

func splitHosts(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
