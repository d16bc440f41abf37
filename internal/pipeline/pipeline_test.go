package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shortreel/shortreel/internal/types"
)

type fakeMedia struct {
	durations map[string]time.Duration
	rates     map[string]float64
	rateErrs  map[string]error
}

func (f *fakeMedia) ExtractAudioMono16k(context.Context, string, string) error { return nil }
func (f *fakeMedia) HasAudioStream(context.Context, string) (bool, error)      { return true, nil }

func (f *fakeMedia) ProbeDuration(_ context.Context, in string) (time.Duration, error) {
	return f.durations[in], nil
}

func (f *fakeMedia) ProbeFrameRate(_ context.Context, in string) (float64, error) {
	if err := f.rateErrs[in]; err != nil {
		return 0, err
	}
	return f.rates[in], nil
}

func TestProbeAssets_FillsDurationAndFrameRate(t *testing.T) {
	media := &fakeMedia{
		durations: map[string]time.Duration{
			"/in/talk.mp4":  time.Minute,
			"/in/voice.m4a": 30 * time.Second,
		},
		rates:    map[string]float64{"/in/talk.mp4": 30000.0 / 1001.0},
		rateErrs: map[string]error{"/in/voice.m4a": errors.New("no video stream frame rate")},
	}

	assets, err := probeAssets(context.Background(), media, []string{"/in/talk.mp4", "/in/voice.m4a"})
	if err != nil {
		t.Fatalf("probeAssets() error = %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("len(assets) = %d, want 2", len(assets))
	}
	if assets[0].Duration != time.Minute || assets[0].FrameRate < 29.9 || assets[0].FrameRate > 30 {
		t.Errorf("talk asset = %+v, want 60s at ~29.97fps", assets[0])
	}
	if assets[1].FrameRate != 0 {
		t.Errorf("voice asset frame rate = %v, want 0 for audio-only input", assets[1].FrameRate)
	}
}

func TestDeriveJobID_Deterministic(t *testing.T) {
	style := types.Style{TargetDuration: 45 * time.Second}.Normalized()
	a, err := deriveJobID([]string{"/tmp/a.mp4", "/tmp/b.mp4"}, style)
	if err != nil {
		t.Fatalf("deriveJobID() error = %v", err)
	}
	b, err := deriveJobID([]string{"/tmp/a.mp4", "/tmp/b.mp4"}, style)
	if err != nil {
		t.Fatalf("deriveJobID() error = %v", err)
	}
	if a != b {
		t.Fatalf("same request produced different job IDs: %s vs %s", a, b)
	}
	if len(a) != 12 {
		t.Fatalf("job ID length = %d, want 12", len(a))
	}

	other, err := deriveJobID([]string{"/tmp/a.mp4"}, style)
	if err != nil {
		t.Fatalf("deriveJobID() error = %v", err)
	}
	if other == a {
		t.Fatal("different inputs produced the same job ID")
	}

	styled := style
	styled.Theme = "startup pitch"
	themed, err := deriveJobID([]string{"/tmp/a.mp4", "/tmp/b.mp4"}, styled)
	if err != nil {
		t.Fatalf("deriveJobID() error = %v", err)
	}
	if themed == a {
		t.Fatal("different style produced the same job ID")
	}
}

func TestNormalizePathSegment(t *testing.T) {
	tests := map[string]string{
		"  My Cool.Video  ": "my-cool-video",
		"___":               "",
		"abc123":            "abc123",
		"Name (v2)!":        "name-v2",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			if got := normalizePathSegment(in); got != want {
				t.Fatalf("normalizePathSegment(%q) = %q, want %q", in, got, want)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.mp4")
	if err := os.WriteFile(input, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	valid := Config{
		Inputs:         []string{input},
		TargetDuration: 45 * time.Second,
		WhisperModel:   "/models/ggml-base.bin",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no inputs", func(c *Config) { c.Inputs = nil }},
		{"missing input", func(c *Config) { c.Inputs = []string{filepath.Join(dir, "nope.mp4")} }},
		{"zero target", func(c *Config) { c.TargetDuration = 0 }},
		{"negative tolerance", func(c *Config) { c.Tolerance = -time.Second }},
		{"no whisper model", func(c *Config) { c.WhisperModel = "" }},
		{"ollama bad host", func(c *Config) {
			c.OllamaModel = "llama3.2"
			c.OllamaBaseURL = "http://attacker.example.com"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("Validate() = nil, want error")
			}
		})
	}
}
