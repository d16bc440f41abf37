package whispercpp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shortreel/shortreel/internal/types"
)

type Adapter struct {
	bin   string
	model string
}

func New(binPath, modelPath string) *Adapter {
	return &Adapter{bin: binPath, model: modelPath}
}

// whisper.cpp -oj output shape. Word probabilities are optional depending on
// the build; segments without them get confidence 1.0.
type transcriptJSON struct {
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []struct {
			Start       float64 `json:"start"`
			End         float64 `json:"end"`
			Word        string  `json:"word"`
			Probability float64 `json:"probability"`
		} `json:"words,omitempty"`
	} `json:"segments"`
}

func (a *Adapter) Transcribe(ctx context.Context, wavPath, cacheDir string) ([]types.Utterance, error) {
	outPrefix := filepath.Join(cacheDir, "whisper")
	args := []string{
		"-m", a.model,
		"-f", wavPath,
		"-oj",
		"-of", outPrefix,
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp failed: %w\n%s", err, string(b))
	}

	jb, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return nil, err
	}

	var tr transcriptJSON
	if err := json.Unmarshal(jb, &tr); err != nil {
		return nil, fmt.Errorf("parse whisper output: %w", err)
	}

	out := make([]types.Utterance, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" || s.End <= s.Start {
			continue
		}
		conf := 1.0
		if len(s.Words) > 0 {
			sum := 0.0
			for _, w := range s.Words {
				sum += w.Probability
			}
			conf = sum / float64(len(s.Words))
		}
		out = append(out, types.Utterance{
			Start:      dur(s.Start),
			End:        dur(s.End),
			Text:       text,
			Confidence: conf,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
