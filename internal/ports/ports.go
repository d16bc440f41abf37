package ports

import (
	"context"
	"errors"
	"time"

	"github.com/shortreel/shortreel/internal/types"
)

// MediaTool wraps the external media toolkit (ffmpeg). The pipeline never
// touches pixels or samples itself.
type MediaTool interface {
	ExtractAudioMono16k(ctx context.Context, inVideo, outWav string) error
	HasAudioStream(ctx context.Context, inVideo string) (bool, error)
	ProbeDuration(ctx context.Context, inVideo string) (time.Duration, error)
	ProbeFrameRate(ctx context.Context, inVideo string) (float64, error)
}

// Recognizer wraps an external speech-to-text capability.
type Recognizer interface {
	Transcribe(ctx context.Context, wavPath, cacheDir string) ([]types.Utterance, error)
}

// Capability is an abstract AI task type, decoupled from any provider.
type Capability string

const (
	CapScoreHighlight    Capability = "score-highlight"
	CapScoreRelevance    Capability = "score-relevance"
	CapClassifyTopic     Capability = "classify-topic"
	CapClassifySentiment Capability = "classify-sentiment"
	CapSummarize         Capability = "summarize"
)

// ModelRequest is a capability-oriented inference request. Input carries the
// full prompt; providers add no prompt content of their own.
type ModelRequest struct {
	Capability Capability
	Input      string
	MaxTokens  int
}

// ModelResult is the normalized provider response. Text always holds the raw
// model output; callers parse it against the schema they asked for.
type ModelResult struct {
	Provider string
	Text     string
}

// ErrTransient marks provider failures worth retrying: network timeouts,
// rate-limit responses, 5xx statuses. Adapters wrap it; the gateway checks it.
var ErrTransient = errors.New("transient provider failure")

// ModelProvider is one AI vendor behind the gateway. Implementations must be
// safe for concurrent use.
type ModelProvider interface {
	Name() string
	Capabilities() []Capability
	Infer(ctx context.Context, req ModelRequest) (ModelResult, error)
}
