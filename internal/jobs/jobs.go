// Package jobs holds the job record, its lifecycle states, and the registry
// implementations that store it.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shortreel/shortreel/internal/types"
)

// Stage values. A job walks them in order; Failed is reachable from any
// non-terminal stage.
const (
	StageSubmitted    = "submitted"
	StageTranscribing = "transcribing"
	StageAnalyzing    = "analyzing"
	StageSelecting    = "selecting"
	StageExporting    = "exporting"
	StageCompleted    = "completed"
	StageFailed       = "failed"
)

// StageIndex gives the monotonically increasing progress counter for a
// stage; Failed keeps the index of the stage it failed in.
func StageIndex(stage string) int {
	switch stage {
	case StageSubmitted:
		return 0
	case StageTranscribing:
		return 1
	case StageAnalyzing:
		return 2
	case StageSelecting:
		return 3
	case StageExporting:
		return 4
	case StageCompleted:
		return 5
	default:
		return 0
	}
}

// Error kinds surfaced to callers on failure.
const (
	ErrKindExtraction = "extraction"
	ErrKindProvider   = "provider"
	ErrKindSelection  = "selection"
	ErrKindExport     = "export"
	ErrKindTimeout    = "timeout"
	ErrKindCanceled   = "canceled"
)

// Degradation records one absorbed segment/asset failure so nothing is
// silently dropped even when the job succeeds.
type Degradation struct {
	AssetID string `json:"asset_id,omitempty"`
	Stage   string `json:"stage"`
	Reason  string `json:"reason"`
}

// Progress is the per-stage status exposed to callers.
type Progress struct {
	StageIndex  int `json:"stage_index"`
	AssetsTotal int `json:"assets_total"`
	AssetsDone  int `json:"assets_done"`
}

// Job is one end-to-end pipeline run. The orchestrator is its only writer.
type Job struct {
	ID           string        `json:"id"`
	Assets       []types.Asset `json:"assets"`
	Style        types.Style   `json:"style"`
	Stage        string        `json:"stage"`
	Progress     Progress      `json:"progress"`
	Degradations []Degradation `json:"degradations,omitempty"`
	BestEffort   bool          `json:"best_effort"`
	ArtifactPath string        `json:"artifact_path,omitempty"`
	ErrKind      string        `json:"error_kind,omitempty"`
	ErrMessage   string        `json:"error_message,omitempty"`
	ErrStage     string        `json:"error_stage,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func (j Job) Terminal() bool {
	return j.Stage == StageCompleted || j.Stage == StageFailed
}

// NewID returns a fresh job identifier.
func NewID() string { return uuid.NewString() }

// ErrNotFound reports an unknown job ID.
var ErrNotFound = errors.New("job not found")

// Registry stores job records. Implementations must be safe for one writer
// and many readers per job.
type Registry interface {
	Create(ctx context.Context, job Job) error
	Update(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	List(ctx context.Context, limit int) ([]Job, error)
}
