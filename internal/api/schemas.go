package api

import (
	"time"

	"github.com/shortreel/shortreel/internal/jobs"
	"github.com/shortreel/shortreel/internal/types"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type StyleRequest struct {
	TargetDurationSec   float64  `json:"target_duration_sec"`
	ToleranceSec        float64  `json:"tolerance_sec,omitempty"`
	Order               string   `json:"order,omitempty"`
	MaxClips            int      `json:"max_clips,omitempty"`
	Transition          string   `json:"transition,omitempty"`
	Effect              string   `json:"effect,omitempty"`
	Theme               string   `json:"theme,omitempty"`
	AspectRatio         string   `json:"aspect_ratio,omitempty"`
	Format              string   `json:"format,omitempty"`
	ProviderPreferences []string `json:"provider_preferences,omitempty"`
}

func (r StyleRequest) ToStyle() types.Style {
	return types.Style{
		TargetDuration:      time.Duration(r.TargetDurationSec * float64(time.Second)),
		Tolerance:           time.Duration(r.ToleranceSec * float64(time.Second)),
		Order:               r.Order,
		MaxClips:            r.MaxClips,
		Transition:          r.Transition,
		Effect:              r.Effect,
		Theme:               r.Theme,
		AspectRatio:         r.AspectRatio,
		Format:              r.Format,
		Weights:             types.DefaultWeights(),
		ProviderPreferences: r.ProviderPreferences,
	}
}

type SubmitJobRequest struct {
	Inputs []string     `json:"inputs"`
	Style  StyleRequest `json:"style"`
}

type SubmitJobResponse struct {
	JobID string `json:"job_id"`
}

type ProgressResponse struct {
	StageIndex  int `json:"stage_index"`
	AssetsTotal int `json:"assets_total"`
	AssetsDone  int `json:"assets_done"`
}

type DegradationResponse struct {
	AssetID string `json:"asset_id,omitempty"`
	Stage   string `json:"stage"`
	Reason  string `json:"reason"`
}

type JobResponse struct {
	ID           string                `json:"id"`
	Stage        string                `json:"stage"`
	Progress     ProgressResponse      `json:"progress"`
	Degradations []DegradationResponse `json:"degradations,omitempty"`
	BestEffort   bool                  `json:"best_effort"`
	ArtifactPath string                `json:"artifact_path,omitempty"`
	ErrorKind    string                `json:"error_kind,omitempty"`
	ErrorMessage string                `json:"error_message,omitempty"`
	ErrorStage   string                `json:"error_stage,omitempty"`
	CreatedAt    string                `json:"created_at"`
	UpdatedAt    string                `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

func JobToResponse(j jobs.Job) JobResponse {
	resp := JobResponse{
		ID:    j.ID,
		Stage: j.Stage,
		Progress: ProgressResponse{
			StageIndex:  j.Progress.StageIndex,
			AssetsTotal: j.Progress.AssetsTotal,
			AssetsDone:  j.Progress.AssetsDone,
		},
		BestEffort:   j.BestEffort,
		ArtifactPath: j.ArtifactPath,
		ErrorKind:    j.ErrKind,
		ErrorMessage: j.ErrMessage,
		ErrorStage:   j.ErrStage,
		CreatedAt:    j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    j.UpdatedAt.Format(time.RFC3339),
	}
	for _, d := range j.Degradations {
		resp.Degradations = append(resp.Degradations, DegradationResponse{
			AssetID: d.AssetID,
			Stage:   d.Stage,
			Reason:  d.Reason,
		})
	}
	return resp
}
