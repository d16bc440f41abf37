package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shortreel/shortreel/internal/jobs"
	"github.com/shortreel/shortreel/internal/types"
)

type fakeRunner struct {
	registry  jobs.Registry
	submitErr error
	canceled  []string
	gotStyle  types.Style
}

func (f *fakeRunner) Submit(ctx context.Context, inputs []string, style types.Style) (jobs.Job, error) {
	if f.submitErr != nil {
		return jobs.Job{}, f.submitErr
	}
	f.gotStyle = style
	job := jobs.Job{
		ID:    "job-1",
		Stage: jobs.StageSubmitted,
		Progress: jobs.Progress{
			AssetsTotal: len(inputs),
		},
	}
	if err := f.registry.Create(ctx, job); err != nil {
		return jobs.Job{}, err
	}
	return job, nil
}

func (f *fakeRunner) Cancel(jobID string) {
	f.canceled = append(f.canceled, jobID)
}

func testConfig(t *testing.T) (ServerConfig, *fakeRunner) {
	t.Helper()
	reg := jobs.NewMemoryRegistry()
	runner := &fakeRunner{registry: reg}
	return ServerConfig{
		Registry:  reg,
		Runner:    runner,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		StartTime: time.Now(),
	}, runner
}

func doRequest(cfg ServerConfig, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, &buf)
	NewRouter(cfg).ServeHTTP(rr, req)
	return rr
}

func TestSubmitJobHandler(t *testing.T) {
	cfg, runner := testConfig(t)

	rr := doRequest(cfg, http.MethodPost, "/jobs", SubmitJobRequest{
		Inputs: []string{"/media/a.mp4"},
		Style: StyleRequest{
			TargetDurationSec: 45,
			ToleranceSec:      5,
			Theme:             "product demo",
		},
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status code = %d, want %d: %s", rr.Code, http.StatusAccepted, rr.Body)
	}

	var resp SubmitJobResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobID != "job-1" {
		t.Errorf("job_id = %q", resp.JobID)
	}
	if runner.gotStyle.TargetDuration != 45*time.Second || runner.gotStyle.Theme != "product demo" {
		t.Errorf("runner style = %+v", runner.gotStyle)
	}
}

func TestSubmitJobHandler_Validation(t *testing.T) {
	cfg, _ := testConfig(t)

	tests := []struct {
		name string
		req  SubmitJobRequest
	}{
		{"no inputs", SubmitJobRequest{Style: StyleRequest{TargetDurationSec: 45}}},
		{"zero target", SubmitJobRequest{Inputs: []string{"/media/a.mp4"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(cfg, http.MethodPost, "/jobs", tt.req)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status code = %d, want %d", rr.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestGetJobHandler(t *testing.T) {
	cfg, _ := testConfig(t)
	job := jobs.Job{
		ID:    "job-9",
		Stage: jobs.StageCompleted,
		Progress: jobs.Progress{
			StageIndex: 5, AssetsTotal: 2, AssetsDone: 2,
		},
		BestEffort:   true,
		ArtifactPath: "/out/job-9/draft_content.json",
		Degradations: []jobs.Degradation{{AssetID: "a1", Stage: jobs.StageAnalyzing, Reason: "unscored"}},
	}
	if err := cfg.Registry.Create(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	rr := doRequest(cfg, http.MethodGet, "/jobs/job-9", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	var resp JobResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Stage != jobs.StageCompleted || !resp.BestEffort || len(resp.Degradations) != 1 {
		t.Errorf("response = %+v", resp)
	}

	rr = doRequest(cfg, http.MethodGet, "/jobs/missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status code for missing job = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestListJobsHandler(t *testing.T) {
	cfg, _ := testConfig(t)
	for _, id := range []string{"a", "b"} {
		if err := cfg.Registry.Create(context.Background(), jobs.Job{ID: id, Stage: jobs.StageSubmitted}); err != nil {
			t.Fatal(err)
		}
	}

	rr := doRequest(cfg, http.MethodGet, "/jobs", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	var resp JobsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Jobs) != 2 {
		t.Errorf("jobs = %d, want 2", len(resp.Jobs))
	}
}

func TestCancelJobHandler(t *testing.T) {
	cfg, runner := testConfig(t)
	if err := cfg.Registry.Create(context.Background(), jobs.Job{ID: "running", Stage: jobs.StageAnalyzing}); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Registry.Create(context.Background(), jobs.Job{ID: "done", Stage: jobs.StageCompleted}); err != nil {
		t.Fatal(err)
	}

	rr := doRequest(cfg, http.MethodPost, "/jobs/running/cancel", nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusAccepted)
	}
	if len(runner.canceled) != 1 || runner.canceled[0] != "running" {
		t.Errorf("canceled = %v", runner.canceled)
	}

	rr = doRequest(cfg, http.MethodPost, "/jobs/done/cancel", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status code for finished job = %d, want %d", rr.Code, http.StatusConflict)
	}

	rr = doRequest(cfg, http.MethodPost, "/jobs/missing/cancel", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status code for missing job = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestHealthHandler(t *testing.T) {
	cfg, _ := testConfig(t)
	rr := doRequest(cfg, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Version != Version {
		t.Errorf("health = %+v", resp)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}
