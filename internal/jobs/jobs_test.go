package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shortreel/shortreel/internal/types"
)

func sampleJob(id string) Job {
	return Job{
		ID: id,
		Assets: []types.Asset{
			{ID: "a1", Path: "/media/a1.mp4", Duration: 90 * time.Second, FrameRate: 30},
		},
		Style: types.Style{TargetDuration: 60 * time.Second}.Normalized(),
		Stage: StageSubmitted,
		Progress: Progress{
			AssetsTotal: 1,
		},
	}
}

func registries(t *testing.T) map[string]Registry {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "jobs.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Registry{
		"memory": NewMemoryRegistry(),
		"sqlite": sqlite,
	}
}

func TestRegistry_CreateGetUpdate(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := sampleJob("job-1")
			if err := reg.Create(ctx, job); err != nil {
				t.Fatalf("Create() error = %v", err)
			}

			got, err := reg.Get(ctx, "job-1")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.Stage != StageSubmitted {
				t.Errorf("stage = %s, want %s", got.Stage, StageSubmitted)
			}
			if len(got.Assets) != 1 || got.Assets[0].ID != "a1" {
				t.Errorf("assets = %+v, want one asset a1", got.Assets)
			}
			if got.Style.TargetDuration != 60*time.Second {
				t.Errorf("target duration = %v, want 60s", got.Style.TargetDuration)
			}

			got.Stage = StageAnalyzing
			got.Progress.StageIndex = StageIndex(StageAnalyzing)
			got.Degradations = append(got.Degradations, Degradation{
				AssetID: "a1", Stage: StageAnalyzing, Reason: "provider timeout",
			})
			got.BestEffort = true
			if err := reg.Update(ctx, got); err != nil {
				t.Fatalf("Update() error = %v", err)
			}

			got, err = reg.Get(ctx, "job-1")
			if err != nil {
				t.Fatalf("Get() after update error = %v", err)
			}
			if got.Stage != StageAnalyzing || got.Progress.StageIndex != 2 {
				t.Errorf("stage = %s index = %d, want analyzing/2", got.Stage, got.Progress.StageIndex)
			}
			if len(got.Degradations) != 1 || got.Degradations[0].Reason != "provider timeout" {
				t.Errorf("degradations = %+v", got.Degradations)
			}
			if !got.BestEffort {
				t.Error("best effort flag lost on round trip")
			}
		})
	}
}

func TestMemoryRegistry_CopiesOut(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()
	if err := reg.Create(ctx, sampleJob("job-1")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := reg.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.Assets[0].ID = "mutated"
	got.Stage = StageFailed

	again, err := reg.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if again.Assets[0].ID != "a1" || again.Stage != StageSubmitted {
		t.Errorf("stored job was mutated through a returned copy: %+v", again)
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := reg.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
			}
			if err := reg.Update(context.Background(), sampleJob("nope")); !errors.Is(err, ErrNotFound) {
				t.Errorf("Update(unknown) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestRegistry_ListNewestFirst(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
			for i, id := range []string{"old", "mid", "new"} {
				job := sampleJob(id)
				job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
				if err := reg.Create(ctx, job); err != nil {
					t.Fatalf("Create(%s) error = %v", id, err)
				}
			}

			jobs, err := reg.List(ctx, 2)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(jobs) != 2 {
				t.Fatalf("List() returned %d jobs, want 2", len(jobs))
			}
			if jobs[0].ID != "new" || jobs[1].ID != "mid" {
				t.Errorf("order = [%s %s], want [new mid]", jobs[0].ID, jobs[1].ID)
			}
		})
	}
}

func TestOpenSQLite_MarksInterruptedJobs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "jobs.db")
	ctx := context.Background()

	reg, err := OpenSQLite(dbPath, nil)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	running := sampleJob("running")
	running.Stage = StageAnalyzing
	if err := reg.Create(ctx, running); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	done := sampleJob("done")
	done.Stage = StageCompleted
	if err := reg.Create(ctx, done); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	reg.Close()

	reg, err = OpenSQLite(dbPath, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reg.Close()

	got, err := reg.Get(ctx, "running")
	if err != nil {
		t.Fatalf("Get(running) error = %v", err)
	}
	if got.Stage != StageFailed || got.ErrStage != StageAnalyzing {
		t.Errorf("interrupted job stage = %s errStage = %s, want failed/analyzing", got.Stage, got.ErrStage)
	}

	got, err = reg.Get(ctx, "done")
	if err != nil {
		t.Fatalf("Get(done) error = %v", err)
	}
	if got.Stage != StageCompleted {
		t.Errorf("completed job was touched: stage = %s", got.Stage)
	}
}

func TestStageIndex(t *testing.T) {
	if StageIndex(StageExporting) != 4 {
		t.Errorf("StageIndex(exporting) = %d, want 4", StageIndex(StageExporting))
	}
	if StageIndex(StageSubmitted) != 0 {
		t.Errorf("StageIndex(submitted) = %d, want 0", StageIndex(StageSubmitted))
	}
}
