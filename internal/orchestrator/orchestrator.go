// Package orchestrator drives a job through the pipeline stages and owns
// every write to its registry record.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shortreel/shortreel/internal/domain/analysis"
	"github.com/shortreel/shortreel/internal/domain/segmenting"
	"github.com/shortreel/shortreel/internal/domain/selection"
	"github.com/shortreel/shortreel/internal/jobs"
	"github.com/shortreel/shortreel/internal/types"
)

// Extractor produces utterances for one asset. A nil slice with a nil error
// means the asset has no usable audio.
type Extractor interface {
	Extract(ctx context.Context, asset types.Asset) ([]types.Utterance, error)
}

// Annotator enriches segments with model annotations. It degrades rather
// than fails: segments come back tagged, never dropped.
type Annotator interface {
	Annotate(ctx context.Context, segs []types.Segment, style types.Style) []types.Segment
}

// Exporter writes the draft artifact and returns its path.
type Exporter interface {
	Export(jobID, format string, assets map[string]types.Asset, tl types.Timeline, outDir string) (string, error)
}

// Options bound the heavy stages' wall clock and the per-asset fan-out width.
type Options struct {
	TranscribeTimeout time.Duration
	AnalyzeTimeout    time.Duration
	MaxParallelAssets int
	Segmenting        segmenting.Options
}

func (o Options) withDefaults() Options {
	if o.TranscribeTimeout <= 0 {
		o.TranscribeTimeout = 30 * time.Minute
	}
	if o.AnalyzeTimeout <= 0 {
		o.AnalyzeTimeout = 15 * time.Minute
	}
	if o.MaxParallelAssets <= 0 {
		o.MaxParallelAssets = 3
	}
	return o
}

type Orchestrator struct {
	extractor Extractor
	annotator Annotator
	exporter  Exporter
	registry  jobs.Registry
	outDir    string // each job exports into outDir/<jobID>
	opts      Options
	logger    *slog.Logger

	mu       sync.Mutex
	canceled map[string]bool
}

func New(extractor Extractor, annotator Annotator, exporter Exporter, registry jobs.Registry, outDir string, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		extractor: extractor,
		annotator: annotator,
		exporter:  exporter,
		registry:  registry,
		outDir:    outDir,
		opts:      opts.withDefaults(),
		logger:    logger,
		canceled:  make(map[string]bool),
	}
}

// Cancel requests cancellation of a job. The request takes effect at the
// next stage boundary; the stage in flight runs to completion.
func (o *Orchestrator) Cancel(jobID string) {
	o.mu.Lock()
	o.canceled[jobID] = true
	o.mu.Unlock()
}

func (o *Orchestrator) isCanceled(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.canceled[jobID]
}

// Run drives one job to a terminal stage. The returned job mirrors the
// final registry record.
func (o *Orchestrator) Run(ctx context.Context, job jobs.Job) (jobs.Job, error) {
	log := o.logger.With("job_id", job.ID)
	job.Style = job.Style.Normalized()
	job.Progress.AssetsTotal = len(job.Assets)

	defer func() {
		o.mu.Lock()
		delete(o.canceled, job.ID)
		o.mu.Unlock()
	}()

	segments, job, err := o.transcribe(ctx, job, log)
	if err != nil {
		return o.fail(ctx, job, err)
	}

	if job, err = o.boundary(ctx, job, jobs.StageAnalyzing); err != nil {
		return o.fail(ctx, job, err)
	}
	segments, job, err = o.analyze(ctx, job, segments, log)
	if err != nil {
		return o.fail(ctx, job, err)
	}

	if job, err = o.boundary(ctx, job, jobs.StageSelecting); err != nil {
		return o.fail(ctx, job, err)
	}
	timeline, err := o.selectClips(ctx, segments, job.Style)
	if err != nil {
		return o.fail(ctx, job, err)
	}
	job.BestEffort = job.BestEffort || timeline.BestEffort

	if job, err = o.boundary(ctx, job, jobs.StageExporting); err != nil {
		return o.fail(ctx, job, err)
	}
	artifact, err := o.export(ctx, job, timeline)
	if err != nil {
		return o.fail(ctx, job, err)
	}

	job.ArtifactPath = artifact
	job.Stage = jobs.StageCompleted
	job.Progress.StageIndex = jobs.StageIndex(jobs.StageCompleted)
	if err := o.registry.Update(ctx, job); err != nil {
		return job, err
	}
	log.Info("job completed", "artifact", artifact, "best_effort", job.BestEffort,
		"degradations", len(job.Degradations))
	return job, nil
}

// boundary advances to the next stage unless the job was canceled.
func (o *Orchestrator) boundary(ctx context.Context, job jobs.Job, next string) (jobs.Job, error) {
	if o.isCanceled(job.ID) {
		return job, &stageError{kind: jobs.ErrKindCanceled, stage: job.Stage, err: errors.New("canceled by caller")}
	}
	job.Stage = next
	job.Progress.StageIndex = jobs.StageIndex(next)
	if err := o.registry.Update(ctx, job); err != nil {
		return job, &stageError{kind: jobs.ErrKindProvider, stage: next, err: err}
	}
	return job, nil
}

func (o *Orchestrator) transcribe(ctx context.Context, job jobs.Job, log *slog.Logger) ([]types.Segment, jobs.Job, error) {
	job, err := o.boundary(ctx, job, jobs.StageTranscribing)
	if err != nil {
		return nil, job, err
	}

	stageCtx, cancel := context.WithTimeout(ctx, o.opts.TranscribeTimeout)
	defer cancel()

	var mu sync.Mutex
	perAsset := make(map[string][]types.Segment, len(job.Assets))
	var degradations []jobs.Degradation
	done := 0

	g, gctx := errgroup.WithContext(stageCtx)
	g.SetLimit(o.opts.MaxParallelAssets)
	for _, asset := range job.Assets {
		asset := asset
		g.Go(func() error {
			utts, err := o.extractor.Extract(gctx, asset)

			mu.Lock()
			defer mu.Unlock()
			done++
			job.Progress.AssetsDone = done

			switch {
			case err != nil:
				log.Warn("asset extraction failed", "asset_id", asset.ID, "error", err)
				degradations = append(degradations, jobs.Degradation{
					AssetID: asset.ID,
					Stage:   jobs.StageTranscribing,
					Reason:  err.Error(),
				})
			case len(utts) == 0:
				// No audio stream; fall back to evenly spaced scene segments.
				perAsset[asset.ID] = segmenting.FixedInterval(asset.ID, asset.Duration, 0)
			default:
				perAsset[asset.ID] = segmenting.FromUtterances(utts, o.opts.Segmenting)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, job, &stageError{kind: jobs.ErrKindExtraction, stage: jobs.StageTranscribing, err: err}
	}
	if err := stageCtx.Err(); err != nil {
		return nil, job, &stageError{kind: jobs.ErrKindTimeout, stage: jobs.StageTranscribing, err: err}
	}

	job.Degradations = append(job.Degradations, degradations...)
	if len(perAsset) == 0 {
		return nil, job, &stageError{
			kind:  jobs.ErrKindExtraction,
			stage: jobs.StageTranscribing,
			err:   errors.New("all assets failed extraction"),
		}
	}

	ids := make([]string, 0, len(perAsset))
	for id := range perAsset {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var segments []types.Segment
	for _, id := range ids {
		segments = append(segments, perAsset[id]...)
	}
	if err := o.registry.Update(ctx, job); err != nil {
		return nil, job, &stageError{kind: jobs.ErrKindProvider, stage: jobs.StageTranscribing, err: err}
	}
	return segments, job, nil
}

func (o *Orchestrator) analyze(ctx context.Context, job jobs.Job, segments []types.Segment, log *slog.Logger) ([]types.Segment, jobs.Job, error) {
	stageCtx, cancel := context.WithTimeout(ctx, o.opts.AnalyzeTimeout)
	defer cancel()

	annotated := o.annotator.Annotate(stageCtx, segments, job.Style)

	// Per-call provider timeouts only degrade segments; the stage budget
	// expiring fails the job.
	if err := stageCtx.Err(); err != nil {
		return annotated, job, &stageError{kind: jobs.ErrKindTimeout, stage: jobs.StageAnalyzing, err: err}
	}

	// Unscored segments stay in play but are surfaced on the job record.
	unscored := make(map[string]int)
	reasons := make(map[string]string)
	for _, seg := range annotated {
		if seg.Ann.Scored {
			continue
		}
		unscored[seg.AssetID]++
		if reasons[seg.AssetID] == "" && seg.Ann.Reason != "" {
			reasons[seg.AssetID] = seg.Ann.Reason
		}
	}
	ids := make([]string, 0, len(unscored))
	for id := range unscored {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		reason := reasons[id]
		if reason == "" {
			reason = "segments left unscored"
		}
		log.Warn("analysis degraded", "asset_id", id, "unscored", unscored[id], "reason", reason)
		job.Degradations = append(job.Degradations, jobs.Degradation{
			AssetID: id,
			Stage:   jobs.StageAnalyzing,
			Reason:  fmt.Sprintf("%d segment(s) unscored: %s", unscored[id], reason),
		})
	}
	return annotated, job, nil
}

func (o *Orchestrator) selectClips(ctx context.Context, segments []types.Segment, style types.Style) (types.Timeline, error) {
	if err := ctx.Err(); err != nil {
		return types.Timeline{}, &stageError{kind: jobs.ErrKindTimeout, stage: jobs.StageSelecting, err: err}
	}
	tl, err := selection.Select(segments, style)
	if err != nil {
		return types.Timeline{}, &stageError{kind: jobs.ErrKindSelection, stage: jobs.StageSelecting, err: err}
	}
	return tl, nil
}

func (o *Orchestrator) export(ctx context.Context, job jobs.Job, tl types.Timeline) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &stageError{kind: jobs.ErrKindTimeout, stage: jobs.StageExporting, err: err}
	}
	assets := make(map[string]types.Asset, len(job.Assets))
	for _, a := range job.Assets {
		assets[a.ID] = a
	}
	path, err := o.exporter.Export(job.ID, job.Style.Format, assets, tl, filepath.Join(o.outDir, job.ID))
	if err != nil {
		return "", &stageError{kind: jobs.ErrKindExport, stage: jobs.StageExporting, err: err}
	}
	return path, nil
}

// fail records the terminal failure on the job and returns it. The original
// error is preserved on the job record, not the return value: a failed job
// is a handled outcome.
func (o *Orchestrator) fail(ctx context.Context, job jobs.Job, err error) (jobs.Job, error) {
	var se *stageError
	if !errors.As(err, &se) {
		se = &stageError{kind: jobs.ErrKindProvider, stage: job.Stage, err: err}
	}
	job.ErrKind = se.kind
	job.ErrStage = se.stage
	job.ErrMessage = se.err.Error()
	job.Stage = jobs.StageFailed
	if uerr := o.registry.Update(ctx, job); uerr != nil {
		return job, uerr
	}
	o.logger.Warn("job failed", "job_id", job.ID, "kind", se.kind, "stage", se.stage, "error", se.err)
	return job, nil
}

type stageError struct {
	kind  string
	stage string
	err   error
}

func (e *stageError) Error() string {
	return fmt.Sprintf("%s stage: %s: %v", e.stage, e.kind, e.err)
}

func (e *stageError) Unwrap() error { return e.err }

var _ Annotator = (*analysis.Analyzer)(nil)
