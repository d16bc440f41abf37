// Package analysis derives semantic annotations (highlight score, topic,
// sentiment, theme relevance) for candidate segments through the model
// gateway. Failures degrade to the unscored sentinel; segments are never
// dropped here.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shortreel/shortreel/internal/ports"
	"github.com/shortreel/shortreel/internal/types"
)

// Inferer is the gateway surface the analyzer needs. *gateway.Gateway
// satisfies it.
type Inferer interface {
	Infer(ctx context.Context, req ports.ModelRequest, preferences []string) (ports.ModelResult, error)
}

type Options struct {
	// BatchSize segments per prompt, kept small enough for provider context
	// limits.
	BatchSize int
	// Samples is the number of highlight-scoring calls to aggregate per
	// batch. Aggregation is the arithmetic mean in call order.
	Samples int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 12
	}
	if o.Samples <= 0 {
		o.Samples = 1
	}
	return o
}

type Analyzer struct {
	gw     Inferer
	opts   Options
	logger *slog.Logger
}

func New(gw Inferer, opts Options, logger *slog.Logger) *Analyzer {
	return &Analyzer{gw: gw, opts: opts.withDefaults(), logger: logger}
}

// Annotate scores and labels segments in place and returns them. A segment
// whose scoring ultimately fails is retained with Scored=false and a reason;
// the selector ranks those below every scored segment.
func (a *Analyzer) Annotate(ctx context.Context, segs []types.Segment, style types.Style) []types.Segment {
	for start := 0; start < len(segs); start += a.opts.BatchSize {
		end := start + a.opts.BatchSize
		if end > len(segs) {
			end = len(segs)
		}
		a.annotateBatch(ctx, segs[start:end], style)
	}
	return segs
}

func (a *Analyzer) annotateBatch(ctx context.Context, batch []types.Segment, style types.Style) {
	prefs := style.ProviderPreferences

	scores, err := a.scoreHighlights(ctx, batch, prefs)
	if err != nil {
		a.logger.Warn("highlight scoring failed, batch left unscored", "segments", len(batch), "error", err)
		for i := range batch {
			batch[i].Ann = types.Annotations{Scored: false, Reason: reason(err)}
		}
		return
	}
	for i := range batch {
		s, ok := scores[i]
		if !ok {
			batch[i].Ann = types.Annotations{Scored: false, Reason: "missing index in provider response"}
			continue
		}
		batch[i].Ann = types.Annotations{Scored: true, Highlight: clamp01(s)}
	}

	// Labels enrich ranking but never unscore a segment on failure.
	if labels, err := a.classify(ctx, ports.CapClassifyTopic, "topic", batch, prefs); err == nil {
		for i := range batch {
			batch[i].Ann.Topic = labels[i]
		}
	} else {
		a.logger.Warn("topic classification failed", "error", err)
	}
	if labels, err := a.classify(ctx, ports.CapClassifySentiment, "sentiment", batch, prefs); err == nil {
		for i := range batch {
			batch[i].Ann.Sentiment = labels[i]
		}
	} else {
		a.logger.Warn("sentiment classification failed", "error", err)
	}

	if style.Theme != "" {
		if rels, err := a.scoreRelevance(ctx, batch, style.Theme, prefs); err == nil {
			for i := range batch {
				if r, ok := rels[i]; ok {
					batch[i].Ann.Relevance = clamp01(r)
				}
			}
		} else {
			a.logger.Warn("relevance scoring failed", "theme", style.Theme, "error", err)
		}
	}
}

// scoreHighlights aggregates Samples scoring calls by arithmetic mean in
// call order, so identical provider responses always produce identical
// annotations.
func (a *Analyzer) scoreHighlights(ctx context.Context, batch []types.Segment, prefs []string) (map[int]float64, error) {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for s := 0; s < a.opts.Samples; s++ {
		res, err := a.gw.Infer(ctx, ports.ModelRequest{
			Capability: ports.CapScoreHighlight,
			Input:      scorePrompt(batch),
		}, prefs)
		if err != nil {
			if s == 0 {
				return nil, err
			}
			// Keep whatever samples already succeeded.
			break
		}
		parsed, err := parseScores(res.Text)
		if err != nil {
			if s == 0 {
				return nil, err
			}
			break
		}
		for idx, sc := range parsed {
			if idx < 0 || idx >= len(batch) {
				continue
			}
			sums[idx] += sc
			counts[idx]++
		}
	}
	out := make(map[int]float64, len(sums))
	for idx, sum := range sums {
		out[idx] = sum / float64(counts[idx])
	}
	return out, nil
}

func (a *Analyzer) scoreRelevance(ctx context.Context, batch []types.Segment, theme string, prefs []string) (map[int]float64, error) {
	res, err := a.gw.Infer(ctx, ports.ModelRequest{
		Capability: ports.CapScoreRelevance,
		Input:      relevancePrompt(batch, theme),
	}, prefs)
	if err != nil {
		return nil, err
	}
	return parseScores(res.Text)
}

func (a *Analyzer) classify(ctx context.Context, cap ports.Capability, field string, batch []types.Segment, prefs []string) ([]string, error) {
	res, err := a.gw.Infer(ctx, ports.ModelRequest{
		Capability: cap,
		Input:      labelPrompt(batch, field),
	}, prefs)
	if err != nil {
		return nil, err
	}
	parsed, err := parseLabels(res.Text)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(batch))
	for idx, label := range parsed {
		if idx >= 0 && idx < len(batch) {
			out[idx] = label
		}
	}
	return out, nil
}

func reason(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// errInvalid tags parse failures so the gateway contract stays visible to
// callers inspecting wrapped errors.
var errInvalid = errors.New("unparseable analysis response")

func parseScores(text string) (map[int]float64, error) {
	arr, err := extractJSONArray(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalid, err)
	}
	var rows []struct {
		Idx   int     `json:"idx"`
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(arr), &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalid, err)
	}
	out := make(map[int]float64, len(rows))
	for _, r := range rows {
		out[r.Idx] = r.Score
	}
	return out, nil
}

func parseLabels(text string) (map[int]string, error) {
	arr, err := extractJSONArray(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalid, err)
	}
	var rows []struct {
		Idx   int    `json:"idx"`
		Label string `json:"label"`
	}
	if err := json.Unmarshal([]byte(arr), &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalid, err)
	}
	out := make(map[int]string, len(rows))
	for _, r := range rows {
		out[r.Idx] = strings.ToLower(strings.TrimSpace(r.Label))
	}
	return out, nil
}

// extractJSONArray tolerates markdown fences and prose around the payload;
// models wrap JSON more often than not.
func extractJSONArray(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("empty content")
	}
	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}
	start := strings.Index(t, "[")
	end := strings.LastIndex(t, "]")
	if start >= 0 && end > start {
		return t[start : end+1], nil
	}
	return "", fmt.Errorf("could not locate JSON array in: %.120q", t)
}
