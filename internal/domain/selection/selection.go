// Package selection turns annotated segments into an ordered timeline that
// fits the target duration.
package selection

import (
	"errors"
	"sort"
	"time"

	"github.com/shortreel/shortreel/internal/types"
)

// ErrNoCandidates is the only failure mode: there was nothing to select
// from. Everything else resolves to a best-effort timeline.
var ErrNoCandidates = errors.New("no candidate segments")

// adjacencyGap is the largest source-time gap at which two clips from the
// same asset are treated as continuous and joined by a hard cut instead of
// the styled transition.
const adjacencyGap = 250 * time.Millisecond

// Select ranks segments by composite score, greedily packs them into the
// target duration, orders them per style, and assigns transitions. Ties
// break by earliest source timestamp, then asset ID, so identical inputs
// always yield identical timelines.
func Select(segs []types.Segment, style types.Style) (types.Timeline, error) {
	style = style.Normalized()
	if len(segs) == 0 {
		return types.Timeline{}, ErrNoCandidates
	}

	ranked := make([]types.Segment, len(segs))
	copy(ranked, segs)
	sort.SliceStable(ranked, func(i, j int) bool {
		return rankLess(ranked[i], ranked[j], style.Weights)
	})

	accepted := pack(ranked, style)
	bestEffort := false
	if len(accepted) == 0 {
		// Nothing fits inside target+tolerance: keep the single shortest
		// candidate and flag the result.
		accepted = []types.Segment{shortest(ranked)}
		bestEffort = true
	}

	total := time.Duration(0)
	for _, s := range accepted {
		total += s.Duration()
	}
	if delta := total - style.TargetDuration; delta > style.Tolerance || -delta > style.Tolerance {
		bestEffort = true
	}

	orderEntries(accepted, style)

	tl := types.Timeline{
		TargetDuration: style.TargetDuration,
		AspectRatio:    style.AspectRatio,
		Order:          style.Order,
		BestEffort:     bestEffort,
	}
	offset := time.Duration(0)
	for i, s := range accepted {
		e := types.TimelineEntry{
			Segment:     s,
			Index:       i,
			OutputStart: offset,
			Effect:      style.Effect,
		}
		if i > 0 {
			e.Transition = transitionFor(accepted[i-1], s, style.Transition)
		}
		tl.Entries = append(tl.Entries, e)
		offset += s.Duration()
	}
	return tl, nil
}

// Composite combines the ranking signals; unscored segments get no highlight
// or relevance contribution, which together with rankLess puts them behind
// every scored segment.
func Composite(s types.Segment, w types.Weights) float64 {
	if !s.Ann.Scored {
		return 0
	}
	return w.Highlight*s.Ann.Highlight + w.Relevance*s.Ann.Relevance + w.Confidence*s.Confidence
}

func rankLess(a, b types.Segment, w types.Weights) bool {
	if a.Ann.Scored != b.Ann.Scored {
		return a.Ann.Scored
	}
	sa, sb := Composite(a, w), Composite(b, w)
	if sa != sb {
		return sa > sb
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.AssetID < b.AssetID
}

func pack(ranked []types.Segment, style types.Style) []types.Segment {
	limit := style.TargetDuration + style.Tolerance
	var out []types.Segment
	var total time.Duration
	for _, s := range ranked {
		if len(out) >= style.MaxClips {
			break
		}
		if total+s.Duration() > limit {
			continue
		}
		out = append(out, s)
		total += s.Duration()
	}
	return out
}

func shortest(segs []types.Segment) types.Segment {
	best := segs[0]
	for _, s := range segs[1:] {
		if s.Duration() < best.Duration() ||
			(s.Duration() == best.Duration() && (s.Start < best.Start ||
				(s.Start == best.Start && s.AssetID < best.AssetID))) {
			best = s
		}
	}
	return best
}

func orderEntries(accepted []types.Segment, style types.Style) {
	switch style.Order {
	case types.OrderHighlightReel:
		sort.SliceStable(accepted, func(i, j int) bool {
			return rankLess(accepted[i], accepted[j], style.Weights)
		})
	default: // chronological within each asset, assets by ID
		sort.SliceStable(accepted, func(i, j int) bool {
			if accepted[i].AssetID != accepted[j].AssetID {
				return accepted[i].AssetID < accepted[j].AssetID
			}
			return accepted[i].Start < accepted[j].Start
		})
	}
}

func transitionFor(prev, cur types.Segment, styled string) string {
	if prev.AssetID == cur.AssetID {
		gap := cur.Start - prev.End
		if gap >= -adjacencyGap && gap <= adjacencyGap {
			return ""
		}
	}
	return styled
}
