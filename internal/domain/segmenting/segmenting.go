// Package segmenting builds candidate segments from timed utterances, or
// from fixed-interval sampling when an asset has no speech.
package segmenting

import (
	"fmt"
	"strings"
	"time"

	"github.com/shortreel/shortreel/internal/types"
)

type Options struct {
	// MaxSegment caps segment length; a growing segment is closed before it
	// would exceed this.
	MaxSegment time.Duration
	// MinSegment drops fragments too short to place on a timeline.
	MinSegment time.Duration
	// SplitPause closes a segment when the gap to the next utterance is at
	// least this long.
	SplitPause time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxSegment <= 0 {
		o.MaxSegment = 30 * time.Second
	}
	if o.MinSegment <= 0 {
		o.MinSegment = time.Second
	}
	if o.SplitPause <= 0 {
		o.SplitPause = 700 * time.Millisecond
	}
	return o
}

// FromUtterances merges consecutive utterances of one asset into candidate
// segments, splitting at pauses and at the max-length cap. Input order is
// assumed chronological; output preserves it. Segment confidence is the
// duration-weighted mean of its utterances.
func FromUtterances(utts []types.Utterance, opts Options) []types.Segment {
	opts = opts.withDefaults()
	if len(utts) == 0 {
		return nil
	}

	var out []types.Segment
	var cur []types.Utterance
	flush := func() {
		if len(cur) == 0 {
			return
		}
		seg := merge(cur)
		if seg.Duration() >= opts.MinSegment {
			out = append(out, seg)
		}
		cur = cur[:0]
	}

	for _, u := range utts {
		if len(cur) > 0 {
			last := cur[len(cur)-1]
			gap := u.Start - last.End
			grown := u.End - cur[0].Start
			if gap >= opts.SplitPause || grown > opts.MaxSegment {
				flush()
			}
		}
		cur = append(cur, u)
	}
	flush()
	return out
}

func merge(utts []types.Utterance) types.Segment {
	parts := make([]string, 0, len(utts))
	var weighted float64
	var total time.Duration
	for _, u := range utts {
		if t := strings.TrimSpace(u.Text); t != "" {
			parts = append(parts, t)
		}
		d := u.End - u.Start
		weighted += u.Confidence * d.Seconds()
		total += d
	}
	conf := 1.0
	if total > 0 {
		conf = weighted / total.Seconds()
	}
	return types.Segment{
		AssetID:    utts[0].AssetID,
		Start:      utts[0].Start,
		End:        utts[len(utts)-1].End,
		Text:       strings.Join(parts, " "),
		Confidence: conf,
	}
}

// FixedInterval slices a speech-free asset into uniform segments so it can
// still contribute clips. Confidence carries no recognition signal, so it is
// fixed at zero and the text names the span.
func FixedInterval(assetID string, total, interval time.Duration) []types.Segment {
	if total <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	var out []types.Segment
	for start := time.Duration(0); start < total; start += interval {
		end := start + interval
		if end > total {
			end = total
		}
		if end-start < interval/4 {
			// Fold a sliver of a tail into the previous segment.
			if n := len(out); n > 0 {
				out[n-1].End = end
				continue
			}
		}
		out = append(out, types.Segment{
			AssetID: assetID,
			Start:   start,
			End:     end,
			Text:    fmt.Sprintf("scene %02d", len(out)+1),
		})
	}
	return out
}
