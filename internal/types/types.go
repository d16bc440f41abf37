package types

import "time"

// Asset is an imported video source, registered by the caller and referenced
// downstream by ID only.
type Asset struct {
	ID        string        `json:"id"`
	Path      string        `json:"path"`
	Duration  time.Duration `json:"duration"`
	FrameRate float64       `json:"frame_rate"`
}

// Utterance is one timed unit of recognized speech.
type Utterance struct {
	AssetID    string        `json:"asset_id"`
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
}

// Annotations is the analysis result attached to a segment. Scored=false
// marks the unscored sentinel: the segment survived an analysis failure and
// ranks below every scored segment.
type Annotations struct {
	Scored    bool    `json:"scored"`
	Reason    string  `json:"reason,omitempty"`
	Highlight float64 `json:"highlight"`
	Relevance float64 `json:"relevance"`
	Topic     string  `json:"topic,omitempty"`
	Sentiment string  `json:"sentiment,omitempty"`
}

// Segment is a contiguous span of an asset considered as an edit candidate.
type Segment struct {
	AssetID    string        `json:"asset_id"`
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
	Text       string        `json:"text,omitempty"`
	Confidence float64       `json:"confidence"`
	Ann        Annotations   `json:"annotations"`
}

func (s Segment) Duration() time.Duration { return s.End - s.Start }

// TimelineEntry is one placed clip in the output sequence.
type TimelineEntry struct {
	Segment     Segment       `json:"segment"`
	Index       int           `json:"index"`
	OutputStart time.Duration `json:"output_start"`
	Transition  string        `json:"transition,omitempty"`
	Effect      string        `json:"effect,omitempty"`
}

// Timeline is the ordered, finalized rough-cut.
type Timeline struct {
	Entries        []TimelineEntry `json:"entries"`
	TargetDuration time.Duration   `json:"target_duration"`
	AspectRatio    string          `json:"aspect_ratio"`
	Order          string          `json:"order"`
	BestEffort     bool            `json:"best_effort"`
}

func (t Timeline) OutputDuration() time.Duration {
	var total time.Duration
	for _, e := range t.Entries {
		total += e.Segment.Duration()
	}
	return total
}

// Ordering styles.
const (
	OrderChronological = "chronological"
	OrderHighlightReel = "highlight-reel"
)

// Draft formats.
const (
	FormatJianying = "jianying"
	FormatEDL      = "edl"
)

// Weights combines the ranking signals into a composite score.
type Weights struct {
	Highlight  float64 `json:"highlight"`
	Relevance  float64 `json:"relevance"`
	Confidence float64 `json:"confidence"`
}

// DefaultWeights favors the highlight signal.
func DefaultWeights() Weights {
	return Weights{Highlight: 0.6, Relevance: 0.25, Confidence: 0.15}
}

// Style is the caller-provided edit configuration.
type Style struct {
	TargetDuration      time.Duration `json:"target_duration"`
	Tolerance           time.Duration `json:"tolerance"`
	Order               string        `json:"order"`
	MaxClips            int           `json:"max_clips"`
	Transition          string        `json:"transition"`
	Effect              string        `json:"effect,omitempty"`
	Theme               string        `json:"theme,omitempty"`
	AspectRatio         string        `json:"aspect_ratio,omitempty"`
	Format              string        `json:"format,omitempty"`
	Weights             Weights       `json:"weights"`
	ProviderPreferences []string      `json:"provider_preferences,omitempty"`
}

// Normalized returns a copy with defaults filled in.
func (s Style) Normalized() Style {
	if s.Order == "" {
		s.Order = OrderChronological
	}
	if s.Tolerance <= 0 {
		s.Tolerance = 5 * time.Second
	}
	if s.MaxClips <= 0 {
		s.MaxClips = 12
	}
	if s.AspectRatio == "" {
		s.AspectRatio = "9:16"
	}
	if s.Format == "" {
		s.Format = FormatJianying
	}
	if s.Weights == (Weights{}) {
		s.Weights = DefaultWeights()
	}
	return s
}
