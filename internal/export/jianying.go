package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shortreel/shortreel/internal/types"
)

// Jianying draft_content.json, schema version 4.0.0. Times are microseconds.

type jyDraft struct {
	Version   string      `json:"version"`
	Type      string      `json:"type"`
	ID        string      `json:"id"`
	Duration  int64       `json:"duration"`
	FPS       float64     `json:"fps"`
	Canvas    jyCanvas    `json:"canvas_config"`
	Tracks    []jyTrack   `json:"tracks"`
	Materials jyMaterials `json:"materials"`
	Metadata  jyMetadata  `json:"metadata"`
}

type jyCanvas struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Ratio  string `json:"ratio"`
}

type jyTrack struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	Segments []jySegment `json:"segments"`
}

type jySegment struct {
	ID                string      `json:"id"`
	MaterialID        string      `json:"material_id"`
	SourceTimerange   jyTimerange `json:"source_timerange"`
	TargetTimerange   jyTimerange `json:"target_timerange"`
	ExtraMaterialRefs []string    `json:"extra_material_refs,omitempty"`
}

type jyTimerange struct {
	Start    int64 `json:"start"`
	Duration int64 `json:"duration"`
}

type jyMaterials struct {
	Videos      []jyVideoMaterial      `json:"videos"`
	Transitions []jyTransitionMaterial `json:"transitions"`
	Texts       []jyTextMaterial       `json:"texts"`
}

type jyVideoMaterial struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	Duration int64  `json:"duration"`
	Type     string `json:"type"`
}

type jyTransitionMaterial struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Duration int64  `json:"duration"`
}

type jyTextMaterial struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type jyMetadata struct {
	Title   string `json:"title"`
	Creator string `json:"creator"`
}

const transitionDurationUS = 500_000

func jianyingDraft(jobID string, assets map[string]types.Asset, tl types.Timeline) ([]byte, error) {
	width, height := canvasSize(tl.AspectRatio)

	draft := jyDraft{
		Version:  "4.0.0",
		Type:     "project",
		ID:       draftID(jobID, "project"),
		Duration: micros(tl.OutputDuration()),
		FPS:      draftFPS(assets),
		Canvas:   jyCanvas{Width: width, Height: height, Ratio: tl.AspectRatio},
		Metadata: jyMetadata{Title: "shortreel " + jobID, Creator: "shortreel"},
	}

	videoMaterials := make(map[string]string) // asset ID -> material ID
	videoTrack := jyTrack{ID: draftID(jobID, "track-video"), Type: "video"}
	textTrack := jyTrack{ID: draftID(jobID, "track-text"), Type: "text"}

	for _, entry := range tl.Entries {
		asset, ok := assets[entry.Segment.AssetID]
		if !ok {
			return nil, &Error{Format: types.FormatJianying, Reason: fmt.Sprintf("timeline references unknown asset %q", entry.Segment.AssetID)}
		}
		matID, seen := videoMaterials[asset.ID]
		if !seen {
			matID = draftID(jobID, "material-"+asset.ID)
			videoMaterials[asset.ID] = matID
			draft.Materials.Videos = append(draft.Materials.Videos, jyVideoMaterial{
				ID:       matID,
				Path:     asset.Path,
				Duration: micros(asset.Duration),
				Type:     "video",
			})
		}

		seg := jySegment{
			ID:         draftID(jobID, fmt.Sprintf("segment-%d", entry.Index)),
			MaterialID: matID,
			SourceTimerange: jyTimerange{
				Start:    micros(entry.Segment.Start),
				Duration: micros(entry.Segment.Duration()),
			},
			TargetTimerange: jyTimerange{
				Start:    micros(entry.OutputStart),
				Duration: micros(entry.Segment.Duration()),
			},
		}
		if entry.Transition != "" {
			trID := draftID(jobID, fmt.Sprintf("transition-%d", entry.Index))
			draft.Materials.Transitions = append(draft.Materials.Transitions, jyTransitionMaterial{
				ID:       trID,
				Name:     entry.Transition,
				Duration: transitionDurationUS,
			})
			seg.ExtraMaterialRefs = append(seg.ExtraMaterialRefs, trID)
		}
		videoTrack.Segments = append(videoTrack.Segments, seg)

		if entry.Segment.Text != "" {
			textID := draftID(jobID, fmt.Sprintf("caption-%d", entry.Index))
			draft.Materials.Texts = append(draft.Materials.Texts, jyTextMaterial{
				ID:      textID,
				Content: entry.Segment.Text,
			})
			textTrack.Segments = append(textTrack.Segments, jySegment{
				ID:         draftID(jobID, fmt.Sprintf("caption-segment-%d", entry.Index)),
				MaterialID: textID,
				TargetTimerange: jyTimerange{
					Start:    micros(entry.OutputStart),
					Duration: micros(entry.Segment.Duration()),
				},
			})
		}
	}

	draft.Tracks = append(draft.Tracks, videoTrack)
	if len(textTrack.Segments) > 0 {
		draft.Tracks = append(draft.Tracks, textTrack)
	}

	return json.MarshalIndent(draft, "", "  ")
}

// draftID derives a stable identifier from the job ID; the target format
// wants UUIDs, so use the name-based variant rather than random ones.
func draftID(jobID, role string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("shortreel:"+jobID+":"+role)).String()
}

func canvasSize(ratio string) (int, int) {
	switch ratio {
	case "16:9":
		return 1920, 1080
	case "1:1":
		return 1080, 1080
	default: // 9:16, the short-form default
		return 1080, 1920
	}
}

func draftFPS(assets map[string]types.Asset) float64 {
	// One global fps per draft; pick the highest source rate
	// so no asset is resampled upward.
	best := 0.0
	for _, a := range assets {
		if a.FrameRate > best {
			best = a.FrameRate
		}
	}
	if best <= 0 {
		return 30
	}
	return best
}

func micros(d time.Duration) int64 { return d.Microseconds() }
