package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/shortreel/shortreel/internal/types"
)

// CMX3600 EDL output for editors that predate structured drafts.

func edlDraft(jobID string, assets map[string]types.Asset, tl types.Timeline) ([]byte, error) {
	fps := int(math.Round(draftFPS(assets)))
	if fps <= 0 {
		fps = 30
	}
	isDropFrame := math.Abs(draftFPS(assets)-29.97) < 0.01 || math.Abs(draftFPS(assets)-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: shortreel %s", jobID)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	for _, entry := range tl.Entries {
		asset, ok := assets[entry.Segment.AssetID]
		if !ok {
			return nil, &Error{Format: types.FormatEDL, Reason: fmt.Sprintf("timeline references unknown asset %q", entry.Segment.AssetID)}
		}
		srcIn := timecode(entry.Segment.Start.Milliseconds(), fps)
		srcOut := timecode(entry.Segment.End.Milliseconds(), fps)
		recIn := timecode(entry.OutputStart.Milliseconds(), fps)
		recOut := timecode((entry.OutputStart + entry.Segment.Duration()).Milliseconds(), fps)

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", entry.Index+1, "AX", "V", srcIn, srcOut, recIn, recOut),
			fmt.Sprintf("* FROM CLIP NAME:  %s", clipName(entry)),
			fmt.Sprintf("* MEDIA PATH:  %s", asset.Path),
		)
		if entry.Transition != "" {
			lines = append(lines, fmt.Sprintf("* TRANSITION:  %s", strings.ToUpper(entry.Transition)))
		}
	}

	lines = append(lines, "")
	return []byte(strings.Join(lines, "\n")), nil
}

func clipName(entry types.TimelineEntry) string {
	return fmt.Sprintf("%s_%03d", entry.Segment.AssetID, entry.Index+1)
}

func timecode(ms int64, fps int) string {
	totalFrames := int64(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % int64(fps)
	totalSeconds := totalFrames / int64(fps)
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
