package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/shortreel/shortreel/internal/types"
)

type promptCandidate struct {
	Idx      int     `json:"idx"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Text     string  `json:"text"`
}

func candidatesJSON(batch []types.Segment) string {
	arr := make([]promptCandidate, 0, len(batch))
	for i, s := range batch {
		arr = append(arr, promptCandidate{
			Idx:      i,
			StartSec: s.Start.Seconds(),
			EndSec:   s.End.Seconds(),
			Text:     s.Text,
		})
	}
	b, _ := json.Marshal(arr)
	return string(b)
}

func scorePrompt(batch []types.Segment) string {
	return "Rate how engaging each video segment would be as a short-form clip, 0.0 to 1.0. " +
		"Return strictly valid JSON (no markdown, no code fences): " +
		`an array of {"idx": <int>, "score": <number>} with one entry per candidate.` +
		"\n\nCandidates JSON:\n" + candidatesJSON(batch)
}

func relevancePrompt(batch []types.Segment, theme string) string {
	return fmt.Sprintf("Rate how relevant each video segment is to the theme %q, 0.0 to 1.0. ", theme) +
		"Return strictly valid JSON (no markdown, no code fences): " +
		`an array of {"idx": <int>, "score": <number>} with one entry per candidate.` +
		"\n\nCandidates JSON:\n" + candidatesJSON(batch)
}

func labelPrompt(batch []types.Segment, field string) string {
	return fmt.Sprintf("Assign a single lowercase %s label to each video segment. ", field) +
		"Return strictly valid JSON (no markdown, no code fences): " +
		`an array of {"idx": <int>, "label": <string>} with one entry per candidate.` +
		"\n\nCandidates JSON:\n" + candidatesJSON(batch)
}
