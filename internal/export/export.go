// Package export serializes a finalized timeline into an external editor's
// draft format. It owns all knowledge of those schemas, and its output is
// byte-for-byte reproducible for identical input.
package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shortreel/shortreel/internal/types"
)

// Error reports a format-level serialization failure. It indicates a schema
// or logic bug, never a transient condition, so callers must not retry.
type Error struct {
	Format string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("export %s draft: %s", e.Format, e.Reason)
}

// Transition identifiers accepted by the target editors.
var knownTransitions = map[string]bool{
	"fade": true, "dissolve": true, "slide": true, "wipe": true,
	"zoom": true, "push": true, "blur": true, "glitch": true,
	"circle": true, "page_turn": true,
}

// Effect identifiers accepted by the target editors.
var knownEffects = map[string]bool{
	"": true, "none": true, "zoom_in": true, "zoom_out": true,
	"slow_motion": true, "black_white": true, "vignette": true,
}

type Exporter struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Exporter {
	return &Exporter{logger: logger}
}

// Export writes the draft artifact for timeline tl into outDir and returns
// its path. All embedded identifiers derive from jobID, so re-exporting the
// same timeline produces identical bytes.
func (e *Exporter) Export(jobID, format string, assets map[string]types.Asset, tl types.Timeline, outDir string) (string, error) {
	if len(tl.Entries) == 0 {
		return "", &Error{Format: format, Reason: "empty timeline"}
	}
	if err := validate(format, tl); err != nil {
		return "", err
	}

	var (
		name string
		data []byte
		err  error
	)
	switch format {
	case types.FormatJianying:
		name = "draft_content.json"
		data, err = jianyingDraft(jobID, assets, tl)
	case types.FormatEDL:
		name = "timeline.edl"
		data, err = edlDraft(jobID, assets, tl)
	default:
		return "", &Error{Format: format, Reason: "unknown draft format"}
	}
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("prepare output dir: %w", err)
	}
	path := filepath.Join(outDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write draft: %w", err)
	}
	e.logger.Info("draft written", "format", format, "path", path, "clips", len(tl.Entries))
	return path, nil
}

func validate(format string, tl types.Timeline) error {
	for _, entry := range tl.Entries {
		if entry.Transition != "" && !knownTransitions[entry.Transition] {
			return &Error{Format: format, Reason: fmt.Sprintf("unknown transition %q", entry.Transition)}
		}
		if !knownEffects[entry.Effect] {
			return &Error{Format: format, Reason: fmt.Sprintf("unknown effect %q", entry.Effect)}
		}
	}
	return nil
}
