// Package extract turns a video asset into a sequence of timed utterances by
// driving the media toolkit and the speech recognizer. Absence of speech is a
// valid outcome and yields an empty sequence.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shortreel/shortreel/internal/ports"
	"github.com/shortreel/shortreel/internal/types"
)

// Error reports a failed extraction for one asset. Callers decide whether
// the asset is skipped or the job fails.
type Error struct {
	AssetID string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract asset %s: %v", e.AssetID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Extractor struct {
	media    ports.MediaTool
	asr      ports.Recognizer
	cacheDir string
	logger   *slog.Logger
}

func New(media ports.MediaTool, asr ports.Recognizer, cacheDir string, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{media: media, asr: asr, cacheDir: cacheDir, logger: logger}
}

// Extract returns the asset's utterances in chronological order. Results are
// cached by content fingerprint so repeated runs skip recognition.
func (x *Extractor) Extract(ctx context.Context, asset types.Asset) ([]types.Utterance, error) {
	hasAudio, err := x.media.HasAudioStream(ctx, asset.Path)
	if err != nil {
		return nil, &Error{AssetID: asset.ID, Err: err}
	}
	if !hasAudio {
		x.logger.Info("asset has no audio track", "asset_id", asset.ID)
		return nil, nil
	}

	key, err := fingerprint(asset.Path)
	if err != nil {
		return nil, &Error{AssetID: asset.ID, Err: err}
	}
	runDir := filepath.Join(x.cacheDir, "runs", key)
	cached := filepath.Join(runDir, "utterances.json")
	if utts, ok := x.readCached(cached); ok {
		x.logger.Debug("transcript cache hit", "asset_id", asset.ID)
		return withAssetID(utts, asset.ID), nil
	}

	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, &Error{AssetID: asset.ID, Err: err}
	}
	wav := filepath.Join(runDir, "audio.wav")
	if err := x.media.ExtractAudioMono16k(ctx, asset.Path, wav); err != nil {
		return nil, &Error{AssetID: asset.ID, Err: err}
	}

	utts, err := x.asr.Transcribe(ctx, wav, runDir)
	if err != nil {
		return nil, &Error{AssetID: asset.ID, Err: err}
	}
	utts = clampMonotonic(utts)

	if b, err := json.Marshal(utts); err == nil {
		if err := os.WriteFile(cached, b, 0o644); err != nil {
			x.logger.Warn("transcript cache write failed", "asset_id", asset.ID, "error", err)
		}
	}
	return withAssetID(utts, asset.ID), nil
}

func (x *Extractor) readCached(path string) ([]types.Utterance, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var utts []types.Utterance
	if err := json.Unmarshal(b, &utts); err != nil {
		return nil, false
	}
	return utts, true
}

// clampMonotonic enforces the contract that utterances never overlap and
// timestamps never run backwards within one asset.
func clampMonotonic(utts []types.Utterance) []types.Utterance {
	out := utts[:0]
	var prevEnd time.Duration
	for _, u := range utts {
		if u.Start < 0 {
			u.Start = 0
		}
		if u.Start < prevEnd {
			u.Start = prevEnd
		}
		if u.End <= u.Start {
			continue
		}
		prevEnd = u.End
		out = append(out, u)
	}
	return out
}

func withAssetID(utts []types.Utterance, assetID string) []types.Utterance {
	for i := range utts {
		utts[i].AssetID = assetID
	}
	return utts
}

func fingerprint(path string) (string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	seed := fmt.Sprintf("%s|%d|%d", path, st.Size(), st.ModTime().UnixNano())
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:12], nil
}
