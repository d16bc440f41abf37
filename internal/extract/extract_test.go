package extract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shortreel/shortreel/internal/types"
)

type fakeMedia struct {
	hasAudio   bool
	audioErr   error
	extractErr error
}

func (f *fakeMedia) ExtractAudioMono16k(_ context.Context, _, outWav string) error {
	if f.extractErr != nil {
		return f.extractErr
	}
	return os.WriteFile(outWav, []byte("RIFF"), 0o644)
}

func (f *fakeMedia) HasAudioStream(context.Context, string) (bool, error) {
	return f.hasAudio, f.audioErr
}

func (f *fakeMedia) ProbeDuration(context.Context, string) (time.Duration, error) {
	return time.Minute, nil
}

func (f *fakeMedia) ProbeFrameRate(context.Context, string) (float64, error) {
	return 30, nil
}

type fakeASR struct {
	utts  []types.Utterance
	err   error
	calls int
}

func (f *fakeASR) Transcribe(context.Context, string, string) ([]types.Utterance, error) {
	f.calls++
	return f.utts, f.err
}

func testAsset(t *testing.T) types.Asset {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}
	return types.Asset{ID: "clip", Path: path, Duration: time.Minute}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExtract_NoAudioYieldsEmpty(t *testing.T) {
	x := New(&fakeMedia{hasAudio: false}, &fakeASR{}, t.TempDir(), discard())

	utts, err := x.Extract(context.Background(), testAsset(t))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if utts != nil {
		t.Fatalf("utterances = %v, want nil for silent asset", utts)
	}
}

func TestExtract_TagsAssetID(t *testing.T) {
	asr := &fakeASR{utts: []types.Utterance{
		{Start: 0, End: 2 * time.Second, Text: "hello", Confidence: 0.9},
	}}
	x := New(&fakeMedia{hasAudio: true}, asr, t.TempDir(), discard())

	utts, err := x.Extract(context.Background(), testAsset(t))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(utts) != 1 || utts[0].AssetID != "clip" {
		t.Fatalf("utterances = %+v, want one tagged with clip", utts)
	}
}

func TestExtract_CacheSkipsRecognition(t *testing.T) {
	asr := &fakeASR{utts: []types.Utterance{
		{Start: 0, End: 2 * time.Second, Text: "hello", Confidence: 0.9},
	}}
	cacheDir := t.TempDir()
	asset := testAsset(t)
	x := New(&fakeMedia{hasAudio: true}, asr, cacheDir, discard())

	if _, err := x.Extract(context.Background(), asset); err != nil {
		t.Fatalf("first Extract() error = %v", err)
	}
	utts, err := x.Extract(context.Background(), asset)
	if err != nil {
		t.Fatalf("second Extract() error = %v", err)
	}
	if asr.calls != 1 {
		t.Fatalf("recognizer called %d times, want 1", asr.calls)
	}
	if len(utts) != 1 || utts[0].Text != "hello" {
		t.Fatalf("cached utterances = %+v", utts)
	}
}

func TestExtract_ClampsOverlaps(t *testing.T) {
	asr := &fakeASR{utts: []types.Utterance{
		{Start: -time.Second, End: 2 * time.Second, Text: "a"},
		{Start: time.Second, End: 4 * time.Second, Text: "b"},
		{Start: 3 * time.Second, End: 3 * time.Second, Text: "empty"},
		{Start: 4 * time.Second, End: 6 * time.Second, Text: "c"},
	}}
	x := New(&fakeMedia{hasAudio: true}, asr, t.TempDir(), discard())

	utts, err := x.Extract(context.Background(), testAsset(t))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(utts) != 3 {
		t.Fatalf("got %d utterances, want 3 (zero-length dropped): %+v", len(utts), utts)
	}
	var prevEnd time.Duration
	for _, u := range utts {
		if u.Start < prevEnd {
			t.Errorf("utterance %q starts at %v before previous end %v", u.Text, u.Start, prevEnd)
		}
		if u.End <= u.Start {
			t.Errorf("utterance %q has no duration", u.Text)
		}
		prevEnd = u.End
	}
}

func TestExtract_WrapsFailuresWithAssetID(t *testing.T) {
	sentinel := errors.New("whisper crashed")
	x := New(&fakeMedia{hasAudio: true}, &fakeASR{err: sentinel}, t.TempDir(), discard())

	_, err := x.Extract(context.Background(), testAsset(t))
	if err == nil {
		t.Fatal("Extract() error = nil, want wrapped failure")
	}
	var xerr *Error
	if !errors.As(err, &xerr) || xerr.AssetID != "clip" {
		t.Fatalf("error = %v, want *Error for asset clip", err)
	}
	if !errors.Is(err, sentinel) {
		t.Fatalf("error %v does not wrap the recognizer failure", err)
	}
}

func TestExtract_ProbeFailure(t *testing.T) {
	x := New(&fakeMedia{audioErr: errors.New("ffprobe exploded")}, &fakeASR{}, t.TempDir(), discard())

	_, err := x.Extract(context.Background(), testAsset(t))
	var xerr *Error
	if !errors.As(err, &xerr) {
		t.Fatalf("error = %v, want *Error", err)
	}
}
