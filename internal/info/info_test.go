package info

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/linuxmatters/audiocore/internal/audiotype"
)

type fakeDemuxer struct {
	tracks   []audiotype.TrackFormat
	audioIdx []int
}

func (f *fakeDemuxer) Tracks() []audiotype.TrackFormat { return f.tracks }
func (f *fakeDemuxer) AudioTrackIndices() []int         { return f.audioIdx }
func (f *fakeDemuxer) Close()                           {}

func writeFile(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.mp3")
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestInspectAACReportsLosslessTrimmable(t *testing.T) {
	path := writeFile(t, 1000)
	open := func(string) (Demuxer, error) {
		return &fakeDemuxer{
			tracks:   []audiotype.TrackFormat{{MIME: "audio/mp4a-latm", SampleRateHz: 44100, Channels: 2, BitRateBps: 128000, DurationUs: 10_000_000}},
			audioIdx: []int{0},
		}, nil
	}

	got := Inspect(path, open)
	if !got.Valid {
		t.Fatalf("got Invalid, want Valid")
	}
	if !got.Capabilities.LosslessTrimmable {
		t.Fatalf("AAC should be lossless_trimmable")
	}
	if got.BitRateKbps != 128 {
		t.Fatalf("BitRateKbps = %d, want 128", got.BitRateKbps)
	}
}

func TestInspectMP3NotLosslessTrimmable(t *testing.T) {
	path := writeFile(t, 160_000) // 160000 bytes * 8 / 10 s = 128 kbps
	open := func(string) (Demuxer, error) {
		return &fakeDemuxer{
			tracks:   []audiotype.TrackFormat{{MIME: "audio/mpeg", SampleRateHz: 44100, Channels: 2, DurationUs: 10_000_000}},
			audioIdx: []int{0},
		}, nil
	}

	got := Inspect(path, open)
	if got.Capabilities.LosslessTrimmable {
		t.Fatalf("MP3 must not be lossless_trimmable")
	}
	if got.BitRateKbps == 0 {
		t.Fatalf("BitRateKbps should be estimated from file size when absent from container")
	}
}

func TestInspectNoAudioTrack(t *testing.T) {
	path := writeFile(t, 1000)
	open := func(string) (Demuxer, error) {
		return &fakeDemuxer{tracks: nil, audioIdx: nil}, nil
	}

	got := Inspect(path, open)
	if got.Valid {
		t.Fatalf("got Valid, want Invalid")
	}
	if got.ErrorKind != audiotype.ErrorKindNoAudioTrack {
		t.Fatalf("ErrorKind = %v, want ErrorKindNoAudioTrack", got.ErrorKind)
	}
}

func TestInspectUnsupportedContainer(t *testing.T) {
	path := writeFile(t, 1000)
	wantErr := errors.New("boom")
	open := func(string) (Demuxer, error) { return nil, wantErr }

	got := Inspect(path, open)
	if got.Valid || got.ErrorKind != audiotype.ErrorKindUnsupportedContainer {
		t.Fatalf("got %+v, want Invalid/ErrorKindUnsupportedContainer", got)
	}
}

func TestIsFormatSupported(t *testing.T) {
	path := writeFile(t, 1000)
	open := func(string) (Demuxer, error) {
		return &fakeDemuxer{
			tracks:   []audiotype.TrackFormat{{MIME: "audio/mp4a-latm", DurationUs: 1_000_000}},
			audioIdx: []int{0},
		}, nil
	}
	if !IsFormatSupported(path, open) {
		t.Fatalf("IsFormatSupported = false, want true for AAC")
	}
}
