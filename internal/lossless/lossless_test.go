package lossless

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/linuxmatters/audiocore/internal/audiotype"
)

var errFakeEOF = errors.New("fake: end of stream")

type fakeDemuxer struct {
	aus    []audiotype.AccessUnit
	idx    int
	closed bool
}

func (f *fakeDemuxer) Next() (audiotype.AccessUnit, error) {
	if f.idx >= len(f.aus) {
		return audiotype.AccessUnit{}, errFakeEOF
	}
	au := f.aus[f.idx]
	f.idx++
	return au, nil
}
func (f *fakeDemuxer) Close() { f.closed = true }

type fakeMuxer struct {
	started, stopped, closed bool
	written                  []audiotype.AccessUnit
}

func (f *fakeMuxer) AddTrack(audiotype.TrackFormat) (int, error)          { return 0, nil }
func (f *fakeMuxer) Start() error                                        { f.started = true; return nil }
func (f *fakeMuxer) WriteSample(_ int, au audiotype.AccessUnit) error     { f.written = append(f.written, au); return nil }
func (f *fakeMuxer) Stop() error                                         { f.stopped = true; return nil }
func (f *fakeMuxer) Close()                                              { f.closed = true }

func sampleAUs(n int) []audiotype.AccessUnit {
	aus := make([]audiotype.AccessUnit, n)
	for i := range aus {
		aus[i] = audiotype.AccessUnit{Bytes: []byte{byte(i)}, PresentationTimeUs: int64(i) * 20_000, IsSync: true}
	}
	return aus
}

func TestRunCopiesEverythingWithoutDecode(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.m4a")
	os.WriteFile(out, []byte("ftyp"), 0o644)

	demuxer := &fakeDemuxer{aus: sampleAUs(6)}
	muxer := &fakeMuxer{}

	result, err := Run(Config{Demuxer: demuxer, Muxer: muxer, OutputPath: out, Format: audiotype.TrackFormat{MIME: "audio/mp4a-latm", SampleRateHz: 44100, Channels: 2}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(muxer.written) != 6 {
		t.Fatalf("wrote %d samples, want 6", len(muxer.written))
	}
	if !result.Lossless {
		t.Fatalf("result.Lossless = false, want true")
	}
}

func TestRunTrimsRange(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.m4a")
	os.WriteFile(out, []byte("ftyp"), 0o644)

	demuxer := &fakeDemuxer{aus: sampleAUs(10)}
	muxer := &fakeMuxer{}

	_, err := Run(Config{
		Demuxer: demuxer, Muxer: muxer, OutputPath: out,
		Format:       audiotype.TrackFormat{MIME: "audio/mp4a-latm"},
		TimeRange:    audiotype.TimeRange{StartUs: 40_000, EndUs: 120_000},
		SeekLandedUs: 40_000,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(muxer.written) != 4 {
		t.Fatalf("wrote %d samples, want 4", len(muxer.written))
	}
	if muxer.written[0].PresentationTimeUs != 0 {
		t.Fatalf("first sample timestamp = %d, want 0", muxer.written[0].PresentationTimeUs)
	}
}
