package splice

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/linuxmatters/audiocore/internal/audiotype"
)

func TestRunConcatenatesSourcesWithMonotonicTimestamps(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.m4a")
	os.WriteFile(out, []byte("ftyp"), 0o644)

	sourceA := Source{Demuxer: &fakeDemuxer{aus: sampleAUs(3)}, Decoder: &fakeDecoder{}}
	sourceB := Source{Demuxer: &fakeDemuxer{aus: sampleAUs(4)}, Decoder: &fakeDecoder{}}
	muxer := &fakeMuxer{}
	encoder := &fakeEncoder{}

	result, err := Run(Config{
		Sources:    []Source{sourceA, sourceB},
		Encoder:    encoder,
		Muxer:      muxer,
		OutputPath: out,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FilesProcessed != 2 {
		t.Fatalf("FilesProcessed = %d, want 2", result.FilesProcessed)
	}
	if len(muxer.written) != 7 {
		t.Fatalf("wrote %d samples, want 7", len(muxer.written))
	}
	for i := 1; i < len(muxer.written); i++ {
		if muxer.written[i].PresentationTimeUs < muxer.written[i-1].PresentationTimeUs {
			t.Fatalf("timestamps not monotonic at %d: %d < %d", i, muxer.written[i].PresentationTimeUs, muxer.written[i-1].PresentationTimeUs)
		}
	}
	// second source's first sample must land strictly after the first
	// source's last sample once offset, not merely at or after it.
	if muxer.written[3].PresentationTimeUs <= muxer.written[2].PresentationTimeUs {
		t.Fatalf("second source did not strictly offset past first source's end: %d <= %d", muxer.written[3].PresentationTimeUs, muxer.written[2].PresentationTimeUs)
	}
}

func TestRunCancellationMidSpliceReleasesEverySource(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.m4a")
	os.WriteFile(out, []byte("ftyp"), 0o644)

	cancel := make(chan struct{})
	decoderA := &fakeDecoder{}
	decoderB := &fakeDecoder{}
	decoderC := &fakeDecoder{}
	demuxerA := &cancelAfterDemuxer{fakeDemuxer: fakeDemuxer{aus: sampleAUs(3)}, cancel: cancel, after: 2}
	demuxerB := &fakeDemuxer{aus: sampleAUs(3)}
	demuxerC := &fakeDemuxer{aus: sampleAUs(3)}

	sourceA := Source{Demuxer: demuxerA, Decoder: decoderA}
	sourceB := Source{Demuxer: demuxerB, Decoder: decoderB}
	sourceC := Source{Demuxer: demuxerC, Decoder: decoderC}
	muxer := &fakeMuxer{}
	encoder := &fakeEncoder{}

	_, err := Run(Config{
		Sources:    []Source{sourceA, sourceB, sourceC},
		Encoder:    encoder,
		Muxer:      muxer,
		OutputPath: out,
		Cancel:     cancel,
	})
	if err == nil {
		t.Fatalf("Run with cancellation succeeded, want error")
	}
	if !audiotype.IsKind(err, audiotype.KindCancelled) {
		t.Fatalf("Run error = %v, want KindCancelled", err)
	}

	// demuxerB and demuxerC were never touched by iterate (the splicer
	// was still on source A), but cleanup must still release them along
	// with source A — not just the one it was working on.
	if !decoderA.stopped || !decoderA.released {
		t.Fatalf("source A decoder not released: stopped=%v released=%v", decoderA.stopped, decoderA.released)
	}
	if !demuxerA.closed {
		t.Fatalf("source A demuxer not closed")
	}
	if !decoderB.stopped || !decoderB.released {
		t.Fatalf("source B decoder not released: stopped=%v released=%v", decoderB.stopped, decoderB.released)
	}
	if !demuxerB.closed {
		t.Fatalf("source B demuxer not closed")
	}
	if !decoderC.stopped || !decoderC.released {
		t.Fatalf("source C decoder not released: stopped=%v released=%v", decoderC.stopped, decoderC.released)
	}
	if !demuxerC.closed {
		t.Fatalf("source C demuxer not closed")
	}
}

func TestRunRejectsEmptySourceList(t *testing.T) {
	_, err := Run(Config{OutputPath: "unused"})
	if err == nil {
		t.Fatalf("Run with no sources succeeded, want error")
	}
}
