package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/linuxmatters/audiocore/internal/audiotype"
)

func sampleAUs(n int) []audiotype.AccessUnit {
	aus := make([]audiotype.AccessUnit, n)
	for i := range aus {
		aus[i] = audiotype.AccessUnit{
			Bytes:              []byte{byte(i), byte(i + 1)},
			PresentationTimeUs: int64(i) * 20_000,
			IsSync:             true,
		}
	}
	return aus
}

// touchOutput simulates the file the real muxer would have produced, since
// fakeMuxer never writes to disk; Run's postcondition check needs a
// non-empty file at cfg.OutputPath.
func touchOutput(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("ftyp"), 0o644); err != nil {
		t.Fatalf("touchOutput: %v", err)
	}
}

func TestRunHappyPath(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.m4a")
	touchOutput(t, out)

	demuxer := &fakeDemuxer{aus: sampleAUs(5)}
	decoder := &fakeDecoder{}
	encoder := &fakeEncoder{}
	muxer := &fakeMuxer{}

	result, err := Run(Config{
		Demuxer: demuxer, Decoder: decoder, Encoder: encoder, Muxer: muxer,
		OutputPath: out, ExpectedDurationUs: 100_000, BitRateKbps: 128, SampleRateHz: 44100,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(muxer.written) != 5 {
		t.Fatalf("wrote %d samples, want 5", len(muxer.written))
	}
	if !muxer.started || !muxer.stopped || !muxer.closed {
		t.Fatalf("muxer lifecycle incomplete: started=%v stopped=%v closed=%v", muxer.started, muxer.stopped, muxer.closed)
	}
	if !decoder.stopped || !decoder.released || !encoder.stopped || !encoder.released {
		t.Fatalf("codec cleanup incomplete")
	}
	if !demuxer.closed {
		t.Fatalf("demuxer not closed")
	}
	if result.OutputPath != out {
		t.Fatalf("result.OutputPath = %q, want %q", result.OutputPath, out)
	}
}

func TestRunBackPressureNoFrameLoss(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.m4a")
	touchOutput(t, out)

	const n = 8
	demuxer := &fakeDemuxer{aus: sampleAUs(n)}
	decoder := &fakeDecoder{}
	encoder := &fakeEncoder{inputStall: encoderInputRetries - 1} // stalls, but within budget
	muxer := &fakeMuxer{}

	_, err := Run(Config{
		Demuxer: demuxer, Decoder: decoder, Encoder: encoder, Muxer: muxer,
		OutputPath: out,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(muxer.written) != n {
		t.Fatalf("wrote %d samples under back-pressure, want %d (no frame loss)", len(muxer.written), n)
	}
	for i, au := range muxer.written {
		want := int64(i) * 20_000
		if au.PresentationTimeUs != want {
			t.Fatalf("sample %d timestamp = %d, want %d (order preserved)", i, au.PresentationTimeUs, want)
		}
	}
}

func TestRunEncoderStallExceedsRetryBudgetFails(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.m4a")
	touchOutput(t, out)

	demuxer := &fakeDemuxer{aus: sampleAUs(3)}
	decoder := &fakeDecoder{}
	encoder := &fakeEncoder{inputStall: encoderInputRetries + 5}
	muxer := &fakeMuxer{}

	_, err := Run(Config{
		Demuxer: demuxer, Decoder: decoder, Encoder: encoder, Muxer: muxer,
		OutputPath: out,
	})
	if err == nil {
		t.Fatalf("Run succeeded, want pipeline_stalled error")
	}
	if !audiotype.IsKind(err, audiotype.KindPipelineStalled) {
		t.Fatalf("Run error = %v, want KindPipelineStalled", err)
	}
	if !decoder.released || !encoder.released {
		t.Fatalf("codec resources not released on failure path")
	}
}

func TestRunTimeRangeTrims(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.m4a")
	touchOutput(t, out)

	demuxer := &fakeDemuxer{aus: sampleAUs(10)} // timestamps 0,20000,...,180000
	decoder := &fakeDecoder{}
	encoder := &fakeEncoder{}
	muxer := &fakeMuxer{}

	_, err := Run(Config{
		Demuxer: demuxer, Decoder: decoder, Encoder: encoder, Muxer: muxer,
		OutputPath:   out,
		TimeRange:    audiotype.TimeRange{StartUs: 40_000, EndUs: 120_000},
		SeekLandedUs: 40_000,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(muxer.written) != 4 { // timestamps 40000,60000,80000,100000 -> rebased 0,20000,40000,60000
		t.Fatalf("wrote %d samples, want 4", len(muxer.written))
	}
	if muxer.written[0].PresentationTimeUs != 0 {
		t.Fatalf("first sample timestamp = %d, want 0 (rebased to range start)", muxer.written[0].PresentationTimeUs)
	}
}
