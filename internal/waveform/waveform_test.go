package waveform

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/linuxmatters/audiocore/internal/codec"
	"github.com/linuxmatters/audiocore/internal/audiotype"
)

var errFakeEOF = errors.New("fake: end of stream")

type fakeDemuxer struct {
	aus []audiotype.AccessUnit
	idx int
}

func (f *fakeDemuxer) Next() (audiotype.AccessUnit, error) {
	if f.idx >= len(f.aus) {
		return audiotype.AccessUnit{}, errFakeEOF
	}
	au := f.aus[f.idx]
	f.idx++
	return au, nil
}
func (f *fakeDemuxer) Close() {}

// fakeDecoder emits one mono PCM frame per queued input, each frame
// containing a fixed set of 16-bit samples regardless of input bytes, to
// make the bucket math predictable.
type fakeDecoder struct {
	samplesPerFrame []int16
	queue           []audiotype.PCMFrame
	nextTsUs        int64
}

func (f *fakeDecoder) DequeueInput(time.Duration) (*codec.Slot, error) { return codec.NewSlot(64), nil }

func (f *fakeDecoder) QueueInput(_ *codec.Slot, _ []byte, ptsUs int64, flagsEOS bool) error {
	if flagsEOS {
		f.queue = append(f.queue, audiotype.PCMFrame{IsEOS: true})
		return nil
	}
	buf := make([]byte, len(f.samplesPerFrame)*2)
	for i, s := range f.samplesPerFrame {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	f.queue = append(f.queue, audiotype.PCMFrame{Bytes: buf, PresentationTimeUs: ptsUs})
	return nil
}

func (f *fakeDecoder) DequeueOutput(time.Duration) (audiotype.PCMFrame, error) {
	if len(f.queue) == 0 {
		return audiotype.PCMFrame{}, codec.ErrEmpty
	}
	frame := f.queue[0]
	f.queue = f.queue[1:]
	return frame, nil
}

func (f *fakeDecoder) Stop() error { return nil }
func (f *fakeDecoder) Release()    {}

func TestRunProducesPeakPerBucket(t *testing.T) {
	demuxer := &fakeDemuxer{aus: []audiotype.AccessUnit{
		{PresentationTimeUs: 0}, {PresentationTimeUs: 10_000},
	}}
	decoder := &fakeDecoder{samplesPerFrame: []int16{100, -500, 300, -32000}}

	env, err := Run(Config{
		Demuxer: demuxer, Decoder: decoder,
		SampleRateHz: 4, Channels: 1, SamplesPerSecond: 1, // bucketSize = 4
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(env.Amplitudes) != 2 {
		t.Fatalf("got %d buckets, want 2", len(env.Amplitudes))
	}
	wantPeak := 32000.0 / 32768.0
	if env.Amplitudes[0] < wantPeak-0.001 || env.Amplitudes[0] > wantPeak+0.001 {
		t.Fatalf("bucket 0 peak = %v, want ~%v", env.Amplitudes[0], wantPeak)
	}
}

func TestRunRejectsInvalidSamplesPerSecond(t *testing.T) {
	_, err := Run(Config{SamplesPerSecond: 0})
	if !audiotype.IsKind(err, audiotype.KindInvalidArguments) {
		t.Fatalf("err = %v, want KindInvalidArguments", err)
	}
}
