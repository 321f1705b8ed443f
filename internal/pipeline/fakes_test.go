package pipeline

import (
	"errors"
	"time"

	"github.com/linuxmatters/audiocore/internal/audiotype"
	"github.com/linuxmatters/audiocore/internal/codec"
)

var errFakeDemuxEOF = errors.New("fake demux: end of stream")

// fakeDemuxer replays a fixed slice of access units.
type fakeDemuxer struct {
	aus    []audiotype.AccessUnit
	idx    int
	closed bool
}

func (f *fakeDemuxer) Next() (audiotype.AccessUnit, error) {
	if f.idx >= len(f.aus) {
		return audiotype.AccessUnit{}, errFakeDemuxEOF
	}
	au := f.aus[f.idx]
	f.idx++
	return au, nil
}

func (f *fakeDemuxer) Close() { f.closed = true }

// fakeDecoder passes compressed bytes straight through as "PCM", exactly
// preserving count and timestamps, to isolate the pipeline's control flow
// from real decode/encode semantics.
type fakeDecoder struct {
	queue    []audiotype.PCMFrame
	stopped  bool
	released bool
}

func (f *fakeDecoder) DequeueInput(time.Duration) (*codec.Slot, error) {
	return codec.NewSlot(256), nil
}

func (f *fakeDecoder) QueueInput(_ *codec.Slot, bytes []byte, ptsUs int64, flagsEOS bool) error {
	if flagsEOS {
		f.queue = append(f.queue, audiotype.PCMFrame{IsEOS: true})
		return nil
	}
	out := make([]byte, len(bytes))
	copy(out, bytes)
	f.queue = append(f.queue, audiotype.PCMFrame{Bytes: out, PresentationTimeUs: ptsUs})
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

func (f *fakeDecoder) Stop() error { f.stopped = true; return nil }
func (f *fakeDecoder) Release()    { f.released = true }

// fakeEncoder passes PCM bytes through as encoded access units. inputStall
// is decremented on every DequeueInput call while positive, returning
// codec.ErrEmpty each time, to exercise the pipeline's back-pressure retry
// budget without dropping the frame it was trying to send.
type fakeEncoder struct {
	inputStall    int
	formatEmitted bool
	queue         []audiotype.AccessUnit
	stopped       bool
	released      bool
}

func (f *fakeEncoder) DequeueInput(time.Duration) (*codec.Slot, error) {
	if f.inputStall > 0 {
		f.inputStall--
		return nil, codec.ErrEmpty
	}
	return codec.NewSlot(256), nil
}

func (f *fakeEncoder) QueueInput(_ *codec.Slot, bytes []byte, ptsUs int64, flagsEOS bool) error {
	if flagsEOS {
		f.queue = append(f.queue, audiotype.AccessUnit{IsEOS: true})
		return nil
	}
	out := make([]byte, len(bytes))
	copy(out, bytes)
	f.queue = append(f.queue, audiotype.AccessUnit{Bytes: out, PresentationTimeUs: ptsUs, IsSync: true})
	return nil
}

func (f *fakeEncoder) DequeueOutput(time.Duration) (codec.OutputEvent, audiotype.AccessUnit, error) {
	if !f.formatEmitted {
		f.formatEmitted = true
		return codec.OutputEvent{FormatChanged: &audiotype.TrackFormat{
			MIME: "audio/mp4a-latm", SampleRateHz: 44100, Channels: 2,
		}}, audiotype.AccessUnit{}, nil
	}
	if len(f.queue) == 0 {
		return codec.OutputEvent{Empty: true}, audiotype.AccessUnit{}, codec.ErrEmpty
	}
	au := f.queue[0]
	f.queue = f.queue[1:]
	return codec.OutputEvent{}, au, nil
}

func (f *fakeEncoder) Stop() error { f.stopped = true; return nil }
func (f *fakeEncoder) Release()    { f.released = true }

// fakeMuxer records every sample it is asked to write.
type fakeMuxer struct {
	started bool
	stopped bool
	closed  bool
	written []audiotype.AccessUnit
}

func (f *fakeMuxer) AddTrack(audiotype.TrackFormat) (int, error) { return 0, nil }

func (f *fakeMuxer) Start() error { f.started = true; return nil }

func (f *fakeMuxer) WriteSample(_ int, au audiotype.AccessUnit) error {
	f.written = append(f.written, au)
	return nil
}

func (f *fakeMuxer) Stop() error { f.stopped = true; return nil }
func (f *fakeMuxer) Close()      { f.closed = true }
