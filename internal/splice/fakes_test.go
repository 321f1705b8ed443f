package splice

import (
	"errors"
	"time"

	"github.com/linuxmatters/audiocore/internal/codec"
	"github.com/linuxmatters/audiocore/internal/audiotype"
)

var errFakeDemuxEOF = errors.New("fake demux: end of stream")

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

type fakeDecoder struct {
	queue    []audiotype.PCMFrame
	stopped  bool
	released bool
}

func (f *fakeDecoder) DequeueInput(time.Duration) (*codec.Slot, error) { return codec.NewSlot(256), nil }

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

type fakeEncoder struct {
	formatEmitted bool
	queue         []audiotype.AccessUnit
	stopped       bool
	released      bool
}

func (f *fakeEncoder) DequeueInput(time.Duration) (*codec.Slot, error) { return codec.NewSlot(256), nil }

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
		return codec.OutputEvent{FormatChanged: &audiotype.TrackFormat{MIME: "audio/mp4a-latm", SampleRateHz: 44100, Channels: 2}}, audiotype.AccessUnit{}, nil
	}
	if len(f.queue) == 0 {
		return codec.OutputEvent{Empty: true}, audiotype.AccessUnit{}, codec.ErrEmpty
	}
	au := f.queue[0]
	f.queue = f.queue[1:]
	return codec.OutputEvent{}, au, nil
}

func (f *fakeEncoder) Stop() error            { f.stopped = true; return nil }
func (f *fakeEncoder) Release()               { f.released = true }
func (f *fakeEncoder) FrameDurationUs() int64 { return 20_000 }

type fakeMuxer struct {
	started, stopped, closed bool
	written                  []audiotype.AccessUnit
}

func (f *fakeMuxer) AddTrack(audiotype.TrackFormat) (int, error) { return 0, nil }
func (f *fakeMuxer) Start() error                                { f.started = true; return nil }
func (f *fakeMuxer) WriteSample(_ int, au audiotype.AccessUnit) error {
	f.written = append(f.written, au)
	return nil
}
func (f *fakeMuxer) Stop() error { f.stopped = true; return nil }
func (f *fakeMuxer) Close()      { f.closed = true }

// cancelAfterDemuxer closes cancel once its Next has been called after
// times, simulating a cancellation request arriving while this source
// is still being processed.
type cancelAfterDemuxer struct {
	fakeDemuxer
	cancel       chan struct{}
	after        int
	calls        int
	cancelClosed bool
}

func (d *cancelAfterDemuxer) Next() (audiotype.AccessUnit, error) {
	d.calls++
	au, err := d.fakeDemuxer.Next()
	if d.calls >= d.after && !d.cancelClosed {
		d.cancelClosed = true
		close(d.cancel)
	}
	return au, err
}

func sampleAUs(n int) []audiotype.AccessUnit {
	aus := make([]audiotype.AccessUnit, n)
	for i := range aus {
		aus[i] = audiotype.AccessUnit{Bytes: []byte{byte(i)}, PresentationTimeUs: int64(i) * 20_000, IsSync: true}
	}
	return aus
}
