// Package codec wraps libav decoder/encoder contexts behind the bounded,
// timeout-based dequeue/queue interface spec.md §4.C describes (modelled
// on Android MediaCodec, which the source platform layer binds to
// directly). ffmpeg's synchronous send/receive API has no native notion
// of "dequeue with timeout" or "buffer slot", so this package is the
// adapter: it is grounded on the teacher's internal/audio/reader.go
// (decode loop) and internal/processor/encoder.go (encode loop), and
// generalized into the explicit slot/timeout contract the pipeline in
// internal/pipeline needs to implement back-pressure without dropping
// frames.
package codec

import (
	"errors"
	"time"

	ffmpeg "github.com/csnewman/ffmpeg-go"

	"github.com/linuxmatters/audiocore/internal/audiotype"
)

// ErrEmpty is returned by DequeueInput/DequeueOutput when no slot is
// available before the timeout elapses. It is a normal, expected
// condition — callers retry with back-pressure relief, never treat it as
// fatal on its own (spec.md §7).
var ErrEmpty = errors.New("codec: empty")

// ErrTryAgainLater is returned by QueueInput when the underlying codec's
// internal buffers are full; the caller must drain output and retry.
var ErrTryAgainLater = errors.New("codec: try again later")

// MaxInputBufferSize is the encoder input buffer hint from spec.md §4.C.
// Smaller values have been observed to drop frames under back-pressure.
const MaxInputBufferSize = 65536

// Slot is an opaque, reusable input buffer handle.
type Slot struct {
	buf []byte
}

// Bytes exposes the slot's backing storage so a caller can size a copy
// into it without an extra allocation.
func (s *Slot) Bytes() []byte { return s.buf }

// NewSlot allocates a standalone slot of the given capacity, for use by
// fake Decoder/Encoder implementations in tests.
func NewSlot(size int) *Slot { return &Slot{buf: make([]byte, size)} }

// inflight is the shared bounded-queue bookkeeping used by both the
// decoder and the encoder: it models the small, fixed pool of input
// buffer slots a real codec exposes.
type inflight struct {
	sem chan *Slot
}

func newInflight(depth, bufSize int) *inflight {
	f := &inflight{sem: make(chan *Slot, depth)}
	for i := 0; i < depth; i++ {
		f.sem <- &Slot{buf: make([]byte, bufSize)}
	}
	return f
}

func (f *inflight) dequeue(timeout time.Duration) (*Slot, error) {
	select {
	case s := <-f.sem:
		return s, nil
	case <-time.After(timeout):
		return nil, ErrEmpty
	}
}

func (f *inflight) release(s *Slot) {
	select {
	case f.sem <- s:
	default:
		// Pool is already full; drop it rather than block (should not
		// happen since release count never exceeds dequeue count).
	}
}

// OutputEvent is the tagged result of DequeueOutput: exactly one of
// FormatChanged or AU/PCM is set, or Empty is true.
type OutputEvent struct {
	Empty         bool
	FormatChanged *audiotype.TrackFormat
}

func eagainOrEOF(err error) (isEmpty, isEOF bool) {
	return errors.Is(err, ffmpeg.EAgain), errors.Is(err, ffmpeg.AVErrorEOF)
}
