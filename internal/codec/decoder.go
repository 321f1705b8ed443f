package codec

import (
	"fmt"
	"math"
	"time"

	ffmpeg "github.com/csnewman/ffmpeg-go"

	"github.com/linuxmatters/audiocore/internal/audiotype"
)

// decoderQueueDepth bounds how many compressed AUs may be in flight
// between the demuxer feed and the decoder's internal buffers at once.
const decoderQueueDepth = 4

// Decoder turns compressed access units into 16-bit PCM frames. It is
// live between Configure+Start and Stop+Release; within its live period
// it is driven by a single cooperative loop (spec.md §5), never from two
// goroutines at once.
type Decoder struct {
	ctx      *ffmpeg.AVCodecContext
	packet   *ffmpeg.AVPacket
	frame    *ffmpeg.AVFrame
	pool     *inflight
	sawEOS   bool
}

// ConfigureDecoder allocates and opens a decoder matching codecpar, the
// format the demuxer reported for the selected track.
func ConfigureDecoder(codecpar *ffmpeg.AVCodecParameters) (*Decoder, error) {
	decoderImpl := ffmpeg.AVCodecFindDecoder(codecpar.CodecId())
	if decoderImpl == nil {
		return nil, fmt.Errorf("codec: no decoder for codec id %d", codecpar.CodecId())
	}

	ctx := ffmpeg.AVCodecAllocContext3(decoderImpl)
	if ctx == nil {
		return nil, fmt.Errorf("codec: allocate decoder context")
	}

	if _, err := ffmpeg.AVCodecParametersToContext(ctx, codecpar); err != nil {
		ffmpeg.AVCodecFreeContext(&ctx)
		return nil, fmt.Errorf("codec: copy codec parameters to decoder: %w", err)
	}

	if _, err := ffmpeg.AVCodecOpen2(ctx, decoderImpl, nil); err != nil {
		ffmpeg.AVCodecFreeContext(&ctx)
		return nil, fmt.Errorf("codec: open decoder: %w", err)
	}

	return &Decoder{
		ctx:    ctx,
		packet: ffmpeg.AVPacketAlloc(),
		frame:  ffmpeg.AVFrameAlloc(),
		pool:   newInflight(decoderQueueDepth, MaxInputBufferSize),
	}, nil
}

// SampleRateHz returns the decoder's configured sample rate.
func (d *Decoder) SampleRateHz() int { return d.ctx.SampleRate() }

// Channels returns the decoder's configured channel count.
func (d *Decoder) Channels() int { return d.ctx.ChLayout().NbChannels() }

// DequeueInput acquires a writable input slot, or ErrEmpty on timeout.
func (d *Decoder) DequeueInput(timeout time.Duration) (*Slot, error) {
	return d.pool.dequeue(timeout)
}

// QueueInput hands a slot back with its compressed bytes. flagsEOS
// signals end of stream; bytes is ignored when flagsEOS is true.
func (d *Decoder) QueueInput(slot *Slot, bytes []byte, ptsUs int64, flagsEOS bool) error {
	defer d.pool.release(slot)

	ffmpeg.AVPacketUnref(d.packet)

	if flagsEOS {
		if _, err := ffmpeg.AVCodecSendPacket(d.ctx, nil); err != nil {
			if empty, _ := eagainOrEOF(err); empty {
				return ErrTryAgainLater
			}
			return fmt.Errorf("codec: send EOS packet to decoder: %w", err)
		}
		d.sawEOS = true
		return nil
	}

	n := copy(slot.buf, bytes)
	if err := setPacketData(d.packet, slot.buf[:n]); err != nil {
		return fmt.Errorf("codec: set decoder packet data: %w", err)
	}
	pts := ffmpeg.AVRescaleQ(ptsUs, ffmpeg.AVMakeQ(1, 1000000), ffmpeg.AVMakeQ(1, 1000000))
	d.packet.SetPts(pts)

	if _, err := ffmpeg.AVCodecSendPacket(d.ctx, d.packet); err != nil {
		if empty, _ := eagainOrEOF(err); empty {
			return ErrTryAgainLater
		}
		return fmt.Errorf("codec: send packet to decoder: %w", err)
	}
	return nil
}

// DequeueOutput receives one decoded PCM frame, or ErrEmpty if the
// decoder has nothing ready before timeout.
func (d *Decoder) DequeueOutput(timeout time.Duration) (audiotype.PCMFrame, error) {
	deadline := time.Now().Add(timeout)
	for {
		if _, err := ffmpeg.AVCodecReceiveFrame(d.ctx, d.frame); err == nil {
			ptsUs := d.frame.Pts()
			out := interleavedS16FromFrame(d.frame)
			ffmpeg.AVFrameUnref(d.frame)
			return audiotype.PCMFrame{Bytes: out, PresentationTimeUs: ptsUs}, nil
		} else if empty, eof := eagainOrEOF(err); empty {
			if time.Now().After(deadline) {
				return audiotype.PCMFrame{}, ErrEmpty
			}
			time.Sleep(time.Millisecond)
			continue
		} else if eof {
			return audiotype.PCMFrame{IsEOS: true}, nil
		} else {
			return audiotype.PCMFrame{}, fmt.Errorf("codec: receive frame from decoder: %w", err)
		}
	}
}

// Stop signals the decoder it will receive no more input. Idempotent.
func (d *Decoder) Stop() error {
	if d.ctx == nil {
		return nil
	}
	if !d.sawEOS {
		ffmpeg.AVCodecSendPacket(d.ctx, nil)
		d.sawEOS = true
	}
	return nil
}

// interleavedS16FromFrame reads a decoded AVFrame in whatever sample
// format the source decoder natively produces (native aac/mp3/vorbis
// decoders emit planar float, not interleaved S16) and converts it to
// the 16-bit little-endian interleaved PCM the rest of the pipeline
// treats as canonical.
func interleavedS16FromFrame(frame *ffmpeg.AVFrame) []byte {
	nbSamples := frame.NbSamples()
	nbChannels := frame.ChLayout().NbChannels()
	if nbSamples <= 0 || nbChannels <= 0 {
		return nil
	}

	format := frame.Format()
	planeBytes := bytesPerPlaneSample(format)
	out := make([]byte, nbSamples*nbChannels*2)

	if isPlanarFormat(format) {
		for ch := 0; ch < nbChannels; ch++ {
			plane := ptrBytes(frame.Data().Get(uintptr(ch)), nbSamples*planeBytes)
			for i := 0; i < nbSamples; i++ {
				putInt16LE(out, (i*nbChannels+ch)*2, readPlaneSample(plane, i*planeBytes, format))
			}
		}
		return out
	}

	plane := ptrBytes(frame.Data().Get(0), nbSamples*nbChannels*planeBytes)
	for i := 0; i < nbSamples*nbChannels; i++ {
		putInt16LE(out, i*2, readPlaneSample(plane, i*planeBytes, format))
	}
	return out
}

func isPlanarFormat(format int) bool {
	switch ffmpeg.AVSampleFormat(format) {
	case ffmpeg.AVSampleFmtS16P, ffmpeg.AVSampleFmtFltp, ffmpeg.AVSampleFmtS32P:
		return true
	default:
		return false
	}
}

func bytesPerPlaneSample(format int) int {
	switch ffmpeg.AVSampleFormat(format) {
	case ffmpeg.AVSampleFmtFlt, ffmpeg.AVSampleFmtFltp, ffmpeg.AVSampleFmtS32, ffmpeg.AVSampleFmtS32P:
		return 4
	default:
		return 2 // S16 / S16P
	}
}

// readPlaneSample decodes one sample at off within plane, converting it
// to S16 range regardless of the source's native width.
func readPlaneSample(plane []byte, off int, format int) int16 {
	switch ffmpeg.AVSampleFormat(format) {
	case ffmpeg.AVSampleFmtFlt, ffmpeg.AVSampleFmtFltp:
		bits := uint32(plane[off]) | uint32(plane[off+1])<<8 | uint32(plane[off+2])<<16 | uint32(plane[off+3])<<24
		return floatToInt16(math.Float32frombits(bits))
	case ffmpeg.AVSampleFmtS32, ffmpeg.AVSampleFmtS32P:
		v := int32(uint32(plane[off]) | uint32(plane[off+1])<<8 | uint32(plane[off+2])<<16 | uint32(plane[off+3])<<24)
		return int16(v >> 16)
	default: // S16 / S16P
		return int16(uint16(plane[off]) | uint16(plane[off+1])<<8)
	}
}

func floatToInt16(f float32) int16 {
	v := f * 32768.0
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}

func putInt16LE(dst []byte, off int, v int16) {
	dst[off] = byte(v)
	dst[off+1] = byte(v >> 8)
}

// Release frees all native resources. Idempotent.
func (d *Decoder) Release() {
	if d.frame != nil {
		ffmpeg.AVFrameFree(&d.frame)
		d.frame = nil
	}
	if d.packet != nil {
		ffmpeg.AVPacketFree(&d.packet)
		d.packet = nil
	}
	if d.ctx != nil {
		ffmpeg.AVCodecFreeContext(&d.ctx)
		d.ctx = nil
	}
}
