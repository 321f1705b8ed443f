package codec

import (
	"fmt"
	"math"
	"time"

	ffmpeg "github.com/csnewman/ffmpeg-go"

	"github.com/linuxmatters/audiocore/internal/audiotype"
)

const encoderQueueDepth = 4

// EncoderConfig configures the AAC-LC encoder per spec.md §4.C.
type EncoderConfig struct {
	InputSampleRateHz int
	InputChannels     int
	BitRateKbps       int
}

// clampSampleRate falls back to 44100 if the input rate is outside the
// AAC-LC-friendly range libavcodec's encoder accepts.
func clampSampleRate(hz int) int {
	if hz < 8000 || hz > 48000 {
		return 44100
	}
	return hz
}

// clampChannels falls back to stereo if the input channel count is
// outside what the encoder configuration supports.
func clampChannels(ch int) int {
	if ch < 1 || ch > 2 {
		return 2
	}
	return ch
}

// Encoder turns 16-bit PCM frames into AAC-LC access units. It emits a
// FormatChanged event exactly once, before its first real output; a
// second FormatChanged is a fatal pipeline error (spec.md §4.C) and is
// reported as such by the caller, since ffmpeg's output format cannot
// legitimately change mid-stream for a fixed AAC-LC configuration.
type Encoder struct {
	ctx           *ffmpeg.AVCodecContext
	frame         *ffmpeg.AVFrame
	packet        *ffmpeg.AVPacket
	pool          *inflight
	sawEOS        bool
	formatEmitted bool
}

// ConfigureEncoder allocates and opens the AAC-LC encoder.
func ConfigureEncoder(cfg EncoderConfig) (*Encoder, error) {
	encoderImpl := ffmpeg.AVCodecFindEncoder(ffmpeg.AVCodecIdAac)
	if encoderImpl == nil {
		return nil, fmt.Errorf("codec: no AAC-LC encoder available")
	}

	ctx := ffmpeg.AVCodecAllocContext3(encoderImpl)
	if ctx == nil {
		return nil, fmt.Errorf("codec: allocate encoder context")
	}

	sampleRate := clampSampleRate(cfg.InputSampleRateHz)
	channels := clampChannels(cfg.InputChannels)
	bitRateKbps := cfg.BitRateKbps
	if bitRateKbps < 32 {
		bitRateKbps = 32
	} else if bitRateKbps > 320 {
		bitRateKbps = 320
	}

	// libavcodec's native AAC encoder declares sample_fmts = {FLTP, NONE};
	// it rejects any other configured format at AVCodecOpen2.
	ctx.SetSampleFmt(ffmpeg.AVSampleFmtFltp)
	ctx.SetSampleRate(sampleRate)
	ctx.SetBitRate(int64(bitRateKbps) * 1000)
	ctx.SetTimeBase(ffmpeg.AVMakeQ(1, sampleRate))
	ffmpeg.AVChannelLayoutDefault(ctx.ChLayout(), channels)

	if _, err := ffmpeg.AVCodecOpen2(ctx, encoderImpl, nil); err != nil {
		ffmpeg.AVCodecFreeContext(&ctx)
		return nil, fmt.Errorf("codec: open AAC-LC encoder: %w", err)
	}

	return &Encoder{
		ctx:    ctx,
		frame:  ffmpeg.AVFrameAlloc(),
		packet: ffmpeg.AVPacketAlloc(),
		pool:   newInflight(encoderQueueDepth, MaxInputBufferSize),
	}, nil
}

// DequeueInput acquires a writable PCM input slot, or ErrEmpty on timeout.
func (e *Encoder) DequeueInput(timeout time.Duration) (*Slot, error) {
	return e.pool.dequeue(timeout)
}

// QueueInput hands a slot back with PCM bytes to encode. flagsEOS
// signals end of stream; bytes is ignored when flagsEOS is true.
func (e *Encoder) QueueInput(slot *Slot, bytes []byte, ptsUs int64, flagsEOS bool) error {
	defer e.pool.release(slot)

	if flagsEOS {
		if _, err := ffmpeg.AVCodecSendFrame(e.ctx, nil); err != nil {
			if empty, _ := eagainOrEOF(err); empty {
				return ErrTryAgainLater
			}
			return fmt.Errorf("codec: send EOS frame to encoder: %w", err)
		}
		e.sawEOS = true
		return nil
	}

	n := copy(slot.buf, bytes)
	bytesPerSample := 2
	channels := e.ctx.ChLayout().NbChannels()
	nbSamples := n / (bytesPerSample * channels)

	ffmpeg.AVFrameUnref(e.frame)
	e.frame.SetNbSamples(nbSamples)
	e.frame.SetFormat(int(ffmpeg.AVSampleFmtFltp))
	ffmpeg.AVChannelLayoutCopy(e.frame.ChLayout(), e.ctx.ChLayout())
	e.frame.SetSampleRate(e.ctx.SampleRate())
	if _, err := ffmpeg.AVFrameGetBuffer(e.frame, 0); err != nil {
		return fmt.Errorf("codec: allocate encoder frame buffer: %w", err)
	}
	planarizeS16ToFltp(e.frame, slot.buf[:n], nbSamples, channels)
	e.frame.SetPts(ffmpeg.AVRescaleQ(ptsUs, ffmpeg.AVMakeQ(1, 1000000), e.ctx.TimeBase()))

	if _, err := ffmpeg.AVCodecSendFrame(e.ctx, e.frame); err != nil {
		if empty, _ := eagainOrEOF(err); empty {
			return ErrTryAgainLater
		}
		return fmt.Errorf("codec: send frame to encoder: %w", err)
	}
	return nil
}

// DequeueOutput receives one encoded AAC access unit. The first
// successful call after Configure returns (OutputEvent{FormatChanged:
// ...}, AccessUnit{}, nil) with the access unit undefined; the caller
// must register the format with the muxer before writing any samples.
func (e *Encoder) DequeueOutput(timeout time.Duration) (OutputEvent, audiotype.AccessUnit, error) {
	if !e.formatEmitted {
		e.formatEmitted = true
		return OutputEvent{FormatChanged: e.outputFormat()}, audiotype.AccessUnit{}, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		ffmpeg.AVPacketUnref(e.packet)
		if _, err := ffmpeg.AVCodecReceivePacket(e.ctx, e.packet); err == nil {
			data := make([]byte, e.packet.Size())
			copy(data, packetDataBytes(e.packet))
			ptsUs := ffmpeg.AVRescaleQ(e.packet.Pts(), e.ctx.TimeBase(), ffmpeg.AVMakeQ(1, 1000000))
			return OutputEvent{}, audiotype.AccessUnit{
				Bytes:              data,
				PresentationTimeUs: ptsUs,
				IsSync:             true, // every AAC-LC raw frame decodes independently
			}, nil
		} else if empty, eof := eagainOrEOF(err); empty {
			if time.Now().After(deadline) {
				return OutputEvent{Empty: true}, audiotype.AccessUnit{}, ErrEmpty
			}
			time.Sleep(time.Millisecond)
			continue
		} else if eof {
			return OutputEvent{}, audiotype.AccessUnit{IsEOS: true}, nil
		} else {
			return OutputEvent{}, audiotype.AccessUnit{}, fmt.Errorf("codec: receive packet from encoder: %w", err)
		}
	}
}

// planarizeS16ToFltp converts 16-bit little-endian interleaved PCM, the
// canonical interchange format QueueInput's callers hand in, into the
// per-channel float planes frame's configured format (FLTP) requires.
func planarizeS16ToFltp(frame *ffmpeg.AVFrame, pcm []byte, nbSamples, channels int) {
	for ch := 0; ch < channels; ch++ {
		plane := ptrBytes(frame.Data().Get(uintptr(ch)), nbSamples*4)
		for i := 0; i < nbSamples; i++ {
			off := (i*channels + ch) * 2
			sample := int16(uint16(pcm[off]) | uint16(pcm[off+1])<<8)
			bits := math.Float32bits(float32(sample) / 32768.0)
			plane[i*4] = byte(bits)
			plane[i*4+1] = byte(bits >> 8)
			plane[i*4+2] = byte(bits >> 16)
			plane[i*4+3] = byte(bits >> 24)
		}
	}
}

// FrameDurationUs returns the duration, in microseconds, of one encoded
// frame at the encoder's configured sample rate and frame size. The
// splice orchestrator (spec.md §4.G) adds this to its cumulative offset
// so the first timestamp of a spliced-in source always lands strictly
// after the previous source's last emitted timestamp, not merely at or
// after it.
func (e *Encoder) FrameDurationUs() int64 {
	sampleRate := int64(e.ctx.SampleRate())
	if sampleRate <= 0 {
		return 0
	}
	frameSize := int64(e.ctx.FrameSize())
	if frameSize <= 0 {
		frameSize = 1024 // AAC-LC's fixed frame size when the encoder hasn't reported one
	}
	return frameSize * 1_000_000 / sampleRate
}

func (e *Encoder) outputFormat() *audiotype.TrackFormat {
	var extra []byte
	if n := e.ctx.ExtradataSize(); n > 0 {
		extra = make([]byte, n)
		copy(extra, ptrBytes(e.ctx.Extradata(), n))
	}
	return &audiotype.TrackFormat{
		MIME:              "audio/mp4a-latm",
		SampleRateHz:      e.ctx.SampleRate(),
		Channels:          e.ctx.ChLayout().NbChannels(),
		BitRateBps:        e.ctx.BitRate(),
		CodecSpecificData: extra,
	}
}

// Stop signals the encoder it will receive no more input. Idempotent.
func (e *Encoder) Stop() error {
	if e.ctx == nil {
		return nil
	}
	if !e.sawEOS {
		ffmpeg.AVCodecSendFrame(e.ctx, nil)
		e.sawEOS = true
	}
	return nil
}

// Release frees all native resources. Idempotent.
func (e *Encoder) Release() {
	if e.frame != nil {
		ffmpeg.AVFrameFree(&e.frame)
		e.frame = nil
	}
	if e.packet != nil {
		ffmpeg.AVPacketFree(&e.packet)
		e.packet = nil
	}
	if e.ctx != nil {
		ffmpeg.AVCodecFreeContext(&e.ctx)
		e.ctx = nil
	}
}
