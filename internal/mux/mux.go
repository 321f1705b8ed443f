// Package mux writes a playable M4A/MP4 container carrying AAC-LC (or,
// for the lossless path, the original elementary stream).
//
// Grounded on the teacher's internal/processor/encoder.go, generalized
// from an encoder-coupled FLAC writer into the bare muxer state machine
// the spec calls for: add_track -> start -> write_sample* -> stop.
package mux

import (
	"fmt"

	ffmpeg "github.com/csnewman/ffmpeg-go"

	"github.com/linuxmatters/audiocore/internal/audiotype"
)

// State is the muxer's lifecycle state (spec.md §4.B).
type State int

const (
	StateCreated State = iota
	StateTrackAdded
	StateStarted
	StateStopped
)

// Muxer writes one MP4/ISO BMFF output file. Not safe for concurrent use.
type Muxer struct {
	path      string
	state     State
	fmtCtx    *ffmpeg.AVFormatContext
	stream    *ffmpeg.AVStream
	packet    *ffmpeg.AVPacket
	lastPtsUs int64
	haveLast  bool
}

// New allocates an output context for path. The file is not created on
// disk until Start commits the header.
func New(path string) (*Muxer, error) {
	pathC := ffmpeg.ToCStr(path)
	defer pathC.Free()

	var fmtCtx *ffmpeg.AVFormatContext
	if _, err := ffmpeg.AVFormatAllocOutputContext2(&fmtCtx, nil, ffmpeg.ToCStr("mp4"), pathC); err != nil {
		return nil, fmt.Errorf("mux: allocate output context for %s: %w", path, err)
	}

	return &Muxer{
		path:   path,
		state:  StateCreated,
		fmtCtx: fmtCtx,
		packet: ffmpeg.AVPacketAlloc(),
	}, nil
}

// AddTrack registers the output track format, read either from an
// encoder's post-first-output descriptor or, for lossless copy, straight
// from the demuxer's reported track format.
func (m *Muxer) AddTrack(format audiotype.TrackFormat) (int, error) {
	if m.state != StateCreated {
		return 0, fmt.Errorf("mux: add_track called in state %v, want Created", m.state)
	}

	stream := ffmpeg.AVFormatNewStream(m.fmtCtx, nil)
	if stream == nil {
		return 0, fmt.Errorf("mux: failed to create stream for %s", m.path)
	}

	par := stream.Codecpar()
	par.SetCodecType(ffmpeg.AVMediaTypeAudio)
	par.SetCodecId(codecIDForMIME(format.MIME))
	par.SetSampleRate(format.SampleRateHz)
	ffmpeg.AVChannelLayoutDefault(par.ChLayout(), format.Channels)
	par.SetBitRate(format.BitRateBps)
	if len(format.CodecSpecificData) > 0 {
		setExtradata(par, format.CodecSpecificData)
	}
	stream.SetTimeBase(ffmpeg.AVMakeQ(1, 1000000))

	m.stream = stream
	m.state = StateTrackAdded
	return 0, nil
}

// Start commits the output file header. Transitions TrackAdded -> Started.
func (m *Muxer) Start() error {
	if m.state != StateTrackAdded {
		return fmt.Errorf("mux: start called in state %v, want TrackAdded", m.state)
	}

	pathC := ffmpeg.ToCStr(m.path)
	defer pathC.Free()

	if m.fmtCtx.Oformat().Flags()&ffmpeg.AVFmtNofile == 0 {
		var pb *ffmpeg.AVIOContext
		if _, err := ffmpeg.AVIOOpen(&pb, pathC, ffmpeg.AVIOFlagWrite); err != nil {
			return fmt.Errorf("mux: open output file %s: %w", m.path, err)
		}
		m.fmtCtx.SetPb(pb)
	}

	if _, err := ffmpeg.AVFormatWriteHeader(m.fmtCtx, nil); err != nil {
		return fmt.Errorf("mux: write header for %s: %w", m.path, err)
	}

	m.state = StateStarted
	return nil
}

// WriteSample writes one access unit to the given track. AU timestamps
// must be non-decreasing per track (spec.md invariant); a regression is a
// MuxerError, not silently clamped.
func (m *Muxer) WriteSample(trackID int, au audiotype.AccessUnit) error {
	if m.state != StateStarted {
		return fmt.Errorf("mux: write_sample called in state %v, want Started", m.state)
	}
	if m.haveLast && au.PresentationTimeUs < m.lastPtsUs {
		return fmt.Errorf("mux: timestamp regression: %d < %d", au.PresentationTimeUs, m.lastPtsUs)
	}

	ffmpeg.AVPacketUnref(m.packet)
	if err := setPacketData(m.packet, au.Bytes); err != nil {
		return fmt.Errorf("mux: set packet data: %w", err)
	}
	m.packet.SetStreamIndex(trackID)

	ptsTicks := ffmpeg.AVRescaleQ(au.PresentationTimeUs, ffmpeg.AVMakeQ(1, 1000000), m.stream.TimeBase())
	m.packet.SetPts(ptsTicks)
	m.packet.SetDts(ptsTicks)
	if au.IsSync {
		m.packet.SetFlags(m.packet.Flags() | ffmpeg.AVPktFlagKey)
	}

	if _, err := ffmpeg.AVInterleavedWriteFrame(m.fmtCtx, m.packet); err != nil {
		return fmt.Errorf("mux: write sample: %w", err)
	}

	m.lastPtsUs = au.PresentationTimeUs
	m.haveLast = true
	return nil
}

// Stop finalizes the moov/index. Idempotent: a second call returns nil,
// and a call before Start only marks the muxer stopped, writing no
// trailer and returning nil. A trailer write error is returned once.
func (m *Muxer) Stop() error {
	if m.state == StateStopped {
		return nil
	}
	if m.state != StateStarted {
		m.state = StateStopped
		return nil
	}

	if _, err := ffmpeg.AVWriteTrailer(m.fmtCtx); err != nil {
		m.state = StateStopped
		return fmt.Errorf("mux: write trailer for %s: %w", m.path, err)
	}
	m.state = StateStopped
	return nil
}

// Close releases native resources. Safe to call after failures, and
// idempotent.
func (m *Muxer) Close() {
	if m.fmtCtx == nil {
		return
	}
	if m.packet != nil {
		ffmpeg.AVPacketFree(&m.packet)
		m.packet = nil
	}
	if m.fmtCtx.Oformat().Flags()&ffmpeg.AVFmtNofile == 0 && m.fmtCtx.Pb() != nil {
		ffmpeg.AVIOClose(m.fmtCtx.Pb())
		m.fmtCtx.SetPb(nil)
	}
	ffmpeg.AVFormatFreeContext(m.fmtCtx)
	m.fmtCtx = nil
}

func codecIDForMIME(mime string) ffmpeg.AVCodecID {
	switch mime {
	case "audio/mp4a-latm", "audio/aac", "audio/mp4":
		return ffmpeg.AVCodecIdAac
	default:
		return ffmpeg.AVCodecIdAac
	}
}
