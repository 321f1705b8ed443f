// Package splice implements multi-file concatenation (spec.md §4.G): one
// shared encoder and muxer fed in turn by each input's own demuxer and
// decoder, with access unit timestamps offset so the whole sequence is
// monotonically increasing across file boundaries.
//
// Grounded on internal/pipeline's feed/pump/drain phases, generalized
// from "one demuxer, one decoder, run to completion" into "N demuxers
// and decoders run to completion in turn, against one persistent
// encoder/muxer pair".
package splice

import (
	"os"
	"time"

	"github.com/linuxmatters/audiocore/internal/codec"
	"github.com/linuxmatters/audiocore/internal/audiotype"
)

// Demuxer is the subset of *demux.Demuxer this package drives.
type Demuxer interface {
	Next() (audiotype.AccessUnit, error)
	Close()
}

// Decoder is the subset of *codec.Decoder this package drives.
type Decoder interface {
	DequeueInput(timeout time.Duration) (*codec.Slot, error)
	QueueInput(slot *codec.Slot, bytes []byte, ptsUs int64, flagsEOS bool) error
	DequeueOutput(timeout time.Duration) (audiotype.PCMFrame, error)
	Stop() error
	Release()
}

// Encoder is the subset of *codec.Encoder this package drives.
type Encoder interface {
	DequeueInput(timeout time.Duration) (*codec.Slot, error)
	QueueInput(slot *codec.Slot, bytes []byte, ptsUs int64, flagsEOS bool) error
	DequeueOutput(timeout time.Duration) (codec.OutputEvent, audiotype.AccessUnit, error)
	Stop() error
	Release()
	FrameDurationUs() int64
}

// Muxer is the subset of *mux.Muxer this package drives.
type Muxer interface {
	AddTrack(format audiotype.TrackFormat) (int, error)
	Start() error
	WriteSample(trackID int, au audiotype.AccessUnit) error
	Stop() error
	Close()
}

// Source is one splice input, already opened and with its track selected
// and decoder configured by the caller.
type Source struct {
	Demuxer             Demuxer
	Decoder             Decoder
	ExpectedDurationUs  int64
	TimeRange           audiotype.TimeRange
	SeekLandedUs        int64
}

const (
	shortPollTimeout    = time.Millisecond
	longPollTimeout     = 5 * time.Millisecond
	encoderInputRetries = 10
	watchdogThreshold   = 1000
	maxIterations       = 50000
	maxWallClock        = 120 * time.Second
)

// Config bundles a whole splice run.
type Config struct {
	Sources []Source
	Encoder Encoder
	Muxer   Muxer

	OutputPath   string
	BitRateKbps  int
	SampleRateHz int
	Progress     audiotype.ProgressFunc
	Cancel       <-chan struct{}
}

// Run splices every source's audio into one continuous output, in the
// order given.
func Run(cfg Config) (audiotype.ConversionResult, error) {
	if len(cfg.Sources) == 0 {
		return audiotype.ConversionResult{}, &audiotype.Error{Kind: audiotype.KindInvalidArguments, Message: "splice requires at least one source"}
	}

	s := &splicer{cfg: cfg}
	totalUs, err := s.run()
	s.cleanup()
	if err != nil {
		return audiotype.ConversionResult{}, err
	}

	info, statErr := os.Stat(cfg.OutputPath)
	if statErr != nil || info.Size() == 0 {
		return audiotype.ConversionResult{}, &audiotype.Error{Kind: audiotype.KindIO, Message: "output file missing or empty after splice", Path: cfg.OutputPath}
	}

	if cfg.Progress != nil {
		cfg.Progress(audiotype.ProgressEvent{Operation: audiotype.OpSplice, Progress: 1.0})
	}

	return audiotype.ConversionResult{
		OutputPath:     cfg.OutputPath,
		DurationMs:     totalUs / 1000,
		BitRateKbps:    cfg.BitRateKbps,
		SampleRateHz:   cfg.SampleRateHz,
		FilesProcessed: len(cfg.Sources),
	}, nil
}

type splicer struct {
	cfg Config

	sourceIdx       int
	runningOffsetUs int64
	gate            *sourceGate
	decoderDone     bool
	encoderEOS      bool
	encoderDrained  bool
	muxerStarted    bool
	audioTrackID    int
	discardPending  int

	withinSourceUs int64
}

func (s *splicer) run() (int64, error) {
	start := time.Now()
	noActivity := 0

	s.gate = newSourceGate(s.currentSource().TimeRange, s.currentSource().SeekLandedUs)

	for iteration := 0; ; iteration++ {
		if iteration >= maxIterations || time.Since(start) > maxWallClock {
			return s.runningOffsetUs, &audiotype.Error{Kind: audiotype.KindTimeout, Message: "splice exceeded iteration or wall-clock bound"}
		}
		if s.cfg.Cancel != nil {
			select {
			case <-s.cfg.Cancel:
				os.Remove(s.cfg.OutputPath)
				return s.runningOffsetUs, &audiotype.Error{Kind: audiotype.KindCancelled, Message: "operation cancelled"}
			default:
			}
		}

		advanced, err := s.iterate()
		if err != nil {
			return s.runningOffsetUs, err
		}

		if s.encoderDrained {
			return s.runningOffsetUs, nil
		}

		if advanced {
			noActivity = 0
		} else {
			noActivity++
			if noActivity >= watchdogThreshold {
				return s.runningOffsetUs, &audiotype.Error{Kind: audiotype.KindPipelineStalled, Message: "no stage advanced for watchdog threshold iterations", LastTimestampUs: s.runningOffsetUs + s.withinSourceUs}
			}
		}
	}
}

func (s *splicer) currentSource() Source {
	return s.cfg.Sources[s.sourceIdx]
}

func (s *splicer) iterate() (bool, error) {
	advanced := false

	if a, err := s.feedDecoder(); err != nil {
		return false, err
	} else if a {
		advanced = true
	}

	if a, err := s.pumpDecoderToEncoder(); err != nil {
		return false, err
	} else if a {
		advanced = true
	}

	if s.decoderDone && s.sourceIdx >= len(s.cfg.Sources) && !s.encoderEOS {
		wasSignaled := s.encoderEOS
		if err := s.signalEncoderEOS(); err != nil {
			return false, err
		}
		if s.encoderEOS != wasSignaled {
			advanced = true
		}
	}

	if a, err := s.drainEncoderToMuxer(); err != nil {
		return false, err
	} else if a {
		advanced = true
	}

	return advanced, nil
}

// feedDecoder advances the current source's decoder, or rolls over to
// the next source once the current one is exhausted.
func (s *splicer) feedDecoder() (bool, error) {
	if s.sourceIdx >= len(s.cfg.Sources) {
		return false, nil
	}

	src := s.currentSource()
	slot, err := src.Decoder.DequeueInput(shortPollTimeout)
	if err != nil {
		return false, nil
	}

	au, demuxErr := src.Demuxer.Next()
	if demuxErr != nil {
		if qerr := src.Decoder.QueueInput(slot, nil, 0, true); qerr != nil {
			return false, wrapCodecErr(qerr, "signal EOS to source decoder")
		}
		s.decoderDone = true
		return true, nil
	}

	switch d, rebasedUs := s.gate.admit(au); d {
	case sourceGateEnd:
		if qerr := src.Decoder.QueueInput(slot, nil, 0, true); qerr != nil {
			return false, wrapCodecErr(qerr, "signal EOS to source decoder at range end")
		}
		s.decoderDone = true
		return true, nil
	case sourceGateDiscard:
		if qerr := src.Decoder.QueueInput(slot, au.Bytes, au.PresentationTimeUs, false); qerr != nil {
			return false, wrapCodecErr(qerr, "advance source decoder before range start")
		}
		s.discardPending++
		return true, nil
	default:
		if qerr := src.Decoder.QueueInput(slot, au.Bytes, rebasedUs, false); qerr != nil {
			return false, wrapCodecErr(qerr, "feed source decoder")
		}
		s.withinSourceUs = rebasedUs
		return true, nil
	}
}

func (s *splicer) pumpDecoderToEncoder() (bool, error) {
	if s.sourceIdx >= len(s.cfg.Sources) {
		return false, nil
	}
	src := s.currentSource()

	pcm, err := src.Decoder.DequeueOutput(shortPollTimeout)
	if err != nil {
		return false, nil
	}

	if pcm.IsEOS {
		s.advanceToNextSource()
		return true, nil
	}

	if s.discardPending > 0 {
		s.discardPending--
		return true, nil
	}

	var slot *codec.Slot
	for attempt := 0; ; attempt++ {
		slot, err = s.cfg.Encoder.DequeueInput(shortPollTimeout)
		if err == nil {
			break
		}
		if attempt >= encoderInputRetries {
			return false, &audiotype.Error{Kind: audiotype.KindPipelineStalled, Message: "encoder input starved after retry budget exhausted", LastTimestampUs: s.runningOffsetUs + pcm.PresentationTimeUs}
		}
		s.drainOneEncoderOutput()
		time.Sleep(longPollTimeout)
	}

	n := len(pcm.Bytes)
	if n > len(slot.Bytes()) {
		n = len(slot.Bytes())
	}
	offsetPtsUs := s.runningOffsetUs + pcm.PresentationTimeUs
	if qerr := s.cfg.Encoder.QueueInput(slot, pcm.Bytes[:n], offsetPtsUs, false); qerr != nil {
		return false, wrapCodecErr(qerr, "feed encoder")
	}
	return true, nil
}

// advanceToNextSource closes out the just-finished source's decoder and
// demuxer, folds its duration into the cumulative offset, reports
// per-file progress (finished sources / total, capped at 0.95), and
// either opens the next source's gate or marks the whole run decoder-done.
func (s *splicer) advanceToNextSource() {
	src := s.currentSource()
	_ = src.Decoder.Stop()
	src.Decoder.Release()
	src.Demuxer.Close()

	// +1 frame duration so the cumulative offset strictly exceeds the
	// previous source's last emitted timestamp (spec.md §4.G invariant),
	// not merely equals it.
	s.runningOffsetUs += s.withinSourceUs + s.cfg.Encoder.FrameDurationUs()
	s.withinSourceUs = 0
	s.discardPending = 0
	s.sourceIdx++

	if s.cfg.Progress != nil {
		p := float64(s.sourceIdx) / float64(len(s.cfg.Sources))
		if p > 0.95 {
			p = 0.95
		}
		s.cfg.Progress(audiotype.ProgressEvent{Operation: audiotype.OpSplice, Progress: p})
	}

	if s.sourceIdx < len(s.cfg.Sources) {
		s.gate = newSourceGate(s.currentSource().TimeRange, s.currentSource().SeekLandedUs)
	} else {
		s.decoderDone = true
	}
}

func (s *splicer) drainOneEncoderOutput() {
	_, _ = s.writeOneEncoderSample()
}

func (s *splicer) signalEncoderEOS() error {
	if s.encoderEOS {
		return nil
	}
	slot, err := s.cfg.Encoder.DequeueInput(longPollTimeout)
	if err != nil {
		return nil
	}
	if qerr := s.cfg.Encoder.QueueInput(slot, nil, 0, true); qerr != nil {
		return wrapCodecErr(qerr, "signal EOS to encoder")
	}
	s.encoderEOS = true
	return nil
}

func (s *splicer) drainEncoderToMuxer() (bool, error) {
	advanced := false
	for {
		wrote, err := s.writeOneEncoderSample()
		if err != nil {
			return advanced, err
		}
		if !wrote {
			return advanced, nil
		}
		advanced = true
	}
}

func (s *splicer) writeOneEncoderSample() (bool, error) {
	event, au, err := s.cfg.Encoder.DequeueOutput(shortPollTimeout)
	if err != nil {
		return false, nil
	}

	if event.FormatChanged != nil {
		if s.muxerStarted {
			return false, &audiotype.Error{Kind: audiotype.KindCodec, Message: "encoder reported a second FormatChanged event", LastTimestampUs: -1}
		}
		trackID, aerr := s.cfg.Muxer.AddTrack(*event.FormatChanged)
		if aerr != nil {
			return false, &audiotype.Error{Kind: audiotype.KindMuxer, Message: "register encoder output format", Cause: aerr, LastTimestampUs: -1}
		}
		if serr := s.cfg.Muxer.Start(); serr != nil {
			return false, &audiotype.Error{Kind: audiotype.KindMuxer, Message: "start muxer", Cause: serr, LastTimestampUs: -1}
		}
		s.audioTrackID = trackID
		s.muxerStarted = true
		return true, nil
	}

	if !s.muxerStarted {
		return false, &audiotype.Error{Kind: audiotype.KindCodec, Message: "encoder produced a sample before any FormatChanged event", LastTimestampUs: -1}
	}

	if au.IsEOS {
		s.encoderDrained = true
		return true, nil
	}

	if werr := s.cfg.Muxer.WriteSample(s.audioTrackID, au); werr != nil {
		return false, &audiotype.Error{Kind: audiotype.KindMuxer, Message: "write sample", Cause: werr, LastTimestampUs: au.PresentationTimeUs}
	}
	return true, nil
}

// cleanup releases the current source and every source after it.
// pkg/audiocore/api.go pre-opens every source's demuxer+decoder pair
// before calling Run, transferring ownership of all of them to the
// splicer; on any early exit (cancellation, stall, mid-iterate error)
// sources beyond the current index are still live and must be released
// too, not just the one Run was working on when it stopped.
func (s *splicer) cleanup() {
	for i := s.sourceIdx; i < len(s.cfg.Sources); i++ {
		src := s.cfg.Sources[i]
		_ = src.Decoder.Stop()
		src.Decoder.Release()
		src.Demuxer.Close()
	}
	if s.cfg.Encoder != nil {
		_ = s.cfg.Encoder.Stop()
		s.cfg.Encoder.Release()
	}
	if s.muxerStarted {
		_ = s.cfg.Muxer.Stop()
	}
	if s.cfg.Muxer != nil {
		s.cfg.Muxer.Close()
	}
}

func wrapCodecErr(err error, action string) error {
	if err == codec.ErrTryAgainLater {
		return nil
	}
	return &audiotype.Error{Kind: audiotype.KindCodec, Message: action, Cause: err}
}

// sourceGate mirrors internal/pipeline's gate for one splice source.
type sourceGate struct {
	active   bool
	startUs  int64
	endUs    int64
	landedUs int64
}

func newSourceGate(tr audiotype.TimeRange, landedUs int64) *sourceGate {
	if !tr.Active() {
		return &sourceGate{active: false}
	}
	return &sourceGate{active: true, startUs: tr.StartUs, endUs: tr.EndUs, landedUs: landedUs}
}

type sourceGateDecision int

const (
	sourceGateEmit sourceGateDecision = iota
	sourceGateDiscard
	sourceGateEnd
)

func (g *sourceGate) admit(au audiotype.AccessUnit) (sourceGateDecision, int64) {
	if !g.active {
		return sourceGateEmit, au.PresentationTimeUs
	}
	if au.PresentationTimeUs >= g.endUs {
		return sourceGateEnd, 0
	}
	if au.PresentationTimeUs < g.startUs {
		return sourceGateDiscard, 0
	}
	return sourceGateEmit, au.PresentationTimeUs - g.landedUs
}
