// Package pipeline implements the transcode pipeline (spec.md §4.D):
// a single-threaded, cooperative decoder->encoder state machine wired
// through a demuxer and a muxer, with explicit back-pressure handling,
// EOS propagation, a time-range gate, and a stall watchdog.
//
// Grounded on the teacher's internal/processor/processWithFilters
// (the same read -> push -> drain -> flush shape) and internal/processor
// encoder.go's send/receive draining loop, generalized from a filter
// graph pull loop into the spec's five-phase iteration with an explicit
// retry budget instead of ffmpeg's implicit blocking semantics.
package pipeline

import (
	"os"
	"time"

	"github.com/linuxmatters/audiocore/internal/audiotype"
	"github.com/linuxmatters/audiocore/internal/codec"
)

// Demuxer is the subset of *demux.Demuxer the pipeline drives.
type Demuxer interface {
	Next() (audiotype.AccessUnit, error)
	Close()
}

// Decoder is the subset of *codec.Decoder the pipeline drives.
type Decoder interface {
	DequeueInput(timeout time.Duration) (*codec.Slot, error)
	QueueInput(slot *codec.Slot, bytes []byte, ptsUs int64, flagsEOS bool) error
	DequeueOutput(timeout time.Duration) (audiotype.PCMFrame, error)
	Stop() error
	Release()
}

// Encoder is the subset of *codec.Encoder the pipeline drives.
type Encoder interface {
	DequeueInput(timeout time.Duration) (*codec.Slot, error)
	QueueInput(slot *codec.Slot, bytes []byte, ptsUs int64, flagsEOS bool) error
	DequeueOutput(timeout time.Duration) (codec.OutputEvent, audiotype.AccessUnit, error)
	Stop() error
	Release()
}

// Muxer is the subset of *mux.Muxer the pipeline drives.
type Muxer interface {
	AddTrack(format audiotype.TrackFormat) (int, error)
	Start() error
	WriteSample(trackID int, au audiotype.AccessUnit) error
	Stop() error
	Close()
}

// Timing knobs, named per spec.md §4.D.1/§5.
const (
	shortPollTimeout   = time.Millisecond
	longPollTimeout    = 5 * time.Millisecond
	encoderInputRetries = 10
	watchdogThreshold  = 1000
	maxIterations      = 50000
	maxWallClock       = 120 * time.Second
)

// Config bundles everything one pipeline run needs.
type Config struct {
	Demuxer Demuxer
	Decoder Decoder
	Encoder Encoder
	Muxer   Muxer

	TimeRange    audiotype.TimeRange
	SeekLandedUs int64 // the timestamp SeekToSync actually landed on

	ExpectedDurationUs int64
	BitRateKbps        int
	SampleRateHz       int

	OutputPath string
	Operation  audiotype.OperationTag
	Progress   audiotype.ProgressFunc
	Cancel     <-chan struct{}
}

// Run drives the pipeline to completion and returns the conversion
// result. Cleanup runs on every exit path per spec.md §4.D.3.
func Run(cfg Config) (audiotype.ConversionResult, error) {
	p := &pipeline{cfg: cfg, gate: newGate(cfg.TimeRange, cfg.SeekLandedUs)}
	result, err := p.run()
	p.cleanup()
	if err != nil {
		return audiotype.ConversionResult{}, err
	}

	info, statErr := os.Stat(cfg.OutputPath)
	if statErr != nil || info.Size() == 0 {
		return audiotype.ConversionResult{}, &audiotype.Error{
			Kind:    audiotype.KindIO,
			Message: "output file missing or empty after pipeline completion",
			Path:    cfg.OutputPath,
		}
	}

	if cfg.Progress != nil {
		cfg.Progress(audiotype.ProgressEvent{Operation: cfg.Operation, Progress: 1.0})
	}

	result.OutputPath = cfg.OutputPath
	result.BitRateKbps = cfg.BitRateKbps
	result.SampleRateHz = cfg.SampleRateHz
	result.FilesProcessed = 1
	return result, nil
}

type pipeline struct {
	cfg  Config
	gate *gate

	decoderDone         bool
	encoderEOSSignaled  bool
	encoderDone         bool
	muxerStarted        bool
	audioTrackID        int
	processedUs         int64
	lastProgress        float64
	noActivityCounter   int
	discardPending      int // decoded frames still owed to pre-range-start packets
}

func (p *pipeline) run() (audiotype.ConversionResult, error) {
	start := time.Now()

	for iteration := 0; ; iteration++ {
		if iteration >= maxIterations || time.Since(start) > maxWallClock {
			return audiotype.ConversionResult{}, &audiotype.Error{Kind: audiotype.KindTimeout, Message: "transcode pipeline exceeded iteration or wall-clock bound"}
		}

		if p.cfg.Cancel != nil {
			select {
			case <-p.cfg.Cancel:
				return audiotype.ConversionResult{}, p.cancel()
			default:
			}
		}

		advanced, err := p.iterate()
		if err != nil {
			return audiotype.ConversionResult{}, err
		}

		if p.encoderDone {
			return audiotype.ConversionResult{DurationMs: p.processedUs / 1000}, nil
		}

		if advanced {
			p.noActivityCounter = 0
			p.reportProgress()
		} else {
			p.noActivityCounter++
			if p.noActivityCounter >= watchdogThreshold {
				done, err := p.watchdogFire()
				if err != nil {
					return audiotype.ConversionResult{}, err
				}
				if done {
					return audiotype.ConversionResult{DurationMs: p.processedUs / 1000}, nil
				}
			}
		}
	}
}

// iterate runs one pass of the five phases. It returns whether any stage
// made forward progress (fed the decoder, moved a PCM frame, or wrote an
// encoder output sample).
func (p *pipeline) iterate() (bool, error) {
	advanced := false

	if a, err := p.feedDecoder(); err != nil {
		return false, err
	} else if a {
		advanced = true
	}

	if a, err := p.pumpDecoderToEncoder(); err != nil {
		return false, err
	} else if a {
		advanced = true
	}

	if p.decoderDone && !p.encoderEOSSignaled {
		wasSignaled := p.encoderEOSSignaled
		if err := p.signalEncoderEOS(); err != nil {
			return false, err
		}
		if p.encoderEOSSignaled != wasSignaled {
			advanced = true
		}
	}

	if a, err := p.drainEncoderToMuxer(); err != nil {
		return false, err
	} else if a {
		advanced = true
	}

	return advanced, nil
}

// feedDecoder is phase 1.
func (p *pipeline) feedDecoder() (bool, error) {
	if p.decoderDone {
		return false, nil
	}

	slot, err := p.cfg.Decoder.DequeueInput(shortPollTimeout)
	if err != nil {
		return false, nil // Empty: nothing to feed this iteration
	}

	au, demuxErr := p.cfg.Demuxer.Next()
	isEOF := demuxErr != nil

	if isEOF {
		if qerr := p.cfg.Decoder.QueueInput(slot, nil, 0, true); qerr != nil {
			return false, wrapCodecErr(qerr, "signal EOS to decoder")
		}
		p.decoderDone = true
		return true, nil
	}

	switch d, rebasedUs := p.gate.admit(au); d {
	case decisionRangeEnd:
		if qerr := p.cfg.Decoder.QueueInput(slot, nil, 0, true); qerr != nil {
			return false, wrapCodecErr(qerr, "signal EOS to decoder at range end")
		}
		p.decoderDone = true
		return true, nil
	case decisionDiscardBeforeStart:
		// Still feed the real compressed bytes: predictive codecs need the
		// preceding frames to prime decode state. The resulting PCM is
		// dropped in pumpDecoderToEncoder, not the encoder input.
		if qerr := p.cfg.Decoder.QueueInput(slot, au.Bytes, au.PresentationTimeUs, false); qerr != nil {
			return false, wrapCodecErr(qerr, "advance decoder before range start")
		}
		p.discardPending++
		return true, nil
	default:
		if qerr := p.cfg.Decoder.QueueInput(slot, au.Bytes, rebasedUs, false); qerr != nil {
			return false, wrapCodecErr(qerr, "feed decoder")
		}
		p.processedUs = rebasedUs
		return true, nil
	}
}

// pumpDecoderToEncoder is phase 2, including the critical no-frame-drop
// retry rule from spec.md §4.D.1.
func (p *pipeline) pumpDecoderToEncoder() (bool, error) {
	pcm, err := p.cfg.Decoder.DequeueOutput(shortPollTimeout)
	if err != nil {
		return false, nil // Empty
	}

	if pcm.IsEOS {
		return true, p.signalEncoderEOS()
	}

	if p.discardPending > 0 {
		p.discardPending--
		return true, nil
	}

	var slot *codec.Slot
	for attempt := 0; ; attempt++ {
		slot, err = p.cfg.Encoder.DequeueInput(shortPollTimeout)
		if err == nil {
			break
		}
		if attempt >= encoderInputRetries {
			return false, &audiotype.Error{Kind: audiotype.KindPipelineStalled, Message: "encoder input starved after retry budget exhausted", LastTimestampUs: p.processedUs}
		}
		// Relieve back-pressure: drain one encoder output if available.
		p.drainOneEncoderOutput()
		time.Sleep(longPollTimeout)
	}

	n := len(pcm.Bytes)
	if n > len(slot.Bytes()) {
		n = len(slot.Bytes())
	}
	if qerr := p.cfg.Encoder.QueueInput(slot, pcm.Bytes[:n], pcm.PresentationTimeUs, false); qerr != nil {
		return false, wrapCodecErr(qerr, "feed encoder")
	}
	return true, nil
}

// drainOneEncoderOutput opportunistically writes one ready encoder
// output sample to the muxer while waiting on encoder input back-
// pressure. Errors are swallowed here; the main drain phase will
// surface them on its next pass.
func (p *pipeline) drainOneEncoderOutput() {
	_, _ = p.writeOneEncoderSample()
}

// signalEncoderEOS is phase 3 (also called from phase 2 on decoder EOS).
func (p *pipeline) signalEncoderEOS() error {
	if p.encoderEOSSignaled {
		return nil
	}
	slot, err := p.cfg.Encoder.DequeueInput(longPollTimeout)
	if err != nil {
		return nil // try again next iteration
	}
	if qerr := p.cfg.Encoder.QueueInput(slot, nil, 0, true); qerr != nil {
		return wrapCodecErr(qerr, "signal EOS to encoder")
	}
	p.encoderEOSSignaled = true
	return nil
}

// drainEncoderToMuxer is phase 4.
func (p *pipeline) drainEncoderToMuxer() (bool, error) {
	advanced := false
	for {
		wrote, err := p.writeOneEncoderSample()
		if err != nil {
			return advanced, err
		}
		if !wrote {
			return advanced, nil
		}
		advanced = true
		if p.encoderDone {
			return advanced, nil
		}
	}
}

// writeOneEncoderSample pulls exactly one output event from the encoder
// and, if it is a real sample, writes it to the muxer. It reports
// whether it made progress.
func (p *pipeline) writeOneEncoderSample() (bool, error) {
	event, au, err := p.cfg.Encoder.DequeueOutput(shortPollTimeout)
	if err != nil {
		return false, nil // Empty
	}

	if event.FormatChanged != nil {
		if p.muxerStarted {
			return false, &audiotype.Error{Kind: audiotype.KindCodec, Message: "encoder reported a second FormatChanged event", LastTimestampUs: -1}
		}
		trackID, aerr := p.cfg.Muxer.AddTrack(*event.FormatChanged)
		if aerr != nil {
			return false, &audiotype.Error{Kind: audiotype.KindMuxer, Message: "register encoder output format", Cause: aerr, LastTimestampUs: -1}
		}
		if serr := p.cfg.Muxer.Start(); serr != nil {
			return false, &audiotype.Error{Kind: audiotype.KindMuxer, Message: "start muxer", Cause: serr, LastTimestampUs: -1}
		}
		p.audioTrackID = trackID
		p.muxerStarted = true
		return true, nil
	}

	if !p.muxerStarted {
		return false, &audiotype.Error{Kind: audiotype.KindCodec, Message: "encoder produced a sample before any FormatChanged event", LastTimestampUs: -1}
	}

	if au.IsEOS {
		p.encoderDone = true
		return true, nil
	}

	if werr := p.cfg.Muxer.WriteSample(p.audioTrackID, au); werr != nil {
		return false, &audiotype.Error{Kind: audiotype.KindMuxer, Message: "write sample", Cause: werr, LastTimestampUs: au.PresentationTimeUs}
	}
	return true, nil
}

// watchdogFire is phase 5, invoked once the no-activity counter crosses
// watchdogThreshold.
func (p *pipeline) watchdogFire() (done bool, err error) {
	if p.encoderEOSSignaled {
		return true, nil // assume encoder silent-complete
	}
	if p.decoderDone {
		return false, p.signalEncoderEOS()
	}
	return false, &audiotype.Error{Kind: audiotype.KindPipelineStalled, Message: "no stage advanced for watchdog threshold iterations", LastTimestampUs: p.processedUs}
}

// reportProgress emits a monotonically non-decreasing progress event,
// clamped to [0, 0.95] while streaming (the final 1.0 is emitted once by
// Run after the muxer stops and the output file is verified).
func (p *pipeline) reportProgress() {
	if p.cfg.Progress == nil || p.cfg.ExpectedDurationUs <= 0 {
		return
	}
	progress := float64(p.processedUs) / float64(p.cfg.ExpectedDurationUs)
	if progress > 0.95 {
		progress = 0.95
	}
	if progress < p.lastProgress {
		progress = p.lastProgress
	}
	p.lastProgress = progress
	p.cfg.Progress(audiotype.ProgressEvent{Operation: p.cfg.Operation, Progress: progress})
}

// cancel drains outstanding output and deletes the partial file
// (spec.md §5 Cancellation).
func (p *pipeline) cancel() error {
	_ = p.signalEncoderEOS()
	_, _ = p.drainEncoderToMuxer()
	if p.muxerStarted {
		_ = p.cfg.Muxer.Stop()
	}
	os.Remove(p.cfg.OutputPath)
	return &audiotype.Error{Kind: audiotype.KindCancelled, Message: "operation cancelled", LastTimestampUs: p.processedUs}
}

// cleanup runs the fixed teardown order from spec.md §4.D.3 on every
// exit path. Each step's error is discarded, so it never masks the
// original error.
func (p *pipeline) cleanup() {
	if p.cfg.Encoder != nil {
		_ = p.cfg.Encoder.Stop()
		p.cfg.Encoder.Release()
	}
	if p.cfg.Decoder != nil {
		_ = p.cfg.Decoder.Stop()
		p.cfg.Decoder.Release()
	}
	if p.muxerStarted {
		_ = p.cfg.Muxer.Stop()
	}
	if p.cfg.Muxer != nil {
		p.cfg.Muxer.Close()
	}
	if p.cfg.Demuxer != nil {
		p.cfg.Demuxer.Close()
	}
}

func wrapCodecErr(err error, action string) error {
	if err == codec.ErrTryAgainLater {
		return nil
	}
	return &audiotype.Error{Kind: audiotype.KindCodec, Message: action, Cause: err}
}
