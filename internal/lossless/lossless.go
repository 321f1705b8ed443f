// Package lossless implements the demux -> gate -> mux bypass path
// (spec.md §4.F): no decode, no encode, just copying the original
// elementary stream's access units into a new container, optionally
// trimmed to a time range.
//
// Grounded on internal/demux and internal/mux directly; the control flow
// is internal/pipeline's feed/drain loop with the codec stages removed,
// since a stream copy has nothing to pump through an encoder.
package lossless

import (
	"os"
	"time"

	"github.com/linuxmatters/audiocore/internal/audiotype"
)

// Demuxer is the subset of *demux.Demuxer this package drives.
type Demuxer interface {
	Next() (audiotype.AccessUnit, error)
	Close()
}

// Muxer is the subset of *mux.Muxer this package drives.
type Muxer interface {
	AddTrack(format audiotype.TrackFormat) (int, error)
	Start() error
	WriteSample(trackID int, au audiotype.AccessUnit) error
	Stop() error
	Close()
}

const maxWallClock = 120 * time.Second

// Config bundles everything one copy run needs. The caller is
// responsible for having already rejected non-copyable MIME types at
// the API surface (spec.md §9: format=copy is invalid for non-AAC
// input, not silently downgraded here).
type Config struct {
	Demuxer Demuxer
	Muxer   Muxer

	Format audiotype.TrackFormat // as reported by the demuxer's selected track

	TimeRange    audiotype.TimeRange
	SeekLandedUs int64

	ExpectedDurationUs int64
	OutputPath         string
	Operation          audiotype.OperationTag
	Progress           audiotype.ProgressFunc
	Cancel             <-chan struct{}
}

// Run copies every admitted access unit from the demuxer straight to the
// muxer, applying the same time-range gate semantics as the transcode
// pipeline (discard-before-start, rebase-to-zero, close-at-end).
func Run(cfg Config) (audiotype.ConversionResult, error) {
	start := time.Now()

	trackID, err := cfg.Muxer.AddTrack(cfg.Format)
	if err != nil {
		cfg.Muxer.Close()
		cfg.Demuxer.Close()
		return audiotype.ConversionResult{}, &audiotype.Error{Kind: audiotype.KindMuxer, Message: "register copied track format", Cause: err, LastTimestampUs: -1}
	}
	if err := cfg.Muxer.Start(); err != nil {
		cfg.Muxer.Close()
		cfg.Demuxer.Close()
		return audiotype.ConversionResult{}, &audiotype.Error{Kind: audiotype.KindMuxer, Message: "start muxer", Cause: err, LastTimestampUs: -1}
	}

	gateImpl := newGateFromRange(cfg.TimeRange, cfg.SeekLandedUs)
	lastProgress := 0.0
	processedUs := int64(0)

readLoop:
	for {
		if time.Since(start) > maxWallClock {
			cleanup(cfg)
			return audiotype.ConversionResult{}, &audiotype.Error{Kind: audiotype.KindTimeout, Message: "lossless copy exceeded wall-clock bound", LastTimestampUs: processedUs}
		}

		if cfg.Cancel != nil {
			select {
			case <-cfg.Cancel:
				cleanup(cfg)
				os.Remove(cfg.OutputPath)
				return audiotype.ConversionResult{}, &audiotype.Error{Kind: audiotype.KindCancelled, Message: "operation cancelled", LastTimestampUs: processedUs}
			default:
			}
		}

		au, err := cfg.Demuxer.Next()
		if err != nil {
			break // end of stream
		}

		switch d, rebasedUs := gateImpl.admit(au); d {
		case gateRangeEnd:
			break readLoop
		case gateDiscardBeforeStart:
			continue
		default:
			au.PresentationTimeUs = rebasedUs
			if werr := cfg.Muxer.WriteSample(trackID, au); werr != nil {
				cleanup(cfg)
				return audiotype.ConversionResult{}, &audiotype.Error{Kind: audiotype.KindMuxer, Message: "write copied sample", Cause: werr, LastTimestampUs: rebasedUs}
			}
			processedUs = rebasedUs
			if cfg.Progress != nil && cfg.ExpectedDurationUs > 0 {
				p := float64(processedUs) / float64(cfg.ExpectedDurationUs)
				if p > 0.95 {
					p = 0.95
				}
				if p < lastProgress {
					p = lastProgress
				}
				lastProgress = p
				cfg.Progress(audiotype.ProgressEvent{Operation: cfg.Operation, Progress: p})
			}
		}
	}

	cleanup(cfg)

	info, statErr := os.Stat(cfg.OutputPath)
	if statErr != nil || info.Size() == 0 {
		return audiotype.ConversionResult{}, &audiotype.Error{Kind: audiotype.KindIO, Message: "output file missing or empty after lossless copy", Path: cfg.OutputPath}
	}

	if cfg.Progress != nil {
		cfg.Progress(audiotype.ProgressEvent{Operation: cfg.Operation, Progress: 1.0})
	}

	return audiotype.ConversionResult{
		OutputPath:     cfg.OutputPath,
		DurationMs:     processedUs / 1000,
		BitRateKbps:    int(cfg.Format.BitRateBps / 1000),
		SampleRateHz:   cfg.Format.SampleRateHz,
		FilesProcessed: 1,
		Lossless:       true,
	}, nil
}

func cleanup(cfg Config) {
	_ = cfg.Muxer.Stop()
	cfg.Muxer.Close()
	cfg.Demuxer.Close()
}

// gate mirrors internal/pipeline's gate; duplicated rather than shared
// because pipeline's gate is package-private and this package has no
// decoder stage to route a discard decision through.
type gate struct {
	active   bool
	startUs  int64
	endUs    int64
	landedUs int64
}

func newGateFromRange(tr audiotype.TimeRange, landedUs int64) *gate {
	if !tr.Active() {
		return &gate{active: false}
	}
	return &gate{active: true, startUs: tr.StartUs, endUs: tr.EndUs, landedUs: landedUs}
}

type gateDecision int

const (
	gateEmit gateDecision = iota
	gateDiscardBeforeStart
	gateRangeEnd
)

func (g *gate) admit(au audiotype.AccessUnit) (gateDecision, int64) {
	if !g.active {
		return gateEmit, au.PresentationTimeUs
	}
	if au.PresentationTimeUs >= g.endUs {
		return gateRangeEnd, 0
	}
	if au.PresentationTimeUs < g.startUs {
		return gateDiscardBeforeStart, 0
	}
	return gateEmit, au.PresentationTimeUs - g.landedUs
}
