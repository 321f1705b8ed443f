// Package waveform implements amplitude envelope extraction (spec.md
// §4.H): a decode-only reducer that folds 16-bit PCM into fixed-size
// buckets and keeps each bucket's peak absolute amplitude.
//
// Grounded on internal/pipeline's feed/drain phases with the encoder and
// muxer stages removed entirely, since a waveform has nowhere to write a
// compressed sample.
package waveform

import (
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

const (
	shortPollTimeout  = time.Millisecond
	watchdogThreshold = 1000
	maxIterations     = 50000
	maxWallClock      = 120 * time.Second
)

// Config bundles a waveform extraction run.
type Config struct {
	Demuxer Demuxer
	Decoder Decoder

	SampleRateHz     int
	Channels         int
	SamplesPerSecond int // requested envelope resolution, spec.md §4.H

	ExpectedDurationUs int64
	Progress           audiotype.ProgressFunc
	Cancel             <-chan struct{}
}

// Run decodes the whole selected track and returns its amplitude
// envelope.
func Run(cfg Config) (audiotype.WaveformEnvelope, error) {
	if cfg.SamplesPerSecond < 1 {
		return audiotype.WaveformEnvelope{}, &audiotype.Error{Kind: audiotype.KindInvalidArguments, Message: "samples_per_second must be at least 1"}
	}

	bucketSize := cfg.SampleRateHz / cfg.SamplesPerSecond
	if bucketSize < 1 {
		bucketSize = 1
	}

	r := &reducer{cfg: cfg, bucketSize: bucketSize, channels: maxInt(cfg.Channels, 1)}
	err := r.run()
	r.cleanup()
	if err != nil {
		return audiotype.WaveformEnvelope{}, err
	}
	r.flushBucket()

	if cfg.Progress != nil {
		cfg.Progress(audiotype.ProgressEvent{Operation: audiotype.OpWaveform, Progress: 1.0})
	}

	return audiotype.WaveformEnvelope{
		Amplitudes:   r.amplitudes,
		SampleRateHz: cfg.SamplesPerSecond,
		DurationMs:   r.processedUs / 1000,
		Channels:     cfg.Channels,
	}, nil
}

type reducer struct {
	cfg        Config
	bucketSize int
	channels   int

	amplitudes  []float64
	bucketPeak  int16
	bucketCount int

	decoderDone bool
	processedUs int64
}

func (r *reducer) run() error {
	start := time.Now()
	noActivity := 0

	for iteration := 0; ; iteration++ {
		if iteration >= maxIterations || time.Since(start) > maxWallClock {
			return &audiotype.Error{Kind: audiotype.KindTimeout, Message: "waveform extraction exceeded iteration or wall-clock bound"}
		}
		if r.cfg.Cancel != nil {
			select {
			case <-r.cfg.Cancel:
				return &audiotype.Error{Kind: audiotype.KindCancelled, Message: "operation cancelled"}
			default:
			}
		}

		advanced, done, err := r.iterate()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if advanced {
			noActivity = 0
			r.reportProgress()
		} else {
			noActivity++
			if noActivity >= watchdogThreshold {
				return &audiotype.Error{Kind: audiotype.KindPipelineStalled, Message: "no stage advanced for watchdog threshold iterations", LastTimestampUs: r.processedUs}
			}
		}
	}
}

func (r *reducer) iterate() (advanced, done bool, err error) {
	if a, err := r.feedDecoder(); err != nil {
		return false, false, err
	} else if a {
		advanced = true
	}

	frame, perr := r.cfg.Decoder.DequeueOutput(shortPollTimeout)
	if perr == nil {
		if frame.IsEOS {
			return advanced, true, nil
		}
		r.fold(frame.Bytes)
		r.processedUs = frame.PresentationTimeUs
		advanced = true
	}

	return advanced, false, nil
}

func (r *reducer) feedDecoder() (bool, error) {
	if r.decoderDone {
		return false, nil
	}

	slot, err := r.cfg.Decoder.DequeueInput(shortPollTimeout)
	if err != nil {
		return false, nil
	}

	au, demuxErr := r.cfg.Demuxer.Next()
	if demuxErr != nil {
		if qerr := r.cfg.Decoder.QueueInput(slot, nil, 0, true); qerr != nil {
			return false, wrapCodecErr(qerr, "signal EOS to decoder")
		}
		r.decoderDone = true
		return true, nil
	}

	if qerr := r.cfg.Decoder.QueueInput(slot, au.Bytes, au.PresentationTimeUs, false); qerr != nil {
		return false, wrapCodecErr(qerr, "feed decoder")
	}
	return true, nil
}

// fold folds interleaved 16-bit LE PCM into the running bucket peaks,
// taking the peak absolute amplitude across channels per sample frame.
func (r *reducer) fold(pcm []byte) {
	const bytesPerSample = 2
	frameSize := bytesPerSample * r.channels
	if frameSize == 0 {
		return
	}
	nbFrames := len(pcm) / frameSize

	for i := 0; i < nbFrames; i++ {
		var peak int16
		for c := 0; c < r.channels; c++ {
			off := i*frameSize + c*bytesPerSample
			sample := int16(uint16(pcm[off]) | uint16(pcm[off+1])<<8)
			abs := sample
			if abs < 0 {
				abs = -abs
			}
			if abs > peak {
				peak = abs
			}
		}
		if peak > r.bucketPeak {
			r.bucketPeak = peak
		}
		r.bucketCount++
		if r.bucketCount >= r.bucketSize {
			r.flushBucket()
		}
	}
}

func (r *reducer) flushBucket() {
	if r.bucketCount == 0 {
		return
	}
	r.amplitudes = append(r.amplitudes, float64(r.bucketPeak)/32768.0)
	r.bucketPeak = 0
	r.bucketCount = 0
}

func (r *reducer) reportProgress() {
	if r.cfg.Progress == nil || r.cfg.ExpectedDurationUs <= 0 {
		return
	}
	p := float64(r.processedUs) / float64(r.cfg.ExpectedDurationUs)
	if p > 0.95 {
		p = 0.95
	}
	if p < 0 {
		p = 0
	}
	r.cfg.Progress(audiotype.ProgressEvent{Operation: audiotype.OpWaveform, Progress: p})
}

func (r *reducer) cleanup() {
	if r.cfg.Decoder != nil {
		_ = r.cfg.Decoder.Stop()
		r.cfg.Decoder.Release()
	}
	if r.cfg.Demuxer != nil {
		r.cfg.Demuxer.Close()
	}
}

func wrapCodecErr(err error, action string) error {
	if err == codec.ErrTryAgainLater {
		return nil
	}
	return &audiotype.Error{Kind: audiotype.KindCodec, Message: action, Cause: err}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
