package audiocore

import (
	"os"
	"path/filepath"

	"github.com/linuxmatters/audiocore/internal/codec"
	"github.com/linuxmatters/audiocore/internal/demux"
	"github.com/linuxmatters/audiocore/internal/info"
	"github.com/linuxmatters/audiocore/internal/lossless"
	"github.com/linuxmatters/audiocore/internal/mux"
	"github.com/linuxmatters/audiocore/internal/pipeline"
	"github.com/linuxmatters/audiocore/internal/splice"
	"github.com/linuxmatters/audiocore/internal/waveform"
)

var validSampleRates = map[int]bool{
	8000: true, 11025: true, 16000: true, 22050: true, 32000: true,
	44100: true, 48000: true, 88200: true, 96000: true,
}

func validatePaths(inPath, outPath string) error {
	if inPath == "" {
		return &Error{Kind: KindInvalidArguments, Message: "in_path must not be empty"}
	}
	if outPath == "" {
		return &Error{Kind: KindInvalidArguments, Message: "out_path must not be empty"}
	}
	return nil
}

func validateBitRateKbps(kbps int) error {
	if kbps < 32 || kbps > 320 {
		return &Error{Kind: KindInvalidArguments, Message: "bit_rate_kbps must be in [32, 320]"}
	}
	return nil
}

func validateSampleRate(hz int) error {
	if !validSampleRates[hz] {
		return &Error{Kind: KindInvalidArguments, Message: "sample_rate is not one of the supported rates"}
	}
	return nil
}

func validateRange(startMs, endMs int64) error {
	if startMs < 0 {
		return &Error{Kind: KindInvalidArguments, Message: "start_ms must be >= 0"}
	}
	if endMs <= startMs {
		return &Error{Kind: KindInvalidRange, Message: "end_ms must be greater than start_ms"}
	}
	return nil
}

func validateSamplesPerSecond(sps int) error {
	if sps < 1 || sps > 1000 {
		return &Error{Kind: KindInvalidArguments, Message: "samples_per_second must be in [1, 1000]"}
	}
	return nil
}

func ensureOutputDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &Error{Kind: KindIO, Message: "create output directory", Path: dir, Cause: err}
	}
	return nil
}

func openDemuxer(path string) (*demux.Demuxer, error) {
	d, err := demux.Open(path)
	if err != nil {
		return nil, &Error{Kind: KindUnsupportedFormat, Message: "open input", Path: path, Cause: err}
	}
	idx := d.AudioTrackIndices()
	if len(idx) == 0 {
		d.Close()
		return nil, &Error{Kind: KindUnsupportedFormat, Message: "no audio track found", Path: path}
	}
	if err := d.Select(idx[0]); err != nil {
		d.Close()
		return nil, &Error{Kind: KindUnsupportedFormat, Message: "select audio track", Path: path, Cause: err}
	}
	return d, nil
}

// ConvertOptions configures ConvertAudio and the convert path of
// TrimAudio/SpliceAudio.
type ConvertOptions struct {
	Format       OutputFormat
	BitRateKbps  int
	SampleRateHz int
	Progress     ProgressFunc
	Cancel       <-chan struct{}
}

func validateConvertOptions(opts ConvertOptions) error {
	if err := validateBitRateKbps(opts.BitRateKbps); err != nil {
		return err
	}
	return validateSampleRate(opts.SampleRateHz)
}

// ConvertAudio transcodes inPath to an M4A/AAC-LC file at outPath, or
// remuxes without re-encoding when opts.Format is FormatCopy and the
// input is already AAC (spec.md §4.F, §9 resolved: disallowed for any
// other input, see DESIGN.md).
func ConvertAudio(inPath, outPath string, opts ConvertOptions) (ConversionResult, error) {
	if err := validatePaths(inPath, outPath); err != nil {
		return ConversionResult{}, err
	}
	if err := validateConvertOptions(opts); err != nil {
		return ConversionResult{}, err
	}
	if err := ensureOutputDir(outPath); err != nil {
		return ConversionResult{}, err
	}

	return runConvertOrCopy(inPath, outPath, TimeRange{}, opts, OpConvert)
}

// TrimAudio produces a sub-range of inPath, either re-encoded or, when
// opts.Format is FormatCopy on an AAC input, copied without decode.
func TrimAudio(inPath, outPath string, startMs, endMs int64, opts ConvertOptions) (ConversionResult, error) {
	if err := validatePaths(inPath, outPath); err != nil {
		return ConversionResult{}, err
	}
	if err := validateRange(startMs, endMs); err != nil {
		return ConversionResult{}, err
	}
	if err := validateConvertOptions(opts); err != nil {
		return ConversionResult{}, err
	}
	if err := ensureOutputDir(outPath); err != nil {
		return ConversionResult{}, err
	}

	tr := TimeRange{StartUs: startMs * 1000, EndUs: endMs * 1000}
	tag := OpTrim
	if opts.Format == FormatCopy {
		tag = OpTrimLossless
	}
	return runConvertOrCopy(inPath, outPath, tr, opts, tag)
}

func runConvertOrCopy(inPath, outPath string, tr TimeRange, opts ConvertOptions, tag OperationTag) (ConversionResult, error) {
	demuxer, err := openDemuxer(inPath)
	if err != nil {
		return ConversionResult{}, err
	}

	trackFormat := demuxer.SelectedFormat()

	if opts.Format == FormatCopy {
		if !capabilitiesForTrack(trackFormat).LosslessTrimmable {
			demuxer.Close()
			return ConversionResult{}, &Error{Kind: KindUnsupportedFormat, Message: "format=copy is only valid for AAC/MP4 input", Path: inPath}
		}
		return runLosslessCopy(demuxer, outPath, trackFormat, tr, opts, tag)
	}

	return runTranscode(demuxer, outPath, trackFormat, tr, opts, tag)
}

func runTranscode(demuxer *demux.Demuxer, outPath string, trackFormat TrackFormat, tr TimeRange, opts ConvertOptions, tag OperationTag) (ConversionResult, error) {
	landedUs := int64(0)
	if tr.Active() {
		landed, err := demuxer.SeekToSync(tr.StartUs)
		if err != nil {
			demuxer.Close()
			return ConversionResult{}, &Error{Kind: KindIO, Message: "seek to range start", Cause: err}
		}
		landedUs = landed
	}

	decoder, err := codec.ConfigureDecoder(demuxer.SelectedCodecpar())
	if err != nil {
		demuxer.Close()
		return ConversionResult{}, &Error{Kind: KindCodec, Message: "configure decoder", Cause: err}
	}

	encoder, err := codec.ConfigureEncoder(codec.EncoderConfig{
		InputSampleRateHz: opts.SampleRateHz,
		InputChannels:     trackFormat.Channels,
		BitRateKbps:       opts.BitRateKbps,
	})
	if err != nil {
		decoder.Release()
		demuxer.Close()
		return ConversionResult{}, &Error{Kind: KindCodec, Message: "configure encoder", Cause: err}
	}

	muxer, err := mux.New(outPath)
	if err != nil {
		decoder.Release()
		encoder.Release()
		demuxer.Close()
		return ConversionResult{}, &Error{Kind: KindIO, Message: "create output", Path: outPath, Cause: err}
	}

	expectedDurationUs := trackFormat.DurationUs
	if tr.Active() {
		expectedDurationUs = tr.EndUs - tr.StartUs
	}

	return pipeline.Run(pipeline.Config{
		Demuxer: demuxer, Decoder: decoder, Encoder: encoder, Muxer: muxer,
		TimeRange: tr, SeekLandedUs: landedUs,
		ExpectedDurationUs: expectedDurationUs,
		BitRateKbps:        opts.BitRateKbps,
		SampleRateHz:       opts.SampleRateHz,
		OutputPath:         outPath,
		Operation:          tag,
		Progress:           opts.Progress,
		Cancel:             opts.Cancel,
	})
}

func runLosslessCopy(demuxer *demux.Demuxer, outPath string, trackFormat TrackFormat, tr TimeRange, opts ConvertOptions, tag OperationTag) (ConversionResult, error) {
	landedUs := int64(0)
	if tr.Active() {
		landed, err := demuxer.SeekToSync(tr.StartUs)
		if err != nil {
			demuxer.Close()
			return ConversionResult{}, &Error{Kind: KindIO, Message: "seek to range start", Cause: err}
		}
		landedUs = landed
	}

	muxer, err := mux.New(outPath)
	if err != nil {
		demuxer.Close()
		return ConversionResult{}, &Error{Kind: KindIO, Message: "create output", Path: outPath, Cause: err}
	}

	expectedDurationUs := trackFormat.DurationUs
	if tr.Active() {
		expectedDurationUs = tr.EndUs - tr.StartUs
	}

	return lossless.Run(lossless.Config{
		Demuxer: demuxer, Muxer: muxer,
		Format:             trackFormat,
		TimeRange:          tr,
		SeekLandedUs:       landedUs,
		ExpectedDurationUs: expectedDurationUs,
		OutputPath:         outPath,
		Operation:          tag,
		Progress:           opts.Progress,
		Cancel:             opts.Cancel,
	})
}

// SpliceAudio concatenates inPaths in order into one M4A/AAC-LC file.
// format=copy is not supported for splice: multiple elementary streams
// cannot be concatenated without at least one shared encoder pass.
func SpliceAudio(inPaths []string, outPath string, opts ConvertOptions) (ConversionResult, error) {
	if len(inPaths) == 0 {
		return ConversionResult{}, &Error{Kind: KindInvalidArguments, Message: "splice requires at least one input path"}
	}
	for _, p := range inPaths {
		if p == "" {
			return ConversionResult{}, &Error{Kind: KindInvalidArguments, Message: "in_path must not be empty"}
		}
	}
	if outPath == "" {
		return ConversionResult{}, &Error{Kind: KindInvalidArguments, Message: "out_path must not be empty"}
	}
	if err := validateConvertOptions(opts); err != nil {
		return ConversionResult{}, err
	}
	if opts.Format == FormatCopy {
		return ConversionResult{}, &Error{Kind: KindUnsupportedFormat, Message: "format=copy is not supported for splice"}
	}
	if err := ensureOutputDir(outPath); err != nil {
		return ConversionResult{}, err
	}

	var sources []splice.Source
	var firstChannels int
	cleanupOnErr := func() {
		for _, s := range sources {
			s.Decoder.Release()
			s.Demuxer.Close()
		}
	}

	for _, p := range inPaths {
		demuxer, err := openDemuxer(p)
		if err != nil {
			cleanupOnErr()
			return ConversionResult{}, err
		}
		format := demuxer.SelectedFormat()
		decoder, err := codec.ConfigureDecoder(demuxer.SelectedCodecpar())
		if err != nil {
			demuxer.Close()
			cleanupOnErr()
			return ConversionResult{}, &Error{Kind: KindCodec, Message: "configure decoder", Path: p, Cause: err}
		}
		if firstChannels == 0 {
			firstChannels = format.Channels
		}
		sources = append(sources, splice.Source{
			Demuxer:            demuxer,
			Decoder:            decoder,
			ExpectedDurationUs: format.DurationUs,
		})
	}

	encoder, err := codec.ConfigureEncoder(codec.EncoderConfig{
		InputSampleRateHz: opts.SampleRateHz,
		InputChannels:     firstChannels,
		BitRateKbps:       opts.BitRateKbps,
	})
	if err != nil {
		cleanupOnErr()
		return ConversionResult{}, &Error{Kind: KindCodec, Message: "configure encoder", Cause: err}
	}

	muxer, err := mux.New(outPath)
	if err != nil {
		encoder.Release()
		cleanupOnErr()
		return ConversionResult{}, &Error{Kind: KindIO, Message: "create output", Path: outPath, Cause: err}
	}

	return splice.Run(splice.Config{
		Sources:      sources,
		Encoder:      encoder,
		Muxer:        muxer,
		OutputPath:   outPath,
		BitRateKbps:  opts.BitRateKbps,
		SampleRateHz: opts.SampleRateHz,
		Progress:     opts.Progress,
		Cancel:       opts.Cancel,
	})
}

// ExtractWaveform decodes inPath and returns its amplitude envelope at
// the requested resolution (spec.md §4.H).
func ExtractWaveform(inPath string, samplesPerSecond int, progress ProgressFunc, cancel <-chan struct{}) (WaveformEnvelope, error) {
	if inPath == "" {
		return WaveformEnvelope{}, &Error{Kind: KindInvalidArguments, Message: "in_path must not be empty"}
	}
	if err := validateSamplesPerSecond(samplesPerSecond); err != nil {
		return WaveformEnvelope{}, err
	}

	demuxer, err := openDemuxer(inPath)
	if err != nil {
		return WaveformEnvelope{}, err
	}

	format := demuxer.SelectedFormat()
	decoder, err := codec.ConfigureDecoder(demuxer.SelectedCodecpar())
	if err != nil {
		demuxer.Close()
		return WaveformEnvelope{}, &Error{Kind: KindCodec, Message: "configure decoder", Cause: err}
	}

	return waveform.Run(waveform.Config{
		Demuxer: demuxer, Decoder: decoder,
		SampleRateHz:       format.SampleRateHz,
		Channels:           format.Channels,
		SamplesPerSecond:   samplesPerSecond,
		ExpectedDurationUs: format.DurationUs,
		Progress:           progress,
		Cancel:             cancel,
	})
}

// GetAudioInfo inspects path without ever decoding, returning a Valid
// AudioInfo or a classified Invalid one (spec.md §4.I). It never panics
// or returns an error value: unreadable input is reported as Invalid.
func GetAudioInfo(path string) AudioInfo {
	return info.Inspect(path, func(p string) (info.Demuxer, error) { return demux.Open(p) })
}

// IsFormatSupported reports whether path's primary audio track can be
// converted, never surfacing an error (spec.md §6).
func IsFormatSupported(path string) bool {
	return info.IsFormatSupported(path, func(p string) (info.Demuxer, error) { return demux.Open(p) })
}

func capabilitiesForTrack(track TrackFormat) CapabilityFlags {
	switch track.MIME {
	case "audio/mp4", "audio/mp4a-latm", "audio/aac":
		return CapabilityFlags{Convertible: true, Trimmable: true, LosslessTrimmable: true, WaveformSupported: true}
	default:
		return CapabilityFlags{}
	}
}
