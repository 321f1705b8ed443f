// Package audiotype holds the data model shared by every internal
// package and re-exported by pkg/audiocore as the public API's types.
// It exists so internal/* packages and pkg/audiocore can both depend on
// the same types without an import cycle (pkg/audiocore imports
// internal/* to wire the pipeline; internal/* needs the shared types).
package audiotype

import "time"

// AccessUnit is a single compressed audio frame as produced by a demuxer
// or an encoder. Ownership moves across every interface boundary it
// crosses; it is never shared between two owners at once.
type AccessUnit struct {
	Bytes             []byte
	PresentationTimeUs int64
	IsSync            bool
	IsEOS             bool
}

// PCMFrame is a decoded, uncompressed audio buffer. The canonical
// interchange layout is 16-bit little-endian interleaved samples.
type PCMFrame struct {
	Bytes             []byte
	PresentationTimeUs int64
	IsEOS             bool
}

// TrackFormat describes one audio track, either as read from a container
// or as reported by an encoder after its first output format change.
type TrackFormat struct {
	MIME             string
	SampleRateHz     int
	Channels         int
	BitRateBps       int64 // 0 if unknown
	DurationUs       int64 // 0 if unknown
	CodecSpecificData []byte
}

// OutputFormat selects what ConvertAudio/TrimAudio/SpliceAudio produce.
type OutputFormat int

const (
	// FormatM4A transcodes to an M4A container carrying AAC-LC.
	FormatM4A OutputFormat = iota
	// FormatCopy remuxes the original elementary stream without
	// decoding, only valid for AAC/MP4-family input (§4.F).
	FormatCopy
)

// TimeRange is a [StartUs, EndUs) window used by trim and the time-range
// gate. Zero value means "no range" (the whole file).
type TimeRange struct {
	StartUs int64
	EndUs   int64
}

// Active reports whether r names a real sub-range rather than the zero value.
func (r TimeRange) Active() bool {
	return r.EndUs > r.StartUs
}

// ConversionResult is returned by every transcode/trim/copy/splice call.
type ConversionResult struct {
	OutputPath    string
	DurationMs    int64
	BitRateKbps   int
	SampleRateHz  int
	FilesProcessed int // set by SpliceAudio; 1 for single-file operations
	Lossless      bool // true when the output stream was copied, not re-encoded
}

// WaveformEnvelope is the amplitude envelope extracted for UI visualization.
type WaveformEnvelope struct {
	Amplitudes   []float64 // peak absolute amplitude per bucket, in [0,1]
	SampleRateHz int       // the requested samples-per-second rate of the envelope
	DurationMs   int64
	Channels     int
}

// CapabilityFlags describes what operations a given input file supports,
// per the fixed MIME table in spec.md §4.I.
type CapabilityFlags struct {
	Convertible        bool
	Trimmable           bool
	LosslessTrimmable   bool
	WaveformSupported   bool
}

// ErrorKind classifies an Invalid AudioInfo or a returned error.
type ErrorKind string

const (
	ErrorKindIO                  ErrorKind = "io_error"
	ErrorKindUnsupportedContainer ErrorKind = "unsupported_container"
	ErrorKindNoAudioTrack         ErrorKind = "no_audio_track"
)

// AudioInfo is the sum type returned by GetAudioInfo: exactly one of
// Valid or Invalid is populated (Valid == true selects which).
type AudioInfo struct {
	Valid bool

	// Populated when Valid.
	FileSizeBytes    int64
	DurationMs       int64
	MIME             string
	Codec            string
	BitRateKbps      int
	SampleRateHz     int
	Channels         int
	BitDepth         int // 0 if unknown
	Metadata         map[string]string
	Capabilities     CapabilityFlags
	DiagnosticsText  string
	FoundTracks      []string

	// Populated when !Valid.
	ErrorKind ErrorKind
	Details   string
}

// OperationTag identifies which public operation a ProgressEvent belongs to.
type OperationTag string

const (
	OpConvert     OperationTag = "convert"
	OpTrim        OperationTag = "trim"
	OpTrimLossless OperationTag = "trim_lossless"
	OpSplice      OperationTag = "splice"
	OpWaveform    OperationTag = "waveform"
)

// ProgressEvent is one point in a monotonically non-decreasing progress
// stream; exactly one event per successful operation carries Progress == 1.
type ProgressEvent struct {
	Operation OperationTag
	Progress  float64 // in [0,1]
}

// ProgressFunc receives progress events on the worker goroutine running the
// operation. The caller owns marshalling it to another thread if needed.
type ProgressFunc func(ProgressEvent)

// defaultDeadline is a 10-minute bound for a public operation. No
// operation applies it; each run is bounded only by its own package's
// 120-second maxWallClock.
const defaultDeadline = 10 * time.Minute
