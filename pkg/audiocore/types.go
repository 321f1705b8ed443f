// Package audiocore is the public surface of the audio processing core:
// format conversion, time-range trimming, lossless stream copy, multi-file
// splicing, waveform extraction, and file inspection.
//
// The data model below lives in internal/audiotype and is re-exported
// here by alias, so every internal package and this package share one
// type identity without an import cycle (this package imports internal/*
// to wire the pipeline; internal/* needs the shared types).
package audiocore

import "github.com/linuxmatters/audiocore/internal/audiotype"

// AccessUnit is a single compressed audio frame as produced by a demuxer
// or an encoder. Ownership moves across every interface boundary it
// crosses; it is never shared between two owners at once.
type AccessUnit = audiotype.AccessUnit

// PCMFrame is a decoded, uncompressed audio buffer. The canonical
// interchange layout is 16-bit little-endian interleaved samples.
type PCMFrame = audiotype.PCMFrame

// TrackFormat describes one audio track, either as read from a container
// or as reported by an encoder after its first output format change.
type TrackFormat = audiotype.TrackFormat

// OutputFormat selects what ConvertAudio/TrimAudio/SpliceAudio produce.
type OutputFormat = audiotype.OutputFormat

const (
	// FormatM4A transcodes to an M4A container carrying AAC-LC.
	FormatM4A = audiotype.FormatM4A
	// FormatCopy remuxes the original elementary stream without
	// decoding, only valid for AAC/MP4-family input (§4.F).
	FormatCopy = audiotype.FormatCopy
)

// TimeRange is a [StartUs, EndUs) window used by trim and the time-range
// gate. Zero value means "no range" (the whole file).
type TimeRange = audiotype.TimeRange

// ConversionResult is returned by every transcode/trim/copy/splice call.
type ConversionResult = audiotype.ConversionResult

// WaveformEnvelope is the amplitude envelope extracted for UI visualization.
type WaveformEnvelope = audiotype.WaveformEnvelope

// CapabilityFlags describes what operations a given input file supports,
// per the fixed MIME table in spec.md §4.I.
type CapabilityFlags = audiotype.CapabilityFlags

// ErrorKind classifies an Invalid AudioInfo or a returned error.
type ErrorKind = audiotype.ErrorKind

const (
	ErrorKindIO                   = audiotype.ErrorKindIO
	ErrorKindUnsupportedContainer = audiotype.ErrorKindUnsupportedContainer
	ErrorKindNoAudioTrack         = audiotype.ErrorKindNoAudioTrack
)

// AudioInfo is the sum type returned by GetAudioInfo: exactly one of
// Valid or Invalid is populated (Valid == true selects which).
type AudioInfo = audiotype.AudioInfo

// OperationTag identifies which public operation a ProgressEvent belongs to.
type OperationTag = audiotype.OperationTag

const (
	OpConvert      = audiotype.OpConvert
	OpTrim         = audiotype.OpTrim
	OpTrimLossless = audiotype.OpTrimLossless
	OpSplice       = audiotype.OpSplice
	OpWaveform     = audiotype.OpWaveform
)

// ProgressEvent is one point in a monotonically non-decreasing progress
// stream; exactly one event per successful operation carries Progress == 1.
type ProgressEvent = audiotype.ProgressEvent

// ProgressFunc receives progress events on the worker goroutine running the
// operation. The caller owns marshalling it to another thread if needed.
type ProgressFunc = audiotype.ProgressFunc
