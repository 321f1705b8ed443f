// Package info implements the file-info inspector (spec.md §4.I): opens
// a container with the demuxer only, never touching a codec, and
// reports the fixed capability matrix for whatever MIME family it
// finds.
//
// Grounded on internal/demux directly; the capability table is lifted
// verbatim from spec.md §4.I rather than from the teacher, which never
// needed one (it only ever decodes, never classifies).
package info

import (
	"os"

	"github.com/linuxmatters/audiocore/internal/audiotype"
	"github.com/linuxmatters/audiocore/internal/report"
)

// Demuxer is the subset of *demux.Demuxer this package drives.
type Demuxer interface {
	Tracks() []audiotype.TrackFormat
	AudioTrackIndices() []int
	Close()
}

// capabilitiesForMIME implements the fixed MIME map from spec.md §4.I.
func capabilitiesForMIME(mime string) audiotype.CapabilityFlags {
	switch mime {
	case "audio/mpeg":
		return audiotype.CapabilityFlags{Convertible: true, Trimmable: true, WaveformSupported: true}
	case "audio/mp4", "audio/mp4a-latm", "audio/aac":
		return audiotype.CapabilityFlags{Convertible: true, Trimmable: true, LosslessTrimmable: true, WaveformSupported: true}
	case "audio/wav":
		return audiotype.CapabilityFlags{Convertible: true, Trimmable: true, WaveformSupported: true}
	case "audio/ogg", "audio/vorbis":
		return audiotype.CapabilityFlags{Convertible: true, Trimmable: true, WaveformSupported: true}
	default:
		return audiotype.CapabilityFlags{}
	}
}

// Inspect opens path with open, which must return a ready-to-query
// demuxer. A failed stat of path is reported as ErrorKindIO and an error
// from open as ErrorKindUnsupportedContainer. The file size comes from
// os.Stat, since the demuxer does not expose it; duration, bit rate,
// sample rate and channels come from the first audio track.
func Inspect(path string, open func(string) (Demuxer, error)) audiotype.AudioInfo {
	stat, statErr := os.Stat(path)
	if statErr != nil {
		return audiotype.AudioInfo{Valid: false, ErrorKind: audiotype.ErrorKindIO, Details: statErr.Error()}
	}

	demuxer, err := open(path)
	if err != nil {
		return audiotype.AudioInfo{Valid: false, ErrorKind: audiotype.ErrorKindUnsupportedContainer, Details: err.Error()}
	}
	defer demuxer.Close()

	tracks := demuxer.Tracks()
	audioIdx := demuxer.AudioTrackIndices()
	if len(audioIdx) == 0 {
		return audiotype.AudioInfo{Valid: false, ErrorKind: audiotype.ErrorKindNoAudioTrack, Details: "no audio track found"}
	}

	track := tracks[audioIdx[0]]
	found := make([]string, 0, len(audioIdx))
	for _, idx := range audioIdx {
		found = append(found, tracks[idx].MIME)
	}

	durationMs := track.DurationUs / 1000
	bitRateKbps := estimateBitRateKbps(track.BitRateBps, stat.Size(), durationMs)

	channels := track.Channels
	if channels == 0 {
		channels = 2
	}

	caps := capabilitiesForMIME(track.MIME)

	return audiotype.AudioInfo{
		Valid:           true,
		FileSizeBytes:   stat.Size(),
		DurationMs:      durationMs,
		MIME:            track.MIME,
		Codec:           codecNameForMIME(track.MIME),
		BitRateKbps:     bitRateKbps,
		SampleRateHz:    track.SampleRateHz,
		Channels:        channels,
		Capabilities:    caps,
		FoundTracks:     found,
		DiagnosticsText: report.DiagnosticsText(path, track.MIME, codecNameForMIME(track.MIME), track.SampleRateHz, channels, bitRateKbps, toReportCapabilities(caps)),
	}
}

func toReportCapabilities(caps audiotype.CapabilityFlags) report.Capabilities {
	return report.Capabilities{
		Convertible:       caps.Convertible,
		Trimmable:         caps.Trimmable,
		LosslessTrimmable: caps.LosslessTrimmable,
		WaveformSupported: caps.WaveformSupported,
	}
}

// estimateBitRateKbps falls back to file_size_bytes * 8 / duration_seconds
// when the container does not report a bit rate (spec.md §4.I).
func estimateBitRateKbps(reportedBps int64, fileSizeBytes int64, durationMs int64) int {
	if reportedBps > 0 {
		return int(reportedBps / 1000)
	}
	if durationMs <= 0 {
		return 0
	}
	durationSeconds := float64(durationMs) / 1000.0
	bps := float64(fileSizeBytes) * 8.0 / durationSeconds
	return int(bps / 1000.0)
}

func codecNameForMIME(mime string) string {
	switch mime {
	case "audio/mpeg":
		return "mp3"
	case "audio/mp4", "audio/mp4a-latm", "audio/aac":
		return "aac"
	case "audio/wav":
		return "pcm"
	case "audio/ogg", "audio/vorbis":
		return "vorbis"
	default:
		return "unknown"
	}
}

// IsFormatSupported reports whether path's primary audio track is
// convertible, never surfacing an error (spec.md §6).
func IsFormatSupported(path string, open func(string) (Demuxer, error)) bool {
	result := Inspect(path, open)
	return result.Valid && result.Capabilities.Convertible
}
