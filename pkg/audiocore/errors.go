package audiocore

import "github.com/linuxmatters/audiocore/internal/audiotype"

// Kind classifies a pipeline-level failure per spec.md §7.
type Kind = audiotype.Kind

const (
	KindInvalidArguments  = audiotype.KindInvalidArguments
	KindInvalidRange      = audiotype.KindInvalidRange
	KindUnsupportedFormat = audiotype.KindUnsupportedFormat
	KindIO                = audiotype.KindIO
	KindCodec             = audiotype.KindCodec
	KindPipelineStalled   = audiotype.KindPipelineStalled
	KindTimeout           = audiotype.KindTimeout
	KindCancelled         = audiotype.KindCancelled
	KindMuxer             = audiotype.KindMuxer
)

// Error is the structured payload every failing operation returns.
type Error = audiotype.Error

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return audiotype.IsKind(err, kind)
}
