package audiotype

import "fmt"

// Kind classifies a pipeline-level failure per spec.md §7.
type Kind string

const (
	KindInvalidArguments  Kind = "invalid_arguments"
	KindInvalidRange      Kind = "invalid_range"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindIO                Kind = "io_error"
	KindCodec             Kind = "codec_error"
	KindPipelineStalled   Kind = "pipeline_stalled"
	KindTimeout           Kind = "timeout"
	KindCancelled         Kind = "cancelled"
	KindMuxer             Kind = "muxer_error"
)

// Error is the structured payload every failing operation returns.
type Error struct {
	Kind          Kind
	Message       string
	Path          string // offending path, if any
	ByteOffset    int64  // -1 if unknown
	LastTimestampUs int64 // -1 if unknown
	Cause         error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind Kind, path string, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:            kind,
		Message:         fmt.Sprintf(format, args...),
		Path:            path,
		ByteOffset:      -1,
		LastTimestampUs: -1,
		Cause:           cause,
	}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return false
	}
	return e.Kind == kind
}
