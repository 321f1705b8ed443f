package ui

// ProgressMsg carries one ProgressEvent from the worker goroutine running
// the operation into the Bubbletea event loop.
type ProgressMsg struct {
	Progress float64 // 0.0 to 1.0
}

// DoneMsg indicates the operation finished, successfully or not.
type DoneMsg struct {
	OutputPath  string
	DurationMs  int64
	BitRateKbps int
	Lossless    bool
	Err         error
}
