package pipeline

import "github.com/linuxmatters/audiocore/internal/audiotype"

// gate is the time-range filter in front of the decoder feed (spec.md
// §4.E). The caller seeks the demuxer to the range start before
// constructing the gate and passes in the timestamp the seek actually
// landed on.
type gate struct {
	active  bool
	startUs int64
	endUs   int64
	landedUs int64
}

func newGate(tr audiotype.TimeRange, landedUs int64) *gate {
	if !tr.Active() {
		return &gate{active: false}
	}
	return &gate{active: true, startUs: tr.StartUs, endUs: tr.EndUs, landedUs: landedUs}
}

// decision is what the feed phase should do with one demuxed AU.
type decision int

const (
	decisionEmit decision = iota
	decisionDiscardBeforeStart
	decisionRangeEnd
)

// admit classifies au and, for decisionEmit, returns its timestamp
// rebased against the landed seek timestamp (ts - landedUs). The first
// emitted timestamp is 0 when the seek landed exactly on the range
// start, and startUs - landedUs or more when it landed earlier.
func (g *gate) admit(au audiotype.AccessUnit) (decision, int64) {
	if !g.active {
		return decisionEmit, au.PresentationTimeUs
	}
	if au.PresentationTimeUs >= g.endUs {
		return decisionRangeEnd, 0
	}
	if au.PresentationTimeUs < g.startUs {
		return decisionDiscardBeforeStart, 0
	}
	return decisionEmit, au.PresentationTimeUs - g.landedUs
}
