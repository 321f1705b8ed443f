package pipeline

import (
	"testing"

	"github.com/linuxmatters/audiocore/internal/audiotype"
)

func TestGateInactive(t *testing.T) {
	g := newGate(audiotype.TimeRange{}, 0)
	d, ts := g.admit(audiotype.AccessUnit{PresentationTimeUs: 5_000_000})
	if d != decisionEmit || ts != 5_000_000 {
		t.Fatalf("got (%v, %d), want (decisionEmit, 5000000)", d, ts)
	}
}

func TestGateDiscardsBeforeStart(t *testing.T) {
	g := newGate(audiotype.TimeRange{StartUs: 2_000_000, EndUs: 5_000_000}, 1_900_000)
	d, _ := g.admit(audiotype.AccessUnit{PresentationTimeUs: 1_950_000})
	if d != decisionDiscardBeforeStart {
		t.Fatalf("got %v, want decisionDiscardBeforeStart", d)
	}
}

func TestGateRebasesToZero(t *testing.T) {
	g := newGate(audiotype.TimeRange{StartUs: 2_000_000, EndUs: 5_000_000}, 1_900_000)
	d, ts := g.admit(audiotype.AccessUnit{PresentationTimeUs: 2_000_000})
	if d != decisionEmit || ts != 100_000 {
		t.Fatalf("got (%v, %d), want (decisionEmit, 100000)", d, ts)
	}
}

func TestGateClosesAtEnd(t *testing.T) {
	g := newGate(audiotype.TimeRange{StartUs: 2_000_000, EndUs: 5_000_000}, 2_000_000)
	d, _ := g.admit(audiotype.AccessUnit{PresentationTimeUs: 5_000_000})
	if d != decisionRangeEnd {
		t.Fatalf("got %v, want decisionRangeEnd", d)
	}
	d, _ = g.admit(audiotype.AccessUnit{PresentationTimeUs: 6_000_000})
	if d != decisionRangeEnd {
		t.Fatalf("got %v, want decisionRangeEnd for a timestamp past end too", d)
	}
}
