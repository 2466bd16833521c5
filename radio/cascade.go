package radio

import (
	"github.com/cwsl/nfcdecode/decoderstatus"
	"github.com/cwsl/nfcdecode/frame"
)

// Cascade probes an ordered list of Detectors and hands control of the
// sample stream to the first one that locks, per §4.G's detect order:
// NFC-A, then B, F, V, with ties (equal symbol_start) broken in that same
// order since the list is walked front to back and the first match wins.
type Cascade struct {
	detectors []Detector
}

// NewCascade builds a cascade from the enabled technologies, in detect
// priority order. Pass only the Detectors enabled by configuration.
func NewCascade(detectors ...Detector) *Cascade {
	return &Cascade{detectors: detectors}
}

// Probe returns the first enabled Detector whose Detect() matches the
// current shared status, or nil if none do (still in Idle).
func (c *Cascade) Probe(status *decoderstatus.Status) Detector {
	for _, d := range c.detectors {
		if d.Detect(status) {
			return d
		}
	}
	return nil
}

// ResetAll drops every detector's per-session state by calling each
// detector's Reset.
func (c *Cascade) ResetAll() {
	for _, d := range c.detectors {
		d.Reset()
	}
}

// DefaultCascade builds a cascade over all four radio technologies using
// stock thresholds, in the A>B>F>V priority order.
func DefaultCascade() *Cascade {
	return NewCascade(
		NewNfcA(DefaultThresholds(frame.NfcA)),
		NewNfcB(DefaultThresholds(frame.NfcB)),
		NewNfcF(DefaultThresholds(frame.NfcF)),
		NewNfcV(DefaultThresholds(frame.NfcV)),
	)
}
