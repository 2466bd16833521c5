// Package radio implements the per-technology NFC radio demodulators
// (§4.E): carrier detection, symbol synchronisation, a matched-filter
// bit-and-byte framer shared by all four technologies (see manchesterScore
// for the one correlator shape currently implemented, and DESIGN.md for why
// it is not yet technology-specific), and the technology detect cascade
// with its A>B>F>V tie-break.
package radio

import (
	"math"
	"time"

	"github.com/cwsl/nfcdecode/decoderstatus"
	"github.com/cwsl/nfcdecode/frame"
	"github.com/cwsl/nfcdecode/sample"
	"gonum.org/v1/gonum/floats"
)

// Bitrate is one of the four standard NFC symbol rates.
type Bitrate int

const (
	Rate106k Bitrate = 106000
	Rate212k Bitrate = 212000
	Rate424k Bitrate = 424000
	Rate848k Bitrate = 848000
)

// Thresholds holds the scale-invariant detection thresholds for one
// technology (§6 configuration table, §9 design notes on NFC-V's 0.85
// modulation-depth default).
type Thresholds struct {
	PowerLevel          float64
	ModulationMin       float64 // 0 means "no separate modulation-depth floor"
	ModulationMax       float64 // 0 means "unbounded"
	CorrelationThreshold float64
}

// DefaultThresholds returns the stock thresholds for tech. Every technology
// shares the same correlation floor, 0.25: a fully modulated symbol scores
// 0.5 in manchesterScore, and detectCarrier needs a score strictly above
// the floor. NFC-V is the one exception carrying a non-zero modulation-depth
// floor (§9): 0.85, so its Detect rejects any sample whose modulation depth
// is below 0.85.
func DefaultThresholds(tech frame.Tech) Thresholds {
	t := Thresholds{
		PowerLevel:           0.05,
		CorrelationThreshold: 0.25,
	}
	if tech == frame.NfcV {
		t.ModulationMin = 0.85
	}
	return t
}

// phase alternates Poll/Listen within one technology's half-duplex
// exchange: the first frame recovered after a fresh carrier lock is always
// a reader->PICC Poll, the next is the PICC's Listen response, and so on.
type phase int

const (
	phasePoll phase = iota
	phaseListen
)

// State is the per-technology demodulator state machine (§4.E): Idle,
// SymbolSync, Payload, EndOfFrame, CarrierDrop.
type State int

const (
	StateIdle State = iota
	StateSymbolSync
	StatePayload
	StateEndOfFrame
	StateCarrierDrop
)

// etuSamples rounds sampleRate/bitsPerSecond to the nearest integer sample
// count, per §4.E's ETU definition.
func etuSamples(sampleRate float64, bitsPerSecond int) uint64 {
	if bitsPerSecond <= 0 {
		return 0
	}
	return uint64(math.Round(sampleRate / float64(bitsPerSecond)))
}

// InitialEtuSamples sizes the shared decoderstatus.Status's history ring
// before any technology has locked, using the slowest bitrate any cascade
// member's Detect probes (NFC-V's RateVLow) since that yields the largest
// window any Detect will ever ask recentWindow for.
func InitialEtuSamples(sampleRate float64) uint64 {
	return etuSamples(sampleRate, int(RateVLow))
}

// manchesterScore correlates a window of modulation-depth samples against a
// +1/-1 half-and-half template (high-then-low = bit 1, low-then-high = bit
// 0) using a plain dot product -- the matched-filter shape the spec calls
// for ("correlation uses integer-sample windows"). Every technology in this
// package scores its symbol windows through this one correlator; it is not
// a true Miller decoder for NFC-A Poll frames nor a true NRZ-L/BPSK
// discriminator for NFC-B (see DESIGN.md's Open Question decisions).
func manchesterScore(window []float64) float64 {
	if len(window) == 0 {
		return 0
	}
	template := make([]float64, len(window))
	half := len(window) / 2
	for i := range template {
		if i < half {
			template[i] = 1
		} else {
			template[i] = -1
		}
	}
	return floats.Dot(window, template) / float64(len(window))
}

// Detector is the interface every per-technology radio demodulator
// implements (§9 design notes: a tagged variant with shared methods rather
// than a dynamic dispatch table -- the detect cascade is an ordered match
// over a slice of Detectors).
type Detector interface {
	Tech() frame.Tech
	// Detect probes (read-only) the shared status for this technology's
	// carrier+modulation signature. It never mutates status beyond what a
	// read-mostly probe implies.
	Detect(status *decoderstatus.Status) bool
	// Decode consumes samples from buf, appending completed RawFrames to
	// emit, using and updating status. Returns when buf is exhausted or the
	// demodulator drops back to Idle because the carrier disappeared.
	Decode(status *decoderstatus.Status, buf *sample.Buffer, emit func(*frame.Raw)) error
	// Reset drops all per-session demodulator state (used on sample-rate
	// change or explicit restart) without touching the shared status.
	Reset()
	// Locked reports whether the demodulator is anywhere past Idle -- still
	// mid-frame or waiting out a carrier-drop debounce. The pipeline driver
	// uses this to tell a genuine Decode-returned-because-buffer-exhausted
	// apart from Decode-returned-because-we-dropped-back-to-Idle.
	Locked() bool
	// Flush finalizes any in-progress frame as Truncated with no further
	// samples coming (stream cancellation/close), mirroring
	// logic.Iso7816.Flush's end-of-stream contract. A no-op when Idle.
	Flush(status *decoderstatus.Status, emit func(*frame.Raw))
}

// engine is the shared symbol-recovery state embedded by every
// per-technology Detector. Each Detector's Decode moves it from Idle
// straight to Payload on lock and back to Idle on carrier drop;
// StateSymbolSync, StateEndOfFrame and StateCarrierDrop are declared but
// never entered. Technology-specific code supplies thresholds, the active
// bitrate, and frame labelling.
type engine struct {
	tech       frame.Tech
	thresholds Thresholds

	state State
	ph    phase

	bitrate       Bitrate
	samplesPerETU uint64

	// Cold-start / in-progress frame accumulation.
	bitBuf   []byte // one entry per bit, 0 or 1
	carrierLowSince uint64
	haveCarrierLow  bool
	symbolStart     uint64

	lastFrameTimeStart time.Duration
}

func newEngine(tech frame.Tech, thresholds Thresholds) engine {
	return engine{tech: tech, thresholds: thresholds, state: StateIdle, ph: phasePoll}
}

// Locked reports whether the engine is anywhere past Idle.
func (e *engine) Locked() bool { return e.state != StateIdle }

func (e *engine) reset() {
	e.state = StateIdle
	e.ph = phasePoll
	e.bitBuf = e.bitBuf[:0]
	e.haveCarrierLow = false
	e.bitrate = 0
	e.samplesPerETU = 0
}

// detectCarrier applies the shared envelope/modulation-depth/correlation
// gate common to every technology's Idle state.
func (e *engine) detectCarrier(status *decoderstatus.Status, candidate Bitrate) bool {
	if status.Envelope <= e.thresholds.PowerLevel {
		return false
	}
	depth := status.ModulationDepth()
	if e.thresholds.ModulationMin > 0 && depth < e.thresholds.ModulationMin {
		return false
	}
	if e.thresholds.ModulationMax > 0 && depth > e.thresholds.ModulationMax {
		return false
	}
	window := e.recentWindow(status, candidate)
	if len(window) == 0 {
		return false
	}
	score := math.Abs(manchesterScore(window))
	return score > e.thresholds.CorrelationThreshold
}

// recentWindow reads one ETU's worth of modulation-depth history ending at
// the current signal clock.
func (e *engine) recentWindow(status *decoderstatus.Status, bitrate Bitrate) []float64 {
	etu := etuSamples(status.SampleRate, int(bitrate))
	if etu == 0 || status.SignalClock < etu {
		return nil
	}
	out := make([]float64, 0, etu)
	for c := status.SignalClock - etu + 1; c <= status.SignalClock; c++ {
		s, ok := status.History(c)
		if !ok {
			return nil
		}
		out = append(out, float64(s.ModulationDepth))
	}
	return out
}

// sampleTime converts an absolute sample clock to a time.Duration offset
// from stream start, using the status's sample rate.
func sampleTime(status *decoderstatus.Status, clock uint64) time.Duration {
	return time.Duration(float64(clock) / status.SampleRate * float64(time.Second))
}

// packBitsNfcA packs 9-bit groups (8 data bits LSB-first + 1 odd-parity
// bit) into bytes, reporting whether every parity bit matched.
func packBitsNfcA(bits []byte) (payload []byte, parityOK bool) {
	parityOK = true
	for i := 0; i+9 <= len(bits); i += 9 {
		var b byte
		for k := 0; k < 8; k++ {
			if bits[i+k] != 0 {
				b |= 1 << uint(k)
			}
		}
		want := OddParity(b)
		if bits[i+8] != want {
			parityOK = false
		}
		payload = append(payload, b)
	}
	return payload, parityOK
}

// packBitsPlain packs 8-bit groups, LSB-first, with no parity bit (used by
// NFC-B/F/V byte framing).
func packBitsPlain(bits []byte) []byte {
	var payload []byte
	for i := 0; i+8 <= len(bits); i += 8 {
		var b byte
		for k := 0; k < 8; k++ {
			if bits[i+k] != 0 {
				b |= 1 << uint(k)
			}
		}
		payload = append(payload, b)
	}
	return payload
}
