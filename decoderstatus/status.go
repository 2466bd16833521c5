// Package decoderstatus implements the shared per-sample scratchpad (§4.D)
// that every radio technology detector peeks at concurrently: the master
// clock, DC-removal IIR state, envelope tracker, rolling statistics and
// edge detector.
package decoderstatus

import (
	"math"

	"github.com/cwsl/nfcdecode/sample"
	"gonum.org/v1/gonum/stat"
)

// ringSize must be a power of two; ringSize rounds the caller's requested
// minimum up to the next power of two, never allocating on the hot path
// once constructed.
func ringSize(minimum int) int {
	n := 1
	for n < minimum {
		n <<= 1
	}
	return n
}

// Sample is one entry of the ring-buffered recent sample history.
type Sample struct {
	Raw              float32
	Filtered         float32
	Variance         float32
	ModulationDepth  float32
}

// Modulation is a set of thresholds a radio detector matches against the
// shared envelope/modulation tracking.
type Modulation struct {
	Name string
}

// Bitrate describes the locked symbol rate.
type Bitrate struct {
	BitsPerSecond int
	SamplesPerETU int
}

// Status is the DecoderStatus structure: process-wide per-decoder state
// shared (read-mostly) across every radio technology detector. It is owned
// exclusively by the pipeline driver; detectors receive a non-owning
// pointer for the duration of one call and must never retain it past the
// driver's lifetime, nor mutate each other's per-technology local state.
type Status struct {
	SampleRate float64
	SampleTime float64

	SignalClock  uint64
	PulseFilter  uint64

	// IIR DC-removal state.
	N0, N1 float64
	alpha  float64

	// Envelope tracker.
	Envelope float64
	envW0    float64
	envW1    float64

	// Rolling mean/variance (gonum-backed, §11 domain stack).
	variance float64
	average  float64
	statW0   float64
	statW1   float64

	// Edge detector.
	HighThreshold float64
	LowThreshold  float64
	peakValue     float64
	peakPosition  uint64
	inPeak        bool

	// ETU in samples for the technology currently probing/locked; used to
	// size the pulse-filter reset window and the cold-start seed period.
	ETU uint64

	ring    []Sample
	ringLen int

	// Active lock, cleared when carrier drops.
	Locked     bool
	Bitrate    Bitrate
	Modulation Modulation

	Recorder Recorder

	// SampleHook, if set, is invoked once per sample at the end of
	// NextSample -- regardless of whether the caller is the pipeline
	// driver's own pre-lock probe loop or a locked Detector's Decode loop,
	// both of which consume samples exclusively through NextSample. This is
	// what lets pipeline-level observers (e.g. the carrier monitor) react
	// to envelope changes at the same per-sample cadence the envelope
	// tracker itself runs at, rather than once per processed buffer.
	SampleHook func(*Status)
}

// Recorder is the optional debug-recording hook (§12); nil when
// debug-enabled is off. Implemented by package debugrec.
type Recorder interface {
	RecordSample(clock uint64, s Sample)
}

// New builds a Status for the given input sample rate. etuSamples is the
// nominal elementary-time-unit, in samples, of the technology the pipeline
// is about to probe (re-derived and passed again whenever a different
// technology attempts detection -- Status itself does not know which
// technology locked).
func New(sampleRate float64, etuSamples uint64) *Status {
	s := &Status{
		SampleRate: sampleRate,
		SampleTime: 1.0 / sampleRate,
		ETU:        etuSamples,
	}
	s.ring = make([]Sample, ringSize(int(etuSamples)*4))
	s.ringLen = len(s.ring)

	// Envelope smoothing tuned to track changes over >= 10ms: a one-pole
	// low-pass with time constant tau=10ms expressed as exponential weights.
	const envelopeTau = 10e-3
	s.envW1 = s.SampleTime / (envelopeTau + s.SampleTime)
	s.envW0 = 1 - s.envW1

	// DC-removal pole: cutoff far below the carrier, set from the ETU so it
	// scales with whatever technology is active (samples-per-ETU * 64 gives
	// headroom well under one subcarrier cycle).
	rc := float64(etuSamples) * 64
	s.alpha = rc / (rc + 1)

	// Rolling stat smoothing, same 10ms-class time constant as the envelope.
	s.statW1 = s.envW1
	s.statW0 = s.envW0

	return s
}

// SetETU re-derives the ring buffer and smoothing constants for a new
// elementary time unit (called when a technology re-locks at a different
// bitrate, or on sample-rate change).
func (s *Status) SetETU(etuSamples uint64) {
	s.ETU = etuSamples
	s.ring = make([]Sample, ringSize(int(etuSamples)*4))
	s.ringLen = len(s.ring)
	rc := float64(etuSamples) * 64
	s.alpha = rc / (rc + 1)
}

// SetThresholds sets the edge detector's high/low trigger levels, expressed
// as absolute amplitude (after DC removal).
func (s *Status) SetThresholds(high, low float64) {
	s.HighThreshold = high
	s.LowThreshold = low
}

// NextSample ingests one sample from buf, advancing the shared clock and
// updating every tracked quantity. It returns false (consuming nothing) if
// buf is not a raw-iq buffer, matching §4.D step 1.
func (s *Status) NextSample(buf *sample.Buffer) (bool, error) {
	if buf.Type() != sample.TypeRawIQ {
		return false, nil
	}

	i, err := buf.Get()
	if err != nil {
		return false, err
	}
	var mag float64
	if buf.Stride() >= 2 {
		q, err := buf.Get()
		if err != nil {
			return false, err
		}
		mag = math.Hypot(float64(i), float64(q))
	} else {
		mag = float64(i)
	}

	s.SignalClock++
	s.PulseFilter++

	// Envelope tracking: cold-start seeds directly from the first ETU
	// samples so detection stabilises before symbol-sync attempts; steady
	// state re-centres the envelope whenever the sample deviates by less
	// than 5% or the pulse filter has run long without a reset.
	if s.SignalClock <= s.ETU {
		if s.Envelope == 0 {
			s.Envelope = mag
		}
	} else {
		deviation := 1.0
		if s.Envelope != 0 {
			deviation = math.Abs(mag-s.Envelope) / s.Envelope
		}
		if deviation < 0.05 || s.PulseFilter > 10*s.ETU {
			s.PulseFilter = 0
			s.Envelope = s.envW0*s.Envelope + s.envW1*mag
		}
	}

	// IIR DC-removal, single-pole.
	n0 := mag + s.N1*s.alpha
	filtered := n0 - s.N1
	s.N1 = n0
	s.N0 = n0

	// Rolling variance/average as exponential updates, each expressed as the
	// weighted mean of {previous estimate, new sample} with weights
	// (w0, w1) -- delegated to gonum's weighted Mean instead of hand-rolled
	// arithmetic, per §4.D steps 8-9.
	s.variance = stat.Mean([]float64{s.variance, math.Abs(filtered)}, []float64{s.statW0, s.statW1})
	s.average = stat.Mean([]float64{s.average, mag}, []float64{s.statW0, s.statW1})

	var modulationDepth float64
	if s.Envelope != 0 {
		modulationDepth = (s.Envelope - mag) / s.Envelope
	}

	entry := Sample{
		Raw:             float32(mag),
		Filtered:        float32(filtered),
		Variance:        float32(s.variance),
		ModulationDepth: float32(modulationDepth),
	}
	s.ring[s.SignalClock%uint64(s.ringLen)] = entry
	if s.Recorder != nil {
		s.Recorder.RecordSample(s.SignalClock, entry)
	}

	absFiltered := math.Abs(filtered)
	if absFiltered > s.HighThreshold {
		if !s.inPeak || absFiltered > s.peakValue {
			s.peakValue = absFiltered
			s.peakPosition = s.SignalClock
		}
		s.inPeak = true
	} else if absFiltered < s.LowThreshold {
		s.inPeak = false
		s.peakValue = 0
	}

	if s.SampleHook != nil {
		s.SampleHook(s)
	}

	return true, nil
}

// History returns the ring-buffered sample at the given absolute clock
// position, and whether it is still within the retained window.
func (s *Status) History(clock uint64) (Sample, bool) {
	if s.SignalClock < uint64(s.ringLen) {
		if clock > s.SignalClock {
			return Sample{}, false
		}
	} else if s.SignalClock-clock >= uint64(s.ringLen) {
		return Sample{}, false
	}
	return s.ring[clock%uint64(s.ringLen)], true
}

// PeakPosition returns the sample clock of the most recent unreset edge
// peak, and whether an edge is currently being tracked.
func (s *Status) PeakPosition() (uint64, float64, bool) {
	return s.peakPosition, s.peakValue, s.inPeak
}

// ModulationDepth returns the most recently computed modulation depth,
// (envelope - signal) / envelope.
func (s *Status) ModulationDepth() float64 {
	e, ok := s.History(s.SignalClock)
	if !ok {
		return 0
	}
	return float64(e.ModulationDepth)
}

// Lock records that a technology has locked a bitrate/modulation.
func (s *Status) Lock(rate Bitrate, mod Modulation) {
	s.Locked = true
	s.Bitrate = rate
	s.Modulation = mod
}

// Unlock clears the active lock (carrier dropped).
func (s *Status) Unlock() {
	s.Locked = false
	s.Bitrate = Bitrate{}
	s.Modulation = Modulation{}
}
