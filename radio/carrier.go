package radio

import (
	"github.com/cwsl/nfcdecode/decoderstatus"
	"github.com/cwsl/nfcdecode/frame"
)

// CarrierMonitor tracks 13.56MHz carrier presence independently of which
// NFC technology eventually locks on it -- every technology shares the
// same carrier, only the modulation differs, so carrier on/off framing is a
// pipeline-level concern rather than a per-technology one (§4.E
// CarrierDrop, §8 scenario S5).
type CarrierMonitor struct {
	powerLevel float64
	tech       frame.Tech

	carrierUp     bool
	belowSince    uint64
	belowArmed    bool
	aboveSince    uint64
	aboveArmed    bool
	onSampleStart uint64
}

// NewCarrierMonitor creates a monitor tagging emitted carrier frames with
// tech (the pipeline's primary configured technology).
func NewCarrierMonitor(powerLevel float64, tech frame.Tech) *CarrierMonitor {
	return &CarrierMonitor{powerLevel: powerLevel, tech: tech}
}

// Update inspects the current envelope and returns a sealed RawFrame when a
// carrier on/off transition has been confirmed for long enough (1ms).
func (m *CarrierMonitor) Update(status *decoderstatus.Status) *frame.Raw {
	const confirmSeconds = 0.001
	confirmSamples := uint64(status.SampleRate * confirmSeconds)
	if confirmSamples == 0 {
		confirmSamples = 1
	}

	up := status.Envelope > m.powerLevel

	if up {
		m.belowArmed = false
		if !m.carrierUp {
			if !m.aboveArmed {
				m.aboveArmed = true
				m.aboveSince = status.SignalClock
			} else if status.SignalClock-m.aboveSince >= confirmSamples {
				m.carrierUp = true
				m.aboveArmed = false
				m.onSampleStart = m.aboveSince
				return m.build(status, frame.TypeCarrierOn, m.aboveSince, status.SignalClock)
			}
		}
	} else {
		m.aboveArmed = false
		if m.carrierUp {
			if !m.belowArmed {
				m.belowArmed = true
				m.belowSince = status.SignalClock
			} else if status.SignalClock-m.belowSince >= confirmSamples {
				m.carrierUp = false
				m.belowArmed = false
				return m.build(status, frame.TypeCarrierOff, m.belowSince, status.SignalClock)
			}
		}
	}
	return nil
}

func (m *CarrierMonitor) build(status *decoderstatus.Status, ft frame.Type, start, end uint64) *frame.Raw {
	raw := frame.NewRaw(m.tech, ft, frame.PhaseCarrier, 0)
	_ = raw.Finalize(sampleTime(status, start), sampleTime(status, end), int64(start), int64(end), status.SampleRate)
	return raw
}

// CarrierUp reports the monitor's current debounced carrier state.
func (m *CarrierMonitor) CarrierUp() bool { return m.carrierUp }

// Tech returns the technology this monitor tags emitted carrier frames
// with.
func (m *CarrierMonitor) Tech() frame.Tech { return m.tech }
