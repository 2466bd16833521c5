package radio

import (
	"github.com/cwsl/nfcdecode/decoderstatus"
	"github.com/cwsl/nfcdecode/frame"
	"github.com/cwsl/nfcdecode/sample"
)

// NfcB demodulates ISO/IEC 14443 Type B. The standard specifies NRZ-L
// PCD->PICC framing and BPSK subcarrier PICC->PCD framing; this demodulator
// scores both through the same shared manchesterScore correlator used by
// every technology in this package rather than a dedicated NRZ-L/BPSK
// discriminator (see DESIGN.md's Open Question decisions). Bits are packed
// into plain 8-bit LSB-first bytes with no parity; start/stop bits are
// neither stripped nor checked. Every frame of three or more bytes is
// checked against a CRC_B trailer (§4.F NFC-B byte framing).
type NfcB struct {
	engine

	sinceBoundary uint64
	silentETUs    int
}

func NewNfcB(thresholds Thresholds) *NfcB {
	return &NfcB{engine: newEngine(frame.NfcB, thresholds)}
}

func (d *NfcB) Tech() frame.Tech { return frame.NfcB }

func (d *NfcB) Reset() {
	d.reset()
	d.sinceBoundary = 0
	d.silentETUs = 0
}

func (d *NfcB) Detect(status *decoderstatus.Status) bool {
	return d.detectCarrier(status, Rate106k)
}

func (d *NfcB) Decode(status *decoderstatus.Status, buf *sample.Buffer, emit func(*frame.Raw)) error {
	if d.state == StateIdle {
		d.bitrate = Rate106k
		d.samplesPerETU = etuSamples(status.SampleRate, int(d.bitrate))
		status.SetETU(d.samplesPerETU)
		status.Lock(decoderstatus.Bitrate{BitsPerSecond: int(d.bitrate), SamplesPerETU: int(d.samplesPerETU)}, decoderstatus.Modulation{Name: "NfcB"})
		d.symbolStart = status.SignalClock
		d.state = StatePayload
		d.sinceBoundary = 0
		d.silentETUs = 0
	}

	for {
		ok, err := status.NextSample(buf)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if status.Envelope <= d.thresholds.PowerLevel {
			if !d.haveCarrierLow {
				d.haveCarrierLow = true
				d.carrierLowSince = status.SignalClock
			} else if status.SignalClock-d.carrierLowSince >= uint64(status.SampleRate*0.001) {
				d.finalizeFrame(status, emit, true)
				status.Unlock()
				d.Reset()
				return nil
			}
		} else {
			d.haveCarrierLow = false
		}

		d.sinceBoundary++
		if d.sinceBoundary < d.samplesPerETU {
			continue
		}
		d.sinceBoundary = 0

		window := d.recentWindow(status, d.bitrate)
		score := manchesterScore(window)
		if absf(score) < d.thresholds.CorrelationThreshold {
			d.silentETUs++
			if d.silentETUs >= 2 && len(d.bitBuf) > 0 {
				d.finalizeFrame(status, emit, false)
				d.symbolStart = status.SignalClock
			}
			continue
		}
		d.silentETUs = 0
		bit := byte(0)
		if score > 0 {
			bit = 1
		}
		d.bitBuf = append(d.bitBuf, bit)
	}
}

// Flush finalizes any in-progress frame as Truncated when the stream ends
// with no trailing carrier-drop edge to trigger it otherwise.
func (d *NfcB) Flush(status *decoderstatus.Status, emit func(*frame.Raw)) {
	if len(d.bitBuf) == 0 {
		return
	}
	d.finalizeFrame(status, emit, true)
}

func (d *NfcB) finalizeFrame(status *decoderstatus.Status, emit func(*frame.Raw), truncated bool) {
	total := len(d.bitBuf)
	if total == 0 {
		return
	}
	rem := total % 8
	usable := total - rem
	payload := packBitsPlain(d.bitBuf[:usable])

	var flags frame.Flags
	if rem != 0 || truncated {
		flags |= frame.FlagTruncated
	}
	if len(payload) >= 3 {
		if !CheckCrcB(payload) {
			flags |= frame.FlagCrcError
		}
	} else {
		flags |= frame.FlagShort
	}

	ft := frame.TypePoll
	if d.ph == phaseListen {
		ft = frame.TypeListen
	}
	raw := frame.NewRaw(frame.NfcB, ft, frame.PhaseSelection, int(d.bitrate))
	raw.Append(payload...)
	raw.SetFlag(flags)

	sampleEnd := d.symbolStart + uint64(total)*d.samplesPerETU
	_ = raw.Finalize(sampleTime(status, d.symbolStart), sampleTime(status, sampleEnd), int64(d.symbolStart), int64(sampleEnd), status.SampleRate)
	emit(raw)

	if d.ph == phasePoll {
		d.ph = phaseListen
	} else {
		d.ph = phasePoll
	}
	d.bitBuf = d.bitBuf[:0]
}
