package radio

import (
	"github.com/cwsl/nfcdecode/decoderstatus"
	"github.com/cwsl/nfcdecode/frame"
	"github.com/cwsl/nfcdecode/sample"
)

// NfcA demodulates ISO/IEC 14443 Type A. The standard specifies Modified
// Miller coding for PCD->PICC Poll frames and Manchester coding for
// PICC->PCD Listen frames; this demodulator scores both phases through the
// same shared manchesterScore correlator rather than a dedicated Miller
// discriminator (see DESIGN.md's Open Question decisions). Frames are
// 9-bit groups (8 data bits LSB-first plus one odd-parity bit) except the
// three short frames (REQA/WUPA/HLTA first byte), which carry exactly 7
// data bits and no parity (§4.F NFC-A byte framing).
type NfcA struct {
	engine

	sinceBoundary uint64
	silentETUs    int
}

// NewNfcA builds an NFC-A detector with the given thresholds (use
// DefaultThresholds(frame.NfcA) for the stock configuration).
func NewNfcA(thresholds Thresholds) *NfcA {
	return &NfcA{engine: newEngine(frame.NfcA, thresholds)}
}

func (d *NfcA) Tech() frame.Tech { return frame.NfcA }

func (d *NfcA) Reset() {
	d.reset()
	d.sinceBoundary = 0
	d.silentETUs = 0
}

// Detect probes the shared status for NFC-A's 106kbps carrier+modulation
// signature. NFC-A's baseline rate is always probed first in the cascade
// (§4.G detect order).
func (d *NfcA) Detect(status *decoderstatus.Status) bool {
	return d.detectCarrier(status, Rate106k)
}

// Decode consumes buf sample-by-sample, recovering NFC-A frames via a
// fixed-ETU matched-filter correlator and emitting one RawFrame per
// Poll/Listen exchange, alternating phase (§4.E Payload/EndOfFrame states).
func (d *NfcA) Decode(status *decoderstatus.Status, buf *sample.Buffer, emit func(*frame.Raw)) error {
	if d.state == StateIdle {
		d.bitrate = Rate106k
		d.samplesPerETU = etuSamples(status.SampleRate, int(d.bitrate))
		status.SetETU(d.samplesPerETU)
		status.Lock(decoderstatus.Bitrate{BitsPerSecond: int(d.bitrate), SamplesPerETU: int(d.samplesPerETU)}, decoderstatus.Modulation{Name: "NfcA"})
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
func (d *NfcA) Flush(status *decoderstatus.Status, emit func(*frame.Raw)) {
	if len(d.bitBuf) == 0 {
		return
	}
	d.finalizeFrame(status, emit, true)
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// finalizeFrame packs the accumulated bits into a sealed RawFrame. truncated
// additionally marks the frame as cut short by a carrier drop mid-payload.
func (d *NfcA) finalizeFrame(status *decoderstatus.Status, emit func(*frame.Raw), truncated bool) {
	total := len(d.bitBuf)
	if total == 0 {
		return
	}

	var payload []byte
	var flags frame.Flags
	if total == 7 {
		var b byte
		for k := 0; k < 7; k++ {
			if d.bitBuf[k] != 0 {
				b |= 1 << uint(k)
			}
		}
		payload = []byte{b}
		flags |= frame.FlagShort
	} else {
		rem := total % 9
		usable := total - rem
		var parityOK bool
		payload, parityOK = packBitsNfcA(d.bitBuf[:usable])
		if !parityOK {
			flags |= frame.FlagParityError
		}
		if rem != 0 {
			flags |= frame.FlagTruncated
		}
	}
	if truncated {
		flags |= frame.FlagTruncated
	}
	// Short frames (REQA/WUPA/HLTA) never carry a trailing CRC_A; every
	// other NFC-A frame of at least one data byte plus the two CRC bytes
	// does (ISO/IEC 14443-3 §6.2.3).
	if !flags.Has(frame.FlagShort) && len(payload) >= 3 {
		if !CheckCrcA(payload) {
			flags |= frame.FlagCrcError
		}
	}

	ft := frame.TypePoll
	if d.ph == phaseListen {
		ft = frame.TypeListen
	}
	raw := frame.NewRaw(frame.NfcA, ft, frame.PhaseSelection, int(d.bitrate))
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
