package radio

import (
	"github.com/cwsl/nfcdecode/decoderstatus"
	"github.com/cwsl/nfcdecode/frame"
	"github.com/cwsl/nfcdecode/sample"
)

// NfcF demodulates FeliCa (JIS X 6319-4 / NFC-F): Manchester framing at
// 212kbps or 424kbps, 8-bit bytes with no parity, and a big-endian CRC_F
// trailer (§4.F NFC-F byte framing, §13 Open Question: NFC-F detection is
// fully implemented, not stubbed, trying both standard bitrates in turn).
type NfcF struct {
	engine

	sinceBoundary uint64
	silentETUs    int
}

func NewNfcF(thresholds Thresholds) *NfcF {
	return &NfcF{engine: newEngine(frame.NfcF, thresholds)}
}

func (d *NfcF) Tech() frame.Tech { return frame.NfcF }

func (d *NfcF) Reset() {
	d.reset()
	d.sinceBoundary = 0
	d.silentETUs = 0
}

// Detect tries FeliCa's two standard bitrates, 212kbps first since it is
// the far more common deployment (Suica/Pasmo-class transit cards).
func (d *NfcF) Detect(status *decoderstatus.Status) bool {
	if d.detectCarrier(status, Rate212k) {
		d.bitrate = Rate212k
		return true
	}
	if d.detectCarrier(status, Rate424k) {
		d.bitrate = Rate424k
		return true
	}
	return false
}

func (d *NfcF) Decode(status *decoderstatus.Status, buf *sample.Buffer, emit func(*frame.Raw)) error {
	if d.state == StateIdle {
		if d.bitrate == 0 {
			d.bitrate = Rate212k
		}
		d.samplesPerETU = etuSamples(status.SampleRate, int(d.bitrate))
		status.SetETU(d.samplesPerETU)
		status.Lock(decoderstatus.Bitrate{BitsPerSecond: int(d.bitrate), SamplesPerETU: int(d.samplesPerETU)}, decoderstatus.Modulation{Name: "NfcF"})
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
func (d *NfcF) Flush(status *decoderstatus.Status, emit func(*frame.Raw)) {
	if len(d.bitBuf) == 0 {
		return
	}
	d.finalizeFrame(status, emit, true)
}

func (d *NfcF) finalizeFrame(status *decoderstatus.Status, emit func(*frame.Raw), truncated bool) {
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
	// FeliCa frames begin with a length byte (LEN) covering the whole
	// frame including itself and the trailing CRC_F.
	if len(payload) >= 1 && int(payload[0]) != len(payload) {
		flags |= frame.FlagTruncated
	}
	if len(payload) >= 3 {
		if !CheckCrcF(payload) {
			flags |= frame.FlagCrcError
		}
	} else {
		flags |= frame.FlagShort
	}

	ft := frame.TypePoll
	if d.ph == phaseListen {
		ft = frame.TypeListen
	}
	raw := frame.NewRaw(frame.NfcF, ft, frame.PhaseSelection, int(d.bitrate))
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
