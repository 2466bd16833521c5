// Package logic implements the ISO/IEC 7816 asynchronous UART-style logic
// demodulator (§4.F): edge detection, ETU clock recovery, character framing
// with convention detection, and block assembly into ATR/request/response
// RawFrames.
package logic

import (
	"math"
	"time"

	"github.com/cwsl/nfcdecode/frame"
	"github.com/cwsl/nfcdecode/sample"
)

// EtuSamples rounds sampleRate/bitrate to the nearest integer sample count,
// the ETU-in-samples NewIso7816 needs. Fi/Di-to-bitrate selection is a
// configuration concern (pipeline.Config.Iso7816Bitrate), not this
// package's -- mirrors radio's etuSamples formula for the same reason
// (§4.E/§4.F both derive ETU from sample_rate/bit_rate).
func EtuSamples(sampleRate, bitrate float64) uint64 {
	if bitrate <= 0 {
		return 0
	}
	return uint64(math.Round(sampleRate / bitrate))
}

// Convention is the byte-encoding convention an ISO-7816 card announces via
// its ATR's first byte (TS).
type Convention int

const (
	ConventionDirect Convention = iota
	ConventionInverse
)

// Default timing constants in ETUs (§4.F), used when no per-session override
// is configured.
const (
	DefaultCWT = 9600 // Character Waiting Time
	DefaultBWT = 9600 // Block Waiting Time
	DefaultBGT = 22   // Block Guard Time (minimum, not a timeout)
)

type blockPhase int

const (
	phaseWaitReset blockPhase = iota
	phaseATR
	phaseBlockAssembly
)

type charState int

const (
	charWaitStart charState = iota
	charInProgress
)

type direction int

const (
	dirRequest direction = iota
	dirResponse
)

// Iso7816 is the persistent, restartable state of one logic-demodulator
// session. It bypasses DecoderStatus (§4.D is scoped to the raw-iq radio
// technologies) and keeps its own sample clock and convention lock.
type Iso7816 struct {
	etu uint64
	cwt uint64
	bwt uint64

	convention       Convention
	conventionLocked bool

	phase blockPhase
	dir   direction

	cstate        charState
	haveSample    bool
	prevSample    byte
	charSampleIdx uint64
	dataBits      [8]byte
	parityBit     byte
	charHasError  bool

	gapSamples uint64
	sawAnyChar bool

	bytes      []byte
	frameFlags frame.Flags
	frameStart uint64

	clock      uint64
	sampleRate float64
}

// NewIso7816 builds a logic demodulator for the given nominal ETU (in
// samples -- sample_rate / bit_rate derived from the standard's Fi/Di
// table, computed by the caller since Fi/Di selection is a configuration
// concern, not a demodulator one).
func NewIso7816(etuSamples uint64) *Iso7816 {
	if etuSamples == 0 {
		etuSamples = 1
	}
	return &Iso7816{etu: etuSamples, cwt: DefaultCWT * etuSamples, bwt: DefaultBWT * etuSamples}
}

// Reset drops all per-session state (used on sample-rate change or an
// explicit restart), mirroring the radio Detector.Reset contract.
func (d *Iso7816) Reset() {
	*d = *NewIso7816(d.etu)
}

// Decode consumes buf sample-by-sample (raw-logic, stride 1, values 0/1)
// and appends completed RawFrames to emit. It persists its state across
// calls so a character or block split across two buffers resumes correctly
// (§8 boundary behaviours).
func (d *Iso7816) Decode(buf *sample.Buffer, emit func(*frame.Raw)) error {
	if buf.Type() != sample.TypeRawLogic {
		return nil
	}
	if d.sampleRate == 0 {
		d.sampleRate = buf.SampleRate()
	}

	for {
		f, err := buf.Get()
		if err != nil {
			return nil //nolint:nilerr // ErrUnderflow just means "wait for more samples"
		}
		lvl := byte(0)
		if f > 0.5 {
			lvl = 1
		}
		d.clock++

		switch d.cstate {
		case charWaitStart:
			d.gapSamples++
			if d.haveSample && d.prevSample == 1 && lvl == 0 {
				d.cstate = charInProgress
				d.charSampleIdx = 0
				d.charHasError = false
				d.gapSamples = 0
				if len(d.bytes) == 0 {
					d.frameStart = d.clock - 1
				}
			} else {
				d.checkGapTimeout(emit)
			}
		case charInProgress:
			d.stepCharacter(lvl, emit)
		}
		d.haveSample = true
		d.prevSample = lvl
	}
}

// checkGapTimeout finalizes the in-progress frame when no start edge has
// appeared for longer than the phase's waiting-time budget.
func (d *Iso7816) checkGapTimeout(emit func(*frame.Raw)) {
	if len(d.bytes) == 0 {
		return
	}
	limit := d.bwt
	if d.phase == phaseATR {
		limit = d.cwt
	}
	if d.gapSamples > limit {
		d.finalizeFrame(emit)
	}
}

// stepCharacter advances the mid-bit sampler for the character currently
// being received: start bit at bit-period 0, data bits LSB-received-order
// at 1..8, parity at 9, stop bits at 10/11.
func (d *Iso7816) stepCharacter(lvl byte, emit func(*frame.Raw)) {
	bitPeriod := d.charSampleIdx / d.etu
	mid := d.charSampleIdx % d.etu
	if mid == d.etu/2 {
		switch {
		case bitPeriod == 0:
			if lvl != 0 {
				d.charHasError = true
			}
		case bitPeriod >= 1 && bitPeriod <= 8:
			d.dataBits[bitPeriod-1] = lvl
		case bitPeriod == 9:
			d.parityBit = lvl
		case bitPeriod == 10 || bitPeriod == 11:
			if lvl != 1 {
				d.charHasError = true
			}
		}
	}
	d.charSampleIdx++
	if bitPeriod == 11 && mid == d.etu/2 {
		d.completeCharacter(emit)
	}
}

// completeCharacter assembles the just-sampled bits into a byte (locking
// the convention on the very first character of a session, per ATR TS),
// appends it to the in-progress frame, and returns to waiting for the next
// start edge.
func (d *Iso7816) completeCharacter(emit func(*frame.Raw)) {
	d.cstate = charWaitStart
	d.sawAnyChar = true

	if !d.conventionLocked {
		d.lockConvention()
	}

	b, parityOK := decodeCharacter(d.dataBits, d.parityBit, d.convention)
	if !parityOK {
		d.frameFlags |= frame.FlagParityError
	}
	if d.charHasError {
		d.frameFlags |= frame.FlagSyncError
	}
	d.bytes = append(d.bytes, b)

	if len(d.bytes) == 1 && d.phase == phaseWaitReset {
		d.phase = phaseATR
	}
}

// lockConvention tries the direct decode first (TS == 0x3B), then the
// inverse decode (TS == 0x3F); if neither matches it defaults to direct and
// flags the frame as SyncError rather than guessing further (§4.F).
func (d *Iso7816) lockConvention() {
	d.conventionLocked = true
	direct, _ := decodeCharacter(d.dataBits, d.parityBit, ConventionDirect)
	if direct == 0x3B {
		d.convention = ConventionDirect
		return
	}
	inverse, _ := decodeCharacter(d.dataBits, d.parityBit, ConventionInverse)
	if inverse == 0x3F {
		d.convention = ConventionInverse
		return
	}
	d.convention = ConventionDirect
	d.frameFlags |= frame.FlagSyncError
}

// decodeCharacter assembles the 8 sampled data bits (in transmission order)
// and checks the parity bit against the ISO-7816 even-parity convention.
func decodeCharacter(bits [8]byte, parityBit byte, conv Convention) (byte, bool) {
	var b byte
	ones := 0
	if conv == ConventionDirect {
		for i := 0; i < 8; i++ {
			if bits[i] != 0 {
				b |= 1 << uint(i)
				ones++
			}
		}
	} else {
		for i := 0; i < 8; i++ {
			v := 1 - bits[i]
			if v != 0 {
				b |= 1 << uint(7-i)
				ones++
			}
		}
		if parityBit == 0 {
			parityBit = 1
		} else {
			parityBit = 0
		}
	}
	// Even parity: data bits + parity bit must sum to an even count of ones.
	parityOK := (ones+int(parityBit))%2 == 0
	return b, parityOK
}

func (d *Iso7816) sampleTime(clock uint64) time.Duration {
	return time.Duration(float64(clock) / d.sampleRate * float64(time.Second))
}

// finalizeFrame seals the accumulated bytes into a RawFrame, labels it by
// phase/direction, and resets the byte accumulator for the next one.
func (d *Iso7816) finalizeFrame(emit func(*frame.Raw)) {
	if len(d.bytes) == 0 {
		return
	}
	var ft frame.Type
	switch d.phase {
	case phaseATR:
		ft = frame.TypeATR
	default:
		if d.dir == dirRequest {
			ft = frame.TypeRequest
		} else {
			ft = frame.TypeResponse
		}
	}

	raw := frame.NewRaw(frame.Iso7816, ft, frame.PhaseApplication, 0)
	raw.Append(d.bytes...)
	raw.SetFlag(d.frameFlags)

	end := d.clock
	_ = raw.Finalize(d.sampleTime(d.frameStart), d.sampleTime(end), int64(d.frameStart), int64(end), d.sampleRate)
	emit(raw)

	if d.phase == phaseATR {
		d.phase = phaseBlockAssembly
		d.dir = dirRequest
	} else if d.dir == dirRequest {
		d.dir = dirResponse
	} else {
		d.dir = dirRequest
	}
	d.bytes = nil
	d.frameFlags = 0
}

// Flush finalizes any in-progress frame (used on cancellation or explicit
// stream end, §5 cancellation policy). The frame is marked Truncated only
// if a character was left mid-reception; a clean boundary after a whole
// character is not an error.
func (d *Iso7816) Flush(emit func(*frame.Raw)) {
	if len(d.bytes) == 0 {
		return
	}
	if d.cstate == charInProgress {
		d.frameFlags |= frame.FlagTruncated
	}
	d.finalizeFrame(emit)
}
