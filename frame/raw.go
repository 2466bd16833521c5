// Package frame implements the two frame representations that flow out of
// the demodulators and parsers: RawFrame (raw bytes plus timing/flags) and
// ProtocolFrame (a labelled field tree over a RawFrame's payload).
package frame

import (
	"fmt"
	"time"
)

// Tech identifies the wire technology a RawFrame was recovered from.
type Tech int

const (
	NfcA Tech = iota
	NfcB
	NfcF
	NfcV
	Iso7816
)

func (t Tech) String() string {
	switch t {
	case NfcA:
		return "NfcA"
	case NfcB:
		return "NfcB"
	case NfcF:
		return "NfcF"
	case NfcV:
		return "NfcV"
	case Iso7816:
		return "Iso7816"
	default:
		return "Unknown"
	}
}

// Type is the kind of exchange a RawFrame represents.
type Type int

const (
	TypePoll Type = iota
	TypeListen
	TypeCarrierOn
	TypeCarrierOff
	TypeATR
	TypeRequest
	TypeResponse
	TypeExchange
)

func (t Type) String() string {
	switch t {
	case TypePoll:
		return "PollFrame"
	case TypeListen:
		return "ListenFrame"
	case TypeCarrierOn:
		return "NfcCarrierOn"
	case TypeCarrierOff:
		return "NfcCarrierOff"
	case TypeATR:
		return "IsoATRFrame"
	case TypeRequest:
		return "IsoRequestFrame"
	case TypeResponse:
		return "IsoResponseFrame"
	case TypeExchange:
		return "ExchangeFrame"
	default:
		return "Unknown"
	}
}

// Phase is the protocol phase a frame belongs to.
type Phase int

const (
	PhaseCarrier Phase = iota
	PhaseSelection
	PhaseApplication
)

// Flags is a bitset of frame-level integrity/content markers.
type Flags uint16

const (
	FlagShort Flags = 1 << iota
	FlagEncrypted
	FlagTruncated
	FlagParityError
	FlagCrcError
	FlagSyncError
	// FlagParseError marks a ProtocolFrame whose parser met an unknown
	// opcode or malformed structure (§7 Decode error kind). It never
	// appears on a RawFrame, only on the Protocol tree built over one.
	FlagParseError
)

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

func (f Flags) String() string {
	names := []struct {
		bit  Flags
		name string
	}{
		{FlagShort, "Short"},
		{FlagEncrypted, "Encrypted"},
		{FlagTruncated, "Truncated"},
		{FlagParityError, "ParityError"},
		{FlagCrcError, "CrcError"},
		{FlagSyncError, "SyncError"},
		{FlagParseError, "ParseError"},
	}
	s := ""
	for _, n := range names {
		if f.Has(n.bit) {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	if s == "" {
		return "none"
	}
	return s
}

// Raw is a RawFrame: mutable while building via Append/SetFlag, sealed by
// Finalize. After Finalize all fields are immutable.
type Raw struct {
	tech      Tech
	frameType Type
	phase     Phase
	flags     Flags
	rate      int

	sampleStart int64
	sampleEnd   int64
	timeStart   time.Duration
	timeEnd     time.Duration
	sampleRate  float64

	payload  []byte
	final    bool
}

// NewRaw starts building a RawFrame for the given technology/type/phase at
// the given bitrate (bits/sec, 0 if not yet known).
func NewRaw(tech Tech, frameType Type, phase Phase, rate int) *Raw {
	return &Raw{tech: tech, frameType: frameType, phase: phase, rate: rate}
}

// Append adds bytes to the frame's payload. Panics if called after Finalize.
func (r *Raw) Append(b ...byte) {
	if r.final {
		panic("frame: Append after Finalize")
	}
	r.payload = append(r.payload, b...)
}

// SetFlag ORs a flag bit into the frame. Panics if called after Finalize.
func (r *Raw) SetFlag(f Flags) {
	if r.final {
		panic("frame: SetFlag after Finalize")
	}
	r.flags |= f
}

// Finalize seals the frame with its timing and sample-range metadata,
// validating the invariants from the data model: time_start <= time_end and
// sample_end - sample_start == round((time_end - time_start) * sample_rate).
func (r *Raw) Finalize(timeStart, timeEnd time.Duration, sampleStart, sampleEnd int64, sampleRate float64) error {
	if r.final {
		return fmt.Errorf("frame: already finalized")
	}
	if timeEnd < timeStart {
		return fmt.Errorf("frame: time_end %v before time_start %v", timeEnd, timeStart)
	}
	if sampleEnd < sampleStart {
		return fmt.Errorf("frame: sample_end %d before sample_start %d", sampleEnd, sampleStart)
	}
	got := sampleEnd - sampleStart
	want := roundToInt64((timeEnd - timeStart).Seconds() * sampleRate)
	if sampleRate > 0 && got != want {
		return fmt.Errorf("frame: sample_end-sample_start=%d does not match round((time_end-time_start)*sample_rate)=%d", got, want)
	}

	r.timeStart = timeStart
	r.timeEnd = timeEnd
	r.sampleStart = sampleStart
	r.sampleEnd = sampleEnd
	r.sampleRate = sampleRate
	r.final = true
	return nil
}

func roundToInt64(f float64) int64 {
	if f >= 0 {
		return int64(f + 0.5)
	}
	return int64(f - 0.5)
}

// Tech, FrameType, PhaseOf, FlagBits, Rate, SampleStart, SampleEnd, TimeStart,
// TimeEnd are read accessors, valid before or after Finalize (the payload
// and flags may still change before Finalize; timing is zero until then).
func (r *Raw) Tech() Tech             { return r.tech }
func (r *Raw) FrameType() Type        { return r.frameType }
func (r *Raw) PhaseOf() Phase         { return r.phase }
func (r *Raw) FlagBits() Flags        { return r.flags }
func (r *Raw) Rate() int              { return r.rate }
func (r *Raw) SampleStart() int64     { return r.sampleStart }
func (r *Raw) SampleEnd() int64       { return r.sampleEnd }
func (r *Raw) TimeStart() time.Duration { return r.timeStart }
func (r *Raw) TimeEnd() time.Duration   { return r.timeEnd }
func (r *Raw) Finalized() bool        { return r.final }

// ToByteArray returns the payload bytes in order.
func (r *Raw) ToByteArray() []byte {
	out := make([]byte, len(r.payload))
	copy(out, r.payload)
	return out
}

// Len returns the number of payload bytes appended so far.
func (r *Raw) Len() int { return len(r.payload) }
