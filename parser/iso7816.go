package parser

import "github.com/cwsl/nfcdecode/frame"

// Iso7816 parses ISO/IEC 7816 UART exchanges: the ATR, and the
// request/response APDU pair that follows it (§4.G ISO-7816 dispatch). The
// character-level UART demodulation (direct/inverse convention, parity) has
// already happened by the time a RawFrame reaches this parser.
type Iso7816 struct{}

func NewIso7816() *Iso7816 { return &Iso7816{} }

func (p *Iso7816) Reset() {}

func (p *Iso7816) Parse(raw *frame.Raw) *frame.Protocol {
	payload := raw.ToByteArray()
	if len(payload) == 0 {
		return unknownFrame(raw, "Empty")
	}

	switch raw.FrameType() {
	case frame.TypeATR:
		return atrFrame(raw, payload)
	case frame.TypeRequest:
		root := frame.NewProtocolRoot("Request", raw)
		if apdu := ParseAPDU(root, 0, payload); apdu == nil {
			root.Flags |= frame.FlagParseError
			root.AddChild("Raw", 0, len(payload), frame.BytesValue(payload), 0)
		}
		return root
	case frame.TypeResponse:
		return responseRoot(raw, payload)
	default:
		return unknownFrame(raw, "Unknown")
	}
}

func tsConvention(ts byte) string {
	switch ts {
	case 0x3B:
		return "direct"
	case 0x3F:
		return "inverse"
	default:
		return "unknown"
	}
}

// atrFrame splits the Answer-To-Reset into TS, T0 and the historical bytes
// that follow; a trailing TCK check byte is only present when T0's interface
// bits indicate T=1 is ever negotiated, so its absence (as in a plain T=0
// ATR) is not flagged as an error.
func atrFrame(raw *frame.Raw, payload []byte) *frame.Protocol {
	root := frame.NewProtocolRoot("ATR", raw)
	root.AddChild("TS", 0, 1, frame.EnumValue(tsConvention(payload[0])), 0)
	if len(payload) > 1 {
		root.AddChild("T0", 1, 2, frame.UintValue(uint64(payload[1])), 0)
	}
	if len(payload) > 2 {
		root.AddChild("HistoricalBytes", 2, len(payload), frame.BytesValue(payload[2:]), 0)
	}
	return root
}
