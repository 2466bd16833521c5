package parser

import (
	"fmt"

	"github.com/cwsl/nfcdecode/frame"
)

// NfcB parses ISO/IEC 14443 Type B exchanges: REQB/WUPB, ATTRIB, HLTB, and
// the same ISO-DEP I/R/S block layer NFC-A uses (§4.G NFC-B dispatch).
type NfcB struct {
	isodep      isodep
	lastCmd     byte
	haveLastCmd bool
}

func NewNfcB() *NfcB { return &NfcB{} }

func (p *NfcB) Reset() {
	p.isodep.reset()
	p.haveLastCmd = false
}

func (p *NfcB) Parse(raw *frame.Raw) *frame.Protocol {
	payload := raw.ToByteArray()
	if len(payload) == 0 {
		return unknownFrame(raw, "Empty")
	}
	if raw.FrameType() == frame.TypeListen {
		return p.parseListen(raw, payload)
	}
	return p.parsePoll(raw, payload)
}

func (p *NfcB) parsePoll(raw *frame.Raw, payload []byte) *frame.Protocol {
	cmd := payload[0]
	p.lastCmd = cmd
	p.haveLastCmd = true

	switch {
	case cmd == 0x05:
		return reqbFrame(raw, payload)
	case cmd == 0x1D:
		return attribFrame(raw, payload)
	case cmd == 0x50:
		return frame.NewProtocolRoot("HLTB", raw)
	case cmd == 0x02 || cmd == 0x03 || cmd == 0x12 || cmd == 0x13:
		return p.isodep.handleIBlock(raw)
	case cmd == 0xA2 || cmd == 0xA3 || cmd == 0xAA || cmd == 0xAB:
		return handleRBlock(raw)
	case cmd == 0xC2 || cmd == 0xF2:
		return handleSBlock(raw)
	default:
		return unknownFrame(raw, fmt.Sprintf("CMD %02X", cmd))
	}
}

func (p *NfcB) parseListen(raw *frame.Raw, payload []byte) *frame.Protocol {
	cmd, have := p.lastCmd, p.haveLastCmd
	p.haveLastCmd = false

	switch {
	case have && cmd == 0x05:
		return atqbFrame(raw, payload)
	case have && cmd == 0x1D:
		return frame.NewProtocolRoot("ATTRIBResponse", raw)
	case have && (cmd == 0x02 || cmd == 0x03):
		return responseRoot(raw, payload)
	default:
		return unknownFrame(raw, "Response")
	}
}

func reqbFrame(raw *frame.Raw, payload []byte) *frame.Protocol {
	root := frame.NewProtocolRoot("REQB", raw)
	root.AddChild("CMD", 0, 1, frame.UintValue(uint64(payload[0])), 0)
	if len(payload) > 1 {
		root.AddChild("AFI", 1, 2, frame.UintValue(uint64(payload[1])), 0)
	}
	if len(payload) > 2 {
		root.AddChild("PARAM", 2, len(payload), frame.BytesValue(payload[2:]), 0)
	}
	return root
}

// atqbFrame decodes an ATQB (PUPI, Application Data, Protocol Info) when the
// payload carries all three fields; shorter captures still partition cleanly
// into whatever fields fit.
func atqbFrame(raw *frame.Raw, payload []byte) *frame.Protocol {
	root := frame.NewProtocolRoot("ATQB", raw)
	pos := 0
	if len(payload) >= 1+4 {
		root.AddChild("CMD", 0, 1, frame.UintValue(uint64(payload[0])), 0)
		root.AddChild("PUPI", 1, 5, frame.BytesValue(payload[1:5]), 0)
		pos = 5
	}
	if len(payload) >= pos+4 {
		root.AddChild("ApplicationData", pos, pos+4, frame.BytesValue(payload[pos:pos+4]), 0)
		pos += 4
	}
	if len(payload) > pos {
		root.AddChild("ProtocolInfo", pos, len(payload), frame.BytesValue(payload[pos:]), 0)
	}
	return root
}

func attribFrame(raw *frame.Raw, payload []byte) *frame.Protocol {
	root := frame.NewProtocolRoot("ATTRIB", raw)
	root.AddChild("CMD", 0, 1, frame.UintValue(uint64(payload[0])), 0)
	if len(payload) > 1 {
		root.AddChild("Param", 1, len(payload), frame.BytesValue(payload[1:]), 0)
	}
	return root
}
