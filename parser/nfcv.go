package parser

import (
	"fmt"

	"github.com/cwsl/nfcdecode/frame"
)

// NfcV parses ISO/IEC 15693 VICC exchanges: the Flags/Command/[UID]/Param
// request layout and the Flags/Data response layout (§4.G NFC-V dispatch).
type NfcV struct {
	lastCmd     byte
	haveLastCmd bool
}

func NewNfcV() *NfcV { return &NfcV{} }

func (p *NfcV) Reset() { p.haveLastCmd = false }

var iso15693CmdNames = map[byte]string{
	0x01: "Inventory",
	0x20: "ReadSingleBlock",
	0x21: "WriteSingleBlock",
	0x22: "LockBlock",
	0x23: "ReadMultipleBlocks",
	0x24: "WriteMultipleBlocks",
	0x25: "Select",
	0x26: "ResetToReady",
	0x27: "WriteAFI",
	0x28: "LockAFI",
	0x29: "WriteDSFID",
	0x2A: "LockDSFID",
	0x2B: "GetSystemInfo",
	0x2C: "GetMultipleBlockSecurityStatus",
}

const vicdAddressedFlag = 0x20

func (p *NfcV) Parse(raw *frame.Raw) *frame.Protocol {
	payload := raw.ToByteArray()
	if len(payload) == 0 {
		return unknownFrame(raw, "Empty")
	}
	if raw.FrameType() == frame.TypeListen {
		return p.parseListen(raw, payload)
	}
	return p.parseRequest(raw, payload)
}

func (p *NfcV) parseRequest(raw *frame.Raw, payload []byte) *frame.Protocol {
	if len(payload) < 2 {
		return unknownFrame(raw, "Short")
	}
	flags, cmd := payload[0], payload[1]
	p.lastCmd = cmd
	p.haveLastCmd = true

	name, known := iso15693CmdNames[cmd]
	if !known {
		return unknownFrame(raw, fmt.Sprintf("CMD %02X", cmd))
	}

	root := frame.NewProtocolRoot(name, raw)
	root.AddChild("Flags", 0, 1, frame.UintValue(uint64(flags)), 0)
	root.AddChild("CMD", 1, 2, frame.UintValue(uint64(cmd)), 0)

	pos := 2
	if flags&vicdAddressedFlag != 0 && len(payload) >= pos+8 {
		root.AddChild("UID", pos, pos+8, frame.BytesValue(payload[pos:pos+8]), 0)
		pos += 8
	}
	if len(payload) > pos {
		root.AddChild("Param", pos, len(payload), frame.BytesValue(payload[pos:]), 0)
	}
	return root
}

func (p *NfcV) parseListen(raw *frame.Raw, payload []byte) *frame.Protocol {
	have := p.haveLastCmd
	p.haveLastCmd = false
	if !have {
		return unknownFrame(raw, "Response")
	}
	if len(payload) < 1 {
		return unknownFrame(raw, "Empty")
	}

	root := frame.NewProtocolRoot("Response", raw)
	flags := payload[0]
	root.AddChild("Flags", 0, 1, frame.UintValue(uint64(flags)), 0)
	if flags&0x01 != 0 {
		root.Flags |= frame.FlagParseError
		if len(payload) > 1 {
			root.AddChild("Error", 1, len(payload), frame.BytesValue(payload[1:]), 0)
		}
		return root
	}
	if len(payload) > 1 {
		root.AddChild("Data", 1, len(payload), frame.BytesValue(payload[1:]), 0)
	}
	return root
}
