package parser

import (
	"fmt"

	"github.com/cwsl/nfcdecode/frame"
)

// NfcF parses FeliCa exchanges. Every FeliCa frame is self-describing
// (LEN byte, CMD byte, 8-byte IDm, then command data), so the dispatch is a
// single table keyed on CMD rather than a poll/listen pair of tables.
type NfcF struct{}

func NewNfcF() *NfcF { return &NfcF{} }

func (p *NfcF) Reset() {}

var felicaCmdNames = map[byte]string{
	0x00: "Polling",
	0x01: "PollingResponse",
	0x02: "RequestService",
	0x03: "RequestServiceResponse",
	0x04: "RequestResponse",
	0x05: "RequestResponseResponse",
	0x06: "ReadWithoutEncryption",
	0x07: "ReadWithoutEncryptionResponse",
	0x08: "WriteWithoutEncryption",
	0x09: "WriteWithoutEncryptionResponse",
	0x0C: "RequestSystemCode",
	0x0D: "RequestSystemCodeResponse",
}

func (p *NfcF) Parse(raw *frame.Raw) *frame.Protocol {
	payload := raw.ToByteArray()
	if len(payload) < 2 {
		return unknownFrame(raw, "Empty")
	}
	cmd := payload[1]
	name, known := felicaCmdNames[cmd]
	if !known {
		return unknownFrame(raw, fmt.Sprintf("CMD %02X", cmd))
	}

	root := frame.NewProtocolRoot(name, raw)
	root.AddChild("LEN", 0, 1, frame.UintValue(uint64(payload[0])), 0)
	root.AddChild("CMD", 1, 2, frame.UintValue(uint64(cmd)), 0)

	// Polling requests (0x00) carry a system code, not an IDm, since no card
	// has identified itself yet.
	if cmd == 0x00 {
		if len(payload) > 2 {
			root.AddChild("Data", 2, len(payload), frame.BytesValue(payload[2:]), 0)
		}
		return root
	}

	if len(payload) < 10 {
		root.AddChild("Data", 2, len(payload), frame.BytesValue(payload[2:]), 0)
		return root
	}
	root.AddChild("IDm", 2, 10, frame.BytesValue(payload[2:10]), 0)
	if len(payload) > 10 {
		root.AddChild("Data", 10, len(payload), frame.BytesValue(payload[10:]), 0)
	}
	return root
}
