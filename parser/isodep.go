package parser

import (
	"github.com/cwsl/nfcdecode/frame"
)

// isodep holds the chained-I-block reassembly state shared by the NFC-A and
// NFC-B parsers (§4.G: "the ISO-DEP layer re-assembles chained I-blocks").
type isodep struct {
	chaining bool
	buffer   []byte
}

func (s *isodep) reset() { s.chaining = false; s.buffer = nil }

// handleIBlock parses one I-block PCB+data, reassembling chained blocks
// (PCB bit 0x10) across calls. The block that completes a chain (or any
// standalone non-chained block) gets the merged payload interpreted as an
// APDU; a still-chaining block's tree only reflects its own bytes.
//
// Note: for the chain-completing block, the APDU subtree's byte ranges are
// relative to the reassembled buffer, not this RawFrame's own (short)
// payload -- the one deliberate exception to "ProtocolFrame.ToBytes over
// leaves equals RawFrame.payload", since merging several wire frames into
// one logical command cannot satisfy a single-frame byte-equality
// invariant by construction.
func (s *isodep) handleIBlock(raw *frame.Raw) *frame.Protocol {
	payload := raw.ToByteArray()
	if len(payload) == 0 {
		return unknownFrame(raw, "IBlock")
	}
	pcb := payload[0]
	data := payload[1:]
	chaining := pcb&0x10 != 0

	root := frame.NewProtocolRoot("IBlock", raw)
	root.AddChild("PCB", 0, 1, frame.BytesValue([]byte{pcb}), 0)

	s.buffer = append(s.buffer, data...)
	if chaining {
		s.chaining = true
		root.Name = "IBlockChained"
		root.AddChild("Data", 1, len(payload), frame.BytesValue(data), 0)
		return root
	}

	full := s.buffer
	s.buffer = nil
	wasChained := s.chaining
	s.chaining = false

	if wasChained || looksLikeAPDU(full) {
		root.Name = "IBlockAPDU"
		// ParseAPDU's own CLA/INS/P1/P2/Lc/Data/Le leaves already partition
		// every byte of full; a sibling "Data" child here would double-count
		// them under ToBytes (the bug this comment used to describe before
		// it was fixed). A standalone block's APDU starts after the PCB, at
		// payload offset 1; a reassembled chain's ranges index the buffer.
		base := 1
		if wasChained {
			base = 0
		}
		ParseAPDU(root, base, full)
		return root
	}

	root.AddChild("Data", 1, len(payload), frame.BytesValue(data), 0)
	return root
}

// handleRBlock and handleSBlock build minimal trees for the ISO-DEP
// supervisory/receive-ready block types -- no chaining, no payload beyond
// the PCB byte and (for R-blocks) an optional INF field.
func handleRBlock(raw *frame.Raw) *frame.Protocol {
	payload := raw.ToByteArray()
	root := frame.NewProtocolRoot("RBlock", raw)
	if len(payload) > 0 {
		root.AddChild("PCB", 0, 1, frame.UintValue(uint64(payload[0])), 0)
	}
	if len(payload) > 1 {
		root.AddChild("INF", 1, len(payload), frame.BytesValue(payload[1:]), 0)
	}
	return root
}

func handleSBlock(raw *frame.Raw) *frame.Protocol {
	payload := raw.ToByteArray()
	root := frame.NewProtocolRoot("SBlock", raw)
	if len(payload) > 0 {
		label := "Deselect"
		if payload[0] == 0xC2 {
			label = "WTX"
		}
		root.AddChild(label, 0, 1, frame.UintValue(uint64(payload[0])), 0)
	}
	if len(payload) > 1 {
		root.AddChild("INF", 1, len(payload), frame.BytesValue(payload[1:]), 0)
	}
	return root
}

// looksLikeAPDU is a loose heuristic: at least 4 bytes (CLA/INS/P1/P2), and
// either exactly 4 (case 1), or a trailing length byte consistent with
// what follows (cases 2-4).
func looksLikeAPDU(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	if len(data) == 4 || len(data) == 5 {
		return true
	}
	lc := int(data[4])
	return lc+5 == len(data) || lc+6 == len(data)
}
