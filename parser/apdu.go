package parser

import "github.com/cwsl/nfcdecode/frame"

// ParseAPDU decodes a command APDU (CLA INS P1 P2 [Lc Data] [Le]) as a
// Protocol subtree, attached by the caller under the frame that carried it
// (an ISO-DEP I-block reassembly or a raw ISO-7816 request). Returns nil if
// data is too short to hold at least CLA/INS/P1/P2.
func ParseAPDU(parent *frame.Protocol, base int, data []byte) *frame.Protocol {
	if len(data) < 4 {
		return nil
	}
	// APDU itself is never a leaf (it always gets at least CLA/INS/P1/P2
	// below), so this BytesValue is cosmetic for display only -- ToBytes
	// walks the children, which is what has to add up to data.
	apdu := parent.AddChild("APDU", base, base+len(data), frame.BytesValue(data), 0)
	apdu.AddChild("CLA", base+0, base+1, frame.BytesValue(data[0:1]), 0)
	apdu.AddChild("INS", base+1, base+2, frame.BytesValue(data[1:2]), 0)
	apdu.AddChild("P1", base+2, base+3, frame.BytesValue(data[2:3]), 0)
	apdu.AddChild("P2", base+3, base+4, frame.BytesValue(data[3:4]), 0)

	rest := data[4:]
	offset := base + 4
	switch {
	case len(rest) == 0:
		// Case 1: no data, no Le.
	case len(rest) == 1:
		apdu.AddChild("Le", offset, offset+1, frame.BytesValue(rest[0:1]), 0)
	default:
		lc := int(rest[0])
		if lc > len(rest)-1 {
			lc = len(rest) - 1
		}
		apdu.AddChild("Lc", offset, offset+1, frame.BytesValue(rest[0:1]), 0)
		dataStart := offset + 1
		dataEnd := dataStart + lc
		apdu.AddChild("Data", dataStart, dataEnd, frame.BytesValue(rest[1:1+lc]), 0)
		if dataEnd < base+len(data) {
			apdu.AddChild("Le", dataEnd, base+len(data), frame.BytesValue(data[len(data)-1:len(data)]), 0)
		}
	}
	return apdu
}

// StatusWord looks up the human label for an ISO-7816 SW1/SW2 pair, falling
// back to "Unknown" for anything not in the common dictionary (§12).
func StatusWord(sw1, sw2 byte) string {
	if sw1 == 0x90 && sw2 == 0x00 {
		return "Success"
	}
	if sw1 == 0x61 {
		return "MoreDataAvailable"
	}
	if sw1 == 0x6C {
		return "WrongLeExactLeReturned"
	}
	switch uint16(sw1)<<8 | uint16(sw2) {
	case 0x6700:
		return "WrongLength"
	case 0x6982:
		return "SecurityStatusNotSatisfied"
	case 0x6983:
		return "AuthMethodBlocked"
	case 0x6985:
		return "ConditionsNotSatisfied"
	case 0x6986:
		return "CommandNotAllowed"
	case 0x6A80:
		return "IncorrectParameters"
	case 0x6A82:
		return "FileNotFound"
	case 0x6A86:
		return "IncorrectP1P2"
	case 0x6A88:
		return "ReferencedDataNotFound"
	case 0x6D00:
		return "InstructionNotSupported"
	case 0x6E00:
		return "ClassNotSupported"
	case 0x6F00:
		return "NoPreciseDiagnosis"
	default:
		return "Unknown"
	}
}

// ParseResponse decodes a 2+ byte R-APDU/ISO-7816 response trailer
// (Data..., SW1, SW2) as a Protocol subtree.
func ParseResponse(parent *frame.Protocol, base int, data []byte) *frame.Protocol {
	if len(data) < 2 {
		return nil
	}
	resp := parent.AddChild("Response", base, base+len(data), frame.BytesValue(data), 0)
	if len(data) > 2 {
		resp.AddChild("Data", base, base+len(data)-2, frame.BytesValue(data[:len(data)-2]), 0)
	}
	sw1, sw2 := data[len(data)-2], data[len(data)-1]
	resp.AddChild("SW1", base+len(data)-2, base+len(data)-1, frame.UintValue(uint64(sw1)), 0)
	resp.AddChild("SW2", base+len(data)-1, base+len(data), frame.UintValue(uint64(sw2)), 0)
	resp.Value = frame.EnumValue(StatusWord(sw1, sw2))
	return resp
}
