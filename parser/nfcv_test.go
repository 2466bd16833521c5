package parser

import (
	"testing"

	"github.com/cwsl/nfcdecode/frame"
)

func TestNfcVParseInventory(t *testing.T) {
	p := NewNfcV()
	raw := frame.NewRaw(frame.NfcV, frame.TypePoll, frame.PhaseSelection, 26690)
	raw.Append(0x26, 0x01, 0x00, 0x00)
	finalizeRaw(t, raw, 4)

	tree := p.Parse(raw)
	if tree.Name != "Inventory" {
		t.Fatalf("expected Inventory, got %s", tree.Name)
	}
}

func TestNfcVParseAddressedReadSingleBlock(t *testing.T) {
	p := NewNfcV()
	raw := frame.NewRaw(frame.NfcV, frame.TypePoll, frame.PhaseApplication, 26690)
	uid := []byte{0xE0, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}
	payload := append([]byte{0x20, 0x20}, uid...)
	payload = append(payload, 0x05)
	raw.Append(payload...)
	finalizeRaw(t, raw, len(payload))

	tree := p.Parse(raw)
	if tree.Name != "ReadSingleBlock" {
		t.Fatalf("expected ReadSingleBlock, got %s", tree.Name)
	}
	uidChild := tree.Children[2]
	if uidChild.Name != "UID" || string(uidChild.Value.Bytes) != string(uid) {
		t.Fatalf("unexpected UID child: %+v", uidChild)
	}
}

func TestNfcVParseErrorResponseFlagsParseError(t *testing.T) {
	p := NewNfcV()
	req := frame.NewRaw(frame.NfcV, frame.TypePoll, frame.PhaseApplication, 26690)
	req.Append(0x26, 0x20, 0x00)
	finalizeRaw(t, req, 3)
	p.Parse(req)

	resp := frame.NewRaw(frame.NfcV, frame.TypeListen, frame.PhaseApplication, 26690)
	resp.Append(0x01, 0x0F)
	finalizeRaw(t, resp, 2)

	tree := p.Parse(resp)
	if !tree.Flags.Has(frame.FlagParseError) {
		t.Fatalf("expected FlagParseError on ISO-15693 error response")
	}
}
