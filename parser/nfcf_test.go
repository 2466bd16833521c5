package parser

import (
	"testing"

	"github.com/cwsl/nfcdecode/frame"
)

func TestNfcFParsePollingRequest(t *testing.T) {
	p := NewNfcF()
	raw := frame.NewRaw(frame.NfcF, frame.TypePoll, frame.PhaseSelection, 212000)
	raw.Append(0x06, 0x00, 0xFF, 0xFF, 0x01, 0x00)
	finalizeRaw(t, raw, 6)

	tree := p.Parse(raw)
	if tree.Name != "Polling" {
		t.Fatalf("expected Polling, got %s", tree.Name)
	}
	if tree.Children[0].Value.Uint != 0x06 {
		t.Fatalf("unexpected LEN: %d", tree.Children[0].Value.Uint)
	}
}

func TestNfcFParseReadWithoutEncryptionWithIDm(t *testing.T) {
	p := NewNfcF()
	raw := frame.NewRaw(frame.NfcF, frame.TypePoll, frame.PhaseApplication, 212000)
	idm := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	payload := append([]byte{0x10, 0x06}, idm...)
	payload = append(payload, 0x01, 0x09, 0x0B)
	raw.Append(payload...)
	finalizeRaw(t, raw, len(payload))

	tree := p.Parse(raw)
	if tree.Name != "ReadWithoutEncryption" {
		t.Fatalf("expected ReadWithoutEncryption, got %s", tree.Name)
	}
	idmChild := tree.Children[2]
	if idmChild.Name != "IDm" || string(idmChild.Value.Bytes) != string(idm) {
		t.Fatalf("unexpected IDm child: %+v", idmChild)
	}
}

func TestNfcFParseUnknownCmd(t *testing.T) {
	p := NewNfcF()
	raw := frame.NewRaw(frame.NfcF, frame.TypePoll, frame.PhaseApplication, 212000)
	raw.Append(0x02, 0xFE)
	finalizeRaw(t, raw, 2)

	tree := p.Parse(raw)
	if !tree.Flags.Has(frame.FlagParseError) {
		t.Fatalf("expected FlagParseError on unknown FeliCa command")
	}
}
