package parser

import (
	"testing"

	"github.com/cwsl/nfcdecode/frame"
)

// S3: a direct-convention ATR (TS=0x3B, T0 present, no TCK) parses into TS
// and T0 fields without a trailing historical/TCK mismatch.
func TestIso7816ParseS3Atr(t *testing.T) {
	p := NewIso7816()
	raw := frame.NewRaw(frame.Iso7816, frame.TypeATR, frame.PhaseCarrier, 0)
	raw.Append(0x3B, 0x90, 0x00)
	finalizeRaw(t, raw, 3)

	tree := p.Parse(raw)
	if tree.Name != "ATR" {
		t.Fatalf("expected ATR, got %s", tree.Name)
	}
	if tree.Children[0].Value.Enum != "direct" {
		t.Fatalf("expected direct convention, got %s", tree.Children[0].Value.Enum)
	}
	if tree.Children[1].Value.Uint != 0x90 {
		t.Fatalf("unexpected T0: %d", tree.Children[1].Value.Uint)
	}
}

func TestIso7816ParseRequestAndResponse(t *testing.T) {
	p := NewIso7816()

	req := frame.NewRaw(frame.Iso7816, frame.TypeRequest, frame.PhaseApplication, 0)
	req.Append(0x00, 0xA4, 0x04, 0x00, 0x02, 0x3F, 0x00)
	finalizeRaw(t, req, 7)

	reqTree := p.Parse(req)
	if reqTree.Name != "Request" {
		t.Fatalf("expected Request, got %s", reqTree.Name)
	}
	apdu := reqTree.Children[0]
	if apdu.Name != "APDU" {
		t.Fatalf("expected APDU child, got %s", apdu.Name)
	}

	resp := frame.NewRaw(frame.Iso7816, frame.TypeResponse, frame.PhaseApplication, 0)
	resp.Append(0x90, 0x00)
	finalizeRaw(t, resp, 2)

	respTree := p.Parse(resp)
	if respTree.Name != "Response" || respTree.Value.Enum != "Success" {
		t.Fatalf("unexpected response tree: %+v", respTree)
	}
}
