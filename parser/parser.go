// Package parser implements the per-technology protocol parsers (§4.G):
// command/response dispatchers that lift a RawFrame's payload into a
// labelled ProtocolFrame field tree, including ISO-DEP chaining and the
// shared APDU/status-word decoders.
package parser

import "github.com/cwsl/nfcdecode/frame"

// Parser is the interface every per-technology protocol parser implements.
type Parser interface {
	// Reset drops per-session state (chained I-block buffers, the last
	// request opcode used to interpret a following Listen/Response frame).
	Reset()
	// Parse dispatches on the RawFrame's payload and produces a field tree.
	Parse(raw *frame.Raw) *frame.Protocol
}

// Registry dispatches a RawFrame to the parser registered for its Tech.
type Registry struct {
	parsers map[frame.Tech]Parser
}

// NewRegistry builds a registry with the stock parser for every technology.
func NewRegistry() *Registry {
	return &Registry{parsers: map[frame.Tech]Parser{
		frame.NfcA:    NewNfcA(),
		frame.NfcB:    NewNfcB(),
		frame.NfcF:    NewNfcF(),
		frame.NfcV:    NewNfcV(),
		frame.Iso7816: NewIso7816(),
	}}
}

// Parse routes raw to its technology's parser. Returns nil if no parser is
// registered for raw.Tech().
func (r *Registry) Parse(raw *frame.Raw) *frame.Protocol {
	p, ok := r.parsers[raw.Tech()]
	if !ok {
		return nil
	}
	return p.Parse(raw)
}

// ResetAll drops every registered parser's per-session state.
func (r *Registry) ResetAll() {
	for _, p := range r.parsers {
		p.Reset()
	}
}

// unknownFrame builds the fallback "CMD xx" root + raw-payload child used
// by every parser for an unrecognised opcode (§4.G, §7 Decode error kind).
func unknownFrame(raw *frame.Raw, label string) *frame.Protocol {
	payload := raw.ToByteArray()
	root := frame.NewProtocolRoot(label, raw)
	root.Flags |= frame.FlagParseError
	root.AddChild("Raw", 0, len(payload), frame.BytesValue(payload), raw.FlagBits())
	return root
}
