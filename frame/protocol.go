package frame

import "fmt"

// ValueKind discriminates the sum type carried by a Protocol field's Value.
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueBytes
	ValueUint
	ValueEnum
)

// Value is a small sum type: bytes | uint64 | enum label. Exactly one of the
// payload fields is meaningful, selected by Kind.
type Value struct {
	Kind  ValueKind
	Bytes []byte
	Uint  uint64
	Enum  string
}

// BytesValue wraps a byte slice as a Value.
func BytesValue(b []byte) Value { return Value{Kind: ValueBytes, Bytes: b} }

// UintValue wraps a uint64 as a Value.
func UintValue(u uint64) Value { return Value{Kind: ValueUint, Uint: u} }

// EnumValue wraps a decoded enum label as a Value.
func EnumValue(s string) Value { return Value{Kind: ValueEnum, Enum: s} }

func (v Value) String() string {
	switch v.Kind {
	case ValueBytes:
		return fmt.Sprintf("% X", v.Bytes)
	case ValueUint:
		return fmt.Sprintf("%d", v.Uint)
	case ValueEnum:
		return v.Enum
	default:
		return ""
	}
}

// ByteRange is a [Start,End) span into the owning RawFrame's payload.
type ByteRange struct {
	Start int
	End   int
}

// Len returns End-Start.
func (r ByteRange) Len() int { return r.End - r.Start }

// Protocol is a node in the field tree built by a parser over a RawFrame.
// The root holds the full RawFrame payload; children partition it into
// named sub-fields. Children are exclusively owned by their parent and the
// tree contains no cycles.
type Protocol struct {
	Name      string
	Flags     Flags
	Value     Value
	ByteRange ByteRange
	Children  []*Protocol

	raw *Raw
}

// NewProtocolRoot creates the root node for a parsed RawFrame, holding the
// frame's full payload as its Value.
func NewProtocolRoot(name string, raw *Raw) *Protocol {
	payload := raw.ToByteArray()
	return &Protocol{
		Name:      name,
		Flags:     raw.FlagBits(),
		Value:     BytesValue(payload),
		ByteRange: ByteRange{Start: 0, End: len(payload)},
		raw:       raw,
	}
}

// AddChild appends a child field spanning [start,end) of the parent's
// payload range, with the given value and flags.
func (p *Protocol) AddChild(name string, start, end int, value Value, flags Flags) *Protocol {
	child := &Protocol{
		Name:      name,
		Flags:     flags,
		Value:     value,
		ByteRange: ByteRange{Start: start, End: end},
		raw:       p.raw,
	}
	p.Children = append(p.Children, child)
	return child
}

// RawFrame returns the RawFrame this tree was parsed from.
func (p *Protocol) RawFrame() *Raw { return p.raw }

// IsLeaf reports whether this node has no children.
func (p *Protocol) IsLeaf() bool { return len(p.Children) == 0 }

// ToBytes flattens all leaves, in order, into a single byte slice. For a
// well-formed tree over a RawFrame this equals RawFrame.ToByteArray().
func (p *Protocol) ToBytes() []byte {
	if p.IsLeaf() {
		if p.Value.Kind == ValueBytes {
			out := make([]byte, len(p.Value.Bytes))
			copy(out, p.Value.Bytes)
			return out
		}
		return nil
	}
	var out []byte
	for _, c := range p.Children {
		out = append(out, c.ToBytes()...)
	}
	return out
}

// WalkLeaves calls fn for every leaf node in left-to-right order.
func (p *Protocol) WalkLeaves(fn func(*Protocol)) {
	if p.IsLeaf() {
		fn(p)
		return
	}
	for _, c := range p.Children {
		c.WalkLeaves(fn)
	}
}
