package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func buildAtqaFrame(t *testing.T) *Raw {
	t.Helper()
	r := NewRaw(NfcA, TypeListen, PhaseSelection, 106000)
	r.Append(0x04, 0x00)
	require.NoError(t, r.Finalize(time.Millisecond, time.Millisecond+10*time.Microsecond, 10000, 10100, 10e6))
	return r
}

func TestProtocolFrameToBytesMatchesPayload(t *testing.T) {
	raw := buildAtqaFrame(t)
	root := NewProtocolRoot("ATQA", raw)
	root.AddChild("UID-Size", 0, 1, EnumValue("double"), 0)
	root.AddChild("Anticoll", 1, 2, EnumValue("single"), 0)

	require.Equal(t, raw.ToByteArray(), root.ToBytes())
}

func TestProtocolFrameLeafWithNoChildrenReturnsItsBytes(t *testing.T) {
	raw := buildAtqaFrame(t)
	root := NewProtocolRoot("CMD 04", raw)
	child := root.AddChild("raw", 0, 2, BytesValue(raw.ToByteArray()), 0)

	require.Equal(t, raw.ToByteArray(), root.ToBytes())
	require.True(t, child.IsLeaf())
}

func TestWalkLeavesOrder(t *testing.T) {
	raw := buildAtqaFrame(t)
	root := NewProtocolRoot("ATQA", raw)
	root.AddChild("UID-Size", 0, 1, EnumValue("double"), 0)
	root.AddChild("Anticoll", 1, 2, EnumValue("single"), 0)

	var names []string
	root.WalkLeaves(func(p *Protocol) { names = append(names, p.Name) })
	require.Equal(t, []string{"UID-Size", "Anticoll"}, names)
}
