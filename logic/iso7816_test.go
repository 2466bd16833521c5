package logic

import (
	"testing"

	"github.com/cwsl/nfcdecode/frame"
	"github.com/cwsl/nfcdecode/sample"
	"github.com/stretchr/testify/require"
)

func appendLevel(buf []float32, lvl float32, n int) []float32 {
	for i := 0; i < n; i++ {
		buf = append(buf, lvl)
	}
	return buf
}

// appendUARTChar appends one direct-convention ISO-7816 character: a low
// start bit, 8 data bits LSB-first, an even-parity bit, and two high stop
// bits, each held for etu samples.
func appendUARTChar(buf []float32, b byte, etu int) []float32 {
	buf = appendLevel(buf, 0, etu)
	ones := 0
	for i := 0; i < 8; i++ {
		bit := (b >> uint(i)) & 1
		lvl := float32(0)
		if bit != 0 {
			lvl = 1
			ones++
		}
		buf = appendLevel(buf, lvl, etu)
	}
	buf = appendLevel(buf, float32(ones%2), etu)
	buf = appendLevel(buf, 1, etu)
	buf = appendLevel(buf, 1, etu)
	return buf
}

func makeLogicBuffer(t *testing.T, levels []float32, rate float64) *sample.Buffer {
	t.Helper()
	buf, err := sample.New(len(levels), 1, sample.TypeRawLogic, rate, 0)
	require.NoError(t, err)
	buf.Put(levels)
	buf.Flip()
	return buf
}

// TestIso7816DirectConventionATR exercises a 3-byte direct-convention ATR
// (TS=0x3B, T0=0x90, TCK=0x00), 372-cycle ETU at 1MS/s.
func TestIso7816DirectConventionATR(t *testing.T) {
	const etu = 372
	var levels []float32
	levels = appendLevel(levels, 1, etu)
	levels = appendUARTChar(levels, 0x3B, etu)
	levels = appendUARTChar(levels, 0x90, etu)
	levels = appendUARTChar(levels, 0x00, etu)

	buf := makeLogicBuffer(t, levels, 1e6)
	d := NewIso7816(etu)

	var frames []*frame.Raw
	require.NoError(t, d.Decode(buf, func(f *frame.Raw) { frames = append(frames, f) }))
	require.Empty(t, frames, "ATR frame should not close until flushed or a gap timeout")
	d.Flush(func(f *frame.Raw) { frames = append(frames, f) })

	require.Len(t, frames, 1)
	f := frames[0]
	require.Equal(t, frame.Iso7816, f.Tech())
	require.Equal(t, frame.TypeATR, f.FrameType())
	require.Equal(t, []byte{0x3B, 0x90, 0x00}, f.ToByteArray())
	require.False(t, f.FlagBits().Has(frame.FlagTruncated))
	require.False(t, f.FlagBits().Has(frame.FlagParityError))
	require.Equal(t, ConventionDirect, d.convention)
}

func TestIso7816FlushMidCharacterMarksTruncated(t *testing.T) {
	const etu = 50
	var levels []float32
	levels = appendLevel(levels, 1, etu)
	levels = appendUARTChar(levels, 0x3B, etu)
	// Start a second character but cut it off after the start bit only.
	levels = appendLevel(levels, 0, etu/2)

	buf := makeLogicBuffer(t, levels, 1e6)
	d := NewIso7816(etu)

	var frames []*frame.Raw
	require.NoError(t, d.Decode(buf, func(f *frame.Raw) { frames = append(frames, f) }))
	require.Empty(t, frames)
	d.Flush(func(f *frame.Raw) { frames = append(frames, f) })

	require.Len(t, frames, 1)
	require.True(t, frames[0].FlagBits().Has(frame.FlagTruncated))
	require.Equal(t, []byte{0x3B}, frames[0].ToByteArray())
}

func TestIso7816ParityErrorStillEmits(t *testing.T) {
	const etu = 50
	var levels []float32
	levels = appendLevel(levels, 1, etu)
	levels = appendUARTChar(levels, 0x3B, etu)
	// Second character with a flipped parity bit.
	bad := appendUARTChar(nil, 0x90, etu)
	parityIdx := 9 * etu
	for i := parityIdx; i < parityIdx+etu; i++ {
		if bad[i] == 0 {
			bad[i] = 1
		} else {
			bad[i] = 0
		}
	}
	levels = append(levels, bad...)

	buf := makeLogicBuffer(t, levels, 1e6)
	d := NewIso7816(etu)
	var frames []*frame.Raw
	require.NoError(t, d.Decode(buf, func(f *frame.Raw) { frames = append(frames, f) }))
	d.Flush(func(f *frame.Raw) { frames = append(frames, f) })

	require.Len(t, frames, 1)
	require.True(t, frames[0].FlagBits().Has(frame.FlagParityError))
	require.Equal(t, []byte{0x3B, 0x90}, frames[0].ToByteArray())
}
