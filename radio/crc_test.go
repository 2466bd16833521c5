package radio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var checkVector = []byte("123456789")

func TestCrcACheckValue(t *testing.T) {
	require.Equal(t, uint16(0xBF05), CrcA(checkVector))
}

func TestCrcBCheckValue(t *testing.T) {
	require.Equal(t, uint16(0x906E), CrcB(checkVector))
}

func TestCrcFCheckValue(t *testing.T) {
	require.Equal(t, uint16(0x31C3), CrcF(checkVector))
}

func TestCheckCrcARoundTrip(t *testing.T) {
	framed := AppendCrcA([]byte{0x04, 0x00})
	require.True(t, CheckCrcA(framed))
	framed[0] ^= 0xFF
	require.False(t, CheckCrcA(framed))
}

func TestCheckCrcBRoundTrip(t *testing.T) {
	framed := AppendCrcB([]byte{0x05, 0x00, 0x08})
	require.True(t, CheckCrcB(framed))
}

func TestCheckCrcFRoundTrip(t *testing.T) {
	framed := AppendCrcF([]byte{0x01, 0x00})
	require.True(t, CheckCrcF(framed))
}

func TestOddParity(t *testing.T) {
	// 0x26 = 0b00100110 has 3 set bits (odd) -> parity bit 0.
	require.Equal(t, byte(0), OddParity(0x26))
	// 0x00 has 0 set bits (even) -> parity bit 1.
	require.Equal(t, byte(1), OddParity(0x00))
}
