package radio

import (
	"testing"

	"github.com/cwsl/nfcdecode/decoderstatus"
	"github.com/cwsl/nfcdecode/frame"
	"github.com/cwsl/nfcdecode/sample"
	"github.com/stretchr/testify/require"
)

const nfcaTestSampleRate = 2_120_000 // 106000 * 20, so one ETU is exactly 20 samples

// appendBitWindow appends one ETU (20 samples) of synthetic I/Q magnitude
// encoding a single Manchester-style bit: bit=1 is a dip in the first half
// of the window and full carrier in the second half (and vice-versa for
// bit=0), matching manchesterScore's +1/-1 template.
func appendBitWindow(iq []float32, bit byte) []float32 {
	half := 10
	for i := 0; i < half; i++ {
		if bit == 1 {
			iq = append(iq, 0, 0)
		} else {
			iq = append(iq, 1, 0)
		}
	}
	for i := 0; i < half; i++ {
		if bit == 1 {
			iq = append(iq, 1, 0)
		} else {
			iq = append(iq, 0, 0)
		}
	}
	return iq
}

func appendSilentWindow(iq []float32) []float32 {
	for i := 0; i < 20; i++ {
		iq = append(iq, 1, 0)
	}
	return iq
}

func bitsOfByte(b byte, n int) []byte {
	bits := make([]byte, n)
	for i := 0; i < n; i++ {
		bits[i] = (b >> uint(i)) & 1
	}
	return bits
}

func makeNfcABuffer(t *testing.T, bits []byte) *sample.Buffer {
	t.Helper()
	var iq []float32
	for _, b := range bits {
		iq = appendBitWindow(iq, b)
	}
	iq = appendSilentWindow(iq)
	iq = appendSilentWindow(iq)

	buf, err := sample.New(len(iq), 2, sample.TypeRawIQ, nfcaTestSampleRate, 0)
	require.NoError(t, err)
	buf.Put(iq)
	buf.Flip()
	return buf
}

// TestNfcADecodeShortFrame exercises REQA (0x26), a 7-bit short frame with
// no parity and no trailing CRC.
func TestNfcADecodeShortFrame(t *testing.T) {
	bits := bitsOfByte(0x26, 7)
	buf := makeNfcABuffer(t, bits)

	status := decoderstatus.New(nfcaTestSampleRate, 20)
	status.SetThresholds(0.2, 0.05)
	det := NewNfcA(DefaultThresholds(frame.NfcA))

	var frames []*frame.Raw
	err := det.Decode(status, buf, func(f *frame.Raw) { frames = append(frames, f) })
	require.NoError(t, err)
	require.Len(t, frames, 1)

	f := frames[0]
	require.True(t, f.Finalized())
	require.Equal(t, frame.NfcA, f.Tech())
	require.Equal(t, frame.TypePoll, f.FrameType())
	require.True(t, f.FlagBits().Has(frame.FlagShort))
	require.False(t, f.FlagBits().Has(frame.FlagCrcError))
	require.Equal(t, []byte{0x26}, f.ToByteArray())
	require.True(t, f.TimeEnd() > f.TimeStart())
}

// TestNfcADecodeCrcError builds a non-short frame (one data byte plus a
// CRC_A trailer) with the trailer deliberately corrupted, and checks the
// demodulator flags it without dropping the frame.
func TestNfcADecodeCrcError(t *testing.T) {
	framed := AppendCrcA([]byte{0x08})
	framed[len(framed)-1] ^= 0xFF // corrupt the CRC trailer

	var bits []byte
	for _, b := range framed {
		for k := 0; k < 8; k++ {
			bits = append(bits, (b>>uint(k))&1)
		}
		bits = append(bits, OddParity(b))
	}
	buf := makeNfcABuffer(t, bits)

	status := decoderstatus.New(nfcaTestSampleRate, 20)
	status.SetThresholds(0.2, 0.05)
	det := NewNfcA(DefaultThresholds(frame.NfcA))

	var frames []*frame.Raw
	err := det.Decode(status, buf, func(f *frame.Raw) { frames = append(frames, f) })
	require.NoError(t, err)
	require.Len(t, frames, 1)

	f := frames[0]
	require.False(t, f.FlagBits().Has(frame.FlagShort))
	require.True(t, f.FlagBits().Has(frame.FlagCrcError))
	require.False(t, f.FlagBits().Has(frame.FlagParityError))
	require.Equal(t, framed, f.ToByteArray())
}

func TestNfcADetectRequiresCarrier(t *testing.T) {
	status := decoderstatus.New(nfcaTestSampleRate, 20)
	status.SetThresholds(0.2, 0.05)
	det := NewNfcA(DefaultThresholds(frame.NfcA))
	require.False(t, det.Detect(status))
}

func TestNfcAResetClearsState(t *testing.T) {
	det := NewNfcA(DefaultThresholds(frame.NfcA))
	det.state = StatePayload
	det.bitBuf = []byte{1, 0, 1}
	det.Reset()
	require.Equal(t, StateIdle, det.state)
	require.Empty(t, det.bitBuf)
}
