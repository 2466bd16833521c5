package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRawFrameFinalizeInvariants(t *testing.T) {
	r := NewRaw(NfcA, TypePoll, PhaseSelection, 106000)
	r.Append(0x26)
	r.SetFlag(FlagShort)

	err := r.Finalize(time.Millisecond, 2*time.Millisecond, 10000, 20000, 10e6)
	require.NoError(t, err)
	require.True(t, r.Finalized())
	require.Equal(t, []byte{0x26}, r.ToByteArray())
	require.True(t, r.FlagBits().Has(FlagShort))
}

func TestRawFrameRejectsBackwardsTime(t *testing.T) {
	r := NewRaw(NfcA, TypePoll, PhaseSelection, 106000)
	err := r.Finalize(2*time.Millisecond, time.Millisecond, 0, 0, 10e6)
	require.Error(t, err)
}

func TestRawFrameRejectsMismatchedSampleSpan(t *testing.T) {
	r := NewRaw(NfcA, TypePoll, PhaseSelection, 106000)
	// 1ms at 10MS/s should be 10000 samples, not 1.
	err := r.Finalize(0, time.Millisecond, 0, 1, 10e6)
	require.Error(t, err)
}

func TestRawFrameAppendAfterFinalizePanics(t *testing.T) {
	r := NewRaw(NfcA, TypePoll, PhaseSelection, 106000)
	require.NoError(t, r.Finalize(0, 0, 0, 0, 10e6))
	require.Panics(t, func() { r.Append(0x01) })
}
