package decoderstatus

import (
	"testing"

	"github.com/cwsl/nfcdecode/sample"
	"github.com/stretchr/testify/require"
)

func iqBuffer(t *testing.T, iq []float32) *sample.Buffer {
	t.Helper()
	buf, err := sample.New(len(iq), 2, sample.TypeRawIQ, 10e6, 0)
	require.NoError(t, err)
	buf.Put(iq)
	buf.Flip()
	return buf
}

func TestNextSampleAdvancesClock(t *testing.T) {
	st := New(10e6, 100)
	st.SetThresholds(0.3, 0.1)

	buf := iqBuffer(t, []float32{1, 0, 1, 0, 1, 0})
	for i := 0; i < 3; i++ {
		ok, err := st.NextSample(buf)
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Equal(t, uint64(3), st.SignalClock)
}

func TestNextSampleRejectsNonIQBuffer(t *testing.T) {
	st := New(10e6, 100)
	buf, err := sample.New(2, 1, sample.TypeRawReal, 10e6, 0)
	require.NoError(t, err)
	buf.Put([]float32{1})
	buf.Flip()

	ok, err := st.NextSample(buf)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, uint64(0), st.SignalClock)
}

func TestColdStartSeedsEnvelope(t *testing.T) {
	st := New(10e6, 50)
	buf := iqBuffer(t, []float32{2, 0})
	ok, err := st.NextSample(buf)
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 2.0, st.Envelope, 1e-9)
}

func TestHistoryRetainsRecentWindow(t *testing.T) {
	st := New(10e6, 4) // ring size rounds up to 16
	buf := iqBuffer(t, []float32{1, 0})
	_, err := st.NextSample(buf)
	require.NoError(t, err)

	entry, ok := st.History(1)
	require.True(t, ok)
	require.Equal(t, float32(1), entry.Raw)
}

func TestLockUnlock(t *testing.T) {
	st := New(10e6, 100)
	st.Lock(Bitrate{BitsPerSecond: 106000, SamplesPerETU: 94}, Modulation{Name: "NfcA"})
	require.True(t, st.Locked)
	st.Unlock()
	require.False(t, st.Locked)
}
