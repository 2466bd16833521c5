package radio

import (
	"testing"

	"github.com/cwsl/nfcdecode/decoderstatus"
	"github.com/cwsl/nfcdecode/frame"
	"github.com/cwsl/nfcdecode/sample"
	"github.com/stretchr/testify/require"
)

func TestCarrierMonitorOnOff(t *testing.T) {
	// A slow sample rate (100Hz) against the envelope tracker's fixed 10ms
	// time constant gives an envelope weight of 0.5 per update; with ETU=1
	// the pulse filter lets the envelope update once every 11 silent
	// samples, so the carrier falls below the power threshold within about
	// 55 samples instead of the thousands a realistic SDR rate would need --
	// keeps this test fast without changing the tracker itself.
	const rate = 100
	status := decoderstatus.New(rate, 1)
	status.SetThresholds(0.2, 0.05)
	mon := NewCarrierMonitor(0.05, frame.NfcA)

	var iq []float32
	for i := 0; i < 20; i++ {
		iq = append(iq, 1, 0)
	}
	for i := 0; i < 200; i++ {
		iq = append(iq, 0, 0)
	}
	buf, err := sample.New(len(iq), 2, sample.TypeRawIQ, rate, 0)
	require.NoError(t, err)
	buf.Put(iq)
	buf.Flip()

	var onFrame, offFrame *frame.Raw
	for {
		ok, err := status.NextSample(buf)
		require.NoError(t, err)
		if !ok {
			break
		}
		if f := mon.Update(status); f != nil {
			if f.FrameType() == frame.TypeCarrierOn {
				onFrame = f
			} else {
				offFrame = f
			}
		}
	}

	require.NotNil(t, onFrame)
	require.NotNil(t, offFrame)
	require.Equal(t, frame.NfcA, onFrame.Tech())
	require.True(t, onFrame.TimeEnd() >= onFrame.TimeStart())
	require.True(t, offFrame.TimeStart() > onFrame.TimeStart())
}

func TestCarrierMonitorCarrierUpReflectsState(t *testing.T) {
	const rate = 100
	status := decoderstatus.New(rate, 1)
	status.SetThresholds(0.2, 0.05)
	mon := NewCarrierMonitor(0.05, frame.NfcA)
	require.False(t, mon.CarrierUp())

	iq := []float32{1, 0, 1, 0, 1, 0}
	buf, err := sample.New(len(iq), 2, sample.TypeRawIQ, rate, 0)
	require.NoError(t, err)
	buf.Put(iq)
	buf.Flip()
	for {
		ok, err := status.NextSample(buf)
		require.NoError(t, err)
		if !ok {
			break
		}
		mon.Update(status)
	}
	require.True(t, mon.CarrierUp())
}
