package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRegistersDistinctCollectors(t *testing.T) {
	m := New()
	m.FramesDemodulated.WithLabelValues("NfcA").Inc()
	m.FrameIntegrityErrs.WithLabelValues("NfcA", "crc").Inc()
	m.QueueDepth.Set(3)

	families, err := m.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNewInstancesDoNotShareState(t *testing.T) {
	a := New()
	b := New()
	a.BuffersDropped.Inc()

	famA, err := a.Gather()
	require.NoError(t, err)
	famB, err := b.Gather()
	require.NoError(t, err)
	require.NotEqual(t, famA, famB)
}
