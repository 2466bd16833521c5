package debugrec

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"os"
	"testing"

	"github.com/cwsl/nfcdecode/decoderstatus"
	"github.com/stretchr/testify/require"
)

func TestNewWritesHeaderAndSamples(t *testing.T) {
	dir := t.TempDir()
	rec, err := New(dir, "session-1", 2_000_000)
	require.NoError(t, err)

	rec.RecordSample(1, decoderstatus.Sample{Raw: 0.1, Filtered: 0.05})
	rec.RecordSample(2, decoderstatus.Sample{Raw: 0.2, Filtered: 0.07})
	require.NoError(t, rec.Close())

	f, err := os.Open(rec.Path())
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	require.True(t, scanner.Scan())
	var hdr header
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &hdr))
	require.Equal(t, "session-1", hdr.SessionID)
	require.Equal(t, float64(2_000_000), hdr.SampleRate)

	require.True(t, scanner.Scan())
	var e entry
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
	require.Equal(t, uint64(1), e.Clock)

	require.True(t, scanner.Scan())
	require.False(t, scanner.Scan())
}

func TestNewGeneratesSessionIDWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	rec, err := New(dir, "", 1)
	require.NoError(t, err)
	require.NotEmpty(t, rec.sessionID)
	require.NoError(t, rec.Close())
}
