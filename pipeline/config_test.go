package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cwsl/nfcdecode/frame"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, "enable_nfc_a: true\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, float64(2_000_000), cfg.SampleRate)
	require.Equal(t, 16, cfg.QueueCapacity)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsNoEnabledTech(t *testing.T) {
	cfg := &Config{SampleRate: 1, QueueCapacity: 1}
	require.Error(t, cfg.Validate())
}

func TestThresholdsOverridesOnlyConfiguredFields(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.ModulationThreshold.NfcV = 0.5

	tv := cfg.Thresholds(frame.NfcV)
	require.Equal(t, 0.5, tv.ModulationMin)

	ta := cfg.Thresholds(frame.NfcA)
	require.Equal(t, float64(0), ta.ModulationMin)
	require.Equal(t, cfg.PowerLevelThreshold, ta.PowerLevel)
}
