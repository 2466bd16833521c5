package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cwsl/nfcdecode/frame"
	"github.com/cwsl/nfcdecode/radio"
)

// Config is the pipeline's external configuration surface (§6): which
// technologies to demodulate, the sample rate the SampleBuffers arrive at,
// per-technology detection thresholds, and the ambient knobs (queue depth,
// stream duration, debug recording).
type Config struct {
	SampleRate float64 `yaml:"sample_rate"`

	EnableNfcA    bool `yaml:"enable_nfc_a"`
	EnableNfcB    bool `yaml:"enable_nfc_b"`
	EnableNfcF    bool `yaml:"enable_nfc_f"`
	EnableNfcV    bool `yaml:"enable_nfc_v"`
	EnableIso7816 bool `yaml:"enable_iso7816"`

	// Iso7816Bitrate is the nominal ISO/IEC 7816-3 character bit rate (bps)
	// the logic demodulator derives its ETU-in-samples from, given
	// SampleRate -- the default communication rate (Fi=372, Di=1) works out
	// to roughly 9600bps at the standard's nominal card clock, so that is
	// the default here too (§6 configuration table).
	Iso7816Bitrate float64 `yaml:"iso7816_bitrate"`

	PowerLevelThreshold  float64         `yaml:"power_level_threshold"`
	ModulationThreshold  TechFloatConfig `yaml:"modulation_threshold"`
	CorrelationThreshold TechFloatConfig `yaml:"correlation_threshold"`

	// StreamTimeSec is checked by Validate (it must not be negative) and is
	// not read anywhere else: frame timestamps are always offsets from
	// stream start.
	StreamTimeSec int `yaml:"stream_time_sec"`

	QueueCapacity int         `yaml:"queue_capacity"`
	Debug         DebugConfig `yaml:"debug"`
}

// TechFloatConfig overrides a per-technology threshold; a zero field means
// "use the technology's stock default" (radio.DefaultThresholds).
type TechFloatConfig struct {
	NfcA float64 `yaml:"nfc_a"`
	NfcB float64 `yaml:"nfc_b"`
	NfcF float64 `yaml:"nfc_f"`
	NfcV float64 `yaml:"nfc_v"`
}

func (t TechFloatConfig) get(tech frame.Tech) (float64, bool) {
	switch tech {
	case frame.NfcA:
		return t.NfcA, t.NfcA != 0
	case frame.NfcB:
		return t.NfcB, t.NfcB != 0
	case frame.NfcF:
		return t.NfcF, t.NfcF != 0
	case frame.NfcV:
		return t.NfcV, t.NfcV != 0
	default:
		return 0, false
	}
}

// DebugConfig controls the recorder that captures the per-sample
// DecoderStatus trace for offline analysis (§12 supplemented feature).
type DebugConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
}

// DefaultConfig returns a Config with every technology enabled and the
// stock defaults applied, for callers that have no YAML file to load.
func DefaultConfig() *Config {
	cfg := &Config{
		EnableNfcA:    true,
		EnableNfcB:    true,
		EnableNfcF:    true,
		EnableNfcV:    true,
		EnableIso7816: true,
	}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads and defaults a pipeline configuration from a YAML file.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("pipeline: parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 2_000_000
	}
	if c.PowerLevelThreshold == 0 {
		c.PowerLevelThreshold = 0.05
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = 16
	}
	if c.Iso7816Bitrate == 0 {
		c.Iso7816Bitrate = 9600
	}
	if c.Debug.OutputDir == "" {
		c.Debug.OutputDir = "debug"
	}
}

// Validate checks the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("pipeline: sample_rate must be positive")
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("pipeline: queue_capacity must be at least 1")
	}
	if c.StreamTimeSec < 0 {
		return fmt.Errorf("pipeline: stream_time_sec must not be negative")
	}
	if !c.EnableNfcA && !c.EnableNfcB && !c.EnableNfcF && !c.EnableNfcV && !c.EnableIso7816 {
		return fmt.Errorf("pipeline: at least one technology must be enabled")
	}
	if c.EnableIso7816 && c.Iso7816Bitrate <= 0 {
		return fmt.Errorf("pipeline: iso7816_bitrate must be positive when enable_iso7816 is set")
	}
	return nil
}

// Thresholds builds the radio.Thresholds for tech, starting from the
// technology's stock defaults and overriding with any configured value.
func (c *Config) Thresholds(tech frame.Tech) radio.Thresholds {
	t := radio.DefaultThresholds(tech)
	if c.PowerLevelThreshold != 0 {
		t.PowerLevel = c.PowerLevelThreshold
	}
	if v, ok := c.ModulationThreshold.get(tech); ok {
		t.ModulationMin = v
	}
	if v, ok := c.CorrelationThreshold.get(tech); ok {
		t.CorrelationThreshold = v
	}
	return t
}
