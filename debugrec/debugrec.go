// Package debugrec implements the optional debug recorder (§12): every
// sample the decoder's shared scratchpad tracks is appended, gzip-compressed
// and newline-delimited, to a per-session file for later offline replay.
package debugrec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/cwsl/nfcdecode/decoderstatus"
)

// entry is one recorded sample line.
type entry struct {
	Clock           uint64  `json:"clock"`
	Raw             float32 `json:"raw"`
	Filtered        float32 `json:"filtered"`
	Variance        float32 `json:"variance"`
	ModulationDepth float32 `json:"modulation_depth"`
}

// hostSnapshot captures the host's resource state at recording start, folded
// into the stream header so a replay can be correlated against machine load.
type hostSnapshot struct {
	CPUCores    int     `json:"cpu_cores"`
	MemTotalMB  uint64  `json:"mem_total_mb"`
	MemUsedPct  float64 `json:"mem_used_pct"`
	CapturedAt  string  `json:"captured_at"`
}

// header is the first line written to a recording, before any sample
// entries.
type header struct {
	StreamID   string       `json:"stream_id"`
	SessionID  string       `json:"session_id"`
	SampleRate float64      `json:"sample_rate"`
	Host       hostSnapshot `json:"host"`
}

// Recorder implements decoderstatus.Recorder, writing a gzip-compressed
// JSON-lines trace to outputDir/<session>-<stream>.jsonl.gz.
type Recorder struct {
	mu   sync.Mutex
	file *os.File
	gz   *gzip.Writer
	enc  *json.Encoder

	sessionID string
	streamID  string
	path      string
}

// New opens a new recording file under outputDir and writes its header.
// sessionID groups every stream recorded in one pipeline run; a fresh
// streamID is minted per Recorder so concurrent technologies don't collide.
func New(outputDir, sessionID string, sampleRate float64) (*Recorder, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	streamID := uuid.NewString()

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("debugrec: create output dir: %w", err)
	}
	path := filepath.Join(outputDir, fmt.Sprintf("%s-%s.jsonl.gz", sessionID, streamID))

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("debugrec: create recording file: %w", err)
	}
	gz := gzip.NewWriter(f)

	r := &Recorder{
		file:      f,
		gz:        gz,
		enc:       json.NewEncoder(gz),
		sessionID: sessionID,
		streamID:  streamID,
		path:      path,
	}

	if err := r.enc.Encode(header{
		StreamID:   streamID,
		SessionID:  sessionID,
		SampleRate: sampleRate,
		Host:       snapshotHost(),
	}); err != nil {
		r.Close()
		return nil, fmt.Errorf("debugrec: write header: %w", err)
	}
	return r, nil
}

func snapshotHost() hostSnapshot {
	snap := hostSnapshot{CapturedAt: time.Now().UTC().Format(time.RFC3339)}
	if info, err := cpu.Info(); err == nil {
		for _, c := range info {
			snap.CPUCores += int(c.Cores)
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snap.MemTotalMB = vm.Total / (1024 * 1024)
		snap.MemUsedPct = vm.UsedPercent
	}
	return snap
}

// RecordSample implements decoderstatus.Recorder.
func (r *Recorder) RecordSample(clock uint64, s decoderstatus.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// A write error here would otherwise have no observer; recording is a
	// best-effort diagnostic aid, not part of the decode path, so it is
	// swallowed rather than propagated up through NextSample's signature.
	_ = r.enc.Encode(entry{
		Clock:           clock,
		Raw:             s.Raw,
		Filtered:        s.Filtered,
		Variance:        s.Variance,
		ModulationDepth: s.ModulationDepth,
	})
}

// Path returns the file path this recorder is writing to.
func (r *Recorder) Path() string { return r.path }

// Close flushes and closes the underlying gzip stream and file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	gzErr := r.gz.Close()
	fileErr := r.file.Close()
	if gzErr != nil {
		return gzErr
	}
	return fileErr
}
