// Package pipeline implements the driver that ties the other components
// together (§4.H): pulling SampleBuffers off a bounded queue, handing them to
// the radio cascade or the ISO-7816 UART decoder, parsing the resulting
// RawFrames, and publishing ProtocolFrames.
package pipeline

import (
	"fmt"
	"sync"

	"github.com/cwsl/nfcdecode/debugrec"
	"github.com/cwsl/nfcdecode/decoderstatus"
	"github.com/cwsl/nfcdecode/frame"
	"github.com/cwsl/nfcdecode/logic"
	"github.com/cwsl/nfcdecode/metrics"
	"github.com/cwsl/nfcdecode/parser"
	"github.com/cwsl/nfcdecode/radio"
	"github.com/cwsl/nfcdecode/sample"
)

// Driver owns the demodulator cascade, the ISO-7816 UART decoder, the
// shared decoder status, and the parser registry, and exposes a bounded
// SampleBuffer queue on the way in and a ProtocolFrame channel on the way
// out (§5 concurrency model: worker-per-stage, bounded SPSC queue).
type Driver struct {
	cfg     *Config
	metrics *metrics.Metrics

	status   *decoderstatus.Status
	cascade  *radio.Cascade
	iso7816  *logic.Iso7816
	registry *parser.Registry
	monitor  *radio.CarrierMonitor
	recorder *debugrec.Recorder

	active radio.Detector

	queue chan *sample.Buffer
	out   chan *frame.Protocol

	wg       sync.WaitGroup
	closeOne sync.Once
}

// New builds a Driver from cfg. sessionID, if non-empty, groups any debug
// recording this driver makes with other recordings from the same run.
func New(cfg *Config, m *metrics.Metrics, sessionID string) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var detectors []radio.Detector
	if cfg.EnableNfcA {
		detectors = append(detectors, radio.NewNfcA(cfg.Thresholds(frame.NfcA)))
	}
	if cfg.EnableNfcB {
		detectors = append(detectors, radio.NewNfcB(cfg.Thresholds(frame.NfcB)))
	}
	if cfg.EnableNfcF {
		detectors = append(detectors, radio.NewNfcF(cfg.Thresholds(frame.NfcF)))
	}
	if cfg.EnableNfcV {
		detectors = append(detectors, radio.NewNfcV(cfg.Thresholds(frame.NfcV)))
	}

	d := &Driver{
		cfg:      cfg,
		metrics:  m,
		status:   decoderstatus.New(cfg.SampleRate, radio.InitialEtuSamples(cfg.SampleRate)),
		cascade:  radio.NewCascade(detectors...),
		registry: parser.NewRegistry(),
		monitor:  radio.NewCarrierMonitor(cfg.PowerLevelThreshold, frame.NfcA),
		queue:    make(chan *sample.Buffer, cfg.QueueCapacity),
		out:      make(chan *frame.Protocol, cfg.QueueCapacity),
	}
	d.status.SampleHook = d.onSample
	if cfg.EnableIso7816 {
		d.iso7816 = logic.NewIso7816(logic.EtuSamples(cfg.SampleRate, cfg.Iso7816Bitrate))
	}

	if cfg.Debug.Enabled {
		rec, err := debugrec.New(cfg.Debug.OutputDir, sessionID, cfg.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("pipeline: open debug recorder: %w", err)
		}
		d.recorder = rec
		d.status.Recorder = rec
	}

	return d, nil
}

// Frames returns the channel of parsed ProtocolFrames. Closed by Close,
// after the worker goroutine has exited and in-progress frames are flushed.
func (d *Driver) Frames() <-chan *frame.Protocol { return d.out }

// Run starts the worker goroutine that drains the submit queue. Call Close
// to stop it and wait for it to exit.
func (d *Driver) Run() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for buf := range d.queue {
			if err := d.process(buf); err != nil {
				d.metrics.DecodeErrors.Inc()
			}
		}
	}()
}

// Submit enqueues a SampleBuffer for processing. Returns an error (instead
// of blocking) if the bounded queue is already full, incrementing the
// dropped-buffer counter (§5: back-pressure never blocks the producer
// indefinitely).
func (d *Driver) Submit(buf *sample.Buffer) error {
	select {
	case d.queue <- buf:
		if d.metrics != nil {
			d.metrics.QueueDepth.Set(float64(len(d.queue)))
		}
		return nil
	default:
		if d.metrics != nil {
			d.metrics.BuffersDropped.Inc()
		}
		return fmt.Errorf("pipeline: queue full, buffer dropped")
	}
}

// Close stops accepting new buffers, waits for the worker to drain, flushes
// any in-progress ISO-7816 or radio-path frame (§5: no in-flight buffer
// dropped silently on cancellation; a radio frame is marked truncated, an
// ISO-7816 frame only when a character was cut off), closes the Frames
// channel, and closes the debug recorder if one is open.
func (d *Driver) Close() error {
	var err error
	d.closeOne.Do(func() {
		close(d.queue)
		d.wg.Wait()
		if d.iso7816 != nil {
			d.iso7816.Flush(d.emit)
		}
		if d.active != nil {
			d.active.Flush(d.status, d.emit)
			d.active = nil
		}
		close(d.out)
		if d.recorder != nil {
			err = d.recorder.Close()
		}
	})
	return err
}

func (d *Driver) process(buf *sample.Buffer) error {
	if d.metrics != nil {
		d.metrics.BuffersProcessed.Inc()
	}

	switch buf.Type() {
	case sample.TypeRawLogic:
		if d.iso7816 == nil {
			return nil
		}
		return d.iso7816.Decode(buf, d.emit)
	case sample.TypeRawIQ:
		return d.processRadio(buf)
	default:
		return nil
	}
}

// processRadio feeds buf to whichever Detector is currently locked, or, if
// none is, advances the shared status sample-by-sample probing the cascade
// after each one until a technology locks or the buffer runs out (§4.H
// steps: advance clock, probe cascade, hand off to the winner).
func (d *Driver) processRadio(buf *sample.Buffer) error {
	if d.active == nil {
		for {
			ok, err := d.status.NextSample(buf)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			if det := d.cascade.Probe(d.status); det != nil {
				d.active = det
				break
			}
		}
	}

	if d.active == nil {
		return nil
	}

	if err := d.active.Decode(d.status, buf, d.emit); err != nil {
		d.active = nil
		return err
	}
	if !d.active.Locked() {
		d.active = nil
	}
	return nil
}

// onSample is DecoderStatus's per-sample hook (§4.D, §4.E CarrierDrop): it
// runs once for every raw-iq sample consumed, whether that sample was
// consumed by the driver's own pre-lock probe loop or by a locked
// Detector's Decode loop, so carrier on/off debounce timing tracks the
// envelope at the rate it actually changes rather than once per buffer.
func (d *Driver) onSample(status *decoderstatus.Status) {
	if raw := d.monitor.Update(status); raw != nil {
		d.emitCarrierEvent(raw)
	}
	if d.metrics != nil {
		up := 0.0
		if d.monitor.CarrierUp() {
			up = 1.0
		}
		d.metrics.CarrierUp.WithLabelValues(d.monitor.Tech().String()).Set(up)
	}
}

// emit parses a completed RawFrame and publishes the resulting
// ProtocolFrame.
func (d *Driver) emit(raw *frame.Raw) {
	if d.metrics != nil {
		d.metrics.FramesDemodulated.WithLabelValues(raw.Tech().String()).Inc()
		d.recordIntegrity(raw)
	}

	tree := d.registry.Parse(raw)
	if tree == nil {
		return
	}
	if d.metrics != nil {
		d.metrics.FramesParsed.WithLabelValues(raw.Tech().String()).Inc()
		if tree.Flags.Has(frame.FlagParseError) {
			d.metrics.ParseErrors.WithLabelValues(raw.Tech().String()).Inc()
		}
	}
	d.publish(tree)
}

// emitCarrierEvent publishes a carrier-on/off RawFrame directly as a
// childless ProtocolFrame root: these frames carry no payload, so a bare
// root trivially satisfies "ToBytes equals the RawFrame payload" without
// needing a per-technology parser.
func (d *Driver) emitCarrierEvent(raw *frame.Raw) {
	d.publish(frame.NewProtocolRoot(raw.FrameType().String(), raw))
}

func (d *Driver) recordIntegrity(raw *frame.Raw) {
	flags := raw.FlagBits()
	tech := raw.Tech().String()
	if flags.Has(frame.FlagParityError) {
		d.metrics.FrameIntegrityErrs.WithLabelValues(tech, "parity").Inc()
	}
	if flags.Has(frame.FlagCrcError) {
		d.metrics.FrameIntegrityErrs.WithLabelValues(tech, "crc").Inc()
	}
	if flags.Has(frame.FlagSyncError) {
		d.metrics.FrameIntegrityErrs.WithLabelValues(tech, "sync").Inc()
	}
}

// publish hands a parsed ProtocolFrame to the output channel. Unlike
// Submit, this is the core of the pipeline (§5), not the external capture
// boundary: it blocks rather than drops, so a slow consumer applies
// back-pressure to the decode loop instead of silently losing frames.
func (d *Driver) publish(tree *frame.Protocol) {
	d.out <- tree
}
