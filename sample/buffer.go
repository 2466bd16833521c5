// Package sample implements the typed, reference-counted sample buffer that
// flows between the capture stage and the demodulators.
package sample

import "fmt"

// Type identifies the physical meaning of the components stored in a Buffer.
type Type int

const (
	// TypeRawIQ is complex baseband samples, stride 2 (I, Q).
	TypeRawIQ Type = iota
	// TypeRawReal is real-valued RF samples, stride 1.
	TypeRawReal
	// TypeRawLogic is digital logic-level samples, stride 1.
	TypeRawLogic
	// TypeAdvReal is a pre-filtered real-valued stream, stride 1.
	TypeAdvReal
	// TypeAdvLogic is a pre-filtered logic stream, stride 1.
	TypeAdvLogic
	// TypeFFTBin is frequency-domain bin magnitudes, stride 1.
	TypeFFTBin
)

func (t Type) String() string {
	switch t {
	case TypeRawIQ:
		return "raw-iq"
	case TypeRawReal:
		return "raw-real"
	case TypeRawLogic:
		return "raw-logic"
	case TypeAdvReal:
		return "adv-real"
	case TypeAdvLogic:
		return "adv-logic"
	case TypeFFTBin:
		return "fft-bin"
	default:
		return "unknown"
	}
}

// ErrUnderflow is returned by Get when reading past the buffer's limit.
var ErrUnderflow = fmt.Errorf("sample: read past limit")

// storage is the shared backing array. Buffer views reference it directly;
// Go's garbage collector keeps it alive as long as any view does, which is
// the reference-counting behaviour the design calls for without needing an
// explicit counter.
type storage struct {
	data []float32
}

// Buffer is a put/get float32 buffer with an explicit flip, modelled on a
// classic NIO-style byte buffer. It carries the sample-rate, decimation and
// absolute offset metadata the demodulators need to map samples back to
// wall-clock time.
type Buffer struct {
	back *storage

	stride     int
	interleave int
	typ        Type
	sampleRate float64
	decimation int
	offset     int64

	position int
	limit    int
}

// New allocates a buffer able to hold capacity float32 elements (not
// samples -- capacity must be a multiple of stride).
func New(capacity, stride int, typ Type, sampleRate float64, offset int64) (*Buffer, error) {
	if stride <= 0 {
		return nil, fmt.Errorf("sample: stride must be positive, got %d", stride)
	}
	if capacity%stride != 0 {
		return nil, fmt.Errorf("sample: capacity %d not a multiple of stride %d", capacity, stride)
	}
	return &Buffer{
		back:       &storage{data: make([]float32, capacity)},
		stride:     stride,
		interleave: stride,
		typ:        typ,
		sampleRate: sampleRate,
		decimation: 1,
		offset:     offset,
		position:   0,
		limit:      capacity,
	}, nil
}

// Stride returns the number of float32 components per sample.
func (b *Buffer) Stride() int { return b.stride }

// Type returns the buffer's sample type.
func (b *Buffer) Type() Type { return b.typ }

// SampleRate returns the declared input sample rate in Hz.
func (b *Buffer) SampleRate() float64 { return b.sampleRate }

// SetDecimation records the decimation factor applied upstream of this buffer.
func (b *Buffer) SetDecimation(d int) { b.decimation = d }

// Decimation returns the decimation factor applied upstream of this buffer.
func (b *Buffer) Decimation() int { return b.decimation }

// Offset is the absolute sample index (before decimation) of the first
// element in the underlying storage.
func (b *Buffer) Offset() int64 { return b.offset }

// Capacity returns the total number of float32 elements the buffer can hold.
func (b *Buffer) Capacity() int { return len(b.back.data) }

// Put appends samples at the current position, growing position but not
// limit. It panics if the write would exceed capacity -- callers own their
// own bounds, exactly like a NIO ByteBuffer.
func (b *Buffer) Put(samples []float32) {
	n := copy(b.back.data[b.position:], samples)
	if n != len(samples) {
		panic("sample: Put exceeds buffer capacity")
	}
	b.position += n
}

// Flip prepares the buffer for reading: limit becomes the current position,
// and position resets to zero.
func (b *Buffer) Flip() {
	b.limit = b.position
	b.position = 0
}

// Get reads one float32 component, advancing position. It returns
// ErrUnderflow when position has reached limit.
func (b *Buffer) Get() (float32, error) {
	if b.position >= b.limit {
		return 0, ErrUnderflow
	}
	v := b.back.data[b.position]
	b.position++
	return v, nil
}

// Remaining returns the number of float32 components left to read.
func (b *Buffer) Remaining() int {
	r := b.limit - b.position
	if r < 0 {
		return 0
	}
	return r
}

// Elements returns the number of whole samples left to read (Remaining / Stride).
func (b *Buffer) Elements() int {
	return b.Remaining() / b.stride
}

// Position returns the current read/write cursor.
func (b *Buffer) Position() int { return b.position }

// Limit returns the current limit (filled length after Flip).
func (b *Buffer) Limit() int { return b.limit }

// Slice returns a new view over elements [from, from+length) of the
// underlying storage, sharing the same backing array. The view has its own
// position (0) and limit (length); the parent buffer's position/limit are
// unaffected. from/length are expressed in float32 elements, must respect
// stride alignment.
func (b *Buffer) Slice(from, length int) (*Buffer, error) {
	if from < 0 || length < 0 || from+length > len(b.back.data) {
		return nil, fmt.Errorf("sample: slice [%d,%d) out of range for capacity %d", from, from+length, len(b.back.data))
	}
	if from%b.stride != 0 || length%b.stride != 0 {
		return nil, fmt.Errorf("sample: slice bounds must be stride-aligned (stride=%d)", b.stride)
	}
	sub := &storage{data: b.back.data[from : from+length]}
	return &Buffer{
		back:       sub,
		stride:     b.stride,
		interleave: b.interleave,
		typ:        b.typ,
		sampleRate: b.sampleRate,
		decimation: b.decimation,
		offset:     b.offset + int64(from/b.stride),
		position:   0,
		limit:      length,
	}, nil
}

// Clone returns a new view sharing the same backing storage and the same
// position/limit -- the explicit handoff analogue of a reference-counted
// copy; mutating one view's data mutates the other's, but their cursors are
// independent.
func (b *Buffer) Clone() *Buffer {
	return &Buffer{
		back:       b.back,
		stride:     b.stride,
		interleave: b.interleave,
		typ:        b.typ,
		sampleRate: b.sampleRate,
		decimation: b.decimation,
		offset:     b.offset,
		position:   b.position,
		limit:      b.limit,
	}
}
