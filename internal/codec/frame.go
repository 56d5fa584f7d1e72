package codec

import "sync/atomic"

// FrameBuffer is the refcounted backing storage of a frame. The free hook
// runs when the last reference is dropped, on whichever goroutine dropped it;
// the pipeline's deferred-release path exists so that frames allocated by a
// thread-affine user allocator are freed from the coordinator.
type FrameBuffer struct {
	data []byte
	refs atomic.Int32
	free func([]byte)
}

// NewFrameBuffer wraps data in a buffer holding one reference. free may be
// nil when the storage needs no explicit release.
func NewFrameBuffer(data []byte, free func([]byte)) *FrameBuffer {
	b := &FrameBuffer{data: data, free: free}
	b.refs.Store(1)
	return b
}

// Data returns the underlying storage.
func (b *FrameBuffer) Data() []byte { return b.data }

// Ref takes an additional reference.
func (b *FrameBuffer) Ref() *FrameBuffer {
	b.refs.Add(1)
	return b
}

// Unref drops one reference, freeing the storage when it was the last.
func (b *FrameBuffer) Unref() {
	if b.refs.Add(-1) == 0 && b.free != nil {
		b.free(b.data)
	}
}

// Frame is one decoded picture. Data aliases the buffer's storage; a frame
// without a buffer is blank. Frames move by reference: harvesting transfers
// ownership from the worker's frame to the caller's without copying pixels.
type Frame struct {
	Width  int
	Height int
	Format PixelFormat
	DTS    int64
	PTS    int64

	// Opaque carries codec- or caller-defined per-frame payload.
	Opaque any

	Data []byte

	buf *FrameBuffer
}

// SetBuffer attaches backing storage, taking over the caller's reference.
func (f *Frame) SetBuffer(b *FrameBuffer) {
	f.buf = b
	if b != nil {
		f.Data = b.data
	}
}

// HasBuffer reports whether the frame currently owns storage.
func (f *Frame) HasBuffer() bool { return f.buf != nil }

// Unref drops the frame's buffer reference and resets it to a blank state.
func (f *Frame) Unref() {
	if f.buf != nil {
		f.buf.Unref()
	}
	*f = Frame{}
}

// MoveRef transfers src's contents into f, leaving src blank. f must not own
// a buffer.
func (f *Frame) MoveRef(src *Frame) {
	*f = *src
	*src = Frame{}
}

// Ref makes f an additional reference to src's buffer, sharing storage.
func (f *Frame) Ref(src *Frame) {
	*f = *src
	if src.buf != nil {
		f.buf = src.buf.Ref()
	}
}

// Drop detaches the frame from its buffer without releasing it. The storage
// leaks; the deferred-release path uses this as a last resort when its queue
// is full, preferring a leak over freeing on a forbidden thread.
func (f *Frame) Drop() {
	*f = Frame{}
}

// Progress is the per-frame row counter pair. Index 0 covers progressive
// frames and the first field; interlaced content uses both. Values only grow.
type Progress struct {
	rows [2]atomic.Int32
}

// NewProgress returns counters initialized to -1, meaning no rows decoded.
func NewProgress() *Progress {
	p := &Progress{}
	p.rows[0].Store(-1)
	p.rows[1].Store(-1)
	return p
}

// Load returns the current value for a field.
func (p *Progress) Load(field int) int {
	return int(p.rows[field].Load())
}

// Store publishes n for a field. Callers must hold the producing worker's
// progress lock and never lower a value.
func (p *Progress) Store(field, n int) {
	p.rows[field].Store(int32(n))
}

// ThreadFrame pairs a frame with its progress counters and the contexts that
// produced each field, so waiters can find the producer's notification path.
type ThreadFrame struct {
	F        *Frame
	Progress *Progress
	Owner    [2]*Context
}

// Ref makes tf share src's frame buffer, progress counters and owners.
func (tf *ThreadFrame) Ref(src *ThreadFrame) {
	if tf.F == nil {
		tf.F = &Frame{}
	}
	tf.F.Ref(src.F)
	tf.Progress = src.Progress
	tf.Owner = src.Owner
}
