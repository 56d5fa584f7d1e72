// Package codec defines the contract between the decode pipeline and a
// pluggable codec back-end. The pipeline never produces pixels itself; it
// orders work across workers and calls back into these interfaces.
package codec

// Capabilities describes codec back-end behavior the pipeline must honor.
type Capabilities uint32

const (
	// CapDelay means the codec buffers frames internally and must be fed
	// empty packets at end of stream to drain them.
	CapDelay Capabilities = 1 << iota

	// CapAllocateProgress asks the pipeline to attach row-progress counters
	// to every buffer handed out through GetBuffer while frame threading is
	// active. Without frame threading no counters are attached.
	CapAllocateProgress

	// CapInitCleanup means Close must be called even when Init failed.
	CapInitCleanup
)

// Codec is the back-end invoked by each pipeline worker on its private
// Context. Decode returns whether a frame was produced and the decode error,
// if any. During Decode the back-end may call back into the pipeline to
// request buffers, negotiate formats, report or await progress, and declare
// setup complete.
type Codec interface {
	Name() string
	Capabilities() Capabilities
	Init(ctx *Context) error
	Close(ctx *Context) error
	Flush(ctx *Context)
	Decode(ctx *Context, frame *Frame, pkt *Packet) (gotFrame bool, err error)
}

// ThreadContextUpdater is implemented by codecs that carry reference state
// between consecutive packets. The pipeline calls UpdateThreadContext to
// deep-copy that state from the worker that decoded packet k into the worker
// about to receive packet k+1. Codecs implementing this interface must call
// the pipeline's FinishSetup themselves once their shared state is derived.
type ThreadContextUpdater interface {
	UpdateThreadContext(dst, src *Context) error
}

// PrivDataCloner is implemented by codecs whose private data must be copied
// into each worker's context at pipeline init.
type PrivDataCloner interface {
	ClonePrivData(dst, src *Context) error
}

// ExtraReorderDelayer adjusts the priming window for codecs that declare
// extra reference latency. Most codecs do not implement this; a positive
// value shrinks the packet count required before output starts by that
// amount, so the priming window gets shorter.
type ExtraReorderDelayer interface {
	ExtraReorderDelay() int
}
