package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/five82/spool/internal/codec"
)

// Worker phases. The atomic state field defines who may touch which worker
// fields at any instant.
type workerState int32

const (
	// stateInputReady: the worker is idle, awaiting a packet.
	stateInputReady workerState = iota
	// stateSettingUp: set from submission until the codec finishes setup.
	stateSettingUp
	// stateGetBuffer: the worker is parked waiting for the coordinator to
	// run the user's buffer allocator. Returns to stateSettingUp after.
	stateGetBuffer
	// stateGetFormat: as stateGetBuffer, for format negotiation.
	stateGetFormat
	// stateSetupFinished: set once the codec has declared setup complete.
	stateSetupFinished
)

// Worker init progress, used to unwind a partially constructed pipeline.
const (
	workerUninitialized = iota // codec Close must not be called
	workerNeedsClose           // codec Close needs to be called
	workerInitialized          // goroutine is running
)

// worker owns a private decoder context and decodes one packet at a time on
// its own goroutine.
type worker struct {
	parent *Pipeline

	ctx   *codec.Context
	pkt   *codec.Packet
	frame *codec.Frame

	gotFrame bool
	result   error

	state atomic.Int32

	// mu is the submit lock, guarding pkt and the context fields written at
	// submission. inputCond (on mu) wakes the worker when a packet arrives.
	mu        sync.Mutex
	inputCond *sync.Cond

	// progressMu guards progress values and the reflected-callback slots.
	// progressCond is a multiplexed channel: progress updates, setup-done
	// and buffer-request notifications all share it, so waiters recheck
	// their own condition on every wakeup. outputCond wakes the coordinator
	// when the worker returns to idle.
	progressMu   sync.Mutex
	progressCond *sync.Cond
	outputCond   *sync.Cond

	die  bool
	done chan struct{}

	initState int

	// Sticky flags recording that this worker currently holds the hwaccel
	// mutex or the async gate.
	hwaccelSerializing bool
	asyncSerializing   bool

	// Reflected-callback slots, written by the worker under progressMu and
	// consumed by the coordinator's reflection loop.
	requestedFrame   *codec.Frame
	requestedFlags   int
	reqErr           error
	availableFormats []codec.PixelFormat
	resultFormat     codec.PixelFormat

	// Frames whose storage must be released from the coordinator goroutine.
	releasedBuffers []*codec.Frame

	debugThreads atomic.Bool
}

func (w *worker) loadState() workerState   { return workerState(w.state.Load()) }
func (w *worker) storeState(s workerState) { w.state.Store(int32(s)) }

// run is the worker loop. It never exits on a decode error; failures are
// latched into the worker's outcome and surfaced in submission order.
func (w *worker) run() {
	defer close(w.done)

	ctx := w.ctx
	cdc := ctx.Codec
	_, hasUpdater := cdc.(codec.ThreadContextUpdater)

	w.mu.Lock()
	for {
		for w.loadState() == stateInputReady && !w.die {
			w.inputCond.Wait()
		}

		if w.die {
			break
		}

		// A codec that carries no state between packets and whose callbacks
		// are thread-safe has nothing to set up: declare setup done at once
		// so the next submission never blocks on this worker.
		if !hasUpdater && threadSafeCallbacks(ctx) {
			FinishSetup(ctx)
		}

		// If the previous worker handed over a serialized accelerator, take
		// the accel mutex so the two decodes cannot overlap.
		if ctx.HWAccel != nil && ctx.HWAccel.Caps&codec.HWAccelMTSafe == 0 {
			w.parent.hwaccelMu.Lock()
			w.hwaccelSerializing = true
		}

		w.frame.Unref()
		w.gotFrame, w.result = cdc.Decode(ctx, w.frame, w.pkt)

		if (w.result != nil || !w.gotFrame) && w.frame.HasBuffer() {
			if cdc.Capabilities()&codec.CapAllocateProgress != 0 {
				ctx.Log("decoder did not free the frame on failure, this is a bug")
			}
			w.frame.Unref()
		}

		if w.loadState() == stateSettingUp {
			FinishSetup(ctx)
		}

		if w.hwaccelSerializing {
			// Wipe accel state to avoid stale pointers; ownership moved to
			// the coordinator stash in FinishSetup, so nothing is lost.
			ctx.HWAccel = nil
			ctx.HWAccelContext = nil
			ctx.HWAccelPriv = nil

			w.hwaccelSerializing = false
			w.parent.hwaccelMu.Unlock()
		}

		if w.asyncSerializing {
			w.asyncSerializing = false
			w.parent.asyncUnlock()
		}

		w.progressMu.Lock()
		w.storeState(stateInputReady)
		w.progressCond.Broadcast()
		w.outputCond.Signal()
		w.progressMu.Unlock()
	}
	w.mu.Unlock()
}

// releaseDelayedBuffers frees the frames this worker queued for release on
// the coordinator goroutine. Submission calls it under the worker's submit
// lock; Flush and Close call it after parking the workers.
func (w *worker) releaseDelayedBuffers() {
	fctx := w.parent
	for len(w.releasedBuffers) > 0 {
		fctx.bufferMu.Lock()
		n := len(w.releasedBuffers) - 1
		f := w.releasedBuffers[n]
		w.releasedBuffers[n] = nil
		w.releasedBuffers = w.releasedBuffers[:n]
		f.Unref()
		fctx.bufferMu.Unlock()
	}
}

// callGetBuffer runs the effective allocator for the context.
func callGetBuffer(ctx *codec.Context, f *codec.Frame, flags int) error {
	if ctx.GetBuffer != nil {
		return ctx.GetBuffer(ctx, f, flags)
	}
	return codec.AllocFrame(ctx, f)
}

// callGetFormat runs the effective format negotiator for the context.
func callGetFormat(ctx *codec.Context, formats []codec.PixelFormat) codec.PixelFormat {
	if ctx.GetFormat != nil {
		return ctx.GetFormat(ctx, formats)
	}
	if len(formats) == 0 {
		return codec.PixFmtNone
	}
	return formats[0]
}
