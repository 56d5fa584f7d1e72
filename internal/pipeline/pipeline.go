// Package pipeline implements frame-parallel decoding: N workers each decode
// one packet at a time on a private codec context while the coordinator keeps
// submission and harvest in bitstream order, propagates decoder state between
// overlapping decodes, and serializes the callbacks that may not run
// concurrently.
package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/five82/spool/internal/codec"
)

// MaxAutoThreads caps the automatically chosen worker count.
const MaxAutoThreads = 16

// ErrInvalidCallOrder is returned when a codec calls back into the pipeline
// outside the window where that call is allowed.
var ErrInvalidCallOrder = errors.New("pipeline: call not allowed after setup finished")

// Pipeline coordinates the worker array. It is not itself a goroutine: all
// coordinator work runs on the single caller goroutine that owns the
// user-visible decoder handle. Calling DecodeFrame from more than one
// goroutine is undefined.
type Pipeline struct {
	workers []*worker

	// prev is the worker that most recently received a packet; it is the
	// source of decoder-derived state for the next submission. Caller
	// goroutine only.
	prev *worker

	nextDecoding int
	nextFinished int

	// delaying is set while the first packets prime the pipeline; no output
	// is produced in this window.
	delaying bool

	// Accelerator state parked between the worker that finished setup and
	// the worker about to start its own. At most one worker is in setup at
	// any instant, so the hand-off needs no lock.
	stashHWAccel        *codec.HWAccel
	stashHWAccelContext any
	stashHWAccelPriv    any

	// bufferMu guards user buffer-allocator callbacks; hwaccelMu serializes
	// non-MT-safe accelerator work to one worker at a time.
	bufferMu  sync.Mutex
	hwaccelMu sync.Mutex

	// asyncMu/asyncCond/asyncLocked form the logical setup-in-flight gate
	// for non-async-safe accelerators. Held by the caller outside
	// DecodeFrame, released on entry so blocked setup can progress.
	asyncMu     sync.Mutex
	asyncCond   *sync.Cond
	asyncLocked bool
}

func (p *Pipeline) asyncLockAcquire() {
	p.asyncMu.Lock()
	for p.asyncLocked {
		p.asyncCond.Wait()
	}
	p.asyncLocked = true
	p.asyncMu.Unlock()
}

func (p *Pipeline) asyncUnlock() {
	p.asyncMu.Lock()
	p.asyncLocked = false
	p.asyncCond.Broadcast()
	p.asyncMu.Unlock()
}

func frameThreadActive(ctx *codec.Context) bool {
	return ctx.ActiveThreadType&codec.ThreadTypeFrame != 0
}

// threadSafeCallbacks reports whether the context's buffer callbacks may be
// invoked from worker goroutines. The built-in allocator always may.
func threadSafeCallbacks(ctx *codec.Context) bool {
	return ctx.ThreadSafeCallbacks || ctx.GetBuffer == nil
}

// updateContextFromUser copies the user-settable fields from the canonical
// context into a worker's context. Runs under the worker's submit lock.
func updateContextFromUser(dst, src *codec.Context) error {
	dst.Flags = src.Flags
	dst.GetBuffer = src.GetBuffer
	dst.GetFormat = src.GetFormat

	dst.Opaque = src.Opaque
	dst.Debug = src.Debug

	dst.SkipLoopFilter = src.SkipLoopFilter
	dst.SkipIDCT = src.SkipIDCT
	dst.SkipFrame = src.SkipFrame

	dst.FrameNumber = src.FrameNumber
	dst.ReorderedOpaque = src.ReorderedOpaque
	dst.ThreadSafeCallbacks = src.ThreadSafeCallbacks

	if src.SliceCount > 0 && src.SliceOffsets != nil {
		if len(dst.SliceOffsets) < src.SliceCount {
			dst.SliceOffsets = make([]int, src.SliceCount)
		}
		copy(dst.SliceOffsets, src.SliceOffsets[:src.SliceCount])
	}
	dst.SliceCount = src.SliceCount
	return nil
}

// updateContextFromWorker copies decoder-derived state from one context into
// the next. forUser marks the destination as the canonical user context, in
// which case the codec's own state hook is not run.
func updateContextFromWorker(dst, src *codec.Context, forUser bool) error {
	_, hasUpdater := src.Codec.(codec.ThreadContextUpdater)

	if dst != src && (forUser || hasUpdater) {
		dst.TimeBase = src.TimeBase
		dst.Framerate = src.Framerate
		dst.Width = src.Width
		dst.Height = src.Height
		dst.PixFmt = src.PixFmt
		dst.SwPixFmt = src.SwPixFmt

		dst.CodedWidth = src.CodedWidth
		dst.CodedHeight = src.CodedHeight

		dst.HasBFrames = src.HasBFrames
		dst.BitsPerRawSample = src.BitsPerRawSample
		dst.SampleAspectRatio = src.SampleAspectRatio

		dst.Profile = src.Profile
		dst.Level = src.Level

		dst.ColorPrimaries = src.ColorPrimaries
		dst.ColorTRC = src.ColorTRC
		dst.Colorspace = src.Colorspace
		dst.ColorRange = src.ColorRange
		dst.ChromaSampleLocation = src.ChromaSampleLocation

		dst.HWFramesRef = src.HWFramesRef

		if src.HWAccel != nil && src.HWAccel.Caps&codec.HWAccelMTSafe != 0 {
			dst.HWAccel = src.HWAccel
			dst.HWAccelContext = src.HWAccelContext
			dst.HWAccelPriv = src.HWAccelPriv
		}
	}

	if !forUser && hasUpdater {
		return dst.Codec.(codec.ThreadContextUpdater).UpdateThreadContext(dst, src)
	}
	return nil
}

// submitPacket hands a packet to worker w and wakes it. When the context's
// callbacks are not thread-safe it then reflects the worker's buffer and
// format requests back onto this goroutine until setup completes.
func (p *Pipeline) submitPacket(w *worker, userCtx *codec.Context, pkt *codec.Packet) error {
	prev := p.prev
	cdc := w.ctx.Codec

	if pkt.Size() == 0 && cdc.Capabilities()&codec.CapDelay == 0 {
		return nil
	}

	w.mu.Lock()

	if err := updateContextFromUser(w.ctx, userCtx); err != nil {
		w.mu.Unlock()
		return err
	}
	w.debugThreads.Store(w.ctx.Debug&codec.DebugThreads != 0)

	w.releaseDelayedBuffers()

	if prev != nil {
		if prev.loadState() == stateSettingUp {
			prev.progressMu.Lock()
			for prev.loadState() == stateSettingUp {
				prev.progressCond.Wait()
			}
			prev.progressMu.Unlock()
		}

		if err := updateContextFromWorker(w.ctx, prev.ctx, false); err != nil {
			w.mu.Unlock()
			return err
		}
	}

	// Transfer the stashed accelerator state, if any. The stash is consumed
	// here, before the worker enters setup, so no lock is needed.
	if w.ctx.HWAccel == nil || w.ctx.HWAccel.Caps&codec.HWAccelMTSafe == 0 {
		if p.stashHWAccel != nil {
			w.ctx.HWAccel = p.stashHWAccel
			w.ctx.HWAccelContext = p.stashHWAccelContext
			w.ctx.HWAccelPriv = p.stashHWAccelPriv
			p.stashHWAccel = nil
			p.stashHWAccelContext = nil
			p.stashHWAccelPriv = nil
		}
	}

	w.pkt.Unref()
	if err := w.pkt.Ref(pkt); err != nil {
		w.mu.Unlock()
		w.ctx.Log("packet ref failed in submit")
		return fmt.Errorf("submit packet: %w", err)
	}

	w.storeState(stateSettingUp)
	w.inputCond.Signal()
	w.mu.Unlock()

	// If the caller's allocator or format negotiator is not thread-safe, the
	// worker parks in AwaitingBuffer/AwaitingFormat and this goroutine
	// performs the call on its behalf.
	if !w.ctx.ThreadSafeCallbacks && (w.ctx.GetFormat != nil || w.ctx.GetBuffer != nil) {
		for {
			if s := w.loadState(); s == stateSetupFinished || s == stateInputReady {
				break
			}
			callDone := true
			w.progressMu.Lock()
			for w.loadState() == stateSettingUp {
				w.progressCond.Wait()
			}

			switch w.loadState() {
			case stateGetBuffer:
				w.reqErr = callGetBuffer(w.ctx, w.requestedFrame, w.requestedFlags)
			case stateGetFormat:
				w.resultFormat = callGetFormat(w.ctx, w.availableFormats)
			default:
				callDone = false
			}
			if callDone {
				w.storeState(stateSettingUp)
				w.progressCond.Signal()
			}
			w.progressMu.Unlock()
		}
	}

	p.prev = w
	p.nextDecoding++

	return nil
}

// DecodeFrame submits pkt to the next worker and harvests the oldest
// finished outcome, preserving submission order. It returns the consumed
// packet size, whether frame now holds a picture, and the harvested decode
// error, if any. Empty packets drain the pipeline at end of stream.
//
// DecodeFrame must only ever be called from one goroutine.
func (p *Pipeline) DecodeFrame(userCtx *codec.Context, frame *codec.Frame, pkt *codec.Packet) (consumed int, gotFrame bool, err error) {
	finished := p.nextFinished

	// Let accelerator setup blocked on the async gate progress while the
	// caller is inside this function.
	p.asyncUnlock()
	defer p.asyncLockAcquire()

	w := p.workers[p.nextDecoding]
	if err := p.submitPacket(w, userCtx, pkt); err != nil {
		return 0, false, err
	}

	// While receiving the initial packets, produce nothing.
	extra := 0
	if d, ok := userCtx.Codec.(codec.ExtraReorderDelayer); ok {
		extra = d.ExtraReorderDelay()
	}
	if p.nextDecoding > len(p.workers)-1-extra {
		p.delaying = false
	}

	if p.delaying {
		if pkt.Size() > 0 {
			return pkt.Size(), false, nil
		}
	}

	// Return the oldest worker's outcome. At end of stream, skip workers
	// that produced neither frame nor error so an idle slot does not read
	// as EOF before the tail has drained.
	var last *worker
	for {
		last = p.workers[finished]
		finished++

		if last.loadState() != stateInputReady {
			last.progressMu.Lock()
			for last.loadState() != stateInputReady {
				last.outputCond.Wait()
			}
			last.progressMu.Unlock()
		}

		frame.MoveRef(last.frame)
		gotFrame = last.gotFrame
		frame.DTS = last.pkt.DTS
		err = last.result

		// A later drain call loops over all workers looking for output;
		// zero the outcome so this one is not returned twice.
		last.gotFrame = false
		last.result = nil

		if finished >= len(p.workers) {
			finished = 0
		}

		if pkt.Size() != 0 || gotFrame || err != nil || finished == p.nextFinished {
			break
		}
	}

	if uerr := updateContextFromWorker(userCtx, last.ctx, true); uerr != nil && err == nil {
		err = uerr
	}

	if p.nextDecoding >= len(p.workers) {
		p.nextDecoding = 0
	}
	p.nextFinished = finished

	if err != nil {
		return 0, gotFrame, err
	}
	return pkt.Size(), gotFrame, nil
}
