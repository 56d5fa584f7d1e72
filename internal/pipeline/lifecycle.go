package pipeline

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/five82/spool/internal/codec"
)

// Init builds a pipeline for the canonical context. A thread count of zero
// selects cores+1 capped at MaxAutoThreads; a resulting count of one
// disables frame threading and returns a nil pipeline.
func Init(avctx *codec.Context) (*Pipeline, error) {
	threadCount := avctx.ThreadCount
	if threadCount == 0 {
		// Use core count + 1 so one worker can be blocked on input or
		// output without idling a core.
		if n := runtime.NumCPU(); n > 1 {
			threadCount = min(n+1, MaxAutoThreads)
		} else {
			threadCount = 1
		}
		avctx.ThreadCount = threadCount
	}

	if threadCount <= 1 {
		avctx.ActiveThreadType = 0
		return nil, nil
	}

	p := &Pipeline{delaying: true}
	p.asyncCond = sync.NewCond(&p.asyncMu)
	p.asyncLocked = true

	avctx.ActiveThreadType = codec.ThreadTypeFrame
	avctx.Delay = threadCount - 1
	avctx.ThreadCtx = p

	p.workers = make([]*worker, 0, threadCount)
	for i := 0; i < threadCount; i++ {
		if err := p.initWorker(avctx, i == 0); err != nil {
			p.Close(avctx)
			return nil, err
		}
	}

	return p, nil
}

// initWorker appends and starts one worker with a private context copy. On
// failure the worker stays in the slice so Close can unwind it.
func (p *Pipeline) initWorker(avctx *codec.Context, first bool) error {
	w := &worker{
		parent: p,
		pkt:    &codec.Packet{},
		frame:  &codec.Frame{},
		done:   make(chan struct{}),
	}
	w.inputCond = sync.NewCond(&w.mu)
	w.progressCond = sync.NewCond(&w.progressMu)
	w.outputCond = sync.NewCond(&w.progressMu)

	cp := *avctx
	cp.Priv = nil
	cp.ThreadCtx = w
	cp.IsCopy = !first
	if cp.SliceOffsets != nil {
		cp.SliceOffsets = append([]int(nil), avctx.SliceOffsets...)
	}
	w.ctx = &cp

	p.workers = append(p.workers, w)

	if cloner, ok := avctx.Codec.(codec.PrivDataCloner); ok {
		if err := cloner.ClonePrivData(w.ctx, avctx); err != nil {
			return fmt.Errorf("failed to copy codec private data: %w", err)
		}
	}

	if err := avctx.Codec.Init(w.ctx); err != nil {
		if avctx.Codec.Capabilities()&codec.CapInitCleanup != 0 {
			w.initState = workerNeedsClose
		}
		return fmt.Errorf("codec init failed: %w", err)
	}
	w.initState = workerNeedsClose

	if first {
		if err := updateContextFromWorker(avctx, w.ctx, true); err != nil {
			return err
		}
	}

	w.debugThreads.Store(cp.Debug&codec.DebugThreads != 0)

	go w.run()
	w.initState = workerInitialized

	return nil
}

// park waits until every worker is idle. The async gate is dropped for the
// duration so accelerator setup still in flight can complete.
func (p *Pipeline) park() {
	p.asyncUnlock()

	for _, w := range p.workers {
		if w.loadState() != stateInputReady {
			w.progressMu.Lock()
			for w.loadState() != stateInputReady {
				w.outputCond.Wait()
			}
			w.progressMu.Unlock()
		}
		w.gotFrame = false
	}

	p.asyncLockAcquire()
}

// Flush discards all queued output and codec state, returning the pipeline
// to its primed-empty condition. Worker zero inherits the most recent
// decoder state so the next stream position starts from a consistent
// reference. Flush is idempotent.
func (p *Pipeline) Flush(avctx *codec.Context) {
	p.park()

	if p.prev != nil && p.prev != p.workers[0] {
		if err := updateContextFromWorker(p.workers[0].ctx, p.prev.ctx, false); err != nil {
			avctx.Log("state copy to worker 0 failed during flush: %v", err)
		}
	}

	p.nextDecoding = 0
	p.nextFinished = 0
	p.delaying = true
	p.prev = nil

	for _, w := range p.workers {
		// Make sure drain calls after the flush cannot return old frames.
		w.gotFrame = false
		w.frame.Unref()
		w.result = nil

		w.releaseDelayedBuffers()

		avctx.Codec.Flush(w.ctx)
	}
}

// Close parks and joins all workers, propagates final decoder state back to
// the canonical context so derived fields survive teardown, and releases
// per-worker resources. Safe on a partially constructed pipeline.
func (p *Pipeline) Close(avctx *codec.Context) {
	p.park()

	mtSafeAccel := avctx.HWAccel != nil && avctx.HWAccel.Caps&codec.HWAccelMTSafe != 0
	if p.prev != nil {
		if err := updateContextFromWorker(avctx, p.prev.ctx, true); err != nil {
			avctx.Log("failed to update user context on close: %v", err)
		}
	}
	if !mtSafeAccel && p.prev != nil && len(p.workers) > 0 && p.prev != p.workers[0] {
		if err := updateContextFromWorker(p.workers[0].ctx, p.prev.ctx, false); err != nil {
			avctx.Log("final worker state update failed: %v", err)
			p.prev.ctx.IsCopy, p.workers[0].ctx.IsCopy = p.workers[0].ctx.IsCopy, true
		}
	}

	for _, w := range p.workers {
		if w.initState == workerInitialized {
			w.mu.Lock()
			w.die = true
			w.inputCond.Signal()
			w.mu.Unlock()

			<-w.done
		}
		if w.initState != workerUninitialized {
			if err := avctx.Codec.Close(w.ctx); err != nil {
				avctx.Log("codec close failed: %v", err)
			}
		}

		w.releaseDelayedBuffers()
		w.frame.Unref()
		w.pkt.Unref()
	}

	// Hand stashed accelerator state back to the canonical context so the
	// caller can release it with the decoder.
	if avctx.HWAccel != nil && avctx.HWAccel.Caps&codec.HWAccelMTSafe == 0 {
		avctx.HWAccel, p.stashHWAccel = p.stashHWAccel, avctx.HWAccel
		avctx.HWAccelContext, p.stashHWAccelContext = p.stashHWAccelContext, avctx.HWAccelContext
		avctx.HWAccelPriv, p.stashHWAccelPriv = p.stashHWAccelPriv, avctx.HWAccelPriv
	}

	p.workers = nil
	avctx.ThreadCtx = nil
}
