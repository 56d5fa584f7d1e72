package pipeline

import "github.com/five82/spool/internal/codec"

// ReportProgress announces that all rows up to n of the given field are
// final. Values only grow; reporting a value at or below the current one is
// a no-op. Waiters observe, under the release/acquire pairing of the
// progress lock, every write the producer made before the report.
func ReportProgress(f *codec.ThreadFrame, n, field int) {
	pr := f.Progress
	if pr == nil || pr.Load(field) >= n {
		return
	}

	owner := f.Owner[field]
	w, ok := owner.ThreadCtx.(*worker)
	if !ok {
		pr.Store(field, n)
		return
	}

	if w.debugThreads.Load() {
		owner.Log("%p finished %d field %d", pr, n, field)
	}

	w.progressMu.Lock()
	pr.Store(field, n)
	w.progressCond.Broadcast()
	w.progressMu.Unlock()
}

// AwaitProgress blocks until the frame's producer has reported progress of
// at least n for the given field. The progress condvar is shared with
// setup-done and buffer-request notifications, so the wait rechecks its
// condition on every wakeup.
func AwaitProgress(f *codec.ThreadFrame, n, field int) {
	pr := f.Progress
	if pr == nil || pr.Load(field) >= n {
		return
	}

	owner := f.Owner[field]
	w, ok := owner.ThreadCtx.(*worker)
	if !ok {
		return
	}

	if w.debugThreads.Load() {
		owner.Log("thread awaiting %d field %d from %p", n, field, pr)
	}

	w.progressMu.Lock()
	for pr.Load(field) < n {
		w.progressCond.Wait()
	}
	w.progressMu.Unlock()
}

// FinishSetup is called by the codec (or by the worker loop on its behalf)
// once all state the next submission depends on has been derived. It latches
// serialized accelerator state into the coordinator stash and unblocks the
// submission waiting in SettingUp. A second call logs a warning but is
// otherwise idempotent.
func FinishSetup(ctx *codec.Context) {
	w, ok := ctx.ThreadCtx.(*worker)
	if !ok || !frameThreadActive(ctx) {
		return
	}

	// Only this worker's goroutine moves its state to SetupFinished, so the
	// unlocked check is stable; returning here keeps a repeated call from
	// taking the accelerator locks a second time.
	if w.loadState() == stateSetupFinished {
		ctx.Log("multiple FinishSetup calls")
		return
	}

	if ctx.HWAccel != nil && ctx.HWAccel.Caps&codec.HWAccelMTSafe == 0 && !w.hwaccelSerializing {
		w.parent.hwaccelMu.Lock()
		w.hwaccelSerializing = true
	}

	// No accelerator call happens before FinishSetup, so taking the async
	// gate here covers the whole setup window.
	if ctx.HWAccel != nil && ctx.HWAccel.Caps&codec.HWAccelAsyncSafe == 0 {
		w.asyncSerializing = true
		w.parent.asyncLockAcquire()
	}

	// Park accelerator state for the next submission to pick up. Only the
	// single worker currently in setup writes the stash, so no lock.
	if ctx.HWAccel != nil && ctx.HWAccel.Caps&codec.HWAccelMTSafe == 0 {
		if w.parent.stashHWAccel != nil {
			ctx.Log("accelerator stash already occupied")
		}
		w.parent.stashHWAccel = ctx.HWAccel
		w.parent.stashHWAccelContext = ctx.HWAccelContext
		w.parent.stashHWAccelPriv = ctx.HWAccelPriv
	}

	w.progressMu.Lock()
	w.storeState(stateSetupFinished)

	w.progressCond.Broadcast()
	w.progressMu.Unlock()
}

// CanStartFrame reports whether the codec may begin decoding a new frame.
// It returns false when the codec depends on cross-worker state or reflected
// callbacks and this worker's setup window has already closed.
func CanStartFrame(ctx *codec.Context) bool {
	w, ok := ctx.ThreadCtx.(*worker)
	if !ok || !frameThreadActive(ctx) {
		return true
	}
	_, hasUpdater := ctx.Codec.(codec.ThreadContextUpdater)
	if w.loadState() != stateSettingUp && (hasUpdater || !threadSafeCallbacks(ctx)) {
		return false
	}
	return true
}
