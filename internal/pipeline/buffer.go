package pipeline

import "github.com/five82/spool/internal/codec"

// maxReleasedBuffers bounds a worker's deferred-release queue. When the
// queue is full the frame's storage is leaked with a warning rather than
// freed on a goroutine the user's deallocator may not accept.
const maxReleasedBuffers = 64

// GetBuffer allocates backing storage for the frame the codec is decoding
// into. With frame threading active it must be called during setup; the call
// is serialized behind the coordinator's buffer mutex, and reflected onto
// the caller goroutine when the user's allocator is not thread-safe. When
// the codec asked for progress counters they are attached here.
func GetBuffer(ctx *codec.Context, f *codec.ThreadFrame, flags int) error {
	err := getBufferInternal(ctx, f, flags)
	if err != nil {
		ctx.Log("GetBuffer failed: %v", err)
	}
	return err
}

func getBufferInternal(ctx *codec.Context, f *codec.ThreadFrame, flags int) error {
	f.Owner[0] = ctx
	f.Owner[1] = ctx

	if !frameThreadActive(ctx) {
		return callGetBuffer(ctx, f.F, flags)
	}

	w, ok := ctx.ThreadCtx.(*worker)
	if !ok {
		return callGetBuffer(ctx, f.F, flags)
	}

	_, hasUpdater := ctx.Codec.(codec.ThreadContextUpdater)
	if w.loadState() != stateSettingUp && (hasUpdater || !threadSafeCallbacks(ctx)) {
		ctx.Log("GetBuffer cannot be called after FinishSetup")
		return ErrInvalidCallOrder
	}

	if ctx.Codec.Capabilities()&codec.CapAllocateProgress != 0 {
		f.Progress = codec.NewProgress()
	}

	fctx := w.parent
	fctx.bufferMu.Lock()

	var err error
	if threadSafeCallbacks(ctx) {
		err = callGetBuffer(ctx, f.F, flags)
	} else {
		// Park in AwaitingBuffer; the coordinator's reflection loop invokes
		// the user allocator and signals back.
		w.progressMu.Lock()
		w.requestedFrame = f.F
		w.requestedFlags = flags
		w.storeState(stateGetBuffer)
		w.progressCond.Broadcast()

		for w.loadState() != stateSettingUp {
			w.progressCond.Wait()
		}

		err = w.reqErr
		w.requestedFrame = nil
		w.progressMu.Unlock()
	}
	if !threadSafeCallbacks(ctx) && !hasUpdater {
		FinishSetup(ctx)
	}

	if err != nil {
		f.Progress = nil
	}

	fctx.bufferMu.Unlock()

	return err
}

// GetFormat negotiates the output pixel format with the user. Like the
// buffer path, the call is reflected onto the caller goroutine when the
// user's negotiator is not thread-safe.
func GetFormat(ctx *codec.Context, formats []codec.PixelFormat) codec.PixelFormat {
	w, ok := ctx.ThreadCtx.(*worker)
	if !ok || !frameThreadActive(ctx) || ctx.ThreadSafeCallbacks || ctx.GetFormat == nil {
		return callGetFormat(ctx, formats)
	}
	if w.loadState() != stateSettingUp {
		ctx.Log("GetFormat cannot be called after FinishSetup")
		return codec.PixFmtNone
	}

	w.progressMu.Lock()
	w.availableFormats = formats
	w.storeState(stateGetFormat)
	w.progressCond.Broadcast()

	for w.loadState() != stateSettingUp {
		w.progressCond.Wait()
	}

	res := w.resultFormat
	w.availableFormats = nil
	w.progressMu.Unlock()

	return res
}

// ReleaseBuffer returns an output frame's storage. When the storage came
// from a thread-affine user allocator the frame is queued on the worker that
// owns ctx and freed the next time the coordinator submits to that worker,
// flushes or closes, so the deallocator always observes the caller goroutine.
func ReleaseBuffer(ctx *codec.Context, f *codec.ThreadFrame) {
	if f.F == nil {
		return
	}

	if ctx.Debug&codec.DebugBuffers != 0 {
		ctx.Log("ReleaseBuffer called on frame %p", f)
	}

	canDirectFree := !frameThreadActive(ctx) || threadSafeCallbacks(ctx)

	f.Progress = nil
	f.Owner[0] = nil
	f.Owner[1] = nil

	if canDirectFree || !f.F.HasBuffer() {
		f.F.Unref()
		return
	}

	w, ok := ctx.ThreadCtx.(*worker)
	if !ok {
		f.F.Unref()
		return
	}
	fctx := w.parent

	fctx.bufferMu.Lock()
	if len(w.releasedBuffers) >= maxReleasedBuffers {
		fctx.bufferMu.Unlock()
		// Leaking is preferred over freeing on a forbidden goroutine.
		ctx.Log("could not queue a frame for freeing, this will leak")
		f.F.Drop()
		return
	}

	dst := &codec.Frame{}
	dst.MoveRef(f.F)
	w.releasedBuffers = append(w.releasedBuffers, dst)
	fctx.bufferMu.Unlock()
}
