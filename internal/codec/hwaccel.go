package codec

// HWAccelCaps are capability bits describing how an accelerator's callbacks
// may be invoked.
type HWAccelCaps uint32

const (
	// HWAccelMTSafe means the accelerator's callbacks may run on several
	// workers concurrently. Without it the pipeline serializes all accel
	// work behind one mutex and hands accelerator state from worker to
	// worker through the coordinator's stash.
	HWAccelMTSafe HWAccelCaps = 1 << iota

	// HWAccelAsyncSafe means accelerator work may run while the caller is
	// outside the decode entry point. Without it the worker takes a logical
	// setup-in-flight gate in FinishSetup and holds it until its decode
	// returns; the caller releases that gate only while inside DecodeFrame.
	HWAccelAsyncSafe
)

// HWAccel describes an out-of-core acceleration driver. The pipeline only
// inspects the capability mask; the hooks exist for back-ends to drive.
type HWAccel struct {
	Name string
	Caps HWAccelCaps

	// StartFrame and EndFrame bracket accelerator work for one frame. Nil
	// hooks are skipped.
	StartFrame func(ctx *Context) error
	EndFrame   func(ctx *Context) error
}
