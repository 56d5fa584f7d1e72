package codec

// Debug flag bits for Context.Debug.
const (
	// DebugThreads enables per-event logging of pipeline activity.
	DebugThreads uint32 = 1 << iota
	// DebugBuffers enables logging of buffer hand-outs and releases.
	DebugBuffers
)

// Thread type bits for Context.ActiveThreadType.
const (
	// ThreadTypeFrame marks frame-parallel decoding as active.
	ThreadTypeFrame = 1 << iota
	// ThreadTypeSlice is a sibling strategy not implemented here.
	ThreadTypeSlice
)

// Discard is a skip hint forwarded to the codec back-end.
type Discard int

const (
	DiscardNone Discard = iota
	DiscardNonRef
	DiscardNonKey
	DiscardAll
)

// Rational is an exact fraction, used for time bases and aspect ratios.
type Rational struct {
	Num int
	Den int
}

// GetBufferFunc allocates the backing storage for an output frame. A nil
// function selects the built-in allocator, which is always thread-safe.
type GetBufferFunc func(ctx *Context, f *Frame, flags int) error

// GetFormatFunc picks the output pixel format from the codec's candidates.
type GetFormatFunc func(ctx *Context, formats []PixelFormat) PixelFormat

// Context carries decoder state. The user owns one canonical Context; the
// pipeline gives each worker a private copy and moves state between them at
// controlled hand-off points. Fields are grouped by who writes them.
type Context struct {
	Codec Codec

	// User-facing fields, copied from the canonical context into a worker's
	// context on every packet submission.
	Opaque              any
	Debug               uint32
	Flags               uint32
	SkipLoopFilter      Discard
	SkipIDCT            Discard
	SkipFrame           Discard
	FrameNumber         int64
	ReorderedOpaque     int64
	SliceCount          int
	SliceOffsets        []int
	GetBuffer           GetBufferFunc
	GetFormat           GetFormatFunc
	ThreadSafeCallbacks bool

	// Threading configuration, read at init.
	ThreadCount      int
	ActiveThreadType int
	Delay            int

	// Decoder-derived fields, produced by the codec during setup and copied
	// from worker k to worker k+1 (and back to the user on harvest).
	TimeBase             Rational
	Framerate            Rational
	Width                int
	Height               int
	CodedWidth           int
	CodedHeight          int
	PixFmt               PixelFormat
	SwPixFmt             PixelFormat
	HasBFrames           int
	BitsPerRawSample     int
	SampleAspectRatio    Rational
	Profile              int
	Level                int
	ColorPrimaries       int
	ColorTRC             int
	Colorspace           int
	ColorRange           int
	ChromaSampleLocation int

	// Hardware acceleration binding. HWFramesRef is shared by reference
	// between contexts that decode into the same hardware frame pool.
	HWAccel        *HWAccel
	HWAccelContext any
	HWAccelPriv    any
	HWFramesRef    *HWFramesRef

	// Priv is the codec's private data for this context.
	Priv any

	// ThreadCtx links this context to its pipeline slot. Worker copies point
	// at the owning worker, the canonical context at the coordinator. Opaque
	// to everything but the pipeline package.
	ThreadCtx any

	// IsCopy is false only on worker zero's context and the canonical one.
	IsCopy bool

	// Logf receives pipeline and codec log lines. Nil discards them.
	Logf func(format string, args ...any)
}

// Log formats a message through the context logger, if one is set.
func (c *Context) Log(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}

// HWFramesRef is a shared handle on a hardware frame pool. Contexts that
// decode into the same pool point at the same ref.
type HWFramesRef struct {
	Pool any
}
