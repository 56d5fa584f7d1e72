package codec

import "fmt"

// PixelFormat identifies the memory layout of decoded pictures.
type PixelFormat int

const (
	PixFmtNone PixelFormat = iota - 1
	PixFmtGray8
	PixFmtYUV420P
	PixFmtNV12
	PixFmtGray16
)

// String returns the conventional short name for the format.
func (f PixelFormat) String() string {
	switch f {
	case PixFmtNone:
		return "none"
	case PixFmtGray8:
		return "gray8"
	case PixFmtYUV420P:
		return "yuv420p"
	case PixFmtNV12:
		return "nv12"
	case PixFmtGray16:
		return "gray16"
	default:
		return fmt.Sprintf("pixfmt(%d)", int(f))
	}
}

// FrameSize returns the byte size of one frame in the given format, or 0 for
// unknown formats.
func FrameSize(f PixelFormat, width, height int) int {
	area := width * height
	switch f {
	case PixFmtGray8:
		return area
	case PixFmtYUV420P, PixFmtNV12:
		return area * 3 / 2
	case PixFmtGray16:
		return area * 2
	default:
		return 0
	}
}

// AllocFrame attaches freshly allocated storage for the context's current
// dimensions and pixel format. It is the built-in buffer allocator and is
// safe to call from any goroutine.
func AllocFrame(ctx *Context, f *Frame) error {
	size := FrameSize(ctx.PixFmt, ctx.Width, ctx.Height)
	if size <= 0 {
		return fmt.Errorf("cannot allocate frame for %s %dx%d", ctx.PixFmt, ctx.Width, ctx.Height)
	}
	f.Width = ctx.Width
	f.Height = ctx.Height
	f.Format = ctx.PixFmt
	f.SetBuffer(NewFrameBuffer(make([]byte, size), nil))
	return nil
}
