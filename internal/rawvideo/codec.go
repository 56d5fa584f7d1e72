package rawvideo

import (
	"fmt"

	"github.com/five82/spool/internal/codec"
	"github.com/five82/spool/internal/pipeline"
)

// Codec decodes band streams. Each frame is decoded into a pipeline-managed
// buffer; inter frames wait on the previous frame's row progress before
// applying their deltas, which is exactly the dependency shape the pipeline
// exists to coordinate.
type Codec struct{}

// decState is the per-context private data: the reference frame handed from
// worker to worker, and the expected next frame index.
type decState struct {
	prev    codec.ThreadFrame
	nextIdx uint32
}

func (Codec) Name() string { return "bandraw" }

func (Codec) Capabilities() codec.Capabilities {
	return codec.CapAllocateProgress
}

func (Codec) Init(ctx *codec.Context) error {
	if ctx.Priv == nil {
		ctx.Priv = &decState{}
	}
	return nil
}

func (Codec) Close(ctx *codec.Context) error {
	st, ok := ctx.Priv.(*decState)
	if !ok {
		return nil
	}
	if st.prev.F != nil {
		pipeline.ReleaseBuffer(ctx, &st.prev)
	}
	ctx.Priv = nil
	return nil
}

func (Codec) Flush(ctx *codec.Context) {
	st := ctx.Priv.(*decState)
	if st.prev.F != nil {
		pipeline.ReleaseBuffer(ctx, &st.prev)
	}
	st.prev = codec.ThreadFrame{}
	st.nextIdx = 0
}

// ClonePrivData gives each worker's context its own decode state.
func (Codec) ClonePrivData(dst, src *codec.Context) error {
	dst.Priv = &decState{}
	return nil
}

// UpdateThreadContext hands the reference frame from the worker that decoded
// the previous packet to the worker about to decode the next one.
func (Codec) UpdateThreadContext(dst, src *codec.Context) error {
	ds := dst.Priv.(*decState)
	ss := src.Priv.(*decState)

	if ds.prev.F != nil {
		pipeline.ReleaseBuffer(dst, &ds.prev)
	}
	ds.prev = codec.ThreadFrame{}
	if ss.prev.F != nil {
		ds.prev.Ref(&ss.prev)
	}
	ds.nextIdx = ss.nextIdx
	return nil
}

func (c Codec) Decode(ctx *codec.Context, frame *codec.Frame, pkt *codec.Packet) (bool, error) {
	st := ctx.Priv.(*decState)

	if ctx.Width == 0 || ctx.Height == 0 {
		return false, fmt.Errorf("stream dimensions not configured")
	}

	hdr, bands, err := parsePacket(pkt.Data, ctx.Width)
	if err != nil {
		return false, err
	}
	if hdr.corrupt {
		return false, fmt.Errorf("corrupt packet for frame %d", hdr.frameIdx)
	}
	if !hdr.intra && st.prev.F == nil {
		return false, fmt.Errorf("inter frame %d without a reference", hdr.frameIdx)
	}
	if hdr.frameIdx != st.nextIdx {
		ctx.Log("frame index gap: expected %d, got %d", st.nextIdx, hdr.frameIdx)
	}

	if ctx.PixFmt == codec.PixFmtNone {
		ctx.PixFmt = pipeline.GetFormat(ctx, []codec.PixelFormat{codec.PixFmtGray8})
		if ctx.PixFmt == codec.PixFmtNone {
			return false, fmt.Errorf("pixel format negotiation failed")
		}
		ctx.CodedWidth = ctx.Width
		ctx.CodedHeight = ctx.Height
	}

	cur := &codec.ThreadFrame{F: &codec.Frame{}}
	if err := pipeline.GetBuffer(ctx, cur, 0); err != nil {
		return false, err
	}
	cur.F.PTS = pkt.PTS
	cur.F.Opaque = hdr.frameIdx

	// Publish the in-progress frame as the reference for the next worker,
	// then declare setup done: the next packet may start decoding against
	// it and wait on row progress as needed.
	oldPrev := st.prev
	st.prev = codec.ThreadFrame{}
	st.prev.Ref(cur)
	st.nextIdx = hdr.frameIdx + 1
	pipeline.FinishSetup(ctx)

	for _, b := range bands {
		end := b.startRow + len(b.rows)
		if end > ctx.Height {
			c.giveUp(ctx, cur, &oldPrev)
			return false, fmt.Errorf("band exceeds frame height in frame %d", hdr.frameIdx)
		}

		if !hdr.intra {
			// Deltas read the co-located rows of the reference; wait until
			// the previous frame has produced them.
			pipeline.AwaitProgress(&oldPrev, end, 0)
		}

		for r, row := range b.rows {
			dst := cur.F.Data[(b.startRow+r)*ctx.Width : (b.startRow+r+1)*ctx.Width]
			if hdr.intra {
				copy(dst, row)
			} else {
				ref := oldPrev.F.Data[(b.startRow+r)*ctx.Width : (b.startRow+r+1)*ctx.Width]
				for i := range dst {
					dst[i] = ref[i] + row[i]
				}
			}
		}

		pipeline.ReportProgress(cur, end, 0)
	}
	pipeline.ReportProgress(cur, ctx.Height, 0)

	if oldPrev.F != nil {
		pipeline.ReleaseBuffer(ctx, &oldPrev)
	}

	frame.Ref(cur.F)
	frame.DTS = pkt.DTS
	pipeline.ReleaseBuffer(ctx, cur)

	ctx.FrameNumber++
	return true, nil
}

// giveUp abandons a partially decoded frame, making sure waiters on its
// progress are never left blocked and references are returned.
func (c Codec) giveUp(ctx *codec.Context, cur *codec.ThreadFrame, oldPrev *codec.ThreadFrame) {
	pipeline.ReportProgress(cur, ctx.Height, 0)
	st := ctx.Priv.(*decState)
	if st.prev.F != nil {
		pipeline.ReleaseBuffer(ctx, &st.prev)
		st.prev = codec.ThreadFrame{}
	}
	if oldPrev.F != nil {
		pipeline.ReleaseBuffer(ctx, oldPrev)
	}
	pipeline.ReleaseBuffer(ctx, cur)
}
