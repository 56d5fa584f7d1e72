package pipeline

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/spool/internal/codec"
)

// refState carries a reference frame between workers.
type refState struct {
	prev codec.ThreadFrame
}

// refCodec decodes row by row against the previous frame, waiting on its row
// progress, so consecutive decodes genuinely overlap and depend on each
// other. It implements the state-copy hook and calls FinishSetup itself.
type refCodec struct {
	rows     int
	rowDelay time.Duration

	// maxInSetup tracks the highest number of workers simultaneously inside
	// the setup window (decode entry to FinishSetup).
	inSetup    atomic.Int32
	maxInSetup atomic.Int32
}

func (*refCodec) Name() string { return "ref" }

func (*refCodec) Capabilities() codec.Capabilities { return codec.CapAllocateProgress }

func (*refCodec) Init(ctx *codec.Context) error {
	if ctx.Priv == nil {
		ctx.Priv = &refState{}
	}
	return nil
}

func (*refCodec) Close(ctx *codec.Context) error {
	st, ok := ctx.Priv.(*refState)
	if ok && st.prev.F != nil {
		ReleaseBuffer(ctx, &st.prev)
	}
	return nil
}

func (*refCodec) Flush(ctx *codec.Context) {
	st := ctx.Priv.(*refState)
	if st.prev.F != nil {
		ReleaseBuffer(ctx, &st.prev)
	}
	st.prev = codec.ThreadFrame{}
}

func (*refCodec) ClonePrivData(dst, src *codec.Context) error {
	dst.Priv = &refState{}
	return nil
}

func (*refCodec) UpdateThreadContext(dst, src *codec.Context) error {
	ds := dst.Priv.(*refState)
	ss := src.Priv.(*refState)
	if ds.prev.F != nil {
		ReleaseBuffer(dst, &ds.prev)
	}
	ds.prev = codec.ThreadFrame{}
	if ss.prev.F != nil {
		ds.prev.Ref(&ss.prev)
	}
	return nil
}

func (c *refCodec) Decode(ctx *codec.Context, frame *codec.Frame, pkt *codec.Packet) (bool, error) {
	n := c.inSetup.Add(1)
	for {
		m := c.maxInSetup.Load()
		if n <= m || c.maxInSetup.CompareAndSwap(m, n) {
			break
		}
	}

	st := ctx.Priv.(*refState)
	idx := pkt.Opaque.(int)

	cur := &codec.ThreadFrame{F: &codec.Frame{}}
	if err := GetBuffer(ctx, cur, 0); err != nil {
		c.inSetup.Add(-1)
		return false, err
	}

	old := st.prev
	st.prev = codec.ThreadFrame{}
	st.prev.Ref(cur)

	c.inSetup.Add(-1)
	FinishSetup(ctx)

	for row := 0; row < c.rows; row++ {
		if old.F != nil {
			AwaitProgress(&old, row+1, 0)
			if got := old.Progress.Load(0); got < row+1 {
				ReleaseBuffer(ctx, &old)
				ReleaseBuffer(ctx, cur)
				return false, fmt.Errorf("await returned with progress %d < %d", got, row+1)
			}
			// The reference row is final now; derive from it.
			cur.F.Data[row] = old.F.Data[row] + 1
		} else {
			cur.F.Data[row] = byte(idx)
		}
		time.Sleep(c.rowDelay)
		ReportProgress(cur, row+1, 0)
	}

	if old.F != nil {
		ReleaseBuffer(ctx, &old)
	}

	frame.Ref(cur.F)
	frame.Opaque = idx
	ReleaseBuffer(ctx, cur)
	return true, nil
}

func newRefContext(t *testing.T, c *refCodec, threads int) (*codec.Context, *Pipeline) {
	t.Helper()
	ctx := &codec.Context{
		Codec:       c,
		Width:       1,
		Height:      c.rows,
		PixFmt:      codec.PixFmtGray8,
		SwPixFmt:    codec.PixFmtGray8,
		ThreadCount: threads,
	}
	p, err := Init(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	return ctx, p
}

func TestCrossFrameProgressDependency(t *testing.T) {
	c := &refCodec{rows: 16, rowDelay: 200 * time.Microsecond}
	ctx, p := newRefContext(t, c, 2)
	defer p.Close(ctx)

	outputs := decodeAll(t, p, ctx, 6)

	require.Len(t, outputs, 6)
	for i, out := range outputs {
		assert.Equal(t, i, out, "output %d out of order", i)
	}
}

func TestAtMostOneWorkerInSetup(t *testing.T) {
	c := &refCodec{rows: 8, rowDelay: 100 * time.Microsecond}
	ctx, p := newRefContext(t, c, 4)
	defer p.Close(ctx)

	outputs := decodeAll(t, p, ctx, 12)

	require.Len(t, outputs, 12)
	assert.LessOrEqual(t, c.maxInSetup.Load(), int32(1),
		"two workers were inside the setup window at once")
}

func TestDerivedRowsFlowThroughReferences(t *testing.T) {
	// Frame k's rows are frame k-1's rows plus one, so any progress
	// violation shows up as corrupted pixel data.
	c := &refCodec{rows: 32, rowDelay: 50 * time.Microsecond}
	ctx, p := newRefContext(t, c, 3)
	defer p.Close(ctx)

	var frames [][]byte
	frame := &codec.Frame{}
	collect := func(got bool) {
		if got {
			buf := append([]byte(nil), frame.Data...)
			frames = append(frames, buf)
			frame.Unref()
		}
	}

	const count = 9
	for i := 0; i < count; i++ {
		_, got, err := p.DecodeFrame(ctx, frame, makePacket(i))
		require.NoError(t, err)
		collect(got)
	}
	empty := &codec.Packet{}
	for {
		_, got, err := p.DecodeFrame(ctx, frame, empty)
		require.NoError(t, err)
		if !got {
			break
		}
		collect(got)
	}

	require.Len(t, frames, count)
	for k, data := range frames {
		for row := 0; row < c.rows; row++ {
			assert.Equal(t, byte(k), data[row],
				"frame %d row %d corrupted", k, row)
		}
	}
}

func TestReportProgressIsMonotone(t *testing.T) {
	pr := codec.NewProgress()
	owner := &codec.Context{}
	f := &codec.ThreadFrame{
		F:        &codec.Frame{},
		Progress: pr,
		Owner:    [2]*codec.Context{owner, owner},
	}

	ReportProgress(f, 10, 0)
	assert.Equal(t, 10, pr.Load(0))

	// Reporting a lower value never lowers the counter.
	ReportProgress(f, 5, 0)
	assert.Equal(t, 10, pr.Load(0))

	ReportProgress(f, 12, 0)
	assert.Equal(t, 12, pr.Load(0))

	// Fields are independent.
	assert.Equal(t, -1, pr.Load(1))
	ReportProgress(f, 3, 1)
	assert.Equal(t, 3, pr.Load(1))
}

func TestAwaitProgressReturnsImmediatelyWithoutCounters(t *testing.T) {
	f := &codec.ThreadFrame{F: &codec.Frame{}}
	done := make(chan struct{})
	go func() {
		AwaitProgress(f, 100, 0)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AwaitProgress blocked on a frame without progress counters")
	}
}
