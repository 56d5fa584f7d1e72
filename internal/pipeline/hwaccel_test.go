package pipeline

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/spool/internal/codec"
)

// hwState is the private data of hwCodec; it only exists so the codec has a
// state-copy hook, which decoders driving an accelerator are required to
// implement.
type hwState struct{}

// hwCodec drives a (fake) accelerator for every frame and records how many
// decodes are inside accelerator work at once.
type hwCodec struct {
	delay time.Duration

	inAccel    atomic.Int32
	maxInAccel atomic.Int32
}

func (*hwCodec) Name() string                     { return "hw" }
func (*hwCodec) Capabilities() codec.Capabilities { return 0 }

func (*hwCodec) Init(ctx *codec.Context) error {
	if ctx.Priv == nil {
		ctx.Priv = &hwState{}
	}
	return nil
}

func (*hwCodec) Close(*codec.Context) error { return nil }
func (*hwCodec) Flush(*codec.Context)       {}

func (*hwCodec) ClonePrivData(dst, src *codec.Context) error {
	dst.Priv = &hwState{}
	return nil
}

func (*hwCodec) UpdateThreadContext(dst, src *codec.Context) error { return nil }

func (c *hwCodec) Decode(ctx *codec.Context, frame *codec.Frame, pkt *codec.Packet) (bool, error) {
	if pkt.Size() == 0 {
		return false, nil
	}

	FinishSetup(ctx)

	// Everything below models accelerator work; with a non-MT-safe
	// accelerator no two workers may be here at the same time.
	n := c.inAccel.Add(1)
	for {
		m := c.maxInAccel.Load()
		if n <= m || c.maxInAccel.CompareAndSwap(m, n) {
			break
		}
	}

	if ctx.HWAccel != nil && ctx.HWAccel.StartFrame != nil {
		if err := ctx.HWAccel.StartFrame(ctx); err != nil {
			c.inAccel.Add(-1)
			return false, err
		}
	}
	time.Sleep(c.delay)
	if ctx.HWAccel != nil && ctx.HWAccel.EndFrame != nil {
		if err := ctx.HWAccel.EndFrame(ctx); err != nil {
			c.inAccel.Add(-1)
			return false, err
		}
	}

	c.inAccel.Add(-1)

	frame.SetBuffer(codec.NewFrameBuffer(make([]byte, 1), nil))
	frame.Opaque = pkt.Opaque
	return true, nil
}

func newHWContext(t *testing.T, c *hwCodec, accel *codec.HWAccel, threads int) (*codec.Context, *Pipeline) {
	t.Helper()
	ctx := &codec.Context{
		Codec:          c,
		Width:          8,
		Height:         8,
		PixFmt:         codec.PixFmtGray8,
		SwPixFmt:       codec.PixFmtGray8,
		ThreadCount:    threads,
		HWAccel:        accel,
		HWAccelContext: "accel-ctx",
		HWAccelPriv:    "accel-priv",
	}
	p, err := Init(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	return ctx, p
}

func TestNonMTSafeAccelSerializesWorkers(t *testing.T) {
	c := &hwCodec{delay: time.Millisecond}
	accel := &codec.HWAccel{Name: "fake", Caps: 0}
	ctx, p := newHWContext(t, c, accel, 4)
	defer p.Close(ctx)

	outputs := decodeAll(t, p, ctx, 10)

	require.Len(t, outputs, 10)
	for i, out := range outputs {
		assert.Equal(t, i, out)
	}
	assert.Equal(t, int32(1), c.maxInAccel.Load(),
		"two decoders were inside accelerator work at once")
}

func TestMTSafeAccelRunsConcurrently(t *testing.T) {
	c := &hwCodec{delay: 2 * time.Millisecond}
	accel := &codec.HWAccel{Name: "fake-mt", Caps: codec.HWAccelMTSafe | codec.HWAccelAsyncSafe}
	ctx, p := newHWContext(t, c, accel, 4)
	defer p.Close(ctx)

	outputs := decodeAll(t, p, ctx, 12)

	require.Len(t, outputs, 12)
	for i, out := range outputs {
		assert.Equal(t, i, out)
	}
	// Concurrency is timing-dependent, so only the ordering is asserted;
	// the MT-safe path must not serialize through the stash.
	assert.Nil(t, p.stashHWAccel)
}

func TestAccelStashHandsStateBackOnClose(t *testing.T) {
	c := &hwCodec{delay: time.Millisecond}
	accel := &codec.HWAccel{Name: "fake", Caps: 0}
	ctx, p := newHWContext(t, c, accel, 3)

	outputs := decodeAll(t, p, ctx, 6)
	require.Len(t, outputs, 6)

	// All workers are drained; the last setup's accelerator state sits in
	// the stash awaiting a submission that never comes.
	p.park()
	assert.Same(t, accel, p.stashHWAccel)

	p.Close(ctx)

	// Teardown returns the stashed state to the canonical context.
	assert.Same(t, accel, ctx.HWAccel)
	assert.Equal(t, "accel-ctx", ctx.HWAccelContext)
	assert.Equal(t, "accel-priv", ctx.HWAccelPriv)
}

func TestNonAsyncSafeAccelCompletes(t *testing.T) {
	// The async gate serializes setup windows; this must still make
	// progress and keep ordering.
	c := &hwCodec{delay: time.Millisecond}
	accel := &codec.HWAccel{Name: "fake-sync", Caps: 0}
	ctx, p := newHWContext(t, c, accel, 2)
	defer p.Close(ctx)

	outputs := decodeAll(t, p, ctx, 8)
	require.Len(t, outputs, 8)
	for i, out := range outputs {
		assert.Equal(t, i, out)
	}
}
