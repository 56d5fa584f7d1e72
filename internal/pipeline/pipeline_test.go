package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/spool/internal/codec"
)

// echoCodec is stateless between packets: it copies the packet's payload
// index into the output frame and nothing else. No updater, thread-safe
// callbacks, so workers declare setup done immediately.
type echoCodec struct{}

func (echoCodec) Name() string                      { return "echo" }
func (echoCodec) Capabilities() codec.Capabilities  { return 0 }
func (echoCodec) Init(*codec.Context) error         { return nil }
func (echoCodec) Close(*codec.Context) error        { return nil }
func (echoCodec) Flush(*codec.Context) {}
func (echoCodec) Decode(ctx *codec.Context, frame *codec.Frame, pkt *codec.Packet) (bool, error) {
	if pkt.Size() == 0 {
		return false, nil
	}
	frame.SetBuffer(codec.NewFrameBuffer(make([]byte, 1), nil))
	frame.Opaque = pkt.Opaque
	return true, nil
}

// failCodec is echoCodec with an injected failure on one packet index.
type failCodec struct {
	failAt int
}

func (failCodec) Name() string                     { return "fail" }
func (failCodec) Capabilities() codec.Capabilities { return 0 }
func (failCodec) Init(*codec.Context) error        { return nil }
func (failCodec) Close(*codec.Context) error       { return nil }
func (failCodec) Flush(*codec.Context) {}
func (c failCodec) Decode(ctx *codec.Context, frame *codec.Frame, pkt *codec.Packet) (bool, error) {
	if pkt.Size() == 0 {
		return false, nil
	}
	if pkt.Opaque.(int) == c.failAt {
		return false, fmt.Errorf("injected failure on packet %d", c.failAt)
	}
	frame.SetBuffer(codec.NewFrameBuffer(make([]byte, 1), nil))
	frame.Opaque = pkt.Opaque
	return true, nil
}

// dimCodec derives per-packet dimensions, for checking state propagation to
// the user context.
type dimCodec struct{}

func (dimCodec) Name() string                     { return "dim" }
func (dimCodec) Capabilities() codec.Capabilities { return 0 }
func (dimCodec) Init(*codec.Context) error        { return nil }
func (dimCodec) Close(*codec.Context) error       { return nil }
func (dimCodec) Flush(*codec.Context) {}
func (dimCodec) Decode(ctx *codec.Context, frame *codec.Frame, pkt *codec.Packet) (bool, error) {
	if pkt.Size() == 0 {
		return false, nil
	}
	idx := pkt.Opaque.(int)
	ctx.Width = 100 + idx
	ctx.Height = 50 + idx
	frame.SetBuffer(codec.NewFrameBuffer(make([]byte, 1), nil))
	frame.Opaque = idx
	return true, nil
}

func newTestContext(t *testing.T, c codec.Codec, threads int) (*codec.Context, *Pipeline) {
	t.Helper()
	ctx := &codec.Context{
		Codec:       c,
		Width:       8,
		Height:      8,
		PixFmt:      codec.PixFmtGray8,
		SwPixFmt:    codec.PixFmtGray8,
		ThreadCount: threads,
	}
	p, err := Init(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	return ctx, p
}

func makePacket(idx int) *codec.Packet {
	return &codec.Packet{Data: []byte{byte(idx)}, DTS: int64(idx), PTS: int64(idx), Opaque: idx}
}

// decodeAll submits count packets and drains, returning the harvested
// outcomes in delivery order. Errors are recorded in place of outputs.
func decodeAll(t *testing.T, p *Pipeline, ctx *codec.Context, count int) []any {
	t.Helper()
	var outputs []any

	frame := &codec.Frame{}
	for i := 0; i < count; i++ {
		_, got, err := p.DecodeFrame(ctx, frame, makePacket(i))
		if err != nil {
			outputs = append(outputs, err)
			continue
		}
		if got {
			outputs = append(outputs, frame.Opaque)
			frame.Unref()
		}
	}

	empty := &codec.Packet{}
	for {
		_, got, err := p.DecodeFrame(ctx, frame, empty)
		if err != nil {
			outputs = append(outputs, err)
			continue
		}
		if !got {
			break
		}
		outputs = append(outputs, frame.Opaque)
		frame.Unref()
	}

	return outputs
}

func TestDecodeFIFO(t *testing.T) {
	ctx, p := newTestContext(t, echoCodec{}, 4)
	defer p.Close(ctx)

	outputs := decodeAll(t, p, ctx, 10)

	require.Len(t, outputs, 10)
	for i, out := range outputs {
		assert.Equal(t, i, out, "output %d out of order", i)
	}
}

func TestPrimingWindowProducesNothing(t *testing.T) {
	ctx, p := newTestContext(t, echoCodec{}, 4)
	defer p.Close(ctx)

	frame := &codec.Frame{}
	for i := 0; i < 3; i++ {
		consumed, got, err := p.DecodeFrame(ctx, frame, makePacket(i))
		require.NoError(t, err)
		assert.False(t, got, "no output expected while priming (packet %d)", i)
		assert.Equal(t, 1, consumed)
	}

	// Packet N-1 fills the pipeline; the first output appears.
	_, got, err := p.DecodeFrame(ctx, frame, makePacket(3))
	require.NoError(t, err)
	require.True(t, got)
	assert.Equal(t, 0, frame.Opaque)
	frame.Unref()
}

func TestDecodeErrorSurfacedInOrder(t *testing.T) {
	ctx, p := newTestContext(t, failCodec{failAt: 2}, 3)
	defer p.Close(ctx)

	outputs := decodeAll(t, p, ctx, 6)

	require.Len(t, outputs, 6)
	assert.Equal(t, 0, outputs[0])
	assert.Equal(t, 1, outputs[1])
	err, ok := outputs[2].(error)
	require.True(t, ok, "position 2 should carry the decode error, got %v", outputs[2])
	assert.ErrorContains(t, err, "injected failure")
	assert.Equal(t, 3, outputs[3])
	assert.Equal(t, 4, outputs[4])
	assert.Equal(t, 5, outputs[5])
}

func TestEmptyPacketWithoutDelayIsNoop(t *testing.T) {
	ctx, p := newTestContext(t, echoCodec{}, 2)
	defer p.Close(ctx)

	frame := &codec.Frame{}
	consumed, got, err := p.DecodeFrame(ctx, frame, &codec.Packet{})
	require.NoError(t, err)
	assert.False(t, got)
	assert.Zero(t, consumed)
}

func TestFlushResetsPriming(t *testing.T) {
	ctx, p := newTestContext(t, echoCodec{}, 2)
	defer p.Close(ctx)

	outputs := decodeAll(t, p, ctx, 5)
	require.Len(t, outputs, 5)

	p.Flush(ctx)

	// After the flush the first packet is suppressed again (N-1 = 1).
	frame := &codec.Frame{}
	_, got, err := p.DecodeFrame(ctx, frame, makePacket(0))
	require.NoError(t, err)
	assert.False(t, got, "priming should re-engage after flush")

	_, got, err = p.DecodeFrame(ctx, frame, makePacket(1))
	require.NoError(t, err)
	require.True(t, got)
	assert.Equal(t, 0, frame.Opaque)
	frame.Unref()

	_, got, err = p.DecodeFrame(ctx, frame, makePacket(2))
	require.NoError(t, err)
	require.True(t, got)
	assert.Equal(t, 1, frame.Opaque)
	frame.Unref()
}

func TestFlushIsIdempotent(t *testing.T) {
	ctx, p := newTestContext(t, echoCodec{}, 2)
	defer p.Close(ctx)

	outputs := decodeAll(t, p, ctx, 3)
	require.Len(t, outputs, 3)

	p.Flush(ctx)
	p.Flush(ctx)

	outputs = decodeAll(t, p, ctx, 3)
	require.Len(t, outputs, 3)
	for i, out := range outputs {
		assert.Equal(t, i, out)
	}
}

func TestFlushDiscardsPendingOutput(t *testing.T) {
	ctx, p := newTestContext(t, echoCodec{}, 3)
	defer p.Close(ctx)

	// Prime without harvesting everything, then flush.
	frame := &codec.Frame{}
	for i := 0; i < 2; i++ {
		_, _, err := p.DecodeFrame(ctx, frame, makePacket(i))
		require.NoError(t, err)
	}
	p.Flush(ctx)

	// A drain right after the flush must not resurrect old frames.
	_, got, err := p.DecodeFrame(ctx, frame, &codec.Packet{})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestCloseKeepsDerivedState(t *testing.T) {
	ctx, p := newTestContext(t, dimCodec{}, 3)

	outputs := decodeAll(t, p, ctx, 7)
	require.Len(t, outputs, 7)

	p.Close(ctx)

	// The user context carries the dimensions of the most recent producer.
	assert.Equal(t, 100+6, ctx.Width)
	assert.Equal(t, 50+6, ctx.Height)
}

func TestInitAutoThreadCount(t *testing.T) {
	ctx := &codec.Context{Codec: echoCodec{}, Width: 8, Height: 8, PixFmt: codec.PixFmtGray8}
	p, err := Init(ctx)
	require.NoError(t, err)

	assert.Greater(t, ctx.ThreadCount, 0)
	assert.LessOrEqual(t, ctx.ThreadCount, MaxAutoThreads)
	if p != nil {
		assert.Equal(t, ctx.ThreadCount-1, ctx.Delay)
		p.Close(ctx)
	}
}

func TestInitSingleThreadDisablesPipeline(t *testing.T) {
	ctx := &codec.Context{Codec: echoCodec{}, ThreadCount: 1}
	p, err := Init(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Zero(t, ctx.ActiveThreadType)
}

// initFailCodec fails Init on every context after the first.
type initFailCodec struct {
	caps  codec.Capabilities
	inits *int
}

func (initFailCodec) Name() string                       { return "initfail" }
func (c initFailCodec) Capabilities() codec.Capabilities { return c.caps }
func (c initFailCodec) Init(*codec.Context) error {
	*c.inits++
	if *c.inits > 1 {
		return errors.New("init blew up")
	}
	return nil
}
func (initFailCodec) Close(*codec.Context) error { return nil }
func (initFailCodec) Flush(*codec.Context) {}
func (initFailCodec) Decode(ctx *codec.Context, frame *codec.Frame, pkt *codec.Packet) (bool, error) {
	return false, nil
}

func TestInitFailureUnwinds(t *testing.T) {
	inits := 0
	ctx := &codec.Context{
		Codec:       initFailCodec{inits: &inits},
		ThreadCount: 4,
	}
	p, err := Init(ctx)
	require.Error(t, err)
	assert.Nil(t, p)
	assert.ErrorContains(t, err, "init blew up")
}
