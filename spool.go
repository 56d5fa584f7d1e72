// Package spool provides frame-parallel video decoding.
//
// Spool coordinates N decode workers so consecutive packets of one stream
// are decoded concurrently while outputs keep bitstream order. The
// pixel-producing work is delegated to a pluggable codec back-end; spool
// orders the work, hands decoder state between overlapping decodes, and
// serializes the callbacks that may not run concurrently.
//
// Basic usage:
//
//	dec, err := spool.New(rawvideo.Codec{},
//	    spool.WithThreads(4),
//	    spool.WithDimensions(1920, 1080),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dec.Close()
//
//	frame := &spool.Frame{}
//	for _, pkt := range packets {
//	    consumed, got, err := dec.Decode(frame, pkt)
//	    ...
//	}
package spool

import (
	"fmt"

	"github.com/five82/spool/internal/codec"
	"github.com/five82/spool/internal/pipeline"
)

// Decoder is the packet-level decoding handle. All methods must be called
// from a single goroutine.
type Decoder struct {
	ctx  *codec.Context
	pipe *pipeline.Pipeline
}

// Option configures the decoder context before the pipeline starts.
type Option func(*codec.Context)

// WithThreads sets the worker count. 0 selects automatically from the CPU
// count; 1 disables frame threading.
func WithThreads(n int) Option {
	return func(c *codec.Context) {
		c.ThreadCount = n
	}
}

// WithDimensions presets the stream dimensions for codecs whose bitstream
// does not carry them per packet.
func WithDimensions(width, height int) Option {
	return func(c *codec.Context) {
		c.Width = width
		c.Height = height
		c.CodedWidth = width
		c.CodedHeight = height
	}
}

// WithDebugThreads enables per-event logging of pipeline activity.
func WithDebugThreads() Option {
	return func(c *codec.Context) {
		c.Debug |= codec.DebugThreads
	}
}

// WithThreadSafeCallbacks declares the buffer and format callbacks safe to
// invoke from worker goroutines, bypassing callback reflection.
func WithThreadSafeCallbacks() Option {
	return func(c *codec.Context) {
		c.ThreadSafeCallbacks = true
	}
}

// WithBufferAllocator installs a custom output buffer allocator. Unless
// WithThreadSafeCallbacks is also given, the allocator only ever runs on the
// goroutine calling Decode.
func WithBufferAllocator(fn GetBufferFunc) Option {
	return func(c *codec.Context) {
		c.GetBuffer = fn
	}
}

// WithFormatNegotiator installs a custom pixel format negotiator, with the
// same goroutine guarantee as WithBufferAllocator.
func WithFormatNegotiator(fn GetFormatFunc) Option {
	return func(c *codec.Context) {
		c.GetFormat = fn
	}
}

// WithLogger routes decoder and pipeline log lines to fn.
func WithLogger(fn func(format string, args ...any)) Option {
	return func(c *codec.Context) {
		c.Logf = fn
	}
}

// New creates a decoder for the codec and starts its worker pipeline.
func New(c Codec, opts ...Option) (*Decoder, error) {
	ctx := &codec.Context{
		Codec:    c,
		PixFmt:   codec.PixFmtNone,
		SwPixFmt: codec.PixFmtNone,
	}
	for _, opt := range opts {
		opt(ctx)
	}

	pipe, err := pipeline.Init(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize decode pipeline: %w", err)
	}
	if pipe == nil {
		// Threading disabled; the codec runs synchronously on the caller.
		if err := c.Init(ctx); err != nil {
			return nil, fmt.Errorf("codec init failed: %w", err)
		}
	}

	return &Decoder{ctx: ctx, pipe: pipe}, nil
}

// Decode submits one packet and returns the oldest completed outcome. It
// reports the consumed packet size, whether frame now holds a picture, and
// the decode error surfaced for this position, if any. With N workers the
// first N-1 packets prime the pipeline and produce no output; submit empty
// packets at end of stream to drain the tail.
func (d *Decoder) Decode(frame *Frame, pkt *Packet) (consumed int, gotFrame bool, err error) {
	if d.pipe != nil {
		return d.pipe.DecodeFrame(d.ctx, frame, pkt)
	}

	if pkt.Size() == 0 && d.ctx.Codec.Capabilities()&codec.CapDelay == 0 {
		return 0, false, nil
	}
	gotFrame, err = d.ctx.Codec.Decode(d.ctx, frame, pkt)
	if err != nil {
		return 0, gotFrame, err
	}
	frame.DTS = pkt.DTS
	return pkt.Size(), gotFrame, nil
}

// Flush discards buffered output and codec state, e.g. before a seek.
func (d *Decoder) Flush() {
	if d.pipe != nil {
		d.pipe.Flush(d.ctx)
		return
	}
	d.ctx.Codec.Flush(d.ctx)
}

// Close tears down the pipeline and the codec. Derived stream properties
// remain readable on the decoder afterwards.
func (d *Decoder) Close() error {
	if d.pipe != nil {
		d.pipe.Close(d.ctx)
		d.pipe = nil
		return nil
	}
	return d.ctx.Codec.Close(d.ctx)
}

// Width returns the stream width as last derived by the codec.
func (d *Decoder) Width() int { return d.ctx.Width }

// Height returns the stream height as last derived by the codec.
func (d *Decoder) Height() int { return d.ctx.Height }

// PixelFormat returns the negotiated output pixel format.
func (d *Decoder) PixelFormat() PixelFormat { return d.ctx.PixFmt }

// Threads returns the effective worker count.
func (d *Decoder) Threads() int { return d.ctx.ThreadCount }
