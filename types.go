// Package spool provides frame-parallel video decoding.
//
// This file re-exports the internal codec contract and the pipeline
// primitives codec back-ends call into, so external back-ends can be
// implemented against the root package alone.

package spool

import (
	"github.com/five82/spool/internal/codec"
	"github.com/five82/spool/internal/pipeline"
)

// Codec is the pluggable decoder back-end contract.
type Codec = codec.Codec

// ThreadContextUpdater is implemented by codecs carrying state between packets.
type ThreadContextUpdater = codec.ThreadContextUpdater

// PrivDataCloner is implemented by codecs with per-context private data.
type PrivDataCloner = codec.PrivDataCloner

// ExtraReorderDelayer shortens the priming window for high-latency codecs.
type ExtraReorderDelayer = codec.ExtraReorderDelayer

// Capabilities describes codec back-end behavior.
type Capabilities = codec.Capabilities

// Codec capability flags.
const (
	CapDelay            = codec.CapDelay
	CapAllocateProgress = codec.CapAllocateProgress
	CapInitCleanup      = codec.CapInitCleanup
)

// Context carries decoder state between the user, the pipeline and the codec.
type Context = codec.Context

// Frame is one decoded picture.
type Frame = codec.Frame

// FrameBuffer is a frame's refcounted backing storage.
type FrameBuffer = codec.FrameBuffer

// ThreadFrame pairs a frame with progress counters and its producing contexts.
type ThreadFrame = codec.ThreadFrame

// Progress is the per-frame row counter pair.
type Progress = codec.Progress

// Packet is one unit of compressed input.
type Packet = codec.Packet

// PixelFormat identifies the layout of decoded pictures.
type PixelFormat = codec.PixelFormat

// Pixel formats.
const (
	PixFmtNone    = codec.PixFmtNone
	PixFmtGray8   = codec.PixFmtGray8
	PixFmtYUV420P = codec.PixFmtYUV420P
	PixFmtNV12    = codec.PixFmtNV12
	PixFmtGray16  = codec.PixFmtGray16
)

// HWAccel describes an out-of-core acceleration driver.
type HWAccel = codec.HWAccel

// HWAccelCaps are accelerator capability bits.
type HWAccelCaps = codec.HWAccelCaps

// Accelerator capability flags.
const (
	HWAccelMTSafe    = codec.HWAccelMTSafe
	HWAccelAsyncSafe = codec.HWAccelAsyncSafe
)

// GetBufferFunc allocates output frame storage.
type GetBufferFunc = codec.GetBufferFunc

// GetFormatFunc picks the output pixel format from candidates.
type GetFormatFunc = codec.GetFormatFunc

// FinishSetup is called by a codec once all state later packets depend on
// has been derived.
func FinishSetup(ctx *Context) { pipeline.FinishSetup(ctx) }

// GetBuffer allocates backing storage for the frame being decoded.
func GetBuffer(ctx *Context, f *ThreadFrame, flags int) error {
	return pipeline.GetBuffer(ctx, f, flags)
}

// GetFormat negotiates the output pixel format with the user.
func GetFormat(ctx *Context, formats []PixelFormat) PixelFormat {
	return pipeline.GetFormat(ctx, formats)
}

// ReleaseBuffer returns an output frame's storage through the pipeline's
// thread-affinity-preserving release path.
func ReleaseBuffer(ctx *Context, f *ThreadFrame) { pipeline.ReleaseBuffer(ctx, f) }

// ReportProgress announces that rows up to n of the frame's field are final.
func ReportProgress(f *ThreadFrame, n, field int) { pipeline.ReportProgress(f, n, field) }

// AwaitProgress blocks until the frame's producer reports progress >= n.
func AwaitProgress(f *ThreadFrame, n, field int) { pipeline.AwaitProgress(f, n, field) }

// CanStartFrame reports whether the codec may begin decoding a new frame.
func CanStartFrame(ctx *Context) bool { return pipeline.CanStartFrame(ctx) }
