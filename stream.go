// Package spool provides frame-parallel video decoding.
//
// This file holds the file-level convenience API: decoding whole stream
// files to raw planar output, with batch support and event reporting.

package spool

import (
	"context"
	"fmt"

	"github.com/five82/spool/internal/config"
	"github.com/five82/spool/internal/discovery"
	"github.com/five82/spool/internal/processing"
	"github.com/five82/spool/internal/reporter"
	"github.com/five82/spool/internal/util"
)

// StreamDecoder decodes stream files through the frame-parallel pipeline.
type StreamDecoder struct {
	config *config.Config
}

// FileResult contains the result of a single file decode.
type FileResult struct {
	OutputFile   string
	Frames       uint64
	DecodeErrors uint64
	OutputSize   uint64
	FramesPerSec float32
}

// BatchResult contains the result of a batch decode.
type BatchResult struct {
	Results         []FileResult
	SuccessfulCount int
	TotalFiles      int
	TotalFrames     uint64
}

// StreamOption configures the stream decoder.
type StreamOption func(*config.Config)

// WithWorkers sets the number of decode workers.
// Default is 0, which selects automatically from the CPU count.
func WithWorkers(workers int) StreamOption {
	return func(c *config.Config) {
		c.Threads = workers
	}
}

// WithFrameLimit stops decoding after the given number of output frames.
func WithFrameLimit(frames int) StreamOption {
	return func(c *config.Config) {
		c.FrameLimit = frames
	}
}

// WithPipelineDebug enables per-event logging of pipeline activity.
func WithPipelineDebug() StreamOption {
	return func(c *config.Config) {
		c.DebugThreads = true
	}
}

// NewStreamDecoder creates a new StreamDecoder with the given options.
func NewStreamDecoder(opts ...StreamOption) (*StreamDecoder, error) {
	cfg := config.NewConfig(".", ".", ".")

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &StreamDecoder{config: cfg}, nil
}

// DecodeFileWithReporter decodes a single stream file using a custom
// Reporter. This provides direct access to all decoding events, unlike
// DecodeFile which uses the EventHandler abstraction.
func (d *StreamDecoder) DecodeFileWithReporter(ctx context.Context, input, outputDir string, rep Reporter) (*FileResult, error) {
	cfg := *d.config
	cfg.OutputDir = outputDir

	if err := util.EnsureDirectory(outputDir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	if rep == nil {
		rep = reporter.NullReporter{}
	}

	results, err := processing.DecodeStreams(ctx, &cfg, []string{input}, "", rep)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("no files were decoded")
	}

	r := results[0]
	return &FileResult{
		OutputFile:   util.ResolveOutputPath(input, outputDir, ""),
		Frames:       r.Frames,
		DecodeErrors: r.DecodeErrors,
		OutputSize:   r.OutputSize,
		FramesPerSec: r.FramesPerSec,
	}, nil
}

// DecodeFile decodes a single stream file.
func (d *StreamDecoder) DecodeFile(ctx context.Context, input, outputDir string, handler EventHandler) (*FileResult, error) {
	var rep Reporter = reporter.NullReporter{}
	if handler != nil {
		rep = newEventReporter(handler)
	}
	return d.DecodeFileWithReporter(ctx, input, outputDir, rep)
}

// DecodeBatch decodes multiple stream files.
func (d *StreamDecoder) DecodeBatch(ctx context.Context, inputs []string, outputDir string, handler EventHandler) (*BatchResult, error) {
	cfg := *d.config
	cfg.OutputDir = outputDir

	if err := util.EnsureDirectory(outputDir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var rep Reporter = reporter.NullReporter{}
	if handler != nil {
		rep = newEventReporter(handler)
	}

	results, err := processing.DecodeStreams(ctx, &cfg, inputs, "", rep)
	if err != nil {
		return nil, err
	}

	batch := &BatchResult{
		TotalFiles: len(inputs),
	}

	for _, r := range results {
		batch.Results = append(batch.Results, FileResult{
			OutputFile:   util.ResolveOutputPath(r.Filename, outputDir, ""),
			Frames:       r.Frames,
			DecodeErrors: r.DecodeErrors,
			OutputSize:   r.OutputSize,
			FramesPerSec: r.FramesPerSec,
		})
		batch.SuccessfulCount++
		batch.TotalFrames += r.Frames
	}

	return batch, nil
}

// FindStreams finds stream files in a directory.
func FindStreams(dir string) ([]string, error) {
	return discovery.FindStreamFiles(dir)
}
