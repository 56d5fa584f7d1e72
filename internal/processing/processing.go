// Package processing provides stream decode orchestration.
package processing

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/five82/spool/internal/codec"
	"github.com/five82/spool/internal/config"
	"github.com/five82/spool/internal/pipeline"
	"github.com/five82/spool/internal/rawvideo"
	"github.com/five82/spool/internal/reporter"
	"github.com/five82/spool/internal/util"
)

// DecodeResult contains the result of a single file decode.
type DecodeResult struct {
	Filename     string
	Frames       uint64
	DecodeErrors uint64
	OutputSize   uint64
	Duration     time.Duration
	FramesPerSec float32
}

// DecodeStreams orchestrates decoding for a list of stream files.
func DecodeStreams(
	ctx context.Context,
	cfg *config.Config,
	filesToProcess []string,
	targetFilenameOverride string,
	rep reporter.Reporter,
) ([]DecodeResult, error) {
	if rep == nil {
		rep = reporter.NullReporter{}
	}

	var results []DecodeResult

	// Show batch initialization for multiple files
	if len(filesToProcess) > 1 {
		var fileNames []string
		for _, f := range filesToProcess {
			fileNames = append(fileNames, util.GetFilename(f))
		}
		rep.BatchStarted(reporter.BatchStartInfo{
			TotalFiles: len(filesToProcess),
			FileList:   fileNames,
			OutputDir:  cfg.OutputDir,
		})
	}

	var totalFrames uint64
	for fileIdx, inputPath := range filesToProcess {
		// Check for cancellation before starting each file
		if ctx.Err() != nil {
			rep.Warning(fmt.Sprintf("Decoding cancelled: %v", ctx.Err()))
			break
		}

		if len(filesToProcess) > 1 {
			rep.FileProgress(reporter.FileProgressContext{
				CurrentFile: fileIdx + 1,
				TotalFiles:  len(filesToProcess),
			})
		}

		override := ""
		if len(filesToProcess) == 1 && targetFilenameOverride != "" {
			override = targetFilenameOverride
		}
		outputPath := util.ResolveOutputPath(inputPath, cfg.OutputDir, override)

		if util.FileExists(outputPath) {
			rep.Warning(fmt.Sprintf("Output file already exists: %s. Skipping decode.", outputPath))
			continue
		}

		util.CheckDiskSpace(cfg.OutputDir, func(format string, args ...any) {
			rep.Warning(fmt.Sprintf(format, args...))
		})

		result, err := decodeStream(ctx, cfg, inputPath, outputPath, rep)
		if err != nil {
			rep.Error(reporter.ReporterError{
				Title:   "Decode Error",
				Message: fmt.Sprintf("Failed to decode %s: %v", util.GetFilename(inputPath), err),
			})
			continue
		}

		totalFrames += result.Frames
		results = append(results, result)
	}

	if len(filesToProcess) > 1 {
		rep.BatchComplete(reporter.BatchSummary{
			SuccessfulCount: len(results),
			TotalFiles:      len(filesToProcess),
			TotalFrames:     totalFrames,
		})
	}

	return results, nil
}

// decodeStream runs the frame-parallel pipeline over one stream file and
// writes the decoded frames as raw planar output.
func decodeStream(
	ctx context.Context,
	cfg *config.Config,
	inputPath, outputPath string,
	rep reporter.Reporter,
) (DecodeResult, error) {
	in, err := os.Open(inputPath)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	sr, err := rawvideo.NewReader(in)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("failed to parse stream: %w", err)
	}
	info := sr.Info()

	avctx := &codec.Context{
		Codec:               rawvideo.Codec{},
		Width:               info.Width,
		Height:              info.Height,
		CodedWidth:          info.Width,
		CodedHeight:         info.Height,
		PixFmt:              codec.PixFmtNone,
		SwPixFmt:            codec.PixFmtNone,
		ThreadCount:         cfg.Threads,
		ThreadSafeCallbacks: cfg.ThreadSafeCallbacks,
	}
	if cfg.DebugThreads {
		avctx.Debug |= codec.DebugThreads
		avctx.Logf = func(format string, args ...any) {
			rep.Verbose(fmt.Sprintf(format, args...))
		}
	}

	pipe, err := pipeline.Init(avctx)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	closed := false
	defer func() {
		if pipe != nil && !closed {
			pipe.Close(avctx)
		}
	}()
	if pipe == nil {
		if err := avctx.Codec.Init(avctx); err != nil {
			return DecodeResult{}, fmt.Errorf("codec init failed: %w", err)
		}
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("failed to create output: %w", err)
	}
	defer out.Close()

	rep.Initialization(reporter.InitializationSummary{
		InputFile:  inputPath,
		OutputFile: outputPath,
		Resolution: fmt.Sprintf("%dx%d", info.Width, info.Height),
		Format:     info.PixFmt.String(),
		Frames:     uint64(info.Frames),
		Workers:    avctx.ThreadCount,
	})
	rep.DecodingStarted(uint64(info.Frames))

	startTime := time.Now()

	// Decoded frames are copied off the harvest goroutine and written
	// concurrently, so slow storage does not stall the pipeline.
	frames := make(chan []byte, 4)
	var written uint64

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		for buf := range frames {
			n, werr := out.Write(buf)
			written += uint64(n)
			if werr != nil {
				return fmt.Errorf("failed to write output: %w", werr)
			}
		}
		return nil
	})

	var decoded, decodeErrors uint64
	frame := &codec.Frame{}

	decodeOne := func(pkt *codec.Packet) (bool, error) {
		if pipe != nil {
			_, got, derr := pipe.DecodeFrame(avctx, frame, pkt)
			return got, derr
		}
		if pkt.Size() == 0 {
			return false, nil
		}
		return avctx.Codec.Decode(avctx, frame, pkt)
	}

	emit := func() {
		buf := make([]byte, len(frame.Data))
		copy(buf, frame.Data)
		frames <- buf
		frame.Unref()

		decoded++
		elapsed := time.Since(startTime)
		var fps float32
		if elapsed.Seconds() > 0 {
			fps = float32(float64(decoded) / elapsed.Seconds())
		}
		rep.DecodingProgress(reporter.ProgressSnapshot{
			CurrentFrame: decoded,
			TotalFrames:  uint64(info.Frames),
			Percent:      float32(decoded) * 100 / float32(max(info.Frames, 1)),
			FPS:          fps,
		})
	}

	stop := false
	for !stop && ctx.Err() == nil {
		pkt, rerr := sr.NextPacket()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			close(frames)
			_ = g.Wait()
			return DecodeResult{}, rerr
		}

		got, derr := decodeOne(pkt)
		switch {
		case derr != nil:
			// A decode failure is confined to its position in the output
			// order; later packets are unaffected.
			decodeErrors++
			rep.Warning(fmt.Sprintf("decode error: %v", derr))
			frame.Unref()
		case got:
			emit()
		}

		if cfg.FrameLimit > 0 && decoded >= uint64(cfg.FrameLimit) {
			stop = true
		}
	}

	// Drain the pipeline tail with empty packets.
	empty := &codec.Packet{}
	for !stop {
		got, derr := decodeOne(empty)
		if derr != nil {
			decodeErrors++
			rep.Warning(fmt.Sprintf("decode error during drain: %v", derr))
			frame.Unref()
			continue
		}
		if !got {
			break
		}
		emit()
		if cfg.FrameLimit > 0 && decoded >= uint64(cfg.FrameLimit) {
			break
		}
	}

	close(frames)
	if err := g.Wait(); err != nil {
		return DecodeResult{}, err
	}

	if pipe != nil {
		pipe.Close(avctx)
		closed = true
	} else if err := avctx.Codec.Close(avctx); err != nil {
		return DecodeResult{}, fmt.Errorf("codec close failed: %w", err)
	}

	duration := time.Since(startTime)
	var fps float32
	if duration.Seconds() > 0 {
		fps = float32(float64(decoded) / duration.Seconds())
	}

	rep.DecodingComplete(reporter.DecodeOutcome{
		OutputFile:   outputPath,
		Frames:       decoded,
		OutputSize:   written,
		Duration:     duration,
		FramesPerSec: fps,
	})

	return DecodeResult{
		Filename:     inputPath,
		Frames:       decoded,
		DecodeErrors: decodeErrors,
		OutputSize:   written,
		Duration:     duration,
		FramesPerSec: fps,
	}, nil
}
