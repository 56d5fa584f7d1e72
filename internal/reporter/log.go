package reporter

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// LogReporter writes decoding events to a log file.
type LogReporter struct {
	w                  io.Writer
	mu                 sync.Mutex
	lastProgressBucket int // Track progress in 5% buckets
}

// NewLogReporter creates a new log reporter that writes to the given writer.
func NewLogReporter(w io.Writer) *LogReporter {
	return &LogReporter{
		w:                  w,
		lastProgressBucket: -1,
	}
}

func (r *LogReporter) log(level, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	msg := fmt.Sprintf(format, args...)
	_, _ = fmt.Fprintf(r.w, "%s [%s] %s\n", timestamp, level, msg)
}

func (r *LogReporter) Initialization(summary InitializationSummary) {
	r.log("INFO", "=== STREAM ===")
	r.log("INFO", "Input: %s", summary.InputFile)
	r.log("INFO", "Output: %s", summary.OutputFile)
	r.log("INFO", "Resolution: %s", summary.Resolution)
	r.log("INFO", "Format: %s", summary.Format)
	r.log("INFO", "Frames: %d", summary.Frames)
	r.log("INFO", "Workers: %d", summary.Workers)
}

func (r *LogReporter) StageProgress(update StageProgress) {
	r.log("INFO", "[%s] %s", strings.ToUpper(update.Stage), update.Message)
}

func (r *LogReporter) DecodingStarted(totalFrames uint64) {
	r.mu.Lock()
	r.lastProgressBucket = -1
	r.mu.Unlock()
	r.log("INFO", "Decoding started: %d frames", totalFrames)
}

func (r *LogReporter) DecodingProgress(snapshot ProgressSnapshot) {
	bucket := int(snapshot.Percent) / 5
	r.mu.Lock()
	if bucket == r.lastProgressBucket {
		r.mu.Unlock()
		return
	}
	r.lastProgressBucket = bucket
	r.mu.Unlock()
	r.log("INFO", "Progress: %.1f%% (%d/%d frames, %.1f fps)",
		snapshot.Percent, snapshot.CurrentFrame, snapshot.TotalFrames, snapshot.FPS)
}

func (r *LogReporter) DecodingComplete(outcome DecodeOutcome) {
	r.log("INFO", "Decoding complete: %d frames in %s (%.1f fps), output %s",
		outcome.Frames, outcome.Duration.Round(time.Millisecond), outcome.FramesPerSec, outcome.OutputFile)
}

func (r *LogReporter) BatchStarted(info BatchStartInfo) {
	r.log("INFO", "Batch started: %d files to %s", info.TotalFiles, info.OutputDir)
}

func (r *LogReporter) FileProgress(ctx FileProgressContext) {
	r.log("INFO", "File %d of %d", ctx.CurrentFile, ctx.TotalFiles)
}

func (r *LogReporter) BatchComplete(summary BatchSummary) {
	r.log("INFO", "Batch complete: %d/%d succeeded, %d frames",
		summary.SuccessfulCount, summary.TotalFiles, summary.TotalFrames)
}

func (r *LogReporter) Warning(message string) {
	r.log("WARN", "%s", message)
}

func (r *LogReporter) Error(err ReporterError) {
	r.log("ERROR", "%s: %s", err.Title, err.Message)
	if err.Context != "" {
		r.log("ERROR", "Context: %s", err.Context)
	}
}

func (r *LogReporter) Verbose(message string) {
	r.log("DEBUG", "%s", message)
}
