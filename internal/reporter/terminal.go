package reporter

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/five82/spool/internal/util"
)

// TerminalReporter outputs human-friendly text to the terminal.
type TerminalReporter struct {
	mu         sync.Mutex
	progress   *progressbar.ProgressBar
	maxPercent float32
	lastStage  string
	verbose    bool
	cyan       *color.Color
	green      *color.Color
	yellow     *color.Color
	red        *color.Color
	magenta    *color.Color
	bold       *color.Color
	dim        *color.Color
}

// NewTerminalReporter creates a new terminal reporter with verbose mode disabled.
func NewTerminalReporter() *TerminalReporter {
	return NewTerminalReporterVerbose(false)
}

// NewTerminalReporterVerbose creates a new terminal reporter with configurable verbose mode.
func NewTerminalReporterVerbose(verbose bool) *TerminalReporter {
	return &TerminalReporter{
		verbose: verbose,
		cyan:    color.New(color.FgCyan, color.Bold),
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow, color.Bold),
		red:     color.New(color.FgRed, color.Bold),
		magenta: color.New(color.FgMagenta),
		bold:    color.New(color.Bold),
		dim:     color.New(color.Faint),
	}
}

// labelWidth is the global width for all labels to ensure consistent alignment.
const labelWidth = 14

// printLabel prints a bold label with fixed width padding followed by a value.
func (r *TerminalReporter) printLabel(label, value string) {
	paddedLabel := fmt.Sprintf("%-*s", labelWidth, label)
	fmt.Printf("  %s %s\n", r.bold.Sprint(paddedLabel), value)
}

func (r *TerminalReporter) finishProgress() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progress != nil {
		_ = r.progress.Finish()
		r.progress = nil
	}
	r.maxPercent = 0
}

func (r *TerminalReporter) Initialization(summary InitializationSummary) {
	fmt.Println()
	_, _ = r.cyan.Println("STREAM")
	r.printLabel("File:", summary.InputFile)
	r.printLabel("Output:", summary.OutputFile)
	r.printLabel("Resolution:", summary.Resolution)
	r.printLabel("Format:", summary.Format)
	r.printLabel("Frames:", fmt.Sprintf("%d", summary.Frames))
	r.printLabel("Workers:", fmt.Sprintf("%d", summary.Workers))
}

func (r *TerminalReporter) StageProgress(update StageProgress) {
	r.mu.Lock()
	if r.lastStage != update.Stage {
		r.mu.Unlock()
		fmt.Println()
		_, _ = r.cyan.Println(strings.ToUpper(update.Stage))
		r.mu.Lock()
		r.lastStage = update.Stage
	}
	r.mu.Unlock()
	fmt.Printf("  %s %s\n", r.magenta.Sprint("›"), update.Message)
}

func (r *TerminalReporter) DecodingStarted(totalFrames uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = progressbar.NewOptions64(
		int64(totalFrames),
		progressbar.OptionSetDescription("  Decoding"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
	)
	r.maxPercent = 0
}

func (r *TerminalReporter) DecodingProgress(snapshot ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progress == nil {
		return
	}
	// Progress bars cannot move backwards; keep the highest value seen.
	if snapshot.Percent < r.maxPercent {
		return
	}
	r.maxPercent = snapshot.Percent
	_ = r.progress.Set64(int64(snapshot.CurrentFrame))
}

func (r *TerminalReporter) DecodingComplete(outcome DecodeOutcome) {
	r.finishProgress()
	fmt.Println()
	_, _ = r.green.Printf("  Decoded %d frames in %s (%.1f fps)\n",
		outcome.Frames, outcome.Duration.Round(time.Millisecond), outcome.FramesPerSec)
	r.printLabel("Output:", outcome.OutputFile)
	r.printLabel("Size:", util.FormatByteSize(outcome.OutputSize))
}

func (r *TerminalReporter) BatchStarted(info BatchStartInfo) {
	fmt.Println()
	_, _ = r.cyan.Println("BATCH")
	r.printLabel("Files:", fmt.Sprintf("%d", info.TotalFiles))
	r.printLabel("Output dir:", info.OutputDir)
	for _, name := range info.FileList {
		fmt.Printf("    %s\n", r.dim.Sprint(name))
	}
}

func (r *TerminalReporter) FileProgress(ctx FileProgressContext) {
	fmt.Println()
	_, _ = r.bold.Printf("[%d/%d]\n", ctx.CurrentFile, ctx.TotalFiles)
}

func (r *TerminalReporter) BatchComplete(summary BatchSummary) {
	fmt.Println()
	_, _ = r.cyan.Println("SUMMARY")
	r.printLabel("Succeeded:", fmt.Sprintf("%d/%d", summary.SuccessfulCount, summary.TotalFiles))
	r.printLabel("Frames:", fmt.Sprintf("%d", summary.TotalFrames))
}

func (r *TerminalReporter) Warning(message string) {
	r.finishProgress()
	_, _ = r.yellow.Printf("  Warning: %s\n", message)
}

func (r *TerminalReporter) Error(err ReporterError) {
	r.finishProgress()
	_, _ = r.red.Printf("  %s: %s\n", err.Title, err.Message)
	if err.Context != "" {
		fmt.Printf("    %s\n", r.dim.Sprint(err.Context))
	}
	if err.Suggestion != "" {
		fmt.Printf("    %s\n", err.Suggestion)
	}
}

func (r *TerminalReporter) Verbose(message string) {
	if !r.verbose {
		return
	}
	fmt.Printf("  %s\n", r.dim.Sprint(message))
}
