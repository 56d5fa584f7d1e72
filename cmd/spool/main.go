// Package main provides the CLI entry point for Spool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/five82/spool/internal/config"
	"github.com/five82/spool/internal/discovery"
	"github.com/five82/spool/internal/logging"
	"github.com/five82/spool/internal/processing"
	"github.com/five82/spool/internal/rawvideo"
	"github.com/five82/spool/internal/reporter"
	"github.com/five82/spool/internal/util"
)

const (
	appName    = "spool"
	appVersion = "0.1.0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "decode":
		if err := runDecode(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "synth":
		if err := runSynth(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version", "--version", "-v":
		fmt.Printf("%s version %s\n", appName, appVersion)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`%s - Frame-parallel stream decoder

Usage:
  %s <command> [options]

Commands:
  decode    Decode band streams to raw planar output
  synth     Generate a synthetic band stream for testing
  version   Print version information
  help      Show this help message

Run '%s decode --help' for decode command options.
`, appName, appName, appName)
}

// decodeArgs holds the parsed arguments for the decode command.
type decodeArgs struct {
	inputPath    string
	outputDir    string
	logDir       string
	verbose      bool
	threads      int
	frameLimit   int
	debugThreads bool
	noLog        bool
}

func runDecode(args []string) error {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Decode band streams to raw planar output.

Usage:
  %s decode [options]

Required:
  -i, --input <PATH>     Input stream file or directory of stream files
  -o, --output <PATH>    Output directory

Options:
  -l, --log-dir <PATH>   Log directory (defaults to ~/.local/state/spool/logs)
  -v, --verbose          Enable verbose output for troubleshooting
  -t, --threads <N>      Decode workers (0 = auto, 1 = disable threading)
      --frames <N>       Stop after N output frames (0 = all)
      --debug-threads    Log per-event pipeline activity
      --no-log           Disable the log file
`, appName)
	}

	var a decodeArgs
	fs.StringVar(&a.inputPath, "i", "", "")
	fs.StringVar(&a.inputPath, "input", "", "")
	fs.StringVar(&a.outputDir, "o", "", "")
	fs.StringVar(&a.outputDir, "output", "", "")
	fs.StringVar(&a.logDir, "l", "", "")
	fs.StringVar(&a.logDir, "log-dir", "", "")
	fs.BoolVar(&a.verbose, "v", false, "")
	fs.BoolVar(&a.verbose, "verbose", false, "")
	fs.IntVar(&a.threads, "t", config.DefaultThreads, "")
	fs.IntVar(&a.threads, "threads", config.DefaultThreads, "")
	fs.IntVar(&a.frameLimit, "frames", config.DefaultFrameLimit, "")
	fs.BoolVar(&a.debugThreads, "debug-threads", false, "")
	fs.BoolVar(&a.noLog, "no-log", false, "")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if a.inputPath == "" || a.outputDir == "" {
		fs.Usage()
		return fmt.Errorf("input and output are required")
	}

	if a.logDir == "" {
		a.logDir = logging.DefaultLogDir()
	}

	logger, err := logging.Setup(a.logDir, a.verbose, a.noLog, os.Args)
	if err != nil {
		return err
	}
	defer logger.Close()

	// Resolve input to a file list
	var files []string
	info, err := os.Stat(a.inputPath)
	if err != nil {
		return fmt.Errorf("cannot access input %s: %w", a.inputPath, err)
	}
	if info.IsDir() {
		files, err = discovery.FindStreamFiles(a.inputPath)
		if err != nil {
			return err
		}
	} else {
		files = []string{a.inputPath}
	}

	if err := util.EnsureDirectory(a.outputDir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := util.EnsureDirectoryWritable(a.outputDir); err != nil {
		return err
	}

	cfg := config.NewConfig(filepath.Dir(a.inputPath), a.outputDir, a.logDir)
	cfg.Threads = a.threads
	cfg.FrameLimit = a.frameLimit
	cfg.DebugThreads = a.debugThreads
	cfg.Verbose = a.verbose
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Info("Decoding %d file(s) with threads=%d", len(files), cfg.Threads)

	// Cancel cleanly on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rep := newTeeReporter(
		reporter.NewTerminalReporterVerbose(a.verbose),
		reporter.NewLogReporter(logger.Writer()),
	)

	results, err := processing.DecodeStreams(ctx, cfg, files, "", rep)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("no files were decoded")
	}

	for _, r := range results {
		logger.Info("Decoded %s: %d frames, %d errors", r.Filename, r.Frames, r.DecodeErrors)
	}

	return nil
}

func runSynth(args []string) error {
	fs := flag.NewFlagSet("synth", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Generate a synthetic band stream for testing.

Usage:
  %s synth [options]

Required:
  -o, --output <PATH>    Output stream file (.sbnd)

Options:
      --width <N>        Frame width (default 320)
      --height <N>       Frame height (default 240)
      --frames <N>       Frame count (default 120)
      --gop <N>          Frames per intra refresh (default 24)
      --bands <N>        Row bands per packet (default 4)
`, appName)
	}

	var (
		output string
		width  int
		height int
		frames int
		gop    int
		bands  int
	)
	fs.StringVar(&output, "o", "", "")
	fs.StringVar(&output, "output", "", "")
	fs.IntVar(&width, "width", 320, "")
	fs.IntVar(&height, "height", 240, "")
	fs.IntVar(&frames, "frames", 120, "")
	fs.IntVar(&gop, "gop", 24, "")
	fs.IntVar(&bands, "bands", 4, "")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if output == "" {
		fs.Usage()
		return fmt.Errorf("output is required")
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", output, err)
	}
	defer f.Close()

	err = rawvideo.Synthesize(f, rawvideo.SynthConfig{
		Width:       width,
		Height:      height,
		Frames:      frames,
		GOPSize:     gop,
		BandsPerPkt: bands,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Wrote %d frames (%dx%d) to %s\n", frames, width, height, output)
	return nil
}

// teeReporter fans events out to multiple reporters.
type teeReporter struct {
	reporters []reporter.Reporter
}

func newTeeReporter(reps ...reporter.Reporter) *teeReporter {
	return &teeReporter{reporters: reps}
}

func (t *teeReporter) Initialization(s reporter.InitializationSummary) {
	for _, r := range t.reporters {
		r.Initialization(s)
	}
}

func (t *teeReporter) StageProgress(u reporter.StageProgress) {
	for _, r := range t.reporters {
		r.StageProgress(u)
	}
}

func (t *teeReporter) DecodingStarted(totalFrames uint64) {
	for _, r := range t.reporters {
		r.DecodingStarted(totalFrames)
	}
}

func (t *teeReporter) DecodingProgress(s reporter.ProgressSnapshot) {
	for _, r := range t.reporters {
		r.DecodingProgress(s)
	}
}

func (t *teeReporter) DecodingComplete(o reporter.DecodeOutcome) {
	for _, r := range t.reporters {
		r.DecodingComplete(o)
	}
}

func (t *teeReporter) BatchStarted(i reporter.BatchStartInfo) {
	for _, r := range t.reporters {
		r.BatchStarted(i)
	}
}

func (t *teeReporter) FileProgress(c reporter.FileProgressContext) {
	for _, r := range t.reporters {
		r.FileProgress(c)
	}
}

func (t *teeReporter) BatchComplete(s reporter.BatchSummary) {
	for _, r := range t.reporters {
		r.BatchComplete(s)
	}
}

func (t *teeReporter) Warning(m string) {
	for _, r := range t.reporters {
		r.Warning(m)
	}
}

func (t *teeReporter) Error(e reporter.ReporterError) {
	for _, r := range t.reporters {
		r.Error(e)
	}
}

func (t *teeReporter) Verbose(m string) {
	for _, r := range t.reporters {
		r.Verbose(m)
	}
}
