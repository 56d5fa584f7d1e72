// Package reporter defines progress reporting for stream decoding.
package reporter

import "time"

// InitializationSummary describes the current file before decoding.
type InitializationSummary struct {
	InputFile  string
	OutputFile string
	Resolution string
	Format     string
	Frames     uint64
	Workers    int
}

// StageProgress represents a generic stage update.
type StageProgress struct {
	Stage   string
	Message string
}

// ProgressSnapshot contains decoding progress information.
type ProgressSnapshot struct {
	CurrentFrame uint64
	TotalFrames  uint64
	Percent      float32
	FPS          float32
	ETA          time.Duration
}

// DecodeOutcome contains final decoding results for one file.
type DecodeOutcome struct {
	OutputFile   string
	Frames       uint64
	OutputSize   uint64
	Duration     time.Duration
	FramesPerSec float32
	DroppedBands uint64
}

// BatchStartInfo contains batch start metadata.
type BatchStartInfo struct {
	TotalFiles int
	FileList   []string
	OutputDir  string
}

// FileProgressContext contains current file index within a batch.
type FileProgressContext struct {
	CurrentFile int
	TotalFiles  int
}

// BatchSummary contains batch completion information.
type BatchSummary struct {
	SuccessfulCount int
	TotalFiles      int
	TotalFrames     uint64
}

// ReporterError contains error information.
type ReporterError struct {
	Title      string
	Message    string
	Context    string
	Suggestion string
}

// Reporter defines the interface for progress reporting during decoding.
type Reporter interface {
	Initialization(summary InitializationSummary)
	StageProgress(update StageProgress)
	DecodingStarted(totalFrames uint64)
	DecodingProgress(snapshot ProgressSnapshot)
	DecodingComplete(outcome DecodeOutcome)
	BatchStarted(info BatchStartInfo)
	FileProgress(ctx FileProgressContext)
	BatchComplete(summary BatchSummary)
	Warning(message string)
	Error(err ReporterError)
	Verbose(message string)
}

// NullReporter is a no-op reporter that discards all updates.
type NullReporter struct{}

func (NullReporter) Initialization(InitializationSummary) {}
func (NullReporter) StageProgress(StageProgress)          {}
func (NullReporter) DecodingStarted(uint64)               {}
func (NullReporter) DecodingProgress(ProgressSnapshot)    {}
func (NullReporter) DecodingComplete(DecodeOutcome)       {}
func (NullReporter) BatchStarted(BatchStartInfo)          {}
func (NullReporter) FileProgress(FileProgressContext)     {}
func (NullReporter) BatchComplete(BatchSummary)           {}
func (NullReporter) Warning(string)                       {}
func (NullReporter) Error(ReporterError)                  {}
func (NullReporter) Verbose(string)                       {}
