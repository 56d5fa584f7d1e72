// Package spool provides frame-parallel video decoding.
package spool

import (
	"fmt"
	"time"

	"github.com/five82/spool/internal/reporter"
)

// Event types emitted through EventHandler.
const (
	EventTypeInitialization   = "initialization"
	EventTypeStageProgress    = "stage_progress"
	EventTypeDecodingStarted  = "decoding_started"
	EventTypeDecodingProgress = "decoding_progress"
	EventTypeDecodingComplete = "decoding_complete"
	EventTypeBatchStarted     = "batch_started"
	EventTypeFileProgress     = "file_progress"
	EventTypeBatchComplete    = "batch_complete"
	EventTypeWarning          = "warning"
	EventTypeError            = "error"
)

// Event is the interface for all spool events.
type Event interface {
	Type() string
	Timestamp() int64
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType string `json:"type"`
	Time      int64  `json:"timestamp"`
}

func (e BaseEvent) Type() string     { return e.EventType }
func (e BaseEvent) Timestamp() int64 { return e.Time }

// InitializationEvent describes the stream about to be decoded.
type InitializationEvent struct {
	BaseEvent
	InputFile  string `json:"input_file"`
	OutputFile string `json:"output_file"`
	Resolution string `json:"resolution"`
	Format     string `json:"format"`
	Frames     uint64 `json:"frames"`
	Workers    int    `json:"workers"`
}

// StageProgressEvent represents a generic stage update.
type StageProgressEvent struct {
	BaseEvent
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// DecodingProgressEvent represents decoding progress updates.
type DecodingProgressEvent struct {
	BaseEvent
	Percent    float32 `json:"percent"`
	FPS        float32 `json:"fps"`
	Frame      uint64  `json:"frame"`
	ETASeconds int64   `json:"eta_seconds"`
}

// DecodingCompleteEvent represents successful decode completion.
type DecodingCompleteEvent struct {
	BaseEvent
	OutputFile   string  `json:"output_file"`
	Frames       uint64  `json:"frames"`
	OutputSize   uint64  `json:"output_size"`
	FramesPerSec float32 `json:"frames_per_sec"`
}

// BatchStartedEvent represents batch start.
type BatchStartedEvent struct {
	BaseEvent
	TotalFiles int      `json:"total_files"`
	FileList   []string `json:"file_list"`
	OutputDir  string   `json:"output_dir"`
}

// FileProgressEvent represents the current file index within a batch.
type FileProgressEvent struct {
	BaseEvent
	CurrentFile int `json:"current_file"`
	TotalFiles  int `json:"total_files"`
}

// BatchCompleteEvent represents batch completion.
type BatchCompleteEvent struct {
	BaseEvent
	SuccessfulCount int    `json:"successful_count"`
	TotalFiles      int    `json:"total_files"`
	TotalFrames     uint64 `json:"total_frames"`
}

// WarningEvent represents a warning message.
type WarningEvent struct {
	BaseEvent
	Message string `json:"message"`
}

// ErrorEvent represents an error.
type ErrorEvent struct {
	BaseEvent
	Title      string `json:"title"`
	Message    string `json:"message"`
	Context    string `json:"context"`
	Suggestion string `json:"suggestion"`
}

// EventHandler is called with events during decoding.
type EventHandler func(Event) error

// NewTimestamp returns the current Unix timestamp.
func NewTimestamp() int64 {
	return time.Now().Unix()
}

// eventReporter adapts an EventHandler to the internal Reporter interface.
type eventReporter struct {
	handler EventHandler
}

func newEventReporter(handler EventHandler) *eventReporter {
	return &eventReporter{handler: handler}
}

func (r *eventReporter) emit(e Event) {
	_ = r.handler(e)
}

func (r *eventReporter) base(eventType string) BaseEvent {
	return BaseEvent{EventType: eventType, Time: NewTimestamp()}
}

func (r *eventReporter) Initialization(summary reporter.InitializationSummary) {
	r.emit(InitializationEvent{
		BaseEvent:  r.base(EventTypeInitialization),
		InputFile:  summary.InputFile,
		OutputFile: summary.OutputFile,
		Resolution: summary.Resolution,
		Format:     summary.Format,
		Frames:     summary.Frames,
		Workers:    summary.Workers,
	})
}

func (r *eventReporter) StageProgress(update reporter.StageProgress) {
	r.emit(StageProgressEvent{
		BaseEvent: r.base(EventTypeStageProgress),
		Stage:     update.Stage,
		Message:   update.Message,
	})
}

func (r *eventReporter) DecodingStarted(totalFrames uint64) {
	r.emit(StageProgressEvent{
		BaseEvent: r.base(EventTypeDecodingStarted),
		Stage:     "decoding",
		Message:   fmt.Sprintf("%d frames", totalFrames),
	})
}

func (r *eventReporter) DecodingProgress(snapshot reporter.ProgressSnapshot) {
	r.emit(DecodingProgressEvent{
		BaseEvent:  r.base(EventTypeDecodingProgress),
		Percent:    snapshot.Percent,
		FPS:        snapshot.FPS,
		Frame:      snapshot.CurrentFrame,
		ETASeconds: int64(snapshot.ETA.Seconds()),
	})
}

func (r *eventReporter) DecodingComplete(outcome reporter.DecodeOutcome) {
	r.emit(DecodingCompleteEvent{
		BaseEvent:    r.base(EventTypeDecodingComplete),
		OutputFile:   outcome.OutputFile,
		Frames:       outcome.Frames,
		OutputSize:   outcome.OutputSize,
		FramesPerSec: outcome.FramesPerSec,
	})
}

func (r *eventReporter) BatchStarted(info reporter.BatchStartInfo) {
	r.emit(BatchStartedEvent{
		BaseEvent:  r.base(EventTypeBatchStarted),
		TotalFiles: info.TotalFiles,
		FileList:   info.FileList,
		OutputDir:  info.OutputDir,
	})
}

func (r *eventReporter) FileProgress(ctx reporter.FileProgressContext) {
	r.emit(FileProgressEvent{
		BaseEvent:   r.base(EventTypeFileProgress),
		CurrentFile: ctx.CurrentFile,
		TotalFiles:  ctx.TotalFiles,
	})
}

func (r *eventReporter) BatchComplete(summary reporter.BatchSummary) {
	r.emit(BatchCompleteEvent{
		BaseEvent:       r.base(EventTypeBatchComplete),
		SuccessfulCount: summary.SuccessfulCount,
		TotalFiles:      summary.TotalFiles,
		TotalFrames:     summary.TotalFrames,
	})
}

func (r *eventReporter) Warning(message string) {
	r.emit(WarningEvent{
		BaseEvent: r.base(EventTypeWarning),
		Message:   message,
	})
}

func (r *eventReporter) Error(err reporter.ReporterError) {
	r.emit(ErrorEvent{
		BaseEvent:  r.base(EventTypeError),
		Title:      err.Title,
		Message:    err.Message,
		Context:    err.Context,
		Suggestion: err.Suggestion,
	})
}

func (r *eventReporter) Verbose(message string) {
	// Verbose lines are not surfaced as events.
}
