// Package spool provides frame-parallel video decoding.
//
// This file re-exports the internal Reporter interface and associated types
// to allow callers to receive all decoding events directly.

package spool

import "github.com/five82/spool/internal/reporter"

// Reporter defines the interface for progress reporting during decoding.
// Implement this interface to receive detailed events about decode progress.
type Reporter = reporter.Reporter

// NullReporter is a no-op reporter that discards all updates.
type NullReporter = reporter.NullReporter

// InitializationSummary describes the current file before decoding.
type InitializationSummary = reporter.InitializationSummary

// StageProgress represents a generic stage update.
type StageProgress = reporter.StageProgress

// ProgressSnapshot contains decoding progress information.
type ProgressSnapshot = reporter.ProgressSnapshot

// DecodeOutcome contains final decoding results.
type DecodeOutcome = reporter.DecodeOutcome

// BatchStartInfo contains batch start metadata.
type BatchStartInfo = reporter.BatchStartInfo

// FileProgressContext contains current file index within a batch.
type FileProgressContext = reporter.FileProgressContext

// BatchSummary contains batch completion information.
type BatchSummary = reporter.BatchSummary

// ReporterError contains error information.
type ReporterError = reporter.ReporterError
