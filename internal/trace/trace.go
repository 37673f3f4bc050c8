// Package trace carries the controller's debug records to a storage sink.
package trace

import "github.com/OCAP2/lagcomp/pkg/core"

// Backend is the interface all trace sinks must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Records, in the order the controller produced them
	RecordSession(s *core.SessionTrace) error
	RecordBacktrack(b *core.BacktrackTrace) error
	RecordRestore(r *core.RestoreTrace) error
}

// Exporter is an optional interface for sinks that write a file on Close.
type Exporter interface {
	ExportedFilePath() string
}
