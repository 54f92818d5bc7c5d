// Package storage defines the recording backend interface and its factory.
package storage

import (
	"github.com/openmotion/omlt/internal/model"
	"github.com/openmotion/omlt/pkg/telemetry"
)

// Backend is the interface all recording backends must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(session *model.Session) error
	EndSession() error

	// Frame recording. Frames arrive in acceptance order.
	RecordFrames(frames []telemetry.Frame) error
}

// Exportable is an optional interface for backends that produce a
// session file on disk when the session ends.
type Exportable interface {
	GetExportedFilePath() string
}
