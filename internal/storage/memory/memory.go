// Package memory stores an entire session in memory and exports it to a
// JSON file (optionally gzipped) when the session ends.
package memory

import (
	"fmt"
	"sync"

	"github.com/openmotion/omlt/internal/config"
	"github.com/openmotion/omlt/internal/model"
	"github.com/openmotion/omlt/internal/model/convert"
	"github.com/openmotion/omlt/pkg/telemetry"
)

// Backend buffers recorded frames in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	session *model.Session

	frames []model.RecordedFrame

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session
func (b *Backend) StartSession(session *model.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = session
	b.frames = nil

	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return fmt.Errorf("no active session")
	}

	return b.exportJSON()
}

// RecordFrames appends accepted frames to the session buffer
func (b *Backend) RecordFrames(frames []telemetry.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return fmt.Errorf("no active session")
	}

	for _, f := range frames {
		b.frames = append(b.frames, convert.FrameToRecord(b.session.SessionID, f))
	}
	return nil
}

// FrameCount returns the number of frames buffered so far.
func (b *Backend) FrameCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.frames)
}

// GetExportedFilePath returns the path of the last exported session file.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
