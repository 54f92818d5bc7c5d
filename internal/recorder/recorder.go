// Package recorder drains accepted frames into a storage backend. Frames
// queue up between flushes so the subscriber poll loop never blocks on a
// database or file write.
package recorder

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openmotion/omlt/internal/model"
	"github.com/openmotion/omlt/internal/queue"
	"github.com/openmotion/omlt/internal/storage"
	"github.com/openmotion/omlt/pkg/telemetry"
)

// DefaultFlushInterval is used when the config leaves it zero.
const DefaultFlushInterval = time.Second

// Config holds recorder settings.
type Config struct {
	FlushInterval time.Duration
}

// Service buffers accepted frames and flushes them to the backend on a
// fixed interval.
type Service struct {
	cfg     Config
	backend storage.Backend
	log     *slog.Logger

	pending queue.Queue[telemetry.Frame]

	framesWritten atomic.Uint64
	lastWriteNs   atomic.Int64

	running bool
	quit    chan struct{}
	done    chan struct{}
	mu      sync.Mutex
}

// NewService creates a recorder flushing to the given backend.
func NewService(cfg Config, backend storage.Backend, log *slog.Logger) *Service {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	return &Service{
		cfg:     cfg,
		backend: backend,
		log:     log,
	}
}

// Start opens the session on the backend and begins the flush loop.
func (s *Service) Start(session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("recorder already running")
	}

	if err := s.backend.StartSession(session); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true
	go s.flushLoop()

	s.log.Info("Recording started",
		"session", session.SessionID,
		"game", session.GameName,
		"flushInterval", s.cfg.FlushInterval)
	return nil
}

// Handle enqueues one accepted frame. Safe to pass as the subscriber
// delivery callback; the frame is copied out of decoder-owned storage.
func (s *Service) Handle(f telemetry.Frame) {
	s.pending.Push(f.Copy())
}

// Stop flushes remaining frames, finalizes the session and stops the loop.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	close(s.quit)
	<-s.done

	// final drain
	if err := s.flush(); err != nil {
		s.log.Error("Final flush failed", "error", err)
	}

	if err := s.backend.EndSession(); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	s.log.Info("Recording stopped", "framesWritten", s.framesWritten.Load())
	return nil
}

// Pending returns the number of frames awaiting a flush.
func (s *Service) Pending() int {
	return s.pending.Len()
}

// FramesWritten returns the total frames handed to the backend.
func (s *Service) FramesWritten() uint64 {
	return s.framesWritten.Load()
}

// LastWriteDuration returns how long the most recent flush took.
func (s *Service) LastWriteDuration() time.Duration {
	return time.Duration(s.lastWriteNs.Load())
}

func (s *Service) flushLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			if err := s.flush(); err != nil {
				s.log.Error("Flush failed", "error", err)
			}
		}
	}
}

func (s *Service) flush() error {
	frames := s.pending.GetAndEmpty()
	if len(frames) == 0 {
		return nil
	}

	start := time.Now()
	if err := s.backend.RecordFrames(frames); err != nil {
		// put them back so the next flush retries
		s.pending.Push(frames...)
		return err
	}
	s.lastWriteNs.Store(int64(time.Since(start)))
	s.framesWritten.Add(uint64(len(frames)))
	return nil
}
