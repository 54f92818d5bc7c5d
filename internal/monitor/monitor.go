// Package monitor periodically snapshots pipeline health and fans the
// snapshot out to the log, InfluxDB and the recording backend.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/openmotion/omlt/internal/influx"
	"github.com/openmotion/omlt/internal/logging"
	"github.com/openmotion/omlt/internal/model"
	"github.com/openmotion/omlt/internal/publisher"
	"github.com/openmotion/omlt/internal/recorder"
	"github.com/openmotion/omlt/internal/subscriber"
)

// PerformanceSink receives periodic health snapshots. The GORM storage
// backend implements it; the memory backend does not.
type PerformanceSink interface {
	RecordPerformance(perf *model.StreamPerformance) error
}

// Dependencies holds all dependencies for the monitor service.
// Subscriber is required; the rest are optional.
type Dependencies struct {
	LogManager *logging.SlogManager
	Subscriber *subscriber.Subscriber
	Publisher  *publisher.Publisher
	Recorder   *recorder.Service
	Influx     *influx.Manager
	Sink       PerformanceSink

	SessionID string
	StreamID  uint32
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	interval  time.Duration
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Service{
		deps:     deps,
		interval: interval,
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Snapshot builds the current pipeline health snapshot.
func (s *Service) Snapshot() model.StreamPerformance {
	perf := model.StreamPerformance{
		SessionID: s.deps.SessionID,
		Time:      time.Now(),
	}

	if sub := s.deps.Subscriber; sub != nil {
		stats := sub.Stats()
		perf.FramesAccepted = stats.Accepted
		perf.FramesStale = stats.Stale
		perf.DecodeFailures = stats.DecodeFailures
		perf.BufferDropped = stats.BufferDropped
		if hwm, ok := sub.HighWaterMark(); ok {
			perf.HighWaterMark = hwm
		}
	}

	if rec := s.deps.Recorder; rec != nil {
		perf.PendingWrites = uint32(rec.Pending())
		perf.LastWriteMillis = float32(rec.LastWriteDuration().Milliseconds())
	}

	return perf
}

// Start begins the monitoring loop.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.run()
}

// Stop halts the monitoring loop.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	s.isRunning = false

	close(s.stopChan)
	<-s.done
}

func (s *Service) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.report()
		}
	}
}

// report publishes one snapshot to every configured output.
func (s *Service) report() {
	perf := s.Snapshot()
	log := s.deps.LogManager.Logger()

	log.Info("Pipeline status",
		"accepted", perf.FramesAccepted,
		"stale", perf.FramesStale,
		"decodeFailures", perf.DecodeFailures,
		"bufferDropped", perf.BufferDropped,
		"pendingWrites", perf.PendingWrites,
		"highWaterMark", perf.HighWaterMark,
		"lastWriteMs", perf.LastWriteMillis,
	)

	if s.deps.Influx != nil {
		point := influx.NewStreamPerformancePoint(
			perf.SessionID,
			s.deps.StreamID,
			perf.FramesAccepted,
			perf.FramesStale,
			perf.DecodeFailures,
			perf.BufferDropped,
			int(perf.PendingWrites),
			perf.HighWaterMark,
			float64(perf.LastWriteMillis),
		)
		if err := s.deps.Influx.WritePoint(context.Background(), influx.BucketStreamPerformance, point); err != nil {
			log.Warn("Failed to write stream performance point", "error", err)
		}

		if pub := s.deps.Publisher; pub != nil {
			stats := pub.Stats()
			pubPoint := influx.NewPublisherPerformancePoint(s.deps.StreamID, stats.Sent, stats.Dropped, stats.NotConnected)
			if err := s.deps.Influx.WritePoint(context.Background(), influx.BucketPublisherPerformance, pubPoint); err != nil {
				log.Warn("Failed to write publisher performance point", "error", err)
			}
		}
	}

	if s.deps.Sink != nil {
		snapshot := perf
		if err := s.deps.Sink.RecordPerformance(&snapshot); err != nil {
			log.Warn("Failed to persist performance snapshot", "error", err)
		}
	}
}
