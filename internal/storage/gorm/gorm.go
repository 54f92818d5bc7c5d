// Package gormstorage implements the storage.Backend interface on a
// relational database through GORM. Postgres is preferred; when it is
// unreachable the backend falls back to a local SQLite file.
package gormstorage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openmotion/omlt/internal/config"
	"github.com/openmotion/omlt/internal/database"
	"github.com/openmotion/omlt/internal/model"
	"github.com/openmotion/omlt/internal/model/convert"
	"github.com/openmotion/omlt/pkg/telemetry"
)

// Backend records sessions and frames through a database.Manager.
type Backend struct {
	cfg     config.GormConfig
	mgr     *database.Manager
	session *model.Session
	log     zerolog.Logger
	mu      sync.Mutex
}

// New creates a new GORM storage backend.
func New(cfg config.GormConfig, log zerolog.Logger) *Backend {
	mgr := database.NewManager(log)
	mgr.SqliteFilePath = cfg.LocalDBPath
	return &Backend{
		cfg: cfg,
		mgr: mgr,
		log: log,
	}
}

// Init connects to the database and migrates the schema.
func (b *Backend) Init() error {
	if err := b.mgr.Connect(); err != nil {
		return fmt.Errorf("storage init: %w", err)
	}
	if err := b.mgr.Setup(); err != nil {
		return fmt.Errorf("storage init: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (b *Backend) Close() error {
	if b.mgr.SqlDB != nil {
		return b.mgr.SqlDB.Close()
	}
	return nil
}

// StartSession creates the session row.
func (b *Backend) StartSession(session *model.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.mgr.DB.Create(session).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	b.session = session
	return nil
}

// EndSession stamps the session end time.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return fmt.Errorf("no active session")
	}

	b.session.EndedAt = sql.NullTime{Time: time.Now(), Valid: true}
	if err := b.mgr.DB.Save(b.session).Error; err != nil {
		return fmt.Errorf("failed to finalize session: %w", err)
	}

	b.session = nil
	return nil
}

// RecordFrames batch-inserts accepted frames.
func (b *Backend) RecordFrames(frames []telemetry.Frame) error {
	if len(frames) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return fmt.Errorf("no active session")
	}

	records := make([]model.RecordedFrame, 0, len(frames))
	for _, f := range frames {
		records = append(records, convert.FrameToRecord(b.session.SessionID, f))
	}

	start := time.Now()
	if err := b.mgr.DB.Create(&records).Error; err != nil {
		return fmt.Errorf("failed to insert frames: %w", err)
	}
	b.log.Debug().
		Int("count", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Wrote frame batch")

	return nil
}

// RecordPerformance inserts a pipeline health snapshot.
func (b *Backend) RecordPerformance(perf *model.StreamPerformance) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session != nil && perf.SessionID == "" {
		perf.SessionID = b.session.SessionID
	}
	if err := b.mgr.DB.Create(perf).Error; err != nil {
		return fmt.Errorf("failed to insert performance snapshot: %w", err)
	}
	return nil
}
