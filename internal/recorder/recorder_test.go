package recorder

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmotion/omlt/internal/config"
	"github.com/openmotion/omlt/internal/model"
	"github.com/openmotion/omlt/internal/storage/memory"
	"github.com/openmotion/omlt/pkg/telemetry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testSession() *model.Session {
	return &model.Session{
		SessionID: uuid.NewString(),
		GameName:  "RacingSim",
		StreamID:  1001,
		StartedAt: time.Now(),
	}
}

func testFrame(seq uint64, ts float64) telemetry.Frame {
	return telemetry.Frame{
		GameName:         "RacingSim",
		SessionTimestamp: ts,
		Sequence:         seq,
		Object:           telemetry.MotionObject{Name: "player_car"},
	}
}

func TestRecorderFlushesToBackend(t *testing.T) {
	backend := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	svc := NewService(Config{FlushInterval: 10 * time.Millisecond}, backend, testLogger())

	require.NoError(t, svc.Start(testSession()))

	for i := 1; i <= 5; i++ {
		svc.Handle(testFrame(uint64(i), float64(i)*0.016))
	}

	require.Eventually(t, func() bool {
		return backend.FrameCount() == 5
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, uint64(5), svc.FramesWritten())
	assert.Equal(t, 0, svc.Pending())

	require.NoError(t, svc.Stop())
	assert.NotEmpty(t, backend.GetExportedFilePath())
}

func TestStopDrainsPending(t *testing.T) {
	backend := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	// Long interval so the ticker never fires during the test
	svc := NewService(Config{FlushInterval: time.Hour}, backend, testLogger())

	require.NoError(t, svc.Start(testSession()))
	svc.Handle(testFrame(1, 0.016))
	svc.Handle(testFrame(2, 0.033))

	require.NoError(t, svc.Stop())
	assert.Equal(t, 2, backend.FrameCount())
	assert.Equal(t, uint64(2), svc.FramesWritten())
}

func TestStartTwiceFails(t *testing.T) {
	backend := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	svc := NewService(Config{}, backend, testLogger())

	require.NoError(t, svc.Start(testSession()))
	assert.Error(t, svc.Start(testSession()))
	require.NoError(t, svc.Stop())
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	backend := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	svc := NewService(Config{}, backend, testLogger())
	assert.NoError(t, svc.Stop())
}

func TestDefaultFlushInterval(t *testing.T) {
	backend := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	svc := NewService(Config{}, backend, testLogger())
	assert.Equal(t, DefaultFlushInterval, svc.cfg.FlushInterval)
}

// failingBackend rejects the first RecordFrames call and succeeds after.
type failingBackend struct {
	*memory.Backend
	failed bool
}

func (f *failingBackend) RecordFrames(frames []telemetry.Frame) error {
	if !f.failed {
		f.failed = true
		return fmt.Errorf("transient write failure")
	}
	return f.Backend.RecordFrames(frames)
}

func TestFlushRetriesAfterBackendError(t *testing.T) {
	inner := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	backend := &failingBackend{Backend: inner}
	svc := NewService(Config{FlushInterval: 10 * time.Millisecond}, backend, testLogger())

	require.NoError(t, svc.Start(testSession()))
	svc.Handle(testFrame(1, 0.016))

	require.Eventually(t, func() bool {
		return inner.FrameCount() == 1
	}, time.Second, 5*time.Millisecond, "frame should survive a failed flush and land on retry")

	require.NoError(t, svc.Stop())
}
