package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmotion/omlt/internal/config"
	"github.com/openmotion/omlt/internal/model"
	"github.com/openmotion/omlt/pkg/telemetry"
)

func testSession() *model.Session {
	return &model.Session{
		SessionID:  "11111111-2222-3333-4444-555555555555",
		GameName:   "RacingSim",
		StreamID:   1001,
		Address:    "127.0.0.1:40123",
		Convention: "session-seconds",
		StartedAt:  time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC),
	}
}

func testFrame(seq uint64, ts float64) telemetry.Frame {
	return telemetry.Frame{
		GameName:         "RacingSim",
		SessionTimestamp: ts,
		Sequence:         seq,
		Object: telemetry.MotionObject{
			Name:     "player_car",
			Position: telemetry.Vec3{X: float32(ts)},
			Orientation: telemetry.Orientation{
				Forward: telemetry.Vec3{Z: 1},
				Up:      telemetry.Vec3{Y: 1},
			},
			FeedbackItems: []telemetry.FeedbackItem{{Name: "seat_rumble", Value: 0.5}},
		},
	}
}

func TestRecordFrames_RequiresSession(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.Init())

	err := b.RecordFrames([]telemetry.Frame{testFrame(1, 0.016)})
	assert.Error(t, err)
}

func TestEndSession_RequiresSession(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	assert.Error(t, b.EndSession())
}

func TestExport_PlainJSON(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: false})
	require.NoError(t, b.Init())

	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.RecordFrames([]telemetry.Frame{
		testFrame(1, 0.000),
		testFrame(2, 0.016),
	}))
	require.NoError(t, b.RecordFrames([]telemetry.Frame{
		testFrame(3, 0.033),
	}))
	assert.Equal(t, 3, b.FrameCount())

	require.NoError(t, b.EndSession())

	path := b.GetExportedFilePath()
	assert.Contains(t, path, "RacingSim_20260301_143000.json")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var export SessionExport
	require.NoError(t, json.Unmarshal(data, &export))
	assert.Equal(t, "RacingSim", export.GameName)
	assert.Equal(t, uint32(1001), export.StreamID)
	assert.Equal(t, 3, export.FrameCount)
	require.Len(t, export.Frames, 3)
	assert.Equal(t, uint64(1), export.Frames[0].Sequence)
	assert.Equal(t, 0.033, export.Frames[2].Timestamp)
	assert.Equal(t, "player_car", export.Frames[0].Object)
	assert.JSONEq(t, `[{"Name":"seat_rumble","Value":0.5}]`, string(export.Frames[0].Feedback))
}

func TestExport_Gzip(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})
	require.NoError(t, b.Init())

	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.RecordFrames([]telemetry.Frame{testFrame(1, 0.016)}))
	require.NoError(t, b.EndSession())

	path := b.GetExportedFilePath()
	assert.Contains(t, path, ".json.gz")

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	gz, err := gzip.NewReader(file)
	require.NoError(t, err)

	var export SessionExport
	require.NoError(t, json.NewDecoder(gz).Decode(&export))
	assert.Equal(t, 1, export.FrameCount)
}

func TestStartSession_ResetsBuffer(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})

	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.RecordFrames([]telemetry.Frame{testFrame(1, 0.016)}))
	assert.Equal(t, 1, b.FrameCount())

	require.NoError(t, b.StartSession(testSession()))
	assert.Equal(t, 0, b.FrameCount())
}

func TestExport_AerodynamicsOmittedWhenZero(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir})
	require.NoError(t, b.StartSession(testSession()))

	withAero := testFrame(1, 0.016)
	withAero.Object.Aerodynamics = telemetry.Aerodynamics{Lift: -120, Drag: 300, Yaw: 1.5}
	require.NoError(t, b.RecordFrames([]telemetry.Frame{withAero, testFrame(2, 0.033)}))
	require.NoError(t, b.EndSession())

	data, err := os.ReadFile(b.GetExportedFilePath())
	require.NoError(t, err)

	var export SessionExport
	require.NoError(t, json.Unmarshal(data, &export))
	require.Len(t, export.Frames, 2)
	require.NotNil(t, export.Frames[0].Aerodynamics)
	assert.InDelta(t, -120, export.Frames[0].Aerodynamics[0], 1e-4)
	assert.Nil(t, export.Frames[1].Aerodynamics)
}
