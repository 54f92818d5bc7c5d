package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmotion/omlt/internal/model"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func TestGetSqliteDBStandalone_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := GetSqliteDBStandalone(path)
	require.NoError(t, err)
	require.NotNil(t, db)

	require.NoError(t, db.AutoMigrate(model.DatabaseModels...))

	rec := model.RecordedFrame{SessionID: "s1", Sequence: 1, Timestamp: 0.016, GameName: "RacingSim"}
	require.NoError(t, db.Create(&rec).Error)

	var count int64
	require.NoError(t, db.Model(&model.RecordedFrame{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestManager_SqliteFallbackSetup(t *testing.T) {
	m := NewManager(testLogger())

	db, err := m.GetSqliteDB("")
	require.NoError(t, err)
	m.DB = db
	m.ShouldSaveLocal = true
	m.IsValid = true

	require.NoError(t, m.Setup())

	sess := model.Session{SessionID: "abc", GameName: "FlightSim", StreamID: 7}
	require.NoError(t, m.DB.Create(&sess).Error)

	var got model.Session
	require.NoError(t, m.DB.First(&got, "session_id = ?", "abc").Error)
	assert.Equal(t, uint32(7), got.StreamID)
}

func TestDumpMemoryDBToDisk(t *testing.T) {
	db, err := GetSqliteDBStandalone("")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Session{}))

	path := filepath.Join(t.TempDir(), "dump.db")
	require.NoError(t, DumpMemoryDBToDisk(db, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestDumpMemoryDBToDisk_EmptyPath(t *testing.T) {
	db, err := GetSqliteDBStandalone("")
	require.NoError(t, err)

	err = DumpMemoryDBToDisk(db, "")
	assert.Error(t, err)
}
