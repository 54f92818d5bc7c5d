package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&RecordedFrame{},
	&StreamPerformance{},
}

// Session is one recording run against a single telemetry stream.
type Session struct {
	gorm.Model
	SessionID  string `json:"sessionId" gorm:"size:36;uniqueIndex"`
	GameName   string `json:"gameName" gorm:"size:127"`
	StreamID   uint32 `json:"streamId"`
	Address    string `json:"address" gorm:"size:127"`
	Convention string `json:"convention" gorm:"size:31"`
	StartedAt  time.Time
	EndedAt    sql.NullTime
}

// RecordedFrame is one accepted motion telemetry frame.
type RecordedFrame struct {
	gorm.Model
	SessionID string  `json:"sessionId" gorm:"size:36;index"`
	Sequence  uint64  `json:"sequence"`
	Timestamp float64 `json:"timestamp"`
	GameName  string  `json:"gameName" gorm:"size:127"`

	ObjectName     string `json:"objectName" gorm:"size:127"`
	ObjectLocation string `json:"objectLocation" gorm:"size:127"`
	ObjectType     string `json:"objectType" gorm:"size:127"`

	PosX float64 `json:"posX"`
	PosY float64 `json:"posY"`
	PosZ float64 `json:"posZ"`

	FwdX float64 `json:"fwdX"`
	FwdY float64 `json:"fwdY"`
	FwdZ float64 `json:"fwdZ"`

	UpX float64 `json:"upX"`
	UpY float64 `json:"upY"`
	UpZ float64 `json:"upZ"`

	HasAerodynamics bool    `json:"hasAerodynamics"`
	AeroLift        float64 `json:"aeroLift"`
	AeroDrag        float64 `json:"aeroDrag"`
	AeroYaw         float64 `json:"aeroYaw"`

	DrivePoints datatypes.JSON `json:"drivePoints"`
	Feedback    datatypes.JSON `json:"feedback"`
}

// StreamPerformance is a periodic snapshot of pipeline health for a session.
type StreamPerformance struct {
	gorm.Model
	SessionID       string    `json:"sessionId" gorm:"size:36;index"`
	Time            time.Time `json:"time"`
	FramesAccepted  uint64    `json:"framesAccepted"`
	FramesStale     uint64    `json:"framesStale"`
	DecodeFailures  uint64    `json:"decodeFailures"`
	BufferDropped   uint64    `json:"bufferDropped"`
	PendingWrites   uint32    `json:"pendingWrites"`
	HighWaterMark   float64   `json:"highWaterMark"`
	LastWriteMillis float32   `json:"lastWriteMs"`
}
