// Package convert provides functions to convert between GORM models and telemetry frames
package convert

import (
	"encoding/json"

	"github.com/openmotion/omlt/internal/model"
	"github.com/openmotion/omlt/pkg/telemetry"

	"gorm.io/datatypes"
)

// drivePointsToJSON converts drive point records to datatypes.JSON for DB storage.
func drivePointsToJSON(pts []telemetry.DrivePoint) datatypes.JSON {
	if len(pts) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(pts)
	return datatypes.JSON(data)
}

// feedbackToJSON converts feedback items to datatypes.JSON for DB storage.
func feedbackToJSON(items []telemetry.FeedbackItem) datatypes.JSON {
	if len(items) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(items)
	return datatypes.JSON(data)
}

// FrameToRecord converts a decoded telemetry.Frame to a GORM model.RecordedFrame.
func FrameToRecord(sessionID string, f telemetry.Frame) model.RecordedFrame {
	obj := f.Object
	rec := model.RecordedFrame{
		SessionID: sessionID,
		Sequence:  f.Sequence,
		Timestamp: f.SessionTimestamp,
		GameName:  f.GameName,

		ObjectName:     obj.Name,
		ObjectLocation: obj.Location,
		ObjectType:     obj.Type,

		PosX: float64(obj.Position.X),
		PosY: float64(obj.Position.Y),
		PosZ: float64(obj.Position.Z),

		FwdX: float64(obj.Orientation.Forward.X),
		FwdY: float64(obj.Orientation.Forward.Y),
		FwdZ: float64(obj.Orientation.Forward.Z),

		UpX: float64(obj.Orientation.Up.X),
		UpY: float64(obj.Orientation.Up.Y),
		UpZ: float64(obj.Orientation.Up.Z),

		DrivePoints: drivePointsToJSON(obj.DrivePoints),
		Feedback:    feedbackToJSON(obj.FeedbackItems),
	}

	if obj.Aerodynamics != (telemetry.Aerodynamics{}) {
		rec.HasAerodynamics = true
		rec.AeroLift = float64(obj.Aerodynamics.Lift)
		rec.AeroDrag = float64(obj.Aerodynamics.Drag)
		rec.AeroYaw = float64(obj.Aerodynamics.Yaw)
	}

	return rec
}

// RecordToFrame converts a stored model.RecordedFrame back to a telemetry.Frame.
func RecordToFrame(rec model.RecordedFrame) telemetry.Frame {
	f := telemetry.Frame{
		GameName:         rec.GameName,
		SessionTimestamp: rec.Timestamp,
		Sequence:         rec.Sequence,
		Object: telemetry.MotionObject{
			Name:     rec.ObjectName,
			Location: rec.ObjectLocation,
			Type:     rec.ObjectType,
			Position: telemetry.Vec3{
				X: float32(rec.PosX),
				Y: float32(rec.PosY),
				Z: float32(rec.PosZ),
			},
			Orientation: telemetry.Orientation{
				Forward: telemetry.Vec3{
					X: float32(rec.FwdX),
					Y: float32(rec.FwdY),
					Z: float32(rec.FwdZ),
				},
				Up: telemetry.Vec3{
					X: float32(rec.UpX),
					Y: float32(rec.UpY),
					Z: float32(rec.UpZ),
				},
			},
		},
	}

	if rec.HasAerodynamics {
		f.Object.Aerodynamics = telemetry.Aerodynamics{
			Lift: float32(rec.AeroLift),
			Drag: float32(rec.AeroDrag),
			Yaw:  float32(rec.AeroYaw),
		}
	}

	var pts []telemetry.DrivePoint
	if err := json.Unmarshal(rec.DrivePoints, &pts); err == nil && len(pts) > 0 {
		f.Object.DrivePoints = pts
	}
	var items []telemetry.FeedbackItem
	if err := json.Unmarshal(rec.Feedback, &items); err == nil && len(items) > 0 {
		f.Object.FeedbackItems = items
	}

	return f
}
