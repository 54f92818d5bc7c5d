package convert

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmotion/omlt/pkg/telemetry"
)

func sampleFrame() telemetry.Frame {
	return telemetry.Frame{
		GameName:         "RacingSim",
		SessionTimestamp: 12.345,
		Sequence:         42,
		Object: telemetry.MotionObject{
			Name:     "player_car",
			Location: "spa",
			Type:     "gt3",
			Position: telemetry.Vec3{X: 1.5, Y: 0.2, Z: -3.75},
			Orientation: telemetry.Orientation{
				Forward: telemetry.Vec3{Z: 1},
				Up:      telemetry.Vec3{Y: 1},
			},
			DrivePoints: []telemetry.DrivePoint{
				{
					Name:          "wheel_fl",
					Type:          "wheel",
					COGOffset:     telemetry.Vec3{X: -0.8, Y: -0.3, Z: 1.2},
					RPM:           850,
					Torque:        112.5,
					BrakePressure: 0.4,
				},
			},
			Aerodynamics: telemetry.Aerodynamics{Lift: -120, Drag: 300, Yaw: 1.5},
			FeedbackItems: []telemetry.FeedbackItem{
				{Name: "seat_rumble", Value: 0.7},
			},
		},
	}
}

func TestFrameToRecord(t *testing.T) {
	rec := FrameToRecord("session-1", sampleFrame())

	assert.Equal(t, "session-1", rec.SessionID)
	assert.Equal(t, uint64(42), rec.Sequence)
	assert.Equal(t, 12.345, rec.Timestamp)
	assert.Equal(t, "RacingSim", rec.GameName)
	assert.Equal(t, "player_car", rec.ObjectName)
	assert.Equal(t, "spa", rec.ObjectLocation)
	assert.Equal(t, "gt3", rec.ObjectType)
	assert.InDelta(t, 1.5, rec.PosX, 1e-6)
	assert.InDelta(t, -3.75, rec.PosZ, 1e-6)
	assert.True(t, rec.HasAerodynamics)
	assert.InDelta(t, -120, rec.AeroLift, 1e-4)

	assert.JSONEq(t, `[{"Name":"seat_rumble","Value":0.7}]`, string(rec.Feedback))
	assert.Contains(t, string(rec.DrivePoints), `"wheel_fl"`)
}

func TestFrameToRecord_EmptyCollections(t *testing.T) {
	f := telemetry.Frame{
		GameName: "FlightSim",
		Object:   telemetry.MotionObject{Name: "glider"},
	}

	rec := FrameToRecord("session-2", f)

	assert.Equal(t, "[]", string(rec.DrivePoints))
	assert.Equal(t, "[]", string(rec.Feedback))
	assert.False(t, rec.HasAerodynamics, "zero aerodynamics means not reported")
}

func TestRoundTrip(t *testing.T) {
	want := sampleFrame()

	rec := FrameToRecord("session-3", want)
	got := RecordToFrame(rec)

	require.Empty(t, cmp.Diff(want, got))
}

func TestRoundTrip_NoAerodynamics(t *testing.T) {
	want := telemetry.Frame{
		GameName:         "FlightSim",
		SessionTimestamp: 0.016,
		Sequence:         1,
		Object: telemetry.MotionObject{
			Name:     "glider",
			Position: telemetry.Vec3{X: 100},
			Orientation: telemetry.Orientation{
				Forward: telemetry.Vec3{Z: 1},
				Up:      telemetry.Vec3{Y: 1},
			},
		},
	}

	got := RecordToFrame(FrameToRecord("session-4", want))

	require.Empty(t, cmp.Diff(want, got))
	assert.Equal(t, telemetry.Aerodynamics{}, got.Object.Aerodynamics)
}
