// Package telemetry defines the motion telemetry data model carried by the
// OMLT transport core. Consumers import this package; everything else in the
// repository is wiring around it.
package telemetry

// Vec3 is a 3-component single-precision vector.
// World coordinates are metres, left-handed, Z-forward.
type Vec3 struct {
	X float32
	Y float32
	Z float32
}

// Orientation holds the two unit vectors describing an object's attitude.
// The transport layer does not re-orthonormalize them; that is the
// consumer's responsibility.
type Orientation struct {
	Forward Vec3
	Up      Vec3
}

// DrivePoint is a propulsion or contact point on the simulated entity
// (wheel, propeller, thruster) with its own force readings.
type DrivePoint struct {
	Name          string
	Type          string
	COGOffset     Vec3 // offset from centre of gravity, metres
	RPM           float32
	Torque        float32
	BrakePressure float32
}

// Aerodynamics holds the three aerodynamic coefficients of an entity.
// A zero value means "not reported"; absence and all-zero are equivalent.
type Aerodynamics struct {
	Lift float32
	Drag float32
	Yaw  float32
}

// FeedbackItem is a named scalar channel (seat rumble intensity, gear
// whine, ABS pulse). The value type is narrowed to float32 in this core;
// richer typing belongs to a layer above the wire format.
type FeedbackItem struct {
	Name  string
	Value float32
}

// MotionObject describes one simulated entity at one instant.
type MotionObject struct {
	Name     string // never empty
	Location string
	Type     string

	Position    Vec3
	Orientation Orientation

	// DrivePoints order is producer-defined and preserved end to end.
	DrivePoints []DrivePoint

	Aerodynamics Aerodynamics

	FeedbackItems []FeedbackItem
}

// Frame is the atomic unit of transmission: one motion object from one
// producer at one session instant. A decoded Frame is only valid for the
// duration of the consumer callback unless explicitly copied.
type Frame struct {
	GameName string

	// SessionTimestamp is monotonic seconds since producer session start
	// (or unix nanoseconds when the stream is configured for that
	// convention). It orders frames; it is not wall-clock time.
	SessionTimestamp float64

	// Sequence is the per-stream send counter stamped by the publisher.
	Sequence uint64

	Object MotionObject
}

// Copy returns a deep copy of the frame, detaching the slices from any
// decoder-owned backing storage.
func (f Frame) Copy() Frame {
	out := f
	if len(f.Object.DrivePoints) > 0 {
		out.Object.DrivePoints = make([]DrivePoint, len(f.Object.DrivePoints))
		copy(out.Object.DrivePoints, f.Object.DrivePoints)
	}
	if len(f.Object.FeedbackItems) > 0 {
		out.Object.FeedbackItems = make([]FeedbackItem, len(f.Object.FeedbackItems))
		copy(out.Object.FeedbackItems, f.Object.FeedbackItems)
	}
	return out
}
