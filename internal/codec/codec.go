// Package codec implements the OMLT binary frame encoding: a fixed header,
// a fixed-size field section, packed array sections and a trailing string
// blob, with all variable-length data referenced by (offset, length) pairs
// so individual fields can be read without parsing the whole buffer.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/openmotion/omlt/pkg/telemetry"
)

// Magic is the leading frame identifier, "OMLT" in ASCII.
const Magic uint32 = 0x544C4D4F // little-endian "OMLT"

// Version is the wire format version this package encodes.
const Version uint16 = 1

// Header flags.
const (
	// FlagAerodynamics marks the aerodynamics record as present.
	FlagAerodynamics uint16 = 1 << 0
	// FlagUnixNanos marks the stream timestamp convention as unix
	// nanoseconds instead of session-seconds.
	FlagUnixNanos uint16 = 1 << 1
)

// Layout constants. All multi-byte values are little-endian.
const (
	headerSize = 24 // magic(4) version(2) flags(2) sequence(8) timestamp(8)
	fixedSize  = 96 // refs, vectors, aero, array refs
	fixedEnd   = headerSize + fixedSize

	drivePointSize   = 40
	feedbackItemSize = 12
)

// Fixed-section field offsets, relative to buffer start.
const (
	offGameName = 24
	offObjName  = 32
	offObjLoc   = 40
	offObjType  = 48
	offPosition = 56
	offForward  = 68
	offUp       = 80
	offAero     = 92
	offDrivePts = 104
	offFeedback = 112
)

// Decode failure classes. Wrapped errors carry position detail; match with
// errors.Is.
var (
	// ErrBadHeader means the magic or version did not match.
	ErrBadHeader = errors.New("bad frame header")
	// ErrTruncated means a declared section extends past the buffer end.
	ErrTruncated = errors.New("truncated frame")
)

// Header is the fixed frame prefix, readable without decoding the body.
type Header struct {
	Version   uint16
	Flags     uint16
	Sequence  uint64
	Timestamp float64
}

// UnixNanos reports whether the producer stamped unix-nanosecond
// timestamps on this stream.
func (h Header) UnixNanos() bool { return h.Flags&FlagUnixNanos != 0 }

// ParseHeader validates the frame prefix and returns it. Subscribers use
// this for admission decisions before paying for a full decode.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < headerSize {
		return Header{}, fmt.Errorf("%w: %d bytes, need %d for header", ErrTruncated, len(buf), headerSize)
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != Magic {
		return Header{}, fmt.Errorf("%w: unrecognized magic", ErrBadHeader)
	}
	v := binary.LittleEndian.Uint16(buf[4:6])
	if v != Version {
		return Header{}, fmt.Errorf("%w: unsupported version %d", ErrBadHeader, v)
	}
	return Header{
		Version:   v,
		Flags:     binary.LittleEndian.Uint16(buf[6:8]),
		Sequence:  binary.LittleEndian.Uint64(buf[8:16]),
		Timestamp: math.Float64frombits(binary.LittleEndian.Uint64(buf[16:24])),
	}, nil
}

// Encode serializes the frame into a fresh buffer.
func Encode(f *telemetry.Frame, flags uint16) []byte {
	return AppendEncode(nil, f, flags)
}

// AppendEncode serializes the frame onto dst and returns the extended
// buffer. Identical frames always produce byte-identical output: section
// and blob order is fixed.
func AppendEncode(dst []byte, f *telemetry.Frame, flags uint16) []byte {
	base := len(dst)
	if f.Object.Aerodynamics != (telemetry.Aerodynamics{}) {
		flags |= FlagAerodynamics
	}

	dps := f.Object.DrivePoints
	fbs := f.Object.FeedbackItems

	arrayStart := fixedEnd
	blobStart := arrayStart + len(dps)*drivePointSize + len(fbs)*feedbackItemSize
	blobLen := len(f.GameName) + len(f.Object.Name) + len(f.Object.Location) + len(f.Object.Type)
	for _, dp := range dps {
		blobLen += len(dp.Name) + len(dp.Type)
	}
	for _, fb := range fbs {
		blobLen += len(fb.Name)
	}

	total := blobStart + blobLen
	dst = append(dst, make([]byte, total)...)
	buf := dst[base:]

	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint16(buf[4:6], Version)
	binary.LittleEndian.PutUint16(buf[6:8], flags)
	binary.LittleEndian.PutUint64(buf[8:16], f.Sequence)
	binary.LittleEndian.PutUint64(buf[16:24], math.Float64bits(f.SessionTimestamp))

	blob := uint32(blobStart)
	putStr := func(refOff int, s string) {
		binary.LittleEndian.PutUint32(buf[refOff:refOff+4], blob)
		binary.LittleEndian.PutUint32(buf[refOff+4:refOff+8], uint32(len(s)))
		copy(buf[blob:], s)
		blob += uint32(len(s))
	}

	putStr(offGameName, f.GameName)
	putStr(offObjName, f.Object.Name)
	putStr(offObjLoc, f.Object.Location)
	putStr(offObjType, f.Object.Type)

	putVec3(buf[offPosition:], f.Object.Position)
	putVec3(buf[offForward:], f.Object.Orientation.Forward)
	putVec3(buf[offUp:], f.Object.Orientation.Up)
	if flags&FlagAerodynamics != 0 {
		a := f.Object.Aerodynamics
		putVec3(buf[offAero:], telemetry.Vec3{X: a.Lift, Y: a.Drag, Z: a.Yaw})
	}

	binary.LittleEndian.PutUint32(buf[offDrivePts:], uint32(arrayStart))
	binary.LittleEndian.PutUint32(buf[offDrivePts+4:], uint32(len(dps)))
	fbOff := arrayStart + len(dps)*drivePointSize
	binary.LittleEndian.PutUint32(buf[offFeedback:], uint32(fbOff))
	binary.LittleEndian.PutUint32(buf[offFeedback+4:], uint32(len(fbs)))

	for i, dp := range dps {
		rec := arrayStart + i*drivePointSize
		putStr(rec, dp.Name)
		putStr(rec+8, dp.Type)
		putVec3(buf[rec+16:], dp.COGOffset)
		binary.LittleEndian.PutUint32(buf[rec+28:], math.Float32bits(dp.RPM))
		binary.LittleEndian.PutUint32(buf[rec+32:], math.Float32bits(dp.Torque))
		binary.LittleEndian.PutUint32(buf[rec+36:], math.Float32bits(dp.BrakePressure))
	}
	for i, fb := range fbs {
		rec := fbOff + i*feedbackItemSize
		putStr(rec, fb.Name)
		binary.LittleEndian.PutUint32(buf[rec+8:], math.Float32bits(fb.Value))
	}

	return dst
}

// Decode parses a frame from buf. Bytes past the referenced sections are
// ignored, so newer producers can append data without breaking older
// consumers. Absent optional fields come back zero-valued, never as an
// error.
func Decode(buf []byte) (telemetry.Frame, error) {
	var f telemetry.Frame

	h, err := ParseHeader(buf)
	if err != nil {
		return f, err
	}
	if len(buf) < fixedEnd {
		return f, fmt.Errorf("%w: %d bytes, need %d for fixed section", ErrTruncated, len(buf), fixedEnd)
	}

	f.Sequence = h.Sequence
	f.SessionTimestamp = h.Timestamp

	if f.GameName, err = getStr(buf, offGameName); err != nil {
		return telemetry.Frame{}, err
	}
	if f.Object.Name, err = getStr(buf, offObjName); err != nil {
		return telemetry.Frame{}, err
	}
	if f.Object.Location, err = getStr(buf, offObjLoc); err != nil {
		return telemetry.Frame{}, err
	}
	if f.Object.Type, err = getStr(buf, offObjType); err != nil {
		return telemetry.Frame{}, err
	}

	f.Object.Position = getVec3(buf[offPosition:])
	f.Object.Orientation.Forward = getVec3(buf[offForward:])
	f.Object.Orientation.Up = getVec3(buf[offUp:])
	if h.Flags&FlagAerodynamics != 0 {
		v := getVec3(buf[offAero:])
		f.Object.Aerodynamics = telemetry.Aerodynamics{Lift: v.X, Drag: v.Y, Yaw: v.Z}
	}

	dpOff := binary.LittleEndian.Uint32(buf[offDrivePts:])
	dpCount := binary.LittleEndian.Uint32(buf[offDrivePts+4:])
	if dpCount > 0 {
		if err := checkExtent(buf, dpOff, dpCount, drivePointSize, "drive points"); err != nil {
			return telemetry.Frame{}, err
		}
		f.Object.DrivePoints = make([]telemetry.DrivePoint, dpCount)
		for i := range f.Object.DrivePoints {
			rec := int(dpOff) + i*drivePointSize
			dp := &f.Object.DrivePoints[i]
			if dp.Name, err = getStr(buf, rec); err != nil {
				return telemetry.Frame{}, err
			}
			if dp.Type, err = getStr(buf, rec+8); err != nil {
				return telemetry.Frame{}, err
			}
			dp.COGOffset = getVec3(buf[rec+16:])
			dp.RPM = math.Float32frombits(binary.LittleEndian.Uint32(buf[rec+28:]))
			dp.Torque = math.Float32frombits(binary.LittleEndian.Uint32(buf[rec+32:]))
			dp.BrakePressure = math.Float32frombits(binary.LittleEndian.Uint32(buf[rec+36:]))
		}
	}

	fbOff := binary.LittleEndian.Uint32(buf[offFeedback:])
	fbCount := binary.LittleEndian.Uint32(buf[offFeedback+4:])
	if fbCount > 0 {
		if err := checkExtent(buf, fbOff, fbCount, feedbackItemSize, "feedback items"); err != nil {
			return telemetry.Frame{}, err
		}
		f.Object.FeedbackItems = make([]telemetry.FeedbackItem, fbCount)
		for i := range f.Object.FeedbackItems {
			rec := int(fbOff) + i*feedbackItemSize
			fb := &f.Object.FeedbackItems[i]
			if fb.Name, err = getStr(buf, rec); err != nil {
				return telemetry.Frame{}, err
			}
			fb.Value = math.Float32frombits(binary.LittleEndian.Uint32(buf[rec+8:]))
		}
	}

	return f, nil
}

// getStr resolves an (offset, length) string ref at refOff, bounds-checked
// against the whole buffer. Zero length decodes to "" without touching the
// offset.
func getStr(buf []byte, refOff int) (string, error) {
	off := binary.LittleEndian.Uint32(buf[refOff : refOff+4])
	n := binary.LittleEndian.Uint32(buf[refOff+4 : refOff+8])
	if n == 0 {
		return "", nil
	}
	end := uint64(off) + uint64(n)
	if end > uint64(len(buf)) {
		return "", fmt.Errorf("%w: string ref at %d spans [%d:%d] beyond %d bytes",
			ErrTruncated, refOff, off, end, len(buf))
	}
	return string(buf[off:end]), nil
}

// checkExtent rejects declared element counts that cannot fit in the
// remaining bytes. uint64 math avoids overflow on hostile counts.
func checkExtent(buf []byte, off, count uint32, recSize int, what string) error {
	end := uint64(off) + uint64(count)*uint64(recSize)
	if end > uint64(len(buf)) {
		return fmt.Errorf("%w: %d %s end at %d beyond %d bytes", ErrTruncated, count, what, end, len(buf))
	}
	return nil
}

func putVec3(b []byte, v telemetry.Vec3) {
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(v.X))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(v.Y))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(v.Z))
}

func getVec3(b []byte) telemetry.Vec3 {
	return telemetry.Vec3{
		X: math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
		Y: math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		Z: math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
	}
}
