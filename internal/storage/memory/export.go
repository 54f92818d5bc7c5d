package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SessionExport is the root JSON structure written at session end.
type SessionExport struct {
	SessionID  string        `json:"sessionId"`
	GameName   string        `json:"gameName"`
	StreamID   uint32        `json:"streamId"`
	Address    string        `json:"address"`
	Convention string        `json:"convention"`
	StartedAt  time.Time     `json:"startedAt"`
	EndedAt    *time.Time    `json:"endedAt,omitempty"`
	FrameCount int           `json:"frameCount"`
	Frames     []exportFrame `json:"frames"`
}

// exportFrame flattens a recorded frame for the export file. Drive points
// and feedback stay as raw JSON so the writer does not re-marshal them.
type exportFrame struct {
	Sequence  uint64  `json:"sequence"`
	Timestamp float64 `json:"timestamp"`

	Object   string     `json:"object"`
	Location string     `json:"location,omitempty"`
	Type     string     `json:"type,omitempty"`
	Position [3]float64 `json:"position"`
	Forward  [3]float64 `json:"forward"`
	Up       [3]float64 `json:"up"`

	Aerodynamics *[3]float64 `json:"aerodynamics,omitempty"`

	DrivePoints json.RawMessage `json:"drivePoints"`
	Feedback    json.RawMessage `json:"feedback"`
}

// exportJSON writes the session data to a (possibly gzipped) JSON file.
// Caller holds the lock.
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	gameName := strings.ReplaceAll(b.session.GameName, " ", "_")
	gameName = strings.ReplaceAll(gameName, ":", "_")
	timestamp := b.session.StartedAt.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", gameName, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", gameName, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := b.writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := b.writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() SessionExport {
	export := SessionExport{
		SessionID:  b.session.SessionID,
		GameName:   b.session.GameName,
		StreamID:   b.session.StreamID,
		Address:    b.session.Address,
		Convention: b.session.Convention,
		StartedAt:  b.session.StartedAt,
		FrameCount: len(b.frames),
		Frames:     make([]exportFrame, 0, len(b.frames)),
	}
	if b.session.EndedAt.Valid {
		export.EndedAt = &b.session.EndedAt.Time
	}

	for _, rec := range b.frames {
		ef := exportFrame{
			Sequence:    rec.Sequence,
			Timestamp:   rec.Timestamp,
			Object:      rec.ObjectName,
			Location:    rec.ObjectLocation,
			Type:        rec.ObjectType,
			Position:    [3]float64{rec.PosX, rec.PosY, rec.PosZ},
			Forward:     [3]float64{rec.FwdX, rec.FwdY, rec.FwdZ},
			Up:          [3]float64{rec.UpX, rec.UpY, rec.UpZ},
			DrivePoints: json.RawMessage(rec.DrivePoints),
			Feedback:    json.RawMessage(rec.Feedback),
		}
		if rec.HasAerodynamics {
			ef.Aerodynamics = &[3]float64{rec.AeroLift, rec.AeroDrag, rec.AeroYaw}
		}
		export.Frames = append(export.Frames, ef)
	}

	return export
}

func (b *Backend) writeJSON(path string, export SessionExport) error {
	data, err := json.Marshal(export)
	if err != nil {
		return fmt.Errorf("failed to marshal session export: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write session export: %w", err)
	}
	return nil
}

func (b *Backend) writeGzipJSON(path string, export SessionExport) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create session export: %w", err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	if err := json.NewEncoder(gz).Encode(export); err != nil {
		gz.Close()
		return fmt.Errorf("failed to write session export: %w", err)
	}
	return gz.Close()
}
