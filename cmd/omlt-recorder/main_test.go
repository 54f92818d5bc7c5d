package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openmotion/omlt/pkg/telemetry"
)

func TestSummarizeFramesSamples(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	var forwarded int
	handler := summarizeFrames(log, 3, func(telemetry.Frame) { forwarded++ })

	for i := 0; i < 7; i++ {
		handler(telemetry.Frame{
			GameName: "RacingSim",
			Sequence: uint64(i + 1),
			Object:   telemetry.MotionObject{Name: "player_car"},
		})
	}

	assert.Equal(t, 7, forwarded)
	// Frames 1, 4 and 7 get a summary line.
	assert.Equal(t, 3, strings.Count(buf.String(), "seq="))
	assert.Contains(t, buf.String(), "object=player_car")
}

func TestSummarizeFramesZeroMeansEvery(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	handler := summarizeFrames(log, 0, func(telemetry.Frame) {})
	handler(telemetry.Frame{Sequence: 1})
	handler(telemetry.Frame{Sequence: 2})

	assert.Equal(t, 2, strings.Count(buf.String(), "seq="))
}
