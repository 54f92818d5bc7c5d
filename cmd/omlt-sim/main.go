// omlt-sim publishes a synthetic motion telemetry stream: a car driving
// a figure-eight with spinning wheels and a rumble channel. It stands in
// for a game or simulator when testing platforms and recorders.
package main

import (
	"flag"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/openmotion/omlt/internal/config"
	"github.com/openmotion/omlt/internal/logging"
	"github.com/openmotion/omlt/internal/publisher"
	"github.com/openmotion/omlt/internal/sequence"
	"github.com/openmotion/omlt/pkg/telemetry"
)

var (
	CurrentVersion = "0.1.0"

	ProcessName = "omlt-sim"
)

func main() {
	configDir := flag.String("config", ".", "directory containing omlt.cfg.json")
	addr := flag.String("addr", "", "override stream address (host:port)")
	streamID := flag.Uint("stream", 0, "override stream id")
	rateHz := flag.Int("rate", 0, "override frame rate")
	gameName := flag.String("game", "", "override game name")
	duration := flag.Duration("duration", 0, "stop after this long (0 = run until interrupted)")
	flag.Parse()

	// Config file is optional for the sim; Load seeds viper defaults
	// before it looks for the file, and those cover everything.
	_ = config.Load(*configDir)

	logManager := logging.NewSlogManager()
	logManager.Setup(nil, viper.GetString("logLevel"), nil)
	log := logManager.Logger()

	address := viper.GetString("stream.address")
	if *addr != "" {
		address = *addr
	}
	id := uint32(viper.GetInt("stream.id"))
	if *streamID != 0 {
		id = uint32(*streamID)
	}
	rate := viper.GetInt("publish.rateHz")
	if *rateHz > 0 {
		rate = *rateHz
	}
	game := viper.GetString("publish.gameName")
	if *gameName != "" {
		game = *gameName
	}

	convention := sequence.ParseConvention(viper.GetString("stream.timestampConvention"))

	pub, err := publisher.New(publisher.Config{
		Address:    address,
		StreamID:   id,
		GameName:   game,
		Convention: convention,
		MaxRetries: viper.GetInt("publish.maxRetries"),
	}, log)
	if err != nil {
		log.Error("Failed to create publisher", "error", err)
		os.Exit(1)
	}
	defer pub.Close()

	log.Info("Publishing",
		"version", CurrentVersion,
		"address", address,
		"stream", id,
		"game", game,
		"rateHz", rate)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case sig := <-sigCh:
			log.Info("Stopping", "signal", sig.String())
			report(log, pub)
			return
		case <-deadline:
			report(log, pub)
			return
		case <-ticker.C:
			pub.Send(carAt(time.Since(start).Seconds()))
		}
	}
}

func report(log *slog.Logger, pub *publisher.Publisher) {
	stats := pub.Stats()
	log.Info("Final stats",
		"sent", stats.Sent,
		"dropped", stats.Dropped,
		"notConnected", stats.NotConnected)
}

// carAt returns the synthetic car state t seconds into the run: a
// figure-eight in the XZ plane, 80 m across, one loop every 30 s.
func carAt(t float64) telemetry.MotionObject {
	const radius = 40.0
	w := 2 * math.Pi / 30 * t

	x := radius * math.Sin(w)
	z := radius * math.Sin(2*w) / 2

	// Heading from the curve's derivative.
	dx := radius * math.Cos(w)
	dz := radius * math.Cos(2*w)
	norm := math.Hypot(dx, dz)
	if norm == 0 {
		norm = 1
	}

	speed := norm * 2 * math.Pi / 30 // m/s along the track
	wheelRPM := float32(speed / (2 * math.Pi * 0.33) * 60)

	obj := telemetry.MotionObject{
		Name:     "sim_car",
		Location: "figure_eight",
		Type:     "roadster",
		Position: telemetry.Vec3{X: float32(x), Y: 0, Z: float32(z)},
		Orientation: telemetry.Orientation{
			Forward: telemetry.Vec3{X: float32(dx / norm), Y: 0, Z: float32(dz / norm)},
			Up:      telemetry.Vec3{Y: 1},
		},
	}

	wheels := []struct {
		name string
		off  telemetry.Vec3
	}{
		{"wheel_fl", telemetry.Vec3{X: -0.8, Y: -0.3, Z: 1.2}},
		{"wheel_fr", telemetry.Vec3{X: 0.8, Y: -0.3, Z: 1.2}},
		{"wheel_rl", telemetry.Vec3{X: -0.8, Y: -0.3, Z: -1.2}},
		{"wheel_rr", telemetry.Vec3{X: 0.8, Y: -0.3, Z: -1.2}},
	}
	for _, w := range wheels {
		obj.DrivePoints = append(obj.DrivePoints, telemetry.DrivePoint{
			Name:      w.name,
			Type:      "wheel",
			COGOffset: w.off,
			RPM:       wheelRPM,
			Torque:    float32(120 + 40*math.Sin(t)),
		})
	}

	obj.FeedbackItems = []telemetry.FeedbackItem{
		{Name: "seat_rumble", Value: float32(0.2 + 0.1*math.Abs(math.Sin(3*t)))},
		{Name: "gear_whine", Value: float32(speed / 20)},
	}

	return obj
}
