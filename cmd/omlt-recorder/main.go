// omlt-recorder subscribes to a motion telemetry stream and optionally
// records every accepted frame to a storage backend. It is the logger
// endpoint of the pipeline; motion platforms embed the subscriber
// package directly instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/openmotion/omlt/internal/config"
	"github.com/openmotion/omlt/internal/influx"
	"github.com/openmotion/omlt/internal/logging"
	"github.com/openmotion/omlt/internal/model"
	"github.com/openmotion/omlt/internal/monitor"
	intOtel "github.com/openmotion/omlt/internal/otel"
	"github.com/openmotion/omlt/internal/recorder"
	"github.com/openmotion/omlt/internal/storage"
	"github.com/openmotion/omlt/internal/subscriber"
	"github.com/openmotion/omlt/pkg/telemetry"
)

// CurrentVersion can be overridden at build time via ldflags.
var (
	CurrentVersion = "0.1.0"
	BuildDate      = "unknown"

	ProcessName = "omlt-recorder"
)

var (
	SlogManager  *logging.SlogManager
	Logger       *slog.Logger
	OTelProvider *intOtel.Provider

	SessionStartTime = time.Now()
)

func main() {
	configDir := flag.String("config", ".", "directory containing omlt.cfg.json")
	addr := flag.String("addr", "", "override stream address (host:port)")
	streamID := flag.Uint("stream", 0, "override stream id")
	record := flag.Bool("record", false, "record accepted frames to the configured storage backend")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s (built %s)\n", ProcessName, CurrentVersion, BuildDate)
		return
	}

	if err := config.Load(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logFile := setupLogging()
	if logFile != nil {
		defer logFile.Close()
	}

	streamCfg := config.GetStreamConfig()
	if *addr != "" {
		streamCfg.Address = *addr
	}
	if *streamID != 0 {
		streamCfg.ID = uint32(*streamID)
	}

	if err := run(streamCfg, *record); err != nil {
		Logger.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

// setupLogging opens the session log file and wires slog, OTel and
// Graylog together. Returns the log file for the caller to close.
func setupLogging() *os.File {
	SlogManager = logging.NewSlogManager()

	logsDir := viper.GetString("logsDir")
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		os.Mkdir(logsDir, 0755)
	}

	logFilePath := logging.LogFilePath(logsDir, ProcessName, SessionStartTime)
	logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", logFilePath, err)
		logFile = nil
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		batchTimeout, err := time.ParseDuration(otelCfg.BatchTimeout)
		if err != nil {
			batchTimeout = 5 * time.Second
		}
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: batchTimeout,
			LogWriter:    logFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize OTel provider: %v\n", err)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}

	if viper.GetBool("graylog.enabled") {
		gelfWriter, err := logging.OpenGraylog(viper.GetString("graylog.address"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "graylog unavailable: %v\n", err)
			SlogManager.Setup(logFile, viper.GetString("logLevel"), otelLogProvider)
		} else {
			SlogManager.Setup(logFile, viper.GetString("logLevel"), otelLogProvider, gelfWriter)
		}
	} else {
		SlogManager.Setup(logFile, viper.GetString("logLevel"), otelLogProvider)
	}

	Logger = SlogManager.Logger()
	if logFile != nil {
		Logger.Info("Logging to file", "path", logFilePath)
	}
	return logFile
}

func run(streamCfg config.StreamConfig, record bool) error {
	sessionID := uuid.NewString()

	// Session context rides along on every record.
	Logger = slog.New(logging.NewContextHandler(Logger.Handler(), func() []slog.Attr {
		return []slog.Attr{
			slog.String("session", sessionID),
			slog.Duration("uptime", time.Since(SessionStartTime).Round(time.Second)),
		}
	}))

	Logger.Info("Starting up...",
		"version", CurrentVersion,
		"address", streamCfg.Address,
		"stream", streamCfg.ID,
		"record", record)

	idleSleep := time.Millisecond
	sub, err := subscriber.New(subscriber.Config{
		Address:      streamCfg.Address,
		StreamID:     streamCfg.ID,
		MaxFragments: streamCfg.MaxFragments,
		IdleSleep:    idleSleep,
		BufferSize:   streamCfg.BufferSize,
	}, Logger)
	if err != nil {
		return fmt.Errorf("failed to create subscriber: %w", err)
	}

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	var recService *recorder.Service
	var perfSink monitor.PerformanceSink
	if record {
		storageCfg := config.GetStorageConfig()
		backend, err := storage.NewBackend(storageCfg, zlog)
		if err != nil {
			return fmt.Errorf("failed to create storage backend: %w", err)
		}
		if err := backend.Init(); err != nil {
			return fmt.Errorf("failed to initialize storage backend: %w", err)
		}
		defer backend.Close()

		if sink, ok := backend.(monitor.PerformanceSink); ok {
			perfSink = sink
		}

		flushInterval := viper.GetDuration("recorder.flushInterval")
		recService = recorder.NewService(recorder.Config{FlushInterval: flushInterval}, backend, Logger)

		// Frames carry their own game name; the session row only pins
		// the stream identity.
		session := &model.Session{
			SessionID:  sessionID,
			StreamID:   streamCfg.ID,
			Address:    streamCfg.Address,
			Convention: streamCfg.TimestampConvention,
			StartedAt:  SessionStartTime,
		}
		if err := recService.Start(session); err != nil {
			return fmt.Errorf("failed to start recorder: %w", err)
		}
	}

	summaryEvery := uint64(viper.GetInt("recorder.summaryEvery"))
	handler := summarizeFrames(Logger, summaryEvery, func(f telemetry.Frame) {
		if recService != nil {
			recService.Handle(f)
		}
	})
	if err := sub.Start(handler); err != nil {
		return fmt.Errorf("failed to start subscriber: %w", err)
	}
	Logger.Info("Subscribed", "boundAddr", sub.BoundAddr())

	var influxMgr *influx.Manager
	if viper.GetBool("influx.enabled") {
		backupPath := logging.LogFilePath(viper.GetString("logsDir"), ProcessName+".influx_backup", SessionStartTime) + ".gz"
		influxMgr = influx.NewManager(zlog, backupPath)
		if err := influxMgr.Connect(); err != nil {
			Logger.Warn("InfluxDB unavailable", "error", err)
			influxMgr = nil
		} else {
			defer influxMgr.Close()
		}
	}

	monitorService := monitor.NewService(monitor.Dependencies{
		LogManager: SlogManager,
		Subscriber: sub,
		Recorder:   recService,
		Influx:     influxMgr,
		Sink:       perfSink,
		SessionID:  sessionID,
		StreamID:   streamCfg.ID,
	}, viper.GetDuration("monitor.interval"))
	monitorService.Start()

	// Block until interrupted
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	Logger.Info("Shutting down", "signal", sig.String())

	monitorService.Stop()
	sub.Stop()

	if recService != nil {
		if err := recService.Stop(); err != nil {
			Logger.Error("Failed to finalize recording", "error", err)
		}
	}

	stats := sub.Stats()
	Logger.Info("Final stats",
		"accepted", stats.Accepted,
		"stale", stats.Stale,
		"decodeFailures", stats.DecodeFailures,
		"bufferDropped", stats.BufferDropped)

	if OTelProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := OTelProvider.Shutdown(ctx); err != nil {
			Logger.Error("OTel shutdown failed", "error", err)
		}
	}

	return nil
}

// summarizeFrames wraps a frame handler with a sampled console summary:
// the first accepted frame and every nth after it get an info line, so
// the console shows the stream is alive without a line per frame.
func summarizeFrames(log *slog.Logger, every uint64, next func(telemetry.Frame)) func(telemetry.Frame) {
	if every == 0 {
		every = 1
	}
	var count atomic.Uint64
	return func(f telemetry.Frame) {
		if n := count.Add(1); (n-1)%every == 0 {
			log.Info("Frame",
				"seq", f.Sequence,
				"timestamp", f.SessionTimestamp,
				"game", f.GameName,
				"object", f.Object.Name,
				"x", f.Object.Position.X,
				"y", f.Object.Position.Y,
				"z", f.Object.Position.Z)
		}
		next(f)
	}
}
