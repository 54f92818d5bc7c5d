// Package config loads recorder settings from a JSON file via viper and
// exposes typed accessors for the subsystems that need structured config.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// StreamConfig holds the transport bootstrap for a telemetry stream.
type StreamConfig struct {
	Address             string `json:"address" mapstructure:"address"`
	ID                  uint32 `json:"id" mapstructure:"id"`
	TimestampConvention string `json:"timestampConvention" mapstructure:"timestampConvention"`
	MaxFragments        int    `json:"maxFragments" mapstructure:"maxFragments"`
	BufferSize          int    `json:"bufferSize" mapstructure:"bufferSize"`
}

// MemoryConfig holds in-memory/JSON storage backend settings.
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// GormConfig holds relational storage backend settings.
type GormConfig struct {
	LocalDBPath string `json:"localDbPath" mapstructure:"localDbPath"`
}

// StorageConfig selects and configures the recording backend.
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`
	Gorm   GormConfig   `json:"gorm" mapstructure:"gorm"`
}

// OTelConfig holds OpenTelemetry export settings.
type OTelConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName  string `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout string `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool   `json:"insecure" mapstructure:"insecure"`
	Stdout       bool   `json:"stdout" mapstructure:"stdout"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./omltlogs")

	viper.SetDefault("stream.address", "127.0.0.1:40123")
	viper.SetDefault("stream.id", 1001)
	viper.SetDefault("stream.timestampConvention", "session-seconds")
	viper.SetDefault("stream.maxFragments", 64)
	viper.SetDefault("stream.bufferSize", 0)

	viper.SetDefault("publish.rateHz", 60)
	viper.SetDefault("publish.maxRetries", 3)
	viper.SetDefault("publish.gameName", "omlt-sim")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "omlt")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "omlt-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("monitor.interval", "10s")

	viper.SetDefault("recorder.flushInterval", "1s")
	viper.SetDefault("recorder.summaryEvery", 60)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.gorm.localDbPath", "./omlt.db")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "omlt-recorder")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
	viper.SetDefault("otel.stdout", false)

	viper.SetConfigName("omlt.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetStreamConfig returns the transport stream settings.
func GetStreamConfig() StreamConfig {
	var cfg StreamConfig
	_ = viper.UnmarshalKey("stream", &cfg)
	return cfg
}

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	var cfg StorageConfig
	_ = viper.UnmarshalKey("storage", &cfg)
	return cfg
}

// GetOTelConfig returns the OpenTelemetry export settings.
func GetOTelConfig() OTelConfig {
	var cfg OTelConfig
	_ = viper.UnmarshalKey("otel", &cfg)
	return cfg
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}
