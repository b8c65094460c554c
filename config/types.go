// Package config provides configuration management for the rosapp host
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	return string(l)
}

// IsValid checks if the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelFatal:
		return true
	default:
		return false
	}
}

// Log formats
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Config represents the complete host configuration
type Config struct {
	// Application configuration
	App AppConfig `yaml:"app" json:"app"`

	// Table services configuration
	Table TableConfig `yaml:"table" json:"table"`

	// Software bus configuration
	Bus BusConfig `yaml:"bus" json:"bus"`

	// Event services configuration
	Events EventsConfig `yaml:"events" json:"events"`

	// Logging configuration
	Log LogConfig `yaml:"log" json:"log"`
}

// AppConfig contains component-level configuration
type AppConfig struct {
	// Application name registered with the executive
	Name string `yaml:"name" json:"name"`

	// Command pipe name
	PipeName string `yaml:"pipe_name" json:"pipe_name"`

	// Command pipe depth
	PipeDepth int `yaml:"pipe_depth" json:"pipe_depth"`

	// Log rosout records received on the bus
	RosoutDump bool `yaml:"rosout_dump" json:"rosout_dump"`
}

// TableConfig contains table loading configuration
type TableConfig struct {
	// Default table image loaded at startup
	File string `yaml:"file" json:"file"`

	// Reload the image when the file changes
	Watch bool `yaml:"watch" json:"watch"`

	// Quiet period before a changed file is reloaded
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
}

// UnmarshalJSON accepts debounce as a duration string ("500ms") or as an
// integer count of nanoseconds
func (c *TableConfig) UnmarshalJSON(data []byte) error {
	type plain TableConfig
	aux := struct {
		*plain
		Debounce json.RawMessage `json:"debounce"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Debounce) == 0 || string(aux.Debounce) == "null" {
		return nil
	}

	var text string
	if err := json.Unmarshal(aux.Debounce, &text); err == nil {
		d, err := time.ParseDuration(text)
		if err != nil {
			return fmt.Errorf("table debounce: %w", err)
		}
		c.Debounce = d
		return nil
	}
	var ns int64
	if err := json.Unmarshal(aux.Debounce, &ns); err != nil {
		return fmt.Errorf("table debounce: %w", err)
	}
	c.Debounce = time.Duration(ns)
	return nil
}

// BusConfig contains software bus limits
type BusConfig struct {
	MaxPipes     int `yaml:"max_pipes" json:"max_pipes"`
	MaxPipeDepth int `yaml:"max_pipe_depth" json:"max_pipe_depth"`
}

// EventsConfig contains event service limits
type EventsConfig struct {
	// Entries kept in the local event log
	LogCapacity int `yaml:"log_capacity" json:"log_capacity"`

	// Filters one application may register
	MaxFilters int `yaml:"max_filters" json:"max_filters"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	// Log level
	Level LogLevel `yaml:"level" json:"level"`

	// Log format (console, json)
	Format string `yaml:"format" json:"format"`

	// Output destination (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// Enable colored console output
	Color bool `yaml:"color" json:"color"`

	// Log rotation configuration, used for file output
	Rotation LogRotationConfig `yaml:"rotation" json:"rotation"`
}

// LogRotationConfig contains log rotation settings
type LogRotationConfig struct {
	// Enable log rotation
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Maximum file size in MB
	MaxSize int `yaml:"max_size" json:"max_size"`

	// Maximum number of old files to retain
	MaxBackups int `yaml:"max_backups" json:"max_backups"`

	// Maximum age in days
	MaxAge int `yaml:"max_age" json:"max_age"`

	// Compress old files
	Compress bool `yaml:"compress" json:"compress"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:      "ROS_APP",
			PipeName:  "ROS_APP_CMD_PIPE",
			PipeDepth: 32,
		},
		Table: TableConfig{
			File:     "/cf/ros_app_tbl.tbl",
			Debounce: 500 * time.Millisecond,
		},
		Bus: BusConfig{
			MaxPipes:     64,
			MaxPipeDepth: 256,
		},
		Events: EventsConfig{
			LogCapacity: 20,
			MaxFilters:  8,
		},
		Log: LogConfig{
			Level:  LogLevelInfo,
			Format: LogFormatConsole,
			Output: "stdout",
			Color:  true,
			Rotation: LogRotationConfig{
				Enabled:    false,
				MaxSize:    100,
				MaxBackups: 3,
				MaxAge:     7,
				Compress:   true,
			},
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate app config
	if c.App.Name == "" {
		return ErrInvalidAppName
	}
	if c.App.PipeName == "" {
		return ErrInvalidPipeName
	}

	// Validate bus config
	if c.Bus.MaxPipes <= 0 {
		return ErrInvalidMaxPipes
	}
	if c.Bus.MaxPipeDepth <= 0 || c.App.PipeDepth <= 0 || c.App.PipeDepth > c.Bus.MaxPipeDepth {
		return ErrInvalidPipeDepth
	}

	// Validate table config
	if c.Table.File == "" {
		return ErrInvalidTableFile
	}
	if c.Table.Debounce < 0 {
		return ErrInvalidDebounce
	}

	// Validate events config
	if c.Events.LogCapacity <= 0 || c.Events.MaxFilters <= 0 {
		return ErrInvalidEventLimits
	}

	// Validate log config
	if !c.Log.Level.IsValid() {
		return ErrInvalidLogLevel
	}
	if c.Log.Format != LogFormatConsole && c.Log.Format != LogFormatJSON {
		return ErrInvalidLogFormat
	}

	return nil
}

// IsFileOutput returns true if logs go to a file
func (c *LogConfig) IsFileOutput() bool {
	return c.Output != "" && c.Output != "stdout" && c.Output != "stderr"
}
