// Package config provides configuration loading and parsing functionality
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFormat represents the configuration file format
type ConfigFormat string

const (
	FormatYAML ConfigFormat = "yaml"
	FormatJSON ConfigFormat = "json"
)

// FormatFromPath determines the configuration format from a file extension
func FormatFromPath(filename string) (ConfigFormat, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// Loader handles configuration loading from files and the environment
type Loader struct {
	// Configuration search paths
	searchPaths []string

	// Environment variable prefix
	envPrefix string

	// Environment lookup, os.LookupEnv unless replaced
	lookupEnv func(string) (string, bool)

	// Default configuration
	defaultConfig *Config
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		searchPaths: []string{
			".",
			"./config",
			"/etc/rosapp",
		},
		envPrefix:     "ROSAPP",
		lookupEnv:     os.LookupEnv,
		defaultConfig: DefaultConfig(),
	}
}

// SetSearchPaths sets the configuration file search paths
func (l *Loader) SetSearchPaths(paths []string) *Loader {
	l.searchPaths = paths
	return l
}

// SetEnvPrefix sets the environment variable prefix
func (l *Loader) SetEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// SetEnvLookup replaces the environment lookup
func (l *Loader) SetEnvLookup(lookup func(string) (string, bool)) *Loader {
	l.lookupEnv = lookup
	return l
}

// SetDefaultConfig sets the default configuration
func (l *Loader) SetDefaultConfig(config *Config) *Loader {
	l.defaultConfig = config
	return l
}

// Load loads configuration from the specified file; an empty name
// searches the search paths and falls back to defaults.
func (l *Loader) Load(filename string) (*Config, error) {
	if filename == "" {
		found, err := l.findConfigFile()
		if err != nil && !errors.Is(err, ErrConfigFileNotFound) {
			return nil, err
		}
		filename = found
	}

	config := l.defaults()
	if filename != "" {
		format, err := FormatFromPath(filename)
		if err != nil {
			return nil, err
		}

		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
		}

		if err := l.parseConfig(data, format, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
		}
	}

	return l.finish(config)
}

// LoadFromReader loads configuration from an io.Reader
func (l *Loader) LoadFromReader(reader io.Reader, format ConfigFormat) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration data: %w", err)
	}

	config := l.defaults()
	if err := l.parseConfig(data, format, config); err != nil {
		return nil, err
	}
	return l.finish(config)
}

// finish applies environment overrides and validates
func (l *Loader) finish(config *Config) (*Config, error) {
	if err := l.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigValidateError, err)
	}
	return config, nil
}

// defaults returns a copy of the default configuration
func (l *Loader) defaults() *Config {
	base := l.defaultConfig
	if base == nil {
		base = DefaultConfig()
	}
	config := *base
	return &config
}

// findConfigFile searches for configuration files in search paths
func (l *Loader) findConfigFile() (string, error) {
	filenames := []string{
		"rosapp.yaml", "rosapp.yml",
		"config.yaml", "config.yml",
		"rosapp.json", "config.json",
	}

	for _, searchPath := range l.searchPaths {
		for _, filename := range filenames {
			fullPath := filepath.Join(searchPath, filename)
			if _, err := os.Stat(fullPath); err == nil {
				return fullPath, nil
			}
		}
	}

	return "", ErrConfigFileNotFound
}

// parseConfig decodes configuration data over the values already in config
func (l *Loader) parseConfig(data []byte, format ConfigFormat, config *Config) error {
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("%w: %w", ErrConfigParseError, err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("%w: %w", ErrConfigParseError, err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return nil
}

// loadFromEnv loads configuration overrides from environment variables
func (l *Loader) loadFromEnv(config *Config) error {
	env := func(key string) (string, bool) {
		val, ok := l.lookupEnv(l.envPrefix + "_" + key)
		return strings.TrimSpace(val), ok && strings.TrimSpace(val) != ""
	}

	// App configuration
	if val, ok := env("APP_NAME"); ok {
		config.App.Name = val
	}
	if val, ok := env("PIPE_DEPTH"); ok {
		depth, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%w: %s_PIPE_DEPTH=%q", ErrEnvironmentVarError, l.envPrefix, val)
		}
		config.App.PipeDepth = depth
	}
	if val, ok := env("ROSOUT_DUMP"); ok {
		dump, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("%w: %s_ROSOUT_DUMP=%q", ErrEnvironmentVarError, l.envPrefix, val)
		}
		config.App.RosoutDump = dump
	}

	// Table configuration
	if val, ok := env("TABLE_FILE"); ok {
		config.Table.File = val
	}
	if val, ok := env("TABLE_WATCH"); ok {
		watch, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("%w: %s_TABLE_WATCH=%q", ErrEnvironmentVarError, l.envPrefix, val)
		}
		config.Table.Watch = watch
	}
	if val, ok := env("TABLE_DEBOUNCE"); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%w: %s_TABLE_DEBOUNCE=%q", ErrEnvironmentVarError, l.envPrefix, val)
		}
		config.Table.Debounce = d
	}

	// Log configuration
	if val, ok := env("LOG_LEVEL"); ok {
		config.Log.Level = LogLevel(strings.ToLower(val))
	}
	if val, ok := env("LOG_FORMAT"); ok {
		config.Log.Format = strings.ToLower(val)
	}
	if val, ok := env("LOG_OUTPUT"); ok {
		config.Log.Output = val
	}
	if val, ok := env("LOG_NOCOLOR"); ok {
		noColor, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("%w: %s_LOG_NOCOLOR=%q", ErrEnvironmentVarError, l.envPrefix, val)
		}
		config.Log.Color = !noColor
	}

	return nil
}
