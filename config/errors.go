// Package config provides error definitions for configuration management
package config

import "errors"

// Configuration validation errors
var (
	ErrInvalidAppName     = errors.New("invalid application name")
	ErrInvalidPipeName    = errors.New("invalid pipe name")
	ErrInvalidPipeDepth   = errors.New("invalid pipe depth")
	ErrInvalidMaxPipes    = errors.New("invalid max pipes")
	ErrInvalidTableFile   = errors.New("invalid table file")
	ErrInvalidDebounce    = errors.New("invalid table debounce")
	ErrInvalidEventLimits = errors.New("invalid event limits")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidLogFormat   = errors.New("invalid log format")
)

// Configuration loading errors
var (
	ErrConfigFileNotFound  = errors.New("configuration file not found")
	ErrConfigParseError    = errors.New("configuration parse error")
	ErrConfigValidateError = errors.New("configuration validation error")
	ErrEnvironmentVarError = errors.New("environment variable error")
	ErrUnsupportedFormat   = errors.New("unsupported configuration format")
)
