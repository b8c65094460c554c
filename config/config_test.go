package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

// TestDefaultConfig tests the built-in defaults
func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("Default config validation failed: %v", err)
	}
	if config.App.PipeName != "ROS_APP_CMD_PIPE" {
		t.Errorf("Expected pipe name 'ROS_APP_CMD_PIPE', got '%s'", config.App.PipeName)
	}
	if config.App.PipeDepth != 32 {
		t.Errorf("Expected pipe depth 32, got %d", config.App.PipeDepth)
	}
	if config.Table.File != "/cf/ros_app_tbl.tbl" {
		t.Errorf("Expected table file '/cf/ros_app_tbl.tbl', got '%s'", config.Table.File)
	}
	if config.Log.IsFileOutput() {
		t.Error("Expected stdout log output by default")
	}
}

// TestConfigValidation tests configuration validation
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"valid config", func(c *Config) {}, nil},
		{"invalid app name", func(c *Config) { c.App.Name = "" }, ErrInvalidAppName},
		{"invalid pipe name", func(c *Config) { c.App.PipeName = "" }, ErrInvalidPipeName},
		{"zero pipe depth", func(c *Config) { c.App.PipeDepth = 0 }, ErrInvalidPipeDepth},
		{"pipe deeper than bus allows", func(c *Config) { c.App.PipeDepth = 512 }, ErrInvalidPipeDepth},
		{"zero max pipes", func(c *Config) { c.Bus.MaxPipes = 0 }, ErrInvalidMaxPipes},
		{"empty table file", func(c *Config) { c.Table.File = "" }, ErrInvalidTableFile},
		{"negative debounce", func(c *Config) { c.Table.Debounce = -time.Second }, ErrInvalidDebounce},
		{"zero event log", func(c *Config) { c.Events.LogCapacity = 0 }, ErrInvalidEventLimits},
		{"invalid log level", func(c *Config) { c.Log.Level = "loud" }, ErrInvalidLogLevel},
		{"invalid log format", func(c *Config) { c.Log.Format = "text" }, ErrInvalidLogFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)

			err := config.Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

// TestLoadFromFile tests loading YAML and JSON files over the defaults
func TestLoadFromFile(t *testing.T) {
	tempDir := t.TempDir()

	yamlFile := filepath.Join(tempDir, "rosapp.yaml")
	yamlContent := `
app:
  pipe_depth: 16
  rosout_dump: true
table:
  file: /tmp/ros_app_tbl.yaml
  watch: true
  debounce: 250ms
log:
  level: debug
  format: json
`
	if err := os.WriteFile(yamlFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	loader := NewLoader().SetEnvLookup(envMap(nil))
	config, err := loader.Load(yamlFile)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.App.PipeDepth != 16 || !config.App.RosoutDump {
		t.Errorf("Unexpected app config: %+v", config.App)
	}
	if config.App.Name != "ROS_APP" {
		t.Errorf("Expected default app name to survive, got '%s'", config.App.Name)
	}
	if !config.Table.Watch || config.Table.Debounce != 250*time.Millisecond {
		t.Errorf("Unexpected table config: %+v", config.Table)
	}
	if config.Log.Level != LogLevelDebug || config.Log.Format != LogFormatJSON {
		t.Errorf("Unexpected log config: %+v", config.Log)
	}
	if config.Bus.MaxPipeDepth != 256 {
		t.Errorf("Expected default bus depth 256, got %d", config.Bus.MaxPipeDepth)
	}

	jsonFile := filepath.Join(tempDir, "rosapp.json")
	if err := os.WriteFile(jsonFile, []byte(`{"app": {"name": "ROS_APP_2"}}`), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}
	config, err = loader.Load(jsonFile)
	if err != nil {
		t.Fatalf("Failed to load JSON config: %v", err)
	}
	if config.App.Name != "ROS_APP_2" || config.App.PipeDepth != 32 {
		t.Errorf("Unexpected app config: %+v", config.App)
	}
}

// TestLoadErrors tests the loader's failure paths
func TestLoadJSONDebounce(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    time.Duration
	}{
		{"duration string", `{"table": {"watch": true, "debounce": "750ms"}}`, 750 * time.Millisecond},
		{"nanoseconds", `{"table": {"debounce": 2000000000}}`, 2 * time.Second},
		{"absent", `{"table": {"file": "tbl.json"}}`, 500 * time.Millisecond},
	}

	loader := NewLoader().SetEnvLookup(envMap(nil))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := loader.LoadFromReader(strings.NewReader(tt.content), FormatJSON)
			if err != nil {
				t.Fatalf("Failed to load config: %v", err)
			}
			if config.Table.Debounce != tt.want {
				t.Errorf("Expected debounce %v, got %v", tt.want, config.Table.Debounce)
			}
		})
	}

	if _, err := loader.LoadFromReader(strings.NewReader(`{"table": {"debounce": "soon"}}`), FormatJSON); !errors.Is(err, ErrConfigParseError) {
		t.Errorf("Expected ErrConfigParseError, got %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	tempDir := t.TempDir()
	loader := NewLoader().SetEnvLookup(envMap(nil))

	if _, err := loader.Load(filepath.Join(tempDir, "rosapp.ini")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}

	broken := filepath.Join(tempDir, "broken.yaml")
	os.WriteFile(broken, []byte("app: [unterminated"), 0644)
	if _, err := loader.Load(broken); !errors.Is(err, ErrConfigParseError) {
		t.Errorf("Expected ErrConfigParseError, got %v", err)
	}

	invalid := filepath.Join(tempDir, "invalid.yaml")
	os.WriteFile(invalid, []byte("app:\n  pipe_depth: 0\n"), 0644)
	if _, err := loader.Load(invalid); !errors.Is(err, ErrInvalidPipeDepth) || !errors.Is(err, ErrConfigValidateError) {
		t.Errorf("Expected ErrInvalidPipeDepth, got %v", err)
	}
}

// TestAutoDiscovery tests searching the configured paths
func TestAutoDiscovery(t *testing.T) {
	tempDir := t.TempDir()
	loader := NewLoader().SetSearchPaths([]string{tempDir}).SetEnvLookup(envMap(nil))

	config, err := loader.Load("")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}
	if config.App.PipeDepth != 32 {
		t.Errorf("Expected defaults without a file, got depth %d", config.App.PipeDepth)
	}

	os.WriteFile(filepath.Join(tempDir, "config.yml"), []byte("app:\n  pipe_depth: 8\n"), 0644)
	config, err = loader.Load("")
	if err != nil {
		t.Fatalf("Failed to load discovered config: %v", err)
	}
	if config.App.PipeDepth != 8 {
		t.Errorf("Expected discovered depth 8, got %d", config.App.PipeDepth)
	}
}

// TestEnvironmentOverrides tests ROSAPP_* overrides
func TestEnvironmentOverrides(t *testing.T) {
	loader := NewLoader().SetSearchPaths(nil).SetEnvLookup(envMap(map[string]string{
		"ROSAPP_PIPE_DEPTH":     "4",
		"ROSAPP_ROSOUT_DUMP":    "true",
		"ROSAPP_TABLE_FILE":     "/tmp/tbl.json",
		"ROSAPP_TABLE_WATCH":    "1",
		"ROSAPP_TABLE_DEBOUNCE": "2s",
		"ROSAPP_LOG_LEVEL":      "WARN",
		"ROSAPP_LOG_FORMAT":     "json",
		"ROSAPP_LOG_OUTPUT":     "/var/log/rosapp.log",
		"ROSAPP_LOG_NOCOLOR":    "true",
	}))

	config, err := loader.Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.App.PipeDepth != 4 || !config.App.RosoutDump {
		t.Errorf("Unexpected app config: %+v", config.App)
	}
	if config.Table.File != "/tmp/tbl.json" || !config.Table.Watch || config.Table.Debounce != 2*time.Second {
		t.Errorf("Unexpected table config: %+v", config.Table)
	}
	if config.Log.Level != LogLevelWarn || config.Log.Format != LogFormatJSON || config.Log.Color {
		t.Errorf("Unexpected log config: %+v", config.Log)
	}
	if !config.Log.IsFileOutput() {
		t.Error("Expected file log output")
	}

	bad := NewLoader().SetSearchPaths(nil).SetEnvLookup(envMap(map[string]string{
		"ROSAPP_PIPE_DEPTH": "deep",
	}))
	if _, err := bad.Load(""); err == nil || !strings.Contains(err.Error(), "ROSAPP_PIPE_DEPTH") {
		t.Errorf("Expected pipe depth parse error, got %v", err)
	}
	if _, err := bad.Load(""); !errors.Is(err, ErrEnvironmentVarError) {
		t.Errorf("Expected ErrEnvironmentVarError, got %v", err)
	}
}

// TestLoadFromReader tests parsing configuration from a stream
func TestLoadFromReader(t *testing.T) {
	loader := NewLoader().SetEnvLookup(envMap(nil))

	config, err := loader.LoadFromReader(strings.NewReader(`{"bus": {"max_pipes": 2}}`), FormatJSON)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if config.Bus.MaxPipes != 2 {
		t.Errorf("Expected max pipes 2, got %d", config.Bus.MaxPipes)
	}

	if _, err := loader.LoadFromReader(strings.NewReader("x"), ConfigFormat("ini")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}
