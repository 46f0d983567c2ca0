package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/upsidedownlabs/npglink/internal/telemetry"
	"github.com/upsidedownlabs/npglink/internal/units"
)

// DefaultConfigPath is the path to the canonical recorder defaults file.
// This is the single source of truth for all default recorder values.
const DefaultConfigPath = "config/recorder.defaults.json"

// RecorderConfig represents the root configuration for a recording run.
// The schema matches the /api/config endpoint so the same JSON can be
// used for both startup configuration and runtime inspection.
type RecorderConfig struct {
	// Device params
	DeviceNamePrefix *string `json:"device_name_prefix,omitempty"`
	SerialPort       *string `json:"serial_port,omitempty"`
	BaudRate         *int    `json:"baud_rate,omitempty"`

	// Stream params
	SampleRateHz      *float64 `json:"sample_rate_hz,omitempty"`
	BatchSize         *int     `json:"batch_size,omitempty"`
	StreamingDuration *string  `json:"streaming_duration,omitempty"` // duration string like "10m"

	// Output params
	OutFile         *string `json:"out_file,omitempty"`
	DatabasePath    *string `json:"database_path,omitempty"`
	SummaryTimezone *string `json:"summary_timezone,omitempty"`

	// Server params
	ListenAddr  *string `json:"listen_addr,omitempty"`
	UDPListen   *string `json:"udp_listen,omitempty"`
	LogInterval *string `json:"log_interval,omitempty"` // duration string like "10s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyRecorderConfig returns a RecorderConfig with all fields set to nil.
// Use LoadRecorderConfig to load actual values from the defaults file.
func EmptyRecorderConfig() *RecorderConfig {
	return &RecorderConfig{}
}

// LoadRecorderConfig loads a RecorderConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadRecorderConfig(path string) (*RecorderConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Config files larger than 1MB are rejected.
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyRecorderConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical recorder defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *RecorderConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadRecorderConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *RecorderConfig) Validate() error {
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}

	if c.SampleRateHz != nil && *c.SampleRateHz <= 0 {
		return fmt.Errorf("sample_rate_hz must be positive, got %f", *c.SampleRateHz)
	}

	if c.BatchSize != nil && *c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", *c.BatchSize)
	}

	// Validate StreamingDuration can be parsed if set
	if c.StreamingDuration != nil && *c.StreamingDuration != "" {
		if _, err := time.ParseDuration(*c.StreamingDuration); err != nil {
			return fmt.Errorf("invalid streaming_duration '%s': %w", *c.StreamingDuration, err)
		}
	}

	// Validate LogInterval can be parsed if set
	if c.LogInterval != nil && *c.LogInterval != "" {
		if _, err := time.ParseDuration(*c.LogInterval); err != nil {
			return fmt.Errorf("invalid log_interval '%s': %w", *c.LogInterval, err)
		}
	}

	if c.SummaryTimezone != nil && *c.SummaryTimezone != "" {
		if !units.IsTimezoneValid(*c.SummaryTimezone) {
			return fmt.Errorf("invalid summary_timezone %q", *c.SummaryTimezone)
		}
	}

	return nil
}

// GetDeviceNamePrefix returns the device_name_prefix value or the default.
func (c *RecorderConfig) GetDeviceNamePrefix() string {
	if c.DeviceNamePrefix == nil {
		return "NPG" // default
	}
	return *c.DeviceNamePrefix
}

// GetSerialPort returns the serial_port value or the default.
// An empty string means the first matching port is used.
func (c *RecorderConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return ""
	}
	return *c.SerialPort
}

// GetBaudRate returns the baud_rate value or the default.
func (c *RecorderConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return 230400 // default
	}
	return *c.BaudRate
}

// GetSampleRateHz returns the sample_rate_hz value or the default.
func (c *RecorderConfig) GetSampleRateHz() float64 {
	if c.SampleRateHz == nil {
		return telemetry.DefaultSampleRate
	}
	return *c.SampleRateHz
}

// GetBatchSize returns the batch_size value or the default.
func (c *RecorderConfig) GetBatchSize() int {
	if c.BatchSize == nil {
		return telemetry.DefaultBatchSize
	}
	return *c.BatchSize
}

// GetStreamingDuration parses and returns the StreamingDuration as a time.Duration.
// Zero means no duration limit.
func (c *RecorderConfig) GetStreamingDuration() time.Duration {
	if c.StreamingDuration == nil || *c.StreamingDuration == "" {
		return 10 * time.Minute // default
	}
	d, err := time.ParseDuration(*c.StreamingDuration)
	if err != nil {
		return 10 * time.Minute // default on parse error
	}
	return d
}

// GetOutFile returns the out_file value or the default.
func (c *RecorderConfig) GetOutFile() string {
	if c.OutFile == nil {
		return "npg-session.csv" // default
	}
	return *c.OutFile
}

// GetDatabasePath returns the database_path value or the default.
// An empty string disables database recording.
func (c *RecorderConfig) GetDatabasePath() string {
	if c.DatabasePath == nil {
		return "" // default: database recording disabled
	}
	return *c.DatabasePath
}

// GetSummaryTimezone returns the summary_timezone value or the default.
func (c *RecorderConfig) GetSummaryTimezone() string {
	if c.SummaryTimezone == nil || *c.SummaryTimezone == "" {
		return units.DefaultTimezone
	}
	return *c.SummaryTimezone
}

// GetListenAddr returns the listen_addr value or the default.
func (c *RecorderConfig) GetListenAddr() string {
	if c.ListenAddr == nil {
		return ":8080" // default
	}
	return *c.ListenAddr
}

// GetUDPListen returns the udp_listen value or the default.
// An empty string disables the UDP gateway.
func (c *RecorderConfig) GetUDPListen() string {
	if c.UDPListen == nil {
		return "" // default: UDP gateway disabled
	}
	return *c.UDPListen
}

// GetLogInterval parses and returns the LogInterval as a time.Duration.
func (c *RecorderConfig) GetLogInterval() time.Duration {
	if c.LogInterval == nil || *c.LogInterval == "" {
		return 10 * time.Second // default
	}
	d, err := time.ParseDuration(*c.LogInterval)
	if err != nil {
		return 10 * time.Second // default on parse error
	}
	return d
}
