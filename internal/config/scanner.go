// Package config loads scanner tuning parameters from JSON. Fields omitted
// from the file keep their defaults, so partial configs are safe. Core logic
// never reads files itself: it receives plain values from here.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the canonical defaults file shipped with the scanner.
const DefaultConfigPath = "config/scanner.defaults.json"

// ScannerConfig is the root configuration for the haptic scanner. All fields
// are optional; the Get* accessors supply defaults for unset fields.
type ScannerConfig struct {
	// Serial link params
	SerialPort       *string `json:"serial_port,omitempty"`
	BaudRate         *int    `json:"baud_rate,omitempty"`
	SendInterval     *string `json:"send_interval,omitempty"`     // duration string like "10ms"
	HandshakeTimeout *string `json:"handshake_timeout,omitempty"` // duration string like "3s"

	// Segmentation params
	ClusterCount *int  `json:"cluster_count,omitempty"`
	WorkingSize  *int  `json:"working_size,omitempty"`
	KMeansRounds *int  `json:"kmeans_rounds,omitempty"`
	DensityBands []int `json:"density_bands,omitempty"`

	// Control loop params
	TargetFPS      *int    `json:"target_fps,omitempty"`
	HapticMode     *string `json:"haptic_mode,omitempty"`
	EdgeThreshold  *int    `json:"edge_threshold,omitempty"`
	TumorThreshold *int    `json:"tumor_threshold,omitempty"`

	// Telemetry params
	TelemetryDB *string `json:"telemetry_db,omitempty"`
}

// EmptyScannerConfig returns a ScannerConfig with every field unset.
func EmptyScannerConfig() *ScannerConfig {
	return &ScannerConfig{}
}

// LoadScannerConfig loads a ScannerConfig from a JSON file. The path must
// carry a .json extension and stay under the size cap.
func LoadScannerConfig(path string) (*ScannerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyScannerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *ScannerConfig) Validate() error {
	if c.ClusterCount != nil && *c.ClusterCount < 2 {
		return fmt.Errorf("cluster_count must be at least 2, got %d", *c.ClusterCount)
	}
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}
	if c.TargetFPS != nil && *c.TargetFPS <= 0 {
		return fmt.Errorf("target_fps must be positive, got %d", *c.TargetFPS)
	}
	if c.WorkingSize != nil && *c.WorkingSize <= 0 {
		return fmt.Errorf("working_size must be positive, got %d", *c.WorkingSize)
	}
	if c.SendInterval != nil && *c.SendInterval != "" {
		if _, err := time.ParseDuration(*c.SendInterval); err != nil {
			return fmt.Errorf("invalid send_interval '%s': %w", *c.SendInterval, err)
		}
	}
	if c.HandshakeTimeout != nil && *c.HandshakeTimeout != "" {
		if _, err := time.ParseDuration(*c.HandshakeTimeout); err != nil {
			return fmt.Errorf("invalid handshake_timeout '%s': %w", *c.HandshakeTimeout, err)
		}
	}
	for _, band := range c.DensityBands {
		if band < 0 || band > 255 {
			return fmt.Errorf("density_bands values must be 0-255, got %d", band)
		}
	}
	if len(c.DensityBands) > 0 && c.ClusterCount != nil && len(c.DensityBands) != *c.ClusterCount {
		return fmt.Errorf("density_bands has %d entries for cluster_count %d", len(c.DensityBands), *c.ClusterCount)
	}
	return nil
}

// GetSerialPort returns the serial endpoint or the default.
func (c *ScannerConfig) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return "/dev/ttyACM0"
	}
	return *c.SerialPort
}

// GetBaudRate returns the baud rate or the default.
func (c *ScannerConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return 115200
	}
	return *c.BaudRate
}

// GetSendInterval parses and returns the density frame rate-limit interval.
func (c *ScannerConfig) GetSendInterval() time.Duration {
	if c.SendInterval == nil || *c.SendInterval == "" {
		return 10 * time.Millisecond // 100 Hz ceiling
	}
	d, err := time.ParseDuration(*c.SendInterval)
	if err != nil {
		return 10 * time.Millisecond
	}
	return d
}

// GetHandshakeTimeout parses and returns the ready-token wait window.
func (c *ScannerConfig) GetHandshakeTimeout() time.Duration {
	if c.HandshakeTimeout == nil || *c.HandshakeTimeout == "" {
		return 3 * time.Second
	}
	d, err := time.ParseDuration(*c.HandshakeTimeout)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

// GetClusterCount returns the cluster count or the default.
func (c *ScannerConfig) GetClusterCount() int {
	if c.ClusterCount == nil {
		return 3
	}
	return *c.ClusterCount
}

// GetWorkingSize returns the fit working resolution or the default.
func (c *ScannerConfig) GetWorkingSize() int {
	if c.WorkingSize == nil {
		return 400
	}
	return *c.WorkingSize
}

// GetKMeansRounds returns the refinement round count or the default.
func (c *ScannerConfig) GetKMeansRounds() int {
	if c.KMeansRounds == nil {
		return 10
	}
	return *c.KMeansRounds
}

// GetDensityBands returns the density table or nil when unset (the
// segmentation default table applies).
func (c *ScannerConfig) GetDensityBands() []uint8 {
	if len(c.DensityBands) == 0 {
		return nil
	}
	bands := make([]uint8, len(c.DensityBands))
	for i, v := range c.DensityBands {
		bands[i] = uint8(v)
	}
	return bands
}

// GetTargetFPS returns the control loop tick rate or the default.
func (c *ScannerConfig) GetTargetFPS() int {
	if c.TargetFPS == nil {
		return 60
	}
	return *c.TargetFPS
}

// GetHapticMode returns the startup haptic mode or the default.
func (c *ScannerConfig) GetHapticMode() string {
	if c.HapticMode == nil || *c.HapticMode == "" {
		return "TEXTURE"
	}
	return *c.HapticMode
}

// GetEdgeThreshold returns the edge gradient threshold or the default.
func (c *ScannerConfig) GetEdgeThreshold() int {
	if c.EdgeThreshold == nil {
		return 50
	}
	return *c.EdgeThreshold
}

// GetTumorThreshold returns the tumor density threshold or the default.
func (c *ScannerConfig) GetTumorThreshold() int {
	if c.TumorThreshold == nil {
		return 200
	}
	return *c.TumorThreshold
}

// GetTelemetryDB returns the telemetry database path, or empty when telemetry
// is disabled.
func (c *ScannerConfig) GetTelemetryDB() string {
	if c.TelemetryDB == nil {
		return ""
	}
	return *c.TelemetryDB
}
