// Package config loads the robot and mapping configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/rangemap/internal/robotapi"
	"gopkg.in/yaml.v3"
)

// Defaults applied by the Get* accessors.
const (
	DefaultGridWidth     = 20
	DefaultGridHeight    = 20
	DefaultOriginX       = 10
	DefaultOriginY       = 10
	DefaultLidarSamples  = 360
	DefaultSafeDistance  = 0.5
	DefaultScanInterval  = time.Second
	DefaultSnapshotEvery = 10
	DefaultSerialPort    = "/dev/ttyUSB0"
	DefaultDBPath        = "rangemap.db"
	DefaultListen        = ":8080"
	DefaultMapOutput     = "map.txt"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// RobotConfig is the root configuration. Every field is optional; unset
// fields fall back to the defaults above, so partial configs are safe.
type RobotConfig struct {
	GridWidth  *int `json:"grid_width,omitempty" yaml:"grid_width,omitempty"`
	GridHeight *int `json:"grid_height,omitempty" yaml:"grid_height,omitempty"`
	OriginX    *int `json:"origin_x,omitempty" yaml:"origin_x,omitempty"`
	OriginY    *int `json:"origin_y,omitempty" yaml:"origin_y,omitempty"`

	LidarSamples *int     `json:"lidar_samples,omitempty" yaml:"lidar_samples,omitempty"`
	SafeDistance *float64 `json:"safe_distance,omitempty" yaml:"safe_distance,omitempty"`

	ScanInterval  *string `json:"scan_interval,omitempty" yaml:"scan_interval,omitempty"` // duration string like "1s"
	SnapshotEvery *int    `json:"snapshot_every,omitempty" yaml:"snapshot_every,omitempty"`

	SerialPort *string               `json:"serial_port,omitempty" yaml:"serial_port,omitempty"`
	Serial     *robotapi.PortOptions `json:"serial,omitempty" yaml:"serial,omitempty"`

	DBPath    *string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	Listen    *string `json:"listen,omitempty" yaml:"listen,omitempty"`
	MapOutput *string `json:"map_output,omitempty" yaml:"map_output,omitempty"`
}

// Helper functions to create pointers
func ptrInt(v int) *int             { return &v }
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }

// LoadConfig reads a RobotConfig from a .json, .yaml or .yml file no larger
// than 1MB, then validates it.
func LoadConfig(path string) (*RobotConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &RobotConfig{}
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", cleanPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *RobotConfig) Validate() error {
	if c.GridWidth != nil && *c.GridWidth <= 0 {
		return fmt.Errorf("grid_width must be positive, got %d", *c.GridWidth)
	}
	if c.GridHeight != nil && *c.GridHeight <= 0 {
		return fmt.Errorf("grid_height must be positive, got %d", *c.GridHeight)
	}
	if x := c.GetOriginX(); x < 0 || x >= c.GetGridWidth() {
		return fmt.Errorf("origin_x %d outside grid width %d", x, c.GetGridWidth())
	}
	if y := c.GetOriginY(); y < 0 || y >= c.GetGridHeight() {
		return fmt.Errorf("origin_y %d outside grid height %d", y, c.GetGridHeight())
	}
	if c.LidarSamples != nil && *c.LidarSamples <= 0 {
		return fmt.Errorf("lidar_samples must be positive, got %d", *c.LidarSamples)
	}
	if c.SafeDistance != nil && *c.SafeDistance <= 0 {
		return fmt.Errorf("safe_distance must be positive, got %f", *c.SafeDistance)
	}
	if c.ScanInterval != nil && *c.ScanInterval != "" {
		d, err := time.ParseDuration(*c.ScanInterval)
		if err != nil {
			return fmt.Errorf("invalid scan_interval '%s': %w", *c.ScanInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("scan_interval must be positive, got %s", d)
		}
	}
	if c.SnapshotEvery != nil && *c.SnapshotEvery < 0 {
		return fmt.Errorf("snapshot_every must be non-negative, got %d", *c.SnapshotEvery)
	}
	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}
	return nil
}

func (c *RobotConfig) GetGridWidth() int {
	if c.GridWidth == nil {
		return DefaultGridWidth
	}
	return *c.GridWidth
}

func (c *RobotConfig) GetGridHeight() int {
	if c.GridHeight == nil {
		return DefaultGridHeight
	}
	return *c.GridHeight
}

func (c *RobotConfig) GetOriginX() int {
	if c.OriginX == nil {
		return DefaultOriginX
	}
	return *c.OriginX
}

func (c *RobotConfig) GetOriginY() int {
	if c.OriginY == nil {
		return DefaultOriginY
	}
	return *c.OriginY
}

func (c *RobotConfig) GetLidarSamples() int {
	if c.LidarSamples == nil {
		return DefaultLidarSamples
	}
	return *c.LidarSamples
}

func (c *RobotConfig) GetSafeDistance() float64 {
	if c.SafeDistance == nil {
		return DefaultSafeDistance
	}
	return *c.SafeDistance
}

// GetScanInterval parses ScanInterval, falling back to the default when it is
// unset or unparseable.
func (c *RobotConfig) GetScanInterval() time.Duration {
	if c.ScanInterval == nil || *c.ScanInterval == "" {
		return DefaultScanInterval
	}
	d, err := time.ParseDuration(*c.ScanInterval)
	if err != nil || d <= 0 {
		return DefaultScanInterval
	}
	return d
}

func (c *RobotConfig) GetSnapshotEvery() int {
	if c.SnapshotEvery == nil {
		return DefaultSnapshotEvery
	}
	return *c.SnapshotEvery
}

func (c *RobotConfig) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return DefaultSerialPort
	}
	return *c.SerialPort
}

// GetSerial returns the serial options; zero values are filled in by
// PortOptions.Normalize when the port is opened.
func (c *RobotConfig) GetSerial() robotapi.PortOptions {
	if c.Serial == nil {
		return robotapi.PortOptions{}
	}
	return *c.Serial
}

func (c *RobotConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return DefaultDBPath
	}
	return *c.DBPath
}

func (c *RobotConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return DefaultListen
	}
	return *c.Listen
}

func (c *RobotConfig) GetMapOutput() string {
	if c.MapOutput == nil || *c.MapOutput == "" {
		return DefaultMapOutput
	}
	return *c.MapOutput
}

// Override applies command-line values on top of the file. Empty strings
// and non-positive durations leave the file value in place.
func (c *RobotConfig) Override(serialPort, listen, dbPath, mapOutput string, interval time.Duration) {
	if serialPort != "" {
		c.SerialPort = ptrString(serialPort)
	}
	if listen != "" {
		c.Listen = ptrString(listen)
	}
	if dbPath != "" {
		c.DBPath = ptrString(dbPath)
	}
	if mapOutput != "" {
		c.MapOutput = ptrString(mapOutput)
	}
	if interval > 0 {
		c.ScanInterval = ptrString(interval.String())
	}
}
