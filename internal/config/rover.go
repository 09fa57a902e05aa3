package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/banshee-data/rovernav/internal/monitoring"
)

// DefaultPeerPorts is the static roster shared by every rover ahead of time.
var DefaultPeerPorts = map[string]int{
	"ROVER_01": 53701,
	"ROVER_02": 53702,
	"ROVER_03": 53703,
	"ROVER_04": 53704,
	"ROVER_05": 53705,
	"ROVER_06": 53706,
	"ROVER_07": 53707,
	"ROVER_08": 53708,
	"ROVER_09": 53709,
}

// RoverConfig is the root configuration for a rover process. Every field is
// optional; the Get* accessors supply defaults for anything omitted so partial
// files are safe.
type RoverConfig struct {
	// Identity and peer roster
	Self   *string        `json:"self,omitempty"`
	Host   *string        `json:"host,omitempty"`
	Roster map[string]int `json:"roster,omitempty"`

	// Transport
	DialTimeout    *string `json:"dial_timeout,omitempty"`  // duration string like "1s"
	WriteTimeout   *string `json:"write_timeout,omitempty"` // duration string like "50ms"
	RetryInitial   *string `json:"retry_initial,omitempty"` // duration string like "250ms"
	RetryMax       *string `json:"retry_max,omitempty"`
	RetryDoublings *int    `json:"retry_doublings,omitempty"`
	ReadBufferSize *int    `json:"read_buffer_size,omitempty"`

	// Planner
	MaxIterations *int `json:"max_iterations,omitempty"`
	GiveUpAfter   *int `json:"give_up_after,omitempty"` // consecutive empty paths before a goal is dropped

	// Control loop
	TickInterval *string `json:"tick_interval,omitempty"`
	ScanRadius   *int    `json:"scan_radius,omitempty"`

	// Storage and observability
	DBPath      *string `json:"db_path,omitempty"`
	DebugListen *string `json:"debug_listen,omitempty"`
	LogLevel    *string `json:"log_level,omitempty"`
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyRoverConfig returns a RoverConfig with all fields unset.
func EmptyRoverConfig() *RoverConfig {
	return &RoverConfig{}
}

// LoadRoverConfig loads a RoverConfig from a JSON file. The file must have a
// .json extension and be under 1MB.
func LoadRoverConfig(path string) (*RoverConfig, error) {
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

	cfg := EmptyRoverConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *RoverConfig) Validate() error {
	for name, raw := range map[string]*string{
		"dial_timeout":  c.DialTimeout,
		"write_timeout": c.WriteTimeout,
		"retry_initial": c.RetryInitial,
		"retry_max":     c.RetryMax,
		"tick_interval": c.TickInterval,
	} {
		if raw == nil || *raw == "" {
			continue
		}
		d, err := time.ParseDuration(*raw)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.RetryDoublings != nil && *c.RetryDoublings < 0 {
		return fmt.Errorf("retry_doublings must be non-negative, got %d", *c.RetryDoublings)
	}
	if c.ReadBufferSize != nil && *c.ReadBufferSize <= 0 {
		return fmt.Errorf("read_buffer_size must be positive, got %d", *c.ReadBufferSize)
	}
	if c.MaxIterations != nil && *c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", *c.MaxIterations)
	}
	if c.GiveUpAfter != nil && *c.GiveUpAfter <= 0 {
		return fmt.Errorf("give_up_after must be positive, got %d", *c.GiveUpAfter)
	}
	if c.ScanRadius != nil && *c.ScanRadius < 0 {
		return fmt.Errorf("scan_radius must be non-negative, got %d", *c.ScanRadius)
	}
	for peer, port := range c.Roster {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("roster entry %s has invalid port %d", peer, port)
		}
	}
	if c.Self != nil && *c.Self != "" {
		if _, ok := c.GetRoster()[*c.Self]; !ok {
			return fmt.Errorf("self %q is not in the roster", *c.Self)
		}
	}
	if c.LogLevel != nil {
		if _, err := monitoring.ParseLevel(*c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

func durationOr(raw *string, def time.Duration) time.Duration {
	if raw == nil || *raw == "" {
		return def
	}
	d, err := time.ParseDuration(*raw)
	if err != nil {
		return def
	}
	return d
}

// GetSelf returns the rover's own roster id or the default.
func (c *RoverConfig) GetSelf() string {
	if c.Self == nil || *c.Self == "" {
		return "ROVER_07"
	}
	return *c.Self
}

// GetHost returns the host every roster port lives on.
func (c *RoverConfig) GetHost() string {
	if c.Host == nil || *c.Host == "" {
		return "127.0.0.1"
	}
	return *c.Host
}

// GetRoster returns the peer id → port mapping, including this rover.
func (c *RoverConfig) GetRoster() map[string]int {
	src := c.Roster
	if len(src) == 0 {
		src = DefaultPeerPorts
	}
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// GetPeers returns the sorted roster ids other than Self.
func (c *RoverConfig) GetPeers() []string {
	self := c.GetSelf()
	var peers []string
	for id := range c.GetRoster() {
		if id != self {
			peers = append(peers, id)
		}
	}
	sort.Strings(peers)
	return peers
}

// GetDialTimeout returns the dial_timeout value or the default.
func (c *RoverConfig) GetDialTimeout() time.Duration {
	return durationOr(c.DialTimeout, time.Second)
}

// GetWriteTimeout returns the write_timeout value or the default.
func (c *RoverConfig) GetWriteTimeout() time.Duration {
	return durationOr(c.WriteTimeout, 50*time.Millisecond)
}

// GetRetryInitial returns the first reconnect delay.
func (c *RoverConfig) GetRetryInitial() time.Duration {
	return durationOr(c.RetryInitial, 250*time.Millisecond)
}

// GetRetryMax returns the reconnect delay cap.
func (c *RoverConfig) GetRetryMax() time.Duration {
	return durationOr(c.RetryMax, 4*time.Second)
}

// GetRetryDoublings returns how many times the reconnect delay may double.
func (c *RoverConfig) GetRetryDoublings() int {
	if c.RetryDoublings == nil {
		return 5
	}
	return *c.RetryDoublings
}

// GetReadBufferSize returns the per-read chunk size for peer sockets.
func (c *RoverConfig) GetReadBufferSize() int {
	if c.ReadBufferSize == nil {
		return 64
	}
	return *c.ReadBufferSize
}

// GetMaxIterations returns the planner's per-solve iteration bound.
func (c *RoverConfig) GetMaxIterations() int {
	if c.MaxIterations == nil {
		return 100000
	}
	return *c.MaxIterations
}

// GetGiveUpAfter returns the number of consecutive empty paths tolerated before
// a goal is abandoned.
func (c *RoverConfig) GetGiveUpAfter() int {
	if c.GiveUpAfter == nil {
		return 5
	}
	return *c.GiveUpAfter
}

// GetTickInterval returns the control loop period.
func (c *RoverConfig) GetTickInterval() time.Duration {
	return durationOr(c.TickInterval, 200*time.Millisecond)
}

// GetScanRadius returns the half-width of the sensor window.
func (c *RoverConfig) GetScanRadius() int {
	if c.ScanRadius == nil {
		return 3
	}
	return *c.ScanRadius
}

// GetDBPath returns the discovery ledger path.
func (c *RoverConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "rover.db"
	}
	return *c.DBPath
}

// GetDebugListen returns the debug HTTP listen address. Empty disables it.
func (c *RoverConfig) GetDebugListen() string {
	if c.DebugListen == nil {
		return "127.0.0.1:8080"
	}
	return *c.DebugListen
}

// GetLogLevel returns the configured log level string.
func (c *RoverConfig) GetLogLevel() string {
	if c.LogLevel == nil {
		return "info"
	}
	return *c.LogLevel
}
