// Package config loads the optional JSON race configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/slotcar.sim/internal/cu"
)

// RaceConfig holds the tunable race and start-light parameters. Fields are
// pointers so a partial config file is safe: anything omitted keeps its
// default, which the Get* accessors provide.
type RaceConfig struct {
	// Start-light timings as duration strings like "1s" or "500ms".
	RedInterval   *string `json:"red_interval,omitempty"`
	GreenDuration *string `json:"green_duration,omitempty"`

	// Simulator params
	BaseLapTime *float64 `json:"base_lap_time,omitempty"` // seconds
	Variation   *float64 `json:"variation,omitempty"`     // fraction, 0..1
	Resolution  *string  `json:"resolution,omitempty"`    // duration string
	Cars        []int    `json:"cars,omitempty"`          // controller addresses 0..7
	Seed        *int64   `json:"seed,omitempty"`

	// Device params
	Display *int    `json:"display,omitempty"` // 6 or 8
	Version *string `json:"version,omitempty"` // 4-character firmware string
}

// EmptyRaceConfig returns a RaceConfig with all fields unset, so every Get*
// accessor yields its default.
func EmptyRaceConfig() *RaceConfig {
	return &RaceConfig{}
}

// LoadRaceConfig loads a RaceConfig from a JSON file. The file must have a
// .json extension and stay under the max file size; omitted fields retain
// their defaults, so partial configs are safe.
func LoadRaceConfig(path string) (*RaceConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

	cfg := EmptyRaceConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every set field for a sane value.
func (c *RaceConfig) Validate() error {
	if c.RedInterval != nil {
		if _, err := time.ParseDuration(*c.RedInterval); err != nil {
			return fmt.Errorf("invalid red_interval: %w", err)
		}
	}
	if c.GreenDuration != nil {
		if _, err := time.ParseDuration(*c.GreenDuration); err != nil {
			return fmt.Errorf("invalid green_duration: %w", err)
		}
	}
	if c.Resolution != nil {
		if _, err := time.ParseDuration(*c.Resolution); err != nil {
			return fmt.Errorf("invalid resolution: %w", err)
		}
	}
	if c.BaseLapTime != nil && *c.BaseLapTime <= 0 {
		return fmt.Errorf("invalid base_lap_time %v: must be positive", *c.BaseLapTime)
	}
	if c.Variation != nil && (*c.Variation < 0 || *c.Variation > 1) {
		return fmt.Errorf("invalid variation %v: must be in [0, 1]", *c.Variation)
	}
	for _, car := range c.Cars {
		if car < 0 || car >= cu.Controllers {
			return fmt.Errorf("invalid car address %d: must be in [0, %d]", car, cu.Controllers-1)
		}
	}
	if c.Display != nil && *c.Display != 6 && *c.Display != 8 {
		return fmt.Errorf("invalid display %d: must be 6 or 8", *c.Display)
	}
	if c.Version != nil && len(*c.Version) != 4 {
		return fmt.Errorf("invalid version %q: must be 4 characters", *c.Version)
	}
	return nil
}

// GetRedInterval returns the start-light red interval.
func (c *RaceConfig) GetRedInterval() time.Duration {
	return c.duration(c.RedInterval, cu.DefaultRedInterval)
}

// GetGreenDuration returns the start-light green duration.
func (c *RaceConfig) GetGreenDuration() time.Duration {
	return c.duration(c.GreenDuration, cu.DefaultGreenDuration)
}

// GetResolution returns the simulator polling resolution.
func (c *RaceConfig) GetResolution() time.Duration {
	return c.duration(c.Resolution, cu.DefaultResolution)
}

// GetBaseLapTime returns the nominal lap time in seconds.
func (c *RaceConfig) GetBaseLapTime() float64 {
	if c.BaseLapTime != nil {
		return *c.BaseLapTime
	}
	return cu.DefaultBaseLapTime
}

// GetVariation returns the lap-time variation fraction.
func (c *RaceConfig) GetVariation() float64 {
	if c.Variation != nil {
		return *c.Variation
	}
	return cu.DefaultVariation
}

// GetCars returns the simulated car addresses.
func (c *RaceConfig) GetCars() []int {
	if len(c.Cars) > 0 {
		return c.Cars
	}
	return []int{0, 1}
}

// GetSeed returns the simulator random seed, zero meaning time-seeded.
func (c *RaceConfig) GetSeed() int64 {
	if c.Seed != nil {
		return *c.Seed
	}
	return 0
}

// GetDisplay returns the number of controllers to report.
func (c *RaceConfig) GetDisplay() int {
	if c.Display != nil {
		return *c.Display
	}
	return 8
}

// GetVersion returns the firmware version string.
func (c *RaceConfig) GetVersion() string {
	if c.Version != nil {
		return *c.Version
	}
	return cu.DefaultVersion
}

func (c *RaceConfig) duration(s *string, fallback time.Duration) time.Duration {
	if s == nil {
		return fallback
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return fallback
	}
	return d
}
