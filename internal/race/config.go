package race

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the game parameters that both the simulator and the
// probability table depend on. Changing any field invalidates every table
// generated under the old values, so deployed artifacts record them in their
// headers and lookups cross-check at load time.
type Config struct {
	Lanes          int `yaml:"lanes"`
	TrackLength    int `yaml:"track_length"`
	MaxTicks       int `yaml:"max_ticks"`
	SpeedRange     int `yaml:"speed_range"`
	MinHandicapBps int `yaml:"min_handicap_bps"`
}

// DefaultConfig returns the 4-lane production parameters.
func DefaultConfig() Config {
	return Config{
		Lanes:          4,
		TrackLength:    400,
		MaxTicks:       500,
		SpeedRange:     10,
		MinHandicapBps: 9500,
	}
}

// LoadConfig reads a yaml config file and validates it. Missing fields fall
// back to defaults, so a file may override only what it cares about.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects parameter sets that could deadlock or overflow the table
// format. The MaxTicks bound is the termination guarantee: every lane
// advances at least 1 per tick, so MaxTicks >= TrackLength makes exhaustion
// impossible rather than merely unlikely.
func (c Config) Validate() error {
	if c.Lanes < 2 || c.Lanes > 8 {
		return fmt.Errorf("lanes must be in [2,8], got %d", c.Lanes)
	}
	if c.TrackLength < 1 {
		return fmt.Errorf("track_length must be positive, got %d", c.TrackLength)
	}
	if c.SpeedRange < 1 {
		return fmt.Errorf("speed_range must be positive, got %d", c.SpeedRange)
	}
	if c.MinHandicapBps < 1 || c.MinHandicapBps > 10000 {
		return fmt.Errorf("min_handicap_bps must be in [1,10000], got %d", c.MinHandicapBps)
	}
	if c.MaxTicks < c.TrackLength {
		return fmt.Errorf("max_ticks (%d) must be >= track_length (%d) to guarantee termination", c.MaxTicks, c.TrackLength)
	}
	return nil
}
