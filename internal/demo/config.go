package demo

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Config selects and tunes the scenarios. It is read from YAML and then
// overridden by command-line flags.
type Config struct {
	// Scenario is a scenario name or "all".
	Scenario string `yaml:"scenario"`

	// Capacity is the point-to-point channel capacity.
	Capacity int `yaml:"capacity"`

	// BroadcastCapacity is the per-subscriber buffer of the broadcast
	// scenario.
	BroadcastCapacity int `yaml:"broadcast_capacity"`

	// Numbers is how many values the basic and producer scenarios send.
	Numbers int `yaml:"numbers"`

	// SlowObserver delays every receive of the conflated observers.
	SlowObserver time.Duration `yaml:"slow_observer"`

	// ProductsFile is an optional YAML product list; the built-in list is
	// used when empty.
	ProductsFile string `yaml:"products_file"`

	// Parallel runs the scenarios of "all" concurrently.
	Parallel bool `yaml:"parallel"`

	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Scenario:          "all",
		Capacity:          3,
		BroadcastCapacity: 2,
		Numbers:           5,
		SlowObserver:      20 * time.Millisecond,
		LogLevel:          "info",
	}
}

// LoadConfig reads path on top of [DefaultConfig].
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("demo: read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("demo: decode config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Scenario != "all" {
		if _, ok := scenarios[c.Scenario]; !ok {
			errs = append(errs, fmt.Errorf("unknown scenario %q (want one of %s or all)", c.Scenario, strings.Join(Names(), ", ")))
		}
	}
	if c.Capacity < 0 {
		errs = append(errs, fmt.Errorf("capacity must be non-negative, got %d", c.Capacity))
	}
	if c.BroadcastCapacity <= 0 {
		errs = append(errs, fmt.Errorf("broadcast_capacity must be positive, got %d", c.BroadcastCapacity))
	}
	if c.Numbers < 0 {
		errs = append(errs, fmt.Errorf("numbers must be non-negative, got %d", c.Numbers))
	}
	if c.SlowObserver < 0 {
		errs = append(errs, fmt.Errorf("slow_observer must be non-negative, got %s", c.SlowObserver))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("demo: invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps a level name to a [slog.Level].
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}
