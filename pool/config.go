package pool

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultAutoShrinkInterval = 5 * time.Minute

// Config collects the construction parameters recognized by New.
// Pool sizing is mutually exclusive: either set PoolSize (a fixed pool,
// no autoscaling effect) or set MinPoolSize/MaxPoolSize (autoscaling
// active). Setting both is a configuration error.
type Config struct {
	WorkerPath    string   `yaml:"worker_path"`
	WorkerOptions []string `yaml:"worker_options"`

	PoolSize    int `yaml:"pool_size"`
	MinPoolSize int `yaml:"min_pool_size"`
	MaxPoolSize int `yaml:"max_pool_size"`

	UsePriorityTaskQueue bool          `yaml:"use_priority_task_queue"`
	AutoShrinkInterval   time.Duration `yaml:"auto_shrink_interval"`
}

// normalize resolves the PoolSize/{Min,Max}PoolSize exclusivity,
// returning the resolved (min, max) the pool will actually run with.
// Sizing has no default: leaving it unset is an error.
func (c Config) normalize() (min, max int, err error) {
	fixedSet := c.PoolSize > 0
	rangeSet := c.MinPoolSize > 0 || c.MaxPoolSize > 0

	switch {
	case fixedSet && rangeSet:
		return 0, 0, fmt.Errorf("isopool: config specifies both pool_size and min/max_pool_size")
	case fixedSet:
		return c.PoolSize, c.PoolSize, nil
	case rangeSet:
		if c.MinPoolSize <= 0 || c.MaxPoolSize <= 0 {
			return 0, 0, fmt.Errorf("isopool: min_pool_size and max_pool_size must both be positive")
		}
		if c.MinPoolSize > c.MaxPoolSize {
			return 0, 0, fmt.Errorf("isopool: min_pool_size (%d) exceeds max_pool_size (%d)", c.MinPoolSize, c.MaxPoolSize)
		}
		return c.MinPoolSize, c.MaxPoolSize, nil
	default:
		return 0, 0, fmt.Errorf("isopool: config must set pool_size or min/max_pool_size")
	}
}

func (c Config) shrinkInterval() time.Duration {
	if c.AutoShrinkInterval <= 0 {
		return defaultAutoShrinkInterval
	}
	return c.AutoShrinkInterval
}

// LoadConfig reads a Config from a YAML file, the configuration format
// used throughout the retrieval pack's CLIs. Unset fields keep their
// zero value; at New, shrinkInterval defaults the shrink interval and
// normalize rejects unset pool sizing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
