package glee

import (
	"fmt"
)

// Default configuration values.
const (
	DefaultPointerWidth = Width64
	DefaultAlignment    = 8
	DefaultMaxAddress   = 0x00007fffffffffff
	DefaultWorkers      = 1
	DefaultSolverCache  = 4096
)

// Search strategies.
const (
	SearchDFS    = "dfs"
	SearchBFS    = "bfs"
	SearchRandom = "random"
)

// Config holds the settings for an exploration run.
type Config struct {
	Target Target `yaml:"target"`

	// Order in which pending programs are run.
	Search string `yaml:"search"`
	Seed   int64  `yaml:"seed"`

	// Number of programs executed concurrently by Run.
	Workers int `yaml:"workers"`

	// Maximum number of completed paths, zero for no limit.
	MaxPaths int `yaml:"max_paths"`

	// Number of cached solver queries, zero to disable the cache.
	SolverCache int `yaml:"solver_cache"`
}

// Target describes the memory model of the machine being explored.
type Target struct {
	PointerWidth uint   `yaml:"pointer_width"`
	LittleEndian bool   `yaml:"little_endian"`
	Alignment    uint64 `yaml:"alignment"`
	MaxAddress   uint64 `yaml:"max_address"`
}

// DefaultConfig returns a configuration for a 64-bit little endian target.
func DefaultConfig() Config {
	return Config{
		Target: Target{
			PointerWidth: DefaultPointerWidth,
			LittleEndian: true,
			Alignment:    DefaultAlignment,
			MaxAddress:   DefaultMaxAddress,
		},
		Search:      SearchDFS,
		Workers:     DefaultWorkers,
		SolverCache: DefaultSolverCache,
	}
}

// Validate returns an error if the configuration cannot be used.
func (c *Config) Validate() error {
	switch c.Target.PointerWidth {
	case Width16, Width32, Width64:
	default:
		return fmt.Errorf("glee: invalid pointer width: %d", c.Target.PointerWidth)
	}
	if a := c.Target.Alignment; a == 0 || a&(a-1) != 0 {
		return fmt.Errorf("glee: alignment must be a power of two: %d", a)
	}
	if c.Target.MaxAddress == 0 || c.Target.MaxAddress > bitmask(c.Target.PointerWidth) {
		return fmt.Errorf("glee: max address out of range: %#x", c.Target.MaxAddress)
	}

	switch c.Search {
	case SearchDFS, SearchBFS, SearchRandom:
	default:
		return fmt.Errorf("glee: unknown search strategy: %q", c.Search)
	}

	if c.Workers < 1 {
		return fmt.Errorf("glee: workers must be at least 1: %d", c.Workers)
	} else if c.MaxPaths < 0 {
		return fmt.Errorf("glee: max paths cannot be negative: %d", c.MaxPaths)
	} else if c.SolverCache < 0 {
		return fmt.Errorf("glee: solver cache cannot be negative: %d", c.SolverCache)
	}
	return nil
}
