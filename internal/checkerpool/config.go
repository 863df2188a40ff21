package checkerpool

import "time"

// Config describes how to spawn and talk to checker worker processes.
type Config struct {
	BinaryPath    string
	Args          []string
	PoolSize      int
	FileTimeout   time.Duration
	HealthEvery   time.Duration
	LivenessEvery time.Duration
	MaxTypeDepth  int
	MaxMemoryMb   int // propagated to the worker process via SG_MAX_MEMORY_MB
}

// withDefaults fills in the spec's default intervals for any zero field.
func (c Config) withDefaults() Config {
	if c.PoolSize <= 0 {
		c.PoolSize = 4
	}
	if c.FileTimeout <= 0 {
		c.FileTimeout = 30 * time.Second
	}
	if c.HealthEvery <= 0 {
		c.HealthEvery = 30 * time.Second
	}
	if c.LivenessEvery <= 0 {
		c.LivenessEvery = 10 * time.Second
	}
	return c
}
