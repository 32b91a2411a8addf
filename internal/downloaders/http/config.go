package sdmhttp

import (
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	DefaultWorkers        = 8
	DefaultMaxRetries     = 3
	DefaultRetryInterval  = 30 * time.Second
	DefaultChunkIncrement = 1024 * 1024
)

type Config struct {
	Workers        int
	MaxRetries     int
	RetryInterval  time.Duration
	ChunkIncrement int

	// Throttle carries the speed ceiling. Tasks sharing one Throttle follow
	// ceiling changes made through it.
	Throttle *Throttle

	// SharedLimiter, when set, caps the combined throughput of every task
	// holding the same limiter.
	SharedLimiter *rate.Limiter

	// Connections, when set, bounds ranged requests across every task
	// holding the same semaphore.
	Connections *semaphore.Weighted

	Logger zerolog.Logger
}

func DefaultConfig() Config {
	return Config{
		Workers:        DefaultWorkers,
		MaxRetries:     DefaultMaxRetries,
		RetryInterval:  DefaultRetryInterval,
		ChunkIncrement: DefaultChunkIncrement,
		Throttle:       NewThrottle(0),
		Logger:         zerolog.Nop(),
	}
}

// withDefaults fills unset fields. A MaxRetries of zero is a valid setting
// and is left alone.
func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.ChunkIncrement <= 0 {
		c.ChunkIncrement = DefaultChunkIncrement
	}
	if c.Throttle == nil {
		c.Throttle = NewThrottle(0)
	}
	return c
}
