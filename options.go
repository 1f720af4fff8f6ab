package cursormgr

import (
	"github.com/zhangyunhao116/fastrand"

	"github.com/routegrid/cursormgr/ringlog"
)

// config holds internal configuration
type config struct {
	Clock       Clock
	Rand        func() uint32
	LogCapacity int
}

// Option configures a Manager
type Option interface {
	apply(*config)
}

// funcOpt wraps a function as an Option
type funcOpt func(*config)

func (f funcOpt) apply(c *config) {
	f(c)
}

// WithClock injects the time source used for last-active stamps
// (default: the system clock)
func WithClock(clock Clock) Option {
	return funcOpt(func(c *config) {
		c.Clock = clock
	})
}

// WithRandSource injects the 32-bit random source used for cursor id prefix
// and suffix draws (default: fastrand). Tests use deterministic sources to
// force collisions.
func WithRandSource(rand func() uint32) Option {
	return funcOpt(func(c *config) {
		c.Rand = rand
	})
}

// WithLogCapacity sets the diagnostic ring log capacity (default: 512 slots)
func WithLogCapacity(n int) Option {
	return funcOpt(func(c *config) {
		c.LogCapacity = n
	})
}

func defaultConfig() config {
	return config{
		Clock:       systemClock{},
		Rand:        fastrand.Uint32,
		LogCapacity: ringlog.DefaultCapacity,
	}
}
