// Config structs for the scheduler and rate limiter, yaml-tagged so a host
// application can decode them from its own config file; threadly itself
// never reads one.

package threadly

import (
	"time"

	"github.com/huandu/go-clone"
)

const (
	SCHEDULER_CONFIG_POOL_SIZE_DEFAULT        = -1
	SCHEDULER_MAX_POOL_SIZE                   = 64
	SCHEDULER_CONFIG_MAX_WAIT_FOR_LOW_DEFAULT = 250 * time.Millisecond
	SCHEDULER_CONFIG_DEFAULT_PRIORITY_DEFAULT = Low

	RATE_LIMITER_CONFIG_PERMITS_PER_SECOND_DEFAULT = 1.0
)

// SchedulerConfig configures a Scheduler's worker pool and starvation
// guard. A PoolSize <= 0 matches the number of available cores, capped at
// SCHEDULER_MAX_POOL_SIZE.
type SchedulerConfig struct {
	PoolSize        int           `yaml:"pool_size"`
	MaxWaitForLow   time.Duration `yaml:"max_wait_for_low"`
	DefaultPriority Priority      `yaml:"default_priority"`
}

// DefaultSchedulerConfig returns a config that sizes the pool to the host's
// available cores.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		PoolSize:        SCHEDULER_CONFIG_POOL_SIZE_DEFAULT,
		MaxWaitForLow:   SCHEDULER_CONFIG_MAX_WAIT_FOR_LOW_DEFAULT,
		DefaultPriority: SCHEDULER_CONFIG_DEFAULT_PRIORITY_DEFAULT,
	}
}

// CloneSchedulerConfig returns a deep copy, so a caller handing a config to
// NewScheduler can keep mutating its own.
func CloneSchedulerConfig(cfg *SchedulerConfig) *SchedulerConfig {
	if cfg == nil {
		return nil
	}
	return clone.Clone(cfg).(*SchedulerConfig)
}

// RateLimiterConfig configures a RateLimiterExecutor.
type RateLimiterConfig struct {
	PermitsPerSecond float64 `yaml:"permits_per_second"`
}

func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		PermitsPerSecond: RATE_LIMITER_CONFIG_PERMITS_PER_SECOND_DEFAULT,
	}
}

// CloneRateLimiterConfig returns a deep copy.
func CloneRateLimiterConfig(cfg *RateLimiterConfig) *RateLimiterConfig {
	if cfg == nil {
		return nil
	}
	return clone.Clone(cfg).(*RateLimiterConfig)
}
