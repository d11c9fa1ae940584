// Package threadly is the public face of the scheduling engine: a thin,
// any-typed facade over internal/threadly. Callers needing the fully
// generic API (typed futures, typed bulk-invoke) work directly with
// internal/threadly from inside this module; external consumers get this
// pre-instantiated surface.
package threadly

import (
	"github.com/sirupsen/logrus"

	internal "github.com/zmarkan/threadly/internal/threadly"
)

// Priority orders ready tasks; High runs before Low except when the
// scheduler's starvation guard overrides that for a long-waiting Low task.
type Priority = internal.Priority

const (
	Low  = internal.Low
	High = internal.High
)

// FutureState is a Future's lifecycle state.
type FutureState = internal.FutureState

const (
	Pending   = internal.Pending
	Succeeded = internal.Succeeded
	Failed    = internal.Failed
	Cancelled = internal.Cancelled
)

type (
	Future        = internal.Future[any]
	Callback      = internal.Callback[any]
	CallbackFuncs = internal.CallbackFuncs[any]
	Executor      = internal.Executor
	ExecutorFunc  = internal.ExecutorFunc
	ListenerToken = internal.ListenerToken
	ListenerHelper = internal.ListenerHelper
	SettableFuture = internal.SettableFuture[any]
	TypedFuture    = internal.TypedFuture[any]

	Scheduler           = internal.Scheduler
	SchedulerConfig     = internal.SchedulerConfig
	RateLimiterExecutor = internal.RateLimiterExecutor
	RateLimiterConfig   = internal.RateLimiterConfig
	LoggerConfig        = internal.LoggerConfig
	ExecutionError      = internal.ExecutionError
)

// Sentinel errors surfaced at the package boundary; see internal/threadly
// for the operations that return each.
var (
	ErrInvalidArgument        = internal.ErrInvalidArgument
	ErrIllegalState           = internal.ErrIllegalState
	ErrCancelled              = internal.ErrCancelled
	ErrTimeout                = internal.ErrTimeout
	ErrInterrupted            = internal.ErrInterrupted
	ErrConcurrentModification = internal.ErrConcurrentModification
)

// NewListenerHelper constructs a helper in call-once or repeated mode.
func NewListenerHelper(callOnce bool) *ListenerHelper {
	return internal.NewListenerHelper(callOnce)
}

// NewSettableFuture constructs a pending, manually-completed future.
func NewSettableFuture() *SettableFuture {
	return internal.NewSettableFuture[any]()
}

// NewScheduler starts a scheduler per cfg (nil for defaults).
func NewScheduler(cfg *SchedulerConfig) (*Scheduler, error) {
	return internal.NewScheduler(cfg)
}

// DefaultSchedulerConfig returns a config sizing the pool to available
// cores, with the default starvation-guard window.
func DefaultSchedulerConfig() *SchedulerConfig {
	return internal.DefaultSchedulerConfig()
}

// NewRateLimiterExecutor builds a limiter pacing submissions onto sched.
func NewRateLimiterExecutor(sched *Scheduler, cfg *RateLimiterConfig) (*RateLimiterExecutor, error) {
	return internal.NewRateLimiterExecutor(sched, cfg)
}

// DefaultRateLimiterConfig returns a config admitting 1 permit/second.
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return internal.DefaultRateLimiterConfig()
}

// NewCompLogger returns a logger entry tagged with the given component
// name, for a host application that wants to log alongside threadly's own
// component loggers.
func NewCompLogger(comp string) *logrus.Entry {
	return internal.NewCompLogger(comp)
}

// SetUncaughtExceptionHandler overrides the process-wide handler invoked
// for listener panics and halted recurring-task failures.
func SetUncaughtExceptionHandler(h func(error)) {
	internal.SetUncaughtExceptionHandler(h)
}

// ApplyLoggerConfig reconfigures the root logger used by every component
// logger (level, formatter, output destination).
func ApplyLoggerConfig(cfg *LoggerConfig) error {
	return internal.ApplyLoggerConfig(cfg)
}

// DefaultLoggerConfig returns a config logging text to stderr at info
// level.
func DefaultLoggerConfig() *LoggerConfig {
	return internal.DefaultLoggerConfig()
}
