package nativebridge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Gaurav-Gosain/nativebridge/internal/handle"
)

// Default timeouts.
const (
	// DefaultInvokeTimeout bounds how long a caller waits for an invocation
	// to run on the affinity thread.
	DefaultInvokeTimeout = 5000 * time.Millisecond
	// DefaultIdleTimeout is used by WaitForIdle when no timeout is given.
	// It is long on purpose: slow CI machines take a while to drain.
	DefaultIdleTimeout = 60000 * time.Millisecond
	// DefaultShutdownTimeout bounds how long Close waits for teardown.
	DefaultShutdownTimeout = 10 * time.Second
)

// ForeignFactory creates the foreign runtime for a session. It is called
// once, on the affinity thread, during Initialize.
type ForeignFactory func(ctx context.Context) (Foreign, error)

type config struct {
	InvokeTimeout   time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	Foreign         ForeignFactory
	Modules         []Module
	Logger          *zap.Logger
	Registry        *handle.Registry
	Reclaim         bool
}

func defaultConfig() config {
	return config{
		InvokeTimeout:   DefaultInvokeTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		Foreign:         newWasmForeign,
		Registry:        handle.Default,
		Reclaim:         true,
	}
}

// requirePositive panics if d <= 0 with a descriptive message.
func requirePositive(name string, d time.Duration) {
	if d <= 0 {
		panic(fmt.Sprintf("nativebridge: %s must be greater than 0, got %v", name, d))
	}
}

// Option configures a Session during construction via New or Open.
//
// With* functions panic on invalid input. Option values are usually
// constants, so an invalid value is a programmer error.
type Option func(*config)

// WithInvokeTimeout sets how long a caller blocks waiting for an invocation
// to complete on the affinity thread before getting ErrTimeout.
//
// Default: 5s. Panics if d <= 0.
func WithInvokeTimeout(d time.Duration) Option {
	requirePositive("invoke timeout", d)
	return func(c *config) {
		c.InvokeTimeout = d
	}
}

// WithIdleTimeout sets the default timeout of WaitForIdle.
//
// Default: 60s. Panics if d <= 0.
func WithIdleTimeout(d time.Duration) Option {
	requirePositive("idle timeout", d)
	return func(c *config) {
		c.IdleTimeout = d
	}
}

// WithShutdownTimeout sets how long Close waits for queued invocations to
// drain and teardown to finish.
//
// Default: 10s. Panics if d <= 0.
func WithShutdownTimeout(d time.Duration) Option {
	requirePositive("shutdown timeout", d)
	return func(c *config) {
		c.ShutdownTimeout = d
	}
}

// WithForeign sets the factory for the session's foreign runtime.
// The default runs the WASM node engine.
//
// Panics if f is nil.
func WithForeign(f ForeignFactory) Option {
	if f == nil {
		panic("nativebridge: foreign factory must not be nil")
	}
	return func(c *config) {
		c.Foreign = f
	}
}

// WithModules registers modules whose hooks run on the affinity thread.
// Modules are initialized in the order given and destroyed in reverse.
func WithModules(mods ...Module) Option {
	return func(c *config) {
		c.Modules = append(c.Modules, mods...)
	}
}

// WithLogger sets the session logger. Defaults to the package Logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.Logger = l
	}
}

// WithReclaim enables or disables the collector-driven release of objects
// that become unreachable without Release. Enabled by default.
func WithReclaim(enabled bool) Option {
	return func(c *config) {
		c.Reclaim = enabled
	}
}

// withRegistry swaps the handle registry. Tests use it to isolate counts.
func withRegistry(r *handle.Registry) Option {
	return func(c *config) {
		c.Registry = r
	}
}
