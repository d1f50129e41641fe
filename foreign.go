package nativebridge

import (
	"context"

	"go.uber.org/zap"

	"github.com/Gaurav-Gosain/nativebridge/internal/bridge"
)

// Foreign is the runtime that owns the resources a Session hands out.
//
// A Session calls these methods only from its affinity thread, so
// implementations need not be safe for concurrent use. Every method may
// fail; the Session reports allocation failures as ErrAllocation and every
// other failure as ErrForeignRuntime.
type Foreign interface {
	// Allocate creates a resource and returns its pointer. 0 means failure.
	Allocate(ctx context.Context) (uint64, error)
	// Free releases the resource at ptr.
	Free(ctx context.Context, ptr uint64) error
	// Call runs op on the resource at ptr.
	Call(ctx context.Context, ptr uint64, op uint32, args []int64) (int64, error)
	// Close releases the runtime.
	Close(ctx context.Context) error
}

// EngineReporter is implemented by foreign runtimes that keep their own
// count of live resources.
type EngineReporter interface {
	Live(ctx context.Context) (uint32, error)
	MemorySize() uint32
}

var (
	_ Foreign        = (*bridge.Bridge)(nil)
	_ EngineReporter = (*bridge.Bridge)(nil)
)

// newWasmForeign starts the WASM node engine.
func newWasmForeign(ctx context.Context) (Foreign, error) {
	b, err := bridge.New(ctx)
	if err != nil {
		return nil, err
	}
	if l := Logger(); l.Core().Enabled(zap.DebugLevel) {
		b.SetFreeHook(func(ptr uint32) {
			l.Debug("engine freed node", zap.Uint32("ptr", ptr))
		})
	}
	return b, nil
}
