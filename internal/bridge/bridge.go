// Package bridge provides low-level bindings to the WASM node engine.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/Gaurav-Gosain/nativebridge/wasm"
)

// Global compilation cache - the compilation cache speeds up CompileModule
// by caching the compiled machine code. This is shared across all Bridge instances.
var (
	globalCache     wazero.CompilationCache
	globalCacheOnce sync.Once
)

func initGlobalCache() {
	globalCache = wazero.NewCompilationCache()
}

var (
	ErrExhausted   = errors.New("node arena exhausted")
	ErrInvalidArgs = errors.New("invalid call arguments")
	ErrClosed      = errors.New("bridge closed")
)

// Bridge manages one WASM node engine instance.
//
// A Bridge is not safe for concurrent use: the engine has a single linear
// memory and mutable globals. Callers serialize access.
type Bridge struct {
	wasmRuntime wazero.Runtime
	module      api.Module
	memory      api.Memory
	onFree      func(ptr uint32)
	closed      bool

	// Exported functions from WASM
	fnAlloc api.Function
	fnFree  api.Function
	fnCall  api.Function
	fnLive  api.Function
}

// New creates a new Bridge instance.
func New(ctx context.Context) (*Bridge, error) {
	b := &Bridge{
		onFree: func(uint32) {},
	}

	globalCacheOnce.Do(initGlobalCache)

	runtimeConfig := wazero.NewRuntimeConfig().
		WithCompilationCache(globalCache).
		WithDebugInfoEnabled(false)

	b.wasmRuntime = wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	_, err := b.wasmRuntime.NewHostModuleBuilder(wasm.HostModule).
		NewFunctionBuilder().
		WithFunc(b.hostFreed).
		Export(wasm.HostFreed).
		Instantiate(ctx)
	if err != nil {
		_ = b.wasmRuntime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate host module: %w", err)
	}

	compiled, err := b.wasmRuntime.CompileModule(ctx, wasm.Nodes)
	if err != nil {
		_ = b.wasmRuntime.Close(ctx)
		return nil, fmt.Errorf("failed to compile WASM module: %w", err)
	}

	b.module, err = b.wasmRuntime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("nodes"))
	if err != nil {
		_ = b.wasmRuntime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASM module: %w", err)
	}

	b.memory = b.module.Memory()
	if b.memory == nil {
		_ = b.wasmRuntime.Close(ctx)
		return nil, errors.New("WASM module has no memory")
	}

	if err := b.initFunctions(); err != nil {
		_ = b.wasmRuntime.Close(ctx)
		return nil, err
	}

	return b, nil
}

func (b *Bridge) initFunctions() error {
	getFn := func(name string) (api.Function, error) {
		fn := b.module.ExportedFunction(name)
		if fn == nil {
			return nil, fmt.Errorf("function %s not found in WASM module", name)
		}
		return fn, nil
	}

	var err error
	if b.fnAlloc, err = getFn(wasm.ExportAlloc); err != nil {
		return err
	}
	if b.fnFree, err = getFn(wasm.ExportFree); err != nil {
		return err
	}
	if b.fnCall, err = getFn(wasm.ExportCall); err != nil {
		return err
	}
	if b.fnLive, err = getFn(wasm.ExportLive); err != nil {
		return err
	}
	return nil
}

// Close releases the engine and every node it still holds.
func (b *Bridge) Close(ctx context.Context) error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.wasmRuntime.Close(ctx)
}

// SetFreeHook sets the function called by the engine after a node is freed.
func (b *Bridge) SetFreeHook(fn func(ptr uint32)) {
	if fn == nil {
		fn = func(uint32) {}
	}
	b.onFree = fn
}

// ============================================================================
// Host function implementations
// ============================================================================

func (b *Bridge) hostFreed(_ context.Context, _ api.Module, ptr uint32) {
	b.onFree(ptr)
}

// ============================================================================
// Node operations
// ============================================================================

// Allocate creates a node and returns its pointer.
func (b *Bridge) Allocate(ctx context.Context) (uint64, error) {
	if b.closed {
		return 0, ErrClosed
	}
	results, err := b.fnAlloc.Call(ctx)
	if err != nil {
		return 0, err
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, ErrExhausted
	}
	return uint64(ptr), nil
}

// Free releases a node. Freeing an unknown or already freed pointer traps.
func (b *Bridge) Free(ctx context.Context, ptr uint64) error {
	if b.closed {
		return ErrClosed
	}
	if ptr > wasm.Capacity {
		return fmt.Errorf("%w: pointer %d out of range", ErrInvalidArgs, ptr)
	}
	_, err := b.fnFree.Call(ctx, api.EncodeU32(uint32(ptr)))
	return err
}

// Call runs op on the node at ptr. args are the field index and, for
// set and add, the operand.
func (b *Bridge) Call(ctx context.Context, ptr uint64, op uint32, args []int64) (int64, error) {
	if b.closed {
		return 0, ErrClosed
	}
	if ptr > wasm.Capacity {
		return 0, fmt.Errorf("%w: pointer %d out of range", ErrInvalidArgs, ptr)
	}

	var field, operand int64
	switch len(args) {
	case 0:
	case 1:
		field = args[0]
	case 2:
		field, operand = args[0], args[1]
	default:
		return 0, fmt.Errorf("%w: got %d, want at most 2", ErrInvalidArgs, len(args))
	}
	if field < 0 || field >= wasm.Fields {
		return 0, fmt.Errorf("%w: field %d", ErrInvalidArgs, field)
	}

	results, err := b.fnCall.Call(ctx,
		api.EncodeU32(uint32(ptr)),
		api.EncodeU32(op),
		api.EncodeU32(uint32(field)),
		api.EncodeI64(operand))
	if err != nil {
		return 0, err
	}
	return int64(results[0]), nil
}

// Live returns the number of allocated nodes.
func (b *Bridge) Live(ctx context.Context) (uint32, error) {
	if b.closed {
		return 0, ErrClosed
	}
	results, err := b.fnLive.Call(ctx)
	if err != nil {
		return 0, err
	}
	return api.DecodeU32(results[0]), nil
}

// MemorySize returns the size of the engine's linear memory in bytes.
func (b *Bridge) MemorySize() uint32 {
	return b.memory.Size()
}
