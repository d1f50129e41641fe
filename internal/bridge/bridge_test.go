package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/Gaurav-Gosain/nativebridge/wasm"
)

func newBridge(t *testing.T) *Bridge {
	t.Helper()
	b, err := New(context.Background())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { b.Close(context.Background()) })
	return b
}

func TestAllocateAndCall(t *testing.T) {
	ctx := context.Background()
	b := newBridge(t)

	ptr, err := b.Allocate(ctx)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if ptr == 0 {
		t.Fatal("Allocate() returned null pointer")
	}

	tests := []struct {
		op   uint32
		args []int64
		want int64
	}{
		{wasm.OpGet, []int64{0}, 0},
		{wasm.OpSet, []int64{0, 120}, 120},
		{wasm.OpGet, []int64{0}, 120},
		{wasm.OpAdd, []int64{0, -20}, 100},
		{wasm.OpSet, []int64{7, 1 << 40}, 1 << 40},
		{wasm.OpGet, []int64{7}, 1 << 40},
		{wasm.OpGet, nil, 100},
	}
	for _, tt := range tests {
		got, err := b.Call(ctx, ptr, tt.op, tt.args)
		if err != nil {
			t.Fatalf("Call(%d, %v) error = %v", tt.op, tt.args, err)
		}
		if got != tt.want {
			t.Errorf("Call(%d, %v) = %d, want %d", tt.op, tt.args, got, tt.want)
		}
	}
}

func TestNodesAreIsolated(t *testing.T) {
	ctx := context.Background()
	b := newBridge(t)

	p1, _ := b.Allocate(ctx)
	p2, _ := b.Allocate(ctx)
	if p1 == p2 {
		t.Fatal("distinct allocations returned the same pointer")
	}

	b.Call(ctx, p1, wasm.OpSet, []int64{1, 11})
	b.Call(ctx, p2, wasm.OpSet, []int64{1, 22})

	v1, _ := b.Call(ctx, p1, wasm.OpGet, []int64{1})
	v2, _ := b.Call(ctx, p2, wasm.OpGet, []int64{1})
	if v1 != 11 || v2 != 22 {
		t.Errorf("got (%d, %d), want (11, 22)", v1, v2)
	}
}

func TestFreeTrapsOnReuse(t *testing.T) {
	ctx := context.Background()
	b := newBridge(t)

	var freed []uint32
	b.SetFreeHook(func(ptr uint32) { freed = append(freed, ptr) })

	ptr, _ := b.Allocate(ctx)
	if live, _ := b.Live(ctx); live != 1 {
		t.Fatalf("Live() = %d, want 1", live)
	}

	if err := b.Free(ctx, ptr); err != nil {
		t.Fatalf("Free() error = %v", err)
	}
	if len(freed) != 1 || uint64(freed[0]) != ptr {
		t.Fatalf("free hook saw %v, want [%d]", freed, ptr)
	}
	if live, _ := b.Live(ctx); live != 0 {
		t.Fatalf("Live() = %d, want 0", live)
	}

	if err := b.Free(ctx, ptr); err == nil {
		t.Error("double Free should trap")
	}
	if _, err := b.Call(ctx, ptr, wasm.OpGet, []int64{0}); err == nil {
		t.Error("Call on freed node should trap")
	}

	// the engine survives traps
	if _, err := b.Allocate(ctx); err != nil {
		t.Fatalf("Allocate after trap error = %v", err)
	}
}

func TestCallRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	b := newBridge(t)
	ptr, _ := b.Allocate(ctx)

	if _, err := b.Call(ctx, ptr, 99, []int64{0}); err == nil {
		t.Error("unknown op should trap")
	}
	if _, err := b.Call(ctx, ptr, wasm.OpGet, []int64{wasm.Fields}); !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("field out of range error = %v, want ErrInvalidArgs", err)
	}
	if _, err := b.Call(ctx, ptr, wasm.OpSet, []int64{0, 1, 2}); !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("too many args error = %v, want ErrInvalidArgs", err)
	}
	if _, err := b.Call(ctx, 0, wasm.OpGet, []int64{0}); err == nil {
		t.Error("null pointer should trap")
	}
	if _, err := b.Call(ctx, 500, wasm.OpGet, []int64{0}); err == nil {
		t.Error("unallocated pointer should trap")
	}
}

func TestArenaExhaustion(t *testing.T) {
	ctx := context.Background()
	b := newBridge(t)

	for i := 1; i < wasm.Capacity; i++ {
		if _, err := b.Allocate(ctx); err != nil {
			t.Fatalf("Allocate #%d error = %v", i, err)
		}
	}
	if _, err := b.Allocate(ctx); !errors.Is(err, ErrExhausted) {
		t.Fatalf("Allocate past capacity error = %v, want ErrExhausted", err)
	}
}

func TestClosedBridge(t *testing.T) {
	ctx := context.Background()
	b, err := New(ctx)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := b.Close(ctx); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := b.Allocate(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Allocate after Close error = %v, want ErrClosed", err)
	}
}

func TestMultipleBridges(t *testing.T) {
	ctx := context.Background()
	b1 := newBridge(t)
	b2 := newBridge(t)

	p1, _ := b1.Allocate(ctx)
	p2, _ := b2.Allocate(ctx)
	b1.Call(ctx, p1, wasm.OpSet, []int64{0, 1})
	b2.Call(ctx, p2, wasm.OpSet, []int64{0, 2})

	v1, _ := b1.Call(ctx, p1, wasm.OpGet, []int64{0})
	v2, _ := b2.Call(ctx, p2, wasm.OpGet, []int64{0})
	if v1 != 1 || v2 != 2 {
		t.Errorf("bridges share state: got (%d, %d)", v1, v2)
	}
	if b1.MemorySize() == 0 {
		t.Error("MemorySize() = 0")
	}
}
