//go:build !race

package nativebridge

import (
	"context"
	"errors"
	"testing"

	"github.com/Gaurav-Gosain/nativebridge/internal/handle"
)

// Note: Fuzz tests are disabled when running with -race because
// starting many engines is slow with race detection enabled.

// FuzzInvoke tests that arbitrary calls never panic and always fail with a
// bridge error kind.
func FuzzInvoke(f *testing.F) {
	seeds := []struct {
		op    uint32
		field int64
		v     int64
	}{
		{OpGet, 0, 0},
		{OpSet, 1, 42},
		{OpAdd, 7, -1},
		{OpSet, 8, 1},
		{OpGet, -1, 0},
		{3, 0, 0},
		{1 << 31, 2, 2},
	}
	for _, s := range seeds {
		f.Add(s.op, s.field, s.v)
	}

	f.Fuzz(func(t *testing.T, op uint32, field, v int64) {
		ctx := context.Background()
		s, err := Open(ctx, withRegistry(handle.NewRegistry()))
		if err != nil {
			return // engine start issues are acceptable
		}
		defer s.Close()

		obj, err := s.Create(ctx)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := obj.Invoke(ctx, op, field, v)
		if err != nil {
			if !errors.Is(err, ErrForeignRuntime) {
				t.Fatalf("Invoke(%d, %d, %d) error = %v, want ErrForeignRuntime", op, field, v, err)
			}
		} else if op == OpSet && got != v {
			t.Fatalf("Invoke(set, %d, %d) = %d", field, v, got)
		}

		// The session stays usable after a fault.
		if _, err := obj.Invoke(ctx, OpGet, 0); err != nil {
			t.Fatalf("Invoke after fault error = %v", err)
		}
		if err := obj.Release(ctx); err != nil {
			t.Fatalf("Release() error = %v", err)
		}
	})
}
