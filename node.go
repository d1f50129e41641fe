package nativebridge

import (
	"context"
	"fmt"

	"github.com/Gaurav-Gosain/nativebridge/wasm"
)

// Operations understood by the node engine.
const (
	OpGet uint32 = wasm.OpGet
	OpSet uint32 = wasm.OpSet
	OpAdd uint32 = wasm.OpAdd
)

// Field is a node property.
type Field int

const (
	FieldWidth Field = iota
	FieldHeight
	FieldFlexGrow
	FieldFlexShrink
	FieldAlignItems
	FieldAlignSelf
	FieldAlignContent
	FieldMargin
)

var fieldNames = [...]string{
	FieldWidth:        "width",
	FieldHeight:       "height",
	FieldFlexGrow:     "flex-grow",
	FieldFlexShrink:   "flex-shrink",
	FieldAlignItems:   "align-items",
	FieldAlignSelf:    "align-self",
	FieldAlignContent: "align-content",
	FieldMargin:       "margin",
}

func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// ParseField converts a name such as "width" to a Field.
func ParseField(name string) (Field, error) {
	for i, n := range fieldNames {
		if n == name {
			return Field(i), nil
		}
	}
	return 0, fmt.Errorf("unknown field: %q", name)
}

// Fields returns every node field in order.
func Fields() []Field {
	fs := make([]Field, len(fieldNames))
	for i := range fs {
		fs[i] = Field(i)
	}
	return fs
}

// Node is a layout node living in the node engine.
type Node struct {
	obj *Object
}

// NewNode allocates a node in s. s must run the node engine, which is the
// default foreign runtime.
func NewNode(ctx context.Context, s *Session) (*Node, error) {
	obj, err := s.Create(ctx)
	if err != nil {
		return nil, err
	}
	return &Node{obj: obj}, nil
}

// Object returns the underlying object.
func (n *Node) Object() *Object { return n.obj }

// Handle returns the node's handle.
func (n *Node) Handle() Handle { return n.obj.Handle() }

// Get returns the value of f.
func (n *Node) Get(ctx context.Context, f Field) (int64, error) {
	return n.obj.Invoke(ctx, OpGet, int64(f))
}

// Set stores v in f.
func (n *Node) Set(ctx context.Context, f Field, v int64) error {
	_, err := n.obj.Invoke(ctx, OpSet, int64(f), v)
	return err
}

// Add adds delta to f and returns the new value.
func (n *Node) Add(ctx context.Context, f Field, delta int64) (int64, error) {
	return n.obj.Invoke(ctx, OpAdd, int64(f), delta)
}

// SetAlign stores a in one of the align fields.
func (n *Node) SetAlign(ctx context.Context, f Field, a Align) error {
	if err := checkAlignField(f); err != nil {
		return err
	}
	return n.Set(ctx, f, int64(a.Int()))
}

// Align reads one of the align fields.
func (n *Node) Align(ctx context.Context, f Field) (Align, error) {
	if err := checkAlignField(f); err != nil {
		return 0, err
	}
	v, err := n.Get(ctx, f)
	if err != nil {
		return 0, err
	}
	return AlignFromInt(int(v))
}

func checkAlignField(f Field) error {
	switch f {
	case FieldAlignItems, FieldAlignSelf, FieldAlignContent:
		return nil
	}
	return fmt.Errorf("%s is not an align field", f)
}

// Free releases the node. It is safe to call more than once.
func (n *Node) Free(ctx context.Context) error {
	return n.obj.Release(ctx)
}
