package wasm

// Binary format constants.
const (
	magic   = 0x6d736100 // "\0asm"
	version = 0x1

	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionCode     = 10

	kindFunc   = 0x00
	kindMemory = 0x02

	valI32 = 0x7f
	valI64 = 0x7e

	funcTypeByte = 0x60
	blockEmpty   = 0x40
)

// Opcodes used by the node engine.
const (
	opUnreachable = 0x00
	opIf          = 0x04
	opEnd         = 0x0b
	opReturn      = 0x0f
	opCall        = 0x10
	opLocalGet    = 0x20
	opLocalSet    = 0x21
	opGlobalGet   = 0x23
	opGlobalSet   = 0x24
	opI64Load     = 0x29
	opI32Load8U   = 0x2d
	opI64Store    = 0x37
	opI32Store8   = 0x3a
	opI32Const    = 0x41
	opI32Eqz      = 0x45
	opI32Eq       = 0x46
	opI32GeU      = 0x4f
	opI32Add      = 0x6a
	opI32Sub      = 0x6b
	opI32Or       = 0x72
	opI32Shl      = 0x74
	opI64Add      = 0x7c
)

type writer struct {
	buf []byte
}

func (w *writer) bytes() []byte { return w.buf }

func (w *writer) put(b ...byte) { w.buf = append(w.buf, b...) }

func (w *writer) u32le(v uint32) {
	w.buf = append(w.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// u32 writes an unsigned LEB128 value.
func (w *writer) u32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf = append(w.buf, b)
		if v == 0 {
			return
		}
	}
}

// i32 writes a signed LEB128 value.
func (w *writer) i32(v int32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		w.buf = append(w.buf, b)
		if done {
			return
		}
	}
}

func (w *writer) name(s string) {
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) section(id byte, body *writer) {
	w.put(id)
	w.u32(uint32(len(body.buf)))
	w.buf = append(w.buf, body.buf...)
}

// code emits function bodies.
type code struct {
	writer
}

func (c *code) localGet(i uint32) *code  { c.put(opLocalGet); c.u32(i); return c }
func (c *code) localSet(i uint32) *code  { c.put(opLocalSet); c.u32(i); return c }
func (c *code) globalGet(i uint32) *code { c.put(opGlobalGet); c.u32(i); return c }
func (c *code) globalSet(i uint32) *code { c.put(opGlobalSet); c.u32(i); return c }
func (c *code) i32Const(v int32) *code   { c.put(opI32Const); c.i32(v); return c }
func (c *code) call(fn uint32) *code     { c.put(opCall); c.u32(fn); return c }
func (c *code) op(ops ...byte) *code     { c.put(ops...); return c }
func (c *code) ifEmpty() *code           { c.put(opIf, blockEmpty); return c }

// mem emits a load or store with its memarg.
func (c *code) mem(op byte, align, offset uint32) *code {
	c.put(op)
	c.u32(align)
	c.u32(offset)
	return c
}

// trapIfSet emits "if (top != 0) unreachable" for the i32 on the stack.
func (c *code) trapIfSet() *code {
	return c.ifEmpty().op(opUnreachable, opEnd)
}
