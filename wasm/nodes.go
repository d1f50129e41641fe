// Package wasm builds the WebAssembly node engine driven by the bridge.
//
// The engine keeps an arena of nodes in linear memory. Each node is a record
// of Fields int64 slots. Pointers are handed out by a bump allocator and are
// never reused; once the arena is exhausted alloc returns 0. Every access to
// a freed or unknown pointer, an unknown op or an out-of-range field traps.
//
// Exports:
//
//	alloc() -> i32                       allocate a node, 0 when exhausted
//	free(ptr i32)                        release a node, calls env.host_freed
//	call(ptr, op, field i32, v i64) -> i64
//	live() -> i32                        number of allocated nodes
//	memory
package wasm

// Node engine limits and operations.
const (
	// Capacity bounds the number of pointers one engine instance hands out
	// over its lifetime. Pointer 0 is reserved for "no node".
	Capacity = 2048
	// Fields is the number of int64 slots per node.
	Fields = 8

	OpGet = 0 // returns the field
	OpSet = 1 // stores the value, returns it
	OpAdd = 2 // adds the value, returns the new field

	recordShift = 6 // 64-byte records: Fields * 8
	flagsBase   = Capacity << recordShift
	pageSize    = 65536
	pages       = (flagsBase + Capacity + pageSize - 1) / pageSize
)

// Import and export names.
const (
	HostModule  = "env"
	HostFreed   = "host_freed"
	ExportAlloc = "alloc"
	ExportFree  = "free"
	ExportCall  = "call"
	ExportLive  = "live"
)

// Function indices; the host import comes first.
const (
	fnHostFreed = iota
	fnAlloc
	fnFree
	fnCall
	fnLive
	fnCheck
)

const (
	globalNext = 0
	globalLive = 1
)

// Nodes is the encoded node engine module.
var Nodes = buildNodes()

func buildNodes() []byte {
	w := &writer{}
	w.u32le(magic)
	w.u32le(version)

	// types: 0 (i32)->(), 1 ()->(i32), 2 (i32 i32 i32 i64)->(i64)
	types := &writer{}
	types.u32(3)
	types.put(funcTypeByte, 1, valI32, 0)
	types.put(funcTypeByte, 0, 1, valI32)
	types.put(funcTypeByte, 4, valI32, valI32, valI32, valI64, 1, valI64)
	w.section(sectionType, types)

	imports := &writer{}
	imports.u32(1)
	imports.name(HostModule)
	imports.name(HostFreed)
	imports.put(kindFunc)
	imports.u32(0)
	w.section(sectionImport, imports)

	funcs := &writer{}
	funcs.u32(5)
	funcs.u32(1) // alloc
	funcs.u32(0) // free
	funcs.u32(2) // call
	funcs.u32(1) // live
	funcs.u32(0) // check
	w.section(sectionFunction, funcs)

	mem := &writer{}
	mem.u32(1)
	mem.put(0x00)
	mem.u32(pages)
	w.section(sectionMemory, mem)

	globals := &writer{}
	globals.u32(2)
	globals.put(valI32, 1, opI32Const)
	globals.i32(1)
	globals.put(opEnd)
	globals.put(valI32, 1, opI32Const)
	globals.i32(0)
	globals.put(opEnd)
	w.section(sectionGlobal, globals)

	exports := &writer{}
	exports.u32(5)
	for _, e := range []struct {
		name string
		kind byte
		idx  uint32
	}{
		{"memory", kindMemory, 0},
		{ExportAlloc, kindFunc, fnAlloc},
		{ExportFree, kindFunc, fnFree},
		{ExportCall, kindFunc, fnCall},
		{ExportLive, kindFunc, fnLive},
	} {
		exports.name(e.name)
		exports.put(e.kind)
		exports.u32(e.idx)
	}
	w.section(sectionExport, exports)

	bodies := []*code{allocBody(), freeBody(), callBody(), liveBody(), checkBody()}
	codes := &writer{}
	codes.u32(uint32(len(bodies)))
	for _, b := range bodies {
		codes.u32(uint32(len(b.buf)))
		codes.put(b.buf...)
	}
	w.section(sectionCode, codes)

	return w.bytes()
}

func allocBody() *code {
	c := &code{}
	c.u32(0) // no locals
	c.globalGet(globalNext).i32Const(Capacity).op(opI32GeU)
	c.ifEmpty().i32Const(0).op(opReturn, opEnd)
	// flags[next] = 1
	c.globalGet(globalNext).i32Const(1).mem(opI32Store8, 0, flagsBase)
	c.globalGet(globalLive).i32Const(1).op(opI32Add).globalSet(globalLive)
	// return next++
	c.globalGet(globalNext)
	c.globalGet(globalNext).i32Const(1).op(opI32Add).globalSet(globalNext)
	c.op(opEnd)
	return c
}

func freeBody() *code {
	c := &code{}
	c.u32(0)
	c.localGet(0).call(fnCheck)
	c.localGet(0).i32Const(0).mem(opI32Store8, 0, flagsBase)
	c.globalGet(globalLive).i32Const(1).op(opI32Sub).globalSet(globalLive)
	c.localGet(0).call(fnHostFreed)
	c.op(opEnd)
	return c
}

// callBody: params ptr=0 op=1 field=2 v=3; locals addr=4 (i32) sum=5 (i64).
func callBody() *code {
	c := &code{}
	c.u32(2)
	c.u32(1)
	c.put(valI32)
	c.u32(1)
	c.put(valI64)

	c.localGet(0).call(fnCheck)
	c.localGet(2).i32Const(Fields).op(opI32GeU).trapIfSet()

	// addr = ptr<<6 + field<<3
	c.localGet(0).i32Const(recordShift).op(opI32Shl)
	c.localGet(2).i32Const(3).op(opI32Shl)
	c.op(opI32Add).localSet(4)

	// get
	c.localGet(1).op(opI32Eqz).ifEmpty()
	c.localGet(4).mem(opI64Load, 3, 0).op(opReturn)
	c.op(opEnd)

	// set
	c.localGet(1).i32Const(OpSet).op(opI32Eq).ifEmpty()
	c.localGet(4).localGet(3).mem(opI64Store, 3, 0)
	c.localGet(3).op(opReturn)
	c.op(opEnd)

	// add
	c.localGet(1).i32Const(OpAdd).op(opI32Eq).ifEmpty()
	c.localGet(4).mem(opI64Load, 3, 0).localGet(3).op(opI64Add).localSet(5)
	c.localGet(4).localGet(5).mem(opI64Store, 3, 0)
	c.localGet(5).op(opReturn)
	c.op(opEnd)

	c.op(opUnreachable, opEnd)
	return c
}

func liveBody() *code {
	c := &code{}
	c.u32(0)
	c.globalGet(globalLive).op(opEnd)
	return c
}

// checkBody traps unless ptr is an allocated, not yet freed node.
func checkBody() *code {
	c := &code{}
	c.u32(0)
	c.localGet(0).op(opI32Eqz)
	c.localGet(0).globalGet(globalNext).op(opI32GeU)
	c.op(opI32Or).trapIfSet()
	c.localGet(0).mem(opI32Load8U, 0, flagsBase).op(opI32Eqz).trapIfSet()
	c.op(opEnd)
	return c
}
