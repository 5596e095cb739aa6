package codegen

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// stringHeaderType is the hard-coded {data*, len: i64, cap: i64} ABI layout
// (§6): inlining byte_at/len and materializing string constants both depend
// on this exact field order.
func stringHeaderType() *types.StructType {
	return types.NewStruct(types.NewPointer(types.I8), types.I64, types.I64)
}

// stringPool deduplicates static string constants content -> header
// pointer, with a parallel C-string pool for call sites that can use the
// raw bytes directly (the _cstr variants of §4.3).
type stringPool struct {
	module    *ir.Module
	headerTy  *types.StructType
	counter   *int
	headers   map[string]*ir.Global // content -> pointer to {data,len,cap}
	cstrings  map[string]*ir.Global // content -> pointer to raw bytes
}

func newStringPool(module *ir.Module, counter *int) *stringPool {
	return &stringPool{
		module:   module,
		headerTy: stringHeaderType(),
		counter:  counter,
		headers:  make(map[string]*ir.Global),
		cstrings: make(map[string]*ir.Global),
	}
}

func (p *stringPool) nextSymbol(prefix string) string {
	*p.counter++
	return fmt.Sprintf("%s.%d", prefix, *p.counter)
}

// rawBytes returns (and caches) the raw null-terminated byte array global
// for a string constant.
func (p *stringPool) rawBytes(s string) *ir.Global {
	if g, ok := p.cstrings[s]; ok {
		return g
	}
	data := constant.NewCharArrayFromString(s + "\x00")
	g := p.module.NewGlobalDef(p.nextSymbol(".cstr"), data)
	g.Linkage = enum.LinkagePrivate
	g.Immutable = true
	p.cstrings[s] = g
	return g
}

// header returns (and caches) the string-header global for a constant,
// pointing at the raw bytes with len = byte length and cap = len.
func (p *stringPool) header(s string) *ir.Global {
	if g, ok := p.headers[s]; ok {
		return g
	}
	bytes := p.rawBytes(s)
	arrTy := bytes.ContentType
	zero := constant.NewInt(types.I64, 0)
	dataPtr := constant.NewGetElementPtr(arrTy, bytes, zero, zero)
	init := constant.NewStruct(p.headerTy,
		dataPtr,
		constant.NewInt(types.I64, int64(len(s))),
		constant.NewInt(types.I64, int64(len(s))),
	)
	g := p.module.NewGlobalDef(p.nextSymbol(".str"), init)
	g.Linkage = enum.LinkagePrivate
	g.Immutable = true
	p.headers[s] = g
	return g
}

// HeaderPtr returns the pointer operand a string constant lowers to.
func (p *stringPool) HeaderPtr(s string) value.Value {
	return p.header(s)
}

// CStrPtr returns the raw-bytes pointer a string constant lowers to when
// used in a _cstr call-site substitution.
func (p *stringPool) CStrPtr(s string) value.Value {
	bytes := p.rawBytes(s)
	zero := constant.NewInt(types.I64, 0)
	return constant.NewGetElementPtr(bytes.ContentType, bytes, zero, zero)
}
