package codegen

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"

	"github.com/bmb-lang/mirback/pkg/mir"
)

// RuntimeTable is the declared vocabulary of runtime helpers (§4.3): the
// declarations themselves plus the bookkeeping the instruction emitter
// needs to pick string-equality vs pointer comparison, hoist read-only
// calls out of loops, and substitute _cstr call-site variants.
type RuntimeTable struct {
	Funcs         map[string]*ir.Func
	ReturnsString map[string]bool   // producers whose MIR return type is String
	CStrVariant   map[string]string // name -> its _cstr variant, if any
}

func newRuntimeTable() *RuntimeTable {
	return &RuntimeTable{
		Funcs:         make(map[string]*ir.Func),
		ReturnsString: make(map[string]bool),
		CStrVariant:   make(map[string]string),
	}
}

// runtimeSpec describes one declared runtime function before attributes are
// attached; it is the per-row shape of the ~90-symbol table in §4.3.
type runtimeSpec struct {
	name         string
	params       []types.Type
	ret          types.Type
	readOnlyQuery bool // memory(argmem: read), nosync, speculatable, nofree, nocapture params
	returnsString bool
	cstrOf       string // this spec is the _cstr variant of `cstrOf`
}

func (tt *typeTable) ptr() types.Type { return tt.opaquePtr }

// DeclareRuntime declares all runtime functions on module and returns the
// lookup table used by the rest of the backend. It is the single entry
// point into this file, called once per program by the driver.
func DeclareRuntime(module *ir.Module, tt *typeTable) *RuntimeTable {
	table := newRuntimeTable()
	ptr := tt.ptr()

	specs := collectRuntimeSpecs(ptr)
	for _, s := range specs {
		fn := module.NewFunc(s.name, s.ret, paramsOf(s.params)...)
		fn.FuncAttrs = append(fn.FuncAttrs, enum.FuncAttrNoUnwind, enum.FuncAttrWillReturn)
		if s.readOnlyQuery {
			fn.FuncAttrs = append(fn.FuncAttrs,
				enum.FuncAttrArgMemOnly,
				enum.FuncAttrReadOnly,
				enum.FuncAttrNoSync,
				enum.FuncAttrSpeculatable,
				enum.FuncAttrNoFree,
			)
			for _, p := range fn.Params {
				if _, isPtr := p.Type().(*types.PointerType); isPtr {
					p.Attrs = append(p.Attrs, enum.ParamAttrNoCapture)
				}
			}
		}
		table.Funcs[s.name] = fn
		if s.returnsString {
			table.ReturnsString[s.name] = true
		}
		if s.cstrOf != "" {
			table.CStrVariant[s.cstrOf] = s.name
		}
	}
	return table
}

func paramsOf(types_ []types.Type) []*ir.Param {
	params := make([]*ir.Param, len(types_))
	for i, t := range types_ {
		params[i] = ir.NewParam("", t)
	}
	return params
}

// collectRuntimeSpecs builds the full declarative table: printing/input,
// numeric, strings, raw memory, vec/string-builder families, two hashmap
// families, file/process I/O, and concurrency primitives (§4.3).
func collectRuntimeSpecs(ptr types.Type) []runtimeSpec {
	var specs []runtimeSpec
	add := func(s runtimeSpec) { specs = append(specs, s) }

	// Printing and input.
	add(runtimeSpec{name: "println_i64", params: []types.Type{types.I64}, ret: types.Void})
	add(runtimeSpec{name: "print_i64", params: []types.Type{types.I64}, ret: types.Void})
	add(runtimeSpec{name: "println_f64", params: []types.Type{types.Double}, ret: types.Void})
	add(runtimeSpec{name: "print_f64", params: []types.Type{types.Double}, ret: types.Void})
	add(runtimeSpec{name: "print_str", params: []types.Type{ptr}, ret: types.Void})
	add(runtimeSpec{name: "println_str", params: []types.Type{ptr}, ret: types.Void})
	add(runtimeSpec{name: "read_int", params: nil, ret: types.I64})
	add(runtimeSpec{name: "assert", params: []types.Type{types.I1, ptr}, ret: types.Void})

	// Numeric.
	add(runtimeSpec{name: "abs", params: []types.Type{types.I64}, ret: types.I64})
	add(runtimeSpec{name: "min", params: []types.Type{types.I64, types.I64}, ret: types.I64})
	add(runtimeSpec{name: "max", params: []types.Type{types.I64, types.I64}, ret: types.I64})
	add(runtimeSpec{name: "sqrt", params: []types.Type{types.Double}, ret: types.Double})
	add(runtimeSpec{name: "i64_to_f64", params: []types.Type{types.I64}, ret: types.Double})
	add(runtimeSpec{name: "f64_to_i64", params: []types.Type{types.Double}, ret: types.I64})
	add(runtimeSpec{name: "i64_to_u64", params: []types.Type{types.I64}, ret: types.I64})
	add(runtimeSpec{name: "u64_to_f64", params: []types.Type{types.I64}, ret: types.Double})

	// Strings (several are inlined by the emitter -- §4.6 -- but are still
	// declared here so non-inlined call sites and attribute lookups work).
	add(runtimeSpec{name: "len", params: []types.Type{ptr}, ret: types.I64, readOnlyQuery: true})
	add(runtimeSpec{name: "byte_at", params: []types.Type{ptr, types.I64}, ret: types.I32, readOnlyQuery: true})
	add(runtimeSpec{name: "char_at", params: []types.Type{ptr, types.I64}, ret: types.I32, readOnlyQuery: true})
	add(runtimeSpec{name: "slice", params: []types.Type{ptr, types.I64, types.I64}, ret: ptr, readOnlyQuery: true, returnsString: true})
	add(runtimeSpec{name: "chr", params: []types.Type{types.I32}, ret: ptr, returnsString: true})
	add(runtimeSpec{name: "ord", params: []types.Type{types.I32}, ret: types.I32, readOnlyQuery: true})
	add(runtimeSpec{name: "string_eq", params: []types.Type{ptr, ptr}, ret: types.I32, readOnlyQuery: true})
	add(runtimeSpec{name: "string_from_cstr", params: []types.Type{ptr}, ret: ptr, returnsString: true})
	add(runtimeSpec{name: "string_concat", params: []types.Type{ptr, ptr}, ret: ptr, returnsString: true})
	add(runtimeSpec{name: "char_to_string", params: []types.Type{types.I32}, ret: ptr, returnsString: true})
	add(runtimeSpec{name: "int_to_string", params: []types.Type{types.I64}, ret: ptr, returnsString: true})
	add(runtimeSpec{name: "puts_cstr", params: []types.Type{ptr}, ret: types.Void})

	// Raw memory.
	add(runtimeSpec{name: "malloc", params: []types.Type{types.I64}, ret: ptr})
	add(runtimeSpec{name: "realloc", params: []types.Type{ptr, types.I64}, ret: ptr})
	add(runtimeSpec{name: "free", params: []types.Type{ptr}, ret: types.Void})
	add(runtimeSpec{name: "calloc", params: []types.Type{types.I64, types.I64}, ret: ptr})
	add(runtimeSpec{name: "load_u8", params: []types.Type{types.I64}, ret: types.I32, readOnlyQuery: true})
	add(runtimeSpec{name: "store_u8", params: []types.Type{types.I64, types.I32}, ret: types.Void})
	add(runtimeSpec{name: "load_i32", params: []types.Type{types.I64}, ret: types.I32, readOnlyQuery: true})
	add(runtimeSpec{name: "store_i32", params: []types.Type{types.I64, types.I32}, ret: types.Void})
	add(runtimeSpec{name: "load_i64", params: []types.Type{types.I64}, ret: types.I64})
	add(runtimeSpec{name: "store_i64", params: []types.Type{types.I64, types.I64}, ret: types.Void})
	add(runtimeSpec{name: "load_f64", params: []types.Type{types.I64}, ret: types.Double})
	add(runtimeSpec{name: "store_f64", params: []types.Type{types.I64, types.Double}, ret: types.Void})

	// Growable vector family.
	for _, op := range []struct {
		name   string
		params []types.Type
		ret    types.Type
	}{
		{"vec_new", nil, ptr},
		{"vec_with_capacity", []types.Type{types.I64}, ptr},
		{"vec_push", []types.Type{ptr, types.I64}, types.Void},
		{"vec_pop", []types.Type{ptr}, types.I64},
		{"vec_get", []types.Type{ptr, types.I64}, types.I64},
		{"vec_set", []types.Type{ptr, types.I64, types.I64}, types.Void},
		{"vec_len", []types.Type{ptr}, types.I64},
		{"vec_cap", []types.Type{ptr}, types.I64},
		{"vec_free", []types.Type{ptr}, types.Void},
		{"vec_clear", []types.Type{ptr}, types.Void},
	} {
		add(runtimeSpec{name: op.name, params: op.params, ret: op.ret})
	}

	// String-builder family.
	for _, op := range []struct {
		name   string
		params []types.Type
		ret    types.Type
	}{
		{"sb_new", nil, ptr},
		{"sb_with_capacity", []types.Type{types.I64}, ptr},
		{"sb_push", []types.Type{ptr, ptr}, types.Void},
		{"sb_push_char", []types.Type{ptr, types.I32}, types.Void},
		{"sb_push_int", []types.Type{ptr, types.I64}, types.Void},
		{"sb_push_escaped", []types.Type{ptr, ptr}, types.Void},
		{"sb_pop", []types.Type{ptr}, types.I32},
		{"sb_get", []types.Type{ptr, types.I64}, types.I32},
		{"sb_set", []types.Type{ptr, types.I64, types.I32}, types.Void},
		{"sb_len", []types.Type{ptr}, types.I64},
		{"sb_cap", []types.Type{ptr}, types.I64},
		{"sb_free", []types.Type{ptr}, types.Void},
		{"sb_clear", []types.Type{ptr}, types.Void},
	} {
		add(runtimeSpec{name: op.name, params: op.params, ret: op.ret})
	}
	add(runtimeSpec{name: "sb_build", params: []types.Type{ptr}, ret: ptr, returnsString: true})
	add(runtimeSpec{name: "sb_println", params: []types.Type{ptr}, ret: types.Void})

	// Integer-keyed hashmap family.
	for _, op := range []struct {
		name   string
		params []types.Type
		ret    types.Type
	}{
		{"hashmap_new", nil, ptr},
		{"hashmap_insert", []types.Type{ptr, types.I64, types.I64}, types.Void},
		{"hashmap_get", []types.Type{ptr, types.I64}, types.I64},
		{"hashmap_remove", []types.Type{ptr, types.I64}, types.I32},
		{"hashmap_contains", []types.Type{ptr, types.I64}, types.I32},
		{"hashmap_size", []types.Type{ptr}, types.I64},
		{"hashmap_free", []types.Type{ptr}, types.Void},
	} {
		add(runtimeSpec{name: op.name, params: op.params, ret: op.ret})
	}

	// String-keyed hashmap family.
	for _, op := range []struct {
		name   string
		params []types.Type
		ret    types.Type
	}{
		{"strmap_new", nil, ptr},
		{"strmap_insert", []types.Type{ptr, ptr, types.I64}, types.Void},
		{"strmap_get", []types.Type{ptr, ptr}, types.I64},
		{"strmap_remove", []types.Type{ptr, ptr}, types.I32},
		{"strmap_contains", []types.Type{ptr, ptr}, types.I32},
		{"strmap_size", []types.Type{ptr}, types.I64},
		{"strmap_free", []types.Type{ptr}, types.Void},
	} {
		add(runtimeSpec{name: op.name, params: op.params, ret: op.ret})
	}

	// File and process I/O.
	add(runtimeSpec{name: "read_file", params: []types.Type{ptr}, ret: ptr, returnsString: true})
	add(runtimeSpec{name: "write_file", params: []types.Type{ptr, ptr}, ret: types.I32})
	add(runtimeSpec{name: "write_file_newlines", params: []types.Type{ptr, ptr}, ret: types.I32})
	add(runtimeSpec{name: "file_exists", params: []types.Type{ptr}, ret: types.I32})
	add(runtimeSpec{name: "file_exists_cstr", params: []types.Type{ptr}, ret: types.I32, cstrOf: "file_exists"})
	add(runtimeSpec{name: "file_size", params: []types.Type{ptr}, ret: types.I64})
	add(runtimeSpec{name: "arg_count", params: nil, ret: types.I64})
	add(runtimeSpec{name: "get_arg", params: []types.Type{types.I64}, ret: ptr, returnsString: true})

	// Concurrency primitives.
	add(runtimeSpec{name: "bmb_thread_spawn", params: []types.Type{ptr, ptr}, ret: types.I64})
	add(runtimeSpec{name: "bmb_thread_join", params: []types.Type{types.I64}, ret: types.I64})
	add(runtimeSpec{name: "bmb_mutex_new", params: nil, ret: types.I64})
	add(runtimeSpec{name: "bmb_mutex_lock", params: []types.Type{types.I64}, ret: types.Void})
	add(runtimeSpec{name: "bmb_mutex_unlock", params: []types.Type{types.I64}, ret: types.Void})
	add(runtimeSpec{name: "bmb_mutex_free", params: []types.Type{types.I64}, ret: types.Void})
	add(runtimeSpec{name: "bmb_rwlock_new", params: nil, ret: types.I64})
	add(runtimeSpec{name: "bmb_rwlock_read_lock", params: []types.Type{types.I64}, ret: types.Void})
	add(runtimeSpec{name: "bmb_rwlock_read_unlock", params: []types.Type{types.I64}, ret: types.Void})
	add(runtimeSpec{name: "bmb_rwlock_write_lock", params: []types.Type{types.I64}, ret: types.Void})
	add(runtimeSpec{name: "bmb_rwlock_write_unlock", params: []types.Type{types.I64}, ret: types.Void})
	add(runtimeSpec{name: "bmb_rwlock_free", params: []types.Type{types.I64}, ret: types.Void})
	add(runtimeSpec{name: "bmb_condvar_new", params: nil, ret: types.I64})
	add(runtimeSpec{name: "bmb_condvar_wait", params: []types.Type{types.I64, types.I64}, ret: types.Void})
	add(runtimeSpec{name: "bmb_condvar_signal", params: []types.Type{types.I64}, ret: types.Void})
	add(runtimeSpec{name: "bmb_condvar_broadcast", params: []types.Type{types.I64}, ret: types.Void})
	add(runtimeSpec{name: "bmb_condvar_free", params: []types.Type{types.I64}, ret: types.Void})
	add(runtimeSpec{name: "bmb_barrier_new", params: []types.Type{types.I64}, ret: types.I64})
	add(runtimeSpec{name: "bmb_barrier_wait", params: []types.Type{types.I64}, ret: types.Void})
	add(runtimeSpec{name: "bmb_barrier_free", params: []types.Type{types.I64}, ret: types.Void})
	add(runtimeSpec{name: "bmb_channel_new", params: []types.Type{types.I64}, ret: types.I64})
	add(runtimeSpec{name: "bmb_channel_send", params: []types.Type{types.I64, types.I64}, ret: types.Void})
	add(runtimeSpec{name: "bmb_channel_recv", params: []types.Type{types.I64}, ret: types.I64})
	add(runtimeSpec{name: "bmb_channel_try_recv", params: []types.Type{types.I64, ptr}, ret: types.I32})
	add(runtimeSpec{name: "bmb_channel_recv_timeout", params: []types.Type{types.I64, types.I64, ptr}, ret: types.I32})
	add(runtimeSpec{name: "bmb_channel_free", params: []types.Type{types.I64}, ret: types.Void})
	add(runtimeSpec{name: "bmb_future_new", params: nil, ret: types.I64})
	add(runtimeSpec{name: "bmb_future_block_on", params: []types.Type{types.I64}, ret: types.I64})

	return specs
}

// intrinsicNames is the closed set of runtime calls the instruction
// emitter inlines directly instead of calling through (§4.6).
var intrinsicNames = map[string]bool{
	"i64_to_f64": true, "f64_to_i64": true,
	"load_i64": true, "store_i64": true, "load_f64": true, "store_f64": true,
	"load_u8": true, "store_u8": true, "load_i32": true, "store_i32": true,
	"byte_at": true, "len": true, "ord": true,
}

// returnTypeOf looks up the MIR return type a function table entry implies,
// used by the PHI-type-inference fallback (§4.7) for Call destinations.
func returnTypeOf(table *RuntimeTable, name string, userFns map[string]*mir.Function) *mir.Type {
	if fn, ok := userFns[name]; ok {
		return fn.ReturnType
	}
	if table.ReturnsString[name] {
		return &mir.Type{Kind: mir.String}
	}
	return nil
}
