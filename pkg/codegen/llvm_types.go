package codegen

import (
	"fmt"

	"github.com/llir/llvm/ir/types"

	"github.com/bmb-lang/mirback/pkg/mir"
)

// typeTable maps the MIR->IR type mapping described in §4.7: primitive
// widths as declared, Char=i32, Unit=i8, and String/StructPtr/Enum/Array/Ptr
// all mapping to a generic pointer. Named structs are materialized once and
// cached so repeated lookups of the same struct name yield identical
// *types.StructType values (required for llir/llvm's structural identity).
type typeTable struct {
	program      *mir.Program
	namedStructs map[string]*types.StructType
	opaquePtr    *types.PointerType
}

func newTypeTable(program *mir.Program) *typeTable {
	return &typeTable{
		program:      program,
		namedStructs: make(map[string]*types.StructType),
		// llir/llvm v0.3.6 predates LLVM's opaque-pointer syntax; every
		// MIR pointer-like type is therefore rendered as a pointer to i8,
		// used the same way opaque `ptr` would be: as an untyped address.
		// Where an instruction needs a typed pointer (a load, store or GEP
		// of a specific element type) the i8* value is bitcast first.
		opaquePtr: types.NewPointer(types.I8),
	}
}

// llvmType implements the canonical MIR type -> IR type mapping.
func (tt *typeTable) llvmType(t *mir.Type) types.Type {
	if t == nil {
		return types.Void
	}
	switch t.Kind {
	case mir.I32, mir.U32:
		return types.I32
	case mir.I64, mir.U64:
		return types.I64
	case mir.F64:
		return types.Double
	case mir.Bool:
		return types.I1
	case mir.Char:
		return types.I32
	case mir.Unit:
		return types.I8
	case mir.String, mir.StructPtr, mir.Enum, mir.Array, mir.Ptr:
		return tt.opaquePtr
	case mir.Struct:
		return tt.structType(t.Name)
	case mir.Tuple:
		return tt.tupleType(t)
	default:
		return tt.opaquePtr
	}
}

// structType materializes (once) the named IR struct type for a MIR struct
// definition, in field-declaration order.
func (tt *typeTable) structType(name string) *types.StructType {
	if st, ok := tt.namedStructs[name]; ok {
		return st
	}
	def, ok := tt.program.Structs[name]
	if !ok {
		// No definition in the program: register an empty named struct
		// under this name. Nothing fills it in later.
		st := types.NewStruct()
		st.Name = sanitizeTypeName(name)
		tt.namedStructs[name] = st
		return st
	}
	fields := make([]types.Type, len(def.Fields))
	for i, f := range def.Fields {
		fields[i] = tt.llvmType(f.Type)
	}
	st := types.NewStruct(fields...)
	st.Name = sanitizeTypeName(name)
	tt.namedStructs[name] = st
	return st
}

// tupleType builds (or reuses, structurally) a literal struct type for a
// MIR tuple. Anonymous literal structs with identical field sequences are
// accepted as structurally equal by LLVM even when built independently, so
// no cache keyed by shape is required here -- equality is established at
// the type level, not by identity (see coerceValueAt and sameShape).
func (tt *typeTable) tupleType(t *mir.Type) *types.StructType {
	fields := make([]types.Type, len(t.Elems))
	for i, e := range t.Elems {
		fields[i] = tt.llvmType(e)
	}
	return types.NewStruct(fields...)
}

// sameShape reports whether two struct types have identical field sequences,
// used to accept structurally-equal anonymous tuple types at PHI join
// points even when their nominal identities differ (§4.7).
func sameShape(a, b *types.StructType) bool {
	if len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		if !a.Fields[i].Equal(b.Fields[i]) {
			return false
		}
	}
	return true
}

func sanitizeTypeName(name string) string {
	if name == "" {
		return "anon"
	}
	return name
}

var errUnsupportedType = func(t *mir.Type) error {
	return fmt.Errorf("codegen: unsupported MIR type %v", t)
}
