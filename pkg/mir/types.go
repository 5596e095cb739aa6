// Package mir defines the mid-level intermediate representation consumed by
// the LLVM backend: programs, functions, basic blocks, instructions and
// types. Construction, optimization and validation of MIR itself belongs to
// upstream collaborators; this package only describes the shape of the data
// they hand us.
package mir

import "fmt"

// TypeKind tags the variants of Type.
type TypeKind int

const (
	I32 TypeKind = iota
	I64
	U32
	U64
	F64
	Bool
	Char // Unicode codepoint, 32-bit
	Unit
	String // pointer to a {data*, len, cap} header
	Struct
	StructPtr
	Enum
	Array
	Ptr
	Tuple
)

// Type is MIR's tagged-sum type representation.
type Type struct {
	Kind TypeKind

	// Struct / StructPtr / Enum carry a name into the program's
	// struct/enum definition tables.
	Name string

	// Enum variants, in declaration order (name only; payload arity is
	// looked up by name in the program's enum table when needed).
	Variants []string

	// Array / Ptr carry an element type.
	Elem *Type

	// Array carries a fixed size.
	Size int

	// Tuple carries an ordered element-type list.
	Elems []*Type
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case U32:
		return "u32"
	case U64:
		return "u64"
	case F64:
		return "f64"
	case Bool:
		return "bool"
	case Char:
		return "char"
	case Unit:
		return "unit"
	case String:
		return "string"
	case Struct:
		return t.Name
	case StructPtr:
		return "*" + t.Name
	case Enum:
		return t.Name
	case Array:
		return fmt.Sprintf("[%d]%s", t.Size, t.Elem)
	case Ptr:
		return "ptr<" + t.Elem.String() + ">"
	case Tuple:
		return "tuple"
	default:
		return "?"
	}
}

// IsInteger reports whether t is one of the fixed-width integer kinds.
func (t *Type) IsInteger() bool {
	switch t.Kind {
	case I32, I64, U32, U64, Char:
		return true
	default:
		return false
	}
}

// IsUnsigned reports whether t is an unsigned integer kind.
func (t *Type) IsUnsigned() bool {
	return t.Kind == U32 || t.Kind == U64
}

// IsPointerLike reports whether t lowers to LLVM's opaque pointer type.
func (t *Type) IsPointerLike() bool {
	switch t.Kind {
	case String, StructPtr, Enum, Array, Ptr:
		return true
	default:
		return false
	}
}

// IntWidth returns the bit width of an integer type (Char counts as 32 and
// Bool as 1), or 0 for any other type.
func (t *Type) IntWidth() int {
	switch t.Kind {
	case I32, U32:
		return 32
	case I64, U64:
		return 64
	case Char:
		return 32
	case Bool:
		return 1
	default:
		return 0
	}
}

// StructField is one (name, type) pair in a struct definition.
type StructField struct {
	Name string
	Type *Type
}

// StructDef is an entry in MirProgram's struct-name -> fields table.
type StructDef struct {
	Name   string
	Fields []StructField
}

// FieldIndex returns the ordinal position of a field by name, or -1.
func (d *StructDef) FieldIndex(name string) int {
	for i, f := range d.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}
