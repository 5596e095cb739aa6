package mir

import "strconv"

// ConstKind tags the variants of a Constant operand.
type ConstKind int

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstBool
	ConstChar
	ConstString
	ConstUnit
)

// Constant is a compile-time-known operand value.
type Constant struct {
	Kind  ConstKind
	Int   int64
	Float float64
	Bool  bool
	Char  rune
	Str   string
	Type  *Type
}

// Place is a named, stable MIR value: either a local, a parameter, or a
// temporary introduced by lowering. Names beginning with TempPrefix are
// always SSA-eligible (see the classifier).
type Place struct {
	Name string
}

// TempPrefix marks a place name as compiler-introduced and always SSA.
const TempPrefix = "%t"

// IsTemp reports whether a place name is a lowering-introduced temporary.
func (p Place) IsTemp() bool {
	return len(p.Name) >= len(TempPrefix) && p.Name[:len(TempPrefix)] == TempPrefix
}

// Operand is either a Constant or a Place.
type Operand struct {
	IsConst bool
	Const   Constant
	Place   Place
}

// ConstOperand builds an Operand wrapping a Constant.
func ConstOperand(c Constant) Operand {
	return Operand{IsConst: true, Const: c}
}

// PlaceOperand builds an Operand wrapping a named Place.
func PlaceOperand(name string) Operand {
	return Operand{Place: Place{Name: name}}
}

func (o Operand) String() string {
	if o.IsConst {
		switch o.Const.Kind {
		case ConstInt:
			return strconv.FormatInt(o.Const.Int, 10)
		case ConstString:
			return "\"" + o.Const.Str + "\""
		case ConstBool:
			if o.Const.Bool {
				return "true"
			}
			return "false"
		default:
			return "<const>"
		}
	}
	return o.Place.Name
}
