package codegen

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/bmb-lang/mirback/pkg/mir"
)

// typeOfPlace returns the MIR type a named place carries, consulting
// parameters, locals, and destination types recorded as instructions are
// emitted (temporaries have no declared type until their producing
// instruction runs).
func (fs *funcState) typeOfPlace(name string) *mir.Type {
	if t, ok := fs.fn.ParamType(name); ok {
		return t
	}
	if t, ok := fs.fn.LocalType(name); ok {
		return t
	}
	if t, ok := fs.destTypes[name]; ok {
		return t
	}
	return nil
}

// mirTypeOf returns the MIR type of an operand.
func (fs *funcState) mirTypeOf(op mir.Operand) *mir.Type {
	if op.IsConst {
		if op.Const.Type != nil {
			return op.Const.Type
		}
		return defaultConstType(op.Const)
	}
	return fs.typeOfPlace(op.Place.Name)
}

func defaultConstType(c mir.Constant) *mir.Type {
	switch c.Kind {
	case mir.ConstInt:
		return &mir.Type{Kind: mir.I64}
	case mir.ConstFloat:
		return &mir.Type{Kind: mir.F64}
	case mir.ConstBool:
		return &mir.Type{Kind: mir.Bool}
	case mir.ConstChar:
		return &mir.Type{Kind: mir.Char}
	case mir.ConstString:
		return &mir.Type{Kind: mir.String}
	default:
		return &mir.Type{Kind: mir.Unit}
	}
}

// inferPhiType determines the IR type a PHI node carries: the producer's
// declared Type field when present, otherwise the first incoming operand's
// type, falling back to the generic pointer for an empty or unresolvable
// set (§4.7).
func (fs *funcState) inferPhiType(inst *mir.Inst) types.Type {
	if inst.Type != nil {
		return fs.prog.tt.llvmType(inst.Type)
	}
	for _, edge := range inst.PhiIncoming {
		if t := fs.mirTypeOf(edge.Value); t != nil {
			return fs.prog.tt.llvmType(t)
		}
	}
	return fs.prog.tt.ptr()
}

// coerceValueAt inserts whatever cast instructions are needed to turn val
// (of MIR type srcType) into the LLVM type dst, appending them to block.
// Structurally-equal anonymous struct types are accepted without a cast
// (§4.7); integer widths are sign-extended or truncated; any integer value
// crossing a pointer boundary goes through inttoptr/ptrtoint.
func (fs *funcState) coerceValueAt(block *ir.Block, val value.Value, srcType *mir.Type, dst types.Type) value.Value {
	src := val.Type()
	if src.Equal(dst) {
		return val
	}

	if srcSt, ok := src.(*types.StructType); ok {
		if dstSt, ok := dst.(*types.StructType); ok && sameShape(srcSt, dstSt) {
			return val
		}
	}

	srcInt, srcIsInt := src.(*types.IntType)
	dstInt, dstIsInt := dst.(*types.IntType)
	if srcIsInt && dstIsInt {
		switch {
		case srcInt.BitSize < dstInt.BitSize:
			if srcType != nil && srcType.IsUnsigned() {
				return block.NewZExt(val, dst)
			}
			return block.NewSExt(val, dst)
		case srcInt.BitSize > dstInt.BitSize:
			return block.NewTrunc(val, dst)
		default:
			return val
		}
	}

	_, srcIsPtr := src.(*types.PointerType)
	_, dstIsPtr := dst.(*types.PointerType)
	if srcIsInt && dstIsPtr {
		return block.NewIntToPtr(val, dst)
	}
	if srcIsPtr && dstIsInt {
		return block.NewPtrToInt(val, dst)
	}
	if srcIsPtr && dstIsPtr {
		return block.NewBitCast(val, dst)
	}

	if _, isFloat := src.(*types.FloatType); isFloat && dstIsInt {
		return block.NewFPToSI(val, dst)
	}
	if _, isFloat := dst.(*types.FloatType); srcIsInt && isFloat {
		return block.NewSIToFP(val, dst)
	}

	return val
}

// coerceArg coerces one call argument to a callee parameter type, used both
// for user-function calls and runtime-helper calls.
func (fs *funcState) coerceArg(block *ir.Block, op mir.Operand, val value.Value, dst types.Type) value.Value {
	return fs.coerceValueAt(block, val, fs.mirTypeOf(op), dst)
}
