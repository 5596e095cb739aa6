package codegen

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/bmb-lang/mirback/pkg/mir"
)

// valueOf resolves an operand to an IR value within block, loading
// memory-backed places (except array variables, whose slot pointer is the
// value) and materializing constants.
func (fs *funcState) valueOf(block *ir.Block, op mir.Operand) value.Value {
	if op.IsConst {
		return fs.constantValue(op.Const)
	}
	name := op.Place.Name
	if v, ok := fs.ssaVals[name]; ok {
		return v
	}
	if mv, ok := fs.memVars[name]; ok {
		if fs.arrayVars[name] {
			return mv.ptr
		}
		return block.NewLoad(mv.pointee, mv.ptr)
	}
	return constant.NewInt(types.I64, 0)
}

// shadowOrSext returns the sign-extended i64 view of a read-only i32
// parameter, reusing the shadow computed once in the entry block instead of
// re-extending at every use site (§4.4).
func (fs *funcState) shadowOrSext(block *ir.Block, name string) value.Value {
	if v, ok := fs.shadowI64[name]; ok {
		return v
	}
	v := fs.valueOf(block, mir.PlaceOperand(name))
	if it, ok := v.Type().(*types.IntType); ok && it.BitSize < 64 {
		return block.NewSExt(v, types.I64)
	}
	return v
}

// setDest records the value produced for inst.Dest, storing through to its
// stack slot when the classifier decided the name is memory-backed.
func (fs *funcState) setDest(block *ir.Block, inst *mir.Inst, val value.Value, t *mir.Type) {
	if inst.Dest == "" {
		return
	}
	fs.destTypes[inst.Dest] = t
	if mv, ok := fs.memVars[inst.Dest]; ok && !fs.arrayVars[inst.Dest] {
		block.NewStore(fs.coerceValueAt(block, val, t, mv.pointee), mv.ptr)
		return
	}
	fs.ssaVals[inst.Dest] = val
}

// emitInst dispatches one non-PHI MIR instruction (pass 2, §4.4/§4.6).
func (fs *funcState) emitInst(block *ir.Block, inst *mir.Inst) error {
	switch inst.Op {
	case mir.OpConst:
		fs.setDest(block, inst, fs.constantValue(inst.A.Const), inst.Type)

	case mir.OpCopy:
		fs.setDest(block, inst, fs.valueOf(block, inst.A), fs.mirTypeOf(inst.A))

	case mir.OpBinOp:
		return fs.emitBinOp(block, inst)

	case mir.OpUnaryOp:
		return fs.emitUnaryOp(block, inst)

	case mir.OpCast:
		val := fs.valueOf(block, inst.A)
		dst := fs.prog.tt.llvmType(inst.Type)
		fs.setDest(block, inst, fs.coerceValueAt(block, val, fs.mirTypeOf(inst.A), dst), inst.Type)

	case mir.OpCall:
		return fs.emitCall(block, inst)

	case mir.OpStructInit:
		return fs.emitStructInit(block, inst)

	case mir.OpFieldAccess:
		return fs.emitFieldAccess(block, inst)

	case mir.OpFieldStore:
		return fs.emitFieldStore(block, inst)

	case mir.OpEnumVariant:
		return fs.emitEnumVariant(block, inst)

	case mir.OpArrayInit, mir.OpArrayAlloc:
		return fs.emitArrayInit(block, inst)

	case mir.OpIndexLoad:
		return fs.emitIndexLoad(block, inst)

	case mir.OpIndexStore:
		return fs.emitIndexStore(block, inst)

	case mir.OpPtrOffset:
		return fs.emitPtrOffset(block, inst)

	case mir.OpPtrLoad:
		return fs.emitPtrLoad(block, inst)

	case mir.OpPtrStore:
		return fs.emitPtrStore(block, inst)

	case mir.OpTupleInit:
		return fs.emitTupleInit(block, inst)

	case mir.OpTupleExtract:
		return fs.emitTupleExtract(block, inst)

	default:
		return fs.emitConcurrencyOrAtomic(block, inst)
	}
	return nil
}

func (fs *funcState) emitBinOp(block *ir.Block, inst *mir.Inst) error {
	lt := fs.mirTypeOf(inst.A)
	rt := fs.mirTypeOf(inst.B)
	eitherString := (lt != nil && lt.Kind == mir.String) || (rt != nil && rt.Kind == mir.String)
	if eitherString && (inst.BinOp == mir.BEq || inst.BinOp == mir.BNe) {
		a := fs.valueOf(block, inst.A)
		b := fs.valueOf(block, inst.B)
		call := block.NewCall(fs.prog.runtime.Funcs["string_eq"], a, b)
		eq := block.NewICmp(enum.IPredNE, call, constant.NewInt(types.I32, 0))
		if inst.BinOp == mir.BNe {
			eq = block.NewICmp(enum.IPredEQ, call, constant.NewInt(types.I32, 0))
		}
		fs.setDest(block, inst, eq, &mir.Type{Kind: mir.Bool})
		return nil
	}
	if lt != nil && lt.IsPointerLike() && inst.BinOp == mir.BAdd {
		// pointer-typed "+" overload: runtime string concatenation.
		a := fs.valueOf(block, inst.A)
		b := fs.valueOf(block, inst.B)
		call := block.NewCall(fs.prog.runtime.Funcs["string_concat"], a, b)
		fs.setDest(block, inst, call, &mir.Type{Kind: mir.String})
		return nil
	}

	a := fs.valueOf(block, inst.A)
	b := fs.valueOf(block, inst.B)
	resultType := inst.Type
	if resultType == nil {
		resultType = lt
	}
	isFloat := lt != nil && lt.Kind == mir.F64
	unsigned := lt != nil && lt.IsUnsigned()

	var v value.Value
	switch inst.BinOp {
	case mir.BAdd, mir.BAddWrap:
		if isFloat {
			v = fs.applyFastMath(block.NewFAdd(a, b))
		} else {
			v = block.NewAdd(a, b)
		}
	case mir.BSub, mir.BSubWrap:
		if isFloat {
			v = fs.applyFastMath(block.NewFSub(a, b))
		} else {
			v = block.NewSub(a, b)
		}
	case mir.BMul, mir.BMulWrap:
		if isFloat {
			v = fs.applyFastMath(block.NewFMul(a, b))
		} else {
			v = block.NewMul(a, b)
		}
	case mir.BDiv:
		switch {
		case isFloat:
			v = fs.applyFastMath(block.NewFDiv(a, b))
		case unsigned:
			v = block.NewUDiv(a, b)
		default:
			v = block.NewSDiv(a, b)
		}
	case mir.BMod:
		switch {
		case isFloat:
			v = fs.applyFastMath(block.NewFRem(a, b))
		case unsigned:
			v = block.NewURem(a, b)
		default:
			v = block.NewSRem(a, b)
		}
	case mir.BAnd:
		v = block.NewAnd(a, b)
	case mir.BOr:
		v = block.NewOr(a, b)
	case mir.BXor:
		v = block.NewXor(a, b)
	case mir.BShl:
		v = block.NewShl(a, b)
	case mir.BShr:
		if unsigned {
			v = block.NewLShr(a, b)
		} else {
			v = block.NewAShr(a, b)
		}
	case mir.BEq, mir.BNe, mir.BLt, mir.BLe, mir.BGt, mir.BGe:
		v = fs.emitCompare(block, inst.BinOp, a, b, isFloat, unsigned)
		resultType = &mir.Type{Kind: mir.Bool}
	default:
		return fmt.Errorf("codegen: unhandled binop %v", inst.BinOp)
	}
	fs.setDest(block, inst, v, resultType)
	return nil
}

func (fs *funcState) emitCompare(block *ir.Block, op mir.BinOpKind, a, b value.Value, isFloat, unsigned bool) value.Value {
	if isFloat {
		return block.NewFCmp(fcmpPred(op), a, b)
	}
	return block.NewICmp(icmpPred(op, unsigned), a, b)
}

func (fs *funcState) emitUnaryOp(block *ir.Block, inst *mir.Inst) error {
	a := fs.valueOf(block, inst.A)
	t := fs.mirTypeOf(inst.A)
	var v value.Value
	switch inst.UnaryOp {
	case mir.UNeg:
		if t != nil && t.Kind == mir.F64 {
			v = block.NewFNeg(a)
		} else {
			v = block.NewSub(constant.NewInt(a.Type().(*types.IntType), 0), a)
		}
	case mir.UNot:
		v = block.NewXor(a, constant.NewBool(true))
	case mir.UBitNot:
		it, ok := a.Type().(*types.IntType)
		if !ok {
			it = types.I64
		}
		v = block.NewXor(a, constant.NewInt(it, -1))
	default:
		return fmt.Errorf("codegen: unhandled unary op %v", inst.UnaryOp)
	}
	fs.setDest(block, inst, v, t)
	return nil
}
