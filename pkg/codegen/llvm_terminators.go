package codegen

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"

	"github.com/bmb-lang/mirback/pkg/mir"
)

// emitTerminator emits the single terminating instruction of a block
// (§4.8), after all of the block's non-PHI instructions have been emitted.
func (fs *funcState) emitTerminator(block *ir.Block, b *mir.Block) error {
	term := b.Term
	switch term.Kind {
	case mir.TermReturn:
		return fs.emitReturn(block, term)
	case mir.TermGoto:
		target, ok := fs.blocks[term.Target]
		if !ok {
			return newError(ErrUnknownName, "goto target "+term.Target, nil)
		}
		block.NewBr(target)
		return nil
	case mir.TermBranch:
		cond := fs.valueOf(block, term.Cond)
		thenB, ok1 := fs.blocks[term.Then]
		elseB, ok2 := fs.blocks[term.Else]
		if !ok1 || !ok2 {
			return newError(ErrUnknownName, "branch target "+term.Then+"/"+term.Else, nil)
		}
		block.NewCondBr(cond, thenB, elseB)
		return nil
	case mir.TermSwitch:
		return fs.emitSwitch(block, term)
	case mir.TermUnreachable:
		block.NewUnreachable()
		return nil
	default:
		return fmt.Errorf("codegen: unhandled terminator kind %v", term.Kind)
	}
}

// emitReturn coerces the return value to the function's declared LLVM
// return type before emitting ret (§4.8). Unit-returning functions are
// declared with an i8 return type (llvm_types.go), so they return i8 0;
// a function with no declared return type, or a Return without a value,
// gets a bare ret.
func (fs *funcState) emitReturn(block *ir.Block, term mir.Terminator) error {
	if fs.retType != nil && fs.retType.Kind == mir.Unit {
		block.NewRet(constant.NewInt(types.I8, 0))
		return nil
	}
	if !term.HasValue || fs.retType == nil {
		block.NewRet(nil)
		return nil
	}
	val := fs.valueOf(block, term.Value)
	dst := fs.prog.tt.llvmType(fs.retType)
	val = fs.coerceValueAt(block, val, fs.mirTypeOf(term.Value), dst)
	block.NewRet(val)
	return nil
}

// emitSwitch extracts the enum discriminant (word 0 of the heap layout)
// when the scrutinee is an Enum-typed operand, otherwise switches directly
// on the (already-integer) discriminant operand, then narrows each case
// constant to the discriminant's width (§4.8). The scrutinee is treated as
// an enum either when term.DiscType says so directly, or -- for switches
// built over a Phi-merged or otherwise type-erased discriminant, where
// DiscType may be nil -- when the classifier's tracking set recorded the
// operand's place as an enum producer (§4.5's enumVars), the second
// fallback path this instruction is required to try.
func (fs *funcState) emitSwitch(block *ir.Block, term mir.Terminator) error {
	discType := term.DiscType
	var disc = fs.valueOf(block, term.Disc)

	if fs.isEnumDiscriminant(discType, term.Disc) {
		slots := block.NewBitCast(disc, types.NewPointer(types.I64))
		gep := block.NewGetElementPtr(types.I64, slots, constant.NewInt(types.I64, 0))
		disc = block.NewLoad(types.I64, gep)
	}

	discInt, ok := disc.Type().(*types.IntType)
	if !ok {
		discInt = types.I64
	}

	def, ok := fs.blocks[term.DefaultLbl]
	if !ok {
		return newError(ErrUnknownName, "switch default "+term.DefaultLbl, nil)
	}

	cases := make([]*ir.Case, 0, len(term.Cases))
	for _, c := range term.Cases {
		target, ok := fs.blocks[c.Label]
		if !ok {
			return newError(ErrUnknownName, "switch case "+c.Label, nil)
		}
		cases = append(cases, ir.NewCase(constant.NewInt(discInt, c.Value), target))
	}

	block.NewSwitch(disc, def, cases...)
	return nil
}

// isEnumDiscriminant reports whether a switch's scrutinee is an enum's
// heap-allocated discriminant word and therefore needs the extraction load
// in emitSwitch, above: by the discriminant's declared type when present,
// otherwise by consulting the classifier's tracking set for the operand's
// place name.
func (fs *funcState) isEnumDiscriminant(discType *mir.Type, disc mir.Operand) bool {
	if discType != nil {
		return discType.Kind == mir.Enum
	}
	if disc.IsConst {
		return false
	}
	return fs.class.enumVars[disc.Place.Name]
}
