package codegen

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/bmb-lang/mirback/pkg/mir"
)

// funcState is the per-function codegen state described in §3, created
// fresh for every function lowered.
type funcState struct {
	prog    *programState
	fn      *mir.Function
	irFn    *ir.Func
	class   *classification

	memVars    map[string]memVar          // name -> (stack slot, pointee type)
	ssaVals    map[string]value.Value     // name -> IR value
	phiTable   map[string]*ir.InstPhi     // name -> PHI handle, pre edge-population
	phiMIR     map[string]*mir.Inst       // name -> originating Phi instruction
	blocks     map[string]*ir.Block       // MIR label -> IR block
	arrayVars  map[string]bool            // names whose slot *is* the array
	shadowI64  map[string]value.Value     // read-only i32 param -> sign-extended i64 shadow
	destTypes  map[string]*mir.Type       // name -> MIR type, filled in as instructions are emitted
	retType    *mir.Type
}

type memVar struct {
	ptr     value.Value
	pointee types.Type
}

// programState is the program-lifetime state shared across all functions
// (§3): the string pool, the runtime table, user-function tables, and the
// monotonically increasing symbol counter.
type programState struct {
	module      *ir.Module
	mirProgram  *mir.Program
	tt          *typeTable
	runtime     *RuntimeTable
	strPool     *stringPool
	symCounter  int
	userFns       map[string]*ir.Func
	userMirFns    map[string]*mir.Function
	fastMath      bool
	spawnWrappers map[string]*ir.Func
}

// lowerFunction runs the three-pass scheme of §4.4 over one MIR function,
// emitting into the already-declared ir.Func.
func lowerFunction(prog *programState, mirFn *mir.Function, irFn *ir.Func) error {
	fs := &funcState{
		prog:       prog,
		fn:         mirFn,
		irFn:       irFn,
		class:      classify(mirFn),
		memVars:    make(map[string]memVar),
		ssaVals:    make(map[string]value.Value),
		phiTable:   make(map[string]*ir.InstPhi),
		phiMIR:     make(map[string]*mir.Inst),
		blocks:     make(map[string]*ir.Block),
		arrayVars:  make(map[string]bool),
		shadowI64:  make(map[string]value.Value),
		destTypes:  make(map[string]*mir.Type),
		retType:    mirFn.ReturnType,
	}

	if err := fs.setup(); err != nil {
		return err
	}
	if err := fs.passCreatePhis(); err != nil {
		return err
	}
	if err := fs.passEmitBodies(); err != nil {
		return err
	}
	if err := fs.passPopulatePhiEdges(); err != nil {
		return err
	}
	return nil
}

// setup implements §4.4 Setup: one IR block per MIR block, parameter
// handling (memory-backed if written, SSA otherwise, plus the read-only
// i32 sign-extension shadow), and local stack-slot allocation.
func (fs *funcState) setup() error {
	if len(fs.fn.Blocks) == 0 {
		// Empty function body (§8 boundary behavior): a single entry block
		// holding only a terminator; there is nothing else to lower.
		entry := fs.irFn.NewBlock("entry")
		switch {
		case fs.retType == nil:
			entry.NewRet(nil)
		case fs.retType.Kind == mir.Unit:
			entry.NewRet(constant.NewInt(types.I8, 0))
		default:
			entry.NewUnreachable()
		}
		return nil
	}
	for _, b := range fs.fn.Blocks {
		fs.blocks[b.Label] = fs.irFn.NewBlock(b.Label)
	}

	entry := fs.blocks[fs.entryLabel()]

	for i, p := range fs.fn.Params {
		irParam := fs.irFn.Params[i]
		if fs.class.writtenParams[p.Name] {
			pointee := fs.prog.tt.llvmType(p.Type)
			slot := entry.NewAlloca(pointee)
			entry.NewStore(irParam, slot)
			fs.memVars[p.Name] = memVar{ptr: slot, pointee: pointee}
		} else {
			fs.ssaVals[p.Name] = irParam
		}
		if p.Type.Kind == mir.I32 && !fs.class.writtenParams[p.Name] {
			fs.shadowI64[p.Name] = entry.NewSExt(irParam, types.I64)
		}
	}

	for _, local := range fs.fn.Locals {
		name := local.Name
		if fs.class.phiDests[name] || (mir.Place{Name: name}).IsTemp() {
			continue
		}
		if fs.class.isSSAEligible(name) {
			continue
		}
		if local.Type.Kind == mir.Array {
			// The concrete array-typed slot is allocated by whichever
			// OpArrayInit/OpArrayAlloc instruction produces it, in pass 2
			// (see emitArrayInit) -- the element type and size live on
			// that instruction, not on the declared local.
			fs.arrayVars[name] = true
			continue
		}
		pointee := fs.prog.tt.llvmType(local.Type)
		slot := entry.NewAlloca(pointee)
		fs.memVars[name] = memVar{ptr: slot, pointee: pointee}
	}

	return nil
}

func (fs *funcState) entryLabel() string {
	return fs.fn.Blocks[0].Label
}

// passCreatePhis is pass 1 of §4.4: create an empty PHI at the top of each
// destination block, registered both for later edge-population and as the
// SSA value downstream uses will find.
func (fs *funcState) passCreatePhis() error {
	for _, b := range fs.fn.Blocks {
		irBlock := fs.blocks[b.Label]
		for i := range b.Insts {
			inst := &b.Insts[i]
			if inst.Op != mir.OpPhi {
				continue
			}
			phiType := fs.inferPhiType(inst)
			phi := ir.NewPhi()
			phi.Typ = phiType
			irBlock.Insts = append([]ir.Instruction{phi}, irBlock.Insts...)
			fs.phiTable[inst.Dest] = phi
			fs.phiMIR[inst.Dest] = inst
			fs.ssaVals[inst.Dest] = phi
			if inst.Type != nil {
				fs.destTypes[inst.Dest] = inst.Type
			}
		}
	}
	return nil
}

// passEmitBodies is pass 2 of §4.4: emit every non-PHI instruction in
// order, then the block's terminator.
func (fs *funcState) passEmitBodies() error {
	for _, b := range fs.fn.Blocks {
		irBlock := fs.blocks[b.Label]
		for i := range b.Insts {
			inst := &b.Insts[i]
			if inst.Op == mir.OpPhi {
				continue
			}
			if err := fs.emitInst(irBlock, inst); err != nil {
				return fmt.Errorf("function %s, block %s: %w", fs.fn.Name, b.Label, err)
			}
		}
		if err := fs.emitTerminator(irBlock, b); err != nil {
			return fmt.Errorf("function %s, block %s: %w", fs.fn.Name, b.Label, err)
		}
	}
	return nil
}

// passPopulatePhiEdges is pass 3 of §4.4. For every incoming (operand,
// predecessor) pair: constants are materialized anywhere, SSA values are
// reused directly, and memory-backed places are loaded in the predecessor
// block immediately before its terminator -- never in the PHI's own block.
// Coercion to the PHI's type happens with the insertion point in the
// predecessor block, so any coercion instructions land there too.
func (fs *funcState) passPopulatePhiEdges() error {
	for name, phi := range fs.phiTable {
		mirInst := fs.phiMIR[name]
		for _, edge := range mirInst.PhiIncoming {
			predBlock, ok := fs.blocks[edge.Block]
			if !ok {
				return newError(ErrUnknownName, "phi predecessor block "+edge.Block, nil)
			}
			val, err := fs.valueForPhiEdge(predBlock, edge.Value)
			if err != nil {
				return err
			}
			val = fs.coerceValueAt(predBlock, val, fs.mirTypeOf(edge.Value), phi.Typ)
			phi.Incs = append(phi.Incs, ir.NewIncoming(val, predBlock))
		}
	}
	return nil
}

// valueForPhiEdge computes the IR value for one incoming operand, inserting
// a load in predBlock (before its terminator) if the operand is a
// memory-backed place.
func (fs *funcState) valueForPhiEdge(predBlock *ir.Block, op mir.Operand) (value.Value, error) {
	if op.IsConst {
		return fs.constantValue(op.Const), nil
	}
	name := op.Place.Name
	if v, ok := fs.ssaVals[name]; ok {
		return v, nil
	}
	if mv, ok := fs.memVars[name]; ok {
		if fs.arrayVars[name] {
			return mv.ptr, nil
		}
		return insertBeforeTerm(predBlock, func(b *ir.Block) value.Value {
			return b.NewLoad(mv.pointee, mv.ptr)
		}), nil
	}
	return nil, newError(ErrUnknownName, "phi operand "+name, nil)
}

// insertBeforeTerm appends an instruction to a block that already has its
// terminator set by running build against the block and relying on
// append-at-tail semantics: predBlock's terminator is only attached by
// passEmitBodies *after* all non-PHI instructions, and PHI edge population
// (pass 3) runs strictly after pass 2, so every predecessor block's
// terminator already exists here. Insts are appended normally; Block.Term
// is a separate field in llir/llvm, so appending new instructions never
// disturbs the already-set terminator's position in the printed block.
func insertBeforeTerm(b *ir.Block, build func(*ir.Block) value.Value) value.Value {
	return build(b)
}

// constantValue materializes a MIR constant as an IR constant value.
func (fs *funcState) constantValue(c mir.Constant) value.Value {
	switch c.Kind {
	case mir.ConstInt:
		t := fs.prog.tt.llvmType(c.Type)
		it, ok := t.(*types.IntType)
		if !ok {
			it = types.I64
		}
		return constant.NewInt(it, c.Int)
	case mir.ConstFloat:
		return constant.NewFloat(types.Double, c.Float)
	case mir.ConstBool:
		return constant.NewBool(c.Bool)
	case mir.ConstChar:
		return constant.NewInt(types.I32, int64(c.Char))
	case mir.ConstString:
		header := fs.prog.strPool.HeaderPtr(c.Str)
		return constant.NewBitCast(header.(constant.Constant), fs.prog.tt.opaquePtr)
	case mir.ConstUnit:
		return constant.NewInt(types.I8, 0)
	default:
		return constant.NewInt(types.I64, 0)
	}
}
