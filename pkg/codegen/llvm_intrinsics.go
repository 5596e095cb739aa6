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

func icmpPred(op mir.BinOpKind, unsigned bool) enum.IPred {
	switch op {
	case mir.BEq:
		return enum.IPredEQ
	case mir.BNe:
		return enum.IPredNE
	case mir.BLt:
		if unsigned {
			return enum.IPredULT
		}
		return enum.IPredSLT
	case mir.BLe:
		if unsigned {
			return enum.IPredULE
		}
		return enum.IPredSLE
	case mir.BGt:
		if unsigned {
			return enum.IPredUGT
		}
		return enum.IPredSGT
	default: // BGe
		if unsigned {
			return enum.IPredUGE
		}
		return enum.IPredSGE
	}
}

func fcmpPred(op mir.BinOpKind) enum.FPred {
	switch op {
	case mir.BEq:
		return enum.FPredOEQ
	case mir.BNe:
		return enum.FPredONE
	case mir.BLt:
		return enum.FPredOLT
	case mir.BLe:
		return enum.FPredOLE
	case mir.BGt:
		return enum.FPredOGT
	default: // BGe
		return enum.FPredOGE
	}
}

// emitCall dispatches a user-function call, a closed-set intrinsic inline
// (§4.6), or a generic runtime-helper call, substituting a _cstr variant
// when the callee has one and the call site passes a string-literal
// constant whose raw bytes suffice.
func (fs *funcState) emitCall(block *ir.Block, inst *mir.Inst) error {
	if intrinsicNames[inst.Callee] {
		return fs.emitIntrinsicInline(block, inst)
	}

	callee, ok := fs.prog.userFns[inst.Callee]
	if !ok {
		callee, ok = fs.prog.runtime.Funcs[inst.Callee]
	}
	if !ok {
		return newError(ErrUnknownName, "call target "+inst.Callee, nil)
	}

	calleeName := inst.Callee
	if variant, hasVariant := fs.prog.runtime.CStrVariant[inst.Callee]; hasVariant && len(inst.Args) > 0 && inst.Args[0].IsConst && inst.Args[0].Const.Kind == mir.ConstString {
		calleeName = variant
		callee = fs.prog.runtime.Funcs[variant]
	}

	args := make([]value.Value, len(inst.Args))
	for i, a := range inst.Args {
		var v value.Value
		if calleeName != inst.Callee && i == 0 && a.IsConst && a.Const.Kind == mir.ConstString {
			v = fs.prog.strPool.CStrPtr(a.Const.Str)
		} else {
			v = fs.valueOf(block, a)
		}
		if i < len(callee.Params) {
			v = fs.coerceArg(block, a, v, callee.Params[i].Type())
		}
		args[i] = v
	}

	call := block.NewCall(callee, args...)
	if inst.IsTail {
		call.Tail = enum.TailTail
	}

	retType := inst.Type
	if retType == nil {
		retType = returnTypeOf(fs.prog.runtime, calleeName, fs.prog.userMirFns)
	}
	if inst.Dest != "" {
		fs.setDest(block, inst, call, retType)
	}
	return nil
}

// emitIntrinsicInline expands the closed set of runtime calls the driver
// inlines instead of invoking through (§4.6): direct GEP+load/store for
// byte/word access and string length/indexing, enabling downstream LICM and
// vectorization that a call boundary would block.
func (fs *funcState) emitIntrinsicInline(block *ir.Block, inst *mir.Inst) error {
	ptr := fs.prog.tt.ptr()
	switch inst.Callee {
	case "i64_to_f64":
		v := fs.valueOf(block, inst.Args[0])
		fs.setDest(block, inst, block.NewSIToFP(v, types.Double), &mir.Type{Kind: mir.F64})
	case "f64_to_i64":
		v := fs.valueOf(block, inst.Args[0])
		fs.setDest(block, inst, block.NewFPToSI(v, types.I64), &mir.Type{Kind: mir.I64})

	case "load_i64", "load_f64", "load_i32", "load_u8":
		addr := fs.valueOf(block, inst.Args[0])
		addrPtr := block.NewIntToPtr(addr, ptr)
		elem, resType := intrinsicLoadElem(inst.Callee)
		gep := block.NewBitCast(addrPtr, types.NewPointer(elem))
		var v value.Value = block.NewLoad(elem, gep)
		if elem == types.I8 {
			v = block.NewZExt(v, types.I32)
		}
		fs.setDest(block, inst, v, resType)

	case "store_i64", "store_f64", "store_i32", "store_u8":
		addr := fs.valueOf(block, inst.Args[0])
		val := fs.valueOf(block, inst.Args[1])
		addrPtr := block.NewIntToPtr(addr, ptr)
		elem, _ := intrinsicLoadElem("load_" + inst.Callee[len("store_"):])
		if it, ok := elem.(*types.IntType); ok {
			if vi, ok := val.Type().(*types.IntType); ok && vi.BitSize != it.BitSize {
				val = block.NewTrunc(val, it)
			}
		}
		gep := block.NewBitCast(addrPtr, types.NewPointer(elem))
		block.NewStore(val, gep)

	case "byte_at":
		str := fs.valueOf(block, inst.Args[0])
		idx := fs.valueOf(block, inst.Args[1])
		headerTy := stringHeaderType()
		header := block.NewBitCast(str, types.NewPointer(headerTy))
		dataGep := block.NewGetElementPtr(headerTy, header, constant.NewInt(types.I64, 0), constant.NewInt(types.I32, 0))
		data := block.NewLoad(types.NewPointer(types.I8), dataGep)
		addr := block.NewGetElementPtr(types.I8, data, idx)
		v := block.NewLoad(types.I8, addr)
		fs.setDest(block, inst, block.NewZExt(v, types.I32), &mir.Type{Kind: mir.I32})

	case "len":
		str := fs.valueOf(block, inst.Args[0])
		headerTy := stringHeaderType()
		header := block.NewBitCast(str, types.NewPointer(headerTy))
		lenGep := block.NewGetElementPtr(headerTy, header, constant.NewInt(types.I64, 0), constant.NewInt(types.I32, 1))
		v := block.NewLoad(types.I64, lenGep)
		fs.setDest(block, inst, v, &mir.Type{Kind: mir.I64})

	case "ord":
		v := fs.valueOf(block, inst.Args[0])
		fs.setDest(block, inst, v, &mir.Type{Kind: mir.I32})

	default:
		return fmt.Errorf("codegen: unrecognized intrinsic %q", inst.Callee)
	}
	return nil
}

func intrinsicLoadElem(name string) (types.Type, *mir.Type) {
	switch name {
	case "load_i64":
		return types.I64, &mir.Type{Kind: mir.I64}
	case "load_f64":
		return types.Double, &mir.Type{Kind: mir.F64}
	case "load_i32":
		return types.I32, &mir.Type{Kind: mir.I32}
	case "load_u8":
		return types.I8, &mir.Type{Kind: mir.I32}
	default:
		return types.I64, &mir.Type{Kind: mir.I64}
	}
}

func (fs *funcState) emitStructInit(block *ir.Block, inst *mir.Inst) error {
	st := fs.prog.tt.structType(inst.StructN)
	var agg value.Value = constant.NewZeroInitializer(st)
	for i, a := range inst.Args {
		fieldVal := fs.valueOf(block, a)
		fieldVal = fs.coerceArg(block, a, fieldVal, st.Fields[i])
		agg = block.NewInsertValue(agg, fieldVal, uint64(i))
	}
	fs.setDest(block, inst, agg, &mir.Type{Kind: mir.Struct, Name: inst.StructN})
	return nil
}

// emitFieldAccess reads a struct field. Struct values carried behind a
// StructPtr (the common case for heap- or stack-allocated aggregates) are
// read via GEP+load; plain Struct-by-value operands use extractvalue.
func (fs *funcState) emitFieldAccess(block *ir.Block, inst *mir.Inst) error {
	idx := fieldIndexOf(fs, inst.StructN, inst.FieldNm)
	base := fs.valueOf(block, inst.A)
	srcType := fs.mirTypeOf(inst.A)
	if srcType != nil && srcType.Kind == mir.StructPtr {
		st := fs.prog.tt.structType(inst.StructN)
		gep := block.NewGetElementPtr(st, base,
			constant.NewInt(types.I32, 0), constant.NewInt(types.I32, int64(idx)))
		v := block.NewLoad(st.Fields[idx], gep)
		fs.setDest(block, inst, v, inst.Type)
		return nil
	}
	v := block.NewExtractValue(base, uint64(idx))
	fs.setDest(block, inst, v, inst.Type)
	return nil
}

func fieldIndexOf(fs *funcState, structName, field string) int {
	if def, ok := fs.prog.mirProgram.Structs[structName]; ok {
		return def.FieldIndex(field)
	}
	return 0
}

func (fs *funcState) emitFieldStore(block *ir.Block, inst *mir.Inst) error {
	idx := fieldIndexOf(fs, inst.StructN, inst.FieldNm)
	base := fs.valueOf(block, inst.A)
	val := fs.valueOf(block, inst.B)
	st := fs.prog.tt.structType(inst.StructN)
	gep := block.NewGetElementPtr(st, base,
		constant.NewInt(types.I32, 0), constant.NewInt(types.I32, int64(idx)))
	val = fs.coerceArg(block, inst.B, val, st.Fields[idx])
	block.NewStore(val, gep)
	return nil
}

// emitEnumVariant heap-allocates the [i64 discriminant, i64 arg0, ...]
// layout (§6): discriminant = sum of (char code * (position+1)) over the
// variant name, the same hash the MIR producer uses for the case values of
// Switch terminators over this enum, so matches agree with construction.
func (fs *funcState) emitEnumVariant(block *ir.Block, inst *mir.Inst) error {
	disc := enumDiscriminant(inst.VariantName)
	size := int64(8 * (1 + len(inst.Args)))
	raw := block.NewCall(fs.prog.runtime.Funcs["malloc"], constant.NewInt(types.I64, size))
	slots := block.NewBitCast(raw, types.NewPointer(types.I64))
	discGep := block.NewGetElementPtr(types.I64, slots, constant.NewInt(types.I64, 0))
	block.NewStore(constant.NewInt(types.I64, disc), discGep)
	for i, a := range inst.Args {
		v := fs.valueOf(block, a)
		v = fs.coerceValueAt(block, v, fs.mirTypeOf(a), types.I64)
		gep := block.NewGetElementPtr(types.I64, slots, constant.NewInt(types.I64, int64(i+1)))
		block.NewStore(v, gep)
	}
	fs.setDest(block, inst, raw, &mir.Type{Kind: mir.Enum, Name: inst.EnumName})
	return nil
}

func enumDiscriminant(variant string) int64 {
	var sum int64
	for i, c := range variant {
		sum += int64(c) * int64(i+1)
	}
	return sum
}

func (fs *funcState) emitArrayInit(block *ir.Block, inst *mir.Inst) error {
	elemType := fs.prog.tt.llvmType(inst.Type.Elem)
	arrTy := types.NewArray(uint64(inst.Type.Size), elemType)
	slot := fs.entryAlloca(arrTy)
	for i, a := range inst.Args {
		v := fs.valueOf(block, a)
		v = fs.coerceArg(block, a, v, elemType)
		gep := block.NewGetElementPtr(arrTy, slot,
			constant.NewInt(types.I64, 0), constant.NewInt(types.I64, int64(i)))
		block.NewStore(v, gep)
	}
	fs.memVars[inst.Dest] = memVar{ptr: slot, pointee: arrTy}
	fs.arrayVars[inst.Dest] = true
	fs.destTypes[inst.Dest] = inst.Type
	return nil
}

// entryAlloca allocates a stack slot in the function's entry block even
// when called mid-body, matching the convention that all allocas live at
// function entry so LLVM's mem2reg-adjacent passes can reason about them.
func (fs *funcState) entryAlloca(t types.Type) value.Value {
	entry := fs.blocks[fs.entryLabel()]
	return entry.NewAlloca(t)
}

func (fs *funcState) emitIndexLoad(block *ir.Block, inst *mir.Inst) error {
	name := inst.A.Place.Name
	mv, ok := fs.memVars[name]
	if !ok {
		return newError(ErrUnknownName, "indexed array "+name, nil)
	}
	idx := fs.valueOf(block, inst.B)
	arrTy, isArr := mv.pointee.(*types.ArrayType)
	if !isArr {
		return fmt.Errorf("codegen: index load on non-array %q", name)
	}
	gep := block.NewGetElementPtr(arrTy, mv.ptr, constant.NewInt(types.I64, 0), idx)
	v := block.NewLoad(arrTy.ElemType, gep)
	fs.setDest(block, inst, v, inst.Type)
	return nil
}

func (fs *funcState) emitIndexStore(block *ir.Block, inst *mir.Inst) error {
	name := inst.A.Place.Name
	mv, ok := fs.memVars[name]
	if !ok {
		return newError(ErrUnknownName, "indexed array "+name, nil)
	}
	idx := fs.valueOf(block, inst.B)
	val := fs.valueOf(block, inst.Args[0])
	arrTy, isArr := mv.pointee.(*types.ArrayType)
	if !isArr {
		return fmt.Errorf("codegen: index store on non-array %q", name)
	}
	val = fs.coerceArg(block, inst.Args[0], val, arrTy.ElemType)
	gep := block.NewGetElementPtr(arrTy, mv.ptr, constant.NewInt(types.I64, 0), idx)
	block.NewStore(val, gep)
	return nil
}

func (fs *funcState) emitPtrOffset(block *ir.Block, inst *mir.Inst) error {
	var asInt value.Value
	if !inst.A.IsConst {
		if _, hasShadow := fs.shadowI64[inst.A.Place.Name]; hasShadow {
			asInt = fs.shadowOrSext(block, inst.A.Place.Name)
		}
	}
	if asInt == nil {
		base := fs.valueOf(block, inst.A)
		asInt = fs.coerceValueAt(block, base, fs.mirTypeOf(inst.A), types.I64)
	}
	offset := fs.valueOf(block, inst.B)
	scaled := block.NewMul(offset, constant.NewInt(types.I64, elemSizeOf(inst.Type)))
	sum := block.NewAdd(asInt, scaled)
	fs.setDest(block, inst, sum, inst.Type)
	return nil
}

func elemSizeOf(t *mir.Type) int64 {
	if t == nil || t.Elem == nil {
		return 8
	}
	switch t.Elem.IntWidth() {
	case 32:
		return 4
	case 64:
		return 8
	default:
		return 8
	}
}

func (fs *funcState) emitPtrLoad(block *ir.Block, inst *mir.Inst) error {
	addr := fs.valueOf(block, inst.A)
	elem := fs.prog.tt.llvmType(inst.Type)
	addrPtr := block.NewIntToPtr(addr, fs.prog.tt.ptr())
	typed := block.NewBitCast(addrPtr, types.NewPointer(elem))
	v := block.NewLoad(elem, typed)
	fs.setDest(block, inst, v, inst.Type)
	return nil
}

func (fs *funcState) emitPtrStore(block *ir.Block, inst *mir.Inst) error {
	addr := fs.valueOf(block, inst.A)
	val := fs.valueOf(block, inst.B)
	elem := val.Type()
	addrPtr := block.NewIntToPtr(addr, fs.prog.tt.ptr())
	typed := block.NewBitCast(addrPtr, types.NewPointer(elem))
	block.NewStore(val, typed)
	return nil
}

func (fs *funcState) emitTupleInit(block *ir.Block, inst *mir.Inst) error {
	tupTy := fs.prog.tt.tupleType(inst.Type)
	var agg value.Value = constant.NewZeroInitializer(tupTy)
	for i, a := range inst.Args {
		v := fs.valueOf(block, a)
		v = fs.coerceArg(block, a, v, tupTy.Fields[i])
		agg = block.NewInsertValue(agg, v, uint64(i))
	}
	fs.setDest(block, inst, agg, inst.Type)
	return nil
}

// emitTupleExtract reads one element of a tuple value; the element index is
// always a compile-time constant carried in inst.B.
func (fs *funcState) emitTupleExtract(block *ir.Block, inst *mir.Inst) error {
	base := fs.valueOf(block, inst.A)
	idx := uint64(inst.B.Const.Int)
	v := block.NewExtractValue(base, idx)
	fs.setDest(block, inst, v, inst.Type)
	return nil
}

// emitConcurrencyOrAtomic dispatches the atomic/select family and the
// thread-spawn trampoline to their dedicated emitters (§4.6), then falls
// back to the uniform bmb_*-runtime-call pattern for everything else:
// mutex/rwlock/condvar/barrier/channel-send/channel-recv/future-block-on
// primitives, where the runtime library, not the compiler, owns the
// implementation.
func (fs *funcState) emitConcurrencyOrAtomic(block *ir.Block, inst *mir.Inst) error {
	switch inst.Op {
	case mir.OpAtomicLoad:
		return fs.emitAtomicLoad(block, inst)
	case mir.OpAtomicStore:
		return fs.emitAtomicStore(block, inst)
	case mir.OpAtomicRMW:
		return fs.emitAtomicRMW(block, inst)
	case mir.OpAtomicCAS:
		return fs.emitAtomicCAS(block, inst)
	case mir.OpSelect:
		return fs.emitSelect(block, inst)
	case mir.OpThreadSpawn:
		return fs.emitThreadSpawn(block, inst)
	case mir.OpChannelTryRecv, mir.OpChannelRecvTimeout:
		return fs.emitChannelRecvWithOutParam(block, inst)
	}

	name, ok := runtimeNameFor(inst.Op)
	if !ok {
		return fmt.Errorf("codegen: unhandled opcode %v", inst.Op)
	}
	fn, ok := fs.prog.runtime.Funcs[name]
	if !ok {
		return newError(ErrUnknownName, "runtime primitive "+name, nil)
	}
	args := make([]value.Value, len(inst.Args))
	for i, a := range inst.Args {
		v := fs.valueOf(block, a)
		if i < len(fn.Params) {
			v = fs.coerceArg(block, a, v, fn.Params[i].Type())
		}
		args[i] = v
	}
	call := block.NewCall(fn, args...)
	if inst.Dest != "" {
		fs.setDest(block, inst, call, returnTypeOf(fs.prog.runtime, name, fs.prog.userMirFns))
	}
	return nil
}

// runtimeNameFor maps the remaining concurrency opcodes to their bmb_*
// runtime symbol. ThreadSpawn and the two channel-recv opcodes are not
// listed here: emitConcurrencyOrAtomic dispatches them to dedicated
// emitters before this lookup is ever consulted.
func runtimeNameFor(op mir.Op) (string, bool) {
	m := map[mir.Op]string{
		mir.OpThreadJoin:    "bmb_thread_join",
		mir.OpMutexNew:      "bmb_mutex_new",
		mir.OpMutexLock:     "bmb_mutex_lock",
		mir.OpMutexUnlock:   "bmb_mutex_unlock",
		mir.OpRWLockNew:     "bmb_rwlock_new",
		mir.OpRWLockRead:    "bmb_rwlock_read_lock",
		mir.OpRWLockWrite:   "bmb_rwlock_write_lock",
		mir.OpCondVarNew:    "bmb_condvar_new",
		mir.OpCondVarWait:   "bmb_condvar_wait",
		mir.OpCondVarSignal: "bmb_condvar_signal",
		mir.OpBarrierNew:    "bmb_barrier_new",
		mir.OpBarrierWait:   "bmb_barrier_wait",
		mir.OpChannelNew:    "bmb_channel_new",
		mir.OpChannelSend:   "bmb_channel_send",
		mir.OpChannelRecv:   "bmb_channel_recv",
		mir.OpBlockOn:       "bmb_future_block_on",
	}
	name, ok := m[op]
	return name, ok
}

// atomicRMWOp maps the BinOpKind an AtomicRMW instruction carries to the
// corresponding LLVM read-modify-write operation; only the operators the
// source language's atomics expose are supported.
func atomicRMWOp(k mir.BinOpKind) (enum.AtomicOp, bool) {
	switch k {
	case mir.BAdd:
		return enum.AtomicOpAdd, true
	case mir.BSub:
		return enum.AtomicOpSub, true
	case mir.BAnd:
		return enum.AtomicOpAnd, true
	case mir.BOr:
		return enum.AtomicOpOr, true
	case mir.BXor:
		return enum.AtomicOpXor, true
	default:
		return 0, false
	}
}

// emitAtomicLoad emits a sequentially-consistent, 8-byte-aligned atomic
// load. Handles are kept as i64 for uniformity with the rest of the
// runtime's handle-sized ABI (§5).
func (fs *funcState) emitAtomicLoad(block *ir.Block, inst *mir.Inst) error {
	addr := fs.valueOf(block, inst.A)
	addrPtr := block.NewIntToPtr(addr, types.NewPointer(types.I64))
	load := block.NewLoad(types.I64, addrPtr)
	load.Atomic = true
	load.Ordering = enum.AtomicOrderingSeqCst
	load.Align = ir.Align(8)
	fs.setDest(block, inst, load, &mir.Type{Kind: mir.I64})
	return nil
}

// emitAtomicStore emits a sequentially-consistent, 8-byte-aligned atomic
// store.
func (fs *funcState) emitAtomicStore(block *ir.Block, inst *mir.Inst) error {
	addr := fs.valueOf(block, inst.A)
	val := fs.valueOf(block, inst.B)
	val = fs.coerceValueAt(block, val, fs.mirTypeOf(inst.B), types.I64)
	addrPtr := block.NewIntToPtr(addr, types.NewPointer(types.I64))
	store := block.NewStore(val, addrPtr)
	store.Atomic = true
	store.Ordering = enum.AtomicOrderingSeqCst
	store.Align = ir.Align(8)
	return nil
}

// emitAtomicRMW emits a sequentially-consistent atomicrmw, the old value
// becoming the instruction's destination.
func (fs *funcState) emitAtomicRMW(block *ir.Block, inst *mir.Inst) error {
	op, ok := atomicRMWOp(inst.BinOp)
	if !ok {
		return fmt.Errorf("codegen: unsupported atomic rmw operator %v", inst.BinOp)
	}
	addr := fs.valueOf(block, inst.A)
	val := fs.valueOf(block, inst.B)
	val = fs.coerceValueAt(block, val, fs.mirTypeOf(inst.B), types.I64)
	addrPtr := block.NewIntToPtr(addr, types.NewPointer(types.I64))
	rmw := block.NewAtomicRMW(op, addrPtr, val, enum.AtomicOrderingSeqCst)
	rmw.Align = ir.Align(8)
	fs.setDest(block, inst, rmw, &mir.Type{Kind: mir.I64})
	return nil
}

// emitAtomicCAS emits a sequentially-consistent cmpxchg and extracts its
// old value (index 0 of the {i64, i1} result) as the destination; callers
// that need the success flag derive it themselves by comparing the old
// value against the expected one.
func (fs *funcState) emitAtomicCAS(block *ir.Block, inst *mir.Inst) error {
	if len(inst.Args) == 0 {
		return fmt.Errorf("codegen: atomic cas missing new-value operand")
	}
	addr := fs.valueOf(block, inst.A)
	cmp := fs.valueOf(block, inst.B)
	cmp = fs.coerceValueAt(block, cmp, fs.mirTypeOf(inst.B), types.I64)
	newVal := fs.valueOf(block, inst.Args[0])
	newVal = fs.coerceValueAt(block, newVal, fs.mirTypeOf(inst.Args[0]), types.I64)
	addrPtr := block.NewIntToPtr(addr, types.NewPointer(types.I64))
	cas := block.NewCmpXchg(addrPtr, cmp, newVal, enum.AtomicOrderingSeqCst, enum.AtomicOrderingSeqCst)
	cas.Align = ir.Align(8)
	old := block.NewExtractValue(cas, 0)
	fs.setDest(block, inst, old, &mir.Type{Kind: mir.I64})
	return nil
}

// emitSelect lowers Select directly to LLVM's select instruction: A is the
// i1 condition, B the true value, and the sole entry of Args the false
// value.
func (fs *funcState) emitSelect(block *ir.Block, inst *mir.Inst) error {
	if len(inst.Args) == 0 {
		return fmt.Errorf("codegen: select missing false-value operand")
	}
	cond := fs.valueOf(block, inst.A)
	dst := fs.prog.tt.llvmType(inst.Type)
	trueVal := fs.coerceArg(block, inst.B, fs.valueOf(block, inst.B), dst)
	falseVal := fs.coerceArg(block, inst.Args[0], fs.valueOf(block, inst.Args[0]), dst)
	sel := block.NewSelect(cond, trueVal, falseVal)
	fs.setDest(block, inst, sel, inst.Type)
	return nil
}

// toCaptureSlot bit-preserves a value into the i64 width the thread-spawn
// trampoline's capture array and return slot use: pointers are ptrtoint,
// doubles are bitcast, and narrower ints are zero-extended. This is
// distinct from coerceValueAt's semantic numeric conversions -- a spawned
// function's arguments must come back out exactly as they went in, not
// reinterpreted.
func toCaptureSlot(block *ir.Block, v value.Value) value.Value {
	switch t := v.Type().(type) {
	case *types.PointerType:
		return block.NewPtrToInt(v, types.I64)
	case *types.FloatType:
		return block.NewBitCast(v, types.I64)
	case *types.IntType:
		if t.BitSize < 64 {
			return block.NewZExt(v, types.I64)
		}
		return v
	default:
		return v
	}
}

// fromCaptureSlot reverses toCaptureSlot, recovering a value of dst's type
// from a raw i64 capture slot.
func fromCaptureSlot(block *ir.Block, raw value.Value, dst types.Type) value.Value {
	switch t := dst.(type) {
	case *types.PointerType:
		return block.NewIntToPtr(raw, t)
	case *types.FloatType:
		return block.NewBitCast(raw, t)
	case *types.IntType:
		if t.BitSize < 64 {
			return block.NewTrunc(raw, t)
		}
		return raw
	default:
		return raw
	}
}

// packCaptures stores each ThreadSpawn argument, bit-preserved via
// toCaptureSlot, into an on-stack i64 array and returns an opaque pointer
// to it for the runtime's captures argument. An empty argument list still
// allocates one (uninitialized) slot so the pointer passed to the runtime is
// always valid, even though the wrapper never reads it.
func (fs *funcState) packCaptures(block *ir.Block, args []mir.Operand) value.Value {
	n := len(args)
	if n == 0 {
		n = 1
	}
	arrTy := types.NewArray(uint64(n), types.I64)
	slot := fs.entryAlloca(arrTy)
	for i, a := range args {
		v := toCaptureSlot(block, fs.valueOf(block, a))
		gep := block.NewGetElementPtr(arrTy, slot, constant.NewInt(types.I64, 0), constant.NewInt(types.I64, int64(i)))
		block.NewStore(v, gep)
	}
	return block.NewBitCast(slot, fs.prog.tt.opaquePtr)
}

// spawnWrapper returns the cached per-callee thread-spawn trampoline for
// calleeName, synthesizing it on first use (§4.6): __spawn_wrapper_<fn>
// takes a single captures pointer, loads each argument out of it as an
// i64, recovers each argument's real type via fromCaptureSlot, calls the
// target, and returns its result packed back to i64 via toCaptureSlot for
// the runtime's uniform handle-sized ABI.
func (prog *programState) spawnWrapper(calleeName string, targetMirFn *mir.Function) (*ir.Func, error) {
	if wrapper, ok := prog.spawnWrappers[calleeName]; ok {
		return wrapper, nil
	}
	targetIRFn, ok := prog.userFns[calleeName]
	if !ok {
		return nil, newError(ErrUnknownName, "spawn target "+calleeName, nil)
	}

	wrapper := prog.module.NewFunc("__spawn_wrapper_"+calleeName, types.I64,
		ir.NewParam("captures", prog.tt.ptr()))
	wrapper.FuncAttrs = append(wrapper.FuncAttrs, enum.FuncAttrNoUnwind, enum.FuncAttrWillReturn)
	entry := wrapper.NewBlock("entry")

	slots := entry.NewBitCast(wrapper.Params[0], types.NewPointer(types.I64))
	args := make([]value.Value, len(targetMirFn.Params))
	for i, p := range targetMirFn.Params {
		gep := entry.NewGetElementPtr(types.I64, slots, constant.NewInt(types.I64, int64(i)))
		raw := entry.NewLoad(types.I64, gep)
		args[i] = fromCaptureSlot(entry, raw, prog.tt.llvmType(p.Type))
	}
	call := entry.NewCall(targetIRFn, args...)
	entry.NewRet(toCaptureSlot(entry, call))

	prog.spawnWrappers[calleeName] = wrapper
	return wrapper, nil
}

// emitThreadSpawn lowers ThreadSpawn (§4.6). When the callee names a real
// user function, its trampoline is synthesized (or reused), the captures
// are packed, and the runtime's spawn(wrapper, captures) is invoked.
// Otherwise -- the opaque-closure shape the MIR cannot always desugar --
// this falls back to evaluating the first capture and returning it
// directly, a degraded synchronous path retained for shapes that don't
// resolve to a known function.
func (fs *funcState) emitThreadSpawn(block *ir.Block, inst *mir.Inst) error {
	targetMirFn, isUserFn := fs.prog.userMirFns[inst.Callee]
	if !isUserFn {
		if len(inst.Args) == 0 {
			return fmt.Errorf("codegen: thread spawn of %q has no captures to fall back on", inst.Callee)
		}
		v := fs.valueOf(block, inst.Args[0])
		fs.setDest(block, inst, v, fs.mirTypeOf(inst.Args[0]))
		return nil
	}

	wrapper, err := fs.prog.spawnWrapper(inst.Callee, targetMirFn)
	if err != nil {
		return err
	}
	captures := fs.packCaptures(block, inst.Args)

	spawnFn, ok := fs.prog.runtime.Funcs["bmb_thread_spawn"]
	if !ok {
		return newError(ErrUnknownName, "runtime primitive bmb_thread_spawn", nil)
	}
	wrapperPtr := block.NewBitCast(wrapper, fs.prog.tt.opaquePtr)
	call := block.NewCall(spawnFn, wrapperPtr, captures)
	fs.setDest(block, inst, call, &mir.Type{Kind: mir.I64})
	return nil
}

// emitChannelRecvWithOutParam lowers ChannelTryRecv/ChannelRecvTimeout
// (§4.6, §5): an output slot is allocated, the runtime is called with the
// handle (plus a timeout for RecvTimeout) and the slot pointer, and the
// destination becomes a select between the loaded slot value and the
// sentinel -1 based on the runtime's i32 success flag.
func (fs *funcState) emitChannelRecvWithOutParam(block *ir.Block, inst *mir.Inst) error {
	var name string
	switch inst.Op {
	case mir.OpChannelTryRecv:
		name = "bmb_channel_try_recv"
	case mir.OpChannelRecvTimeout:
		name = "bmb_channel_recv_timeout"
	default:
		return fmt.Errorf("codegen: unhandled channel recv opcode %v", inst.Op)
	}
	fn, ok := fs.prog.runtime.Funcs[name]
	if !ok {
		return newError(ErrUnknownName, "runtime primitive "+name, nil)
	}

	handle := fs.coerceValueAt(block, fs.valueOf(block, inst.A), fs.mirTypeOf(inst.A), types.I64)
	slot := fs.entryAlloca(types.I64)
	slotPtr := block.NewBitCast(slot, fs.prog.tt.opaquePtr)

	args := []value.Value{handle}
	if inst.Op == mir.OpChannelRecvTimeout {
		timeout := fs.coerceValueAt(block, fs.valueOf(block, inst.B), fs.mirTypeOf(inst.B), types.I64)
		args = append(args, timeout)
	}
	args = append(args, slotPtr)

	success := block.NewCall(fn, args...)
	received := block.NewLoad(types.I64, slot)
	cond := block.NewICmp(enum.IPredNE, success, constant.NewInt(types.I32, 0))
	sel := block.NewSelect(cond, received, constant.NewInt(types.I64, -1))
	fs.setDest(block, inst, sel, &mir.Type{Kind: mir.I64})
	return nil
}
