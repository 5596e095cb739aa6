package codegen

import (
	"strings"
	"testing"

	"github.com/bmb-lang/mirback/pkg/mir"
)

// strLenProgram calls the `len` intrinsic on a string parameter, exercising
// the GEP-through-header-struct path rather than a bare extractvalue on a
// pointer value.
func strLenProgram() *mir.Program {
	strTy := &mir.Type{Kind: mir.String}
	i64 := i64Type()
	fn := mir.NewFunction("str_len", i64)
	fn.AddParam("s", strTy)
	entry := fn.AddBlock("entry")
	entry.Emit(mir.Inst{
		Op: mir.OpCall, Dest: "n", Callee: "len", Type: i64,
		Args: []mir.Operand{mir.PlaceOperand("s")},
	})
	entry.Term = mir.Terminator{Kind: mir.TermReturn, HasValue: true, Value: mir.PlaceOperand("n")}
	program := mir.NewProgram()
	program.AddFunc(fn)
	return program
}

func TestEmitIRStringLenUsesGepNotExtractValue(t *testing.T) {
	b := NewLLVMBackend(&BackendOptions{OptLevel: OptDebug})
	out, err := b.EmitIR(strLenProgram())
	if err != nil {
		t.Fatalf("EmitIR: %v", err)
	}
	if strings.Contains(out, "extractvalue") {
		t.Errorf("string is pointer-typed; len must not use extractvalue, got:\n%s", out)
	}
	if !strings.Contains(out, "getelementptr") {
		t.Errorf("expected a getelementptr into the string header, got:\n%s", out)
	}
	if !strings.Contains(out, "bitcast") {
		t.Errorf("expected a bitcast from the opaque string pointer to the header type, got:\n%s", out)
	}
}

func TestEnumDiscriminantStableAcrossCalls(t *testing.T) {
	a := enumDiscriminant("Red")
	b := enumDiscriminant("Red")
	if a != b {
		t.Errorf("enumDiscriminant must be deterministic: got %d and %d", a, b)
	}
	if enumDiscriminant("Red") == enumDiscriminant("Green") {
		t.Errorf("different variant names should not collide in this test's fixture")
	}
}

// atomicAddProgram emits an AtomicRMW add against a handle parameter,
// exercising atomicRMWOp's BinOp-to-AtomicOp mapping.
func atomicAddProgram() *mir.Program {
	i64 := i64Type()
	fn := mir.NewFunction("atomic_add", i64)
	fn.AddParam("addr", i64)
	fn.AddParam("delta", i64)
	entry := fn.AddBlock("entry")
	entry.Emit(mir.Inst{
		Op: mir.OpAtomicRMW, Dest: "old",
		A: mir.PlaceOperand("addr"), B: mir.PlaceOperand("delta"),
		BinOp: mir.BAdd, Type: i64,
	})
	entry.Term = mir.Terminator{Kind: mir.TermReturn, HasValue: true, Value: mir.PlaceOperand("old")}
	program := mir.NewProgram()
	program.AddFunc(fn)
	return program
}

func TestEmitIRAtomicRMWUsesSeqCst(t *testing.T) {
	b := NewLLVMBackend(&BackendOptions{OptLevel: OptDebug})
	out, err := b.EmitIR(atomicAddProgram())
	if err != nil {
		t.Fatalf("EmitIR: %v", err)
	}
	if !strings.Contains(out, "atomicrmw") {
		t.Errorf("expected an atomicrmw instruction, got:\n%s", out)
	}
	if !strings.Contains(out, "seq_cst") {
		t.Errorf("expected sequentially consistent ordering, got:\n%s", out)
	}
}

// selectProgram exercises OpSelect's A/B/Args[0] cond/true/false convention.
func selectProgram() *mir.Program {
	i64 := i64Type()
	fn := mir.NewFunction("pick", i64)
	fn.AddParam("cond", &mir.Type{Kind: mir.Bool})
	fn.AddParam("a", i64)
	fn.AddParam("b", i64)
	entry := fn.AddBlock("entry")
	entry.Emit(mir.Inst{
		Op: mir.OpSelect, Dest: "r", Type: i64,
		A: mir.PlaceOperand("cond"), B: mir.PlaceOperand("a"),
		Args: []mir.Operand{mir.PlaceOperand("b")},
	})
	entry.Term = mir.Terminator{Kind: mir.TermReturn, HasValue: true, Value: mir.PlaceOperand("r")}
	program := mir.NewProgram()
	program.AddFunc(fn)
	return program
}

func TestEmitIRSelectLowersToSelectInstruction(t *testing.T) {
	b := NewLLVMBackend(&BackendOptions{OptLevel: OptDebug})
	out, err := b.EmitIR(selectProgram())
	if err != nil {
		t.Fatalf("EmitIR: %v", err)
	}
	if !strings.Contains(out, "select ") {
		t.Errorf("expected a select instruction, got:\n%s", out)
	}
}

// threadSpawnProgram spawns "worker", a real user function, exercising the
// trampoline-synthesis path rather than the opaque-closure fallback.
func threadSpawnProgram() *mir.Program {
	i64 := i64Type()
	worker := mir.NewFunction("worker", i64)
	worker.AddParam("x", i64)
	wb := worker.AddBlock("entry")
	wb.Term = mir.Terminator{Kind: mir.TermReturn, HasValue: true, Value: mir.PlaceOperand("x")}

	fn := mir.NewFunction("spawn_worker", i64)
	fn.AddParam("x", i64)
	entry := fn.AddBlock("entry")
	entry.Emit(mir.Inst{
		Op: mir.OpThreadSpawn, Dest: "handle", Callee: "worker", Type: i64,
		Args: []mir.Operand{mir.PlaceOperand("x")},
	})
	entry.Term = mir.Terminator{Kind: mir.TermReturn, HasValue: true, Value: mir.PlaceOperand("handle")}

	program := mir.NewProgram()
	program.AddFunc(worker)
	program.AddFunc(fn)
	return program
}

func TestEmitIRThreadSpawnSynthesizesTrampoline(t *testing.T) {
	b := NewLLVMBackend(&BackendOptions{OptLevel: OptDebug})
	out, err := b.EmitIR(threadSpawnProgram())
	if err != nil {
		t.Fatalf("EmitIR: %v", err)
	}
	if !strings.Contains(out, "__spawn_wrapper_worker") {
		t.Errorf("expected a synthesized spawn trampoline for worker, got:\n%s", out)
	}
	if !strings.Contains(out, "@bmb_thread_spawn") {
		t.Errorf("expected a call to the runtime spawn primitive, got:\n%s", out)
	}
}

// channelTryRecvProgram exercises the output-slot-plus-select ABI rather
// than a plain runtime call.
func channelTryRecvProgram() *mir.Program {
	i64 := i64Type()
	fn := mir.NewFunction("try_recv", i64)
	fn.AddParam("chan", i64)
	entry := fn.AddBlock("entry")
	entry.Emit(mir.Inst{
		Op: mir.OpChannelTryRecv, Dest: "v", Type: i64,
		A: mir.PlaceOperand("chan"),
	})
	entry.Term = mir.Terminator{Kind: mir.TermReturn, HasValue: true, Value: mir.PlaceOperand("v")}
	program := mir.NewProgram()
	program.AddFunc(fn)
	return program
}

func TestEmitIRChannelTryRecvUsesOutSlotAndSelect(t *testing.T) {
	b := NewLLVMBackend(&BackendOptions{OptLevel: OptDebug})
	out, err := b.EmitIR(channelTryRecvProgram())
	if err != nil {
		t.Fatalf("EmitIR: %v", err)
	}
	if !strings.Contains(out, "@bmb_channel_try_recv") {
		t.Errorf("expected a call to bmb_channel_try_recv, got:\n%s", out)
	}
	if !strings.Contains(out, "select ") {
		t.Errorf("expected a select against the -1 sentinel, got:\n%s", out)
	}
	if !strings.Contains(out, "-1") {
		t.Errorf("expected the -1 sentinel constant, got:\n%s", out)
	}
}
