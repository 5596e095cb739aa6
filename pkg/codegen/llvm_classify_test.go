package codegen

import (
	"testing"

	"github.com/bmb-lang/mirback/pkg/mir"
)

func TestClassifyWrittenParamIsMemory(t *testing.T) {
	i64 := &mir.Type{Kind: mir.I64}
	fn := mir.NewFunction("f", i64)
	fn.AddParam("x", i64)
	b := fn.AddBlock("entry")
	b.Emit(mir.Inst{Op: mir.OpBinOp, Dest: "x", BinOp: mir.BAdd,
		A: mir.PlaceOperand("x"), B: mir.ConstOperand(mir.Constant{Kind: mir.ConstInt, Int: 1}), Type: i64})
	b.Term = mir.Terminator{Kind: mir.TermReturn, HasValue: true, Value: mir.PlaceOperand("x")}

	c := classify(fn)
	if !c.mustBeMemory("x") {
		t.Fatalf("written parameter x must be memory-backed")
	}
	if c.isSSAEligible("x") {
		t.Fatalf("written parameter x must not be SSA-eligible")
	}
}

func TestClassifyPhiDestAlwaysSSA(t *testing.T) {
	i64 := &mir.Type{Kind: mir.I64}
	fn := mir.NewFunction("f", i64)
	fn.AddLocal("acc", i64)
	entry := fn.AddBlock("entry")
	loop := fn.AddBlock("loop")
	entry.Term = mir.Terminator{Kind: mir.TermGoto, Target: "loop"}
	loop.Emit(mir.Inst{
		Op:   mir.OpPhi,
		Dest: "acc",
		Type: i64,
		PhiIncoming: []mir.PhiEdge{
			{Value: mir.ConstOperand(mir.Constant{Kind: mir.ConstInt, Int: 0}), Block: "entry"},
			{Value: mir.PlaceOperand("acc"), Block: "loop"},
		},
	})
	loop.Term = mir.Terminator{Kind: mir.TermReturn, HasValue: true, Value: mir.PlaceOperand("acc")}

	c := classify(fn)
	if !c.phiDests["acc"] {
		t.Fatalf("acc should be recorded as a phi destination")
	}
	if c.mustBeMemory("acc") {
		t.Fatalf("phi destination acc must never be memory-backed")
	}
	if !c.isSSAEligible("acc") {
		t.Fatalf("phi destination acc must be SSA-eligible")
	}
}

func TestClassifyArrayProducerIsMemory(t *testing.T) {
	i64 := &mir.Type{Kind: mir.I64}
	arrTy := &mir.Type{Kind: mir.Array, Elem: i64, Size: 4}
	fn := mir.NewFunction("f", i64)
	fn.AddLocal("arr", arrTy)
	b := fn.AddBlock("entry")
	b.Emit(mir.Inst{Op: mir.OpArrayInit, Dest: "arr", Type: arrTy})
	b.Term = mir.Terminator{Kind: mir.TermReturn, HasValue: true, Value: mir.ConstOperand(mir.Constant{Kind: mir.ConstInt, Int: 0})}

	c := classify(fn)
	if !c.arrayVars["arr"] {
		t.Fatalf("array-producing destination must be tracked as an array var")
	}
	if !c.mustBeMemory("arr") {
		t.Fatalf("array variable must always be memory-backed")
	}
}

func TestClassifyMultipleWritesForcesMemory(t *testing.T) {
	i64 := &mir.Type{Kind: mir.I64}
	fn := mir.NewFunction("f", i64)
	fn.AddLocal("n", i64)
	b := fn.AddBlock("entry")
	b.Emit(mir.Inst{Op: mir.OpConst, Dest: "n", A: mir.ConstOperand(mir.Constant{Kind: mir.ConstInt, Int: 1}), Type: i64})
	b.Emit(mir.Inst{Op: mir.OpConst, Dest: "n", A: mir.ConstOperand(mir.Constant{Kind: mir.ConstInt, Int: 2}), Type: i64})
	b.Term = mir.Terminator{Kind: mir.TermReturn, HasValue: true, Value: mir.PlaceOperand("n")}

	c := classify(fn)
	if !c.mustBeMemory("n") {
		t.Fatalf("a name written twice must be memory-backed")
	}
	if c.isSSAEligible("n") {
		t.Fatalf("a name written twice must not be SSA-eligible")
	}
}

func TestClassifyTempAlwaysSSA(t *testing.T) {
	c := &classification{
		writtenPlaces: map[string]int{},
		phiDests:      map[string]bool{},
		ssaLocals:     map[string]bool{},
		writtenParams: map[string]bool{},
		arrayVars:     map[string]bool{},
		enumVars:      map[string]bool{},
	}
	if !c.isSSAEligible("%t0") {
		t.Fatalf("compiler-introduced temporaries must always be SSA-eligible")
	}
}
