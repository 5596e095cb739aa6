package codegen

import (
	"strings"
	"testing"

	"github.com/bmb-lang/mirback/pkg/mir"
)

func TestLowerFunctionPhiEdgesPopulated(t *testing.T) {
	program := counterLoopProgram()
	module, err := buildModule(program, &BackendOptions{OptLevel: OptDebug})
	if err != nil {
		t.Fatalf("buildModule: %v", err)
	}
	out := module.String()

	// Both phi nodes must list two incoming edges (one constant, one from
	// the loop body); each such phi line contains one "], [" separator
	// between its two edges, so the output must contain at least two.
	count := strings.Count(out, "], [")
	if count < 2 {
		t.Errorf("expected at least 2 phi nodes with 2 incoming edges each, output:\n%s", out)
	}
}

func TestLowerFunctionEmptyBodyGetsEntryBlock(t *testing.T) {
	i64 := i64Type()
	fn := mir.NewFunction("empty", i64)
	// No blocks at all -- §8 boundary case.
	program := mir.NewProgram()
	program.AddFunc(fn)

	module, err := buildModule(program, &BackendOptions{OptLevel: OptDebug})
	if err != nil {
		t.Fatalf("buildModule: %v", err)
	}
	for _, f := range module.Funcs {
		if f.Name() == "empty" && len(f.Blocks) != 1 {
			t.Errorf("expected exactly one fallback entry block, got %d", len(f.Blocks))
		}
	}
}

func TestLowerFunctionArrayLocalNotDoubleAllocated(t *testing.T) {
	i64 := i64Type()
	arrTy := &mir.Type{Kind: mir.Array, Elem: i64, Size: 3}
	fn := mir.NewFunction("makearr", arrTy)
	fn.AddLocal("arr", arrTy)
	b := fn.AddBlock("entry")
	b.Emit(mir.Inst{
		Op: mir.OpArrayInit, Dest: "arr", Type: arrTy,
		Args: []mir.Operand{
			mir.ConstOperand(mir.Constant{Kind: mir.ConstInt, Int: 1}),
			mir.ConstOperand(mir.Constant{Kind: mir.ConstInt, Int: 2}),
			mir.ConstOperand(mir.Constant{Kind: mir.ConstInt, Int: 3}),
		},
	})
	b.Term = mir.Terminator{Kind: mir.TermReturn, HasValue: true, Value: mir.PlaceOperand("arr")}
	program := mir.NewProgram()
	program.AddFunc(fn)

	module, err := buildModule(program, &BackendOptions{OptLevel: OptDebug})
	if err != nil {
		t.Fatalf("buildModule: %v", err)
	}
	out := module.String()
	if strings.Count(out, "alloca [3 x i64]") != 1 {
		t.Errorf("expected exactly one correctly-typed array alloca, got output:\n%s", out)
	}
}
