package codegen

import (
	"testing"

	"github.com/llir/llvm/ir/enum"

	"github.com/bmb-lang/mirback/pkg/mir"
)

func TestBuildModuleDeclaresUserFunctionsAndRuntime(t *testing.T) {
	program := counterLoopProgram()
	module, err := buildModule(program, &BackendOptions{OptLevel: OptDebug})
	if err != nil {
		t.Fatalf("buildModule: %v", err)
	}

	var sawSumTo, sawMalloc bool
	for _, f := range module.Funcs {
		switch f.Name() {
		case "sum_to":
			sawSumTo = true
			if len(f.Blocks) != 4 {
				t.Errorf("sum_to: expected 4 blocks, got %d", len(f.Blocks))
			}
		case "malloc":
			sawMalloc = true
		}
	}
	if !sawSumTo {
		t.Fatalf("expected sum_to to be declared in the module")
	}
	if !sawMalloc {
		t.Fatalf("expected the runtime to declare malloc")
	}
}

func TestBuildModuleAlwaysInlineAttribute(t *testing.T) {
	i64 := i64Type()
	fn := mir.NewFunction("tiny", i64)
	fn.AlwaysInline = true
	b := fn.AddBlock("entry")
	b.Term = mir.Terminator{Kind: mir.TermReturn, HasValue: true, Value: mir.ConstOperand(mir.Constant{Kind: mir.ConstInt, Int: 0})}
	program := mir.NewProgram()
	program.AddFunc(fn)

	module, err := buildModule(program, &BackendOptions{OptLevel: OptDebug})
	if err != nil {
		t.Fatalf("buildModule: %v", err)
	}
	for _, f := range module.Funcs {
		if f.Name() != "tiny" {
			continue
		}
		found := false
		for _, a := range f.FuncAttrs {
			if a == enum.FuncAttrAlwaysInline {
				found = true
			}
		}
		if !found {
			t.Errorf("expected alwaysinline attribute on tiny")
		}
		if f.Linkage != enum.LinkagePrivate {
			t.Errorf("expected private linkage on an always-inline function, got %v", f.Linkage)
		}
	}
}

func TestBuildModuleRenamesUserMain(t *testing.T) {
	i64 := i64Type()
	fn := mir.NewFunction("main", i64)
	b := fn.AddBlock("entry")
	b.Term = mir.Terminator{Kind: mir.TermReturn, HasValue: true, Value: mir.ConstOperand(mir.Constant{Kind: mir.ConstInt, Int: 0})}
	program := mir.NewProgram()
	program.AddFunc(fn)

	module, err := buildModule(program, &BackendOptions{OptLevel: OptDebug})
	if err != nil {
		t.Fatalf("buildModule: %v", err)
	}
	for _, f := range module.Funcs {
		if f.Name() == "main" {
			t.Errorf("expected user main to be renamed, found a declared symbol still named main")
		}
	}
	var sawRenamed bool
	for _, f := range module.Funcs {
		if f.Name() == "bmb_user_main" {
			sawRenamed = true
		}
	}
	if !sawRenamed {
		t.Errorf("expected bmb_user_main to be declared")
	}
}

func TestBuildModuleBaseFuncAttrs(t *testing.T) {
	program := counterLoopProgram()
	module, err := buildModule(program, &BackendOptions{OptLevel: OptDebug})
	if err != nil {
		t.Fatalf("buildModule: %v", err)
	}
	for _, f := range module.Funcs {
		if f.Name() != "sum_to" {
			continue
		}
		want := map[enum.FuncAttr]bool{
			enum.FuncAttrNoUnwind:     false,
			enum.FuncAttrWillReturn:   false,
			enum.FuncAttrMustProgress: false,
		}
		for _, a := range f.FuncAttrs {
			fa, isEnum := a.(enum.FuncAttr)
			if !isEnum {
				continue
			}
			if _, ok := want[fa]; ok {
				want[fa] = true
			}
		}
		for attr, found := range want {
			if !found {
				t.Errorf("expected %v on sum_to", attr)
			}
		}
	}
}

func TestBuildModuleMemoryFreeAttribute(t *testing.T) {
	i64 := i64Type()
	fn := mir.NewFunction("pure_fn", i64)
	fn.IsMemoryFree = true
	b := fn.AddBlock("entry")
	b.Term = mir.Terminator{Kind: mir.TermReturn, HasValue: true, Value: mir.ConstOperand(mir.Constant{Kind: mir.ConstInt, Int: 0})}
	program := mir.NewProgram()
	program.AddFunc(fn)

	module, err := buildModule(program, &BackendOptions{OptLevel: OptDebug})
	if err != nil {
		t.Fatalf("buildModule: %v", err)
	}
	for _, f := range module.Funcs {
		if f.Name() != "pure_fn" {
			continue
		}
		found := false
		for _, a := range f.FuncAttrs {
			if a == enum.FuncAttrReadNone {
				found = true
			}
		}
		if !found {
			t.Errorf("expected readnone/memory(none) attribute on pure_fn")
		}
	}
}

func TestBuildModuleFastMathFuncAttrBundle(t *testing.T) {
	i64 := i64Type()
	fn := mir.NewFunction("fm_fn", i64)
	b := fn.AddBlock("entry")
	b.Term = mir.Terminator{Kind: mir.TermReturn, HasValue: true, Value: mir.ConstOperand(mir.Constant{Kind: mir.ConstInt, Int: 0})}
	program := mir.NewProgram()
	program.AddFunc(fn)

	module, err := buildModule(program, &BackendOptions{OptLevel: OptDebug, FastMath: true})
	if err != nil {
		t.Fatalf("buildModule: %v", err)
	}
	for _, f := range module.Funcs {
		if f.Name() != "fm_fn" {
			continue
		}
		if len(f.FuncAttrs) < len(fastMathFuncAttrs())+3 {
			t.Errorf("expected the fast-math function-attribute bundle attached to fm_fn, got %v", f.FuncAttrs)
		}
	}
}
