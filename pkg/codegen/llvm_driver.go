package codegen

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/value"

	"github.com/bmb-lang/mirback/pkg/mir"
)

// safeFastMathFlags is the subset of IEEE-754 relaxations the driver applies
// to floating-point instructions under FastMath: everything except
// AllowReassoc, whose reordering can change results enough to break code
// that otherwise tolerates the rest of the fast-math relaxations (§4.1).
var safeFastMathFlags = []enum.FastMathFlag{
	enum.FastMathFlagNnan,
	enum.FastMathFlagNinf,
	enum.FastMathFlagNsz,
	enum.FastMathFlagArcp,
	enum.FastMathFlagContract,
	enum.FastMathFlagAfn,
}

// applyFastMath attaches the safe fast-math flag subset to a
// floating-point instruction when the backend was configured with
// BackendOptions.FastMath.
func (fs *funcState) applyFastMath(v value.Value) value.Value {
	if !fs.prog.fastMath {
		return v
	}
	switch inst := v.(type) {
	case *ir.InstFAdd:
		inst.FastMathFlags = safeFastMathFlags
	case *ir.InstFSub:
		inst.FastMathFlags = safeFastMathFlags
	case *ir.InstFMul:
		inst.FastMathFlags = safeFastMathFlags
	case *ir.InstFDiv:
		inst.FastMathFlags = safeFastMathFlags
	case *ir.InstFRem:
		inst.FastMathFlags = safeFastMathFlags
	case *ir.InstFCmp:
		inst.FastMathFlags = safeFastMathFlags
	}
	return v
}

// buildModule runs the whole pure-Go emission pipeline (§4.1-§4.8) and
// returns the completed llir/llvm module.
func buildModule(program *mir.Program, opts *BackendOptions) (*ir.Module, error) {
	module := ir.NewModule()
	tt := newTypeTable(program)
	runtime := DeclareRuntime(module, tt)

	counter := 0
	prog := &programState{
		module:        module,
		mirProgram:    program,
		tt:            tt,
		runtime:       runtime,
		strPool:       newStringPool(module, &counter),
		userFns:       make(map[string]*ir.Func),
		userMirFns:    make(map[string]*mir.Function),
		fastMath:      opts != nil && opts.FastMath,
		spawnWrappers: make(map[string]*ir.Func),
	}

	// Struct definitions referenced only through pointers still need their
	// named type materialized so GEP/insertvalue sites resolve correctly.
	for name := range program.Structs {
		tt.structType(name)
	}

	for _, fn := range program.Funcs {
		prog.userMirFns[fn.Name] = fn
		irFn := module.NewFunc(llvmFuncName(fn.Name), tt.llvmType(fn.ReturnType), declParams(tt, fn)...)
		applyFuncDeclAttrs(irFn, fn, prog.fastMath)
		prog.userFns[fn.Name] = irFn
	}

	for _, fn := range program.Funcs {
		irFn := prog.userFns[fn.Name]
		if err := lowerFunction(prog, fn, irFn); err != nil {
			return nil, fmt.Errorf("lowering %s: %w", fn.Name, err)
		}
	}

	return module, nil
}

// llvmFuncName renames a MIR function literally named "main" so the
// generated object never collides with the C runtime's own process entry
// point: startup belongs to the runtime the object is linked against, not
// to user code compiled through this backend.
func llvmFuncName(mirName string) string {
	if mirName == "main" {
		return "bmb_user_main"
	}
	return mirName
}

// applyFuncDeclAttrs attaches every user function's declaration-time
// attributes (§4.2): nounwind/willreturn/mustprogress always hold for code
// this backend emits (no unwind tables, no unbounded spinning without a
// side effect), AlwaysInline functions additionally get private linkage
// since nothing outside the module can observe or call them once inlined,
// IsMemoryFree functions get the readnone/memory(none) marker the upstream
// classifier proved safe, and FastMath attaches the function-level
// fast-math attribute bundle alongside the per-instruction flags
// applyFastMath sets later during lowering.
func applyFuncDeclAttrs(irFn *ir.Func, fn *mir.Function, fastMath bool) {
	irFn.FuncAttrs = append(irFn.FuncAttrs,
		enum.FuncAttrNoUnwind,
		enum.FuncAttrWillReturn,
		enum.FuncAttrMustProgress,
	)
	if fn.AlwaysInline {
		irFn.FuncAttrs = append(irFn.FuncAttrs, enum.FuncAttrAlwaysInline)
		irFn.Linkage = enum.LinkagePrivate
	}
	if fn.IsMemoryFree {
		// llir/llvm predates the "memory(none)" attribute spelling; the old
		// readnone identifier carries the same meaning, the same way
		// llvm_runtime.go already represents memory(argmem: read) via
		// FuncAttrArgMemOnly plus FuncAttrReadOnly.
		irFn.FuncAttrs = append(irFn.FuncAttrs, enum.FuncAttrReadNone)
	}
	if fastMath {
		irFn.FuncAttrs = append(irFn.FuncAttrs, fastMathFuncAttrs()...)
	}
}

// fastMathFuncAttrs is the function-level fast-math attribute bundle
// clang/rustc attach under -ffast-math. It is independent of the
// per-instruction FastMathFlags applyFastMath sets: some optimization
// passes only consult function attributes, not individual instructions,
// when deciding whether a floating-point transform is legal.
func fastMathFuncAttrs() []ir.FuncAttribute {
	pairs := [][2]string{
		{"unsafe-fp-math", "true"},
		{"no-nans-fp-math", "true"},
		{"no-infs-fp-math", "true"},
		{"no-signed-zeros-fp-math", "true"},
		{"approx-func-fp-math", "true"},
	}
	attrs := make([]ir.FuncAttribute, len(pairs))
	for i, p := range pairs {
		attrs[i] = ir.AttrPair{Key: p[0], Value: p[1]}
	}
	return attrs
}

func declParams(tt *typeTable, fn *mir.Function) []*ir.Param {
	params := make([]*ir.Param, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = ir.NewParam(p.Name, tt.llvmType(p.Type))
	}
	return params
}
