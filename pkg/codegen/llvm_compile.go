package codegen

import (
	"os"
	"runtime"

	"tinygo.org/x/go-llvm"
)

// compileTextualIR parses the textual IR emitted by the pure-Go stage,
// runs the optimization pipeline chosen by opts.OptLevel, and writes a
// relocatable object file to outputPath (§4.1). On Windows, the in-process
// pipeline is skipped entirely in favor of the external opt/llc fallback
// cascade of llvm_fallback.go: the go-llvm cgo binding has been observed
// to crash rather than error out on that platform, so compileInProcess is
// never attempted there.
func compileTextualIR(ir string, outputPath string, opts *BackendOptions) error {
	if runtime.GOOS == "windows" {
		return compileWithWindowsFallback(ir, outputPath, opts, os.Stderr)
	}
	return compileInProcess(ir, outputPath, opts)
}

func compileInProcess(ir string, outputPath string, opts *BackendOptions) error {
	ctx := llvm.NewContext()
	defer ctx.Dispose()

	buf := llvm.NewMemoryBufferContentsString(ir, "module")
	mod, err := ctx.ParseIR(buf)
	if err != nil {
		return newError(ErrBackend, "parsing emitted IR", err)
	}
	defer mod.Dispose()

	if err := llvm.VerifyModule(mod, llvm.ReturnStatusAction); err != nil {
		return newError(ErrBackend, "verifying emitted module", err)
	}

	machine, err := newHostTargetMachine()
	if err != nil {
		return newError(ErrTargetMachine, "creating target machine", err)
	}
	defer machine.Dispose()

	data := machine.CreateTargetData()
	defer data.Dispose()
	mod.SetDataLayout(data.String())
	mod.SetTarget(machine.Triple())

	if err := runNewPassManager(mod, machine, opts); err != nil {
		return newError(ErrBackend, "running optimization pipeline", err)
	}

	if err := machine.EmitToFile(mod, llvm.ObjectFile, outputPath); err != nil {
		return newError(ErrObjectWrite, "emitting object file", err)
	}
	return nil
}

// newHostTargetMachine builds a TargetMachine for the host's default
// target triple at LLVM's default code-generation level; it takes no
// options, so every optimization strategy gets the same target machine.
func newHostTargetMachine() (llvm.TargetMachine, error) {
	llvm.InitializeNativeTarget()
	llvm.InitializeNativeAsmPrinter()

	triple := llvm.DefaultTargetTriple()
	target, err := llvm.GetTargetFromTriple(triple)
	if err != nil {
		return llvm.TargetMachine{}, err
	}
	return target.CreateTargetMachine(triple, "generic", "",
		llvm.CodeGenLevelDefault,
		llvm.RelocDefault,
		llvm.CodeModelDefault), nil
}

// runNewPassManager runs LLVM's new pass manager through a pass-pipeline
// string keyed off opts.OptLevel (§4.1): OptDebug runs default<O0> (kept
// for verifier/debuggability parity rather than skipped outright),
// OptRelease is default<O2>, OptSize is default<Os>, and OptAggressive is
// default<O3>. Loop/SLP vectorization, loop unrolling, and whole-module
// function merging are enabled for every optimizing level (anything above
// OptDebug), not just OptAggressive: Release and Size both benefit from
// them and default<O2>/default<Os> already schedule the same passes when
// run through opt on the command line, so gating them out here would make
// the in-process pipeline weaker than its external-tool equivalent.
func runNewPassManager(mod llvm.Module, machine llvm.TargetMachine, opts *BackendOptions) error {
	pipeline := passPipelineFor(opts.OptLevel)
	optimizing := opts.OptLevel != OptDebug

	options := llvm.NewPassBuilderOptions()
	defer options.Dispose()
	options.SetLoopVectorization(optimizing)
	options.SetSLPVectorization(optimizing)
	options.SetLoopUnrolling(optimizing)
	options.SetMergeFunctions(optimizing)

	return mod.RunPasses(pipeline, machine, options)
}

func passPipelineFor(level OptLevel) string {
	switch level {
	case OptRelease:
		return "default<O2>"
	case OptSize:
		return "default<Os>"
	case OptAggressive:
		return "default<O3>"
	default:
		return "default<O0>"
	}
}
