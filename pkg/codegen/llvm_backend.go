package codegen

import (
	"github.com/bmb-lang/mirback/pkg/mir"
)

func init() {
	RegisterBackend("llvm", func(opts *BackendOptions) Backend {
		return NewLLVMBackend(opts)
	})
}

// LLVMBackend is the Backend implementation described through §4: a pure-Go
// IR builder (EmitIR) in front of a real-LLVM compile stage (Compile) that
// parses the built textual IR, runs the optimization pipeline chosen from
// BackendOptions, and writes a relocatable object file.
type LLVMBackend struct {
	BaseBackend
}

// NewLLVMBackend constructs the backend with opts, defaulting to OptDebug
// when opts is nil.
func NewLLVMBackend(opts *BackendOptions) *LLVMBackend {
	if opts == nil {
		opts = &BackendOptions{OptLevel: OptDebug}
	}
	return &LLVMBackend{BaseBackend: NewBaseBackend(opts)}
}

func (b *LLVMBackend) Name() string { return "llvm" }

func (b *LLVMBackend) GetFileExtension() string { return ".o" }

func (b *LLVMBackend) SupportsFeature(feature string) bool { return b.CheckFeature(feature) }

// EmitIR builds the module and returns its textual representation, without
// touching the real LLVM library -- purely llir/llvm's own printer.
func (b *LLVMBackend) EmitIR(program *mir.Program) (string, error) {
	module, err := buildModule(program, b.GetOptions())
	if err != nil {
		return "", err
	}
	return module.String(), nil
}

// Compile builds the module, then hands its textual IR to the real-LLVM
// stage (§4.1) to parse, optimize, and emit a relocatable object at
// outputPath.
func (b *LLVMBackend) Compile(program *mir.Program, outputPath string) error {
	ir, err := b.EmitIR(program)
	if err != nil {
		return err
	}
	return compileTextualIR(ir, outputPath, b.GetOptions())
}
