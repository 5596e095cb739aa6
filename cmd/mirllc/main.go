// Command mirllc is a thin driver binary over pkg/codegen. It exists to
// exercise the backend from the command line; MIR construction is out of
// scope for this module (see pkg/mir), so mirllc lowers a small built-in
// demonstration program rather than parsing an external MIR file format.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bmb-lang/mirback/pkg/codegen"
	"github.com/bmb-lang/mirback/pkg/mir"
	"github.com/bmb-lang/mirback/pkg/version"
)

var (
	outputPath string
	optLevel   string
	fastMath   bool
	emitIROnly bool
	backend    string
	buildInfo  bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mirllc",
		Short:   "Lower MIR to LLVM IR or a native object file",
		Long:    version.GetFullVersion(),
		Version: version.GetVersion(),
		RunE:    run,
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output path (required)")
	cmd.Flags().StringVarP(&optLevel, "opt", "O", "debug", "optimization level: debug, release, size, aggressive")
	cmd.Flags().BoolVar(&fastMath, "fast-math", false, "enable the safe fast-math subset")
	cmd.Flags().BoolVarP(&emitIROnly, "emit-llvm", "S", false, "emit textual LLVM IR instead of an object file")
	cmd.Flags().StringVar(&backend, "backend", "llvm", "backend to use")
	cmd.Flags().BoolVar(&buildInfo, "build-info", false, "print build number, commit, and date, then exit")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	if buildInfo {
		fmt.Println(version.GetBuildInfo())
		return nil
	}
	if outputPath == "" {
		return fmt.Errorf("required flag(s) \"output\" not set")
	}

	level, err := parseOptLevel(optLevel)
	if err != nil {
		return err
	}

	b := codegen.GetBackend(backend, &codegen.BackendOptions{
		OptLevel: level,
		FastMath: fastMath,
	})
	if b == nil {
		return fmt.Errorf("unknown backend %q (available: %v)", backend, codegen.ListBackends())
	}

	program := demoProgram()

	if emitIROnly {
		ir, err := b.EmitIR(program)
		if err != nil {
			return fmt.Errorf("emitting IR: %w", err)
		}
		return os.WriteFile(outputPath, []byte(ir), 0o644)
	}

	if err := b.Compile(program, outputPath); err != nil {
		return fmt.Errorf("compiling: %w", err)
	}
	return nil
}

func parseOptLevel(s string) (codegen.OptLevel, error) {
	switch s {
	case "debug":
		return codegen.OptDebug, nil
	case "release":
		return codegen.OptRelease, nil
	case "size":
		return codegen.OptSize, nil
	case "aggressive":
		return codegen.OptAggressive, nil
	default:
		return codegen.OptDebug, fmt.Errorf("unknown optimization level %q", s)
	}
}

// demoProgram builds a minimal `add(a, b) -> a + b` function so the binary
// has something concrete to lower without needing a MIR input format.
func demoProgram() *mir.Program {
	i64 := &mir.Type{Kind: mir.I64}

	fn := mir.NewFunction("add", i64)
	fn.AddParam("a", i64)
	fn.AddParam("b", i64)
	entry := fn.AddBlock("entry")
	entry.Emit(mir.Inst{
		Op:    mir.OpBinOp,
		Dest:  "sum",
		A:     mir.PlaceOperand("a"),
		B:     mir.PlaceOperand("b"),
		BinOp: mir.BAdd,
		Type:  i64,
	})
	entry.Term = mir.Terminator{
		Kind:     mir.TermReturn,
		HasValue: true,
		Value:    mir.PlaceOperand("sum"),
	}

	program := mir.NewProgram()
	program.AddFunc(fn)
	return program
}
