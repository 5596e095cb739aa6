package codegen

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"tinygo.org/x/go-llvm"
)

// commandRunner abstracts process execution so the external opt/llc
// cascade can be exercised in tests without touching a real LLVM toolchain
// install.
type commandRunner interface {
	Run(name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// compileWithWindowsFallback goes straight to the external opt/llc cascade
// (§4.1's Windows accommodation). It never attempts compileInProcess first
// on this path: the in-process pipeline's cgo call into go-llvm has been
// observed to crash the process outright on MinGW rather than return an
// error, which an error-driven fallback chain cannot recover from.
func compileWithWindowsFallback(irText string, outputPath string, opts *BackendOptions, warn io.Writer) error {
	return compileWithExternalTools(irText, outputPath, opts, execRunner{}, warn)
}

// compileWithExternalTools runs `opt` over the textual IR using the
// new-pass-manager `--passes=` syntax, then reads the optimized bitcode it
// produces back in-process to emit the object file -- no second external
// process is needed for codegen once `opt` has done its job. If `opt`
// itself is unavailable, fails, or its bitcode can't be read back, this
// falls back to a single external `llc -O3` pass directly over the
// unoptimized textual IR, and warns that optimization was degraded.
func compileWithExternalTools(irText, outputPath string, opts *BackendOptions, run commandRunner, warn io.Writer) error {
	dir, err := os.MkdirTemp("", "mirllc-*")
	if err != nil {
		return newError(ErrBackend, "creating temp directory for fallback", err)
	}
	defer os.RemoveAll(dir)

	srcPath := filepath.Join(dir, "module.ll")
	if err := os.WriteFile(srcPath, []byte(irText), 0o644); err != nil {
		return newError(ErrBackend, "writing temp IR file", err)
	}

	optPath := filepath.Join(dir, "module.opt.bc")
	optArgs := append(optToolArgs(opts), "-o", optPath, srcPath)
	if err := run.Run("opt", optArgs...); err == nil {
		if err := compileBitcodeFile(optPath, outputPath); err == nil {
			return nil
		}
		if warn != nil {
			fmt.Fprintln(warn, "mirllc: reading optimized bitcode failed, retrying unoptimized")
		}
	} else if warn != nil {
		fmt.Fprintf(warn, "mirllc: external opt failed (%v), compiling unoptimized\n", err)
	}

	if err := run.Run("llc", "-O3", "-filetype=obj", "-o", outputPath, srcPath); err != nil {
		return newError(ErrBackend, "external llc fallback failed", err)
	}
	if warn != nil {
		fmt.Fprintln(warn, "mirllc: warning: object file emitted without optimization")
	}
	return nil
}

// optToolArgs builds the `--passes=` pipeline argument for an external
// `opt` invocation, plus the fast-math relaxation flags when requested.
// Release maps to "default<O3>,scalarizer" rather than plain default<O2>:
// the external cascade doesn't know the host's vector width the way the
// in-process target machine does, and scalarizing keeps the generated
// code portable across whatever `opt`/`llc` on PATH actually target.
func optToolArgs(opts *BackendOptions) []string {
	var pipeline string
	switch opts.OptLevel {
	case OptRelease:
		pipeline = "default<O3>,scalarizer"
	case OptSize:
		pipeline = "default<Os>"
	case OptAggressive:
		pipeline = "default<O3>"
	default:
		pipeline = "default<O0>"
	}
	args := []string{"--passes=" + pipeline}
	if opts.FastMath {
		args = append(args,
			"-enable-no-nans-fp-math",
			"-enable-no-infs-fp-math",
			"-enable-no-signed-zeros-fp-math",
		)
	}
	return args
}

// compileBitcodeFile parses bitcode already optimized by an external `opt`
// invocation and emits the object file in-process, so the fallback cascade
// never needs a second external tool once `opt` has produced its output.
func compileBitcodeFile(bcPath, outputPath string) error {
	ctx := llvm.NewContext()
	defer ctx.Dispose()

	buf, err := llvm.NewMemoryBufferFromFile(bcPath)
	if err != nil {
		return newError(ErrBackend, "reading optimized bitcode", err)
	}
	mod, err := ctx.ParseBitcode(buf)
	if err != nil {
		return newError(ErrBackend, "parsing optimized bitcode", err)
	}
	defer mod.Dispose()

	machine, err := newHostTargetMachine()
	if err != nil {
		return newError(ErrTargetMachine, "creating target machine", err)
	}
	defer machine.Dispose()

	data := machine.CreateTargetData()
	defer data.Dispose()
	mod.SetDataLayout(data.String())
	mod.SetTarget(machine.Triple())

	if err := machine.EmitToFile(mod, llvm.ObjectFile, outputPath); err != nil {
		return newError(ErrObjectWrite, "emitting object file from optimized bitcode", err)
	}
	return nil
}
