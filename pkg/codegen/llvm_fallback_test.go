package codegen

import (
	"bytes"
	"strings"
	"testing"
)

type fakeRunner struct {
	calls  []string
	args   map[string][]string
	failOn map[string]bool // command name -> force failure
}

func (f *fakeRunner) Run(name string, args ...string) error {
	f.calls = append(f.calls, name)
	if f.args == nil {
		f.args = make(map[string][]string)
	}
	f.args[name] = args
	if f.failOn[name] {
		return errFakeRunFailed
	}
	return nil
}

var errFakeRunFailed = &Error{Kind: ErrBackend, Context: "fake runner forced failure"}

// The fake runner never writes a real bitcode file, so compileBitcodeFile
// always fails to parse it even when "opt" itself reports success -- every
// happy-path case below therefore still reaches the unoptimized "llc"
// fallback, exercising the same [opt, llc] shape the cascade falls back to
// on a real toolchain when bitcode readback fails.
func TestCompileWithExternalToolsOptSucceedsBitcodeUnreadableFallsBackToLlc(t *testing.T) {
	run := &fakeRunner{}
	var warn bytes.Buffer
	outputPath := t.TempDir() + "/out.o"

	err := compileWithExternalTools("; ir", outputPath, &BackendOptions{OptLevel: OptRelease}, run, &warn)
	if err != nil {
		t.Fatalf("compileWithExternalTools: %v", err)
	}
	if len(run.calls) != 2 || run.calls[0] != "opt" || run.calls[1] != "llc" {
		t.Errorf("expected [opt, llc], got %v", run.calls)
	}
	if !strings.Contains(run.args["opt"][0], "--passes=default<O3>,scalarizer") {
		t.Errorf("expected opt invoked with the release pass pipeline, got %v", run.args["opt"])
	}
	if !strings.Contains(strings.Join(run.args["llc"], " "), "-O3") {
		t.Errorf("expected the llc fallback to pass -O3, got %v", run.args["llc"])
	}
	if !strings.Contains(warn.String(), "retrying unoptimized") {
		t.Errorf("expected a bitcode-readback warning, got %q", warn.String())
	}
}

func TestCompileWithExternalToolsFallsBackWhenOptFails(t *testing.T) {
	run := &fakeRunner{failOn: map[string]bool{"opt": true}}
	var warn bytes.Buffer
	outputPath := t.TempDir() + "/out.o"

	err := compileWithExternalTools("; ir", outputPath, &BackendOptions{OptLevel: OptRelease}, run, &warn)
	if err != nil {
		t.Fatalf("compileWithExternalTools: %v", err)
	}
	if len(run.calls) != 2 || run.calls[0] != "opt" || run.calls[1] != "llc" {
		t.Errorf("expected [opt, llc] (unoptimized retry), got %v", run.calls)
	}
	if !strings.Contains(warn.String(), "warning") {
		t.Errorf("expected a degradation warning, got %q", warn.String())
	}
}

func TestCompileWithExternalToolsFailsWhenLlcAlwaysFails(t *testing.T) {
	run := &fakeRunner{failOn: map[string]bool{"llc": true}}
	var warn bytes.Buffer
	outputPath := t.TempDir() + "/out.o"

	err := compileWithExternalTools("; ir", outputPath, &BackendOptions{OptLevel: OptDebug}, run, &warn)
	if err == nil {
		t.Fatalf("expected an error when llc always fails")
	}
}

func TestOptToolArgsPipelineMapping(t *testing.T) {
	cases := map[OptLevel]string{
		OptDebug:      "--passes=default<O0>",
		OptRelease:    "--passes=default<O3>,scalarizer",
		OptSize:       "--passes=default<Os>",
		OptAggressive: "--passes=default<O3>",
	}
	for level, want := range cases {
		got := optToolArgs(&BackendOptions{OptLevel: level})
		if len(got) == 0 || got[0] != want {
			t.Errorf("optToolArgs(%v)[0] = %v, want %q", level, got, want)
		}
	}
}

func TestOptToolArgsForwardsFastMath(t *testing.T) {
	got := optToolArgs(&BackendOptions{OptLevel: OptRelease, FastMath: true})
	joined := strings.Join(got, " ")
	for _, flag := range []string{"-enable-no-nans-fp-math", "-enable-no-infs-fp-math", "-enable-no-signed-zeros-fp-math"} {
		if !strings.Contains(joined, flag) {
			t.Errorf("expected fast-math flag %q forwarded to opt, got %v", flag, got)
		}
	}
}

func TestOptToolArgsOmitsFastMathByDefault(t *testing.T) {
	got := optToolArgs(&BackendOptions{OptLevel: OptRelease})
	joined := strings.Join(got, " ")
	if strings.Contains(joined, "fp-math") {
		t.Errorf("did not expect fast-math flags without BackendOptions.FastMath, got %v", got)
	}
}
