package ghidra

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestHeadlessArgs(t *testing.T) {
	h := &Headless{Timeout: 90 * time.Second}
	got := h.args("/p", "/bins/bmminer", "/s", "/out/export.jsonl")
	want := []string{
		"/p", "decompgraph_bmminer",
		"-import", "/bins/bmminer",
		"-overwrite",
		"-scriptPath", "/s",
		"-postScript", ExportScript, "/out/export.jsonl", "90", "1",
	}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("args =\n  %q\nwant\n  %q", got, want)
	}

	h.SkipDecompile = true
	got = h.args("/p", "/b", "/s", "/e")
	if got[len(got)-1] != "0" {
		t.Errorf("skip decompile flag = %q", got[len(got)-1])
	}
}

func TestEmbeddedScript(t *testing.T) {
	if len(exportScript) == 0 {
		t.Fatal("export script not embedded")
	}
	for _, want := range []string{"DecompInterface", "grabFromProgram", "getCalledFunctions", "isThunk", "closeProgram"} {
		if !bytes.Contains(exportScript, []byte(want)) {
			t.Errorf("script does not use %s", want)
		}
	}
}

// fakeHeadless installs a shell script standing in for analyzeHeadless. It
// records its arguments and writes a one-function export to the path
// following the script name.
func fakeHeadless(t *testing.T) (Install, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	home := t.TempDir()
	if err := os.MkdirAll(filepath.Join(home, "support"), 0o755); err != nil {
		t.Fatal(err)
	}
	argsFile := filepath.Join(home, "args.txt")
	script := `#!/bin/sh
printf '%s\n' "$@" > "` + argsFile + `"
test -f "$7/` + ExportScript + `" || exit 3
out="${10}"
printf '{"version": 1, "program": "%s", "decompiled": true, "functions": 1}\n' "$2" > "$out"
printf '{"name": "main", "entry": "1000", "thunk": false, "calls": [], "c": "int main(void) {}"}\n' >> "$out"
echo "analysis complete"
`
	if err := os.WriteFile(headlessPath(home), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return Install{Home: home, AnalyzeHeadless: headlessPath(home)}, argsFile
}

func TestHeadlessExport(t *testing.T) {
	in, argsFile := fakeHeadless(t)
	dir := t.TempDir()
	bin := filepath.Join(dir, "target")
	if err := os.WriteFile(bin, []byte("\x7fELF"), 0o644); err != nil {
		t.Fatal(err)
	}
	exportPath := filepath.Join(dir, "export.jsonl")

	var out bytes.Buffer
	h := &Headless{Install: in, ProjectDir: filepath.Join(dir, "projects"), JavaHome: dir, Output: &out}
	if err := h.Export(context.Background(), bin, exportPath); err != nil {
		t.Fatalf("Export: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "analysis complete") {
		t.Errorf("Ghidra output not forwarded: %q", out.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "projects")); err != nil {
		t.Errorf("project dir not created: %v", err)
	}

	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(args), "decompgraph_target\n") {
		t.Errorf("project name missing from args:\n%s", args)
	}

	ex, err := LoadExport(exportPath)
	if err != nil {
		t.Fatal(err)
	}
	if ex.Header.Program != "decompgraph_target" {
		t.Errorf("program = %q", ex.Header.Program)
	}
}

func TestHeadlessExportFailure(t *testing.T) {
	in, _ := fakeHeadless(t)
	if err := os.WriteFile(in.AnalyzeHeadless, []byte("#!/bin/sh\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "target")
	if err := os.WriteFile(bin, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	h := &Headless{Install: in, ProjectDir: dir, JavaHome: dir, Output: &bytes.Buffer{}}
	if err := h.Export(context.Background(), bin, filepath.Join(dir, "export.jsonl")); err == nil {
		t.Fatal("expected error from failing analyzeHeadless")
	}
	if err := h.Export(context.Background(), filepath.Join(dir, "absent"), filepath.Join(dir, "e.jsonl")); err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestProjectName(t *testing.T) {
	if got := ProjectName("/x/y/libfoo.so"); got != "decompgraph_libfoo.so" {
		t.Errorf("ProjectName = %q", got)
	}
}
