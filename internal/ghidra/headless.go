package ghidra

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// ExportScript is the name of the embedded post-analysis script.
const ExportScript = "decompgraph_export.py"

//go:embed scripts/decompgraph_export.py
var exportScript []byte

// Headless runs Ghidra's analyzeHeadless against one binary and leaves a
// JSONL export behind for LoadExport.
type Headless struct {
	Install    Install
	ProjectDir string        // Ghidra project directory; created if missing
	JavaHome   string        // exported as JAVA_HOME when the environment lacks it
	Timeout    time.Duration // per-function decompile timeout; 0 means none
	// SkipDecompile exports functions and call edges only.
	SkipDecompile bool
	// Output receives Ghidra's console output. Defaults to os.Stderr.
	Output io.Writer
}

// Export imports binary into a scratch project, analyzes it and writes the
// export to exportPath. Cancelling ctx kills the Ghidra process.
func (h *Headless) Export(ctx context.Context, binary, exportPath string) error {
	absBin, err := filepath.Abs(binary)
	if err != nil {
		return fmt.Errorf("ghidra: %w", err)
	}
	if _, err := os.Stat(absBin); err != nil {
		return fmt.Errorf("ghidra: binary: %w", err)
	}
	absExport, err := filepath.Abs(exportPath)
	if err != nil {
		return fmt.Errorf("ghidra: %w", err)
	}

	projDir := h.ProjectDir
	if projDir == "" {
		projDir = filepath.Join(os.TempDir(), "decompgraph-projects")
	}
	absProj, err := filepath.Abs(projDir)
	if err != nil {
		return fmt.Errorf("ghidra: %w", err)
	}
	if err := os.MkdirAll(absProj, 0o755); err != nil {
		return fmt.Errorf("ghidra: create project dir: %w", err)
	}

	scriptDir, err := os.MkdirTemp("", "decompgraph-scripts-")
	if err != nil {
		return fmt.Errorf("ghidra: script dir: %w", err)
	}
	defer os.RemoveAll(scriptDir)
	if err := os.WriteFile(filepath.Join(scriptDir, ExportScript), exportScript, 0o644); err != nil {
		return fmt.Errorf("ghidra: write script: %w", err)
	}

	// A stale export must not be mistaken for this run's output.
	if err := os.Remove(absExport); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ghidra: remove stale export: %w", err)
	}

	cmd := exec.CommandContext(ctx, h.Install.AnalyzeHeadless, h.args(absProj, absBin, scriptDir, absExport)...)
	cmd.Env = h.env()
	out := h.Output
	if out == nil {
		out = os.Stderr
	}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ghidra: analyzeHeadless failed: %w", err)
	}
	if _, err := os.Stat(absExport); err != nil {
		return fmt.Errorf("ghidra: script produced no export (check Ghidra output): %w", err)
	}
	return nil
}

// ProjectName derives the Ghidra project name for a binary.
func ProjectName(binary string) string {
	base := filepath.Base(binary)
	if base == "." || base == string(filepath.Separator) {
		base = "binary"
	}
	return "decompgraph_" + base
}

func (h *Headless) args(projDir, binary, scriptDir, exportPath string) []string {
	decompile := "1"
	if h.SkipDecompile {
		decompile = "0"
	}
	return []string{
		projDir,
		ProjectName(binary),
		"-import", binary,
		"-overwrite",
		"-scriptPath", scriptDir,
		"-postScript", ExportScript,
		exportPath,
		strconv.Itoa(int(h.Timeout / time.Second)),
		decompile,
	}
}

func (h *Headless) env() []string {
	env := os.Environ()
	if os.Getenv("JAVA_HOME") != "" {
		return env
	}
	jh := h.JavaHome
	if jh == "" {
		jh = FindJavaHome(h.Install.Home)
	}
	if jh != "" {
		env = append(env, "JAVA_HOME="+jh)
	}
	return env
}
