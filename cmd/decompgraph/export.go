package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"decompgraph/internal/config"
	"decompgraph/internal/ghidra"
)

// cmdExport runs Ghidra once and keeps the export so later extract runs
// can use --engine export without Ghidra.
func cmdExport(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("export", flag.ExitOnError)
	binPath := fs.String("bin", "", "binary to analyze")
	outPath := fs.String("out", "", "export file to write (JSONL)")
	noDecompile := fs.Bool("no-decompile", false, "export functions and call edges only")
	ghidraHome := fs.String("ghidra-home", cfg.GhidraHome, "Ghidra installation directory (auto-detected if omitted)")
	projects := fs.String("projects", cfg.ProjectDir, "Ghidra project directory")
	timeout := fs.Int("timeout", int(cfg.DecompileTimeout/time.Second), "per-function decompile timeout in seconds (0 = none)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *binPath == "" {
		return fmt.Errorf("--bin is required")
	}
	if *outPath == "" {
		return fmt.Errorf("--out is required")
	}

	in, err := ghidra.Find(*ghidraHome)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "ghidra: %s\n", in.Home)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	h := &ghidra.Headless{
		Install:       in,
		ProjectDir:    *projects,
		JavaHome:      cfg.JavaHome,
		Timeout:       time.Duration(*timeout) * time.Second,
		SkipDecompile: *noDecompile,
		Output:        os.Stderr,
	}
	if err := h.Export(ctx, *binPath, *outPath); err != nil {
		return err
	}

	ex, err := ghidra.LoadExport(*outPath)
	if err != nil {
		return err
	}
	funcs, _ := ex.Functions()
	fmt.Fprintf(os.Stderr, "exported %d functions (%d decompile failures) → %s\n",
		len(funcs), len(ex.Failures()), *outPath)
	return nil
}
