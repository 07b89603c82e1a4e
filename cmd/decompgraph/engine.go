package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"decompgraph/internal/config"
	"decompgraph/internal/engine"
	"decompgraph/internal/ghidra"
	"decompgraph/internal/native"
)

// engineFlags are the flags shared by commands that drive an engine.
type engineFlags struct {
	kind       string
	exportPath string
	ghidraHome string
	projects   string
	timeout    int
}

func (ef *engineFlags) register(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&ef.kind, "engine", cfg.Engine, "engine: auto, ghidra, native, or export")
	fs.StringVar(&ef.exportPath, "export", "", "Ghidra export (JSONL) to load or keep")
	fs.StringVar(&ef.ghidraHome, "ghidra-home", cfg.GhidraHome, "Ghidra installation directory (auto-detected if omitted)")
	fs.StringVar(&ef.projects, "projects", cfg.ProjectDir, "Ghidra project directory")
	fs.IntVar(&ef.timeout, "timeout", int(cfg.DecompileTimeout/time.Second), "per-function decompile timeout in seconds (0 = none)")
}

func (ef *engineFlags) headless(cfg *config.Config, in ghidra.Install) *ghidra.Headless {
	return &ghidra.Headless{
		Install:    in,
		ProjectDir: ef.projects,
		JavaHome:   cfg.JavaHome,
		Timeout:    time.Duration(ef.timeout) * time.Second,
		Output:     os.Stderr,
	}
}

// openEngine resolves the engine named by ef. The returned release func
// must be called once the engine is no longer needed.
func openEngine(ctx context.Context, bin string, ef *engineFlags, cfg *config.Config) (engine.Engine, func() error, error) {
	kind, err := config.ParseEngine(ef.kind)
	if err != nil {
		return nil, nil, err
	}
	noop := func() error { return nil }

	if kind == config.EngineAuto {
		kind = autoEngine(ef)
		fmt.Fprintf(os.Stderr, "engine: %s\n", kind)
	}

	switch kind {
	case config.EngineExport:
		if ef.exportPath == "" {
			return nil, nil, fmt.Errorf("--export is required with --engine export")
		}
		ex, err := ghidra.LoadExport(ef.exportPath)
		if err != nil {
			return nil, nil, err
		}
		return ex, noop, nil

	case config.EngineNative:
		eng, err := native.Open(bin, native.Options{})
		if err != nil {
			return nil, nil, err
		}
		fmt.Fprintf(os.Stderr, "native: %s (%s)\n", bin, eng.Arch())
		return eng, eng.Close, nil

	case config.EngineGhidra:
		ex, err := runGhidra(ctx, bin, ef, cfg)
		if err != nil {
			return nil, nil, err
		}
		return ex, noop, nil
	}
	return nil, nil, fmt.Errorf("unhandled engine %q", kind)
}

// releaseEngine calls release and reports its error through err unless an
// earlier error is already being returned.
func releaseEngine(release func() error, err *error) {
	if rerr := release(); rerr != nil && *err == nil {
		*err = fmt.Errorf("release engine: %w", rerr)
	}
}

// autoEngine prefers an existing export, then Ghidra, then the native engine.
func autoEngine(ef *engineFlags) string {
	if ef.exportPath != "" {
		if _, err := os.Stat(ef.exportPath); err == nil {
			return config.EngineExport
		}
	}
	if _, err := ghidra.Find(ef.ghidraHome); err == nil {
		return config.EngineGhidra
	}
	return config.EngineNative
}

// runGhidra runs the headless export and loads it. Without --export the
// export goes to a scratch directory that is removed once loaded.
func runGhidra(ctx context.Context, bin string, ef *engineFlags, cfg *config.Config) (*ghidra.Export, error) {
	in, err := ghidra.Find(ef.ghidraHome)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "ghidra: %s\n", in.Home)

	exportPath := ef.exportPath
	if exportPath == "" {
		tmp, err := os.MkdirTemp("", "decompgraph-export-")
		if err != nil {
			return nil, fmt.Errorf("export dir: %w", err)
		}
		defer os.RemoveAll(tmp)
		exportPath = filepath.Join(tmp, "export.jsonl")
	}

	fmt.Fprintf(os.Stderr, "running Ghidra headless analysis...\n")
	fmt.Fprintf(os.Stderr, "  import: %s\n", bin)
	if err := ef.headless(cfg, in).Export(ctx, bin, exportPath); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("interrupted: %w", err)
		}
		return nil, err
	}
	return ghidra.LoadExport(exportPath)
}
