package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"decompgraph/internal/artifact"
	"decompgraph/internal/callgraph"
	"decompgraph/internal/config"
	"decompgraph/internal/extract"
	"decompgraph/internal/ghidra"
	"decompgraph/internal/output"
)

func cmdExtract(args []string) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	binPath := fs.String("bin", "", "binary to analyze")
	outDir := fs.String("out", "", "output directory (default: directory of --bin)")
	writeDOT := fs.Bool("dot", false, "also write call_graph.dot")
	publish := fs.Bool("publish", false, "upload artifacts to the configured S3 bucket")
	verbose := fs.Bool("verbose", false, "report every decompile failure and name collision")
	progressEvery := fs.Int("progress", 1000, "report progress every N functions")
	topN := fs.Int("top", 10, "number of busiest callers and callees to print")
	var ef engineFlags
	ef.register(fs, cfg)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *binPath == "" {
		return fmt.Errorf("--bin is required")
	}
	if *topN < 0 {
		return fmt.Errorf("--top must not be negative")
	}
	if *publish && !cfg.Artifact.Enabled() {
		return fmt.Errorf("--publish needs ARTIFACT_S3_ENDPOINT")
	}

	dir := *outDir
	if dir == "" {
		dir = output.DefaultDir(*binPath)
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	eng, release, err := openEngine(ctx, *binPath, &ef, cfg)
	if err != nil {
		return err
	}
	defer releaseEngine(release, &err)

	rep := extract.NewReporter(os.Stderr, *progressEvery, *verbose)
	res, err := extract.Run(eng, extract.Options{Reporter: rep})
	if err != nil {
		return err
	}
	if err := res.Check(); err != nil {
		return err
	}
	if ex, ok := eng.(*ghidra.Export); ok && *verbose {
		for _, f := range ex.Failures() {
			fmt.Fprintf(os.Stderr, "  %s @ %s: %s\n", f.Name(), f.Entry(), f.Error())
		}
	}

	decompPath, err := output.WriteDecompilations(dir, res.Decompilations)
	if err != nil {
		return err
	}
	graphPath, err := output.WriteCallGraph(dir, res.CallGraph)
	if err != nil {
		return err
	}
	written := []string{decompPath, graphPath}

	if *writeDOT {
		dotPath := filepath.Join(dir, output.CallGraphDOTFile)
		dot := callgraph.DOT(res.CallGraph, filepath.Base(*binPath))
		if err := output.WriteFile(dotPath, []byte(dot)); err != nil {
			return err
		}
		written = append(written, dotPath)
	}

	fmt.Fprintf(os.Stderr, "decompiled %d/%d functions\n", len(res.Decompilations), res.Functions)
	callgraph.ComputeStats(res.CallGraph, *topN).Fprint(os.Stderr)
	for _, p := range written {
		fmt.Fprintf(os.Stderr, "wrote %s\n", p)
	}

	if *publish {
		return publishArtifacts(ctx, cfg.Artifact, *binPath, written)
	}
	return nil
}

func publishArtifacts(ctx context.Context, cfg config.ArtifactConfig, binPath string, paths []string) error {
	store, err := artifact.NewS3Store(artifact.S3Config{
		Endpoint:  cfg.Endpoint,
		Region:    cfg.Region,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		UseSSL:    cfg.UseSSL,
	})
	if err != nil {
		return err
	}
	keys, err := store.PublishFiles(ctx, binPath, paths...)
	for _, k := range keys {
		fmt.Fprintf(os.Stderr, "published s3://%s/%s\n", store.Bucket(), k)
	}
	return err
}
