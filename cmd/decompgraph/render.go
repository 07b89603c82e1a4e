package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"decompgraph/internal/callgraph"
	"decompgraph/internal/output"
)

func cmdRender(args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	inPath := fs.String("in", "", "call_graph.json to render")
	outPath := fs.String("out", "", "DOT file to write (default: stdout)")
	title := fs.String("title", "", "graph title (default: input directory name)")
	stats := fs.Bool("stats", false, "print call graph statistics")
	var roots stringList
	fs.Var(&roots, "root", "render only functions reachable from this function (repeatable)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" {
		return fmt.Errorf("--in is required")
	}

	g, err := output.ReadCallGraph(*inPath)
	if err != nil {
		return err
	}
	if len(roots) > 0 {
		g = callgraph.Subgraph(g, callgraph.Reachable(g, roots))
		if len(g) == 0 {
			return fmt.Errorf("no --root is a function of %s", *inPath)
		}
	}
	if *title == "" {
		*title = renderTitle(*inPath)
	}
	dot := callgraph.DOT(g, *title)

	if *stats {
		callgraph.ComputeStats(g, 10).Fprint(os.Stderr)
	}
	if *outPath == "" {
		_, err := os.Stdout.WriteString(dot)
		return err
	}
	if err := output.WriteFile(*outPath, []byte(dot)); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d functions, %d edges)\n", *outPath, len(g), g.Edges())
	return nil
}

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func renderTitle(inPath string) string {
	abs, err := filepath.Abs(inPath)
	if err != nil {
		return strings.TrimSuffix(filepath.Base(inPath), ".json")
	}
	return filepath.Base(filepath.Dir(abs))
}
