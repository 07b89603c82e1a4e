package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "extract":
		err = cmdExtract(os.Args[2:])
	case "export":
		err = cmdExport(os.Args[2:])
	case "render":
		err = cmdRender(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `decompgraph — call graph and decompilation extractor

Usage:
  decompgraph extract --bin <path> [--engine auto|ghidra|native|export] [--out <dir>]
                                          Write decompilations.json and call_graph.json
  decompgraph export  --bin <path> --out <jsonl>
                                          Run Ghidra headless and keep its export
  decompgraph render  --in <call_graph.json> [--out <dot>]
                                          Render a call graph as Graphviz DOT

Extract flags:
  --bin <path>          Binary to analyze
  --engine <name>       auto (default), ghidra, native, or export
  --export <jsonl>      Ghidra export to load (--engine export) or keep (--engine ghidra)
  --out <dir>           Output directory (default: directory of --bin)
  --dot                 Also write call_graph.dot
  --publish             Upload artifacts to the configured S3 bucket
  --ghidra-home <dir>   Ghidra installation (auto-detected if omitted)
  --projects <dir>      Ghidra project directory
  --timeout <sec>       Per-function decompile timeout (0 = none)
  --verbose             Report every decompile failure and name collision

Environment (also read from .env):
  GHIDRA_HOME, JAVA_HOME, DECOMPGRAPH_ENGINE, DECOMPGRAPH_PROJECTS,
  DECOMPGRAPH_DECOMPILE_TIMEOUT, ARTIFACT_S3_ENDPOINT, ARTIFACT_S3_REGION,
  ARTIFACT_S3_ACCESS_KEY, ARTIFACT_S3_SECRET_KEY, ARTIFACT_S3_BUCKET, ARTIFACT_S3_USE_SSL
`)
}
