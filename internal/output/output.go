// Package output writes decompgraph artifacts to files.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"decompgraph/internal/extract"
)

// Artifact file names.
const (
	DecompilationsFile = "decompilations.json"
	CallGraphFile      = "call_graph.json"
	CallGraphDOTFile   = "call_graph.dot"
)

// DefaultDir returns the directory the artifacts of binPath are written to:
// the directory containing the binary.
func DefaultDir(binPath string) string {
	return filepath.Dir(binPath)
}

// WriteDecompilations writes decomps to decompilations.json in dir.
func WriteDecompilations(dir string, decomps extract.Decompilations) (string, error) {
	path := filepath.Join(dir, DecompilationsFile)
	if decomps == nil {
		decomps = extract.Decompilations{}
	}
	return path, writeJSON(path, decomps)
}

// WriteCallGraph writes g to call_graph.json in dir. Functions without
// callees are written as [] rather than null.
func WriteCallGraph(dir string, g extract.CallGraph) (string, error) {
	path := filepath.Join(dir, CallGraphFile)
	out := make(extract.CallGraph, len(g))
	for k, v := range g {
		if v == nil {
			v = []string{}
		}
		out[k] = v
	}
	return path, writeJSON(path, out)
}

// ReadCallGraph reads a call_graph.json written by WriteCallGraph.
func ReadCallGraph(path string) (extract.CallGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("output: read %s: %w", path, err)
	}
	var g extract.CallGraph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("output: decode %s: %w", path, err)
	}
	return g, nil
}

// WriteFile writes data to path through a temporary sibling file, so the
// final name only ever holds a complete artifact.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("output: chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("output: close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("output: rename %s: %w", path, err)
	}
	return nil
}

// Marshal encodes v the way every artifact is stored: object keys sorted,
// four-space indent, no HTML escaping, trailing newline.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(path string, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("output: encode %s: %w", path, err)
	}
	return WriteFile(path, data)
}
