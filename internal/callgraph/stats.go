package callgraph

import (
	"fmt"
	"io"
	"sort"

	"decompgraph/internal/extract"
)

// Stats summarizes a call graph.
type Stats struct {
	Functions  int
	Edges      int
	Leaves     int         // functions with no callees
	Roots      int         // functions nobody calls
	TopCallers []NameCount // sorted desc by out-degree
	TopCallees []NameCount // sorted desc by in-degree
}

// NameCount pairs a name with a count.
type NameCount struct {
	Name  string
	Count int
}

// ComputeStats computes summary statistics for g, keeping the n busiest
// callers and callees. n <= 0 keeps none.
func ComputeStats(g extract.CallGraph, n int) Stats {
	s := Stats{Functions: len(g)}

	out := make(map[string]int, len(g))
	in := make(map[string]int, len(g))
	for caller, callees := range g {
		s.Edges += len(callees)
		if len(callees) == 0 {
			s.Leaves++
		} else {
			out[caller] = len(callees)
		}
		for _, c := range callees {
			in[c]++
		}
	}
	for caller := range g {
		if in[caller] == 0 {
			s.Roots++
		}
	}

	s.TopCallers = topN(out, n)
	s.TopCallees = topN(in, n)
	return s
}

// Fprint writes s in the operator summary format.
func (s Stats) Fprint(w io.Writer) {
	fmt.Fprintf(w, "  functions: %d\n", s.Functions)
	fmt.Fprintf(w, "  edges:     %d\n", s.Edges)
	fmt.Fprintf(w, "  leaves:    %d\n", s.Leaves)
	fmt.Fprintf(w, "  roots:     %d\n", s.Roots)
	if len(s.TopCallers) > 0 {
		fmt.Fprintf(w, "  top callers:\n")
		for _, nc := range s.TopCallers {
			fmt.Fprintf(w, "    %5d  %s\n", nc.Count, nc.Name)
		}
	}
	if len(s.TopCallees) > 0 {
		fmt.Fprintf(w, "  top callees:\n")
		for _, nc := range s.TopCallees {
			fmt.Fprintf(w, "    %5d  %s\n", nc.Count, nc.Name)
		}
	}
}

// topN returns the top n entries from m, sorted descending by count and
// then by name.
func topN(m map[string]int, n int) []NameCount {
	if n <= 0 {
		return nil
	}
	entries := make([]NameCount, 0, len(m))
	for name, count := range m {
		entries = append(entries, NameCount{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
