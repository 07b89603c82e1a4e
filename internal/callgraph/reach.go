package callgraph

import "decompgraph/internal/extract"

// Reachable performs a BFS from roots and returns every function reached,
// roots included. Roots that are not keys of g are ignored.
func Reachable(g extract.CallGraph, roots []string) map[string]bool {
	reachable := make(map[string]bool)
	queue := make([]string, 0, len(roots))
	for _, r := range roots {
		if _, ok := g[r]; ok && !reachable[r] {
			reachable[r] = true
			queue = append(queue, r)
		}
	}

	for len(queue) > 0 {
		fn := queue[0]
		queue = queue[1:]
		for _, target := range g[fn] {
			if !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}
	}
	return reachable
}

// Subgraph returns the part of g induced by keep. Callee order is
// preserved.
func Subgraph(g extract.CallGraph, keep map[string]bool) extract.CallGraph {
	out := make(extract.CallGraph, len(keep))
	for caller, callees := range g {
		if !keep[caller] {
			continue
		}
		kept := make([]string, 0, len(callees))
		for _, c := range callees {
			if keep[c] {
				kept = append(kept, c)
			}
		}
		out[caller] = kept
	}
	return out
}
