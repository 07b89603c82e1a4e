package extract

// Reconcile removes every missing function from g, both as a key and as a
// callee of the remaining keys. It mutates g in place and is idempotent.
func Reconcile(g CallGraph, missing []string) {
	if len(missing) == 0 {
		return
	}
	gone := make(map[string]bool, len(missing))
	for _, name := range missing {
		gone[name] = true
		delete(g, name)
	}
	for caller, callees := range g {
		kept := callees[:0]
		for _, c := range callees {
			if !gone[c] {
				kept = append(kept, c)
			}
		}
		g[caller] = kept
	}
}
