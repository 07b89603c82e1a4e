package extract

import (
	"fmt"

	"decompgraph/internal/engine"
)

// Decompile runs one decompilation session over funcs. Functions the engine
// cannot decompile are returned in missing, in enumeration order, and get no
// entry in the map.
//
// The session is closed on every exit path. A failure to open or close it
// is returned as an error; individual misses are not.
func Decompile(eng engine.Engine, funcs []engine.Function, rep *Reporter) (decomps Decompilations, missing []string, err error) {
	dec, err := eng.OpenDecompiler()
	if err != nil {
		return nil, nil, fmt.Errorf("extract: open decompiler: %w", err)
	}
	defer func() {
		if cerr := dec.Close(); cerr != nil && err == nil {
			decomps, missing = nil, nil
			err = fmt.Errorf("extract: close decompiler: %w", cerr)
		}
	}()

	decomps = make(Decompilations, len(funcs))
	for i, fn := range funcs {
		rep.progress("decompile", i, len(funcs))

		name := fn.Name()
		text, ok := dec.Decompile(fn)
		if !ok {
			missing = append(missing, name)
			rep.verbosef("decompile failed: %s\n", name)
			continue
		}
		decomps[name] = text
	}
	rep.progress("decompile", len(funcs), len(funcs))

	return decomps, missing, nil
}
