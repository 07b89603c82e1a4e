package extract

import (
	"bytes"
	"errors"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decompgraph/internal/engine"
)

func funcsOf(t *testing.T, e *fakeEngine) []engine.Function {
	t.Helper()
	funcs, err := e.Functions()
	require.NoError(t, err)
	return funcs
}

func TestBuildCallGraph_SelfAndThunkExcluded(t *testing.T) {
	a, b, c := scenario()
	e := newFake(a, b, c)

	g, collisions, err := BuildCallGraph(e, funcsOf(t, e), nil)
	require.NoError(t, err)

	assert.Equal(t, CallGraph{"A": {"B"}, "B": {}}, g)
	assert.Zero(t, collisions)
	assert.NotContains(t, g, "C")
	assert.Zero(t, e.queried["C"], "thunks are never queried for callees")
}

func TestBuildCallGraph_EveryNonThunkIsKey(t *testing.T) {
	leaf1 := &fakeFunc{name: "leaf1"}
	leaf2 := &fakeFunc{name: "leaf2"}
	thunk := &fakeFunc{name: "thunk", thunk: true}
	onlyThunk := &fakeFunc{name: "onlyThunk", calls: []*fakeFunc{thunk}}
	onlySelf := &fakeFunc{name: "onlySelf"}
	onlySelf.calls = []*fakeFunc{onlySelf}
	e := newFake(leaf1, leaf2, thunk, onlyThunk, onlySelf)

	g, _, err := BuildCallGraph(e, funcsOf(t, e), nil)
	require.NoError(t, err)

	keys := make([]string, 0, len(g))
	for k, v := range g {
		keys = append(keys, k)
		assert.NotNil(t, v, "key %s must have a non-nil list", k)
		assert.Empty(t, v, "key %s", k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"leaf1", "leaf2", "onlySelf", "onlyThunk"}, keys)
}

func TestBuildCallGraph_DistinctCallees(t *testing.T) {
	b := &fakeFunc{name: "B"}
	d := &fakeFunc{name: "D"}
	a := &fakeFunc{name: "A", calls: []*fakeFunc{b, d, b}}
	e := newFake(a, b, d)

	g, _, err := BuildCallGraph(e, funcsOf(t, e), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "D"}, g["A"])
}

func TestBuildCallGraph_NameCollisionLastWins(t *testing.T) {
	y := &fakeFunc{name: "Y"}
	z := &fakeFunc{name: "Z"}
	x1 := &fakeFunc{name: "X", calls: []*fakeFunc{y}}
	x2 := &fakeFunc{name: "X", calls: []*fakeFunc{z}}
	e := newFake(x1, y, z, x2)

	var log bytes.Buffer
	g, collisions, err := BuildCallGraph(e, funcsOf(t, e), NewReporter(&log, 0, true))
	require.NoError(t, err)

	assert.Equal(t, []string{"Z"}, g["X"])
	assert.Equal(t, 1, collisions)
	assert.Contains(t, log.String(), "name collision: X")
}

// taggedFunc is a handle with a slice field, so interface comparison of two
// taggedFunc values would panic.
type taggedFunc struct {
	name string
	tags []string
}

func (f taggedFunc) Name() string { return f.name }

// taggedEngine enumerates value handles that are not comparable.
type taggedEngine struct {
	funcs []taggedFunc
	calls map[string][]string
}

func (e *taggedEngine) Functions() ([]engine.Function, error) {
	out := make([]engine.Function, len(e.funcs))
	for i, f := range e.funcs {
		out[i] = f
	}
	return out, nil
}

func (e *taggedEngine) IsThunk(engine.Function) bool { return false }

func (e *taggedEngine) CalledFunctions(fn engine.Function) ([]engine.Function, error) {
	var out []engine.Function
	for _, name := range e.calls[fn.Name()] {
		out = append(out, taggedFunc{name: name})
	}
	return out, nil
}

func (e *taggedEngine) OpenDecompiler() (engine.Decompiler, error) {
	return nil, errors.New("not used")
}

func TestBuildCallGraph_NameCollisionUncomparableHandles(t *testing.T) {
	e := &taggedEngine{
		funcs: []taggedFunc{
			{name: "X", tags: []string{"first"}},
			{name: "Y"},
			{name: "X", tags: []string{"second"}},
		},
		calls: map[string][]string{"X": {"Y"}},
	}

	var g CallGraph
	var collisions int
	require.NotPanics(t, func() {
		var err error
		g, collisions, err = BuildCallGraph(e, funcsOfEngine(t, e), nil)
		require.NoError(t, err)
	})
	assert.Equal(t, 1, collisions)
	assert.Equal(t, CallGraph{"X": {"Y"}, "Y": {}}, g)
}

func funcsOfEngine(t *testing.T, e engine.Engine) []engine.Function {
	t.Helper()
	funcs, err := e.Functions()
	require.NoError(t, err)
	return funcs
}

func TestRun_CalleeOutsideEnumerationFailsCheck(t *testing.T) {
	// An engine that reports a callee it never enumerated breaks the
	// consistency of the final artifacts, and Check says so.
	ghost := &fakeFunc{name: "ghost", text: "void ghost(void) {}"}
	a := &fakeFunc{name: "A", text: "void A(void) { ghost(); }", calls: []*fakeFunc{ghost}}
	e := newFake(a)

	res, err := Run(e, Options{})
	require.NoError(t, err)
	assert.Equal(t, CallGraph{"A": {"ghost"}}, res.CallGraph)
	assert.NotContains(t, res.Decompilations, "ghost")
	require.ErrorIs(t, res.Check(), ErrInconsistent)
}

func TestBuildCallGraph_QueryErrorIsFatal(t *testing.T) {
	a, b, c := scenario()
	e := newFake(a, b, c)
	e.callsErr = errors.New("engine gone")

	_, _, err := BuildCallGraph(e, funcsOf(t, e), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, e.callsErr)
}

func TestDecompile_RecordsMissing(t *testing.T) {
	a, b, c := scenario()
	b.fail = true
	e := newFake(a, b, c)

	decomps, missing, err := Decompile(e, funcsOf(t, e), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"B"}, missing)
	assert.Equal(t, Decompilations{"A": a.text, "C": c.text}, decomps)
	assert.Equal(t, 1, e.session.closed)
	assert.Equal(t, 3, e.session.decompile)
}

func TestDecompile_OpenFailureIsFatal(t *testing.T) {
	a, b, c := scenario()
	e := newFake(a, b, c)
	e.openErr = errors.New("no program")

	_, _, err := Decompile(e, funcsOf(t, e), nil)
	require.ErrorIs(t, err, e.openErr)
	assert.Contains(t, err.Error(), "open decompiler")
}

func TestDecompile_CloseFailureIsFatal(t *testing.T) {
	a, b, c := scenario()
	e := newFake(a, b, c)
	e.closeErr = errors.New("close failed")

	decomps, missing, err := Decompile(e, funcsOf(t, e), nil)
	require.ErrorIs(t, err, e.closeErr)
	assert.Nil(t, decomps)
	assert.Nil(t, missing)
	assert.Equal(t, 1, e.session.closed)
}

func TestDecompile_SessionClosedOnPanic(t *testing.T) {
	a, b, c := scenario()
	e := newFake(a, b, c)
	e.panicOn = "B"

	assert.Panics(t, func() {
		_, _, _ = Decompile(e, funcsOf(t, e), nil)
	})
	require.NotNil(t, e.session)
	assert.Equal(t, 1, e.session.closed)
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name    string
		graph   CallGraph
		missing []string
		want    CallGraph
	}{
		{
			name:    "nothing missing",
			graph:   CallGraph{"A": {"B"}, "B": {}},
			missing: nil,
			want:    CallGraph{"A": {"B"}, "B": {}},
		},
		{
			name:    "callee removed as key and edge",
			graph:   CallGraph{"A": {"B"}, "B": {}},
			missing: []string{"B"},
			want:    CallGraph{"A": {}},
		},
		{
			name:    "missing thunk not in graph",
			graph:   CallGraph{"A": {"B"}, "B": {}},
			missing: []string{"C"},
			want:    CallGraph{"A": {"B"}, "B": {}},
		},
		{
			name:    "several callers",
			graph:   CallGraph{"A": {"B", "C", "D"}, "B": {"C"}, "C": {}, "D": {"C", "B"}},
			missing: []string{"C", "D"},
			want:    CallGraph{"A": {"B"}, "B": {}},
		},
		{
			name:    "duplicated missing name",
			graph:   CallGraph{"A": {"B"}, "B": {}},
			missing: []string{"B", "B"},
			want:    CallGraph{"A": {}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Reconcile(tt.graph, tt.missing)
			assert.Equal(t, tt.want, tt.graph)
		})
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	once := CallGraph{"A": {"B", "C"}, "B": {"C"}, "C": {}, "D": {"A"}}
	twice := CallGraph{"A": {"B", "C"}, "B": {"C"}, "C": {}, "D": {"A"}}
	missing := []string{"C", "A"}

	Reconcile(once, missing)
	Reconcile(twice, missing)
	Reconcile(twice, missing)

	assert.Equal(t, once, twice)
	assert.Equal(t, CallGraph{"B": {}, "D": {}}, once)
}

func TestRun_Scenarios(t *testing.T) {
	tests := []struct {
		name        string
		failB       bool
		wantGraph   CallGraph
		wantDecomps []string
		wantMissing []string
	}{
		{
			name:        "all decompile",
			wantGraph:   CallGraph{"A": {"B"}, "B": {}},
			wantDecomps: []string{"A", "B", "C"},
		},
		{
			name:        "B fails",
			failB:       true,
			wantGraph:   CallGraph{"A": {}},
			wantDecomps: []string{"A", "C"},
			wantMissing: []string{"B"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b, c := scenario()
			b.fail = tt.failB
			e := newFake(a, b, c)

			var log bytes.Buffer
			res, err := Run(e, Options{Reporter: NewReporter(&log, 0, false)})
			require.NoError(t, err)

			assert.Equal(t, tt.wantGraph, res.CallGraph)
			assert.Equal(t, tt.wantMissing, res.Missing)
			keys := make([]string, 0, len(res.Decompilations))
			for k := range res.Decompilations {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			assert.Equal(t, tt.wantDecomps, keys)
			assert.Equal(t, 3, res.Functions)
			require.NoError(t, res.Check())

			out := log.String()
			assert.Contains(t, out, "enumerated 3 functions")
			assert.Contains(t, out, "missing "+strconv.Itoa(len(tt.wantMissing))+" functions:")
			for _, m := range tt.wantMissing {
				assert.Contains(t, out, "  "+m+"\n")
			}
		})
	}
}

func TestRun_NameCollision(t *testing.T) {
	y := &fakeFunc{name: "Y", text: "y"}
	z := &fakeFunc{name: "Z", text: "z"}
	x1 := &fakeFunc{name: "X", calls: []*fakeFunc{y}, text: "x1"}
	x2 := &fakeFunc{name: "X", calls: []*fakeFunc{z}, text: "x2"}
	e := newFake(x1, y, z, x2)

	var log bytes.Buffer
	res, err := Run(e, Options{Reporter: NewReporter(&log, 0, false)})
	require.NoError(t, err)

	assert.Equal(t, []string{"Z"}, res.CallGraph["X"])
	assert.Equal(t, "x2", res.Decompilations["X"])
	assert.Equal(t, 1, res.Collisions)
	assert.Contains(t, log.String(), "warning: 1 functions share a name")
}

func TestRun_EnumerationErrorIsFatal(t *testing.T) {
	e := newFake()
	e.enumErr = errors.New("program not loaded")

	_, err := Run(e, Options{})
	require.ErrorIs(t, err, e.enumErr)
	assert.Nil(t, e.session, "no session is opened after a failed enumeration")
}

func TestRun_ConsistencyUnderFailures(t *testing.T) {
	// A wide graph where every third function fails to decompile.
	const n = 30
	funcs := make([]*fakeFunc, n)
	for i := range funcs {
		funcs[i] = &fakeFunc{name: "f" + strconv.Itoa(i), text: "body", fail: i%3 == 0, thunk: i%7 == 6}
	}
	for i, f := range funcs {
		for j := 0; j < n; j += i%4 + 1 {
			f.calls = append(f.calls, funcs[j])
		}
	}
	e := newFake(funcs...)

	res, err := Run(e, Options{})
	require.NoError(t, err)
	require.NoError(t, res.Check())

	for k, callees := range res.CallGraph {
		assert.NotContains(t, callees, k)
		for _, c := range callees {
			assert.False(t, isThunkName(funcs, c), "thunk %s in graph", c)
		}
	}
	for i, f := range funcs {
		_, isKey := res.CallGraph[f.name]
		assert.Equal(t, !f.thunk && !f.fail, isKey, "f%d", i)
	}
}

func TestResultCheck_DetectsInconsistency(t *testing.T) {
	r := &Result{
		CallGraph:      CallGraph{"A": {"B"}},
		Decompilations: Decompilations{"A": "a"},
	}
	require.ErrorIs(t, r.Check(), ErrInconsistent)

	r = &Result{
		CallGraph:      CallGraph{"A": {}},
		Decompilations: Decompilations{"A": "a"},
		Missing:        []string{"A"},
	}
	require.ErrorIs(t, r.Check(), ErrInconsistent)
}

func TestReporter_Progress(t *testing.T) {
	var log bytes.Buffer
	rep := NewReporter(&log, 2, false)
	for i := 0; i <= 5; i++ {
		rep.progress("pass", i, 5)
	}
	assert.Equal(t, "pass: 2/5\npass: 4/5\npass: 5/5\n", log.String())
}

func isThunkName(funcs []*fakeFunc, name string) bool {
	i, err := strconv.Atoi(strings.TrimPrefix(name, "f"))
	return err == nil && funcs[i].thunk
}
