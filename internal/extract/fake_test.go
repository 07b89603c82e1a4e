package extract

import (
	"errors"

	"decompgraph/internal/engine"
)

// fakeFunc is a scripted function handle. Distinct pointers with the same
// name model name collisions.
type fakeFunc struct {
	name  string
	thunk bool
	calls []*fakeFunc
	text  string
	fail  bool
}

func (f *fakeFunc) Name() string { return f.name }

type fakeEngine struct {
	funcs []*fakeFunc

	enumErr  error
	callsErr error
	openErr  error
	closeErr error
	panicOn  string

	queried map[string]int
	session *fakeSession
}

func newFake(funcs ...*fakeFunc) *fakeEngine {
	return &fakeEngine{funcs: funcs, queried: make(map[string]int)}
}

func (e *fakeEngine) Functions() ([]engine.Function, error) {
	if e.enumErr != nil {
		return nil, e.enumErr
	}
	out := make([]engine.Function, len(e.funcs))
	for i, f := range e.funcs {
		out[i] = f
	}
	return out, nil
}

func (e *fakeEngine) IsThunk(fn engine.Function) bool {
	return fn.(*fakeFunc).thunk
}

func (e *fakeEngine) CalledFunctions(fn engine.Function) ([]engine.Function, error) {
	if e.callsErr != nil {
		return nil, e.callsErr
	}
	f := fn.(*fakeFunc)
	e.queried[f.name]++
	out := make([]engine.Function, len(f.calls))
	for i, c := range f.calls {
		out[i] = c
	}
	return out, nil
}

func (e *fakeEngine) OpenDecompiler() (engine.Decompiler, error) {
	if e.openErr != nil {
		return nil, e.openErr
	}
	e.session = &fakeSession{closeErr: e.closeErr, panicOn: e.panicOn}
	return e.session, nil
}

type fakeSession struct {
	closeErr  error
	closed    int
	decompile int
	panicOn   string
}

func (s *fakeSession) Decompile(fn engine.Function) (string, bool) {
	if s.closed > 0 {
		panic(errors.New("decompile after close"))
	}
	f := fn.(*fakeFunc)
	if f.name == s.panicOn {
		panic("engine crashed")
	}
	s.decompile++
	if f.fail {
		return "", false
	}
	return f.text, true
}

func (s *fakeSession) Close() error {
	s.closed++
	return s.closeErr
}

// scenario returns A, B, C where A calls B, itself and thunk C.
func scenario() (a, b, c *fakeFunc) {
	b = &fakeFunc{name: "B", text: "void B(void) {}"}
	c = &fakeFunc{name: "C", thunk: true, text: "void C(void) { B(); }"}
	a = &fakeFunc{name: "A", text: "void A(void) { B(); A(); C(); }"}
	a.calls = []*fakeFunc{b, a, c}
	return a, b, c
}
