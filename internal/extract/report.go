package extract

import (
	"fmt"
	"io"
)

// defaultProgressEvery is how many functions pass between progress lines.
const defaultProgressEvery = 1000

// Reporter writes operator-facing progress and summaries. A nil *Reporter
// discards everything.
type Reporter struct {
	w       io.Writer
	every   int
	verbose bool
}

// NewReporter returns a Reporter writing to w. every <= 0 selects the
// default progress interval.
func NewReporter(w io.Writer, every int, verbose bool) *Reporter {
	if w == nil {
		w = io.Discard
	}
	if every <= 0 {
		every = defaultProgressEvery
	}
	return &Reporter{w: w, every: every, verbose: verbose}
}

func (r *Reporter) printf(format string, args ...any) {
	if r == nil {
		return
	}
	fmt.Fprintf(r.w, format, args...)
}

func (r *Reporter) verbosef(format string, args ...any) {
	if r == nil || !r.verbose {
		return
	}
	fmt.Fprintf(r.w, format, args...)
}

func (r *Reporter) progress(stage string, done, total int) {
	if r == nil || total == 0 {
		return
	}
	if done == total || (done > 0 && done%r.every == 0) {
		fmt.Fprintf(r.w, "%s: %d/%d\n", stage, done, total)
	}
}
