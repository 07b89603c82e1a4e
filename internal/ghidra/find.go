package ghidra

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no Ghidra installation can be located.
var ErrNotFound = errors.New(`ghidra: installation not found

Install Ghidra:
  brew install ghidra

Or set GHIDRA_HOME:
  export GHIDRA_HOME=/path/to/ghidra

Or pass --ghidra-home:
  decompgraph extract --ghidra-home /path/to/ghidra --bin <binary>`)

// Install is a located Ghidra installation.
type Install struct {
	Home            string
	AnalyzeHeadless string
}

// Search roots for Homebrew installs. Overridden in tests.
var (
	caskRoots   = []string{"/opt/homebrew/Caskroom/ghidra", "/usr/local/Caskroom/ghidra"}
	cellarRoots = []string{"/opt/homebrew/Cellar/ghidra", "/usr/local/Cellar/ghidra"}
	brewJDKs    = []string{
		"/opt/homebrew/opt/openjdk@21/libexec/openjdk.jdk/Contents/Home",
		"/opt/homebrew/opt/openjdk/libexec/openjdk.jdk/Contents/Home",
		"/usr/local/opt/openjdk@21/libexec/openjdk.jdk/Contents/Home",
	}
)

// Find locates analyzeHeadless.
// Search order:
//  1. explicitHome (--ghidra-home or config)
//  2. GHIDRA_HOME environment variable
//  3. analyzeHeadless in PATH
//  4. ghidraRun in PATH, following brew's wrapper to the install
//  5. Homebrew Caskroom, then Cellar, newest version first
func Find(explicitHome string) (Install, error) {
	if explicitHome != "" {
		if in, ok := installAt(explicitHome); ok {
			return in, nil
		}
		return Install{}, fmt.Errorf("ghidra: analyzeHeadless not found at %s", headlessPath(explicitHome))
	}

	if gh := os.Getenv("GHIDRA_HOME"); gh != "" {
		if in, ok := installAt(gh); ok {
			return in, nil
		}
	}

	if ah, err := exec.LookPath("analyzeHeadless"); err == nil {
		// support/analyzeHeadless
		return Install{Home: filepath.Dir(filepath.Dir(ah)), AnalyzeHeadless: ah}, nil
	}

	if gr, err := exec.LookPath("ghidraRun"); err == nil {
		if home := deriveHome(gr); home != "" {
			if in, ok := installAt(home); ok {
				return in, nil
			}
		}
	}

	// Caskroom layout: ghidra/<ver>/ghidra_<ver>_PUBLIC/support/analyzeHeadless
	for _, root := range caskRoots {
		for _, v := range newestDirs(root) {
			for _, sub := range newestDirs(filepath.Join(root, v)) {
				if in, ok := installAt(filepath.Join(root, v, sub)); ok {
					return in, nil
				}
			}
		}
	}

	// Cellar layout: ghidra/<ver>/libexec/support/analyzeHeadless
	for _, root := range cellarRoots {
		for _, v := range newestDirs(root) {
			if in, ok := installAt(filepath.Join(root, v, "libexec")); ok {
				return in, nil
			}
		}
	}

	return Install{}, ErrNotFound
}

func headlessPath(home string) string {
	return filepath.Join(home, "support", "analyzeHeadless")
}

func installAt(home string) (Install, bool) {
	ah := headlessPath(home)
	if _, err := os.Stat(ah); err != nil {
		return Install{}, false
	}
	return Install{Home: home, AnalyzeHeadless: ah}, true
}

// newestDirs lists subdirectory names of root in reverse lexical order.
func newestDirs(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var out []string
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].IsDir() {
			out = append(out, entries[i].Name())
		}
	}
	return out
}

// deriveHome reads a ghidraRun wrapper script to find the real install path.
// Brew's wrapper contains: exec "/opt/homebrew/Cellar/ghidra/X.Y.Z/libexec/ghidraRun"
func deriveHome(ghidraRunPath string) string {
	data, err := os.ReadFile(ghidraRunPath)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, "exec") || !strings.Contains(line, "ghidraRun") {
			continue
		}
		quoted, ok := firstQuoted(line)
		if !ok {
			continue
		}
		home := filepath.Dir(quoted)
		if _, err := os.Stat(filepath.Join(home, "support")); err == nil {
			return home
		}
	}
	return ""
}

func firstQuoted(line string) (string, bool) {
	start := strings.IndexByte(line, '"')
	if start < 0 {
		return "", false
	}
	rest := line[start+1:]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// FindJavaHome locates a JDK for Ghidra: the default baked into the
// install's ghidraRun wrapper, then common brew JDK paths. Returns "" when
// nothing is found.
func FindJavaHome(ghidraHome string) string {
	if data, err := os.ReadFile(filepath.Join(ghidraHome, "ghidraRun")); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			// JAVA_HOME="${JAVA_HOME:-/opt/homebrew/opt/openjdk@21/...}"
			if !strings.Contains(line, "JAVA_HOME") {
				continue
			}
			idx := strings.Index(line, ":-")
			if idx < 0 {
				continue
			}
			rest := line[idx+2:]
			end := strings.IndexAny(rest, `}"`)
			if end <= 0 {
				continue
			}
			if jh := rest[:end]; isDir(jh) {
				return jh
			}
		}
	}

	for _, jh := range brewJDKs {
		if isDir(jh) {
			return jh
		}
	}
	return ""
}

func isDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}
