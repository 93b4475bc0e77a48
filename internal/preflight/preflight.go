package preflight

import (
	"fmt"
	"os/exec"
	"strings"
)

// LookPathFunc resolves a command name on the search path.
type LookPathFunc func(file string) (string, error)

// MissingError names every required command that could not be resolved.
type MissingError struct {
	Commands []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("could not find %s in PATH", quoteList(e.Commands))
}

// Check resolves all commands and fails if any is missing. lookPath == nil
// uses exec.LookPath.
func Check(lookPath LookPathFunc, commands []string) error {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	seen := make(map[string]bool, len(commands))
	var missing []string
	for _, c := range commands {
		if seen[c] {
			continue
		}
		seen[c] = true
		if _, err := lookPath(c); err != nil {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &MissingError{Commands: missing}
	}
	return nil
}

func quoteList(xs []string) string {
	q := make([]string, len(xs))
	for i, x := range xs {
		q[i] = "'" + x + "'"
	}
	return strings.Join(q, ", ")
}
