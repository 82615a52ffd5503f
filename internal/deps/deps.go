// Package deps reports whether the external tools and volumes the ingest
// pipeline shells out to are present.
package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement is an external tool the pipeline invokes.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the outcome of checking one Requirement.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// CheckBinaries resolves each requirement's command on PATH, or as a path
// when it contains a slash.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		results[i] = Status{Requirement: req}
		results[i].Available, results[i].Detail = resolve(req.Command)
	}
	return results
}

func resolve(command string) (bool, string) {
	if command == "" {
		return false, "command not configured"
	}
	if _, err := lookPath(command); err != nil {
		return false, fmt.Sprintf("binary %q not found", command)
	}
	return true, ""
}
