// Package deps probes the external tools squish drives at runtime: whether
// the configured binaries resolve, what the local ffmpeg build supports, and
// whether the work directory is usable.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

// Requirement defines an external binary squish relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a requirement. Command carries the
// resolved path when the lookup succeeded and the configured value otherwise.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional,omitempty"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		command := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     command,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if command == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(command)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", command)
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Result reports the outcome of a directory access check.
type Result struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// CheckDirectoryAccess verifies that path exists, is a directory, and is
// readable, writable, and traversable.
func CheckDirectoryAccess(name, path string) Result {
	result := Result{Name: name, Path: path}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			result.Detail = "does not exist"
			return result
		}
		result.Detail = fmt.Sprintf("stat: %v", err)
		return result
	}
	if !info.IsDir() {
		result.Detail = "not a directory"
		return result
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		result.Detail = fmt.Sprintf("insufficient permissions: %v", err)
		return result
	}
	result.Passed = true
	return result
}
