package execx

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// Runner abstracts command execution so callers can be unit-tested without
// a real tailscale binary on the host.
type Runner interface {
	Output(name string, args ...string) ([]byte, error)
}

// Error describes a command that could not be started or exited non-zero.
type Error struct {
	Name   string
	Args   []string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	line := strings.TrimSpace(e.Name + " " + strings.Join(e.Args, " "))
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %s: %s", line, e.Err.Error(), e.Stderr)
	}
	return fmt.Sprintf("%s: %s", line, e.Err.Error())
}

func (e *Error) Unwrap() error { return e.Err }

// OSRunner executes commands on the host via os/exec.
type OSRunner struct{}

func NewOSRunner() *OSRunner {
	return &OSRunner{}
}

// Output runs the command and returns its standard output. Standard error is
// kept apart so diagnostics never end up in the returned bytes.
func (r *OSRunner) Output(name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &Error{
			Name:   name,
			Args:   args,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}
	return stdout.Bytes(), nil
}
