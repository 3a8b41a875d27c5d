// Package runner executes external tools and captures their text output.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("executable not found")
	ErrTimeout  = errors.New("external tool timed out")
	ErrFailed   = errors.New("external tool failed")
)

// Result is the text contract of one external invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Diagnostic returns the most useful text the tool printed.
func (r Result) Diagnostic() string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(r.Stdout)
}

// Runner abstracts command execution so stages can be tested without real binaries.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner implements Runner with os/exec.
// A zero Timeout relies on the caller's context alone.
type ExecRunner struct {
	Timeout time.Duration
	Env     []string
}

// Run starts name and waits for it. A non-zero exit yields ErrFailed together
// with the captured output; expiry of the timeout yields ErrTimeout.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if _, err := exec.LookPath(name); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 -- binaries come from server config
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case err == nil:
		return res, nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return res, fmt.Errorf("%w: %s after %s", ErrTimeout, name, r.Timeout)
	case ctx.Err() != nil:
		return res, ctx.Err()
	default:
		return res, fmt.Errorf("%w: %s: %v", ErrFailed, name, err)
	}
}
