//go:build !windows

package runner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestExecRunner_Run(t *testing.T) {
	tests := []struct {
		name       string
		timeout    time.Duration
		cmd        string
		args       []string
		wantErr    error
		wantStdout string
		wantStderr string
		wantExit   int
	}{
		{
			name:       "success captures stdout",
			cmd:        "sh",
			args:       []string{"-c", "echo converted"},
			wantStdout: "converted\n",
		},
		{
			name:       "non-zero exit keeps stderr",
			cmd:        "sh",
			args:       []string{"-c", "echo 'Error: source file could not be loaded' >&2; exit 3"},
			wantErr:    ErrFailed,
			wantStderr: "Error: source file could not be loaded\n",
			wantExit:   3,
		},
		{
			name:    "timeout kills the process",
			timeout: 100 * time.Millisecond,
			cmd:     "sh",
			args:    []string{"-c", "sleep 10"},
			wantErr: ErrTimeout,
		},
		{
			name:    "missing binary",
			cmd:     "definitely-not-installed-handout-tool",
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &ExecRunner{Timeout: tt.timeout}
			start := time.Now()
			res, err := r.Run(context.Background(), tt.cmd, tt.args...)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if time.Since(start) > 8*time.Second {
				t.Errorf("run took %s, timeout not enforced", time.Since(start))
			}
			if tt.wantStdout != "" && res.Stdout != tt.wantStdout {
				t.Errorf("stdout = %q, want %q", res.Stdout, tt.wantStdout)
			}
			if tt.wantStderr != "" && res.Stderr != tt.wantStderr {
				t.Errorf("stderr = %q, want %q", res.Stderr, tt.wantStderr)
			}
			if tt.wantExit != 0 && res.ExitCode != tt.wantExit {
				t.Errorf("exit code = %d, want %d", res.ExitCode, tt.wantExit)
			}
		})
	}
}

func TestExecRunner_Env(t *testing.T) {
	r := &ExecRunner{Env: []string{"HANDOUT_TEST_VALUE=42"}}
	res, err := r.Run(context.Background(), "sh", "-c", "echo $HANDOUT_TEST_VALUE")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(res.Stdout) != "42" {
		t.Errorf("stdout = %q, want 42", res.Stdout)
	}
}

func TestResult_Diagnostic(t *testing.T) {
	if got := (Result{Stdout: " out ", Stderr: "\n"}).Diagnostic(); got != "out" {
		t.Errorf("Diagnostic() = %q, want stdout fallback", got)
	}
	if got := (Result{Stdout: "out", Stderr: "err\n"}).Diagnostic(); got != "err" {
		t.Errorf("Diagnostic() = %q, want stderr", got)
	}
}
