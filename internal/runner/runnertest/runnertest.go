// Package runnertest provides a scripted runner.Runner for tests.
package runnertest

import (
	"context"
	"sync"

	"handout-maker/backend/internal/runner"
)

// Func handles one invocation.
type Func func(name string, args []string) (runner.Result, error)

// Fake dispatches calls by executable name and records them.
// Calls to names without a handler succeed with an empty Result.
type Fake struct {
	mu       sync.Mutex
	handlers map[string]Func
	calls    [][]string
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{handlers: map[string]Func{}}
}

// Handle registers fn for invocations of name.
func (f *Fake) Handle(name string, fn Func) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[name] = fn
	return f
}

func (f *Fake) Run(ctx context.Context, name string, args ...string) (runner.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	fn := f.handlers[name]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return runner.Result{}, err
	}
	if fn == nil {
		return runner.Result{}, nil
	}
	return fn(name, args)
}

// Calls returns every recorded invocation, name first.
func (f *Fake) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo counts invocations of name.
func (f *Fake) CallsTo(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c[0] == name {
			n++
		}
	}
	return n
}
