// Package job sequences one upload through conversion, composition,
// compression and delivery, and removes every artifact it created.
package job

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

type artifact struct {
	path      string
	dir       bool
	final     bool // the deliverable, or a directory holding it
	attempted bool
}

// Job is the transient state of one request. It is owned by a single
// goroutine and is not safe for concurrent use.
type Job struct {
	ID            string
	Filename      string // original upload name
	Stem          string // sanitized name without extension
	SlidesPerPage int

	uploadDir string
	workDir   string
	input     string
	final     string

	pageCount  int
	compressed bool

	state   State
	history []State
	err     *Error

	artifacts []*artifact
	remove    func(string) error
	logger    *slog.Logger
	started   time.Time
	entered   time.Time
}

// Result describes a successfully produced deliverable.
type Result struct {
	Path       string
	Filename   string // attachment name, original stem + ".pdf"
	PageCount  int
	Compressed bool
}

// State returns the current state.
func (j *Job) State() State { return j.state }

// History returns every state the job entered, in order.
func (j *Job) History() []State {
	out := make([]State, len(j.history))
	copy(out, j.history)
	return out
}

// Err returns the failure that ended the job, if any.
func (j *Job) Err() *Error { return j.err }

// Result returns the deliverable once the job reached Delivering.
func (j *Job) Result() Result {
	return Result{
		Path:       j.final,
		Filename:   j.Stem + ".pdf",
		PageCount:  j.pageCount,
		Compressed: j.compressed,
	}
}

// Artifacts returns the tracked paths in creation order.
func (j *Job) Artifacts() []string {
	out := make([]string, len(j.artifacts))
	for i, a := range j.artifacts {
		out[i] = a.path
	}
	return out
}

func (j *Job) track(path string, dir, final bool) {
	for _, a := range j.artifacts {
		if a.path == path {
			return
		}
	}
	j.artifacts = append(j.artifacts, &artifact{path: path, dir: dir, final: final})
}

func (j *Job) transition(to State) error {
	if !CanTransition(j.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, j.state, to)
	}
	now := time.Now()
	j.logger.Debug("job state", "from", j.state.String(), "to", to.String(), "stage_ms", now.Sub(j.entered).Milliseconds())
	j.state = to
	j.entered = now
	j.history = append(j.history, to)
	return nil
}

// fail moves the job to Failed, removes every tracked artifact and returns
// the classified error. A job that is already terminal keeps its first error.
func (j *Job) fail(kind Kind, err error) *Error {
	if j.state.Terminal() {
		if j.err != nil {
			return j.err
		}
		return &Error{Kind: kind, State: j.state, Message: j.redact(err.Error()), Err: err}
	}

	je := &Error{Kind: kind, State: j.state, Message: j.redact(err.Error()), Err: err}
	var prior *Error
	if errors.As(err, &prior) {
		je = prior
	}
	j.err = je
	_ = j.transition(Failed)
	j.logger.Error("job failed", "kind", je.Kind.String(), "state", je.State.String(), "error", err)
	j.cleanup(true)
	return je
}

// cleanup removes tracked artifacts that were not attempted yet: files
// before directories, newest first. The deliverable is kept unless all is set.
// Every path is attempted at most once.
func (j *Job) cleanup(all bool) {
	var errs []error
	for _, dirs := range []bool{false, true} {
		for i := len(j.artifacts) - 1; i >= 0; i-- {
			a := j.artifacts[i]
			if a.attempted || a.dir != dirs || (a.final && !all) {
				continue
			}
			a.attempted = true
			if err := j.remove(a.path); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(a.path), err))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		j.logger.Warn("artifact cleanup incomplete", "error", err)
	}
}

// redact strips job directories from text surfaced to callers.
func (j *Job) redact(s string) string {
	for _, dir := range []string{j.workDir, j.uploadDir} {
		if dir == "" {
			continue
		}
		if abs, err := filepath.Abs(dir); err == nil && abs != dir {
			s = strings.ReplaceAll(s, abs+string(filepath.Separator), "")
			s = strings.ReplaceAll(s, abs, "")
		}
		s = strings.ReplaceAll(s, dir+string(filepath.Separator), "")
		s = strings.ReplaceAll(s, dir, "")
	}
	return s
}
